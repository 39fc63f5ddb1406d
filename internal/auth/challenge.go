package auth

import (
	"time"

	"github.com/congo-pay/storefront/internal/identity"
)

// Method is the credential method chosen for the current attempt.
type Method int

const (
	MethodNone Method = iota
	MethodPassword
	MethodPhone
)

func (m Method) String() string {
	switch m {
	case MethodPassword:
		return "password"
	case MethodPhone:
		return "phone"
	default:
		return "none"
	}
}

// ChallengeStatus is the lifecycle state of a phone verification.
type ChallengeStatus string

const (
	ChallengeIdle     ChallengeStatus = "idle"
	ChallengePending  ChallengeStatus = "pending"
	ChallengeVerified ChallengeStatus = "verified"
	ChallengeFailed   ChallengeStatus = "failed"
)

// Purpose says what a verified phone challenge unlocks.
type Purpose string

const (
	PurposeLogin  Purpose = "login"
	PurposeSignup Purpose = "signup"
)

// Challenge is one phone OTP verification attempt. A Manager owns at most one
// at a time; starting another replaces it.
type Challenge struct {
	ID        string          `json:"challenge_id"`
	Phone     string          `json:"phone"`
	Purpose   Purpose         `json:"purpose"`
	Status    ChallengeStatus `json:"status"`
	CreatedAt time.Time       `json:"created_at"`

	verifier identity.VerifierHandle
	handle   identity.ChallengeHandle
	signup   *SignupInput
}

// PhoneInput is a phone credential as entered by the user.
type PhoneInput struct {
	CountryCode    string `json:"country_code"`
	Number         string `json:"phone" validate:"required"`
	RecaptchaToken string `json:"recaptcha_token"`
}

// FullNumber joins the country code and subscriber number.
func (in PhoneInput) FullNumber() string {
	return in.CountryCode + in.Number
}
