package identity

import "errors"

// VerifierModeInvisible is the only verifier mode the storefront uses: the
// challenge widget stays hidden unless the provider escalates.
const VerifierModeInvisible = "invisible"

var (
	// ErrInvalidCredentials is returned when an email/password pair is rejected.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrEmailExists is returned when registering an email that already has an account.
	ErrEmailExists = errors.New("email already registered")
	// ErrWeakPassword is returned when the provider refuses a password.
	ErrWeakPassword = errors.New("password should be at least 6 characters")
	// ErrInvalidCode is returned when an OTP does not match the pending challenge.
	ErrInvalidCode = errors.New("invalid verification code")
	// ErrUnknownChallenge is returned when a challenge handle is not pending at the provider.
	ErrUnknownChallenge = errors.New("verification session not found")
	// ErrVerifierReleased is returned when a verifier no longer owns its anchor.
	ErrVerifierReleased = errors.New("verifier released")
	// ErrMissingPhone is returned when an OTP is requested without a phone number.
	ErrMissingPhone = errors.New("phone number is required")
)

// VerifiedIdentity is the opaque result of a successful credential or OTP check.
type VerifiedIdentity struct {
	UID     string
	Email   string
	Phone   string
	IDToken string
}

// VerifierHandle binds a phone challenge to a client-side anchor element.
type VerifierHandle struct {
	ID             string
	Owner          string
	AnchorID       string
	Mode           string
	RecaptchaToken string
}

// ChallengeHandle identifies an OTP that the provider has sent.
type ChallengeHandle struct {
	SessionInfo string
	Phone       string
	VerifierID  string
}
