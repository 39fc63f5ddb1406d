package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/identitytoolkit/v3"
	"google.golang.org/api/option"
)

const requestTypeVerifyEmail = "VERIFY_EMAIL"

// ToolkitProvider authenticates against the hosted Identity Toolkit REST API
// using the project's web API key. Account deletion goes through the admin
// SDK when one is configured.
type ToolkitProvider struct {
	rp        *identitytoolkit.RelyingpartyService
	admin     *auth.Client
	verifiers *verifierRegistry
}

// NewToolkitProvider builds a provider bound to apiKey. admin may be nil.
func NewToolkitProvider(ctx context.Context, apiKey string, admin *auth.Client, opts ...option.ClientOption) (*ToolkitProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("identity toolkit api key is required")
	}
	opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	svc, err := identitytoolkit.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("identity toolkit client: %w", err)
	}
	return &ToolkitProvider{rp: svc.Relyingparty, admin: admin, verifiers: newVerifierRegistry()}, nil
}

// Authenticate signs in with email and password.
func (p *ToolkitProvider) Authenticate(ctx context.Context, email, password string) (VerifiedIdentity, error) {
	resp, err := p.rp.VerifyPassword(&identitytoolkit.IdentitytoolkitRelyingpartyVerifyPasswordRequest{
		Email:             email,
		Password:          password,
		ReturnSecureToken: true,
	}).Context(ctx).Do()
	if err != nil {
		return VerifiedIdentity{}, translate(err)
	}
	return VerifiedIdentity{UID: resp.LocalId, Email: resp.Email, IDToken: resp.IdToken}, nil
}

// Register creates an email/password account.
func (p *ToolkitProvider) Register(ctx context.Context, email, password string) (VerifiedIdentity, error) {
	resp, err := p.rp.SignupNewUser(&identitytoolkit.IdentitytoolkitRelyingpartySignupNewUserRequest{
		Email:    email,
		Password: password,
	}).Context(ctx).Do()
	if err != nil {
		return VerifiedIdentity{}, translate(err)
	}
	return VerifiedIdentity{UID: resp.LocalId, Email: resp.Email, IDToken: resp.IdToken}, nil
}

// SendVerificationEmail asks the provider to mail a verification link.
func (p *ToolkitProvider) SendVerificationEmail(ctx context.Context, id VerifiedIdentity) error {
	_, err := p.rp.GetOobConfirmationCode(&identitytoolkit.Relyingparty{
		RequestType: requestTypeVerifyEmail,
		IdToken:     id.IDToken,
		Email:       id.Email,
	}).Context(ctx).Do()
	if err != nil {
		return translate(err)
	}
	return nil
}

// CreateVerifier binds a verifier carrying the client's reCAPTCHA token.
func (p *ToolkitProvider) CreateVerifier(owner, anchorID, recaptchaToken string) (VerifierHandle, error) {
	return p.verifiers.create(owner, anchorID, recaptchaToken), nil
}

// ReleaseVerifier unbinds v from its anchor.
func (p *ToolkitProvider) ReleaseVerifier(v VerifierHandle) {
	p.verifiers.release(v)
}

// SendOTP requests an SMS code for phone.
func (p *ToolkitProvider) SendOTP(ctx context.Context, phone string, v VerifierHandle) (ChallengeHandle, error) {
	if phone == "" {
		return ChallengeHandle{}, ErrMissingPhone
	}
	if !p.verifiers.owns(v) {
		return ChallengeHandle{}, ErrVerifierReleased
	}
	resp, err := p.rp.SendVerificationCode(&identitytoolkit.IdentitytoolkitRelyingpartySendVerificationCodeRequest{
		PhoneNumber:    phone,
		RecaptchaToken: v.RecaptchaToken,
	}).Context(ctx).Do()
	if err != nil {
		return ChallengeHandle{}, translate(err)
	}
	return ChallengeHandle{SessionInfo: resp.SessionInfo, Phone: phone, VerifierID: v.ID}, nil
}

// ConfirmOTP exchanges the SMS code for a verified identity.
func (p *ToolkitProvider) ConfirmOTP(ctx context.Context, h ChallengeHandle, code string) (VerifiedIdentity, error) {
	if h.SessionInfo == "" {
		return VerifiedIdentity{}, ErrUnknownChallenge
	}
	resp, err := p.rp.VerifyPhoneNumber(&identitytoolkit.IdentitytoolkitRelyingpartyVerifyPhoneNumberRequest{
		SessionInfo: h.SessionInfo,
		Code:        strings.TrimSpace(code),
	}).Context(ctx).Do()
	if err != nil {
		return VerifiedIdentity{}, translate(err)
	}
	phone := resp.PhoneNumber
	if phone == "" {
		phone = h.Phone
	}
	return VerifiedIdentity{UID: resp.LocalId, Phone: phone, IDToken: resp.IdToken}, nil
}

// Delete removes the account, preferring the admin SDK.
func (p *ToolkitProvider) Delete(ctx context.Context, id VerifiedIdentity) error {
	if p.admin != nil {
		return p.admin.DeleteUser(ctx, id.UID)
	}
	_, err := p.rp.DeleteAccount(&identitytoolkit.IdentitytoolkitRelyingpartyDeleteAccountRequest{
		IdToken: id.IDToken,
		LocalId: id.UID,
	}).Context(ctx).Do()
	if err != nil {
		return translate(err)
	}
	return nil
}

// translate maps well-known Identity Toolkit error codes onto package errors
// while keeping the provider message as detail.
func translate(err error) error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return err
	}
	code := gerr.Message
	switch {
	case strings.HasPrefix(code, "EMAIL_NOT_FOUND"), strings.HasPrefix(code, "INVALID_PASSWORD"),
		strings.HasPrefix(code, "INVALID_LOGIN_CREDENTIALS"), strings.HasPrefix(code, "USER_DISABLED"):
		return fmt.Errorf("%w: %s", ErrInvalidCredentials, code)
	case strings.HasPrefix(code, "EMAIL_EXISTS"):
		return fmt.Errorf("%w: %s", ErrEmailExists, code)
	case strings.HasPrefix(code, "WEAK_PASSWORD"):
		return fmt.Errorf("%w: %s", ErrWeakPassword, code)
	case strings.HasPrefix(code, "INVALID_CODE"), strings.HasPrefix(code, "CODE_EXPIRED"):
		return fmt.Errorf("%w: %s", ErrInvalidCode, code)
	case strings.HasPrefix(code, "INVALID_SESSION_INFO"), strings.HasPrefix(code, "SESSION_EXPIRED"):
		return fmt.Errorf("%w: %s", ErrUnknownChallenge, code)
	}
	return fmt.Errorf("identity toolkit: %s", code)
}
