package identity

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/congo-pay/storefront/internal/notification"
)

const (
	minPasswordLength = 6
	otpDigits         = 6
)

type account struct {
	UID      string
	Email    string
	Phone    string
	PassHash []byte
}

type pendingOTP struct {
	Phone      string
	Code       string
	VerifierID string
}

// MemoryProvider is an in-process identity backend for development and tests.
// Passwords are bcrypt hashed; OTPs and verification mails go out through the
// configured notifier.
type MemoryProvider struct {
	mu        sync.Mutex
	byEmail   map[string]account
	byPhone   map[string]string
	pending   map[string]pendingOTP
	verifiers *verifierRegistry
	notifier  notification.Notifier
}

// NewMemoryProvider builds an empty in-memory identity backend.
func NewMemoryProvider(notifier notification.Notifier) *MemoryProvider {
	return &MemoryProvider{
		byEmail:   make(map[string]account),
		byPhone:   make(map[string]string),
		pending:   make(map[string]pendingOTP),
		verifiers: newVerifierRegistry(),
		notifier:  notifier,
	}
}

// Register creates a password account.
func (p *MemoryProvider) Register(_ context.Context, email, password string) (VerifiedIdentity, error) {
	if len(password) < minPasswordLength {
		return VerifiedIdentity{}, ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return VerifiedIdentity{}, err
	}

	key := normalizeEmail(email)
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.byEmail[key]; exists {
		return VerifiedIdentity{}, ErrEmailExists
	}
	acct := account{UID: uuid.NewString(), Email: email, PassHash: hash}
	p.byEmail[key] = acct
	return VerifiedIdentity{UID: acct.UID, Email: acct.Email, IDToken: uuid.NewString()}, nil
}

// Authenticate verifies an email/password pair.
func (p *MemoryProvider) Authenticate(_ context.Context, email, password string) (VerifiedIdentity, error) {
	p.mu.Lock()
	acct, ok := p.byEmail[normalizeEmail(email)]
	p.mu.Unlock()
	if !ok {
		return VerifiedIdentity{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(acct.PassHash, []byte(password)); err != nil {
		return VerifiedIdentity{}, ErrInvalidCredentials
	}
	return VerifiedIdentity{UID: acct.UID, Email: acct.Email, Phone: acct.Phone, IDToken: uuid.NewString()}, nil
}

// SendVerificationEmail delivers a verification notice to the account email.
func (p *MemoryProvider) SendVerificationEmail(ctx context.Context, id VerifiedIdentity) error {
	if p.notifier == nil {
		return nil
	}
	return p.notifier.Send(ctx, notification.Message{
		Kind:        notification.KindEmailVerification,
		Destination: id.Email,
		Body:        "verify:" + id.UID,
	})
}

// CreateVerifier binds a fresh verifier to the owner's anchor.
func (p *MemoryProvider) CreateVerifier(owner, anchorID, recaptchaToken string) (VerifierHandle, error) {
	return p.verifiers.create(owner, anchorID, recaptchaToken), nil
}

// ReleaseVerifier unbinds v and drops any OTP it issued.
func (p *MemoryProvider) ReleaseVerifier(v VerifierHandle) {
	p.verifiers.release(v)
	p.mu.Lock()
	defer p.mu.Unlock()
	for session, otp := range p.pending {
		if otp.VerifierID == v.ID {
			delete(p.pending, session)
		}
	}
}

// SendOTP generates a code for phone and hands it to the notifier.
func (p *MemoryProvider) SendOTP(ctx context.Context, phone string, v VerifierHandle) (ChallengeHandle, error) {
	if phone == "" {
		return ChallengeHandle{}, ErrMissingPhone
	}
	if !p.verifiers.owns(v) {
		return ChallengeHandle{}, ErrVerifierReleased
	}

	code, err := randomCode(otpDigits)
	if err != nil {
		return ChallengeHandle{}, fmt.Errorf("generate otp: %w", err)
	}
	if p.notifier != nil {
		if err := p.notifier.Send(ctx, notification.Message{Kind: notification.KindOTP, Destination: phone, Body: code}); err != nil {
			return ChallengeHandle{}, fmt.Errorf("deliver otp: %w", err)
		}
	}

	handle := ChallengeHandle{SessionInfo: uuid.NewString(), Phone: phone, VerifierID: v.ID}
	p.mu.Lock()
	p.pending[handle.SessionInfo] = pendingOTP{Phone: phone, Code: code, VerifierID: v.ID}
	p.mu.Unlock()
	return handle, nil
}

// ConfirmOTP checks code against the pending challenge. A phone without an
// account gets one, matching how hosted phone sign-in behaves.
func (p *MemoryProvider) ConfirmOTP(_ context.Context, h ChallengeHandle, code string) (VerifiedIdentity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	otp, ok := p.pending[h.SessionInfo]
	if !ok {
		return VerifiedIdentity{}, ErrUnknownChallenge
	}
	if otp.Code != strings.TrimSpace(code) {
		return VerifiedIdentity{}, ErrInvalidCode
	}
	delete(p.pending, h.SessionInfo)

	uid, ok := p.byPhone[otp.Phone]
	if !ok {
		uid = uuid.NewString()
		p.byPhone[otp.Phone] = uid
	}
	return VerifiedIdentity{UID: uid, Phone: otp.Phone, IDToken: uuid.NewString()}, nil
}

// Delete removes the account behind id.
func (p *MemoryProvider) Delete(_ context.Context, id VerifiedIdentity) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for key, acct := range p.byEmail {
		if acct.UID == id.UID {
			delete(p.byEmail, key)
		}
	}
	for phone, uid := range p.byPhone {
		if uid == id.UID {
			delete(p.byPhone, phone)
		}
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func randomCode(digits int) (string, error) {
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(digits)), nil)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", digits, n), nil
}
