package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/storefront/internal/identity"
	"github.com/congo-pay/storefront/internal/profile"
	"github.com/congo-pay/storefront/internal/session"
)

// SignupInput is the signup form.
type SignupInput struct {
	Name           string `json:"name" validate:"required"`
	Email          string `json:"email" validate:"required"`
	Password       string `json:"password" validate:"required"`
	Role           string `json:"role"`
	InviteCode     string `json:"invite_code"`
	CountryCode    string `json:"country_code"`
	Phone          string `json:"phone"`
	RecaptchaToken string `json:"recaptcha_token"`
}

// LoginInput is the email/password login form.
type LoginInput struct {
	Email    string `json:"email" validate:"loginemail"`
	Password string `json:"password" validate:"min=6"`
}

// SignupResult reports a finished signup, or the phone challenge that must be
// confirmed before signup can finish.
type SignupResult struct {
	Profile   profile.Profile `json:"profile"`
	Challenge *Challenge      `json:"challenge,omitempty"`
	Next      string          `json:"next,omitempty"`
}

// LoginResult is an established session and where to send the user.
type LoginResult struct {
	Session     session.Record `json:"session"`
	Destination string         `json:"destination"`
}

// ConfirmResult is the outcome of confirming a phone challenge.
type ConfirmResult struct {
	Challenge Challenge     `json:"challenge"`
	Login     *LoginResult  `json:"login,omitempty"`
	Signup    *SignupResult `json:"signup,omitempty"`
}

// LogoutResult tells the caller where to go after logout.
type LogoutResult struct {
	Next string `json:"next"`
}

// Manager runs the authentication flow for one client. Operations on a
// Manager are serialized, so at most one challenge transition happens at a time.
type Manager struct {
	clientID string
	svc      *Service
	logger   *slog.Logger

	mu        sync.Mutex
	method    Method
	challenge *Challenge
	watches   map[string]context.CancelFunc

	// lastSeen is unix nanoseconds; the registry refreshes it without m.mu.
	lastSeen atomic.Int64
}

func newManager(clientID string, svc *Service) *Manager {
	m := &Manager{
		clientID: clientID,
		svc:      svc,
		logger:   svc.logger.With(slog.String("client_id", clientID)),
		watches:  make(map[string]context.CancelFunc),
	}
	m.touch()
	return m
}

// ClientID returns the client this manager serves.
func (m *Manager) ClientID() string {
	return m.clientID
}

// Method returns the credential method of the latest attempt.
func (m *Manager) Method() Method {
	m = m.svc.attach(m)
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.method
}

// ChallengeStatus returns the state of the current phone challenge, idle if none.
func (m *Manager) ChallengeStatus() ChallengeStatus {
	m = m.svc.attach(m)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.challenge == nil {
		return ChallengeIdle
	}
	return m.challenge.Status
}

// Signup registers a new account and writes its profile. With a phone number
// the account is not created yet; a signup challenge is started instead and
// ConfirmPhone finishes the job. Signup never establishes a session.
func (m *Manager) Signup(ctx context.Context, in SignupInput) (SignupResult, error) {
	m = m.svc.attach(m)
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := check(in); err != nil {
		return SignupResult{}, err
	}
	role, err := m.svc.resolveRole(in.Role, in.InviteCode)
	if err != nil {
		return SignupResult{}, err
	}
	in.Role = role

	if in.Phone != "" {
		phone := PhoneInput{CountryCode: in.CountryCode, Number: in.Phone, RecaptchaToken: in.RecaptchaToken}
		ch, err := m.startChallengeLocked(ctx, phone, PurposeSignup, &in)
		if err != nil {
			return SignupResult{}, err
		}
		return SignupResult{Challenge: &ch}, nil
	}

	prof, err := m.completeSignupLocked(ctx, in, "")
	if err != nil {
		return SignupResult{}, err
	}
	return SignupResult{Profile: prof, Next: LoginPath}, nil
}

func (m *Manager) completeSignupLocked(ctx context.Context, in SignupInput, phone string) (profile.Profile, error) {
	id, err := m.svc.provider.Register(ctx, in.Email, in.Password)
	if err != nil {
		m.logger.Warn("signup rejected", slog.Any("error", err))
		return profile.Profile{}, authError(err)
	}

	if err := m.svc.provider.SendVerificationEmail(ctx, id); err != nil {
		m.logger.Warn("verification email not sent", slog.String("uid", id.UID), slog.Any("error", err))
	}

	now := m.svc.now()
	email := id.Email
	if email == "" {
		email = in.Email
	}
	prof := profile.Profile{
		UID:   id.UID,
		Name:  in.Name,
		Email: email,
		Phone: phone,
		Role:  in.Role,
		Time:  now,
		Date:  profile.FormatJoinDate(now),
	}

	docID, err := m.svc.profiles.Insert(ctx, prof)
	if err != nil {
		return profile.Profile{}, m.rollbackSignup(ctx, id, err)
	}
	prof.DocID = docID

	m.clearChallengeLocked()
	m.logger.Info("signup completed", slog.String("uid", prof.UID), slog.String("role", prof.Role))
	return prof, nil
}

// rollbackSignup deletes the identity whose profile could not be written so
// no account is left without a profile.
func (m *Manager) rollbackSignup(ctx context.Context, id identity.VerifiedIdentity, writeErr error) error {
	rbErr := m.svc.provider.Delete(ctx, id)
	if rbErr != nil {
		m.logger.Error("profile write failed and identity rollback failed",
			slog.String("uid", id.UID), slog.Any("error", writeErr), slog.Any("rollback_error", rbErr))
		return &StoreWriteError{Err: errors.Join(writeErr, fmt.Errorf("rollback identity: %w", rbErr))}
	}
	m.logger.Error("profile write failed, identity rolled back", slog.String("uid", id.UID), slog.Any("error", writeErr))
	return &StoreWriteError{Err: writeErr, RolledBack: true}
}

// Login verifies an email/password pair and establishes a session from the
// matching profile. Malformed input is rejected without calling the provider.
func (m *Manager) Login(ctx context.Context, in LoginInput) (LoginResult, error) {
	m = m.svc.attach(m)
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := check(in); err != nil {
		return LoginResult{}, err
	}
	m.method = MethodPassword

	id, err := m.svc.provider.Authenticate(ctx, in.Email, in.Password)
	if err != nil {
		m.logger.Info("login rejected", slog.Any("error", err))
		m.dropSessionLocked(ctx)
		return LoginResult{}, authError(err)
	}
	return m.establishLocked(ctx, id)
}

// establishLocked reconciles a verified identity with its profile and
// persists the session. Any failure leaves the client without a session.
func (m *Manager) establishLocked(ctx context.Context, id identity.VerifiedIdentity) (LoginResult, error) {
	prof, err := m.svc.profiles.Lookup(ctx, id.UID)
	if errors.Is(err, profile.ErrNotFound) {
		m.logger.Warn("verified identity has no profile", slog.String("uid", id.UID))
		m.dropSessionLocked(ctx)
		return LoginResult{}, ErrProfileNotFound
	}
	if err != nil {
		m.dropSessionLocked(ctx)
		return LoginResult{}, fmt.Errorf("lookup profile: %w", err)
	}

	rec := session.Record{UID: id.UID, Profile: prof}
	if err := m.svc.sessions.Save(ctx, m.clientID, rec); err != nil {
		m.dropSessionLocked(ctx)
		return LoginResult{}, fmt.Errorf("save session: %w", err)
	}

	m.logger.Info("login succeeded", slog.String("uid", id.UID), slog.String("role", prof.Role), slog.String("method", m.method.String()))
	return LoginResult{Session: rec, Destination: Destination(prof.Role)}, nil
}

// StartPhoneLogin sends an OTP to the given phone for a login attempt.
func (m *Manager) StartPhoneLogin(ctx context.Context, in PhoneInput) (Challenge, error) {
	m = m.svc.attach(m)
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startChallengeLocked(ctx, in, PurposeLogin, nil)
}

func (m *Manager) startChallengeLocked(ctx context.Context, in PhoneInput, purpose Purpose, pending *SignupInput) (Challenge, error) {
	if err := check(in); err != nil {
		return Challenge{}, err
	}
	m.clearChallengeLocked()

	phone := in.FullNumber()
	verifier, err := m.svc.provider.CreateVerifier(m.clientID, m.svc.anchorID, in.RecaptchaToken)
	if err != nil {
		return Challenge{}, fmt.Errorf("create verifier: %w", err)
	}

	ch := &Challenge{
		ID:        uuid.NewString(),
		Phone:     phone,
		Purpose:   purpose,
		Status:    ChallengePending,
		CreatedAt: m.svc.now(),
		verifier:  verifier,
		signup:    pending,
	}
	m.method = MethodPhone

	handle, err := m.svc.provider.SendOTP(ctx, phone, verifier)
	if err != nil {
		m.svc.provider.ReleaseVerifier(verifier)
		ch.Status = ChallengeFailed
		m.logger.Warn("otp send failed", slog.String("challenge_id", ch.ID), slog.Any("error", err))
		return *ch, authError(err)
	}
	ch.handle = handle
	m.challenge = ch

	m.logger.Info("otp sent", slog.String("challenge_id", ch.ID), slog.String("purpose", string(purpose)))
	return *ch, nil
}

// ConfirmPhone checks code against the pending challenge. A login challenge
// then establishes a session; a signup challenge finishes the deferred signup.
// Whatever the outcome the challenge is resolved and the manager returns to idle.
func (m *Manager) ConfirmPhone(ctx context.Context, challengeID, code string) (ConfirmResult, error) {
	m = m.svc.attach(m)
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := m.challenge
	if ch == nil {
		return ConfirmResult{}, ErrNoChallenge
	}
	if ch.ID != challengeID {
		return ConfirmResult{}, ErrChallengeSuperseded
	}
	if strings.TrimSpace(code) == "" {
		return ConfirmResult{Challenge: *ch}, &ValidationError{Field: "code", Message: "Please enter the verification code"}
	}

	id, err := m.svc.provider.ConfirmOTP(ctx, ch.handle, code)
	m.clearChallengeLocked()
	if err != nil {
		ch.Status = ChallengeFailed
		m.logger.Info("otp rejected", slog.String("challenge_id", ch.ID), slog.Any("error", err))
		if ch.Purpose == PurposeLogin {
			m.dropSessionLocked(ctx)
		}
		return ConfirmResult{Challenge: *ch}, authError(err)
	}
	ch.Status = ChallengeVerified

	switch ch.Purpose {
	case PurposeSignup:
		prof, err := m.completeSignupLocked(ctx, *ch.signup, ch.Phone)
		if err != nil {
			return ConfirmResult{Challenge: *ch}, err
		}
		return ConfirmResult{Challenge: *ch, Signup: &SignupResult{Profile: prof, Next: LoginPath}}, nil
	default:
		res, err := m.establishLocked(ctx, id)
		if err != nil {
			return ConfirmResult{Challenge: *ch}, err
		}
		return ConfirmResult{Challenge: *ch, Login: &res}, nil
	}
}

// CancelPhone abandons the pending challenge, if any.
func (m *Manager) CancelPhone() {
	m = m.svc.attach(m)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearChallengeLocked()
}

func (m *Manager) clearChallengeLocked() {
	if m.challenge == nil {
		return
	}
	m.svc.provider.ReleaseVerifier(m.challenge.verifier)
	m.challenge = nil
}

// Logout clears the session record and ends any profile watches. It always
// succeeds; a session store failure is only logged.
func (m *Manager) Logout(ctx context.Context) LogoutResult {
	m = m.svc.attach(m)
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, cancel := range m.watches {
		cancel()
		delete(m.watches, id)
	}
	if err := m.svc.sessions.Clear(ctx, m.clientID); err != nil {
		m.logger.Error("clear session on logout", slog.Any("error", err))
	}
	m.method = MethodNone
	m.logger.Info("logout")
	return LogoutResult{Next: LoginPath}
}

// Current returns the persisted session, or session.ErrNotFound.
func (m *Manager) Current(ctx context.Context) (session.Record, error) {
	m = m.svc.attach(m)
	return m.svc.sessions.Load(ctx, m.clientID)
}

// ProfileWatch is a live view of the signed-in user's profile documents. It
// ends on Close, when its context ends, or at logout.
type ProfileWatch struct {
	sub     *profile.Subscription
	release func()
}

// Updates delivers profile snapshots until the watch ends.
func (w *ProfileWatch) Updates() <-chan []profile.Profile {
	return w.sub.Updates()
}

// Close ends the watch and releases the underlying subscription.
func (w *ProfileWatch) Close() {
	w.release()
	w.sub.Close()
}

// WatchProfile subscribes to the profile of the current session.
func (m *Manager) WatchProfile(ctx context.Context) (*ProfileWatch, error) {
	m = m.svc.attach(m)
	rec, err := m.Current(ctx)
	if err != nil {
		return nil, err
	}

	watchCtx, cancel := context.WithCancel(ctx)
	sub, err := m.svc.profiles.Watch(watchCtx, rec.UID)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("watch profile: %w", err)
	}

	id := uuid.NewString()
	m.mu.Lock()
	m.watches[id] = cancel
	m.mu.Unlock()

	release := func() {
		cancel()
		m.mu.Lock()
		delete(m.watches, id)
		m.mu.Unlock()
	}
	return &ProfileWatch{sub: sub, release: release}, nil
}

// dropSessionLocked enforces that a failed attempt leaves no session behind.
func (m *Manager) dropSessionLocked(ctx context.Context) {
	if err := m.svc.sessions.Clear(ctx, m.clientID); err != nil {
		m.logger.Error("clear session after failed attempt", slog.Any("error", err))
	}
}

func (m *Manager) touch() {
	m.lastSeen.Store(m.svc.now().UnixNano())
}

// idle reports whether the manager can be dropped from the registry. A
// manager busy with an operation is never idle.
func (m *Manager) idle(now time.Time, ttl time.Duration) bool {
	if !m.mu.TryLock() {
		return false
	}
	defer m.mu.Unlock()
	if m.challenge != nil && m.challenge.Status == ChallengePending {
		return false
	}
	if len(m.watches) > 0 {
		return false
	}
	return now.Sub(time.Unix(0, m.lastSeen.Load())) > ttl
}
