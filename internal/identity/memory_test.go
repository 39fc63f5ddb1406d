package identity

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/api/googleapi"

	"github.com/congo-pay/storefront/internal/notification"
)

func TestRegisterAndAuthenticate(t *testing.T) {
	rec := notification.NewRecorder()
	p := NewMemoryProvider(rec)
	ctx := context.Background()

	id, err := p.Register(ctx, "a@b.com", "secret1")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if id.UID == "" {
		t.Fatalf("expected uid")
	}

	authed, err := p.Authenticate(ctx, "A@B.com", "secret1")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if authed.UID != id.UID {
		t.Fatalf("expected uid %s, got %s", id.UID, authed.UID)
	}

	if _, err := p.Authenticate(ctx, "a@b.com", "wrong-pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if _, err := p.Register(ctx, "a@b.com", "secret1"); !errors.Is(err, ErrEmailExists) {
		t.Fatalf("expected duplicate email error, got %v", err)
	}
}

func TestRegisterRejectsWeakPassword(t *testing.T) {
	p := NewMemoryProvider(nil)
	if _, err := p.Register(context.Background(), "a@b.com", "123"); !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("expected weak password, got %v", err)
	}
}

func TestSendVerificationEmail(t *testing.T) {
	rec := notification.NewRecorder()
	p := NewMemoryProvider(rec)
	ctx := context.Background()

	id, err := p.Register(ctx, "a@b.com", "secret1")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := p.SendVerificationEmail(ctx, id); err != nil {
		t.Fatalf("send verification: %v", err)
	}
	if _, ok := rec.Last(notification.KindEmailVerification, "a@b.com"); !ok {
		t.Fatalf("expected verification mail to be recorded")
	}
}

func TestOTPRoundTrip(t *testing.T) {
	rec := notification.NewRecorder()
	p := NewMemoryProvider(rec)
	ctx := context.Background()

	v, _ := p.CreateVerifier("client-1", "recaptcha-container", "")
	h, err := p.SendOTP(ctx, "+15551234567", v)
	if err != nil {
		t.Fatalf("send otp: %v", err)
	}
	msg, ok := rec.Last(notification.KindOTP, "+15551234567")
	if !ok || len(msg.Body) != otpDigits {
		t.Fatalf("expected a %d digit code, got %q", otpDigits, msg.Body)
	}

	if _, err := p.ConfirmOTP(ctx, h, "not-it"); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected invalid code, got %v", err)
	}

	first, err := p.ConfirmOTP(ctx, h, msg.Body)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if first.Phone != "+15551234567" {
		t.Fatalf("unexpected phone %s", first.Phone)
	}
	if _, err := p.ConfirmOTP(ctx, h, msg.Body); !errors.Is(err, ErrUnknownChallenge) {
		t.Fatalf("expected consumed challenge, got %v", err)
	}

	v2, _ := p.CreateVerifier("client-1", "recaptcha-container", "")
	h2, err := p.SendOTP(ctx, "+15551234567", v2)
	if err != nil {
		t.Fatalf("second send: %v", err)
	}
	msg2, _ := rec.Last(notification.KindOTP, "+15551234567")
	second, err := p.ConfirmOTP(ctx, h2, msg2.Body)
	if err != nil {
		t.Fatalf("second confirm: %v", err)
	}
	if second.UID != first.UID {
		t.Fatalf("expected stable uid for phone, got %s and %s", first.UID, second.UID)
	}
}

func TestVerifierSupersededOnSameAnchor(t *testing.T) {
	p := NewMemoryProvider(notification.NewRecorder())
	ctx := context.Background()

	old, _ := p.CreateVerifier("client-1", "anchor", "")
	newer, _ := p.CreateVerifier("client-1", "anchor", "")
	other, _ := p.CreateVerifier("client-2", "anchor", "")

	if _, err := p.SendOTP(ctx, "+1555", old); !errors.Is(err, ErrVerifierReleased) {
		t.Fatalf("expected superseded verifier to be rejected, got %v", err)
	}
	if _, err := p.SendOTP(ctx, "+1555", newer); err != nil {
		t.Fatalf("newest verifier should send: %v", err)
	}
	if _, err := p.SendOTP(ctx, "+1666", other); err != nil {
		t.Fatalf("another client's verifier should be unaffected: %v", err)
	}
}

func TestReleaseVerifierDropsPendingCodes(t *testing.T) {
	rec := notification.NewRecorder()
	p := NewMemoryProvider(rec)
	ctx := context.Background()

	v, _ := p.CreateVerifier("client-1", "anchor", "")
	h, err := p.SendOTP(ctx, "+1555", v)
	if err != nil {
		t.Fatalf("send otp: %v", err)
	}
	msg, _ := rec.Last(notification.KindOTP, "+1555")
	p.ReleaseVerifier(v)

	if _, err := p.ConfirmOTP(ctx, h, msg.Body); !errors.Is(err, ErrUnknownChallenge) {
		t.Fatalf("expected released challenge to be gone, got %v", err)
	}
}

func TestSendOTPDeliveryFailure(t *testing.T) {
	rec := notification.NewRecorder()
	rec.FailWith(errors.New("sms gateway down"))
	p := NewMemoryProvider(rec)

	v, _ := p.CreateVerifier("client-1", "anchor", "")
	if _, err := p.SendOTP(context.Background(), "+1555", v); err == nil {
		t.Fatalf("expected delivery error")
	}
}

func TestTranslateToolkitErrors(t *testing.T) {
	cases := []struct {
		message string
		want    error
	}{
		{"INVALID_PASSWORD", ErrInvalidCredentials},
		{"EMAIL_NOT_FOUND", ErrInvalidCredentials},
		{"EMAIL_EXISTS", ErrEmailExists},
		{"WEAK_PASSWORD : Password should be at least 6 characters", ErrWeakPassword},
		{"INVALID_CODE", ErrInvalidCode},
		{"SESSION_EXPIRED", ErrUnknownChallenge},
	}
	for _, tc := range cases {
		err := translate(&googleapi.Error{Code: 400, Message: tc.message})
		if !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.message, tc.want, err)
		}
	}

	plain := errors.New("dial tcp: timeout")
	if got := translate(plain); got != plain {
		t.Fatalf("expected non-api errors to pass through, got %v", got)
	}
}
