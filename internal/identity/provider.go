package identity

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Provider is the identity backend the session manager talks to.
type Provider interface {
	Authenticate(ctx context.Context, email, password string) (VerifiedIdentity, error)
	Register(ctx context.Context, email, password string) (VerifiedIdentity, error)
	SendVerificationEmail(ctx context.Context, id VerifiedIdentity) error
	CreateVerifier(owner, anchorID, recaptchaToken string) (VerifierHandle, error)
	ReleaseVerifier(v VerifierHandle)
	SendOTP(ctx context.Context, phone string, v VerifierHandle) (ChallengeHandle, error)
	ConfirmOTP(ctx context.Context, h ChallengeHandle, code string) (VerifiedIdentity, error)
	Delete(ctx context.Context, id VerifiedIdentity) error
}

// verifierRegistry tracks which verifier currently owns each client's anchor.
// A new verifier on the same owner and anchor replaces the previous one.
type verifierRegistry struct {
	mu      sync.Mutex
	anchors map[string]string
}

func newVerifierRegistry() *verifierRegistry {
	return &verifierRegistry{anchors: make(map[string]string)}
}

func anchorKey(owner, anchorID string) string {
	return owner + "/" + anchorID
}

func (r *verifierRegistry) create(owner, anchorID, recaptchaToken string) VerifierHandle {
	v := VerifierHandle{
		ID:             uuid.NewString(),
		Owner:          owner,
		AnchorID:       anchorID,
		Mode:           VerifierModeInvisible,
		RecaptchaToken: recaptchaToken,
	}
	r.mu.Lock()
	r.anchors[anchorKey(owner, anchorID)] = v.ID
	r.mu.Unlock()
	return v
}

func (r *verifierRegistry) release(v VerifierHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := anchorKey(v.Owner, v.AnchorID)
	if r.anchors[key] == v.ID {
		delete(r.anchors, key)
	}
}

func (r *verifierRegistry) owns(v VerifierHandle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return v.ID != "" && r.anchors[anchorKey(v.Owner, v.AnchorID)] == v.ID
}
