package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/congo-pay/storefront/internal/profile"
)

const (
	// KeyUserUID holds the raw identity uid.
	KeyUserUID = "userUID"
	// KeyUsers holds the JSON encoded profile snapshot.
	KeyUsers = "users"
)

// ErrNotFound is returned when a client has no session record.
var ErrNotFound = errors.New("session not found")

// Store is the per-client key-value surface sessions are kept in. Entries
// have no expiry; they live until Delete.
type Store interface {
	SetMany(ctx context.Context, clientID string, values map[string]string) error
	Get(ctx context.Context, clientID, key string) (string, error)
	Delete(ctx context.Context, clientID string, keys ...string) error
}

// Record is the locally persisted outcome of a successful login.
type Record struct {
	UID     string          `json:"uid"`
	Profile profile.Profile `json:"profile"`
}

// Persistence reads and writes Records on top of a Store.
type Persistence struct {
	store Store
}

// NewPersistence wraps store.
func NewPersistence(store Store) *Persistence {
	return &Persistence{store: store}
}

// Save writes both session keys for clientID.
func (p *Persistence) Save(ctx context.Context, clientID string, rec Record) error {
	payload, err := json.Marshal(rec.Profile)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	return p.store.SetMany(ctx, clientID, map[string]string{
		KeyUserUID: rec.UID,
		KeyUsers:   string(payload),
	})
}

// Load reads the session for clientID. A record missing either key is
// treated as absent.
func (p *Persistence) Load(ctx context.Context, clientID string) (Record, error) {
	uid, err := p.store.Get(ctx, clientID, KeyUserUID)
	if err != nil {
		return Record{}, err
	}
	raw, err := p.store.Get(ctx, clientID, KeyUsers)
	if err != nil {
		return Record{}, err
	}
	var prof profile.Profile
	if err := json.Unmarshal([]byte(raw), &prof); err != nil {
		return Record{}, fmt.Errorf("decode profile: %w", err)
	}
	return Record{UID: uid, Profile: prof}, nil
}

// Clear removes both session keys. Clearing an absent session succeeds.
func (p *Persistence) Clear(ctx context.Context, clientID string) error {
	return p.store.Delete(ctx, clientID, KeyUserUID, KeyUsers)
}
