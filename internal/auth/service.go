package auth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/congo-pay/storefront/internal/identity"
	"github.com/congo-pay/storefront/internal/logging"
	"github.com/congo-pay/storefront/internal/profile"
	"github.com/congo-pay/storefront/internal/session"
)

const defaultAnchorID = "recaptcha-container"

// Options tunes a Service. Zero values fall back to sensible defaults.
type Options struct {
	AnchorID        string
	AdminInviteCode string
	Logger          *slog.Logger
	Now             func() time.Time
}

// Service holds the collaborators shared by every client's Manager and the
// registry of live managers.
type Service struct {
	provider   identity.Provider
	profiles   profile.Store
	sessions   *session.Persistence
	logger     *slog.Logger
	anchorID   string
	inviteCode string
	now        func() time.Time

	// base scopes long-lived streams; Close cancels it.
	base   context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	managers map[string]*Manager
}

// NewService wires the session flow.
func NewService(provider identity.Provider, profiles profile.Store, sessions *session.Persistence, opts Options) *Service {
	s := &Service{
		provider:   provider,
		profiles:   profiles,
		sessions:   sessions,
		logger:     opts.Logger,
		anchorID:   opts.AnchorID,
		inviteCode: opts.AdminInviteCode,
		now:        opts.Now,
		managers:   make(map[string]*Manager),
	}
	s.base, s.cancel = context.WithCancel(context.Background())
	if s.logger == nil {
		s.logger = logging.Discard()
	}
	if s.anchorID == "" {
		s.anchorID = defaultAnchorID
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Manager returns the manager for clientID, creating it on first use.
func (s *Service) Manager(clientID string) *Manager {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.managers[clientID]
	if !ok {
		m = newManager(clientID, s)
		s.managers[clientID] = m
	}
	m.touch()
	return m
}

// attach returns the registered manager for m's client and refreshes it.
// A manager swept while a caller still held it is put back, unless a newer
// manager took its place, in which case the newer one is returned so a
// client never has two live managers.
func (s *Service) attach(m *Manager) *Manager {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.managers[m.clientID]
	if !ok {
		s.managers[m.clientID] = m
		cur = m
	}
	cur.touch()
	return cur
}

// Close ends every open profile watch. Used at shutdown so streaming
// responses finish.
func (s *Service) Close() {
	s.cancel()
}

// ListUsers returns every stored profile for the admin console.
func (s *Service) ListUsers(ctx context.Context) ([]profile.Profile, error) {
	users, err := s.profiles.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	return users, nil
}

// resolveRole decides the role a new account gets. Only "user" can be
// self-selected; "admin" needs the configured invite code.
func (s *Service) resolveRole(requested, inviteCode string) (string, error) {
	if requested == "" {
		requested = profile.RoleUser
	}
	if !profile.ValidRole(requested) {
		return "", &ValidationError{Field: "role", Message: "Unknown role " + requested}
	}
	if requested == profile.RoleAdmin {
		if s.inviteCode == "" || subtle.ConstantTimeCompare([]byte(inviteCode), []byte(s.inviteCode)) != 1 {
			return "", ErrRoleNotPermitted
		}
	}
	return requested, nil
}

// Sweep drops managers idle for longer than ttl and returns how many went.
// Managers with a pending challenge, an open watch or an operation in flight
// are kept.
func (s *Service) Sweep(ttl time.Duration) int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, m := range s.managers {
		if m.idle(now, ttl) {
			delete(s.managers, id)
			removed++
		}
	}
	return removed
}

// StartSweeper runs Sweep on a cron schedule. The returned func stops it and
// waits for a running sweep to finish.
func (s *Service) StartSweeper(every, ttl time.Duration) (func(), error) {
	c := cron.New()
	_, err := c.AddFunc("@every "+every.String(), func() {
		if n := s.Sweep(ttl); n > 0 {
			s.logger.Debug("idle managers swept", slog.Int("removed", n))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("schedule sweeper: %w", err)
	}
	c.Start()
	return func() { <-c.Stop().Done() }, nil
}
