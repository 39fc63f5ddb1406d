package routes

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/congo-pay/storefront/internal/auth"
	"github.com/congo-pay/storefront/internal/config"
	"github.com/congo-pay/storefront/internal/identity"
	"github.com/congo-pay/storefront/internal/notification"
	"github.com/congo-pay/storefront/internal/profile"
	"github.com/congo-pay/storefront/internal/session"
)

func newProfileStore(ctx context.Context, d Deps) (profile.Store, error) {
	switch d.Cfg.ProfileBackend {
	case config.BackendPostgres:
		if d.DB == nil {
			return nil, fmt.Errorf("profile backend %q needs DATABASE_URL", d.Cfg.ProfileBackend)
		}
		store := profile.NewPostgresStore(d.DB)
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return store, nil
	case config.BackendFirestore:
		if d.Firebase == nil || d.Firebase.Firestore == nil {
			return nil, fmt.Errorf("profile backend %q needs a firestore client", d.Cfg.ProfileBackend)
		}
		return profile.NewFirestoreStore(d.Firebase.Firestore), nil
	default:
		return profile.NewMemoryStore(), nil
	}
}

func newIdentityProvider(ctx context.Context, d Deps) (identity.Provider, error) {
	if d.Cfg.IdentityBackend == config.BackendFirebase {
		if d.Firebase == nil {
			return nil, fmt.Errorf("identity backend %q needs a firebase app", d.Cfg.IdentityBackend)
		}
		return identity.NewToolkitProvider(ctx, d.Cfg.Firebase.WebAPIKey, d.Firebase.Auth)
	}
	return identity.NewMemoryProvider(notification.NewLoggerNotifier(d.Logger)), nil
}

func newSessionStore(d Deps) session.Store {
	if d.Cache != nil {
		return session.NewRedisStore(d.Cache)
	}
	return session.NewMemoryStore()
}

// NewAuthService builds the session flow on the backends selected by config.
func NewAuthService(ctx context.Context, d Deps) (*auth.Service, error) {
	profiles, err := newProfileStore(ctx, d)
	if err != nil {
		return nil, err
	}
	provider, err := newIdentityProvider(ctx, d)
	if err != nil {
		return nil, err
	}
	d.Logger.Info("auth backends ready",
		slog.String("profiles", d.Cfg.ProfileBackend),
		slog.String("identity", d.Cfg.IdentityBackend),
		slog.Bool("redis_sessions", d.Cache != nil),
	)
	return auth.NewService(provider, profiles, session.NewPersistence(newSessionStore(d)), auth.Options{
		AnchorID:        d.Cfg.RecaptchaAnchorID,
		AdminInviteCode: d.Cfg.AdminInviteCode,
		Logger:          d.Logger,
	}), nil
}
