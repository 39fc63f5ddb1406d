package session

import (
	"context"
	"errors"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/storefront/internal/profile"
)

func redisBacked(t *testing.T) (Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		cache.Close()
		mr.Close()
	})
	return NewRedisStore(cache), mr
}

func backends(t *testing.T) map[string]Store {
	rs, _ := redisBacked(t)
	return map[string]Store{
		"memory": NewMemoryStore(),
		"redis":  rs,
	}
}

func TestPersistenceSaveLoadClear(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			p := NewPersistence(store)
			ctx := context.Background()

			rec := Record{UID: "u1", Profile: profile.Profile{UID: "u1", Name: "Ada", Role: profile.RoleUser, Date: "Oct 07, 2026"}}
			if err := p.Save(ctx, "client-1", rec); err != nil {
				t.Fatalf("save: %v", err)
			}

			got, err := p.Load(ctx, "client-1")
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if got.UID != "u1" || got.Profile.Role != profile.RoleUser || got.Profile.Name != "Ada" {
				t.Fatalf("unexpected record %+v", got)
			}

			if _, err := p.Load(ctx, "client-2"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected other client to have no session, got %v", err)
			}

			if err := p.Clear(ctx, "client-1"); err != nil {
				t.Fatalf("clear: %v", err)
			}
			if err := p.Clear(ctx, "client-1"); err != nil {
				t.Fatalf("second clear: %v", err)
			}
			if _, err := p.Load(ctx, "client-1"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected cleared session, got %v", err)
			}
		})
	}
}

func TestRedisStoreKeysHaveNoTTL(t *testing.T) {
	store, mr := redisBacked(t)
	p := NewPersistence(store)

	if err := p.Save(context.Background(), "client-1", Record{UID: "u1"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	key := redisKey("client-1", KeyUserUID)
	if !mr.Exists(key) {
		t.Fatalf("expected %s to exist", key)
	}
	if ttl := mr.TTL(key); ttl != 0 {
		t.Fatalf("expected no ttl, got %s", ttl)
	}
	raw, err := mr.Get(key)
	if err != nil || raw != "u1" {
		t.Fatalf("expected raw uid, got %q (%v)", raw, err)
	}
}
