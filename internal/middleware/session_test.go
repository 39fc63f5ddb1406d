package middleware

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/storefront/internal/auth"
	"github.com/congo-pay/storefront/internal/identity"
	"github.com/congo-pay/storefront/internal/logging"
	"github.com/congo-pay/storefront/internal/profile"
	"github.com/congo-pay/storefront/internal/session"
)

func TestClientSessionIssuesAndAcceptsTokens(t *testing.T) {
	tokens, err := auth.NewClientTokens("secret")
	if err != nil {
		t.Fatalf("tokens: %v", err)
	}
	app := fiber.New()
	app.Use(ClientSession(tokens, logging.Discard()))
	app.Get("/whoami", func(c *fiber.Ctx) error {
		return c.SendString(auth.ClientID(c))
	})

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/whoami", nil))
	if err != nil {
		t.Fatalf("first request: %v", err)
	}
	token := resp.Header.Get(ClientTokenHeader)
	if token == "" {
		t.Fatalf("expected a client token to be issued")
	}
	first, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	req := httptest.NewRequest(fiber.MethodGet, "/whoami", nil)
	req.Header.Set(ClientTokenHeader, token)
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("second request: %v", err)
	}
	second, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if string(first) == "" || string(first) != string(second) {
		t.Fatalf("expected stable client id, got %q then %q", first, second)
	}
	if resp.Header.Get(ClientTokenHeader) != "" {
		t.Fatalf("expected no new token when one was presented")
	}

	req = httptest.NewRequest(fiber.MethodGet, "/whoami", nil)
	req.Header.Set(ClientTokenHeader, "garbage")
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("bad token request: %v", err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("expected %d got %d", fiber.StatusUnauthorized, resp.StatusCode)
	}
}

func TestRequireAreaFollowsRoleRouting(t *testing.T) {
	ctx := context.Background()
	provider := identity.NewMemoryProvider(nil)
	profiles := profile.NewMemoryStore()
	svc := auth.NewService(provider, profiles, session.NewPersistence(session.NewMemoryStore()), auth.Options{})

	signIn := func(clientID, email, role string) {
		id, err := provider.Register(ctx, email, "secret1")
		if err != nil {
			t.Fatalf("register: %v", err)
		}
		if _, err := profiles.Insert(ctx, profile.Profile{UID: id.UID, Email: email, Role: role}); err != nil {
			t.Fatalf("insert: %v", err)
		}
		if _, err := svc.Manager(clientID).Login(ctx, auth.LoginInput{Email: email, Password: "secret1"}); err != nil {
			t.Fatalf("login: %v", err)
		}
	}
	signIn("user-client", "u@b.com", profile.RoleUser)
	signIn("admin-client", "a@b.com", profile.RoleAdmin)

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		if id := c.Get("X-Test-Client"); id != "" {
			c.Locals(auth.ClientIDLocal, id)
		}
		return c.Next()
	})
	app.Get("/admin", RequireSession(svc), RequireArea(auth.AdminAreaPath), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	cases := map[string]int{
		"":             fiber.StatusUnauthorized,
		"anonymous":    fiber.StatusUnauthorized,
		"user-client":  fiber.StatusForbidden,
		"admin-client": fiber.StatusOK,
	}
	for client, want := range cases {
		req := httptest.NewRequest(fiber.MethodGet, "/admin", nil)
		if client != "" {
			req.Header.Set("X-Test-Client", client)
		}
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("%s: %v", client, err)
		}
		if resp.StatusCode != want {
			t.Fatalf("%q: expected %d got %d", client, want, resp.StatusCode)
		}
	}
}

func TestLoginRateLimitPerEmail(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cache.Close()

	app := fiber.New()
	app.Post("/login", LoginRateLimit(cache, 2), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	send := func(body string) int {
		req := httptest.NewRequest(fiber.MethodPost, "/login", strings.NewReader(body))
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("request: %v", err)
		}
		return resp.StatusCode
	}

	for i := 0; i < 2; i++ {
		if got := send(`{"email":"a@b.com"}`); got != fiber.StatusOK {
			t.Fatalf("attempt %d: expected 200 got %d", i, got)
		}
	}
	if got := send(`{"email":"A@b.com "}`); got != fiber.StatusTooManyRequests {
		t.Fatalf("expected limit to apply case-insensitively, got %d", got)
	}
	if got := send(`{"email":"other@b.com"}`); got != fiber.StatusOK {
		t.Fatalf("expected other email to pass, got %d", got)
	}
	if got := send(`{"country_code":"+1","phone":"555"}`); got != fiber.StatusOK {
		t.Fatalf("expected phone attempt to pass, got %d", got)
	}
}

func TestLoginRateLimitWithoutRedis(t *testing.T) {
	app := fiber.New()
	app.Post("/login", LoginRateLimit(nil, 1), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest(fiber.MethodPost, "/login", nil))
		if err != nil {
			t.Fatalf("request: %v", err)
		}
		if resp.StatusCode != fiber.StatusOK {
			t.Fatalf("expected pass-through without redis, got %d", resp.StatusCode)
		}
	}
}
