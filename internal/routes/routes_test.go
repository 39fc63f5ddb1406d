package routes

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/storefront/internal/config"
	"github.com/congo-pay/storefront/internal/logging"
	"github.com/congo-pay/storefront/internal/middleware"
)

type client struct {
	t     *testing.T
	app   *fiber.App
	token string
}

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()
	app := fiber.New()
	cfg := config.Config{
		AppEnv:          "test",
		ProfileBackend:  config.BackendMemory,
		IdentityBackend: config.BackendMemory,
		AdminInviteCode: "invite",
		LoginRateLimit:  100,
	}
	_, err := Setup(app, Deps{Cfg: cfg, Logger: logging.Discard()})
	require.NoError(t, err)
	return app
}

func (c *client) do(method, path, body string) (int, map[string]any) {
	c.t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if c.token != "" {
		req.Header.Set(middleware.ClientTokenHeader, c.token)
	}
	resp, err := c.app.Test(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()

	if issued := resp.Header.Get(middleware.ClientTokenHeader); issued != "" {
		c.token = issued
	}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	out := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			out["raw"] = string(raw)
		}
	}
	return resp.StatusCode, out
}

func TestSignupLoginLogoutFlow(t *testing.T) {
	app := newTestApp(t)
	c := &client{t: t, app: app}

	status, _ := c.do(fiber.MethodGet, "/api/v1/ping", "")
	require.Equal(t, fiber.StatusOK, status)
	require.NotEmpty(t, c.token, "client token should be issued on first contact")

	status, body := c.do(fiber.MethodPost, "/api/v1/auth/signup", `{"name":"Ada","email":"ada@b.com","password":"secret1"}`)
	require.Equal(t, fiber.StatusCreated, status)
	assert.Equal(t, "/login", body["next"])

	status, _ = c.do(fiber.MethodGet, "/api/v1/auth/session", "")
	assert.Equal(t, fiber.StatusUnauthorized, status, "signup must not sign in")

	status, body = c.do(fiber.MethodPost, "/api/v1/auth/login", `{"email":"ada@b.com","password":"secret1"}`)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "/user-dashboard", body["destination"])

	status, body = c.do(fiber.MethodGet, "/api/v1/auth/session", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.NotEmpty(t, body["uid"])

	status, _ = c.do(fiber.MethodGet, "/api/v1/admin/users", "")
	assert.Equal(t, fiber.StatusForbidden, status)

	status, body = c.do(fiber.MethodPost, "/api/v1/auth/logout", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "/login", body["next"])

	status, _ = c.do(fiber.MethodGet, "/api/v1/auth/session", "")
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, _ = c.do(fiber.MethodPost, "/api/v1/auth/logout", "")
	assert.Equal(t, fiber.StatusOK, status, "logout is idempotent")
}

func TestLoginErrorMapping(t *testing.T) {
	app := newTestApp(t)
	c := &client{t: t, app: app}

	status, body := c.do(fiber.MethodPost, "/api/v1/auth/login", `{"email":"not-an-email","password":"secret1"}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Contains(t, body["raw"], "Please enter a valid email address")

	status, body = c.do(fiber.MethodPost, "/api/v1/auth/login", `{"email":"a@b.com","password":"123"}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Contains(t, body["raw"], "Password must be at least 6 characters long")

	status, body = c.do(fiber.MethodPost, "/api/v1/auth/login", `{"email":"nobody@b.com","password":"secret1"}`)
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Contains(t, body["raw"], "Login Failed: ")

	status, _ = c.do(fiber.MethodPost, "/api/v1/auth/phone/confirm", `{"challenge_id":"x","code":"123456"}`)
	assert.Equal(t, fiber.StatusConflict, status)
}

func TestSignupErrorMapping(t *testing.T) {
	app := newTestApp(t)
	c := &client{t: t, app: app}

	status, body := c.do(fiber.MethodPost, "/api/v1/auth/signup", `{"name":"","email":"a@b.com","password":"secret1"}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Contains(t, body["raw"], "All fields are required")

	status, _ = c.do(fiber.MethodPost, "/api/v1/auth/signup", `{"name":"Eve","email":"e@b.com","password":"secret1","role":"admin"}`)
	assert.Equal(t, fiber.StatusForbidden, status)

	status, body = c.do(fiber.MethodPost, "/api/v1/auth/signup", `{"name":"Ada","email":"ada@b.com","password":"secret1"}`)
	require.Equal(t, fiber.StatusCreated, status)
	status, body = c.do(fiber.MethodPost, "/api/v1/auth/signup", `{"name":"Ada","email":"ada@b.com","password":"secret1"}`)
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Contains(t, body["raw"], "Signup failed. Please try again.")
}

func TestAdminListsUsers(t *testing.T) {
	app := newTestApp(t)
	c := &client{t: t, app: app}

	status, _ := c.do(fiber.MethodPost, "/api/v1/auth/signup", `{"name":"Root","email":"root@b.com","password":"secret1","role":"admin","invite_code":"invite"}`)
	require.Equal(t, fiber.StatusCreated, status)
	status, _ = c.do(fiber.MethodPost, "/api/v1/auth/signup", `{"name":"Ada","email":"ada@b.com","password":"secret1"}`)
	require.Equal(t, fiber.StatusCreated, status)

	status, body := c.do(fiber.MethodPost, "/api/v1/auth/login", `{"email":"root@b.com","password":"secret1"}`)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "/admin-dashboard", body["destination"])

	status, body = c.do(fiber.MethodGet, "/api/v1/admin/users", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 2, body["count"])
}

func TestHealthz(t *testing.T) {
	app := newTestApp(t)
	c := &client{t: t, app: app}

	status, body := c.do(fiber.MethodGet, "/healthz", "")
	assert.Equal(t, fiber.StatusOK, status)
	backends, ok := body["backends"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, config.BackendMemory, backends["profiles"])
}

func TestSetupRequiresRedisOutsideDev(t *testing.T) {
	cfg := config.Config{AppEnv: "production", ProfileBackend: config.BackendMemory, IdentityBackend: config.BackendMemory}
	_, err := Setup(fiber.New(), Deps{Cfg: cfg, Logger: logging.Discard()})
	assert.Error(t, err)
}
