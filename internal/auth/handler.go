package auth

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"

	"github.com/congo-pay/storefront/internal/profile"
	"github.com/congo-pay/storefront/internal/session"
)

// ClientIDLocal is the fiber local holding the caller's client id.
const ClientIDLocal = "client_id"

const signupFailedNotice = "Signup failed. Please try again."

// DefaultHeartbeat is how often an idle profile stream is pinged, which is
// also how quickly a vanished client is noticed.
const DefaultHeartbeat = 15 * time.Second

// ClientID returns the client id placed on the request by the client session middleware.
func ClientID(c *fiber.Ctx) string {
	id, _ := c.Locals(ClientIDLocal).(string)
	return id
}

// Handler exposes the session flow over HTTP.
type Handler struct {
	svc       *Service
	logger    *slog.Logger
	heartbeat time.Duration
}

// NewHandler constructs an auth HTTP handler.
func NewHandler(svc *Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger, heartbeat: DefaultHeartbeat}
}

func (h *Handler) manager(c *fiber.Ctx) (*Manager, error) {
	id := ClientID(c)
	if id == "" {
		return nil, fiber.NewError(http.StatusUnauthorized, "missing client token")
	}
	return h.svc.Manager(id), nil
}

// Signup handles account creation.
func (h *Handler) Signup(c *fiber.Ctx) error {
	m, err := h.manager(c)
	if err != nil {
		return err
	}
	var req SignupInput
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	res, err := m.Signup(c.UserContext(), req)
	if err != nil {
		return signupError(err)
	}
	if res.Challenge != nil {
		return c.Status(http.StatusAccepted).JSON(res)
	}
	return c.Status(http.StatusCreated).JSON(res)
}

type loginResponse struct {
	UID         string          `json:"uid"`
	Profile     profile.Profile `json:"profile"`
	Destination string          `json:"destination"`
}

func newLoginResponse(res LoginResult) loginResponse {
	return loginResponse{UID: res.Session.UID, Profile: res.Session.Profile, Destination: res.Destination}
}

// Login handles email/password sign in.
func (h *Handler) Login(c *fiber.Ctx) error {
	m, err := h.manager(c)
	if err != nil {
		return err
	}
	var req LoginInput
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	res, err := m.Login(c.UserContext(), req)
	if err != nil {
		return loginError(err)
	}
	return c.Status(http.StatusOK).JSON(newLoginResponse(res))
}

// StartPhone sends a login OTP.
func (h *Handler) StartPhone(c *fiber.Ctx) error {
	m, err := h.manager(c)
	if err != nil {
		return err
	}
	var req PhoneInput
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	ch, err := m.StartPhoneLogin(c.UserContext(), req)
	if err != nil {
		return loginError(err)
	}
	return c.Status(http.StatusAccepted).JSON(ch)
}

type confirmRequest struct {
	ChallengeID string `json:"challenge_id"`
	Code        string `json:"code"`
}

type confirmResponse struct {
	Challenge Challenge      `json:"challenge"`
	Login     *loginResponse `json:"login,omitempty"`
	Signup    *SignupResult  `json:"signup,omitempty"`
}

// ConfirmPhone resolves a pending OTP challenge.
func (h *Handler) ConfirmPhone(c *fiber.Ctx) error {
	m, err := h.manager(c)
	if err != nil {
		return err
	}
	var req confirmRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	res, err := m.ConfirmPhone(c.UserContext(), req.ChallengeID, req.Code)
	if err != nil {
		if res.Challenge.Purpose == PurposeSignup {
			return signupError(err)
		}
		return loginError(err)
	}
	out := confirmResponse{Challenge: res.Challenge, Signup: res.Signup}
	if res.Login != nil {
		lr := newLoginResponse(*res.Login)
		out.Login = &lr
	}
	return c.Status(http.StatusOK).JSON(out)
}

// Logout clears the caller's session.
func (h *Handler) Logout(c *fiber.Ctx) error {
	m, err := h.manager(c)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(m.Logout(c.UserContext()))
}

// Session returns the caller's persisted session.
func (h *Handler) Session(c *fiber.Ctx) error {
	m, err := h.manager(c)
	if err != nil {
		return err
	}
	rec, err := m.Current(c.UserContext())
	if errors.Is(err, session.ErrNotFound) {
		return fiber.NewError(http.StatusUnauthorized, "not signed in")
	}
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"uid":         rec.UID,
		"profile":     rec.Profile,
		"destination": Destination(rec.Profile.Role),
	})
}

// WatchProfile streams profile snapshots as server-sent events until the
// client disconnects, logs out or the service closes. Idle streams carry a
// heartbeat comment so a dead peer surfaces as a write error.
func (h *Handler) WatchProfile(c *fiber.Ctx) error {
	m, err := h.manager(c)
	if err != nil {
		return err
	}
	w, err := m.WatchProfile(h.svc.base)
	if errors.Is(err, session.ErrNotFound) {
		return fiber.NewError(http.StatusUnauthorized, "not signed in")
	}
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")

	logger := h.logger
	heartbeat := h.heartbeat
	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(bw *bufio.Writer) {
		defer w.Close()
		ticker := time.NewTicker(heartbeat)
		defer ticker.Stop()
		for {
			select {
			case snapshot, ok := <-w.Updates():
				if !ok {
					return
				}
				payload, err := json.Marshal(profileEvent(snapshot))
				if err != nil {
					logger.Error("encode profile event", slog.Any("error", err))
					return
				}
				fmt.Fprintf(bw, "event: profile\ndata: %s\n\n", payload)
			case <-ticker.C:
				bw.WriteString(": ping\n\n")
			}
			if err := bw.Flush(); err != nil {
				logger.Debug("profile stream closed by client", slog.Any("error", err))
				return
			}
		}
	}))
	return nil
}

func profileEvent(snapshot []profile.Profile) fiber.Map {
	event := fiber.Map{"count": len(snapshot), "profile": nil}
	if n := len(snapshot); n > 0 {
		event["profile"] = snapshot[n-1]
	}
	return event
}

// ListUsers returns every profile. Mounted behind the admin role check.
func (h *Handler) ListUsers(c *fiber.Ctx) error {
	users, err := h.svc.ListUsers(c.UserContext())
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"users": users, "count": len(users)})
}

func loginError(err error) error {
	var (
		verr *ValidationError
		aerr *AuthenticationError
	)
	switch {
	case errors.As(err, &verr):
		return fiber.NewError(http.StatusBadRequest, verr.Message)
	case errors.As(err, &aerr):
		return fiber.NewError(http.StatusUnauthorized, "Login Failed: "+aerr.Detail)
	case errors.Is(err, ErrProfileNotFound):
		return fiber.NewError(http.StatusNotFound, "User data not found")
	case errors.Is(err, ErrNoChallenge), errors.Is(err, ErrChallengeSuperseded):
		return fiber.NewError(http.StatusConflict, err.Error())
	}
	return fiber.NewError(http.StatusInternalServerError, "Login Failed")
}

func signupError(err error) error {
	var (
		verr *ValidationError
		serr *StoreWriteError
		aerr *AuthenticationError
	)
	switch {
	case errors.As(err, &verr):
		return fiber.NewError(http.StatusBadRequest, verr.Message)
	case errors.Is(err, ErrRoleNotPermitted):
		return fiber.NewError(http.StatusForbidden, "Admin accounts require an invite code")
	case errors.Is(err, ErrNoChallenge), errors.Is(err, ErrChallengeSuperseded):
		return fiber.NewError(http.StatusConflict, err.Error())
	case errors.As(err, &serr):
		return fiber.NewError(http.StatusBadGateway, signupFailedNotice)
	case errors.As(err, &aerr):
		return fiber.NewError(http.StatusUnauthorized, signupFailedNotice)
	}
	return fiber.NewError(http.StatusInternalServerError, signupFailedNotice)
}
