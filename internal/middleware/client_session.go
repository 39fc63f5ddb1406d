package middleware

import (
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/storefront/internal/auth"
)

// ClientTokenHeader carries the signed client token in both directions.
const ClientTokenHeader = "X-Client-Token"

// ClientSession identifies the calling client. A valid X-Client-Token names
// the client; a request without one is given a fresh client id and the new
// token is returned in the response header. A token that fails verification
// is rejected.
func ClientSession(tokens *auth.ClientTokens, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := c.Get(ClientTokenHeader)
		if token != "" {
			clientID, err := tokens.Parse(token)
			if err != nil {
				logger.Warn("client token rejected", slog.Any("error", err))
				return fiber.NewError(http.StatusUnauthorized, "invalid client token")
			}
			c.Locals(auth.ClientIDLocal, clientID)
			return c.Next()
		}

		clientID, token, err := tokens.Issue()
		if err != nil {
			logger.Error("issue client token", slog.Any("error", err))
			return fiber.NewError(http.StatusInternalServerError, "client token failure")
		}
		c.Set(ClientTokenHeader, token)
		c.Locals(auth.ClientIDLocal, clientID)
		return c.Next()
	}
}
