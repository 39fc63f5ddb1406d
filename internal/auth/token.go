package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ClientTokens issues and verifies the signed token that identifies a client
// across requests. The token carries the client id as its subject.
type ClientTokens struct {
	secret []byte
	now    func() time.Time
}

// NewClientTokens signs with secret. An empty secret gets a random one, which
// means tokens do not survive a restart.
func NewClientTokens(secret string) (*ClientTokens, error) {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generate client token secret: %w", err)
		}
	}
	return &ClientTokens{secret: key, now: time.Now}, nil
}

// Issue returns a fresh client id and its token.
func (t *ClientTokens) Issue() (string, string, error) {
	clientID := uuid.NewString()
	claims := jwt.RegisteredClaims{
		Subject:  clientID,
		ID:       uuid.NewString(),
		IssuedAt: jwt.NewNumericDate(t.now()),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", "", err
	}
	return clientID, signed, nil
}

// Parse verifies token and returns the client id it names.
func (t *ClientTokens) Parse(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", errors.New("client token has no subject")
	}
	return claims.Subject, nil
}
