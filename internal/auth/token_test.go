package auth

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

func TestClientTokensRoundTrip(t *testing.T) {
	tokens, err := NewClientTokens("test-secret")
	if err != nil {
		t.Fatalf("new tokens: %v", err)
	}
	clientID, token, err := tokens.Issue()
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	got, err := tokens.Parse(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got != clientID {
		t.Fatalf("expected %s, got %s", clientID, got)
	}
}

func TestClientTokensRejectForeignSecret(t *testing.T) {
	a, _ := NewClientTokens("secret-a")
	b, _ := NewClientTokens("secret-b")
	_, token, err := a.Issue()
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := b.Parse(token); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}
	if _, err := a.Parse(token + "x"); err == nil {
		t.Fatalf("expected tampered token to be rejected")
	}
}

func TestClientTokensRejectOtherAlgorithms(t *testing.T) {
	tokens, _ := NewClientTokens("secret")
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "c"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	if _, err := tokens.Parse(unsigned); err == nil {
		t.Fatalf("expected alg none to be rejected")
	}

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.RegisteredClaims{Subject: "c"}).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign hs512: %v", err)
	}
	if _, err := tokens.Parse(hs512); err == nil {
		t.Fatalf("expected HS512 to be rejected")
	}
}

func TestClientTokensRequireSubject(t *testing.T) {
	tokens, _ := NewClientTokens("secret")
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{ID: "x"}).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := tokens.Parse(token); err == nil {
		t.Fatalf("expected missing subject to be rejected")
	}
}

func TestClientTokensGenerateSecretWhenEmpty(t *testing.T) {
	a, err := NewClientTokens("")
	if err != nil {
		t.Fatalf("new tokens: %v", err)
	}
	b, _ := NewClientTokens("")
	_, token, _ := a.Issue()
	if _, err := a.Parse(token); err != nil {
		t.Fatalf("expected own token to parse: %v", err)
	}
	if _, err := b.Parse(token); err == nil {
		t.Fatalf("expected independent random secrets")
	}
}
