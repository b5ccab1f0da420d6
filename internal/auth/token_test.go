package auth

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

func TestIssueTokenRoundTrip(t *testing.T) {
	signed, err := IssueToken("secret", "user-42", "neuroscan")
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(signed, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte("secret"), nil
	})
	if err != nil || !token.Valid {
		t.Fatalf("token did not validate: %v", err)
	}
	if claims.Subject != "user-42" {
		t.Fatalf("unexpected subject: %s", claims.Subject)
	}
	if len(claims.Audience) != 1 || claims.Audience[0] != "neuroscan" {
		t.Fatalf("unexpected audience: %v", claims.Audience)
	}
	if claims.ExpiresAt == nil {
		t.Fatal("expected expiry to be set")
	}
}

func TestIssueTokenOmitsEmptyAudience(t *testing.T) {
	signed, err := IssueToken("secret", "user-1", "")
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}

	claims := &jwt.RegisteredClaims{}
	if _, err := jwt.ParseWithClaims(signed, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte("secret"), nil
	}); err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(claims.Audience) != 0 {
		t.Fatalf("expected no audience, got %v", claims.Audience)
	}
}
