package auth

import (
	"strings"
	"testing"
	"time"
)

func TestIssueAndParseToken(t *testing.T) {
	secret := []byte("secret")
	issued, err := IssueToken(secret, Claims{
		Sub:   "user-1",
		Name:  "Avery",
		Email: "avery@example.com",
		JTI:   "jti-1",
		Iat:   time.Now().Unix(),
		Exp:   time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	claims, err := ParseToken(secret, issued)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.Sub != "user-1" || claims.Name != "Avery" || claims.Email != "avery@example.com" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	secret := []byte("secret")
	issued, err := IssueToken(secret, Claims{
		Sub: "user-1",
		JTI: "jti-1",
		Exp: time.Now().Add(-time.Minute).Unix(),
	})
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	if _, err := ParseToken(secret, issued); err != ErrExpiredToken {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestParseTokenRejectsTampering(t *testing.T) {
	secret := []byte("secret")
	issued, err := IssueToken(secret, Claims{Sub: "user-1", JTI: "jti-1", Exp: time.Now().Add(time.Hour).Unix()})
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}

	tests := map[string]string{
		"wrong secret":  issued,
		"no separator":  strings.ReplaceAll(issued, ".", ""),
		"extra segment": issued + ".x",
		"empty":         "",
		"payload swap":  "e30." + strings.SplitN(issued, ".", 2)[1],
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			key := secret
			if name == "wrong secret" {
				key = []byte("other")
			}
			if _, err := ParseToken(key, token); err != ErrInvalidToken {
				t.Fatalf("expected ErrInvalidToken, got %v", err)
			}
		})
	}
}

func TestIssueTokenRequiresSecret(t *testing.T) {
	if _, err := IssueToken(nil, Claims{Sub: "u"}); err == nil {
		t.Fatal("expected error for empty secret")
	}
}

func TestRefreshTokenAndHash(t *testing.T) {
	first, err := NewRefreshToken()
	if err != nil {
		t.Fatalf("NewRefreshToken() error = %v", err)
	}
	second, _ := NewRefreshToken()
	if first == second {
		t.Fatal("expected distinct refresh tokens")
	}
	if HashToken(first) != HashToken(first) || len(HashToken(first)) != 64 {
		t.Fatalf("unexpected hash %q", HashToken(first))
	}
}
