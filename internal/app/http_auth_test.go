package app

import (
	"net/http"
	"testing"
)

func TestRegisterReturnsUserWithoutHash(t *testing.T) {
	fs := newFakeStore()
	server := NewHTTPServer(newTestService(fs), "*")

	rr := doRequest(t, server.Handler(), http.MethodPost, "/api/auth/register", "",
		`{"email":"  Ada@Example.com ","name":"Ada","password":"correct horse"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	payload := decodeObject(t, rr)
	user, _ := payload["user"].(map[string]any)
	if user["email"] != "ada@example.com" {
		t.Fatalf("expected normalized email, got %v", user["email"])
	}
	if _, leaked := user["passwordHash"]; leaked {
		t.Fatalf("password hash must not be returned")
	}
}

func TestRegisterDuplicateEmailConflicts(t *testing.T) {
	fs := newFakeStore()
	fs.addUser(t, "u1", "ada@example.com", "correct horse")
	server := NewHTTPServer(newTestService(fs), "*")

	rr := doRequest(t, server.Handler(), http.MethodPost, "/api/auth/register", "",
		`{"email":"ada@example.com","name":"Ada","password":"correct horse"}`)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestRegisterRejectsShortPassword(t *testing.T) {
	server := NewHTTPServer(newTestService(newFakeStore()), "*")

	rr := doRequest(t, server.Handler(), http.MethodPost, "/api/auth/register", "",
		`{"email":"ada@example.com","name":"Ada","password":"short"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	payload := decodeObject(t, rr)
	details, _ := payload["details"].(map[string]any)
	if details["field"] != "password" {
		t.Fatalf("expected password field error, got %v", payload)
	}
}

func TestLoginIssuesTokensAndRefreshRotates(t *testing.T) {
	fs := newFakeStore()
	fs.addUser(t, "u1", "ada@example.com", "correct horse")
	server := NewHTTPServer(newTestService(fs), "*")
	handler := server.Handler()

	rr := doRequest(t, handler, http.MethodPost, "/api/auth/login", "",
		`{"email":"ada@example.com","password":"correct horse"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	payload := decodeObject(t, rr)
	access, _ := payload["accessToken"].(string)
	refresh, _ := payload["refreshToken"].(string)
	if access == "" || refresh == "" {
		t.Fatalf("expected both tokens, got %v", payload)
	}

	rr = doRequest(t, handler, http.MethodGet, "/api/auth/me", access, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected me 200, got %d", rr.Code)
	}

	rr = doRequest(t, handler, http.MethodPost, "/api/auth/refresh", "", `{"refreshToken":"`+refresh+`"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected refresh 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	rotated, _ := decodeObject(t, rr)["refreshToken"].(string)
	if rotated == "" || rotated == refresh {
		t.Fatalf("expected a new refresh token")
	}

	rr = doRequest(t, handler, http.MethodPost, "/api/auth/refresh", "", `{"refreshToken":"`+refresh+`"}`)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected reused refresh token to be rejected, got %d", rr.Code)
	}
}

func TestLoginWrongPasswordIsUnauthorized(t *testing.T) {
	fs := newFakeStore()
	fs.addUser(t, "u1", "ada@example.com", "correct horse")
	server := NewHTTPServer(newTestService(fs), "*")

	rr := doRequest(t, server.Handler(), http.MethodPost, "/api/auth/login", "",
		`{"email":"ada@example.com","password":"wrong horse"}`)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if code := decodeObject(t, rr)["code"]; code != "INVALID_CREDENTIALS" {
		t.Fatalf("expected INVALID_CREDENTIALS, got %v", code)
	}
}

func TestLogoutAllRevokesEverySession(t *testing.T) {
	fs := newFakeStore()
	fs.addUser(t, "u1", "ada@example.com", "correct horse")
	server := NewHTTPServer(newTestService(fs), "*")
	handler := server.Handler()

	var access string
	for i := 0; i < 2; i++ {
		rr := doRequest(t, handler, http.MethodPost, "/api/auth/login", "",
			`{"email":"ada@example.com","password":"correct horse"}`)
		access, _ = decodeObject(t, rr)["accessToken"].(string)
	}
	if fs.sessionCount() != 2 {
		t.Fatalf("expected 2 sessions, got %d", fs.sessionCount())
	}

	rr := doRequest(t, handler, http.MethodPost, "/api/auth/logout", access, `{"all":true}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if fs.sessionCount() != 0 {
		t.Fatalf("expected all sessions revoked, got %d", fs.sessionCount())
	}
}

func TestMeRequiresToken(t *testing.T) {
	server := NewHTTPServer(newTestService(newFakeStore()), "*")

	rr := doRequest(t, server.Handler(), http.MethodGet, "/api/auth/me", "", "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	rr = doRequest(t, server.Handler(), http.MethodGet, "/api/auth/me", "garbage.token", "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a bad token, got %d", rr.Code)
	}
}

func TestUpdateProfileValidatesImageURL(t *testing.T) {
	fs := newFakeStore()
	fs.addUser(t, "u1", "ada@example.com", "correct horse")
	server := NewHTTPServer(newTestService(fs), "*")
	token := tokenFor(t, "u1")

	rr := doRequest(t, server.Handler(), http.MethodPatch, "/api/auth/me", token, `{"profileImage":"ftp://x"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}

	rr = doRequest(t, server.Handler(), http.MethodPatch, "/api/auth/me", token, `{"bio":"hello"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	user, _ := decodeObject(t, rr)["user"].(map[string]any)
	if user["bio"] != "hello" {
		t.Fatalf("expected bio to be updated, got %v", user["bio"])
	}
}
