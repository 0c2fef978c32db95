package app

import (
	"context"
	"errors"
	"net/http"
	"testing"
)

func TestHealthEndpoint(t *testing.T) {
	server := NewHTTPServer(newTestService(newFakeStore()), "*")

	rr := doRequest(t, server.Handler(), http.MethodGet, "/api/health", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if ok := decodeObject(t, rr)["ok"]; ok != true {
		t.Fatalf("expected ok=true, got %v", ok)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected request id header")
	}
}

func TestReadyReportsFailingDependency(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs, WithReadinessCheck("search", func(context.Context) error {
		return errors.New("meili down")
	}))
	server := NewHTTPServer(svc, "*")

	rr := doRequest(t, server.Handler(), http.MethodGet, "/api/ready", "", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	payload := decodeObject(t, rr)
	checks, _ := payload["checks"].(map[string]any)
	search, _ := checks["search"].(map[string]any)
	if search["status"] != "error" {
		t.Fatalf("expected search check to fail, got %v", checks)
	}
	db, _ := checks["database"].(map[string]any)
	if db["status"] != "ok" {
		t.Fatalf("expected database ok, got %v", checks)
	}
}

func TestReadyWhenDatabaseUp(t *testing.T) {
	server := NewHTTPServer(newTestService(newFakeStore()), "*")

	rr := doRequest(t, server.Handler(), http.MethodGet, "/api/ready", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestUnknownRouteIsJSON404(t *testing.T) {
	server := NewHTTPServer(newTestService(newFakeStore()), "*")

	rr := doRequest(t, server.Handler(), http.MethodGet, "/api/nope", "", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if code := decodeObject(t, rr)["code"]; code != "NOT_FOUND" {
		t.Fatalf("expected NOT_FOUND, got %v", code)
	}
}

func TestOptionsPreflight(t *testing.T) {
	server := NewHTTPServer(newTestService(newFakeStore()), "https://wisdom.example")

	rr := doRequest(t, server.Handler(), http.MethodOptions, "/api/threads", "", "")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if origin := rr.Header().Get("Access-Control-Allow-Origin"); origin != "https://wisdom.example" {
		t.Fatalf("unexpected origin %q", origin)
	}
}
