package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"wisdom/api/internal/auth"
	"wisdom/api/internal/metrics"
	"wisdom/api/internal/ratelimit"
	"wisdom/api/internal/store"
	"wisdom/api/internal/util"
)

const maxBodyBytes = 1 << 20

type HTTPServer struct {
	service    *Service
	corsOrigin string
	log        zerolog.Logger
	limiter    *ratelimit.Pool
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{
		service:    service,
		corsOrigin: corsOrigin,
		log:        service.log.With().Str("component", "http").Logger(),
		limiter:    ratelimit.NewPool(service.cfg.RateLimitRPS, service.cfg.RateLimitBurst),
	}
}

// Limiter exposes the rate limit pool so the caller can run its sweeper.
func (s *HTTPServer) Limiter() *ratelimit.Pool {
	return s.limiter
}

func (s *HTTPServer) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.labelRoute, s.rateLimit)

	r.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/api/ready", s.handleReady).Methods(http.MethodGet, http.MethodHead)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/api/auth/register", s.handleRegister).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/login", s.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/logout", s.handleLogout).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/refresh", s.handleRefresh).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/me", s.handleMe).Methods(http.MethodGet)
	r.HandleFunc("/api/auth/me", s.handleUpdateMe).Methods(http.MethodPatch)

	r.HandleFunc("/api/threads", s.handleListThreads).Methods(http.MethodGet)
	r.HandleFunc("/api/threads", s.handleCreateThread).Methods(http.MethodPost)
	r.HandleFunc("/api/threads/fork", s.handleForkThread).Methods(http.MethodPost)
	r.HandleFunc("/api/threads/{id}", s.handleGetThread).Methods(http.MethodGet)
	r.HandleFunc("/api/threads/{id}", s.handleDeleteThread).Methods(http.MethodDelete)
	r.HandleFunc("/api/threads/{id}/publish", s.handlePublishThread).Methods(http.MethodPost)
	r.HandleFunc("/api/threads/{id}/forks", s.handleListForks).Methods(http.MethodGet)
	r.HandleFunc("/api/threads/{id}/related", s.handleListRelated).Methods(http.MethodGet)
	r.HandleFunc("/api/threads/{id}/export", s.handleExportThread).Methods(http.MethodGet)
	r.HandleFunc("/api/threads/{id}/export", s.handleArchiveExport).Methods(http.MethodPost)
	r.HandleFunc("/api/me/threads", s.handleMyThreads).Methods(http.MethodGet)

	r.HandleFunc("/api/bookmarks", s.handleListBookmarks).Methods(http.MethodGet)
	r.HandleFunc("/api/bookmarks", s.handleToggleBookmark).Methods(http.MethodPost)
	r.HandleFunc("/api/reactions", s.handleSetReaction).Methods(http.MethodPost)

	r.HandleFunc("/api/collections", s.handleListCollections).Methods(http.MethodGet)
	r.HandleFunc("/api/collections", s.handleCreateCollection).Methods(http.MethodPost)
	r.HandleFunc("/api/collections/items", s.handleAddCollectionItem).Methods(http.MethodPost)
	r.HandleFunc("/api/collections/items", s.handleRemoveCollectionItem).Methods(http.MethodDelete)
	r.HandleFunc("/api/collections/{id}", s.handleGetCollection).Methods(http.MethodGet)
	r.HandleFunc("/api/collections/{id}", s.handleDeleteCollection).Methods(http.MethodDelete)

	r.HandleFunc("/api/analytics", s.handleAnalytics).Methods(http.MethodGet)
	r.HandleFunc("/api/search", s.handleSearch).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	return s.withMiddleware(r)
}

type requestIDKey struct{}
type routeLabelKey struct{}

type routeLabel struct {
	template string
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// withMiddleware wraps the router so unmatched routes are logged and counted too.
func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = util.NewID("")
		}
		label := &routeLabel{template: "unmatched"}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		ctx = context.WithValue(ctx, routeLabelKey{}, label)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		defer func() {
			if rec := recover(); rec != nil {
				s.log.Error().
					Str("request_id", requestID).
					Interface("panic", rec).
					Bytes("stack", debug.Stack()).
					Msg("panic recovered")
				if !writer.wroteHeader {
					writeError(writer, http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil)
				}
			}
			elapsed := time.Since(started)
			metrics.ObserveRequest(r.Method, label.template, writer.status, elapsed)
			s.log.Info().
				Str("request_id", requestID).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", writer.status).
				Int64("duration_ms", elapsed.Milliseconds()).
				Msg("request")
		}()

		if r.Method == http.MethodOptions {
			writer.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(writer, r)
	})
}

// labelRoute records the matched route template for metrics.
func (s *HTTPServer) labelRoute(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if label, ok := r.Context().Value(routeLabelKey{}).(*routeLabel); ok {
			if route := mux.CurrentRoute(r); route != nil {
				if tpl, err := route.GetPathTemplate(); err == nil {
					label.template = tpl
				}
			}
		}
		next.ServeHTTP(w, r)
	})
}

// rateLimit applies the per-caller token bucket to mutating requests. Callers
// are keyed by token subject, or by remote address when anonymous.
func (s *HTTPServer) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}
		if !s.limiter.Allow(s.rateLimitKey(r)) {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *HTTPServer) rateLimitKey(r *http.Request) string {
	if token := bearerToken(r); token != "" {
		if claims, err := auth.ParseToken([]byte(s.service.cfg.JWTSecret), token); err == nil {
			return "user:" + claims.Sub
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.wroteHeader = true
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	return r.ResponseWriter.Write(b)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Methods", "GET,POST,PATCH,DELETE,OPTIONS")
	header.Set("Access-Control-Allow-Headers", "Content-Type,Authorization,X-Request-ID")
	header.Set("Access-Control-Expose-Headers", "X-Request-ID,Retry-After")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

// fail maps err to a response and logs it with the operation name, at warn
// level for client errors and error level for server errors. Request bodies
// are never logged.
func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, code, message, details := mapError(err)
	event := s.log.Warn()
	if status >= http.StatusInternalServerError {
		event = s.log.Error()
	}
	event.Err(err).
		Str("op", op).
		Str("request_id", requestIDFrom(r.Context())).
		Int("status", status).
		Str("code", code).
		Msg("request failed")
	writeError(w, status, code, message, details)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return invalidBodyError("request body is required")
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err := decoder.Decode(target); err != nil {
		return invalidBodyError("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return Session{}, false
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrInvalidToken) {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return Session{}, false
		}
		s.fail(w, r, "session", err)
		return Session{}, false
	}
	return session, true
}

// optionalSession identifies the caller when a valid token is present and
// treats everyone else as anonymous.
func (s *HTTPServer) optionalSession(r *http.Request) Session {
	token := bearerToken(r)
	if token == "" {
		return Session{}
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		return Session{}
	}
	return session
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, store.ErrConflict) {
		return http.StatusConflict, "CONFLICT", "Conflict", nil
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{}
	for name, err := range s.service.Readiness(ctx) {
		if err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks[name] = map[string]any{"status": "error", "error": err.Error()}
			continue
		}
		checks[name] = map[string]any{"status": "ok"}
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}
