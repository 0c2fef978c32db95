package app

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
)

const (
	publishedCacheControl = "public, s-maxage=60, stale-while-revalidate=120"
	privateCacheControl   = "no-store"
)

func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, validationError(fmt.Sprintf("%s must be an integer", name), map[string]any{"field": name})
	}
	return value, nil
}

func (s *HTTPServer) handleListThreads(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.fail(w, r, "list threads", err)
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		s.fail(w, r, "list threads", err)
		return
	}
	query := r.URL.Query()
	threads, err := s.service.ListThreads(r.Context(), query.Get("tag"), query.Get("sort"), limit, offset)
	if err != nil {
		s.fail(w, r, "list threads", err)
		return
	}
	writeJSON(w, http.StatusOK, threadSummariesJSON(threads))
}

func (s *HTTPServer) handleCreateThread(w http.ResponseWriter, r *http.Request) {
	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	var body CreateThreadInput
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, r, "create thread", err)
		return
	}
	thread, err := s.service.CreateThread(r.Context(), session.UserID, body)
	if err != nil {
		s.fail(w, r, "create thread", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": thread.ID})
}

func (s *HTTPServer) handleForkThread(w http.ResponseWriter, r *http.Request) {
	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	var body struct {
		ThreadID string `json:"threadId"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, r, "fork thread", err)
		return
	}
	thread, err := s.service.ForkThread(r.Context(), session.UserID, body.ThreadID)
	if err != nil {
		s.fail(w, r, "fork thread", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": thread.ID, "message": "Thread forked successfully"})
}

func (s *HTTPServer) handleGetThread(w http.ResponseWriter, r *http.Request) {
	viewer := s.optionalSession(r)
	detail, err := s.service.GetThread(r.Context(), viewer.UserID, mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, "get thread", err)
		return
	}
	if detail.IsPublished {
		w.Header().Set("Cache-Control", publishedCacheControl)
	} else {
		w.Header().Set("Cache-Control", privateCacheControl)
	}
	writeJSON(w, http.StatusOK, threadDetailJSON(detail))
}

func (s *HTTPServer) handleDeleteThread(w http.ResponseWriter, r *http.Request) {
	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	if err := s.service.DeleteThread(r.Context(), session.UserID, mux.Vars(r)["id"]); err != nil {
		s.fail(w, r, "delete thread", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *HTTPServer) handlePublishThread(w http.ResponseWriter, r *http.Request) {
	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	var body struct {
		IsPublished *bool `json:"isPublished"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, r, "publish thread", err)
		return
	}
	if body.IsPublished == nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "isPublished is required", map[string]any{"field": "isPublished"})
		return
	}
	thread, err := s.service.SetPublished(r.Context(), session.UserID, mux.Vars(r)["id"], *body.IsPublished)
	if err != nil {
		s.fail(w, r, "publish thread", err)
		return
	}
	writeJSON(w, http.StatusOK, threadJSON(thread))
}

func (s *HTTPServer) handleListForks(w http.ResponseWriter, r *http.Request) {
	viewer := s.optionalSession(r)
	forks, err := s.service.ListForks(r.Context(), viewer.UserID, mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, "list forks", err)
		return
	}
	writeJSON(w, http.StatusOK, threadSummariesJSON(forks))
}

func (s *HTTPServer) handleListRelated(w http.ResponseWriter, r *http.Request) {
	viewer := s.optionalSession(r)
	related, err := s.service.ListRelated(r.Context(), viewer.UserID, mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, "list related", err)
		return
	}
	writeJSON(w, http.StatusOK, threadSummariesJSON(related))
}

func (s *HTTPServer) handleMyThreads(w http.ResponseWriter, r *http.Request) {
	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	threads, err := s.service.ListMyThreads(r.Context(), session.UserID)
	if err != nil {
		s.fail(w, r, "list my threads", err)
		return
	}
	writeJSON(w, http.StatusOK, threadSummariesJSON(threads))
}

func (s *HTTPServer) handleExportThread(w http.ResponseWriter, r *http.Request) {
	viewer := s.optionalSession(r)
	result, err := s.service.ExportThread(r.Context(), viewer.UserID, mux.Vars(r)["id"], r.URL.Query().Get("format"))
	if err != nil {
		s.fail(w, r, "export thread", err)
		return
	}
	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

func (s *HTTPServer) handleArchiveExport(w http.ResponseWriter, r *http.Request) {
	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	object, err := s.service.ArchiveExport(r.Context(), session.UserID, mux.Vars(r)["id"], r.URL.Query().Get("format"))
	if err != nil {
		s.fail(w, r, "archive export", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"key": object.Key, "url": object.URL, "size": object.Size})
}
