package app

import (
	"net/http"

	"github.com/gorilla/mux"

	"wisdom/api/internal/search"
	"wisdom/api/internal/store"
)

func toggleStatus(action store.ToggleAction) int {
	if action == store.ActionAdded {
		return http.StatusCreated
	}
	return http.StatusOK
}

func (s *HTTPServer) handleListBookmarks(w http.ResponseWriter, r *http.Request) {
	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	entries, err := s.service.ListBookmarks(r.Context(), session.UserID)
	if err != nil {
		s.fail(w, r, "list bookmarks", err)
		return
	}
	writeJSON(w, http.StatusOK, bookmarkEntriesJSON(entries))
}

func (s *HTTPServer) handleToggleBookmark(w http.ResponseWriter, r *http.Request) {
	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	var body struct {
		ThreadID string `json:"threadId"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, r, "toggle bookmark", err)
		return
	}
	action, bookmark, err := s.service.ToggleBookmark(r.Context(), session.UserID, body.ThreadID)
	if err != nil {
		s.fail(w, r, "toggle bookmark", err)
		return
	}
	payload := map[string]any{"success": true, "action": string(action)}
	if bookmark != nil {
		payload["bookmark"] = map[string]any{
			"id":        bookmark.ID,
			"threadId":  bookmark.ThreadID,
			"createdAt": bookmark.CreatedAt,
		}
	}
	writeJSON(w, toggleStatus(action), payload)
}

func (s *HTTPServer) handleSetReaction(w http.ResponseWriter, r *http.Request) {
	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	var body struct {
		SegmentID string  `json:"segmentId"`
		Type      *string `json:"type"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, r, "set reaction", err)
		return
	}
	action, reaction, err := s.service.SetReaction(r.Context(), session.UserID, body.SegmentID, body.Type)
	if err != nil {
		s.fail(w, r, "set reaction", err)
		return
	}
	payload := map[string]any{"success": true, "action": string(action)}
	if reaction != nil {
		payload["reaction"] = reactionJSON(*reaction)
	}
	writeJSON(w, toggleStatus(action), payload)
}

func (s *HTTPServer) handleListCollections(w http.ResponseWriter, r *http.Request) {
	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	collections, err := s.service.ListCollections(r.Context(), session.UserID)
	if err != nil {
		s.fail(w, r, "list collections", err)
		return
	}
	out := make([]map[string]any, 0, len(collections))
	for _, collection := range collections {
		out = append(out, collectionWithItemsJSON(collection))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *HTTPServer) handleCreateCollection(w http.ResponseWriter, r *http.Request) {
	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	var body CollectionInput
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, r, "create collection", err)
		return
	}
	collection, err := s.service.CreateCollection(r.Context(), session.UserID, body)
	if err != nil {
		s.fail(w, r, "create collection", err)
		return
	}
	writeJSON(w, http.StatusCreated, collectionJSON(collection))
}

func (s *HTTPServer) handleGetCollection(w http.ResponseWriter, r *http.Request) {
	viewer := s.optionalSession(r)
	collection, err := s.service.GetCollection(r.Context(), viewer.UserID, mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, "get collection", err)
		return
	}
	writeJSON(w, http.StatusOK, collectionWithItemsJSON(collection))
}

func (s *HTTPServer) handleDeleteCollection(w http.ResponseWriter, r *http.Request) {
	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	if err := s.service.DeleteCollection(r.Context(), session.UserID, mux.Vars(r)["id"]); err != nil {
		s.fail(w, r, "delete collection", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *HTTPServer) handleAddCollectionItem(w http.ResponseWriter, r *http.Request) {
	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	var body struct {
		CollectionID string `json:"collectionId"`
		ThreadID     string `json:"threadId"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, r, "add collection item", err)
		return
	}
	item, err := s.service.AddCollectionItem(r.Context(), session.UserID, body.CollectionID, body.ThreadID)
	if err != nil {
		s.fail(w, r, "add collection item", err)
		return
	}
	writeJSON(w, http.StatusCreated, collectionItemJSON(item))
}

func (s *HTTPServer) handleRemoveCollectionItem(w http.ResponseWriter, r *http.Request) {
	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	query := r.URL.Query()
	input := RemoveItemInput{
		ItemID:       query.Get("itemId"),
		CollectionID: query.Get("collectionId"),
		ThreadID:     query.Get("threadId"),
	}
	if err := s.service.RemoveCollectionItem(r.Context(), session.UserID, input); err != nil {
		s.fail(w, r, "remove collection item", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *HTTPServer) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	analytics, err := s.service.Analytics(r.Context(), session.UserID)
	if err != nil {
		s.fail(w, r, "analytics", err)
		return
	}
	writeJSON(w, http.StatusOK, analyticsJSON(analytics))
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.fail(w, r, "search", err)
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		s.fail(w, r, "search", err)
		return
	}
	query := r.URL.Query()
	response, err := s.service.Search(r.Context(), search.Query{
		Text:   query.Get("q"),
		Tag:    query.Get("tag"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		s.fail(w, r, "search", err)
		return
	}
	writeJSON(w, http.StatusOK, response)
}
