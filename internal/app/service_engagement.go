package app

import (
	"context"
	"errors"
	"strings"

	"wisdom/api/internal/metrics"
	"wisdom/api/internal/rbac"
	"wisdom/api/internal/search"
	"wisdom/api/internal/store"
	"wisdom/api/internal/util"
)

const maxCollectionName = 100

// ToggleBookmark flips the caller's bookmark on a thread they can see.
func (s *Service) ToggleBookmark(ctx context.Context, userID, threadID string) (store.ToggleAction, *store.Bookmark, error) {
	threadID = strings.TrimSpace(threadID)
	if threadID == "" {
		return "", nil, validationError("Thread ID is required", map[string]any{"field": "threadId"})
	}
	if _, err := s.loadThread(ctx, userID, threadID, rbac.ActionBookmark); err != nil {
		return "", nil, err
	}
	action, bookmark, err := s.store.ToggleBookmark(ctx, userID, threadID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", nil, notFoundError("Thread")
		}
		return "", nil, err
	}
	metrics.ObserveToggle("bookmark", string(action))
	return action, bookmark, nil
}

func (s *Service) ListBookmarks(ctx context.Context, userID string) ([]store.BookmarkEntry, error) {
	return s.store.ListBookmarks(ctx, userID)
}

// SetReaction applies the reaction toggle. A nil or empty reactionType clears
// the caller's reaction.
func (s *Service) SetReaction(ctx context.Context, userID, segmentID string, reactionType *string) (store.ToggleAction, *store.Reaction, error) {
	segmentID = strings.TrimSpace(segmentID)
	if segmentID == "" {
		return "", nil, validationError("Segment ID is required", map[string]any{"field": "segmentId"})
	}
	var requested store.ReactionType
	if reactionType != nil {
		requested = store.ReactionType(strings.TrimSpace(*reactionType))
	}
	if requested != "" && !requested.Valid() {
		return "", nil, validationError("Invalid reaction type", map[string]any{"field": "type", "allowed": store.ReactionTypes})
	}

	action, reaction, err := s.store.SetReaction(ctx, userID, segmentID, requested)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrInvalidReaction):
			return "", nil, validationError("Invalid reaction type", map[string]any{"field": "type", "allowed": store.ReactionTypes})
		case errors.Is(err, store.ErrNotFound):
			return "", nil, notFoundError("Segment")
		default:
			return "", nil, err
		}
	}
	metrics.ObserveToggle("reaction", string(action))
	return action, reaction, nil
}

type CollectionInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	// IsPrivate defaults to true.
	IsPrivate *bool `json:"isPrivate"`
}

func (s *Service) CreateCollection(ctx context.Context, userID string, input CollectionInput) (store.Collection, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return store.Collection{}, validationError("Collection name is required", map[string]any{"field": "name"})
	}
	if len([]rune(name)) > maxCollectionName {
		return store.Collection{}, validationError("Collection name is too long", map[string]any{"field": "name"})
	}
	private := true
	if input.IsPrivate != nil {
		private = *input.IsPrivate
	}
	collection, err := s.store.CreateCollection(ctx, store.Collection{
		ID:          util.NewUUID(),
		UserID:      userID,
		Name:        name,
		Description: strings.TrimSpace(input.Description),
		IsPrivate:   private,
	})
	if err != nil {
		if errors.Is(err, store.ErrInvalidReference) {
			return store.Collection{}, unauthorizedError()
		}
		return store.Collection{}, err
	}
	return collection, nil
}

func (s *Service) ListCollections(ctx context.Context, userID string) ([]store.CollectionWithItems, error) {
	return s.store.ListCollections(ctx, userID)
}

// GetCollection returns a collection to its owner, or to anyone when it is public.
func (s *Service) GetCollection(ctx context.Context, viewerID, id string) (store.CollectionWithItems, error) {
	return s.loadCollection(ctx, viewerID, strings.TrimSpace(id), rbac.ActionRead)
}

func (s *Service) DeleteCollection(ctx context.Context, userID, id string) error {
	collection, err := s.loadCollection(ctx, userID, strings.TrimSpace(id), rbac.ActionDelete)
	if err != nil {
		return err
	}
	if err := s.store.DeleteCollection(ctx, userID, collection.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return notFoundError("Collection")
		}
		return err
	}
	return nil
}

// AddCollectionItem files a visible thread into one of the caller's collections.
func (s *Service) AddCollectionItem(ctx context.Context, userID, collectionID, threadID string) (store.CollectionItem, error) {
	collectionID, threadID = strings.TrimSpace(collectionID), strings.TrimSpace(threadID)
	if collectionID == "" || threadID == "" {
		return store.CollectionItem{}, validationError("Collection ID and Thread ID are required", nil)
	}
	if _, err := s.loadThread(ctx, userID, threadID, rbac.ActionCurate); err != nil {
		return store.CollectionItem{}, err
	}
	item, err := s.store.AddCollectionItem(ctx, userID, collectionID, threadID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrConflict):
			return store.CollectionItem{}, conflictError("Thread already in collection")
		case errors.Is(err, store.ErrNotFound):
			return store.CollectionItem{}, notFoundError("Collection")
		default:
			return store.CollectionItem{}, err
		}
	}
	return item, nil
}

type RemoveItemInput struct {
	ItemID       string
	CollectionID string
	ThreadID     string
}

// RemoveCollectionItem accepts either an item id or a (collection, thread) pair.
func (s *Service) RemoveCollectionItem(ctx context.Context, userID string, input RemoveItemInput) error {
	itemID := strings.TrimSpace(input.ItemID)
	collectionID := strings.TrimSpace(input.CollectionID)
	threadID := strings.TrimSpace(input.ThreadID)

	var err error
	switch {
	case itemID != "":
		err = s.store.RemoveCollectionItemByID(ctx, userID, itemID)
	case collectionID != "" && threadID != "":
		err = s.store.RemoveCollectionItem(ctx, userID, collectionID, threadID)
	default:
		return validationError("Item ID or Collection ID and Thread ID are required", nil)
	}
	if errors.Is(err, store.ErrNotFound) {
		return notFoundError("Collection item")
	}
	return err
}

func (s *Service) Analytics(ctx context.Context, userID string) (store.Analytics, error) {
	return s.store.AuthorAnalytics(ctx, userID, s.now())
}

// Search runs a full-text query over published threads.
func (s *Service) Search(ctx context.Context, q search.Query) (search.Response, error) {
	q.Text = strings.TrimSpace(q.Text)
	q.Tag = strings.TrimSpace(q.Tag)
	if q.Text == "" {
		return search.Response{}, validationError("q is required", map[string]any{"field": "q"})
	}
	if q.Limit < 0 || q.Offset < 0 {
		return search.Response{}, validationError("limit and offset must not be negative", nil)
	}
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}, nil
	}
	return s.search.Search(ctx, q), nil
}
