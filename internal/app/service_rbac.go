package app

import (
	"context"
	"errors"

	"wisdom/api/internal/rbac"
	"wisdom/api/internal/store"
)

// authorize turns an rbac decision into the error the caller should see.
// Hidden resources are reported as absent so their existence never leaks.
func authorize(decision rbac.Decision, what string) error {
	switch decision {
	case rbac.Allow:
		return nil
	case rbac.Hidden:
		return notFoundError(what)
	case rbac.Unauthenticated:
		return unauthorizedError()
	default:
		return forbiddenError()
	}
}

// loadThread fetches a thread and checks that viewerID may perform action on it.
func (s *Service) loadThread(ctx context.Context, viewerID, threadID string, action rbac.Action) (store.Thread, error) {
	thread, err := s.store.GetThread(ctx, threadID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Thread{}, notFoundError("Thread")
		}
		return store.Thread{}, err
	}
	if err := authorize(rbac.Decide(viewerID, thread.UserID, thread.IsPublished, action), "Thread"); err != nil {
		return store.Thread{}, err
	}
	return thread, nil
}

func (s *Service) loadThreadDetail(ctx context.Context, viewerID, threadID string, action rbac.Action) (store.ThreadDetail, error) {
	detail, err := s.store.GetThreadDetail(ctx, threadID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.ThreadDetail{}, notFoundError("Thread")
		}
		return store.ThreadDetail{}, err
	}
	if err := authorize(rbac.Decide(viewerID, detail.UserID, detail.IsPublished, action), "Thread"); err != nil {
		return store.ThreadDetail{}, err
	}
	return detail, nil
}

// loadCollection applies the same rules with isPrivate standing in for a draft.
func (s *Service) loadCollection(ctx context.Context, viewerID, collectionID string, action rbac.Action) (store.CollectionWithItems, error) {
	collection, err := s.store.GetCollection(ctx, collectionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.CollectionWithItems{}, notFoundError("Collection")
		}
		return store.CollectionWithItems{}, err
	}
	if err := authorize(rbac.Decide(viewerID, collection.UserID, !collection.IsPrivate, action), "Collection"); err != nil {
		return store.CollectionWithItems{}, err
	}
	return collection, nil
}
