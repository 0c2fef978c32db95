package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"wisdom/api/internal/auth"
	"wisdom/api/internal/authpw"
	"wisdom/api/internal/config"
	"wisdom/api/internal/store"
)

// fakeStore keeps users and refresh sessions in memory; everything else is
// driven by the per-test hooks.
type fakeStore struct {
	mu       sync.Mutex
	users    map[string]store.User
	sessions map[string]string

	pingFn                 func(context.Context) error
	listThreadsFn          func(context.Context, store.ThreadFilter) ([]store.ThreadSummary, error)
	getThreadFn            func(context.Context, string) (store.Thread, error)
	getThreadDetailFn      func(context.Context, string) (store.ThreadDetail, error)
	createThreadFn         func(context.Context, store.NewThread) (store.Thread, error)
	forkThreadFn           func(context.Context, string, string, string) (store.Thread, error)
	setThreadPublishedFn   func(context.Context, string, bool) (store.Thread, error)
	deleteThreadFn         func(context.Context, string) error
	setReactionFn          func(context.Context, string, string, store.ReactionType) (store.ToggleAction, *store.Reaction, error)
	toggleBookmarkFn       func(context.Context, string, string) (store.ToggleAction, *store.Bookmark, error)
	getCollectionFn        func(context.Context, string) (store.CollectionWithItems, error)
	deleteCollectionFn     func(context.Context, string, string) error
	addCollectionItemFn    func(context.Context, string, string, string) (store.CollectionItem, error)
	removeCollectionItemFn func(context.Context, string, string, string) error
	authorAnalyticsFn      func(context.Context, string, time.Time) (store.Analytics, error)
}

func newFakeStore() *fakeStore {
	return &fakeStore{users: map[string]store.User{}, sessions: map[string]string{}}
}

func (f *fakeStore) addUser(t *testing.T, id, email, password string) store.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	user := store.User{ID: id, Email: email, Name: "User " + id, PasswordHash: string(hash)}
	f.mu.Lock()
	f.users[id] = user
	f.mu.Unlock()
	return user
}

func (f *fakeStore) CreateUser(_ context.Context, user store.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.users {
		if existing.Email == user.Email {
			return store.ErrConflict
		}
	}
	f.users[user.ID] = user
	return nil
}

func (f *fakeStore) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.users {
		if user.Email == email {
			return user, nil
		}
	}
	return store.User{}, store.ErrNotFound
}

func (f *fakeStore) GetUserByID(_ context.Context, id string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return store.User{}, store.ErrNotFound
	}
	return user, nil
}

func (f *fakeStore) UpdateUserProfile(_ context.Context, id string, name, image, bio *string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return store.User{}, store.ErrNotFound
	}
	if name != nil {
		user.Name = *name
	}
	if image != nil {
		user.ProfileImage = *image
	}
	if bio != nil {
		user.Bio = *bio
	}
	f.users[id] = user
	return user, nil
}

func (f *fakeStore) SaveRefreshSession(_ context.Context, tokenHash, userID string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[tokenHash] = userID
	return nil
}

func (f *fakeStore) LookupRefreshSession(_ context.Context, tokenHash string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	userID, ok := f.sessions[tokenHash]
	if !ok {
		return store.User{}, store.ErrNotFound
	}
	return store.User{ID: userID}, nil
}

func (f *fakeStore) RevokeRefreshSession(_ context.Context, tokenHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, tokenHash)
	return nil
}

func (f *fakeStore) RevokeUserSessions(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for hash, owner := range f.sessions {
		if owner == userID {
			delete(f.sessions, hash)
		}
	}
	return nil
}

func (f *fakeStore) sessionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sessions)
}

func (f *fakeStore) ListThreads(ctx context.Context, filter store.ThreadFilter) ([]store.ThreadSummary, error) {
	if f.listThreadsFn != nil {
		return f.listThreadsFn(ctx, filter)
	}
	return []store.ThreadSummary{}, nil
}

func (f *fakeStore) ListForks(context.Context, string) ([]store.ThreadSummary, error) {
	return []store.ThreadSummary{}, nil
}

func (f *fakeStore) ListRelated(context.Context, string, []string, int) ([]store.ThreadSummary, error) {
	return []store.ThreadSummary{}, nil
}

func (f *fakeStore) ListThreadsByUser(context.Context, string) ([]store.ThreadSummary, error) {
	return []store.ThreadSummary{}, nil
}

func (f *fakeStore) GetThread(ctx context.Context, id string) (store.Thread, error) {
	if f.getThreadFn != nil {
		return f.getThreadFn(ctx, id)
	}
	if f.getThreadDetailFn != nil {
		detail, err := f.getThreadDetailFn(ctx, id)
		return detail.Thread, err
	}
	return store.Thread{}, store.ErrNotFound
}

func (f *fakeStore) GetThreadDetail(ctx context.Context, id string) (store.ThreadDetail, error) {
	if f.getThreadDetailFn != nil {
		return f.getThreadDetailFn(ctx, id)
	}
	return store.ThreadDetail{}, store.ErrNotFound
}

func (f *fakeStore) CreateThread(ctx context.Context, thread store.NewThread) (store.Thread, error) {
	if f.createThreadFn != nil {
		return f.createThreadFn(ctx, thread)
	}
	return store.Thread{ID: thread.ID, UserID: thread.UserID, Title: thread.Title, Tags: thread.Tags, IsPublished: thread.IsPublished}, nil
}

func (f *fakeStore) ForkThread(ctx context.Context, newID, userID, sourceID string) (store.Thread, error) {
	if f.forkThreadFn != nil {
		return f.forkThreadFn(ctx, newID, userID, sourceID)
	}
	return store.Thread{ID: newID, UserID: userID, OriginalThreadID: sourceID}, nil
}

func (f *fakeStore) SetThreadPublished(ctx context.Context, id string, published bool) (store.Thread, error) {
	if f.setThreadPublishedFn != nil {
		return f.setThreadPublishedFn(ctx, id, published)
	}
	return store.Thread{ID: id, IsPublished: published}, nil
}

func (f *fakeStore) DeleteThread(ctx context.Context, id string) error {
	if f.deleteThreadFn != nil {
		return f.deleteThreadFn(ctx, id)
	}
	return nil
}

func (f *fakeStore) SetReaction(ctx context.Context, userID, segmentID string, reactionType store.ReactionType) (store.ToggleAction, *store.Reaction, error) {
	if f.setReactionFn != nil {
		return f.setReactionFn(ctx, userID, segmentID, reactionType)
	}
	return store.ActionAdded, &store.Reaction{ID: "r1", UserID: userID, SegmentID: segmentID, Type: reactionType}, nil
}

func (f *fakeStore) ToggleBookmark(ctx context.Context, userID, threadID string) (store.ToggleAction, *store.Bookmark, error) {
	if f.toggleBookmarkFn != nil {
		return f.toggleBookmarkFn(ctx, userID, threadID)
	}
	return store.ActionAdded, &store.Bookmark{ID: "b1", UserID: userID, ThreadID: threadID}, nil
}

func (f *fakeStore) ListBookmarks(context.Context, string) ([]store.BookmarkEntry, error) {
	return []store.BookmarkEntry{}, nil
}

func (f *fakeStore) CreateCollection(_ context.Context, collection store.Collection) (store.Collection, error) {
	return collection, nil
}

func (f *fakeStore) ListCollections(context.Context, string) ([]store.CollectionWithItems, error) {
	return []store.CollectionWithItems{}, nil
}

func (f *fakeStore) GetCollection(ctx context.Context, id string) (store.CollectionWithItems, error) {
	if f.getCollectionFn != nil {
		return f.getCollectionFn(ctx, id)
	}
	return store.CollectionWithItems{}, store.ErrNotFound
}

func (f *fakeStore) DeleteCollection(ctx context.Context, userID, id string) error {
	if f.deleteCollectionFn != nil {
		return f.deleteCollectionFn(ctx, userID, id)
	}
	return nil
}

func (f *fakeStore) AddCollectionItem(ctx context.Context, userID, collectionID, threadID string) (store.CollectionItem, error) {
	if f.addCollectionItemFn != nil {
		return f.addCollectionItemFn(ctx, userID, collectionID, threadID)
	}
	return store.CollectionItem{ID: "item-1", CollectionID: collectionID, ThreadID: threadID}, nil
}

func (f *fakeStore) RemoveCollectionItem(ctx context.Context, userID, collectionID, threadID string) error {
	if f.removeCollectionItemFn != nil {
		return f.removeCollectionItemFn(ctx, userID, collectionID, threadID)
	}
	return nil
}

func (f *fakeStore) RemoveCollectionItemByID(context.Context, string, string) error {
	return nil
}

func (f *fakeStore) AuthorAnalytics(ctx context.Context, userID string, now time.Time) (store.Analytics, error) {
	if f.authorAnalyticsFn != nil {
		return f.authorAnalyticsFn(ctx, userID, now)
	}
	return store.Analytics{Activity: store.MonthWindow(now, 6)}, nil
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

const testSecret = "test-secret"

func newTestService(fs *fakeStore, opts ...Option) *Service {
	cfg := config.Config{
		JWTSecret:      testSecret,
		AccessTTL:      time.Hour,
		RefreshTTL:     24 * time.Hour,
		RateLimitRPS:   1000,
		RateLimitBurst: 1000,
	}
	svc := newService(cfg, fs, opts...)
	svc.passwords = authpw.NewService(fs, bcrypt.MinCost)
	return svc
}

func tokenFor(t *testing.T, userID string) string {
	t.Helper()
	now := time.Now()
	token, err := auth.IssueToken([]byte(testSecret), auth.Claims{
		Sub: userID,
		JTI: "jti-" + userID,
		Iat: now.Unix(),
		Exp: now.Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func doRequest(t *testing.T, handler http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func decodeObject(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response %q: %v", rr.Body.String(), err)
	}
	return payload
}

func publishedDetail(id, ownerID string) store.ThreadDetail {
	return store.ThreadDetail{
		Thread: store.Thread{ID: id, UserID: ownerID, Title: "Notes", Tags: []string{"calm"}, IsPublished: true},
		Author: store.Author{ID: ownerID, Name: "Owner"},
		Segments: []store.SegmentDetail{
			{
				Segment:   store.Segment{ID: "seg-1", ThreadID: id, Content: "first", Order: 0},
				Reactions: []store.Reaction{{ID: "r1", UserID: "u9", Type: store.ReactionFire}},
			},
		},
	}
}
