package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"wisdom/api/internal/auth"
	"wisdom/api/internal/authpw"
	"wisdom/api/internal/config"
	"wisdom/api/internal/export"
	"wisdom/api/internal/search"
	"wisdom/api/internal/storage"
	"wisdom/api/internal/store"
	"wisdom/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Email        string
	JTI          string
	ExpiresAt    time.Time
}

type dataStore interface {
	sessionStore

	CreateUser(context.Context, store.User) error
	GetUserByEmail(context.Context, string) (store.User, error)
	GetUserByID(context.Context, string) (store.User, error)
	UpdateUserProfile(context.Context, string, *string, *string, *string) (store.User, error)

	ListThreads(context.Context, store.ThreadFilter) ([]store.ThreadSummary, error)
	ListForks(context.Context, string) ([]store.ThreadSummary, error)
	ListRelated(context.Context, string, []string, int) ([]store.ThreadSummary, error)
	ListThreadsByUser(context.Context, string) ([]store.ThreadSummary, error)
	GetThread(context.Context, string) (store.Thread, error)
	GetThreadDetail(context.Context, string) (store.ThreadDetail, error)
	CreateThread(context.Context, store.NewThread) (store.Thread, error)
	ForkThread(context.Context, string, string, string) (store.Thread, error)
	SetThreadPublished(context.Context, string, bool) (store.Thread, error)
	DeleteThread(context.Context, string) error

	SetReaction(context.Context, string, string, store.ReactionType) (store.ToggleAction, *store.Reaction, error)
	ToggleBookmark(context.Context, string, string) (store.ToggleAction, *store.Bookmark, error)
	ListBookmarks(context.Context, string) ([]store.BookmarkEntry, error)

	CreateCollection(context.Context, store.Collection) (store.Collection, error)
	ListCollections(context.Context, string) ([]store.CollectionWithItems, error)
	GetCollection(context.Context, string) (store.CollectionWithItems, error)
	DeleteCollection(context.Context, string, string) error
	AddCollectionItem(context.Context, string, string, string) (store.CollectionItem, error)
	RemoveCollectionItem(context.Context, string, string, string) error
	RemoveCollectionItemByID(context.Context, string, string) error

	AuthorAnalytics(context.Context, string, time.Time) (store.Analytics, error)
	Ping(ctx context.Context) error
}

// sessionStore holds hashed refresh tokens. Both Postgres and Redis implement it.
type sessionStore interface {
	SaveRefreshSession(context.Context, string, string, time.Time) error
	LookupRefreshSession(context.Context, string) (store.User, error)
	RevokeRefreshSession(context.Context, string) error
	RevokeUserSessions(context.Context, string) error
}

type threadSearcher interface {
	Search(context.Context, search.Query) search.Response
}

type threadExporter interface {
	Export(context.Context, export.Thread, export.Format) (*export.Result, error)
}

type exportArchive interface {
	Put(ctx context.Context, key, contentType string, data []byte) (storage.Object, error)
}

type readinessCheck struct {
	name string
	ping func(context.Context) error
}

type Service struct {
	cfg       config.Config
	store     dataStore
	sessions  sessionStore
	passwords *authpw.Service
	search    threadSearcher
	exporter  threadExporter
	archive   exportArchive
	checks    []readinessCheck
	log       zerolog.Logger
	now       func() time.Time
}

type Option func(*Service)

// WithSessionStore keeps refresh sessions somewhere other than Postgres.
func WithSessionStore(sessions sessionStore) Option {
	return func(s *Service) { s.sessions = sessions }
}

func WithSearch(searcher threadSearcher) Option {
	return func(s *Service) { s.search = searcher }
}

func WithExporter(exporter threadExporter) Option {
	return func(s *Service) { s.exporter = exporter }
}

// WithArchive enables POST /export. Without it archiving answers 503.
func WithArchive(archive exportArchive) Option {
	return func(s *Service) { s.archive = archive }
}

// WithReadinessCheck adds a dependency to /api/ready next to the database.
func WithReadinessCheck(name string, ping func(context.Context) error) Option {
	return func(s *Service) { s.checks = append(s.checks, readinessCheck{name: name, ping: ping}) }
}

func WithLogger(log zerolog.Logger) Option {
	return func(s *Service) { s.log = log }
}

func New(cfg config.Config, dataStore *store.PostgresStore, opts ...Option) *Service {
	return newService(cfg, dataStore, opts...)
}

func newService(cfg config.Config, dataStore dataStore, opts ...Option) *Service {
	s := &Service{
		cfg:       cfg,
		store:     dataStore,
		sessions:  dataStore,
		passwords: authpw.NewService(dataStore, 0),
		exporter:  export.NewService(nil),
		log:       zerolog.Nop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates an account. Passwords are only ever stored as bcrypt hashes.
func (s *Service) Register(ctx context.Context, email, name, password string) (store.User, error) {
	user, err := s.passwords.Register(ctx, authpw.RegisterRequest{Email: email, Name: name, Password: password})
	if err != nil {
		return store.User{}, mapAuthError(err)
	}
	return user, nil
}

func (s *Service) Login(ctx context.Context, email, password string) (Session, store.User, error) {
	user, err := s.passwords.Login(ctx, email, password)
	if err != nil {
		return Session{}, store.User{}, mapAuthError(err)
	}
	session, err := s.issueSession(ctx, user)
	if err != nil {
		return Session{}, store.User{}, err
	}
	return session, user, nil
}

func mapAuthError(err error) error {
	var fieldErr *authpw.FieldError
	switch {
	case errors.As(err, &fieldErr):
		return validationError(fieldErr.Message, map[string]any{"field": fieldErr.Field})
	case errors.Is(err, authpw.ErrEmailTaken):
		return conflictError("Email already registered")
	case errors.Is(err, authpw.ErrInvalidCredentials):
		return domainError(http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password", nil)
	default:
		return err
	}
}

// Refresh rotates a refresh token: the presented one is revoked and a new pair issued.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return Session{}, validationError("refreshToken is required", nil)
	}
	tokenHash := auth.HashToken(refreshToken)
	owner, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Session{}, unauthorizedError()
		}
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	// the Redis store only knows the user id
	user, err := s.store.GetUserByID(ctx, owner.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Session{}, unauthorizedError()
		}
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := s.now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:   user.ID,
		Name:  user.Name,
		Email: user.Email,
		JTI:   jti,
		Iat:   now.Unix(),
		Exp:   expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh, err := auth.NewRefreshToken()
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, now.Add(s.cfg.RefreshTTL)); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.Name,
		Email:        user.Email,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

// SessionFromToken verifies an access token and checks the user still exists.
func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Session{}, auth.ErrInvalidToken
		}
		return Session{}, err
	}
	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.Name,
		Email:     user.Email,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

// Logout revokes the presented refresh token, or every session of the user when all is set.
func (s *Service) Logout(ctx context.Context, session Session, refreshToken string, all bool) error {
	if all && session.UserID != "" {
		if err := s.sessions.RevokeUserSessions(ctx, session.UserID); err != nil {
			return err
		}
	}
	if refreshToken = strings.TrimSpace(refreshToken); refreshToken != "" {
		if err := s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) Me(ctx context.Context, userID string) (store.User, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.User{}, notFoundError("User")
		}
		return store.User{}, err
	}
	return user, nil
}

type ProfileInput struct {
	Name         *string `json:"name"`
	ProfileImage *string `json:"profileImage"`
	Bio          *string `json:"bio"`
}

const maxBioLength = 500

func (s *Service) UpdateProfile(ctx context.Context, userID string, input ProfileInput) (store.User, error) {
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return store.User{}, validationError("name cannot be empty", map[string]any{"field": "name"})
		}
		input.Name = &name
	}
	if input.Bio != nil && len([]rune(*input.Bio)) > maxBioLength {
		return store.User{}, validationError(fmt.Sprintf("bio must be at most %d characters", maxBioLength), map[string]any{"field": "bio"})
	}
	if input.ProfileImage != nil {
		image := strings.TrimSpace(*input.ProfileImage)
		if image != "" && !strings.HasPrefix(image, "https://") && !strings.HasPrefix(image, "http://") {
			return store.User{}, validationError("profileImage must be an http(s) URL", map[string]any{"field": "profileImage"})
		}
		input.ProfileImage = &image
	}
	user, err := s.store.UpdateUserProfile(ctx, userID, input.Name, input.ProfileImage, input.Bio)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.User{}, notFoundError("User")
		}
		return store.User{}, err
	}
	return user, nil
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Readiness pings the database and every registered dependency.
func (s *Service) Readiness(ctx context.Context) map[string]error {
	results := map[string]error{"database": s.store.Ping(ctx)}
	for _, check := range s.checks {
		results[check.name] = check.ping(ctx)
	}
	return results
}
