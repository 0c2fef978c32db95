package authpw

import (
	"context"
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"wisdom/api/internal/store"
)

// mockUserStore is a mock implementation of UserStore for testing
type mockUserStore struct {
	users      map[string]store.User
	emailIndex map[string]string // email -> userID
	failCreate error
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{
		users:      make(map[string]store.User),
		emailIndex: make(map[string]string),
	}
}

func (m *mockUserStore) GetUserByEmail(ctx context.Context, email string) (store.User, error) {
	if userID, ok := m.emailIndex[strings.ToLower(email)]; ok {
		return m.users[userID], nil
	}
	return store.User{}, store.ErrNotFound
}

func (m *mockUserStore) CreateUser(ctx context.Context, user store.User) error {
	if m.failCreate != nil {
		return m.failCreate
	}
	m.users[user.ID] = user
	m.emailIndex[strings.ToLower(user.Email)] = user.ID
	return nil
}

func TestRegister(t *testing.T) {
	ctx := context.Background()

	t.Run("creates user with hashed password", func(t *testing.T) {
		users := newMockUserStore()
		svc := NewService(users, bcrypt.MinCost)

		user, err := svc.Register(ctx, RegisterRequest{Email: " Ada@Example.com ", Name: "Ada", Password: "correct horse"})
		if err != nil {
			t.Fatalf("Register() error = %v", err)
		}
		if user.Email != "ada@example.com" {
			t.Fatalf("expected normalized email, got %q", user.Email)
		}
		if user.PasswordHash == "correct horse" || user.PasswordHash == "" {
			t.Fatalf("password must be stored hashed")
		}
		if _, ok := users.users[user.ID]; !ok {
			t.Fatalf("user was not persisted")
		}
	})

	t.Run("rejects duplicate email", func(t *testing.T) {
		users := newMockUserStore()
		svc := NewService(users, bcrypt.MinCost)
		if _, err := svc.Register(ctx, RegisterRequest{Email: "a@example.com", Name: "A", Password: "password1"}); err != nil {
			t.Fatalf("first Register() error = %v", err)
		}
		_, err := svc.Register(ctx, RegisterRequest{Email: "A@example.com", Name: "B", Password: "password2"})
		if !errors.Is(err, ErrEmailTaken) {
			t.Fatalf("expected ErrEmailTaken, got %v", err)
		}
	})

	t.Run("maps store conflict to email taken", func(t *testing.T) {
		users := newMockUserStore()
		users.failCreate = store.ErrConflict
		svc := NewService(users, bcrypt.MinCost)
		_, err := svc.Register(ctx, RegisterRequest{Email: "race@example.com", Name: "R", Password: "password1"})
		if !errors.Is(err, ErrEmailTaken) {
			t.Fatalf("expected ErrEmailTaken, got %v", err)
		}
	})

	validation := []struct {
		name  string
		req   RegisterRequest
		field string
	}{
		{name: "missing email", req: RegisterRequest{Name: "A", Password: "password1"}, field: "email"},
		{name: "bad email", req: RegisterRequest{Email: "nope", Name: "A", Password: "password1"}, field: "email"},
		{name: "missing name", req: RegisterRequest{Email: "a@example.com", Password: "password1"}, field: "name"},
		{name: "short password", req: RegisterRequest{Email: "a@example.com", Name: "A", Password: "short"}, field: "password"},
	}
	for _, tt := range validation {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(newMockUserStore(), bcrypt.MinCost)
			_, err := svc.Register(ctx, tt.req)
			var fieldErr *FieldError
			if !errors.As(err, &fieldErr) {
				t.Fatalf("expected FieldError, got %v", err)
			}
			if fieldErr.Field != tt.field {
				t.Fatalf("expected field %q, got %q", tt.field, fieldErr.Field)
			}
		})
	}
}

func TestLogin(t *testing.T) {
	ctx := context.Background()
	users := newMockUserStore()
	svc := NewService(users, bcrypt.MinCost)
	registered, err := svc.Register(ctx, RegisterRequest{Email: "lin@example.com", Name: "Lin", Password: "password1"})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	t.Run("valid credentials", func(t *testing.T) {
		user, err := svc.Login(ctx, "lin@example.com", "password1")
		if err != nil {
			t.Fatalf("Login() error = %v", err)
		}
		if user.ID != registered.ID {
			t.Fatalf("expected user %s, got %s", registered.ID, user.ID)
		}
	})

	t.Run("wrong password", func(t *testing.T) {
		if _, err := svc.Login(ctx, "lin@example.com", "password2"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("expected ErrInvalidCredentials, got %v", err)
		}
	})

	t.Run("unknown email", func(t *testing.T) {
		if _, err := svc.Login(ctx, "ghost@example.com", "password1"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("expected ErrInvalidCredentials, got %v", err)
		}
	})

	t.Run("missing fields", func(t *testing.T) {
		var fieldErr *FieldError
		if _, err := svc.Login(ctx, "", ""); !errors.As(err, &fieldErr) {
			t.Fatalf("expected FieldError, got %v", err)
		}
	})
}
