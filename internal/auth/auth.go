package auth

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUserNotFound       = errors.New("auth: user not found")
	ErrEmailTaken         = errors.New("auth: email already registered")
	ErrInvalidCredentials = errors.New("auth: invalid email or password")
	ErrWeakPassword       = errors.New("auth: password too short")
)

// MinPasswordLength is the shortest password Register accepts.
const MinPasswordLength = 8

// User is a registered account. PasswordHash is persisted by the repository
// but never leaves the server; use Public for responses.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	PasswordHash string    `json:"passwordHash,omitempty"`
}

// Public returns u without its credential.
func (u User) Public() User {
	u.PasswordHash = ""
	return u
}

type Repository interface {
	LoadAll() ([]User, error)
	Upsert(user User) error
	Remove(userID string) error
}

// Service is the account registry. The in-memory view is authoritative for
// reads; writes go through to the repository when one is configured.
type Service struct {
	mu    sync.RWMutex
	repo  Repository
	users map[string]User
	now   func() time.Time
}

func NewWithRepo(repo Repository) (*Service, error) {
	s := &Service{repo: repo, users: make(map[string]User), now: time.Now}
	if repo != nil {
		users, err := repo.LoadAll()
		if err != nil {
			return nil, fmt.Errorf("load users: %w", err)
		}
		for _, u := range users {
			s.users[u.ID] = u
		}
	}
	return s, nil
}

// Register creates an account for email with a bcrypt hash of password.
// An email that is already registered yields ErrEmailTaken.
func (s *Service) Register(email, name, password string) (User, error) {
	email = normalizeEmail(email)
	if email == "" {
		return User{}, fmt.Errorf("email is required")
	}
	if len(password) < MinPasswordLength {
		return User{}, ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmailLocked(email); ok {
		return User{}, ErrEmailTaken
	}
	u := User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         strings.TrimSpace(name),
		CreatedAt:    s.now().UTC(),
		PasswordHash: string(hash),
	}
	if s.repo != nil {
		if err := s.repo.Upsert(u); err != nil {
			return User{}, fmt.Errorf("persist user: %w", err)
		}
	}
	s.users[u.ID] = u
	return u, nil
}

// Authenticate returns the account for email when password matches its
// stored hash. Unknown emails and wrong passwords both yield
// ErrInvalidCredentials.
func (s *Service) Authenticate(email, password string) (User, error) {
	s.mu.RLock()
	u, ok := s.byEmailLocked(normalizeEmail(email))
	s.mu.RUnlock()
	if !ok || u.PasswordHash == "" {
		return User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return User{}, ErrInvalidCredentials
	}
	return u, nil
}

func (s *Service) byEmailLocked(email string) (User, bool) {
	for _, u := range s.users {
		if u.Email == email {
			return u, true
		}
	}
	return User{}, false
}

func (s *Service) Get(userID string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

func (s *Service) FindByEmail(email string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.byEmailLocked(normalizeEmail(email)); ok {
		return u, nil
	}
	return User{}, ErrUserNotFound
}

func (s *Service) Remove(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; !ok {
		return ErrUserNotFound
	}
	if s.repo != nil {
		if err := s.repo.Remove(userID); err != nil {
			return fmt.Errorf("remove user: %w", err)
		}
	}
	delete(s.users, userID)
	return nil
}

// List returns the accounts ordered by creation time.
func (s *Service) List() []User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

type userKey struct{}

// WithUser attaches the authenticated user to ctx.
func WithUser(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, userKey{}, u)
}

func UserFromContext(ctx context.Context) (User, bool) {
	u, ok := ctx.Value(userKey{}).(User)
	return u, ok
}

// ContextSource reports the user stored in the request context.
type ContextSource struct{}

func (ContextSource) CurrentUser(ctx context.Context) (*User, error) {
	u, ok := UserFromContext(ctx)
	if !ok {
		return nil, nil
	}
	return &u, nil
}

// StaticSource always reports the same user id; blank means nobody is logged in.
type StaticSource string

func (s StaticSource) CurrentUser(context.Context) (*User, error) {
	id := strings.TrimSpace(string(s))
	if id == "" {
		return nil, nil
	}
	return &User{ID: id}, nil
}
