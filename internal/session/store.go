// Package session is the namespaced storage service: typed repositories for
// scan history, advisor conversations, per-conversation message logs, user
// preferences and interaction/feedback logs, all persisted as JSON under keys
// of the form "<namespace prefix><base name>".
//
// Every operation takes the caller's identity.Namespace explicitly. Reads of
// an absent key return the domain default with a nil error; a stored value
// that no longer parses is logged and treated as absent; backend failures are
// returned as errors matching ErrUnavailable.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"coffeeleaf/internal/logger"
	"coffeeleaf/internal/storage"
)

var ErrUnavailable = errors.New("session: storage unavailable")

// IsUnavailable reports whether err came from the storage backend rather
// than from the caller's input.
func IsUnavailable(err error) bool { return errors.Is(err, ErrUnavailable) }

type unavailableError struct {
	op  string
	key string
	err error
}

func (e *unavailableError) Error() string {
	return fmt.Sprintf("session: %s %s: %v", e.op, e.key, e.err)
}

func (e *unavailableError) Unwrap() []error { return []error{ErrUnavailable, e.err} }

func unavailable(op, key string, err error) error {
	return &unavailableError{op: op, key: key, err: err}
}

const (
	DefaultScanLimit        = 50
	DefaultInteractionLimit = 100
)

type Store struct {
	backend   storage.Backend
	log       *logger.Logger
	locks     *keyLocks
	scanLimit int
	now       func() time.Time
}

type Option func(*Store)

func WithScanLimit(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.scanLimit = n
		}
	}
}

// WithClock overrides time.Now for timestamps and generated ids.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func New(backend storage.Backend, log *logger.Logger, opts ...Option) *Store {
	s := &Store{
		backend:   backend,
		log:       logger.OrNop(log).With("component", "session"),
		locks:     newKeyLocks(),
		scanLimit: DefaultScanLimit,
		now:       time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Backend exposes the underlying key-value store for diagnostics.
func (s *Store) Backend() storage.Backend { return s.backend }

func (s *Store) timestamp() string {
	return s.now().UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

// load decodes key into a fresh default. Absent and malformed values both
// yield the default.
func load[T any](ctx context.Context, s *Store, key string, newDefault func() T) (T, error) {
	raw, err := s.backend.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return newDefault(), nil
	}
	if err != nil {
		s.log.Error("read failed", "key", key, "error", err)
		var zero T
		return zero, unavailable("read", key, err)
	}
	if strings.TrimSpace(raw) == "null" {
		return newDefault(), nil
	}
	v := newDefault()
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		s.log.Warn("discarding malformed value", "key", key, "error", err)
		return newDefault(), nil
	}
	return v, nil
}

func (s *Store) encode(key string, v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("session: encode %s: %w", key, err)
	}
	return string(b), nil
}

func (s *Store) save(ctx context.Context, key string, v any) error {
	raw, err := s.encode(key, v)
	if err != nil {
		return err
	}
	if err := s.backend.Set(ctx, key, raw); err != nil {
		s.log.Error("write failed", "key", key, "error", err)
		return unavailable("write", key, err)
	}
	return nil
}

func (s *Store) remove(ctx context.Context, key string) error {
	if err := s.backend.Remove(ctx, key); err != nil {
		s.log.Error("remove failed", "key", key, "error", err)
		return unavailable("remove", key, err)
	}
	return nil
}

func (s *Store) apply(ctx context.Context, ops []storage.Op) error {
	if err := s.backend.Apply(ctx, ops); err != nil {
		key := ""
		if len(ops) > 0 {
			key = ops[0].Key
		}
		s.log.Error("batch write failed", "first_key", key, "ops", len(ops), "error", err)
		return unavailable("batch", key, err)
	}
	return nil
}

// update runs a locked read-modify-write cycle on one key.
func update[T any](ctx context.Context, s *Store, key string, newDefault func() T, fn func(T) (T, error)) (T, error) {
	unlock := s.locks.lock(key)
	defer unlock()

	cur, err := load(ctx, s, key, newDefault)
	if err != nil {
		return cur, err
	}
	next, err := fn(cur)
	if err != nil {
		var zero T
		return zero, err
	}
	if err := s.save(ctx, key, next); err != nil {
		var zero T
		return zero, err
	}
	return next, nil
}
