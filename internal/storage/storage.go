package storage

import (
	"context"
	"errors"
	"sort"
	"strings"
)

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = errors.New("storage: key not found")

type OpKind int

const (
	OpSet OpKind = iota
	OpRemove
)

// Op is a single mutation inside an atomic batch.
type Op struct {
	Kind  OpKind
	Key   string
	Value string
}

func SetOp(key, value string) Op { return Op{Kind: OpSet, Key: key, Value: value} }
func RemoveOp(key string) Op     { return Op{Kind: OpRemove, Key: key} }

// Backend is a flat string key-value store holding UTF-8 JSON payloads.
// It knows nothing about namespaces; key composition belongs to callers.
// Implementations must be safe for concurrent use.
//
// Get returns ErrNotFound for an absent key. Remove and MultiRemove treat
// absent keys as already removed. Keys returns the keys starting with prefix
// in ascending order; an empty prefix lists everything. Apply commits every
// op or none of them.
type Backend interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
	MultiRemove(ctx context.Context, keys []string) error
	Apply(ctx context.Context, ops []Op) error
	Close() error
}

// applyToMap replays ops onto m. Shared by the map-backed implementations.
func applyToMap(m map[string]string, ops []Op) {
	for _, op := range ops {
		switch op.Kind {
		case OpSet:
			m[op.Key] = op.Value
		case OpRemove:
			delete(m, op.Key)
		}
	}
}

func keysWithPrefix(m map[string]string, prefix string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
