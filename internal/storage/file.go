package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileBackend keeps the whole store in a single JSON object file. Every
// mutation rewrites the file through a temp file + rename, so a crash never
// leaves a half-written store behind.
type FileBackend struct {
	path string
	mu   sync.Mutex
}

func NewFileBackend(path string) (*FileBackend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to ensure store dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to init store file: %w", err)
	}
	_ = f.Close()
	b := &FileBackend{path: path}
	// fail early on a file we cannot parse rather than on the first request
	if _, err := b.loadUnlocked(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *FileBackend) Get(_ context.Context, key string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, err := b.loadUnlocked()
	if err != nil {
		return "", err
	}
	v, ok := data[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (b *FileBackend) Set(ctx context.Context, key, value string) error {
	return b.Apply(ctx, []Op{SetOp(key, value)})
}

func (b *FileBackend) Remove(ctx context.Context, key string) error {
	return b.Apply(ctx, []Op{RemoveOp(key)})
}

func (b *FileBackend) Keys(_ context.Context, prefix string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, err := b.loadUnlocked()
	if err != nil {
		return nil, err
	}
	return keysWithPrefix(data, prefix), nil
}

func (b *FileBackend) MultiRemove(ctx context.Context, keys []string) error {
	ops := make([]Op, 0, len(keys))
	for _, k := range keys {
		ops = append(ops, RemoveOp(k))
	}
	return b.Apply(ctx, ops)
}

func (b *FileBackend) Apply(_ context.Context, ops []Op) error {
	if len(ops) == 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	data, err := b.loadUnlocked()
	if err != nil {
		return err
	}
	applyToMap(data, ops)
	return b.saveUnlocked(data)
}

func (b *FileBackend) Close() error { return nil }

func (b *FileBackend) loadUnlocked() (map[string]string, error) {
	raw, err := os.ReadFile(b.path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, fmt.Errorf("read store: %w", err)
	}
	data := make(map[string]string)
	if len(bytes.TrimSpace(raw)) == 0 {
		return data, nil
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decode store %s: %w", b.path, err)
	}
	return data, nil
}

func (b *FileBackend) saveUnlocked(data map[string]string) error {
	tmp, err := os.CreateTemp(filepath.Dir(b.path), filepath.Base(b.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("encode store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(tmpName, b.path); err != nil {
		return fmt.Errorf("replace store: %w", err)
	}
	return nil
}
