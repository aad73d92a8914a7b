package storage

import (
	"fmt"
	"strings"
)

const (
	KindMemory = "memory"
	KindFile   = "file"
	KindSQLite = "sqlite"
	KindRedis  = "redis"
)

// Options selects and configures a backend for Open.
type Options struct {
	Kind       string
	FilePath   string
	SQLitePath string
	Redis      RedisOptions
}

func Open(opts Options) (Backend, error) {
	switch strings.ToLower(opts.Kind) {
	case KindMemory:
		return NewMemoryBackend(), nil
	case KindFile:
		return NewFileBackend(opts.FilePath)
	case KindSQLite:
		return NewSQLiteBackend(opts.SQLitePath)
	case KindRedis:
		return NewRedisBackend(opts.Redis)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", opts.Kind)
	}
}
