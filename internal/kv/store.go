// Package kv abstracts the browser-localStorage role behind a small
// key-value interface so the cache and sync queue can target SQLite on disk
// or an in-memory map in tests. The store is not transactional; last writer
// wins at the key level.
package kv

import "context"

// Store is a flat key-value store. Get returns an error matching
// common.ErrNotFound for missing keys.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error

	// Keys returns all stored keys with the given prefix, sorted.
	Keys(ctx context.Context, prefix string) ([]string, error)

	Close() error
}
