// Package store is the storage port over the key-value engine that holds every
// chat's queue and settings. Values are plain strings; the engine offers no
// transactions, so callers serialize read-modify-write sequences themselves.
package store

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a key does not exist
	ErrNotFound = errors.New("key not found")
	ErrClosed   = errors.New("store is closed")
)

// Store is the capability set the queue engine needs from a key-value engine.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	// Delete removes the given keys. Missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error
	// Rename moves a value to a new key, overwriting the destination.
	// ErrNotFound is returned when the source does not exist.
	Rename(ctx context.Context, from, to string) error
	// Keys lists keys matching a glob pattern ('*' and '?'), sorted.
	Keys(ctx context.Context, pattern string) ([]string, error)
	Close() error
}

// Exists reports whether key is present
func Exists(ctx context.Context, s Store, key string) (bool, error) {
	_, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetOptional returns the value of key, or "" when it does not exist
func GetOptional(ctx context.Context, s Store, key string) (string, error) {
	v, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return v, err
}
