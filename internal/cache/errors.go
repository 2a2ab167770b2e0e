package cache

import "errors"

var (
	// ErrNotFound is returned when an id is not cached.
	ErrNotFound = errors.New("bundle not cached")
	// ErrStaleWrite is returned when a fetched snapshot is provably older
	// than the cached state. The cache is left unchanged.
	ErrStaleWrite = errors.New("stale write rejected")
	// ErrDisposed is returned by operations on a disposed cache.
	ErrDisposed = errors.New("cache disposed")
)
