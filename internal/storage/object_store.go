// Package storage provides the object stores and the Postgres run ledger used by
// the reconciliation handlers.
package storage

import (
	"context"
	"errors"
	"io"
)

var (
	// ErrObjectNotFound is returned by Get and Touch when the object does not exist.
	ErrObjectNotFound = errors.New("object not found")
	// ErrObjectStoreFailed wraps unexpected object store failures.
	ErrObjectStoreFailed = errors.New("object store operation failed")
)

// ObjectStore is the bucket/key storage capability shared by all handlers.
type ObjectStore interface {
	// Exists reports whether bucket/key exists.
	Exists(ctx context.Context, bucket, key string) (bool, error)
	// Get opens the object for reading. Callers must close the returned reader.
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	// Put writes body to bucket/key, replacing any existing object.
	Put(ctx context.Context, bucket, key string, body io.Reader) error
	// Touch rewrites the object's metadata in place. The content is preserved,
	// the last-modified time changes and a new object-created event is emitted.
	Touch(ctx context.Context, bucket, key string) error
}

// ReadAll fetches the whole object at bucket/key.
func ReadAll(ctx context.Context, store ObjectStore, bucket, key string) ([]byte, error) {
	body, err := store.Get(ctx, bucket, key)
	if err != nil {
		return nil, err
	}

	defer func() {
		_ = body.Close()
	}()

	return io.ReadAll(body)
}
