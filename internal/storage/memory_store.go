package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

var _ ObjectStore = (*InMemoryObjectStore)(nil)

type (
	// StoredObject is an object held by InMemoryObjectStore.
	StoredObject struct {
		Data         []byte
		LastModified time.Time
		// Touches counts successful Touch calls.
		Touches int
	}

	// InMemoryObjectStore provides thread-safe in-memory object storage for local
	// runs and tests.
	InMemoryObjectStore struct {
		// objects maps "bucket/key" to the stored object
		objects map[string]*StoredObject
		now     func() time.Time
		mutex   sync.RWMutex
	}
)

// NewInMemoryObjectStore creates an empty in-memory object store.
func NewInMemoryObjectStore() *InMemoryObjectStore {
	return &InMemoryObjectStore{
		objects: make(map[string]*StoredObject),
		now:     time.Now,
	}
}

// Exists reports whether bucket/key exists.
func (s *InMemoryObjectStore) Exists(_ context.Context, bucket, key string) (bool, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	_, exists := s.objects[objectPath(bucket, key)]

	return exists, nil
}

// Get returns a reader over a copy of the object's content.
func (s *InMemoryObjectStore) Get(_ context.Context, bucket, key string) (io.ReadCloser, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	obj, exists := s.objects[objectPath(bucket, key)]
	if !exists {
		return nil, fmt.Errorf("%w: s3://%s/%s", ErrObjectNotFound, bucket, key)
	}

	return io.NopCloser(bytes.NewReader(bytes.Clone(obj.Data))), nil
}

// Put stores the whole body under bucket/key.
func (s *InMemoryObjectStore) Put(_ context.Context, bucket, key string, body io.Reader) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("%w: reading body for s3://%s/%s: %w", ErrObjectStoreFailed, bucket, key, err)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.objects[objectPath(bucket, key)] = &StoredObject{Data: data, LastModified: s.now()}

	return nil
}

// Touch refreshes the object's modification time, leaving its content intact.
func (s *InMemoryObjectStore) Touch(_ context.Context, bucket, key string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	obj, exists := s.objects[objectPath(bucket, key)]
	if !exists {
		return fmt.Errorf("%w: s3://%s/%s", ErrObjectNotFound, bucket, key)
	}

	obj.LastModified = s.now()
	obj.Touches++

	return nil
}

// Object returns a copy of the stored object.
func (s *InMemoryObjectStore) Object(bucket, key string) (StoredObject, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	obj, exists := s.objects[objectPath(bucket, key)]
	if !exists {
		return StoredObject{}, false
	}

	objCopy := *obj
	objCopy.Data = bytes.Clone(obj.Data)

	return objCopy, true
}

// Len returns the number of stored objects.
func (s *InMemoryObjectStore) Len() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return len(s.objects)
}

func objectPath(bucket, key string) string {
	return bucket + "/" + key
}
