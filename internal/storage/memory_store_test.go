package storage

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryObjectStore_PutGetExists(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	ctx := context.Background()
	store := NewInMemoryObjectStore()

	exists, err := store.Exists(ctx, "hls-global", "S30/data/2124237/g/g.json")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, store.Put(ctx, "hls-global", "S30/data/2124237/g/g.json", strings.NewReader(`{"a":1}`)))

	exists, err = store.Exists(ctx, "hls-global", "S30/data/2124237/g/g.json")
	require.NoError(t, err)
	assert.True(t, exists)

	data, err := ReadAll(ctx, store, "hls-global", "S30/data/2124237/g/g.json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(data))

	// Buckets are separate namespaces.
	exists, err = store.Exists(ctx, "hls-historical", "S30/data/2124237/g/g.json")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestInMemoryObjectStore_GetMissing(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	_, err := NewInMemoryObjectStore().Get(context.Background(), "b", "k")

	require.ErrorIs(t, err, ErrObjectNotFound)
}

func TestInMemoryObjectStore_TouchPreservesContent(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	ctx := context.Background()
	store := NewInMemoryObjectStore()
	clock := time.Date(2024, 8, 27, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return clock }

	require.NoError(t, store.Put(ctx, "b", "k", strings.NewReader("trigger")))

	clock = clock.Add(time.Hour)

	require.NoError(t, store.Touch(ctx, "b", "k"))
	require.NoError(t, store.Touch(ctx, "b", "k"))

	obj, ok := store.Object("b", "k")
	require.True(t, ok)
	assert.Equal(t, "trigger", string(obj.Data))
	assert.Equal(t, clock, obj.LastModified)
	assert.Equal(t, 2, obj.Touches)
	assert.Equal(t, 1, store.Len())
}

func TestInMemoryObjectStore_TouchMissing(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	err := NewInMemoryObjectStore().Touch(context.Background(), "b", "k")

	require.ErrorIs(t, err, ErrObjectNotFound)
}

func TestInMemoryObjectStore_ObjectReturnsCopy(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	store := NewInMemoryObjectStore()
	require.NoError(t, store.Put(context.Background(), "b", "k", strings.NewReader("abc")))

	obj, _ := store.Object("b", "k")
	obj.Data[0] = 'x'

	again, _ := store.Object("b", "k")
	assert.Equal(t, "abc", string(again.Data))
}

func TestInMemoryObjectStore_ConcurrentTouch(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	ctx := context.Background()
	store := NewInMemoryObjectStore()
	require.NoError(t, store.Put(ctx, "b", "k", strings.NewReader("x")))

	var wg sync.WaitGroup

	for range 50 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_ = store.Touch(ctx, "b", "k")
		}()
	}

	wg.Wait()

	obj, _ := store.Object("b", "k")
	assert.Equal(t, 50, obj.Touches)
}
