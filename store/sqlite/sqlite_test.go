package sqlite

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PAIR-code/deliberate-lab-sub006/store"
)

type doc struct {
	Value string `json:"value"`
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	var missing doc
	assert.ErrorIs(t, s.Get(ctx, "a/b", &missing), store.ErrNotFound)

	require.NoError(t, s.Set(ctx, "a/b", doc{Value: "one"}))
	var got doc
	require.NoError(t, s.Get(ctx, "a/b", &got))
	assert.Equal(t, "one", got.Value)

	require.NoError(t, s.Set(ctx, "a/b", doc{Value: "two"}))
	require.NoError(t, s.Get(ctx, "a/b", &got))
	assert.Equal(t, "two", got.Value)
}

func TestSQLiteCreateIsFirstWriterWins(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Create(ctx, "a/b", doc{Value: "first"}))
	assert.ErrorIs(t, s.Create(ctx, "a/b", doc{Value: "second"}), store.ErrAlreadyExists)

	var got doc
	require.NoError(t, s.Get(ctx, "a/b", &got))
	assert.Equal(t, "first", got.Value)
}

func TestSQLiteCreateContention(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	const workers = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Create(ctx, "contended/key", doc{Value: "w"}); err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
}

func TestSQLiteListDirectChildrenOnly(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Set(ctx, "chats/m2", doc{Value: "2"}))
	require.NoError(t, s.Set(ctx, "chats/m1", doc{Value: "1"}))
	require.NoError(t, s.Set(ctx, "chats/m1/replies/r1", doc{Value: "nested"}))

	var paths []string
	err := s.List(ctx, "chats", func(path string, data []byte) error {
		paths = append(paths, path)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"chats/m1", "chats/m2"}, paths)
}
