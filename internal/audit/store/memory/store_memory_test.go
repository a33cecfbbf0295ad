package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"popai/internal/audit"
)

func TestInMemoryStore_AppendAndList(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for i := range 5 {
		e, err := s.Append(ctx, audit.Entry{ID: fmt.Sprintf("id-%d", i), Hash: fmt.Sprintf("h%d", i), RecordedAt: now})
		require.NoError(t, err)
		assert.Equal(t, uint64(i+1), e.Sequence)
	}

	page, err := s.List(ctx, 1, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "h1", page[0].Hash)
	assert.Equal(t, "h2", page[1].Hash)

	tail, err := s.List(ctx, 4, 10)
	require.NoError(t, err)
	assert.Len(t, tail, 1)

	past, err := s.List(ctx, 9, 10)
	require.NoError(t, err)
	assert.Empty(t, past)

	n, err := s.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	s.Clear()
	n, _ = s.Len(ctx)
	assert.Zero(t, n)
}

func TestInMemoryStore_ConcurrentAppend(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Append(ctx, audit.Entry{ID: fmt.Sprintf("id-%d", i)})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	all, err := s.List(ctx, 0, 100)
	require.NoError(t, err)
	require.Len(t, all, 50)
	for i, e := range all {
		assert.Equal(t, uint64(i+1), e.Sequence)
	}
}
