package randomness

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"popai/pkg/platform/sentinel"
)

func TestCryptoSourceNonces(t *testing.T) {
	a := NewNonceAdapter(NewCryptoSource())

	first, err := a.Nonce(context.Background())
	require.NoError(t, err)
	second, err := a.Nonce(context.Background())
	require.NoError(t, err)

	assert.Len(t, first, NonceSize)
	assert.Len(t, second, NonceSize)
	assert.False(t, bytes.Equal(first, second))
}

func TestCryptoSourceHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewCryptoSource().NextBytes(ctx, 4)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNonceAdapterFailures(t *testing.T) {
	t.Run("source error", func(t *testing.T) {
		boom := errors.New("entropy exhausted")
		a := NewNonceAdapter(SourceFunc(func(context.Context, int) ([]byte, error) { return nil, boom }))

		_, err := a.Nonce(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, sentinel.ErrUnavailable)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("short read", func(t *testing.T) {
		a := NewNonceAdapter(SourceFunc(func(context.Context, int) ([]byte, error) { return []byte{1, 2}, nil }))

		_, err := a.Nonce(context.Background())
		assert.ErrorIs(t, err, sentinel.ErrUnavailable)
	})

	t.Run("long read is truncated", func(t *testing.T) {
		a := NewNonceAdapter(SourceFunc(func(_ context.Context, n int) ([]byte, error) { return make([]byte, n*2), nil }))

		b, err := a.Nonce(context.Background())
		require.NoError(t, err)
		assert.Len(t, b, NonceSize)
		assert.Equal(t, NonceSize, cap(b))
	})
}
