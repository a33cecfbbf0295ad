// Package randomness adapts an entropy source into fixed-length nonces.
package randomness

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"

	"popai/pkg/platform/sentinel"
)

// NonceSize is the length in bytes of every challenge nonce.
const NonceSize = 16

// Source yields unpredictable bytes. Implementations may block.
type Source interface {
	NextBytes(ctx context.Context, n int) ([]byte, error)
}

// SourceFunc adapts a function into a Source.
type SourceFunc func(ctx context.Context, n int) ([]byte, error)

func (f SourceFunc) NextBytes(ctx context.Context, n int) ([]byte, error) { return f(ctx, n) }

// CryptoSource reads from the operating system CSPRNG.
type CryptoSource struct {
	reader io.Reader
}

func NewCryptoSource() *CryptoSource {
	return &CryptoSource{reader: rand.Reader}
}

func (s *CryptoSource) NextBytes(ctx context.Context, n int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(s.reader, buf); err != nil {
		return nil, fmt.Errorf("read entropy: %w", err)
	}
	return buf, nil
}

// NonceAdapter turns a Source into NonceSize-byte nonces. It holds no state.
type NonceAdapter struct {
	source Source
}

func NewNonceAdapter(source Source) *NonceAdapter {
	return &NonceAdapter{source: source}
}

// Nonce returns a fresh nonce. Source failures and short reads are reported
// as sentinel.ErrUnavailable.
func (a *NonceAdapter) Nonce(ctx context.Context) ([]byte, error) {
	b, err := a.source.NextBytes(ctx, NonceSize)
	if err != nil {
		return nil, fmt.Errorf("randomness source: %w: %w", sentinel.ErrUnavailable, err)
	}
	if len(b) < NonceSize {
		return nil, fmt.Errorf("randomness source returned %d bytes: %w", len(b), sentinel.ErrUnavailable)
	}
	return b[:NonceSize:NonceSize], nil
}
