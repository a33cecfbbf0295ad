package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"popai/internal/challenge/models"
	"popai/pkg/domain"
	"popai/pkg/platform/codec"
	"popai/pkg/platform/sentinel"
)

var (
	consumeDurationMs = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "popai_challenge_redis_consume_duration_ms",
		Help:    "Latency of atomic challenge consume (GETDEL) in milliseconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25},
	})
)

const defaultKeyPrefix = "challenge:"

// record is the wire form stored under each key. Times are unix nanoseconds
// so precision survives the round trip.
type record struct {
	ID         []byte `cbor:"1,keyasint"`
	PromptKind string `cbor:"2,keyasint"`
	PromptText string `cbor:"3,keyasint"`
	Nonce      []byte `cbor:"4,keyasint"`
	IssuedTo   string `cbor:"5,keyasint"`
	IssuedAt   int64  `cbor:"6,keyasint"`
	ExpiresAt  int64  `cbor:"7,keyasint"`
}

// RedisChallengeStore keeps challenges in Redis with a key TTL equal to the
// challenge lifetime. Consume uses GETDEL, which reads and deletes in one
// atomic command, so a challenge can be consumed by at most one caller across
// every instance sharing the Redis.
type RedisChallengeStore struct {
	client    *redis.Client
	keyPrefix string
}

// Option configures a RedisChallengeStore.
type Option func(*RedisChallengeStore)

// WithKeyPrefix namespaces keys, e.g. "popai:".
func WithKeyPrefix(prefix string) Option {
	return func(s *RedisChallengeStore) {
		s.keyPrefix = prefix + defaultKeyPrefix
	}
}

// New constructs a Redis-backed challenge store.
func New(client *redis.Client, opts ...Option) *RedisChallengeStore {
	s := &RedisChallengeStore{client: client, keyPrefix: defaultKeyPrefix}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *RedisChallengeStore) key(id domain.ChallengeID) string {
	return s.keyPrefix + id.String()
}

// Save stores the challenge with SET NX and a TTL matching its expiry.
func (s *RedisChallengeStore) Save(ctx context.Context, c *models.Challenge) error {
	ttl := time.Until(c.ExpiresAt)
	if ttl <= 0 {
		ttl = time.Millisecond
	}
	id := [16]byte(c.ID)
	payload, err := codec.Marshal(record{
		ID:         id[:],
		PromptKind: string(c.PromptKind),
		PromptText: c.PromptText,
		Nonce:      c.Nonce,
		IssuedTo:   c.IssuedTo.String(),
		IssuedAt:   c.IssuedAt.UnixNano(),
		ExpiresAt:  c.ExpiresAt.UnixNano(),
	})
	if err != nil {
		return fmt.Errorf("encode challenge: %w", err)
	}
	ok, err := s.client.SetNX(ctx, s.key(c.ID), payload, ttl).Result()
	if err != nil {
		return fmt.Errorf("save challenge: %w", err)
	}
	if !ok {
		return fmt.Errorf("challenge %s already exists: %w", c.ID, sentinel.ErrConflict)
	}
	return nil
}

// Consume atomically removes and returns the challenge.
func (s *RedisChallengeStore) Consume(ctx context.Context, id domain.ChallengeID, now time.Time) (*models.Challenge, error) {
	start := time.Now()
	defer func() {
		consumeDurationMs.Observe(float64(time.Since(start).Microseconds()) / 1000.0)
	}()

	payload, err := s.client.GetDel(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("challenge not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("consume challenge: %w", err)
	}

	var rec record
	if err := codec.Unmarshal(payload, &rec); err != nil {
		return nil, fmt.Errorf("decode challenge: %w", err)
	}
	c, err := rec.toModel()
	if err != nil {
		return nil, err
	}
	// Redis expiry has millisecond granularity; the stored deadline is authoritative.
	if c.IsExpired(now) {
		return nil, fmt.Errorf("challenge expired at %s: %w", c.ExpiresAt.Format(time.RFC3339), sentinel.ErrExpired)
	}
	return c, nil
}

// DeleteExpired is a no-op: Redis expires keys on its own.
func (s *RedisChallengeStore) DeleteExpired(context.Context, time.Time) (int, error) {
	return 0, nil
}

func (r record) toModel() (*models.Challenge, error) {
	if len(r.ID) != 16 {
		return nil, fmt.Errorf("decode challenge: bad id length %d: %w", len(r.ID), sentinel.ErrInvalidState)
	}
	kind, err := models.ParsePromptKind(r.PromptKind)
	if err != nil {
		return nil, fmt.Errorf("decode challenge: %w: %w", sentinel.ErrInvalidState, err)
	}
	return &models.Challenge{
		ID:         domain.ChallengeID(r.ID),
		PromptKind: kind,
		PromptText: r.PromptText,
		Nonce:      r.Nonce,
		IssuedTo:   domain.Identity(r.IssuedTo),
		IssuedAt:   time.Unix(0, r.IssuedAt).UTC(),
		ExpiresAt:  time.Unix(0, r.ExpiresAt).UTC(),
	}, nil
}
