//go:build integration

package export

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"popai/internal/audit"
	"popai/pkg/testutil/containers"
)

func TestKafkaPublisher_RoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	rp := containers.GetManager().GetRedpanda(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	const topic = "popai.audit.test"
	pub, err := NewKafkaPublisher(rp.Brokers, topic)
	require.NoError(t, err)
	defer pub.Close()

	require.NoError(t, pub.EnsureTopic(ctx, 1, 1))
	require.NoError(t, pub.EnsureTopic(ctx, 1, 1), "existing topic is fine")

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	entries := []audit.Entry{
		{Sequence: 1, ID: "01JAAAAAAAAAAAAAAAAAAAAAAA", Hash: "aa", RecordedAt: at},
		{Sequence: 2, ID: "01JBBBBBBBBBBBBBBBBBBBBBBB", Hash: "bb", RecordedAt: at},
	}
	require.NoError(t, pub.Publish(ctx, entries))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(rp.Brokers...),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	var got []record
	for len(got) < len(entries) {
		fetches := consumer.PollFetches(ctx)
		require.NoError(t, ctx.Err())
		fetches.EachRecord(func(r *kgo.Record) {
			var rec record
			require.NoError(t, json.Unmarshal(r.Value, &rec))
			require.Equal(t, rec.ID, string(r.Key))
			got = append(got, rec)
		})
	}
	require.Equal(t, "aa", got[0].Hash)
	require.Equal(t, uint64(2), got[1].Sequence)
	require.True(t, at.Equal(got[1].RecordedAt))
}
