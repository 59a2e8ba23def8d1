package signallog

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "signals.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestAppendAndRecent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	recs := []Record{
		{Timestamp: 1000, Symbol: "btc", Kind: "ENTER_LONG", Price: 50000, Amount: 0.1, Confidence: 0.8, Reason: "long breakout", VWM: 0.004, VolumeRatio: 2.1},
		{Timestamp: 2000, Symbol: "BTC", Kind: "NONE", Price: 50100, Reason: "momentum below threshold", VWM: 0.001},
		{Timestamp: 3000, Symbol: "ETH", Kind: "ENTER_SHORT", Price: 3000, Amount: 1, VWM: -0.005, VolumeRatio: 1.8},
	}
	for _, r := range recs {
		require.NoError(t, s.Append(ctx, r))
	}

	all, err := s.Recent(ctx, Query{Limit: 10})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "ETH", all[0].Symbol, "newest first")

	btc, err := s.Recent(ctx, Query{Symbol: "btc", Limit: 10})
	require.NoError(t, err)
	require.Len(t, btc, 2)
	assert.Equal(t, "NONE", btc[0].Kind)
	assert.Equal(t, "ENTER_LONG", btc[1].Kind)
	assert.Equal(t, 0.004, btc[1].VWM)

	entries, err := s.Recent(ctx, Query{Kind: "ENTER_SHORT", Limit: 10})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "ETH", entries[0].Symbol)
}

func TestRecentLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Append(ctx, Record{Timestamp: int64(i + 1), Symbol: "SOL", Kind: "NONE"}))
	}
	out, err := s.Recent(ctx, Query{Symbol: "SOL", Limit: 2})
	require.NoError(t, err)
	assert.Len(t, out, 2)
	assert.Equal(t, int64(5), out[0].Timestamp)
}

func TestClosedStoreErrors(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Close())

	assert.Error(t, s.Append(context.Background(), Record{Symbol: "BTC", Kind: "NONE"}))
	_, err := s.Recent(context.Background(), Query{})
	assert.Error(t, err)
}
