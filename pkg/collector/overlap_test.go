package collector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fortiblox/stratus-reports/internal/types"
	"github.com/fortiblox/stratus-reports/pkg/metricsdb"
)

func TestOverlap(t *testing.T) {
	got := Overlap(1000, metricsdb.ReplayStats{LogTime: 1500, ReplayTotalElapsedUs: 200_000})
	require.Equal(t, 300.0, got)

	// A replay that finished before the leader logged overlaps negatively.
	got = Overlap(1000, metricsdb.ReplayStats{LogTime: 1100, ReplayTotalElapsedUs: 250_000})
	require.Equal(t, -150.0, got)
}

func TestCollectOverlap(t *testing.T) {
	chain := &fakeChain{
		getSlotLeaders: func(_ context.Context, start, limit uint64) ([]types.Pubkey, error) {
			require.Equal(t, uint64(6), limit)
			return leaders(stakePubkey, stakePubkey, stakePubkey, stakePubkey, budgetPubkey, budgetPubkey), nil
		},
	}
	metrics := &fakeMetrics{
		leader: map[uint64]metricsdb.LeaderStats{
			100: {LogTime: 1000, BankTimeMs: 400},
		},
		replay: map[replayKey]metricsdb.ReplayStats{
			{host: budgetPubkey, slot: 100}: {LogTime: 1500, ReplayTotalElapsedUs: 200_000},
			{host: hostPubkey, slot: 100}:   {LogTime: 1450, ReplayTotalElapsedUs: 300_000, TotalTransactions: 1200, TotalEntries: 64},
		},
	}

	w, buf := newBufferWriter(t, OverlapHeader)
	rows, err := CollectOverlap(context.Background(), newSources(chain, metrics), OverlapConfig{StartSlot: 100, Count: 2, Workers: 2}, w)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	records := readCSV(t, w, buf)
	require.Equal(t, [][]string{
		OverlapHeader,
		{"100", stakePubkey, "1200", "64", "1000", "400", "1500", "200000", "300", "1450", "300000", "150", "ok"},
		{"101", stakePubkey, "", "", "", "", "", "", "", "", "", "", "missing"},
	}, records)
}

func TestCollectOverlapZeroBankTime(t *testing.T) {
	chain := &fakeChain{
		getSlotLeaders: func(context.Context, uint64, uint64) ([]types.Pubkey, error) {
			return leaders(stakePubkey, stakePubkey, stakePubkey, stakePubkey, budgetPubkey), nil
		},
	}
	metrics := &fakeMetrics{
		leader: map[uint64]metricsdb.LeaderStats{100: {LogTime: 1000}},
	}

	rows, err := CollectOverlap(context.Background(), newSources(chain, metrics), OverlapConfig{StartSlot: 100, Count: 1}, discard{})
	require.NoError(t, err)
	require.Equal(t, StatusMissing, rows[0].Status)
	require.Nil(t, rows[0].LeaderStats)
}
