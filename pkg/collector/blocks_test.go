package collector

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fortiblox/stratus-reports/internal/rpctest"
	"github.com/fortiblox/stratus-reports/internal/types"
	"github.com/fortiblox/stratus-reports/pkg/metricsdb"
	"github.com/fortiblox/stratus-reports/pkg/rpcfetch"
)

func TestSummarizeBlock(t *testing.T) {
	vote := types.MustPubkeyFromBase58(votePubkey)
	stake := types.MustPubkeyFromBase58(stakePubkey)

	block := &rpcfetch.Block{
		Transactions: []rpcfetch.Transaction{
			{AccountKeys: []types.Pubkey{stake, vote}, IsVote: true, ComputeUnitsConsumed: 2100},
			{AccountKeys: []types.Pubkey{stake}, ComputeUnitsConsumed: 24_000_000},
		},
		Rewards: []rpcfetch.Reward{
			{Lamports: 7000, RewardType: rpcfetch.RewardTypeFee},
			{Lamports: 3000, RewardType: rpcfetch.RewardTypeRent},
			{Lamports: 2_000_000_000, RewardType: rpcfetch.RewardTypeStaking},
			{Lamports: 40_000, RewardType: rpcfetch.RewardTypeVoting},
		},
	}

	s := SummarizeBlock(block)
	require.Equal(t, uint64(2), s.TotalTxn)
	require.Equal(t, uint64(1), s.VoteTxn)
	require.Equal(t, uint64(1), s.OtherTxn)
	require.Equal(t, uint64(24_002_100), s.TotalCU)
	require.Equal(t, 0.5, s.CUX)
	require.Equal(t, int64(7000), s.RewardLamports, "only the fee reward counts")
	require.Equal(t, FeeRewards(block), s.RewardLamports)

	require.Equal(t, BlockSummary{}, SummarizeBlock(nil))
}

// The block for slot 100 has three transactions, one of which is a vote,
// consuming 100, 200 and 300 compute units, and a 5000 lamport fee reward.
func blockHandler(method string, params []interface{}) (interface{}, error) {
	switch method {
	case "getSlotLeaders":
		start, limit := rpctest.Uint(params, 0), rpctest.Uint(params, 1)
		out := make([]string, limit)
		for i := range out {
			if (start+uint64(i))%2 == 0 {
				out[i] = stakePubkey
			} else {
				out[i] = budgetPubkey
			}
		}
		return out, nil
	case "getBlock":
		slot := rpctest.Uint(params, 0)
		return rpctest.Block(slot-1,
			[]map[string]interface{}{
				rpctest.Tx("sig1", 100, stakePubkey, votePubkey),
				rpctest.Tx("sig2", 200, stakePubkey, budgetPubkey),
				rpctest.Tx("sig3", 300, budgetPubkey),
			},
			[]map[string]interface{}{
				rpctest.Reward(hostPubkey, 5000, "Fee"),
			}), nil
	}
	return nil, errors.New("unexpected method " + method)
}

func TestBlockAnalyzerEndToEnd(t *testing.T) {
	srv := rpctest.NewServer(t, blockHandler)
	client := rpcfetch.NewRPCClient(rpcfetch.NewFailoverPool([]string{srv.URL}), 5*time.Second)

	w, buf := newBufferWriter(t, BlockHeader)
	rows, err := NewBlockAnalyzer(newSources(client, nil), BlockConfig{StartSlot: 100, Count: 1}).Run(context.Background(), w)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	records := readCSV(t, w, buf)
	require.Equal(t, [][]string{
		BlockHeader,
		{"100", stakePubkey, "3", "1", "2", "600", "0", "0", "0", "5000", "0.000005", "ok"},
	}, records)

	require.Equal(t, 1, srv.Calls("getSlotLeaders"))
	require.Equal(t, 1, srv.Calls("getBlock"))
}

func TestBlockAnalyzerMetrics(t *testing.T) {
	chain := &fakeChain{
		getSlotLeaders: func(_ context.Context, start, limit uint64) ([]types.Pubkey, error) {
			require.Equal(t, uint64(100), start)
			require.Equal(t, uint64(5), limit)
			return leaders(stakePubkey, stakePubkey, stakePubkey, stakePubkey, budgetPubkey), nil
		},
		getBlock: func(_ context.Context, slot uint64) (*rpcfetch.Block, error) {
			return &rpcfetch.Block{Slot: slot}, nil
		},
	}
	metrics := &fakeMetrics{
		leader: map[uint64]metricsdb.LeaderStats{100: {LogTime: 1000, BankTimeMs: 412.5}},
		replay: map[replayKey]metricsdb.ReplayStats{
			{host: budgetPubkey, slot: 100}: {LogTime: 1500, ReplayTotalElapsedUs: 123456},
		},
	}

	w, buf := newBufferWriter(t, BlockHeader)
	_, err := NewBlockAnalyzer(newSources(chain, metrics), BlockConfig{StartSlot: 100, Count: 1}).Run(context.Background(), w)
	require.NoError(t, err)

	records := readCSV(t, w, buf)
	require.Len(t, records, 2)
	require.Equal(t, "412.5", records[1][7])
	require.Equal(t, "123.46", records[1][8])
}

func TestBlockAnalyzerOrderedWithWorkers(t *testing.T) {
	var inflight, peak atomic.Int32
	chain := &fakeChain{
		getSlotLeaders: func(_ context.Context, _, limit uint64) ([]types.Pubkey, error) {
			out := make([]types.Pubkey, limit)
			for i := range out {
				out[i] = types.MustPubkeyFromBase58(stakePubkey)
			}
			return out, nil
		},
		getBlock: func(_ context.Context, slot uint64) (*rpcfetch.Block, error) {
			n := inflight.Add(1)
			defer inflight.Add(-1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			// Earlier slots finish last.
			time.Sleep(time.Duration(208-slot) * 5 * time.Millisecond)
			if slot == 203 {
				return nil, rpcfetch.ErrSlotSkipped
			}
			return &rpcfetch.Block{Slot: slot}, nil
		},
	}

	var statuses atomic.Int32
	src := newSources(chain, nil)
	src.OnRow = func(string) { statuses.Add(1) }

	w, buf := newBufferWriter(t, BlockHeader)
	rows, err := NewBlockAnalyzer(src, BlockConfig{StartSlot: 200, Count: 8, Workers: 4}).Run(context.Background(), w)
	require.NoError(t, err)
	require.Len(t, rows, 8)
	require.LessOrEqual(t, peak.Load(), int32(4))
	require.Equal(t, int32(8), statuses.Load())

	records := readCSV(t, w, buf)
	require.Len(t, records, 9)
	for i, rec := range records[1:] {
		require.Equal(t, strconv.Itoa(200+i), rec[0])
		want := StatusOK
		if i == 3 {
			want = StatusMissing
		}
		require.Equal(t, want, rec[len(rec)-1])
		require.Equal(t, uint64(200+i), rows[i].Slot)
	}
}

func TestBlockAnalyzerFailedSlot(t *testing.T) {
	srv := rpctest.NewServer(t, func(method string, params []interface{}) (interface{}, error) {
		if method == "getSlotLeaders" {
			return []string{stakePubkey, stakePubkey, stakePubkey, stakePubkey, stakePubkey}, nil
		}
		return nil, errors.New("node is behind")
	})
	client := rpcfetch.NewRPCClient(rpcfetch.NewFailoverPool([]string{srv.URL}), 5*time.Second)

	w, buf := newBufferWriter(t, BlockHeader)
	rows, err := NewBlockAnalyzer(newSources(client, nil), BlockConfig{StartSlot: 7, Count: 1}).Run(context.Background(), w)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, rows[0].Status)
	require.Equal(t, 3, srv.Calls("getBlock"))

	records := readCSV(t, w, buf)
	require.Equal(t, []string{"7", stakePubkey, "0", "0", "0", "0", "0", "0", "0", "0", "0", "failed"}, records[1])
}

func TestBlockAnalyzerWithoutLeaders(t *testing.T) {
	chain := &fakeChain{
		getBlock: func(_ context.Context, slot uint64) (*rpcfetch.Block, error) {
			return &rpcfetch.Block{Slot: slot}, nil
		},
	}
	rows, err := NewBlockAnalyzer(newSources(chain, &fakeMetrics{}), BlockConfig{StartSlot: 1, Count: 2}).Run(context.Background(), discard{})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, r := range rows {
		require.True(t, r.Leader.IsZero())
		require.Equal(t, StatusOK, r.Status)
	}
}

func TestTotalBlocks(t *testing.T) {
	rows := []BlockRow{
		{Status: StatusOK, Summary: BlockSummary{TotalTxn: 3, VoteTxn: 1, TotalCU: 600, RewardLamports: 5000}},
		{Status: StatusMissing},
		{Status: StatusFailed},
		{Status: StatusOK, Summary: BlockSummary{TotalTxn: 2, TotalCU: 50, RewardLamports: 10}},
	}
	got := TotalBlocks(rows)
	require.Equal(t, BlockTotals{
		Slots: 4, Produced: 2, Missing: 1, Failed: 1,
		TotalTxn: 5, VoteTxn: 1, TotalCU: 650, RewardLamports: 5010,
	}, got)
}

type discard struct{}

func (discard) Write([]string) error { return nil }
