package collector

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fortiblox/stratus-reports/internal/types"
	"github.com/fortiblox/stratus-reports/pkg/metricsdb"
	"github.com/fortiblox/stratus-reports/pkg/ratelimit"
	"github.com/fortiblox/stratus-reports/pkg/report"
	"github.com/fortiblox/stratus-reports/pkg/retry"
	"github.com/fortiblox/stratus-reports/pkg/rpcfetch"
)

const (
	votePubkey   = "Vote111111111111111111111111111111111111111"
	stakePubkey  = "Stake11111111111111111111111111111111111111"
	budgetPubkey = "ComputeBudget111111111111111111111111111111"
	hostPubkey   = "3hLQCguLNPe7XUouGDKqDXjCqSgzWiVzHmionC32f11Q"
)

var errNotImplemented = errors.New("not implemented")

type fakeChain struct {
	getSlot           func(ctx context.Context) (uint64, error)
	getBlock          func(ctx context.Context, slot uint64) (*rpcfetch.Block, error)
	getSlotLeaders    func(ctx context.Context, start, limit uint64) ([]types.Pubkey, error)
	getEpochInfo      func(ctx context.Context) (*rpcfetch.EpochInfo, error)
	getEpochSchedule  func(ctx context.Context) (*rpcfetch.EpochSchedule, error)
	getLeaderSchedule func(ctx context.Context, slot uint64, identity types.Pubkey) ([]uint64, error)
	getClusterNodes   func(ctx context.Context) ([]rpcfetch.ClusterNode, error)
}

func (f *fakeChain) GetSlot(ctx context.Context, _ string) (uint64, error) {
	if f.getSlot == nil {
		return 0, errNotImplemented
	}
	return f.getSlot(ctx)
}

func (f *fakeChain) GetBlock(ctx context.Context, slot uint64) (*rpcfetch.Block, error) {
	if f.getBlock == nil {
		return nil, errNotImplemented
	}
	return f.getBlock(ctx, slot)
}

func (f *fakeChain) GetSlotLeaders(ctx context.Context, start, limit uint64) ([]types.Pubkey, error) {
	if f.getSlotLeaders == nil {
		return nil, errNotImplemented
	}
	return f.getSlotLeaders(ctx, start, limit)
}

func (f *fakeChain) GetEpochInfo(ctx context.Context, _ string) (*rpcfetch.EpochInfo, error) {
	if f.getEpochInfo == nil {
		return nil, errNotImplemented
	}
	return f.getEpochInfo(ctx)
}

func (f *fakeChain) GetEpochSchedule(ctx context.Context) (*rpcfetch.EpochSchedule, error) {
	if f.getEpochSchedule == nil {
		return nil, errNotImplemented
	}
	return f.getEpochSchedule(ctx)
}

func (f *fakeChain) GetLeaderSchedule(ctx context.Context, slot uint64, identity types.Pubkey) ([]uint64, error) {
	if f.getLeaderSchedule == nil {
		return nil, errNotImplemented
	}
	return f.getLeaderSchedule(ctx, slot, identity)
}

func (f *fakeChain) GetClusterNodes(ctx context.Context) ([]rpcfetch.ClusterNode, error) {
	if f.getClusterNodes == nil {
		return nil, errNotImplemented
	}
	return f.getClusterNodes(ctx)
}

type replayKey struct {
	host string
	slot uint64
}

// fakeMetrics answers from maps. Absent entries are ErrNoData.
type fakeMetrics struct {
	mu      sync.Mutex
	leader  map[uint64]metricsdb.LeaderStats
	replay  map[replayKey]metricsdb.ReplayStats
	series  map[string]*metricsdb.Series
	queries []string
	fail    error
}

func (f *fakeMetrics) Query(_ context.Context, q string) (*metricsdb.Response, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	for key, s := range f.series {
		if strings.Contains(q, key) {
			return &metricsdb.Response{Results: []metricsdb.Result{{Series: []metricsdb.Series{*s}}}}, nil
		}
	}
	return &metricsdb.Response{Results: []metricsdb.Result{{}}}, nil
}

func (f *fakeMetrics) LeaderStats(_ context.Context, _ types.Pubkey, slot uint64) (metricsdb.LeaderStats, error) {
	if f.fail != nil {
		return metricsdb.LeaderStats{}, f.fail
	}
	s, ok := f.leader[slot]
	if !ok {
		return metricsdb.LeaderStats{}, metricsdb.ErrNoData
	}
	return s, nil
}

func (f *fakeMetrics) ReplayStats(_ context.Context, host types.Pubkey, slot uint64) (metricsdb.ReplayStats, error) {
	if f.fail != nil {
		return metricsdb.ReplayStats{}, f.fail
	}
	s, ok := f.replay[replayKey{host: host.String(), slot: slot}]
	if !ok {
		return metricsdb.ReplayStats{}, metricsdb.ErrNoData
	}
	return s, nil
}

func newSources(chain Chain, metrics Metrics) *Sources {
	caller := retry.NewCaller(ratelimit.Unlimited(), retry.Policy{
		MaxAttempts: 3,
		Retryable:   rpcfetch.IsRetryable,
	}, zap.NewNop())
	src := &Sources{
		Chain:  chain,
		RPC:    caller,
		Query:  caller.WithPolicy(retry.Policy{MaxAttempts: 3, Retryable: metricsdb.IsRetryable}),
		API:    caller.WithPolicy(retry.DefaultPolicy()),
		Logger: zap.NewNop(),
	}
	if metrics != nil {
		src.Metrics = metrics
	}
	return src
}

func leaders(keys ...string) []types.Pubkey {
	out := make([]types.Pubkey, len(keys))
	for i, k := range keys {
		out[i] = types.MustPubkeyFromBase58(k)
	}
	return out
}

func newBufferWriter(t *testing.T, header []string) (*report.Writer, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	w, err := report.NewWriter(&buf, header, zap.NewNop())
	require.NoError(t, err)
	return w, &buf
}

func readCSV(t *testing.T, w *report.Writer, buf *bytes.Buffer) [][]string {
	t.Helper()
	require.NoError(t, w.Flush())
	records, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	require.NoError(t, err)
	return records
}

func TestLeaderAt(t *testing.T) {
	ls := leaders(stakePubkey, budgetPubkey)

	got, ok := leaderAt(ls, 10, 11)
	require.True(t, ok)
	require.Equal(t, budgetPubkey, got.String())

	_, ok = leaderAt(ls, 10, 12)
	require.False(t, ok)
	_, ok = leaderAt(ls, 10, 9)
	require.False(t, ok)
	_, ok = leaderAt(nil, 10, 10)
	require.False(t, ok)
}

func TestForEachStopsOnError(t *testing.T) {
	boom := errors.New("boom")
	err := forEach(context.Background(), 2, slotRange(0, 6), func(ctx context.Context, i int, key uint64) error {
		if key == 3 {
			return fmt.Errorf("unit %d: %w", key, boom)
		}
		return nil
	})
	require.ErrorIs(t, err, boom)
}

func TestSourcesNotConfigured(t *testing.T) {
	_, err := NewBlockAnalyzer(&Sources{}, BlockConfig{Count: 1}).Run(context.Background(), nil)
	require.ErrorIs(t, err, ErrNotConfigured)

	_, err = CollectOverlap(context.Background(), newSources(&fakeChain{}, nil), OverlapConfig{Count: 1}, nil)
	require.ErrorIs(t, err, ErrNotConfigured)
}
