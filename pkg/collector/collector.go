// Package collector implements the reports. Each report pulls its units of
// work through retry.Do on shared callers, so every remote call is paced by
// one limiter, and turns the results into rows.
//
// A unit that fails after retries is recorded as failed and the report moves
// on. Missing data is recorded with zero values. Only setup errors and
// output errors end a report early.
package collector

import (
	"context"
	"errors"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/fortiblox/stratus-reports/internal/types"
	"github.com/fortiblox/stratus-reports/pkg/dune"
	"github.com/fortiblox/stratus-reports/pkg/jito"
	"github.com/fortiblox/stratus-reports/pkg/metricsdb"
	"github.com/fortiblox/stratus-reports/pkg/retry"
	"github.com/fortiblox/stratus-reports/pkg/rpcfetch"
)

// Row statuses shared by several reports.
const (
	StatusOK      = "ok"
	StatusMissing = "missing"
	StatusFailed  = "failed"
)

// ErrNotConfigured is returned when a report is missing a data source.
var ErrNotConfigured = errors.New("collector: data source not configured")

// Chain is the JSON-RPC surface the reports use. *rpcfetch.RPCClient implements it.
type Chain interface {
	GetSlot(ctx context.Context, commitment string) (uint64, error)
	GetBlock(ctx context.Context, slot uint64) (*rpcfetch.Block, error)
	GetSlotLeaders(ctx context.Context, start, limit uint64) ([]types.Pubkey, error)
	GetEpochInfo(ctx context.Context, commitment string) (*rpcfetch.EpochInfo, error)
	GetEpochSchedule(ctx context.Context) (*rpcfetch.EpochSchedule, error)
	GetLeaderSchedule(ctx context.Context, slot uint64, identity types.Pubkey) ([]uint64, error)
	GetClusterNodes(ctx context.Context) ([]rpcfetch.ClusterNode, error)
}

// Metrics is the metrics database surface. *metricsdb.Client implements it.
type Metrics interface {
	Query(ctx context.Context, q string) (*metricsdb.Response, error)
	LeaderStats(ctx context.Context, identity types.Pubkey, slot uint64) (metricsdb.LeaderStats, error)
	ReplayStats(ctx context.Context, host types.Pubkey, slot uint64) (metricsdb.ReplayStats, error)
}

// Jito is the MEV rewards API. *jito.Client implements it.
type Jito interface {
	LatestRewards(ctx context.Context) (*jito.NetworkRewards, error)
	NetworkRewards(ctx context.Context, epoch uint64) (*jito.NetworkRewards, error)
	Validators(ctx context.Context, epoch uint64) ([]jito.ValidatorRewards, error)
}

// Dune pages query results. *dune.Client implements it.
type Dune interface {
	ResultsPage(ctx context.Context, queryID string, limit, offset int) (*dune.Page, error)
}

// Sources bundles the remote boundaries of a run.
type Sources struct {
	Chain   Chain
	Metrics Metrics
	Jito    Jito
	Dune    Dune

	// RPC and Query pace and retry calls to Chain and Metrics, API calls to
	// Jito and Dune. They are normally built from one limiter so the budget
	// covers all of them.
	RPC   *retry.Caller
	Query *retry.Caller
	API   *retry.Caller

	// Commitment is used for getSlot and getEpochInfo.
	Commitment string

	// OnRow, if set, is called with the status of every row produced.
	OnRow func(status string)

	Logger *zap.Logger
}

func (s *Sources) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

func (s *Sources) rowDone(status string) {
	if s.OnRow != nil {
		s.OnRow(status)
	}
}

func (s *Sources) needChain() error {
	if s.Chain == nil || s.RPC == nil {
		return ErrNotConfigured
	}
	return nil
}

func (s *Sources) needMetrics() error {
	if s.Metrics == nil || s.Query == nil {
		return ErrNotConfigured
	}
	return nil
}

// fetchBlock reads one block. A skipped slot is Missing.
func (s *Sources) fetchBlock(ctx context.Context, slot uint64) retry.Outcome[*rpcfetch.Block] {
	return retry.Do(ctx, s.RPC, "getBlock", func(ctx context.Context) (*rpcfetch.Block, error) {
		return s.Chain.GetBlock(ctx, slot)
	}, retry.MissingOn[*rpcfetch.Block](rpcfetch.IsSlotSkipped))
}

// slotLeaders returns the leaders of [start, start+count). It returns nil
// when the call fails; callers then leave leader-dependent fields empty.
func (s *Sources) slotLeaders(ctx context.Context, start, count uint64) []types.Pubkey {
	out := retry.Do(ctx, s.RPC, "getSlotLeaders", func(ctx context.Context) ([]types.Pubkey, error) {
		return s.Chain.GetSlotLeaders(ctx, start, count)
	}, nil)
	if !out.OK() {
		s.logger().Error("slot leaders unavailable, leader fields will be empty",
			zap.Uint64("start", start),
			zap.Uint64("count", count),
			zap.Error(out.Err))
		return nil
	}
	return out.Value
}

func (s *Sources) leaderStats(ctx context.Context, leader types.Pubkey, slot uint64) retry.Outcome[metricsdb.LeaderStats] {
	return retry.Do(ctx, s.Query, "leaderStats", func(ctx context.Context) (metricsdb.LeaderStats, error) {
		return s.Metrics.LeaderStats(ctx, leader, slot)
	}, retry.MissingOn[metricsdb.LeaderStats](isNoData))
}

func (s *Sources) replayStats(ctx context.Context, host types.Pubkey, slot uint64) retry.Outcome[metricsdb.ReplayStats] {
	return retry.Do(ctx, s.Query, "replayStats", func(ctx context.Context) (metricsdb.ReplayStats, error) {
		return s.Metrics.ReplayStats(ctx, host, slot)
	}, retry.MissingOn[metricsdb.ReplayStats](isNoData))
}

func isNoData(err error) bool {
	return errors.Is(err, metricsdb.ErrNoData)
}

// leaderAt looks up the leader of slot in a list that starts at start.
func leaderAt(leaders []types.Pubkey, start, slot uint64) (types.Pubkey, bool) {
	if slot < start || slot-start >= uint64(len(leaders)) {
		return types.Pubkey{}, false
	}
	return leaders[slot-start], true
}

// forEach runs fn for every key on at most workers goroutines. The first
// error cancels the remaining work and is returned.
func forEach(ctx context.Context, workers int, keys []uint64, fn func(ctx context.Context, i int, key uint64) error) error {
	p := pool.New().
		WithContext(ctx).
		WithCancelOnError().
		WithFirstError().
		WithMaxGoroutines(max(workers, 1))
	for i, key := range keys {
		p.Go(func(ctx context.Context) error {
			return fn(ctx, i, key)
		})
	}
	return p.Wait()
}

func slotRange(start, count uint64) []uint64 {
	slots := make([]uint64, count)
	for i := range slots {
		slots[i] = start + uint64(i)
	}
	return slots
}
