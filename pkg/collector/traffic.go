package collector

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/fortiblox/stratus-reports/internal/types"
	"github.com/fortiblox/stratus-reports/pkg/metricsdb"
	"github.com/fortiblox/stratus-reports/pkg/report"
	"github.com/fortiblox/stratus-reports/pkg/retry"
	"github.com/fortiblox/stratus-reports/pkg/rpcfetch"
)

// TrafficConfig configures a traffic dump.
type TrafficConfig struct {
	Since time.Time
	Dir   string
	// Identities limits the dump to these nodes. Empty means every node in
	// getClusterNodes.
	Identities []types.Pubkey
	Workers    int
	// Compress writes <identity>.csv.zst instead of <identity>.csv.
	Compress bool
	Options  report.Options
}

// NodeTraffic is the result for one node.
type NodeTraffic struct {
	Identity      types.Pubkey
	Path          string
	QuicRows      int
	SigverifyRows int
	Status        string
}

// CollectTraffic dumps QUIC forward and sigverify samples per node into
// <dir>/<identity>.csv. Each series is written as its column row followed by
// its values. Nodes without any samples get no file.
func CollectTraffic(ctx context.Context, src *Sources, cfg TrafficConfig) ([]NodeTraffic, error) {
	if err := src.needMetrics(); err != nil {
		return nil, err
	}
	log := src.logger()

	nodes := cfg.Identities
	if len(nodes) == 0 {
		if err := src.needChain(); err != nil {
			return nil, err
		}
		var err error
		if nodes, err = clusterIdentities(ctx, src); err != nil {
			return nil, err
		}
	}
	log.Info("collecting network traffic",
		zap.Int("nodes", len(nodes)),
		zap.Time("since", cfg.Since))

	keys := make([]uint64, len(nodes))
	for i := range keys {
		keys[i] = uint64(i)
	}
	results := make([]NodeTraffic, len(nodes))
	err := forEach(ctx, cfg.Workers, keys, func(ctx context.Context, i int, _ uint64) error {
		res, err := trafficForNode(ctx, src, cfg, nodes[i])
		results[i] = res
		src.rowDone(res.Status)
		return err
	})
	if err != nil {
		return results, fmt.Errorf("traffic report: %w", err)
	}
	return results, ctx.Err()
}

func clusterIdentities(ctx context.Context, src *Sources) ([]types.Pubkey, error) {
	out := retry.Do(ctx, src.RPC, "getClusterNodes", func(ctx context.Context) ([]rpcfetch.ClusterNode, error) {
		return src.Chain.GetClusterNodes(ctx)
	}, nil)
	if !out.OK() {
		return nil, fmt.Errorf("get cluster nodes: %w", out.Err)
	}

	ids := make([]types.Pubkey, 0, len(out.Value))
	for _, n := range out.Value {
		pk, err := types.PubkeyFromBase58(n.Pubkey)
		if err != nil {
			src.logger().Warn("skipping node with invalid identity",
				zap.String("pubkey", n.Pubkey),
				zap.Error(err))
			continue
		}
		ids = append(ids, pk)
	}
	return ids, nil
}

func (s *Sources) querySeries(ctx context.Context, op, q string) retry.Outcome[*metricsdb.Series] {
	return retry.Do(ctx, s.Query, op, func(ctx context.Context) (*metricsdb.Series, error) {
		resp, err := s.Metrics.Query(ctx, q)
		if err != nil {
			return nil, err
		}
		return resp.FirstSeries()
	}, retry.MissingOn[*metricsdb.Series](isNoData))
}

// trafficForNode returns an error only when the output file cannot be written.
func trafficForNode(ctx context.Context, src *Sources, cfg TrafficConfig, id types.Pubkey) (NodeTraffic, error) {
	res := NodeTraffic{Identity: id}
	log := src.logger().With(zap.Stringer("identity", id))

	quic := src.querySeries(ctx, "quicForwards", metricsdb.QuicForwardsQuery(id, cfg.Since))
	sigverify := src.querySeries(ctx, "sigverify", metricsdb.SigverifyQuery(id, cfg.Since))

	switch {
	case quic.Status == retry.StatusFailure && sigverify.Status == retry.StatusFailure:
		res.Status = StatusFailed
		return res, nil
	case !quic.OK() && !sigverify.OK():
		res.Status = StatusMissing
		log.Debug("no traffic samples")
		return res, nil
	}

	name := id.String() + ".csv"
	if cfg.Compress {
		name += ".zst"
	}
	res.Path = filepath.Join(cfg.Dir, name)

	w, err := report.Create(res.Path, nil, cfg.Options, log)
	if err != nil {
		return res, err
	}
	if quic.OK() {
		if res.QuicRows, err = writeSeries(w, quic.Value); err != nil {
			w.Close()
			return res, err
		}
	}
	if sigverify.OK() {
		if res.SigverifyRows, err = writeSeries(w, sigverify.Value); err != nil {
			w.Close()
			return res, err
		}
	}
	if err := w.Close(); err != nil {
		return res, err
	}
	res.Status = StatusOK
	return res, nil
}

func writeSeries(w report.RowWriter, s *metricsdb.Series) (int, error) {
	if err := w.Write(s.Columns); err != nil {
		return 0, err
	}
	for i := range s.Values {
		if err := w.Write(s.Strings(i)); err != nil {
			return i, err
		}
	}
	return len(s.Values), nil
}
