package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fortiblox/stratus-reports/internal/config"
	"github.com/fortiblox/stratus-reports/internal/observability"
	"github.com/fortiblox/stratus-reports/internal/types"
	"github.com/fortiblox/stratus-reports/pkg/collector"
	"github.com/fortiblox/stratus-reports/pkg/dune"
	"github.com/fortiblox/stratus-reports/pkg/jito"
	"github.com/fortiblox/stratus-reports/pkg/metricsdb"
	"github.com/fortiblox/stratus-reports/pkg/ratelimit"
	"github.com/fortiblox/stratus-reports/pkg/report"
	"github.com/fortiblox/stratus-reports/pkg/retry"
	"github.com/fortiblox/stratus-reports/pkg/rpcfetch"
	"github.com/fortiblox/stratus-reports/pkg/telemetry"
)

// needs lists the remote boundaries a report talks to.
type needs struct {
	chain   bool
	metrics bool
	jito    bool
	dune    bool
}

// runEnv is everything one report invocation shares.
type runEnv struct {
	name    string
	cfg     *config.Config
	logger  *zap.Logger
	metrics *telemetry.Metrics
	src     *collector.Sources
	started time.Time

	closeLog func() error
}

// setup loads configuration, builds the logger, the shared limiter and the
// clients the report needs. The RPC endpoint is probed before returning, so
// an unreachable cluster surfaces here as a *rpcfetch.ConnectivityError.
func setup(ctx context.Context, name string, n needs) (*runEnv, error) {
	cfg, err := config.Load(v, cfgFile)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	logger, closeLog, err := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Dir:    cfg.Log.Dir,
		Report: name,
		RunID:  observability.NewRunID(),
		Start:  started,
	})
	if err != nil {
		return nil, err
	}

	env := &runEnv{
		name:     name,
		cfg:      cfg,
		logger:   logger,
		metrics:  telemetry.New(name),
		started:  started,
		closeLog: closeLog,
	}
	if err := env.connect(ctx, n); err != nil {
		return nil, env.finish(err)
	}
	return env, nil
}

func (e *runEnv) connect(ctx context.Context, n needs) error {
	cfg := e.cfg
	limiter, err := ratelimit.New(ratelimit.Config{
		MaxPerSecond: cfg.RateLimit.ReqPerSec,
		Strategy:     ratelimit.Strategy(cfg.RateLimit.Strategy),
		OnWait:       e.metrics.ObserveWait,
	}, e.logger)
	if err != nil {
		return err
	}

	policy := retryPolicy(cfg.Retry)
	base := retry.NewCaller(limiter, policy, e.logger).WithObserver(e.metrics)

	e.src = &collector.Sources{
		RPC:        base.WithPolicy(withRetryable(policy, rpcfetch.IsRetryable)),
		Query:      base.WithPolicy(withRetryable(policy, metricsdb.IsRetryable)),
		API:        base,
		Commitment: cfg.Commitment,
		OnRow:      e.metrics.ObserveRow,
		Logger:     e.logger,
	}

	e.logger.Info("starting report",
		zap.String("cluster", cfg.Cluster),
		zap.Strings("rpc_urls", cfg.RPCURLs),
		zap.Int("req_per_sec", cfg.RateLimit.ReqPerSec),
		zap.String("limiter", cfg.RateLimit.Strategy),
		zap.Int("max_attempts", policy.MaxAttempts),
		zap.Int("workers", cfg.Workers))

	if n.metrics {
		db := cfg.MetricsDB.Database
		if db == "" {
			if db, err = metricsdb.DatabaseFor(cfg.Cluster); err != nil {
				return err
			}
		}
		e.src.Metrics = metricsdb.NewClient(metricsdb.Config{
			BaseURL:  cfg.MetricsDB.BaseURL,
			Database: db,
			Timeout:  cfg.RequestTimeout,
		})
	}
	if n.jito {
		e.src.Jito = jito.NewClient(cfg.Jito.BaseURL, cfg.RequestTimeout)
		e.src.API = base.WithPolicy(withRetryable(policy, jito.IsRetryable))
	}
	if n.dune {
		if cfg.Dune.APIKey == "" {
			return dune.ErrMissingAPIKey
		}
		e.src.Dune = dune.NewClient(cfg.Dune.BaseURL, cfg.Dune.APIKey, cfg.RequestTimeout)
		e.src.API = base.WithPolicy(withRetryable(policy, dune.IsRetryable))
	}
	if n.chain {
		client, slot, err := rpcfetch.Dial(ctx, cfg.RPCURLs, cfg.RequestTimeout, e.src.RPC, rpcfetch.ProbeConfig{
			Attempts:   cfg.Probe.Attempts,
			Interval:   cfg.Probe.Interval,
			Commitment: cfg.Commitment,
		}, e.logger)
		if err != nil {
			return err
		}
		e.logger.Debug("rpc ready", zap.Uint64("slot", slot))
		e.src.Chain = client
	}
	return nil
}

func retryPolicy(rc config.RetryConfig) retry.Policy {
	switch rc.Backoff {
	case "constant":
		return retry.ConstantPolicy(rc.MaxAttempts, rc.Interval)
	case "exponential":
		return retry.ExponentialPolicy(rc.MaxAttempts, rc.Interval, rc.MaxInterval)
	default:
		return retry.Policy{MaxAttempts: rc.MaxAttempts}
	}
}

func withRetryable(p retry.Policy, fn func(error) bool) retry.Policy {
	p.Retryable = fn
	return p
}

func (e *runEnv) workers() int {
	return max(e.cfg.Workers, 1)
}

// reportPath places name in the output directory, adding .zst when
// compression is on.
func (e *runEnv) reportPath(name string) string {
	if e.cfg.Output.Compress {
		name += ".zst"
	}
	return filepath.Join(e.cfg.Output.Dir, name)
}

func (e *runEnv) options() report.Options {
	return report.Options{Sidecar: e.cfg.Output.Digest}
}

// createReport opens a report file with header in the output directory.
func (e *runEnv) createReport(name string, header []string) (*report.Writer, error) {
	return report.Create(e.reportPath(name), header, e.options(), e.logger)
}

// closeReport closes w. A close error is returned only when err is nil.
func closeReport(w *report.Writer, err error) error {
	if cerr := w.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// finish records run metrics, writes the textfile if configured and closes
// the log. It returns err so callers can end with `return env.finish(err)`.
func (e *runEnv) finish(err error) error {
	now := time.Now()
	e.metrics.Finish(e.started, now)

	fields := []zap.Field{zap.Duration("elapsed", now.Sub(e.started))}
	switch {
	case err == nil:
		e.logger.Info("report finished", fields...)
	case rpcfetch.IsConnectivity(err):
		e.logger.Error("cannot reach cluster", append(fields, zap.Error(err))...)
	default:
		e.logger.Error("report failed", append(fields, zap.Error(err))...)
	}

	if path := e.cfg.Telemetry.Textfile; path != "" {
		if werr := e.metrics.WriteTextfile(path); werr != nil {
			e.logger.Warn("metrics textfile not written", zap.String("path", path), zap.Error(werr))
		}
	}
	_ = e.closeLog()
	return err
}

// renderTable prints t on the command's stdout.
func renderTable(cmd *cobra.Command, t report.Table) {
	t.Render(cmd.OutOrStdout())
}

func parseIdentity(flag, s string) (types.Pubkey, error) {
	pk, err := types.PubkeyFromBase58(s)
	if err != nil {
		return pk, fmt.Errorf("--%s: %w", flag, err)
	}
	return pk, nil
}
