package rpcfetch

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fortiblox/stratus-reports/pkg/retry"
)

// Probe defaults.
const (
	DefaultProbeAttempts = 10
	DefaultProbeInterval = 2 * time.Second
)

// ProbeConfig bounds the connectivity probe.
type ProbeConfig struct {
	Attempts   int
	Interval   time.Duration
	Commitment string
}

// WithDefaults fills unset fields.
func (c ProbeConfig) WithDefaults() ProbeConfig {
	if c.Attempts <= 0 {
		c.Attempts = DefaultProbeAttempts
	}
	if c.Interval <= 0 {
		c.Interval = DefaultProbeInterval
	}
	if c.Commitment == "" {
		c.Commitment = "finalized"
	}
	return c
}

// SlotSource is anything that can report the current slot.
type SlotSource interface {
	GetSlot(ctx context.Context, commitment string) (uint64, error)
}

// Probe checks that endpoint answers getSlot. Each attempt goes through the
// caller's limiter, and failed attempts are followed by a fixed pause. When
// every attempt fails it returns a *ConnectivityError. Cancelling ctx returns
// the context error instead.
func Probe(ctx context.Context, src SlotSource, endpoint string, caller *retry.Caller, cfg ProbeConfig, logger *zap.Logger) (uint64, error) {
	cfg = cfg.WithDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	probe := caller.WithPolicy(retry.ConstantPolicy(cfg.Attempts, cfg.Interval))
	out := retry.Do(ctx, probe, "getSlot", func(ctx context.Context) (uint64, error) {
		return src.GetSlot(ctx, cfg.Commitment)
	}, nil)

	if !out.OK() {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		return 0, &ConnectivityError{
			Endpoint: endpoint,
			Attempts: out.Attempts,
			Err:      out.Err,
		}
	}

	logger.Info("connected to cluster",
		zap.String("endpoint", endpoint),
		zap.Uint64("slot", out.Value),
		zap.Int("attempts", out.Attempts))
	return out.Value, nil
}

// Dial builds a client over urls and probes it before returning.
func Dial(ctx context.Context, urls []string, timeout time.Duration, caller *retry.Caller, cfg ProbeConfig, logger *zap.Logger) (*RPCClient, uint64, error) {
	if len(urls) == 0 {
		return nil, 0, ErrNoEndpoints
	}
	pool := NewFailoverPool(urls)
	client := NewRPCClient(pool, timeout)

	slot, err := Probe(ctx, client, pool.String(), caller, cfg, logger)
	if err != nil {
		return nil, 0, err
	}
	return client, slot, nil
}
