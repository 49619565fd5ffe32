package metricsdb

import (
	"context"
	"fmt"
	"time"

	"github.com/fortiblox/stratus-reports/internal/types"
)

// Measurement names.
const (
	MeasurementLeaderSlot   = "leader-slot-start-to-cleared-elapsed-ms"
	MeasurementReplaySlot   = "replay-slot-stats"
	MeasurementQuicForwards = "quic_streamer_tpu_forwards"
	MeasurementSigverify    = "tpu-verifier"
)

// Identities are rendered from types.Pubkey, so only base58 characters ever
// reach the quoted host_id literal.

// LeaderSlotQuery selects the banking time a leader logged for slot.
func LeaderSlotQuery(identity types.Pubkey, slot uint64) string {
	return fmt.Sprintf(`SELECT time,elapsed FROM "autogen"."%s" WHERE "host_id"='%s' AND slot=%d ORDER BY time ASC LIMIT 30`,
		MeasurementLeaderSlot, identity, slot)
}

// ReplaySlotQuery selects the replay statistics a host logged for slot.
func ReplaySlotQuery(identity types.Pubkey, slot uint64) string {
	return fmt.Sprintf(`SELECT time,slot,replay_time,replay_total_elapsed,total_transactions,total_entries FROM "autogen"."%s" WHERE "host_id"='%s' AND slot=%d ORDER BY time ASC LIMIT 10`,
		MeasurementReplaySlot, identity, slot)
}

// QuicForwardsQuery selects every QUIC TPU forward sample since since.
func QuicForwardsQuery(identity types.Pubkey, since time.Time) string {
	return fmt.Sprintf(`SELECT * FROM "autogen"."%s" WHERE "host_id"='%s' AND "time">=%dms ORDER BY time ASC`,
		MeasurementQuicForwards, identity, since.UnixMilli())
}

// SigverifyQuery selects packet verification counts since since.
func SigverifyQuery(identity types.Pubkey, since time.Time) string {
	return fmt.Sprintf(`SELECT time,host_id,total_packets,total_valid_packets FROM "autogen"."%s" WHERE "host_id"='%s' AND "time">=%dms ORDER BY time ASC`,
		MeasurementSigverify, identity, since.UnixMilli())
}

// LeaderStats is a leader's banking record for one slot.
type LeaderStats struct {
	// LogTime is the sample timestamp in epoch milliseconds.
	LogTime float64
	// BankTimeMs is the time from slot start to bank cleared.
	BankTimeMs float64
}

// ReplayStats is a host's replay record for one slot.
type ReplayStats struct {
	LogTime              float64
	ReplayTimeUs         float64
	ReplayTotalElapsedUs float64
	TotalTransactions    float64
	TotalEntries         float64
}

// ReplayElapsedMs converts the total replay time to milliseconds.
func (r ReplayStats) ReplayElapsedMs() float64 {
	return r.ReplayTotalElapsedUs / 1000
}

// LeaderStats fetches the leader banking sample for slot. The first sample
// carries the log time; the last one the final elapsed value.
func (c *Client) LeaderStats(ctx context.Context, identity types.Pubkey, slot uint64) (LeaderStats, error) {
	resp, err := c.Query(ctx, LeaderSlotQuery(identity, slot))
	if err != nil {
		return LeaderStats{}, err
	}
	s, err := resp.FirstSeries()
	if err != nil {
		return LeaderStats{}, err
	}

	var out LeaderStats
	if out.LogTime, err = s.Float(0, "time"); err != nil {
		return LeaderStats{}, err
	}
	if out.BankTimeMs, err = s.Float(s.Last(), "elapsed"); err != nil {
		return LeaderStats{}, err
	}
	return out, nil
}

// ReplayStats fetches the replay sample host logged for slot. Optional
// counters that are absent from the sample stay zero.
func (c *Client) ReplayStats(ctx context.Context, host types.Pubkey, slot uint64) (ReplayStats, error) {
	resp, err := c.Query(ctx, ReplaySlotQuery(host, slot))
	if err != nil {
		return ReplayStats{}, err
	}
	s, err := resp.FirstSeries()
	if err != nil {
		return ReplayStats{}, err
	}

	var out ReplayStats
	if out.LogTime, err = s.Float(0, "time"); err != nil {
		return ReplayStats{}, err
	}
	if out.ReplayTotalElapsedUs, err = s.Float(0, "replay_total_elapsed"); err != nil {
		return ReplayStats{}, err
	}
	out.ReplayTimeUs, _ = s.Float(0, "replay_time")
	out.TotalTransactions, _ = s.Float(0, "total_transactions")
	out.TotalEntries, _ = s.Float(0, "total_entries")
	return out, nil
}
