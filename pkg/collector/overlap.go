package collector

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fortiblox/stratus-reports/internal/types"
	"github.com/fortiblox/stratus-reports/pkg/metricsdb"
	"github.com/fortiblox/stratus-reports/pkg/report"
	"github.com/fortiblox/stratus-reports/pkg/retry"
)

// DefaultReferenceHost is the validator whose replay is compared with the
// next leader's when no other reference is configured.
var DefaultReferenceHost = types.MustPubkeyFromBase58("3hLQCguLNPe7XUouGDKqDXjCqSgzWiVzHmionC32f11Q")

// OverlapHeader is the column row of the overlap report.
var OverlapHeader = []string{
	"slot", "leader", "total_transactions", "total_entries",
	"leader_log_time", "leader_bank_time_ms",
	"next_leader_replay_log_time", "next_leader_replay_elapsed_us", "next_leader_overlap_ms",
	"reference_replay_log_time", "reference_replay_elapsed_us", "reference_overlap_ms",
	"status",
}

// Overlap is how far a replaying host's replay overlapped the leader's slot:
// the replay log time minus the leader log time minus the replay duration.
func Overlap(leaderLogTime float64, replay metricsdb.ReplayStats) float64 {
	return replay.LogTime - leaderLogTime - replay.ReplayElapsedMs()
}

// OverlapRow is one line of the overlap report. Pointer fields are nil when
// the host logged no sample for the slot.
type OverlapRow struct {
	Slot            uint64
	Leader          types.Pubkey
	LeaderStats     *metricsdb.LeaderStats
	NextReplay      *metricsdb.ReplayStats
	ReferenceReplay *metricsdb.ReplayStats
	Status          string
}

// Record renders the row in OverlapHeader order. Transaction and entry
// counts come from the reference host's sample.
func (r OverlapRow) Record() []string {
	rec := make([]string, 0, len(OverlapHeader))
	rec = append(rec, report.Uint(r.Slot))
	if r.Leader.IsZero() {
		rec = append(rec, "")
	} else {
		rec = append(rec, r.Leader.String())
	}

	if r.ReferenceReplay != nil {
		rec = append(rec, report.Float(r.ReferenceReplay.TotalTransactions), report.Float(r.ReferenceReplay.TotalEntries))
	} else {
		rec = append(rec, "", "")
	}

	if r.LeaderStats != nil {
		rec = append(rec, report.Float(r.LeaderStats.LogTime), report.Float(r.LeaderStats.BankTimeMs))
	} else {
		rec = append(rec, "", "")
	}

	rec = append(rec, r.replayCells(r.NextReplay)...)
	rec = append(rec, r.replayCells(r.ReferenceReplay)...)
	return append(rec, r.Status)
}

func (r OverlapRow) replayCells(s *metricsdb.ReplayStats) []string {
	if s == nil || r.LeaderStats == nil {
		return []string{"", "", ""}
	}
	return []string{
		report.Float(s.LogTime),
		report.Float(s.ReplayTotalElapsedUs),
		report.Fixed(Overlap(r.LeaderStats.LogTime, *s), 3),
	}
}

// OverlapConfig selects the slots of an overlap report.
type OverlapConfig struct {
	StartSlot uint64
	Count     uint64
	Workers   int
	// Reference defaults to DefaultReferenceHost.
	Reference types.Pubkey
}

// CollectOverlap measures, for every slot, how the next leader's and the
// reference host's replay overlapped the leader's banking. Replay samples are
// only read when the leader logged a non-zero log time and bank time.
func CollectOverlap(ctx context.Context, src *Sources, cfg OverlapConfig, w report.RowWriter) ([]OverlapRow, error) {
	if err := src.needChain(); err != nil {
		return nil, err
	}
	if err := src.needMetrics(); err != nil {
		return nil, err
	}
	if cfg.Count == 0 {
		return nil, nil
	}
	if cfg.Reference.IsZero() {
		cfg.Reference = DefaultReferenceHost
	}

	leaders := src.slotLeaders(ctx, cfg.StartSlot, cfg.Count+NextLeaderOffset)
	slots := slotRange(cfg.StartSlot, cfg.Count)
	rows := make([]OverlapRow, len(slots))
	seq := report.NewSequencer(w, slots)

	err := forEach(ctx, cfg.Workers, slots, func(ctx context.Context, i int, slot uint64) error {
		row := overlapForSlot(ctx, src, cfg, leaders, slot)
		rows[i] = row
		src.rowDone(row.Status)
		return seq.Add(slot, row.Record())
	})
	if err != nil {
		return rows, fmt.Errorf("overlap report: %w", err)
	}
	if err := seq.Close(); err != nil {
		return rows, fmt.Errorf("overlap report: %w", err)
	}
	return rows, ctx.Err()
}

func overlapForSlot(ctx context.Context, src *Sources, cfg OverlapConfig, leaders []types.Pubkey, slot uint64) OverlapRow {
	row := OverlapRow{Slot: slot}
	leader, ok := leaderAt(leaders, cfg.StartSlot, slot)
	if !ok {
		row.Status = StatusFailed
		return row
	}
	row.Leader = leader
	src.logger().Info("processing slot", zap.Uint64("slot", slot), zap.Stringer("leader", leader))

	ls := src.leaderStats(ctx, leader, slot)
	switch ls.Status {
	case retry.StatusFailure:
		row.Status = StatusFailed
		return row
	case retry.StatusMissing:
		row.Status = StatusMissing
		return row
	}
	if ls.Value.LogTime == 0 || ls.Value.BankTimeMs == 0 {
		row.Status = StatusMissing
		return row
	}
	row.LeaderStats = &ls.Value
	row.Status = StatusOK

	if next, ok := leaderAt(leaders, cfg.StartSlot, slot+NextLeaderOffset); ok {
		if out := src.replayStats(ctx, next, slot); out.OK() {
			row.NextReplay = &out.Value
		}
	}
	if out := src.replayStats(ctx, cfg.Reference, slot); out.OK() {
		row.ReferenceReplay = &out.Value
	}
	return row
}
