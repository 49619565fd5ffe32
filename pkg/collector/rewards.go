package collector

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fortiblox/stratus-reports/internal/types"
	"github.com/fortiblox/stratus-reports/pkg/report"
	"github.com/fortiblox/stratus-reports/pkg/retry"
	"github.com/fortiblox/stratus-reports/pkg/rpcfetch"
)

// Leader slot statuses in the rewards report.
const (
	StatusProduced = "produced"
	StatusSkipped  = "skipped"
)

// RewardsHeader is the column row of the rewards report.
var RewardsHeader = []string{"slot", "status", "fee_lamports", "fee_sol"}

// SlotReward is the fee reward of one leader slot.
type SlotReward struct {
	Slot        uint64
	Status      string
	FeeLamports int64
}

// Record renders the row in RewardsHeader order.
func (r SlotReward) Record() []string {
	return []string{
		report.Uint(r.Slot),
		r.Status,
		report.Int(r.FeeLamports),
		report.Float(types.LamportsToSOL(r.FeeLamports)),
	}
}

// FeeRewards sums the Fee rewards of a block.
func FeeRewards(b *rpcfetch.Block) int64 {
	var total int64
	if b == nil {
		return total
	}
	for _, r := range b.Rewards {
		if r.RewardType == rpcfetch.RewardTypeFee {
			total += r.Lamports
		}
	}
	return total
}

// EpochRewards is the block reward summary of a validator for one epoch.
type EpochRewards struct {
	*EpochLeaderSlots
	Slots            []SlotReward
	TotalFeeLamports int64
	// Complete is false while the target epoch is still running.
	Complete bool
	// Remaining lists slots not yet produced or that could not be fetched.
	Remaining []uint64
}

// Counts returns the number of slots per status.
func (r *EpochRewards) Counts() map[string]int {
	counts := make(map[string]int, 4)
	for _, s := range r.Slots {
		counts[s.Status]++
	}
	return counts
}

// CollectRewards sums the fee rewards of every leader slot of the target.
// Rows are written to w in slot order.
func CollectRewards(ctx context.Context, src *Sources, target EpochTarget, workers int, w report.RowWriter) (*EpochRewards, error) {
	leader, err := LeaderSlots(ctx, src, target)
	if err != nil {
		return nil, err
	}
	return RewardsForSlots(ctx, src, leader, workers, w)
}

// RewardsForSlots is CollectRewards for leader slots that were already
// resolved with LeaderSlots.
func RewardsForSlots(ctx context.Context, src *Sources, leader *EpochLeaderSlots, workers int, w report.RowWriter) (*EpochRewards, error) {
	if err := src.needChain(); err != nil {
		return nil, err
	}
	log := src.logger()

	out := &EpochRewards{
		EpochLeaderSlots: leader,
		Slots:            make([]SlotReward, len(leader.Slots)),
		Complete:         leader.CurrentEpoch > leader.Epoch,
	}
	seq := report.NewSequencer(w, leader.Slots)

	err := forEach(ctx, workers, leader.Slots, func(ctx context.Context, i int, slot uint64) error {
		r := rewardForSlot(ctx, src, slot, leader.AbsoluteSlot)
		out.Slots[i] = r
		src.rowDone(r.Status)
		return seq.Add(slot, r.Record())
	})
	if err != nil {
		return out, fmt.Errorf("rewards report: %w", err)
	}
	if err := seq.Close(); err != nil {
		return out, fmt.Errorf("rewards report: %w", err)
	}

	for _, r := range out.Slots {
		out.TotalFeeLamports += r.FeeLamports
		if r.Status == StatusPending || r.Status == StatusFailed {
			out.Remaining = append(out.Remaining, r.Slot)
		}
	}

	if out.Complete {
		log.Info("epoch block rewards",
			zap.Uint64("epoch", out.Epoch),
			zap.Int("leader_slots", len(out.Slots)),
			zap.Int64("fee_lamports", out.TotalFeeLamports),
			zap.Uint64s("unavailable_slots", out.Remaining))
	} else {
		log.Info("epoch not complete, partial block rewards",
			zap.Uint64("epoch", out.Epoch),
			zap.Int("leader_slots", len(out.Slots)),
			zap.Int64("fee_lamports", out.TotalFeeLamports),
			zap.Uint64s("remaining_slots", out.Remaining))
	}
	return out, ctx.Err()
}

func rewardForSlot(ctx context.Context, src *Sources, slot, current uint64) SlotReward {
	r := SlotReward{Slot: slot}
	if slot > current {
		r.Status = StatusPending
		return r
	}

	src.logger().Info("fetching block rewards", zap.Uint64("slot", slot))
	block := src.fetchBlock(ctx, slot)
	switch block.Status {
	case retry.StatusSuccess:
		r.Status = StatusProduced
		r.FeeLamports = FeeRewards(block.Value)
	case retry.StatusMissing:
		r.Status = StatusSkipped
	default:
		r.Status = StatusFailed
	}
	return r
}

// Table renders the summary for the console.
func (r *EpochRewards) Table() report.Table {
	counts := r.Counts()
	state := "complete"
	if !r.Complete {
		state = "in progress"
	}
	return report.Table{
		Title:  fmt.Sprintf("Block rewards %s epoch %d (%s)", r.Identity, r.Epoch, state),
		Header: []string{"leader_slots", StatusProduced, StatusSkipped, StatusPending, StatusFailed, "fee_lamports", "fee_sol"},
		Rows: [][]string{{
			fmt.Sprint(len(r.Slots)),
			fmt.Sprint(counts[StatusProduced]),
			fmt.Sprint(counts[StatusSkipped]),
			fmt.Sprint(counts[StatusPending]),
			fmt.Sprint(counts[StatusFailed]),
			report.Int(r.TotalFeeLamports),
			report.Float(types.LamportsToSOL(r.TotalFeeLamports)),
		}},
	}
}
