package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fortiblox/stratus-reports/internal/types"
	"github.com/fortiblox/stratus-reports/pkg/report"
	"github.com/fortiblox/stratus-reports/pkg/retry"
	"github.com/fortiblox/stratus-reports/pkg/rpcfetch"
)

// SlotsPerSecond is the nominal slot rate used to estimate times.
const SlotsPerSecond = 2.5

// Leader schedule entry statuses.
const (
	StatusPassed  = "passed"
	StatusPending = "pending"
)

// ScheduleHeader is the column row of the schedule report.
var ScheduleHeader = []string{"index", "slot", "slot_diff", "eta", "status"}

// EpochTarget selects the validator and epoch of an epoch-scoped report.
type EpochTarget struct {
	Identity types.Pubkey
	// Epoch is nil for the current epoch.
	Epoch *uint64
}

// EpochLeaderSlots is an identity's leader slots in one epoch.
type EpochLeaderSlots struct {
	Identity     types.Pubkey
	CurrentEpoch uint64
	// AbsoluteSlot is the cluster slot when the epoch info was read.
	AbsoluteSlot uint64
	Epoch        uint64
	FirstSlot    uint64
	LastSlot     uint64
	Slots        []uint64
}

// LeaderSlots resolves the target epoch and lists the identity's leader
// slots in it. The leader schedule is requested with the epoch's first slot.
func LeaderSlots(ctx context.Context, src *Sources, target EpochTarget) (*EpochLeaderSlots, error) {
	if err := src.needChain(); err != nil {
		return nil, err
	}
	log := src.logger()

	info := retry.Do(ctx, src.RPC, "getEpochInfo", func(ctx context.Context) (*rpcfetch.EpochInfo, error) {
		return src.Chain.GetEpochInfo(ctx, src.Commitment)
	}, nil)
	if !info.OK() {
		return nil, fmt.Errorf("get epoch info: %w", info.Err)
	}

	sched := retry.Do(ctx, src.RPC, "getEpochSchedule", func(ctx context.Context) (*rpcfetch.EpochSchedule, error) {
		return src.Chain.GetEpochSchedule(ctx)
	}, nil)
	if !sched.OK() {
		return nil, fmt.Errorf("get epoch schedule: %w", sched.Err)
	}

	out := &EpochLeaderSlots{
		Identity:     target.Identity,
		CurrentEpoch: info.Value.Epoch,
		AbsoluteSlot: info.Value.AbsoluteSlot,
		Epoch:        info.Value.Epoch,
	}
	if target.Epoch != nil {
		out.Epoch = *target.Epoch
	}
	out.FirstSlot = sched.Value.FirstSlotInEpoch(out.Epoch)
	out.LastSlot = sched.Value.LastSlotInEpoch(out.Epoch)

	log.Info("resolved epoch",
		zap.Uint64("current_epoch", out.CurrentEpoch),
		zap.Uint64("target_epoch", out.Epoch),
		zap.Uint64("first_slot", out.FirstSlot),
		zap.Uint64("last_slot", out.LastSlot))

	offsets := retry.Do(ctx, src.RPC, "getLeaderSchedule", func(ctx context.Context) ([]uint64, error) {
		return src.Chain.GetLeaderSchedule(ctx, out.FirstSlot, target.Identity)
	}, retry.MissingOn[[]uint64](func(err error) bool {
		return errors.Is(err, rpcfetch.ErrLeaderScheduleNotFound)
	}))
	switch offsets.Status {
	case retry.StatusFailure:
		return nil, fmt.Errorf("get leader schedule: %w", offsets.Err)
	case retry.StatusMissing:
		log.Warn("no leader schedule for epoch", zap.Uint64("epoch", out.Epoch))
	}

	out.Slots = make([]uint64, len(offsets.Value))
	for i, off := range offsets.Value {
		out.Slots[i] = out.FirstSlot + off
	}

	if len(out.Slots) == 0 {
		log.Warn("validator has no leader slots in epoch",
			zap.Stringer("identity", target.Identity),
			zap.Uint64("epoch", out.Epoch))
	} else {
		log.Info("leader slots found",
			zap.Stringer("identity", target.Identity),
			zap.Uint64("epoch", out.Epoch),
			zap.Int("slots", len(out.Slots)))
	}
	return out, nil
}

// ScheduleEntry is one leader slot relative to the current slot.
type ScheduleEntry struct {
	Index    int
	Slot     uint64
	SlotDiff int64
	ETA      time.Duration
	Status   string
}

// Record renders the entry in ScheduleHeader order.
func (e ScheduleEntry) Record() []string {
	return []string{
		fmt.Sprint(e.Index),
		report.Uint(e.Slot),
		report.Int(e.SlotDiff),
		report.HMS(e.ETA),
		e.Status,
	}
}

// Schedule is the leader schedule report.
type Schedule struct {
	*EpochLeaderSlots
	CurrentSlot uint64
	Entries     []ScheduleEntry
}

// ScheduleEntries positions slots relative to current. Index starts at 1.
func ScheduleEntries(slots []uint64, current uint64) []ScheduleEntry {
	entries := make([]ScheduleEntry, len(slots))
	for i, slot := range slots {
		diff := int64(slot) - int64(current)
		status := StatusPending
		if diff <= 0 {
			status = StatusPassed
		}
		entries[i] = ScheduleEntry{
			Index:    i + 1,
			Slot:     slot,
			SlotDiff: diff,
			ETA:      slotsToDuration(diff),
			Status:   status,
		}
	}
	return entries
}

func slotsToDuration(diff int64) time.Duration {
	if diff < 0 {
		diff = -diff
	}
	return time.Duration(float64(diff) / SlotsPerSecond * float64(time.Second))
}

// BuildSchedule lists the target's leader slots against the current slot.
// When w is not nil every entry is also written to it.
func BuildSchedule(ctx context.Context, src *Sources, target EpochTarget, w report.RowWriter) (*Schedule, error) {
	slots, err := LeaderSlots(ctx, src, target)
	if err != nil {
		return nil, err
	}

	current := retry.Do(ctx, src.RPC, "getSlot", func(ctx context.Context) (uint64, error) {
		return src.Chain.GetSlot(ctx, src.Commitment)
	}, nil)
	if !current.OK() {
		return nil, fmt.Errorf("get slot: %w", current.Err)
	}

	s := &Schedule{
		EpochLeaderSlots: slots,
		CurrentSlot:      current.Value,
		Entries:          ScheduleEntries(slots.Slots, current.Value),
	}
	for _, e := range s.Entries {
		src.rowDone(e.Status)
		if w == nil {
			continue
		}
		if err := w.Write(e.Record()); err != nil {
			return s, fmt.Errorf("schedule report: %w", err)
		}
	}
	return s, nil
}

// Table renders the schedule for the console.
func (s *Schedule) Table() report.Table {
	t := report.Table{
		Title:  fmt.Sprintf("Leader schedule %s epoch %d (current slot %d)", s.Identity, s.Epoch, s.CurrentSlot),
		Header: ScheduleHeader,
	}
	pending := 0
	for _, e := range s.Entries {
		t.Rows = append(t.Rows, e.Record())
		if e.Status == StatusPending {
			pending++
		}
	}
	t.Footer = []string{"", fmt.Sprint(len(s.Entries)), "", "", fmt.Sprintf("%d pending", pending)}
	return t
}
