package rpcfetch

import "math/bits"

// MinimumSlotsPerEpoch is the length of epoch 0 on clusters with warmup.
const MinimumSlotsPerEpoch = 32

// EpochSchedule is the getEpochSchedule result.
type EpochSchedule struct {
	SlotsPerEpoch            uint64 `json:"slotsPerEpoch"`
	LeaderScheduleSlotOffset uint64 `json:"leaderScheduleSlotOffset"`
	Warmup                   bool   `json:"warmup"`
	FirstNormalEpoch         uint64 `json:"firstNormalEpoch"`
	FirstNormalSlot          uint64 `json:"firstNormalSlot"`
}

// SlotsInEpoch returns the number of slots in epoch. Warmup epochs double in
// length from MinimumSlotsPerEpoch until FirstNormalEpoch.
func (s *EpochSchedule) SlotsInEpoch(epoch uint64) uint64 {
	if epoch < s.FirstNormalEpoch {
		return MinimumSlotsPerEpoch << epoch
	}
	return s.SlotsPerEpoch
}

// FirstSlotInEpoch returns the first slot of epoch.
func (s *EpochSchedule) FirstSlotInEpoch(epoch uint64) uint64 {
	if epoch <= s.FirstNormalEpoch {
		return ((uint64(1) << epoch) - 1) * MinimumSlotsPerEpoch
	}
	return (epoch-s.FirstNormalEpoch)*s.SlotsPerEpoch + s.FirstNormalSlot
}

// LastSlotInEpoch returns the last slot of epoch.
func (s *EpochSchedule) LastSlotInEpoch(epoch uint64) uint64 {
	return s.FirstSlotInEpoch(epoch) + s.SlotsInEpoch(epoch) - 1
}

// EpochOf returns the epoch containing slot.
func (s *EpochSchedule) EpochOf(slot uint64) uint64 {
	if slot < s.FirstNormalSlot {
		// Warmup epoch e spans [(2^e - 1) * 32, (2^(e+1) - 1) * 32).
		return uint64(bits.Len64(slot/MinimumSlotsPerEpoch+1)) - 1
	}
	if s.SlotsPerEpoch == 0 {
		return s.FirstNormalEpoch
	}
	return s.FirstNormalEpoch + (slot-s.FirstNormalSlot)/s.SlotsPerEpoch
}
