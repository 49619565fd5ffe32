package collector

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fortiblox/stratus-reports/internal/types"
	"github.com/fortiblox/stratus-reports/pkg/rpcfetch"
)

// epochChain serves epoch 5 of a 1000-slot schedule, so epoch 5 starts at
// slot 5000 and the cluster is at slot 5010.
func epochChain(offsets []uint64) *fakeChain {
	return &fakeChain{
		getEpochInfo: func(context.Context) (*rpcfetch.EpochInfo, error) {
			return &rpcfetch.EpochInfo{Epoch: 5, AbsoluteSlot: 5010, SlotIndex: 10, SlotsInEpoch: 1000}, nil
		},
		getEpochSchedule: func(context.Context) (*rpcfetch.EpochSchedule, error) {
			return &rpcfetch.EpochSchedule{SlotsPerEpoch: 1000}, nil
		},
		getLeaderSchedule: func(_ context.Context, slot uint64, identity types.Pubkey) ([]uint64, error) {
			if slot != 4000 && slot != 5000 {
				return nil, rpcfetch.ErrLeaderScheduleNotFound
			}
			return offsets, nil
		},
		getSlot: func(context.Context) (uint64, error) {
			return 5010, nil
		},
	}
}

func TestScheduleEntries(t *testing.T) {
	entries := ScheduleEntries([]uint64{5000, 5010, 5500}, 5010)
	require.Equal(t, []ScheduleEntry{
		{Index: 1, Slot: 5000, SlotDiff: -10, ETA: 4 * time.Second, Status: StatusPassed},
		{Index: 2, Slot: 5010, SlotDiff: 0, ETA: 0, Status: StatusPassed},
		{Index: 3, Slot: 5500, SlotDiff: 490, ETA: 196 * time.Second, Status: StatusPending},
	}, entries)

	require.Equal(t, []string{"3", "5500", "490", "0:03:16", "pending"}, entries[2].Record())
}

func TestBuildSchedule(t *testing.T) {
	identity := types.MustPubkeyFromBase58(hostPubkey)
	w, buf := newBufferWriter(t, ScheduleHeader)

	s, err := BuildSchedule(context.Background(), newSources(epochChain([]uint64{0, 10, 500}), nil), EpochTarget{Identity: identity}, w)
	require.NoError(t, err)
	require.Equal(t, uint64(5), s.Epoch)
	require.Equal(t, uint64(5000), s.FirstSlot)
	require.Equal(t, uint64(5999), s.LastSlot)
	require.Equal(t, []uint64{5000, 5010, 5500}, s.Slots)
	require.Equal(t, uint64(5010), s.CurrentSlot)

	records := readCSV(t, w, buf)
	require.Len(t, records, 4)
	require.Equal(t, []string{"1", "5000", "-10", "0:00:04", "passed"}, records[1])

	var out bytes.Buffer
	s.Table().Render(&out)
	require.Contains(t, strings.ToLower(out.String()), "1 pending")
}

func TestLeaderSlotsPastEpoch(t *testing.T) {
	epoch := uint64(4)
	slots, err := LeaderSlots(context.Background(), newSources(epochChain([]uint64{3}), nil), EpochTarget{
		Identity: types.MustPubkeyFromBase58(hostPubkey),
		Epoch:    &epoch,
	})
	require.NoError(t, err)
	require.Equal(t, uint64(5), slots.CurrentEpoch)
	require.Equal(t, uint64(4), slots.Epoch)
	require.Equal(t, []uint64{4003}, slots.Slots)
}

func TestLeaderSlotsNoSchedule(t *testing.T) {
	epoch := uint64(9)
	slots, err := LeaderSlots(context.Background(), newSources(epochChain(nil), nil), EpochTarget{
		Identity: types.MustPubkeyFromBase58(hostPubkey),
		Epoch:    &epoch,
	})
	require.NoError(t, err)
	require.Empty(t, slots.Slots)
}

func TestLeaderSlotsEpochInfoFails(t *testing.T) {
	chain := epochChain(nil)
	chain.getEpochInfo = func(context.Context) (*rpcfetch.EpochInfo, error) {
		return nil, errors.New("unavailable")
	}
	_, err := LeaderSlots(context.Background(), newSources(chain, nil), EpochTarget{Identity: types.MustPubkeyFromBase58(hostPubkey)})
	require.ErrorContains(t, err, "get epoch info")
}

func TestCollectRewards(t *testing.T) {
	chain := epochChain([]uint64{1, 2, 3, 500})
	chain.getBlock = func(_ context.Context, slot uint64) (*rpcfetch.Block, error) {
		switch slot {
		case 5001:
			return &rpcfetch.Block{Rewards: []rpcfetch.Reward{
				{Lamports: 6000, RewardType: rpcfetch.RewardTypeFee},
				{Lamports: 999, RewardType: rpcfetch.RewardTypeRent},
			}}, nil
		case 5002:
			return nil, rpcfetch.ErrSlotSkipped
		default:
			return nil, errors.New("timeout")
		}
	}

	w, buf := newBufferWriter(t, RewardsHeader)
	r, err := CollectRewards(context.Background(), newSources(chain, nil), EpochTarget{Identity: types.MustPubkeyFromBase58(hostPubkey)}, 2, w)
	require.NoError(t, err)

	require.False(t, r.Complete)
	require.Equal(t, int64(6000), r.TotalFeeLamports)
	require.Equal(t, []uint64{5003, 5500}, r.Remaining)
	require.Equal(t, map[string]int{
		StatusProduced: 1,
		StatusSkipped:  1,
		StatusFailed:   1,
		StatusPending:  1,
	}, r.Counts())

	records := readCSV(t, w, buf)
	require.Equal(t, [][]string{
		RewardsHeader,
		{"5001", "produced", "6000", "0.000006"},
		{"5002", "skipped", "0", "0"},
		{"5003", "failed", "0", "0"},
		{"5500", "pending", "0", "0"},
	}, records)

	var out bytes.Buffer
	r.Table().Render(&out)
	require.Contains(t, strings.ToLower(out.String()), "in progress")
}

func TestFeeRewards(t *testing.T) {
	require.Equal(t, int64(0), FeeRewards(nil))
	require.Equal(t, int64(15), FeeRewards(&rpcfetch.Block{Rewards: []rpcfetch.Reward{
		{Lamports: 10, RewardType: rpcfetch.RewardTypeFee},
		{Lamports: 5, RewardType: rpcfetch.RewardTypeFee},
		{Lamports: 100, RewardType: rpcfetch.RewardTypeStaking},
	}}))
}
