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

// MaxBlockComputeUnits is the block compute limit cu_x is measured against.
const MaxBlockComputeUnits = 48_000_000

// NextLeaderOffset is how many slots after a slot its replaying leader takes over.
const NextLeaderOffset = 4

// BlockHeader is the column row of the blocks report.
var BlockHeader = []string{
	"slot", "leader", "total_txn", "total_vote_txn", "other_txns", "total_cu", "cu_x",
	"leader_time_ms", "replay_time_ms", "block_rewards", "block_rewards_sol", "status",
}

// BlockSummary holds the counts derived from a single block.
type BlockSummary struct {
	TotalTxn       uint64
	VoteTxn        uint64
	OtherTxn       uint64
	TotalCU        uint64
	CUX            float64
	RewardLamports int64
}

// SummarizeBlock counts transactions, compute units and the leader's fee
// reward in b. A transaction is a vote if any of its account keys is the
// vote program.
func SummarizeBlock(b *rpcfetch.Block) BlockSummary {
	var s BlockSummary
	if b == nil {
		return s
	}
	s.TotalTxn = uint64(len(b.Transactions))
	for _, tx := range b.Transactions {
		if tx.IsVote {
			s.VoteTxn++
		}
		s.TotalCU += tx.ComputeUnitsConsumed
	}
	s.OtherTxn = s.TotalTxn - s.VoteTxn
	s.CUX = report.Round(float64(s.TotalCU)/MaxBlockComputeUnits, 2)
	s.RewardLamports = FeeRewards(b)
	return s
}

// BlockRow is one line of the blocks report.
type BlockRow struct {
	Slot    uint64
	Leader  types.Pubkey
	Summary BlockSummary
	// LeaderTimeMs is the leader's bank time for the slot.
	LeaderTimeMs float64
	// ReplayTimeMs is how long the next leader took to replay the slot.
	ReplayTimeMs float64
	Status       string
}

// Record renders the row in BlockHeader order.
func (r BlockRow) Record() []string {
	leader := ""
	if !r.Leader.IsZero() {
		leader = r.Leader.String()
	}
	return []string{
		report.Uint(r.Slot),
		leader,
		report.Uint(r.Summary.TotalTxn),
		report.Uint(r.Summary.VoteTxn),
		report.Uint(r.Summary.OtherTxn),
		report.Uint(r.Summary.TotalCU),
		report.Fixed(r.Summary.CUX, 2),
		report.Fixed(r.LeaderTimeMs, 2),
		report.Fixed(r.ReplayTimeMs, 2),
		report.Int(r.Summary.RewardLamports),
		report.Float(types.LamportsToSOL(r.Summary.RewardLamports)),
		r.Status,
	}
}

// BlockConfig selects the slots of a blocks report.
type BlockConfig struct {
	StartSlot uint64
	Count     uint64
	Workers   int
}

// BlockAnalyzer produces the blocks report.
type BlockAnalyzer struct {
	src *Sources
	cfg BlockConfig
}

// NewBlockAnalyzer creates an analyzer over src.
func NewBlockAnalyzer(src *Sources, cfg BlockConfig) *BlockAnalyzer {
	return &BlockAnalyzer{src: src, cfg: cfg}
}

// Run processes every slot and writes one row per slot to w in ascending
// slot order. The returned rows are in the same order.
func (a *BlockAnalyzer) Run(ctx context.Context, w report.RowWriter) ([]BlockRow, error) {
	if err := a.src.needChain(); err != nil {
		return nil, err
	}
	if a.cfg.Count == 0 {
		return nil, nil
	}

	log := a.src.logger()
	log.Info("analyzing blocks",
		zap.Uint64("start_slot", a.cfg.StartSlot),
		zap.Uint64("end_slot", a.cfg.StartSlot+a.cfg.Count-1),
		zap.Int("workers", max(a.cfg.Workers, 1)))

	leaders := a.src.slotLeaders(ctx, a.cfg.StartSlot, a.cfg.Count+NextLeaderOffset)

	slots := slotRange(a.cfg.StartSlot, a.cfg.Count)
	rows := make([]BlockRow, len(slots))
	seq := report.NewSequencer(w, slots)

	err := forEach(ctx, a.cfg.Workers, slots, func(ctx context.Context, i int, slot uint64) error {
		row := a.processSlot(ctx, leaders, slot)
		rows[i] = row
		a.src.rowDone(row.Status)
		return seq.Add(slot, row.Record())
	})
	if err != nil {
		return rows, fmt.Errorf("blocks report: %w", err)
	}
	if err := seq.Close(); err != nil {
		return rows, fmt.Errorf("blocks report: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return rows, err
	}
	return rows, nil
}

func (a *BlockAnalyzer) processSlot(ctx context.Context, leaders []types.Pubkey, slot uint64) BlockRow {
	log := a.src.logger().With(zap.Uint64("slot", slot))
	log.Info("processing slot")

	row := BlockRow{Slot: slot}
	leader, haveLeader := leaderAt(leaders, a.cfg.StartSlot, slot)
	if haveLeader {
		row.Leader = leader
	}

	block := a.src.fetchBlock(ctx, slot)
	switch block.Status {
	case retry.StatusMissing:
		row.Status = StatusMissing
		return row
	case retry.StatusFailure:
		row.Status = StatusFailed
		return row
	}
	row.Summary = SummarizeBlock(block.Value)
	row.Status = StatusOK

	if a.src.Metrics == nil || a.src.Query == nil {
		return row
	}

	if haveLeader {
		if out := a.src.leaderStats(ctx, leader, slot); out.OK() {
			row.LeaderTimeMs = out.Value.BankTimeMs
		}
	}
	if next, ok := leaderAt(leaders, a.cfg.StartSlot, slot+NextLeaderOffset); ok {
		if out := a.src.replayStats(ctx, next, slot); out.OK() {
			row.ReplayTimeMs = out.Value.ReplayElapsedMs()
		}
	} else if haveLeader {
		log.Debug("next leader unknown, replay time left at zero")
	}
	return row
}

// BlockTotals aggregates a finished blocks report.
type BlockTotals struct {
	Slots          int
	Produced       int
	Missing        int
	Failed         int
	TotalTxn       uint64
	VoteTxn        uint64
	TotalCU        uint64
	RewardLamports int64
}

// TotalBlocks aggregates rows.
func TotalBlocks(rows []BlockRow) BlockTotals {
	var t BlockTotals
	for _, r := range rows {
		t.Slots++
		switch r.Status {
		case StatusOK:
			t.Produced++
		case StatusMissing:
			t.Missing++
		case StatusFailed:
			t.Failed++
		}
		t.TotalTxn += r.Summary.TotalTxn
		t.VoteTxn += r.Summary.VoteTxn
		t.TotalCU += r.Summary.TotalCU
		t.RewardLamports += r.Summary.RewardLamports
	}
	return t
}
