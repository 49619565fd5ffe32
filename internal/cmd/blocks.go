package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fortiblox/stratus-reports/internal/types"
	"github.com/fortiblox/stratus-reports/pkg/collector"
	"github.com/fortiblox/stratus-reports/pkg/report"
)

var blocksOpts struct {
	startSlot uint64
	count     uint64
	out       string
}

var blocksCmd = &cobra.Command{
	Use:   "blocks",
	Short: "Per-slot transaction, compute unit, timing and reward metrics",
	Long: `Fetch every block in [start-slot, start-slot+count) and write one row per slot:
transaction and vote counts, compute units consumed, the leader's bank time and
the next leader's replay time from the metrics database, and block rewards.`,
	Example: "  stratus-reports blocks --start-slot 287000000 --count 100 -w 4",
	RunE: func(cmd *cobra.Command, args []string) error {
		if blocksOpts.count == 0 {
			return errors.New("--count must be positive")
		}
		env, err := setup(cmd.Context(), "blocks", needs{chain: true, metrics: true})
		if err != nil {
			return err
		}
		return env.finish(runBlocks(cmd, env))
	},
}

func runBlocks(cmd *cobra.Command, env *runEnv) error {
	w, err := env.createReport(blocksOpts.out, collector.BlockHeader)
	if err != nil {
		return err
	}

	analyzer := collector.NewBlockAnalyzer(env.src, collector.BlockConfig{
		StartSlot: blocksOpts.startSlot,
		Count:     blocksOpts.count,
		Workers:   env.workers(),
	})
	rows, err := analyzer.Run(cmd.Context(), w)
	if err = closeReport(w, err); err != nil {
		return err
	}

	t := collector.TotalBlocks(rows)
	renderTable(cmd, report.Table{
		Title:  fmt.Sprintf("Blocks %d..%d", blocksOpts.startSlot, blocksOpts.startSlot+blocksOpts.count-1),
		Header: []string{"slots", "produced", "missing", "failed", "txns", "vote_txns", "compute_units", "rewards_sol"},
		Rows: [][]string{{
			fmt.Sprint(t.Slots),
			fmt.Sprint(t.Produced),
			fmt.Sprint(t.Missing),
			fmt.Sprint(t.Failed),
			report.Uint(t.TotalTxn),
			report.Uint(t.VoteTxn),
			report.Uint(t.TotalCU),
			report.Float(types.LamportsToSOL(t.RewardLamports)),
		}},
		Footer: []string{"", "", "", "", "", "", "", w.Path()},
	})
	return nil
}

func init() {
	rootCmd.AddCommand(blocksCmd)
	f := blocksCmd.Flags()
	f.Uint64Var(&blocksOpts.startSlot, "start-slot", 0, "first slot to process")
	f.Uint64Var(&blocksOpts.count, "count", 5, "number of slots to process")
	f.StringVarP(&blocksOpts.out, "out", "o", "metrics.csv", "report file name inside --out-dir")
	_ = blocksCmd.MarkFlagRequired("start-slot")
}
