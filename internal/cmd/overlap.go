package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fortiblox/stratus-reports/internal/types"
	"github.com/fortiblox/stratus-reports/pkg/collector"
	"github.com/fortiblox/stratus-reports/pkg/report"
)

var overlapOpts struct {
	startSlot uint64
	count     uint64
	reference string
	out       string
}

var overlapCmd = &cobra.Command{
	Use:   "overlap",
	Short: "How replay on the next leader and a reference host overlaps banking",
	Long: `For every slot, read the leader's log time and bank time from the metrics
database and the replay stats of the next leader (four slots later) and of a
reference host for the same slot. Overlap is replay log time minus leader log
time minus replay elapsed time.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if overlapOpts.count == 0 {
			return errors.New("--count must be positive")
		}
		var ref types.Pubkey
		if overlapOpts.reference != "" {
			var err error
			if ref, err = parseIdentity("reference", overlapOpts.reference); err != nil {
				return err
			}
		}
		env, err := setup(cmd.Context(), "overlap", needs{chain: true, metrics: true})
		if err != nil {
			return err
		}
		return env.finish(runOverlap(cmd, env, ref))
	},
}

func runOverlap(cmd *cobra.Command, env *runEnv, ref types.Pubkey) error {
	w, err := env.createReport(overlapOpts.out, collector.OverlapHeader)
	if err != nil {
		return err
	}
	rows, err := collector.CollectOverlap(cmd.Context(), env.src, collector.OverlapConfig{
		StartSlot: overlapOpts.startSlot,
		Count:     overlapOpts.count,
		Workers:   env.workers(),
		Reference: ref,
	}, w)
	if err = closeReport(w, err); err != nil {
		return err
	}

	counts := map[string]int{}
	for _, r := range rows {
		counts[r.Status]++
	}
	renderTable(cmd, report.Table{
		Title:  fmt.Sprintf("Replay overlap %d..%d", overlapOpts.startSlot, overlapOpts.startSlot+overlapOpts.count-1),
		Header: []string{"slots", collector.StatusOK, collector.StatusMissing, collector.StatusFailed, "report"},
		Rows: [][]string{{
			fmt.Sprint(len(rows)),
			fmt.Sprint(counts[collector.StatusOK]),
			fmt.Sprint(counts[collector.StatusMissing]),
			fmt.Sprint(counts[collector.StatusFailed]),
			w.Path(),
		}},
	})
	return nil
}

func init() {
	rootCmd.AddCommand(overlapCmd)
	f := overlapCmd.Flags()
	f.Uint64Var(&overlapOpts.startSlot, "start-slot", 0, "first slot to process")
	f.Uint64Var(&overlapOpts.count, "count", 5, "number of slots to process")
	f.StringVar(&overlapOpts.reference, "reference", collector.DefaultReferenceHost.String(), "reference host identity")
	f.StringVarP(&overlapOpts.out, "out", "o", "leader_replay_stats.csv", "report file name inside --out-dir")
	_ = overlapCmd.MarkFlagRequired("start-slot")
}
