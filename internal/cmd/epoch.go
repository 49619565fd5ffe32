package cmd

import (
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fortiblox/stratus-reports/pkg/collector"
)

// epochFlags are shared by the schedule and rewards commands.
type epochFlags struct {
	identity string
	epoch    uint64
	out      string
}

func (f *epochFlags) register(cmd *cobra.Command, out string) {
	fs := cmd.Flags()
	fs.StringVar(&f.identity, "identity", "", "validator identity pubkey")
	fs.Uint64Var(&f.epoch, "epoch", 0, "epoch (default: current epoch)")
	fs.StringVarP(&f.out, "out", "o", out, "report file name inside --out-dir; {epoch} is replaced")
	_ = cmd.MarkFlagRequired("identity")
}

func (f *epochFlags) target(cmd *cobra.Command) (collector.EpochTarget, error) {
	id, err := parseIdentity("identity", f.identity)
	if err != nil {
		return collector.EpochTarget{}, err
	}
	t := collector.EpochTarget{Identity: id}
	if cmd.Flags().Changed("epoch") {
		epoch := f.epoch
		t.Epoch = &epoch
	}
	return t, nil
}

var (
	scheduleOpts epochFlags
	scheduleCSV  bool

	rewardsOpts epochFlags
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Leader slots of a validator in an epoch with time until each",
	RunE: func(cmd *cobra.Command, args []string) error {
		target, err := scheduleOpts.target(cmd)
		if err != nil {
			return err
		}
		env, err := setup(cmd.Context(), "schedule", needs{chain: true})
		if err != nil {
			return err
		}
		return env.finish(runSchedule(cmd, env, target))
	},
}

func runSchedule(cmd *cobra.Command, env *runEnv, target collector.EpochTarget) error {
	s, err := collector.BuildSchedule(cmd.Context(), env.src, target, nil)
	if err != nil {
		return err
	}
	if scheduleCSV {
		// Written after the fact: the file name needs the resolved epoch.
		w, err := env.createReport(epochFileName(scheduleOpts.out, s.Epoch), collector.ScheduleHeader)
		if err != nil {
			return err
		}
		for _, e := range s.Entries {
			if err = w.Write(e.Record()); err != nil {
				break
			}
		}
		if err = closeReport(w, err); err != nil {
			return err
		}
	}
	renderTable(cmd, s.Table())
	return nil
}

var rewardsCmd = &cobra.Command{
	Use:   "rewards",
	Short: "Fee rewards of every block a validator produced in an epoch",
	Long: `Read the validator's leader slots for the epoch and sum the Fee rewards of each
produced block. Slots still in the future are reported as pending, so the report
can be rerun until the epoch is complete.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		target, err := rewardsOpts.target(cmd)
		if err != nil {
			return err
		}
		env, err := setup(cmd.Context(), "rewards", needs{chain: true})
		if err != nil {
			return err
		}
		return env.finish(runRewards(cmd, env, target))
	},
}

func runRewards(cmd *cobra.Command, env *runEnv, target collector.EpochTarget) error {
	leader, err := collector.LeaderSlots(cmd.Context(), env.src, target)
	if err != nil {
		return err
	}

	w, err := env.createReport(epochFileName(rewardsOpts.out, leader.Epoch), collector.RewardsHeader)
	if err != nil {
		return err
	}
	rewards, err := collector.RewardsForSlots(cmd.Context(), env.src, leader, env.workers(), w)
	if err = closeReport(w, err); err != nil {
		return err
	}
	renderTable(cmd, rewards.Table())
	return nil
}

func epochFileName(pattern string, epoch uint64) string {
	return strings.ReplaceAll(pattern, "{epoch}", strconv.FormatUint(epoch, 10))
}

func init() {
	scheduleOpts.register(scheduleCmd, "leader_schedule_{epoch}.csv")
	scheduleCmd.Flags().BoolVar(&scheduleCSV, "csv", false, "also write the schedule as CSV")
	rewardsOpts.register(rewardsCmd, "block_rewards_{epoch}.csv")

	rootCmd.AddCommand(scheduleCmd, rewardsCmd)
}
