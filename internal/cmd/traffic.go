package cmd

import (
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/fortiblox/stratus-reports/internal/types"
	"github.com/fortiblox/stratus-reports/pkg/collector"
	"github.com/fortiblox/stratus-reports/pkg/report"
)

var trafficOpts struct {
	since      string
	lookback   time.Duration
	identities []string
	dir        string
}

var trafficCmd = &cobra.Command{
	Use:   "traffic",
	Short: "Dump QUIC forward and sigverify samples per cluster node",
	Long: `List the cluster's nodes with getClusterNodes (or use --identity) and write each
node's QUIC forward and sigverify samples since --since into <dir>/<identity>.csv.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		since, err := parseSince(trafficOpts.since, trafficOpts.lookback, time.Now())
		if err != nil {
			return err
		}
		ids := make([]types.Pubkey, 0, len(trafficOpts.identities))
		for _, s := range trafficOpts.identities {
			id, err := parseIdentity("identity", s)
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}

		env, err := setup(cmd.Context(), "traffic", needs{chain: len(ids) == 0, metrics: true})
		if err != nil {
			return err
		}
		return env.finish(runTraffic(cmd, env, since, ids))
	},
}

func runTraffic(cmd *cobra.Command, env *runEnv, since time.Time, ids []types.Pubkey) error {
	dir := trafficOpts.dir
	if dir == "" {
		dir = filepath.Join(env.cfg.Output.Dir, "traffic")
	}
	results, err := collector.CollectTraffic(cmd.Context(), env.src, collector.TrafficConfig{
		Since:      since,
		Dir:        dir,
		Identities: ids,
		Workers:    env.workers(),
		Compress:   env.cfg.Output.Compress,
		Options:    env.options(),
	})
	if err != nil {
		return err
	}

	t := report.Table{
		Title:  fmt.Sprintf("Network traffic since %s", since.UTC().Format(time.RFC3339)),
		Header: []string{"identity", "quic_rows", "sigverify_rows", "status"},
	}
	written := 0
	for _, r := range results {
		if r.Status != collector.StatusOK {
			continue
		}
		written++
		t.Rows = append(t.Rows, []string{r.Identity.String(), fmt.Sprint(r.QuicRows), fmt.Sprint(r.SigverifyRows), r.Status})
	}
	t.Footer = []string{fmt.Sprintf("%d of %d nodes", written, len(results)), "", "", dir}
	renderTable(cmd, t)
	return nil
}

// parseSince accepts RFC 3339 or Unix milliseconds. An empty value means
// lookback before now.
func parseSince(s string, lookback time.Duration, now time.Time) (time.Time, error) {
	if s == "" {
		return now.Add(-lookback), nil
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("--since: want RFC 3339 or unix milliseconds, got %q", s)
	}
	return t, nil
}

func init() {
	rootCmd.AddCommand(trafficCmd)
	f := trafficCmd.Flags()
	f.StringVar(&trafficOpts.since, "since", "", "start time, RFC 3339 or unix milliseconds (default: now minus --lookback)")
	f.DurationVar(&trafficOpts.lookback, "lookback", time.Hour, "window used when --since is not set")
	f.StringSliceVar(&trafficOpts.identities, "identity", nil, "node identity, repeatable (default: every node from getClusterNodes)")
	f.StringVar(&trafficOpts.dir, "dir", "", "directory for per-node files (default: <out-dir>/traffic)")
}
