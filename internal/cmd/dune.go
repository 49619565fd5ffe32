package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fortiblox/stratus-reports/pkg/collector"
	"github.com/fortiblox/stratus-reports/pkg/dune"
	"github.com/fortiblox/stratus-reports/pkg/report"
)

var duneOpts struct {
	queryID  string
	pageSize int
	out      string
}

var duneCmd = &cobra.Command{
	Use:   "dune",
	Short: "Export the latest results of a saved Dune query to CSV",
	Long: `Page through the CSV results of a saved Dune query and combine them into one
file. The API key is read from --api-key, dune.api_key or STRATUS_DUNE_API_KEY.`,
	Example: "  STRATUS_DUNE_API_KEY=... stratus-reports dune --query-id 4002940",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := setup(cmd.Context(), "dune", needs{dune: true})
		if err != nil {
			return err
		}
		return env.finish(runDune(cmd, env))
	},
}

func runDune(cmd *cobra.Command, env *runEnv) error {
	w, err := env.createReport(duneOpts.out, nil)
	if err != nil {
		return err
	}
	exp, err := collector.ExportDune(cmd.Context(), env.src, duneOpts.queryID, duneOpts.pageSize, w)
	if err = closeReport(w, err); err != nil {
		return err
	}
	renderTable(cmd, report.Table{
		Title:  "Dune query " + exp.QueryID,
		Header: []string{"pages", "rows", "report"},
		Rows:   [][]string{{fmt.Sprint(exp.Pages), fmt.Sprint(exp.Rows), w.Path()}},
	})
	return nil
}

func init() {
	rootCmd.AddCommand(duneCmd)
	f := duneCmd.Flags()
	f.StringVar(&duneOpts.queryID, "query-id", "", "saved query id")
	f.IntVar(&duneOpts.pageSize, "page-size", dune.DefaultPageSize, "rows per request")
	f.StringVarP(&duneOpts.out, "out", "o", "dune_query_results_combined.csv", "report file name inside --out-dir")
	f.String("api-key", "", "Dune API key")
	f.String("dune-url", "", "Dune API base URL")
	_ = v.BindPFlag("dune.api_key", f.Lookup("api-key"))
	_ = v.BindPFlag("dune.base_url", f.Lookup("dune-url"))
	_ = duneCmd.MarkFlagRequired("query-id")
}
