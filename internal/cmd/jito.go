package cmd

import (
	"github.com/spf13/cobra"

	"github.com/fortiblox/stratus-reports/pkg/collector"
)

var jitoOpts struct {
	voteAccount string
	epochs      int
	csv         bool
	out         string
}

var jitoCmd = &cobra.Command{
	Use:   "jito",
	Short: "MEV APY of a validator and of the network over recent epochs",
	Long: `Read MEV rewards from the Jito Kobe API for the epochs before the latest one and
report the validator's APY, its APY net of MEV commission, and the network APY
compounded from the median reward per lamport.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := parseIdentity("vote-account", jitoOpts.voteAccount); err != nil {
			return err
		}
		env, err := setup(cmd.Context(), "jito", needs{jito: true})
		if err != nil {
			return err
		}
		return env.finish(runJito(cmd, env))
	},
}

func runJito(cmd *cobra.Command, env *runEnv) error {
	if !jitoOpts.csv {
		rep, err := collector.CollectJitoAPY(cmd.Context(), env.src, jitoOpts.voteAccount, jitoOpts.epochs, nil)
		if err != nil {
			return err
		}
		renderTable(cmd, rep.Table())
		return nil
	}

	w, err := env.createReport(jitoOpts.out, collector.JitoHeader)
	if err != nil {
		return err
	}
	rep, err := collector.CollectJitoAPY(cmd.Context(), env.src, jitoOpts.voteAccount, jitoOpts.epochs, w)
	if err = closeReport(w, err); err != nil {
		return err
	}
	renderTable(cmd, rep.Table())
	return nil
}

func init() {
	rootCmd.AddCommand(jitoCmd)
	f := jitoCmd.Flags()
	f.StringVar(&jitoOpts.voteAccount, "vote-account", "", "validator vote account")
	f.IntVar(&jitoOpts.epochs, "epochs", collector.DefaultJitoEpochs, "number of completed epochs to read")
	f.BoolVar(&jitoOpts.csv, "csv", false, "also write per-epoch rows as CSV")
	f.StringVarP(&jitoOpts.out, "out", "o", "jito_apy.csv", "report file name inside --out-dir")
	f.String("jito-url", "", "Kobe API base URL")
	_ = v.BindPFlag("jito.base_url", f.Lookup("jito-url"))
	_ = jitoCmd.MarkFlagRequired("vote-account")
}
