package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string

	// v holds every setting. Flags are bound to it so a flag given on the
	// command line wins over the config file and STRATUS_* variables.
	v = viper.New()

	// Version info set by main package
	versionInfo struct {
		Version   string
		Commit    string
		BuildDate string
	}
)

// SetVersionInfo is called by main package to set version information
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

var rootCmd = &cobra.Command{
	Use:   "stratus-reports",
	Short: "Rate-limited data collection reports for Solana clusters",
	Long: `stratus-reports collects block, reward, schedule and telemetry data from a
cluster's JSON-RPC endpoint and metrics database and writes CSV reports.

Every remote call shares one rate budget (--req-per-sec) and is retried up to
--max-attempts times. A run that cannot reach the RPC endpoint exits with code 2.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. SIGINT and SIGTERM cancel the run's context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

// flagKeys maps persistent flags to configuration keys.
var flagKeys = map[string]string{
	"cluster":          "cluster",
	"rpc-url":          "rpc_urls",
	"commitment":       "commitment",
	"request-timeout":  "request_timeout",
	"workers":          "workers",
	"req-per-sec":      "rate_limit.req_per_sec",
	"limiter":          "rate_limit.strategy",
	"max-attempts":     "retry.max_attempts",
	"backoff":          "retry.backoff",
	"metrics-url":      "metrics_db.base_url",
	"metrics-db":       "metrics_db.database",
	"out-dir":          "output.dir",
	"compress":         "output.compress",
	"digest":           "output.digest",
	"log-level":        "log.level",
	"log-format":       "log.format",
	"log-dir":          "log.dir",
	"metrics-textfile": "telemetry.textfile",
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "YAML config file (optional)")
	pf.String("cluster", "mainnet", "cluster: m|mainnet or t|testnet")
	pf.StringSlice("rpc-url", nil, "JSON-RPC endpoint, repeatable (default depends on --cluster)")
	pf.String("commitment", "confirmed", "commitment for getSlot and getEpochInfo")
	pf.Duration("request-timeout", 0, "per-request HTTP timeout (default 30s)")
	pf.IntP("workers", "w", 1, "concurrent units of work")
	pf.Int("req-per-sec", 10, "calls per second shared by every remote endpoint")
	pf.String("limiter", "interval", "rate limit strategy: interval or window")
	pf.Int("max-attempts", 3, "attempts per remote call")
	pf.String("backoff", "none", "delay between attempts: none, constant or exponential")
	pf.String("metrics-url", "", "metrics query proxy URL")
	pf.String("metrics-db", "", "metrics database (default depends on --cluster)")
	pf.String("out-dir", "reports", "directory for report files")
	pf.Bool("compress", false, "write zstd-compressed reports (.csv.zst)")
	pf.Bool("digest", false, "write a BLAKE3 digest sidecar (.b3) next to each report")
	pf.String("log-level", "info", "log level: debug, info, warn, error")
	pf.String("log-format", "console", "stderr log format: console or json")
	pf.String("log-dir", "", "also write JSON logs to a per-run file in this directory")
	pf.String("metrics-textfile", "", "write run metrics to this Prometheus textfile")

	for flag, key := range flagKeys {
		_ = v.BindPFlag(key, pf.Lookup(flag))
	}
}
