package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. STRATUS_RATE_LIMIT_REQ_PER_SEC.
const EnvPrefix = "STRATUS"

// Config is the run configuration. Values are layered defaults, then the
// optional YAML file, then STRATUS_* environment variables, then flags.
type Config struct {
	Cluster        string        `mapstructure:"cluster"`
	RPCURLs        []string      `mapstructure:"rpc_urls"`
	Commitment     string        `mapstructure:"commitment"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	Workers        int           `mapstructure:"workers"`

	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Probe     ProbeConfig     `mapstructure:"probe"`
	MetricsDB MetricsDBConfig `mapstructure:"metrics_db"`
	Output    OutputConfig    `mapstructure:"output"`
	Log       LogConfig       `mapstructure:"log"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Jito      JitoConfig      `mapstructure:"jito"`
	Dune      DuneConfig      `mapstructure:"dune"`
}

// RateLimitConfig is the shared call budget.
type RateLimitConfig struct {
	ReqPerSec int    `mapstructure:"req_per_sec"`
	Strategy  string `mapstructure:"strategy"`
}

// RetryConfig bounds per-call retries.
type RetryConfig struct {
	MaxAttempts int `mapstructure:"max_attempts"`
	// Backoff is none, constant or exponential.
	Backoff     string        `mapstructure:"backoff"`
	Interval    time.Duration `mapstructure:"interval"`
	MaxInterval time.Duration `mapstructure:"max_interval"`
}

// ProbeConfig bounds the startup connectivity check.
type ProbeConfig struct {
	Attempts int           `mapstructure:"attempts"`
	Interval time.Duration `mapstructure:"interval"`
}

// MetricsDBConfig points at the metrics query proxy.
type MetricsDBConfig struct {
	BaseURL  string `mapstructure:"base_url"`
	Database string `mapstructure:"database"`
}

// OutputConfig controls report files.
type OutputConfig struct {
	Dir      string `mapstructure:"dir"`
	Compress bool   `mapstructure:"compress"`
	Digest   bool   `mapstructure:"digest"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Dir    string `mapstructure:"dir"`
}

// TelemetryConfig controls the metrics textfile.
type TelemetryConfig struct {
	Textfile string `mapstructure:"textfile"`
}

// JitoConfig points at the Kobe API.
type JitoConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

// DuneConfig holds Dune API access.
type DuneConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

// Default RPC endpoints per cluster.
var defaultRPC = map[string]string{
	"mainnet": "https://api.mainnet-beta.solana.com",
	"testnet": "https://api.testnet.solana.com",
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("cluster", "mainnet")
	v.SetDefault("rpc_urls", []string{})
	v.SetDefault("commitment", "confirmed")
	v.SetDefault("request_timeout", "30s")
	v.SetDefault("workers", 1)

	v.SetDefault("rate_limit.req_per_sec", 10)
	v.SetDefault("rate_limit.strategy", "interval")

	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.backoff", "none")
	v.SetDefault("retry.interval", "500ms")
	v.SetDefault("retry.max_interval", "5s")

	v.SetDefault("probe.attempts", 10)
	v.SetDefault("probe.interval", "2s")

	v.SetDefault("metrics_db.base_url", "https://metrics.solana.com:3000/api/datasources/proxy/uid/HsKEnOt4z/query")
	v.SetDefault("metrics_db.database", "")

	v.SetDefault("output.dir", "reports")
	v.SetDefault("output.compress", false)
	v.SetDefault("output.digest", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.dir", "")

	v.SetDefault("telemetry.textfile", "")

	v.SetDefault("jito.base_url", "https://kobe.mainnet.jito.network/api/v1")
	v.SetDefault("dune.base_url", "https://api.dune.com/api/v1")
	v.SetDefault("dune.api_key", "")
}

// Load reads configuration into a Config. file may be empty.
func Load(v *viper.Viper, file string) (*Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	c.Cluster = NormalizeCluster(c.Cluster)

	// A single comma-separated env value arrives as one element.
	var urls []string
	for _, u := range c.RPCURLs {
		for _, part := range strings.Split(u, ",") {
			if part = strings.TrimSpace(part); part != "" {
				urls = append(urls, part)
			}
		}
	}
	if len(urls) == 0 {
		if def, ok := defaultRPC[c.Cluster]; ok {
			urls = []string{def}
		}
	}
	c.RPCURLs = urls
}

// NormalizeCluster maps short cluster names to mainnet or testnet.
func NormalizeCluster(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "m", "mainnet", "mainnet-beta":
		return "mainnet"
	case "t", "testnet":
		return "testnet"
	default:
		return s
	}
}

// Validate checks the configuration for values no run can use.
func (c *Config) Validate() error {
	var errs []error
	if _, ok := defaultRPC[c.Cluster]; !ok {
		errs = append(errs, fmt.Errorf("cluster must be mainnet or testnet, got %q", c.Cluster))
	}
	if c.RateLimit.ReqPerSec <= 0 {
		errs = append(errs, fmt.Errorf("rate_limit.req_per_sec must be positive, got %d", c.RateLimit.ReqPerSec))
	}
	switch c.RateLimit.Strategy {
	case "", "interval", "window":
	default:
		errs = append(errs, fmt.Errorf("rate_limit.strategy must be interval or window, got %q", c.RateLimit.Strategy))
	}
	switch c.Retry.Backoff {
	case "", "none", "constant", "exponential":
	default:
		errs = append(errs, fmt.Errorf("retry.backoff must be none, constant or exponential, got %q", c.Retry.Backoff))
	}
	if c.Retry.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("retry.max_attempts must be positive, got %d", c.Retry.MaxAttempts))
	}
	if c.Workers <= 0 {
		errs = append(errs, fmt.Errorf("workers must be positive, got %d", c.Workers))
	}
	return errors.Join(errs...)
}
