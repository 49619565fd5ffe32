// Package observability builds the structured logger shared by a report run.
package observability

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig controls logger construction.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string
	// Format is console or json for stderr output.
	Format string
	// Dir, when set, also writes JSON logs to <Dir>/<report>_<start>.log.
	Dir string

	Report string
	RunID  string
	Start  time.Time
}

// NewRunID returns a fresh identifier for one invocation.
func NewRunID() string {
	return uuid.NewString()
}

// NewLogger builds a logger tagged with the report name and run id. The
// returned function flushes and closes any log file.
func NewLogger(cfg LogConfig) (*zap.Logger, func() error, error) {
	level, err := zapcore.ParseLevel(defaultString(cfg.Level, "info"))
	if err != nil {
		return nil, nil, fmt.Errorf("parse log level: %w", err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.TimeKey = "ts"

	var stderrEnc zapcore.Encoder
	switch strings.ToLower(defaultString(cfg.Format, "console")) {
	case "console":
		consoleCfg := encCfg
		consoleCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		stderrEnc = zapcore.NewConsoleEncoder(consoleCfg)
	case "json":
		stderrEnc = zapcore.NewJSONEncoder(encCfg)
	default:
		return nil, nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(stderrEnc, zapcore.Lock(os.Stderr), level),
	}

	var file *lumberjack.Logger
	if cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log directory: %w", err)
		}
		start := cfg.Start
		if start.IsZero() {
			start = time.Now()
		}
		file = &lumberjack.Logger{
			Filename:   filepath.Join(cfg.Dir, LogFileName(cfg.Report, start)),
			MaxSize:    100,
			MaxBackups: 5,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(file), level))
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddCaller())
	if cfg.Report != "" {
		logger = logger.With(zap.String("report", cfg.Report))
	}
	if cfg.RunID != "" {
		logger = logger.With(zap.String("run_id", cfg.RunID))
	}

	closeFn := func() error {
		_ = logger.Sync()
		if file != nil {
			return file.Close()
		}
		return nil
	}
	return logger, closeFn, nil
}

// LogFileName names a run's log file after the report and its start time.
func LogFileName(report string, start time.Time) string {
	return fmt.Sprintf("%s_%s.log", defaultString(report, "stratus"), start.UTC().Format("2006-01-02_15-04-05"))
}

func defaultString(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
