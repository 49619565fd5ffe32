// Package report writes report rows as CSV.
//
// A Writer emits the header exactly once, then one row per unit of work.
// Paths ending in ".zst" are zstd-compressed. Every byte of CSV output is
// also fed to a BLAKE3 hasher so that two runs over the same range can be
// compared by digest.
package report

import (
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"
	"go.uber.org/zap"
)

// ErrClosed is returned when writing to a closed Writer.
var ErrClosed = errors.New("report writer is closed")

// RowWriter accepts one CSV record at a time.
type RowWriter interface {
	Write(record []string) error
}

// Options tune file output.
type Options struct {
	// Sidecar writes "<digest>  <name>" to path + ".b3" on Close.
	Sidecar bool
}

// Writer is a CSV report sink. It is safe for concurrent use.
type Writer struct {
	mu     sync.Mutex
	path   string
	csv    *csv.Writer
	hasher *blake3.Hasher
	closer []io.Closer
	rows   int
	closed bool
	opts   Options
	logger *zap.Logger
}

// NewWriter writes CSV to out. The header is written immediately.
func NewWriter(out io.Writer, header []string, logger *zap.Logger) (*Writer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	hasher := blake3.New()
	w := &Writer{
		csv:    csv.NewWriter(io.MultiWriter(out, hasher)),
		hasher: hasher,
		logger: logger,
	}
	if len(header) > 0 {
		if err := w.csv.Write(header); err != nil {
			return nil, fmt.Errorf("write header: %w", err)
		}
	}
	return w, nil
}

// Create opens path for a new report, creating parent directories.
func Create(path string, header []string, opts Options, logger *zap.Logger) (*Writer, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create report directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create report: %w", err)
	}

	var out io.Writer = f
	closers := []io.Closer{f}
	if strings.HasSuffix(path, ".zst") {
		enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("zstd writer: %w", err)
		}
		out = enc
		// Encoder must close before the file.
		closers = []io.Closer{enc, f}
	}

	w, err := NewWriter(out, header, logger)
	if err != nil {
		for _, c := range closers {
			c.Close()
		}
		return nil, err
	}
	w.path = path
	w.closer = closers
	w.opts = opts
	return w, nil
}

// Write appends one record.
func (w *Writer) Write(record []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	if err := w.csv.Write(record); err != nil {
		return fmt.Errorf("write row: %w", err)
	}
	w.rows++
	return nil
}

// Flush pushes buffered rows to the underlying writer.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.csv.Flush()
	return w.csv.Error()
}

// Rows returns the number of data rows written.
func (w *Writer) Rows() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rows
}

// Path returns the file path, or "" for writers created with NewWriter.
func (w *Writer) Path() string {
	return w.path
}

// Digest returns the hex BLAKE3 digest of everything written so far.
// Call after Flush or Close.
func (w *Writer) Digest() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return hex.EncodeToString(w.hasher.Sum(nil))
}

// Close flushes and closes the report.
func (w *Writer) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.csv.Flush()
	err := w.csv.Error()
	for _, c := range w.closer {
		if cerr := c.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	digest := hex.EncodeToString(w.hasher.Sum(nil))
	rows := w.rows
	w.mu.Unlock()

	if err != nil {
		return fmt.Errorf("close report: %w", err)
	}

	if w.path != "" && w.opts.Sidecar {
		line := fmt.Sprintf("%s  %s\n", digest, filepath.Base(w.path))
		if err := os.WriteFile(w.path+".b3", []byte(line), 0o644); err != nil {
			return fmt.Errorf("write digest: %w", err)
		}
	}

	w.logger.Info("report written",
		zap.String("path", w.path),
		zap.Int("rows", rows),
		zap.String("blake3", digest))
	return nil
}
