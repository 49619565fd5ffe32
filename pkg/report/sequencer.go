package report

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrUnknownKey is returned when a row arrives for a key that was not declared.
	ErrUnknownKey = errors.New("unknown row key")

	// ErrDuplicateKey is returned when a key is added twice.
	ErrDuplicateKey = errors.New("duplicate row key")

	// ErrIncomplete is returned by Close when some keys never arrived.
	ErrIncomplete = errors.New("rows missing at close")
)

// Sequencer reorders rows produced concurrently.
//
// Rows may be added in any order. Each row is written as soon as every row
// with a smaller key has been written, so output is sorted by key regardless
// of completion order.
type Sequencer struct {
	mu      sync.Mutex
	w       RowWriter
	order   []uint64
	next    int
	pending map[uint64][]string
	known   map[uint64]bool
}

// NewSequencer expects exactly one row for each of keys.
func NewSequencer(w RowWriter, keys []uint64) *Sequencer {
	order := append([]uint64(nil), keys...)
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	known := make(map[uint64]bool, len(order))
	for _, k := range order {
		known[k] = true
	}
	return &Sequencer{
		w:       w,
		order:   order,
		pending: make(map[uint64][]string),
		known:   known,
	}
}

// Add records the row for key and writes every row that is now in order.
func (s *Sequencer) Add(key uint64, record []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.known[key] {
		return fmt.Errorf("%w: %d", ErrUnknownKey, key)
	}
	if _, dup := s.pending[key]; dup || s.written(key) {
		return fmt.Errorf("%w: %d", ErrDuplicateKey, key)
	}
	s.pending[key] = record

	for s.next < len(s.order) {
		k := s.order[s.next]
		row, ok := s.pending[k]
		if !ok {
			break
		}
		if err := s.w.Write(row); err != nil {
			return err
		}
		delete(s.pending, k)
		s.next++
	}
	return nil
}

func (s *Sequencer) written(key uint64) bool {
	i := sort.Search(len(s.order), func(i int) bool { return s.order[i] >= key })
	return i < s.next
}

// Pending returns how many rows are buffered waiting for an earlier key.
func (s *Sequencer) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Close writes buffered rows past any gaps, still in key order.
func (s *Sequencer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	missing := 0
	for ; s.next < len(s.order); s.next++ {
		k := s.order[s.next]
		row, ok := s.pending[k]
		if !ok {
			missing++
			continue
		}
		if err := s.w.Write(row); err != nil {
			return err
		}
		delete(s.pending, k)
	}
	if missing > 0 {
		return fmt.Errorf("%w: %d", ErrIncomplete, missing)
	}
	return nil
}
