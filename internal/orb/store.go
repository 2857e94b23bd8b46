// Package orb implements the Opening Range Store: capturing each
// universe symbol's opening range once during the ORB_CAPTURE window and
// serving it read-only for the rest of the day.
package orb

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/eddiefleurent/orb-agent/internal/marketdata"
	"github.com/eddiefleurent/orb-agent/internal/models"
)

// MaxCaptureAttempts bounds the retry-on-partial-coverage loop: the ORB
// window itself is fifteen minutes wide (6:30-6:45 Pacific), so capture
// gets a handful of attempts before the orchestrator must move on without it.
const MaxCaptureAttempts = 3

// Store holds one OpeningRange per symbol for the current trading day. It
// is written exactly once per symbol by Capture and read many times after,
// so reads never block on the capture mutex beyond a simple RLock.
type Store struct {
	gw marketdata.Gateway

	mu      sync.RWMutex
	ranges  map[string]models.OpeningRange
	failed  map[string]error
	capture bool // true once Capture has been called, regardless of outcome
}

// New builds an empty Store in front of gw.
func New(gw marketdata.Gateway) *Store {
	return &Store{
		gw:     gw,
		ranges: make(map[string]models.OpeningRange),
		failed: make(map[string]error),
	}
}

// Capture fetches the opening-range bar for every symbol in universe over
// [start, end) and retries any symbol whose bar comes back invalid or
// errors, up to MaxCaptureAttempts. Symbols still failing after that are
// recorded so SO_COLLECTION can treat them as unavailable rather than
// blocking the whole day.
func (s *Store) Capture(ctx context.Context, universe []string, date string, start, end time.Time) error {
	s.mu.Lock()
	s.capture = true
	s.mu.Unlock()

	pending := append([]string(nil), universe...)

	for attempt := 1; attempt <= MaxCaptureAttempts && len(pending) > 0; attempt++ {
		var stillPending []string
		for _, symbol := range pending {
			bar, err := s.gw.Bar(ctx, symbol, start, end)
			if err != nil {
				stillPending = append(stillPending, symbol)
				s.mu.Lock()
				s.failed[symbol] = err
				s.mu.Unlock()
				continue
			}

			or := models.OpeningRange{
				Symbol: symbol,
				Date:   date,
				High:   bar.High,
				Low:    bar.Low,
				Open:   bar.Open,
				Close:  bar.Close,
				Volume: bar.Volume,
			}
			if verr := or.Validate(); verr != nil {
				stillPending = append(stillPending, symbol)
				s.mu.Lock()
				s.failed[symbol] = verr
				s.mu.Unlock()
				continue
			}

			s.mu.Lock()
			s.ranges[symbol] = or
			delete(s.failed, symbol)
			s.mu.Unlock()
		}
		pending = stillPending
	}

	return nil
}

// Get returns the captured opening range for symbol, or false if capture
// never succeeded for it.
func (s *Store) Get(symbol string) (models.OpeningRange, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	or, ok := s.ranges[symbol]
	return or, ok
}

// Failed reports whether symbol's capture never succeeded and, if so, the
// last error observed.
func (s *Store) Failed(symbol string) (error, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	err, ok := s.failed[symbol]
	return err, ok
}

// Symbols returns every symbol with a successfully captured range.
func (s *Store) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.ranges))
	for sym := range s.ranges {
		out = append(out, sym)
	}
	return out
}

// Coverage reports the fraction of universe successfully captured, used by
// the data-quality failsafe to decide whether today is a red day for
// reasons of missing data rather than price action.
func (s *Store) Coverage(universe []string) float64 {
	if len(universe) == 0 {
		return 1
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, sym := range universe {
		if _, ok := s.ranges[sym]; ok {
			n++
		}
	}
	return float64(n) / float64(len(universe))
}

// Reset clears the store for a new trading day.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ranges = make(map[string]models.OpeningRange)
	s.failed = make(map[string]error)
	s.capture = false
}

// ErrNotCaptured is returned by callers that require a range to exist.
var ErrNotCaptured = fmt.Errorf("opening range not captured")
