package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/orb-agent/internal/alert"
	"github.com/eddiefleurent/orb-agent/internal/executor"
	"github.com/eddiefleurent/orb-agent/internal/models"
	"github.com/eddiefleurent/orb-agent/internal/quotecache"
	"github.com/eddiefleurent/orb-agent/internal/retry"
	"github.com/eddiefleurent/orb-agent/internal/storage"
)

// Runner drives one 30s monitoring tick over every position in a
// PositionBook: refresh quotes, progress stops, evaluate exit triggers,
// and execute (and persist) any exits it finds. It holds no day-state of
// its own beyond the RSI Tracker, matching the Orchestrator's sole
// ownership of OpenPositions.
type Runner struct {
	cache    *quotecache.Cache
	exec     *executor.Executor
	store    storage.Interface
	sink     alert.Sink
	log      *logrus.Logger
	tracker  *Tracker
	indicate quotecache.IndicatorFunc
}

// NewRunner wires a Runner from its collaborators. indicatorFn supplies
// the RSI reading the cache uses to serve Cache.Indicators calls.
func NewRunner(cache *quotecache.Cache, exec *executor.Executor, store storage.Interface, sink alert.Sink, log *logrus.Logger, indicatorFn quotecache.IndicatorFunc) *Runner {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Runner{cache: cache, exec: exec, store: store, sink: sink, log: log, tracker: NewTracker(), indicate: indicatorFn}
}

// TickResult summarizes one monitoring pass over the book.
type TickResult struct {
	Closed []models.ClosedTrade
	Errors []error
}

// Tick fetches a fresh quote for every open position, advances stops,
// evaluates exit triggers and closes any position that fires one. date is
// the trading day used for the trade-stream append. Account mutations are
// applied through book.Close, which serializes them under one lock.
func (r *Runner) Tick(ctx context.Context, book *models.PositionBook, date string, now time.Time, forcedClose bool, health Health) TickResult {
	var result TickResult

	positions := book.Snapshot()
	if len(positions) == 0 {
		return result
	}

	symbols := make([]string, 0, len(positions))
	for _, p := range positions {
		symbols = append(symbols, p.Symbol)
	}
	quotes, err := r.cache.Quotes(ctx, symbols)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Errorf("monitor: batch quote: %w", err))
		return result
	}

	for _, snap := range positions {
		q, ok := quotes[snap.Symbol]
		if !ok {
			r.log.WithField("symbol", snap.Symbol).Warn("monitor: no quote this tick, skipping")
			continue
		}

		rsi := 50.0
		if r.indicate != nil {
			if ind, err := r.cache.Indicators(ctx, snap.Symbol, r.indicate); err == nil {
				rsi = ind.RSI
			}
		}

		book.Mutate(snap.PositionID, func(p *models.Position) {
			p.UpdatePeak(q.Price, now)
			ProgressStops(p, q.Price, now)
		})

		cur, ok := book.Get(snap.PositionID)
		if !ok {
			continue
		}

		reason := Evaluate(&cur, q.Price, rsi, now, forcedClose, health, r.tracker)
		if reason == "" {
			continue
		}

		fill, err := r.exec.PlaceExit(ctx, &cur)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("monitor: exit %s: %w", cur.PositionID, err))
			continue
		}

		trade, closed := book.Close(cur.PositionID, string(reason), fill.Price, now)
		if !closed {
			continue
		}
		r.tracker.Forget(cur.PositionID)

		if err := r.store.AppendTrade(date, trade); err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("monitor: append trade %s: %w", cur.PositionID, err))
		}
		if err := retry.Do(ctx, retry.DefaultConfig, func() error { return r.store.SaveAccount(book.Account()) }); err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("monitor: save account after %s: %w", cur.PositionID, err))
		}

		result.Closed = append(result.Closed, trade)
		if r.sink != nil {
			_ = r.sink.Emit(ctx, alert.New(alert.KindIndividualExit, now, map[string]any{
				"symbol":      trade.Position.Symbol,
				"position_id": trade.Position.PositionID,
				"reason":      string(reason),
				"pnl_pct":     trade.PnLPct,
			}))
		}
	}

	if err := r.store.SavePositions(book.Snapshot()); err != nil {
		result.Errors = append(result.Errors, fmt.Errorf("monitor: checkpoint positions: %w", err))
	}

	return result
}
