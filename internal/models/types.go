// Package models defines the shared domain types owned by the orchestrator:
// opening ranges, signals, positions, closed trades, account state and the
// daily marker used for alert dedup and crash recovery.
package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Side is the direction of a signal or position.
type Side string

const (
	// Long is the only side the baseline Signal Generator ever emits.
	Long Side = "LONG"
	// Short exists for symmetry with the validation rules but no call site
	// in this repository enables it.
	Short Side = "SHORT"
)

// DataSource tags the provenance of a market-data record so staleness and
// failsafe logic can reason over it instead of guessing from shape.
type DataSource string

const (
	SourceBroker   DataSource = "broker"
	SourceFallback DataSource = "fallback"
	SourceCached   DataSource = "cached"
)

// Quote is a point-in-time price observation for a symbol.
type Quote struct {
	Symbol    string
	Price     float64
	Bid       float64
	Ask       float64
	Volume    int64
	High      float64
	Low       float64
	Open      float64
	Timestamp time.Time
	Source    DataSource
	AgeMS     int64
}

// OpeningRange is the immutable per-symbol, per-day opening range captured
// once at the end of the ORB capture window.
type OpeningRange struct {
	Symbol string
	Date   string // yyyy-mm-dd in the market timezone
	High   float64
	Low    float64
	Open   float64
	Close  float64
	Volume int64
}

// Validate enforces the invariants from the data model: low <= open, close <= high,
// low <= high, and non-negative volume.
func (o OpeningRange) Validate() error {
	if o.Low > o.High {
		return fmt.Errorf("opening range %s: low %.4f > high %.4f", o.Symbol, o.Low, o.High)
	}
	if o.Open < o.Low || o.Open > o.High {
		return fmt.Errorf("opening range %s: open %.4f outside [%.4f, %.4f]", o.Symbol, o.Open, o.Low, o.High)
	}
	if o.Close < o.Low || o.Close > o.High {
		return fmt.Errorf("opening range %s: close %.4f outside [%.4f, %.4f]", o.Symbol, o.Close, o.Low, o.High)
	}
	if o.Volume < 0 {
		return fmt.Errorf("opening range %s: negative volume %d", o.Symbol, o.Volume)
	}
	return nil
}

// RangePct is the opening range expressed as a percentage of the low, used
// both as a ranker sub-score input and as the Position Monitor's floor-stop
// volatility tier.
func (o OpeningRange) RangePct() float64 {
	if o.Low == 0 {
		return 0
	}
	return (o.High - o.Low) / o.Low * 100
}

// Signal is a candidate entry produced during the collection window.
type Signal struct {
	Symbol       string
	Side         Side
	CurrentPrice float64

	RSI                   float64
	MACDHistogram         float64
	VWAPDistancePct       float64
	RSVsSPYPct            float64
	VolumeRatio           float64
	ORBVolumeRatio        float64
	EntryBarVolatilityPct float64
	Confidence            float64

	PriorityScore float64
	Rank          int
	IsRedDay      bool

	GeneratedAt time.Time
	UpdatedAt   time.Time
}

// WeakVolume reports whether the signal carries the red-day filter's
// "weak volume" predicate.
func (s Signal) WeakVolume() bool {
	return s.VolumeRatio < 1.0
}

// NewPositionID builds the stable short-form position_id:
// "<mode>_<symbol>_<yymmdd>_<suffix>". A microsecond
// timestamp as the suffix; this implementation swaps in a short uuid
// token instead (the same role an order manager's client-order-id gives
// google/uuid for position IDs) since a coarse wall-clock microsecond can
// collide when two symbols fill in the same batch on a fast mock gateway.
func NewPositionID(mode, symbol string, at time.Time) string {
	suffix := uuid.New().String()[:8]
	return fmt.Sprintf("%s_%s_%s_%s", mode, symbol, at.Format("060102"), suffix)
}

// Position is an open exposure owned exclusively by the Orchestrator and
// mutated only by the Position Monitor.
type Position struct {
	PositionID string
	Symbol     string
	Side       Side
	EntryPrice float64
	Quantity   int
	EntryTime  time.Time

	PeakPrice           float64
	PeakTime            time.Time
	MaxAdverseExcursion float64

	// ORBRangePct is the entry-bar volatility that set the floor stop tier.
	ORBRangePct float64

	FloorStop           float64 // permanent; never relaxed
	CurrentStop         float64
	BreakevenArmed      bool
	TrailingArmed       bool
	TrailingDistancePct float64

	Closed bool
}

// Validate enforces the Position invariants from the data model.
func (p *Position) Validate() error {
	if p.Quantity <= 0 {
		return fmt.Errorf("position %s: quantity must be positive, got %d", p.PositionID, p.Quantity)
	}
	if p.CurrentStop < p.FloorStop {
		return fmt.Errorf("position %s: current_stop %.4f below floor_stop %.4f", p.PositionID, p.CurrentStop, p.FloorStop)
	}
	if p.PeakPrice != 0 && p.PeakPrice < p.EntryPrice {
		return fmt.Errorf("position %s: peak_price %.4f below entry_price %.4f", p.PositionID, p.PeakPrice, p.EntryPrice)
	}
	return nil
}

// UnrealizedPct is (price - entry) / entry for a LONG position.
func (p *Position) UnrealizedPct(price float64) float64 {
	if p.EntryPrice == 0 {
		return 0
	}
	return (price - p.EntryPrice) / p.EntryPrice
}

// PeakPct is the position's best unrealized gain seen so far.
func (p *Position) PeakPct() float64 {
	return p.UnrealizedPct(p.PeakPrice)
}

// UpdatePeak advances peak_price/peak_time and max_adverse_excursion for a
// new price observation; peak_price only ever increases for a LONG position.
func (p *Position) UpdatePeak(price float64, now time.Time) {
	if p.PeakPrice == 0 || price > p.PeakPrice {
		p.PeakPrice = price
		p.PeakTime = now
	}
	adverse := (p.EntryPrice - price) / p.EntryPrice
	if adverse > p.MaxAdverseExcursion {
		p.MaxAdverseExcursion = adverse
	}
}

// RaiseStop moves current_stop up to candidate, never down, preserving the
// monotonicity invariant (floor monotonicity + stop monotonicity).
func (p *Position) RaiseStop(candidate float64) {
	if candidate > p.CurrentStop {
		p.CurrentStop = candidate
	}
}

// Age returns how long the position has been open as of now.
func (p *Position) Age(now time.Time) time.Duration {
	return now.Sub(p.EntryTime)
}

// ClosedTrade is the append-only record of a finished position.
type ClosedTrade struct {
	Position    Position
	ExitPrice   float64
	ExitTime    time.Time
	ExitReason  string
	PnLAbsolute float64
	PnLPct      float64
}

// NewClosedTrade computes PnL and builds a ClosedTrade from a Position and
// its exit fill.
func NewClosedTrade(p Position, exitPrice float64, exitTime time.Time, reason string) ClosedTrade {
	pnl := float64(p.Quantity) * (exitPrice - p.EntryPrice)
	pnlPct := 0.0
	if p.EntryPrice != 0 {
		pnlPct = (exitPrice - p.EntryPrice) / p.EntryPrice
	}
	return ClosedTrade{
		Position:    p,
		ExitPrice:   exitPrice,
		ExitTime:    exitTime,
		ExitReason:  reason,
		PnLAbsolute: pnl,
		PnLPct:      pnlPct,
	}
}

// Account holds cash balance state, updated atomically on every close.
type Account struct {
	CashBalance     float64
	StartingBalance float64
	UpdatedAt       time.Time
}

// ApplyTrade updates cash balance for a closed trade's PnL.
func (a *Account) ApplyTrade(t ClosedTrade, now time.Time) {
	a.CashBalance += t.PnLAbsolute
	a.UpdatedAt = now
}

// DailyMarker is the per-date record of which phases have completed and
// which alerts have been sent; used for dedup and crash recovery.
type DailyMarker struct {
	Date              string
	PhaseFlags        map[string]bool
	ExecutedSymbols   map[string]bool
	AlertsSentFlags   map[string]bool
	HealthWindowsDone map[string]bool
	FailsafeActive    bool
	ReadOnly          bool
}

// NewDailyMarker creates an empty marker for the given date.
func NewDailyMarker(date string) *DailyMarker {
	return &DailyMarker{
		Date:              date,
		PhaseFlags:        make(map[string]bool),
		ExecutedSymbols:   make(map[string]bool),
		AlertsSentFlags:   make(map[string]bool),
		HealthWindowsDone: make(map[string]bool),
	}
}

// MarkPhaseDone records a phase as completed, idempotently.
func (m *DailyMarker) MarkPhaseDone(phase string) {
	if m.PhaseFlags == nil {
		m.PhaseFlags = make(map[string]bool)
	}
	m.PhaseFlags[phase] = true
}

// PhaseDone reports whether a phase already completed today.
func (m *DailyMarker) PhaseDone(phase string) bool {
	return m.PhaseFlags != nil && m.PhaseFlags[phase]
}

// MarkAlertSent records an alert kind as sent today, idempotently.
func (m *DailyMarker) MarkAlertSent(kind string) {
	if m.AlertsSentFlags == nil {
		m.AlertsSentFlags = make(map[string]bool)
	}
	m.AlertsSentFlags[kind] = true
}

// AlertSent reports whether an alert kind was already sent today.
func (m *DailyMarker) AlertSent(kind string) bool {
	return m.AlertsSentFlags != nil && m.AlertsSentFlags[kind]
}

// MarkHealthWindowDone records a health-check window key (e.g. "07:45") as
// evaluated today, so a restart mid-window does not re-fire its alert.
func (m *DailyMarker) MarkHealthWindowDone(window string) {
	if m.HealthWindowsDone == nil {
		m.HealthWindowsDone = make(map[string]bool)
	}
	m.HealthWindowsDone[window] = true
}

// HealthWindowDone reports whether a health-check window was already
// evaluated today.
func (m *DailyMarker) HealthWindowDone(window string) bool {
	return m.HealthWindowsDone != nil && m.HealthWindowsDone[window]
}

// MarkExecuted records a symbol as having had an order placed today.
func (m *DailyMarker) MarkExecuted(symbol string) {
	if m.ExecutedSymbols == nil {
		m.ExecutedSymbols = make(map[string]bool)
	}
	m.ExecutedSymbols[symbol] = true
}

// Clone deep-copies the marker so callers cannot mutate shared state.
func (m *DailyMarker) Clone() *DailyMarker {
	if m == nil {
		return nil
	}
	c := &DailyMarker{
		Date:           m.Date,
		FailsafeActive: m.FailsafeActive,
		ReadOnly:       m.ReadOnly,
	}
	c.PhaseFlags = cloneBoolMap(m.PhaseFlags)
	c.ExecutedSymbols = cloneBoolMap(m.ExecutedSymbols)
	c.AlertsSentFlags = cloneBoolMap(m.AlertsSentFlags)
	c.HealthWindowsDone = cloneBoolMap(m.HealthWindowsDone)
	return c
}

func cloneBoolMap(m map[string]bool) map[string]bool {
	if m == nil {
		return make(map[string]bool)
	}
	out := make(map[string]bool, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
