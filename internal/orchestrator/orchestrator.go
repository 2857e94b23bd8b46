// Package orchestrator implements the Orchestrator: the component that
// owns the phase FSM and composes every other component into the
// single-process day loop described by the clock & phase scheduler,
// the monitoring loop and the scheduled health checks. It is responsible
// for idempotent resumption: on cold start it reconstructs the day's
// DailyMarker from the State Store and skips any phase whose completion
// flag is already set.
//
// One struct composes broker/strategy/storage/logger, a signal-driven stop
// channel, and a ticker-paced Run loop, generalized from a single polling
// cadence into the eight-phase schedule the agent's trading day follows.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/eddiefleurent/orb-agent/internal/alert"
	"github.com/eddiefleurent/orb-agent/internal/clock"
	"github.com/eddiefleurent/orb-agent/internal/config"
	"github.com/eddiefleurent/orb-agent/internal/executor"
	"github.com/eddiefleurent/orb-agent/internal/health"
	"github.com/eddiefleurent/orb-agent/internal/indicators"
	"github.com/eddiefleurent/orb-agent/internal/marketdata"
	"github.com/eddiefleurent/orb-agent/internal/models"
	"github.com/eddiefleurent/orb-agent/internal/monitor"
	"github.com/eddiefleurent/orb-agent/internal/orb"
	"github.com/eddiefleurent/orb-agent/internal/quotecache"
	"github.com/eddiefleurent/orb-agent/internal/signal"
	"github.com/eddiefleurent/orb-agent/internal/sizing"
	"github.com/eddiefleurent/orb-agent/internal/statusapi"
	"github.com/eddiefleurent/orb-agent/internal/storage"
)

// errDrained signals a clean SIGTERM/SIGINT-driven exit up through the
// phase loop; Run treats it as success rather than logging it as a failure.
var errDrained = errors.New("orchestrator: drained")

// errHolidaySkip signals the 05:30 pre-flight holiday check found today is
// not a trading day; runPhases stops walking the remaining phases cleanly
// rather than treating it as a failure.
var errHolidaySkip = errors.New("orchestrator: holiday skip")

// ZeroDTEFilter is the pluggable eligibility filter for the 0DTE options
// strategy: an external collaborator reached through a narrow interface
// rather than reimplemented here. Admit reports whether a gated signal is
// also eligible for the 0DTE path; no concrete implementation ships in
// this repository, only the integration seam enable_0dte activates.
type ZeroDTEFilter interface {
	Admit(models.Signal) bool
}

// Option configures optional Orchestrator collaborators that have no
// natural construction-time default.
type Option func(*Orchestrator)

// WithHolidayCheck injects the holiday-calendar lookup the 05:30 pre-flight
// check consults. The default always reports a trading day, since the
// holiday calendar provider itself is out of scope.
func WithHolidayCheck(fn func(date string) bool) Option {
	return func(o *Orchestrator) { o.isHoliday = fn }
}

// WithZeroDTEFilter injects the 0DTE eligibility filter, consulted only
// when the config's enable_0dte feature flag is set.
func WithZeroDTEFilter(f ZeroDTEFilter) Option {
	return func(o *Orchestrator) { o.zeroDTE = f }
}

// Orchestrator drives one trading day at a time through the phase FSM,
// owning the day-state every other component is either stateless against
// or explicitly handed off for the day (OpeningRangeStore, Collector,
// PositionBook) per the concurrency model's "T-FSM owns all mutable
// day-state maps" rule.
type Orchestrator struct {
	cfg    *config.Config
	clk    clock.Clock
	gw     marketdata.Gateway
	store  storage.Interface
	sink   alert.Sink
	exec   *executor.Executor
	logger *log.Logger

	schedLoc  *time.Location
	marketLoc *time.Location

	isHoliday func(date string) bool
	zeroDTE   ZeroDTEFilter

	cache     *quotecache.Cache
	orbStore  *orb.Store
	collector *signal.Collector
	engine    *indicators.Engine
	monRunner *monitor.Runner
	phase     *models.PhaseMachine
	book      *models.PositionBook

	date      string
	marker    *models.DailyMarker
	prevBars  map[string]signal.Bar
	health    monitor.Health

	tradesToday atomic.Int64
	running     atomic.Bool
}

// New wires an Orchestrator from its collaborators. It panics if cfg, clk,
// gw or store is nil.
func New(cfg *config.Config, clk clock.Clock, gw marketdata.Gateway, store storage.Interface, sink alert.Sink, logger *log.Logger, opts ...Option) (*Orchestrator, error) {
	if cfg == nil || clk == nil || gw == nil || store == nil {
		panic("orchestrator: cfg, clock, gateway and store are required")
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[ORB] ", log.LstdFlags|log.Lshortfile)
	}

	schedLoc, err := cfg.SchedulingLocation()
	if err != nil {
		return nil, fmt.Errorf("resolving scheduling timezone: %w", err)
	}
	marketLoc, err := cfg.MarketLocation()
	if err != nil {
		return nil, fmt.Errorf("resolving market timezone: %w", err)
	}

	cache := quotecache.New(gw)

	o := &Orchestrator{
		cfg:       cfg,
		clk:       clk,
		gw:        gw,
		store:     store,
		sink:      sink,
		exec:      executor.New(gw),
		logger:    logger,
		schedLoc:  schedLoc,
		marketLoc: marketLoc,
		isHoliday: func(string) bool { return false },
		cache:     cache,
		orbStore:  orb.New(gw),
		collector: signal.NewCollector(),
		phase:     models.NewPhaseMachine(),
		book:      models.NewPositionBook(models.Account{}),
	}
	o.monRunner = monitor.NewRunner(cache, o.exec, store, sink, nil, o.computeIndicators)

	for _, opt := range opts {
		opt(o)
	}

	return o, nil
}

// computeIndicators is the quotecache.IndicatorFunc handed to the monitor
// Runner, deferring to whichever indicators Engine the current day's
// SO_PREFETCH phase built. The collection-window scanner passes that
// Engine's Compute directly.
func (o *Orchestrator) computeIndicators(ctx context.Context, symbol string) (quotecache.Indicators, error) {
	if o.engine == nil {
		return quotecache.Indicators{}, fmt.Errorf("orchestrator: indicators engine not ready for %s", symbol)
	}
	return o.engine.Compute(ctx, symbol)
}

// Run drives the day loop until ctx is cancelled, sleeping between one
// day's EOD_REPORT and the next day's MORNING_ALERT. A SIGTERM/SIGINT
// delivered through ctx is honoured at the next suspension point and
// produces a clean DRAIN exit rather than an error.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.running.Store(true)
	defer o.running.Store(false)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		date := o.clk.TodayInZone(o.schedLoc)
		if err := o.runOneDay(ctx, date, ctx.Done()); err != nil {
			if errors.Is(err, errDrained) {
				return nil
			}
			o.logger.Printf("day %s ended with error: %v", date, err)
		}

		if ctx.Err() != nil {
			return nil
		}

		next := o.nextMorningAlert(date)
		if !o.clk.SleepUntil(next, ctx.Done()) {
			return nil
		}
	}
}

func (o *Orchestrator) nextMorningAlert(date string) time.Time {
	at, err := clock.MorningAlertAt.At(date, o.schedLoc)
	if err != nil {
		return o.clk.Now().Add(24 * time.Hour)
	}
	return at.Add(24 * time.Hour)
}

// runOneDay reconstructs today's DailyMarker and either skips a day whose
// EOD_REPORT already completed, or resumes/starts the phase sequence.
func (o *Orchestrator) runOneDay(ctx context.Context, date string, drain <-chan struct{}) error {
	marker, err := o.store.LoadMarker(date)
	if err != nil {
		return fmt.Errorf("loading marker for %s: %w", date, err)
	}
	if marker.PhaseDone(string(models.PhaseEODReport)) {
		return nil
	}

	o.beginDay(date, marker)
	if err := o.restoreState(date); err != nil {
		return fmt.Errorf("restoring state for %s: %w", date, err)
	}

	return o.runPhases(ctx, date, drain)
}

func (o *Orchestrator) beginDay(date string, marker *models.DailyMarker) {
	o.date = date
	o.marker = marker
	o.orbStore.Reset()
	o.collector.Reset()
	o.prevBars = nil
	o.health = monitor.Health{}
}

// restoreState reloads the account checkpoint (seeding a fresh one if this
// is the very first run) and any open positions a crash left behind,
// satisfying scenario S6's "positions reloaded from state store with
// peak/stop state preserved".
func (o *Orchestrator) restoreState(date string) error {
	account, ok, err := o.store.LoadAccount()
	if err != nil {
		return fmt.Errorf("loading account: %w", err)
	}
	if !ok {
		account = models.Account{
			CashBalance:     o.cfg.Account.StartingCash,
			StartingBalance: o.cfg.Account.StartingCash,
			UpdatedAt:       o.clk.Now(),
		}
		if err := o.store.SaveAccount(account); err != nil {
			return fmt.Errorf("seeding account: %w", err)
		}
	}
	o.book.SetAccount(account)

	positions, err := o.store.LoadPositions()
	if err != nil {
		return fmt.Errorf("loading positions: %w", err)
	}
	for i := range positions {
		o.book.Add(&positions[i])
	}

	trades, err := o.store.Trades(date)
	if err != nil {
		return fmt.Errorf("loading today's trades: %w", err)
	}
	o.tradesToday.Store(int64(len(trades)))

	return nil
}

type phaseStep struct {
	phase models.Phase
	run   func(context.Context, <-chan struct{}) error
}

func (o *Orchestrator) phaseOrder() []phaseStep {
	return []phaseStep{
		{models.PhaseMorningAlert, o.runMorningAlert},
		{models.PhaseORBCapture, o.runORBCapture},
		{models.PhaseSOPrefetch, o.runSOPrefetch},
		{models.PhaseSOCollection, o.runSOCollection},
		{models.PhaseBatchExecution, o.runBatchExecution},
		{models.PhaseMonitoring, o.runMonitoring},
		{models.PhaseEODClose, o.runEODClose},
		{models.PhaseEODReport, o.runEODReport},
	}
}

// runPhases walks the phase order starting from the first phase whose
// DailyMarker flag is not yet set, force-setting the phase machine to the
// phase immediately prior so the resumed phase's own TransitionTo call is
// a legal move from the table in models.ValidPhaseTransitions.
func (o *Orchestrator) runPhases(ctx context.Context, date string, drain <-chan struct{}) error {
	order := o.phaseOrder()

	resumeIdx := 0
	for i, step := range order {
		if o.marker.PhaseDone(string(step.phase)) {
			resumeIdx = i + 1
			continue
		}
		break
	}
	if resumeIdx > 0 && resumeIdx < len(order) {
		o.phase.ForceSet(order[resumeIdx-1].phase, o.clk.Now())
		o.logger.Printf("resuming %s at phase %s after restart", date, order[resumeIdx].phase)
	}

	for i := resumeIdx; i < len(order); i++ {
		step := order[i]
		if err := step.run(ctx, drain); err != nil {
			if errors.Is(err, errDrained) {
				return o.enterDrain(date)
			}
			if errors.Is(err, errHolidaySkip) {
				o.marker.MarkPhaseDone(string(step.phase))
				if err := o.store.SaveMarker(date, o.marker); err != nil {
					return fmt.Errorf("saving marker after holiday skip: %w", err)
				}
				return nil
			}
			return fmt.Errorf("phase %s: %w", step.phase, err)
		}
		o.marker.MarkPhaseDone(string(step.phase))
		if err := o.store.SaveMarker(date, o.marker); err != nil {
			return fmt.Errorf("saving marker after %s: %w", step.phase, err)
		}
	}
	return nil
}

func (o *Orchestrator) markRemainingPhasesDone() {
	for _, step := range o.phaseOrder() {
		o.marker.MarkPhaseDone(string(step.phase))
	}
}

// enterDrain performs the SIGTERM/SIGINT-driven shutdown sequence: stop
// scanners (the phase loop simply stops calling them), cancel any
// in-flight orders, persist open positions and the marker, then return.
func (o *Orchestrator) enterDrain(date string) error {
	now := o.clk.Now()
	if err := o.phase.TransitionTo(models.PhaseDrain, models.ConditionDrainSignal, now); err != nil {
		o.logger.Printf("drain transition from %s rejected: %v", o.phase.Current(), err)
	}
	if err := o.exec.CancelAll(context.Background()); err != nil {
		o.logger.Printf("cancel all on drain: %v", err)
	}
	if err := o.store.SavePositions(o.book.Snapshot()); err != nil {
		o.logger.Printf("checkpointing positions on drain: %v", err)
	}
	if o.marker != nil {
		if err := o.store.SaveMarker(date, o.marker); err != nil {
			o.logger.Printf("saving marker on drain: %v", err)
		}
	}
	return errDrained
}

// emitDedup sends an alert, skipping it (and the marker write) if its kind
// is in alert.DedupKinds and already recorded sent for today.
func (o *Orchestrator) emitDedup(ctx context.Context, kind alert.Kind, at time.Time, payload map[string]any) error {
	if alert.DedupKinds[kind] && o.marker.AlertSent(string(kind)) {
		return nil
	}
	o.emitImmediate(ctx, kind, at, payload)
	if alert.DedupKinds[kind] {
		o.marker.MarkAlertSent(string(kind))
		if err := o.store.SaveMarker(o.date, o.marker); err != nil {
			return fmt.Errorf("saving marker after alert %s: %w", kind, err)
		}
	}
	return nil
}

// emitImmediate sends a non-deduplicated alert (individual/aggregated
// exits, health warnings) straight through the sink.
func (o *Orchestrator) emitImmediate(ctx context.Context, kind alert.Kind, at time.Time, payload map[string]any) {
	if o.sink == nil {
		return
	}
	if err := o.sink.Emit(ctx, alert.New(kind, at, payload)); err != nil {
		o.logger.Printf("alert emit %s failed: %v", kind, err)
	}
}

// --- Phase implementations -------------------------------------------------

func (o *Orchestrator) runMorningAlert(ctx context.Context, drain <-chan struct{}) error {
	at, err := clock.MorningAlertAt.At(o.date, o.schedLoc)
	if err != nil {
		return fmt.Errorf("resolving morning alert time: %w", err)
	}
	if !o.clk.SleepUntil(at, drain) {
		return errDrained
	}
	now := o.clk.Now()

	if o.isHoliday(o.date) {
		if err := o.phase.TransitionTo(models.PhaseIdle, models.ConditionHoliday, now); err != nil {
			return fmt.Errorf("holiday transition: %w", err)
		}
		o.emitImmediate(ctx, alert.KindHoliday, now, map[string]any{"date": o.date})
		o.markRemainingPhasesDone()
		return errHolidaySkip
	}

	if err := o.phase.TransitionTo(models.PhaseMorningAlert, models.ConditionScheduled, now); err != nil {
		return fmt.Errorf("morning alert transition: %w", err)
	}
	return o.emitDedup(ctx, alert.KindMorning, now, map[string]any{
		"date":          o.date,
		"universe_size": len(o.cfg.Universe),
		"mode":          string(o.cfg.Mode),
	})
}

func (o *Orchestrator) runORBCapture(ctx context.Context, drain <-chan struct{}) error {
	start, err := clock.ORBCaptureAt.At(o.date, o.schedLoc)
	if err != nil {
		return fmt.Errorf("resolving orb capture start: %w", err)
	}
	if !o.clk.SleepUntil(start, drain) {
		return errDrained
	}
	if err := o.phase.TransitionTo(models.PhaseORBCapture, models.ConditionScheduled, o.clk.Now()); err != nil {
		return fmt.Errorf("orb capture transition: %w", err)
	}

	end, err := clock.ORBCaptureDoneAt.At(o.date, o.schedLoc)
	if err != nil {
		return fmt.Errorf("resolving orb capture end: %w", err)
	}
	if !o.clk.SleepUntil(end, drain) {
		return errDrained
	}

	if err := o.orbStore.Capture(ctx, o.cfg.Universe, o.date, start, end); err != nil {
		return fmt.Errorf("capturing opening ranges: %w", err)
	}

	now := o.clk.Now()
	return o.emitDedup(ctx, alert.KindORBCapture, now, map[string]any{
		"symbols_captured": len(o.orbStore.Symbols()),
		"coverage":         o.orbStore.Coverage(o.cfg.Universe),
	})
}

func (o *Orchestrator) runSOPrefetch(ctx context.Context, drain <-chan struct{}) error {
	at, err := clock.SOPrefetchAt.At(o.date, o.schedLoc)
	if err != nil {
		return fmt.Errorf("resolving prefetch time: %w", err)
	}
	if !o.clk.SleepUntil(at, drain) {
		return errDrained
	}
	if err := o.phase.TransitionTo(models.PhaseSOPrefetch, models.ConditionScheduled, o.clk.Now()); err != nil {
		return fmt.Errorf("prefetch transition: %w", err)
	}

	prevStart := at.Add(-15 * time.Minute)
	o.prevBars = make(map[string]signal.Bar, len(o.cfg.Universe))
	for _, sym := range o.cfg.Universe {
		bar, err := o.gw.Bar(ctx, sym, prevStart, at)
		if err != nil {
			o.logger.Printf("prefetch bar for %s failed: %v", sym, err)
			continue
		}
		o.prevBars[sym] = signal.Bar{Open: bar.Open, Close: bar.Close}
	}

	o.engine = indicators.NewEngine(o.gw, o.sessionOpenInstant())
	return nil
}

// sessionOpenInstant returns 9:30 market-time on the current trading day,
// the anchor the indicators Engine paces volume-ratio expectations from.
func (o *Orchestrator) sessionOpenInstant() time.Time {
	d, err := time.ParseInLocation("2006-01-02", o.date, o.marketLoc)
	if err != nil {
		return o.clk.Now()
	}
	return time.Date(d.Year(), d.Month(), d.Day(), 9, 30, 0, 0, o.marketLoc)
}

func (o *Orchestrator) runSOCollection(ctx context.Context, drain <-chan struct{}) error {
	if err := o.phase.TransitionTo(models.PhaseSOCollection, models.ConditionScheduled, o.clk.Now()); err != nil {
		return fmt.Errorf("signal collection transition: %w", err)
	}

	end, err := clock.SOCollectionEnd.At(o.date, o.schedLoc)
	if err != nil {
		return fmt.Errorf("resolving collection end: %w", err)
	}

	for {
		now := o.clk.Now()
		if !now.Before(end) {
			break
		}
		if err := o.scanOnce(ctx, now); err != nil {
			o.logger.Printf("signal scan error: %v", err)
		}

		next := now.Add(30 * time.Second)
		if next.After(end) {
			next = end
		}
		if !o.clk.SleepUntil(next, drain) {
			return errDrained
		}
	}

	return o.emitDedup(ctx, alert.KindSignalCollection, o.clk.Now(), map[string]any{
		"signals_collected": len(o.collector.Signals()),
	})
}

func (o *Orchestrator) scanOnce(ctx context.Context, now time.Time) error {
	symbols := o.orbStore.Symbols()
	if len(symbols) == 0 {
		return nil
	}
	if err := o.engine.Poll(ctx, symbols, now); err != nil {
		return fmt.Errorf("polling bars: %w", err)
	}
	quotes, err := o.cache.Quotes(ctx, symbols)
	if err != nil {
		return fmt.Errorf("fetching quotes: %w", err)
	}

	for _, sym := range symbols {
		or, ok := o.orbStore.Get(sym)
		if !ok {
			continue
		}
		q, ok := quotes[sym]
		if !ok {
			continue
		}
		ind, err := o.cache.Indicators(ctx, sym, o.engine.Compute)
		if err != nil {
			o.logger.Printf("indicators for %s failed: %v", sym, err)
			continue
		}
		o.collector.Scan(sym, or, q, o.prevBars[sym], ind, now)
	}
	return nil
}

func (o *Orchestrator) runBatchExecution(ctx context.Context, _ <-chan struct{}) error {
	now := o.clk.Now()
	if err := o.phase.TransitionTo(models.PhaseBatchExecution, models.ConditionScheduled, now); err != nil {
		return fmt.Errorf("batch execution transition: %w", err)
	}

	cohort := o.collector.Signals()
	ranked := signal.Rank(cohort)

	var gated []models.Signal
	var rejected []signal.Rejected
	var verdict signal.Verdict
	if o.cfg.RedDay.Enabled {
		gated, rejected, verdict = signal.Evaluate(ranked)
	} else {
		gated = ranked
	}

	if o.zeroDTE != nil && o.cfg.Features.Enable0DTE {
		admitted := make([]models.Signal, 0, len(gated))
		for _, s := range gated {
			if o.zeroDTE.Admit(s) {
				admitted = append(admitted, s)
			}
		}
		gated = admitted
	}

	archive := make([]storage.ArchivedSignal, 0, len(gated)+len(rejected))
	for _, s := range gated {
		archive = append(archive, storage.ArchivedSignal{Signal: s})
	}
	for _, r := range rejected {
		archive = append(archive, storage.ArchivedSignal{Signal: r.Signal, Rejected: true, RejectReason: string(r.Reason)})
	}
	if err := o.store.ArchiveSignals(o.date, archive); err != nil {
		return fmt.Errorf("archiving signals: %w", err)
	}

	// A confirmed red day (portfolio pattern matched, no override tier
	// satisfied, failsafe not active) blocks the whole batch: every
	// surviving signal is dropped from execution, not just the ones the
	// signal-level filter already rejected.
	blocked := o.cfg.RedDay.Enabled && verdict.IsRedDay && !verdict.FailsafeActive

	var placed int
	var err error
	if !blocked {
		placed, err = o.sizeAndExecute(ctx, gated, now)
		if err != nil {
			return err
		}
	}

	return o.emitDedup(ctx, alert.KindBatchExecution, now, map[string]any{
		"orders_placed":   placed,
		"signals_seen":    len(ranked),
		"rejected":        len(rejected),
		"is_red_day":      verdict.IsRedDay,
		"red_day_blocked": blocked,
		"reason":          redDayBlockReason(blocked, verdict.PatternMatched),
		"pattern":         string(verdict.PatternMatched),
		"failsafe_active": verdict.FailsafeActive,
	})
}

// redDayBlockReason names the AGGREGATED alert reason for a blocked batch,
// e.g. "RED_DAY_P3_WEAK_VOLUME_ALONE", or "" when the batch was not blocked.
func redDayBlockReason(blocked bool, pattern signal.Pattern) string {
	if !blocked {
		return ""
	}
	return "RED_DAY_" + string(pattern)
}

func (o *Orchestrator) sizeAndExecute(ctx context.Context, gated []models.Signal, now time.Time) (int, error) {
	if len(gated) == 0 {
		return 0, nil
	}

	adv := make(map[string]int64, len(gated))
	for _, s := range gated {
		v, err := o.gw.ADV(ctx, s.Symbol)
		if err != nil {
			o.logger.Printf("adv lookup for %s failed: %v", s.Symbol, err)
			continue
		}
		adv[s.Symbol] = v
	}

	account := o.book.Account()
	params := sizing.Params{
		TargetDeploymentFraction: o.cfg.TargetDeploymentFraction(),
		MaxPositionFraction:      o.cfg.MaxPositionFraction(),
		ADVCapFraction:           o.cfg.Sizing.SlipGuardADVPct / 100.0,
		ADVCapEnabled:            o.cfg.Sizing.SlipGuardEnabled,
	}
	orders, err := sizing.Size(gated, adv, account.CashBalance, params)
	if err != nil {
		// Invariant violation per the error taxonomy: fatal, abort the
		// phase without emitting orders, surface an emergency alert.
		o.emitImmediate(ctx, alert.KindHealthEmergency, now, map[string]any{"sizing_error": err.Error()})
		return 0, fmt.Errorf("sizing: %w", err)
	}
	if len(orders) == 0 {
		return 0, nil
	}

	gatedBySymbol := make(map[string]models.Signal, len(gated))
	for _, s := range gated {
		gatedBySymbol[s.Symbol] = s
	}

	type pending struct {
		sig models.Signal
	}
	pendingByID := make(map[string]pending, len(orders))
	intents := make([]executor.Intent, 0, len(orders))
	for _, ord := range orders {
		pid := models.NewPositionID(string(o.cfg.Mode), ord.Symbol, now)
		intents = append(intents, executor.Intent{ClientOrderID: pid, Symbol: ord.Symbol, Side: models.Long, Quantity: ord.Quantity})
		pendingByID[pid] = pending{sig: gatedBySymbol[ord.Symbol]}
	}

	fills, errs := o.exec.PlaceBatch(ctx, intents)
	for _, e := range errs {
		o.logger.Printf("batch execution error: %v", e)
	}

	placed := 0
	for _, fill := range fills {
		if fill.Rejected {
			continue
		}
		p, ok := pendingByID[fill.ClientOrderID]
		if !ok {
			continue
		}
		volPct := p.sig.EntryBarVolatilityPct
		floor := monitor.FloorStopPrice(fill.Price, volPct)
		pos := &models.Position{
			PositionID:  fill.ClientOrderID,
			Symbol:      fill.Symbol,
			Side:        fill.Side,
			EntryPrice:  fill.Price,
			Quantity:    fill.Quantity,
			EntryTime:   fill.FilledAt,
			PeakPrice:   fill.Price,
			PeakTime:    fill.FilledAt,
			ORBRangePct: volPct,
			FloorStop:   floor,
			CurrentStop: floor,
		}
		if err := pos.Validate(); err != nil {
			o.logger.Printf("position invariant violation for %s: %v", pos.Symbol, err)
			o.emitImmediate(ctx, alert.KindHealthEmergency, now, map[string]any{"invariant_violation": err.Error(), "symbol": pos.Symbol})
			continue
		}
		o.book.Add(pos)
		o.marker.MarkExecuted(pos.Symbol)
		placed++
	}

	if err := o.store.SavePositions(o.book.Snapshot()); err != nil {
		return placed, fmt.Errorf("checkpointing positions: %w", err)
	}
	return placed, nil
}

func (o *Orchestrator) runMonitoring(ctx context.Context, drain <-chan struct{}) error {
	if err := o.phase.TransitionTo(models.PhaseMonitoring, models.ConditionScheduled, o.clk.Now()); err != nil {
		return fmt.Errorf("monitoring transition: %w", err)
	}

	forcedAt, err := clock.ForcedCloseAt.At(o.date, o.schedLoc)
	if err != nil {
		return fmt.Errorf("resolving forced close time: %w", err)
	}
	healthStart, err := clock.HealthCheckWindowStart.At(o.date, o.schedLoc)
	if err != nil {
		return fmt.Errorf("resolving health window start: %w", err)
	}
	healthEnd, err := clock.HealthCheckWindowEnd.At(o.date, o.schedLoc)
	if err != nil {
		return fmt.Errorf("resolving health window end: %w", err)
	}

	for {
		now := o.clk.Now()
		// "At or after" the forced-close boundary, matching the monitor's
		// own 30s cadence rather than requiring an exact 12:55:00 tick.
		if !now.Before(forcedAt) {
			return nil
		}

		res := o.monRunner.Tick(ctx, o.book, o.date, now, false, o.health)
		o.recordTickResult(res)
		o.maybeEnterReadOnly(res, now)

		if !now.Before(healthStart) && !now.After(healthEnd) {
			o.maybeRunHealthCheck(ctx, now)
		}

		next := now.Add(30 * time.Second)
		if next.After(forcedAt) {
			next = forcedAt
		}
		if !o.clk.SleepUntil(next, drain) {
			return errDrained
		}
	}
}

// maybeEnterReadOnly implements the live-mode auth-failure handling from
// the error taxonomy: an auth failure surfaced by the broker transitions
// the remainder of the day to READ_ONLY (monitoring continues, no new
// orders place after this point in the day).
func (o *Orchestrator) maybeEnterReadOnly(res monitor.TickResult, now time.Time) {
	if o.cfg.Mode != config.ModeLive || o.marker.ReadOnly || !isAuthFailure(res.Errors) {
		return
	}
	if err := o.phase.TransitionTo(models.PhaseReadOnly, models.ConditionAuthFailure, now); err != nil {
		o.logger.Printf("read-only transition rejected: %v", err)
		return
	}
	o.marker.ReadOnly = true
	if err := o.store.SaveMarker(o.date, o.marker); err != nil {
		o.logger.Printf("saving marker after read-only transition: %v", err)
	}
	o.logger.Printf("auth failure detected, remainder of day runs read-only")
}

func isAuthFailure(errs []error) bool {
	for _, e := range errs {
		if e != nil && strings.Contains(strings.ToLower(e.Error()), "auth") {
			return true
		}
	}
	return false
}

func (o *Orchestrator) recordTickResult(res monitor.TickResult) {
	for _, err := range res.Errors {
		o.logger.Printf("monitor tick error: %v", err)
	}
	if len(res.Closed) > 0 {
		o.tradesToday.Add(int64(len(res.Closed)))
	}
}

// maybeRunHealthCheck evaluates the portfolio health snapshot once per
// 15-minute window, dedup'd via the DailyMarker the same way phase alerts
// are, and escalates an EMERGENCY/WARNING action into an immediate
// out-of-band monitor tick rather than waiting for the next 30s cycle.
func (o *Orchestrator) maybeRunHealthCheck(ctx context.Context, now time.Time) {
	freqMin := int(o.cfg.Health.CheckFrequencyMin)
	if freqMin <= 0 {
		freqMin = 15
	}
	bucketMinute := now.Minute() - now.Minute()%freqMin
	window := health.WindowKey(now.Hour(), bucketMinute)
	if o.marker.HealthWindowDone(window) {
		return
	}
	o.marker.MarkHealthWindowDone(window)
	if err := o.store.SaveMarker(o.date, o.marker); err != nil {
		o.logger.Printf("saving marker after health window %s: %v", window, err)
	}

	positions := o.book.Snapshot()
	closedToday, err := o.store.Trades(o.date)
	if err != nil {
		o.logger.Printf("loading today's trades for health check: %v", err)
		return
	}

	symbols := make([]string, 0, len(positions))
	for _, p := range positions {
		symbols = append(symbols, p.Symbol)
	}
	prices := make(map[string]float64, len(positions))
	if quotes, err := o.cache.Quotes(ctx, symbols); err == nil {
		for sym, q := range quotes {
			prices[sym] = q.Price
		}
	}

	result := health.Evaluate(positions, closedToday, prices, health.DefaultThresholds)
	o.health = monitor.Health{
		Emergency: result.Action == health.ActionEmergency,
		WeakDay:   result.Action == health.ActionWarning,
	}

	payload := map[string]any{
		"win_rate":              result.Metrics.WinRate,
		"avg_pnl_pct":           result.Metrics.AvgPnLPct,
		"pct_momentum_positive": result.Metrics.PctMomentumPositive,
		"avg_peak_pct":          result.Metrics.AvgPeakPct,
		"pct_losing_now":        result.Metrics.PctLosingNow,
		"flag_count":            result.FlagCount,
	}

	switch result.Action {
	case health.ActionEmergency:
		o.emitImmediate(ctx, alert.KindHealthEmergency, now, payload)
		o.forceMonitorTick(ctx, now)
	case health.ActionWarning:
		o.emitImmediate(ctx, alert.KindHealthWarning, now, payload)
		o.forceMonitorTick(ctx, now)
	}
}

// forceMonitorTick runs one extra tick right after a health escalation so
// trigger 13/14 closures happen immediately rather than on the next
// scheduled 30s cycle, then rolls any closures into a single AGGREGATED_EXIT
// alert per the scenario's expectation of one alert for the whole batch.
func (o *Orchestrator) forceMonitorTick(ctx context.Context, now time.Time) {
	res := o.monRunner.Tick(ctx, o.book, o.date, now, false, o.health)
	o.recordTickResult(res)
	if len(res.Closed) > 0 {
		o.emitImmediate(ctx, alert.KindAggregatedExit, now, map[string]any{"count": len(res.Closed)})
	}
}

func (o *Orchestrator) runEODClose(ctx context.Context, _ <-chan struct{}) error {
	if err := o.phase.TransitionTo(models.PhaseEODClose, models.ConditionForcedClose, o.clk.Now()); err != nil {
		return fmt.Errorf("eod close transition: %w", err)
	}

	for attempt := 0; attempt < 3 && o.book.Len() > 0; attempt++ {
		res := o.monRunner.Tick(ctx, o.book, o.date, o.clk.Now(), true, o.health)
		o.recordTickResult(res)
	}
	if o.book.Len() > 0 {
		o.forceCloseStragglers(ctx)
	}

	return o.store.SavePositions(o.book.Snapshot())
}

// forceCloseStragglers directly places exits for any position the regular
// forced-close trigger could not clear (e.g. a quote miss on every retry),
// guaranteeing invariant 10 — zero open positions at the end of EOD_CLOSE.
func (o *Orchestrator) forceCloseStragglers(ctx context.Context) {
	now := o.clk.Now()
	for _, p := range o.book.Snapshot() {
		p := p
		fill, err := o.exec.PlaceExit(ctx, &p)
		if err != nil {
			o.logger.Printf("forced close of straggler %s failed: %v", p.PositionID, err)
			continue
		}
		trade, closed := o.book.Close(p.PositionID, string(monitor.ReasonForcedClose), fill.Price, now)
		if !closed {
			continue
		}
		o.tradesToday.Add(1)
		if err := o.store.AppendTrade(o.date, trade); err != nil {
			o.logger.Printf("append trade for straggler %s failed: %v", p.PositionID, err)
		}
		if err := o.store.SaveAccount(o.book.Account()); err != nil {
			o.logger.Printf("save account after straggler %s failed: %v", p.PositionID, err)
		}
	}
}

func (o *Orchestrator) runEODReport(ctx context.Context, _ <-chan struct{}) error {
	now := o.clk.Now()
	if err := o.phase.TransitionTo(models.PhaseEODReport, models.ConditionScheduled, now); err != nil {
		return fmt.Errorf("eod report transition: %w", err)
	}

	trades, err := o.store.Trades(o.date)
	if err != nil {
		return fmt.Errorf("loading trades for eod report: %w", err)
	}
	account := o.book.Account()

	wins := 0
	var pnl float64
	for _, t := range trades {
		pnl += t.PnLAbsolute
		if t.PnLAbsolute > 0 {
			wins++
		}
	}

	// Emitted unconditionally, even on a zero-trade day, per the
	// user-visible failure behaviour note in the error handling design.
	if err := o.emitDedup(ctx, alert.KindEODReport, now, map[string]any{
		"trades":           len(trades),
		"wins":             wins,
		"pnl_absolute":     pnl,
		"ending_cash":      account.CashBalance,
		"starting_balance": account.StartingBalance,
	}); err != nil {
		return err
	}

	return o.phase.TransitionTo(models.PhaseIdle, models.ConditionScheduled, o.clk.Now())
}

// --- StatusProvider ---------------------------------------------------------

// Phase reports the current phase, safe for concurrent use by the embedded
// status HTTP surface.
func (o *Orchestrator) Phase() models.Phase { return o.phase.Current() }

// Running reports whether Run is currently executing.
func (o *Orchestrator) Running() bool { return o.running.Load() }

// OpenPositionCount reports how many positions are currently open.
func (o *Orchestrator) OpenPositionCount() int { return o.book.Len() }

// TradesToday reports how many trades have closed so far today.
func (o *Orchestrator) TradesToday() int { return int(o.tradesToday.Load()) }

// AccountSnapshot returns a copy of the current account state.
func (o *Orchestrator) AccountSnapshot() models.Account { return o.book.Account() }

var _ statusapi.StatusProvider = (*Orchestrator)(nil)
