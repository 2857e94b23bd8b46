// Package storage implements the narrow State Store contract: an
// append-only trade stream, a checkpointed account balance, a per-day
// DailyMarker for dedup and crash recovery, and an archived signal cohort,
// file-backed with atomic temp-file-then-rename checkpoint writes and deep-copy on
// read.
package storage

import (
	"github.com/eddiefleurent/orb-agent/internal/models"
)

// ArchivedSignal pairs a signal with the gating outcome recorded for it,
// so the archive can answer "what did we see and why did we act on it"
// without re-deriving the red-day verdict.
type ArchivedSignal struct {
	Signal       models.Signal
	Rejected     bool
	RejectReason string
}

// Interface is the Orchestrator's only dependency on durable storage.
// Every method is named after the object kind it touches in the store's key
// layout; the wire format behind each is opaque to callers.
type Interface interface {
	// AppendTrade adds t to date's append-only ClosedTrade stream. Per the
	// write-log design note, callers must call this before SaveAccount for
	// the same close, so a crash between the two still lets the balance be
	// rederived from the trade log on restart.
	AppendTrade(date string, t models.ClosedTrade) error
	// Trades returns every ClosedTrade recorded for date, in append order.
	Trades(date string) ([]models.ClosedTrade, error)

	// LoadAccount returns the checkpointed account state, or the zero value
	// if none has ever been saved (a fresh account the caller must seed).
	LoadAccount() (models.Account, bool, error)
	// SaveAccount checkpoints the account state.
	SaveAccount(a models.Account) error

	// LoadMarker returns date's DailyMarker, or a fresh empty one if none
	// exists yet.
	LoadMarker(date string) (*models.DailyMarker, error)
	// SaveMarker persists date's DailyMarker.
	SaveMarker(date string, m *models.DailyMarker) error

	// ArchiveSignals appends date's post-execution signal cohort. Called
	// once per day, after the red-day filter has tagged every signal.
	ArchiveSignals(date string, signals []ArchivedSignal) error
	// Signals returns date's archived signal cohort.
	Signals(date string) ([]ArchivedSignal, error)

	// SavePositions checkpoints the full set of currently open positions,
	// so a mid-day crash can resume MONITORING ("reload open positions
	// and resume from the current wall-clock phase", scenario S6) with
	// peak/stop state preserved instead of starting from a blank book.
	SavePositions(positions []models.Position) error
	// LoadPositions returns the last checkpointed open-position set, or an
	// empty slice if none has ever been saved.
	LoadPositions() ([]models.Position, error)
}
