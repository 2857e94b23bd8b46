package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/orb-agent/internal/models"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestTradesAppendAndRead(t *testing.T) {
	s := newTestStore(t)
	date := "2026-07-31"

	trade := models.NewClosedTrade(models.Position{
		PositionID: "demo_Q_260731_000001",
		Symbol:     "Q",
		EntryPrice: 100,
		Quantity:   10,
	}, 105, time.Now(), "STOP_HIT")

	require.NoError(t, s.AppendTrade(date, trade))
	require.NoError(t, s.AppendTrade(date, trade))

	got, err := s.Trades(date)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "Q", got[0].Position.Symbol)
}

func TestTradesEmptyWhenNeverWritten(t *testing.T) {
	s := newTestStore(t)
	got, err := s.Trades("2026-07-31")
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestAccountCheckpointRoundTrip(t *testing.T) {
	s := newTestStore(t)

	_, ok, err := s.LoadAccount()
	require.NoError(t, err)
	require.False(t, ok, "no checkpoint written yet")

	acct := models.Account{CashBalance: 950, StartingBalance: 1000}
	require.NoError(t, s.SaveAccount(acct))

	got, ok, err := s.LoadAccount()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, acct.CashBalance, got.CashBalance)
}

func TestMarkerRoundTripAndFreshDefault(t *testing.T) {
	s := newTestStore(t)
	date := "2026-07-31"

	m, err := s.LoadMarker(date)
	require.NoError(t, err)
	require.False(t, m.PhaseDone("ORB_CAPTURE"))

	m.MarkPhaseDone("ORB_CAPTURE")
	m.MarkAlertSent("MORNING")
	require.NoError(t, s.SaveMarker(date, m))

	reloaded, err := s.LoadMarker(date)
	require.NoError(t, err)
	require.True(t, reloaded.PhaseDone("ORB_CAPTURE"))
	require.True(t, reloaded.AlertSent("MORNING"))
}

func TestSignalsArchiveAndRead(t *testing.T) {
	s := newTestStore(t)
	date := "2026-07-31"

	entries := []ArchivedSignal{
		{Signal: models.Signal{Symbol: "Q", Rank: 1}},
		{Signal: models.Signal{Symbol: "S", Rank: 2}, Rejected: true, RejectReason: "OVERSOLD"},
	}
	require.NoError(t, s.ArchiveSignals(date, entries))

	got, err := s.Signals(date)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.True(t, got[1].Rejected)
}

func TestAccountCheckpointIsAtomicAcrossWrites(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.SaveAccount(models.Account{CashBalance: float64(i)}))
	}
	got, ok, err := s.LoadAccount()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 4.0, got.CashBalance)

	// No stray temp files should survive a clean run.
	matches, err := filepath.Glob(filepath.Join(s.root, dirAccount, ".tmp-*"))
	require.NoError(t, err)
	require.Empty(t, matches)
}

func TestPositionsRoundTripAndEmptyDefault(t *testing.T) {
	s := newTestStore(t)

	got, err := s.LoadPositions()
	require.NoError(t, err)
	require.Empty(t, got, "no checkpoint written yet")

	positions := []models.Position{
		{PositionID: "demo_Q_260731_000001", Symbol: "Q", EntryPrice: 100, Quantity: 10, PeakPrice: 101.5, CurrentStop: 98.5, BreakevenArmed: true},
		{PositionID: "demo_S_260731_000002", Symbol: "S", EntryPrice: 50, Quantity: 20},
	}
	require.NoError(t, s.SavePositions(positions))

	reloaded, err := s.LoadPositions()
	require.NoError(t, err)
	require.Len(t, reloaded, 2)
	require.Equal(t, "Q", reloaded[0].Symbol)
	require.True(t, reloaded[0].BreakevenArmed)
	require.Equal(t, 98.5, reloaded[0].CurrentStop)
}

func TestPositionsSaveOverwritesPreviousCheckpoint(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SavePositions([]models.Position{{PositionID: "a"}, {PositionID: "b"}}))
	require.NoError(t, s.SavePositions([]models.Position{{PositionID: "c"}}))

	got, err := s.LoadPositions()
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "c", got[0].PositionID)
}
