package storage

import (
	"sync"

	"github.com/eddiefleurent/orb-agent/internal/models"
)

// MockStore is an in-memory Interface implementation for orchestrator and
// monitor tests that don't need real files, with call counters and
// injectable errors for exercising retry paths.
type MockStore struct {
	mu sync.Mutex

	trades  map[string][]models.ClosedTrade
	markers map[string]*models.DailyMarker
	signals map[string][]ArchivedSignal
	account   models.Account
	hasAcct   bool
	positions []models.Position

	SaveAccountErr   error
	AppendTradeErr   error
	SavePositionsErr error

	SaveAccountCalls   int
	AppendTradeCalls   int
	SavePositionsCalls int
}

// NewMockStore returns an empty MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		trades:    make(map[string][]models.ClosedTrade),
		markers:   make(map[string]*models.DailyMarker),
		signals:   make(map[string][]ArchivedSignal),
		positions: []models.Position{},
	}
}

func (m *MockStore) AppendTrade(date string, t models.ClosedTrade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AppendTradeCalls++
	if m.AppendTradeErr != nil {
		return m.AppendTradeErr
	}
	m.trades[date] = append(m.trades[date], t)
	return nil
}

func (m *MockStore) Trades(date string) ([]models.ClosedTrade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.ClosedTrade, len(m.trades[date]))
	copy(out, m.trades[date])
	return out, nil
}

func (m *MockStore) LoadAccount() (models.Account, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.account, m.hasAcct, nil
}

func (m *MockStore) SaveAccount(a models.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SaveAccountCalls++
	if m.SaveAccountErr != nil {
		return m.SaveAccountErr
	}
	m.account = a
	m.hasAcct = true
	return nil
}

func (m *MockStore) LoadMarker(date string) (*models.DailyMarker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mk, ok := m.markers[date]; ok {
		return mk.Clone(), nil
	}
	return models.NewDailyMarker(date), nil
}

func (m *MockStore) SaveMarker(date string, mk *models.DailyMarker) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markers[date] = mk.Clone()
	return nil
}

func (m *MockStore) ArchiveSignals(date string, signals []ArchivedSignal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signals[date] = append(m.signals[date], signals...)
	return nil
}

func (m *MockStore) Signals(date string) ([]ArchivedSignal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ArchivedSignal, len(m.signals[date]))
	copy(out, m.signals[date])
	return out, nil
}

func (m *MockStore) SavePositions(positions []models.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SavePositionsCalls++
	if m.SavePositionsErr != nil {
		return m.SavePositionsErr
	}
	out := make([]models.Position, len(positions))
	copy(out, positions)
	m.positions = out
	return nil
}

func (m *MockStore) LoadPositions() ([]models.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Position, len(m.positions))
	copy(out, m.positions)
	return out, nil
}

var _ Interface = (*MockStore)(nil)
