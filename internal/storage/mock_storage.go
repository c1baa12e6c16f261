package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/BekiCrypto/TekWealth-XAUUSD-Bot/internal/models"
)

// MockStorage is an in-memory Interface implementation for tests. Failure
// hooks let tests force individual operations to error.
type MockStorage struct {
	mu sync.RWMutex

	candles       []models.Candle
	trades        map[string]models.Trade
	sessions      map[string]models.BotSession
	reports       map[string]models.BacktestReport
	simTrades     map[string][]models.SimulatedTrade
	Notifications []models.Notification
	accounts      map[string]models.TradingAccount

	// Failure hooks
	FailInsertTrade     error
	FailInsertSimTrades error
	FailListSessions    error

	// Call counters
	DeleteReportCalls int
}

// NewMockStorage returns an empty mock store.
func NewMockStorage() *MockStorage {
	return &MockStorage{
		trades:    make(map[string]models.Trade),
		sessions:  make(map[string]models.BotSession),
		reports:   make(map[string]models.BacktestReport),
		simTrades: make(map[string][]models.SimulatedTrade),
		accounts:  make(map[string]models.TradingAccount),
	}
}

func candleKey(c models.Candle) string {
	return c.Symbol + "|" + c.Timeframe + "|" + c.Timestamp.UTC().Format(time.RFC3339)
}

// UpsertCandles implements Interface.
func (m *MockStorage) UpsertCandles(_ context.Context, candles []models.Candle) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range candles {
		replaced := false
		for i := range m.candles {
			if candleKey(m.candles[i]) == candleKey(c) {
				m.candles[i] = c
				replaced = true
				break
			}
		}
		if !replaced {
			m.candles = append(m.candles, c)
		}
	}
	return len(candles), nil
}

// SeedCandles loads candles directly, bypassing upsert bookkeeping.
func (m *MockStorage) SeedCandles(candles []models.Candle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.candles = append(m.candles, candles...)
}

// GetCandleRange implements Interface.
func (m *MockStorage) GetCandleRange(_ context.Context, symbol, timeframe string, from, to time.Time) ([]models.Candle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Candle
	for _, c := range m.candles {
		if c.Symbol == symbol && c.Timeframe == timeframe &&
			!c.Timestamp.Before(from) && !c.Timestamp.After(to) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// LatestCandles implements Interface.
func (m *MockStorage) LatestCandles(_ context.Context, symbol, timeframe string, limit int) ([]models.Candle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Candle
	for _, c := range m.candles {
		if c.Symbol == symbol && c.Timeframe == timeframe {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// InsertTrade implements Interface.
func (m *MockStorage) InsertTrade(_ context.Context, trade *models.Trade) error {
	if m.FailInsertTrade != nil {
		return m.FailInsertTrade
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trades[trade.ID] = *trade
	return nil
}

// UpdateTrade implements Interface.
func (m *MockStorage) UpdateTrade(_ context.Context, trade *models.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.trades[trade.ID]; !ok {
		return ErrNotFound
	}
	m.trades[trade.ID] = *trade
	return nil
}

// GetTradeByID implements Interface.
func (m *MockStorage) GetTradeByID(_ context.Context, id string) (*models.Trade, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.trades[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &t, nil
}

// GetTradeByTicket implements Interface.
func (m *MockStorage) GetTradeByTicket(_ context.Context, ticket string) (*models.Trade, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.trades {
		if t.Ticket == ticket {
			out := t
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

// ListOpenTrades implements Interface.
func (m *MockStorage) ListOpenTrades(_ context.Context, accountID string) ([]models.Trade, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Trade
	for _, t := range m.trades {
		if t.Status != models.TradeStatusOpen {
			continue
		}
		if accountID != "" && t.AccountID != accountID {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenedAt.Before(out[j].OpenedAt) })
	return out, nil
}

// CountOpenSessionTrades implements Interface.
func (m *MockStorage) CountOpenSessionTrades(_ context.Context, sessionID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var n int64
	for _, t := range m.trades {
		if t.Status == models.TradeStatusOpen && t.SessionID != nil && *t.SessionID == sessionID {
			n++
		}
	}
	return n, nil
}

// InsertSession implements Interface.
func (m *MockStorage) InsertSession(_ context.Context, session *models.BotSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session.ID] = *session
	return nil
}

// UpdateSession implements Interface.
func (m *MockStorage) UpdateSession(_ context.Context, session *models.BotSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[session.ID]; !ok {
		return ErrNotFound
	}
	m.sessions[session.ID] = *session
	return nil
}

// GetSession implements Interface.
func (m *MockStorage) GetSession(_ context.Context, id string) (*models.BotSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

// ListActiveSessions implements Interface.
func (m *MockStorage) ListActiveSessions(_ context.Context) ([]models.BotSession, error) {
	if m.FailListSessions != nil {
		return nil, m.FailListSessions
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.BotSession
	for _, s := range m.sessions {
		if s.Status == models.SessionActive {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

// InsertBacktestReport implements Interface.
func (m *MockStorage) InsertBacktestReport(_ context.Context, report *models.BacktestReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := *report
	r.Trades = nil
	m.reports[report.ID] = r
	return nil
}

// InsertSimulatedTrades implements Interface.
func (m *MockStorage) InsertSimulatedTrades(_ context.Context, trades []models.SimulatedTrade) error {
	if m.FailInsertSimTrades != nil {
		return m.FailInsertSimTrades
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range trades {
		m.simTrades[t.ReportID] = append(m.simTrades[t.ReportID], t)
	}
	return nil
}

// DeleteBacktestReport implements Interface.
func (m *MockStorage) DeleteBacktestReport(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DeleteReportCalls++
	delete(m.reports, id)
	delete(m.simTrades, id)
	return nil
}

// GetBacktestReport implements Interface.
func (m *MockStorage) GetBacktestReport(_ context.Context, id string) (*models.BacktestReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.reports[id]
	if !ok {
		return nil, ErrNotFound
	}
	r.Trades = append([]models.SimulatedTrade(nil), m.simTrades[id]...)
	return &r, nil
}

// ListBacktestReports implements Interface.
func (m *MockStorage) ListBacktestReports(_ context.Context, userID string) ([]models.BacktestReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.BacktestReport
	for _, r := range m.reports {
		if userID != "" && (r.UserID == nil || *r.UserID != userID) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// InsertNotification implements Interface.
func (m *MockStorage) InsertNotification(_ context.Context, n *models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	n.ID = uint(len(m.Notifications) + 1)
	m.Notifications = append(m.Notifications, *n)
	return nil
}

// NotificationsOfKind returns stored notifications matching kind.
func (m *MockStorage) NotificationsOfKind(kind string) []models.Notification {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Notification
	for _, n := range m.Notifications {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

// GetTradingAccount implements Interface.
func (m *MockStorage) GetTradingAccount(_ context.Context, id string) (*models.TradingAccount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

// UpsertTradingAccount implements Interface.
func (m *MockStorage) UpsertTradingAccount(_ context.Context, account *models.TradingAccount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	account.UpdatedAt = time.Now().UTC()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = account.UpdatedAt
	}
	m.accounts[account.ID] = *account
	return nil
}

// ListUsersOverview implements Interface.
func (m *MockStorage) ListUsersOverview(_ context.Context) ([]UserOverview, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	byUser := make(map[string]*UserOverview)
	for _, t := range m.trades {
		o := byUser[t.UserID]
		if o == nil {
			o = &UserOverview{UserID: t.UserID}
			byUser[t.UserID] = o
		}
		o.TotalTrades++
		if t.Status == models.TradeStatusOpen {
			o.OpenTrades++
		}
		if t.ProfitLoss != nil {
			o.TotalPL += *t.ProfitLoss
		}
	}
	for _, s := range m.sessions {
		if s.Status != models.SessionActive {
			continue
		}
		o := byUser[s.UserID]
		if o == nil {
			o = &UserOverview{UserID: s.UserID}
			byUser[s.UserID] = o
		}
		o.ActiveSessions++
	}
	out := make([]UserOverview, 0, len(byUser))
	for _, o := range byUser {
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}
