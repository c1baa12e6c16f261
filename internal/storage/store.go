package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/BekiCrypto/TekWealth-XAUUSD-Bot/internal/models"
)

// Store is the SQLite-backed implementation of Interface. gorm serializes
// access to the underlying pure-Go driver, so a single Store handle is safe
// to share across handlers.
type Store struct {
	db *gorm.DB
}

// New opens (or creates) the database at dsn and migrates the schema.
// Use ":memory:" for an ephemeral store in tests.
func New(dsn string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	if err := db.AutoMigrate(
		&models.Candle{},
		&models.Trade{},
		&models.BotSession{},
		&models.BacktestReport{},
		&models.SimulatedTrade{},
		&models.Notification{},
		&models.TradingAccount{},
	); err != nil {
		return nil, fmt.Errorf("migrating store: %w", err)
	}

	return &Store{db: db}, nil
}

// UpsertCandles writes candles keyed by (symbol, timeframe, timestamp),
// overwriting OHLCV fields on conflict. Returns the number of rows written.
func (s *Store) UpsertCandles(ctx context.Context, candles []models.Candle) (int, error) {
	if len(candles) == 0 {
		return 0, nil
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "symbol"}, {Name: "timeframe"}, {Name: "timestamp"}},
		DoUpdates: clause.AssignmentColumns(
			[]string{"open", "high", "low", "close", "volume"},
		),
	}).Create(&candles).Error
	if err != nil {
		return 0, fmt.Errorf("upserting candles: %w", err)
	}
	return len(candles), nil
}

// GetCandleRange returns candles for (symbol, timeframe) within [from, to],
// ascending by timestamp.
func (s *Store) GetCandleRange(ctx context.Context, symbol, timeframe string, from, to time.Time) ([]models.Candle, error) {
	var out []models.Candle
	err := s.db.WithContext(ctx).
		Where("symbol = ? AND timeframe = ? AND timestamp >= ? AND timestamp <= ?",
			symbol, timeframe, from, to).
		Order("timestamp ASC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("selecting candles: %w", err)
	}
	return out, nil
}

// LatestCandles returns the most recent limit candles, ascending.
func (s *Store) LatestCandles(ctx context.Context, symbol, timeframe string, limit int) ([]models.Candle, error) {
	var out []models.Candle
	err := s.db.WithContext(ctx).
		Where("symbol = ? AND timeframe = ?", symbol, timeframe).
		Order("timestamp DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("selecting latest candles: %w", err)
	}
	// Reverse into ascending order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// InsertTrade appends an open row to the trade ledger.
func (s *Store) InsertTrade(ctx context.Context, trade *models.Trade) error {
	if err := s.db.WithContext(ctx).Create(trade).Error; err != nil {
		return fmt.Errorf("inserting trade: %w", err)
	}
	return nil
}

// UpdateTrade persists the full trade row, including close fields.
func (s *Store) UpdateTrade(ctx context.Context, trade *models.Trade) error {
	if err := s.db.WithContext(ctx).Save(trade).Error; err != nil {
		return fmt.Errorf("updating trade: %w", err)
	}
	return nil
}

// GetTradeByID fetches one ledger row, or ErrNotFound.
func (s *Store) GetTradeByID(ctx context.Context, id string) (*models.Trade, error) {
	var trade models.Trade
	err := s.db.WithContext(ctx).First(&trade, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching trade: %w", err)
	}
	return &trade, nil
}

// GetTradeByTicket fetches one ledger row by provider ticket, or ErrNotFound.
func (s *Store) GetTradeByTicket(ctx context.Context, ticket string) (*models.Trade, error) {
	var trade models.Trade
	err := s.db.WithContext(ctx).First(&trade, "ticket = ?", ticket).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching trade by ticket: %w", err)
	}
	return &trade, nil
}

// ListOpenTrades returns open ledger rows, optionally filtered by account.
func (s *Store) ListOpenTrades(ctx context.Context, accountID string) ([]models.Trade, error) {
	q := s.db.WithContext(ctx).Where("status = ?", models.TradeStatusOpen)
	if accountID != "" {
		q = q.Where("account_id = ?", accountID)
	}
	var out []models.Trade
	if err := q.Order("opened_at ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("listing open trades: %w", err)
	}
	return out, nil
}

// CountOpenSessionTrades counts open rows tagged with the session id.
func (s *Store) CountOpenSessionTrades(ctx context.Context, sessionID string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Trade{}).
		Where("session_id = ? AND status = ?", sessionID, models.TradeStatusOpen).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("counting session trades: %w", err)
	}
	return n, nil
}

// InsertSession creates a bot session row.
func (s *Store) InsertSession(ctx context.Context, session *models.BotSession) error {
	if err := s.db.WithContext(ctx).Create(session).Error; err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}
	return nil
}

// UpdateSession persists the full session row.
func (s *Store) UpdateSession(ctx context.Context, session *models.BotSession) error {
	if err := s.db.WithContext(ctx).Save(session).Error; err != nil {
		return fmt.Errorf("updating session: %w", err)
	}
	return nil
}

// GetSession fetches one session, or ErrNotFound.
func (s *Store) GetSession(ctx context.Context, id string) (*models.BotSession, error) {
	var session models.BotSession
	err := s.db.WithContext(ctx).First(&session, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching session: %w", err)
	}
	return &session, nil
}

// ListActiveSessions returns every session with status=active, oldest first.
func (s *Store) ListActiveSessions(ctx context.Context) ([]models.BotSession, error) {
	var out []models.BotSession
	err := s.db.WithContext(ctx).
		Where("status = ?", models.SessionActive).
		Order("started_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("listing active sessions: %w", err)
	}
	return out, nil
}

// InsertBacktestReport writes the report summary row (not its children).
func (s *Store) InsertBacktestReport(ctx context.Context, report *models.BacktestReport) error {
	if err := s.db.WithContext(ctx).Omit("Trades").Create(report).Error; err != nil {
		return fmt.Errorf("inserting backtest report: %w", err)
	}
	return nil
}

// InsertSimulatedTrades writes the report's child rows.
func (s *Store) InsertSimulatedTrades(ctx context.Context, trades []models.SimulatedTrade) error {
	if len(trades) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Create(&trades).Error; err != nil {
		return fmt.Errorf("inserting simulated trades: %w", err)
	}
	return nil
}

// DeleteBacktestReport removes a report summary and any children. Used as
// the compensating action when a child insert fails.
func (s *Store) DeleteBacktestReport(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Delete(&models.SimulatedTrade{}, "report_id = ?", id).Error; err != nil {
		return fmt.Errorf("deleting simulated trades: %w", err)
	}
	if err := s.db.WithContext(ctx).Delete(&models.BacktestReport{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("deleting backtest report: %w", err)
	}
	return nil
}

// GetBacktestReport fetches a report with its simulated trades.
func (s *Store) GetBacktestReport(ctx context.Context, id string) (*models.BacktestReport, error) {
	var report models.BacktestReport
	err := s.db.WithContext(ctx).Preload("Trades").First(&report, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching backtest report: %w", err)
	}
	return &report, nil
}

// ListBacktestReports returns report summaries, newest first, optionally
// filtered by user.
func (s *Store) ListBacktestReports(ctx context.Context, userID string) ([]models.BacktestReport, error) {
	q := s.db.WithContext(ctx).Model(&models.BacktestReport{})
	if userID != "" {
		q = q.Where("user_id = ?", userID)
	}
	var out []models.BacktestReport
	if err := q.Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("listing backtest reports: %w", err)
	}
	return out, nil
}

// InsertNotification appends one notification row.
func (s *Store) InsertNotification(ctx context.Context, n *models.Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(n).Error; err != nil {
		return fmt.Errorf("inserting notification: %w", err)
	}
	return nil
}

// GetTradingAccount fetches one account row, or ErrNotFound.
func (s *Store) GetTradingAccount(ctx context.Context, id string) (*models.TradingAccount, error) {
	var account models.TradingAccount
	err := s.db.WithContext(ctx).First(&account, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching trading account: %w", err)
	}
	return &account, nil
}

// UpsertTradingAccount creates or replaces an account row by id.
func (s *Store) UpsertTradingAccount(ctx context.Context, account *models.TradingAccount) error {
	account.UpdatedAt = time.Now().UTC()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = account.UpdatedAt
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(account).Error
	if err != nil {
		return fmt.Errorf("upserting trading account: %w", err)
	}
	return nil
}

// ListUsersOverview aggregates per-user session and ledger counts.
func (s *Store) ListUsersOverview(ctx context.Context) ([]UserOverview, error) {
	var out []UserOverview
	err := s.db.WithContext(ctx).Raw(`
		SELECT t.user_id AS user_id,
		       COUNT(*) AS total_trades,
		       SUM(CASE WHEN t.status = 'open' THEN 1 ELSE 0 END) AS open_trades,
		       COALESCE(SUM(t.profit_loss), 0) AS total_pl,
		       (SELECT COUNT(*) FROM bot_sessions s
		        WHERE s.user_id = t.user_id AND s.status = 'active') AS active_sessions
		FROM trades t
		GROUP BY t.user_id
		ORDER BY t.user_id`).Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("listing users overview: %w", err)
	}
	return out, nil
}
