// Package storage is the typed store adapter over the engine's persistent
// tables: the OHLC archive, the trade ledger, bot sessions, backtest reports
// with their simulated trades, notifications and trading accounts.
package storage

import (
	"context"
	"time"

	"github.com/BekiCrypto/TekWealth-XAUUSD-Bot/internal/models"
)

// UserOverview is one row of the admin users overview.
type UserOverview struct {
	UserID         string  `json:"user_id"`
	ActiveSessions int64   `json:"active_sessions"`
	OpenTrades     int64   `json:"open_trades"`
	TotalTrades    int64   `json:"total_trades"`
	TotalPL        float64 `json:"total_pl"`
}

// Interface is the contract the engine depends on for persistence.
//
// Implementations must be safe for concurrent use; handlers may call these
// methods from multiple goroutines. Every write stands alone - the only
// multi-row consistency the engine relies on is the compensating
// DeleteBacktestReport after a failed child insert.
type Interface interface {
	// OHLC archive
	UpsertCandles(ctx context.Context, candles []models.Candle) (int, error)
	GetCandleRange(ctx context.Context, symbol, timeframe string, from, to time.Time) ([]models.Candle, error)
	LatestCandles(ctx context.Context, symbol, timeframe string, limit int) ([]models.Candle, error)

	// Trade ledger
	InsertTrade(ctx context.Context, trade *models.Trade) error
	UpdateTrade(ctx context.Context, trade *models.Trade) error
	GetTradeByID(ctx context.Context, id string) (*models.Trade, error)
	GetTradeByTicket(ctx context.Context, ticket string) (*models.Trade, error)
	ListOpenTrades(ctx context.Context, accountID string) ([]models.Trade, error)
	CountOpenSessionTrades(ctx context.Context, sessionID string) (int64, error)

	// Bot sessions
	InsertSession(ctx context.Context, session *models.BotSession) error
	UpdateSession(ctx context.Context, session *models.BotSession) error
	GetSession(ctx context.Context, id string) (*models.BotSession, error)
	ListActiveSessions(ctx context.Context) ([]models.BotSession, error)

	// Backtests
	InsertBacktestReport(ctx context.Context, report *models.BacktestReport) error
	InsertSimulatedTrades(ctx context.Context, trades []models.SimulatedTrade) error
	DeleteBacktestReport(ctx context.Context, id string) error
	GetBacktestReport(ctx context.Context, id string) (*models.BacktestReport, error)
	ListBacktestReports(ctx context.Context, userID string) ([]models.BacktestReport, error)

	// Notifications and accounts
	InsertNotification(ctx context.Context, n *models.Notification) error
	GetTradingAccount(ctx context.Context, id string) (*models.TradingAccount, error)
	UpsertTradingAccount(ctx context.Context, account *models.TradingAccount) error
	ListUsersOverview(ctx context.Context) ([]UserOverview, error)
}

// Ensure both implementations satisfy Interface.
var (
	_ Interface = (*Store)(nil)
	_ Interface = (*MockStorage)(nil)
)
