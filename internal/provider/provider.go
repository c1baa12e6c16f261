// Package provider routes order execution either to the ledger-backed
// simulator or to a MetaTrader HTTP bridge. Both implementations persist
// their trades through the store so the ledger is the single source of truth
// regardless of where the order actually filled.
package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/BekiCrypto/TekWealth-XAUUSD-Bot/internal/config"
	"github.com/BekiCrypto/TekWealth-XAUUSD-Bot/internal/models"
	"github.com/BekiCrypto/TekWealth-XAUUSD-Bot/internal/storage"
)

// OrderRequest describes one market order to open.
type OrderRequest struct {
	UserID     string      `json:"user_id"`
	AccountID  string      `json:"account_id"`
	SessionID  *string     `json:"session_id,omitempty"`
	Symbol     string      `json:"symbol"`
	Side       models.Side `json:"side"`
	LotSize    float64     `json:"lot_size"`
	OpenPrice  float64     `json:"open_price"` // requested entry; simulator falls back to spot when zero
	StopLoss   float64     `json:"stop_loss"`
	TakeProfit *float64    `json:"take_profit,omitempty"`
}

// OrderResult is the outcome of a filled order. TradeID references the
// ledger row the provider wrote.
type OrderResult struct {
	TradeID   string    `json:"trade_id"`
	Ticket    string    `json:"ticket"`
	OpenPrice float64   `json:"open_price"`
	OpenedAt  time.Time `json:"opened_at"`
}

// CloseRequest identifies the trade to close, by ledger id or provider
// ticket. Lots optionally closes part of the broker position; the ledger
// row is frozen either way.
type CloseRequest struct {
	TradeID string  `json:"trade_id,omitempty"`
	Ticket  string  `json:"ticket,omitempty"`
	Lots    float64 `json:"lots,omitempty"`
}

// CloseResult is the outcome of closing a trade.
type CloseResult struct {
	TradeID    string    `json:"trade_id"`
	Ticket     string    `json:"ticket"`
	ClosePrice float64   `json:"close_price"`
	ProfitLoss float64   `json:"profit_loss"`
	ClosedAt   time.Time `json:"closed_at"`
}

// AccountSummary is a point-in-time account snapshot.
type AccountSummary struct {
	Provider   string  `json:"provider"`
	Balance    float64 `json:"balance"`
	Equity     float64 `json:"equity"`
	Margin     float64 `json:"margin"`
	FreeMargin float64 `json:"free_margin"`
	Currency   string  `json:"currency"`
}

// OpenPosition is one live position as the provider sees it.
type OpenPosition struct {
	TradeID      string      `json:"trade_id,omitempty"`
	Ticket       string      `json:"ticket"`
	Symbol       string      `json:"symbol"`
	Side         models.Side `json:"side"`
	LotSize      float64     `json:"lot_size"`
	OpenPrice    float64     `json:"open_price"`
	CurrentPrice float64     `json:"current_price"`
	ProfitLoss   float64     `json:"profit_loss"`
	OpenedAt     time.Time   `json:"opened_at"`
}

// Provider executes and manages orders on behalf of the engine.
type Provider interface {
	ExecuteOrder(ctx context.Context, req OrderRequest) (*OrderResult, error)
	CloseOrder(ctx context.Context, req CloseRequest) (*CloseResult, error)
	GetAccountSummary(ctx context.Context, userID, accountID string) (*AccountSummary, error)
	GetOpenPositions(ctx context.Context, accountID string) ([]OpenPosition, error)
	GetServerTime(ctx context.Context) (time.Time, error)
}

// SpotQuoter is the slice of the market-data client the simulator needs.
type SpotQuoter interface {
	GetSpotPrice(ctx context.Context) (float64, error)
}

// lookupTrade resolves a close request to its ledger row by id or ticket.
func lookupTrade(ctx context.Context, store storage.Interface, req CloseRequest) (*models.Trade, error) {
	switch {
	case req.TradeID != "":
		trade, err := store.GetTradeByID(ctx, req.TradeID)
		if err != nil {
			return nil, fmt.Errorf("looking up trade %s: %w", req.TradeID, err)
		}
		return trade, nil
	case req.Ticket != "":
		trade, err := store.GetTradeByTicket(ctx, req.Ticket)
		if err != nil {
			return nil, fmt.Errorf("looking up ticket %s: %w", req.Ticket, err)
		}
		return trade, nil
	}
	return nil, errors.New("close request needs a trade id or ticket")
}

// New selects the execution provider from configuration. Requesting the
// MetaTrader bridge without both bridge settings falls back to the simulator
// with a warning rather than failing the process.
func New(cfg *config.Config, store storage.Interface, quotes SpotQuoter, logger *logrus.Logger) Provider {
	if cfg.ProviderType() == config.ProviderMetaTrader {
		if cfg.BridgeConfigured() {
			bridge := NewBridge(cfg.Provider.BridgeURL, cfg.Provider.BridgeAPIKey, cfg.BridgeTimeout(), store, quotes, logger)
			return NewCircuitBreakerProvider(bridge, logger)
		}
		logger.Warn("MetaTrader provider requested but bridge URL or API key missing, falling back to simulated execution")
	}
	return NewSimulated(store, quotes, logger)
}
