// Package models defines the persistent domain types shared by the engine:
// OHLC candles, ledger trades, bot sessions, backtest reports and
// notifications. All rows are owned by the store; handlers hold short-lived
// copies only.
package models

import (
	"fmt"
	"time"
)

// Symbol is the only instrument this engine trades.
const Symbol = "XAUUSD"

// Side is the direction of a trade.
type Side string

const (
	// SideBuy is a long position.
	SideBuy Side = "BUY"
	// SideSell is a short position.
	SideSell Side = "SELL"
)

// Valid returns true if the side is one of the defined constants.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// Opposite returns the opposing side. Empty sides map to empty.
func (s Side) Opposite() Side {
	switch s {
	case SideBuy:
		return SideSell
	case SideSell:
		return SideBuy
	}
	return ""
}

// TradeStatus is the lifecycle state of a ledger trade.
type TradeStatus string

const (
	// TradeStatusOpen marks a live trade with no close fields set.
	TradeStatusOpen TradeStatus = "open"
	// TradeStatusClosed marks a finished trade; close fields are frozen.
	TradeStatusClosed TradeStatus = "closed"
)

// Candle is one OHLC bar. Identity is (symbol, timeframe, timestamp);
// re-ingesting the same bar overwrites the OHLCV fields.
type Candle struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	Symbol    string    `gorm:"uniqueIndex:idx_price_key;size:16" json:"symbol"`
	Timeframe string    `gorm:"uniqueIndex:idx_price_key;size:8" json:"timeframe"`
	Timestamp time.Time `gorm:"uniqueIndex:idx_price_key" json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// TableName maps Candle onto the canonical price_data table.
func (Candle) TableName() string { return "price_data" }

// Trade is one row of the trade ledger. A row is open iff ClosePrice,
// ProfitLoss and ClosedAt are all absent; once closed those fields are frozen.
type Trade struct {
	ID         string      `gorm:"primaryKey;size:36" json:"id"`
	UserID     string      `gorm:"index;size:36" json:"user_id"`
	AccountID  string      `gorm:"index;size:36" json:"account_id"`
	SessionID  *string     `gorm:"index;size:36" json:"session_id,omitempty"`
	Ticket     string      `gorm:"uniqueIndex;size:64" json:"ticket"`
	Symbol     string      `gorm:"size:16" json:"symbol"`
	Side       Side        `gorm:"size:4" json:"side"`
	LotSize    float64     `json:"lot_size"`
	OpenPrice  float64     `json:"open_price"`
	StopLoss   float64     `json:"stop_loss"`
	TakeProfit *float64    `json:"take_profit,omitempty"`
	ClosePrice *float64    `json:"close_price,omitempty"`
	ProfitLoss *float64    `json:"profit_loss,omitempty"`
	Status     TradeStatus `gorm:"index;size:8" json:"status"`
	OpenedAt   time.Time   `json:"opened_at"`
	ClosedAt   *time.Time  `json:"closed_at,omitempty"`
}

// TableName maps Trade onto the canonical trades table.
func (Trade) TableName() string { return "trades" }

// IsOpen reports whether the trade is still live.
func (t *Trade) IsOpen() bool { return t.Status == TradeStatusOpen }

// Close freezes the trade with the given exit price and profit at ts.
// Closing an already-closed trade is an error.
func (t *Trade) Close(closePrice, profit float64, ts time.Time) error {
	if t.Status == TradeStatusClosed {
		return fmt.Errorf("trade %s already closed", t.ID)
	}
	t.Status = TradeStatusClosed
	t.ClosePrice = &closePrice
	t.ProfitLoss = &profit
	t.ClosedAt = &ts
	return nil
}

// ProfitFor computes the naive P&L of exiting this trade at exit:
// (BUY ? exit-open : open-exit) * lot * 100. For XAUUSD 0.01 lot is one
// ounce, so a $1 move on 0.01 lot is $1.
func (t *Trade) ProfitFor(exit float64) float64 {
	return PnL(t.Side, t.OpenPrice, exit, t.LotSize)
}

// PnL is the ledger P&L formula shared by the simulated provider and the
// backtest engine.
func PnL(side Side, entry, exit, lot float64) float64 {
	diff := exit - entry
	if side == SideSell {
		diff = entry - exit
	}
	return diff * lot * 100
}

// SessionStatus is the lifecycle state of a bot session. Stopping is terminal.
type SessionStatus string

const (
	// SessionActive marks a session the runner evaluates each cycle.
	SessionActive SessionStatus = "active"
	// SessionStopped marks a session stopped by the user.
	SessionStopped SessionStatus = "stopped"
	// SessionError marks a session halted by an unrecoverable error.
	SessionError SessionStatus = "error"
)

// RiskLevel selects the static (lot, stop-pips) tier for a session.
type RiskLevel string

const (
	// RiskConservative trades 0.01 lots with a 200-pip stop.
	RiskConservative RiskLevel = "conservative"
	// RiskMedium trades 0.05 lots with a 300-pip stop.
	RiskMedium RiskLevel = "medium"
	// RiskRisky trades 0.10 lots with a 500-pip stop.
	RiskRisky RiskLevel = "risky"
)

// RiskParams is a resolved risk tier.
type RiskParams struct {
	MaxLotSize   float64 `json:"max_lot_size"`
	StopLossPips float64 `json:"stop_loss_pips"`
}

// riskTable is the static tier table. 10 pips = $1 for XAUUSD here.
var riskTable = map[RiskLevel]RiskParams{
	RiskConservative: {MaxLotSize: 0.01, StopLossPips: 200},
	RiskMedium:       {MaxLotSize: 0.05, StopLossPips: 300},
	RiskRisky:        {MaxLotSize: 0.10, StopLossPips: 500},
}

// ResolveRisk maps a risk level to its tier, defaulting unknown levels to
// conservative.
func ResolveRisk(level RiskLevel) RiskParams {
	if p, ok := riskTable[level]; ok {
		return p
	}
	return riskTable[RiskConservative]
}

// StrategyMode selects which strategy the dispatcher runs for a session.
type StrategyMode string

const (
	// ModeAdaptive picks a strategy from the ADX regime each tick.
	ModeAdaptive StrategyMode = "ADAPTIVE"
	// ModeSMAOnly always runs the SMA crossover strategy.
	ModeSMAOnly StrategyMode = "SMA_ONLY"
	// ModeMeanReversionOnly always runs the Bollinger+RSI strategy.
	ModeMeanReversionOnly StrategyMode = "MEAN_REVERSION_ONLY"
	// ModeBreakoutOnly is reserved; it currently yields no signals.
	ModeBreakoutOnly StrategyMode = "BREAKOUT_ONLY"
)

// Valid returns true if the mode is one of the defined constants.
func (m StrategyMode) Valid() bool {
	switch m {
	case ModeAdaptive, ModeSMAOnly, ModeMeanReversionOnly, ModeBreakoutOnly:
		return true
	}
	return false
}

// BotSession is a running configuration of a strategy under a user, the sole
// principal of bot-origin trades. Its ID is stamped on every trade it opens.
type BotSession struct {
	ID             string        `gorm:"primaryKey;size:36" json:"id"`
	UserID         string        `gorm:"index;size:36" json:"user_id"`
	AccountID      string        `gorm:"size:36" json:"account_id"`
	RiskLevel      RiskLevel     `gorm:"size:16" json:"risk_level"`
	StrategyMode   StrategyMode  `gorm:"size:24" json:"strategy_mode"`
	StrategyParams string        `gorm:"type:text" json:"strategy_params"` // JSON blob
	Status         SessionStatus `gorm:"index;size:8" json:"status"`
	StartedAt      time.Time     `json:"started_at"`
	StoppedAt      *time.Time    `json:"stopped_at,omitempty"`
	TradeCount     int           `json:"trade_count"`
	LastTradeAt    *time.Time    `json:"last_trade_at,omitempty"`
}

// TableName maps BotSession onto the canonical bot_sessions table.
func (BotSession) TableName() string { return "bot_sessions" }

// CloseReason explains why the backtest engine closed a simulated trade.
type CloseReason string

const (
	// CloseReasonSL marks a stop-loss exit.
	CloseReasonSL CloseReason = "SL"
	// CloseReasonTP marks a take-profit exit.
	CloseReasonTP CloseReason = "TP"
	// CloseReasonSignal marks an exit on an opposite strategy signal.
	CloseReasonSignal CloseReason = "Signal"
	// CloseReasonEndOfTest marks a forced close at the last replay candle.
	CloseReasonEndOfTest CloseReason = "EndOfTest"
)

// BacktestReport is the stored summary of one replayed strategy run.
// Its simulated trades are persisted as children referencing ReportID.
type BacktestReport struct {
	ID             string    `gorm:"primaryKey;size:36" json:"id"`
	UserID         *string   `gorm:"index;size:36" json:"user_id,omitempty"`
	Symbol         string    `gorm:"size:16" json:"symbol"`
	Timeframe      string    `gorm:"size:8" json:"timeframe"`
	StartDate      time.Time `json:"start_date"`
	EndDate        time.Time `json:"end_date"`
	StrategyParams string    `gorm:"type:text" json:"strategy_params"` // JSON blob
	RiskParams     string    `gorm:"type:text" json:"risk_params"`     // JSON blob
	TotalTrades    int       `json:"total_trades"`
	TotalPL        float64   `json:"total_pl"`
	WinningTrades  int       `json:"winning_trades"`
	LosingTrades   int       `json:"losing_trades"`
	WinRate        float64   `json:"win_rate"`
	CreatedAt      time.Time `json:"created_at"`

	Trades []SimulatedTrade `gorm:"foreignKey:ReportID" json:"trades,omitempty"`
}

// TableName maps BacktestReport onto the canonical backtest_reports table.
func (BacktestReport) TableName() string { return "backtest_reports" }

// SimulatedTrade is one closed trade produced by a backtest replay. Same
// shape as a ledger trade plus the close reason.
type SimulatedTrade struct {
	ID          string      `gorm:"primaryKey;size:36" json:"id"`
	ReportID    string      `gorm:"index;size:36" json:"report_id"`
	Symbol      string      `gorm:"size:16" json:"symbol"`
	Side        Side        `gorm:"size:4" json:"side"`
	LotSize     float64     `json:"lot_size"`
	OpenPrice   float64     `json:"open_price"`
	StopLoss    float64     `json:"stop_loss"`
	TakeProfit  *float64    `json:"take_profit,omitempty"`
	ClosePrice  float64     `json:"close_price"`
	ProfitLoss  float64     `json:"profit_loss"`
	CloseReason CloseReason `gorm:"size:12" json:"close_reason"`
	OpenedAt    time.Time   `json:"opened_at"`
	ClosedAt    time.Time   `json:"closed_at"`
}

// TableName maps SimulatedTrade onto the canonical simulated_trades table.
func (SimulatedTrade) TableName() string { return "simulated_trades" }

// Notification is an append-only message row surfaced to the UI.
type Notification struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    string    `gorm:"index;size:36" json:"user_id"`
	Kind      string    `gorm:"size:32" json:"kind"`
	Title     string    `gorm:"size:128" json:"title"`
	Body      string    `gorm:"type:text" json:"body"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName maps Notification onto the canonical notifications table.
func (Notification) TableName() string { return "notifications" }

// Notification kinds emitted by the engine.
const (
	NotifyBotTradeExecuted = "bot_trade_executed"
	NotifyBotTradeError    = "bot_trade_error"
	NotifyBotError         = "bot_error"
	NotifyBacktestComplete = "backtest_complete"
)

// TradingAccount is a user-registered broker account the simulated provider
// reads its balance from. Broker credentials are deliberately not stored
// here; credential management lives outside this engine.
type TradingAccount struct {
	ID            string    `gorm:"primaryKey;size:36" json:"id"`
	UserID        string    `gorm:"index;size:36" json:"user_id"`
	Platform      string    `gorm:"size:16" json:"platform"`
	AccountNumber string    `gorm:"size:64" json:"account_number"`
	ServerName    string    `gorm:"size:64" json:"server_name"`
	Balance       float64   `json:"balance"`
	Equity        float64   `json:"equity"`
	Currency      string    `gorm:"size:8" json:"currency"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TableName maps TradingAccount onto the canonical trading_accounts table.
func (TradingAccount) TableName() string { return "trading_accounts" }
