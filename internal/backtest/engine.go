// Package backtest replays stored candles through a strategy and persists
// the resulting report with its simulated trades.
package backtest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/BekiCrypto/TekWealth-XAUUSD-Bot/internal/indicators"
	"github.com/BekiCrypto/TekWealth-XAUUSD-Bot/internal/models"
	"github.com/BekiCrypto/TekWealth-XAUUSD-Bot/internal/notify"
	"github.com/BekiCrypto/TekWealth-XAUUSD-Bot/internal/storage"
	"github.com/BekiCrypto/TekWealth-XAUUSD-Bot/internal/strategy"
)

// ErrInsufficientData is returned when the selected range holds fewer candles
// than the strategy's minimum lookback.
var ErrInsufficientData = errors.New("backtest: not enough candles in range")

// Request describes one backtest run.
type Request struct {
	UserID       *string             `json:"user_id,omitempty"`
	Symbol       string              `json:"symbol"`
	Timeframe    string              `json:"timeframe"`
	StartDate    time.Time           `json:"start_date"`
	EndDate      time.Time           `json:"end_date"`
	StrategyMode models.StrategyMode `json:"strategy_mode"`
	Params       strategy.Params     `json:"strategy_params"`
	Risk         models.RiskParams   `json:"risk_params"`
}

// Engine replays candles serially; it holds no state between runs.
type Engine struct {
	store  storage.Interface
	mailer notify.Sender
	logger *logrus.Logger
	now    func() time.Time
}

// New creates a backtest engine. mailer may be nil to disable email.
func New(store storage.Interface, mailer notify.Sender, logger *logrus.Logger) *Engine {
	return &Engine{
		store:  store,
		mailer: mailer,
		logger: logger,
		now:    time.Now,
	}
}

// openPosition is the single in-flight simulated trade during replay.
type openPosition struct {
	side      models.Side
	entry     float64
	stop      float64
	take      float64
	entryTime time.Time
}

// Run executes the backtest and persists the report atomically: either the
// summary row plus all simulated trades land, or nothing does.
func (e *Engine) Run(ctx context.Context, req Request) (*models.BacktestReport, error) {
	params := req.Params.Normalize()
	risk := req.Risk
	if risk.MaxLotSize <= 0 {
		risk = models.ResolveRisk(models.RiskConservative)
	}

	candles, err := e.store.GetCandleRange(ctx, req.Symbol, req.Timeframe, req.StartDate, req.EndDate)
	if err != nil {
		return nil, fmt.Errorf("loading candles: %w", err)
	}
	minCandles := params.MinCandles()
	if len(candles) < minCandles {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientData, len(candles), minCandles)
	}

	trades := e.replay(candles, strategy.ForMode(req.StrategyMode), params, risk)

	report := e.aggregate(req, params, risk, trades)
	if err := e.persist(ctx, report, trades); err != nil {
		return nil, err
	}
	report.Trades = trades

	e.notifyComplete(ctx, req, report)
	return report, nil
}

// replay walks the candles once, managing at most one open position. Within
// a candle the stop is checked before the target.
func (e *Engine) replay(candles []models.Candle, dispatcher strategy.Strategy, params strategy.Params, risk models.RiskParams) []models.SimulatedTrade {
	atrSeries := indicators.ATR(candles, params.ATRPeriod)

	var open *openPosition
	var trades []models.SimulatedTrade

	closeAt := func(price float64, reason models.CloseReason, ts time.Time) {
		take := open.take
		trades = append(trades, models.SimulatedTrade{
			Symbol:      candles[0].Symbol,
			Side:        open.side,
			LotSize:     risk.MaxLotSize,
			OpenPrice:   open.entry,
			StopLoss:    open.stop,
			TakeProfit:  &take,
			ClosePrice:  price,
			ProfitLoss:  models.PnL(open.side, open.entry, price, risk.MaxLotSize),
			CloseReason: reason,
			OpenedAt:    open.entryTime,
			ClosedAt:    ts,
		})
		open = nil
	}

	for i := params.MinCandles(); i < len(candles); i++ {
		candle := candles[i]

		if open != nil {
			slHit := (open.side == models.SideBuy && candle.Low <= open.stop) ||
				(open.side == models.SideSell && candle.High >= open.stop)
			if slHit {
				closeAt(open.stop, models.CloseReasonSL, candle.Timestamp)
			} else {
				tpHit := (open.side == models.SideBuy && candle.High >= open.take) ||
					(open.side == models.SideSell && candle.Low <= open.take)
				if tpHit {
					closeAt(open.take, models.CloseReasonTP, candle.Timestamp)
				}
			}
		}

		decisionPrice := candle.Open
		signal := dispatcher.Decide(candles[:i], decisionPrice, params, atrSeries[i-1])

		switch {
		case open != nil && signal.HasTrade() && signal.Side == open.side.Opposite():
			closeAt(decisionPrice, models.CloseReasonSignal, candle.Timestamp)
		case open == nil && signal.HasTrade():
			open = &openPosition{
				side:      signal.Side,
				entry:     decisionPrice,
				stop:      signal.Stop,
				take:      signal.Take,
				entryTime: candle.Timestamp,
			}
		}
	}

	if open != nil {
		last := candles[len(candles)-1]
		closeAt(last.Close, models.CloseReasonEndOfTest, last.Timestamp)
	}

	return trades
}

// aggregate rolls the trades into a report summary.
func (e *Engine) aggregate(req Request, params strategy.Params, risk models.RiskParams, trades []models.SimulatedTrade) *models.BacktestReport {
	report := &models.BacktestReport{
		ID:        uuid.New().String(),
		UserID:    req.UserID,
		Symbol:    req.Symbol,
		Timeframe: req.Timeframe,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
		CreatedAt: e.now().UTC(),
	}
	if blob, err := json.Marshal(params); err == nil {
		report.StrategyParams = string(blob)
	}
	if blob, err := json.Marshal(risk); err == nil {
		report.RiskParams = string(blob)
	}

	for _, t := range trades {
		report.TotalTrades++
		report.TotalPL += t.ProfitLoss
		switch {
		case t.ProfitLoss > 0:
			report.WinningTrades++
		case t.ProfitLoss < 0:
			report.LosingTrades++
		}
	}
	if report.TotalTrades > 0 {
		report.WinRate = float64(report.WinningTrades) / float64(report.TotalTrades) * 100
	}
	return report
}

// persist writes the summary then its children; a failed child insert rolls
// the summary back so readers never see a half-written report.
func (e *Engine) persist(ctx context.Context, report *models.BacktestReport, trades []models.SimulatedTrade) error {
	if err := e.store.InsertBacktestReport(ctx, report); err != nil {
		return fmt.Errorf("persisting report: %w", err)
	}

	for i := range trades {
		trades[i].ID = uuid.New().String()
		trades[i].ReportID = report.ID
	}
	if err := e.store.InsertSimulatedTrades(ctx, trades); err != nil {
		if delErr := e.store.DeleteBacktestReport(ctx, report.ID); delErr != nil {
			e.logger.WithError(delErr).Error("compensating report delete failed")
		}
		return fmt.Errorf("persisting simulated trades: %w", err)
	}
	return nil
}

// notifyComplete records the completion notification and mails the operator.
// Both are best-effort and never fail the run.
func (e *Engine) notifyComplete(ctx context.Context, req Request, report *models.BacktestReport) {
	body := fmt.Sprintf("%s %s %s..%s: %d trades, total P&L %.2f, win rate %.1f%%",
		report.Symbol, report.Timeframe,
		report.StartDate.Format("2006-01-02"), report.EndDate.Format("2006-01-02"),
		report.TotalTrades, report.TotalPL, report.WinRate)

	if req.UserID != nil {
		if err := e.store.InsertNotification(ctx, &models.Notification{
			UserID: *req.UserID,
			Kind:   models.NotifyBacktestComplete,
			Title:  "Backtest complete",
			Body:   body,
		}); err != nil {
			e.logger.WithError(err).Warn("backtest notification insert failed")
		}
	}

	if e.mailer != nil {
		if err := e.mailer.Send(ctx, "Backtest complete", body); err != nil {
			e.logger.WithError(err).Warn("backtest email failed")
		}
	}

	e.logger.WithFields(logrus.Fields{
		"report_id": report.ID,
		"trades":    report.TotalTrades,
		"total_pl":  report.TotalPL,
	}).Info("backtest finished")
}
