// Package bot drives the live trading cycle: each run evaluates every active
// session against fresh market data and routes any signal to the execution
// provider.
package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/BekiCrypto/TekWealth-XAUUSD-Bot/internal/indicators"
	"github.com/BekiCrypto/TekWealth-XAUUSD-Bot/internal/marketdata"
	"github.com/BekiCrypto/TekWealth-XAUUSD-Bot/internal/models"
	"github.com/BekiCrypto/TekWealth-XAUUSD-Bot/internal/notify"
	"github.com/BekiCrypto/TekWealth-XAUUSD-Bot/internal/provider"
	"github.com/BekiCrypto/TekWealth-XAUUSD-Bot/internal/storage"
	"github.com/BekiCrypto/TekWealth-XAUUSD-Bot/internal/strategy"
)

// sessionTimeframe is the candle timeframe live sessions evaluate on.
const sessionTimeframe = "15m"

// Quotes is the slice of the market-data client the runner needs: the live
// spot quote plus the 15m history it decides on. History comes from the
// upstream API, not the candle archive, so a cold store never silences
// signals; fetched candles are upserted into the archive as a side effect.
type Quotes interface {
	GetSpotPrice(ctx context.Context) (float64, error)
	GetHistorical(ctx context.Context, interval, outputsize string) ([]models.Candle, error)
}

// CycleSummary reports what one run_bot_logic invocation did.
type CycleSummary struct {
	Sessions int `json:"sessions"`
	Executed int `json:"executed"`
	Skipped  int `json:"skipped"`
	NoSignal int `json:"no_signal"`
	Errors   int `json:"errors"`
}

// Runner evaluates active sessions sequentially. A per-session mutex guards
// the one-open-trade rule against overlapping cycle invocations; the lock is
// advisory and in-process only.
type Runner struct {
	store  storage.Interface
	quotes Quotes
	exec   provider.Provider
	mailer notify.Sender
	logger *logrus.Logger
	now    func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewRunner creates the session runner. mailer may be nil to disable email.
func NewRunner(store storage.Interface, quotes Quotes, exec provider.Provider, mailer notify.Sender, logger *logrus.Logger) *Runner {
	return &Runner{
		store:  store,
		quotes: quotes,
		exec:   exec,
		mailer: mailer,
		logger: logger,
		now:    time.Now,
		locks:  make(map[string]*sync.Mutex),
	}
}

func (r *Runner) sessionLock(id string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.locks[id]; ok {
		return l
	}
	l := &sync.Mutex{}
	r.locks[id] = l
	return l
}

// RunCycle processes every active session once. Per-session failures are
// contained: they are logged, recorded as bot_error notifications, and do
// not stop the remaining sessions.
func (r *Runner) RunCycle(ctx context.Context) (CycleSummary, error) {
	var summary CycleSummary

	sessions, err := r.store.ListActiveSessions(ctx)
	if err != nil {
		return summary, fmt.Errorf("listing active sessions: %w", err)
	}
	summary.Sessions = len(sessions)

	for i := range sessions {
		session := sessions[i]
		outcome, err := r.runSession(ctx, &session)
		if err != nil {
			summary.Errors++
			r.logger.WithError(err).WithField("session_id", session.ID).Error("session cycle failed")
			if insErr := r.store.InsertNotification(ctx, &models.Notification{
				UserID: session.UserID,
				Kind:   models.NotifyBotError,
				Title:  "Bot session error",
				Body:   err.Error(),
			}); insErr != nil {
				r.logger.WithError(insErr).Warn("bot_error notification insert failed")
			}
			continue
		}
		switch outcome {
		case outcomeExecuted:
			summary.Executed++
		case outcomeSkipped:
			summary.Skipped++
		case outcomeNoSignal:
			summary.NoSignal++
		case outcomeTradeError:
			summary.Errors++
		}
	}

	return summary, nil
}

type sessionOutcome int

const (
	outcomeNoSignal sessionOutcome = iota
	outcomeSkipped
	outcomeExecuted
	// outcomeTradeError marks an execution failure already recorded as a
	// bot_trade_error notification; the boundary must not double-report it.
	outcomeTradeError
)

func (r *Runner) runSession(ctx context.Context, session *models.BotSession) (sessionOutcome, error) {
	lock := r.sessionLock(session.ID)
	lock.Lock()
	defer lock.Unlock()

	log := r.logger.WithFields(logrus.Fields{
		"session_id": session.ID,
		"mode":       session.StrategyMode,
	})

	// One trade at a time per session.
	openCount, err := r.store.CountOpenSessionTrades(ctx, session.ID)
	if err != nil {
		return 0, fmt.Errorf("counting open trades: %w", err)
	}
	if openCount > 0 {
		log.Debug("session already has an open trade, skipping")
		return outcomeSkipped, nil
	}

	risk := models.ResolveRisk(session.RiskLevel)
	params, err := strategy.ParseParams(session.StrategyParams)
	if err != nil {
		return 0, fmt.Errorf("parsing strategy params: %w", err)
	}

	history, err := r.quotes.GetHistorical(ctx, sessionTimeframe, marketdata.OutputCompact)
	if err != nil {
		return 0, fmt.Errorf("fetching history: %w", err)
	}
	if _, err := r.store.UpsertCandles(ctx, history); err != nil {
		log.WithError(err).Warn("archiving fetched candles failed")
	}
	spot, err := r.quotes.GetSpotPrice(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetching spot: %w", err)
	}

	atrSeries := indicators.ATR(history, params.ATRPeriod)
	var atr float64
	if len(atrSeries) > 0 {
		atr = atrSeries[len(atrSeries)-1]
	}

	signal := strategy.ForMode(session.StrategyMode).Decide(history, spot, params, atr)
	if !signal.HasTrade() {
		log.Info("no trade signal this cycle")
		return outcomeNoSignal, nil
	}

	take := signal.Take
	result, err := r.exec.ExecuteOrder(ctx, provider.OrderRequest{
		UserID:     session.UserID,
		AccountID:  session.AccountID,
		SessionID:  &session.ID,
		Symbol:     models.Symbol,
		Side:       signal.Side,
		LotSize:    risk.MaxLotSize,
		OpenPrice:  spot,
		StopLoss:   signal.Stop,
		TakeProfit: &take,
	})
	if err != nil {
		log.WithError(err).Error("order execution failed")
		if insErr := r.store.InsertNotification(ctx, &models.Notification{
			UserID: session.UserID,
			Kind:   models.NotifyBotTradeError,
			Title:  "Bot trade failed",
			Body:   fmt.Sprintf("%s %s: %v", signal.Side, models.Symbol, err),
		}); insErr != nil {
			log.WithError(insErr).Warn("bot_trade_error notification insert failed")
		}
		return outcomeTradeError, nil
	}

	body := fmt.Sprintf("%s %.2f %s @ %.2f (ticket %s, stop %.2f, take %.2f)",
		signal.Side, risk.MaxLotSize, models.Symbol, result.OpenPrice, result.Ticket, signal.Stop, take)
	if err := r.store.InsertNotification(ctx, &models.Notification{
		UserID: session.UserID,
		Kind:   models.NotifyBotTradeExecuted,
		Title:  "Bot trade executed",
		Body:   body,
	}); err != nil {
		log.WithError(err).Warn("bot_trade_executed notification insert failed")
	}

	now := r.now().UTC()
	session.TradeCount++
	session.LastTradeAt = &now
	if err := r.store.UpdateSession(ctx, session); err != nil {
		log.WithError(err).Warn("session bookkeeping update failed")
	}

	if r.mailer != nil {
		if err := r.mailer.Send(ctx, "Bot trade executed", body); err != nil {
			log.WithError(err).Warn("trade email failed")
		}
	}

	log.WithFields(logrus.Fields{
		"side":   signal.Side,
		"ticket": result.Ticket,
		"price":  result.OpenPrice,
	}).Info("bot trade executed")
	return outcomeExecuted, nil
}
