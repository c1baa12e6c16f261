package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/BekiCrypto/TekWealth-XAUUSD-Bot/internal/models"
	"github.com/BekiCrypto/TekWealth-XAUUSD-Bot/internal/storage"
)

// Defaults for accounts that have never synced a balance.
const (
	defaultBalance  = 10000.0
	defaultCurrency = "USD"
)

// Simulated fills orders instantly at the current spot price and keeps the
// resulting positions in the trade ledger. It is the default provider and
// the fallback when the MetaTrader bridge is not configured.
type Simulated struct {
	store  storage.Interface
	quotes SpotQuoter
	logger *logrus.Logger
	now    func() time.Time
}

var _ Provider = (*Simulated)(nil)

// NewSimulated creates the ledger-backed simulator.
func NewSimulated(store storage.Interface, quotes SpotQuoter, logger *logrus.Logger) *Simulated {
	return &Simulated{
		store:  store,
		quotes: quotes,
		logger: logger,
		now:    time.Now,
	}
}

// WithClock overrides the clock, for tests.
func (s *Simulated) WithClock(now func() time.Time) *Simulated {
	s.now = now
	return s
}

// ExecuteOrder fills the order at spot and inserts the open ledger row.
func (s *Simulated) ExecuteOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	if !req.Side.Valid() {
		return nil, fmt.Errorf("invalid order side %q", req.Side)
	}
	if req.LotSize <= 0 {
		return nil, fmt.Errorf("invalid lot size %v", req.LotSize)
	}

	price := req.OpenPrice
	if price <= 0 {
		spot, err := s.quotes.GetSpotPrice(ctx)
		if err != nil {
			return nil, fmt.Errorf("simulated execution: %w", err)
		}
		price = spot
	}

	now := s.now().UTC()
	trade := &models.Trade{
		ID:         uuid.New().String(),
		UserID:     req.UserID,
		AccountID:  req.AccountID,
		SessionID:  req.SessionID,
		Ticket:     "SIM-" + strings.ToUpper(uuid.New().String()[:8]),
		Symbol:     req.Symbol,
		Side:       req.Side,
		LotSize:    req.LotSize,
		OpenPrice:  price,
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
		Status:     models.TradeStatusOpen,
		OpenedAt:   now,
	}
	if err := s.store.InsertTrade(ctx, trade); err != nil {
		return nil, fmt.Errorf("recording simulated trade: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"ticket": trade.Ticket,
		"side":   trade.Side,
		"lot":    trade.LotSize,
		"price":  price,
	}).Info("simulated order filled")

	return &OrderResult{
		TradeID:   trade.ID,
		Ticket:    trade.Ticket,
		OpenPrice: price,
		OpenedAt:  now,
	}, nil
}

// CloseOrder closes the ledger trade at the current spot price.
func (s *Simulated) CloseOrder(ctx context.Context, req CloseRequest) (*CloseResult, error) {
	trade, err := lookupTrade(ctx, s.store, req)
	if err != nil {
		return nil, err
	}
	if !trade.IsOpen() {
		return nil, fmt.Errorf("trade %s is not open", req.TradeID)
	}

	price, err := s.quotes.GetSpotPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("simulated close: %w", err)
	}

	now := s.now().UTC()
	profit := trade.ProfitFor(price)
	if err := trade.Close(price, profit, now); err != nil {
		return nil, err
	}
	if err := s.store.UpdateTrade(ctx, trade); err != nil {
		return nil, fmt.Errorf("recording simulated close: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"ticket": trade.Ticket,
		"price":  price,
		"profit": profit,
	}).Info("simulated order closed")

	return &CloseResult{
		TradeID:    trade.ID,
		Ticket:     trade.Ticket,
		ClosePrice: price,
		ProfitLoss: profit,
		ClosedAt:   now,
	}, nil
}

// GetAccountSummary reads the registered account balance, defaulting to a
// fresh paper account when none has been registered.
func (s *Simulated) GetAccountSummary(ctx context.Context, userID, accountID string) (*AccountSummary, error) {
	account, err := s.store.GetTradingAccount(ctx, accountID)
	if errors.Is(err, storage.ErrNotFound) {
		return &AccountSummary{
			Provider:   "SIMULATED",
			Balance:    defaultBalance,
			Equity:     defaultBalance,
			FreeMargin: defaultBalance,
			Currency:   defaultCurrency,
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("looking up account %s: %w", accountID, err)
	}

	return &AccountSummary{
		Provider:   "SIMULATED",
		Balance:    account.Balance,
		Equity:     account.Equity,
		FreeMargin: account.Equity,
		Currency:   account.Currency,
	}, nil
}

// GetOpenPositions lists the open ledger trades with unrealized P&L marked
// at the current spot price. A spot failure degrades to zero marks rather
// than failing the listing.
func (s *Simulated) GetOpenPositions(ctx context.Context, accountID string) ([]OpenPosition, error) {
	trades, err := s.store.ListOpenTrades(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("listing open trades: %w", err)
	}

	spot, spotErr := s.quotes.GetSpotPrice(ctx)
	if spotErr != nil {
		s.logger.WithError(spotErr).Warn("spot unavailable, open positions reported without marks")
	}

	positions := make([]OpenPosition, 0, len(trades))
	for _, t := range trades {
		pos := OpenPosition{
			TradeID:   t.ID,
			Ticket:    t.Ticket,
			Symbol:    t.Symbol,
			Side:      t.Side,
			LotSize:   t.LotSize,
			OpenPrice: t.OpenPrice,
			OpenedAt:  t.OpenedAt,
		}
		if spotErr == nil {
			pos.CurrentPrice = spot
			pos.ProfitLoss = t.ProfitFor(spot)
		}
		positions = append(positions, pos)
	}
	return positions, nil
}

// GetServerTime returns the local clock; the simulator has no remote server.
func (s *Simulated) GetServerTime(_ context.Context) (time.Time, error) {
	return s.now().UTC(), nil
}
