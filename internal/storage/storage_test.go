package storage

import (
	"context"
	"testing"
	"time"

	"github.com/BekiCrypto/TekWealth-XAUUSD-Bot/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestInterface runs the shared suite against both implementations.
func TestInterface(t *testing.T) {
	t.Run("MockStorage", func(t *testing.T) {
		testInterface(t, NewMockStorage())
	})

	t.Run("Store", func(t *testing.T) {
		store, err := New(":memory:")
		require.NoError(t, err)
		testInterface(t, store)
	})
}

func testInterface(t *testing.T, s Interface) {
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	// Candle upsert: re-ingesting the same key overwrites OHLCV.
	candles := []models.Candle{
		{Symbol: models.Symbol, Timeframe: "15m", Timestamp: base, Open: 2000, High: 2005, Low: 1998, Close: 2003, Volume: 10},
		{Symbol: models.Symbol, Timeframe: "15m", Timestamp: base.Add(15 * time.Minute), Open: 2003, High: 2008, Low: 2001, Close: 2007, Volume: 12},
	}
	n, err := s.UpsertCandles(ctx, candles)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	dup := candles[0]
	dup.Close = 2004
	_, err = s.UpsertCandles(ctx, []models.Candle{dup})
	require.NoError(t, err)

	got, err := s.GetCandleRange(ctx, models.Symbol, "15m", base, base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 2004.0, got[0].Close)
	assert.True(t, got[0].Timestamp.Before(got[1].Timestamp))

	latest, err := s.LatestCandles(ctx, models.Symbol, "15m", 1)
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, 2007.0, latest[0].Close)

	// Ledger trade lifecycle.
	sessionID := uuid.New().String()
	trade := &models.Trade{
		ID:        uuid.New().String(),
		UserID:    "user-1",
		AccountID: "acct-1",
		SessionID: &sessionID,
		Ticket:    "SIM-0001",
		Symbol:    models.Symbol,
		Side:      models.SideBuy,
		LotSize:   0.01,
		OpenPrice: 2000,
		StopLoss:  1995,
		Status:    models.TradeStatusOpen,
		OpenedAt:  base,
	}
	require.NoError(t, s.InsertTrade(ctx, trade))

	count, err := s.CountOpenSessionTrades(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	byTicket, err := s.GetTradeByTicket(ctx, "SIM-0001")
	require.NoError(t, err)
	assert.Equal(t, trade.ID, byTicket.ID)
	_, err = s.GetTradeByTicket(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	open, err := s.ListOpenTrades(ctx, "acct-1")
	require.NoError(t, err)
	require.Len(t, open, 1)
	// Open rows carry no close fields.
	assert.Nil(t, open[0].ClosePrice)
	assert.Nil(t, open[0].ProfitLoss)
	assert.Nil(t, open[0].ClosedAt)

	require.NoError(t, trade.Close(2010, trade.ProfitFor(2010), base.Add(time.Hour)))
	require.NoError(t, s.UpdateTrade(ctx, trade))

	closed, err := s.GetTradeByID(ctx, trade.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TradeStatusClosed, closed.Status)
	require.NotNil(t, closed.ClosePrice)
	require.NotNil(t, closed.ProfitLoss)
	require.NotNil(t, closed.ClosedAt)
	assert.InDelta(t, 10.0, *closed.ProfitLoss, 1e-9) // (2010-2000)*0.01*100

	count, err = s.CountOpenSessionTrades(ctx, sessionID)
	require.NoError(t, err)
	assert.Zero(t, count)

	// Sessions.
	session := &models.BotSession{
		ID:           sessionID,
		UserID:       "user-1",
		AccountID:    "acct-1",
		RiskLevel:    models.RiskMedium,
		StrategyMode: models.ModeAdaptive,
		Status:       models.SessionActive,
		StartedAt:    base,
	}
	require.NoError(t, s.InsertSession(ctx, session))

	active, err := s.ListActiveSessions(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)

	session.Status = models.SessionStopped
	stopped := base.Add(2 * time.Hour)
	session.StoppedAt = &stopped
	require.NoError(t, s.UpdateSession(ctx, session))

	active, err = s.ListActiveSessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	// Backtest report with children, then compensating delete.
	report := &models.BacktestReport{
		ID:        uuid.New().String(),
		Symbol:    models.Symbol,
		Timeframe: "15m",
		StartDate: base,
		EndDate:   base.Add(24 * time.Hour),
		CreatedAt: base,
	}
	require.NoError(t, s.InsertBacktestReport(ctx, report))
	require.NoError(t, s.InsertSimulatedTrades(ctx, []models.SimulatedTrade{{
		ID:          uuid.New().String(),
		ReportID:    report.ID,
		Symbol:      models.Symbol,
		Side:        models.SideBuy,
		LotSize:     0.01,
		OpenPrice:   2000,
		StopLoss:    1995,
		ClosePrice:  1995,
		ProfitLoss:  -5,
		CloseReason: models.CloseReasonSL,
		OpenedAt:    base,
		ClosedAt:    base.Add(time.Hour),
	}}))

	fetched, err := s.GetBacktestReport(ctx, report.ID)
	require.NoError(t, err)
	require.Len(t, fetched.Trades, 1)
	assert.Equal(t, models.CloseReasonSL, fetched.Trades[0].CloseReason)

	list, err := s.ListBacktestReports(ctx, "")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, s.DeleteBacktestReport(ctx, report.ID))
	_, err = s.GetBacktestReport(ctx, report.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	// Notifications and accounts.
	require.NoError(t, s.InsertNotification(ctx, &models.Notification{
		UserID: "user-1", Kind: models.NotifyBotTradeExecuted, Title: "t", Body: "b",
	}))

	account := &models.TradingAccount{
		ID: "acct-1", UserID: "user-1", Platform: "MT5",
		AccountNumber: "12345", Balance: 10000, Equity: 10000, Currency: "USD",
	}
	require.NoError(t, s.UpsertTradingAccount(ctx, account))
	account.Balance = 10500
	require.NoError(t, s.UpsertTradingAccount(ctx, account))

	fetchedAcct, err := s.GetTradingAccount(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, 10500.0, fetchedAcct.Balance)

	overview, err := s.ListUsersOverview(ctx)
	require.NoError(t, err)
	require.Len(t, overview, 1)
	assert.Equal(t, "user-1", overview[0].UserID)
	assert.Equal(t, int64(1), overview[0].TotalTrades)
	assert.Zero(t, overview[0].OpenTrades)

	_, err = s.GetTradeByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetSession(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
