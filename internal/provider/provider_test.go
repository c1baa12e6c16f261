package provider

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BekiCrypto/TekWealth-XAUUSD-Bot/internal/config"
	"github.com/BekiCrypto/TekWealth-XAUUSD-Bot/internal/models"
	"github.com/BekiCrypto/TekWealth-XAUUSD-Bot/internal/storage"
)

type spotStub struct {
	price float64
	err   error
}

func (s *spotStub) GetSpotPrice(context.Context) (float64, error) {
	return s.price, s.err
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestSimulated_ExecuteAndClose(t *testing.T) {
	store := storage.NewMockStorage()
	spot := &spotStub{price: 2000}
	sim := NewSimulated(store, spot, testLogger())

	sessionID := "session-1"
	result, err := sim.ExecuteOrder(context.Background(), OrderRequest{
		UserID:    "user-1",
		AccountID: "acct-1",
		SessionID: &sessionID,
		Symbol:    models.Symbol,
		Side:      models.SideBuy,
		LotSize:   0.01,
		StopLoss:  1995,
	})
	require.NoError(t, err)
	assert.Contains(t, result.Ticket, "SIM-")
	assert.Equal(t, 2000.0, result.OpenPrice)

	trade, err := store.GetTradeByID(context.Background(), result.TradeID)
	require.NoError(t, err)
	assert.True(t, trade.IsOpen())
	assert.Nil(t, trade.ClosePrice)

	// Price moves up $10: a 0.01-lot BUY gains $10.
	spot.price = 2010
	closed, err := sim.CloseOrder(context.Background(), CloseRequest{TradeID: result.TradeID})
	require.NoError(t, err)
	assert.Equal(t, 2010.0, closed.ClosePrice)
	assert.InDelta(t, 10.0, closed.ProfitLoss, 1e-9)

	trade, err = store.GetTradeByID(context.Background(), result.TradeID)
	require.NoError(t, err)
	assert.False(t, trade.IsOpen())

	// A closed trade cannot be closed again.
	_, err = sim.CloseOrder(context.Background(), CloseRequest{TradeID: result.TradeID})
	assert.Error(t, err)
}

func TestSimulated_SellProfitSign(t *testing.T) {
	store := storage.NewMockStorage()
	spot := &spotStub{price: 2000}
	sim := NewSimulated(store, spot, testLogger())

	result, err := sim.ExecuteOrder(context.Background(), OrderRequest{
		UserID: "user-1", AccountID: "acct-1",
		Symbol: models.Symbol, Side: models.SideSell, LotSize: 0.05, StopLoss: 2030,
	})
	require.NoError(t, err)

	// Price rises against the short: 0.05 lot loses $50 on a $10 move.
	spot.price = 2010
	closed, err := sim.CloseOrder(context.Background(), CloseRequest{TradeID: result.TradeID})
	require.NoError(t, err)
	assert.InDelta(t, -50.0, closed.ProfitLoss, 1e-9)
}

func TestSimulated_ExecuteFailsWithoutSpot(t *testing.T) {
	sim := NewSimulated(storage.NewMockStorage(), &spotStub{err: errors.New("upstream down")}, testLogger())

	_, err := sim.ExecuteOrder(context.Background(), OrderRequest{
		Symbol: models.Symbol, Side: models.SideBuy, LotSize: 0.01,
	})
	assert.Error(t, err)
}

func TestSimulated_DefaultAccountSummary(t *testing.T) {
	store := storage.NewMockStorage()
	sim := NewSimulated(store, &spotStub{price: 2000}, testLogger())

	summary, err := sim.GetAccountSummary(context.Background(), "user-1", "unregistered")
	require.NoError(t, err)
	assert.Equal(t, 10000.0, summary.Balance)
	assert.Equal(t, "USD", summary.Currency)

	require.NoError(t, store.UpsertTradingAccount(context.Background(), &models.TradingAccount{
		ID: "acct-1", UserID: "user-1", Balance: 2500, Equity: 2400, Currency: "EUR",
	}))
	summary, err = sim.GetAccountSummary(context.Background(), "user-1", "acct-1")
	require.NoError(t, err)
	assert.Equal(t, 2500.0, summary.Balance)
	assert.Equal(t, "EUR", summary.Currency)
}

func TestSimulated_OpenPositionsMarkedAtSpot(t *testing.T) {
	store := storage.NewMockStorage()
	spot := &spotStub{price: 2000}
	sim := NewSimulated(store, spot, testLogger())

	_, err := sim.ExecuteOrder(context.Background(), OrderRequest{
		UserID: "user-1", AccountID: "acct-1",
		Symbol: models.Symbol, Side: models.SideBuy, LotSize: 0.01, StopLoss: 1995,
	})
	require.NoError(t, err)

	spot.price = 2004
	positions, err := sim.GetOpenPositions(context.Background(), "acct-1")
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, 2004.0, positions[0].CurrentPrice)
	assert.InDelta(t, 4.0, positions[0].ProfitLoss, 1e-9)
}

func TestNew_FallsBackWhenBridgeUnconfigured(t *testing.T) {
	cfg := &config.Config{}
	cfg.Provider.Type = config.ProviderMetaTrader // no URL or key

	p := New(cfg, storage.NewMockStorage(), &spotStub{price: 2000}, testLogger())
	_, ok := p.(*Simulated)
	assert.True(t, ok, "unconfigured bridge must fall back to the simulator")
}

func TestNew_SelectsBridgeWhenConfigured(t *testing.T) {
	cfg := &config.Config{}
	cfg.Provider.Type = config.ProviderMetaTrader
	cfg.Provider.BridgeURL = "http://bridge.local"
	cfg.Provider.BridgeAPIKey = "secret"

	p := New(cfg, storage.NewMockStorage(), &spotStub{price: 2000}, testLogger())
	_, ok := p.(*CircuitBreakerProvider)
	assert.True(t, ok, "configured bridge is wrapped in the circuit breaker")
}

func TestCircuitBreaker_TripsOpenAfterFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	bridge := NewBridge(srv.URL, "secret", time.Second, storage.NewMockStorage(), &spotStub{price: 2000}, testLogger())
	wrapped := NewCircuitBreakerProviderWithSettings(bridge, testLogger(), CircuitBreakerSettings{
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      time.Minute,
		MinRequests:  2,
		FailureRatio: 0.5,
	})

	for i := 0; i < 3; i++ {
		_, err := wrapped.GetServerTime(context.Background())
		require.Error(t, err)
	}

	_, err := wrapped.GetServerTime(context.Background())
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
}
