package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BekiCrypto/TekWealth-XAUUSD-Bot/internal/backtest"
	"github.com/BekiCrypto/TekWealth-XAUUSD-Bot/internal/bot"
	"github.com/BekiCrypto/TekWealth-XAUUSD-Bot/internal/config"
	"github.com/BekiCrypto/TekWealth-XAUUSD-Bot/internal/marketdata"
	"github.com/BekiCrypto/TekWealth-XAUUSD-Bot/internal/models"
	"github.com/BekiCrypto/TekWealth-XAUUSD-Bot/internal/provider"
	"github.com/BekiCrypto/TekWealth-XAUUSD-Bot/internal/storage"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// marketStub scripts both market-data operations.
type marketStub struct {
	price    float64
	priceErr error
	candles  []models.Candle
	histErr  error
}

func (m *marketStub) GetSpotPrice(context.Context) (float64, error) {
	return m.price, m.priceErr
}

func (m *marketStub) GetHistorical(context.Context, string, string) ([]models.Candle, error) {
	return m.candles, m.histErr
}

type fixture struct {
	server *Server
	store  *storage.MockStorage
	market *marketStub
}

func newFixture(t *testing.T, authToken string) *fixture {
	t.Helper()
	cfg := &config.Config{}
	cfg.Server.AuthToken = authToken
	cfg.Store.DSN = ":memory:"
	cfg.MarketData.APIKey = "key"

	store := storage.NewMockStorage()
	market := &marketStub{price: 2000}
	exec := provider.NewSimulated(store, market, testLogger())
	runner := bot.NewRunner(store, market, exec, nil, testLogger())
	backtester := backtest.New(store, nil, testLogger())

	return &fixture{
		server: NewServer(cfg, store, market, exec, runner, backtester, testLogger()),
		store:  store,
		market: market,
	}
}

func (f *fixture) post(t *testing.T, action string, data interface{}, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	body := map[string]interface{}{"action": action}
	if data != nil {
		body["data"] = data
	}
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/engine", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestUnknownActionRejected(t *testing.T) {
	f := newFixture(t, "")
	rec := f.post(t, "no_such_action", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Contains(t, env.Error, "no_such_action")
}

func TestPreflightAnsweredWithoutDispatch(t *testing.T) {
	f := newFixture(t, "")
	req := httptest.NewRequest(http.MethodOptions, "/api/engine", nil)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestAuthTokenEnforced(t *testing.T) {
	f := newFixture(t, "secret")

	rec := f.post(t, "get_current_price_action", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.post(t, "get_current_price_action", nil, "X-Auth-Token", "secret")
	assert.Equal(t, http.StatusOK, rec.Code)

	// Health stays open.
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	healthRec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(healthRec, req)
	assert.Equal(t, http.StatusOK, healthRec.Code)
}

func TestGetCurrentPrice(t *testing.T) {
	f := newFixture(t, "")
	f.market.price = 2345.67

	rec := f.post(t, "get_current_price_action", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.True(t, env.OK)

	data := env.Data.(map[string]interface{})
	assert.Equal(t, models.Symbol, data["symbol"])
	assert.Equal(t, 2345.67, data["price"])
}

func TestGetCurrentPriceRateLimited(t *testing.T) {
	f := newFixture(t, "")
	f.market.priceErr = marketdata.ErrRateLimited

	rec := f.post(t, "get_current_price_action", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestExecuteTradeValidation(t *testing.T) {
	f := newFixture(t, "")

	rec := f.post(t, "execute_trade", map[string]interface{}{"side": "HOLD", "lot_size": 0.01})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.post(t, "execute_trade", map[string]interface{}{"side": "BUY", "lot_size": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExecuteAndCloseTradeRoundtrip(t *testing.T) {
	f := newFixture(t, "")
	f.market.price = 2000

	rec := f.post(t, "execute_trade", map[string]interface{}{
		"user_id":    "user-1",
		"account_id": "acct-1",
		"side":       "BUY",
		"lot_size":   0.01,
		"stop_loss":  1990,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	tradeID := env.Data.(map[string]interface{})["trade_id"].(string)

	f.market.price = 2010
	rec = f.post(t, "close_trade", map[string]interface{}{"trade_id": tradeID})
	require.Equal(t, http.StatusOK, rec.Code)
	env = decodeEnvelope(t, rec)
	assert.InDelta(t, 10.0, env.Data.(map[string]interface{})["profit_loss"].(float64), 1e-9)
}

func TestCloseTradeRequiresIdentifier(t *testing.T) {
	f := newFixture(t, "")
	rec := f.post(t, "provider_close_order", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdatePricesStoresCandles(t *testing.T) {
	f := newFixture(t, "")
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	f.market.candles = []models.Candle{
		{Symbol: models.Symbol, Timeframe: "15m", Timestamp: base, Open: 2000, High: 2001, Low: 1999, Close: 2000},
		{Symbol: models.Symbol, Timeframe: "15m", Timestamp: base.Add(15 * time.Minute), Open: 2000, High: 2002, Low: 2000, Close: 2001},
	}

	rec := f.post(t, "update_prices", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	data := env.Data.(map[string]interface{})
	assert.Equal(t, float64(2), data["stored"])

	stored, err := f.store.GetCandleRange(context.Background(), models.Symbol, "15m", base, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestRunBotLogicEmptyCycle(t *testing.T) {
	f := newFixture(t, "")
	rec := f.post(t, "run_bot_logic", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, float64(0), env.Data.(map[string]interface{})["sessions"])
}

func TestRunBacktestValidation(t *testing.T) {
	f := newFixture(t, "")

	rec := f.post(t, "run_backtest_action", map[string]interface{}{"end_date": "2024-05-02"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.post(t, "run_backtest_action", map[string]interface{}{
		"start_date": "2024-05-02", "end_date": "2024-05-01",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.post(t, "run_backtest_action", map[string]interface{}{
		"start_date": "2024-05-01", "end_date": "2024-05-02", "strategy_mode": "YOLO",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRunBacktestInsufficientData(t *testing.T) {
	f := newFixture(t, "")
	rec := f.post(t, "run_backtest_action", map[string]interface{}{
		"start_date": "2024-05-01", "end_date": "2024-05-02",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Contains(t, env.Error, "not enough candles")
}

func TestGetBacktestReportNotFound(t *testing.T) {
	f := newFixture(t, "")
	rec := f.post(t, "get_backtest_report_action", map[string]interface{}{"report_id": "missing"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpsertTradingAccount(t *testing.T) {
	f := newFixture(t, "")

	rec := f.post(t, "upsert_trading_account_action", map[string]interface{}{
		"user_id":        "user-1",
		"platform":       "MT5",
		"account_number": "12345",
		"balance":        5000,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	id := env.Data.(map[string]interface{})["id"].(string)
	assert.NotEmpty(t, id)

	account, err := f.store.GetTradingAccount(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 5000.0, account.Balance)
	assert.Equal(t, "USD", account.Currency)

	rec = f.post(t, "upsert_trading_account_action", map[string]interface{}{"platform": "MT5"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProviderPassthroughActions(t *testing.T) {
	f := newFixture(t, "")

	rec := f.post(t, "provider_get_account_summary", map[string]interface{}{"account_id": "none"})
	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, 10000.0, env.Data.(map[string]interface{})["balance"])

	rec = f.post(t, "provider_list_open_positions", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.post(t, "provider_get_server_time", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	env = decodeEnvelope(t, rec)
	assert.NotEmpty(t, env.Data.(map[string]interface{})["server_time"])
}

func TestAdminActions(t *testing.T) {
	f := newFixture(t, "")

	rec := f.post(t, "admin_get_env_variables_status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	status := env.Data.(map[string]interface{})
	assert.Equal(t, true, status["MARKET_DATA_API_KEY"])
	assert.Equal(t, false, status["SENDGRID_API_KEY"])

	rec = f.post(t, "admin_list_users_overview", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestMalformedEnvelope(t *testing.T) {
	f := newFixture(t, "")
	req := httptest.NewRequest(http.MethodPost, "/api/engine", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec2 := f.post(t, "", nil)
	assert.Equal(t, http.StatusBadRequest, rec2.Code)
}

func TestActionTableCoversContract(t *testing.T) {
	f := newFixture(t, "")
	for _, action := range []string{
		"execute_trade", "close_trade", "update_prices", "run_bot_logic",
		"get_current_price_action", "fetch_historical_data_action",
		"run_backtest_action", "get_backtest_report_action", "list_backtests_action",
		"provider_close_order", "provider_get_account_summary",
		"provider_list_open_positions", "provider_get_server_time",
		"upsert_trading_account_action", "admin_get_env_variables_status",
		"admin_list_users_overview",
	} {
		assert.Contains(t, f.server.actions, action)
	}
}
