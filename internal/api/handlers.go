package api

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/BekiCrypto/TekWealth-XAUUSD-Bot/internal/backtest"
	"github.com/BekiCrypto/TekWealth-XAUUSD-Bot/internal/models"
	"github.com/BekiCrypto/TekWealth-XAUUSD-Bot/internal/provider"
	"github.com/BekiCrypto/TekWealth-XAUUSD-Bot/internal/strategy"
)

// registerActions binds every action name to its handler. The action set is
// the engine's public contract; adding an action means adding a row here.
func (s *Server) registerActions() {
	s.actions = map[string]actionHandler{
		"execute_trade":                  s.handleExecuteTrade,
		"close_trade":                    s.handleCloseTrade,
		"update_prices":                  s.handleUpdatePrices,
		"run_bot_logic":                  s.handleRunBotLogic,
		"get_current_price_action":       s.handleGetCurrentPrice,
		"fetch_historical_data_action":   s.handleFetchHistorical,
		"run_backtest_action":            s.handleRunBacktest,
		"get_backtest_report_action":     s.handleGetBacktestReport,
		"list_backtests_action":          s.handleListBacktests,
		"provider_close_order":           s.handleCloseTrade,
		"provider_get_account_summary":   s.handleAccountSummary,
		"provider_list_open_positions":   s.handleOpenPositions,
		"provider_get_server_time":       s.handleServerTime,
		"upsert_trading_account_action":  s.handleUpsertAccount,
		"admin_get_env_variables_status": s.handleEnvStatus,
		"admin_list_users_overview":      s.handleUsersOverview,
	}
}

// decode unmarshals the action data, turning malformed payloads into 400s.
func decode(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return badRequest("invalid data: %v", err)
	}
	return nil
}

// parseDate accepts RFC 3339 timestamps or plain dates.
func parseDate(field, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, badRequest("%s is required", field)
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, badRequest("%s: unrecognized date %q", field, value)
	}
	return t.UTC(), nil
}

func (s *Server) handleExecuteTrade(ctx context.Context, data json.RawMessage) (interface{}, error) {
	var in struct {
		UserID     string      `json:"user_id"`
		AccountID  string      `json:"account_id"`
		SessionID  *string     `json:"session_id"`
		Symbol     string      `json:"symbol"`
		Side       models.Side `json:"side"`
		LotSize    float64     `json:"lot_size"`
		OpenPrice  float64     `json:"open_price"`
		StopLoss   float64     `json:"stop_loss"`
		TakeProfit *float64    `json:"take_profit"`
	}
	if err := decode(data, &in); err != nil {
		return nil, err
	}
	if !in.Side.Valid() {
		return nil, badRequest("side must be BUY or SELL")
	}
	if in.LotSize <= 0 {
		return nil, badRequest("lot_size must be positive")
	}
	if in.Symbol == "" {
		in.Symbol = models.Symbol
	}

	return s.exec.ExecuteOrder(ctx, provider.OrderRequest{
		UserID:     in.UserID,
		AccountID:  in.AccountID,
		SessionID:  in.SessionID,
		Symbol:     in.Symbol,
		Side:       in.Side,
		LotSize:    in.LotSize,
		OpenPrice:  in.OpenPrice,
		StopLoss:   in.StopLoss,
		TakeProfit: in.TakeProfit,
	})
}

func (s *Server) handleCloseTrade(ctx context.Context, data json.RawMessage) (interface{}, error) {
	var in provider.CloseRequest
	if err := decode(data, &in); err != nil {
		return nil, err
	}
	if in.TradeID == "" && in.Ticket == "" {
		return nil, badRequest("trade_id or ticket is required")
	}
	return s.exec.CloseOrder(ctx, in)
}

func (s *Server) handleUpdatePrices(ctx context.Context, data json.RawMessage) (interface{}, error) {
	var in struct {
		Interval   string `json:"interval"`
		Outputsize string `json:"outputsize"`
	}
	if err := decode(data, &in); err != nil {
		return nil, err
	}
	if in.Interval == "" {
		in.Interval = "15m"
	}

	candles, err := s.market.GetHistorical(ctx, in.Interval, in.Outputsize)
	if err != nil {
		return nil, err
	}
	stored, err := s.store.UpsertCandles(ctx, candles)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"interval": in.Interval,
		"fetched":  len(candles),
		"stored":   stored,
	}, nil
}

func (s *Server) handleRunBotLogic(ctx context.Context, _ json.RawMessage) (interface{}, error) {
	return s.runner.RunCycle(ctx)
}

func (s *Server) handleGetCurrentPrice(ctx context.Context, _ json.RawMessage) (interface{}, error) {
	price, err := s.market.GetSpotPrice(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"symbol": models.Symbol,
		"price":  price,
	}, nil
}

func (s *Server) handleFetchHistorical(ctx context.Context, data json.RawMessage) (interface{}, error) {
	var in struct {
		Interval   string `json:"interval"`
		Outputsize string `json:"outputsize"`
	}
	if err := decode(data, &in); err != nil {
		return nil, err
	}
	if in.Interval == "" {
		in.Interval = "15m"
	}

	candles, err := s.market.GetHistorical(ctx, in.Interval, in.Outputsize)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"interval": in.Interval,
		"count":    len(candles),
		"candles":  candles,
	}, nil
}

func (s *Server) handleRunBacktest(ctx context.Context, data json.RawMessage) (interface{}, error) {
	var in struct {
		UserID         *string          `json:"user_id"`
		Symbol         string           `json:"symbol"`
		Timeframe      string           `json:"timeframe"`
		StartDate      string           `json:"start_date"`
		EndDate        string           `json:"end_date"`
		StrategyMode   string           `json:"strategy_mode"`
		StrategyParams json.RawMessage  `json:"strategy_params"`
		RiskLevel      models.RiskLevel `json:"risk_level"`
	}
	if err := decode(data, &in); err != nil {
		return nil, err
	}

	start, err := parseDate("start_date", in.StartDate)
	if err != nil {
		return nil, err
	}
	end, err := parseDate("end_date", in.EndDate)
	if err != nil {
		return nil, err
	}
	if end.Before(start) {
		return nil, badRequest("end_date is before start_date")
	}

	mode := models.StrategyMode(in.StrategyMode)
	if in.StrategyMode == "" {
		mode = models.ModeAdaptive
	}
	if !mode.Valid() {
		return nil, badRequest("unknown strategy_mode %q", in.StrategyMode)
	}

	params, err := strategy.ParseParams(string(in.StrategyParams))
	if err != nil {
		return nil, badRequest("invalid strategy_params: %v", err)
	}

	if in.Symbol == "" {
		in.Symbol = models.Symbol
	}
	if in.Timeframe == "" {
		in.Timeframe = "15m"
	}

	return s.backtester.Run(ctx, backtest.Request{
		UserID:       in.UserID,
		Symbol:       in.Symbol,
		Timeframe:    in.Timeframe,
		StartDate:    start,
		EndDate:      end,
		StrategyMode: mode,
		Params:       params,
		Risk:         models.ResolveRisk(in.RiskLevel),
	})
}

func (s *Server) handleGetBacktestReport(ctx context.Context, data json.RawMessage) (interface{}, error) {
	var in struct {
		ReportID string `json:"report_id"`
	}
	if err := decode(data, &in); err != nil {
		return nil, err
	}
	if in.ReportID == "" {
		return nil, badRequest("report_id is required")
	}
	return s.store.GetBacktestReport(ctx, in.ReportID)
}

func (s *Server) handleListBacktests(ctx context.Context, data json.RawMessage) (interface{}, error) {
	var in struct {
		UserID string `json:"user_id"`
	}
	if err := decode(data, &in); err != nil {
		return nil, err
	}
	return s.store.ListBacktestReports(ctx, in.UserID)
}

func (s *Server) handleAccountSummary(ctx context.Context, data json.RawMessage) (interface{}, error) {
	var in struct {
		UserID    string `json:"user_id"`
		AccountID string `json:"account_id"`
	}
	if err := decode(data, &in); err != nil {
		return nil, err
	}
	return s.exec.GetAccountSummary(ctx, in.UserID, in.AccountID)
}

func (s *Server) handleOpenPositions(ctx context.Context, data json.RawMessage) (interface{}, error) {
	var in struct {
		AccountID string `json:"account_id"`
	}
	if err := decode(data, &in); err != nil {
		return nil, err
	}
	positions, err := s.exec.GetOpenPositions(ctx, in.AccountID)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"positions": positions}, nil
}

func (s *Server) handleServerTime(ctx context.Context, _ json.RawMessage) (interface{}, error) {
	t, err := s.exec.GetServerTime(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"server_time": t}, nil
}

func (s *Server) handleUpsertAccount(ctx context.Context, data json.RawMessage) (interface{}, error) {
	var in models.TradingAccount
	if err := decode(data, &in); err != nil {
		return nil, err
	}
	if in.UserID == "" {
		return nil, badRequest("user_id is required")
	}
	if in.AccountNumber == "" {
		return nil, badRequest("account_number is required")
	}
	if in.ID == "" {
		in.ID = uuid.New().String()
	}
	if in.Currency == "" {
		in.Currency = "USD"
	}

	if err := s.store.UpsertTradingAccount(ctx, &in); err != nil {
		return nil, err
	}
	return &in, nil
}

func (s *Server) handleEnvStatus(_ context.Context, _ json.RawMessage) (interface{}, error) {
	return s.cfg.SettingStatus(), nil
}

func (s *Server) handleUsersOverview(ctx context.Context, _ json.RawMessage) (interface{}, error) {
	return s.store.ListUsersOverview(ctx)
}
