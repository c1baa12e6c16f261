package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/BekiCrypto/TekWealth-XAUUSD-Bot/internal/models"
	"github.com/BekiCrypto/TekWealth-XAUUSD-Bot/internal/storage"
)

// apiKeyHeader authenticates engine calls against the bridge.
const apiKeyHeader = "X-MT-Bridge-API-Key"

// magicNumber tags bridge orders as engine-originated on the MetaTrader side.
const magicNumber = 770021

// Bridge executes orders through a self-hosted MetaTrader HTTP bridge and
// mirrors every fill into the trade ledger.
type Bridge struct {
	client  *http.Client
	baseURL string
	apiKey  string
	store   storage.Interface
	quotes  SpotQuoter
	logger  *logrus.Logger
	now     func() time.Time
}

var _ Provider = (*Bridge)(nil)

// NewBridge creates a MetaTrader bridge provider. quotes supplies the mark
// price when the bridge acknowledges a close without reporting a fill.
func NewBridge(baseURL, apiKey string, timeout time.Duration, store storage.Interface, quotes SpotQuoter, logger *logrus.Logger) *Bridge {
	return &Bridge{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		store:   store,
		quotes:  quotes,
		logger:  logger,
		now:     time.Now,
	}
}

// ticket accepts both numeric and string tickets; bridges disagree on the
// wire type, the ledger always stores a string.
type ticket string

func (t *ticket) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) >= 2 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = ticket(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*t = ticket(n.String())
	return nil
}

// bridgeStatus is embedded in every response shape. Success defaults to true
// so endpoints that answer with bare fields (or an empty 202/204 body) are
// not mistaken for failures; an explicit {"success": false} still rejects.
type bridgeStatus struct {
	Success *bool  `json:"success"`
	Error   string `json:"error"`
}

func (s bridgeStatus) failed() bool {
	return (s.Success != nil && !*s.Success) || s.Error != ""
}

type bridgeExecuteResponse struct {
	bridgeStatus
	Ticket ticket  `json:"ticket"`
	Price  float64 `json:"price"`
}

type bridgeCloseResponse struct {
	bridgeStatus
	ClosePrice float64 `json:"closePrice"`
	Profit     float64 `json:"profit"`
}

type bridgeSummaryResponse struct {
	bridgeStatus
	Balance    float64 `json:"balance"`
	Equity     float64 `json:"equity"`
	Margin     float64 `json:"margin"`
	FreeMargin float64 `json:"freeMargin"`
	Currency   string  `json:"currency"`
}

type bridgePositionsResponse struct {
	bridgeStatus
	Positions []struct {
		Ticket    ticket      `json:"ticket"`
		Symbol    string      `json:"symbol"`
		Type      models.Side `json:"type"`
		Lots      float64     `json:"lots"`
		OpenPrice float64     `json:"openPrice"`
		Price     float64     `json:"currentPrice"`
		Profit    float64     `json:"profit"`
		OpenTime  time.Time   `json:"openTime"`
	} `json:"positions"`
}

type bridgeTimeResponse struct {
	bridgeStatus
	ServerTime time.Time `json:"serverTime"`
}

// ExecuteOrder posts the order to the bridge and, on success, records the
// fill as an open ledger row carrying the broker ticket.
func (b *Bridge) ExecuteOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	if !req.Side.Valid() {
		return nil, fmt.Errorf("invalid order side %q", req.Side)
	}
	if req.LotSize <= 0 {
		return nil, fmt.Errorf("invalid lot size %v", req.LotSize)
	}

	comment := "engine"
	if req.SessionID != nil {
		comment = "session:" + *req.SessionID
	}
	payload := map[string]interface{}{
		"symbol":        req.Symbol,
		"type":          req.Side,
		"lots":          req.LotSize,
		"price":         req.OpenPrice,
		"stopLossPrice": req.StopLoss,
		"magicNumber":   magicNumber,
		"comment":       comment,
	}
	if req.TakeProfit != nil {
		payload["takeProfitPrice"] = *req.TakeProfit
	}

	var resp bridgeExecuteResponse
	if err := b.call(ctx, http.MethodPost, "/order/execute", payload, &resp); err != nil {
		return nil, err
	}
	if resp.failed() {
		return nil, fmt.Errorf("bridge /order/execute rejected order: %s", resp.Error)
	}
	if resp.Ticket == "" {
		return nil, fmt.Errorf("bridge /order/execute returned no ticket")
	}

	openPrice := resp.Price
	if openPrice == 0 {
		openPrice = req.OpenPrice
	}

	now := b.now().UTC()
	trade := &models.Trade{
		ID:         uuid.New().String(),
		UserID:     req.UserID,
		AccountID:  req.AccountID,
		SessionID:  req.SessionID,
		Ticket:     string(resp.Ticket),
		Symbol:     req.Symbol,
		Side:       req.Side,
		LotSize:    req.LotSize,
		OpenPrice:  openPrice,
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
		Status:     models.TradeStatusOpen,
		OpenedAt:   now,
	}
	if err := b.store.InsertTrade(ctx, trade); err != nil {
		return nil, fmt.Errorf("recording bridge trade %s: %w", trade.Ticket, err)
	}

	b.logger.WithFields(logrus.Fields{
		"ticket": trade.Ticket,
		"side":   trade.Side,
		"lot":    trade.LotSize,
		"price":  trade.OpenPrice,
	}).Info("bridge order filled")

	return &OrderResult{
		TradeID:   trade.ID,
		Ticket:    trade.Ticket,
		OpenPrice: trade.OpenPrice,
		OpenedAt:  now,
	}, nil
}

// CloseOrder closes the broker position by ticket and freezes the ledger row
// with the fill the bridge reports.
func (b *Bridge) CloseOrder(ctx context.Context, req CloseRequest) (*CloseResult, error) {
	trade, err := lookupTrade(ctx, b.store, req)
	if err != nil {
		return nil, err
	}
	if !trade.IsOpen() {
		return nil, fmt.Errorf("trade %s is not open", trade.ID)
	}

	payload := map[string]interface{}{"ticket": trade.Ticket}
	if req.Lots > 0 {
		payload["lots"] = req.Lots
	}
	var resp bridgeCloseResponse
	if err := b.call(ctx, http.MethodPost, "/order/close", payload, &resp); err != nil {
		return nil, err
	}
	if resp.failed() {
		return nil, fmt.Errorf("bridge /order/close rejected ticket %s: %s", trade.Ticket, resp.Error)
	}

	// Acknowledgement-only responses (202/204 empty body) carry no fill
	// price. Mark the close at spot rather than freezing zeros into the
	// ledger; if the quote is also unavailable the row stays open.
	closePrice := resp.ClosePrice
	if closePrice == 0 {
		spot, spotErr := b.quotes.GetSpotPrice(ctx)
		if spotErr != nil {
			return nil, fmt.Errorf("bridge /order/close acknowledged ticket %s without a fill price and spot is unavailable: %w", trade.Ticket, spotErr)
		}
		b.logger.WithFields(logrus.Fields{
			"ticket": trade.Ticket,
			"spot":   spot,
		}).Warn("bridge close reported no fill price, marking at spot")
		closePrice = spot
	}

	now := b.now().UTC()
	profit := resp.Profit
	if profit == 0 {
		profit = trade.ProfitFor(closePrice)
	}
	if err := trade.Close(closePrice, profit, now); err != nil {
		return nil, err
	}
	if err := b.store.UpdateTrade(ctx, trade); err != nil {
		return nil, fmt.Errorf("recording bridge close %s: %w", trade.Ticket, err)
	}

	return &CloseResult{
		TradeID:    trade.ID,
		Ticket:     trade.Ticket,
		ClosePrice: closePrice,
		ProfitLoss: profit,
		ClosedAt:   now,
	}, nil
}

// GetAccountSummary reads the live account snapshot from the bridge.
func (b *Bridge) GetAccountSummary(ctx context.Context, _, _ string) (*AccountSummary, error) {
	var resp bridgeSummaryResponse
	if err := b.call(ctx, http.MethodGet, "/account/summary", nil, &resp); err != nil {
		return nil, err
	}
	if resp.failed() {
		return nil, fmt.Errorf("bridge /account/summary failed: %s", resp.Error)
	}
	return &AccountSummary{
		Provider:   "METATRADER",
		Balance:    resp.Balance,
		Equity:     resp.Equity,
		Margin:     resp.Margin,
		FreeMargin: resp.FreeMargin,
		Currency:   resp.Currency,
	}, nil
}

// GetOpenPositions lists the live broker positions.
func (b *Bridge) GetOpenPositions(ctx context.Context, _ string) ([]OpenPosition, error) {
	var resp bridgePositionsResponse
	if err := b.call(ctx, http.MethodGet, "/positions/open", nil, &resp); err != nil {
		return nil, err
	}
	if resp.failed() {
		return nil, fmt.Errorf("bridge /positions/open failed: %s", resp.Error)
	}

	positions := make([]OpenPosition, 0, len(resp.Positions))
	for _, p := range resp.Positions {
		positions = append(positions, OpenPosition{
			Ticket:       string(p.Ticket),
			Symbol:       p.Symbol,
			Side:         p.Type,
			LotSize:      p.Lots,
			OpenPrice:    p.OpenPrice,
			CurrentPrice: p.Price,
			ProfitLoss:   p.Profit,
			OpenedAt:     p.OpenTime,
		})
	}
	return positions, nil
}

// GetServerTime reads the broker server clock.
func (b *Bridge) GetServerTime(ctx context.Context) (time.Time, error) {
	var resp bridgeTimeResponse
	if err := b.call(ctx, http.MethodGet, "/server/time", nil, &resp); err != nil {
		return time.Time{}, err
	}
	if resp.failed() {
		return time.Time{}, fmt.Errorf("bridge /server/time failed: %s", resp.Error)
	}
	return resp.ServerTime, nil
}

// call performs one authenticated bridge request and decodes the response.
// A 2xx with an empty body (202/204 acknowledgements) leaves out untouched.
// Errors name the endpoint so the circuit breaker logs stay readable.
func (b *Bridge) call(ctx context.Context, method, path string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("bridge %s: encoding request: %w", path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("bridge %s: building request: %w", path, err)
	}
	req.Header.Set(apiKeyHeader, b.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("bridge %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("bridge %s: reading response: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("bridge %s returned %d: %s", path, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("bridge %s: decoding response: %w", path, err)
	}
	return nil
}
