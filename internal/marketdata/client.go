// Package marketdata fetches XAUUSD spot quotes and historical OHLC series
// from the upstream market-data API, normalizes them into candles, and
// serves the spot price through the process-wide one-slot cache.
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/BekiCrypto/TekWealth-XAUUSD-Bot/internal/models"
	"github.com/BekiCrypto/TekWealth-XAUUSD-Bot/internal/retry"
)

const defaultBaseURL = "https://www.alphavantage.co"

// Output sizes accepted by GetHistorical.
const (
	OutputCompact = "compact"
	OutputFull    = "full"
)

// intervals maps the engine's timeframe names onto upstream parameters.
// Empty upstream interval means a non-intraday series function.
var intervals = map[string]struct {
	function string
	interval string
}{
	"1m":      {"FX_INTRADAY", "1min"},
	"5m":      {"FX_INTRADAY", "5min"},
	"15m":     {"FX_INTRADAY", "15min"},
	"30m":     {"FX_INTRADAY", "30min"},
	"60m":     {"FX_INTRADAY", "60min"},
	"daily":   {"FX_DAILY", ""},
	"weekly":  {"FX_WEEKLY", ""},
	"monthly": {"FX_MONTHLY", ""},
}

// rateLimitMarkers are matched as substrings against upstream payloads;
// the API reports throttling inside a 200 response.
var rateLimitMarkers = []string{
	"rate limit",
	"call frequency",
	"thank you for using",
	"premium",
}

// Interface is the market-data contract the engine depends on.
type Interface interface {
	GetSpotPrice(ctx context.Context) (float64, error)
	GetHistorical(ctx context.Context, interval, outputsize string) ([]models.Candle, error)
}

// Client talks to the upstream market-data API.
type Client struct {
	client   *http.Client
	apiKey   string
	baseURL  string
	cache    *SpotCache
	logger   *logrus.Logger
	retryCfg retry.Config
	sf       singleflight.Group
	now      func() time.Time
}

// Ensure Client implements Interface at compile time.
var _ Interface = (*Client)(nil)

// NewClient creates a market-data client. baseURL may be empty for the
// production endpoint; the cache handle is shared process-wide.
func NewClient(apiKey, baseURL string, timeout time.Duration, cache *SpotCache, logger *logrus.Logger) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		client:   &http.Client{Timeout: timeout},
		apiKey:   apiKey,
		baseURL:  strings.TrimRight(baseURL, "/"),
		cache:    cache,
		logger:   logger,
		retryCfg: retry.DefaultConfig,
		now:      time.Now,
	}
}

// WithClock overrides the clock, for cache-staleness tests.
func (c *Client) WithClock(now func() time.Time) *Client {
	c.now = now
	return c
}

// WithRetryConfig overrides the retry policy for historical fetches.
func (c *Client) WithRetryConfig(cfg retry.Config) *Client {
	c.retryCfg = cfg
	return c
}

// GetSpotPrice returns the current XAU/USD rate. A cache entry younger than
// five minutes is served without I/O; on upstream failure an entry younger
// than ten minutes is served with a warning. Concurrent refreshes collapse
// into a single upstream call.
func (c *Client) GetSpotPrice(ctx context.Context) (float64, error) {
	if price, ok := c.cache.Fresh(c.now()); ok {
		return price, nil
	}

	v, err, _ := c.sf.Do("spot", func() (interface{}, error) {
		// Re-check: another caller may have refreshed while we queued.
		if price, ok := c.cache.Fresh(c.now()); ok {
			return price, nil
		}

		price, err := c.fetchSpot(ctx)
		if err != nil {
			if stale, ok := c.cache.Stale(c.now()); ok {
				c.logger.WithError(err).Warn("spot fetch failed, serving stale cached price")
				return stale, nil
			}
			return nil, fmt.Errorf("%w (%v)", ErrNoCache, err)
		}

		c.cache.Put(price, c.now())
		return price, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(float64), nil
}

func (c *Client) fetchSpot(ctx context.Context) (float64, error) {
	q := url.Values{}
	q.Set("function", "CURRENCY_EXCHANGE_RATE")
	q.Set("from_currency", "XAU")
	q.Set("to_currency", "USD")
	q.Set("apikey", c.apiKey)

	body, err := c.get(ctx, q)
	if err != nil {
		return 0, err
	}

	var payload struct {
		Rate struct {
			ExchangeRate string `json:"5. Exchange Rate"`
		} `json:"Realtime Currency Exchange Rate"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return 0, fmt.Errorf("parsing spot response: %w", err)
	}
	if payload.Rate.ExchangeRate == "" {
		return 0, fmt.Errorf("parsing spot response: missing exchange rate")
	}

	price, err := strconv.ParseFloat(payload.Rate.ExchangeRate, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing spot rate %q: %w", payload.Rate.ExchangeRate, err)
	}
	return price, nil
}

// GetHistorical fetches an OHLC series for the given interval and output
// size and returns it ascending by timestamp. Intraday series that carry no
// volume get volume zero. Transient upstream failures are retried.
func (c *Client) GetHistorical(ctx context.Context, interval, outputsize string) ([]models.Candle, error) {
	mapping, ok := intervals[interval]
	if !ok {
		return nil, fmt.Errorf("unsupported interval %q", interval)
	}
	if outputsize == "" {
		outputsize = OutputCompact
	}
	if outputsize != OutputCompact && outputsize != OutputFull {
		return nil, fmt.Errorf("unsupported outputsize %q", outputsize)
	}

	return retry.Do(ctx, c.retryCfg, c.logger, "historical fetch",
		func(ctx context.Context) ([]models.Candle, error) {
			return c.fetchHistorical(ctx, interval, mapping.function, mapping.interval, outputsize)
		})
}

func (c *Client) fetchHistorical(ctx context.Context, timeframe, function, upstreamInterval, outputsize string) ([]models.Candle, error) {
	q := url.Values{}
	q.Set("function", function)
	q.Set("from_symbol", "XAU")
	q.Set("to_symbol", "USD")
	q.Set("outputsize", outputsize)
	q.Set("apikey", c.apiKey)
	if upstreamInterval != "" {
		q.Set("interval", upstreamInterval)
	}

	body, err := c.get(ctx, q)
	if err != nil {
		return nil, err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parsing historical response: %w", err)
	}
	if msg, ok := raw["Error Message"]; ok {
		return nil, fmt.Errorf("upstream rejected request: %s", string(msg))
	}

	var seriesKey string
	for k := range raw {
		if strings.HasPrefix(k, "Time Series") {
			seriesKey = k
			break
		}
	}
	if seriesKey == "" {
		return nil, fmt.Errorf("parsing historical response: no time series in payload")
	}

	var series map[string]struct {
		Open   string `json:"1. open"`
		High   string `json:"2. high"`
		Low    string `json:"3. low"`
		Close  string `json:"4. close"`
		Volume string `json:"5. volume"`
	}
	if err := json.Unmarshal(raw[seriesKey], &series); err != nil {
		return nil, fmt.Errorf("parsing time series: %w", err)
	}

	candles := make([]models.Candle, 0, len(series))
	for ts, bar := range series {
		timestamp, err := parseSeriesTime(ts)
		if err != nil {
			return nil, fmt.Errorf("parsing candle timestamp %q: %w", ts, err)
		}
		candle := models.Candle{
			Symbol:    models.Symbol,
			Timeframe: timeframe,
			Timestamp: timestamp,
		}
		if candle.Open, err = parsePrice("open", bar.Open); err != nil {
			return nil, err
		}
		if candle.High, err = parsePrice("high", bar.High); err != nil {
			return nil, err
		}
		if candle.Low, err = parsePrice("low", bar.Low); err != nil {
			return nil, err
		}
		if candle.Close, err = parsePrice("close", bar.Close); err != nil {
			return nil, err
		}
		// Intraday FX series carry no volume.
		if bar.Volume != "" {
			if candle.Volume, err = parsePrice("volume", bar.Volume); err != nil {
				return nil, err
			}
		}
		candles = append(candles, candle)
	}

	sort.Slice(candles, func(i, j int) bool {
		return candles[i].Timestamp.Before(candles[j].Timestamp)
	})
	return candles, nil
}

func parseSeriesTime(ts string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02 15:04:05", ts); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", ts)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func parsePrice(field, value string) (float64, error) {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing candle %s %q: %w", field, value, err)
	}
	return v, nil
}

// get performs one upstream request and screens the payload for rate-limit
// notices, which the API reports inside a 200 response.
func (c *Client) get(ctx context.Context, q url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/query?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("market data request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	lower := strings.ToLower(string(body))
	for _, marker := range rateLimitMarkers {
		if strings.Contains(lower, marker) {
			return nil, ErrRateLimited
		}
	}

	return body, nil
}
