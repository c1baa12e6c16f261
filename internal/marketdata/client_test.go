package marketdata

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BekiCrypto/TekWealth-XAUUSD-Bot/internal/models"
	"github.com/BekiCrypto/TekWealth-XAUUSD-Bot/internal/retry"
)

const spotPayload = `{
	"Realtime Currency Exchange Rate": {
		"1. From_Currency Code": "XAU",
		"3. To_Currency Code": "USD",
		"5. Exchange Rate": "2345.6700",
		"6. Last Refreshed": "2024-05-01 12:00:00"
	}
}`

const intradayPayload = `{
	"Meta Data": {"4. Interval": "15min"},
	"Time Series FX (15min)": {
		"2024-05-01 12:15:00": {
			"1. open": "2002.10", "2. high": "2006.50",
			"3. low": "2001.00", "4. close": "2005.30"
		},
		"2024-05-01 12:00:00": {
			"1. open": "2000.00", "2. high": "2003.40",
			"3. low": "1999.10", "4. close": "2002.10"
		}
	}
}`

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func noRetries() retry.Config {
	return retry.Config{MaxRetries: 0, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, Timeout: 5 * time.Second}
}

func TestGetSpotPrice_CacheHitSkipsUpstream(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "CURRENCY_EXCHANGE_RATE", r.URL.Query().Get("function"))
		_, _ = w.Write([]byte(spotPayload))
	}))
	defer srv.Close()

	client := NewClient("key", srv.URL, time.Second, NewSpotCache(), testLogger())

	first, err := client.GetSpotPrice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2345.67, first)

	second, err := client.GetSpotPrice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGetSpotPrice_StaleFallback(t *testing.T) {
	var failing atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if failing.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(spotPayload))
	}))
	defer srv.Close()

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	now := base
	client := NewClient("key", srv.URL, time.Second, NewSpotCache(), testLogger()).
		WithClock(func() time.Time { return now })

	_, err := client.GetSpotPrice(context.Background())
	require.NoError(t, err)

	// Fresh window expired but stale window still open: failure serves cache.
	failing.Store(true)
	now = base.Add(6 * time.Minute)
	price, err := client.GetSpotPrice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2345.67, price)

	// Stale window expired too: the failure surfaces.
	now = base.Add(11 * time.Minute)
	_, err = client.GetSpotPrice(context.Background())
	assert.ErrorIs(t, err, ErrNoCache)
}

func TestGetSpotPrice_NoCacheOnColdFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient("key", srv.URL, time.Second, NewSpotCache(), testLogger())
	_, err := client.GetSpotPrice(context.Background())
	assert.ErrorIs(t, err, ErrNoCache)
}

func TestGetHistorical_ParsesAndSortsAscending(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "FX_INTRADAY", r.URL.Query().Get("function"))
		assert.Equal(t, "15min", r.URL.Query().Get("interval"))
		assert.Equal(t, "compact", r.URL.Query().Get("outputsize"))
		_, _ = w.Write([]byte(intradayPayload))
	}))
	defer srv.Close()

	client := NewClient("key", srv.URL, time.Second, NewSpotCache(), testLogger()).
		WithRetryConfig(noRetries())

	candles, err := client.GetHistorical(context.Background(), "15m", "")
	require.NoError(t, err)
	require.Len(t, candles, 2)

	assert.True(t, candles[0].Timestamp.Before(candles[1].Timestamp))
	assert.Equal(t, models.Symbol, candles[0].Symbol)
	assert.Equal(t, "15m", candles[0].Timeframe)
	assert.Equal(t, 2000.0, candles[0].Open)
	assert.Equal(t, 2003.4, candles[0].High)
	assert.Equal(t, 1999.1, candles[0].Low)
	assert.Equal(t, 2002.1, candles[0].Close)
	// FX series carry no volume.
	assert.Zero(t, candles[0].Volume)
	assert.Equal(t, 2005.3, candles[1].Close)
}

func TestGetHistorical_DailyDates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "FX_DAILY", r.URL.Query().Get("function"))
		assert.Empty(t, r.URL.Query().Get("interval"))
		_, _ = w.Write([]byte(`{
			"Time Series FX (Daily)": {
				"2024-05-01": {"1. open": "2000", "2. high": "2010", "3. low": "1990", "4. close": "2005"}
			}
		}`))
	}))
	defer srv.Close()

	client := NewClient("key", srv.URL, time.Second, NewSpotCache(), testLogger()).
		WithRetryConfig(noRetries())

	candles, err := client.GetHistorical(context.Background(), "daily", OutputFull)
	require.NoError(t, err)
	require.Len(t, candles, 1)
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), candles[0].Timestamp)
	assert.Equal(t, "daily", candles[0].Timeframe)
}

func TestGetHistorical_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"Note": "Thank you for using our API. Our standard API call frequency is 25 requests per day."}`))
	}))
	defer srv.Close()

	client := NewClient("key", srv.URL, time.Second, NewSpotCache(), testLogger()).
		WithRetryConfig(noRetries())

	_, err := client.GetHistorical(context.Background(), "15m", "")
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestGetHistorical_UpstreamErrorMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"Error Message": "Invalid API call."}`))
	}))
	defer srv.Close()

	client := NewClient("key", srv.URL, time.Second, NewSpotCache(), testLogger()).
		WithRetryConfig(noRetries())

	_, err := client.GetHistorical(context.Background(), "15m", "")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRateLimited)
}

func TestGetHistorical_UnsupportedInterval(t *testing.T) {
	client := NewClient("key", "http://localhost:0", time.Second, NewSpotCache(), testLogger())

	_, err := client.GetHistorical(context.Background(), "7m", "")
	assert.Error(t, err)

	_, err = client.GetHistorical(context.Background(), "15m", "huge")
	assert.Error(t, err)
}
