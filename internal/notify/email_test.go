package notify

import (
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

	"github.com/BekiCrypto/TekWealth-XAUUSD-Bot/internal/config"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestEmailer_UnconfiguredIsNoOp(t *testing.T) {
	var called bool
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		called = true
	}))
	defer srv.Close()

	mailer := NewEmailer(config.EmailConfig{}, time.Second, testLogger()).WithBaseURL(srv.URL)
	assert.False(t, mailer.Enabled())
	assert.NoError(t, mailer.Send(context.Background(), "subject", "body"))
	assert.False(t, called)
}

func TestEmailer_SendsThroughSendGrid(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/mail/send", r.URL.Path)
		assert.Equal(t, "Bearer sg-key", r.Header.Get("Authorization"))

		var payload struct {
			Subject string `json:"subject"`
			From    struct {
				Email string `json:"email"`
			} `json:"from"`
			Content []struct {
				Value string `json:"value"`
			} `json:"content"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "trade executed", payload.Subject)
		assert.Equal(t, "bot@example.com", payload.From.Email)
		require.Len(t, payload.Content, 1)
		assert.Equal(t, "BUY 0.01 XAUUSD @ 2000", payload.Content[0].Value)

		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	mailer := NewEmailer(config.EmailConfig{
		SendGridAPIKey: "sg-key",
		FromEmail:      "bot@example.com",
		Recipient:      "ops@example.com",
	}, time.Second, testLogger()).WithBaseURL(srv.URL)

	require.True(t, mailer.Enabled())
	assert.NoError(t, mailer.Send(context.Background(), "trade executed", "BUY 0.01 XAUUSD @ 2000"))
}

func TestEmailer_SurfacesUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"errors":[{"message":"bad key"}]}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	mailer := NewEmailer(config.EmailConfig{
		SendGridAPIKey: "bad",
		Recipient:      "ops@example.com",
	}, time.Second, testLogger()).WithBaseURL(srv.URL)

	err := mailer.Send(context.Background(), "s", "b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}
