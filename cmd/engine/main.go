// Command engine runs the XAUUSD trading engine: the action API, the
// scheduled bot cycle, and everything they depend on.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/BekiCrypto/TekWealth-XAUUSD-Bot/internal/api"
	"github.com/BekiCrypto/TekWealth-XAUUSD-Bot/internal/backtest"
	"github.com/BekiCrypto/TekWealth-XAUUSD-Bot/internal/bot"
	"github.com/BekiCrypto/TekWealth-XAUUSD-Bot/internal/config"
	"github.com/BekiCrypto/TekWealth-XAUUSD-Bot/internal/marketdata"
	"github.com/BekiCrypto/TekWealth-XAUUSD-Bot/internal/notify"
	"github.com/BekiCrypto/TekWealth-XAUUSD-Bot/internal/provider"
	"github.com/BekiCrypto/TekWealth-XAUUSD-Bot/internal/storage"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		logrus.Fatalf("loading config: %v", err)
	}

	logger := newLogger(cfg.Engine.LogLevel)
	logger.WithFields(logrus.Fields{
		"provider": cfg.ProviderType(),
		"cycle":    cfg.CycleInterval().String(),
	}).Info("starting trading engine")

	store, err := storage.New(cfg.Store.DSN)
	if err != nil {
		logger.Fatalf("opening store: %v", err)
	}

	cache := marketdata.NewSpotCache()
	market := marketdata.NewClient(cfg.MarketData.APIKey, cfg.MarketData.BaseURL,
		cfg.MarketDataTimeout(), cache, logger)

	exec := provider.New(cfg, store, market, logger)

	var mailer notify.Sender
	emailer := notify.NewEmailer(cfg.Email, cfg.EmailTimeout(), logger)
	if emailer.Enabled() {
		mailer = emailer
	} else {
		logger.Info("email notifications disabled")
	}

	runner := bot.NewRunner(store, market, exec, mailer, logger)
	backtester := backtest.New(store, mailer, logger)
	server := api.NewServer(cfg, store, market, exec, runner, backtester, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go runScheduler(ctx, runner, cfg.CycleInterval(), logger)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	select {
	case sig := <-sigChan:
		logger.Infof("received %s, shutting down", sig)
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("server failed: %v", err)
		}
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("server shutdown: %v", err)
	}
	logger.Info("engine stopped")
}

// runScheduler drives the bot cycle: once at startup, then on every tick.
func runScheduler(ctx context.Context, runner *bot.Runner, interval time.Duration, logger *logrus.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	cycle := func() {
		summary, err := runner.RunCycle(ctx)
		if err != nil {
			logger.WithError(err).Error("bot cycle failed")
			return
		}
		logger.WithFields(logrus.Fields{
			"sessions":  summary.Sessions,
			"executed":  summary.Executed,
			"skipped":   summary.Skipped,
			"no_signal": summary.NoSignal,
			"errors":    summary.Errors,
		}).Info("bot cycle finished")
	}

	cycle()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cycle()
		}
	}
}

func newLogger(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	parsed, err := logrus.ParseLevel(level)
	if err != nil || level == "" {
		parsed = logrus.InfoLevel
	}
	logger.SetLevel(parsed)
	return logger
}
