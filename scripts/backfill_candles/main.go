// backfill_candles - A utility to seed or top up the candle store from the
// market-data API. Useful before running backtests over a fresh database.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/sirupsen/logrus"

	"github.com/BekiCrypto/TekWealth-XAUUSD-Bot/internal/config"
	"github.com/BekiCrypto/TekWealth-XAUUSD-Bot/internal/marketdata"
	"github.com/BekiCrypto/TekWealth-XAUUSD-Bot/internal/storage"
)

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "Path to configuration file")
		interval   = flag.String("interval", "15m", "Candle interval (1m 5m 15m 30m 60m daily weekly monthly)")
		outputsize = flag.String("outputsize", "full", "Upstream output size: compact or full")
		verbose    = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if *verbose {
		fmt.Printf("Using config: %s\n", *configPath)
		fmt.Printf("Store: %s\n", cfg.Store.DSN)
		fmt.Printf("Interval: %s (%s)\n\n", *interval, *outputsize)
	}

	store, err := storage.New(cfg.Store.DSN)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}

	logger := logrus.New()
	if !*verbose {
		logger.SetLevel(logrus.WarnLevel)
	}

	client := marketdata.NewClient(cfg.MarketData.APIKey, cfg.MarketData.BaseURL,
		cfg.MarketDataTimeout(), marketdata.NewSpotCache(), logger)

	ctx := context.Background()
	fmt.Printf("Fetching %s candles...\n", *interval)
	candles, err := client.GetHistorical(ctx, *interval, *outputsize)
	if err != nil {
		log.Fatalf("Failed to fetch candles: %v", err)
	}
	if len(candles) == 0 {
		log.Fatalf("Upstream returned no candles for interval %s", *interval)
	}

	stored, err := store.UpsertCandles(ctx, candles)
	if err != nil {
		log.Fatalf("Failed to store candles: %v", err)
	}

	first := candles[0].Timestamp
	last := candles[len(candles)-1].Timestamp
	fmt.Printf("Fetched %d candles (%s .. %s), stored %d new/updated rows.\n",
		len(candles), first.Format("2006-01-02 15:04"), last.Format("2006-01-02 15:04"), stored)
}
