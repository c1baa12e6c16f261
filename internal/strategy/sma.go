package strategy

import (
	"github.com/BekiCrypto/TekWealth-XAUUSD-Bot/internal/indicators"
	"github.com/BekiCrypto/TekWealth-XAUUSD-Bot/internal/models"
)

// SMACrossover trades moving-average crossovers: BUY when the short SMA
// crosses above the long SMA between the previous and the signal candle,
// SELL on the mirror-image down-cross.
type SMACrossover struct{}

// Name implements Strategy.
func (SMACrossover) Name() string { return "sma_crossover" }

// Decide implements Strategy.
func (SMACrossover) Decide(history []models.Candle, decisionPrice float64, p Params, atr float64) Signal {
	if !ready(history, p, atr) {
		return Signal{}
	}

	short := indicators.SMA(history, p.SMAShort)
	long := indicators.SMA(history, p.SMALong)
	i := len(history) - 1
	if i < 1 ||
		!indicators.IsValid(short[i]) || !indicators.IsValid(short[i-1]) ||
		!indicators.IsValid(long[i]) || !indicators.IsValid(long[i-1]) {
		return Signal{}
	}

	switch {
	case short[i-1] <= long[i-1] && short[i] > long[i]:
		return levels(models.SideBuy, decisionPrice, p, atr)
	case short[i-1] >= long[i-1] && short[i] < long[i]:
		return levels(models.SideSell, decisionPrice, p, atr)
	}
	return Signal{}
}
