package strategy

import (
	"github.com/BekiCrypto/TekWealth-XAUUSD-Bot/internal/indicators"
	"github.com/BekiCrypto/TekWealth-XAUUSD-Bot/internal/models"
)

// MeanReversion fades Bollinger-band touches confirmed by the RSI turning
// back from an extreme: BUY at the lower band with the RSI oversold and
// rising, SELL at the upper band with the RSI overbought and falling.
type MeanReversion struct{}

// Name implements Strategy.
func (MeanReversion) Name() string { return "mean_reversion" }

// Decide implements Strategy.
func (MeanReversion) Decide(history []models.Candle, decisionPrice float64, p Params, atr float64) Signal {
	if !ready(history, p, atr) {
		return Signal{}
	}

	bb := indicators.Bollinger(history, p.BBPeriod, p.BBStdDev)
	rsi := indicators.RSI(history, p.RSIPeriod)
	i := len(history) - 1
	if i < 1 ||
		!indicators.IsValid(bb.Upper[i]) || !indicators.IsValid(bb.Lower[i]) ||
		!indicators.IsValid(rsi[i]) || !indicators.IsValid(rsi[i-1]) {
		return Signal{}
	}

	close := history[i].Close
	switch {
	case close <= bb.Lower[i] && rsi[i] < p.RSIOversold && rsi[i] > rsi[i-1]:
		return levels(models.SideBuy, decisionPrice, p, atr)
	case close >= bb.Upper[i] && rsi[i] > p.RSIOverbought && rsi[i] < rsi[i-1]:
		return levels(models.SideSell, decisionPrice, p, atr)
	}
	return Signal{}
}
