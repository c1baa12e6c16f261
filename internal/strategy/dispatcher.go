package strategy

import (
	"github.com/BekiCrypto/TekWealth-XAUUSD-Bot/internal/indicators"
	"github.com/BekiCrypto/TekWealth-XAUUSD-Bot/internal/models"
)

// Adaptive is the regime-switching dispatcher. It reads the ADX at the
// signal candle: a trending market (ADX above the trend threshold) runs the
// SMA crossover, a ranging market (ADX below the range threshold) runs mean
// reversion, and the band in between stays flat.
type Adaptive struct {
	trend   Strategy
	ranging Strategy
}

// NewAdaptive builds the dispatcher with the standard strategy pair.
func NewAdaptive() Adaptive {
	return Adaptive{trend: SMACrossover{}, ranging: MeanReversion{}}
}

// Name implements Strategy.
func (Adaptive) Name() string { return "adaptive" }

// Decide implements Strategy.
func (a Adaptive) Decide(history []models.Candle, decisionPrice float64, p Params, atr float64) Signal {
	if !ready(history, p, atr) {
		return Signal{}
	}

	adx := indicators.ADX(history, p.ADXPeriod).ADX
	current := adx[len(history)-1]
	if !indicators.IsValid(current) {
		return Signal{}
	}

	switch {
	case current > p.ADXTrendThreshold:
		return a.trend.Decide(history, decisionPrice, p, atr)
	case current < p.ADXRangeThreshold:
		return a.ranging.Decide(history, decisionPrice, p, atr)
	}
	return Signal{}
}

// ForMode maps a session's strategy mode onto a strategy value. Explicit
// modes bypass the regime check; unknown modes fall back to adaptive.
func ForMode(mode models.StrategyMode) Strategy {
	switch mode {
	case models.ModeSMAOnly:
		return SMACrossover{}
	case models.ModeMeanReversionOnly:
		return MeanReversion{}
	case models.ModeBreakoutOnly:
		return Breakout{}
	default:
		return NewAdaptive()
	}
}
