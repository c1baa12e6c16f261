package strategy

import "github.com/BekiCrypto/TekWealth-XAUUSD-Bot/internal/models"

// Breakout is reserved for a future range-breakout strategy. The mode is
// accepted everywhere but currently never signals.
type Breakout struct{}

// Name implements Strategy.
func (Breakout) Name() string { return "breakout" }

// Decide implements Strategy.
func (Breakout) Decide([]models.Candle, float64, Params, float64) Signal {
	return Signal{}
}
