// Package strategy contains the trading strategies and the adaptive
// dispatcher that picks between them by ADX regime.
//
// A strategy is a pure value: given the history up to the signal candle, the
// decision price (the next candle's open in a backtest, the live spot
// otherwise) and the current ATR, it returns a Signal or nothing. Strategies
// never touch the store or the network, which keeps live trading and the
// backtest replay on the exact same code path.
package strategy

import (
	"encoding/json"

	"github.com/BekiCrypto/TekWealth-XAUUSD-Bot/internal/indicators"
	"github.com/BekiCrypto/TekWealth-XAUUSD-Bot/internal/models"
)

// Signal is a strategy decision. A zero Side means no trade; Stop and Take
// are absolute prices derived from the ATR at decision time.
type Signal struct {
	Side models.Side `json:"side,omitempty"`
	Stop float64     `json:"stop,omitempty"`
	Take float64     `json:"take,omitempty"`
}

// HasTrade reports whether the signal asks for an order.
func (s Signal) HasTrade() bool { return s.Side.Valid() }

// Strategy decides on one candle. Implementations must be deterministic and
// side-effect free.
type Strategy interface {
	Name() string
	Decide(history []models.Candle, decisionPrice float64, p Params, atr float64) Signal
}

// Params are the tunable inputs shared by all strategies. Zero values are
// replaced with defaults by Normalize, so a session may persist a partial
// JSON blob.
type Params struct {
	SMAShort          int     `json:"sma_short"`
	SMALong           int     `json:"sma_long"`
	BBPeriod          int     `json:"bb_period"`
	BBStdDev          float64 `json:"bb_std_dev"`
	RSIPeriod         int     `json:"rsi_period"`
	RSIOversold       float64 `json:"rsi_oversold"`
	RSIOverbought     float64 `json:"rsi_overbought"`
	ATRPeriod         int     `json:"atr_period"`
	ADXPeriod         int     `json:"adx_period"`
	ADXTrendThreshold float64 `json:"adx_trend_threshold"`
	ADXRangeThreshold float64 `json:"adx_range_threshold"`
	ATRMultSL         float64 `json:"atr_mult_sl"`
	ATRMultTP         float64 `json:"atr_mult_tp"`
}

// DefaultParams returns the stock parameter set.
func DefaultParams() Params {
	return Params{
		SMAShort:          10,
		SMALong:           50,
		BBPeriod:          20,
		BBStdDev:          2.0,
		RSIPeriod:         14,
		RSIOversold:       30,
		RSIOverbought:     70,
		ATRPeriod:         14,
		ADXPeriod:         14,
		ADXTrendThreshold: 25,
		ADXRangeThreshold: 20,
		ATRMultSL:         1.5,
		ATRMultTP:         3.0,
	}
}

// Normalize fills zero fields with defaults and returns the result.
func (p Params) Normalize() Params {
	d := DefaultParams()
	if p.SMAShort <= 0 {
		p.SMAShort = d.SMAShort
	}
	if p.SMALong <= 0 {
		p.SMALong = d.SMALong
	}
	if p.BBPeriod <= 0 {
		p.BBPeriod = d.BBPeriod
	}
	if p.BBStdDev <= 0 {
		p.BBStdDev = d.BBStdDev
	}
	if p.RSIPeriod <= 0 {
		p.RSIPeriod = d.RSIPeriod
	}
	if p.RSIOversold <= 0 {
		p.RSIOversold = d.RSIOversold
	}
	if p.RSIOverbought <= 0 {
		p.RSIOverbought = d.RSIOverbought
	}
	if p.ATRPeriod <= 0 {
		p.ATRPeriod = d.ATRPeriod
	}
	if p.ADXPeriod <= 0 {
		p.ADXPeriod = d.ADXPeriod
	}
	if p.ADXTrendThreshold <= 0 {
		p.ADXTrendThreshold = d.ADXTrendThreshold
	}
	if p.ADXRangeThreshold <= 0 {
		p.ADXRangeThreshold = d.ADXRangeThreshold
	}
	if p.ATRMultSL <= 0 {
		p.ATRMultSL = d.ATRMultSL
	}
	if p.ATRMultTP <= 0 {
		p.ATRMultTP = d.ATRMultTP
	}
	return p
}

// ParseParams decodes a session's strategy_params JSON blob, normalizing
// missing fields. An empty blob yields the defaults.
func ParseParams(blob string) (Params, error) {
	if blob == "" {
		return DefaultParams(), nil
	}
	var p Params
	if err := json.Unmarshal([]byte(blob), &p); err != nil {
		return Params{}, err
	}
	return p.Normalize(), nil
}

// MinCandles is the number of candles that must precede the decision candle
// before any strategy may signal.
func (p Params) MinCandles() int {
	n := p.SMALong
	if p.BBPeriod > n {
		n = p.BBPeriod
	}
	if p.RSIPeriod > n {
		n = p.RSIPeriod
	}
	if p.ATRPeriod+1 > n {
		n = p.ATRPeriod + 1
	}
	if 2*p.ADXPeriod-1 > n {
		n = 2*p.ADXPeriod - 1
	}
	return n
}

// levels turns a side decision into ATR-based stop and take prices:
// stop = decision -/+ ATRMultSL*atr, take = decision +/- ATRMultTP*atr.
func levels(side models.Side, decision float64, p Params, atr float64) Signal {
	switch side {
	case models.SideBuy:
		return Signal{Side: side, Stop: decision - p.ATRMultSL*atr, Take: decision + p.ATRMultTP*atr}
	case models.SideSell:
		return Signal{Side: side, Stop: decision + p.ATRMultSL*atr, Take: decision - p.ATRMultTP*atr}
	}
	return Signal{}
}

// ready gates every strategy: enough history and a usable ATR.
func ready(history []models.Candle, p Params, atr float64) bool {
	return len(history) >= p.MinCandles() && indicators.IsValid(atr) && atr > 0
}
