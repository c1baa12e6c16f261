// Package indicators implements the technical indicators the strategies are
// built on: SMA, standard deviation, Bollinger Bands, true range, ATR, RSI
// and ADX with the directional indexes.
//
// Every function takes an OHLC slice and returns a slice of the same length,
// aligned so that the value at index i is computed from candles [0..i]. Until
// enough data has accumulated the output holds NaN. All computations are
// plain float64 arithmetic with a fixed evaluation order, so two calls with
// identical input produce bit-identical output.
package indicators

import (
	"math"

	"github.com/BekiCrypto/TekWealth-XAUUSD-Bot/internal/models"
)

// IsValid reports whether an indicator value is set (not the NaN sentinel).
func IsValid(v float64) bool { return !math.IsNaN(v) }

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// SMA returns the simple moving average of closes over period. The first
// period-1 entries are NaN.
func SMA(candles []models.Candle, period int) []float64 {
	out := nanSlice(len(candles))
	if period <= 0 || len(candles) < period {
		return out
	}
	var sum float64
	for i, c := range candles {
		sum += c.Close
		if i >= period {
			sum -= candles[i-period].Close
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// StdDev returns the population standard deviation of closes over period,
// taken around the SMA at the same index.
func StdDev(candles []models.Candle, period int) []float64 {
	out := nanSlice(len(candles))
	if period <= 0 || len(candles) < period {
		return out
	}
	sma := SMA(candles, period)
	for i := period - 1; i < len(candles); i++ {
		mean := sma[i]
		var variance float64
		for j := i - period + 1; j <= i; j++ {
			d := candles[j].Close - mean
			variance += d * d
		}
		out[i] = math.Sqrt(variance / float64(period))
	}
	return out
}

// BollingerBands holds the three aligned Bollinger series.
type BollingerBands struct {
	Middle []float64
	Upper  []float64
	Lower  []float64
}

// Bollinger returns middle = SMA(period), upper/lower = middle ± k·stdDev.
func Bollinger(candles []models.Candle, period int, k float64) BollingerBands {
	middle := SMA(candles, period)
	sd := StdDev(candles, period)
	upper := nanSlice(len(candles))
	lower := nanSlice(len(candles))
	for i := range candles {
		if IsValid(middle[i]) && IsValid(sd[i]) {
			upper[i] = middle[i] + k*sd[i]
			lower[i] = middle[i] - k*sd[i]
		}
	}
	return BollingerBands{Middle: middle, Upper: upper, Lower: lower}
}

// TrueRange returns the true range series. Index 0 has no previous close and
// is NaN; at i>0 it is max(high-low, |high-prevClose|, |low-prevClose|).
func TrueRange(candles []models.Candle) []float64 {
	out := nanSlice(len(candles))
	for i := 1; i < len(candles); i++ {
		out[i] = trueRangeAt(candles, i)
	}
	return out
}

func trueRangeAt(candles []models.Candle, i int) float64 {
	c := candles[i]
	prevClose := candles[i-1].Close
	tr := c.High - c.Low
	if d := math.Abs(c.High - prevClose); d > tr {
		tr = d
	}
	if d := math.Abs(c.Low - prevClose); d > tr {
		tr = d
	}
	return tr
}

// ATR returns the average true range with Wilder smoothing. The first value,
// at index period, is the arithmetic mean of TR[1..period]; afterwards
// ATR_i = (ATR_{i-1}·(period-1) + TR_i) / period.
func ATR(candles []models.Candle, period int) []float64 {
	out := nanSlice(len(candles))
	if period <= 0 || len(candles) < period+1 {
		return out
	}
	tr := TrueRange(candles)
	var sum float64
	for i := 1; i <= period; i++ {
		sum += tr[i]
	}
	out[period] = sum / float64(period)
	for i := period + 1; i < len(candles); i++ {
		out[i] = (out[i-1]*float64(period-1) + tr[i]) / float64(period)
	}
	return out
}

// RSI returns the relative strength index with Wilder smoothing of average
// gains and losses. The first valid value sits at index period. When the
// smoothed loss is zero the RSI is 100.
func RSI(candles []models.Candle, period int) []float64 {
	out := nanSlice(len(candles))
	if period <= 0 || len(candles) < period+1 {
		return out
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		change := candles[i].Close - candles[i-1].Close
		if change > 0 {
			avgGain += change
		} else {
			avgLoss -= change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	out[period] = rsiValue(avgGain, avgLoss)

	for i := period + 1; i < len(candles); i++ {
		change := candles[i].Close - candles[i-1].Close
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// DMI holds the aligned ADX and directional index series.
type DMI struct {
	ADX     []float64
	PlusDI  []float64
	MinusDI []float64
}

// ADX computes the directional movement system: Wilder-smoothed TR and ±DM
// yield ±DI, DX = 100·|+DI − −DI| / (+DI + −DI) (0 when the sum is zero),
// and ADX is the Wilder smoothing of DX. ±DI become valid at index period;
// ADX at index 2·period−1.
func ADX(candles []models.Candle, period int) DMI {
	n := len(candles)
	d := DMI{ADX: nanSlice(n), PlusDI: nanSlice(n), MinusDI: nanSlice(n)}
	if period <= 0 || n < period+1 {
		return d
	}

	dx := nanSlice(n)
	var smTR, smPDM, smNDM float64

	for i := 1; i < n; i++ {
		upMove := candles[i].High - candles[i-1].High
		downMove := candles[i-1].Low - candles[i].Low
		pdm, ndm := 0.0, 0.0
		if upMove > downMove && upMove > 0 {
			pdm = upMove
		}
		if downMove > upMove && downMove > 0 {
			ndm = downMove
		}
		tr := trueRangeAt(candles, i)

		if i <= period {
			smTR += tr
			smPDM += pdm
			smNDM += ndm
			if i < period {
				continue
			}
		} else {
			// Wilder running smoothing of the period sums.
			smTR = smTR - smTR/float64(period) + tr
			smPDM = smPDM - smPDM/float64(period) + pdm
			smNDM = smNDM - smNDM/float64(period) + ndm
		}

		if smTR == 0 {
			d.PlusDI[i] = 0
			d.MinusDI[i] = 0
		} else {
			d.PlusDI[i] = 100 * smPDM / smTR
			d.MinusDI[i] = 100 * smNDM / smTR
		}
		sum := d.PlusDI[i] + d.MinusDI[i]
		if sum == 0 {
			dx[i] = 0
		} else {
			dx[i] = 100 * math.Abs(d.PlusDI[i]-d.MinusDI[i]) / sum
		}
	}

	// ADX seed: arithmetic mean of the first period DX values.
	if n < 2*period {
		return d
	}
	var sum float64
	for i := period; i < 2*period; i++ {
		sum += dx[i]
	}
	d.ADX[2*period-1] = sum / float64(period)
	for i := 2 * period; i < n; i++ {
		d.ADX[i] = (d.ADX[i-1]*float64(period-1) + dx[i]) / float64(period)
	}
	return d
}
