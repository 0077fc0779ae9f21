package indicators

import "github.com/rustyeddy/papertrader/market"

// RelativeStrengthIndex computes RSI from a simple rolling mean of gains and
// losses (not Wilder smoothing).
//
// Deltas start at index 1, so the first value is at index period, averaging
// the deltas in (i-period, i]. With no losses in the window the RSI is 100;
// with neither gains nor losses it is undefined.
func RelativeStrengthIndex(closes []float64, period int) (market.Series, error) {
	if err := checkPeriod(period); err != nil {
		return nil, err
	}

	out := undefinedSeries(len(closes))
	for i := period; i < len(closes); i++ {
		var gain, loss float64
		for j := i - period + 1; j <= i; j++ {
			d := closes[j] - closes[j-1]
			if d > 0 {
				gain += d
			} else {
				loss -= d
			}
		}
		avgGain := gain / float64(period)
		avgLoss := loss / float64(period)
		out[i] = rsi(avgGain, avgLoss)
	}
	return out, nil
}

func rsi(avgGain, avgLoss float64) market.Value {
	switch {
	case avgLoss == 0 && avgGain == 0:
		return market.Undefined
	case avgLoss == 0:
		return market.Defined(100)
	}
	rs := avgGain / avgLoss
	return market.Defined(100 - 100/(1+rs))
}
