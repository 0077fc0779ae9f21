package indicators

import "github.com/rustyeddy/papertrader/market"

// MovingAverage calculates the Simple Moving Average over a trailing window
// of period closes. The output has the same length as closes; indices below
// period-1 are undefined.
func MovingAverage(closes []float64, period int) (market.Series, error) {
	if err := checkPeriod(period); err != nil {
		return nil, err
	}

	out := undefinedSeries(len(closes))
	for i := period - 1; i < len(closes); i++ {
		// Sum each window from scratch; a running sum drifts on long series.
		sum := 0.0
		for _, c := range closes[i-period+1 : i+1] {
			sum += c
		}
		out[i] = market.Defined(sum / float64(period))
	}
	return out, nil
}
