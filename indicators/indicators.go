// Package indicators provides technical analysis indicators for trading.
//
// Every function here is pure: it takes a close-price series and returns a
// market.Series of the same length. Slots that cannot be computed yet
// (warm-up) or that degenerate numerically are market.Undefined, never NaN.
package indicators

import "github.com/rustyeddy/papertrader/market"

func checkPeriod(period int) error {
	if period <= 0 {
		return market.Invalid("period", "must be positive, got %d", period)
	}
	return nil
}

func undefinedSeries(n int) market.Series {
	return make(market.Series, n)
}
