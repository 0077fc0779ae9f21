package strategies

import (
	"fmt"

	"github.com/rustyeddy/papertrader/indicators"
	"github.com/rustyeddy/papertrader/market"
)

// RSI buys when the RSI drops below Oversold and sells when it rises above
// Overbought.
type RSI struct {
	params RSIParams
}

func NewRSI(period int, oversold, overbought float64) (*RSI, error) {
	p := RSIParams{Period: period, Oversold: oversold, Overbought: overbought}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &RSI{params: p}, nil
}

func (s *RSI) Kind() Kind     { return RSIThreshold }
func (s *RSI) Params() Params { return s.params }
func (s *RSI) Warmup() int    { return s.params.Warmup() }

func (s *RSI) Prepare(closes []float64) (Signals, error) {
	rsi, err := indicators.RelativeStrengthIndex(closes, s.params.Period)
	if err != nil {
		return nil, err
	}
	return &rsiSignals{rsi: rsi, params: s.params}, nil
}

type rsiSignals struct {
	rsi    market.Series
	params RSIParams
}

func (s *rsiSignals) Indicators() map[string]market.Series {
	return map[string]market.Series{"rsi": s.rsi}
}

func (s *rsiSignals) At(i int) Signal {
	v := s.rsi.At(i)
	x, ok := v.Float64()
	if !ok {
		return Signal{}
	}

	switch {
	case x < s.params.Oversold:
		return Signal{
			Action: Buy,
			Reason: fmt.Sprintf("RSI(%.1f) below %g (oversold)", x, s.params.Oversold),
			RSI:    v,
		}
	case x > s.params.Overbought:
		return Signal{
			Action: Sell,
			Reason: fmt.Sprintf("RSI(%.1f) above %g (overbought)", x, s.params.Overbought),
			RSI:    v,
		}
	}
	return Signal{}
}
