package strategies

import (
	"fmt"

	"github.com/rustyeddy/papertrader/indicators"
	"github.com/rustyeddy/papertrader/market"
)

// SMACross goes long when the short SMA crosses above the long SMA and
// exits when it crosses back below.
//   - Bull cross: short-long goes from <=0 to >0
//   - Bear cross: short-long goes from >=0 to <0
type SMACross struct {
	params SMACrossParams
}

func NewSMACross(short, long int) (*SMACross, error) {
	p := SMACrossParams{Short: short, Long: long}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &SMACross{params: p}, nil
}

func (s *SMACross) Kind() Kind     { return SMACrossover }
func (s *SMACross) Params() Params { return s.params }
func (s *SMACross) Warmup() int    { return s.params.Warmup() }

func (s *SMACross) Prepare(closes []float64) (Signals, error) {
	short, err := indicators.MovingAverage(closes, s.params.Short)
	if err != nil {
		return nil, err
	}
	long, err := indicators.MovingAverage(closes, s.params.Long)
	if err != nil {
		return nil, err
	}
	return &smaSignals{
		short: short,
		long:  long,
		above: fmt.Sprintf("SMA(%d) crossed above SMA(%d)", s.params.Short, s.params.Long),
		below: fmt.Sprintf("SMA(%d) crossed below SMA(%d)", s.params.Short, s.params.Long),
	}, nil
}

type smaSignals struct {
	short, long  market.Series
	above, below string
}

func (s *smaSignals) Indicators() map[string]market.Series {
	return map[string]market.Series{
		"short_sma": s.short,
		"long_sma":  s.long,
	}
}

func (s *smaSignals) At(i int) Signal {
	// Need both averages on i-1 and i to detect a cross.
	prevS, ok1 := s.short.At(i - 1).Float64()
	prevL, ok2 := s.long.At(i - 1).Float64()
	curS, ok3 := s.short.At(i).Float64()
	curL, ok4 := s.long.At(i).Float64()
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return Signal{}
	}

	switch {
	case prevS <= prevL && curS > curL:
		return Signal{Action: Buy, Reason: s.above}
	case prevS >= prevL && curS < curL:
		return Signal{Action: Sell, Reason: s.below}
	}
	return Signal{}
}
