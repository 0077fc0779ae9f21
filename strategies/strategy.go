package strategies

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/rustyeddy/papertrader/market"
)

// Kind enumerates the supported strategy variants.
type Kind string

const (
	SMACrossover Kind = "sma_crossover"
	RSIThreshold Kind = "rsi"
)

// ErrUnknownStrategy is returned for strategy identifiers outside Kinds().
var ErrUnknownStrategy = errors.New("unknown strategy")

// Kinds lists every supported strategy kind.
func Kinds() []Kind {
	return []Kind{SMACrossover, RSIThreshold}
}

// ParseKind maps a strategy identifier to its Kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case SMACrossover:
		return SMACrossover, nil
	case RSIThreshold:
		return RSIThreshold, nil
	default:
		return "", fmt.Errorf("%w %q (supported: sma_crossover, rsi)", ErrUnknownStrategy, s)
	}
}

// Strategy turns a close-price series into per-index signals.
// Implementations are stateless; all run state lives in the Evaluator.
type Strategy interface {
	Kind() Kind
	Params() Params

	// Warmup is the minimum number of candles needed to evaluate at least
	// one index.
	Warmup() int

	// Prepare computes the indicator series for closes.
	Prepare(closes []float64) (Signals, error)
}

// Signals exposes prepared indicator series and the signal at each index.
type Signals interface {
	Indicators() map[string]market.Series
	At(i int) Signal
}

// New builds the strategy for p after validating it.
func New(p Params) (Strategy, error) {
	if p == nil {
		return nil, market.Invalid("params", "must not be nil")
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	switch p := p.(type) {
	case SMACrossParams:
		return &SMACross{params: p}, nil
	case RSIParams:
		return &RSI{params: p}, nil
	default:
		return nil, fmt.Errorf("%w: params %T", ErrUnknownStrategy, p)
	}
}

// Params is the tagged variant of strategy parameters.
type Params interface {
	Kind() Kind
	Validate() error
	Warmup() int
	// Map renders the params with their wire keys.
	Map() map[string]float64
}

// SMACrossParams configures the SMA crossover strategy.
type SMACrossParams struct {
	Short int `json:"short_period" yaml:"short_period"`
	Long  int `json:"long_period" yaml:"long_period"`
}

func (p SMACrossParams) Kind() Kind { return SMACrossover }

func (p SMACrossParams) Validate() error {
	if p.Short <= 0 {
		return market.Invalid("short_period", "must be positive, got %d", p.Short)
	}
	if p.Long <= 0 {
		return market.Invalid("long_period", "must be positive, got %d", p.Long)
	}
	if p.Short >= p.Long {
		return market.Invalid("short_period", "must be less than long_period (%d >= %d)", p.Short, p.Long)
	}
	return nil
}

// Warmup needs the long average defined on two consecutive candles.
func (p SMACrossParams) Warmup() int { return p.Long + 1 }

func (p SMACrossParams) Map() map[string]float64 {
	return map[string]float64{
		"short_period": float64(p.Short),
		"long_period":  float64(p.Long),
	}
}

// RSIParams configures the RSI threshold strategy.
type RSIParams struct {
	Period     int     `json:"rsi_period" yaml:"rsi_period"`
	Oversold   float64 `json:"oversold" yaml:"oversold"`
	Overbought float64 `json:"overbought" yaml:"overbought"`
}

func (p RSIParams) Kind() Kind { return RSIThreshold }

func (p RSIParams) Validate() error {
	if p.Period <= 0 {
		return market.Invalid("rsi_period", "must be positive, got %d", p.Period)
	}
	if p.Oversold < 0 || p.Oversold > 100 {
		return market.Invalid("oversold", "must be within [0,100], got %v", p.Oversold)
	}
	if p.Overbought < 0 || p.Overbought > 100 {
		return market.Invalid("overbought", "must be within [0,100], got %v", p.Overbought)
	}
	if p.Oversold >= p.Overbought {
		return market.Invalid("oversold", "must be below overbought (%v >= %v)", p.Oversold, p.Overbought)
	}
	return nil
}

// Warmup needs period deltas, i.e. period+1 closes.
func (p RSIParams) Warmup() int { return p.Period + 1 }

func (p RSIParams) Map() map[string]float64 {
	return map[string]float64{
		"rsi_period": float64(p.Period),
		"oversold":   p.Oversold,
		"overbought": p.Overbought,
	}
}

// DefaultParams returns the default parameters for kind.
func DefaultParams(kind Kind) (Params, error) {
	switch kind {
	case SMACrossover:
		return SMACrossParams{Short: 10, Long: 30}, nil
	case RSIThreshold:
		return RSIParams{Period: 14, Oversold: 30, Overbought: 70}, nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownStrategy, kind)
	}
}

// ParamsFromMap overlays the recognised keys of m on the defaults for kind
// and validates the result. Unrecognised keys are ignored.
func ParamsFromMap(kind Kind, m map[string]float64) (Params, error) {
	p, err := DefaultParams(kind)
	if err != nil {
		return nil, err
	}

	switch p := p.(type) {
	case SMACrossParams:
		if err := intParam(m, "short_period", &p.Short); err != nil {
			return nil, err
		}
		if err := intParam(m, "long_period", &p.Long); err != nil {
			return nil, err
		}
		return p, p.Validate()

	case RSIParams:
		if err := intParam(m, "rsi_period", &p.Period); err != nil {
			return nil, err
		}
		if err := floatParam(m, "oversold", &p.Oversold); err != nil {
			return nil, err
		}
		if err := floatParam(m, "overbought", &p.Overbought); err != nil {
			return nil, err
		}
		return p, p.Validate()
	}
	return p, p.Validate()
}

func intParam(m map[string]float64, key string, dst *int) error {
	v, ok := m[key]
	if !ok {
		return nil
	}
	if math.IsNaN(v) || math.IsInf(v, 0) || v != math.Trunc(v) {
		return market.Invalid(key, "must be an integer, got %v", v)
	}
	*dst = int(v)
	return nil
}

func floatParam(m map[string]float64, key string, dst *float64) error {
	v, ok := m[key]
	if !ok {
		return nil
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return market.Invalid(key, "must be finite, got %v", v)
	}
	*dst = v
	return nil
}
