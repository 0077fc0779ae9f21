package strategies

import (
	"fmt"
	"time"

	"github.com/rustyeddy/papertrader/market"
)

// State of a strategy run.
type State int

const (
	Flat State = iota
	Long
)

func (s State) String() string {
	if s == Long {
		return "LONG"
	}
	return "FLAT"
}

// Action is a trade direction.
type Action string

const (
	Hold Action = ""
	Buy  Action = "BUY"
	Sell Action = "SELL"
)

// Signal is what a strategy wants to do at one index.
type Signal struct {
	Action Action
	Reason string
	RSI    market.Value
}

// Position is the single open long position of a run.
type Position struct {
	EntryPrice float64   `json:"entry_price"`
	EntryTime  time.Time `json:"entry_timestamp"`
	EntryIndex int       `json:"entry_index"`
}

// Trade is one simulated fill. Profit fields are set only on SELL and are
// measured against the position the SELL closes.
type Trade struct {
	Action    Action    `json:"action"`
	Price     float64   `json:"price"`
	Time      time.Time `json:"timestamp"`
	Index     int       `json:"index"`
	Reason    string    `json:"reason"`
	RSI       *float64  `json:"rsi,omitempty"`
	Profit    *float64  `json:"profit,omitempty"`
	ProfitPct *float64  `json:"profit_pct,omitempty"`
}

// ProfitOr returns the SELL profit or def.
func (t Trade) ProfitOr(def float64) float64 {
	if t.Profit == nil {
		return def
	}
	return *t.Profit
}

// Evaluator is the FLAT/LONG state machine of one strategy run. It starts
// FLAT and holds at most one Position. Not safe for concurrent use.
type Evaluator struct {
	state    State
	position Position
	lastIdx  int
	trades   []Trade
}

func NewEvaluator() *Evaluator {
	return &Evaluator{lastIdx: -1}
}

func (e *Evaluator) State() State { return e.state }

// Position returns the open position, if any.
func (e *Evaluator) Position() (Position, bool) {
	if e.state != Long {
		return Position{}, false
	}
	return e.position, true
}

// Trades returns the trades emitted so far.
func (e *Evaluator) Trades() []Trade {
	out := make([]Trade, len(e.trades))
	copy(out, e.trades)
	return out
}

// Apply feeds the signal for candle c at index i. It returns the emitted
// trade, if the signal caused a transition. BUY is only honoured when FLAT
// and SELL only when LONG; indices must be strictly increasing.
func (e *Evaluator) Apply(i int, c market.Candle, sig Signal) (Trade, bool) {
	if i <= e.lastIdx {
		return Trade{}, false
	}
	e.lastIdx = i

	switch {
	case sig.Action == Buy && e.state == Flat:
		return e.enter(i, c, sig), true
	case sig.Action == Sell && e.state == Long:
		return e.exit(i, c, sig), true
	}
	return Trade{}, false
}

func (e *Evaluator) enter(i int, c market.Candle, sig Signal) Trade {
	e.state = Long
	e.position = Position{EntryPrice: c.Close, EntryTime: c.Time, EntryIndex: i}

	t := Trade{
		Action: Buy,
		Price:  c.Close,
		Time:   c.Time,
		Index:  i,
		Reason: sig.Reason,
		RSI:    sig.RSI.Ptr(),
	}
	e.trades = append(e.trades, t)
	return t
}

func (e *Evaluator) exit(i int, c market.Candle, sig Signal) Trade {
	entry := e.position.EntryPrice
	profit := c.Close - entry
	pct := market.Defined(profit / entry * 100).Or(0)

	e.state = Flat
	e.position = Position{}

	t := Trade{
		Action:    Sell,
		Price:     c.Close,
		Time:      c.Time,
		Index:     i,
		Reason:    sig.Reason,
		RSI:       sig.RSI.Ptr(),
		Profit:    &profit,
		ProfitPct: &pct,
	}
	e.trades = append(e.trades, t)
	return t
}

// Run is the outcome of evaluating a strategy over a series.
type Run struct {
	Trades     []Trade
	Indicators map[string]market.Series
	Open       *Position
}

// Evaluate runs s over candles from a fresh Evaluator. It fails with
// market.ErrDataUnavailable when candles are shorter than s.Warmup().
func Evaluate(s Strategy, candles []market.Candle) (Run, error) {
	if len(candles) < s.Warmup() {
		return Run{}, fmt.Errorf("%w: %s needs %d candles, got %d",
			market.ErrDataUnavailable, s.Kind(), s.Warmup(), len(candles))
	}

	signals, err := s.Prepare(market.Closes(candles))
	if err != nil {
		return Run{}, err
	}

	ev := NewEvaluator()
	for i, c := range candles {
		ev.Apply(i, c, signals.At(i))
	}

	run := Run{
		Trades:     ev.Trades(),
		Indicators: signals.Indicators(),
	}
	if p, ok := ev.Position(); ok {
		run.Open = &p
	}
	return run, nil
}
