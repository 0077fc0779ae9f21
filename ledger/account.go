package ledger

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Side of a ledger record.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// ParseSide accepts buy/sell in any case.
func ParseSide(s string) (Side, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(Buy):
		return Buy, true
	case string(Sell):
		return Sell, true
	}
	return "", false
}

// Record is one executed paper trade. Records are append-only.
// BuyPrice and Profit are set on SELL records only: BuyPrice is the
// average cost of the coin at the time of the sale.
type Record struct {
	ID        string
	Timestamp time.Time
	Side      Side
	Coin      string
	Amount    decimal.Decimal
	Price     decimal.Decimal
	Total     decimal.Decimal
	BuyPrice  *decimal.Decimal
	Profit    *decimal.Decimal
}

// Account is the virtual paper-trading account.
type Account struct {
	ID         string
	Version    int64
	USDBalance decimal.Decimal
	Holdings   map[string]decimal.Decimal
	History    []Record
	UpdatedAt  time.Time
}

func newAccount(id string, balance decimal.Decimal) Account {
	return Account{
		ID:         id,
		USDBalance: balance,
		Holdings:   map[string]decimal.Decimal{},
		History:    []Record{},
	}
}

// Holding returns the amount held of coin (zero when absent).
func (a Account) Holding(coin string) decimal.Decimal {
	return a.Holdings[coin]
}

// Coins returns the coins with a positive holding, sorted.
func (a Account) Coins() []string {
	var out []string
	for c, amt := range a.Holdings {
		if amt.IsPositive() {
			out = append(out, c)
		}
	}
	sort.Strings(out)
	return out
}

// Clone returns a deep copy so callers can never mutate ledger state.
func (a Account) Clone() Account {
	out := a
	out.Holdings = make(map[string]decimal.Decimal, len(a.Holdings))
	for k, v := range a.Holdings {
		out.Holdings[k] = v
	}
	out.History = make([]Record, len(a.History))
	copy(out.History, a.History)
	return out
}

// averageCost replays the history of coin and returns the average cost of
// the units currently held.
func (a Account) averageCost(coin string) (decimal.Decimal, bool) {
	qty := decimal.Zero
	cost := decimal.Zero
	for _, r := range a.History {
		if r.Coin != coin {
			continue
		}
		switch r.Side {
		case Buy:
			qty = qty.Add(r.Amount)
			cost = cost.Add(r.Total)
		case Sell:
			if qty.IsPositive() {
				cost = cost.Sub(cost.Div(qty).Mul(r.Amount))
			}
			qty = qty.Sub(r.Amount)
		}
		if !qty.IsPositive() {
			qty, cost = decimal.Zero, decimal.Zero
		}
	}
	if !qty.IsPositive() {
		return decimal.Zero, false
	}
	return cost.Div(qty), true
}

// Persisted form. Money fields are written as JSON numbers.

type accountDoc struct {
	ID         string                 `json:"id"`
	Version    int64                  `json:"version"`
	USDBalance json.Number            `json:"usd_balance"`
	Holdings   map[string]json.Number `json:"holdings"`
	History    []recordDoc            `json:"history"`
	UpdatedAt  time.Time              `json:"updated_at"`
}

type recordDoc struct {
	ID        string      `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	Side      Side        `json:"side"`
	Coin      string      `json:"coin"`
	Amount    json.Number `json:"amount"`
	Price     json.Number `json:"price"`
	Total     json.Number `json:"total"`
	BuyPrice  json.Number `json:"buy_price,omitempty"`
	Profit    json.Number `json:"profit,omitempty"`
}

func num(d decimal.Decimal) json.Number { return json.Number(d.String()) }

func optNum(d *decimal.Decimal) json.Number {
	if d == nil {
		return ""
	}
	return num(*d)
}

func parseNum(field string, n json.Number) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(string(n))
	if err != nil {
		return decimal.Zero, fmt.Errorf("ledger: %s: %w", field, err)
	}
	return d, nil
}

func parseOptNum(field string, n json.Number) (*decimal.Decimal, error) {
	if n == "" {
		return nil, nil
	}
	d, err := parseNum(field, n)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.doc())
}

func (r Record) doc() recordDoc {
	return recordDoc{
		ID:        r.ID,
		Timestamp: r.Timestamp,
		Side:      r.Side,
		Coin:      r.Coin,
		Amount:    num(r.Amount),
		Price:     num(r.Price),
		Total:     num(r.Total),
		BuyPrice:  optNum(r.BuyPrice),
		Profit:    optNum(r.Profit),
	}
}

func (r *Record) UnmarshalJSON(b []byte) error {
	var d recordDoc
	if err := json.Unmarshal(b, &d); err != nil {
		return err
	}
	rec, err := d.record()
	if err != nil {
		return err
	}
	*r = rec
	return nil
}

func (d recordDoc) record() (Record, error) {
	r := Record{ID: d.ID, Timestamp: d.Timestamp, Side: d.Side, Coin: d.Coin}
	var err error
	if r.Amount, err = parseNum("amount", d.Amount); err != nil {
		return Record{}, err
	}
	if r.Price, err = parseNum("price", d.Price); err != nil {
		return Record{}, err
	}
	if r.Total, err = parseNum("total", d.Total); err != nil {
		return Record{}, err
	}
	if r.BuyPrice, err = parseOptNum("buy_price", d.BuyPrice); err != nil {
		return Record{}, err
	}
	if r.Profit, err = parseOptNum("profit", d.Profit); err != nil {
		return Record{}, err
	}
	return r, nil
}

func (a Account) MarshalJSON() ([]byte, error) {
	d := accountDoc{
		ID:         a.ID,
		Version:    a.Version,
		USDBalance: num(a.USDBalance),
		Holdings:   make(map[string]json.Number, len(a.Holdings)),
		History:    make([]recordDoc, 0, len(a.History)),
		UpdatedAt:  a.UpdatedAt,
	}
	for c, amt := range a.Holdings {
		d.Holdings[c] = num(amt)
	}
	for _, r := range a.History {
		d.History = append(d.History, r.doc())
	}
	return json.Marshal(d)
}

func (a *Account) UnmarshalJSON(b []byte) error {
	var d accountDoc
	if err := json.Unmarshal(b, &d); err != nil {
		return err
	}

	bal, err := parseNum("usd_balance", d.USDBalance)
	if err != nil {
		return err
	}
	out := newAccount(d.ID, bal)
	out.Version = d.Version
	out.UpdatedAt = d.UpdatedAt

	for c, n := range d.Holdings {
		amt, err := parseNum("holdings."+c, n)
		if err != nil {
			return err
		}
		out.Holdings[c] = amt
	}
	for _, rd := range d.History {
		r, err := rd.record()
		if err != nil {
			return err
		}
		out.History = append(out.History, r)
	}

	*a = out
	return nil
}
