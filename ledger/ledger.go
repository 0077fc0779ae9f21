// Package ledger is the paper-trading account: a USD balance, coin
// holdings and an append-only trade history, persisted through a
// Repository after every successful mutation.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/rustyeddy/papertrader/market"
	"github.com/rustyeddy/papertrader/pkg/id"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	DefaultAccountID = "default"

	// saveAttempts bounds the load-mutate-save loop when another writer
	// sharing the repository wins the version race.
	saveAttempts = 8
)

// DefaultInitialBalance is the USD balance of a fresh or reset account.
var DefaultInitialBalance = decimal.NewFromInt(10000)

var (
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrInsufficientHoldings = errors.New("insufficient holdings")
)

// TradeRequest asks the ledger to buy or sell Amount of Coin at Price.
type TradeRequest struct {
	Coin   string  `json:"coin"`
	Side   string  `json:"side"`
	Amount float64 `json:"amount"`
	Price  float64 `json:"price"`
}

// TradeResult reports the outcome of ExecuteTrade. Business-rule failures
// (insufficient funds or holdings) are results with Success false and
// Failure set, not errors.
type TradeResult struct {
	Success bool    `json:"success"`
	Message string  `json:"message"`
	Trade   *Record `json:"trade,omitempty"`
	Failure error   `json:"-"`
}

type Option func(*Ledger)

func WithAccountID(id string) Option {
	return func(l *Ledger) { l.accountID = id }
}

func WithInitialBalance(b decimal.Decimal) Option {
	return func(l *Ledger) { l.initial = b }
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(l *Ledger) { l.log = log }
}

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// Ledger owns one account. Every load-mutate-save cycle runs under mu;
// version conflicts from other writers are retried.
type Ledger struct {
	repo      Repository
	accountID string
	initial   decimal.Decimal
	log       logrus.FieldLogger
	now       func() time.Time

	mu sync.Mutex
}

func New(repo Repository, opts ...Option) *Ledger {
	l := &Ledger{
		repo:      repo,
		accountID: DefaultAccountID,
		initial:   DefaultInitialBalance,
		log:       logrus.StandardLogger(),
		now:       time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	l.log = l.log.WithField("account", l.accountID)
	return l
}

func (r TradeRequest) validate() (Side, string, decimal.Decimal, decimal.Decimal, error) {
	side, ok := ParseSide(r.Side)
	if !ok {
		return "", "", decimal.Zero, decimal.Zero, market.Invalid("side", "must be buy or sell, got %q", r.Side)
	}
	coin := strings.ToLower(strings.TrimSpace(r.Coin))
	if coin == "" {
		return "", "", decimal.Zero, decimal.Zero, market.Invalid("coin", "must not be empty")
	}
	if math.IsNaN(r.Amount) || math.IsInf(r.Amount, 0) || r.Amount <= 0 {
		return "", "", decimal.Zero, decimal.Zero, market.Invalid("amount", "must be a positive number, got %v", r.Amount)
	}
	if math.IsNaN(r.Price) || math.IsInf(r.Price, 0) || r.Price <= 0 {
		return "", "", decimal.Zero, decimal.Zero, market.Invalid("price", "must be a positive number, got %v", r.Price)
	}
	return side, coin, decimal.NewFromFloat(r.Amount), decimal.NewFromFloat(r.Price), nil
}

// ExecuteTrade validates req and applies it to the account. Invalid input
// is returned as a *market.ValidationError before any state is read.
// Insufficient funds or holdings produce an unsuccessful TradeResult and
// leave the stored account untouched.
func (l *Ledger) ExecuteTrade(ctx context.Context, req TradeRequest) (TradeResult, error) {
	side, coin, amount, price, err := req.validate()
	if err != nil {
		return TradeResult{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	log := l.log.WithFields(logrus.Fields{"side": side, "coin": coin})

	for attempt := 1; ; attempt++ {
		acct, err := l.loadOrCreate(ctx)
		if err != nil {
			return TradeResult{}, err
		}

		rec, failure := l.apply(&acct, side, coin, amount, price)
		if failure != nil {
			log.WithError(failure).Info("trade rejected")
			return TradeResult{Success: false, Message: failureMessage(failure, coin), Failure: failure}, nil
		}

		err = l.repo.Save(ctx, &acct)
		if errors.Is(err, ErrVersionConflict) && attempt < saveAttempts {
			log.WithField("attempt", attempt).Warn("account changed underneath, retrying")
			continue
		}
		if err != nil {
			return TradeResult{}, fmt.Errorf("save account: %w", err)
		}

		log.WithFields(logrus.Fields{
			"amount": rec.Amount.String(),
			"price":  rec.Price.String(),
			"total":  rec.Total.String(),
		}).Info("trade executed")
		return TradeResult{Success: true, Message: successMessage(rec), Trade: &rec}, nil
	}
}

// apply mutates acct in memory. On failure acct is not modified.
func (l *Ledger) apply(acct *Account, side Side, coin string, amount, price decimal.Decimal) (Record, error) {
	total := amount.Mul(price)
	now := l.now().UTC()
	rec := Record{
		ID:        id.NewAt(now),
		Timestamp: now,
		Side:      side,
		Coin:      coin,
		Amount:    amount,
		Price:     price,
		Total:     total,
	}

	switch side {
	case Buy:
		if acct.USDBalance.LessThan(total) {
			return Record{}, ErrInsufficientFunds
		}
		acct.USDBalance = acct.USDBalance.Sub(total)
		acct.Holdings[coin] = acct.Holding(coin).Add(amount)

	case Sell:
		held := acct.Holding(coin)
		if held.LessThan(amount) {
			return Record{}, ErrInsufficientHoldings
		}
		if avg, ok := acct.averageCost(coin); ok {
			profit := price.Sub(avg).Mul(amount)
			rec.BuyPrice = &avg
			rec.Profit = &profit
		}
		acct.Holdings[coin] = held.Sub(amount)
		acct.USDBalance = acct.USDBalance.Add(total)
	}

	acct.History = append(acct.History, rec)
	acct.UpdatedAt = rec.Timestamp
	return rec, nil
}

func successMessage(r Record) string {
	verb := "Bought"
	if r.Side == Sell {
		verb = "Sold"
	}
	return fmt.Sprintf("%s %s %s for $%s", verb, r.Amount.String(), r.Coin, r.Total.StringFixed(2))
}

func failureMessage(err error, coin string) string {
	if errors.Is(err, ErrInsufficientFunds) {
		return "Insufficient USD balance."
	}
	return fmt.Sprintf("Insufficient %s balance.", coin)
}

// Account returns a snapshot of the account, creating it with the initial
// balance on first access.
func (l *Ledger) Account(ctx context.Context) (Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	acct, err := l.loadOrCreate(ctx)
	if err != nil {
		return Account{}, err
	}
	return acct.Clone(), nil
}

// Reset reinitialises balance, clears holdings and history and persists.
func (l *Ledger) Reset(ctx context.Context) (Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for attempt := 1; ; attempt++ {
		cur, err := l.repo.Load(ctx, l.accountID)
		if err != nil && !errors.Is(err, ErrAccountNotFound) {
			return Account{}, err
		}

		acct := newAccount(l.accountID, l.initial)
		acct.Version = cur.Version
		acct.UpdatedAt = l.now().UTC()

		err = l.repo.Save(ctx, &acct)
		if errors.Is(err, ErrVersionConflict) && attempt < saveAttempts {
			continue
		}
		if err != nil {
			return Account{}, fmt.Errorf("save account: %w", err)
		}
		l.log.WithField("balance", l.initial.String()).Info("account reset")
		return acct.Clone(), nil
	}
}

func (l *Ledger) loadOrCreate(ctx context.Context) (Account, error) {
	for attempt := 1; ; attempt++ {
		acct, err := l.repo.Load(ctx, l.accountID)
		if err == nil {
			if acct.Holdings == nil {
				acct.Holdings = map[string]decimal.Decimal{}
			}
			return acct, nil
		}
		if !errors.Is(err, ErrAccountNotFound) {
			return Account{}, fmt.Errorf("load account: %w", err)
		}

		acct = newAccount(l.accountID, l.initial)
		acct.UpdatedAt = l.now().UTC()
		err = l.repo.Save(ctx, &acct)
		if errors.Is(err, ErrVersionConflict) && attempt < saveAttempts {
			continue
		}
		if err != nil {
			return Account{}, fmt.Errorf("create account: %w", err)
		}
		l.log.WithField("balance", l.initial.String()).Info("account created")
		return acct, nil
	}
}
