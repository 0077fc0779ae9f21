// Package portfolio values the paper ledger's holdings at current prices
// and summarises how the account has performed.
package portfolio

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rustyeddy/papertrader/ledger"
	"github.com/rustyeddy/papertrader/performance"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	HighConcentration     = 70.0
	ModerateConcentration = 50.0

	// quoteParallelism bounds concurrent price lookups.
	quoteParallelism = 4
)

// PriceQuoter returns the current USD price of a coin.
type PriceQuoter interface {
	Price(ctx context.Context, coin string) (float64, error)
}

// Holding is one valued position.
type Holding struct {
	Amount       float64 `json:"amount"`
	CurrentPrice float64 `json:"current_price"`
	CurrentValue float64 `json:"current_value"`
}

// Summary is the portfolio view of the ledger account.
type Summary struct {
	Balance     float64               `json:"balance"`
	Holdings    map[string]Holding    `json:"holdings"`
	TotalValue  float64               `json:"total_value"`
	Metrics     performance.Portfolio `json:"metrics"`
	Suggestions string                `json:"suggestions"`
	History     []ledger.Record       `json:"history"`
	AsOf        time.Time             `json:"as_of"`
}

type Service struct {
	Ledger *ledger.Ledger
	Quotes PriceQuoter
	Log    logrus.FieldLogger
}

func (s *Service) logger() logrus.FieldLogger {
	if s.Log == nil {
		return logrus.StandardLogger()
	}
	return s.Log
}

// Summary loads the account and values every positive holding. A coin
// whose price cannot be fetched is valued at 0 and logged.
func (s *Service) Summary(ctx context.Context) (Summary, error) {
	acct, err := s.Ledger.Account(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("portfolio: %w", err)
	}

	coins := acct.Coins()
	prices := s.quote(ctx, coins)

	sum := Summary{
		Balance:  acct.USDBalance.InexactFloat64(),
		Holdings: make(map[string]Holding, len(coins)),
		Metrics:  performance.Analyze(acct.History),
		History:  acct.History,
		AsOf:     time.Now().UTC(),
	}
	if sum.History == nil {
		sum.History = []ledger.Record{}
	}

	total := decimal.Zero
	for _, coin := range coins {
		amount := acct.Holding(coin)
		price := decimal.NewFromFloat(prices[coin])
		value := amount.Mul(price)
		total = total.Add(value)
		sum.Holdings[coin] = Holding{
			Amount:       amount.InexactFloat64(),
			CurrentPrice: prices[coin],
			CurrentValue: value.InexactFloat64(),
		}
	}
	sum.TotalValue = sum.Balance + total.InexactFloat64()
	sum.Suggestions = Suggestions(coins, sum.Holdings)
	return sum, nil
}

func (s *Service) quote(ctx context.Context, coins []string) map[string]float64 {
	prices := make(map[string]float64, len(coins))
	if s.Quotes == nil || len(coins) == 0 {
		return prices
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(quoteParallelism)
	for _, coin := range coins {
		g.Go(func() error {
			p, err := s.Quotes.Price(gctx, coin)
			if err != nil {
				s.logger().WithError(err).WithField("coin", coin).Warn("price unavailable")
				p = 0
			}
			mu.Lock()
			prices[coin] = p
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return prices
}

// Suggestions flags concentrated positions by their share of the total
// holding value. coins fixes the order of the messages.
func Suggestions(coins []string, holdings map[string]Holding) string {
	total := 0.0
	for _, c := range coins {
		total += holdings[c].CurrentValue
	}
	if len(coins) == 0 || total <= 0 {
		return "No holdings to analyze."
	}

	var out []string
	for _, c := range coins {
		pct := holdings[c].CurrentValue / total * 100
		switch {
		case pct > HighConcentration:
			out = append(out, fmt.Sprintf("High concentration: %.1f%% in %s. Consider diversifying.", pct, strings.ToUpper(c)))
		case pct > ModerateConcentration:
			out = append(out, fmt.Sprintf("Moderate concentration: %.1f%% in %s.", pct, strings.ToUpper(c)))
		}
	}
	if len(out) == 0 {
		return "Portfolio is well-diversified!"
	}
	return strings.Join(out, " | ")
}
