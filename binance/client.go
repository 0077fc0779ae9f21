// Package binance is a minimal client for the public Binance spot REST API:
// historical klines and ticker prices. Responses can optionally be cached
// in Redis.
package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rustyeddy/papertrader/market"
	"github.com/sirupsen/logrus"
)

const (
	// BaseURL is the public spot API endpoint.
	BaseURL = "https://api.binance.com"

	// MaxKlinesPerRequest is the page size limit of /api/v3/klines.
	MaxKlinesPerRequest = 1000
)

// Interval is a kline interval as understood by Binance.
type Interval string

const (
	M1  Interval = "1m"  // 1 minute
	M5  Interval = "5m"  // 5 minutes
	M15 Interval = "15m" // 15 minutes
	M30 Interval = "30m" // 30 minutes
	H1  Interval = "1h"  // 1 hour
	H4  Interval = "4h"  // 4 hours
	D1  Interval = "1d"  // 1 day
	W1  Interval = "1w"  // 1 week
)

// Client talks to the Binance REST API. Failures (transport errors,
// non-2xx, empty payloads) are returned immediately; there is no retry.
type Client struct {
	baseURL    string
	httpClient *http.Client
	cache      *redis.Client
	cacheTTL   time.Duration
	log        logrus.FieldLogger
}

type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithCache caches raw GET responses in rdb for ttl.
func WithCache(rdb *redis.Client, ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = rdb
		c.cacheTTL = ttl
	}
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(c *Client) { c.log = log }
}

// NewClient creates a Binance API client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL: BaseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		log: logrus.StandardLogger(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// KlinesRequest represents parameters for fetching historical klines.
type KlinesRequest struct {
	Symbol   string     // Required, e.g. "BTCUSDT"
	Interval Interval   // Default: H1
	Limit    int        // Number of klines; pages of MaxKlinesPerRequest are fetched as needed
	EndTime  *time.Time // Most recent open time to include (default: now)
}

// Klines fetches the most recent req.Limit klines, oldest first.
func (c *Client) Klines(ctx context.Context, req KlinesRequest) ([]market.Candle, error) {
	if req.Symbol == "" {
		return nil, market.Invalid("symbol", "is required")
	}
	if req.Limit <= 0 {
		return nil, market.Invalid("limit", "must be positive, got %d", req.Limit)
	}
	if req.Interval == "" {
		req.Interval = H1
	}

	var (
		out       []market.Candle
		remaining = req.Limit
		end       = req.EndTime
	)
	for remaining > 0 {
		n := min(remaining, MaxKlinesPerRequest)

		params := url.Values{}
		params.Set("symbol", req.Symbol)
		params.Set("interval", string(req.Interval))
		params.Set("limit", strconv.Itoa(n))
		if end != nil {
			params.Set("endTime", strconv.FormatInt(end.UnixMilli(), 10))
		}

		var rows [][]any
		if err := c.get(ctx, "/api/v3/klines", params, &rows); err != nil {
			return nil, err
		}
		page, err := parseKlines(rows)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}

		out = append(page, out...)
		remaining -= len(page)
		if len(page) < n {
			break // no older data
		}
		next := page[0].Time.Add(-time.Millisecond)
		end = &next
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no klines for %s", market.ErrDataUnavailable, req.Symbol)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return dedupe(out), nil
}

// History implements the backtest history source with hourly-style
// interval strings ("1h", "4h", ...).
func (c *Client) History(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error) {
	return c.Klines(ctx, KlinesRequest{Symbol: symbol, Interval: Interval(interval), Limit: limit})
}

// ResolveSymbol maps a coin id to its USDT trading pair.
func (c *Client) ResolveSymbol(coin string) (string, error) {
	return market.ResolveSymbol(coin)
}

type tickerPrice struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// TickerPrice returns the latest price for symbol.
func (c *Client) TickerPrice(ctx context.Context, symbol string) (float64, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	var tp tickerPrice
	if err := c.get(ctx, "/api/v3/ticker/price", params, &tp); err != nil {
		return 0, err
	}
	if tp.Price == "" {
		return 0, fmt.Errorf("%w: empty price for %s", market.ErrDataUnavailable, symbol)
	}
	p, err := strconv.ParseFloat(tp.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("parse price %q: %w", tp.Price, err)
	}
	return p, nil
}

// Price returns the latest USD price of a coin id.
func (c *Client) Price(ctx context.Context, coin string) (float64, error) {
	symbol, err := c.ResolveSymbol(coin)
	if err != nil {
		return 0, err
	}
	return c.TickerPrice(ctx, symbol)
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	apiURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())
	key := "binance:" + path + "?" + params.Encode()

	if c.cache != nil {
		if cached, err := c.cache.Get(ctx, key).Bytes(); err == nil {
			c.log.WithField("key", key).Debug("cache hit")
			return json.Unmarshal(cached, out)
		} else if !errors.Is(err, redis.Nil) {
			c.log.WithError(err).Warn("cache read failed")
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}
	if len(body) == 0 {
		return fmt.Errorf("%w: empty response from %s", market.ErrDataUnavailable, path)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, key, body, c.cacheTTL).Err(); err != nil {
			c.log.WithError(err).Warn("cache write failed")
		}
	}
	return nil
}

// parseKlines converts rows of [openTime, open, high, low, close, volume, ...].
func parseKlines(rows [][]any) ([]market.Candle, error) {
	out := make([]market.Candle, 0, len(rows))
	for i, row := range rows {
		if len(row) < 6 {
			return nil, fmt.Errorf("kline %d: expected at least 6 fields, got %d", i, len(row))
		}
		ms, ok := row[0].(float64)
		if !ok {
			return nil, fmt.Errorf("kline %d: open time %v is not a number", i, row[0])
		}

		var vals [5]float64
		for j := range vals {
			s, ok := row[j+1].(string)
			if !ok {
				return nil, fmt.Errorf("kline %d: field %d is not a string", i, j+1)
			}
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("kline %d: parse %q: %w", i, s, err)
			}
			vals[j] = v
		}

		out = append(out, market.Candle{
			Time:   time.UnixMilli(int64(ms)).UTC(),
			Open:   vals[0],
			High:   vals[1],
			Low:    vals[2],
			Close:  vals[3],
			Volume: vals[4],
		})
	}
	return out, nil
}

func dedupe(candles []market.Candle) []market.Candle {
	out := candles[:0]
	for i, c := range candles {
		if i > 0 && c.Time.Equal(out[len(out)-1].Time) {
			continue
		}
		out = append(out, c)
	}
	return out
}
