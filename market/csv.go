package market

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ReadCandlesCSV reads canonical candle CSV rows:
//
//	time,open,high,low,close,volume
//
// where time is RFC3339, RFC3339Nano or unix milliseconds.
// A header row ("time,...") is allowed. Empty rows are skipped.
func ReadCandlesCSV(r io.Reader) ([]Candle, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	var out []Candle
	sawFirst := false
	for {
		row, err := cr.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		if len(row) == 0 || (len(row) == 1 && strings.TrimSpace(row[0]) == "") {
			continue
		}

		// Allow a single header row
		if !sawFirst {
			sawFirst = true
			if strings.EqualFold(strings.TrimSpace(row[0]), "time") {
				continue
			}
		}

		c, err := parseCandleRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
}

func parseCandleRow(row []string) (Candle, error) {
	if len(row) < 6 {
		return Candle{}, fmt.Errorf("bad row (need time,open,high,low,close,volume): %v", row)
	}

	t, err := parseTime(strings.TrimSpace(row[0]))
	if err != nil {
		return Candle{}, err
	}

	var vals [5]float64
	for i := range vals {
		s := strings.TrimSpace(row[i+1])
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Candle{}, fmt.Errorf("bad number %q: %w", s, err)
		}
		vals[i] = v
	}

	return Candle{
		Time:   t,
		Open:   vals[0],
		High:   vals[1],
		Low:    vals[2],
		Close:  vals[3],
		Volume: vals[4],
	}, nil
}

func parseTime(ts string) (time.Time, error) {
	if ms, err := strconv.ParseInt(ts, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		t2, err2 := time.Parse(time.RFC3339Nano, ts)
		if err2 != nil {
			return time.Time{}, fmt.Errorf("bad time %q: %w", ts, err)
		}
		t = t2
	}
	return t.UTC(), nil
}

// CSVHistory serves candles from <Dir>/<SYMBOL>.csv files. It is the
// offline counterpart of the exchange client.
type CSVHistory struct {
	Dir string
}

func NewCSVHistory(dir string) *CSVHistory {
	return &CSVHistory{Dir: dir}
}

func (h *CSVHistory) ResolveSymbol(coin string) (string, error) {
	return ResolveSymbol(coin)
}

// History returns the most recent limit candles for symbol. The interval is
// whatever the file was recorded at.
func (h *CSVHistory) History(ctx context.Context, symbol, interval string, limit int) ([]Candle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := filepath.Join(h.Dir, symbol+".csv")
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("no data file for %s: %w", symbol, ErrDataUnavailable)
		}
		return nil, err
	}
	defer f.Close()

	candles, err := ReadCandlesCSV(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return Tail(candles, limit), nil
}

// Price returns the last recorded close for coin.
func (h *CSVHistory) Price(ctx context.Context, coin string) (float64, error) {
	symbol, err := h.ResolveSymbol(coin)
	if err != nil {
		return 0, err
	}
	candles, err := h.History(ctx, symbol, "", 1)
	if err != nil {
		return 0, err
	}
	if len(candles) == 0 {
		return 0, fmt.Errorf("no candles for %s: %w", symbol, ErrDataUnavailable)
	}
	return candles[len(candles)-1].Close, nil
}

// WriteCandlesCSV writes candles in the format ReadCandlesCSV accepts.
func WriteCandlesCSV(w io.Writer, candles []Candle) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"time", "open", "high", "low", "close", "volume"}); err != nil {
		return err
	}
	for _, c := range candles {
		if err := cw.Write([]string{
			c.Time.UTC().Format(time.RFC3339),
			f(c.Open),
			f(c.High),
			f(c.Low),
			f(c.Close),
			f(c.Volume),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', -1, 64)
}
