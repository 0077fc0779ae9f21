// market/instruments.go
package market

import (
	"fmt"
	"strings"
)

// Symbols maps coin ids to exchange trading pairs.
var Symbols = map[string]string{
	"bitcoin":  "BTCUSDT",
	"ethereum": "ETHUSDT",
	"pepe":     "PEPEUSDT",
	"solana":   "SOLUSDT",
	"ripple":   "XRPUSDT",
	"dogecoin": "DOGEUSDT",
	"cardano":  "ADAUSDT",
	"polkadot": "DOTUSDT",
}

// ResolveSymbol maps a coin id to its trading pair. Inputs that are already
// upper-case are taken to be symbols.
func ResolveSymbol(coin string) (string, error) {
	coin = strings.TrimSpace(coin)
	if coin == "" {
		return "", Invalid("coin", "must not be empty")
	}
	if sym, ok := Symbols[strings.ToLower(coin)]; ok {
		return sym, nil
	}
	if coin == strings.ToUpper(coin) {
		return coin, nil
	}
	return "", fmt.Errorf("no market symbol for %q: %w", coin, ErrDataUnavailable)
}

// CoinForSymbol is the reverse of ResolveSymbol for known coins.
func CoinForSymbol(symbol string) (string, bool) {
	for coin, sym := range Symbols {
		if sym == symbol {
			return coin, true
		}
	}
	return "", false
}
