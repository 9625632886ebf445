// Package pricing values token amounts in USD for display in the ledger.
package pricing

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/tx-ledger/internal/types"
)

// Oracle returns the USD price of one unit of a token
type Oracle interface {
	PriceUSD(ctx context.Context, symbol string, chainID types.ChainID) (decimal.Decimal, bool)
}

// StaticOracle serves prices from a fixed table keyed by upper-cased symbol.
// Prices are chain independent.
type StaticOracle struct {
	mu     sync.RWMutex
	prices map[string]decimal.Decimal
}

// NewStaticOracle parses a symbol to price table
func NewStaticOracle(prices map[string]string) (*StaticOracle, error) {
	o := &StaticOracle{prices: make(map[string]decimal.Decimal, len(prices))}
	for symbol, raw := range prices {
		price, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("price for %s: %w", symbol, err)
		}
		if price.IsNegative() {
			return nil, fmt.Errorf("price for %s is negative", symbol)
		}
		o.prices[strings.ToUpper(symbol)] = price
	}
	return o, nil
}

// Set replaces the price of a symbol
func (o *StaticOracle) Set(symbol string, price decimal.Decimal) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.prices[strings.ToUpper(symbol)] = price
}

// PriceUSD implements Oracle
func (o *StaticOracle) PriceUSD(_ context.Context, symbol string, _ types.ChainID) (decimal.Decimal, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	p, ok := o.prices[strings.ToUpper(symbol)]
	return p, ok
}

// ScaleAmount converts a raw integer token amount into whole units
func ScaleAmount(raw string, decimals int) (decimal.Decimal, error) {
	n, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok {
		return decimal.Zero, fmt.Errorf("invalid integer amount %q", raw)
	}
	return decimal.NewFromBigInt(n, int32(-decimals)), nil
}

// Value prices an amount. The second result is false when the oracle has no price.
func Value(ctx context.Context, oracle Oracle, symbol string, chainID types.ChainID, amount decimal.Decimal) (decimal.Decimal, bool) {
	if oracle == nil {
		return decimal.Zero, false
	}
	price, ok := oracle.PriceUSD(ctx, symbol, chainID)
	if !ok {
		return decimal.Zero, false
	}
	return amount.Mul(price), true
}

// FormatUSD renders a value the way ledger entries display it, e.g. "$1,234.56"
func FormatUSD(v decimal.Decimal) string {
	sign := ""
	if v.IsNegative() {
		sign = "-"
		v = v.Neg()
	}
	fixed := v.StringFixed(2)
	whole, frac, _ := strings.Cut(fixed, ".")

	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return sign + "$" + b.String() + "." + frac
}

// FormatAmount trims a scaled amount to at most six decimal places
func FormatAmount(v decimal.Decimal) string {
	return v.Round(6).String()
}
