// Package market holds the static, config-loaded description of tradable
// assets and symbols: tick/lot sizing and the other per-symbol limits
// the order book and risk gate validate against.
package market

import "github.com/clobcore/matching-engine/internal/domain/amount"

// Asset is an opaque currency/instrument identifier, e.g. "BTC", "USD".
type Asset string

// Symbol is an ordered trading pair, e.g. BTC/USD.
type Symbol struct {
	Base  Asset
	Quote Asset
}

// String renders the canonical "BASE/QUOTE" form.
func (s Symbol) String() string {
	return string(s.Base) + "/" + string(s.Quote)
}

// Config is the static, validated configuration for one symbol, loaded
// once at startup and never mutated on the hot path.
type Config struct {
	Symbol             Symbol
	TickSize           amount.Amount
	LotSize            amount.Amount
	MinNotional        amount.Amount
	MaxOrderQty        amount.Amount
	ProtectionBandBps  int64
}

// RoundsToTick reports whether price is an exact multiple of TickSize.
func (c Config) RoundsToTick(price amount.Amount) bool {
	return isMultiple(price, c.TickSize)
}

// RoundsToLot reports whether qty is an exact multiple of LotSize.
func (c Config) RoundsToLot(qty amount.Amount) bool {
	return isMultiple(qty, c.LotSize)
}

func isMultiple(v, step amount.Amount) bool {
	if step.IsZero() {
		return true
	}
	return v.Mod(step).IsZero()
}
