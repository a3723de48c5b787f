// Package ledger implements the shared, cross-symbol account balance
// ledger of spec §4.2: fine-grained per-(account, asset) locking with a
// strict ascending lock order in SettleTrade so that no two symbol
// engines touching overlapping accounts can deadlock.
package ledger

import (
	"sort"
	"sync"

	"github.com/clobcore/matching-engine/internal/domain/amount"
	ledgerv1 "github.com/clobcore/matching-engine/internal/domain/ledger/v1"
	"github.com/clobcore/matching-engine/internal/domain/market"
	"github.com/clobcore/matching-engine/pkg/logger"
)

type entry struct {
	mu        sync.Mutex
	available amount.Amount
	locked    amount.Amount
}

// Ledger is the concrete, process-wide balance store.
type Ledger struct {
	mu       sync.RWMutex
	balances map[string]*entry
	logger   *logger.Logger
}

// New builds an empty ledger. Balances are created lazily on first
// access, per spec §3's lifecycle note.
func New(log *logger.Logger) *Ledger {
	return &Ledger{
		balances: make(map[string]*entry),
		logger:   log,
	}
}

func key(account string, asset market.Asset) string {
	return account + "|" + string(asset)
}

func (l *Ledger) entryFor(account string, asset market.Asset) *entry {
	k := key(account, asset)

	l.mu.RLock()
	e, ok := l.balances[k]
	l.mu.RUnlock()
	if ok {
		return e
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok = l.balances[k]; ok {
		return e
	}
	e = &entry{}
	l.balances[k] = e
	return e
}

// Balance returns a snapshot read of one account's holding of one asset.
func (l *Ledger) Balance(account string, asset market.Asset) ledgerv1.Balance {
	e := l.entryFor(account, asset)
	e.mu.Lock()
	defer e.mu.Unlock()
	return ledgerv1.Balance{Available: e.available, Locked: e.locked}
}

// Reserve moves amt from available to locked.
func (l *Ledger) Reserve(account string, asset market.Asset, amt amount.Amount) error {
	e := l.entryFor(account, asset)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.available.LessThan(amt) {
		return &ledgerv1.InsufficientError{Account: account, Asset: asset}
	}
	e.available = e.available.Sub(amt)
	e.locked = e.locked.Add(amt)
	return nil
}

// Release is the inverse of Reserve.
func (l *Ledger) Release(account string, asset market.Asset, amt amount.Amount) error {
	e := l.entryFor(account, asset)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.locked.LessThan(amt) {
		return &ledgerv1.FatalError{Reason: "release exceeds locked balance for " + key(account, asset)}
	}
	e.locked = e.locked.Sub(amt)
	e.available = e.available.Add(amt)
	return nil
}

// Mint credits available balance. Not reachable from the matching hot
// path; used only by external custody crediting deposits.
func (l *Ledger) Mint(account string, asset market.Asset, amt amount.Amount) error {
	e := l.entryFor(account, asset)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.available = e.available.Add(amt)
	return nil
}

// Burn debits available balance. Not reachable from the matching hot
// path; used only by external custody debiting withdrawals.
func (l *Ledger) Burn(account string, asset market.Asset, amt amount.Amount) error {
	e := l.entryFor(account, asset)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.available.LessThan(amt) {
		return &ledgerv1.InsufficientError{Account: account, Asset: asset}
	}
	e.available = e.available.Sub(amt)
	return nil
}

// legMutation identifies one of the four accounts touched by a trade
// settlement, used only to establish the ascending lock order.
type legMutation struct {
	k string
	e *entry
}

// SettleTrade performs the four-legged atomic swap: buyer's locked quote
// moves to seller's available quote, seller's locked base moves to
// buyer's available base. All four mutations succeed or none do; any
// failure here is fatal per §4.2 and must halt the owning symbol engine.
func (l *Ledger) SettleTrade(t ledgerv1.Trade) error {
	notional := t.Price.Mul(t.Qty)

	buyerQuote := l.entryFor(t.BuyerAcct, t.Symbol.Quote)
	buyerBase := l.entryFor(t.BuyerAcct, t.Symbol.Base)
	sellerBase := l.entryFor(t.SellerAcct, t.Symbol.Base)
	sellerQuote := l.entryFor(t.SellerAcct, t.Symbol.Quote)

	legs := []legMutation{
		{k: key(t.BuyerAcct, t.Symbol.Quote), e: buyerQuote},
		{k: key(t.BuyerAcct, t.Symbol.Base), e: buyerBase},
		{k: key(t.SellerAcct, t.Symbol.Base), e: sellerBase},
		{k: key(t.SellerAcct, t.Symbol.Quote), e: sellerQuote},
	}
	sort.Slice(legs, func(i, j int) bool { return legs[i].k < legs[j].k })

	// de-duplicate: buyer and seller never share an asset pair in the
	// same trade (self-trade is prevented upstream), but guard anyway.
	seen := make(map[*entry]bool, 4)
	var locked []*entry
	for _, leg := range legs {
		if seen[leg.e] {
			continue
		}
		seen[leg.e] = true
		leg.e.mu.Lock()
		locked = append(locked, leg.e)
	}
	defer func() {
		for i := len(locked) - 1; i >= 0; i-- {
			locked[i].mu.Unlock()
		}
	}()

	if buyerQuote.locked.LessThan(notional) {
		return &ledgerv1.FatalError{Reason: "buyer locked quote insufficient for settlement"}
	}
	if sellerBase.locked.LessThan(t.Qty) {
		return &ledgerv1.FatalError{Reason: "seller locked base insufficient for settlement"}
	}

	buyerQuote.locked = buyerQuote.locked.Sub(notional)
	buyerBase.available = buyerBase.available.Add(t.Qty)
	sellerBase.locked = sellerBase.locked.Sub(t.Qty)
	sellerQuote.available = sellerQuote.available.Add(notional)

	return nil
}
