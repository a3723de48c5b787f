// Package ledgerv1 defines the per-(account, asset) balance ledger
// contract: reservation, release, atomic trade settlement, and the
// mint/burn operations reachable only from outside the matching hot
// path.
package ledgerv1

import (
	"github.com/clobcore/matching-engine/internal/domain/amount"
	"github.com/clobcore/matching-engine/internal/domain/market"
)

// Balance is the read view of one account's holding of one asset.
type Balance struct {
	Available amount.Amount
	Locked    amount.Amount
}

// Trade is the minimal information settle_trade needs to move the four
// legs; it intentionally does not depend on orderbookv1 to keep this
// package leaf-level per the engine's layering.
type Trade struct {
	Symbol     market.Symbol
	Price      amount.Amount
	Qty        amount.Amount
	BuyerAcct  string
	SellerAcct string
}

// InsufficientError is the checked, non-fatal failure Reserve returns
// when available balance cannot cover the requested amount.
type InsufficientError struct {
	Account string
	Asset   market.Asset
}

func (e *InsufficientError) Error() string {
	return "ledger: insufficient available balance for " + e.Account + "/" + string(e.Asset)
}

// FatalError signals an invariant breach inside the ledger: negative
// balance, conservation failure, or overflow. The engine must treat this
// as fatal and halt the owning symbol; it is never a client-facing
// Rejected.
type FatalError struct {
	Reason string
}

func (e *FatalError) Error() string { return "ledger: fatal: " + e.Reason }

// Ledger is the contract the matching engine and risk gate depend on.
// A single Ledger instance is shared across all symbol engines.
type Ledger interface {
	Balance(account string, asset market.Asset) Balance
	Reserve(account string, asset market.Asset, amt amount.Amount) error
	Release(account string, asset market.Asset, amt amount.Amount) error
	SettleTrade(t Trade) error
	Mint(account string, asset market.Asset, amt amount.Amount) error
	Burn(account string, asset market.Asset, amt amount.Amount) error
}
