// Package riskv1 defines the stateless-per-request pre-trade risk check
// contract of spec §4.5, grounded on the original RiskEngine's ordered
// check sequence (profile -> enabled -> halt -> order size -> position
// -> daily trades -> rate limit -> daily loss).
package riskv1

import "github.com/clobcore/matching-engine/internal/domain/amount"

// Tier is a named risk tier's limit set, loaded from config.
type Tier struct {
	Name            string
	MaxPosition     amount.Amount
	MaxDailyLoss    amount.Amount
	MaxOrderSize    amount.Amount
	MaxLeverage     amount.Amount
	MaxOpenOrders   int
	MaxDailyTrades  int
	RateLimitPerSec float64
	RateLimitBurst  int
}

// Profile is one user's risk configuration and tier assignment.
type Profile struct {
	UserID  string
	Tier    string
	Enabled bool
}

// CheckRequest is the data a pre-trade risk check needs; it never
// performs I/O and depends only on data local to the user.
type CheckRequest struct {
	UserID   string
	Symbol   string
	Side     string // "buy" or "sell"
	Qty      amount.Amount
	Price    amount.Amount
	HaltedSymbol bool
}

// Gate is the contract the matching engine consults synchronously
// between accepted_ts assignment and reservation.
//
//go:generate mockgen -source interface.go -destination=mock/interface_mock.go -package=riskv1_mock
type Gate interface {
	Check(req CheckRequest) error
	RecordFill(userID, symbol string, side string, qty, price amount.Amount)
	RecordRealizedLoss(userID string, loss amount.Amount)
	ResetDaily()
}
