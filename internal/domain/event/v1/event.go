// Package eventv1 defines the append-only, per-symbol event stream of
// §4.4/§6. Every event carries its symbol, a contiguous per-symbol
// sequence number, and a wall-clock timestamp, and carries enough state
// to let an external journaler rebuild balances and books by replay.
package eventv1

import "github.com/clobcore/matching-engine/internal/domain/amount"

// Kind enumerates the outbound event types.
type Kind string

const (
	Accepted        Kind = "Accepted"
	Rejected        Kind = "Rejected"
	Resting         Kind = "Resting"
	Trade           Kind = "Trade"
	PartiallyFilled Kind = "PartiallyFilled"
	Filled          Kind = "Filled"
	Cancelled       Kind = "Cancelled"
	Triggered       Kind = "Triggered"
	Expired         Kind = "Expired"
	HaltedSymbol    Kind = "HaltedSymbol"
)

// Event is the single wire/record type for the whole outbound stream;
// fields not relevant to Kind are left zero.
type Event struct {
	Kind        Kind   `json:"kind"`
	Symbol      string `json:"symbol"`
	SequenceNum int64  `json:"sequenceNum"`
	WallClockNs int64  `json:"wallClockNs"`

	OrderID      int64  `json:"orderID,omitempty"`
	UserID       string `json:"userID,omitempty"`
	RejectReason string `json:"rejectReason,omitempty"`

	TradeID    string        `json:"tradeID,omitempty"`
	MakerID    int64         `json:"makerID,omitempty"`
	TakerID    int64         `json:"takerID,omitempty"`
	MakerSide  string        `json:"makerSide,omitempty"`
	Price      amount.Amount `json:"price,omitempty"`
	Qty        amount.Amount `json:"qty,omitempty"`
	FilledQty  amount.Amount `json:"filledQty,omitempty"`
	Remaining  amount.Amount `json:"remaining,omitempty"`

	HaltReason string `json:"haltReason,omitempty"`
}
