// Package commandv1 defines the fixed command records delivered to a
// symbol engine from the gateway, matching §6's command surface exactly.
package commandv1

import (
	"github.com/clobcore/matching-engine/internal/domain/amount"
	orderv1 "github.com/clobcore/matching-engine/internal/domain/order/v1"
)

// Submit requests a new order be accepted onto a symbol engine.
type Submit struct {
	ClientID     string
	UserID       string
	Symbol       string
	Side         orderv1.Side
	Type         orderv1.Type
	Qty          amount.Amount
	LimitPrice   *amount.Amount
	StopPrice    *amount.Amount
	TrailAmount  *amount.Amount
	TrailPercent *amount.Amount
	DisplayQty   *amount.Amount
	OCOSiblingOf *Submit // paired leg, consumed by the engine's OCO handling
	TimeInForce  orderv1.TimeInForce
	Flags        orderv1.Flags
	DeadlineNs   *int64
}

// Cancel requests removal of a resting or pending order.
type Cancel struct {
	UserID  string
	OrderID int64
}

// Modify requests an in-place change to qty and/or price.
type Modify struct {
	UserID   string
	OrderID  int64
	NewQty   *amount.Amount
	NewPrice *amount.Amount
}

// Tick is session-boundary maintenance: expires DAY orders and lets the
// engine perform periodic bookkeeping without an external event.
type Tick struct {
	NowNs int64
}
