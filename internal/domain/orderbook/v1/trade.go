// Package orderbookv1 defines the order-book domain types: the resting
// price level (a FIFO queue of order handles) and the Trade record a
// match produces. The matching algorithm itself lives in
// internal/usecase/orderbook, which is the package that actually mutates
// these structures under the owning symbol executor.
package orderbookv1

import (
	"container/list"

	"github.com/clobcore/matching-engine/internal/domain/amount"
	orderv1 "github.com/clobcore/matching-engine/internal/domain/order/v1"
)

// Trade is one execution produced by the matching loop. Price always
// equals the maker's resting limit_price. Maker is carried by pointer
// since a fully filled maker is already unlinked from the book's id map
// by the time Match returns; the engine needs it to settle and to
// release any unused reservation.
type Trade struct {
	ID         string
	MakerID    int64
	TakerID    int64
	Price      amount.Amount
	Qty        amount.Amount
	MakerSide  orderv1.Side
	Maker      *orderv1.Order
}

// PriceLevel is a FIFO queue of resting orders at one price. Orders is a
// container/list so cancel-by-handle is O(1) without scanning.
type PriceLevel struct {
	Price      amount.Amount
	TotalQty   amount.Amount
	Orders     *list.List // element.Value is *orderv1.Order
}

// NewPriceLevel builds an empty level at price.
func NewPriceLevel(price amount.Amount) *PriceLevel {
	return &PriceLevel{Price: price, TotalQty: amount.Zero, Orders: list.New()}
}

// PushBack appends an order to the tail of the FIFO queue and returns the
// list element so callers can store it for O(1) removal later.
func (l *PriceLevel) PushBack(o *orderv1.Order) *list.Element {
	l.TotalQty = l.TotalQty.Add(o.RemainingQty())
	return l.Orders.PushBack(o)
}

// Remove detaches the element from the queue, decrementing TotalQty by
// the order's remaining quantity at the time of removal.
func (l *PriceLevel) Remove(e *list.Element) {
	o := e.Value.(*orderv1.Order)
	l.TotalQty = l.TotalQty.Sub(o.RemainingQty())
	l.Orders.Remove(e)
}

// DecrementFilled reduces TotalQty to account for qty filled against an
// order that remains on the level (partial fill, not removed).
func (l *PriceLevel) DecrementFilled(qty amount.Amount) {
	l.TotalQty = l.TotalQty.Sub(qty)
}

// IsEmpty reports whether the level holds no orders.
func (l *PriceLevel) IsEmpty() bool {
	return l.Orders.Len() == 0
}

// DepthView is the aggregated {price, total_qty} pair returned by
// snapshot(depth n).
type DepthView struct {
	Price amount.Amount
	Qty   amount.Amount
}
