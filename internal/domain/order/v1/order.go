// Package orderv1 defines the Order record, the closed sum type over the
// eight order kinds, and the state machine each kind drives through. It
// is pure data: no matching or settlement logic lives here, only the
// shape and the transition predicates every other package consults.
package orderv1

import (
	"github.com/clobcore/matching-engine/internal/domain/amount"
	"github.com/clobcore/matching-engine/internal/domain/market"
)

// Side is which side of the book an order rests or crosses on.
type Side int

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Buy {
		return "buy"
	}
	return "sell"
}

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// Type is the closed sum type over the eight order kinds the state
// machine of §4.4 names. There is no open-ended plugin surface; adding a
// kind means adding a case everywhere this type is switched on.
type Type int

const (
	Limit Type = iota
	Market
	Stop
	StopLimit
	TrailingStop
	TakeProfit
	Iceberg
	OCOLeg
)

func (t Type) String() string {
	switch t {
	case Limit:
		return "limit"
	case Market:
		return "market"
	case Stop:
		return "stop"
	case StopLimit:
		return "stop_limit"
	case TrailingStop:
		return "trailing_stop"
	case TakeProfit:
		return "take_profit"
	case Iceberg:
		return "iceberg"
	case OCOLeg:
		return "oco_leg"
	default:
		return "unknown"
	}
}

// IsConditional reports whether orders of this type begin life in the
// trigger registry rather than directly on the book.
func (t Type) IsConditional() bool {
	switch t {
	case Stop, StopLimit, TrailingStop, TakeProfit:
		return true
	default:
		return false
	}
}

// TimeInForce controls how unfilled remainder is handled after the
// aggression loop.
type TimeInForce int

const (
	GTC TimeInForce = iota
	IOC
	FOK
	DAY
)

func (tif TimeInForce) String() string {
	switch tif {
	case GTC:
		return "GTC"
	case IOC:
		return "IOC"
	case FOK:
		return "FOK"
	case DAY:
		return "DAY"
	default:
		return "unknown"
	}
}

// State is a node in the per-type state machine of §4.4.
type State int

const (
	New State = iota
	PendingTrigger
	Active
	PartiallyFilled
	Filled
	Cancelled
	Rejected
	Expired
)

func (s State) String() string {
	switch s {
	case New:
		return "new"
	case PendingTrigger:
		return "pending_trigger"
	case Active:
		return "active"
	case PartiallyFilled:
		return "partially_filled"
	case Filled:
		return "filled"
	case Cancelled:
		return "cancelled"
	case Rejected:
		return "rejected"
	case Expired:
		return "expired"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether no further command may mutate this order.
func (s State) IsTerminal() bool {
	switch s {
	case Filled, Cancelled, Rejected, Expired:
		return true
	default:
		return false
	}
}

// Flags are the order-entry toggles that are not their own field.
type Flags struct {
	PostOnly bool
}

// Order is the central mutable record of the engine. It is owned
// exclusively by its symbol's executor for its whole lifetime.
type Order struct {
	ID     int64
	UserID string
	Symbol market.Symbol
	Side   Side
	Type   Type

	Qty         amount.Amount
	FilledQty   amount.Amount
	LimitPrice  *amount.Amount
	StopPrice   *amount.Amount
	TrailAmount *amount.Amount
	TrailPct    *amount.Amount
	DisplayQty  *amount.Amount

	OCOSiblingID *int64

	TimeInForce TimeInForce
	Flags       Flags
	DeadlineNs  *int64

	State State

	AcceptedTs int64 // monotonic nanoseconds, the sole time-priority key

	ReservedBase  amount.Amount
	ReservedQuote amount.Amount

	// DisplayedQty tracks how much of an iceberg's hidden size is
	// currently represented by the resting slice; re-issuance carves
	// the next slice from Qty-FilledQty-DisplayedQty.
	DisplayedQty amount.Amount

	// WaterMark is the running high (sell trailing-stop) or low (buy
	// trailing-stop) extreme used to recompute StopPrice.
	WaterMark *amount.Amount

	RejectReason string
}

// RemainingQty is qty - filled_qty; the invariant 0<=filled<=qty is
// maintained by every mutator in this package and in usecase/orderbook.
func (o *Order) RemainingQty() amount.Amount {
	return o.Qty.Sub(o.FilledQty)
}

// IsBuy/IsSell are small readability helpers mirrored from the teacher's
// orderbookv1.Order.
func (o *Order) IsBuy() bool  { return o.Side == Buy }
func (o *Order) IsSell() bool { return o.Side == Sell }

// IsFilled reports whether the order has no remaining quantity.
func (o *Order) IsFilled() bool {
	return o.RemainingQty().IsZero()
}

// ApplyFill records qty filled against this order and advances state.
func (o *Order) ApplyFill(qty amount.Amount) {
	o.FilledQty = o.FilledQty.Add(qty)
	if o.IsFilled() {
		o.State = Filled
	} else if o.FilledQty.IsPos() {
		o.State = PartiallyFilled
	}
}

// EffectiveTriggerDirection reports whether this conditional order fires
// when price rises to meet its trigger ("above") or falls to meet it
// ("below"), per §4.3's two-index design.
func (o *Order) EffectiveTriggerDirection() string {
	switch o.Type {
	case Stop, TrailingStop:
		if o.Side == Sell {
			return "below"
		}
		return "above"
	case TakeProfit:
		if o.Side == Sell {
			return "above"
		}
		return "below"
	default:
		return ""
	}
}

// EffectiveTriggerPrice returns the price this conditional order compares
// against the last trade price. For trailing stops this is derived from
// WaterMark rather than a fixed StopPrice.
func (o *Order) EffectiveTriggerPrice() amount.Amount {
	if o.Type == TrailingStop && o.StopPrice != nil {
		return *o.StopPrice
	}
	if o.StopPrice != nil {
		return *o.StopPrice
	}
	return amount.Zero
}

// TrailingStopPriceFrom computes the stop price a trailing_stop implies
// at a given water-mark price, from TrailAmount or TrailPct: a sell
// trails below the high-water mark, a buy trails above the low-water
// mark. Shared by the trigger registry's per-trade recomputation and by
// whatever first registers the order, so a freshly-submitted trailing
// stop starts with a real trigger price instead of the zero value.
func (o *Order) TrailingStopPriceFrom(waterMark amount.Amount) (amount.Amount, bool) {
	if o.TrailAmount != nil {
		if o.Side == Sell {
			return waterMark.Sub(*o.TrailAmount), true
		}
		return waterMark.Add(*o.TrailAmount), true
	}
	if o.TrailPct != nil {
		frac := o.TrailPct.Div(amount.FromInt64(100))
		delta := waterMark.Mul(frac)
		if o.Side == Sell {
			return waterMark.Sub(delta), true
		}
		return waterMark.Add(delta), true
	}
	return amount.Zero, false
}
