package orderbookv1

import (
	"github.com/clobcore/matching-engine/internal/domain/amount"
	orderv1 "github.com/clobcore/matching-engine/internal/domain/order/v1"
)

// MatchResult is everything a single match() call produced: the trades
// executed and the makers cancelled as a side effect of self-trade
// prevention. Book.Match leaves Rejected and RejectReason unset:
// post-only crossing is rejected by Insert, and the FOK dry run happens
// in the engine before Match is called.
type MatchResult struct {
	Trades       []Trade
	Rejected     bool // post-only crossed, or FOK dry-run failed
	RejectReason orderv1.RejectReason

	// SelfTradeCancels carries cancelled makers' ids, kept for callers
	// that only need identity.
	SelfTradeCancels []int64
	// SelfTradeCancelOrders carries the full cancelled maker orders, so
	// callers can release reservations without a second lookup.
	SelfTradeCancelOrders []*orderv1.Order
}

// OrderBook is the per-symbol contract the matching engine drives.
//
//go:generate mockgen -source interface.go -destination=mock/interface_mock.go -package=orderbookv1_mock
type OrderBook interface {
	Insert(o *orderv1.Order) error
	Cancel(orderID int64) (*orderv1.Order, error)
	BestBid() (amount.Amount, bool)
	BestAsk() (amount.Amount, bool)
	// ProtectionAdjustedWorstPrice is the worst price a market order on
	// side may marketably reach given the symbol's protection band,
	// used to size a market order's reservation consistently with how
	// far Match is willing to let it walk the book.
	ProtectionAdjustedWorstPrice(side orderv1.Side) (amount.Amount, bool)
	Match(taker *orderv1.Order) MatchResult
	Snapshot(depth int) (bids, asks []DepthView)
	OrderByID(orderID int64) (*orderv1.Order, bool)
	// AllResting returns every resting order, unordered. Used for
	// session-boundary DAY expiry scans and full-state snapshotting,
	// never on the per-command hot path.
	AllResting() []*orderv1.Order
}
