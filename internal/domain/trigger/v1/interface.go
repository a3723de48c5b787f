// Package triggerv1 defines the per-symbol trigger registry contract of
// spec §4.3: conditional-order indexing, trailing-stop water-mark
// recomputation, iceberg slice re-issue, and OCO pairing.
package triggerv1

import (
	"github.com/clobcore/matching-engine/internal/domain/amount"
	orderv1 "github.com/clobcore/matching-engine/internal/domain/order/v1"
)

// Registry is the per-symbol contract the matching engine consults after
// every trade to fire conditionals, recompute trailing stops, re-issue
// iceberg slices, and resolve OCO pairs.
//
//go:generate mockgen -source interface.go -destination=mock/interface_mock.go -package=triggerv1_mock
type Registry interface {
	// Add registers a pending conditional order (stop/stop_limit/
	// trailing_stop/take_profit) into the above- or below-index per
	// its EffectiveTriggerDirection.
	Add(o *orderv1.Order) error

	// Remove extracts a pending order by id, e.g. on Cancel.
	Remove(orderID int64) (*orderv1.Order, bool)

	// OnLastTrade runs one full pass of §4.3's numbered steps against a
	// new last-trade price: fires any now-in-the-money conditionals (in
	// strict trigger_price,accepted_ts order) and recomputes trailing
	// stop water marks, reinserting them if their effective trigger
	// price moved. Returns the orders promoted to active this pass.
	OnLastTrade(price amount.Amount) []*orderv1.Order

	// RegisterIceberg tracks a resting iceberg's full hidden size so
	// NextSlice can carve subsequent display slices.
	RegisterIceberg(o *orderv1.Order)

	// NextSlice carves the next display slice for an iceberg whose
	// current slice just fully filled, assigning it the given fresh
	// accepted_ts. Returns false if the iceberg is fully exhausted.
	NextSlice(orderID int64, freshAcceptedTs int64) (*orderv1.Order, bool)

	// RegisterOCO links two order ids as an OCO pair.
	RegisterOCO(legA, legB int64)

	// ResolveOCO reports the sibling id to cancel when orderID fills or
	// triggers, and forgets the pair.
	ResolveOCO(orderID int64) (siblingID int64, ok bool)

	// AllPending returns every order still waiting on a trigger,
	// unordered. Used for full-state snapshotting only.
	AllPending() []*orderv1.Order
}
