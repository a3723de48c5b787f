// Package trigger implements the per-symbol conditional-order registry:
// two btree-ordered indexes (above/below) of FIFO buckets keyed by
// trigger price, trailing-stop water-mark tracking, iceberg slice
// re-issuance, and OCO pairing, per spec §4.3.
package trigger

import (
	"container/list"
	"sync"

	"github.com/google/btree"

	"github.com/clobcore/matching-engine/internal/domain/amount"
	orderv1 "github.com/clobcore/matching-engine/internal/domain/order/v1"
	"github.com/clobcore/matching-engine/pkg/logger"
)

type bucketItem struct {
	price  amount.Amount
	orders *list.List // FIFO of *orderv1.Order, tie-broken by accepted_ts
}

func bucketLess(a, b bucketItem) bool {
	return a.price.LessThan(b.price)
}

type location struct {
	bucket    *bucketItem
	elem      *list.Element
	direction string // "above" or "below"
}

// Registry is the concrete per-symbol trigger registry.
type Registry struct {
	mu sync.Mutex

	above *btree.BTreeG[bucketItem] // fire when last-trade price >= key
	below *btree.BTreeG[bucketItem] // fire when last-trade price <= key

	locations map[int64]*location

	trailingStops map[int64]*orderv1.Order

	icebergs map[int64]*orderv1.Order // orderID -> original (hidden-size) order

	ocoPairs map[int64]int64

	logger *logger.Logger
}

// New builds an empty registry for one symbol.
func New(log *logger.Logger) *Registry {
	return &Registry{
		above:         btree.NewG(32, bucketLess),
		below:         btree.NewG(32, bucketLess),
		locations:     make(map[int64]*location),
		trailingStops: make(map[int64]*orderv1.Order),
		icebergs:      make(map[int64]*orderv1.Order),
		ocoPairs:      make(map[int64]int64),
		logger:        log,
	}
}

func (r *Registry) treeFor(direction string) *btree.BTreeG[bucketItem] {
	if direction == "above" {
		return r.above
	}
	return r.below
}

// Add registers a pending conditional order into its index.
func (r *Registry) Add(o *orderv1.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.addLocked(o)
}

func (r *Registry) addLocked(o *orderv1.Order) error {
	direction := o.EffectiveTriggerDirection()
	price := o.EffectiveTriggerPrice()

	bucket := r.getOrInsertBucketPtr(direction, price)
	elem := bucket.orders.PushBack(o)
	r.locations[o.ID] = &location{bucket: bucket, elem: elem, direction: direction}

	if o.Type == orderv1.TrailingStop {
		r.trailingStops[o.ID] = o
	}
	o.State = orderv1.PendingTrigger
	return nil
}

// getOrInsertBucketPtr returns a stable pointer to the bucket stored in
// the tree (btree.BTreeG stores values, not pointers, so a bucket is
// kept alive via a pointer wrapper the tree's copy and locations both
// reference through the same *list.List, which is itself a pointer).
func (r *Registry) getOrInsertBucketPtr(direction string, price amount.Amount) *bucketItem {
	tree := r.treeFor(direction)
	key := bucketItem{price: price}
	if existing, ok := tree.Get(key); ok {
		return &existing
	}
	b := bucketItem{price: price, orders: list.New()}
	tree.ReplaceOrInsert(b)
	return &b
}

// Remove extracts a pending order by id.
func (r *Registry) Remove(orderID int64) (*orderv1.Order, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(orderID)
}

func (r *Registry) removeLocked(orderID int64) (*orderv1.Order, bool) {
	loc, ok := r.locations[orderID]
	if !ok {
		return nil, false
	}
	o := loc.elem.Value.(*orderv1.Order)
	loc.bucket.orders.Remove(loc.elem)
	if loc.bucket.orders.Len() == 0 {
		r.treeFor(loc.direction).Delete(bucketItem{price: loc.bucket.price})
	}
	delete(r.locations, orderID)
	delete(r.trailingStops, orderID)
	return o, true
}

// OnLastTrade implements §4.3 steps 1-3: fire above/below indexes in
// (trigger_price, accepted_ts) order, then recompute trailing-stop water
// marks and reinsert any whose effective trigger moved.
func (r *Registry) OnLastTrade(price amount.Amount) []*orderv1.Order {
	r.mu.Lock()
	defer r.mu.Unlock()

	var fired []*orderv1.Order

	for {
		var hit *bucketItem
		r.above.Ascend(func(b bucketItem) bool {
			if b.price.GreaterThan(price) {
				return false
			}
			hit = &b
			return false
		})
		if hit == nil {
			break
		}
		fired = append(fired, r.drainBucket(hit, "above")...)
	}

	for {
		var hit *bucketItem
		r.below.Descend(func(b bucketItem) bool {
			if b.price.LessThan(price) {
				return false
			}
			hit = &b
			return false
		})
		if hit == nil {
			break
		}
		fired = append(fired, r.drainBucket(hit, "below")...)
	}

	for id, o := range r.trailingStops {
		moved := updateWaterMark(o, price)
		if !moved {
			continue
		}
		r.removeLocked(id)
		_ = r.addLocked(o) // re-add recomputes direction/price and re-registers as trailing stop
	}

	for _, o := range fired {
		o.State = orderv1.Active
	}
	return fired
}

// drainBucket extracts every order in a bucket in FIFO (accepted_ts)
// order, which is how they were enqueued.
func (r *Registry) drainBucket(b *bucketItem, direction string) []*orderv1.Order {
	var out []*orderv1.Order
	for e := b.orders.Front(); e != nil; {
		next := e.Next()
		o := e.Value.(*orderv1.Order)
		delete(r.locations, o.ID)
		delete(r.trailingStops, o.ID)
		out = append(out, o)
		e = next
	}
	r.treeFor(direction).Delete(bucketItem{price: b.price})
	return out
}

// updateWaterMark recomputes StopPrice from the running high/low-water
// mark exactly per TrailingStopOrder.update_trail: the stop only ever
// moves in the favourable direction. Returns true if StopPrice changed.
func updateWaterMark(o *orderv1.Order, lastPrice amount.Amount) bool {
	if o.WaterMark == nil {
		wm := lastPrice
		o.WaterMark = &wm
	}

	if o.Side == orderv1.Sell {
		if lastPrice.GreaterThan(*o.WaterMark) {
			o.WaterMark = &lastPrice
		}
	} else {
		if lastPrice.LessThan(*o.WaterMark) {
			o.WaterMark = &lastPrice
		}
	}

	newStop, ok := o.TrailingStopPriceFrom(*o.WaterMark)
	if !ok {
		return false
	}

	old := o.StopPrice
	if old != nil && old.Equal(newStop) {
		return false
	}
	if old != nil {
		if o.Side == orderv1.Sell && !newStop.GreaterThan(*old) {
			return false
		}
		if o.Side == orderv1.Buy && !newStop.LessThan(*old) {
			return false
		}
	}
	o.StopPrice = &newStop
	return true
}

// RegisterIceberg tracks the full hidden order for slice re-issuance.
func (r *Registry) RegisterIceberg(o *orderv1.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.icebergs[o.ID] = o
}

// NextSlice carves the next display slice, matching get_next_slice: the
// final slice is min(display_qty, remaining), and an exhausted iceberg
// yields nothing. The returned order is a NEW resting handle with a
// fresh accepted_ts, deliberately losing time priority.
func (r *Registry) NextSlice(orderID int64, freshAcceptedTs int64) (*orderv1.Order, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.icebergs[orderID]
	if !ok {
		return nil, false
	}
	remaining := o.RemainingQty().Sub(o.DisplayedQty)
	if remaining.IsZero() || remaining.IsNeg() {
		delete(r.icebergs, orderID)
		return nil, false
	}
	sliceQty := amount.Min(*o.DisplayQty, remaining)
	o.DisplayedQty = o.DisplayedQty.Add(sliceQty)

	slice := &orderv1.Order{
		ID:          o.ID,
		UserID:      o.UserID,
		Symbol:      o.Symbol,
		Side:        o.Side,
		Type:        orderv1.Iceberg,
		Qty:         sliceQty,
		LimitPrice:  o.LimitPrice,
		TimeInForce: o.TimeInForce,
		State:       orderv1.Active,
		AcceptedTs:  freshAcceptedTs,
	}
	return slice, true
}

// AllPending walks both indexes and returns every order still waiting
// on a trigger.
func (r *Registry) AllPending() []*orderv1.Order {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*orderv1.Order
	walk := func(b bucketItem) bool {
		for e := b.orders.Front(); e != nil; e = e.Next() {
			out = append(out, e.Value.(*orderv1.Order))
		}
		return true
	}
	r.above.Ascend(walk)
	r.below.Ascend(walk)
	return out
}

// RegisterOCO links two order ids as an OCO pair.
func (r *Registry) RegisterOCO(legA, legB int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ocoPairs[legA] = legB
	r.ocoPairs[legB] = legA
}

// ResolveOCO reports and forgets the sibling to cancel.
func (r *Registry) ResolveOCO(orderID int64) (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sib, ok := r.ocoPairs[orderID]
	if !ok {
		return 0, false
	}
	delete(r.ocoPairs, orderID)
	delete(r.ocoPairs, sib)
	return sib, true
}
