// Package orderbook implements the per-symbol price-time-priority book:
// two btree-ordered indexes of price levels, an O(1) id->handle map for
// cancel, and the aggression-loop matching algorithm of spec §4.1. One
// instance exists per symbol and is driven exclusively by that symbol's
// MatchingEngine goroutine; the mutex exists only so a snapshot reader
// on another goroutine can take a consistent read between commands, the
// same "snapshot served at a consistent point" contract the teacher's
// Orderbook.CreateSnapshot honours.
package orderbook

import (
	"container/list"
	"sync"

	"github.com/google/btree"
	"github.com/oklog/ulid/v2"

	"github.com/clobcore/matching-engine/internal/domain/amount"
	"github.com/clobcore/matching-engine/internal/domain/market"
	orderv1 "github.com/clobcore/matching-engine/internal/domain/order/v1"
	obv1 "github.com/clobcore/matching-engine/internal/domain/orderbook/v1"
	"github.com/clobcore/matching-engine/pkg/logger"
)

type levelItem struct {
	level *obv1.PriceLevel
}

func levelLess(a, b levelItem) bool {
	return a.level.Price.LessThan(b.level.Price)
}

type location struct {
	level *obv1.PriceLevel
	elem  *list.Element
	side  orderv1.Side
}

// Book is the concrete per-symbol OrderBook.
type Book struct {
	mu sync.RWMutex

	cfg    market.Config
	logger *logger.Logger

	bids *btree.BTreeG[levelItem] // ascending by price; best bid = Max
	asks *btree.BTreeG[levelItem] // ascending by price; best ask = Min

	orders map[int64]*location
}

// New builds an empty book for the given symbol configuration.
func New(cfg market.Config, log *logger.Logger) *Book {
	return &Book{
		cfg:    cfg,
		logger: log,
		bids:   btree.NewG(32, levelLess),
		asks:   btree.NewG(32, levelLess),
		orders: make(map[int64]*location),
	}
}

func (b *Book) treeFor(side orderv1.Side) *btree.BTreeG[levelItem] {
	if side == orderv1.Buy {
		return b.bids
	}
	return b.asks
}

func (b *Book) oppositeTreeFor(side orderv1.Side) *btree.BTreeG[levelItem] {
	return b.treeFor(side.Opposite())
}

func (b *Book) findOrCreateLevel(side orderv1.Side, price amount.Amount) *obv1.PriceLevel {
	tree := b.treeFor(side)
	key := levelItem{level: &obv1.PriceLevel{Price: price}}
	if existing, ok := tree.Get(key); ok {
		return existing.level
	}
	lvl := obv1.NewPriceLevel(price)
	tree.ReplaceOrInsert(levelItem{level: lvl})
	return lvl
}

func (b *Book) deleteLevelIfEmpty(side orderv1.Side, lvl *obv1.PriceLevel) {
	if lvl.IsEmpty() {
		b.treeFor(side).Delete(levelItem{level: lvl})
	}
}

// Insert places a resting order at the tail of its price level's FIFO
// queue. Returns TickSizeViolation/LotSizeViolation/PostOnlyCrossed per
// §4.1; callers are expected to have already run the aggression pass via
// Match for non-post-only orders.
func (b *Book) Insert(o *orderv1.Order) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if o.LimitPrice == nil {
		return orderv1.NewRejectError(orderv1.ReasonTickSizeViolation)
	}
	if !b.cfg.RoundsToTick(*o.LimitPrice) {
		return orderv1.NewRejectError(orderv1.ReasonTickSizeViolation)
	}
	if !b.cfg.RoundsToLot(o.RemainingQty()) {
		return orderv1.NewRejectError(orderv1.ReasonLotSizeViolation)
	}
	if o.Flags.PostOnly && b.crosses(o.Side, *o.LimitPrice) {
		return orderv1.NewRejectError(orderv1.ReasonPostOnlyCrossed)
	}

	lvl := b.findOrCreateLevel(o.Side, *o.LimitPrice)
	elem := lvl.PushBack(o)
	b.orders[o.ID] = &location{level: lvl, elem: elem, side: o.Side}
	if o.State != orderv1.PartiallyFilled {
		o.State = orderv1.Active
	}
	return nil
}

func (b *Book) crosses(side orderv1.Side, price amount.Amount) bool {
	if side == orderv1.Buy {
		if ask, ok := b.bestAskLocked(); ok {
			return price.GreaterThanOrEqual(ask)
		}
		return false
	}
	if bid, ok := b.bestBidLocked(); ok {
		return price.LessThanOrEqual(bid)
	}
	return false
}

// Cancel removes the order from its level, deleting the level if it is
// left empty, and returns the order so the engine can release its
// reservation and emit Cancelled.
func (b *Book) Cancel(orderID int64) (*orderv1.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	loc, ok := b.orders[orderID]
	if !ok {
		return nil, orderv1.NewRejectError(orderv1.ReasonUnknownOrder)
	}
	o := loc.elem.Value.(*orderv1.Order)
	loc.level.Remove(loc.elem)
	b.deleteLevelIfEmpty(loc.side, loc.level)
	delete(b.orders, orderID)
	return o, nil
}

// OrderByID is an O(1) lookup without mutating anything.
func (b *Book) OrderByID(orderID int64) (*orderv1.Order, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	loc, ok := b.orders[orderID]
	if !ok {
		return nil, false
	}
	return loc.elem.Value.(*orderv1.Order), true
}

func (b *Book) bestBidLocked() (amount.Amount, bool) {
	var out amount.Amount
	found := false
	b.bids.Descend(func(it levelItem) bool {
		out = it.level.Price
		found = true
		return false
	})
	return out, found
}

func (b *Book) bestAskLocked() (amount.Amount, bool) {
	var out amount.Amount
	found := false
	b.asks.Ascend(func(it levelItem) bool {
		out = it.level.Price
		found = true
		return false
	})
	return out, found
}

// BestBid returns the highest resting bid price, if any.
func (b *Book) BestBid() (amount.Amount, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bestBidLocked()
}

// BestAsk returns the lowest resting ask price, if any.
func (b *Book) BestAsk() (amount.Amount, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bestAskLocked()
}

// protectionBand is bps of best, the same amount Match's isMarketable
// adds to (buy) or subtracts from (sell) the best opposing price before
// deciding whether a market order may walk to a given level.
func (b *Book) protectionBand(best amount.Amount) amount.Amount {
	return best.Mul(amount.FromInt64(b.cfg.ProtectionBandBps)).Div(amount.FromInt64(10000))
}

// ProtectionAdjustedWorstPrice returns the worst price a market order on
// side may marketably reach: best_ask plus the protection band for a
// buy, best_bid minus the band for a sell. False if the opposing side is
// empty. Used to size a market order's reservation the same way Match
// sizes how far it is allowed to walk the book.
func (b *Book) ProtectionAdjustedWorstPrice(side orderv1.Side) (amount.Amount, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if side == orderv1.Buy {
		best, ok := b.bestAskLocked()
		if !ok {
			return amount.Zero, false
		}
		if b.cfg.ProtectionBandBps <= 0 {
			return best, true
		}
		return best.Add(b.protectionBand(best)), true
	}

	best, ok := b.bestBidLocked()
	if !ok {
		return amount.Zero, false
	}
	if b.cfg.ProtectionBandBps <= 0 {
		return best, true
	}
	return best.Sub(b.protectionBand(best)), true
}

// Match walks taker against the opposing side in best-price-first order,
// consuming each head level's FIFO queue, exactly per §4.1's numbered
// algorithm. It mutates taker and any matched makers in place; the
// caller (the engine) is responsible for ledger settlement and event
// emission for every trade/cancel this returns.
func (b *Book) Match(taker *orderv1.Order) obv1.MatchResult {
	b.mu.Lock()
	defer b.mu.Unlock()

	var result obv1.MatchResult
	opposing := b.oppositeTreeFor(taker.Side)

	// The band is measured from the opposing best at entry, the same bound
	// ProtectionAdjustedWorstPrice reports, not from each new best.
	entryAsk, hasAsk := b.bestAskLocked()
	entryBid, hasBid := b.bestBidLocked()
	isMarketable := func(makerPrice amount.Amount) bool {
		if taker.Type == orderv1.Market {
			if taker.Side == orderv1.Buy && b.cfg.ProtectionBandBps > 0 {
				if best, ok := entryAsk, hasAsk; ok {
					limit := best.Add(b.protectionBand(best))
					return makerPrice.LessThanOrEqual(limit)
				}
			}
			if taker.Side == orderv1.Sell && b.cfg.ProtectionBandBps > 0 {
				if best, ok := entryBid, hasBid; ok {
					limit := best.Sub(b.protectionBand(best))
					return makerPrice.GreaterThanOrEqual(limit)
				}
			}
			return true
		}
		if taker.LimitPrice == nil {
			return false
		}
		if taker.Side == orderv1.Buy {
			return makerPrice.LessThanOrEqual(*taker.LimitPrice)
		}
		return makerPrice.GreaterThanOrEqual(*taker.LimitPrice)
	}

	for !taker.IsFilled() {
		var head *obv1.PriceLevel
		if taker.Side == orderv1.Buy {
			opposing.Ascend(func(it levelItem) bool {
				head = it.level
				return false
			})
		} else {
			opposing.Descend(func(it levelItem) bool {
				head = it.level
				return false
			})
		}
		if head == nil {
			break
		}
		if !isMarketable(head.Price) {
			break
		}

		e := head.Orders.Front()
		for e != nil && !taker.IsFilled() {
			next := e.Next()
			maker := e.Value.(*orderv1.Order)

			if maker.UserID == taker.UserID {
				head.Remove(e)
				delete(b.orders, maker.ID)
				maker.State = orderv1.Cancelled
				maker.RejectReason = string(orderv1.ReasonSelfTradePrevention)
				result.SelfTradeCancels = append(result.SelfTradeCancels, maker.ID)
				result.SelfTradeCancelOrders = append(result.SelfTradeCancelOrders, maker)
				e = next
				continue
			}

			qty := amount.Min(taker.RemainingQty(), maker.RemainingQty())
			px := *maker.LimitPrice

			result.Trades = append(result.Trades, obv1.Trade{
				ID:        ulid.Make().String(),
				MakerID:   maker.ID,
				TakerID:   taker.ID,
				Price:     px,
				Qty:       qty,
				MakerSide: maker.Side,
				Maker:     maker,
			})

			maker.ApplyFill(qty)
			taker.ApplyFill(qty)
			head.DecrementFilled(qty)

			if maker.IsFilled() {
				head.Remove(e)
				delete(b.orders, maker.ID)
			}
			e = next
		}
		b.deleteLevelIfEmpty(taker.Side.Opposite(), head)
	}

	return result
}

// AllResting walks every price level on both sides and returns every
// resting order. O(n) in the number of resting orders; callers must not
// call this from the per-command hot path.
func (b *Book) AllResting() []*orderv1.Order {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []*orderv1.Order
	walk := func(it levelItem) bool {
		for e := it.level.Orders.Front(); e != nil; e = e.Next() {
			out = append(out, e.Value.(*orderv1.Order))
		}
		return true
	}
	b.bids.Ascend(walk)
	b.asks.Ascend(walk)
	return out
}

// Snapshot copies the top-n price levels per side with aggregated qty.
func (b *Book) Snapshot(depth int) (bids, asks []obv1.DepthView) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	count := 0
	b.bids.Descend(func(it levelItem) bool {
		if count >= depth {
			return false
		}
		bids = append(bids, obv1.DepthView{Price: it.level.Price, Qty: it.level.TotalQty})
		count++
		return true
	})
	count = 0
	b.asks.Ascend(func(it levelItem) bool {
		if count >= depth {
			return false
		}
		asks = append(asks, obv1.DepthView{Price: it.level.Price, Qty: it.level.TotalQty})
		count++
		return true
	})
	return bids, asks
}
