package engine

import (
	"sync/atomic"

	"github.com/clobcore/matching-engine/internal/domain/amount"
	commandv1 "github.com/clobcore/matching-engine/internal/domain/command/v1"
	eventv1 "github.com/clobcore/matching-engine/internal/domain/event/v1"
	ledgerv1 "github.com/clobcore/matching-engine/internal/domain/ledger/v1"
	orderv1 "github.com/clobcore/matching-engine/internal/domain/order/v1"
	obv1 "github.com/clobcore/matching-engine/internal/domain/orderbook/v1"
	riskv1 "github.com/clobcore/matching-engine/internal/domain/risk/v1"
	"github.com/clobcore/matching-engine/pkg/errors"
)

// processSubmit runs the full accept -> validate -> risk -> reserve ->
// match -> rest pipeline of spec §4.4 for one inbound order.
func (e *Engine) processSubmit(cmd *commandv1.Submit) error {
	_, err := e.submit(cmd)
	return err
}

func (e *Engine) submit(cmd *commandv1.Submit) (*orderv1.Order, error) {
	if e.isHalted() {
		e.emit(&eventv1.Event{Kind: eventv1.Rejected, UserID: cmd.UserID, RejectReason: string(orderv1.ReasonSymbolHalted)})
		return nil, orderv1.NewRejectError(orderv1.ReasonSymbolHalted)
	}
	if cmd.Symbol != e.symbol.Symbol.String() {
		e.emit(&eventv1.Event{Kind: eventv1.Rejected, UserID: cmd.UserID, RejectReason: string(orderv1.ReasonInvalidSymbol)})
		return nil, orderv1.NewRejectError(orderv1.ReasonInvalidSymbol)
	}

	o := e.buildOrder(cmd)
	e.emit(&eventv1.Event{Kind: eventv1.Accepted, OrderID: o.ID, UserID: o.UserID})

	if err := e.validateOrder(o); err != nil {
		return nil, e.rejectOrder(o, reasonOf(err, orderv1.ReasonInvalidSymbol))
	}

	if err := e.risk.Check(riskv1.CheckRequest{
		UserID:       o.UserID,
		Symbol:       o.Symbol.String(),
		Side:         o.Side.String(),
		Qty:          o.Qty,
		Price:        e.estimatePrice(o),
		HaltedSymbol: false,
	}); err != nil {
		return nil, e.rejectOrder(o, reasonOf(err, orderv1.ReasonRiskLimitExceeded))
	}

	if o.TimeInForce == orderv1.FOK && !o.Type.IsConditional() && o.Type != orderv1.Iceberg {
		if !e.canFillCompletely(o) {
			return nil, e.rejectOrder(o, orderv1.ReasonFokUnfillable)
		}
	}

	if err := e.reserveFor(o); err != nil {
		return nil, e.rejectOrder(o, reasonOf(err, orderv1.ReasonInsufficientAvailable))
	}

	if o.Type.IsConditional() {
		e.place(o)
	} else if o.Type == orderv1.Iceberg {
		e.placeIceberg(o)
	} else {
		e.placeAndMatch(o)
	}

	if cmd.OCOSiblingOf != nil && o.Type == orderv1.OCOLeg {
		sibling, err := e.submit(cmd.OCOSiblingOf)
		if err == nil {
			e.triggers.RegisterOCO(o.ID, sibling.ID)
		}
	}

	return o, nil
}

func (e *Engine) buildOrder(cmd *commandv1.Submit) *orderv1.Order {
	return &orderv1.Order{
		ID:          e.nextID(),
		UserID:      cmd.UserID,
		Symbol:      e.symbol.Symbol,
		Side:        cmd.Side,
		Type:        cmd.Type,
		Qty:         cmd.Qty,
		LimitPrice:  cmd.LimitPrice,
		StopPrice:   cmd.StopPrice,
		TrailAmount: cmd.TrailAmount,
		TrailPct:    cmd.TrailPercent,
		DisplayQty:  cmd.DisplayQty,
		TimeInForce: cmd.TimeInForce,
		Flags:       cmd.Flags,
		DeadlineNs:  cmd.DeadlineNs,
		State:       orderv1.New,
		AcceptedTs:  e.nextAcceptedTs(),
	}
}

func (e *Engine) validateOrder(o *orderv1.Order) error {
	if !e.symbol.RoundsToLot(o.Qty) {
		return orderv1.NewRejectError(orderv1.ReasonLotSizeViolation)
	}
	if o.Qty.GreaterThan(e.symbol.MaxOrderQty) {
		return orderv1.NewRejectError(orderv1.ReasonLotSizeViolation)
	}
	if o.LimitPrice != nil {
		if !e.symbol.RoundsToTick(*o.LimitPrice) {
			return orderv1.NewRejectError(orderv1.ReasonTickSizeViolation)
		}
		notional := o.LimitPrice.Mul(o.Qty)
		if notional.LessThan(e.symbol.MinNotional) {
			return orderv1.NewRejectError(orderv1.ReasonMinNotionalViolation)
		}
	}
	return nil
}

func reasonOf(err error, fallback orderv1.RejectReason) orderv1.RejectReason {
	if rej, ok := err.(*orderv1.RejectError); ok {
		return rej.Reason
	}
	return fallback
}

// estimatePrice is the price the risk gate, a conditional buy's
// reservation and a trailing stop's initial water mark use when no
// limit_price is given: the best opposing price, or zero if the book is
// empty. A market buy's reservation uses the protection-band worst price
// instead whenever the book reports one.
func (e *Engine) estimatePrice(o *orderv1.Order) amount.Amount {
	if o.LimitPrice != nil {
		return *o.LimitPrice
	}
	if o.IsBuy() {
		if ask, ok := e.book.BestAsk(); ok {
			return ask
		}
		return amount.Zero
	}
	if bid, ok := e.book.BestBid(); ok {
		return bid
	}
	return amount.Zero
}

func (e *Engine) reserveFor(o *orderv1.Order) error {
	if o.IsBuy() {
		px := e.estimatePrice(o)
		if o.Type == orderv1.Market {
			if worst, ok := e.book.ProtectionAdjustedWorstPrice(orderv1.Buy); ok {
				px = worst
			}
		}
		if px.IsZero() {
			return orderv1.NewRejectError(orderv1.ReasonNoLiquidity)
		}
		notional := px.Mul(o.Qty)
		if err := e.ledger.Reserve(o.UserID, o.Symbol.Quote, notional); err != nil {
			return orderv1.NewRejectError(orderv1.ReasonInsufficientAvailable)
		}
		o.ReservedQuote = notional
		return nil
	}
	if err := e.ledger.Reserve(o.UserID, o.Symbol.Base, o.Qty); err != nil {
		return orderv1.NewRejectError(orderv1.ReasonInsufficientAvailable)
	}
	o.ReservedBase = o.Qty
	return nil
}

func (e *Engine) releaseReservation(o *orderv1.Order) {
	if o.IsBuy() && o.ReservedQuote.IsPos() {
		if err := e.ledger.Release(o.UserID, o.Symbol.Quote, o.ReservedQuote); err != nil {
			e.halt("ledger_release_failed")
			return
		}
		o.ReservedQuote = amount.Zero
	}
	if o.IsSell() && o.ReservedBase.IsPos() {
		if err := e.ledger.Release(o.UserID, o.Symbol.Base, o.ReservedBase); err != nil {
			e.halt("ledger_release_failed")
			return
		}
		o.ReservedBase = amount.Zero
	}
}

// canFillCompletely is the FOK dry run: it sums resting liquidity
// marketable against o without mutating the book, mirroring the
// aggression loop's crossing rule but read-only.
func (e *Engine) canFillCompletely(o *orderv1.Order) bool {
	bids, asks := e.book.Snapshot(1 << 20)
	levels := asks
	if o.IsSell() {
		levels = bids
	}

	total := amount.Zero
	for _, lvl := range levels {
		if o.Type != orderv1.Market && o.LimitPrice != nil {
			if o.IsBuy() && lvl.Price.GreaterThan(*o.LimitPrice) {
				break
			}
			if o.IsSell() && lvl.Price.LessThan(*o.LimitPrice) {
				break
			}
		}
		total = total.Add(lvl.Qty)
		if total.GreaterThanOrEqual(o.Qty) {
			return true
		}
	}
	return false
}

func (e *Engine) rejectOrder(o *orderv1.Order, reason orderv1.RejectReason) error {
	o.State = orderv1.Rejected
	o.RejectReason = string(reason)
	e.emit(&eventv1.Event{Kind: eventv1.Rejected, OrderID: o.ID, UserID: o.UserID, RejectReason: string(reason)})
	return orderv1.NewRejectError(reason)
}

// place registers a conditional order into the trigger registry instead
// of the book.
func (e *Engine) place(o *orderv1.Order) {
	if o.Type == orderv1.TrailingStop {
		wm := e.estimatePrice(o)
		o.WaterMark = &wm
		if stop, ok := o.TrailingStopPriceFrom(wm); ok {
			o.StopPrice = &stop
		}
	}
	if err := e.triggers.Add(o); err != nil {
		e.releaseReservation(o)
		_ = e.rejectOrder(o, orderv1.ReasonStaleTrigger)
		return
	}
	e.emit(&eventv1.Event{Kind: eventv1.Resting, OrderID: o.ID, UserID: o.UserID})
}

func (e *Engine) placeIceberg(o *orderv1.Order) {
	if o.DisplayQty == nil {
		e.releaseReservation(o)
		_ = e.rejectOrder(o, orderv1.ReasonLotSizeViolation)
		return
	}
	e.icebergOriginals[o.ID] = o

	e.triggers.RegisterIceberg(o)
	slice, ok := e.triggers.NextSlice(o.ID, o.AcceptedTs)
	if !ok {
		return
	}
	e.placeAndMatch(slice)
}

// placeAndMatch runs the aggression loop against the book and disposes
// of whatever remains per the order's time in force.
func (e *Engine) placeAndMatch(o *orderv1.Order) {
	result := e.book.Match(o)
	e.settleMatchResult(o, result)

	if o.IsFilled() {
		e.finishFilled(o)
		return
	}

	switch o.TimeInForce {
	case orderv1.IOC, orderv1.FOK:
		e.releaseReservation(o)
		o.State = orderv1.Cancelled
		e.emit(&eventv1.Event{Kind: eventv1.Cancelled, OrderID: o.ID, UserID: o.UserID})
		e.resolveOCO(o)
	default: // GTC, DAY
		if o.Type == orderv1.Market {
			e.releaseReservation(o)
			o.State = orderv1.Cancelled
			e.emit(&eventv1.Event{Kind: eventv1.Cancelled, OrderID: o.ID, UserID: o.UserID, RejectReason: string(orderv1.ReasonNoLiquidity)})
			return
		}
		if err := e.book.Insert(o); err != nil {
			e.releaseReservation(o)
			_ = e.rejectOrder(o, reasonOf(err, orderv1.ReasonTickSizeViolation))
			return
		}
		e.emit(&eventv1.Event{Kind: eventv1.Resting, OrderID: o.ID, UserID: o.UserID})
	}
}

func (e *Engine) settleMatchResult(taker *orderv1.Order, result obv1.MatchResult) {
	for _, maker := range result.SelfTradeCancelOrders {
		e.releaseReservation(maker)
		e.emit(&eventv1.Event{Kind: eventv1.Cancelled, OrderID: maker.ID, UserID: maker.UserID, RejectReason: string(orderv1.ReasonSelfTradePrevention)})
		e.resolveOCO(maker)
	}

	for _, t := range result.Trades {
		e.settleTrade(taker, t)
		if e.isHalted() {
			return
		}
	}
}

func (e *Engine) settleTrade(taker *orderv1.Order, t obv1.Trade) {
	buyOrder, sellOrder := taker, t.Maker
	if taker.IsSell() {
		buyOrder, sellOrder = t.Maker, taker
	}

	if err := e.ledger.SettleTrade(ledgerv1.Trade{
		Symbol:     e.symbol.Symbol,
		Price:      t.Price,
		Qty:        t.Qty,
		BuyerAcct:  buyOrder.UserID,
		SellerAcct: sellOrder.UserID,
	}); err != nil {
		e.halt("ledger_settlement_failed")
		return
	}

	notional := t.Price.Mul(t.Qty)
	buyOrder.ReservedQuote = buyOrder.ReservedQuote.Sub(notional)
	sellOrder.ReservedBase = sellOrder.ReservedBase.Sub(t.Qty)

	e.risk.RecordFill(buyOrder.UserID, e.symbol.Symbol.String(), "buy", t.Qty, t.Price)
	e.risk.RecordFill(sellOrder.UserID, e.symbol.Symbol.String(), "sell", t.Qty, t.Price)

	e.incTotalMatches()
	e.lastTradePx.Store(t.Price)

	e.emit(&eventv1.Event{
		Kind:      eventv1.Trade,
		OrderID:   taker.ID,
		UserID:    taker.UserID,
		TradeID:   t.ID,
		MakerID:   t.MakerID,
		TakerID:   t.TakerID,
		MakerSide: t.MakerSide.String(),
		Price:     t.Price,
		Qty:       t.Qty,
	})

	e.emitFillProgress(t.Maker, t.Qty)
	e.emitFillProgress(taker, t.Qty)

	if t.Maker.IsFilled() {
		e.finishFilled(t.Maker)
	}

	for _, fired := range e.triggers.OnLastTrade(t.Price) {
		e.activateTriggered(fired)
	}
}

func (e *Engine) emitFillProgress(o *orderv1.Order, qty amount.Amount) {
	kind := eventv1.PartiallyFilled
	if o.IsFilled() {
		kind = eventv1.Filled
	}
	e.emit(&eventv1.Event{Kind: kind, OrderID: o.ID, UserID: o.UserID, FilledQty: o.FilledQty, Remaining: o.RemainingQty()})
}

// finishFilled handles iceberg re-slicing and OCO resolution once an
// order (maker or taker) has no remaining quantity. A terminal order
// backs nothing further, so whatever reservation price improvement left
// locked (the taker crossed at a better price than its limit, or a
// protection-band reservation overshot the actual fill cost) is
// released here rather than staying locked forever.
func (e *Engine) finishFilled(o *orderv1.Order) {
	if o.Type == orderv1.Iceberg {
		original, ok := e.icebergOriginals[o.ID]
		if ok {
			// Settlement debited the slice's reservation fields, but the
			// ledger lock belongs to the original; carry the debit over.
			original.ReservedBase = original.ReservedBase.Add(o.ReservedBase)
			original.ReservedQuote = original.ReservedQuote.Add(o.ReservedQuote)
			o.ReservedBase, o.ReservedQuote = amount.Zero, amount.Zero
			original.FilledQty = original.FilledQty.Add(o.Qty)
			original.DisplayedQty = original.DisplayedQty.Sub(o.Qty)
			if slice, more := e.triggers.NextSlice(o.ID, e.nextAcceptedTs()); more {
				e.placeAndMatch(slice)
				return
			}
			original.State = orderv1.Filled
			e.releaseReservation(original)
			delete(e.icebergOriginals, o.ID)
		}
	}
	e.releaseReservation(o)
	e.resolveOCO(o)
}

func (e *Engine) resolveOCO(o *orderv1.Order) {
	sibling, ok := e.triggers.ResolveOCO(o.ID)
	if !ok {
		return
	}
	if rest, err := e.book.Cancel(sibling); err == nil {
		e.releaseReservation(rest)
		e.emit(&eventv1.Event{Kind: eventv1.Cancelled, OrderID: rest.ID, UserID: rest.UserID, RejectReason: string(orderv1.ReasonOcoSibling)})
		return
	}
	if rest, ok := e.triggers.Remove(sibling); ok {
		e.releaseReservation(rest)
		e.emit(&eventv1.Event{Kind: eventv1.Cancelled, OrderID: rest.ID, UserID: rest.UserID, RejectReason: string(orderv1.ReasonOcoSibling)})
	}
}

// activateTriggered converts a just-fired conditional into a live order:
// stop/stop_limit orders become market/limit takers, take_profit the
// same, each re-entering the aggression loop at a fresh accepted_ts per
// its original time in force.
func (e *Engine) activateTriggered(o *orderv1.Order) {
	e.emit(&eventv1.Event{Kind: eventv1.Triggered, OrderID: o.ID, UserID: o.UserID})
	o.AcceptedTs = e.nextAcceptedTs()
	if o.Type == orderv1.Stop || o.Type == orderv1.TrailingStop {
		o.Type = orderv1.Market
		o.LimitPrice = nil
	} else {
		o.Type = orderv1.Limit
	}
	e.placeAndMatch(o)
}

// processCancel removes a resting or pending order and releases its
// reservation.
func (e *Engine) processCancel(cmd *commandv1.Cancel) error {
	if resting, ok := e.book.OrderByID(cmd.OrderID); ok && resting.UserID != cmd.UserID {
		return orderv1.NewRejectError(orderv1.ReasonNotOwner)
	}
	o, err := e.book.Cancel(cmd.OrderID)
	if err != nil {
		var ok bool
		o, ok = e.triggers.Remove(cmd.OrderID)
		if !ok {
			return orderv1.NewRejectError(orderv1.ReasonUnknownOrder)
		}
		if o.UserID != cmd.UserID {
			_ = e.triggers.Add(o)
			return orderv1.NewRejectError(orderv1.ReasonNotOwner)
		}
	}
	o.State = orderv1.Cancelled
	e.releaseReservation(o)
	e.emit(&eventv1.Event{Kind: eventv1.Cancelled, OrderID: o.ID, UserID: o.UserID})
	e.resolveOCO(o)
	return nil
}

// processModify re-submits a resting order's new qty/price under the
// same id. A quantity decrease at an unchanged price preserves time
// priority: the order keeps its place in the book, filled_qty is left
// untouched, and only the now-unneeded slice of its reservation is
// released. Every other shape (a price change, or any qty increase) is
// observably a Cancel followed by a fresh Submit: the order loses its
// place in the queue and filled_qty resets.
func (e *Engine) processModify(cmd *commandv1.Modify) error {
	if e.isHalted() {
		return orderv1.NewRejectError(orderv1.ReasonSymbolHalted)
	}
	if cmd.NewPrice == nil && cmd.NewQty != nil {
		if o, ok := e.book.OrderByID(cmd.OrderID); ok {
			if o.UserID != cmd.UserID {
				return orderv1.NewRejectError(orderv1.ReasonNotOwner)
			}
			if cmd.NewQty.LessThan(o.Qty) {
				return e.shrinkQtyInPlace(o, *cmd.NewQty)
			}
		}
	}

	o, err := e.book.Cancel(cmd.OrderID)
	if err != nil {
		return orderv1.NewRejectError(orderv1.ReasonUnknownOrder)
	}
	if o.UserID != cmd.UserID {
		if insertErr := e.book.Insert(o); insertErr != nil {
			e.logger.Error(errors.NewTracer("modify_reinsert_failed").Wrap(insertErr))
		}
		return orderv1.NewRejectError(orderv1.ReasonNotOwner)
	}
	e.releaseReservation(o)

	if cmd.NewQty != nil {
		o.Qty = *cmd.NewQty
	}
	if cmd.NewPrice != nil {
		o.LimitPrice = cmd.NewPrice
	}
	o.FilledQty = amount.Zero
	o.AcceptedTs = e.nextAcceptedTs()
	o.State = orderv1.New

	if err := e.validateOrder(o); err != nil {
		return e.rejectOrder(o, reasonOf(err, orderv1.ReasonInvalidSymbol))
	}
	if err := e.reserveFor(o); err != nil {
		return e.rejectOrder(o, reasonOf(err, orderv1.ReasonInsufficientAvailable))
	}
	e.placeAndMatch(o)
	return nil
}

// shrinkQtyInPlace is the one modify shape the contract says must keep
// accepted_ts and filled_qty: a quantity decrease at an unchanged
// price. The order is mutated where it already sits in the book rather
// than cancelled and reinserted, so it keeps its queue position.
func (e *Engine) shrinkQtyInPlace(o *orderv1.Order, newQty amount.Amount) error {
	if newQty.LessThan(o.FilledQty) || !e.symbol.RoundsToLot(newQty) {
		return orderv1.NewRejectError(orderv1.ReasonLotSizeViolation)
	}

	delta := o.Qty.Sub(newQty)
	if o.IsBuy() {
		if o.LimitPrice != nil {
			releaseAmt := o.LimitPrice.Mul(delta)
			if err := e.ledger.Release(o.UserID, o.Symbol.Quote, releaseAmt); err != nil {
				e.halt("ledger_release_failed")
				return err
			}
			o.ReservedQuote = o.ReservedQuote.Sub(releaseAmt)
		}
	} else {
		if err := e.ledger.Release(o.UserID, o.Symbol.Base, delta); err != nil {
			e.halt("ledger_release_failed")
			return err
		}
		o.ReservedBase = o.ReservedBase.Sub(delta)
	}

	o.Qty = newQty
	e.emit(&eventv1.Event{Kind: eventv1.Resting, OrderID: o.ID, UserID: o.UserID, Remaining: o.RemainingQty()})
	return nil
}

// processTick performs session-boundary maintenance: DAY-order expiry
// and the risk gate's daily counter reset.
func (e *Engine) processTick(cmd *commandv1.Tick) {
	if e.opts.SessionEndNs == 0 || cmd.NowNs < e.opts.SessionEndNs {
		return
	}

	for _, o := range e.book.AllResting() {
		if o.TimeInForce != orderv1.DAY {
			continue
		}
		if _, err := e.book.Cancel(o.ID); err != nil {
			continue
		}
		o.State = orderv1.Expired
		e.releaseReservation(o)
		e.emit(&eventv1.Event{Kind: eventv1.Expired, OrderID: o.ID, UserID: o.UserID})
		e.resolveOCO(o)
	}

	e.risk.ResetDaily()
	e.opts.SessionEndNs += int64(24 * 60 * 60 * 1e9)
}

func (e *Engine) incTotalMatches() {
	atomic.AddInt64(&e.totalMatches, 1)
}
