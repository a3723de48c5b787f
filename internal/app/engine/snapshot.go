package engine

import (
	"fmt"
	"sync/atomic"

	"github.com/clobcore/matching-engine/internal/domain/amount"
	"github.com/clobcore/matching-engine/internal/domain/market"
	orderv1 "github.com/clobcore/matching-engine/internal/domain/order/v1"
	snapshotv1 "github.com/clobcore/matching-engine/internal/domain/snapshot/v1"
	"github.com/clobcore/matching-engine/pkg/errors"
)

// createAndStoreSnapshot builds the full restart image described in
// snapshotv1.Snapshot from the live book and trigger registry, and
// hands it to the configured store. Amounts are serialized as decimal
// strings so the snapshot never depends on Amount's binary layout.
func (e *Engine) createAndStoreSnapshot() {
	snap := &snapshotv1.Snapshot{
		Symbol:      e.symbol.Symbol.String(),
		SequenceNum: atomic.LoadInt64(&e.sequenceNum),
		NextOrderID: atomic.LoadInt64(&e.nextOrderID),
		LastTradePx: e.lastTradePx.Load().(amount.Amount).String(),
	}

	for _, o := range e.book.AllResting() {
		snap.Book.Orders = append(snap.Book.Orders, bookOrderRow(o))
	}
	for _, o := range e.triggers.AllPending() {
		snap.Triggers = append(snap.Triggers, triggerRow(o))
	}

	if err := e.snapshots.Store(e.ctx, snap); err != nil {
		e.logger.Error(errors.NewTracer("snapshot_store_error").Wrap(err))
		return
	}
	atomic.StoreInt64(&e.lastSnapshotOffset, atomic.LoadInt64(&e.orderOffset))
}

// LoadSnapshot replays a prior createAndStoreSnapshot into an empty book
// and trigger registry, and must be called before Run. Resting orders
// and pending conditionals are rebuilt with their original AcceptedTs,
// preserving price-time priority across a restart.
func (e *Engine) LoadSnapshot(snap *snapshotv1.Snapshot) error {
	atomic.StoreInt64(&e.sequenceNum, snap.SequenceNum)
	atomic.StoreInt64(&e.nextOrderID, snap.NextOrderID)

	if snap.LastTradePx != "" {
		px, err := amount.FromString(snap.LastTradePx)
		if err != nil {
			return errors.NewTracer("snapshot_last_trade_px").Wrap(err)
		}
		e.lastTradePx.Store(px)
	}

	for _, row := range snap.Book.Orders {
		o, err := rowToOrder(row, e.symbol.Symbol)
		if err != nil {
			return errors.NewTracer("snapshot_restore_book_order").Wrap(err)
		}
		if err := e.book.Insert(o); err != nil {
			return errors.NewTracer("snapshot_restore_book_insert").Wrap(err)
		}
		if o.Type == orderv1.Iceberg {
			e.icebergOriginals[o.ID] = o
			e.triggers.RegisterIceberg(o)
		}
	}

	for _, row := range snap.Triggers {
		o, err := triggerRowToOrder(row, e.symbol.Symbol)
		if err != nil {
			return errors.NewTracer("snapshot_restore_trigger").Wrap(err)
		}
		if err := e.triggers.Add(o); err != nil {
			return errors.NewTracer("snapshot_restore_trigger_add").Wrap(err)
		}
	}

	return nil
}

func rowToOrder(row snapshotv1.BookOrder, symbol market.Symbol) (*orderv1.Order, error) {
	side, err := parseSide(row.Side)
	if err != nil {
		return nil, err
	}
	typ, err := parseType(row.Type)
	if err != nil {
		return nil, err
	}
	tif, err := parseTIF(row.TimeInForce)
	if err != nil {
		return nil, err
	}
	qty, err := amount.FromString(row.Qty)
	if err != nil {
		return nil, err
	}
	remaining, err := amount.FromString(row.RemainingQty)
	if err != nil {
		return nil, err
	}

	o := &orderv1.Order{
		ID:          row.OrderID,
		UserID:      row.UserID,
		Symbol:      symbol,
		Side:        side,
		Type:        typ,
		Qty:         qty,
		FilledQty:   qty.Sub(remaining),
		TimeInForce: tif,
		State:       orderv1.Active,
		AcceptedTs:  row.AcceptedTs,
	}
	if row.Price != "" {
		px, err := amount.FromString(row.Price)
		if err != nil {
			return nil, err
		}
		o.LimitPrice = &px
	}
	if row.DisplayQty != "" {
		dq, err := amount.FromString(row.DisplayQty)
		if err != nil {
			return nil, err
		}
		o.DisplayQty = &dq
		o.DisplayedQty = remaining
	}
	return o, nil
}

func triggerRowToOrder(row snapshotv1.TriggerRow, symbol market.Symbol) (*orderv1.Order, error) {
	side, err := parseSide(row.Side)
	if err != nil {
		return nil, err
	}
	typ, err := parseType(row.Type)
	if err != nil {
		return nil, err
	}
	qty, err := amount.FromString(row.Qty)
	if err != nil {
		return nil, err
	}
	triggerPx, err := amount.FromString(row.TriggerPrice)
	if err != nil {
		return nil, err
	}

	o := &orderv1.Order{
		ID:          row.OrderID,
		UserID:      row.UserID,
		Symbol:      symbol,
		Side:        side,
		Type:        typ,
		Qty:         qty,
		StopPrice:   &triggerPx,
		TimeInForce: orderv1.GTC,
		State:       orderv1.PendingTrigger,
		AcceptedTs:  row.AcceptedTs,
	}
	if row.OcoSiblingID != 0 {
		sib := row.OcoSiblingID
		o.OCOSiblingID = &sib
	}
	if row.LimitPrice != "" {
		px, err := amount.FromString(row.LimitPrice)
		if err != nil {
			return nil, err
		}
		o.LimitPrice = &px
	}
	if row.TrailAmount != "" {
		ta, err := amount.FromString(row.TrailAmount)
		if err != nil {
			return nil, err
		}
		o.TrailAmount = &ta
	}
	if row.TrailPercent != "" {
		tp, err := amount.FromString(row.TrailPercent)
		if err != nil {
			return nil, err
		}
		o.TrailPct = &tp
	}
	if row.WaterMark != "" {
		wm, err := amount.FromString(row.WaterMark)
		if err != nil {
			return nil, err
		}
		o.WaterMark = &wm
	}
	if row.DisplayQty != "" {
		dq, err := amount.FromString(row.DisplayQty)
		if err != nil {
			return nil, err
		}
		o.DisplayQty = &dq
	}
	return o, nil
}

func parseSide(s string) (orderv1.Side, error) {
	switch s {
	case "buy":
		return orderv1.Buy, nil
	case "sell":
		return orderv1.Sell, nil
	default:
		return 0, fmt.Errorf("unknown side %q", s)
	}
}

func parseType(s string) (orderv1.Type, error) {
	switch s {
	case "limit":
		return orderv1.Limit, nil
	case "market":
		return orderv1.Market, nil
	case "stop":
		return orderv1.Stop, nil
	case "stop_limit":
		return orderv1.StopLimit, nil
	case "trailing_stop":
		return orderv1.TrailingStop, nil
	case "take_profit":
		return orderv1.TakeProfit, nil
	case "iceberg":
		return orderv1.Iceberg, nil
	case "oco_leg":
		return orderv1.OCOLeg, nil
	default:
		return 0, fmt.Errorf("unknown order type %q", s)
	}
}

func parseTIF(s string) (orderv1.TimeInForce, error) {
	switch s {
	case "GTC":
		return orderv1.GTC, nil
	case "IOC":
		return orderv1.IOC, nil
	case "FOK":
		return orderv1.FOK, nil
	case "DAY":
		return orderv1.DAY, nil
	default:
		return 0, fmt.Errorf("unknown time in force %q", s)
	}
}

func bookOrderRow(o *orderv1.Order) snapshotv1.BookOrder {
	row := snapshotv1.BookOrder{
		OrderID:      o.ID,
		UserID:       o.UserID,
		Side:         o.Side.String(),
		Type:         o.Type.String(),
		RemainingQty: o.RemainingQty().String(),
		Qty:          o.Qty.String(),
		AcceptedTs:   o.AcceptedTs,
		TimeInForce:  o.TimeInForce.String(),
	}
	if o.LimitPrice != nil {
		row.Price = o.LimitPrice.String()
	}
	if o.DisplayQty != nil {
		row.DisplayQty = o.DisplayQty.String()
	}
	return row
}

func triggerRow(o *orderv1.Order) snapshotv1.TriggerRow {
	row := snapshotv1.TriggerRow{
		OrderID:      o.ID,
		UserID:       o.UserID,
		Side:         o.Side.String(),
		Type:         o.Type.String(),
		Direction:    o.EffectiveTriggerDirection(),
		TriggerPrice: o.EffectiveTriggerPrice().String(),
		Qty:          o.Qty.String(),
		AcceptedTs:   o.AcceptedTs,
	}
	if o.LimitPrice != nil {
		row.LimitPrice = o.LimitPrice.String()
	}
	if o.TrailAmount != nil {
		row.TrailAmount = o.TrailAmount.String()
	}
	if o.TrailPct != nil {
		row.TrailPercent = o.TrailPct.String()
	}
	if o.WaterMark != nil {
		row.WaterMark = o.WaterMark.String()
	}
	if o.OCOSiblingID != nil {
		row.OcoSiblingID = *o.OCOSiblingID
	}
	if o.DisplayQty != nil {
		row.DisplayQty = o.DisplayQty.String()
	}
	return row
}
