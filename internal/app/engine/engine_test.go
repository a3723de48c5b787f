package engine

import (
	"context"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clobcore/matching-engine/internal/domain/amount"
	commandv1 "github.com/clobcore/matching-engine/internal/domain/command/v1"
	eventv1 "github.com/clobcore/matching-engine/internal/domain/event/v1"
	"github.com/clobcore/matching-engine/internal/domain/market"
	orderv1 "github.com/clobcore/matching-engine/internal/domain/order/v1"
	riskv1 "github.com/clobcore/matching-engine/internal/domain/risk/v1"
	snapshotv1_mock "github.com/clobcore/matching-engine/internal/domain/snapshot/v1/mock"
	"github.com/clobcore/matching-engine/internal/usecase/ledger"
	"github.com/clobcore/matching-engine/internal/usecase/orderbook"
	"github.com/clobcore/matching-engine/internal/usecase/risk"
	"github.com/clobcore/matching-engine/internal/usecase/trigger"
	"github.com/clobcore/matching-engine/pkg/logger"
)

// fakeAudit and fakeMarketData stand in for the Kafka/NATS-backed sinks.
// Neither is actually invoked in these tests: Engine.emit only queues
// onto the two rings, and the rings are only drained by Run's own
// goroutines, which these tests never start. Assertions instead drain
// the rings directly via drainRing.
type fakeAudit struct{}

func (f *fakeAudit) Publish(ctx context.Context, e *eventv1.Event) error { return nil }
func (f *fakeAudit) Close() error                                       { return nil }

type fakeMarketData struct{}

func (f *fakeMarketData) Publish(e *eventv1.Event) {}
func (f *fakeMarketData) Close() error             { return nil }

// drainRing closes and fully drains a Ring without needing to import the
// event-publisher package just for its type name.
func drainRing(r interface {
	Pop() (*eventv1.Event, bool)
	Close()
}) []*eventv1.Event {
	r.Close()
	var out []*eventv1.Event
	for {
		ev, ok := r.Pop()
		if !ok {
			return out
		}
		out = append(out, ev)
	}
}

func btcUSD() market.Config {
	return market.Config{
		Symbol:      market.Symbol{Base: "BTC", Quote: "USD"},
		TickSize:    amount.MustFromString("0.01"),
		LotSize:     amount.MustFromString("0.0001"),
		MinNotional: amount.MustFromString("1"),
		MaxOrderQty: amount.MustFromString("1000"),
	}
}

type testHarness struct {
	e      *Engine
	audit  *fakeAudit
	market *fakeMarketData
	ledger *ledger.Ledger
	risk   *risk.Gate
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()
	return newTestHarnessWithSymbol(t, btcUSD())
}

func newTestHarnessWithSymbol(t *testing.T, symbol market.Config) *testHarness {
	t.Helper()
	log, err := logger.NewLogger()
	require.NoError(t, err)

	book := orderbook.New(symbol, log)
	triggers := trigger.New(log)
	led := ledger.New(log)
	gate := risk.New(map[string]riskv1.Tier{
		"retail": {
			Name:            "retail",
			MaxPosition:     amount.MustFromString("1000"),
			MaxDailyLoss:    amount.MustFromString("1000000"),
			MaxOrderSize:    amount.MustFromString("1000"),
			MaxDailyTrades:  10000,
			RateLimitPerSec: 10000,
			RateLimitBurst:  10000,
		},
	}, log)

	audit := &fakeAudit{}
	md := &fakeMarketData{}

	ctrl := gomock.NewController(t)
	store := snapshotv1_mock.NewMockStore(ctrl)

	eng := NewEngine(symbol, book, triggers, led, gate, nil, audit, md, store, log, nil)
	eng.ctx, eng.cancel = context.WithCancel(context.Background())
	t.Cleanup(eng.cancel)

	return &testHarness{e: eng, audit: audit, market: md, ledger: led, risk: gate}
}

func (h *testHarness) registerUser(t *testing.T, userID string) {
	t.Helper()
	h.risk.RegisterProfile(riskv1.Profile{UserID: userID, Tier: "retail", Enabled: true})
}

func (h *testHarness) fund(t *testing.T, userID string, asset market.Asset, amt string) {
	t.Helper()
	require.NoError(t, h.ledger.Mint(userID, asset, amount.MustFromString(amt)))
}

func TestSubmitCrossesRestingLimitOrder(t *testing.T) {
	h := newTestHarness(t)
	h.registerUser(t, "maker")
	h.registerUser(t, "taker")
	h.fund(t, "maker", "BTC", "10")
	h.fund(t, "taker", "USD", "100000")

	price := amount.MustFromString("100.00")
	makerOrder, err := h.e.submit(&commandv1.Submit{
		UserID:      "maker",
		Symbol:      "BTC/USD",
		Side:        orderv1.Sell,
		Type:        orderv1.Limit,
		Qty:         amount.MustFromString("1"),
		LimitPrice:  &price,
		TimeInForce: orderv1.GTC,
	})
	require.NoError(t, err)
	require.Equal(t, orderv1.Active, makerOrder.State)

	takerOrder, err := h.e.submit(&commandv1.Submit{
		UserID:      "taker",
		Symbol:      "BTC/USD",
		Side:        orderv1.Buy,
		Type:        orderv1.Limit,
		Qty:         amount.MustFromString("1"),
		LimitPrice:  &price,
		TimeInForce: orderv1.GTC,
	})
	require.NoError(t, err)
	assert.True(t, takerOrder.IsFilled())
	assert.Equal(t, orderv1.Filled, makerOrder.State)

	makerBalance := h.ledger.Balance("maker", "USD")
	assert.True(t, makerBalance.Available.Equal(amount.MustFromString("100")))
	takerBalance := h.ledger.Balance("taker", "BTC")
	assert.True(t, takerBalance.Available.Equal(amount.MustFromString("1")))

	auditEvents := drainRing(h.e.auditRing)
	var sawTrade bool
	for _, ev := range auditEvents {
		if ev.Kind == eventv1.Trade {
			sawTrade = true
			assert.NotEmpty(t, ev.TradeID)
		}
	}
	assert.True(t, sawTrade, "expected a Trade event in the audit stream")
	assert.NotEmpty(t, drainRing(h.e.marketRing))
}

func TestFirstEmittedEventSequenceNumberIsZero(t *testing.T) {
	h := newTestHarness(t)
	h.registerUser(t, "taker")
	h.fund(t, "taker", "USD", "1000")

	price := amount.MustFromString("100.00")
	_, err := h.e.submit(&commandv1.Submit{
		UserID:      "taker",
		Symbol:      "BTC/USD",
		Side:        orderv1.Buy,
		Type:        orderv1.Limit,
		Qty:         amount.MustFromString("1"),
		LimitPrice:  &price,
		TimeInForce: orderv1.GTC,
	})
	require.NoError(t, err)

	events := drainRing(h.e.auditRing)
	require.NotEmpty(t, events)
	assert.Equal(t, int64(0), events[0].SequenceNum)
	for i, ev := range events {
		assert.Equal(t, int64(i), ev.SequenceNum)
	}
}

func TestFillAtBetterPriceReleasesSurplusReservation(t *testing.T) {
	h := newTestHarness(t)
	h.registerUser(t, "maker")
	h.registerUser(t, "taker")
	h.fund(t, "maker", "BTC", "10")
	h.fund(t, "taker", "USD", "100000")

	makerPrice := amount.MustFromString("99.00")
	_, err := h.e.submit(&commandv1.Submit{
		UserID:      "maker",
		Symbol:      "BTC/USD",
		Side:        orderv1.Sell,
		Type:        orderv1.Limit,
		Qty:         amount.MustFromString("1"),
		LimitPrice:  &makerPrice,
		TimeInForce: orderv1.GTC,
	})
	require.NoError(t, err)

	// The taker's limit is willing to pay 100 but the trade executes at
	// the maker's better price of 99: the taker reserved 100 but only
	// owes 99, so 1 of quote must come back once it's Filled.
	takerLimit := amount.MustFromString("100.00")
	takerOrder, err := h.e.submit(&commandv1.Submit{
		UserID:      "taker",
		Symbol:      "BTC/USD",
		Side:        orderv1.Buy,
		Type:        orderv1.Limit,
		Qty:         amount.MustFromString("1"),
		LimitPrice:  &takerLimit,
		TimeInForce: orderv1.GTC,
	})
	require.NoError(t, err)
	require.Equal(t, orderv1.Filled, takerOrder.State)
	assert.True(t, takerOrder.ReservedQuote.IsZero())

	balance := h.ledger.Balance("taker", "USD")
	assert.True(t, balance.Locked.IsZero())
	assert.True(t, balance.Available.Equal(amount.MustFromString("99901.00")))
}

func TestMarketBuyReservesAtProtectionBandWorstPrice(t *testing.T) {
	symbol := btcUSD()
	symbol.ProtectionBandBps = 100 // 1%: a market buy may walk up to best_ask*1.01
	h := newTestHarnessWithSymbol(t, symbol)
	h.registerUser(t, "maker1")
	h.registerUser(t, "maker2")
	h.registerUser(t, "taker")
	h.fund(t, "maker1", "BTC", "10")
	h.fund(t, "maker2", "BTC", "10")
	h.fund(t, "taker", "USD", "100000")

	askLow := amount.MustFromString("100.00")
	_, err := h.e.submit(&commandv1.Submit{
		UserID:      "maker1",
		Symbol:      "BTC/USD",
		Side:        orderv1.Sell,
		Type:        orderv1.Limit,
		Qty:         amount.MustFromString("1"),
		LimitPrice:  &askLow,
		TimeInForce: orderv1.GTC,
	})
	require.NoError(t, err)

	// 100.50 sits inside the 1% band off 100.00 (limit 101.00), so the
	// market buy below is allowed to walk to this second level too.
	askHigh := amount.MustFromString("100.50")
	_, err = h.e.submit(&commandv1.Submit{
		UserID:      "maker2",
		Symbol:      "BTC/USD",
		Side:        orderv1.Sell,
		Type:        orderv1.Limit,
		Qty:         amount.MustFromString("1"),
		LimitPrice:  &askHigh,
		TimeInForce: orderv1.GTC,
	})
	require.NoError(t, err)

	takerOrder, err := h.e.submit(&commandv1.Submit{
		UserID:      "taker",
		Symbol:      "BTC/USD",
		Side:        orderv1.Buy,
		Type:        orderv1.Market,
		Qty:         amount.MustFromString("2"),
		TimeInForce: orderv1.IOC,
	})
	require.NoError(t, err)

	// Before the fix this reserved only best_ask*qty (200), which falls
	// short of the 200.50 the two legs actually cost and used to trip
	// SettleTrade's locked-balance check and halt the symbol.
	assert.False(t, h.e.isHalted())
	assert.Equal(t, orderv1.Filled, takerOrder.State)
	assert.True(t, takerOrder.ReservedQuote.IsZero())

	balance := h.ledger.Balance("taker", "USD")
	assert.True(t, balance.Available.Equal(amount.MustFromString("99799.50")))
}

func TestFOKRejectsWhenUnfillable(t *testing.T) {
	h := newTestHarness(t)
	h.registerUser(t, "taker")
	h.fund(t, "taker", "USD", "100000")

	price := amount.MustFromString("100.00")
	_, err := h.e.submit(&commandv1.Submit{
		UserID:      "taker",
		Symbol:      "BTC/USD",
		Side:        orderv1.Buy,
		Type:        orderv1.Limit,
		Qty:         amount.MustFromString("1"),
		LimitPrice:  &price,
		TimeInForce: orderv1.FOK,
	})
	require.Error(t, err)
	rej, ok := err.(*orderv1.RejectError)
	require.True(t, ok)
	assert.Equal(t, orderv1.ReasonFokUnfillable, rej.Reason)

	balance := h.ledger.Balance("taker", "USD")
	assert.True(t, balance.Available.Equal(amount.MustFromString("100000")))
}

func TestProcessCancelUnknownOrder(t *testing.T) {
	h := newTestHarness(t)
	err := h.e.processCancel(&commandv1.Cancel{UserID: "nobody", OrderID: 999})
	require.Error(t, err)
	rej, ok := err.(*orderv1.RejectError)
	require.True(t, ok)
	assert.Equal(t, orderv1.ReasonUnknownOrder, rej.Reason)
}

func TestProcessCancelReleasesReservation(t *testing.T) {
	h := newTestHarness(t)
	h.registerUser(t, "maker")
	h.fund(t, "maker", "BTC", "10")

	price := amount.MustFromString("100.00")
	o, err := h.e.submit(&commandv1.Submit{
		UserID:      "maker",
		Symbol:      "BTC/USD",
		Side:        orderv1.Sell,
		Type:        orderv1.Limit,
		Qty:         amount.MustFromString("1"),
		LimitPrice:  &price,
		TimeInForce: orderv1.GTC,
	})
	require.NoError(t, err)

	before := h.ledger.Balance("maker", "BTC")
	assert.True(t, before.Locked.Equal(amount.MustFromString("1")))

	require.NoError(t, h.e.processCancel(&commandv1.Cancel{UserID: "maker", OrderID: o.ID}))

	after := h.ledger.Balance("maker", "BTC")
	assert.True(t, after.Available.Equal(amount.MustFromString("10")))
	assert.True(t, after.Locked.IsZero())
}

func TestSelfTradePreventionCancelsMaker(t *testing.T) {
	h := newTestHarness(t)
	h.registerUser(t, "trader")
	h.fund(t, "trader", "BTC", "10")
	h.fund(t, "trader", "USD", "100000")

	price := amount.MustFromString("100.00")
	maker, err := h.e.submit(&commandv1.Submit{
		UserID:      "trader",
		Symbol:      "BTC/USD",
		Side:        orderv1.Sell,
		Type:        orderv1.Limit,
		Qty:         amount.MustFromString("1"),
		LimitPrice:  &price,
		TimeInForce: orderv1.GTC,
	})
	require.NoError(t, err)

	taker, err := h.e.submit(&commandv1.Submit{
		UserID:      "trader",
		Symbol:      "BTC/USD",
		Side:        orderv1.Buy,
		Type:        orderv1.Limit,
		Qty:         amount.MustFromString("1"),
		LimitPrice:  &price,
		TimeInForce: orderv1.GTC,
	})
	require.NoError(t, err)

	// The resting order from the same user must be cancelled rather than
	// traded against, and its reservation fully released.
	_, stillResting := h.e.book.OrderByID(maker.ID)
	assert.False(t, stillResting)
	assert.Equal(t, orderv1.ReasonSelfTradePrevention, orderv1.RejectReason(maker.RejectReason))

	balance := h.ledger.Balance("trader", "BTC")
	assert.True(t, balance.Locked.IsZero())

	// With no other liquidity in the book, the taker rests instead of
	// crossing against its own cancelled order.
	resting, ok := h.e.book.OrderByID(taker.ID)
	require.True(t, ok)
	assert.True(t, resting.RemainingQty().Equal(amount.MustFromString("1")))
}

func TestStopOrderTriggersAndFillsOnCascade(t *testing.T) {
	h := newTestHarness(t)
	h.registerUser(t, "stopUser")
	h.registerUser(t, "maker1")
	h.registerUser(t, "maker2")
	h.registerUser(t, "taker1")
	h.fund(t, "stopUser", "USD", "100000")
	h.fund(t, "maker1", "BTC", "10")
	h.fund(t, "maker2", "BTC", "10")
	h.fund(t, "taker1", "USD", "100000")

	farPrice := amount.MustFromString("101.00")
	_, err := h.e.submit(&commandv1.Submit{
		UserID:      "maker2",
		Symbol:      "BTC/USD",
		Side:        orderv1.Sell,
		Type:        orderv1.Limit,
		Qty:         amount.MustFromString("1"),
		LimitPrice:  &farPrice,
		TimeInForce: orderv1.GTC,
	})
	require.NoError(t, err)

	stopPx := amount.MustFromString("100.00")
	stopOrder, err := h.e.submit(&commandv1.Submit{
		UserID:      "stopUser",
		Symbol:      "BTC/USD",
		Side:        orderv1.Buy,
		Type:        orderv1.Stop,
		Qty:         amount.MustFromString("1"),
		StopPrice:   &stopPx,
		TimeInForce: orderv1.GTC,
	})
	require.NoError(t, err)
	assert.Equal(t, orderv1.PendingTrigger, stopOrder.State)

	triggerPrice := amount.MustFromString("100.00")
	_, err = h.e.submit(&commandv1.Submit{
		UserID:      "maker1",
		Symbol:      "BTC/USD",
		Side:        orderv1.Sell,
		Type:        orderv1.Limit,
		Qty:         amount.MustFromString("1"),
		LimitPrice:  &triggerPrice,
		TimeInForce: orderv1.GTC,
	})
	require.NoError(t, err)

	_, err = h.e.submit(&commandv1.Submit{
		UserID:      "taker1",
		Symbol:      "BTC/USD",
		Side:        orderv1.Buy,
		Type:        orderv1.Limit,
		Qty:         amount.MustFromString("1"),
		LimitPrice:  &triggerPrice,
		TimeInForce: orderv1.GTC,
	})
	require.NoError(t, err)

	// The trade at 100.00 must have fired the stop, converted it to a
	// market order, and filled it against the remaining 101.00 liquidity.
	assert.True(t, stopOrder.IsFilled())
	assert.Equal(t, orderv1.Market, stopOrder.Type)

	stopUserBalance := h.ledger.Balance("stopUser", "BTC")
	assert.True(t, stopUserBalance.Available.Equal(amount.MustFromString("1")))
}

func TestBuyTrailingStopDoesNotFireUntilPriceRisesByTrail(t *testing.T) {
	h := newTestHarness(t)
	h.registerUser(t, "stopUser")
	h.registerUser(t, "maker1")
	h.registerUser(t, "maker2")
	h.registerUser(t, "taker1")
	h.fund(t, "stopUser", "USD", "100000")
	h.fund(t, "maker1", "BTC", "10")
	h.fund(t, "maker2", "BTC", "10")
	h.fund(t, "taker1", "USD", "100000")

	// Seed a best ask so the trailing stop's reservation can be
	// estimated, then submit the buy trailing stop itself: trail=5 off
	// a water mark of 100 implies an initial stop of 105.
	askPrice := amount.MustFromString("100.00")
	_, err := h.e.submit(&commandv1.Submit{
		UserID:      "maker1",
		Symbol:      "BTC/USD",
		Side:        orderv1.Sell,
		Type:        orderv1.Limit,
		Qty:         amount.MustFromString("1"),
		LimitPrice:  &askPrice,
		TimeInForce: orderv1.GTC,
	})
	require.NoError(t, err)

	trail := amount.MustFromString("5.00")
	stopOrder, err := h.e.submit(&commandv1.Submit{
		UserID:      "stopUser",
		Symbol:      "BTC/USD",
		Side:        orderv1.Buy,
		Type:        orderv1.TrailingStop,
		Qty:         amount.MustFromString("1"),
		TrailAmount: &trail,
		TimeInForce: orderv1.GTC,
	})
	require.NoError(t, err)
	assert.Equal(t, orderv1.PendingTrigger, stopOrder.State)
	require.NotNil(t, stopOrder.StopPrice)
	assert.True(t, stopOrder.StopPrice.Equal(amount.MustFromString("105.00")))

	// A trade at 100 (below the 105 stop) must not fire it: this is the
	// exact case a zero-valued initial StopPrice used to fire on.
	_, err = h.e.submit(&commandv1.Submit{
		UserID:      "taker1",
		Symbol:      "BTC/USD",
		Side:        orderv1.Buy,
		Type:        orderv1.Limit,
		Qty:         amount.MustFromString("1"),
		LimitPrice:  &askPrice,
		TimeInForce: orderv1.GTC,
	})
	require.NoError(t, err)
	assert.Equal(t, orderv1.PendingTrigger, stopOrder.State)
	assert.Equal(t, orderv1.TrailingStop, stopOrder.Type)

	// Now drive the last trade price up to 105: the stop must fire.
	highPrice := amount.MustFromString("105.00")
	_, err = h.e.submit(&commandv1.Submit{
		UserID:      "maker2",
		Symbol:      "BTC/USD",
		Side:        orderv1.Sell,
		Type:        orderv1.Limit,
		Qty:         amount.MustFromString("1"),
		LimitPrice:  &highPrice,
		TimeInForce: orderv1.GTC,
	})
	require.NoError(t, err)
	_, err = h.e.submit(&commandv1.Submit{
		UserID:      "taker1",
		Symbol:      "BTC/USD",
		Side:        orderv1.Buy,
		Type:        orderv1.Limit,
		Qty:         amount.MustFromString("1"),
		LimitPrice:  &highPrice,
		TimeInForce: orderv1.GTC,
	})
	require.NoError(t, err)

	assert.NotEqual(t, orderv1.PendingTrigger, stopOrder.State)
	assert.Equal(t, orderv1.Market, stopOrder.Type)
}

func TestProcessModifyQtyDecreasePreservesPriority(t *testing.T) {
	h := newTestHarness(t)
	h.registerUser(t, "maker1")
	h.registerUser(t, "maker2")
	h.registerUser(t, "taker")
	h.fund(t, "maker1", "BTC", "10")
	h.fund(t, "maker2", "BTC", "10")
	h.fund(t, "taker", "USD", "100000")

	price := amount.MustFromString("100.00")
	maker1, err := h.e.submit(&commandv1.Submit{
		UserID:      "maker1",
		Symbol:      "BTC/USD",
		Side:        orderv1.Sell,
		Type:        orderv1.Limit,
		Qty:         amount.MustFromString("2"),
		LimitPrice:  &price,
		TimeInForce: orderv1.GTC,
	})
	require.NoError(t, err)
	originalAcceptedTs := maker1.AcceptedTs

	_, err = h.e.submit(&commandv1.Submit{
		UserID:      "maker2",
		Symbol:      "BTC/USD",
		Side:        orderv1.Sell,
		Type:        orderv1.Limit,
		Qty:         amount.MustFromString("2"),
		LimitPrice:  &price,
		TimeInForce: orderv1.GTC,
	})
	require.NoError(t, err)

	newQty := amount.MustFromString("1")
	require.NoError(t, h.e.processModify(&commandv1.Modify{
		UserID:  "maker1",
		OrderID: maker1.ID,
		NewQty:  &newQty,
	}))
	assert.Equal(t, originalAcceptedTs, maker1.AcceptedTs)
	assert.True(t, maker1.Qty.Equal(newQty))

	balance := h.ledger.Balance("maker1", "BTC")
	assert.True(t, balance.Locked.Equal(newQty))
	assert.True(t, balance.Available.Equal(amount.MustFromString("9")))

	// maker1 still sits ahead of maker2 in the queue: a taker crossing
	// for qty 1 must fill maker1 in full rather than maker2.
	_, err = h.e.submit(&commandv1.Submit{
		UserID:      "taker",
		Symbol:      "BTC/USD",
		Side:        orderv1.Buy,
		Type:        orderv1.Limit,
		Qty:         amount.MustFromString("1"),
		LimitPrice:  &price,
		TimeInForce: orderv1.GTC,
	})
	require.NoError(t, err)

	assert.Equal(t, orderv1.Filled, maker1.State)
	_, maker1Resting := h.e.book.OrderByID(maker1.ID)
	assert.False(t, maker1Resting)
}

func TestProcessModifyQtyDecreasePreservesFilledQty(t *testing.T) {
	h := newTestHarness(t)
	h.registerUser(t, "maker")
	h.registerUser(t, "taker")
	h.fund(t, "maker", "BTC", "10")
	h.fund(t, "taker", "USD", "100000")

	price := amount.MustFromString("100.00")
	maker, err := h.e.submit(&commandv1.Submit{
		UserID:      "maker",
		Symbol:      "BTC/USD",
		Side:        orderv1.Sell,
		Type:        orderv1.Limit,
		Qty:         amount.MustFromString("3"),
		LimitPrice:  &price,
		TimeInForce: orderv1.GTC,
	})
	require.NoError(t, err)

	_, err = h.e.submit(&commandv1.Submit{
		UserID:      "taker",
		Symbol:      "BTC/USD",
		Side:        orderv1.Buy,
		Type:        orderv1.Limit,
		Qty:         amount.MustFromString("1"),
		LimitPrice:  &price,
		TimeInForce: orderv1.GTC,
	})
	require.NoError(t, err)
	require.True(t, maker.FilledQty.Equal(amount.MustFromString("1")))
	require.Equal(t, orderv1.PartiallyFilled, maker.State)

	newQty := amount.MustFromString("2")
	require.NoError(t, h.e.processModify(&commandv1.Modify{
		UserID:  "maker",
		OrderID: maker.ID,
		NewQty:  &newQty,
	}))

	// filled_qty must survive the modify untouched; only the unfilled
	// remainder shrinks.
	assert.True(t, maker.FilledQty.Equal(amount.MustFromString("1")))
	assert.True(t, maker.RemainingQty().Equal(amount.MustFromString("1")))

	balance := h.ledger.Balance("maker", "BTC")
	assert.True(t, balance.Locked.Equal(amount.MustFromString("1")))
}

func TestProcessModifyPriceChangeLosesPriority(t *testing.T) {
	h := newTestHarness(t)
	h.registerUser(t, "maker")
	h.fund(t, "maker", "BTC", "10")

	price := amount.MustFromString("100.00")
	maker, err := h.e.submit(&commandv1.Submit{
		UserID:      "maker",
		Symbol:      "BTC/USD",
		Side:        orderv1.Sell,
		Type:        orderv1.Limit,
		Qty:         amount.MustFromString("2"),
		LimitPrice:  &price,
		TimeInForce: orderv1.GTC,
	})
	require.NoError(t, err)
	originalAcceptedTs := maker.AcceptedTs

	newPrice := amount.MustFromString("101.00")
	require.NoError(t, h.e.processModify(&commandv1.Modify{
		UserID:   "maker",
		OrderID:  maker.ID,
		NewPrice: &newPrice,
	}))

	// A price change is equivalent to Cancel+Submit: a fresh
	// accepted_ts and filled_qty reset to zero.
	assert.NotEqual(t, originalAcceptedTs, maker.AcceptedTs)
	assert.True(t, maker.FilledQty.IsZero())
	assert.True(t, maker.LimitPrice.Equal(newPrice))
}

func TestIcebergDisplaysOnlyVisibleSlice(t *testing.T) {
	h := newTestHarness(t)
	h.registerUser(t, "maker")
	h.fund(t, "maker", "BTC", "10")

	price := amount.MustFromString("100.00")
	displayQty := amount.MustFromString("1")
	o, err := h.e.submit(&commandv1.Submit{
		UserID:      "maker",
		Symbol:      "BTC/USD",
		Side:        orderv1.Sell,
		Type:        orderv1.Iceberg,
		Qty:         amount.MustFromString("5"),
		LimitPrice:  &price,
		DisplayQty:  &displayQty,
		TimeInForce: orderv1.GTC,
	})
	require.NoError(t, err)

	resting, ok := h.e.book.OrderByID(o.ID)
	require.True(t, ok)
	assert.True(t, resting.RemainingQty().Equal(amount.MustFromString("1")))
}
