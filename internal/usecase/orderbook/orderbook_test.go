package orderbook_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clobcore/matching-engine/internal/domain/amount"
	"github.com/clobcore/matching-engine/internal/domain/market"
	orderv1 "github.com/clobcore/matching-engine/internal/domain/order/v1"
	"github.com/clobcore/matching-engine/internal/usecase/orderbook"
	"github.com/clobcore/matching-engine/pkg/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	l, err := logger.NewLogger()
	require.NoError(t, err)
	return l
}

func testCfg() market.Config {
	return market.Config{
		Symbol:      market.Symbol{Base: "BTC", Quote: "USD"},
		TickSize:    amount.MustFromString("0.01"),
		LotSize:     amount.MustFromString("0.00000001"),
		MinNotional: amount.Zero,
		MaxOrderQty: amount.MustFromString("1000000"),
	}
}

func limitOrder(id int64, userID string, side orderv1.Side, px, qty string) *orderv1.Order {
	p := amount.MustFromString(px)
	return &orderv1.Order{
		ID:          id,
		UserID:      userID,
		Side:        side,
		Type:        orderv1.Limit,
		Qty:         amount.MustFromString(qty),
		LimitPrice:  &p,
		TimeInForce: orderv1.GTC,
		State:       orderv1.New,
	}
}

func TestCrossingLimitAgainstResting(t *testing.T) {
	book := orderbook.New(testCfg(), testLogger(t))

	seller := limitOrder(1, "B", orderv1.Sell, "100.00", "1.00000000")
	require.NoError(t, book.Insert(seller))

	buyer := limitOrder(2, "A", orderv1.Buy, "100.50", "1.00000000")
	result := book.Match(buyer)

	require.Len(t, result.Trades, 1)
	assert.True(t, result.Trades[0].Price.Equal(amount.MustFromString("100.00")))
	assert.True(t, buyer.IsFilled())

	_, hasBid := book.BestBid()
	assert.False(t, hasBid)
}

func TestSelfTradePrevention(t *testing.T) {
	book := orderbook.New(testCfg(), testLogger(t))

	sell := limitOrder(1, "A", orderv1.Sell, "101.00", "0.5")
	require.NoError(t, book.Insert(sell))

	buy := limitOrder(2, "A", orderv1.Buy, "101.00", "0.5")
	result := book.Match(buy)

	assert.Empty(t, result.Trades)
	assert.Equal(t, []int64{1}, result.SelfTradeCancels)
	assert.Equal(t, orderv1.Cancelled, sell.State)
}

func TestCancelRemovesEmptyLevel(t *testing.T) {
	book := orderbook.New(testCfg(), testLogger(t))
	o := limitOrder(1, "A", orderv1.Buy, "99.00", "1")
	require.NoError(t, book.Insert(o))

	_, err := book.Cancel(1)
	require.NoError(t, err)

	_, ok := book.BestBid()
	assert.False(t, ok)
}

func TestTickSizeValidation(t *testing.T) {
	book := orderbook.New(testCfg(), testLogger(t))
	bad := limitOrder(1, "A", orderv1.Buy, "99.005", "1")
	err := book.Insert(bad)
	require.Error(t, err)
	var rej *orderv1.RejectError
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, orderv1.ReasonTickSizeViolation, rej.Reason)
}
