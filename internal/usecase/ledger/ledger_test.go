package ledger_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clobcore/matching-engine/internal/domain/amount"
	ledgerv1 "github.com/clobcore/matching-engine/internal/domain/ledger/v1"
	"github.com/clobcore/matching-engine/internal/domain/market"
	"github.com/clobcore/matching-engine/internal/usecase/ledger"
	"github.com/clobcore/matching-engine/pkg/logger"
)

func newLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	l, err := logger.NewLogger()
	require.NoError(t, err)
	return ledger.New(l)
}

func TestReserveAndRelease(t *testing.T) {
	l := newLedger(t)
	require.NoError(t, l.Mint("A", "USD", amount.MustFromString("1000")))

	require.NoError(t, l.Reserve("A", "USD", amount.MustFromString("100")))
	bal := l.Balance("A", "USD")
	assert.True(t, bal.Available.Equal(amount.MustFromString("900")))
	assert.True(t, bal.Locked.Equal(amount.MustFromString("100")))

	require.NoError(t, l.Release("A", "USD", amount.MustFromString("100")))
	bal = l.Balance("A", "USD")
	assert.True(t, bal.Available.Equal(amount.MustFromString("1000")))
	assert.True(t, bal.Locked.IsZero())
}

func TestReserveInsufficient(t *testing.T) {
	l := newLedger(t)
	err := l.Reserve("A", "USD", amount.MustFromString("1"))
	require.Error(t, err)
	var insErr *ledgerv1.InsufficientError
	assert.ErrorAs(t, err, &insErr)
}

func TestSettleTradeFourLegs(t *testing.T) {
	l := newLedger(t)
	require.NoError(t, l.Mint("buyer", "USD", amount.MustFromString("1000")))
	require.NoError(t, l.Mint("seller", "BTC", amount.MustFromString("10")))

	require.NoError(t, l.Reserve("buyer", "USD", amount.MustFromString("1000")))
	require.NoError(t, l.Reserve("seller", "BTC", amount.MustFromString("10")))

	sym := market.Symbol{Base: "BTC", Quote: "USD"}
	err := l.SettleTrade(ledgerv1.Trade{
		Symbol:     sym,
		Price:      amount.MustFromString("100"),
		Qty:        amount.MustFromString("1"),
		BuyerAcct:  "buyer",
		SellerAcct: "seller",
	})
	require.NoError(t, err)

	buyerUSD := l.Balance("buyer", "USD")
	buyerBTC := l.Balance("buyer", "BTC")
	sellerUSD := l.Balance("seller", "USD")
	sellerBTC := l.Balance("seller", "BTC")

	assert.True(t, buyerUSD.Locked.Equal(amount.MustFromString("900")))
	assert.True(t, buyerBTC.Available.Equal(amount.MustFromString("1")))
	assert.True(t, sellerBTC.Locked.Equal(amount.MustFromString("9")))
	assert.True(t, sellerUSD.Available.Equal(amount.MustFromString("100")))
}

func TestSettleTradeFatalOnInsufficientLocked(t *testing.T) {
	l := newLedger(t)
	sym := market.Symbol{Base: "BTC", Quote: "USD"}
	err := l.SettleTrade(ledgerv1.Trade{
		Symbol:     sym,
		Price:      amount.MustFromString("100"),
		Qty:        amount.MustFromString("1"),
		BuyerAcct:  "buyer",
		SellerAcct: "seller",
	})
	require.Error(t, err)
	var fatal *ledgerv1.FatalError
	assert.ErrorAs(t, err, &fatal)
}
