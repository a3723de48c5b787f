package risk_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clobcore/matching-engine/internal/domain/amount"
	orderv1 "github.com/clobcore/matching-engine/internal/domain/order/v1"
	riskv1 "github.com/clobcore/matching-engine/internal/domain/risk/v1"
	"github.com/clobcore/matching-engine/internal/usecase/risk"
	"github.com/clobcore/matching-engine/pkg/logger"
)

func newGate(t *testing.T) *risk.Gate {
	t.Helper()
	l, err := logger.NewLogger()
	require.NoError(t, err)
	tiers := map[string]riskv1.Tier{
		"retail": {
			Name:            "retail",
			MaxPosition:     amount.MustFromString("100"),
			MaxDailyLoss:    amount.MustFromString("1000"),
			MaxOrderSize:    amount.MustFromString("10"),
			MaxDailyTrades:  5,
			RateLimitPerSec: 1000,
			RateLimitBurst:  1000,
		},
	}
	return risk.New(tiers, l)
}

func TestCheckRejectsUnknownUser(t *testing.T) {
	g := newGate(t)
	err := g.Check(riskv1.CheckRequest{UserID: "nobody", Qty: amount.MustFromString("1")})
	require.Error(t, err)
}

func TestCheckOrderSizeLimit(t *testing.T) {
	g := newGate(t)
	g.RegisterProfile(riskv1.Profile{UserID: "A", Tier: "retail", Enabled: true})

	err := g.Check(riskv1.CheckRequest{UserID: "A", Symbol: "BTC/USD", Side: "buy", Qty: amount.MustFromString("11")})
	require.Error(t, err)
	var rej *orderv1.RejectError
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, orderv1.ReasonRiskLimitExceeded, rej.Reason)
}

func TestCheckPasses(t *testing.T) {
	g := newGate(t)
	g.RegisterProfile(riskv1.Profile{UserID: "A", Tier: "retail", Enabled: true})

	err := g.Check(riskv1.CheckRequest{UserID: "A", Symbol: "BTC/USD", Side: "buy", Qty: amount.MustFromString("5")})
	require.NoError(t, err)
}

func TestDailyTradeLimit(t *testing.T) {
	g := newGate(t)
	g.RegisterProfile(riskv1.Profile{UserID: "A", Tier: "retail", Enabled: true})

	for i := 0; i < 5; i++ {
		g.RecordFill("A", "BTC/USD", "buy", amount.MustFromString("1"), amount.MustFromString("100"))
	}

	err := g.Check(riskv1.CheckRequest{UserID: "A", Symbol: "BTC/USD", Side: "buy", Qty: amount.MustFromString("1")})
	require.Error(t, err)
}

func TestRecordFillRealizesLossOnClosingSell(t *testing.T) {
	g := newGate(t)
	g.RegisterProfile(riskv1.Profile{UserID: "A", Tier: "retail", Enabled: true})

	g.RecordFill("A", "BTC/USD", "buy", amount.MustFromString("1"), amount.MustFromString("100"))
	// Selling below the 100 entry price realizes a 10 loss, well under
	// this tier's 1000 daily-loss limit, so further orders still pass.
	g.RecordFill("A", "BTC/USD", "sell", amount.MustFromString("1"), amount.MustFromString("90"))

	err := g.Check(riskv1.CheckRequest{UserID: "A", Symbol: "BTC/USD", Side: "buy", Qty: amount.MustFromString("1")})
	require.NoError(t, err)
}

func TestRecordFillDailyLossLimitRejectsFurtherOrders(t *testing.T) {
	g := newGate(t)
	g.RegisterProfile(riskv1.Profile{UserID: "A", Tier: "retail", Enabled: true})

	g.RecordFill("A", "BTC/USD", "buy", amount.MustFromString("10"), amount.MustFromString("100"))
	// Selling the whole 10-unit long at 0 realizes a 1000 loss, meeting
	// this tier's 1000 daily-loss limit.
	g.RecordFill("A", "BTC/USD", "sell", amount.MustFromString("10"), amount.MustFromString("0"))

	err := g.Check(riskv1.CheckRequest{UserID: "A", Symbol: "BTC/USD", Side: "buy", Qty: amount.MustFromString("1")})
	require.Error(t, err)
	var rej *orderv1.RejectError
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, orderv1.ReasonRiskLimitExceeded, rej.Reason)
}

func TestResetDailyClearsCounters(t *testing.T) {
	g := newGate(t)
	g.RegisterProfile(riskv1.Profile{UserID: "A", Tier: "retail", Enabled: true})
	for i := 0; i < 5; i++ {
		g.RecordFill("A", "BTC/USD", "buy", amount.MustFromString("1"), amount.MustFromString("100"))
	}
	g.ResetDaily()

	err := g.Check(riskv1.CheckRequest{UserID: "A", Symbol: "BTC/USD", Side: "buy", Qty: amount.MustFromString("1")})
	require.NoError(t, err)
}
