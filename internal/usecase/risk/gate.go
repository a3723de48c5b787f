// Package risk implements the per-user pre-trade risk gate of spec §4.5.
// Each check is a pure, synchronous function of data local to the user;
// the only I/O-shaped piece is the per-user token bucket rate limiter
// from golang.org/x/time/rate. The check ordering mirrors the original
// RiskEngine.check_pre_trade_risk: profile -> enabled -> halt -> order
// size -> position -> daily trades -> rate limit -> daily loss.
package risk

import (
	"sync"

	"golang.org/x/time/rate"

	"github.com/clobcore/matching-engine/internal/domain/amount"
	orderv1 "github.com/clobcore/matching-engine/internal/domain/order/v1"
	riskv1 "github.com/clobcore/matching-engine/internal/domain/risk/v1"
	"github.com/clobcore/matching-engine/pkg/logger"
)

type userState struct {
	mu sync.Mutex

	profile riskv1.Profile
	tier    riskv1.Tier
	limiter *rate.Limiter

	positions   map[string]amount.Amount // symbol -> signed position qty
	avgPrice    map[string]amount.Amount // symbol -> volume-weighted average entry price
	dailyTrades int
	dailyLoss   amount.Amount
}

// Gate is the concrete per-process risk gate; it is shared across all
// symbol engines since limits are defined per-user, not per-symbol.
type Gate struct {
	mu    sync.RWMutex
	users map[string]*userState
	tiers map[string]riskv1.Tier

	logger *logger.Logger
}

// New builds a Gate with the given tier definitions keyed by tier name.
func New(tiers map[string]riskv1.Tier, log *logger.Logger) *Gate {
	return &Gate{
		users:  make(map[string]*userState),
		tiers:  tiers,
		logger: log,
	}
}

// RegisterProfile adds or replaces a user's risk profile and (re)creates
// its rate limiter from the assigned tier.
func (g *Gate) RegisterProfile(p riskv1.Profile) {
	tier := g.tiers[p.Tier]

	g.mu.Lock()
	defer g.mu.Unlock()
	g.users[p.UserID] = &userState{
		profile:   p,
		tier:      tier,
		limiter:   rate.NewLimiter(rate.Limit(tier.RateLimitPerSec), tier.RateLimitBurst),
		positions: make(map[string]amount.Amount),
		avgPrice:  make(map[string]amount.Amount),
		dailyLoss: amount.Zero,
	}
}

func (g *Gate) stateFor(userID string) (*userState, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	u, ok := g.users[userID]
	return u, ok
}

// Check performs the ordered pre-trade risk sequence. Every failure maps
// to a typed client RejectError; none have side effects.
func (g *Gate) Check(req riskv1.CheckRequest) error {
	u, ok := g.stateFor(req.UserID)
	if !ok {
		return orderv1.NewRejectError(orderv1.ReasonRiskLimitExceeded)
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	if !u.profile.Enabled {
		return orderv1.NewRejectError(orderv1.ReasonRiskLimitExceeded)
	}
	if req.HaltedSymbol {
		return orderv1.NewRejectError(orderv1.ReasonRiskLimitExceeded)
	}
	if req.Qty.GreaterThan(u.tier.MaxOrderSize) {
		return orderv1.NewRejectError(orderv1.ReasonRiskLimitExceeded)
	}

	current := u.positions[req.Symbol]
	delta := req.Qty
	if req.Side == "sell" {
		delta = delta.Neg()
	}
	newPosition := current.Add(delta)
	if newPosition.Abs().GreaterThan(u.tier.MaxPosition) {
		return orderv1.NewRejectError(orderv1.ReasonRiskLimitExceeded)
	}

	if u.dailyTrades >= u.tier.MaxDailyTrades {
		return orderv1.NewRejectError(orderv1.ReasonRiskLimitExceeded)
	}

	if !u.limiter.Allow() {
		return orderv1.NewRejectError(orderv1.ReasonRateLimited)
	}

	if u.dailyLoss.GreaterThanOrEqual(u.tier.MaxDailyLoss) {
		return orderv1.NewRejectError(orderv1.ReasonRiskLimitExceeded)
	}

	return nil
}

// RecordFill updates the user's running position, volume-weighted
// average entry price, daily trade count, and realized-loss accumulator
// after a trade settles, mirroring update_position: a buy rolls into the
// average price, a sell against an existing long realizes qty * (price
// - average_price) and, if negative, feeds the daily-loss accumulator.
// A sell against a long realizes over its whole qty, including any part
// that exceeds the long; a sell against a short or flat position
// realizes nothing, matching the original's position.quantity > 0 guard.
func (g *Gate) RecordFill(userID, symbol string, side string, qty, price amount.Amount) {
	u, ok := g.stateFor(userID)
	if !ok {
		return
	}
	u.mu.Lock()
	defer u.mu.Unlock()

	current := u.positions[symbol]
	avg := u.avgPrice[symbol]

	if side == "sell" {
		if current.IsPos() {
			pnl := qty.Mul(price.Sub(avg))
			g.recordRealizedLossLocked(u, pnl.Neg())
		}
		u.positions[symbol] = current.Sub(qty)
	} else {
		totalCost := current.Mul(avg).Add(qty.Mul(price))
		newQty := current.Add(qty)
		u.positions[symbol] = newQty
		if !newQty.IsZero() {
			u.avgPrice[symbol] = totalCost.Div(newQty)
		}
	}
	u.dailyTrades++
}

// recordRealizedLossLocked is RecordRealizedLoss's body, callable from
// RecordFill without re-acquiring u.mu (sync.Mutex is not reentrant).
func (g *Gate) recordRealizedLossLocked(u *userState, loss amount.Amount) {
	if !loss.IsPos() {
		return
	}
	u.dailyLoss = u.dailyLoss.Add(loss)
}

// RecordRealizedLoss accumulates realized losses only, matching
// _update_daily_pnl: unrealized mark-to-market P&L never feeds this
// accumulator.
func (g *Gate) RecordRealizedLoss(userID string, loss amount.Amount) {
	u, ok := g.stateFor(userID)
	if !ok {
		return
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	g.recordRealizedLossLocked(u, loss)
}

// ResetDaily clears daily trade counts and realized loss accumulators;
// called from Tick at session boundary.
func (g *Gate) ResetDaily() {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, u := range g.users {
		u.mu.Lock()
		u.dailyTrades = 0
		u.dailyLoss = amount.Zero
		u.mu.Unlock()
	}
}
