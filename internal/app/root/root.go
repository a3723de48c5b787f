// Package root wires together every per-symbol matching engine that one
// process runs: it loads the symbol/tier catalogue, builds the shared
// Ledger and RiskGate, and starts/stops one engine.Engine per symbol
// concurrently. Grounded on the teacher's single-symbol cmd/main.go
// wiring, generalized from one engine to a registry of them.
package root

import (
	"context"
	"fmt"
	"strings"

	"github.com/sourcegraph/conc"
	"go.uber.org/multierr"

	"github.com/clobcore/matching-engine/internal/app/engine"
	commandreader "github.com/clobcore/matching-engine/internal/usecase/command-reader"
	eventpublisher "github.com/clobcore/matching-engine/internal/usecase/event-publisher"
	"github.com/clobcore/matching-engine/internal/domain/market"
	riskv1 "github.com/clobcore/matching-engine/internal/domain/risk/v1"
	"github.com/clobcore/matching-engine/internal/usecase/ledger"
	orderbook "github.com/clobcore/matching-engine/internal/usecase/orderbook"
	"github.com/clobcore/matching-engine/internal/usecase/risk"
	"github.com/clobcore/matching-engine/internal/usecase/snapshot"
	"github.com/clobcore/matching-engine/internal/usecase/trigger"
	"github.com/clobcore/matching-engine/pkg/config"
	"github.com/clobcore/matching-engine/pkg/logger"
	"github.com/clobcore/matching-engine/pkg/redis"
)

// Registry owns every symbol's engine plus the cross-symbol state they
// share: the Ledger and the RiskGate.
type Registry struct {
	logger *logger.Logger

	ledger *ledger.Ledger
	risk   *risk.Gate

	audit      *eventpublisher.AuditSink
	marketData *eventpublisher.MarketDataSink

	engines []*engine.Engine
}

// New builds every configured symbol's engine, sharing one Ledger, one
// RiskGate, one audit sink, and one market-data sink across all of them.
func New(cfg *config.Config, market_ *config.MarketConfig, rclient redis.Client, log *logger.Logger) (*Registry, error) {
	tiers := make(map[string]riskv1.Tier, len(market_.Tiers))
	for _, t := range market_.Tiers {
		tier, err := toRiskTier(t)
		if err != nil {
			return nil, fmt.Errorf("risk tier %s: %w", t.Name, err)
		}
		tiers[t.Name] = tier
	}

	audit := eventpublisher.NewAuditSink(cfg.AuditKafka.Brokers, cfg.AuditKafka.Topic)
	marketData, err := eventpublisher.NewMarketDataSink(cfg.NATSConfig.URL, log)
	if err != nil {
		return nil, fmt.Errorf("market data sink: %w", err)
	}

	r := &Registry{
		logger:     log,
		ledger:     ledger.New(log),
		risk:       risk.New(tiers, log),
		audit:      audit,
		marketData: marketData,
	}

	for _, sc := range market_.Symbols {
		mc, err := toMarketConfig(sc)
		if err != nil {
			_ = marketData.Close()
			return nil, fmt.Errorf("symbol %s: %w", sc.Symbol, err)
		}

		eng, err := r.buildEngine(cfg, mc, rclient, log)
		if err != nil {
			_ = marketData.Close()
			return nil, fmt.Errorf("symbol %s: %w", sc.Symbol, err)
		}
		r.engines = append(r.engines, eng)
	}

	return r, nil
}

func (r *Registry) buildEngine(cfg *config.Config, mc market.Config, rclient redis.Client, log *logger.Logger) (*engine.Engine, error) {
	symbolSlug := slug(mc.Symbol.String())

	book := orderbook.New(mc, log)
	triggers := trigger.New(log)
	snapshotStore := snapshot.NewSnapshotStore(rclient, mc.Symbol.String(), log)

	reader := commandreader.NewReader(commandreader.Config{
		Brokers: cfg.CommandKafka.Brokers,
		Topic:   cfg.CommandKafka.Topic + "." + symbolSlug,
		GroupID: cfg.CommandKafka.GroupID + "-" + symbolSlug,
	}, log)

	opts := engine.DefaultEngineOptions()
	opts.EventRingDepth = cfg.EngineConfig.EventRingDepth

	eng := engine.NewEngine(mc, book, triggers, r.ledger, r.risk, reader, r.audit, r.marketData, snapshotStore, log, opts)

	if snap, err := snapshotStore.LoadStore(context.Background()); err != nil {
		log.Warn("snapshot load failed, starting flat",
			logger.Field{Key: "symbol", Value: mc.Symbol.String()},
			logger.Field{Key: "error", Value: err.Error()})
	} else if snap != nil {
		if err := eng.LoadSnapshot(snap); err != nil {
			return nil, fmt.Errorf("restore snapshot: %w", err)
		}
	}

	return eng, nil
}

// Run starts every symbol's engine concurrently and blocks until every
// one of them has returned; an engine that stops early does not stop the
// others. Errors from engines that returned while ctx was still live are
// combined into the returned error.
func (r *Registry) Run(ctx context.Context) error {
	var wg conc.WaitGroup
	errs := make([]error, len(r.engines))

	for i, eng := range r.engines {
		i, eng := i, eng
		wg.Go(func() {
			if err := eng.Run(ctx); err != nil && ctx.Err() == nil {
				errs[i] = err
			}
		})
	}
	wg.Wait()

	var combined error
	for _, err := range errs {
		combined = multierr.Append(combined, err)
	}
	return combined
}

// Close tears down the shared publishers. Call after Run returns.
func (r *Registry) Close() error {
	return multierr.Combine(r.audit.Close(), r.marketData.Close())
}

func toMarketConfig(sc config.SymbolConfig) (market.Config, error) {
	parts := strings.SplitN(sc.Symbol, "/", 2)
	if len(parts) != 2 {
		return market.Config{}, fmt.Errorf("malformed symbol %q, want BASE/QUOTE", sc.Symbol)
	}

	tick, err := config.Amount(sc.TickSize)
	if err != nil {
		return market.Config{}, fmt.Errorf("tick_size: %w", err)
	}
	lot, err := config.Amount(sc.LotSize)
	if err != nil {
		return market.Config{}, fmt.Errorf("lot_size: %w", err)
	}
	minNotional, err := config.Amount(sc.MinNotional)
	if err != nil {
		return market.Config{}, fmt.Errorf("min_notional: %w", err)
	}
	maxQty, err := config.Amount(sc.MaxOrderQty)
	if err != nil {
		return market.Config{}, fmt.Errorf("max_order_qty: %w", err)
	}

	return market.Config{
		Symbol:            market.Symbol{Base: market.Asset(parts[0]), Quote: market.Asset(parts[1])},
		TickSize:          tick,
		LotSize:           lot,
		MinNotional:       minNotional,
		MaxOrderQty:       maxQty,
		ProtectionBandBps: sc.ProtectionBandBps,
	}, nil
}

func toRiskTier(t config.RiskTierConfig) (riskv1.Tier, error) {
	maxPosition, err := config.Amount(t.MaxPosition)
	if err != nil {
		return riskv1.Tier{}, fmt.Errorf("max_position: %w", err)
	}
	maxDailyLoss, err := config.Amount(t.MaxDailyLoss)
	if err != nil {
		return riskv1.Tier{}, fmt.Errorf("max_daily_loss: %w", err)
	}
	maxOrderSize, err := config.Amount(t.MaxOrderSize)
	if err != nil {
		return riskv1.Tier{}, fmt.Errorf("max_order_size: %w", err)
	}
	maxLeverage, err := config.Amount(t.MaxLeverage)
	if err != nil {
		return riskv1.Tier{}, fmt.Errorf("max_leverage: %w", err)
	}

	return riskv1.Tier{
		Name:            t.Name,
		MaxPosition:     maxPosition,
		MaxDailyLoss:    maxDailyLoss,
		MaxOrderSize:    maxOrderSize,
		MaxLeverage:     maxLeverage,
		MaxOpenOrders:   t.MaxOpenOrders,
		MaxDailyTrades:  t.MaxDailyTrades,
		RateLimitPerSec: t.RateLimitPerSec,
		RateLimitBurst:  t.RateLimitBurst,
	}, nil
}

func slug(symbol string) string {
	return strings.ToLower(strings.ReplaceAll(symbol, "/", "-"))
}
