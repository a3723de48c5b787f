// Package engine implements the per-symbol MatchingEngine of spec §4.4:
// the single-threaded executor that owns one symbol's order book and
// trigger registry end to end, draining its command queue and turning
// each Submit/Cancel/Modify/Tick into validation, risk checks, ledger
// reservation, matching, settlement, trigger cascades, and ordered event
// emission. Grounded on the teacher's app/engine.Engine (NewEngine,
// processOrder, offset/snapshot bookkeeping), generalized from a single
// order-placement RPC to the full command surface.
package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/clobcore/matching-engine/internal/domain/amount"
	commandreaderv1 "github.com/clobcore/matching-engine/internal/domain/commandreader/v1"
	eventv1 "github.com/clobcore/matching-engine/internal/domain/event/v1"
	eventpublisherv1 "github.com/clobcore/matching-engine/internal/domain/eventpublisher/v1"
	ledgerv1 "github.com/clobcore/matching-engine/internal/domain/ledger/v1"
	"github.com/clobcore/matching-engine/internal/domain/market"
	orderv1 "github.com/clobcore/matching-engine/internal/domain/order/v1"
	obv1 "github.com/clobcore/matching-engine/internal/domain/orderbook/v1"
	riskv1 "github.com/clobcore/matching-engine/internal/domain/risk/v1"
	snapshotv1 "github.com/clobcore/matching-engine/internal/domain/snapshot/v1"
	triggerv1 "github.com/clobcore/matching-engine/internal/domain/trigger/v1"
	eventpublisher "github.com/clobcore/matching-engine/internal/usecase/event-publisher"
	"github.com/clobcore/matching-engine/pkg/errors"
	"github.com/clobcore/matching-engine/pkg/logger"
)

// Engine is the concrete per-symbol executor. One instance is driven by
// exactly one goroutine for its resting state, matching algorithm, and
// trigger registry; the Ledger and RiskGate it holds are the only state
// shared with other symbols' engines.
type Engine struct {
	symbol market.Config
	logger *logger.Logger
	opts   *Options

	book     obv1.OrderBook
	triggers triggerv1.Registry
	ledger   ledgerv1.Ledger
	risk     riskv1.Gate

	reader       commandreaderv1.Reader
	audit        eventpublisherv1.AuditPublisher
	marketData   eventpublisherv1.MarketDataPublisher
	snapshots    snapshotv1.Store
	auditRing    *eventpublisher.Ring
	marketRing   *eventpublisher.Ring

	nextOrderID   int64
	acceptedTsSeq int64
	sequenceNum   int64
	orderOffset   int64
	lastSnapshotOffset int64
	totalMatches  int64

	lastTradePx atomic.Value // amount.Amount

	// icebergOriginals tracks each resting iceberg's full hidden order by
	// id; only the engine's own goroutine ever touches it.
	icebergOriginals map[int64]*orderv1.Order

	mu       sync.RWMutex
	halted   bool
	haltedAt string

	ctx    context.Context
	cancel context.CancelFunc
}

// NewEngine wires one symbol's dependencies together. book and triggers
// start empty; call LoadSnapshot before Run to resume prior state.
func NewEngine(
	symbol market.Config,
	book obv1.OrderBook,
	triggers triggerv1.Registry,
	ledger ledgerv1.Ledger,
	risk riskv1.Gate,
	reader commandreaderv1.Reader,
	audit eventpublisherv1.AuditPublisher,
	marketData eventpublisherv1.MarketDataPublisher,
	snapshots snapshotv1.Store,
	log *logger.Logger,
	opts *Options,
) *Engine {
	if opts == nil {
		opts = DefaultEngineOptions()
	}
	e := &Engine{
		symbol:      symbol,
		logger:      log,
		opts:        opts,
		book:        book,
		triggers:    triggers,
		ledger:      ledger,
		risk:        risk,
		reader:      reader,
		audit:       audit,
		marketData:  marketData,
		snapshots:   snapshots,
		auditRing:        eventpublisher.NewRing(opts.EventRingDepth),
		marketRing:       eventpublisher.NewRing(opts.EventRingDepth),
		acceptedTsSeq:    time.Now().UnixNano(),
		icebergOriginals: make(map[int64]*orderv1.Order),
	}
	// Sequence numbers are contiguous starting from 0; AddInt64 pre-increments,
	// so start one below that.
	e.sequenceNum = -1
	e.lastTradePx.Store(amount.Zero)
	return e
}

// Run blocks until ctx is cancelled, draining the command queue and the
// two event rings concurrently. runCommandLoop recovers its own panics
// and turns them into a halt of this symbol only; conc.WaitGroup.Wait
// re-panics to its caller anything it doesn't catch, and Registry.Run
// calls Wait on every symbol's Engine from inside its own WaitGroup, so
// an unrecovered panic here would bring down every other symbol too.
func (e *Engine) Run(ctx context.Context) error {
	e.ctx, e.cancel = context.WithCancel(ctx)
	defer e.cancel()

	var wg conc.WaitGroup
	wg.Go(func() {
		e.runCommandLoop()
		// No more events can be emitted; closing the rings lets both
		// drains empty what is left and return.
		e.auditRing.Close()
		e.marketRing.Close()
	})
	wg.Go(e.runAuditDrain)
	wg.Go(e.runMarketDataDrain)
	wg.Go(e.runSnapshotTicker)
	wg.Wait()
	return e.ctx.Err()
}

func (e *Engine) runCommandLoop() {
	for {
		if e.ctx.Err() != nil {
			return
		}
		env, err := e.reader.ReadMessage(e.ctx)
		if err != nil {
			if e.ctx.Err() != nil {
				return
			}
			e.logger.Error(errors.NewTracer("command_loop_error").Wrap(err))
			continue
		}
		e.dispatchRecovering(env)
		atomic.StoreInt64(&e.orderOffset, env.Offset)
		_ = e.reader.CommitMessages(e.ctx, env.Offset)

		if env.Offset-atomic.LoadInt64(&e.lastSnapshotOffset) >= e.opts.SnapshotOffsetDelta {
			e.createAndStoreSnapshot()
		}
	}
}

// dispatchRecovering runs dispatch with its own recover so a fatal
// invariant violation (amount's overflow panic, a bad type assertion,
// anything) halts only this symbol instead of unwinding through the
// nested conc.WaitGroup.Wait calls in Run and Registry.Run and crashing
// every other symbol along with it.
func (e *Engine) dispatchRecovering(env *commandreaderv1.Envelope) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error(errors.NewTracer("command_loop_panic").Wrap(fmt.Errorf("%v", r)))
			e.halt("panic_recovered")
		}
	}()
	e.dispatch(env)
}

func (e *Engine) dispatch(env *commandreaderv1.Envelope) {
	switch env.Kind {
	case "submit":
		if env.Submit != nil {
			_ = e.processSubmit(env.Submit)
		}
	case "cancel":
		if env.Cancel != nil {
			_ = e.processCancel(env.Cancel)
		}
	case "modify":
		if env.Modify != nil {
			_ = e.processModify(env.Modify)
		}
	case "tick":
		if env.Tick != nil {
			e.processTick(env.Tick)
		}
	}
}

func (e *Engine) runAuditDrain() {
	for {
		ev, ok := e.auditRing.Pop()
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(e.ctx, e.opts.AuditPushTimeout)
		err := e.audit.Publish(ctx, ev)
		cancel()
		if err != nil {
			e.halt("audit_publish_failed")
		}
	}
}

func (e *Engine) runMarketDataDrain() {
	for {
		ev, ok := e.marketRing.Pop()
		if !ok {
			return
		}
		e.marketData.Publish(ev)
	}
}

func (e *Engine) runSnapshotTicker() {
	ticker := time.NewTicker(e.opts.SnapshotInterval)
	defer ticker.Stop()
	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			e.createAndStoreSnapshot()
		}
	}
}

// isHalted reports whether the symbol is currently halted.
func (e *Engine) isHalted() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.halted
}

// halt idempotently stops accepting new commands' matching effects and
// emits HaltedSymbol. It does not stop runCommandLoop from draining the
// queue (so Cancels can still be observed), only from matching further.
func (e *Engine) halt(reason string) {
	e.mu.Lock()
	if e.halted {
		e.mu.Unlock()
		return
	}
	e.halted = true
	e.haltedAt = reason
	e.mu.Unlock()

	e.logger.Error(errors.NewTracer("symbol_halted").Wrap(
		&ledgerv1.FatalError{Reason: reason}))

	ev := &eventv1.Event{
		Kind:        eventv1.HaltedSymbol,
		Symbol:      e.symbol.Symbol.String(),
		SequenceNum: atomic.AddInt64(&e.sequenceNum, 1),
		WallClockNs: time.Now().UnixNano(),
		HaltReason:  reason,
	}
	e.marketRing.TryPush(ev)
	e.auditRing.TryPush(ev)
}

func (e *Engine) nextID() int64 {
	return atomic.AddInt64(&e.nextOrderID, 1)
}

func (e *Engine) nextAcceptedTs() int64 {
	return atomic.AddInt64(&e.acceptedTsSeq, 1)
}

// emit assigns the next sequence number and fans e out to both rings:
// blocking (with a bound) to the mandatory audit sink, best-effort to
// market data.
func (e *Engine) emit(ev *eventv1.Event) {
	ev.Symbol = e.symbol.Symbol.String()
	ev.SequenceNum = atomic.AddInt64(&e.sequenceNum, 1)
	ev.WallClockNs = time.Now().UnixNano()

	ctx, cancel := context.WithTimeout(e.ctx, e.opts.AuditPushTimeout)
	if err := e.auditRing.Push(ctx, ev); err != nil {
		e.halt("audit_ring_backpressure")
	}
	cancel()
	e.marketRing.TryPush(ev)
}

// GetOrderOffset returns the last committed command offset.
func (e *Engine) GetOrderOffset() int64 { return atomic.LoadInt64(&e.orderOffset) }

// GetLastSnapshotOffset returns the offset at which the last snapshot
// was taken.
func (e *Engine) GetLastSnapshotOffset() int64 { return atomic.LoadInt64(&e.lastSnapshotOffset) }

// GetTotalMatches returns the cumulative number of executed trades.
func (e *Engine) GetTotalMatches() int64 { return atomic.LoadInt64(&e.totalMatches) }

func (e *Engine) setOrderOffset(v int64)        { atomic.StoreInt64(&e.orderOffset, v) }
func (e *Engine) setLastSnapshotOffset(v int64) { atomic.StoreInt64(&e.lastSnapshotOffset, v) }
