// Package eventpublisherv1 defines the outbound event contract of spec
// §4.6: every symbol engine publishes to one mandatory audit sink and one
// best-effort market-data sink, fed from the same per-symbol sequential
// event stream but with different backpressure semantics. The root
// registry shares a single instance of each sink across all symbols.
package eventpublisherv1

import (
	"context"

	eventv1 "github.com/clobcore/matching-engine/internal/domain/event/v1"
)

// AuditPublisher is the mandatory, ordered event sink. A publish failure
// or a full ring buffer halts the owning symbol; it must never silently
// drop an event.
//
//go:generate mockgen -source interface.go -destination=mock/interface_mock.go -package=eventpublisherv1_mock
type AuditPublisher interface {
	Publish(ctx context.Context, e *eventv1.Event) error
	Close() error
}

// MarketDataPublisher is the best-effort fan-out sink. Implementations
// must be non-blocking from the engine's perspective: a slow or absent
// subscriber drops events rather than stalling the symbol.
type MarketDataPublisher interface {
	Publish(e *eventv1.Event)
	Close() error
}
