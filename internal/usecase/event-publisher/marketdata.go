package eventpublisher

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	eventv1 "github.com/clobcore/matching-engine/internal/domain/event/v1"
	"github.com/clobcore/matching-engine/pkg/logger"
)

// MarketDataSink fans events out over NATS subject "md.<symbol>". It is
// best-effort: a publish error is logged and dropped, never propagated,
// since a slow or absent subscriber must not stall a symbol's engine.
type MarketDataSink struct {
	conn   *nats.Conn
	logger *logger.Logger
}

// NewMarketDataSink connects to url; connection loss is handled by the
// underlying *nats.Conn's own reconnect loop.
func NewMarketDataSink(url string, log *logger.Logger) (*MarketDataSink, error) {
	nc, err := nats.Connect(url, nats.MaxReconnects(-1))
	if err != nil {
		return nil, err
	}
	return &MarketDataSink{conn: nc, logger: log}, nil
}

// Publish best-effort publishes e; failures are logged and swallowed.
func (s *MarketDataSink) Publish(e *eventv1.Event) {
	data, err := json.Marshal(e)
	if err != nil {
		s.logger.Error(err)
		return
	}

	subject := fmt.Sprintf("md.%s", e.Symbol)
	if err := s.conn.Publish(subject, data); err != nil {
		s.logger.Error(err)
	}
}

// Close drains and closes the connection.
func (s *MarketDataSink) Close() error {
	return s.conn.Drain()
}
