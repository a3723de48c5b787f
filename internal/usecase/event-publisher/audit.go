// Package eventpublisher implements the two outbound sinks of spec
// §4.6: a mandatory Kafka audit stream grounded on the teacher's Kafka
// producer wiring, and a best-effort NATS market-data fan-out grounded
// on the ingress worker's JetStream publish pattern. Unlike those
// teacher/pack examples, AuditSink never drops a write silently: a
// full ring buffer or a write error halts the owning symbol.
package eventpublisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	eventv1 "github.com/clobcore/matching-engine/internal/domain/event/v1"
	"github.com/clobcore/matching-engine/pkg/errors"
)

// AuditSink publishes events to one Kafka topic, in the order Publish is
// called, with required acks from all in-sync replicas. The registry
// shares a single sink, and so a single topic, across all symbols; each
// message is keyed by symbol and sequence number.
type AuditSink struct {
	writer *kafka.Writer
}

// NewAuditSink builds a writer addressed at brokers/topic, requiring
// RequireAll acks since this sink backs event replay.
func NewAuditSink(brokers []string, topic string) *AuditSink {
	return &AuditSink{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

// Publish blocks until the event is durably written or ctx expires. A
// non-nil return must halt the owning symbol per spec §4.6.
func (s *AuditSink) Publish(ctx context.Context, e *eventv1.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return errors.NewTracer("audit_encode_error").Wrap(err)
	}

	key := []byte(fmt.Sprintf("%s-%d", e.Symbol, e.SequenceNum))
	return s.writer.WriteMessages(ctx, kafka.Message{Key: key, Value: payload})
}

// Close flushes and releases the underlying connection.
func (s *AuditSink) Close() error {
	return s.writer.Close()
}
