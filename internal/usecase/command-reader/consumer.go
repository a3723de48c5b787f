// Package commandreader implements the Kafka-backed command queue a
// symbol engine drains: one partition per symbol, JSON-encoded envelopes
// carrying a Submit/Cancel/Modify/Tick. Modelled on the teacher's
// order-reader consumer, generalized to the full command surface and to
// reconnect via an exponential backoff instead of a fixed sleep.
package commandreader

import (
	"context"
	"encoding/json"

	"github.com/cenkalti/backoff/v5"
	"github.com/segmentio/kafka-go"

	commandreaderv1 "github.com/clobcore/matching-engine/internal/domain/commandreader/v1"
	"github.com/clobcore/matching-engine/pkg/errors"
	"github.com/clobcore/matching-engine/pkg/logger"
)

// Config mirrors the teacher's KafkaConfig, one instance per symbol
// partition.
type Config struct {
	Brokers []string
	Topic   string
	GroupID string
}

// Reader wraps a *kafka.Reader.
type Reader struct {
	reader *kafka.Reader
	logger *logger.Logger
}

// NewReader builds a Reader reading from the tail of the topic, same
// defaults the teacher's order-reader consumer uses.
func NewReader(cfg Config, log *logger.Logger) *Reader {
	return &Reader{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:     cfg.Brokers,
			Topic:       cfg.Topic,
			GroupID:     cfg.GroupID,
			MinBytes:    1,
			MaxBytes:    10e6,
			StartOffset: kafka.LastOffset,
		}),
		logger: log,
	}
}

// ReadMessage blocks for the next command, retrying transient read
// errors with an exponential backoff instead of the teacher's fixed
// 100ms sleep.
func (r *Reader) ReadMessage(ctx context.Context) (*commandreaderv1.Envelope, error) {
	op := func() (*commandreaderv1.Envelope, error) {
		msg, err := r.reader.ReadMessage(ctx)
		if err != nil {
			r.logError(err)
			return nil, err
		}

		var env commandreaderv1.Envelope
		if err := json.Unmarshal(msg.Value, &env); err != nil {
			return nil, errors.NewTracer("command_decode_error").Wrap(err)
		}
		env.Offset = msg.Offset
		return &env, nil
	}

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(5),
	)
}

// SetOffset seeds the reader's starting offset, used on engine restart
// after loading a snapshot.
func (r *Reader) SetOffset(offset int64) error {
	return r.reader.SetOffset(offset)
}

// CommitMessages advances the consumer group's committed offset.
func (r *Reader) CommitMessages(ctx context.Context, offset int64) error {
	return r.reader.CommitMessages(ctx, kafka.Message{Offset: offset})
}

// Close releases the underlying connection.
func (r *Reader) Close() error {
	return r.reader.Close()
}

func (r *Reader) logError(err error) {
	r.logger.Error(errors.NewTracer("command_read_error").Wrap(err))
}
