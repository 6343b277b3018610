// Package notify publishes committed engine events to Kafka for downstream
// consumers (billing, messaging). Delivery is best effort.
package notify

import (
	"context"
	"encoding/json"
	"time"

	skafka "github.com/segmentio/kafka-go"

	"allot.org/internal/alloc"
	"allot.org/internal/obs"
)

const publishTimeout = 3 * time.Second

// Writer defines the subset of segmentio kafka.Writer we need. This makes the publisher testable.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...skafka.Message) error
	Close() error
}

// KafkaPublisher writes one JSON message per event, keyed by unit id so that
// a unit's events stay ordered within a partition.
type KafkaPublisher struct {
	writer Writer
}

var _ alloc.Hook = (*KafkaPublisher)(nil)

// NewKafkaPublisher creates a publisher writing to topic on the given brokers.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	w := &skafka.Writer{
		Addr:                   skafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &skafka.Hash{},
		RequiredAcks:           skafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return &KafkaPublisher{writer: w}
}

// NewKafkaPublisherWithWriter allows injecting a test writer.
func NewKafkaPublisherWithWriter(w Writer) *KafkaPublisher {
	return &KafkaPublisher{writer: w}
}

// AfterCommit implements alloc.Hook.
func (p *KafkaPublisher) AfterCommit(ctx context.Context, evt alloc.Event) error {
	b, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	key := evt.UnitID
	if key == "" {
		key = evt.EntityID
	}
	msg := skafka.Message{
		Key:   []byte(evt.TenantID + "/" + key),
		Value: b,
		Headers: []skafka.Header{
			{Key: "event_type", Value: []byte(evt.Type)},
			{Key: "tenant_id", Value: []byte(evt.TenantID)},
		},
		Time: evt.OccurredAt,
	}
	// The request may already be finishing; the write gets its own deadline.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := p.writer.WriteMessages(wctx, msg); err != nil {
		obs.Logger().WithError(err).WithField("event", evt.Type).Warn("kafka write failed")
		return err
	}
	return nil
}

// Close closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
