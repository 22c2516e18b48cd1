// Package kafka publishes login events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"chat-login/internal/telemetry"
)

// DefaultTopic receives login events when no topic is configured.
const DefaultTopic = "chat-login.events"

const writeTimeout = 5 * time.Second

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Emitter implements telemetry.EventEmitter on a kafka-go writer.
type Emitter struct {
	writer messageWriter
}

// NewEmitter returns an emitter writing to topic on brokers. Returns nil when brokers is empty.
// Call Close when shutting down.
func NewEmitter(brokers []string, topic string) *Emitter {
	if len(brokers) == 0 {
		return nil
	}
	if topic == "" {
		topic = DefaultTopic
	}
	return &Emitter{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
	}}
}

// Emit writes the event as JSON keyed by session id, or event type when there is none,
// so events of one login land on one partition.
func (e *Emitter) Emit(ctx context.Context, event *telemetry.Event) error {
	if e == nil || e.writer == nil || event == nil {
		return nil
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	key := event.SessionID
	if key == "" {
		key = event.Type
	}
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return e.writer.WriteMessages(writeCtx, kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Time:  event.CreatedAt,
	})
}

// Close flushes and closes the writer. Safe on a nil emitter.
func (e *Emitter) Close() error {
	if e == nil || e.writer == nil {
		return nil
	}
	return e.writer.Close()
}
