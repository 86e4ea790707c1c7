// Package events publishes domain events to the ride event stream.
// Publishing happens after the unit of work commits and is best effort:
// callers log failures and carry on.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// Type names an event on the stream.
type Type string

const (
	TripCreated      Type = "trip.created"
	TripCancelled    Type = "trip.cancelled"
	RequestCreated   Type = "request.created"
	RequestAccepted  Type = "request.accepted"
	RequestRejected  Type = "request.rejected"
	RequestCancelled Type = "request.cancelled"
	RideOpened       Type = "ride.opened"
	RideStarted      Type = "ride.started"
	RideLocation     Type = "ride.location"
	RideCompleted    Type = "ride.completed"
	RideCancelled    Type = "ride.cancelled"
	RideEmergency    Type = "ride.emergency"
	VoucherRedeemed  Type = "reward.redeemed"
	DonationReceived Type = "reward.donated"
)

// Event is one message on the stream. Subject is the id of the entity the
// event is about and doubles as the partition key, so all events of one ride
// stay ordered.
type Event struct {
	Type    Type      `json:"type"`
	Subject uuid.UUID `json:"subject"`
	Actor   uuid.UUID `json:"actor"`
	At      time.Time `json:"at"`
	Data    any       `json:"data,omitempty"`
}

// Publisher sends events somewhere.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// NopPublisher drops every event. It is used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close() error                         { return nil }

// messageWriter is the part of *kafka.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes JSON-encoded events to one topic.
type KafkaPublisher struct {
	writer  messageWriter
	timeout time.Duration
}

// NewKafkaPublisher returns a publisher writing to topic on brokers.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	w := kafka.NewWriter(kafka.WriterConfig{Brokers: brokers, Topic: topic, Balancer: &kafka.LeastBytes{}})
	return &KafkaPublisher{writer: w, timeout: 2 * time.Second}
}

// Publish writes e and waits at most two seconds for the broker.
func (k *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("events.KafkaPublisher.Publish: encode: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()

	msg := kafka.Message{
		Key:     []byte(e.Subject.String()),
		Value:   b,
		Headers: []kafka.Header{{Key: "type", Value: []byte(e.Type)}},
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("events.KafkaPublisher.Publish: %w", err)
	}
	return nil
}

// Close flushes pending writes.
func (k *KafkaPublisher) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}
