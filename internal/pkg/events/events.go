package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/oklog/ulid/v2"
	"github.com/segmentio/kafka-go"
)

const (
	TypeOrderCreated     = "order.created"
	TypePaymentConfirmed = "payment.confirmed"
)

// Event is a domain fact published after the database commit that made it true.
type Event struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Key        string         `json:"key"`
	OccurredAt time.Time      `json:"occurred_at"`
	Data       map[string]any `json:"data"`
}

// New stamps an event with a ULID and the current time.
func New(eventType, key string, data map[string]any) Event {
	return Event{
		ID:         ulid.Make().String(),
		Type:       eventType,
		Key:        key,
		OccurredAt: time.Now().UTC(),
		Data:       data,
	}
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka publisher requires at least one broker")
	}
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			RequiredAcks: kafka.RequireAll,
			Balancer:     &kafka.Hash{},
			WriteTimeout: 5 * time.Second,
		},
	}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(e.Key),
		Value: payload,
		Time:  e.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(e.Type)},
		},
	})
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// LogPublisher is used when no brokers are configured.
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, e Event) error {
	log.Infof("[Events] %s key=%s id=%s", e.Type, e.Key, e.ID)
	return nil
}

func (LogPublisher) Close() error { return nil }

// MemoryPublisher keeps events in memory, for tests and local tooling.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (m *MemoryPublisher) Publish(_ context.Context, e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

func (m *MemoryPublisher) Close() error { return nil }

// Events returns a copy of everything published so far.
func (m *MemoryPublisher) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

// NewPublisher picks Kafka when brokers are configured.
func NewPublisher(brokers []string, topic string) Publisher {
	if len(brokers) == 0 {
		return LogPublisher{}
	}
	p, err := NewKafkaPublisher(brokers, topic)
	if err != nil {
		log.Warnf("[Events] Falling back to log publisher: %v", err)
		return LogPublisher{}
	}
	log.Infof("[Events] Publishing to kafka topic %s", topic)
	return p
}
