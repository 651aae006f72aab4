package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"
)

// Event types emitted by the ledger.
const (
	TypeAttributionChanged = "signup.attribution_changed"
	TypeSignupStatusChange = "signup.status_changed"
	TypeSignupRegistered   = "signup.registered"
	TypeReferrerCreated    = "influencer.created"
	TypeReferrerRemoved    = "influencer.removed"
)

// Envelope is the JSON body written for every event.
type Envelope struct {
	EventID    string          `json:"event_id"`
	EventType  string          `json:"event_type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Key        string          `json:"key"`
	Data       json.RawMessage `json:"data"`
}

// Publisher delivers ledger events. Key groups related events on one partition.
type Publisher interface {
	Publish(ctx context.Context, eventType, key string, data any) error
	Close() error
}

func newEnvelope(eventType, key string, data any) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Envelope{
		EventID:    uuid.NewString(),
		EventType:  eventType,
		OccurredAt: time.Now().UTC(),
		Key:        key,
		Data:       raw,
	}, nil
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
		},
	}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, eventType, key string, data any) error {
	env, err := newEnvelope(eventType, key, data)
	if err != nil {
		return err
	}
	body, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: body,
		Time:  env.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(eventType)},
		},
	})
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// MemoryPublisher keeps events in process. Used when no broker is configured
// and in tests.
type MemoryPublisher struct {
	mu     sync.Mutex
	Events []Envelope
}

func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

func (p *MemoryPublisher) Publish(_ context.Context, eventType, key string, data any) error {
	env, err := newEnvelope(eventType, key, data)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.Events = append(p.Events, env)
	p.mu.Unlock()
	return nil
}

// OfType returns the recorded events with the given type.
func (p *MemoryPublisher) OfType(eventType string) []Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []Envelope
	for _, e := range p.Events {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

func (p *MemoryPublisher) Close() error { return nil }

// LogPublisher writes events to the process log. Used when no broker is
// configured.
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, eventType, key string, data any) error {
	env, err := newEnvelope(eventType, key, data)
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"event_id":   env.EventID,
		"event_type": env.EventType,
		"key":        env.Key,
	}).Debug("Ledger event")
	return nil
}

func (LogPublisher) Close() error { return nil }
