// Package stream consumes at-least-once Kafka topics with bounded in-flight
// processing and a dead-letter topic.
package stream

import (
	"context"
	"time"

	"github.com/IBM/sarama"
)

// Outcome is the handler's decision for one message.
type Outcome int

const (
	// Ack commits the offset.
	Ack Outcome = iota
	// Retry leaves the offset uncommitted so the message is redelivered.
	Retry
	// DeadLetter forwards the message to the dead-letter topic, then commits.
	DeadLetter
)

func (o Outcome) String() string {
	switch o {
	case Ack:
		return "ack"
	case Retry:
		return "retry"
	case DeadLetter:
		return "dead_letter"
	}
	return "unknown"
}

type Message struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Timestamp time.Time
}

// Header returns the value of a header, or "" when absent.
func (m Message) Header(name string) string { return m.Headers[name] }

func FromSarama(msg *sarama.ConsumerMessage) Message {
	h := make(map[string]string, len(msg.Headers))
	for _, rh := range msg.Headers {
		if rh != nil {
			h[string(rh.Key)] = string(rh.Value)
		}
	}
	return Message{
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Key:       msg.Key,
		Value:     msg.Value,
		Headers:   h,
		Timestamp: msg.Timestamp,
	}
}

type Handler interface {
	Consume(ctx context.Context, msg Message) Outcome
}

type HandlerFunc func(ctx context.Context, msg Message) Outcome

func (f HandlerFunc) Consume(ctx context.Context, msg Message) Outcome { return f(ctx, msg) }
