package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	stockflow_errors "stockflow/pkg/errors"
	"stockflow/pkg/logger"
)

// Publisher is the narrow interface the core uses to hand messages to the
// bus. The bus is assumed at-least-once and ordered per key; nothing in the
// core relies on stronger guarantees.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, payload []byte, headers map[string]string) error
}

// Handler consumes one delivered envelope. Returning an error leaves the
// message unacknowledged so the bus redelivers it.
type Handler func(ctx context.Context, env Envelope) error

// NatsBus implements publish and subscribe over NATS JetStream. Messages are
// published to `{topic}.{key}` so one key's messages stay ordered; consumers
// subscribe to whole topics and dispatch on the event-type header.
type NatsBus struct {
	js       nats.JetStreamContext
	queue    string
	handlers map[string][]Handler
	subs     []*nats.Subscription
	mu       sync.RWMutex
	log      *zap.Logger
}

func NewNatsBus(js nats.JetStreamContext, queue string, log *zap.Logger) *NatsBus {
	return &NatsBus{
		js:       js,
		queue:    queue,
		handlers: make(map[string][]Handler),
		log:      log,
	}
}

// Publish sends payload to `{topic}.{key}` with the given headers.
func (b *NatsBus) Publish(ctx context.Context, topic, key string, payload []byte, headers map[string]string) error {
	msg := nats.NewMsg(topic + "." + key)
	msg.Data = payload
	for k, v := range headers {
		msg.Header.Set(k, v)
	}
	if _, err := b.js.PublishMsg(msg, nats.Context(ctx)); err != nil {
		return fmt.Errorf("publish %s: %w", msg.Subject, err)
	}
	return nil
}

// Subscribe registers a handler for an event type. Registration must happen
// before Start.
func (b *NatsBus) Subscribe(eventType string, handler Handler) {
	b.mu.Lock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
	b.mu.Unlock()
}

// Start opens one durable queue subscription per topic.
func (b *NatsBus) Start(topics ...string) error {
	for _, topic := range topics {
		durable := b.queue + "-" + strings.ReplaceAll(topic, ".", "-")
		sub, err := b.js.QueueSubscribe(topic+".>", b.queue, b.receive,
			nats.Durable(durable),
			nats.ManualAck(),
			nats.AckExplicit(),
			nats.DeliverAll(),
		)
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", topic, err)
		}
		b.subs = append(b.subs, sub)
	}
	return nil
}

// Stop drains all subscriptions.
func (b *NatsBus) Stop() {
	for _, sub := range b.subs {
		_ = sub.Drain()
	}
	b.subs = nil
}

func (b *NatsBus) receive(msg *nats.Msg) {
	var env Envelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		b.log.Error("dropping undecodable bus message", zap.String("subject", msg.Subject), zap.Error(err))
		_ = msg.Ack()
		return
	}

	eventType := msg.Header.Get(HeaderEventType)
	if eventType == "" {
		eventType = env.EventType
	}

	b.mu.RLock()
	handlers := b.handlers[eventType]
	b.mu.RUnlock()
	if len(handlers) == 0 {
		_ = msg.Ack()
		return
	}

	// The envelope id doubles as the correlation id for any log line the
	// handlers emit downstream.
	ctx := context.WithValue(context.Background(), logger.CorrelationIdKey, env.ID.String())
	for _, handler := range handlers {
		if err := handler(ctx, env); err != nil {
			b.log.Warn("handler failed, leaving message for redelivery",
				zap.String("event_type", eventType),
				zap.String("event_id", env.ID.String()),
				zap.Error(err))
			_ = msg.Nak()
			return
		}
	}
	_ = msg.Ack()
}

// ConnectJetStream dials NATS and returns a JetStream context, retrying
// until timeout so the worker can start before the broker does.
func ConnectJetStream(url string, timeout time.Duration) (*nats.Conn, nats.JetStreamContext, error) {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		conn, err := nats.Connect(url)
		if err != nil {
			lastErr = err
			time.Sleep(500 * time.Millisecond)
			continue
		}
		js, err := conn.JetStream()
		if err != nil {
			_ = conn.Drain()
			conn.Close()
			return nil, nil, err
		}
		if err := EnsureStreams(js); err != nil {
			_ = conn.Drain()
			conn.Close()
			return nil, nil, err
		}
		return conn, js, nil
	}
	return nil, nil, fmt.Errorf("connect jetstream timeout after %s: %w: %w", timeout, stockflow_errors.ErrServiceUnavailable, lastErr)
}
