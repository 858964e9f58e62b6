// Package bus provides event bus implementations for Finch.
package bus

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/finch/internal/domain"
)

var (
	ErrBusClosed       = errors.New("bus is closed")
	ErrTenantRequired  = errors.New("tenantID is required")
	errSubscriptionEnd = errors.New("subscription ended")
)

// ChannelBus implements EventBus in process with buffered Go channels.
// Used as the Community tier event bus. Delivery is at most once: a full
// subscriber buffer drops the message for that subscriber.
type ChannelBus struct {
	mu            sync.RWMutex
	bufferSize    int
	subscriptions map[string]map[string]*channelSubscription // key -> id -> sub
	closed        bool
}

type channelSubscription struct {
	id      string
	key     string
	topic   string
	handler domain.MessageHandler
	msgCh   chan *domain.Message
	ctx     context.Context
	cancel  context.CancelCauseFunc
	bus     *ChannelBus
}

// NewChannelBus creates a new channel-based event bus.
func NewChannelBus(bufferSize int) *ChannelBus {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	return &ChannelBus{
		bufferSize:    bufferSize,
		subscriptions: make(map[string]map[string]*channelSubscription),
	}
}

// Publish delivers payload to the tenant's subscribers and to all-tenant
// subscribers of the topic.
func (b *ChannelBus) Publish(ctx context.Context, tenantID string, topic string, payload []byte) error {
	if tenantID == "" || tenantID == domain.GlobalTenantID {
		return ErrTenantRequired
	}

	msg := &domain.Message{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Topic:     topic,
		Payload:   payload,
		Metadata:  map[string]string{},
		Timestamp: time.Now().UnixNano(),
	}

	// The read lock is held across the sends so Close cannot close a
	// channel mid-send; sends never block.
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrBusClosed
	}

	for _, key := range []string{makeKey(tenantID, topic), makeKey(domain.GlobalTenantID, topic)} {
		for _, sub := range b.subscriptions[key] {
			select {
			case sub.msgCh <- msg:
			default:
				slog.Warn("event dropped, subscriber buffer full",
					"tenant_id", tenantID,
					"topic", topic,
					"subscription_id", sub.id,
				)
			}
		}
	}

	return nil
}

// Subscribe registers a handler for a topic. Handlers for one subscription
// run sequentially on a dedicated goroutine.
func (b *ChannelBus) Subscribe(ctx context.Context, tenantID string, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	if tenantID == "" {
		return nil, ErrTenantRequired
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBusClosed
	}

	subCtx, cancel := context.WithCancelCause(ctx)
	sub := &channelSubscription{
		id:      uuid.NewString(),
		key:     makeKey(tenantID, topic),
		topic:   topic,
		handler: handler,
		msgCh:   make(chan *domain.Message, b.bufferSize),
		ctx:     subCtx,
		cancel:  cancel,
		bus:     b,
	}

	if b.subscriptions[sub.key] == nil {
		b.subscriptions[sub.key] = make(map[string]*channelSubscription)
	}
	b.subscriptions[sub.key][sub.id] = sub

	go sub.run()

	return sub, nil
}

func (s *channelSubscription) run() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case msg, ok := <-s.msgCh:
			if !ok {
				return
			}
			if err := s.handler(s.ctx, msg); err != nil {
				slog.Error("event handler failed",
					"tenant_id", msg.TenantID,
					"topic", msg.Topic,
					"message_id", msg.ID,
					"error", err,
				)
			}
		}
	}
}

// Ping checks bus health.
func (b *ChannelBus) Ping(ctx context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrBusClosed
	}
	return nil
}

// Close stops every subscription. Further publishes fail.
func (b *ChannelBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	for _, subs := range b.subscriptions {
		for _, sub := range subs {
			sub.cancel(ErrBusClosed)
			close(sub.msgCh)
		}
	}
	b.subscriptions = nil
	return nil
}

func makeKey(tenantID, topic string) string {
	return tenantID + ":" + topic
}

// Unsubscribe stops delivery and releases the subscription.
func (s *channelSubscription) Unsubscribe() error {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()

	if subs, ok := s.bus.subscriptions[s.key]; ok {
		if _, ok := subs[s.id]; ok {
			delete(subs, s.id)
			if len(subs) == 0 {
				delete(s.bus.subscriptions, s.key)
			}
			s.cancel(errSubscriptionEnd)
		}
	}
	return nil
}

// Topic returns the subscribed topic.
func (s *channelSubscription) Topic() string {
	return s.topic
}
