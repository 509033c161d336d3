package bus

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/WilliamsMiao/Quant-Banana/internal/logger"
)

// Topic identifies an event stream on the bus.
type Topic string

const (
	TopicStrategySignal Topic = "STRATEGY_SIGNAL"
	TopicAIDecision     Topic = "AI_DECISION"
	TopicFusionDecision Topic = "FUSION_DECISION"
	TopicTradeResult    Topic = "TRADE_RESULT"
)

// Event is the envelope delivered to subscribers.
type Event struct {
	Topic     Topic
	Payload   any
	Timestamp time.Time
}

// Handler consumes one event. Handlers for the same topic run sequentially in
// publish order; a panic in one handler does not affect the others.
type Handler func(Event)

var ErrClosed = errors.New("bus: closed")

const slowHandlerWarn = 500 * time.Millisecond

type topicQueue struct {
	ch chan Event

	mu       sync.RWMutex
	handlers []Handler
}

// Bus is a bounded in-process pub/sub. Each topic owns one dispatch goroutine,
// so delivery order per topic matches publish order. There is no replay: a
// subscriber only sees events published after it subscribed.
type Bus struct {
	bufferSize int

	mu     sync.Mutex
	topics map[Topic]*topicQueue
	closed bool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a bus whose per-topic buffers hold bufferSize events.
func New(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &Bus{
		bufferSize: bufferSize,
		topics:     make(map[Topic]*topicQueue),
		stopCh:     make(chan struct{}),
	}
}

// Subscribe registers a handler for topic. Safe to call at any time; events
// already in flight before the call may not be delivered to the new handler.
func (b *Bus) Subscribe(topic Topic, h Handler) {
	if h == nil {
		return
	}
	q := b.queue(topic)
	if q == nil {
		return
	}
	q.mu.Lock()
	q.handlers = append(q.handlers, h)
	q.mu.Unlock()
}

// Publish enqueues an event for topic. It blocks when the topic buffer is
// full, providing backpressure to the producer, and unblocks if the context
// is cancelled or the bus stops.
func (b *Bus) Publish(ctx context.Context, topic Topic, payload any) error {
	q := b.queue(topic)
	if q == nil {
		return ErrClosed
	}
	evt := Event{Topic: topic, Payload: payload, Timestamp: time.Now()}
	select {
	case q.ch <- evt:
		return nil
	case <-b.stopCh:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// queue returns the topic queue, creating it and its dispatch goroutine on
// first use. Returns nil after Stop.
func (b *Bus) queue(topic Topic) *topicQueue {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	q, ok := b.topics[topic]
	if !ok {
		q = &topicQueue{ch: make(chan Event, b.bufferSize)}
		b.topics[topic] = q
		b.wg.Add(1)
		go b.dispatchLoop(topic, q)
	}
	return q
}

func (b *Bus) dispatchLoop(topic Topic, q *topicQueue) {
	defer b.wg.Done()
	for {
		select {
		case evt := <-q.ch:
			b.deliver(topic, q, evt)
		case <-b.stopCh:
			// Drain what was accepted before the stop so published events
			// are not silently dropped.
			for {
				select {
				case evt := <-q.ch:
					b.deliver(topic, q, evt)
				default:
					return
				}
			}
		}
	}
}

func (b *Bus) deliver(topic Topic, q *topicQueue, evt Event) {
	q.mu.RLock()
	handlers := append([]Handler(nil), q.handlers...)
	q.mu.RUnlock()
	for _, h := range handlers {
		b.invoke(topic, h, evt)
	}
}

func (b *Bus) invoke(topic Topic, h Handler, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("bus handler panic topic=%s: %v", topic, r)
		}
	}()
	start := time.Now()
	h(evt)
	if cost := time.Since(start); cost > slowHandlerWarn {
		logger.Warnf("bus handler slow topic=%s cost=%s", topic, cost)
	}
}

// Stop shuts the bus down. Pending events in the buffers are still delivered;
// Publish calls after Stop return ErrClosed.
func (b *Bus) Stop() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()
	close(b.stopCh)
	b.wg.Wait()
}
