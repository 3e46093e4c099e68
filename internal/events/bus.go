package events

import (
	"context"
	"fmt"
	"sync"

	"tradelab/internal/logger"
)

// Bus is an in-process publish/subscribe broker. Each topic has one
// dispatcher goroutine, so handlers on a topic see events in publish
// order. Suitable for tests and single-process deployment; swapping in
// an external broker means implementing Publisher elsewhere.
type Bus struct {
	mu     sync.Mutex
	topics map[string]*topicState
	closed bool
	wg     sync.WaitGroup
}

type topicState struct {
	mu       sync.RWMutex
	handlers []Handler
	queue    chan Event
	done     chan struct{}
}

// queue depth per topic; Publish blocks once the buffer fills so
// events are never dropped.
const topicQueueSize = 1024

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{topics: make(map[string]*topicState)}
}

// Subscribe registers a handler for a topic. Handlers registered after
// events were published only see subsequent events.
func (b *Bus) Subscribe(topic string, h Handler) {
	ts := b.topic(topic)
	if ts == nil {
		return
	}
	ts.mu.Lock()
	ts.handlers = append(ts.handlers, h)
	ts.mu.Unlock()
}

// Publish enqueues an event for ordered delivery on its topic. Blocks
// when the topic queue is full. Returns an error after Close.
func (b *Bus) Publish(ctx context.Context, e Event) error {
	ts := b.topic(e.Topic())
	if ts == nil {
		return fmt.Errorf("publish on closed bus: topic %s", e.Topic())
	}
	select {
	case ts.queue <- e:
		return nil
	case <-ts.done:
		return fmt.Errorf("publish on closed bus: topic %s", e.Topic())
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops dispatching. Queued events are drained before the
// dispatchers exit.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for _, ts := range b.topics {
		close(ts.done)
	}
	b.mu.Unlock()

	b.wg.Wait()
}

func (b *Bus) topic(name string) *topicState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	ts, ok := b.topics[name]
	if !ok {
		ts = &topicState{
			queue: make(chan Event, topicQueueSize),
			done:  make(chan struct{}),
		}
		b.topics[name] = ts
		b.wg.Add(1)
		go b.dispatch(name, ts)
	}
	return ts
}

func (b *Bus) dispatch(topic string, ts *topicState) {
	defer b.wg.Done()
	for {
		select {
		case e := <-ts.queue:
			b.deliver(topic, ts, e)
		case <-ts.done:
			// Drain what was published before Close.
			for {
				select {
				case e := <-ts.queue:
					b.deliver(topic, ts, e)
				default:
					return
				}
			}
		}
	}
}

func (b *Bus) deliver(topic string, ts *topicState, e Event) {
	ts.mu.RLock()
	handlers := make([]Handler, len(ts.handlers))
	copy(handlers, ts.handlers)
	ts.mu.RUnlock()

	for _, h := range handlers {
		if err := h(context.Background(), e); err != nil {
			logger.Errorf("event handler failed: topic=%s err=%v", topic, err)
		}
	}
}
