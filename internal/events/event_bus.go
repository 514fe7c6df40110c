// Package events provides the internal publish/subscribe bus that connects
// the engine, agent, alert manager, and websocket hub.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventType identifies a bus event.
type EventType string

const (
	EventTokenDiscovered EventType = "token_discovered"
	EventTradeExecuted   EventType = "trade_executed"
	EventPositionClosed  EventType = "position_closed"
	EventAlertTriggered  EventType = "alert_triggered"
	EventAgentDecision   EventType = "agent_decision"
	EventError           EventType = "error"
)

// Event is one bus message. Data payloads are the domain structs themselves
// (types.Token, types.Trade, ...) so subscribers can type-assert.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Source    string      `json:"source"`
	Data      interface{} `json:"data"`
}

// Handler receives events. Handlers run on bus workers and must not block.
type Handler func(Event)

// Bus is a bounded-buffer event bus with worker fan-out. Publish never
// blocks; events are dropped when the buffer is full.
type Bus struct {
	logger *zap.Logger

	mu       sync.RWMutex
	handlers map[EventType][]Handler
	all      []Handler

	buffer   chan Event
	workers  int
	stopChan chan struct{}
	wg       sync.WaitGroup
	started  bool

	dropped func() // optional drop hook, wired to metrics
}

// NewBus creates a bus with the given buffer size and worker count.
func NewBus(logger *zap.Logger, bufferSize, workers int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	if workers <= 0 {
		workers = 2
	}
	return &Bus{
		logger:   logger.Named("events"),
		handlers: make(map[EventType][]Handler),
		buffer:   make(chan Event, bufferSize),
		workers:  workers,
		stopChan: make(chan struct{}),
	}
}

// SetDropHook installs a callback invoked whenever an event is dropped.
func (b *Bus) SetDropHook(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dropped = fn
}

// Subscribe registers a handler for one event type.
func (b *Bus) Subscribe(t EventType, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[t] = append(b.handlers[t], h)
}

// SubscribeAll registers a handler for every event type.
func (b *Bus) SubscribeAll(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, h)
}

// Publish enqueues an event. It never blocks the caller.
func (b *Bus) Publish(t EventType, source string, data interface{}) {
	ev := Event{
		ID:        uuid.New().String(),
		Type:      t,
		Timestamp: time.Now(),
		Source:    source,
		Data:      data,
	}
	select {
	case b.buffer <- ev:
	default:
		b.mu.RLock()
		hook := b.dropped
		b.mu.RUnlock()
		if hook != nil {
			hook()
		}
		b.logger.Warn("event dropped, buffer full", zap.String("type", string(t)))
	}
}

// Start launches the dispatch workers.
func (b *Bus) Start(ctx context.Context) {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return
	}
	b.started = true
	b.mu.Unlock()

	for i := 0; i < b.workers; i++ {
		b.wg.Add(1)
		go b.worker(ctx)
	}
	b.logger.Info("event bus started", zap.Int("workers", b.workers))
}

// Stop drains nothing; in-flight events already claimed by workers finish.
func (b *Bus) Stop() {
	b.mu.Lock()
	if !b.started {
		b.mu.Unlock()
		return
	}
	b.started = false
	b.mu.Unlock()

	close(b.stopChan)
	b.wg.Wait()
	b.logger.Info("event bus stopped")
}

func (b *Bus) worker(ctx context.Context) {
	defer b.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.stopChan:
			return
		case ev := <-b.buffer:
			b.dispatch(ev)
		}
	}
}

func (b *Bus) dispatch(ev Event) {
	b.mu.RLock()
	hs := make([]Handler, 0, len(b.handlers[ev.Type])+len(b.all))
	hs = append(hs, b.handlers[ev.Type]...)
	hs = append(hs, b.all...)
	b.mu.RUnlock()

	for _, h := range hs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error("event handler panicked",
						zap.String("type", string(ev.Type)), zap.Any("panic", r))
				}
			}()
			h(ev)
		}()
	}
}
