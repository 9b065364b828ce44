package eventbus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tradeEngine/internal/domain"
	"tradeEngine/internal/ports"
)

const (
	defaultQueueSize     = 10000
	defaultTimerInterval = time.Second
)

// Handler is a named event callback. The ID gives handlers an identity (Go
// functions are not comparable), which makes registration idempotent: the
// same ID registered twice for one type is a no-op.
type Handler struct {
	ID string
	Fn func(event domain.Event)
}

// Config holds construction parameters for the bus.
type Config struct {
	Logger        ports.Logger
	QueueSize     int           // publish queue capacity, defaults to 10000
	TimerInterval time.Duration // period of the synthetic timer event, defaults to 1s
}

// Bus is a strictly ordered, typed publish/subscribe dispatcher. Any number
// of producers may publish concurrently; exactly one goroutine drains the
// queue and invokes handlers, so no two handlers ever run at the same time.
// That total ordering is what makes the ledger and strategy state transitions
// data-race-free without locks of their own.
type Bus struct {
	logger        ports.Logger
	queue         chan domain.Event
	cmds          chan func() // unbuffered: a received command always runs
	timerInterval time.Duration

	mu       sync.Mutex // guards handlers, catchAll and running
	handlers map[string][]Handler
	catchAll []Handler
	running  bool

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// New creates a bus. Start must be called before events are dispatched.
func New(cfg Config) (*Bus, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for event bus")
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	interval := cfg.TimerInterval
	if interval <= 0 {
		interval = defaultTimerInterval
	}
	return &Bus{
		logger:        cfg.Logger,
		queue:         make(chan domain.Event, size),
		cmds:          make(chan func()),
		timerInterval: interval,
		handlers:      make(map[string][]Handler),
		stopCh:        make(chan struct{}),
	}, nil
}

// Start launches the dispatch worker and, when withTimer is set, the timer
// source that enqueues a synthetic timer event at the configured interval.
func (b *Bus) Start(withTimer bool) {
	b.startOnce.Do(func() {
		b.mu.Lock()
		b.running = true
		b.mu.Unlock()
		b.wg.Add(1)
		go b.run()
		if withTimer {
			b.wg.Add(1)
			go b.runTimer()
		}
	})
}

// Stop shuts the bus down and joins its goroutines. An event already pulled
// off the queue finishes dispatch before Stop returns; events still queued
// are discarded.
func (b *Bus) Stop() {
	b.stopOnce.Do(func() {
		close(b.stopCh)
	})
	b.wg.Wait()
}

// Publish enqueues an event without blocking. When the queue is full the
// event is dropped with a warning rather than stalling the producer.
func (b *Bus) Publish(event domain.Event) {
	select {
	case b.queue <- event:
	case <-b.stopCh:
	default:
		// Log events are dropped silently here: warning about them through a
		// bus-attached logger would publish again and recurse.
		if event.Type != domain.EventLog {
			b.logger.Warn(context.Background(), "Event queue full, dropping event", map[string]interface{}{"type": event.Type})
		}
	}
}

// Do runs fn on the dispatch goroutine and blocks until it returns, so a
// caller on another goroutine can touch state that is otherwise only mutated
// by event handlers. Strategy lifecycle commands go through here. Before
// Start and after Stop there is no dispatch goroutine and fn runs inline,
// which is safe because nothing else is dispatching then. Must not be called
// from an event handler: handlers already run on the dispatch goroutine.
func (b *Bus) Do(fn func()) {
	b.mu.Lock()
	running := b.running
	b.mu.Unlock()
	if !running {
		fn()
		return
	}

	done := make(chan struct{})
	select {
	case b.cmds <- func() { fn(); close(done) }:
		// cmds is unbuffered: a completed send means the dispatch goroutine
		// took the command and will run it before its next event
		<-done
	case <-b.stopCh:
		// dispatch is exiting; join it so fn cannot overlap a handler
		b.wg.Wait()
		fn()
	}
}

// Subscribe registers a handler for one event type. Registering the same
// handler ID for the same type twice is a no-op.
func (b *Bus) Subscribe(eventType string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, existing := range b.handlers[eventType] {
		if existing.ID == h.ID {
			return
		}
	}
	b.handlers[eventType] = append(b.handlers[eventType], h)
}

// Unsubscribe removes a handler from one event type. Removing a handler that
// is not registered is a no-op.
func (b *Bus) Unsubscribe(eventType string, handlerID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.handlers[eventType]
	for i, existing := range list {
		if existing.ID == handlerID {
			b.handlers[eventType] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(b.handlers[eventType]) == 0 {
		delete(b.handlers, eventType)
	}
}

// SubscribeAll registers a handler invoked for every event, after the
// type-specific handlers. Idempotent like Subscribe.
func (b *Bus) SubscribeAll(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, existing := range b.catchAll {
		if existing.ID == h.ID {
			return
		}
	}
	b.catchAll = append(b.catchAll, h)
}

// UnsubscribeAll removes a catch-all handler. No-op if absent.
func (b *Bus) UnsubscribeAll(handlerID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, existing := range b.catchAll {
		if existing.ID == handlerID {
			b.catchAll = append(b.catchAll[:i], b.catchAll[i+1:]...)
			return
		}
	}
}

func (b *Bus) run() {
	defer b.wg.Done()
	for {
		select {
		case <-b.stopCh:
			return
		case event := <-b.queue:
			b.process(event)
		case cmd := <-b.cmds:
			cmd()
		}
	}
}

func (b *Bus) process(event domain.Event) {
	b.mu.Lock()
	typed := append([]Handler(nil), b.handlers[event.Type]...)
	general := append([]Handler(nil), b.catchAll...)
	b.mu.Unlock()

	for _, h := range typed {
		b.invoke(h, event)
	}
	for _, h := range general {
		b.invoke(h, event)
	}
}

// invoke shields the dispatch loop: a panicking handler must not stop
// dispatch of the remaining handlers or events.
func (b *Bus) invoke(h Handler, event domain.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error(context.Background(), fmt.Errorf("handler panic: %v", r), "Event handler failed", map[string]interface{}{
				"handler": h.ID,
				"type":    event.Type,
			})
		}
	}()
	h.Fn(event)
}

func (b *Bus) runTimer() {
	defer b.wg.Done()
	ticker := time.NewTicker(b.timerInterval)
	defer ticker.Stop()
	for {
		select {
		case <-b.stopCh:
			return
		case <-ticker.C:
			b.Publish(domain.NewEvent(domain.EventTimer, nil))
		}
	}
}
