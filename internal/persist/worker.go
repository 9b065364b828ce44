package persist

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"tradeEngine/internal/ports"
)

const defaultQueueSize = 1000

// Write is one pending store operation.
type Write struct {
	Collection string
	Key        string
	Doc        interface{}
	Upsert     bool
}

// Config holds construction parameters for the worker.
type Config struct {
	Logger    ports.Logger
	Store     ports.Store // nil degrades every write to a logged no-op
	QueueSize int         // defaults to 1000
	// WriteTimeout bounds each store call. Defaults to 5s.
	WriteTimeout time.Duration
}

// Worker owns background persistence: a bounded queue accepts writes from
// the dispatch goroutine and a single worker goroutine drains it. A write
// that hits a duplicate key is logged and dropped, never retried; losing a
// write is logged, not silent.
type Worker struct {
	logger  ports.Logger
	store   ports.Store
	timeout time.Duration

	queue    chan Write
	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewWorker creates a worker. Start must be called before writes are
// drained.
func NewWorker(cfg Config) (*Worker, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for persistence worker")
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	timeout := cfg.WriteTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Worker{
		logger:  cfg.Logger,
		store:   cfg.Store,
		timeout: timeout,
		queue:   make(chan Write, size),
		stopCh:  make(chan struct{}),
	}, nil
}

// Start launches the worker goroutine.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.run()
}

// Stop shuts the worker down. A write already dequeued finishes before Stop
// returns; writes still queued are dropped with a log line.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
	w.wg.Wait()
	if n := len(w.queue); n > 0 {
		w.logger.Warn(context.Background(), "Persistence worker stopped with writes still queued", map[string]interface{}{"dropped": n})
	}
}

// Enqueue adds a write without blocking. When the queue is full the write is
// dropped with a log line rather than stalling the dispatch goroutine.
func (w *Worker) Enqueue(wr Write) {
	select {
	case w.queue <- wr:
	default:
		w.logger.Warn(context.Background(), "Persistence queue full, dropping write", map[string]interface{}{
			"collection": wr.Collection,
			"key":        wr.Key,
		})
	}
}

func (w *Worker) run() {
	defer w.wg.Done()
	for {
		select {
		case <-w.stopCh:
			return
		case wr := <-w.queue:
			w.apply(wr)
		}
	}
}

func (w *Worker) apply(wr Write) {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	if w.store == nil {
		w.logger.Debug(ctx, "No store connected, dropping write", map[string]interface{}{
			"collection": wr.Collection,
			"key":        wr.Key,
		})
		return
	}

	var err error
	if wr.Upsert {
		err = w.store.Upsert(ctx, wr.Collection, wr.Key, wr.Doc)
	} else {
		err = w.store.Insert(ctx, wr.Collection, wr.Key, wr.Doc)
	}
	switch {
	case err == nil:
	case errors.Is(err, ports.ErrDuplicateEntry):
		// transient key conflict: drop this single write, do not retry
		w.logger.Warn(ctx, "Duplicate key, write dropped", map[string]interface{}{
			"collection": wr.Collection,
			"key":        wr.Key,
		})
	default:
		w.logger.Error(ctx, err, "Persistence write failed, continuing in memory only", map[string]interface{}{
			"collection": wr.Collection,
			"key":        wr.Key,
		})
	}
}
