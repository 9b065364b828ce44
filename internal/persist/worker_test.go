package persist

import (
	"context"
	"sync"
	"testing"
	"time"

	"tradeEngine/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct {
	mu     sync.Mutex
	warns  []string
	errors []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warns = append(m.warns, msg)
}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, msg)
}

func (m *mockLogger) warnCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.warns)
}

func (m *mockLogger) errorCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.errors)
}

type call struct {
	op         string
	collection string
	key        string
}

// mockStore records calls and returns a scripted error per key.
type mockStore struct {
	mu    sync.Mutex
	calls []call
	fail  map[string]error // key -> error to return
}

func newMockStore() *mockStore {
	return &mockStore{fail: make(map[string]error)}
}

func (m *mockStore) Insert(ctx context.Context, collection, key string, doc interface{}) error {
	return m.record("insert", collection, key)
}

func (m *mockStore) Upsert(ctx context.Context, collection, key string, doc interface{}) error {
	return m.record("upsert", collection, key)
}

func (m *mockStore) Query(ctx context.Context, collection, key string, out interface{}) error {
	return ports.ErrNotFound
}

func (m *mockStore) Scan(ctx context.Context, collection string, fn func(key string, doc []byte) error) error {
	return nil
}

func (m *mockStore) Close() error { return nil }

func (m *mockStore) record(op, collection, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call{op: op, collection: collection, key: key})
	return m.fail[key]
}

func (m *mockStore) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *mockStore) callAt(i int) call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[i]
}

func newTestWorker(t *testing.T, store ports.Store, logger *mockLogger) *Worker {
	t.Helper()
	w, err := NewWorker(Config{Logger: logger, Store: store, QueueSize: 16})
	require.NoError(t, err)
	w.Start()
	t.Cleanup(w.Stop)
	return w
}

func TestNewWorker_RequiresLogger(t *testing.T) {
	_, err := NewWorker(Config{})
	require.Error(t, err)
}

func TestWorker_RoutesInsertAndUpsert(t *testing.T) {
	store := newMockStore()
	w := newTestWorker(t, store, &mockLogger{})

	w.Enqueue(Write{Collection: "trades", Key: "t1", Doc: 1})
	w.Enqueue(Write{Collection: "sync", Key: "s1", Doc: 2, Upsert: true})

	require.Eventually(t, func() bool {
		return store.callCount() == 2
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, call{op: "insert", collection: "trades", key: "t1"}, store.callAt(0))
	assert.Equal(t, call{op: "upsert", collection: "sync", key: "s1"}, store.callAt(1))
}

func TestWorker_DuplicateKeyDroppedWithoutRetry(t *testing.T) {
	store := newMockStore()
	store.fail["dup"] = ports.ErrDuplicateEntry
	logger := &mockLogger{}
	w := newTestWorker(t, store, logger)

	w.Enqueue(Write{Collection: "trades", Key: "dup", Doc: 1})
	w.Enqueue(Write{Collection: "trades", Key: "ok", Doc: 2})

	require.Eventually(t, func() bool {
		return store.callCount() == 2
	}, time.Second, 5*time.Millisecond)

	// one attempt only for the duplicate, logged as a warning not an error
	assert.Equal(t, "dup", store.callAt(0).key)
	assert.Equal(t, "ok", store.callAt(1).key)
	assert.Equal(t, 1, logger.warnCount())
	assert.Equal(t, 0, logger.errorCount())
}

func TestWorker_WriteFailureLoggedAndSkipped(t *testing.T) {
	store := newMockStore()
	store.fail["bad"] = assert.AnError
	logger := &mockLogger{}
	w := newTestWorker(t, store, logger)

	w.Enqueue(Write{Collection: "trades", Key: "bad", Doc: 1})

	require.Eventually(t, func() bool {
		return logger.errorCount() == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, store.callCount())
}

func TestWorker_NilStoreDropsQuietly(t *testing.T) {
	logger := &mockLogger{}
	w, err := NewWorker(Config{Logger: logger})
	require.NoError(t, err)
	w.Start()

	w.Enqueue(Write{Collection: "trades", Key: "t1", Doc: 1})

	require.Eventually(t, func() bool {
		return len(w.queue) == 0
	}, time.Second, 5*time.Millisecond)
	w.Stop()
	assert.Equal(t, 0, logger.warnCount())
	assert.Equal(t, 0, logger.errorCount())
}

func TestWorker_FullQueueDropsWithWarning(t *testing.T) {
	logger := &mockLogger{}
	w, err := NewWorker(Config{Logger: logger, QueueSize: 1})
	require.NoError(t, err)
	// not started: the queue never drains

	w.Enqueue(Write{Collection: "trades", Key: "t1", Doc: 1})
	w.Enqueue(Write{Collection: "trades", Key: "t2", Doc: 2})

	assert.Equal(t, 1, logger.warnCount())
}

func TestWorker_StopIsIdempotent(t *testing.T) {
	w, err := NewWorker(Config{Logger: &mockLogger{}, Store: newMockStore()})
	require.NoError(t, err)
	w.Start()
	w.Stop()
	w.Stop()
}
