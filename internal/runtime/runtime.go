package runtime

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"tradeEngine/internal/domain"
	"tradeEngine/internal/persist"
	"tradeEngine/internal/ports"
)

// StrategyConfig is one entry of the strategy configuration list.
type StrategyConfig struct {
	Name       string                 `yaml:"name"`
	ClassName  string                 `yaml:"className"`
	Instrument string                 `yaml:"instrument"`
	Params     map[string]interface{} `yaml:"parameters"`
}

// Transmitter is the order path the runtime submits through. Implemented by
// the engine: risk checks, ledger conversion and gateway dispatch happen
// behind it.
type Transmitter interface {
	// SendOrder submits a request. One logical request may turn into several
	// legs; ids for every sent leg are returned. Refusal is an error and
	// nothing was submitted.
	SendOrder(req domain.OrderRequest) ([]string, error)

	// CancelOrder cancels one working order.
	CancelOrder(orderID string) error

	// Subscribe requests market data for an instrument.
	Subscribe(req domain.SubscribeRequest) error

	// LastTick returns the latest cached tick for an instrument, or nil.
	LastTick(instrument string) *domain.Tick

	// Contract returns cached contract metadata, or nil.
	Contract(instrument string) *domain.Contract
}

// StopOrderService is the local stop-order engine surface the runtime uses.
type StopOrderService interface {
	Submit(instrument string, direction domain.Direction, offset domain.Offset, triggerPrice, volume float64, strategyName string) string
	Cancel(stopOrderID string) bool
	OnTick(tick *domain.Tick)
}

// SyncRecord is the per-strategy state persisted across restarts, keyed by
// (strategy name, instrument).
type SyncRecord struct {
	Name        string                 `json:"name"`
	Instrument  string                 `json:"instrument"`
	NetPosition float64                `json:"netPosition"`
	Fields      map[string]interface{} `json:"fields,omitempty"`
}

const syncCollection = "strategy_sync"

// handle is the runtime's bookkeeping for one strategy instance.
type handle struct {
	name       string
	className  string
	instrument string
	strategy   ports.Strategy

	inited  bool
	trading bool

	netPosition float64
	orders      map[string]struct{} // outstanding broker order ids
	stopOrders  map[string]struct{} // pending local stop order ids
}

// Config holds construction parameters for the runtime.
type Config struct {
	Logger      ports.Logger
	Registry    *Registry
	Transmitter Transmitter
	Stops       StopOrderService
	Worker      *persist.Worker // async sync-state writes; may be nil
	Store       ports.Store     // sync-state reads on init; may be nil
}

// Runtime subscribes strategies to instruments, forwards reconciled events
// to them, isolates per-strategy faults, tracks outstanding order sets and
// persists sync state. All state is owned by the event dispatch goroutine:
// lifecycle calls made from other goroutines must be handed to it, which the
// engine's LoadStrategy/InitStrategies/StartStrategies wrappers do via the
// bus.
type Runtime struct {
	logger      ports.Logger
	registry    *Registry
	transmitter Transmitter
	stops       StopOrderService
	worker      *persist.Worker
	store       ports.Store

	strategies   map[string]*handle
	byInstrument map[string][]*handle
	orderOwner   map[string]*handle
	seenTrades   map[string]struct{}
}

// New creates a runtime with no strategies loaded.
func New(cfg Config) (*Runtime, error) {
	if cfg.Logger == nil || cfg.Registry == nil || cfg.Transmitter == nil || cfg.Stops == nil {
		return nil, fmt.Errorf("missing required dependencies for strategy runtime")
	}
	return &Runtime{
		logger:       cfg.Logger,
		registry:     cfg.Registry,
		transmitter:  cfg.Transmitter,
		stops:        cfg.Stops,
		worker:       cfg.Worker,
		store:        cfg.Store,
		strategies:   make(map[string]*handle),
		byInstrument: make(map[string][]*handle),
		orderOwner:   make(map[string]*handle),
		seenTrades:   make(map[string]struct{}),
	}, nil
}

// Load constructs one strategy instance from configuration. A duplicate name
// or unknown class is logged and skipped, never fatal.
func (rt *Runtime) Load(cfg StrategyConfig) error {
	ctx := context.Background()
	if cfg.Name == "" || cfg.Instrument == "" {
		rt.logger.Warn(ctx, "Strategy config missing name or instrument, skipped", map[string]interface{}{"name": cfg.Name, "class": cfg.ClassName})
		return ports.ErrConfigurationError
	}
	if _, exists := rt.strategies[cfg.Name]; exists {
		rt.logger.Warn(ctx, "Duplicate strategy name, skipped", map[string]interface{}{"name": cfg.Name})
		return ports.ErrStrategyDuplicate
	}
	factory, ok := rt.registry.Lookup(cfg.ClassName)
	if !ok {
		rt.logger.Warn(ctx, "Unknown strategy class, skipped", map[string]interface{}{"name": cfg.Name, "class": cfg.ClassName})
		return fmt.Errorf("%w: class %q", ports.ErrStrategyNotFound, cfg.ClassName)
	}

	h := &handle{
		name:       cfg.Name,
		className:  cfg.ClassName,
		instrument: cfg.Instrument,
		orders:     make(map[string]struct{}),
		stopOrders: make(map[string]struct{}),
	}
	strat, err := factory(&strategyContext{rt: rt, h: h}, cfg.Instrument, cfg.Params)
	if err != nil {
		rt.logger.Error(ctx, err, "Strategy construction failed, skipped", map[string]interface{}{"name": cfg.Name, "class": cfg.ClassName})
		return err
	}
	h.strategy = strat

	rt.strategies[cfg.Name] = h
	rt.byInstrument[cfg.Instrument] = append(rt.byInstrument[cfg.Instrument], h)
	rt.logger.Info(ctx, "Strategy loaded", map[string]interface{}{"name": cfg.Name, "class": cfg.ClassName, "instrument": cfg.Instrument})
	return nil
}

// Init initializes one strategy: restores its sync state, runs OnInit and
// subscribes market data for its instrument.
func (rt *Runtime) Init(name string) error {
	h, ok := rt.strategies[name]
	if !ok {
		return fmt.Errorf("%w: %q", ports.ErrStrategyNotFound, name)
	}
	if h.inited {
		rt.logger.Warn(context.Background(), "Strategy already initialized", map[string]interface{}{"name": name})
		return nil
	}
	h.inited = true
	rt.loadSync(h)
	rt.callStrategy(h, "OnInit", h.strategy.OnInit)
	if err := rt.transmitter.Subscribe(domain.SubscribeRequest{Instrument: h.instrument}); err != nil {
		rt.logger.Warn(context.Background(), "Market data subscription failed", map[string]interface{}{"name": name, "instrument": h.instrument, "error": err.Error()})
	}
	return nil
}

// Start flips one initialized strategy into trading.
func (rt *Runtime) Start(name string) error {
	h, ok := rt.strategies[name]
	if !ok {
		return fmt.Errorf("%w: %q", ports.ErrStrategyNotFound, name)
	}
	if h.inited && !h.trading {
		h.trading = true
		rt.callStrategy(h, "OnStart", h.strategy.OnStart)
	}
	return nil
}

// Stop takes one strategy out of trading and cancels everything it still has
// working: every outstanding order and every pending stop order.
func (rt *Runtime) Stop(name string) error {
	h, ok := rt.strategies[name]
	if !ok {
		return fmt.Errorf("%w: %q", ports.ErrStrategyNotFound, name)
	}
	if !h.trading {
		return nil
	}
	h.trading = false
	rt.callStrategy(h, "OnStop", h.strategy.OnStop)
	rt.cancelAll(h)
	return nil
}

// InitAll initializes every loaded strategy.
func (rt *Runtime) InitAll() {
	for name := range rt.strategies {
		rt.Init(name)
	}
}

// StartAll starts every loaded strategy.
func (rt *Runtime) StartAll() {
	for name := range rt.strategies {
		rt.Start(name)
	}
}

// StopAll stops every loaded strategy.
func (rt *Runtime) StopAll() {
	for name := range rt.strategies {
		rt.Stop(name)
	}
}

// Names lists loaded strategy instance names.
func (rt *Runtime) Names() []string {
	names := make([]string, 0, len(rt.strategies))
	for name := range rt.strategies {
		names = append(names, name)
	}
	return names
}

// NetPosition returns a strategy's net position counter.
func (rt *Runtime) NetPosition(name string) (float64, error) {
	h, ok := rt.strategies[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ports.ErrStrategyNotFound, name)
	}
	return h.netPosition, nil
}

// StrategyVars returns the current variable values declared by a strategy's
// schema.
func (rt *Runtime) StrategyVars(name string) (map[string]interface{}, error) {
	return rt.fields(name, func(s ports.Schema) []ports.Field { return s.Vars })
}

// StrategyParams returns the parameter values declared by a strategy's
// schema.
func (rt *Runtime) StrategyParams(name string) (map[string]interface{}, error) {
	return rt.fields(name, func(s ports.Schema) []ports.Field { return s.Params })
}

func (rt *Runtime) fields(name string, pick func(ports.Schema) []ports.Field) (map[string]interface{}, error) {
	h, ok := rt.strategies[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ports.ErrStrategyNotFound, name)
	}
	out := make(map[string]interface{})
	for _, f := range pick(h.strategy.Schema()) {
		out[f.Name] = f.Get()
	}
	return out, nil
}

// ProcessTick evaluates pending stop orders for the instrument, then routes
// the tick to every initialized strategy trading it. The tick arrives by
// value so each dispatch cycle works on its own copy; a timestamp that fails
// to parse drops the tick for this cycle with a log line.
func (rt *Runtime) ProcessTick(tick domain.Tick) {
	handles := rt.byInstrument[tick.Instrument]
	if len(handles) == 0 {
		return
	}

	rt.stops.OnTick(&tick)

	if err := tick.ParseTimestamp(); err != nil {
		rt.logger.Warn(context.Background(), "Dropping tick with unparseable timestamp", map[string]interface{}{
			"instrument": tick.Instrument,
			"date":       tick.Date,
			"time":       tick.Time,
			"error":      err.Error(),
		})
		return
	}

	for _, h := range handles {
		if h.inited {
			rt.callStrategy(h, "OnTick", func() error { return h.strategy.OnTick(&tick) })
		}
	}
}

// ProcessOrder updates the owning strategy's outstanding-order set and
// forwards the report. Orders nobody owns are dropped.
func (rt *Runtime) ProcessOrder(order *domain.Order) {
	h, ok := rt.orderOwner[order.ID]
	if !ok {
		return
	}
	if order.Status.IsFinished() {
		delete(h.orders, order.ID)
	}
	rt.callStrategy(h, "OnOrder", func() error { return h.strategy.OnOrder(order) })
}

// ProcessTrade de-duplicates by trade id, adjusts the owning strategy's net
// position exactly once, forwards the fill and queues a sync-state snapshot.
func (rt *Runtime) ProcessTrade(trade *domain.Trade) {
	if _, seen := rt.seenTrades[trade.ID]; seen {
		return
	}
	rt.seenTrades[trade.ID] = struct{}{}

	h, ok := rt.orderOwner[trade.OrderID]
	if !ok {
		return
	}
	if trade.Direction == domain.DirectionLong {
		h.netPosition += trade.Volume
	} else {
		h.netPosition -= trade.Volume
	}
	rt.callStrategy(h, "OnTrade", func() error { return h.strategy.OnTrade(trade) })
	rt.saveSync(h)
}

// NotifyStopOrder routes a stop-order status change to its owner and drops
// terminal ids from the owner's pending set. Implements stoporder.Notifier.
func (rt *Runtime) NotifyStopOrder(so *domain.StopOrder) {
	h, ok := rt.strategies[so.Strategy]
	if !ok {
		return
	}
	if so.Status == domain.StopOrderWaiting {
		h.stopOrders[so.ID] = struct{}{}
	} else {
		delete(h.stopOrders, so.ID)
	}
	rt.callStrategy(h, "OnStopOrder", func() error { return h.strategy.OnStopOrder(so) })
}

// SendOrderFor submits an order on behalf of a named strategy and records
// ownership of every resulting leg. Implements stoporder.OrderSender.
func (rt *Runtime) SendOrderFor(strategyName string, req domain.OrderRequest) ([]string, error) {
	h, ok := rt.strategies[strategyName]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ports.ErrStrategyNotFound, strategyName)
	}
	return rt.sendOrder(h, req)
}

func (rt *Runtime) sendOrder(h *handle, req domain.OrderRequest) ([]string, error) {
	ids, err := rt.transmitter.SendOrder(req)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		rt.orderOwner[id] = h
		h.orders[id] = struct{}{}
	}
	rt.logger.Info(context.Background(), "Strategy order sent", map[string]interface{}{
		"strategy":   h.name,
		"instrument": req.Instrument,
		"direction":  req.Direction,
		"offset":     req.Offset,
		"volume":     req.Volume,
		"price":      req.Price,
		"orderIDs":   ids,
	})
	return ids, nil
}

// cancelAll cancels every outstanding order and pending stop order of one
// strategy. Iterates over copies: cancellation mutates the underlying sets.
func (rt *Runtime) cancelAll(h *handle) {
	for _, id := range keys(h.orders) {
		if err := rt.transmitter.CancelOrder(id); err != nil {
			rt.logger.Warn(context.Background(), "Cancel on stop failed", map[string]interface{}{"strategy": h.name, "orderID": id, "error": err.Error()})
		}
	}
	for _, id := range keys(h.stopOrders) {
		rt.stops.Cancel(id)
	}
}

// callStrategy is the fault boundary around every strategy callback: a panic
// or returned error stops this strategy (trading and initialized both go
// false) and is logged with full context, but never propagates.
func (rt *Runtime) callStrategy(h *handle, op string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			rt.fault(h, op, fmt.Errorf("panic: %v\n%s", r, debug.Stack()))
		}
	}()
	if err := fn(); err != nil {
		rt.fault(h, op, err)
	}
}

func (rt *Runtime) fault(h *handle, op string, err error) {
	h.trading = false
	h.inited = false
	rt.logger.Error(context.Background(), err, "Strategy fault, instance stopped", map[string]interface{}{
		"strategy":   h.name,
		"class":      h.className,
		"instrument": h.instrument,
		"callback":   op,
	})
}

// saveSync queues a snapshot of the strategy's declared sync fields plus its
// net position.
func (rt *Runtime) saveSync(h *handle) {
	if rt.worker == nil {
		return
	}
	record := SyncRecord{
		Name:        h.name,
		Instrument:  h.instrument,
		NetPosition: h.netPosition,
	}
	syncFields := h.strategy.Schema().Sync
	if len(syncFields) > 0 {
		record.Fields = make(map[string]interface{}, len(syncFields))
		for _, f := range syncFields {
			record.Fields[f.Name] = f.Get()
		}
	}
	rt.worker.Enqueue(persist.Write{
		Collection: syncCollection,
		Key:        h.name + "." + h.instrument,
		Doc:        record,
		Upsert:     true,
	})
}

// loadSync restores a strategy's persisted state, if any.
func (rt *Runtime) loadSync(h *handle) {
	if rt.store == nil {
		return
	}
	ctx := context.Background()
	var record SyncRecord
	err := rt.store.Query(ctx, syncCollection, h.name+"."+h.instrument, &record)
	if errors.Is(err, ports.ErrNotFound) {
		return
	}
	if err != nil {
		rt.logger.Warn(ctx, "Sync state load failed, starting clean", map[string]interface{}{"strategy": h.name, "error": err.Error()})
		return
	}
	h.netPosition = record.NetPosition
	for _, f := range h.strategy.Schema().Sync {
		if f.Set == nil {
			continue
		}
		if v, ok := record.Fields[f.Name]; ok {
			if err := f.Set(v); err != nil {
				rt.logger.Warn(ctx, "Sync field restore failed", map[string]interface{}{"strategy": h.name, "field": f.Name, "error": err.Error()})
			}
		}
	}
	rt.logger.Info(ctx, "Sync state restored", map[string]interface{}{"strategy": h.name, "netPosition": h.netPosition})
}

func keys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}
