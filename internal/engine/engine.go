package engine

import (
	"context"
	"fmt"

	"tradeEngine/internal/domain"
	"tradeEngine/internal/eventbus"
	"tradeEngine/internal/ledger"
	"tradeEngine/internal/persist"
	"tradeEngine/internal/ports"
	"tradeEngine/internal/risk"
	"tradeEngine/internal/runtime"
	"tradeEngine/internal/stoporder"
)

// Config holds construction parameters for the engine.
type Config struct {
	Logger   ports.Logger
	Bus      *eventbus.Bus
	Ledger   *ledger.Ledger
	Risk     *risk.Manager
	Registry *runtime.Registry
	Worker   *persist.Worker // may be nil
	Store    ports.Store     // may be nil
}

// Engine is the hub wiring the event bus, position ledger, stop-order engine
// and strategy runtime together with the gateways. It implements the order
// path every strategy order travels: risk check, ledger conversion, gateway
// dispatch, ledger pre-registration.
type Engine struct {
	logger ports.Logger
	bus    *eventbus.Bus
	ledger *ledger.Ledger
	risk   *risk.Manager
	worker *persist.Worker

	stops   *stoporder.Engine
	runtime *runtime.Runtime

	gateways     map[string]ports.Gateway
	gatewayOrder []string
}

// New wires an engine. The stop-order engine and strategy runtime are
// created here because the three reference each other.
func New(cfg Config) (*Engine, error) {
	if cfg.Logger == nil || cfg.Bus == nil || cfg.Ledger == nil || cfg.Risk == nil || cfg.Registry == nil {
		return nil, fmt.Errorf("missing required dependencies for engine")
	}
	e := &Engine{
		logger:   cfg.Logger,
		bus:      cfg.Bus,
		ledger:   cfg.Ledger,
		risk:     cfg.Risk,
		worker:   cfg.Worker,
		gateways: make(map[string]ports.Gateway),
	}

	stops, err := stoporder.New(stoporder.Config{Logger: cfg.Logger, Sender: e, Notifier: e})
	if err != nil {
		return nil, err
	}
	e.stops = stops

	rt, err := runtime.New(runtime.Config{
		Logger:      cfg.Logger,
		Registry:    cfg.Registry,
		Transmitter: e,
		Stops:       stops,
		Worker:      cfg.Worker,
		Store:       cfg.Store,
	})
	if err != nil {
		return nil, err
	}
	e.runtime = rt

	e.registerHandlers()
	return e, nil
}

// registerHandlers wires ledger and runtime onto the bus. Registration order
// matters: for each event the ledger is reconciled first, then strategies
// see it.
func (e *Engine) registerHandlers() {
	e.bus.Subscribe(domain.EventTick, eventbus.Handler{ID: "ledger.tick", Fn: func(ev domain.Event) {
		if tick, ok := ev.Payload.(*domain.Tick); ok {
			e.ledger.ProcessTick(tick)
		}
	}})
	e.bus.Subscribe(domain.EventTick, eventbus.Handler{ID: "runtime.tick", Fn: func(ev domain.Event) {
		if tick, ok := ev.Payload.(*domain.Tick); ok {
			e.runtime.ProcessTick(*tick)
		}
	}})
	e.bus.Subscribe(domain.EventOrder, eventbus.Handler{ID: "ledger.order", Fn: func(ev domain.Event) {
		if order, ok := ev.Payload.(*domain.Order); ok {
			e.ledger.ProcessOrder(order)
		}
	}})
	e.bus.Subscribe(domain.EventOrder, eventbus.Handler{ID: "runtime.order", Fn: func(ev domain.Event) {
		if order, ok := ev.Payload.(*domain.Order); ok {
			e.runtime.ProcessOrder(order)
		}
	}})
	e.bus.Subscribe(domain.EventTrade, eventbus.Handler{ID: "ledger.trade", Fn: func(ev domain.Event) {
		if trade, ok := ev.Payload.(*domain.Trade); ok {
			e.ledger.ProcessTrade(trade)
		}
	}})
	e.bus.Subscribe(domain.EventTrade, eventbus.Handler{ID: "runtime.trade", Fn: func(ev domain.Event) {
		if trade, ok := ev.Payload.(*domain.Trade); ok {
			e.runtime.ProcessTrade(trade)
		}
	}})
	e.bus.Subscribe(domain.EventPosition, eventbus.Handler{ID: "ledger.position", Fn: func(ev domain.Event) {
		if pos, ok := ev.Payload.(*domain.Position); ok {
			e.ledger.ProcessPosition(pos)
		}
	}})
	e.bus.Subscribe(domain.EventContract, eventbus.Handler{ID: "ledger.contract", Fn: func(ev domain.Event) {
		if contract, ok := ev.Payload.(*domain.Contract); ok {
			e.ledger.ProcessContract(contract)
		}
	}})
	e.bus.Subscribe(domain.EventTimer, eventbus.Handler{ID: "risk.timer", Fn: func(ev domain.Event) {
		e.risk.OnTimer()
	}})
}

// AddGateway registers a venue connection under its name.
func (e *Engine) AddGateway(gw ports.Gateway) {
	if _, exists := e.gateways[gw.Name()]; exists {
		e.logger.Warn(context.Background(), "Gateway already registered, replacing", map[string]interface{}{"gateway": gw.Name()})
	} else {
		e.gatewayOrder = append(e.gatewayOrder, gw.Name())
	}
	e.gateways[gw.Name()] = gw
}

// Gateway resolves a gateway by name with an explicit found flag.
func (e *Engine) Gateway(name string) (ports.Gateway, bool) {
	gw, ok := e.gateways[name]
	return gw, ok
}

// Start starts the bus dispatch and timer, the persistence worker, and
// connects every gateway. A gateway that fails to connect is logged and
// skipped; the engine keeps running with the rest.
func (e *Engine) Start(ctx context.Context) {
	e.bus.Start(true)
	if e.worker != nil {
		e.worker.Start()
	}
	for _, name := range e.gatewayOrder {
		if err := e.gateways[name].Connect(ctx); err != nil {
			e.logger.Error(ctx, err, "Gateway connect failed", map[string]interface{}{"gateway": name})
		}
	}
	e.logger.Info(ctx, "Engine started", map[string]interface{}{"gateways": len(e.gateways)})
}

// Stop shuts everything down in dependency order: strategies first, then
// gateways, then the bus and the persistence worker. Stopping the strategies
// runs on the dispatch goroutine so it cannot overlap an event handler.
func (e *Engine) Stop() {
	ctx := context.Background()
	e.bus.Do(e.runtime.StopAll)
	for _, name := range e.gatewayOrder {
		if err := e.gateways[name].Close(); err != nil {
			e.logger.Warn(ctx, "Gateway close failed", map[string]interface{}{"gateway": name, "error": err.Error()})
		}
	}
	e.bus.Stop()
	if e.worker != nil {
		e.worker.Stop()
	}
	e.logger.Info(ctx, "Engine stopped")
}

// LoadStrategy constructs one strategy instance from configuration. The
// runtime's maps belong to the event dispatch goroutine, so the call is
// handed to it; loading is safe while market data is already flowing.
func (e *Engine) LoadStrategy(cfg runtime.StrategyConfig) error {
	var err error
	e.bus.Do(func() { err = e.runtime.Load(cfg) })
	return err
}

// InitStrategies initializes every loaded strategy on the dispatch goroutine.
func (e *Engine) InitStrategies() {
	e.bus.Do(e.runtime.InitAll)
}

// StartStrategies starts every initialized strategy on the dispatch
// goroutine.
func (e *Engine) StartStrategies() {
	e.bus.Do(e.runtime.StartAll)
}

// Runtime exposes the strategy runtime for read-only inspection. Lifecycle
// calls go through LoadStrategy, InitStrategies and StartStrategies instead,
// which serialize them with event dispatch.
func (e *Engine) Runtime() *runtime.Runtime { return e.runtime }

// Bus exposes the event bus, mainly so gateways can publish into it.
func (e *Engine) Bus() *eventbus.Bus { return e.bus }

// StopOrders exposes the local stop-order engine.
func (e *Engine) StopOrders() *stoporder.Engine { return e.stops }

// PositionSnapshot returns a copy of the ledger detail for diagnostics.
func (e *Engine) PositionSnapshot(instrument string) ledger.PositionDetail {
	return e.ledger.Snapshot(instrument)
}

// SendOrder implements runtime.Transmitter: risk check, ledger conversion,
// gateway dispatch, ledger pre-registration. The returned ids cover every
// leg that was actually accepted by a gateway; refusal of the whole request
// is an error and nothing was submitted.
func (e *Engine) SendOrder(req domain.OrderRequest) ([]string, error) {
	ctx := context.Background()

	if err := e.risk.CheckOrder(req); err != nil {
		e.logger.Warn(ctx, "Order refused by risk checks", map[string]interface{}{"instrument": req.Instrument, "volume": req.Volume, "reason": err.Error()})
		return nil, fmt.Errorf("%w: %v", ports.ErrRejectedBySite, err)
	}

	legs, err := e.ledger.Convert(req)
	if err != nil {
		e.logger.Warn(ctx, "Order refused by position conversion", map[string]interface{}{"instrument": req.Instrument, "volume": req.Volume, "offset": req.Offset})
		return nil, err
	}

	gw, err := e.gatewayFor(req.Instrument)
	if err != nil {
		return nil, err
	}

	contract := e.ledger.Contract(req.Instrument)
	var ids []string
	for _, leg := range legs {
		leg.Price = contract.RoundToPriceTick(leg.Price)
		id, sendErr := gw.SendOrder(leg)
		if sendErr != nil || id == "" {
			e.logger.Warn(ctx, "Gateway refused order leg", map[string]interface{}{
				"gateway":    gw.Name(),
				"instrument": leg.Instrument,
				"offset":     leg.Offset,
				"volume":     leg.Volume,
				"error":      fmt.Sprint(sendErr),
			})
			continue
		}
		e.ledger.RegisterOrderRequest(leg, id)
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, ports.ErrRejectedBySite
	}
	return ids, nil
}

// CancelOrder implements runtime.Transmitter. Cancelling an order already in
// a terminal status is a no-op; an unknown id is a stale reference.
func (e *Engine) CancelOrder(orderID string) error {
	order := e.ledger.Order(orderID)
	if order == nil {
		return fmt.Errorf("%w: order %q", ports.ErrStaleReference, orderID)
	}
	if order.Status.IsFinished() {
		return nil
	}
	req := domain.CancelRequest{
		Instrument: order.Instrument,
		Symbol:     order.Symbol,
		Exchange:   order.Exchange,
		OrderID:    orderID,
	}
	if err := e.risk.CheckCancel(req); err != nil {
		return fmt.Errorf("%w: %v", ports.ErrRejectedBySite, err)
	}
	gw, ok := e.gateways[order.Gateway]
	if !ok {
		gwFallback, err := e.gatewayFor(order.Instrument)
		if err != nil {
			return err
		}
		gw = gwFallback
	}
	return gw.CancelOrder(req)
}

// Subscribe implements runtime.Transmitter: market data subscription is
// routed to the instrument's gateway when known, otherwise to every gateway.
func (e *Engine) Subscribe(req domain.SubscribeRequest) error {
	if contract := e.ledger.Contract(req.Instrument); contract != nil {
		req.Symbol = contract.Symbol
		req.Exchange = contract.Exchange
		if gw, ok := e.gateways[contract.Gateway]; ok {
			return gw.Subscribe(req)
		}
	}
	var lastErr error
	for _, name := range e.gatewayOrder {
		if err := e.gateways[name].Subscribe(req); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// LastTick implements runtime.Transmitter.
func (e *Engine) LastTick(instrument string) *domain.Tick {
	return e.ledger.Tick(instrument)
}

// Contract implements runtime.Transmitter.
func (e *Engine) Contract(instrument string) *domain.Contract {
	return e.ledger.Contract(instrument)
}

// SendOrderFor implements stoporder.OrderSender by delegating to the runtime
// so triggered orders carry the owning strategy's attribution.
func (e *Engine) SendOrderFor(strategyName string, req domain.OrderRequest) ([]string, error) {
	return e.runtime.SendOrderFor(strategyName, req)
}

// NotifyStopOrder implements stoporder.Notifier.
func (e *Engine) NotifyStopOrder(so *domain.StopOrder) {
	e.runtime.NotifyStopOrder(so)
}

// gatewayFor picks the gateway owning an instrument: the one that pushed its
// contract, falling back to the only registered gateway.
func (e *Engine) gatewayFor(instrument string) (ports.Gateway, error) {
	if contract := e.ledger.Contract(instrument); contract != nil {
		if gw, ok := e.gateways[contract.Gateway]; ok {
			return gw, nil
		}
	}
	if len(e.gatewayOrder) == 1 {
		return e.gateways[e.gatewayOrder[0]], nil
	}
	return nil, fmt.Errorf("%w: no gateway for instrument %q", ports.ErrGatewayNotFound, instrument)
}
