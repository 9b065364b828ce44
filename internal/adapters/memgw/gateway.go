// Package memgw is an in-process gateway that matches orders against the
// ticks fed into it. It backs paper trading and the engine tests; no network
// is involved.
package memgw

import (
	"context"
	"fmt"
	"sync"

	"tradeEngine/internal/domain"
	"tradeEngine/internal/ports"
)

// Config holds construction parameters for the simulated gateway.
type Config struct {
	Logger    ports.Logger
	Publisher ports.EventPublisher
	Name      string // defaults to "SIM"
	Contracts []domain.Contract
}

// Gateway simulates a venue: orders rest in memory and fill when a pushed
// tick crosses their price. Fills are always complete; partial fills are not
// simulated.
type Gateway struct {
	logger    ports.Logger
	publisher ports.EventPublisher
	name      string

	mu         sync.Mutex
	connected  bool
	orderCount int64
	tradeCount int64
	contracts  map[string]domain.Contract
	subscribed map[string]struct{}
	working    map[string]*domain.Order
	lastTicks  map[string]domain.Tick
}

// New creates a simulated gateway. Contracts given here are published on
// Connect so the engine learns about them the same way it would from a real
// venue.
func New(cfg Config) (*Gateway, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for simulated gateway")
	}
	if cfg.Publisher == nil {
		return nil, fmt.Errorf("event publisher is required for simulated gateway")
	}
	name := cfg.Name
	if name == "" {
		name = "SIM"
	}
	g := &Gateway{
		logger:     cfg.Logger,
		publisher:  cfg.Publisher,
		name:       name,
		contracts:  make(map[string]domain.Contract),
		subscribed: make(map[string]struct{}),
		working:    make(map[string]*domain.Order),
		lastTicks:  make(map[string]domain.Tick),
	}
	for _, contract := range cfg.Contracts {
		contract.Gateway = name
		g.contracts[contract.Instrument] = contract
	}
	return g, nil
}

// Name implements ports.Gateway.
func (g *Gateway) Name() string { return g.name }

// Connect implements ports.Gateway: it publishes the configured contracts.
func (g *Gateway) Connect(ctx context.Context) error {
	g.mu.Lock()
	g.connected = true
	contracts := make([]domain.Contract, 0, len(g.contracts))
	for _, c := range g.contracts {
		contracts = append(contracts, c)
	}
	g.mu.Unlock()

	for i := range contracts {
		c := contracts[i]
		g.publishBoth(domain.EventContract, c.Instrument, &c)
	}
	g.logger.Info(ctx, "Simulated gateway connected", map[string]interface{}{"gateway": g.name, "contracts": len(contracts)})
	return nil
}

// Subscribe implements ports.Gateway. Only subscribed instruments have their
// pushed ticks forwarded to the bus.
func (g *Gateway) Subscribe(req domain.SubscribeRequest) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.subscribed[req.Instrument] = struct{}{}
	return nil
}

// SendOrder implements ports.Gateway. The order rests until a tick crosses
// its price; an immediate report with the not-traded status is published.
func (g *Gateway) SendOrder(req domain.OrderRequest) (string, error) {
	g.mu.Lock()
	if !g.connected {
		g.mu.Unlock()
		return "", fmt.Errorf("simulated gateway not connected")
	}
	g.orderCount++
	id := fmt.Sprintf("%s.%d", g.name, g.orderCount)
	order := &domain.Order{
		Origin:      domain.Origin{Gateway: g.name},
		Instrument:  req.Instrument,
		Symbol:      req.Symbol,
		Exchange:    req.Exchange,
		ID:          id,
		ClientID:    id,
		Direction:   req.Direction,
		Offset:      req.Offset,
		Price:       req.Price,
		TotalVolume: req.Volume,
		Status:      domain.StatusNotTraded,
	}
	g.working[id] = order
	tick, hasTick := g.lastTicks[req.Instrument]
	g.mu.Unlock()

	report := *order
	g.publishBoth(domain.EventOrder, id, &report)

	// A marketable order fills against the last known tick right away.
	if hasTick && g.crosses(req.Direction, req.Price, tick.LastPrice) {
		g.fill(id, tick.LastPrice)
	}
	return id, nil
}

// CancelOrder implements ports.Gateway. Cancelling an order that already
// filled or was cancelled is reported as a stale reference.
func (g *Gateway) CancelOrder(req domain.CancelRequest) error {
	g.mu.Lock()
	order, ok := g.working[req.OrderID]
	if !ok {
		g.mu.Unlock()
		return fmt.Errorf("%w: order %q", ports.ErrStaleReference, req.OrderID)
	}
	delete(g.working, req.OrderID)
	order.Status = domain.StatusCancelled
	report := *order
	g.mu.Unlock()

	g.publishBoth(domain.EventOrder, report.ID, &report)
	return nil
}

// Close implements ports.Gateway.
func (g *Gateway) Close() error {
	g.mu.Lock()
	g.connected = false
	g.mu.Unlock()
	return nil
}

// PushTick feeds a market data snapshot into the gateway. Subscribed
// instruments have the tick forwarded to the bus, then resting orders are
// matched against the last price.
func (g *Gateway) PushTick(tick domain.Tick) {
	tick.Gateway = g.name

	g.mu.Lock()
	g.lastTicks[tick.Instrument] = tick
	_, subscribed := g.subscribed[tick.Instrument]
	var fills []string
	for id, order := range g.working {
		if order.Instrument == tick.Instrument && g.crosses(order.Direction, order.Price, tick.LastPrice) {
			fills = append(fills, id)
		}
	}
	g.mu.Unlock()

	if subscribed {
		forwarded := tick
		g.publishBoth(domain.EventTick, tick.Instrument, &forwarded)
	}
	for _, id := range fills {
		g.fill(id, tick.LastPrice)
	}
}

// crosses reports whether a resting limit order is marketable at last.
func (g *Gateway) crosses(dir domain.Direction, limit, last float64) bool {
	if dir == domain.DirectionLong {
		return last <= limit
	}
	return last >= limit
}

// fill completes a resting order at the given price and publishes the trade
// followed by the terminal order report.
func (g *Gateway) fill(orderID string, price float64) {
	g.mu.Lock()
	order, ok := g.working[orderID]
	if !ok {
		g.mu.Unlock()
		return
	}
	delete(g.working, orderID)
	order.TradedVolume = order.TotalVolume
	order.Status = domain.StatusAllTraded
	g.tradeCount++
	trade := &domain.Trade{
		Origin:     domain.Origin{Gateway: g.name},
		Instrument: order.Instrument,
		Symbol:     order.Symbol,
		Exchange:   order.Exchange,
		ID:         fmt.Sprintf("%s.t%d", g.name, g.tradeCount),
		OrderID:    order.ID,
		Direction:  order.Direction,
		Offset:     order.Offset,
		Price:      price,
		Volume:     order.TotalVolume,
	}
	report := *order
	g.mu.Unlock()

	g.publishBoth(domain.EventTrade, trade.ID, trade)
	g.publishBoth(domain.EventOrder, report.ID, &report)
}

// publishBoth publishes on the generic type and on the type suffixed with
// the record's own key, matching the convention every gateway follows.
func (g *Gateway) publishBoth(eventType, suffix string, payload interface{}) {
	g.publisher.Publish(domain.NewEvent(eventType, payload))
	g.publisher.Publish(domain.NewEvent(eventType+suffix, payload))
}
