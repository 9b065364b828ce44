package stoporder

import (
	"context"
	"fmt"

	"tradeEngine/internal/domain"
	"tradeEngine/internal/ports"
)

// IDPrefix marks locally generated stop-order ids so callers can tell them
// apart from broker order ids when cancelling.
const IDPrefix = "stop."

// OrderSender submits a real order on behalf of a strategy through the normal
// submission path (risk checks and ledger conversion included). An empty id
// list with no error cannot happen; refusal is reported as an error.
type OrderSender interface {
	SendOrderFor(strategyName string, req domain.OrderRequest) ([]string, error)
}

// Notifier receives every stop-order status change and routes it to the
// owning strategy.
type Notifier interface {
	NotifyStopOrder(so *domain.StopOrder)
}

// Config holds construction parameters for the engine.
type Config struct {
	Logger   ports.Logger
	Sender   OrderSender
	Notifier Notifier
}

// Engine simulates conditional orders the venue does not support natively:
// it keeps pending stop orders, evaluates them against each tick, and emits a
// real order when one triggers. All methods run on the event dispatch
// goroutine, which is what guarantees a stop order triggers at most once and
// is never evaluated after cancellation.
type Engine struct {
	logger   ports.Logger
	sender   OrderSender
	notifier Notifier

	count   int64
	orders  map[string]*domain.StopOrder // every stop order ever submitted
	pending map[string]*domain.StopOrder // waiting only
}

// New creates an engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Logger == nil || cfg.Sender == nil {
		return nil, fmt.Errorf("missing required dependencies for stop order engine")
	}
	return &Engine{
		logger:   cfg.Logger,
		sender:   cfg.Sender,
		notifier: cfg.Notifier,
		orders:   make(map[string]*domain.StopOrder),
		pending:  make(map[string]*domain.StopOrder),
	}, nil
}

// Submit registers a new stop order in waiting state and returns its id.
func (e *Engine) Submit(instrument string, direction domain.Direction, offset domain.Offset, triggerPrice, volume float64, strategyName string) string {
	e.count++
	id := fmt.Sprintf("%s%d", IDPrefix, e.count)
	so := &domain.StopOrder{
		ID:         id,
		Instrument: instrument,
		Direction:  direction,
		Offset:     offset,
		Price:      triggerPrice,
		Volume:     volume,
		Strategy:   strategyName,
		Status:     domain.StopOrderWaiting,
	}
	e.orders[id] = so
	e.pending[id] = so
	e.notify(so)
	return id
}

// Cancel removes a pending stop order. Cancelling an id that is unknown or
// already terminal reports false; a cancelled order is never evaluated again.
func (e *Engine) Cancel(stopOrderID string) bool {
	so, ok := e.pending[stopOrderID]
	if !ok {
		return false
	}
	delete(e.pending, stopOrderID)
	so.Status = domain.StopOrderCancelled
	e.notify(so)
	return true
}

// OnTick evaluates every pending stop order for the tick's instrument. A
// triggered order is marked and removed only once the synthetic order
// submission yields a real order id; a refused submission leaves the stop
// order waiting so it is retried on the next tick.
func (e *Engine) OnTick(tick *domain.Tick) {
	for _, so := range e.pendingFor(tick.Instrument) {
		longHit := so.Direction == domain.DirectionLong && tick.LastPrice >= so.Price
		shortHit := so.Direction == domain.DirectionShort && tick.LastPrice <= so.Price
		if !longHit && !shortHit {
			continue
		}

		req := domain.OrderRequest{
			Instrument: tick.Instrument,
			Symbol:     tick.Symbol,
			Exchange:   tick.Exchange,
			Direction:  so.Direction,
			Offset:     so.Offset,
			Price:      marketPrice(so.Direction, tick),
			Volume:     so.Volume,
		}

		ids, err := e.sender.SendOrderFor(so.Strategy, req)
		if err != nil || len(ids) == 0 {
			// risk control or conversion refused the order; keep waiting and
			// try again on the next tick
			e.logger.Warn(context.Background(), "Stop order trigger refused, will retry", map[string]interface{}{
				"stopOrderID": so.ID,
				"instrument":  so.Instrument,
				"error":       fmt.Sprint(err),
			})
			continue
		}

		delete(e.pending, so.ID)
		so.Status = domain.StopOrderTriggered
		e.logger.Info(context.Background(), "Stop order triggered", map[string]interface{}{
			"stopOrderID": so.ID,
			"instrument":  so.Instrument,
			"trigger":     so.Price,
			"last":        tick.LastPrice,
			"orderIDs":    ids,
		})
		e.notify(so)
	}
}

// Get returns a stop order by id, terminal ones included.
func (e *Engine) Get(stopOrderID string) *domain.StopOrder {
	return e.orders[stopOrderID]
}

// Pending reports whether a stop order is still waiting.
func (e *Engine) Pending(stopOrderID string) bool {
	_, ok := e.pending[stopOrderID]
	return ok
}

func (e *Engine) pendingFor(instrument string) []*domain.StopOrder {
	var list []*domain.StopOrder
	for _, so := range e.pending {
		if so.Instrument == instrument {
			list = append(list, so)
		}
	}
	return list
}

func (e *Engine) notify(so *domain.StopOrder) {
	if e.notifier != nil {
		e.notifier.NotifyStopOrder(so)
	}
}

// marketPrice approximates a market order with a limit order at the session
// price limit, falling back to the far end of the price ladder on venues
// without limit prices.
func marketPrice(direction domain.Direction, tick *domain.Tick) float64 {
	if direction == domain.DirectionLong {
		if tick.UpperLimit > 0 {
			return tick.UpperLimit
		}
		return tick.AskPrice[domain.DepthLevels-1]
	}
	if tick.LowerLimit > 0 {
		return tick.LowerLimit
	}
	return tick.BidPrice[domain.DepthLevels-1]
}
