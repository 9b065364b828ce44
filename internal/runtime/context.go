package runtime

import (
	"context"

	"tradeEngine/internal/domain"
)

// strategyContext is the ports.StrategyContext implementation handed to each
// strategy instance, pre-bound to its handle so every call is attributed to
// the right owner.
type strategyContext struct {
	rt *Runtime
	h  *handle
}

func (c *strategyContext) SendOrder(direction domain.Direction, offset domain.Offset, price, volume float64) ([]string, error) {
	req := domain.OrderRequest{
		Instrument: c.h.instrument,
		Direction:  direction,
		Offset:     offset,
		Price:      price,
		Volume:     volume,
	}
	if contract := c.rt.transmitter.Contract(c.h.instrument); contract != nil {
		req.Symbol = contract.Symbol
		req.Exchange = contract.Exchange
	}
	return c.rt.sendOrder(c.h, req)
}

func (c *strategyContext) SendStopOrder(direction domain.Direction, offset domain.Offset, triggerPrice, volume float64) (string, error) {
	id := c.rt.stops.Submit(c.h.instrument, direction, offset, triggerPrice, volume, c.h.name)
	return id, nil
}

func (c *strategyContext) CancelOrder(orderID string) error {
	return c.rt.transmitter.CancelOrder(orderID)
}

func (c *strategyContext) CancelStopOrder(stopOrderID string) error {
	c.rt.stops.Cancel(stopOrderID)
	return nil
}

func (c *strategyContext) CancelAll() {
	c.rt.cancelAll(c.h)
}

func (c *strategyContext) LastTick() *domain.Tick {
	return c.rt.transmitter.LastTick(c.h.instrument)
}

func (c *strategyContext) Log(msg string, fields ...map[string]interface{}) {
	merged := map[string]interface{}{"strategy": c.h.name}
	if len(fields) > 0 {
		for k, v := range fields[0] {
			merged[k] = v
		}
	}
	c.rt.logger.Info(context.Background(), msg, merged)
}
