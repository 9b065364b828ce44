package ledger

import (
	"tradeEngine/internal/domain"
)

// Mode selects how closing requests are converted into exchange-legal legs.
type Mode string

const (
	// ModeNormal passes requests through unchanged.
	ModeNormal Mode = "normal"
	// ModeSplitTodayFirst is for venues that settle today/yesterday closes
	// separately: a generic close is split into close-today then
	// close-yesterday legs.
	ModeSplitTodayFirst Mode = "split-today-first"
	// ModeTodayPenalty is for venues where closing today's opened quantity
	// carries an extra fee: same-day round-trips are locked as opposing open
	// positions instead of netted.
	ModeTodayPenalty Mode = "today-penalty"
)

// Side is the accounting state of one side (long or short) of a position.
// Position = Yesterday + Today holds after every update, and Frozen never
// exceeds Position.
type Side struct {
	Position        float64
	Yesterday       float64
	Today           float64
	Frozen          float64
	FrozenYesterday float64
	FrozenToday     float64
	Price           float64 // weighted average open price
	PnL             float64 // mark-to-market against the last tick
}

// Available returns the quantity not reserved by working close orders.
func (s *Side) Available() float64 { return s.Position - s.Frozen }

func (s *Side) todayAvailable() float64     { return s.Today - s.FrozenToday }
func (s *Side) yesterdayAvailable() float64 { return s.Yesterday - s.FrozenYesterday }

// PositionDetail is the locally maintained accounting state for one
// instrument. It is mutated only from the event dispatch goroutine; readers
// outside that goroutine must work on snapshots.
type PositionDetail struct {
	Instrument string
	Exchange   string
	Size       float64 // contract multiplier
	Mode       Mode

	Long  Side
	Short Side

	LastPrice float64

	// splitCloses marks venues whose close of carried-over quantity must be
	// tagged close-yesterday instead of a generic close.
	splitCloses bool

	workingOrders map[string]*domain.Order
}

func newPositionDetail(instrument string) *PositionDetail {
	return &PositionDetail{
		Instrument:    instrument,
		Size:          1,
		Mode:          ModeNormal,
		workingOrders: make(map[string]*domain.Order),
	}
}

// side returns the buckets a trade or order of the given direction and offset
// acts on: opens touch the own side, closes touch the opposing side.
func (d *PositionDetail) side(dir domain.Direction) *Side {
	if dir == domain.DirectionLong {
		return &d.Long
	}
	return &d.Short
}

// applyTrade folds one fill into the buckets. It returns true when the spill
// clamp drove the yesterday bucket negative, which means the local ledger
// disagrees with the exchange about how much position actually exists; the
// caller surfaces that as a warning.
func (d *PositionDetail) applyTrade(trade *domain.Trade) bool {
	own := d.side(trade.Direction)
	opp := d.side(trade.Direction.Opposite())
	v := trade.Volume

	switch trade.Offset {
	case domain.OffsetOpen:
		own.Today += v
	case domain.OffsetCloseToday:
		opp.Today -= v
	case domain.OffsetCloseYesterday:
		opp.Yesterday -= v
	case domain.OffsetClose:
		if d.Mode == ModeSplitTodayFirst {
			// the venue only accepts split closes, so a generic close here
			// can only have covered yesterday quantity
			opp.Yesterday -= v
		} else {
			// cover today first, spill the remainder into yesterday
			opp.Today -= v
			if opp.Today < 0 {
				opp.Yesterday += opp.Today
				opp.Today = 0
			}
		}
	}

	d.updatePrice(trade)
	d.updatePosition()
	d.updatePnL()

	return d.Long.Yesterday < 0 || d.Short.Yesterday < 0 ||
		d.Long.Today < 0 || d.Short.Today < 0
}

// applyOrder refreshes the working-order cache with the latest order report
// and recomputes frozen quantities.
func (d *PositionDetail) applyOrder(order *domain.Order) {
	if order.Status.IsFinished() {
		delete(d.workingOrders, order.ID)
	} else {
		d.workingOrders[order.ID] = order
	}
	d.updateFrozen()
}

// registerOrderRequest records an order that was just sent but not yet
// reported back, so frozen quantities reflect in-flight requests immediately.
func (d *PositionDetail) registerOrderRequest(req domain.OrderRequest, orderID string) {
	order := &domain.Order{
		Instrument:  req.Instrument,
		Symbol:      req.Symbol,
		Exchange:    req.Exchange,
		ID:          orderID,
		Direction:   req.Direction,
		Offset:      req.Offset,
		Price:       req.Price,
		TotalVolume: req.Volume,
		Status:      domain.StatusUnknown,
	}
	d.workingOrders[orderID] = order
	d.updateFrozen()
}

// applyPosition overwrites one side with the authoritative exchange snapshot.
func (d *PositionDetail) applyPosition(pos *domain.Position) {
	s := d.side(pos.Direction)
	s.Position = pos.Volume
	s.Yesterday = pos.YesterdayVolume
	s.Today = pos.Volume - pos.YesterdayVolume
	s.Price = pos.Price
	s.PnL = pos.PnL
}

// applyTick refreshes the mark price and PnL.
func (d *PositionDetail) applyTick(tick *domain.Tick) {
	d.LastPrice = tick.LastPrice
	d.updatePnL()
}

func (d *PositionDetail) updatePosition() {
	d.Long.Position = d.Long.Today + d.Long.Yesterday
	d.Short.Position = d.Short.Today + d.Short.Yesterday
}

func (d *PositionDetail) updatePnL() {
	d.Long.PnL = d.Long.Position * (d.LastPrice - d.Long.Price) * d.Size
	d.Short.PnL = d.Short.Position * (d.Short.Price - d.LastPrice) * d.Size
}

// updatePrice recomputes the weighted average open price. Only open trades
// move the average; it resets to zero when the position flattens.
func (d *PositionDetail) updatePrice(trade *domain.Trade) {
	if trade.Offset != domain.OffsetOpen {
		return
	}
	s := d.side(trade.Direction)
	cost := s.Price*s.Position + trade.Price*trade.Volume
	newPos := s.Position + trade.Volume
	if newPos != 0 {
		s.Price = cost / newPos
	} else {
		s.Price = 0
	}
}

// updateFrozen rebuilds the frozen buckets from scratch by scanning every
// working order. A generic close freezes today quantity first and spills the
// overflow into yesterday, mirroring applyTrade, which keeps frozen within
// position.
func (d *PositionDetail) updateFrozen() {
	d.Long.Frozen, d.Long.FrozenToday, d.Long.FrozenYesterday = 0, 0, 0
	d.Short.Frozen, d.Short.FrozenToday, d.Short.FrozenYesterday = 0, 0, 0

	for _, order := range d.workingOrders {
		remaining := order.TotalVolume - order.TradedVolume
		// a closing order freezes quantity on the opposing side
		opp := d.side(order.Direction.Opposite())

		switch order.Offset {
		case domain.OffsetCloseToday:
			opp.FrozenToday += remaining
		case domain.OffsetCloseYesterday:
			opp.FrozenYesterday += remaining
		case domain.OffsetClose:
			opp.FrozenToday += remaining
			if opp.FrozenToday > opp.Today {
				opp.FrozenYesterday += opp.FrozenToday - opp.Today
				opp.FrozenToday = opp.Today
			}
		}
	}

	d.Long.Frozen = d.Long.FrozenToday + d.Long.FrozenYesterday
	d.Short.Frozen = d.Short.FrozenToday + d.Short.FrozenYesterday
}

// closeYesterdayOffset is the offset tag a venue expects for closing
// carried-over quantity.
func (d *PositionDetail) closeYesterdayOffset() domain.Offset {
	if d.splitCloses {
		return domain.OffsetCloseYesterday
	}
	return domain.OffsetClose
}

// convert turns a raw order request into the list of exchange-legal legs for
// this instrument's mode. An empty result means the request was rejected and
// nothing must be submitted; leg volumes always sum exactly to the request
// volume otherwise.
func (d *PositionDetail) convert(req domain.OrderRequest) []domain.OrderRequest {
	switch d.Mode {
	case ModeNormal:
		return []domain.OrderRequest{req}

	case ModeSplitTodayFirst:
		if req.Offset == domain.OffsetOpen {
			return []domain.OrderRequest{req}
		}
		opp := d.side(req.Direction.Opposite())
		available := opp.Available()
		tdAvailable := opp.todayAvailable()

		if req.Volume > available {
			return nil
		}
		if req.Volume <= tdAvailable {
			req.Offset = domain.OffsetCloseToday
			return []domain.OrderRequest{req}
		}
		var legs []domain.OrderRequest
		if tdAvailable > 0 {
			td := req
			td.Offset = domain.OffsetCloseToday
			td.Volume = tdAvailable
			legs = append(legs, td)
		}
		yd := req
		yd.Offset = domain.OffsetCloseYesterday
		yd.Volume = req.Volume - tdAvailable
		return append(legs, yd)

	case ModeTodayPenalty:
		// open and close requests run through the same path: an open against
		// carried-over opposing quantity nets it instead of building both sides
		opp := d.side(req.Direction.Opposite())
		ydAvailable := opp.yesterdayAvailable()

		// any today quantity on the opposing side forces a lock: open the
		// other way instead of paying the penalty
		if opp.Today != 0 {
			req.Offset = domain.OffsetOpen
			return []domain.OrderRequest{req}
		}
		if req.Volume <= ydAvailable {
			req.Offset = d.closeYesterdayOffset()
			return []domain.OrderRequest{req}
		}
		var legs []domain.OrderRequest
		if ydAvailable > 0 {
			cl := req
			cl.Offset = d.closeYesterdayOffset()
			cl.Volume = ydAvailable
			legs = append(legs, cl)
		}
		op := req
		op.Offset = domain.OffsetOpen
		op.Volume = req.Volume - ydAvailable
		return append(legs, op)
	}

	return nil
}

// snapshot returns a copy safe to hand outside the dispatch goroutine.
func (d *PositionDetail) snapshot() PositionDetail {
	cp := *d
	cp.workingOrders = nil
	return cp
}
