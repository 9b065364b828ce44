package strategies

import (
	"fmt"

	"tradeEngine/internal/domain"
	"tradeEngine/internal/ports"
)

// ChannelBreakout enters in the direction of a price channel breakout using
// local stop orders. While flat it keeps an entry stop resting at each band;
// once positioned it keeps a single exit stop at the opposite band. Stops are
// refreshed on every tick so the bands track the market.
type ChannelBreakout struct {
	sc         ports.StrategyContext
	instrument string

	windowSize int
	volume     float64

	window    *Window
	upperBand float64
	lowerBand float64

	pos          float64
	pendingStops map[string]struct{}
}

// NewChannelBreakout builds a ChannelBreakout instance from configuration
// parameters: windowSize (default 20) and volume (default 1).
func NewChannelBreakout(sc ports.StrategyContext, instrument string, params map[string]interface{}) (ports.Strategy, error) {
	size, err := intParam(params, "windowSize", 20)
	if err != nil {
		return nil, err
	}
	volume, err := floatParam(params, "volume", 1)
	if err != nil {
		return nil, err
	}
	if size <= 1 {
		return nil, fmt.Errorf("window size must be greater than 1")
	}
	if volume <= 0 {
		return nil, fmt.Errorf("volume must be positive")
	}
	return &ChannelBreakout{
		sc:           sc,
		instrument:   instrument,
		windowSize:   size,
		volume:       volume,
		window:       NewWindow(size),
		pendingStops: make(map[string]struct{}),
	}, nil
}

func (s *ChannelBreakout) OnInit() error {
	s.sc.Log("ChannelBreakout initialised", map[string]interface{}{"windowSize": s.windowSize})
	return nil
}

func (s *ChannelBreakout) OnStart() error {
	s.sc.Log("ChannelBreakout started")
	return nil
}

func (s *ChannelBreakout) OnStop() error {
	s.sc.Log("ChannelBreakout stopped", map[string]interface{}{"pos": s.pos})
	return nil
}

func (s *ChannelBreakout) OnTick(tick *domain.Tick) error {
	s.window.Push(tick.LastPrice)
	if !s.window.Full() {
		return nil
	}
	s.upperBand = s.window.Highest(s.windowSize)
	s.lowerBand = s.window.Lowest(s.windowSize)

	// Refresh the resting stops against the new bands.
	for id := range s.pendingStops {
		if err := s.sc.CancelStopOrder(id); err != nil {
			s.sc.Log("Stop order cancel failed", map[string]interface{}{"stopOrderID": id, "error": err.Error()})
		}
	}

	switch {
	case s.pos == 0:
		if _, err := s.sc.SendStopOrder(domain.DirectionLong, domain.OffsetOpen, s.upperBand, s.volume); err != nil {
			return err
		}
		if _, err := s.sc.SendStopOrder(domain.DirectionShort, domain.OffsetOpen, s.lowerBand, s.volume); err != nil {
			return err
		}
	case s.pos > 0:
		if _, err := s.sc.SendStopOrder(domain.DirectionShort, domain.OffsetClose, s.lowerBand, s.pos); err != nil {
			return err
		}
	default:
		if _, err := s.sc.SendStopOrder(domain.DirectionLong, domain.OffsetClose, s.upperBand, -s.pos); err != nil {
			return err
		}
	}
	return nil
}

func (s *ChannelBreakout) OnOrder(order *domain.Order) error { return nil }

func (s *ChannelBreakout) OnTrade(trade *domain.Trade) error {
	if trade.Direction == domain.DirectionLong {
		s.pos += trade.Volume
	} else {
		s.pos -= trade.Volume
	}
	s.sc.Log("ChannelBreakout filled", map[string]interface{}{"price": trade.Price, "volume": trade.Volume, "pos": s.pos})
	return nil
}

func (s *ChannelBreakout) OnStopOrder(so *domain.StopOrder) error {
	if so.Status == domain.StopOrderWaiting {
		s.pendingStops[so.ID] = struct{}{}
	} else {
		delete(s.pendingStops, so.ID)
	}
	if so.Status == domain.StopOrderTriggered {
		s.sc.Log("ChannelBreakout stop triggered", map[string]interface{}{"stopOrderID": so.ID, "price": so.Price})
	}
	return nil
}

func (s *ChannelBreakout) Schema() ports.Schema {
	return ports.Schema{
		Params: []ports.Field{
			{Name: "windowSize", Get: func() interface{} { return s.windowSize }},
			{Name: "volume", Get: func() interface{} { return s.volume }},
		},
		Vars: []ports.Field{
			{Name: "upperBand", Get: func() interface{} { return s.upperBand }},
			{Name: "lowerBand", Get: func() interface{} { return s.lowerBand }},
			{Name: "pos", Get: func() interface{} { return s.pos }},
		},
		Sync: []ports.Field{
			{
				Name: "pos",
				Get:  func() interface{} { return s.pos },
				Set: func(v interface{}) error {
					f, err := floatParam(map[string]interface{}{"pos": v}, "pos", 0)
					if err != nil {
						return err
					}
					s.pos = f
					return nil
				},
			},
		},
	}
}
