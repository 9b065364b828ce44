package strategies

import (
	"fmt"

	"tradeEngine/internal/domain"
	"tradeEngine/internal/ports"
)

// DoubleMA trades the crossover of two simple moving averages computed over
// tick last prices. A fast average crossing above the slow one flips the
// position long; crossing below flips it short.
type DoubleMA struct {
	sc         ports.StrategyContext
	instrument string

	fastPeriod int
	slowPeriod int
	volume     float64

	window    *Window
	fastValue float64
	slowValue float64
	lastFast  float64
	lastSlow  float64

	pos float64
}

// NewDoubleMA builds a DoubleMA instance from configuration parameters:
// fastPeriod (default 10), slowPeriod (default 60) and volume (default 1).
func NewDoubleMA(sc ports.StrategyContext, instrument string, params map[string]interface{}) (ports.Strategy, error) {
	fast, err := intParam(params, "fastPeriod", 10)
	if err != nil {
		return nil, err
	}
	slow, err := intParam(params, "slowPeriod", 60)
	if err != nil {
		return nil, err
	}
	volume, err := floatParam(params, "volume", 1)
	if err != nil {
		return nil, err
	}
	if fast <= 0 || slow <= 0 {
		return nil, fmt.Errorf("moving average periods must be positive")
	}
	if fast >= slow {
		return nil, fmt.Errorf("fast period must be less than slow period")
	}
	if volume <= 0 {
		return nil, fmt.Errorf("volume must be positive")
	}
	return &DoubleMA{
		sc:         sc,
		instrument: instrument,
		fastPeriod: fast,
		slowPeriod: slow,
		volume:     volume,
		window:     NewWindow(slow),
	}, nil
}

func (s *DoubleMA) OnInit() error {
	s.sc.Log("DoubleMA initialised", map[string]interface{}{"fastPeriod": s.fastPeriod, "slowPeriod": s.slowPeriod})
	return nil
}

func (s *DoubleMA) OnStart() error {
	s.sc.Log("DoubleMA started")
	return nil
}

func (s *DoubleMA) OnStop() error {
	s.sc.Log("DoubleMA stopped", map[string]interface{}{"pos": s.pos})
	return nil
}

func (s *DoubleMA) OnTick(tick *domain.Tick) error {
	s.window.Push(tick.LastPrice)
	if !s.window.Full() {
		return nil
	}

	s.lastFast, s.lastSlow = s.fastValue, s.slowValue
	s.fastValue = s.window.SMA(s.fastPeriod)
	s.slowValue = s.window.SMA(s.slowPeriod)
	if s.lastFast == 0 || s.lastSlow == 0 {
		return nil
	}

	crossOver := s.fastValue > s.slowValue && s.lastFast <= s.lastSlow
	crossBelow := s.fastValue < s.slowValue && s.lastFast >= s.lastSlow

	switch {
	case crossOver:
		if s.pos < 0 {
			if _, err := s.sc.SendOrder(domain.DirectionLong, domain.OffsetClose, tick.LastPrice, -s.pos); err != nil {
				return err
			}
		}
		if s.pos <= 0 {
			if _, err := s.sc.SendOrder(domain.DirectionLong, domain.OffsetOpen, tick.LastPrice, s.volume); err != nil {
				return err
			}
		}
	case crossBelow:
		if s.pos > 0 {
			if _, err := s.sc.SendOrder(domain.DirectionShort, domain.OffsetClose, tick.LastPrice, s.pos); err != nil {
				return err
			}
		}
		if s.pos >= 0 {
			if _, err := s.sc.SendOrder(domain.DirectionShort, domain.OffsetOpen, tick.LastPrice, s.volume); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *DoubleMA) OnOrder(order *domain.Order) error { return nil }

func (s *DoubleMA) OnTrade(trade *domain.Trade) error {
	if trade.Direction == domain.DirectionLong {
		s.pos += trade.Volume
	} else {
		s.pos -= trade.Volume
	}
	s.sc.Log("DoubleMA filled", map[string]interface{}{"price": trade.Price, "volume": trade.Volume, "pos": s.pos})
	return nil
}

func (s *DoubleMA) OnStopOrder(so *domain.StopOrder) error { return nil }

func (s *DoubleMA) Schema() ports.Schema {
	return ports.Schema{
		Params: []ports.Field{
			{Name: "fastPeriod", Get: func() interface{} { return s.fastPeriod }},
			{Name: "slowPeriod", Get: func() interface{} { return s.slowPeriod }},
			{Name: "volume", Get: func() interface{} { return s.volume }},
		},
		Vars: []ports.Field{
			{Name: "fastValue", Get: func() interface{} { return s.fastValue }},
			{Name: "slowValue", Get: func() interface{} { return s.slowValue }},
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
