package domain

import (
	"fmt"
	"math"
	"time"
)

// DepthLevels is the number of price ladder levels carried by a tick.
const DepthLevels = 5

// Tick is a market data snapshot for one instrument. Ticks are treated as
// values once published: a consumer that fills derived fields (such as the
// parsed timestamp) must work on its own copy.
type Tick struct {
	Origin

	Instrument string // unique instrument id, usually "symbol.exchange"
	Symbol     string
	Exchange   string

	LastPrice    float64
	LastVolume   float64
	Volume       float64 // cumulative session volume
	OpenInterest float64

	OpenPrice  float64
	HighPrice  float64
	LowPrice   float64
	UpperLimit float64 // session price ceiling, 0 if the venue has none
	LowerLimit float64 // session price floor, 0 if the venue has none

	BidPrice  [DepthLevels]float64
	BidVolume [DepthLevels]float64
	AskPrice  [DepthLevels]float64
	AskVolume [DepthLevels]float64

	Date      string // raw gateway date, e.g. "20260829"
	Time      string // raw gateway time, e.g. "11:20:56.500"
	Timestamp time.Time
}

// ParseTimestamp fills Timestamp from the raw Date/Time fields when the
// gateway did not provide one.
func (t *Tick) ParseTimestamp() error {
	if !t.Timestamp.IsZero() {
		return nil
	}
	ts, err := time.Parse("20060102 15:04:05.999999", t.Date+" "+t.Time)
	if err != nil {
		return fmt.Errorf("parse tick timestamp %q %q: %w", t.Date, t.Time, err)
	}
	t.Timestamp = ts
	return nil
}

// Contract holds static instrument metadata pushed by a gateway.
type Contract struct {
	Origin

	Instrument string
	Symbol     string
	Exchange   string
	Name       string
	Size       float64 // contract multiplier
	PriceTick  float64 // minimum price increment
}

// RoundToPriceTick snaps a price onto the contract's price grid.
func (c *Contract) RoundToPriceTick(price float64) float64 {
	if c == nil || c.PriceTick <= 0 {
		return price
	}
	return math.Round(price/c.PriceTick) * c.PriceTick
}
