package domain

// Order is the state of a single order as reported by the gateway. A broker
// usually reports the same order several times as it moves through its
// lifecycle; the latest report wins.
type Order struct {
	Origin

	Instrument string
	Symbol     string
	Exchange   string

	ID       string // gateway-qualified broker order id, unique per engine
	ClientID string // id assigned locally when the order was sent

	Direction    Direction
	Offset       Offset
	Price        float64
	TotalVolume  float64
	TradedVolume float64
	Status       OrderStatus

	OrderTime  string
	CancelTime string
}

// Trade is a single fill. Trades are append-only facts and are never mutated
// after creation.
type Trade struct {
	Origin

	Instrument string
	Symbol     string
	Exchange   string

	ID      string // gateway-qualified trade id, globally unique per gateway
	OrderID string // gateway-qualified id of the order this fill belongs to

	Direction Direction
	Offset    Offset
	Price     float64
	Volume    float64
	TradeTime string
}

// Position is an authoritative position snapshot pushed by the gateway for
// one side of one instrument. The local ledger is periodically overwritten
// with these.
type Position struct {
	Origin

	Instrument string
	Symbol     string
	Exchange   string

	Direction       Direction
	Volume          float64 // total position on this side
	YesterdayVolume float64 // carried over from prior sessions
	Frozen          float64
	Price           float64 // average open price
	PnL             float64
}

// StopOrderStatus is the lifecycle state of a locally simulated stop order.
type StopOrderStatus string

const (
	StopOrderWaiting   StopOrderStatus = "waiting"
	StopOrderCancelled StopOrderStatus = "cancelled"
	StopOrderTriggered StopOrderStatus = "triggered"
)

// StopOrder is a conditional order simulated client-side: it watches ticks
// and submits a real order once its trigger condition is met.
type StopOrder struct {
	ID         string
	Instrument string
	Direction  Direction
	Offset     Offset
	Price      float64 // trigger price
	Volume     float64
	Strategy   string // name of the owning strategy
	Status     StopOrderStatus
}
