package ports

import "tradeEngine/internal/domain"

// Field is a typed accessor for one strategy attribute. Schemas are built
// once when the strategy is constructed and consumed by both the persistence
// path and the introspection calls, replacing any reflective attribute
// lookup.
type Field struct {
	Name string
	Get  func() interface{}
	Set  func(v interface{}) error // nil for read-only fields
}

// Schema declares which strategy attributes are parameters (static
// configuration), variables (runtime state worth showing), and sync fields
// (persisted across restarts, keyed by strategy name and instrument).
type Schema struct {
	Params []Field
	Vars   []Field
	Sync   []Field
}

// Strategy is a single trading-strategy instance driven by the runtime.
// Callbacks run on the event dispatch goroutine; a returned error (or a
// panic) stops this instance without affecting others.
type Strategy interface {
	OnInit() error
	OnStart() error
	OnStop() error
	OnTick(tick *domain.Tick) error
	OnOrder(order *domain.Order) error
	OnTrade(trade *domain.Trade) error
	OnStopOrder(so *domain.StopOrder) error

	Schema() Schema
}

// StrategyContext is the engine surface handed to each strategy instance.
// All calls are already bound to the owning strategy, so implementations can
// attribute orders without the strategy passing its own name around.
type StrategyContext interface {
	// SendOrder places a limit order through risk checks and ledger
	// conversion. One logical request may produce several legs; the returned
	// ids cover every leg actually sent. An empty slice means the request was
	// refused and nothing was submitted.
	SendOrder(direction domain.Direction, offset domain.Offset, price, volume float64) ([]string, error)

	// SendStopOrder registers a local stop order and returns its id.
	SendStopOrder(direction domain.Direction, offset domain.Offset, triggerPrice, volume float64) (string, error)

	// CancelOrder cancels one working order by gateway-qualified id.
	CancelOrder(orderID string) error

	// CancelStopOrder cancels one pending local stop order.
	CancelStopOrder(stopOrderID string) error

	// CancelAll cancels every outstanding order and pending stop order owned
	// by the strategy.
	CancelAll()

	// LastTick returns the most recent tick for the strategy's instrument,
	// or nil if none has arrived yet.
	LastTick() *domain.Tick

	// Log writes a line attributed to the strategy.
	Log(msg string, fields ...map[string]interface{})
}

// StrategyFactory builds a strategy instance from its configured parameters.
type StrategyFactory func(sc StrategyContext, instrument string, params map[string]interface{}) (Strategy, error)
