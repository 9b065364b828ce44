package domain

// Event is the unit carried by the event bus. Type strings for gateway data
// end with a dot so that an instrument or order id can be appended, allowing
// both broadcast ("tick.") and filtered ("tick.INST1") subscription under a
// single registry.
type Event struct {
	Type    string
	Payload interface{}
}

// Predefined event types.
const (
	EventTimer = "timer" // periodic event from the bus timer source
	EventLog   = "log"

	EventTick     = "tick."
	EventTrade    = "trade."
	EventOrder    = "order."
	EventPosition = "position."
	EventContract = "contract."
	EventError    = "error."
)

// NewEvent builds an event for the given type.
func NewEvent(eventType string, payload interface{}) Event {
	return Event{Type: eventType, Payload: payload}
}

// LogEntry is the payload of a log event. Log lines travel the bus so that
// monitoring consumers see them in the same stream as market data.
type LogEntry struct {
	Level   string
	Message string
	Fields  map[string]interface{}
}
