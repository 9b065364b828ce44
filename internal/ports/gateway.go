package ports

import (
	"context"

	"tradeEngine/internal/domain"
)

// EventPublisher is the producer side of the event bus. Gateways publish each
// domain occurrence twice: once on the generic type and once on the type
// suffixed with the instrument or order id, so consumers can subscribe either
// broadly or filtered without a second index.
type EventPublisher interface {
	Publish(event domain.Event)
}

// Gateway abstracts a venue connection. Implementations convert native
// protocol callbacks into domain records and push them through the event bus;
// order placement is fire-and-forget from the caller's perspective, with the
// outcome surfacing later as Order events.
type Gateway interface {
	// Name returns the unique gateway name used to qualify ids.
	Name() string

	// Connect establishes the venue session.
	Connect(ctx context.Context) error

	// Subscribe requests market data for one instrument.
	Subscribe(req domain.SubscribeRequest) error

	// SendOrder submits an order and returns the gateway-qualified order id,
	// or an empty id if the venue refused the submission outright.
	SendOrder(req domain.OrderRequest) (string, error)

	// CancelOrder requests cancellation of a working order.
	CancelOrder(req domain.CancelRequest) error

	// Close shuts the venue session down.
	Close() error
}
