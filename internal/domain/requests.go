package domain

// OrderRequest is what callers hand to a gateway to place an order.
type OrderRequest struct {
	Instrument string
	Symbol     string
	Exchange   string

	Direction Direction
	Offset    Offset
	Price     float64
	Volume    float64
}

// CancelRequest asks a gateway to cancel a working order.
type CancelRequest struct {
	Instrument string
	Symbol     string
	Exchange   string
	OrderID    string
}

// SubscribeRequest asks a gateway for market data on one instrument.
type SubscribeRequest struct {
	Instrument string
	Symbol     string
	Exchange   string
}
