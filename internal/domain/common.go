package domain

// Direction represents the side of an order or trade.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// Opposite returns the other side.
func (d Direction) Opposite() Direction {
	if d == DirectionLong {
		return DirectionShort
	}
	return DirectionLong
}

// Offset indicates whether an order opens new exposure or closes existing exposure.
type Offset string

const (
	OffsetOpen           Offset = "open"
	OffsetClose          Offset = "close"
	OffsetCloseToday     Offset = "close-today"
	OffsetCloseYesterday Offset = "close-yesterday"
)

// IsClose reports whether the offset closes existing exposure.
func (o Offset) IsClose() bool {
	return o == OffsetClose || o == OffsetCloseToday || o == OffsetCloseYesterday
}

// OrderStatus represents the lifecycle state of an order at the venue.
type OrderStatus string

const (
	StatusUnknown    OrderStatus = "unknown"
	StatusNotTraded  OrderStatus = "not-traded"
	StatusPartTraded OrderStatus = "part-traded"
	StatusAllTraded  OrderStatus = "all-traded"
	StatusCancelled  OrderStatus = "cancelled"
	StatusRejected   OrderStatus = "rejected"
)

// IsFinished reports whether the order can no longer change (no longer working).
func (s OrderStatus) IsFinished() bool {
	switch s {
	case StatusAllTraded, StatusCancelled, StatusRejected:
		return true
	}
	return false
}

// Origin identifies where a record came from. Every record pushed by a
// gateway embeds it so downstream consumers can attribute data to its source
// without any shared base type.
type Origin struct {
	Gateway string      // name of the gateway that produced the record
	Raw     interface{} // raw venue payload, kept for diagnostics only
}
