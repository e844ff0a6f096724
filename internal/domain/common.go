package domain

// OrderSide represents the side of an order (BUY or SELL).
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// OrderType represents the execution type of an order.
type OrderType string

const (
	Market OrderType = "MARKET"
	Limit  OrderType = "LIMIT"
)

// OrderStatus represents the lifecycle state of an order.
// PENDING is the only non-terminal state; once a terminal state is set
// the order never transitions again.
type OrderStatus string

const (
	StatusPending         OrderStatus = "PENDING"
	StatusFilled          OrderStatus = "FILLED"
	StatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	StatusRejected        OrderStatus = "REJECTED"
)

// IsTerminal reports whether the status is one of the final states.
func (s OrderStatus) IsTerminal() bool {
	return s == StatusFilled || s == StatusPartiallyFilled || s == StatusRejected
}

// Operation is the action requested by the decision backend.
type Operation string

const (
	OpBuy   Operation = "buy"
	OpSell  Operation = "sell"
	OpHold  Operation = "hold"
	OpClose Operation = "close"
)

// IsValid reports whether the operation is one the executor understands.
func (o Operation) IsValid() bool {
	switch o {
	case OpBuy, OpSell, OpHold, OpClose:
		return true
	}
	return false
}
