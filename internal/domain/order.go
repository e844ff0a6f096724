package domain

import "time"

// Order is a simulated order created when a decision is accepted for
// execution. Rejected orders are persisted for audit but never touch the
// portfolio ledger.
type Order struct {
	ID              int64       // Unique identifier (from DB)
	OrderNo         string      // External order number (UUID)
	AgentID         int64       // Owning agent
	Symbol          string      // Trading symbol (e.g., "BTCUSDT")
	Side            OrderSide   // BUY or SELL
	Type            OrderType   // MARKET or LIMIT
	Quantity        float64     // Requested quantity
	LimitPrice      *float64    // Limit price, nil for market orders
	Status          OrderStatus // PENDING until the simulation resolves it
	ExecutionPrice  float64     // Simulated fill price (0 if rejected)
	FilledQuantity  float64     // Simulated filled quantity (0 if rejected)
	Slippage        float64     // Realized adverse slippage as a fraction
	RejectionReason string      // Populated only for REJECTED orders
	CreatedAt       time.Time
	ExecutedAt      time.Time // When the simulation resolved the order
}

// Notional returns the dollar size of the order at the given price.
func (o *Order) Notional(price float64) float64 {
	return o.Quantity * price
}

// SimulationResult is the pure output of the execution simulator. It maps
// 1:1 onto the terminal fields of an Order.
type SimulationResult struct {
	Status          OrderStatus
	ExecutionPrice  float64
	FilledQuantity  float64
	Slippage        float64
	RejectionReason string
}
