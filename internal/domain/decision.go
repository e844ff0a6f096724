package domain

import "time"

// Decision is the structured output of the reasoning backend. It is treated
// as opaque input by the execution simulator.
type Decision struct {
	AgentID       int64
	Symbol        string
	Operation     Operation
	TargetPortion float64 // Portion of cash (buy) or position (sell) to commit, in (0, 1]
	Reason        string
}

// DecisionRecord is the durable, append-only log entry written for every
// decision the backend returns, whether or not it produced an order.
type DecisionRecord struct {
	ID            int64
	AgentID       int64
	Symbol        string
	Operation     string
	TargetPortion float64
	Reason        string
	Executed      bool   // True when the decision resulted in a fill
	OrderID       *int64 // Linked order, nil for hold/invalid decisions
	CreatedAt     time.Time
}
