package ports

import (
	"context"

	"tradearena/internal/domain"
)

// DecisionContext is the snapshot handed to the decision backend: the price
// that triggered the evaluation, recent samples, and the agent's portfolio.
type DecisionContext struct {
	AgentID   int64
	Symbol    string
	Price     float64
	Samples   []domain.PriceSample
	Portfolio PortfolioSnapshot
}

// DecisionInvoker is the external reasoning backend. Invoke may block for
// seconds and may fail or time out; the caller bounds it with a context
// deadline and treats a timeout identically to a failure.
type DecisionInvoker interface {
	Invoke(ctx context.Context, dc DecisionContext) (*domain.Decision, error)
}
