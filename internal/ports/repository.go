package ports

import (
	"context"
	"time"

	"tradearena/internal/domain"
)

// OrderRepository defines the interface for storing and retrieving simulated orders.
type OrderRepository interface {
	// CreateOrder saves a new pending order and returns its assigned ID.
	CreateOrder(ctx context.Context, order *domain.Order) (int64, error)
	// UpdateOrderStatus writes the terminal status and simulation fields of
	// an order. The status transition PENDING -> terminal happens exactly once.
	UpdateOrderStatus(ctx context.Context, order *domain.Order) error
	// FindOrdersByAgent retrieves the most recent orders for an agent, up to a limit.
	FindOrdersByAgent(ctx context.Context, agentID int64, limit int) ([]*domain.Order, error)
	// CountTodayByAgent counts the orders created today for an agent.
	CountTodayByAgent(ctx context.Context, agentID int64) (int, error)
}

// DecisionLogRepository is the append-only log of decisions returned by the
// reasoning backend.
type DecisionLogRepository interface {
	// AppendDecision saves a new decision record and returns its assigned ID.
	AppendDecision(ctx context.Context, rec *domain.DecisionRecord) (int64, error)
	// FindDecisionsByAgent retrieves the most recent decisions for an agent.
	FindDecisionsByAgent(ctx context.Context, agentID int64, limit int) ([]*domain.DecisionRecord, error)
}

// StrategyRepository stores per-agent trigger configurations. Configs are
// edited out-of-band by the administrative surface; the coordinator reloads
// them periodically and owns only the last-trigger timestamp.
type StrategyRepository interface {
	// ListStrategies retrieves all agent strategy configs.
	ListStrategies(ctx context.Context) ([]*domain.AgentStrategyConfig, error)
	// UpsertStrategy creates or replaces the config for an agent.
	UpsertStrategy(ctx context.Context, cfg *domain.AgentStrategyConfig) error
	// SetLastTrigger records when the agent last fired. Best-effort from the
	// coordinator's perspective; losing it only affects trigger timing.
	SetLastTrigger(ctx context.Context, agentID int64, when time.Time) error
}
