package ports

import (
	"context"

	"github.com/shopspring/decimal"

	"tradearena/internal/domain"
)

// PositionSnapshot exposes a read-only view of a single symbol position.
type PositionSnapshot struct {
	Quantity decimal.Decimal
	AvgCost  decimal.Decimal
}

// PortfolioSnapshot is a point-in-time copy of one agent's cash and positions.
type PortfolioSnapshot struct {
	Cash      decimal.Decimal
	Positions map[string]PositionSnapshot
}

// Position returns the snapshot for one symbol, zero-valued if absent.
func (s PortfolioSnapshot) Position(symbol string) PositionSnapshot {
	return s.Positions[symbol]
}

// PortfolioLedger applies fill outcomes to per-agent cash and position state.
// Rejected orders must never reach ApplyFill; the ledger is untouched on
// rejection by construction.
type PortfolioLedger interface {
	// ApplyFill applies a filled or partially filled order to the agent's
	// account. The order's terminal fields (ExecutionPrice, FilledQuantity)
	// must be set.
	ApplyFill(ctx context.Context, order *domain.Order) error
	// Snapshot returns a copy of the agent's current portfolio state.
	Snapshot(ctx context.Context, agentID int64) (PortfolioSnapshot, error)
}
