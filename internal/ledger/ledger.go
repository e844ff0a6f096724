// Package ledger holds the in-memory paper-trading portfolio state: cash,
// positions with average cost, and realized PnL per agent. All money math
// uses decimals; fills are the only mutation path and rejected orders never
// reach it.
package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"tradearena/internal/domain"
	"tradearena/internal/ports"
)

// Config holds ledger settings.
type Config struct {
	StartingCash   float64 // Initial cash for lazily created accounts
	CommissionRate float64 // Commission per fill as a fraction of notional
}

type position struct {
	quantity decimal.Decimal
	avgCost  decimal.Decimal
}

type account struct {
	cash        decimal.Decimal
	realizedPnL decimal.Decimal
	positions   map[string]position
}

// Ledger implements ports.PortfolioLedger. Accounts are created lazily with
// the configured starting cash on first access.
type Ledger struct {
	cfg        Config
	logger     ports.Logger
	commission decimal.Decimal

	mu       sync.Mutex
	accounts map[int64]*account
}

// New creates a ledger.
func New(cfg Config, logger ports.Logger) (*Ledger, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for portfolio ledger")
	}
	if cfg.StartingCash < 0 {
		return nil, fmt.Errorf("starting cash cannot be negative")
	}
	if cfg.CommissionRate < 0 || cfg.CommissionRate >= 1 {
		return nil, fmt.Errorf("commission rate must be in [0, 1)")
	}
	return &Ledger{
		cfg:        cfg,
		logger:     logger,
		commission: decimal.NewFromFloat(cfg.CommissionRate),
		accounts:   make(map[int64]*account),
	}, nil
}

// ApplyFill applies a filled or partially filled order to the agent's
// account. Orders in any other status are a caller bug.
func (l *Ledger) ApplyFill(ctx context.Context, order *domain.Order) error {
	if order.Status != domain.StatusFilled && order.Status != domain.StatusPartiallyFilled {
		return fmt.Errorf("order %s has status %s, not a fill: %w", order.OrderNo, order.Status, ports.ErrInvalidRequest)
	}
	if order.FilledQuantity <= 0 || order.ExecutionPrice <= 0 {
		return fmt.Errorf("order %s has no executable fill fields: %w", order.OrderNo, ports.ErrInvalidRequest)
	}

	quantity := decimal.NewFromFloat(order.FilledQuantity)
	price := decimal.NewFromFloat(order.ExecutionPrice)
	notional := quantity.Mul(price)
	commission := notional.Mul(l.commission)

	l.mu.Lock()
	defer l.mu.Unlock()
	acct := l.account(order.AgentID)

	switch order.Side {
	case domain.Buy:
		cost := notional.Add(commission)
		if acct.cash.LessThan(cost) {
			return fmt.Errorf("agent %d needs $%s but has $%s: %w",
				order.AgentID, cost.StringFixed(2), acct.cash.StringFixed(2), ports.ErrInsufficientFunds)
		}
		pos := acct.positions[order.Symbol]
		newQty := pos.quantity.Add(quantity)
		// Average cost absorbs the new lot.
		newAvg := price
		if newQty.IsPositive() {
			newAvg = pos.avgCost.Mul(pos.quantity).Add(notional).Div(newQty)
		}
		acct.cash = acct.cash.Sub(cost)
		acct.positions[order.Symbol] = position{quantity: newQty, avgCost: newAvg}

	case domain.Sell:
		pos := acct.positions[order.Symbol]
		if pos.quantity.LessThan(quantity) {
			return fmt.Errorf("agent %d holds %s %s, cannot sell %s: %w",
				order.AgentID, pos.quantity.String(), order.Symbol, quantity.String(), ports.ErrInsufficientPosition)
		}
		proceeds := notional.Sub(commission)
		acct.cash = acct.cash.Add(proceeds)
		acct.realizedPnL = acct.realizedPnL.Add(price.Sub(pos.avgCost).Mul(quantity)).Sub(commission)

		remaining := pos.quantity.Sub(quantity)
		if remaining.IsZero() {
			delete(acct.positions, order.Symbol)
		} else {
			acct.positions[order.Symbol] = position{quantity: remaining, avgCost: pos.avgCost}
		}

	default:
		return fmt.Errorf("order %s has unknown side %q: %w", order.OrderNo, order.Side, ports.ErrInvalidRequest)
	}

	l.logger.Debug(ctx, "Fill applied to ledger", map[string]interface{}{
		"agentID": order.AgentID,
		"orderNo": order.OrderNo,
		"side":    string(order.Side),
		"cash":    acct.cash.StringFixed(2),
	})
	return nil
}

// Snapshot returns a copy of the agent's portfolio state.
func (l *Ledger) Snapshot(ctx context.Context, agentID int64) (ports.PortfolioSnapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	acct := l.account(agentID)
	snap := ports.PortfolioSnapshot{
		Cash:      acct.cash,
		Positions: make(map[string]ports.PositionSnapshot, len(acct.positions)),
	}
	for symbol, pos := range acct.positions {
		snap.Positions[symbol] = ports.PositionSnapshot{Quantity: pos.quantity, AvgCost: pos.avgCost}
	}
	return snap, nil
}

// RealizedPnL returns the agent's realized profit and loss to date.
func (l *Ledger) RealizedPnL(agentID int64) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.account(agentID).realizedPnL
}

// account returns the agent's account, creating it with starting cash on
// first access. Caller must hold l.mu.
func (l *Ledger) account(agentID int64) *account {
	acct, ok := l.accounts[agentID]
	if !ok {
		acct = &account{
			cash:      decimal.NewFromFloat(l.cfg.StartingCash),
			positions: make(map[string]position),
		}
		l.accounts[agentID] = acct
	}
	return acct
}
