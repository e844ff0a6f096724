package ports

import (
	"context"

	"tradearena/internal/domain"
)

// EventBroadcaster publishes state changes outward (dashboards, notifiers).
// Order events are published after the ledger has been updated, or after a
// rejection with no ledger change. Publishing is best-effort: a failed
// publish is logged, never propagated into the evaluation flow.
type EventBroadcaster interface {
	PublishTick(ctx context.Context, tick domain.PriceTick) error
	PublishOrder(ctx context.Context, order *domain.Order) error
	PublishDecision(ctx context.Context, rec *domain.DecisionRecord) error
}
