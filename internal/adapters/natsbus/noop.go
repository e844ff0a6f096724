package natsbus

import (
	"context"

	"tradearena/internal/domain"
)

// Noop is an EventBroadcaster that discards everything. Used when no NATS
// URL is configured.
type Noop struct{}

func (Noop) PublishTick(ctx context.Context, tick domain.PriceTick) error          { return nil }
func (Noop) PublishOrder(ctx context.Context, order *domain.Order) error           { return nil }
func (Noop) PublishDecision(ctx context.Context, rec *domain.DecisionRecord) error { return nil }
