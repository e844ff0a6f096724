// Package decision provides DecisionInvoker implementations. The real
// reasoning backend lives behind an HTTP boundary in the full deployment;
// RandomInvoker stands in for it in dry runs and demos.
package decision

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"tradearena/internal/domain"
	"tradearena/internal/ports"
)

// RandomInvoker returns weighted random decisions with a small synthetic
// thinking delay. It never fails, so trigger and execution behavior can be
// exercised without a live backend.
type RandomInvoker struct {
	logger ports.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomInvoker creates an invoker seeded from the current time.
func NewRandomInvoker(logger ports.Logger) (*RandomInvoker, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for random invoker")
	}
	return &RandomInvoker{
		logger: logger,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// Invoke returns a random decision. Holds dominate so the portfolio churns
// at a believable rate.
func (r *RandomInvoker) Invoke(ctx context.Context, dc ports.DecisionContext) (*domain.Decision, error) {
	delay := time.Duration(100+r.intn(400)) * time.Millisecond
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("decision interrupted: %w: %w", ports.ErrDecisionTimeout, ctx.Err())
	case <-timer.C:
	}

	decision := &domain.Decision{
		AgentID: dc.AgentID,
		Symbol:  dc.Symbol,
	}

	roll := r.float64()
	switch {
	case roll < 0.40:
		decision.Operation = domain.OpHold
		decision.Reason = "no clear edge at current price"
	case roll < 0.65:
		decision.Operation = domain.OpBuy
		decision.TargetPortion = 0.05 + r.float64()*0.20
		decision.Reason = "random dry-run buy"
	case roll < 0.90:
		decision.Operation = domain.OpSell
		decision.TargetPortion = 0.10 + r.float64()*0.40
		decision.Reason = "random dry-run sell"
	default:
		decision.Operation = domain.OpClose
		decision.TargetPortion = 1
		decision.Reason = "random dry-run close"
	}

	return decision, nil
}

func (r *RandomInvoker) float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Float64()
}

func (r *RandomInvoker) intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Intn(n)
}
