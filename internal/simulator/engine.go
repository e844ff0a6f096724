// Package simulator turns an accepted decision into a realistic,
// non-deterministic fill outcome: full fill, partial fill, or rejection,
// with synthetic slippage and latency. It is used only in paper-trading
// mode; no real exchange is ever touched.
package simulator

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"tradearena/internal/domain"
	"tradearena/internal/metrics"
	"tradearena/internal/ports"
)

// Rand is the source of randomness for the engine. Injected so tests can
// force specific branches deterministically; math/rand.Rand satisfies it.
type Rand interface {
	Float64() float64
	Intn(n int) int
}

// Config holds the simulation constants. Defaults model a liquid spot
// market; they are global, not per agent.
type Config struct {
	MaxOrderValueUSD float64 // Orders above this notional are rejected outright
	MinOrderValueUSD float64 // Orders below this notional are rejected outright

	BaseRejectionProbability float64 // Chance of a synthetic exchange error

	MinLatency time.Duration // Synthetic exchange round-trip, lower bound
	MaxLatency time.Duration // Synthetic exchange round-trip, upper bound

	MinSlippageBps           float64 // Slippage floor (basis points)
	MaxSlippageBps           float64 // Slippage ceiling near the liquidity cap
	SlippageSizeThresholdUSD float64 // Notional above which slippage scales with size

	PartialFillThresholdUSD float64 // Notional above which partial fills may occur
	PartialFillProbability  float64
	MinPartialFillPct       float64
	MaxPartialFillPct       float64
}

// DefaultConfig returns the standard simulation constants.
func DefaultConfig() Config {
	return Config{
		MaxOrderValueUSD:         100_000,
		MinOrderValueUSD:         1,
		BaseRejectionProbability: 0.02,
		MinLatency:               50 * time.Millisecond,
		MaxLatency:               200 * time.Millisecond,
		MinSlippageBps:           1,
		MaxSlippageBps:           10,
		SlippageSizeThresholdUSD: 10_000,
		PartialFillThresholdUSD:  10_000,
		PartialFillProbability:   0.1,
		MinPartialFillPct:        0.5,
		MaxPartialFillPct:        0.9,
	}
}

// rejectionReasons are the synthetic exchange errors drawn on a random
// rejection, chosen uniformly.
var rejectionReasons = []string{
	"simulated exchange error (503 Service Unavailable)",
	"simulated rate limit exceeded",
	"simulated symbol temporarily suspended",
	"simulated insufficient exchange liquidity",
}

// SlippageEstimate is the expected slippage range for a given order size,
// for display before order placement.
type SlippageEstimate struct {
	MinPct float64
	MaxPct float64
	AvgPct float64
}

// Engine simulates order execution against the current price. Simulate is
// safe for concurrent use; the synthetic latency suspends only the calling
// goroutine.
type Engine struct {
	cfg    Config
	logger ports.Logger

	mu  sync.Mutex // rand sources are not safe for concurrent use
	rng Rand
}

// New creates an engine with the given constants and random source.
func New(cfg Config, rng Rand, logger ports.Logger) (*Engine, error) {
	if rng == nil || logger == nil {
		return nil, fmt.Errorf("missing required dependencies for execution simulator")
	}
	if cfg.MaxOrderValueUSD <= 0 {
		return nil, fmt.Errorf("max order value must be positive")
	}
	if cfg.MinSlippageBps < 0 || cfg.MaxSlippageBps < cfg.MinSlippageBps {
		return nil, fmt.Errorf("invalid slippage bounds: min=%v max=%v", cfg.MinSlippageBps, cfg.MaxSlippageBps)
	}
	if cfg.MinLatency < 0 || cfg.MaxLatency < cfg.MinLatency {
		return nil, fmt.Errorf("invalid latency bounds: min=%v max=%v", cfg.MinLatency, cfg.MaxLatency)
	}
	return &Engine{cfg: cfg, rng: rng, logger: logger}, nil
}

// MaxSlippagePct returns the worst-case slippage fraction the engine can
// produce. Callers use it to leave cash headroom when sizing buys.
func (e *Engine) MaxSlippagePct() float64 {
	return e.cfg.MaxSlippageBps / 10_000
}

// Simulate runs the execution pipeline for the order at the current price.
// The returned error is non-nil only when the context is canceled during
// the latency window; every business outcome, including rejection, is a
// normal result.
func (e *Engine) Simulate(ctx context.Context, order *domain.Order, currentPrice float64) (domain.SimulationResult, error) {
	notional := order.Notional(currentPrice)

	// Liquidity check runs first and is deterministic.
	if notional > e.cfg.MaxOrderValueUSD {
		e.logger.Info(ctx, "Order rejected: exceeds liquidity cap", map[string]interface{}{
			"orderNo":  order.OrderNo,
			"notional": notional,
			"cap":      e.cfg.MaxOrderValueUSD,
		})
		return domain.SimulationResult{
			Status:          domain.StatusRejected,
			RejectionReason: fmt.Sprintf("order value $%.2f exceeds maximum $%.2f", notional, e.cfg.MaxOrderValueUSD),
		}, nil
	}
	if e.cfg.MinOrderValueUSD > 0 && notional < e.cfg.MinOrderValueUSD {
		return domain.SimulationResult{
			Status:          domain.StatusRejected,
			RejectionReason: fmt.Sprintf("order value $%.2f below minimum $%.2f", notional, e.cfg.MinOrderValueUSD),
		}, nil
	}

	// Random rejection models transient exchange failures.
	if e.float64() < e.cfg.BaseRejectionProbability {
		reason := rejectionReasons[e.intn(len(rejectionReasons))]
		e.logger.Info(ctx, "Order randomly rejected", map[string]interface{}{
			"orderNo": order.OrderNo,
			"reason":  reason,
		})
		return domain.SimulationResult{Status: domain.StatusRejected, RejectionReason: reason}, nil
	}

	if err := e.simulateLatency(ctx); err != nil {
		return domain.SimulationResult{}, err
	}

	slippage := e.drawSlippage(notional)
	var executionPrice float64
	if order.Side == domain.Buy {
		executionPrice = currentPrice * (1 + slippage)
	} else {
		executionPrice = currentPrice / (1 + slippage)
	}

	filledQuantity := order.Quantity
	status := domain.StatusFilled
	if notional >= e.cfg.PartialFillThresholdUSD && e.float64() < e.cfg.PartialFillProbability {
		fillPct := e.uniform(e.cfg.MinPartialFillPct, e.cfg.MaxPartialFillPct)
		filledQuantity = order.Quantity * fillPct
		status = domain.StatusPartiallyFilled
	}

	// Report slippage as the realized adverse price difference.
	realizedSlippage := math.Abs(executionPrice-currentPrice) / currentPrice

	e.logger.Debug(ctx, "Paper trade executed", map[string]interface{}{
		"orderNo":        order.OrderNo,
		"side":           string(order.Side),
		"status":         string(status),
		"executionPrice": executionPrice,
		"filledQuantity": filledQuantity,
		"slippage":       realizedSlippage,
	})

	return domain.SimulationResult{
		Status:         status,
		ExecutionPrice: executionPrice,
		FilledQuantity: filledQuantity,
		Slippage:       realizedSlippage,
	}, nil
}

// drawSlippage returns the slippage fraction for the notional. Small orders
// draw from a narrow band; larger orders scale the ceiling linearly toward
// MaxSlippageBps as the notional approaches the liquidity cap.
func (e *Engine) drawSlippage(notional float64) float64 {
	var bps float64
	if notional < e.cfg.SlippageSizeThresholdUSD {
		bps = e.uniform(e.cfg.MinSlippageBps, e.cfg.MinSlippageBps*2)
	} else {
		sizeFactor := math.Min(notional/e.cfg.MaxOrderValueUSD, 1.0)
		ceiling := e.cfg.MinSlippageBps + (e.cfg.MaxSlippageBps-e.cfg.MinSlippageBps)*sizeFactor
		bps = e.uniform(e.cfg.MinSlippageBps, ceiling)
	}
	return bps / 10_000
}

// EstimateSlippage returns the slippage range for an order value without
// drawing from the random source.
func (e *Engine) EstimateSlippage(orderValue float64) SlippageEstimate {
	minBps := e.cfg.MinSlippageBps
	maxBps := e.cfg.MinSlippageBps * 2
	if orderValue >= e.cfg.SlippageSizeThresholdUSD {
		sizeFactor := math.Min(orderValue/e.cfg.MaxOrderValueUSD, 1.0)
		maxBps = e.cfg.MinSlippageBps + (e.cfg.MaxSlippageBps-e.cfg.MinSlippageBps)*sizeFactor
	}
	return SlippageEstimate{
		MinPct: minBps / 10_000,
		MaxPct: maxBps / 10_000,
		AvgPct: (minBps + maxBps) / 2 / 10_000,
	}
}

// simulateLatency suspends the calling goroutine for the synthetic exchange
// round-trip. Other agents' evaluations are unaffected.
func (e *Engine) simulateLatency(ctx context.Context) error {
	span := e.cfg.MaxLatency - e.cfg.MinLatency
	delay := e.cfg.MinLatency
	if span > 0 {
		delay += time.Duration(e.float64() * float64(span))
	}
	if delay <= 0 {
		return nil
	}
	metrics.SimulatedLatency.Observe(delay.Seconds())

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("simulation aborted during latency window: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

func (e *Engine) uniform(low, high float64) float64 {
	if high <= low {
		return low
	}
	return low + e.float64()*(high-low)
}

func (e *Engine) float64() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rng.Float64()
}

func (e *Engine) intn(n int) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rng.Intn(n)
}
