// Package trigger owns per-agent trigger state and decides, on each tick,
// whether an agent should request a new decision. It guarantees at most one
// active evaluation per agent at any time, and that agents never block each
// other or the shared feed loop.
package trigger

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

const defaultRefreshInterval = 60 * time.Second

// Evaluator runs the evaluation pipeline once an agent fires: decision
// invocation, simulation, ledger update, persistence, broadcast. It may take
// seconds; the coordinator keeps the agent's guard held for its duration.
type Evaluator interface {
	Evaluate(ctx context.Context, agentID int64, tick domain.PriceTick)
}

// Config holds coordinator settings.
type Config struct {
	RefreshInterval time.Duration    // How often strategy configs are reloaded
	Now             func() time.Time // Injectable clock for tests
}

// agentState is the mutable trigger state for one agent. It is touched only
// while the state's own mutex is held; no other agent's work ever reads it.
// The mutex guards the whole agent, so an agent still runs at most one
// evaluation at a time across all symbols; the price reference and tick
// counter are kept per symbol, because a BTC reference price means nothing
// against an ETH tick.
type agentState struct {
	mu            sync.Mutex
	lastTriggerAt time.Time
	symbols       map[string]*symbolState
}

// symbolState is one agent's trigger bookkeeping for a single symbol.
type symbolState struct {
	lastTriggerPrice  float64
	priceSeeded       bool
	ticksSinceTrigger int
}

// forSymbol returns the agent's state for one symbol, creating it on the
// first tick of that symbol. Called with the agent's guard held.
func (s *agentState) forSymbol(symbol string) *symbolState {
	st, ok := s.symbols[symbol]
	if !ok {
		st = &symbolState{}
		s.symbols[symbol] = st
	}
	return st
}

// Coordinator dispatches ticks to per-agent evaluation units. The tick path
// is non-blocking: a tick arriving while an agent is evaluating is silently
// dropped (expected filtering, not an error), and a firing agent's
// evaluation runs in its own goroutine.
type Coordinator struct {
	cfg        Config
	logger     ports.Logger
	strategies ports.StrategyRepository
	evaluator  Evaluator

	mu      sync.RWMutex
	configs map[int64]domain.AgentStrategyConfig
	states  map[int64]*agentState

	wg sync.WaitGroup
}

// New creates a coordinator. Strategy configs are loaded on Run and
// refreshed periodically afterwards.
func New(cfg Config, strategies ports.StrategyRepository, evaluator Evaluator, logger ports.Logger) (*Coordinator, error) {
	if strategies == nil || evaluator == nil || logger == nil {
		return nil, fmt.Errorf("missing required dependencies for trigger coordinator")
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = defaultRefreshInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Coordinator{
		cfg:        cfg,
		logger:     logger,
		strategies: strategies,
		evaluator:  evaluator,
		configs:    make(map[int64]domain.AgentStrategyConfig),
		states:     make(map[int64]*agentState),
	}, nil
}

// Run loads strategy configs and refreshes them until the context is
// canceled, then waits for in-flight evaluations to finish.
func (c *Coordinator) Run(ctx context.Context) error {
	if err := c.reload(ctx); err != nil {
		return fmt.Errorf("initial strategy load failed: %w", err)
	}

	ticker := time.NewTicker(c.cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.wg.Wait()
			c.logger.Info(ctx, "Trigger coordinator stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := c.reload(ctx); err != nil {
				c.logger.Error(ctx, err, "Failed to refresh strategy configs")
			}
		}
	}
}

// reload replaces the config set from the repository. Trigger state for
// known agents is preserved; state for removed agents is dropped.
func (c *Coordinator) reload(ctx context.Context) error {
	list, err := c.strategies.ListStrategies(ctx)
	if err != nil {
		return err
	}

	configs := make(map[int64]domain.AgentStrategyConfig, len(list))
	for _, cfg := range list {
		configs[cfg.AgentID] = *cfg
	}

	c.mu.Lock()
	c.configs = configs
	for id := range c.states {
		if _, ok := configs[id]; !ok {
			delete(c.states, id)
		}
	}
	c.mu.Unlock()

	c.logger.Debug(ctx, "Strategy configs loaded", map[string]interface{}{"count": len(configs)})
	return nil
}

// UpdateConfig replaces one agent's config immediately, without waiting for
// the next refresh cycle. Used by the administrative surface.
func (c *Coordinator) UpdateConfig(cfg domain.AgentStrategyConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	c.configs[cfg.AgentID] = cfg
	c.mu.Unlock()
	return nil
}

// HandleTick evaluates the tick against every enabled agent. The call never
// blocks on any agent's in-flight work.
func (c *Coordinator) HandleTick(ctx context.Context, tick domain.PriceTick) {
	c.mu.RLock()
	agents := make([]domain.AgentStrategyConfig, 0, len(c.configs))
	for _, cfg := range c.configs {
		if cfg.Enabled {
			agents = append(agents, cfg)
		}
	}
	c.mu.RUnlock()

	for _, cfg := range agents {
		c.dispatch(ctx, cfg, tick)
	}
}

// dispatch advances one agent's trigger state for this tick and, when the
// agent fires, starts its evaluation goroutine. The agent's guard is
// acquired with a try-lock: failure means an evaluation is in flight and
// this tick is dropped, not queued.
func (c *Coordinator) dispatch(ctx context.Context, cfg domain.AgentStrategyConfig, tick domain.PriceTick) {
	state := c.state(cfg)

	if !state.mu.TryLock() {
		metrics.EvaluationsDropped.Inc()
		c.logger.Debug(ctx, "Evaluation in progress, tick dropped", map[string]interface{}{
			"agentID": cfg.AgentID,
			"symbol":  tick.Symbol,
		})
		return
	}

	sym := state.forSymbol(tick.Symbol)
	sym.ticksSinceTrigger++
	if !c.shouldFire(&cfg, state, sym, tick) {
		state.mu.Unlock()
		return
	}

	firedAt := c.cfg.Now().UTC()
	state.lastTriggerAt = firedAt
	sym.lastTriggerPrice = tick.Price
	sym.priceSeeded = true
	sym.ticksSinceTrigger = 0

	metrics.EvaluationsStarted.WithLabelValues(string(cfg.TriggerMode)).Inc()
	metrics.ActiveEvaluations.Inc()
	c.logger.Info(ctx, "Agent triggered", map[string]interface{}{
		"agentID": cfg.AgentID,
		"mode":    string(cfg.TriggerMode),
		"symbol":  tick.Symbol,
		"price":   tick.Price,
	})

	// The guard stays held for the whole evaluation, including the external
	// decision call and the simulated execution. Ticks arriving meanwhile
	// fail the try-lock above and are dropped.
	c.wg.Add(1)
	go func() {
		defer state.mu.Unlock()
		defer c.wg.Done()
		defer metrics.ActiveEvaluations.Dec()

		if err := c.strategies.SetLastTrigger(ctx, cfg.AgentID, firedAt); err != nil {
			// Losing the persisted trigger time only affects timing after a
			// restart, never financial state.
			c.logger.Warn(ctx, "Failed to persist last trigger time", map[string]interface{}{
				"agentID": cfg.AgentID,
				"error":   err.Error(),
			})
		}

		c.evaluator.Evaluate(ctx, cfg.AgentID, tick)
	}()
}

// shouldFire applies the trigger-mode semantics. Called with the agent's
// guard held; the symbol's counter for this tick has already been
// incremented. Price references and tick counts are per symbol; only the
// interval clock is agent-wide.
func (c *Coordinator) shouldFire(cfg *domain.AgentStrategyConfig, state *agentState, sym *symbolState, tick domain.PriceTick) bool {
	switch cfg.TriggerMode {
	case domain.TriggerRealtime:
		if !sym.priceSeeded {
			// First observed tick of this symbol establishes its reference.
			sym.lastTriggerPrice = tick.Price
			sym.priceSeeded = true
			return false
		}
		if sym.lastTriggerPrice == 0 {
			sym.lastTriggerPrice = tick.Price
			return false
		}
		change := math.Abs(tick.Price-sym.lastTriggerPrice) / sym.lastTriggerPrice
		return change > cfg.PriceThresholdPct

	case domain.TriggerInterval:
		if state.lastTriggerAt.IsZero() {
			return true
		}
		return c.cfg.Now().Sub(state.lastTriggerAt) >= cfg.Interval()

	case domain.TriggerTickBatch:
		return sym.ticksSinceTrigger >= cfg.TickBatchSize
	}
	return false
}

// state returns the agent's trigger state, creating it lazily on first tick.
// The persisted last-trigger timestamp seeds the fresh state so interval
// agents do not all fire immediately after a restart mid-window.
func (c *Coordinator) state(cfg domain.AgentStrategyConfig) *agentState {
	c.mu.RLock()
	s, ok := c.states[cfg.AgentID]
	c.mu.RUnlock()
	if ok {
		return s
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok = c.states[cfg.AgentID]; ok {
		return s
	}
	s = &agentState{lastTriggerAt: cfg.LastTriggerAt, symbols: make(map[string]*symbolState)}
	c.states[cfg.AgentID] = s
	return s
}
