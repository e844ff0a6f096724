package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"tradearena/config"
	"tradearena/internal/domain"
	"tradearena/internal/metrics"
	"tradearena/internal/ports"
	"tradearena/internal/pricefeed"
	"tradearena/internal/sampling"
	"tradearena/internal/simulator"
	"tradearena/internal/trigger"
)

const quantityPrecision = 6 // decimal places for crypto quantities

// Service wires the price feed into the trigger coordinator and implements
// the evaluation pipeline each fired trigger runs: decision invocation,
// execution simulation, ledger update, persistence, and broadcasting.
type Service struct {
	cfg         *config.Config
	logger      ports.Logger
	invoker     ports.DecisionInvoker
	sim         *simulator.Engine
	ledger      ports.PortfolioLedger
	orders      ports.OrderRepository
	decisions   ports.DecisionLogRepository
	broadcaster ports.EventBroadcaster

	feed        *pricefeed.Feed
	pool        *sampling.Pool
	coordinator *trigger.Coordinator

	prices *priceCache
}

// NewService creates the application service and its internal feed,
// sampling pool, and trigger coordinator.
func NewService(
	cfg *config.Config,
	logger ports.Logger,
	source ports.MarketDataSource,
	invoker ports.DecisionInvoker,
	sim *simulator.Engine,
	ledger ports.PortfolioLedger,
	orders ports.OrderRepository,
	decisions ports.DecisionLogRepository,
	strategies ports.StrategyRepository,
	broadcaster ports.EventBroadcaster,
) (*Service, error) {
	if cfg == nil || logger == nil || source == nil || invoker == nil || sim == nil ||
		ledger == nil || orders == nil || decisions == nil || strategies == nil || broadcaster == nil {
		return nil, fmt.Errorf("missing required dependencies for service")
	}

	feed, err := pricefeed.New(pricefeed.Config{
		Symbols:      cfg.Symbols,
		PollInterval: cfg.PollInterval,
	}, source, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create price feed: %w", err)
	}

	s := &Service{
		cfg:         cfg,
		logger:      logger,
		invoker:     invoker,
		sim:         sim,
		ledger:      ledger,
		orders:      orders,
		decisions:   decisions,
		broadcaster: broadcaster,
		feed:        feed,
		pool:        sampling.New(cfg.SamplingMaxSamples, cfg.SamplingInterval),
		prices:      newPriceCache(),
	}

	coord, err := trigger.New(trigger.Config{
		RefreshInterval: cfg.StrategyRefreshInterval,
	}, strategies, s, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create trigger coordinator: %w", err)
	}
	s.coordinator = coord
	return s, nil
}

// Run starts the feed and coordinator and processes ticks until the context
// is canceled or a termination signal arrives.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info(ctx, "Starting trading service...")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			s.logger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
			cancel()
		case <-ctx.Done():
		}
	}()

	sub := s.feed.Subscribe()

	go func() {
		if err := s.feed.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error(ctx, err, "Price feed exited")
			cancel()
		}
	}()
	coordDone := make(chan struct{})
	go func() {
		defer close(coordDone)
		if err := s.coordinator.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error(ctx, err, "Trigger coordinator exited")
			cancel()
		}
	}()

	// The subscriber channel closes when the feed loop exits.
	for tick := range sub {
		s.handleTick(ctx, tick)
	}

	// The coordinator drains in-flight evaluations before returning; callers
	// must not tear down the repositories while an order is mid-persist.
	cancel()
	<-coordDone

	s.logger.Info(ctx, "Trading service stopped.")
	return nil
}

// handleTick is the shared tick path. It must never block on any single
// agent's work; the coordinator guarantees that.
func (s *Service) handleTick(ctx context.Context, tick domain.PriceTick) {
	s.prices.set(tick.Symbol, tick.Price)
	s.pool.Observe(tick)

	if err := s.broadcaster.PublishTick(ctx, tick); err != nil {
		s.logger.Debug(ctx, "Failed to publish tick", map[string]interface{}{
			"symbol": tick.Symbol,
			"error":  err.Error(),
		})
	}

	s.coordinator.HandleTick(ctx, tick)
}

// Evaluate implements trigger.Evaluator. It runs inside the agent's own
// goroutine with the agent's guard held; a failure anywhere leaves the
// trigger counters advanced (a failed attempt still counts as an attempt).
func (s *Service) Evaluate(ctx context.Context, agentID int64, tick domain.PriceTick) {
	op := "Evaluate"

	snapshot, err := s.ledger.Snapshot(ctx, agentID)
	if err != nil {
		s.logger.Error(ctx, err, op+": Failed to snapshot portfolio", map[string]interface{}{"agentID": agentID})
		return
	}

	invokeCtx, cancel := context.WithTimeout(ctx, s.cfg.DecisionTimeout)
	decision, err := s.invoker.Invoke(invokeCtx, ports.DecisionContext{
		AgentID:   agentID,
		Symbol:    tick.Symbol,
		Price:     tick.Price,
		Samples:   s.pool.Samples(tick.Symbol),
		Portfolio: snapshot,
	})
	cancel()
	if err != nil {
		// Timeout and failure are treated identically: no order, no rollback
		// of trigger counters, so a failing backend is not hammered.
		metrics.DecisionFailures.Inc()
		s.logger.Warn(ctx, op+": Decision backend failed, no order this cycle", map[string]interface{}{
			"agentID": agentID,
			"error":   err.Error(),
		})
		return
	}
	if decision == nil {
		metrics.DecisionFailures.Inc()
		s.logger.Warn(ctx, op+": Decision backend returned nothing", map[string]interface{}{"agentID": agentID})
		return
	}
	decision.AgentID = agentID

	s.logger.Info(ctx, op+": Decision received", map[string]interface{}{
		"agentID":       agentID,
		"operation":     string(decision.Operation),
		"symbol":        decision.Symbol,
		"targetPortion": decision.TargetPortion,
		"reason":        decision.Reason,
	})

	s.executeDecision(ctx, decision, snapshot)
}

// executeDecision validates and sizes the decision, then runs the
// simulation and applies the outcome.
func (s *Service) executeDecision(ctx context.Context, decision *domain.Decision, snapshot ports.PortfolioSnapshot) {
	op := "executeDecision"

	if !decision.Operation.IsValid() {
		s.logger.Warn(ctx, op+": Unrecognized operation, skipping", map[string]interface{}{
			"agentID":   decision.AgentID,
			"operation": string(decision.Operation),
		})
		s.recordDecision(ctx, decision, false, nil)
		return
	}

	// A hold is a legitimate, fully executed decision that produces no order.
	if decision.Operation == domain.OpHold {
		s.recordDecision(ctx, decision, true, nil)
		return
	}

	if decision.TargetPortion <= 0 || decision.TargetPortion > 1 {
		s.logger.Warn(ctx, op+": Target portion out of range, skipping", map[string]interface{}{
			"agentID": decision.AgentID,
			"portion": decision.TargetPortion,
		})
		s.recordDecision(ctx, decision, false, nil)
		return
	}

	price, ok := s.prices.get(decision.Symbol)
	if !ok || price <= 0 {
		s.logger.Warn(ctx, op+": No current price for decision symbol, skipping", map[string]interface{}{
			"agentID": decision.AgentID,
			"symbol":  decision.Symbol,
		})
		s.recordDecision(ctx, decision, false, nil)
		return
	}

	side, quantity, err := s.sizeOrder(decision, snapshot, price)
	if err != nil {
		s.logger.Info(ctx, op+": Decision not executable, skipping", map[string]interface{}{
			"agentID": decision.AgentID,
			"symbol":  decision.Symbol,
			"reason":  err.Error(),
		})
		s.recordDecision(ctx, decision, false, nil)
		return
	}

	order := &domain.Order{
		OrderNo:   uuid.NewString(),
		AgentID:   decision.AgentID,
		Symbol:    decision.Symbol,
		Side:      side,
		Type:      domain.Market,
		Quantity:  quantity,
		Status:    domain.StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := s.orders.CreateOrder(ctx, order); err != nil {
		s.logger.Error(ctx, err, op+": Failed to persist pending order", map[string]interface{}{
			"agentID": decision.AgentID,
			"orderNo": order.OrderNo,
		})
		s.recordDecision(ctx, decision, false, nil)
		return
	}

	result, err := s.sim.Simulate(ctx, order, price)
	if err != nil {
		// Only context cancellation lands here; the order stays pending and
		// is visible in the audit trail as interrupted work.
		s.logger.Warn(ctx, op+": Simulation aborted", map[string]interface{}{
			"orderNo": order.OrderNo,
			"error":   err.Error(),
		})
		s.recordDecision(ctx, decision, false, &order.ID)
		return
	}

	order.Status = result.Status
	order.ExecutionPrice = result.ExecutionPrice
	order.FilledQuantity = result.FilledQuantity
	order.Slippage = result.Slippage
	order.RejectionReason = result.RejectionReason
	order.ExecutedAt = time.Now().UTC()
	metrics.OrdersSimulated.WithLabelValues(string(result.Status)).Inc()

	// A rejected order is persisted for audit but never touches the ledger.
	if result.Status != domain.StatusRejected {
		if err := s.ledger.ApplyFill(ctx, order); err != nil {
			s.logger.Error(ctx, err, op+": Failed to apply fill to ledger", map[string]interface{}{
				"orderNo": order.OrderNo,
			})
		}
	}

	if err := s.orders.UpdateOrderStatus(ctx, order); err != nil {
		s.logger.Error(ctx, err, op+": Failed to persist order outcome", map[string]interface{}{
			"orderNo": order.OrderNo,
		})
	}

	executed := result.Status == domain.StatusFilled || result.Status == domain.StatusPartiallyFilled
	s.recordDecision(ctx, decision, executed, &order.ID)

	// Broadcast after the ledger is settled (or untouched, for rejections).
	if err := s.broadcaster.PublishOrder(ctx, order); err != nil {
		s.logger.Warn(ctx, op+": Failed to publish order event", map[string]interface{}{
			"orderNo": order.OrderNo,
			"error":   err.Error(),
		})
	}

	s.logger.Info(ctx, op+": Order resolved", map[string]interface{}{
		"agentID":        order.AgentID,
		"orderNo":        order.OrderNo,
		"status":         string(order.Status),
		"executionPrice": order.ExecutionPrice,
		"filledQuantity": order.FilledQuantity,
	})
}

// sizeOrder converts the decision's target portion into a concrete side and
// quantity against the agent's portfolio.
func (s *Service) sizeOrder(decision *domain.Decision, snapshot ports.PortfolioSnapshot, price float64) (domain.OrderSide, float64, error) {
	switch decision.Operation {
	case domain.OpBuy:
		cash, _ := snapshot.Cash.Float64()
		// Leave headroom for worst-case slippage and commission so the fill
		// can never overdraw the account.
		headroom := 1 + s.sim.MaxSlippagePct() + s.cfg.CommissionRate
		quantity := roundQuantity(cash * decision.TargetPortion / headroom / price)
		if quantity <= 0 {
			return "", 0, fmt.Errorf("buy quantity rounds to zero (cash $%.2f)", cash)
		}
		return domain.Buy, quantity, nil

	case domain.OpSell:
		held, _ := snapshot.Position(decision.Symbol).Quantity.Float64()
		if held <= 0 {
			return "", 0, fmt.Errorf("no %s position to sell", decision.Symbol)
		}
		quantity := roundQuantity(held * decision.TargetPortion)
		if quantity > held {
			quantity = held
		}
		if quantity <= 0 {
			return "", 0, fmt.Errorf("sell quantity rounds to zero")
		}
		return domain.Sell, quantity, nil

	case domain.OpClose:
		held, _ := snapshot.Position(decision.Symbol).Quantity.Float64()
		if held <= 0 {
			return "", 0, fmt.Errorf("no %s position to close", decision.Symbol)
		}
		return domain.Sell, held, nil
	}
	return "", 0, fmt.Errorf("operation %q cannot be sized", decision.Operation)
}

// recordDecision appends the decision to the durable log and broadcasts it.
// Both are best-effort; a logging failure never aborts the evaluation.
func (s *Service) recordDecision(ctx context.Context, decision *domain.Decision, executed bool, orderID *int64) {
	rec := &domain.DecisionRecord{
		AgentID:       decision.AgentID,
		Symbol:        decision.Symbol,
		Operation:     string(decision.Operation),
		TargetPortion: decision.TargetPortion,
		Reason:        decision.Reason,
		Executed:      executed,
		OrderID:       orderID,
		CreatedAt:     time.Now().UTC(),
	}
	if _, err := s.decisions.AppendDecision(ctx, rec); err != nil {
		s.logger.Error(ctx, err, "Failed to append decision log entry", map[string]interface{}{
			"agentID": decision.AgentID,
		})
	}
	if err := s.broadcaster.PublishDecision(ctx, rec); err != nil {
		s.logger.Warn(ctx, "Failed to publish decision event", map[string]interface{}{
			"agentID": decision.AgentID,
			"error":   err.Error(),
		})
	}
}

// Coordinator exposes the trigger coordinator for administrative updates.
func (s *Service) Coordinator() *trigger.Coordinator {
	return s.coordinator
}

// PoolStatus exposes the sampling pool monitoring snapshot.
func (s *Service) PoolStatus() map[string]sampling.SymbolStatus {
	return s.pool.Status()
}

func roundQuantity(q float64) float64 {
	factor := math.Pow10(quantityPrecision)
	return math.Floor(q*factor) / factor
}
