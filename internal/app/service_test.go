package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradearena/config"
	"tradearena/internal/domain"
	"tradearena/internal/ports"
	"tradearena/internal/simulator"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

type mockSource struct{}

func (m *mockSource) GetTickerPrice(ctx context.Context, symbol string) (float64, error) {
	return 50_000, nil
}

// mockInvoker returns a scripted decision or error. When block is set it
// stalls like a slow reasoning backend, ignoring its context.
type mockInvoker struct {
	decision    *domain.Decision
	err         error
	calls       int
	started     chan struct{} // closed when the first call begins, if non-nil
	startedOnce sync.Once
	block       chan struct{} // if non-nil, Invoke waits on it
}

func (m *mockInvoker) Invoke(ctx context.Context, dc ports.DecisionContext) (*domain.Decision, error) {
	m.calls++
	if m.started != nil {
		m.startedOnce.Do(func() { close(m.started) })
	}
	if m.block != nil {
		<-m.block
	}
	if m.err != nil {
		return nil, m.err
	}
	return m.decision, nil
}

// mockLedger records fills and serves a fixed snapshot.
type mockLedger struct {
	mu       sync.Mutex
	snapshot ports.PortfolioSnapshot
	fills    []*domain.Order
	applyErr error
}

func (m *mockLedger) ApplyFill(ctx context.Context, order *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.applyErr != nil {
		return m.applyErr
	}
	cp := *order
	m.fills = append(m.fills, &cp)
	return nil
}

func (m *mockLedger) Snapshot(ctx context.Context, agentID int64) (ports.PortfolioSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot, nil
}

func (m *mockLedger) fillCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.fills)
}

// mockOrderRepo records order lifecycle calls.
type mockOrderRepo struct {
	mu        sync.Mutex
	created   []*domain.Order
	updated   []*domain.Order
	createErr error
	nextID    int64
}

func (m *mockOrderRepo) CreateOrder(ctx context.Context, order *domain.Order) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return 0, m.createErr
	}
	m.nextID++
	order.ID = m.nextID
	cp := *order
	m.created = append(m.created, &cp)
	return order.ID, nil
}

func (m *mockOrderRepo) UpdateOrderStatus(ctx context.Context, order *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *order
	m.updated = append(m.updated, &cp)
	return nil
}

func (m *mockOrderRepo) FindOrdersByAgent(ctx context.Context, agentID int64, limit int) ([]*domain.Order, error) {
	return nil, nil
}

func (m *mockOrderRepo) CountTodayByAgent(ctx context.Context, agentID int64) (int, error) {
	return 0, nil
}

// mockDecisionRepo records appended decision entries.
type mockDecisionRepo struct {
	mu      sync.Mutex
	records []*domain.DecisionRecord
}

func (m *mockDecisionRepo) AppendDecision(ctx context.Context, rec *domain.DecisionRecord) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.records = append(m.records, &cp)
	return int64(len(m.records)), nil
}

func (m *mockDecisionRepo) FindDecisionsByAgent(ctx context.Context, agentID int64, limit int) ([]*domain.DecisionRecord, error) {
	return nil, nil
}

// mockStrategyRepo satisfies ports.StrategyRepository.
type mockStrategyRepo struct {
	configs []*domain.AgentStrategyConfig
}

func (m *mockStrategyRepo) ListStrategies(ctx context.Context) ([]*domain.AgentStrategyConfig, error) {
	return m.configs, nil
}
func (m *mockStrategyRepo) UpsertStrategy(ctx context.Context, cfg *domain.AgentStrategyConfig) error {
	return nil
}
func (m *mockStrategyRepo) SetLastTrigger(ctx context.Context, agentID int64, when time.Time) error {
	return nil
}

// mockBroadcaster records published events.
type mockBroadcaster struct {
	mu        sync.Mutex
	orders    []*domain.Order
	decisions []*domain.DecisionRecord
	ticks     []domain.PriceTick
}

func (m *mockBroadcaster) PublishTick(ctx context.Context, tick domain.PriceTick) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ticks = append(m.ticks, tick)
	return nil
}

func (m *mockBroadcaster) PublishOrder(ctx context.Context, order *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *order
	m.orders = append(m.orders, &cp)
	return nil
}

func (m *mockBroadcaster) PublishDecision(ctx context.Context, rec *domain.DecisionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.decisions = append(m.decisions, &cp)
	return nil
}

// scriptedRand replays fixed draws for the simulator.
type scriptedRand struct {
	draws []float64
	pos   int
}

func (s *scriptedRand) next() float64 {
	if s.pos >= len(s.draws) {
		return 0.5
	}
	v := s.draws[s.pos]
	s.pos++
	return v
}

func (s *scriptedRand) Float64() float64 { return s.next() }
func (s *scriptedRand) Intn(n int) int   { return int(s.next() * float64(n)) }

type serviceMocks struct {
	invoker     *mockInvoker
	ledger      *mockLedger
	orders      *mockOrderRepo
	decisions   *mockDecisionRepo
	broadcaster *mockBroadcaster
}

func testConfig() *config.Config {
	return &config.Config{
		Symbols:                 []string{"BTCUSDT"},
		PollInterval:            time.Second,
		SamplingMaxSamples:      10,
		SamplingInterval:        time.Second,
		DecisionTimeout:         5 * time.Second,
		StrategyRefreshInterval: time.Minute,
		StartingCash:            10_000,
		CommissionRate:          0.0003,
	}
}

// newTestService wires a service with mocks and a zero-latency simulator
// driven by the given draws.
func newTestService(t *testing.T, decision *domain.Decision, draws []float64) (*Service, *serviceMocks) {
	t.Helper()

	simCfg := simulator.DefaultConfig()
	simCfg.MinLatency = 0
	simCfg.MaxLatency = 0
	sim, err := simulator.New(simCfg, &scriptedRand{draws: draws}, &mockLogger{})
	require.NoError(t, err)

	mocks := &serviceMocks{
		invoker: &mockInvoker{decision: decision},
		ledger: &mockLedger{snapshot: ports.PortfolioSnapshot{
			Cash:      decimal.NewFromInt(10_000),
			Positions: map[string]ports.PositionSnapshot{},
		}},
		orders:      &mockOrderRepo{},
		decisions:   &mockDecisionRepo{},
		broadcaster: &mockBroadcaster{},
	}

	s, err := NewService(
		testConfig(),
		&mockLogger{},
		&mockSource{},
		mocks.invoker,
		sim,
		mocks.ledger,
		mocks.orders,
		mocks.decisions,
		&mockStrategyRepo{},
		mocks.broadcaster,
	)
	require.NoError(t, err)
	return s, mocks
}

func btcTick(price float64) domain.PriceTick {
	return domain.PriceTick{Symbol: "BTCUSDT", Price: price, ObservedAt: time.Now()}
}

func TestNewService_Validation(t *testing.T) {
	_, err := NewService(nil, nil, nil, nil, nil, nil, nil, nil, nil, nil)
	assert.Error(t, err)
}

func TestEvaluate_BuyFillFlowsThroughLedgerAndLog(t *testing.T) {
	decision := &domain.Decision{
		Symbol:        "BTCUSDT",
		Operation:     domain.OpBuy,
		TargetPortion: 0.25,
		Reason:        "test buy",
	}
	// Draws: rejection roll passes, slippage at the lower band edge.
	s, mocks := newTestService(t, decision, []float64{0.5, 0.0})
	s.handleTick(context.Background(), btcTick(50_000))

	s.Evaluate(context.Background(), 1, btcTick(50_000))

	require.Len(t, mocks.orders.created, 1)
	created := mocks.orders.created[0]
	assert.Equal(t, domain.StatusPending, created.Status)
	assert.Equal(t, domain.Buy, created.Side)
	assert.Equal(t, int64(1), created.AgentID)
	assert.NotEmpty(t, created.OrderNo)

	// Sized with headroom: worst-case cost never exceeds the cash committed.
	headroom := 1 + s.sim.MaxSlippagePct() + s.cfg.CommissionRate
	maxCost := created.Quantity * 50_000 * headroom
	assert.LessOrEqual(t, maxCost, 10_000*0.25+1e-6)

	require.Len(t, mocks.orders.updated, 1)
	updated := mocks.orders.updated[0]
	assert.Equal(t, domain.StatusFilled, updated.Status)
	assert.Greater(t, updated.ExecutionPrice, 50_000.0)
	assert.False(t, updated.ExecutedAt.IsZero())

	require.Equal(t, 1, mocks.ledger.fillCount())
	assert.Equal(t, domain.StatusFilled, mocks.ledger.fills[0].Status)

	require.Len(t, mocks.decisions.records, 1)
	rec := mocks.decisions.records[0]
	assert.True(t, rec.Executed)
	require.NotNil(t, rec.OrderID)
	assert.Equal(t, updated.ID, *rec.OrderID)

	assert.Len(t, mocks.broadcaster.orders, 1)
	assert.Len(t, mocks.broadcaster.decisions, 1)
}

func TestEvaluate_RejectedOrderNeverTouchesLedger(t *testing.T) {
	decision := &domain.Decision{
		Symbol:        "BTCUSDT",
		Operation:     domain.OpBuy,
		TargetPortion: 0.25,
	}
	// First draw forces the random rejection branch.
	s, mocks := newTestService(t, decision, []float64{0.01, 0.5})
	s.handleTick(context.Background(), btcTick(50_000))

	s.Evaluate(context.Background(), 1, btcTick(50_000))

	require.Len(t, mocks.orders.updated, 1)
	assert.Equal(t, domain.StatusRejected, mocks.orders.updated[0].Status)
	assert.NotEmpty(t, mocks.orders.updated[0].RejectionReason)

	assert.Equal(t, 0, mocks.ledger.fillCount())

	require.Len(t, mocks.decisions.records, 1)
	assert.False(t, mocks.decisions.records[0].Executed)
	require.NotNil(t, mocks.decisions.records[0].OrderID)

	// The rejected order is still broadcast for the audit trail.
	assert.Len(t, mocks.broadcaster.orders, 1)
}

func TestEvaluate_HoldIsExecutedWithoutOrder(t *testing.T) {
	decision := &domain.Decision{
		Symbol:    "BTCUSDT",
		Operation: domain.OpHold,
		Reason:    "sitting out",
	}
	s, mocks := newTestService(t, decision, nil)
	s.handleTick(context.Background(), btcTick(50_000))

	s.Evaluate(context.Background(), 1, btcTick(50_000))

	assert.Empty(t, mocks.orders.created)
	assert.Equal(t, 0, mocks.ledger.fillCount())

	require.Len(t, mocks.decisions.records, 1)
	rec := mocks.decisions.records[0]
	assert.True(t, rec.Executed)
	assert.Nil(t, rec.OrderID)
	assert.Equal(t, "hold", rec.Operation)
}

func TestEvaluate_InvokerFailureProducesNoOrder(t *testing.T) {
	s, mocks := newTestService(t, nil, nil)
	mocks.invoker.err = assert.AnError
	s.handleTick(context.Background(), btcTick(50_000))

	s.Evaluate(context.Background(), 1, btcTick(50_000))

	assert.Equal(t, 1, mocks.invoker.calls)
	assert.Empty(t, mocks.orders.created)
	assert.Empty(t, mocks.decisions.records)
	assert.Equal(t, 0, mocks.ledger.fillCount())
}

func TestEvaluate_InvalidDecisionsAreLoggedNotExecuted(t *testing.T) {
	tests := []struct {
		name     string
		decision *domain.Decision
	}{
		{
			name:     "unknown operation",
			decision: &domain.Decision{Symbol: "BTCUSDT", Operation: "short", TargetPortion: 0.5},
		},
		{
			name:     "portion above one",
			decision: &domain.Decision{Symbol: "BTCUSDT", Operation: domain.OpBuy, TargetPortion: 1.5},
		},
		{
			name:     "portion zero",
			decision: &domain.Decision{Symbol: "BTCUSDT", Operation: domain.OpBuy, TargetPortion: 0},
		},
		{
			name:     "unknown symbol has no price",
			decision: &domain.Decision{Symbol: "DOGEUSDT", Operation: domain.OpBuy, TargetPortion: 0.5},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mocks := newTestService(t, tt.decision, nil)
			s.handleTick(context.Background(), btcTick(50_000))

			s.Evaluate(context.Background(), 1, btcTick(50_000))

			assert.Empty(t, mocks.orders.created)
			require.Len(t, mocks.decisions.records, 1)
			assert.False(t, mocks.decisions.records[0].Executed)
			assert.Nil(t, mocks.decisions.records[0].OrderID)
		})
	}
}

func TestEvaluate_SellWithoutPositionIsSkipped(t *testing.T) {
	decision := &domain.Decision{
		Symbol:        "BTCUSDT",
		Operation:     domain.OpSell,
		TargetPortion: 0.5,
	}
	s, mocks := newTestService(t, decision, nil)
	s.handleTick(context.Background(), btcTick(50_000))

	s.Evaluate(context.Background(), 1, btcTick(50_000))

	assert.Empty(t, mocks.orders.created)
	require.Len(t, mocks.decisions.records, 1)
	assert.False(t, mocks.decisions.records[0].Executed)
}

func TestEvaluate_CloseSellsFullPosition(t *testing.T) {
	decision := &domain.Decision{
		Symbol:        "BTCUSDT",
		Operation:     domain.OpClose,
		TargetPortion: 1,
	}
	s, mocks := newTestService(t, decision, []float64{0.5, 0.0, 0.99})
	mocks.ledger.snapshot.Positions["BTCUSDT"] = ports.PositionSnapshot{
		Quantity: decimal.NewFromFloat(0.2),
		AvgCost:  decimal.NewFromInt(48_000),
	}
	s.handleTick(context.Background(), btcTick(50_000))

	s.Evaluate(context.Background(), 1, btcTick(50_000))

	require.Len(t, mocks.orders.created, 1)
	created := mocks.orders.created[0]
	assert.Equal(t, domain.Sell, created.Side)
	assert.InDelta(t, 0.2, created.Quantity, 1e-9)
}

func TestRun_WaitsForInFlightEvaluationOnShutdown(t *testing.T) {
	simCfg := simulator.DefaultConfig()
	simCfg.MinLatency = 0
	simCfg.MaxLatency = 0
	sim, err := simulator.New(simCfg, &scriptedRand{}, &mockLogger{})
	require.NoError(t, err)

	invoker := &mockInvoker{
		decision: &domain.Decision{Symbol: "BTCUSDT", Operation: domain.OpHold, Reason: "waiting"},
		started:  make(chan struct{}),
		block:    make(chan struct{}),
	}
	decisions := &mockDecisionRepo{}
	cfg := testConfig()
	cfg.PollInterval = 10 * time.Millisecond
	strategies := &mockStrategyRepo{configs: []*domain.AgentStrategyConfig{
		{AgentID: 1, TriggerMode: domain.TriggerTickBatch, TickBatchSize: 1, Enabled: true},
	}}
	ledger := &mockLedger{snapshot: ports.PortfolioSnapshot{
		Cash:      decimal.NewFromInt(10_000),
		Positions: map[string]ports.PositionSnapshot{},
	}}

	s, err := NewService(cfg, &mockLogger{}, &mockSource{}, invoker, sim,
		ledger, &mockOrderRepo{}, decisions, strategies, &mockBroadcaster{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runDone := make(chan error, 1)
	go func() { runDone <- s.Run(ctx) }()

	select {
	case <-invoker.started:
	case <-time.After(2 * time.Second):
		t.Fatal("evaluation never started")
	}
	cancel()

	// The evaluation is still stalled inside the decision backend; Run must
	// hold the teardown until it completes.
	select {
	case <-runDone:
		t.Fatal("Run returned with an evaluation in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(invoker.block)
	select {
	case err := <-runDone:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after the evaluation finished")
	}

	// The drained evaluation still reached the decision log.
	decisions.mu.Lock()
	defer decisions.mu.Unlock()
	assert.NotEmpty(t, decisions.records)
}

func TestHandleTick_CachesPriceAndBroadcasts(t *testing.T) {
	s, mocks := newTestService(t, nil, nil)

	s.handleTick(context.Background(), btcTick(42_000))

	price, ok := s.prices.get("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, 42_000.0, price)
	assert.Len(t, mocks.broadcaster.ticks, 1)
}
