package simulator

import (
	"context"
	"testing"
	"time"

	"tradearena/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

// scriptedRand replays a fixed sequence of draws. Float64 and Intn share the
// sequence; Intn scales the draw into [0, n).
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

// fastConfig removes latency so tests run instantly.
func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.MinLatency = 0
	cfg.MaxLatency = 0
	return cfg
}

func newTestEngine(t *testing.T, cfg Config, rng Rand) *Engine {
	t.Helper()
	engine, err := New(cfg, rng, &mockLogger{})
	require.NoError(t, err)
	return engine
}

func buyOrder(quantity float64) *domain.Order {
	return &domain.Order{
		OrderNo:  "test-order",
		AgentID:  1,
		Symbol:   "BTCUSDT",
		Side:     domain.Buy,
		Type:     domain.Market,
		Quantity: quantity,
	}
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *Config)
		rng     Rand
		wantErr bool
	}{
		{name: "valid defaults", rng: &scriptedRand{}},
		{name: "nil rand", rng: nil, wantErr: true},
		{
			name:    "zero liquidity cap",
			mutate:  func(cfg *Config) { cfg.MaxOrderValueUSD = 0 },
			rng:     &scriptedRand{},
			wantErr: true,
		},
		{
			name:    "inverted slippage bounds",
			mutate:  func(cfg *Config) { cfg.MinSlippageBps = 10; cfg.MaxSlippageBps = 1 },
			rng:     &scriptedRand{},
			wantErr: true,
		},
		{
			name:    "inverted latency bounds",
			mutate:  func(cfg *Config) { cfg.MinLatency = time.Second; cfg.MaxLatency = time.Millisecond },
			rng:     &scriptedRand{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			if tt.mutate != nil {
				tt.mutate(&cfg)
			}
			_, err := New(cfg, tt.rng, &mockLogger{})
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSimulate_LiquidityCapIsDeterministic(t *testing.T) {
	// Any random sequence must reject a $150k order before a single draw.
	seeds := [][]float64{
		{0.0, 0.0, 0.0},
		{0.99, 0.99, 0.99},
		{0.5, 0.01, 0.7},
	}
	for _, draws := range seeds {
		rng := &scriptedRand{draws: draws}
		engine := newTestEngine(t, fastConfig(), rng)

		// 3 BTC at $50k = $150k notional.
		result, err := engine.Simulate(context.Background(), buyOrder(3), 50_000)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusRejected, result.Status)
		assert.Contains(t, result.RejectionReason, "exceeds maximum")
		assert.Zero(t, result.ExecutionPrice)
		assert.Zero(t, result.FilledQuantity)
		assert.Equal(t, 0, rng.pos, "liquidity rejection must not consume random draws")
	}
}

func TestSimulate_BelowMinimumValue(t *testing.T) {
	engine := newTestEngine(t, fastConfig(), &scriptedRand{})

	result, err := engine.Simulate(context.Background(), buyOrder(0.00001), 50_000)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, result.Status)
	assert.Contains(t, result.RejectionReason, "below minimum")
}

func TestSimulate_RandomRejection(t *testing.T) {
	// First draw 0.01 < 0.02 rejection probability; second draw picks reason.
	rng := &scriptedRand{draws: []float64{0.01, 0.6}}
	engine := newTestEngine(t, fastConfig(), rng)

	result, err := engine.Simulate(context.Background(), buyOrder(0.01), 50_000)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, result.Status)
	assert.Contains(t, rejectionReasons, result.RejectionReason)
	assert.Zero(t, result.ExecutionPrice)
}

func TestSimulate_SmallOrderSlippageBand(t *testing.T) {
	// $100 notional buy at price 100. Slippage must land in [1, 2] bps, so
	// the execution price lies in [100.01, 100.02].
	draws := []float64{
		0.5, // rejection roll, passes
		0.0, // slippage draw (lower bound)
	}
	rng := &scriptedRand{draws: draws}
	engine := newTestEngine(t, fastConfig(), rng)

	result, err := engine.Simulate(context.Background(), buyOrder(1), 100)
	require.NoError(t, err)
	require.Equal(t, domain.StatusFilled, result.Status)
	assert.InDelta(t, 100.01, result.ExecutionPrice, 1e-9)
	assert.InDelta(t, 0.0001, result.Slippage, 1e-9)
	assert.Equal(t, 1.0, result.FilledQuantity)

	// Upper bound of the band.
	rng = &scriptedRand{draws: []float64{0.5, 1.0}}
	engine = newTestEngine(t, fastConfig(), rng)
	result, err = engine.Simulate(context.Background(), buyOrder(1), 100)
	require.NoError(t, err)
	assert.InDelta(t, 100.02, result.ExecutionPrice, 1e-9)
	assert.InDelta(t, 0.0002, result.Slippage, 1e-9)
}

func TestSimulate_SmallBTCBuyScenario(t *testing.T) {
	// 0.001 BTC at $100,000 ($100 notional): always fills, execution price
	// within [100010, 100020] for any slippage draw.
	for _, draw := range []float64{0.0, 0.25, 0.5, 0.75, 1.0} {
		rng := &scriptedRand{draws: []float64{0.5, draw}}
		engine := newTestEngine(t, fastConfig(), rng)

		result, err := engine.Simulate(context.Background(), buyOrder(0.001), 100_000)
		require.NoError(t, err)
		require.Equal(t, domain.StatusFilled, result.Status)
		assert.GreaterOrEqual(t, result.ExecutionPrice, 100_010.0-1e-6)
		assert.LessOrEqual(t, result.ExecutionPrice, 100_020.0+1e-6)
		assert.GreaterOrEqual(t, result.Slippage, 0.0001-1e-12)
		assert.LessOrEqual(t, result.Slippage, 0.0002+1e-12)
	}
}

func TestSimulate_LargeOrderSlippageScalesWithSize(t *testing.T) {
	// $50k notional: sizeFactor 0.5, ceiling = 1 + 9*0.5 = 5.5 bps.
	// Draw 1.0 lands exactly on the ceiling.
	rng := &scriptedRand{draws: []float64{0.5, 1.0, 0.99}}
	engine := newTestEngine(t, fastConfig(), rng)

	result, err := engine.Simulate(context.Background(), buyOrder(1), 50_000)
	require.NoError(t, err)
	require.Equal(t, domain.StatusFilled, result.Status)
	assert.InDelta(t, 0.00055, result.Slippage, 1e-9)
}

func TestSimulate_SellExecutesBelowCurrentPrice(t *testing.T) {
	rng := &scriptedRand{draws: []float64{0.5, 1.0}}
	engine := newTestEngine(t, fastConfig(), rng)

	order := buyOrder(1)
	order.Side = domain.Sell
	result, err := engine.Simulate(context.Background(), order, 100)
	require.NoError(t, err)
	require.Equal(t, domain.StatusFilled, result.Status)
	assert.Less(t, result.ExecutionPrice, 100.0)
	assert.InDelta(t, 100/1.0002, result.ExecutionPrice, 1e-9)
}

func TestSimulate_PartialFill(t *testing.T) {
	// $15k notional: above the partial fill threshold. Draws: rejection roll
	// passes, slippage, partial roll 0.05 < 0.1 probability, fill pct draw 0.5
	// -> 70% of requested quantity.
	rng := &scriptedRand{draws: []float64{0.5, 0.5, 0.05, 0.5}}
	engine := newTestEngine(t, fastConfig(), rng)

	result, err := engine.Simulate(context.Background(), buyOrder(0.3), 50_000)
	require.NoError(t, err)
	require.Equal(t, domain.StatusPartiallyFilled, result.Status)
	assert.InDelta(t, 0.3*0.7, result.FilledQuantity, 1e-9)
	assert.Less(t, result.FilledQuantity, 0.3)
	assert.GreaterOrEqual(t, result.FilledQuantity, 0.3*0.5)
	assert.LessOrEqual(t, result.FilledQuantity, 0.3*0.9)
}

func TestSimulate_SmallOrderNeverPartiallyFills(t *testing.T) {
	// $5k notional is below the partial threshold; even a 0.0 partial roll
	// must not trigger a partial fill.
	rng := &scriptedRand{draws: []float64{0.5, 0.5, 0.0, 0.0}}
	engine := newTestEngine(t, fastConfig(), rng)

	result, err := engine.Simulate(context.Background(), buyOrder(0.1), 50_000)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFilled, result.Status)
	assert.Equal(t, 0.1, result.FilledQuantity)
}

func TestSimulate_ContextCanceledDuringLatency(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinLatency = 100 * time.Millisecond
	cfg.MaxLatency = 200 * time.Millisecond
	engine := newTestEngine(t, cfg, &scriptedRand{draws: []float64{0.5, 0.5}})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := engine.Simulate(ctx, buyOrder(0.01), 50_000)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEstimateSlippage(t *testing.T) {
	engine := newTestEngine(t, fastConfig(), &scriptedRand{})

	small := engine.EstimateSlippage(500)
	assert.InDelta(t, 0.0001, small.MinPct, 1e-9)
	assert.InDelta(t, 0.0002, small.MaxPct, 1e-9)

	large := engine.EstimateSlippage(100_000)
	assert.InDelta(t, 0.0001, large.MinPct, 1e-9)
	assert.InDelta(t, 0.001, large.MaxPct, 1e-9)
	assert.Greater(t, large.AvgPct, small.AvgPct)
}

func TestMaxSlippagePct(t *testing.T) {
	engine := newTestEngine(t, fastConfig(), &scriptedRand{})
	assert.InDelta(t, 0.001, engine.MaxSlippagePct(), 1e-12)
}
