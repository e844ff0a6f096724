// Package sampling maintains a bounded rolling buffer of recent price
// samples per symbol, used to assemble decision context. It is a pure cache
// with no coordination logic: one writer (the tick loop), many readers.
package sampling

import (
	"sync"
	"time"

	"tradearena/internal/domain"
)

const (
	defaultMaxSamples = 10
	defaultMinSpacing = 18 * time.Second
)

// Pool retains up to maxSamples recent samples per symbol, spaced at least
// minSpacing apart so the buffer covers a useful time window instead of the
// last few polling cycles.
type Pool struct {
	mu         sync.RWMutex
	maxSamples int
	minSpacing time.Duration
	samples    map[string][]domain.PriceSample
	lastSample map[string]time.Time
}

// SymbolStatus is a monitoring view of one symbol's buffer.
type SymbolStatus struct {
	SampleCount      int
	LatestPrice      float64
	OldestObservedAt time.Time
	LatestObservedAt time.Time
}

// New creates a sampling pool. Non-positive arguments fall back to defaults.
func New(maxSamples int, minSpacing time.Duration) *Pool {
	if maxSamples <= 0 {
		maxSamples = defaultMaxSamples
	}
	if minSpacing <= 0 {
		minSpacing = defaultMinSpacing
	}
	return &Pool{
		maxSamples: maxSamples,
		minSpacing: minSpacing,
		samples:    make(map[string][]domain.PriceSample),
		lastSample: make(map[string]time.Time),
	}
}

// Observe records the tick if enough time has passed since the symbol's last
// sample. Returns true when a sample was retained.
func (p *Pool) Observe(tick domain.PriceTick) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if last, ok := p.lastSample[tick.Symbol]; ok && tick.ObservedAt.Sub(last) < p.minSpacing {
		return false
	}

	buf := append(p.samples[tick.Symbol], domain.PriceSample{Price: tick.Price, ObservedAt: tick.ObservedAt})
	if len(buf) > p.maxSamples {
		buf = buf[len(buf)-p.maxSamples:]
	}
	p.samples[tick.Symbol] = buf
	p.lastSample[tick.Symbol] = tick.ObservedAt
	return true
}

// Samples returns a copy of the retained samples for a symbol, oldest first.
func (p *Pool) Samples(symbol string) []domain.PriceSample {
	p.mu.RLock()
	defer p.mu.RUnlock()

	buf := p.samples[symbol]
	out := make([]domain.PriceSample, len(buf))
	copy(out, buf)
	return out
}

// LatestPrice returns the most recent sampled price for a symbol.
func (p *Pool) LatestPrice(symbol string) (float64, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	buf := p.samples[symbol]
	if len(buf) == 0 {
		return 0, false
	}
	return buf[len(buf)-1].Price, true
}

// PriceChangePercent returns the percentage move from the oldest to the
// latest sample. The second return is false when fewer than two samples are
// retained or the oldest price is zero.
func (p *Pool) PriceChangePercent(symbol string) (float64, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	buf := p.samples[symbol]
	if len(buf) < 2 {
		return 0, false
	}
	oldest := buf[0].Price
	latest := buf[len(buf)-1].Price
	if oldest == 0 {
		return 0, false
	}
	return (latest - oldest) / oldest * 100, true
}

// Status returns a monitoring snapshot of every symbol buffer.
func (p *Pool) Status() map[string]SymbolStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make(map[string]SymbolStatus, len(p.samples))
	for symbol, buf := range p.samples {
		st := SymbolStatus{SampleCount: len(buf)}
		if len(buf) > 0 {
			st.LatestPrice = buf[len(buf)-1].Price
			st.OldestObservedAt = buf[0].ObservedAt
			st.LatestObservedAt = buf[len(buf)-1].ObservedAt
		}
		out[symbol] = st
	}
	return out
}
