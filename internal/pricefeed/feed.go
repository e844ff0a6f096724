// Package pricefeed runs the single shared polling loop over the market data
// source and fans normalized ticks out to subscribers.
package pricefeed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tradearena/internal/domain"
	"tradearena/internal/metrics"
	"tradearena/internal/ports"
)

const (
	defaultPollInterval     = 1500 * time.Millisecond
	defaultSubscriberBuffer = 64
	fetchTimeout            = 5 * time.Second
)

// Config holds settings for the polling feed.
type Config struct {
	Symbols          []string
	PollInterval     time.Duration // Defaults to 1.5s
	SubscriberBuffer int           // Channel buffer per subscriber
}

// Feed polls the market data source for a fixed symbol set at a fixed
// cadence. Delivery to subscribers is best-effort: a subscriber that cannot
// keep up loses ticks, it never stalls the loop or other subscribers. Ticks
// for one symbol are always delivered in arrival order.
type Feed struct {
	cfg    Config
	source ports.MarketDataSource
	logger ports.Logger
	now    func() time.Time

	mu   sync.Mutex
	subs []chan domain.PriceTick
}

// New creates a feed. The symbol set is fixed for the feed's lifetime.
func New(cfg Config, source ports.MarketDataSource, logger ports.Logger) (*Feed, error) {
	if source == nil || logger == nil {
		return nil, fmt.Errorf("missing required dependencies for price feed")
	}
	if len(cfg.Symbols) == 0 {
		return nil, fmt.Errorf("price feed requires at least one symbol")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.SubscriberBuffer <= 0 {
		cfg.SubscriberBuffer = defaultSubscriberBuffer
	}
	return &Feed{
		cfg:    cfg,
		source: source,
		logger: logger,
		now:    time.Now,
	}, nil
}

// Subscribe registers a new tick consumer. Subscribe before calling Run;
// channels are closed when Run returns.
func (f *Feed) Subscribe() <-chan domain.PriceTick {
	ch := make(chan domain.PriceTick, f.cfg.SubscriberBuffer)
	f.mu.Lock()
	f.subs = append(f.subs, ch)
	f.mu.Unlock()
	return ch
}

// Run executes the polling loop until the context is canceled. A failed
// fetch for one symbol degrades to "no tick this cycle" for that symbol.
func (f *Feed) Run(ctx context.Context) error {
	f.logger.Info(ctx, "Price feed started", map[string]interface{}{
		"symbols":  f.cfg.Symbols,
		"interval": f.cfg.PollInterval.String(),
	})
	defer f.closeSubscribers()

	for {
		cycleStart := f.now()
		for _, symbol := range f.cfg.Symbols {
			if ctx.Err() != nil {
				f.logger.Info(ctx, "Price feed stopped")
				return ctx.Err()
			}
			f.pollSymbol(ctx, symbol)
		}

		// Sleep out the remainder of the cycle.
		elapsed := f.now().Sub(cycleStart)
		wait := f.cfg.PollInterval - elapsed
		if wait <= 0 {
			continue
		}
		select {
		case <-ctx.Done():
			f.logger.Info(ctx, "Price feed stopped")
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (f *Feed) pollSymbol(ctx context.Context, symbol string) {
	fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	price, err := f.source.GetTickerPrice(fetchCtx, symbol)
	if err != nil {
		metrics.TickFetchFailures.WithLabelValues(symbol).Inc()
		f.logger.Warn(ctx, "Failed to fetch price, skipping cycle", map[string]interface{}{
			"symbol": symbol,
			"error":  err.Error(),
		})
		return
	}
	if price <= 0 {
		f.logger.Debug(ctx, "Non-positive price returned, skipping cycle", map[string]interface{}{"symbol": symbol})
		return
	}

	tick := domain.PriceTick{Symbol: symbol, Price: price, ObservedAt: f.now().UTC()}
	metrics.TicksProcessed.WithLabelValues(symbol).Inc()
	f.publish(tick)
}

// publish delivers the tick to every subscriber without blocking. A full
// subscriber buffer means that subscriber misses this tick.
func (f *Feed) publish(tick domain.PriceTick) {
	f.mu.Lock()
	subs := f.subs
	f.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- tick:
		default:
		}
	}
}

func (f *Feed) closeSubscribers() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs {
		close(ch)
	}
	f.subs = nil
}
