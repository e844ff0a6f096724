// simstats runs a batch of orders through the execution simulator and prints
// outcome statistics per order size. Useful for sanity-checking the fill,
// rejection, and slippage behavior before changing the simulation constants.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"text/tabwriter"
	"time"

	"tradearena/internal/adapters/logger"
	"tradearena/internal/domain"
	"tradearena/internal/simulator"
)

func main() {
	var (
		runs  = flag.Int("runs", 1000, "simulated orders per size bucket")
		price = flag.Float64("price", 50_000, "reference price used for every order")
		seed  = flag.Int64("seed", 0, "random seed (0 uses current time)")
	)
	flag.Parse()

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(*seed))

	quiet := logger.NewTextLogger(logger.LevelError)
	cfg := simulator.DefaultConfig()
	// No latency: the point here is outcome distribution, not timing.
	cfg.MinLatency = 0
	cfg.MaxLatency = 0

	engine, err := simulator.New(cfg, rng, quiet)
	if err != nil {
		log.Fatalf("failed to create simulator: %v", err)
	}

	notionals := []float64{100, 1_000, 9_999, 15_000, 50_000, 95_000, 150_000}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight|tabwriter.Debug)
	fmt.Fprintln(w, "Notional\tFilled\tPartial\tRejected\tAvgSlipBps\tEstMinBps\tEstMaxBps\t")

	ctx := context.Background()
	for _, notional := range notionals {
		var filled, partial, rejected int
		var slippageSum float64

		for i := 0; i < *runs; i++ {
			order := &domain.Order{
				OrderNo:  fmt.Sprintf("simstats-%d", i),
				Symbol:   "BTCUSDT",
				Side:     domain.Buy,
				Type:     domain.Market,
				Quantity: notional / *price,
			}
			result, err := engine.Simulate(ctx, order, *price)
			if err != nil {
				log.Fatalf("simulation failed: %v", err)
			}
			switch result.Status {
			case domain.StatusFilled:
				filled++
				slippageSum += result.Slippage
			case domain.StatusPartiallyFilled:
				partial++
				slippageSum += result.Slippage
			case domain.StatusRejected:
				rejected++
			}
		}

		avgSlipBps := 0.0
		if executed := filled + partial; executed > 0 {
			avgSlipBps = slippageSum / float64(executed) * 10_000
		}
		est := engine.EstimateSlippage(notional)

		fmt.Fprintf(w, "$%.0f\t%d\t%d\t%d\t%.2f\t%.1f\t%.1f\t\n",
			notional, filled, partial, rejected,
			avgSlipBps, est.MinPct*10_000, est.MaxPct*10_000)
	}
	w.Flush()

	fmt.Printf("\nruns per bucket: %d, price: $%.2f, seed: %d\n", *runs, *price, *seed)
}
