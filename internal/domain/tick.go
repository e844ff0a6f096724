package domain

import "time"

// PriceTick is a single normalized price observation emitted by the price feed.
// Ticks are immutable once produced.
type PriceTick struct {
	Symbol     string    // Trading symbol (e.g., "BTCUSDT")
	Price      float64   // Last traded price
	ObservedAt time.Time // When the feed observed the price
}

// PriceSample is a retained tick held by the sampling pool. Samples are what
// the decision backend sees as recent price history.
type PriceSample struct {
	Price      float64
	ObservedAt time.Time
}
