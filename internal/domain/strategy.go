package domain

import (
	"fmt"
	"time"
)

// TriggerMode is the policy governing when an agent requests a new decision.
type TriggerMode string

const (
	// TriggerRealtime fires on price movement beyond a threshold.
	TriggerRealtime TriggerMode = "realtime"
	// TriggerInterval fires on elapsed time since the last trigger.
	TriggerInterval TriggerMode = "interval"
	// TriggerTickBatch fires once every N observed ticks.
	TriggerTickBatch TriggerMode = "tick_batch"
)

// AgentStrategyConfig holds the trigger settings for one trading agent.
// It is edited by the administrative surface and read-only inside the
// coordinator, except for LastTriggerAt which the coordinator owns.
type AgentStrategyConfig struct {
	AgentID           int64
	TriggerMode       TriggerMode
	PriceThresholdPct float64 // realtime: minimum price move as a fraction (0.01 = 1%)
	IntervalSeconds   int     // interval: seconds between triggers
	TickBatchSize     int     // tick_batch: ticks between triggers
	Enabled           bool
	LastTriggerAt     time.Time
}

// Validate rejects unrecognized or out-of-range settings. This runs at the
// configuration boundary; the coordinator assumes configs are valid.
func (c *AgentStrategyConfig) Validate() error {
	if c.AgentID <= 0 {
		return fmt.Errorf("agent ID must be positive, got %d", c.AgentID)
	}
	switch c.TriggerMode {
	case TriggerRealtime:
		if c.PriceThresholdPct <= 0 {
			return fmt.Errorf("price threshold must be positive for realtime mode, got %v", c.PriceThresholdPct)
		}
	case TriggerInterval:
		if c.IntervalSeconds <= 0 {
			return fmt.Errorf("interval seconds must be positive for interval mode, got %d", c.IntervalSeconds)
		}
	case TriggerTickBatch:
		if c.TickBatchSize <= 0 {
			return fmt.Errorf("tick batch size must be positive for tick_batch mode, got %d", c.TickBatchSize)
		}
	default:
		return fmt.Errorf("unrecognized trigger mode %q", c.TriggerMode)
	}
	return nil
}

// Interval returns the configured trigger interval as a duration.
func (c *AgentStrategyConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}
