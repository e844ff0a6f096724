// Package natsbus implements the event broadcaster over NATS. Dashboards and
// notifiers subscribe to the arena.> subject space; the trading loop never
// depends on anyone listening.
package natsbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"tradearena/internal/domain"
	"tradearena/internal/ports"
)

const (
	subjectTicks     = "arena.ticks.%s"     // per symbol
	subjectOrders    = "arena.orders.%d"    // per agent
	subjectDecisions = "arena.decisions.%d" // per agent
)

// Broadcaster implements ports.EventBroadcaster using a NATS connection.
type Broadcaster struct {
	conn   *nats.Conn
	logger ports.Logger
}

// Config holds configuration for the NATS broadcaster.
type Config struct {
	URL    string
	Logger ports.Logger
}

// New connects to the NATS server and returns a broadcaster. The connection
// reconnects indefinitely; events published while disconnected are buffered
// by the client up to its pending limit and dropped beyond it.
func New(cfg Config) (*Broadcaster, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for NATS broadcaster")
	}
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}

	conn, err := nats.Connect(cfg.URL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.URL, err)
	}

	cfg.Logger.Info(context.Background(), "NATS broadcaster connected", map[string]interface{}{"url": cfg.URL})
	return &Broadcaster{conn: conn, logger: cfg.Logger}, nil
}

// Close drains the connection, flushing buffered events.
func (b *Broadcaster) Close() {
	if b.conn != nil {
		if err := b.conn.Drain(); err != nil {
			b.logger.Warn(context.Background(), "Failed to drain NATS connection", map[string]interface{}{"error": err.Error()})
		}
	}
}

type tickEvent struct {
	Symbol     string    `json:"symbol"`
	Price      float64   `json:"price"`
	ObservedAt time.Time `json:"observedAt"`
}

type orderEvent struct {
	ID              int64   `json:"id"`
	OrderNo         string  `json:"orderNo"`
	AgentID         int64   `json:"agentId"`
	Symbol          string  `json:"symbol"`
	Side            string  `json:"side"`
	Type            string  `json:"type"`
	Quantity        float64 `json:"quantity"`
	Status          string  `json:"status"`
	ExecutionPrice  float64 `json:"executionPrice,omitempty"`
	FilledQuantity  float64 `json:"filledQuantity,omitempty"`
	Slippage        float64 `json:"slippage,omitempty"`
	RejectionReason string  `json:"rejectionReason,omitempty"`
}

type decisionEvent struct {
	AgentID       int64   `json:"agentId"`
	Symbol        string  `json:"symbol"`
	Operation     string  `json:"operation"`
	TargetPortion float64 `json:"targetPortion"`
	Reason        string  `json:"reason,omitempty"`
	Executed      bool    `json:"executed"`
	OrderID       *int64  `json:"orderId,omitempty"`
}

// PublishTick publishes a price tick on the symbol's subject.
func (b *Broadcaster) PublishTick(ctx context.Context, tick domain.PriceTick) error {
	subject := fmt.Sprintf(subjectTicks, tick.Symbol)
	return b.publish(subject, tickEvent{
		Symbol:     tick.Symbol,
		Price:      tick.Price,
		ObservedAt: tick.ObservedAt,
	})
}

// PublishOrder publishes an order outcome on the agent's subject.
func (b *Broadcaster) PublishOrder(ctx context.Context, order *domain.Order) error {
	subject := fmt.Sprintf(subjectOrders, order.AgentID)
	return b.publish(subject, orderEvent{
		ID:              order.ID,
		OrderNo:         order.OrderNo,
		AgentID:         order.AgentID,
		Symbol:          order.Symbol,
		Side:            string(order.Side),
		Type:            string(order.Type),
		Quantity:        order.Quantity,
		Status:          string(order.Status),
		ExecutionPrice:  order.ExecutionPrice,
		FilledQuantity:  order.FilledQuantity,
		Slippage:        order.Slippage,
		RejectionReason: order.RejectionReason,
	})
}

// PublishDecision publishes a decision record on the agent's subject.
func (b *Broadcaster) PublishDecision(ctx context.Context, rec *domain.DecisionRecord) error {
	subject := fmt.Sprintf(subjectDecisions, rec.AgentID)
	return b.publish(subject, decisionEvent{
		AgentID:       rec.AgentID,
		Symbol:        rec.Symbol,
		Operation:     rec.Operation,
		TargetPortion: rec.TargetPortion,
		Reason:        rec.Reason,
		Executed:      rec.Executed,
		OrderID:       rec.OrderID,
	})
}

func (b *Broadcaster) publish(subject string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event for %s: %w", subject, err)
	}
	if err := b.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w: %w", subject, ports.ErrPublishFailed, err)
	}
	return nil
}
