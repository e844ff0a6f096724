package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"tradearena/internal/domain"
	"tradearena/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Repository implements ports.OrderRepository, ports.DecisionLogRepository
// and ports.StrategyRepository using SQLite.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/tradearena.db" // Default path
	}

	// Create data directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// WAL mode for better concurrency between the evaluation goroutines.
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// SQLite handles concurrency internally; the Go driver benefits from
	// limiting connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cfg.Logger.Info(context.Background(), "SQLite database connection established", map[string]interface{}{"path": dbPath})

	repo := &Repository{db: db, logger: cfg.Logger}

	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	return repo, nil
}

// initializeSchema creates tables if they don't exist.
// NOTE: This is a basic approach. A proper migration tool is recommended for production.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS orders (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		order_no TEXT NOT NULL UNIQUE,
		agent_id INTEGER NOT NULL,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		order_type TEXT NOT NULL,
		quantity REAL NOT NULL,
		limit_price REAL DEFAULT NULL,
		status TEXT NOT NULL,
		execution_price REAL DEFAULT NULL,
		filled_quantity REAL DEFAULT NULL,
		slippage REAL DEFAULT NULL,
		rejection_reason TEXT DEFAULT NULL,
		created_at TIMESTAMP NOT NULL,
		executed_at TIMESTAMP DEFAULT NULL
	);

	CREATE TABLE IF NOT EXISTS decision_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		agent_id INTEGER NOT NULL,
		symbol TEXT NOT NULL,
		operation TEXT NOT NULL,
		target_portion REAL NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		executed INTEGER NOT NULL DEFAULT 0,
		order_id INTEGER DEFAULT NULL,
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS agent_strategies (
		agent_id INTEGER PRIMARY KEY,
		trigger_mode TEXT NOT NULL,
		price_threshold_pct REAL NOT NULL DEFAULT 0,
		interval_seconds INTEGER NOT NULL DEFAULT 0,
		tick_batch_size INTEGER NOT NULL DEFAULT 0,
		enabled INTEGER NOT NULL DEFAULT 1,
		last_trigger_at TIMESTAMP DEFAULT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_orders_agent_created ON orders (agent_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_decision_log_agent_created ON decision_log (agent_id, created_at);
	`
	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// --- OrderRepository Implementation ---

// CreateOrder saves a new pending order and returns its assigned ID.
func (r *Repository) CreateOrder(ctx context.Context, order *domain.Order) (int64, error) {
	const query = `
	INSERT INTO orders (order_no, agent_id, symbol, side, order_type, quantity, limit_price, status, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	var limitPrice sql.NullFloat64
	if order.LimitPrice != nil {
		limitPrice = sql.NullFloat64{Float64: *order.LimitPrice, Valid: true}
	}

	result, err := r.db.ExecContext(ctx, query,
		order.OrderNo, order.AgentID, order.Symbol, order.Side, order.Type,
		order.Quantity, limitPrice, order.Status, order.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert order %s: %w", order.OrderNo, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for order %s: %w", order.OrderNo, err)
	}
	order.ID = id
	r.logger.Debug(ctx, "Order created", map[string]interface{}{"orderID": id, "orderNo": order.OrderNo})
	return id, nil
}

// UpdateOrderStatus writes the terminal status and simulation fields of an
// order. Only pending orders can transition; a terminal order never changes
// again, no matter what the caller asks for.
func (r *Repository) UpdateOrderStatus(ctx context.Context, order *domain.Order) error {
	const query = `
	UPDATE orders
	SET status = ?, execution_price = ?, filled_quantity = ?, slippage = ?,
	    rejection_reason = ?, executed_at = ?
	WHERE id = ? AND status = ?`

	var executedAt sql.NullTime
	if !order.ExecutedAt.IsZero() {
		executedAt = sql.NullTime{Time: order.ExecutedAt, Valid: true}
	}

	result, err := r.db.ExecContext(ctx, query,
		order.Status, order.ExecutionPrice, order.FilledQuantity, order.Slippage,
		order.RejectionReason, executedAt, order.ID, domain.StatusPending)
	if err != nil {
		return fmt.Errorf("failed to update order ID %d: %w", order.ID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for update order ID %d: %w", order.ID, err)
	}
	if rowsAffected == 0 {
		var current string
		err := r.db.QueryRowContext(ctx, `SELECT status FROM orders WHERE id = ?`, order.ID).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("order ID %d not found for update: %w", order.ID, ports.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to check status of order ID %d: %w", order.ID, err)
		}
		return fmt.Errorf("order ID %d is already %s, refusing transition to %s: %w",
			order.ID, current, order.Status, ports.ErrInvalidRequest)
	}
	r.logger.Debug(ctx, "Order updated", map[string]interface{}{"orderID": order.ID, "status": order.Status})
	return nil
}

// FindOrdersByAgent retrieves the most recent orders for an agent, up to a limit.
func (r *Repository) FindOrdersByAgent(ctx context.Context, agentID int64, limit int) ([]*domain.Order, error) {
	const query = `
	SELECT id, order_no, agent_id, symbol, side, order_type, quantity, limit_price, status,
	       COALESCE(execution_price, 0), COALESCE(filled_quantity, 0), COALESCE(slippage, 0),
	       COALESCE(rejection_reason, ''), created_at, executed_at
	FROM orders
	WHERE agent_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders for agent %d: %w", agentID, err)
	}
	defer rows.Close()

	orders := make([]*domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order during FindOrdersByAgent: %w", err)
		}
		orders = append(orders, order)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating order rows: %w", err)
	}
	return orders, nil
}

// CountTodayByAgent counts the orders created today for an agent.
func (r *Repository) CountTodayByAgent(ctx context.Context, agentID int64) (int, error) {
	const query = `SELECT COUNT(*) FROM orders WHERE agent_id = ? AND date(created_at) = date('now')`
	var count int
	err := r.db.QueryRowContext(ctx, query, agentID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count orders today for agent %d: %w", agentID, err)
	}
	return count, nil
}

// --- DecisionLogRepository Implementation ---

// AppendDecision saves a new decision record and returns its assigned ID.
func (r *Repository) AppendDecision(ctx context.Context, rec *domain.DecisionRecord) (int64, error) {
	const query = `
	INSERT INTO decision_log (agent_id, symbol, operation, target_portion, reason, executed, order_id, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	var orderID sql.NullInt64
	if rec.OrderID != nil {
		orderID = sql.NullInt64{Int64: *rec.OrderID, Valid: true}
	}

	result, err := r.db.ExecContext(ctx, query,
		rec.AgentID, rec.Symbol, rec.Operation, rec.TargetPortion, rec.Reason,
		rec.Executed, orderID, rec.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert decision for agent %d: %w", rec.AgentID, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for decision (agent %d): %w", rec.AgentID, err)
	}
	rec.ID = id
	return id, nil
}

// FindDecisionsByAgent retrieves the most recent decisions for an agent.
func (r *Repository) FindDecisionsByAgent(ctx context.Context, agentID int64, limit int) ([]*domain.DecisionRecord, error) {
	const query = `
	SELECT id, agent_id, symbol, operation, target_portion, reason, executed, order_id, created_at
	FROM decision_log
	WHERE agent_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query decisions for agent %d: %w", agentID, err)
	}
	defer rows.Close()

	records := make([]*domain.DecisionRecord, 0)
	for rows.Next() {
		rec, err := scanDecision(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan decision during FindDecisionsByAgent: %w", err)
		}
		records = append(records, rec)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating decision rows: %w", err)
	}
	return records, nil
}

// --- StrategyRepository Implementation ---

// ListStrategies retrieves all agent strategy configs.
func (r *Repository) ListStrategies(ctx context.Context) ([]*domain.AgentStrategyConfig, error) {
	const query = `
	SELECT agent_id, trigger_mode, price_threshold_pct, interval_seconds, tick_batch_size, enabled, last_trigger_at
	FROM agent_strategies
	ORDER BY agent_id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query agent strategies: %w", err)
	}
	defer rows.Close()

	configs := make([]*domain.AgentStrategyConfig, 0)
	for rows.Next() {
		cfg, err := scanStrategy(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan strategy during ListStrategies: %w", err)
		}
		configs = append(configs, cfg)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating strategy rows: %w", err)
	}
	return configs, nil
}

// UpsertStrategy creates or replaces the config for an agent.
func (r *Repository) UpsertStrategy(ctx context.Context, cfg *domain.AgentStrategyConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("refusing to store invalid strategy for agent %d: %w", cfg.AgentID, err)
	}

	const query = `
	INSERT INTO agent_strategies (agent_id, trigger_mode, price_threshold_pct, interval_seconds, tick_batch_size, enabled, last_trigger_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(agent_id) DO UPDATE SET
		trigger_mode = excluded.trigger_mode,
		price_threshold_pct = excluded.price_threshold_pct,
		interval_seconds = excluded.interval_seconds,
		tick_batch_size = excluded.tick_batch_size,
		enabled = excluded.enabled`

	var lastTrigger sql.NullTime
	if !cfg.LastTriggerAt.IsZero() {
		lastTrigger = sql.NullTime{Time: cfg.LastTriggerAt, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query,
		cfg.AgentID, cfg.TriggerMode, cfg.PriceThresholdPct, cfg.IntervalSeconds,
		cfg.TickBatchSize, cfg.Enabled, lastTrigger)
	if err != nil {
		return fmt.Errorf("failed to upsert strategy for agent %d: %w", cfg.AgentID, err)
	}
	r.logger.Debug(ctx, "Strategy upserted", map[string]interface{}{"agentID": cfg.AgentID, "mode": cfg.TriggerMode})
	return nil
}

// SetLastTrigger records when the agent last fired.
func (r *Repository) SetLastTrigger(ctx context.Context, agentID int64, when time.Time) error {
	const query = `UPDATE agent_strategies SET last_trigger_at = ? WHERE agent_id = ?`
	result, err := r.db.ExecContext(ctx, query, when, agentID)
	if err != nil {
		return fmt.Errorf("failed to set last trigger for agent %d: %w", agentID, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for agent %d: %w", agentID, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("agent %d has no stored strategy: %w", agentID, ports.ErrNotFound)
	}
	return nil
}

// --- Helper Scan Functions ---

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanOrder scans a row into a domain.Order struct.
func scanOrder(s scanner) (*domain.Order, error) {
	o := &domain.Order{}
	var side, orderType, status string
	var limitPrice sql.NullFloat64
	var executedAt sql.NullTime
	err := s.Scan(
		&o.ID, &o.OrderNo, &o.AgentID, &o.Symbol, &side, &orderType, &o.Quantity,
		&limitPrice, &status, &o.ExecutionPrice, &o.FilledQuantity, &o.Slippage,
		&o.RejectionReason, &o.CreatedAt, &executedAt)
	if err != nil {
		return nil, err // Handle sql.ErrNoRows in the caller
	}
	if limitPrice.Valid {
		lp := limitPrice.Float64
		o.LimitPrice = &lp
	}
	if executedAt.Valid {
		o.ExecutedAt = executedAt.Time
	}
	o.Side = domain.OrderSide(side)
	o.Type = domain.OrderType(orderType)
	o.Status = domain.OrderStatus(status)
	return o, nil
}

// scanDecision scans a row into a domain.DecisionRecord struct.
func scanDecision(s scanner) (*domain.DecisionRecord, error) {
	rec := &domain.DecisionRecord{}
	var orderID sql.NullInt64
	err := s.Scan(
		&rec.ID, &rec.AgentID, &rec.Symbol, &rec.Operation, &rec.TargetPortion,
		&rec.Reason, &rec.Executed, &orderID, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	if orderID.Valid {
		id := orderID.Int64
		rec.OrderID = &id
	}
	return rec, nil
}

// scanStrategy scans a row into a domain.AgentStrategyConfig struct.
func scanStrategy(s scanner) (*domain.AgentStrategyConfig, error) {
	cfg := &domain.AgentStrategyConfig{}
	var mode string
	var lastTrigger sql.NullTime
	err := s.Scan(
		&cfg.AgentID, &mode, &cfg.PriceThresholdPct, &cfg.IntervalSeconds,
		&cfg.TickBatchSize, &cfg.Enabled, &lastTrigger)
	if err != nil {
		return nil, err
	}
	if lastTrigger.Valid {
		cfg.LastTriggerAt = lastTrigger.Time
	}
	cfg.TriggerMode = domain.TriggerMode(mode)
	return cfg, nil
}
