package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

var (
	// ErrNotFound is returned when a row does not exist (or is not visible to the owner)
	ErrNotFound = errors.New("record not found")
	// ErrProductNotFound is returned when stock is addressed through a product
	// the caller does not own
	ErrProductNotFound = errors.New("product not found")
	// ErrStatusConflict is returned when a conditional status write matched no row
	ErrStatusConflict = errors.New("status precondition failed")
)

// DB wraps the SQLite handle. SQLite allows one writer at a time, so the
// pool is capped at a single connection and transactions take the write
// lock up front (_txlock=immediate).
type DB struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewDB opens (and migrates) the SQLite database at path. path may be a
// plain file path or a "file:" URI that already carries query parameters.
func NewDB(path string, logger *zap.Logger) (*DB, error) {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	dsn := path + sep + "_journal_mode=WAL&_foreign_keys=1&_txlock=immediate&_busy_timeout=5000"

	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	d := &DB{db: db, logger: logger}
	if err := d.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite database ready", zap.String("path", path))
	return d, nil
}

func (d *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		price TEXT NOT NULL DEFAULT '0',
		status TEXT NOT NULL DEFAULT 'active',
		category_id TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		CHECK(status IN ('active', 'inactive'))
	);

	-- One row per product, created on the first movement
	CREATE TABLE IF NOT EXISTS stock_levels (
		product_id TEXT PRIMARY KEY,
		quantity INTEGER NOT NULL DEFAULT 0,
		updated_at DATETIME NOT NULL,
		CHECK(quantity >= 0)
	);

	-- Append-only; SUM(delta) per product equals stock_levels.quantity
	CREATE TABLE IF NOT EXISTS stock_movements (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		product_id TEXT NOT NULL,
		delta INTEGER NOT NULL,
		reason TEXT NOT NULL,
		order_id TEXT,
		quantity_before INTEGER NOT NULL,
		quantity_after INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		CHECK(delta <> 0),
		CHECK(reason IN ('sale', 'return', 'adjustment')),
		CHECK(quantity_after = quantity_before + delta),
		CHECK(quantity_after >= 0)
	);

	CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		total TEXT NOT NULL,
		status TEXT NOT NULL,
		notes TEXT,
		created_at DATETIME NOT NULL,
		CHECK(status IN ('pending', 'completed', 'cancelled'))
	);

	CREATE TABLE IF NOT EXISTS order_items (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL,
		product_id TEXT,
		product_name TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		price TEXT NOT NULL,
		subtotal TEXT NOT NULL,
		FOREIGN KEY (order_id) REFERENCES orders(id) ON DELETE CASCADE,
		FOREIGN KEY (product_id) REFERENCES products(id) ON DELETE SET NULL,
		CHECK(quantity > 0)
	);

	CREATE TABLE IF NOT EXISTS revenue_events (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		order_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_products_user_id ON products(user_id);
	CREATE INDEX IF NOT EXISTS idx_stock_movements_product_id ON stock_movements(product_id);
	CREATE INDEX IF NOT EXISTS idx_stock_movements_order_id ON stock_movements(order_id);
	CREATE INDEX IF NOT EXISTS idx_orders_user_created ON orders(user_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_order_items_order_id ON order_items(order_id);
	CREATE INDEX IF NOT EXISTS idx_revenue_events_order_id ON revenue_events(order_id);
	`

	_, err := d.db.Exec(schema)
	return err
}

// inTx runs fn inside a transaction, committing only if fn returns nil
func (d *DB) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Ping checks the database connection
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Conn exposes the underlying handle for read-only diagnostics and tests
func (d *DB) Conn() *sqlx.DB {
	return d.db
}

// Close closes the database connection
func (d *DB) Close() error {
	return d.db.Close()
}
