// Package postgres persists inventory, back-orders and orders with pgx.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ashendes/checkout-engine/internal/checkout"
	"github.com/ashendes/checkout-engine/internal/inventory"
	"github.com/ashendes/checkout-engine/internal/models"
	"github.com/ashendes/checkout-engine/internal/store"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// maxTxAttempts bounds retries of a transaction aborted by a serialization
// failure or deadlock.
const maxTxAttempts = 3

// DB is a pgx-backed store.
type DB struct {
	pool *pgxpool.Pool
}

// New connects and pings the database.
func New(ctx context.Context, connString string) (*DB, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 2
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{pool: pool}, nil
}

func (db *DB) Close() {
	db.pool.Close()
}

func (db *DB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// Migrate creates the schema if it does not exist.
func (db *DB) Migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS inventory (
			id            TEXT PRIMARY KEY,
			name          TEXT NOT NULL,
			heading       TEXT NOT NULL DEFAULT '',
			description   TEXT NOT NULL DEFAULT '',
			pkg_info      TEXT NOT NULL DEFAULT '',
			image         TEXT NOT NULL DEFAULT '',
			price         NUMERIC(12,2) NOT NULL DEFAULT 0,
			cost          NUMERIC(12,2) NOT NULL DEFAULT 0,
			category      INTEGER NOT NULL DEFAULT 0,
			quantity      INTEGER NOT NULL,
			min_threshold INTEGER NOT NULL DEFAULT 0,
			max_threshold INTEGER NOT NULL DEFAULT 0,
			notes         TEXT NOT NULL DEFAULT '',
			is_public     BOOLEAN NOT NULL DEFAULT true
		)`,
		`CREATE TABLE IF NOT EXISTS back_orders (
			id           TEXT PRIMARY KEY,
			inventory_id TEXT NOT NULL UNIQUE REFERENCES inventory(id),
			quantity     INTEGER NOT NULL,
			status       TEXT NOT NULL,
			low_date     TIMESTAMP WITH TIME ZONE NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS orders (
			id              TEXT PRIMARY KEY,
			customer_id     TEXT NOT NULL,
			billing         JSONB NOT NULL,
			shipping        JSONB NOT NULL,
			payment         JSONB NOT NULL,
			shipping_method INTEGER NOT NULL DEFAULT 0,
			total           NUMERIC(14,2) NOT NULL,
			status          TEXT NOT NULL,
			created_at      TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_customer_id ON orders(customer_id)`,
		`CREATE TABLE IF NOT EXISTS order_items (
			order_id     TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
			line         INTEGER NOT NULL,
			inventory_id TEXT NOT NULL REFERENCES inventory(id),
			name         TEXT NOT NULL,
			quantity     INTEGER NOT NULL,
			price        NUMERIC(12,2) NOT NULL,
			PRIMARY KEY (order_id, line)
		)`,
	}

	for _, migration := range migrations {
		if _, err := db.pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("failed to run migration: %w", err)
		}
	}
	return nil
}

// WithinTx runs fn in a transaction, retrying it when Postgres aborts the
// transaction with a serialization failure or deadlock.
func (db *DB) WithinTx(ctx context.Context, fn func(ctx context.Context, tx checkout.Tx) error) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = db.runTx(ctx, fn)
		if !retryable(err) {
			return err
		}
		log.WithFields(log.Fields{
			"attempt": attempt,
			"error":   err.Error(),
		}).Warn("Retrying aborted transaction")
	}
	return err
}

func (db *DB) runTx(ctx context.Context, fn func(ctx context.Context, tx checkout.Tx) error) error {
	pgTx, err := db.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = pgTx.Rollback(ctx) }()

	if err := fn(ctx, &tx{q: pgTx}); err != nil {
		return err
	}
	if err := pgTx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func retryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	// serialization_failure, deadlock_detected
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

// PutInventory upserts catalog records.
func (db *DB) PutInventory(ctx context.Context, items ...models.Inventory) error {
	batch := &pgx.Batch{}
	for _, inv := range items {
		if inv.ID == "" {
			return inventory.ErrInvalidItem
		}
		batch.Queue(`INSERT INTO inventory (id, name, heading, description, pkg_info, image, price, cost,
				category, quantity, min_threshold, max_threshold, notes, is_public)
			VALUES ($1, $2, $3, $4, $5, $6, $7::text::numeric, $8::text::numeric, $9, $10, $11, $12, $13, $14)
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name, heading = EXCLUDED.heading, description = EXCLUDED.description,
				pkg_info = EXCLUDED.pkg_info, image = EXCLUDED.image, price = EXCLUDED.price,
				cost = EXCLUDED.cost, category = EXCLUDED.category, quantity = EXCLUDED.quantity,
				min_threshold = EXCLUDED.min_threshold, max_threshold = EXCLUDED.max_threshold,
				notes = EXCLUDED.notes, is_public = EXCLUDED.is_public`,
			inv.ID, inv.Name, inv.Heading, inv.Description, inv.PkgInfo, inv.Image,
			inv.Price.String(), inv.Cost.String(), inv.Category, inv.Quantity,
			inv.MinThreshold, inv.MaxThreshold, inv.Notes, inv.IsPublic)
	}
	if err := db.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("put inventory: %w", err)
	}
	return nil
}

func (db *DB) Inventory(ctx context.Context, id string) (*models.Inventory, error) {
	inv, err := scanInventory(db.pool.QueryRow(ctx, selectInventory+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("inventory %s: %w", id, inventory.ErrInventoryNotFound)
	}
	return inv, err
}

func (db *DB) ListInventory(ctx context.Context) ([]models.Inventory, error) {
	rows, err := db.pool.Query(ctx, selectInventory+` ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list inventory: %w", err)
	}
	defer rows.Close()

	items := []models.Inventory{}
	for rows.Next() {
		inv, err := scanInventory(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *inv)
	}
	return items, rows.Err()
}

func (db *DB) BackOrder(ctx context.Context, inventoryID string) (*models.BackOrder, error) {
	bo, err := scanBackOrder(db.pool.QueryRow(ctx, selectBackOrder+` WHERE inventory_id = $1`, inventoryID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("back-order for %s: %w", inventoryID, store.ErrBackOrderNotFound)
	}
	return bo, err
}

func (db *DB) Order(ctx context.Context, id string) (*models.Order, error) {
	var (
		o                          models.Order
		billing, shipping, payment []byte
		total                      string
	)
	err := db.pool.QueryRow(ctx, `SELECT id, customer_id, billing, shipping, payment, shipping_method,
			total::text, status, created_at
		FROM orders WHERE id = $1`, id).
		Scan(&o.ID, &o.CustomerID, &billing, &shipping, &payment, &o.ShippingMethod, &total, &o.Status, &o.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("order %s: %w", id, store.ErrOrderNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get order %s: %w", id, err)
	}
	if o.Total, err = decimal.NewFromString(total); err != nil {
		return nil, fmt.Errorf("order %s total: %w", id, err)
	}
	for _, part := range []struct {
		data []byte
		into any
	}{{billing, &o.Billing}, {shipping, &o.Shipping}, {payment, &o.Payment}} {
		if err := json.Unmarshal(part.data, part.into); err != nil {
			return nil, fmt.Errorf("order %s: %w", id, err)
		}
	}

	rows, err := db.pool.Query(ctx, `SELECT inventory_id, name, quantity, price::text
		FROM order_items WHERE order_id = $1 ORDER BY line`, id)
	if err != nil {
		return nil, fmt.Errorf("get order items %s: %w", id, err)
	}
	defer rows.Close()

	o.Items = []models.OrderItem{}
	for rows.Next() {
		var (
			item  models.OrderItem
			price string
		)
		if err := rows.Scan(&item.InventoryID, &item.Name, &item.Quantity, &price); err != nil {
			return nil, err
		}
		if item.Price, err = decimal.NewFromString(price); err != nil {
			return nil, err
		}
		o.Items = append(o.Items, item)
	}
	return &o, rows.Err()
}

const selectInventory = `SELECT id, name, heading, description, pkg_info, image, price::text, cost::text,
	category, quantity, min_threshold, max_threshold, notes, is_public FROM inventory`

const selectBackOrder = `SELECT id, inventory_id, quantity, status, low_date FROM back_orders`

func scanInventory(row pgx.Row) (*models.Inventory, error) {
	var (
		inv         models.Inventory
		price, cost string
	)
	err := row.Scan(&inv.ID, &inv.Name, &inv.Heading, &inv.Description, &inv.PkgInfo, &inv.Image,
		&price, &cost, &inv.Category, &inv.Quantity, &inv.MinThreshold, &inv.MaxThreshold, &inv.Notes, &inv.IsPublic)
	if err != nil {
		return nil, err
	}
	if inv.Price, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("inventory %s price: %w", inv.ID, err)
	}
	if inv.Cost, err = decimal.NewFromString(cost); err != nil {
		return nil, fmt.Errorf("inventory %s cost: %w", inv.ID, err)
	}
	return &inv, nil
}

func scanBackOrder(row pgx.Row) (*models.BackOrder, error) {
	var bo models.BackOrder
	if err := row.Scan(&bo.ID, &bo.InventoryID, &bo.Quantity, &bo.Status, &bo.LowDate); err != nil {
		return nil, err
	}
	return &bo, nil
}

// tx implements checkout.Tx over a pgx transaction. Reads lock the rows they
// return until commit.
type tx struct {
	q pgx.Tx
}

func (t *tx) FindInventory(ctx context.Context, id string) (*models.Inventory, error) {
	inv, err := scanInventory(t.q.QueryRow(ctx, selectInventory+` WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, inventory.ErrInventoryNotFound
	}
	return inv, err
}

func (t *tx) SaveInventory(ctx context.Context, inv *models.Inventory) error {
	tag, err := t.q.Exec(ctx, `UPDATE inventory SET quantity = $2 WHERE id = $1`, inv.ID, inv.Quantity)
	if err != nil {
		return fmt.Errorf("update inventory %s: %w", inv.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update inventory %s: %w", inv.ID, inventory.ErrInventoryNotFound)
	}
	return nil
}

func (t *tx) FindBackOrder(ctx context.Context, inventoryID string) (*models.BackOrder, error) {
	bo, err := scanBackOrder(t.q.QueryRow(ctx, selectBackOrder+` WHERE inventory_id = $1 FOR UPDATE`, inventoryID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return bo, err
}

// SaveBackOrder upserts on inventory_id, so a concurrent insert for the same
// item merges into one row and bo.ID reflects the stored record.
func (t *tx) SaveBackOrder(ctx context.Context, bo *models.BackOrder) error {
	id := bo.ID
	if id == "" {
		id = uuid.New().String()
	}
	err := t.q.QueryRow(ctx, `INSERT INTO back_orders (id, inventory_id, quantity, status, low_date)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (inventory_id) DO UPDATE SET quantity = EXCLUDED.quantity, status = EXCLUDED.status
		RETURNING id`,
		id, bo.InventoryID, bo.Quantity, bo.Status, bo.LowDate).Scan(&bo.ID)
	if err != nil {
		return fmt.Errorf("save back-order for %s: %w", bo.InventoryID, err)
	}
	return nil
}

func (t *tx) CreateOrder(ctx context.Context, customerID string, info models.OrderInfo, items []models.CartLineItem) (*models.Order, error) {
	order := &models.Order{
		ID:             uuid.New().String(),
		CustomerID:     customerID,
		Billing:        info.Billing,
		Shipping:       info.Shipping,
		Payment:        info.Payment.Masked(),
		ShippingMethod: info.ShippingMethod,
		Items:          make([]models.OrderItem, 0, len(items)),
		Total:          decimal.Zero,
		Status:         models.OrderStatusOpen,
		CreatedAt:      time.Now().UTC(),
	}

	for _, item := range items {
		var (
			name  string
			price string
		)
		err := t.q.QueryRow(ctx, `SELECT name, price::text FROM inventory WHERE id = $1`, item.InventoryID).Scan(&name, &price)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("order item %s: %w", item.InventoryID, inventory.ErrInventoryNotFound)
		}
		if err != nil {
			return nil, fmt.Errorf("order item %s: %w", item.InventoryID, err)
		}
		unit, err := decimal.NewFromString(price)
		if err != nil {
			return nil, fmt.Errorf("order item %s price: %w", item.InventoryID, err)
		}
		order.Items = append(order.Items, models.OrderItem{InventoryID: item.InventoryID, Name: name, Quantity: item.Quantity, Price: unit})
		order.Total = order.Total.Add(unit.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}

	billing, err := json.Marshal(order.Billing)
	if err != nil {
		return nil, err
	}
	shipping, err := json.Marshal(order.Shipping)
	if err != nil {
		return nil, err
	}
	payment, err := json.Marshal(order.Payment)
	if err != nil {
		return nil, err
	}

	_, err = t.q.Exec(ctx, `INSERT INTO orders (id, customer_id, billing, shipping, payment, shipping_method, total, status, created_at)
		VALUES ($1, $2, $3::text::jsonb, $4::text::jsonb, $5::text::jsonb, $6, $7::text::numeric, $8, $9)`,
		order.ID, order.CustomerID, string(billing), string(shipping), string(payment),
		order.ShippingMethod, order.Total.String(), order.Status, order.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}

	for i, item := range order.Items {
		_, err := t.q.Exec(ctx, `INSERT INTO order_items (order_id, line, inventory_id, name, quantity, price)
			VALUES ($1, $2, $3, $4, $5, $6::text::numeric)`,
			order.ID, i, item.InventoryID, item.Name, item.Quantity, item.Price.String())
		if err != nil {
			return nil, fmt.Errorf("insert order item %s: %w", item.InventoryID, err)
		}
	}

	return order, nil
}
