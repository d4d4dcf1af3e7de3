// Package memory is an in-process persistence layer for development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ashendes/checkout-engine/internal/checkout"
	"github.com/ashendes/checkout-engine/internal/inventory"
	"github.com/ashendes/checkout-engine/internal/models"
	"github.com/ashendes/checkout-engine/internal/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type dataset struct {
	inventory  map[string]models.Inventory
	backOrders map[string]models.BackOrder // keyed by inventory ID
}

func newDataset() *dataset {
	return &dataset{
		inventory:  make(map[string]models.Inventory),
		backOrders: make(map[string]models.BackOrder),
	}
}

// clone copies the maps; records are values, so the copy is safe to modify.
func (d *dataset) clone() *dataset {
	c := &dataset{
		inventory:  make(map[string]models.Inventory, len(d.inventory)),
		backOrders: make(map[string]models.BackOrder, len(d.backOrders)),
	}
	for k, v := range d.inventory {
		c.inventory[k] = v
	}
	for k, v := range d.backOrders {
		c.backOrders[k] = v
	}
	return c
}

// Store keeps inventory, back-orders and orders in maps. Transactions are
// serialized and work on a private copy of stock and back-orders that
// replaces the live data on commit. Orders are append-only, so a transaction
// buffers the ones it creates and they are added on commit.
type Store struct {
	txMu   sync.Mutex
	mu     sync.RWMutex
	data   *dataset
	orders map[string]models.Order
	newID  func() string
	now    func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithIDGenerator sets the generator for order and back-order IDs.
func WithIDGenerator(f func() string) Option {
	return func(s *Store) { s.newID = f }
}

// WithClock sets the clock used for order timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(opts ...Option) *Store {
	s := &Store{
		data:   newDataset(),
		orders: make(map[string]models.Order),
		newID:  func() string { return uuid.New().String() },
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithinTx runs fn against a snapshot and publishes it only if fn succeeds.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx checkout.Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	work := s.data.clone()
	s.mu.RUnlock()

	t := &tx{data: work, store: s}
	if err := fn(ctx, t); err != nil {
		return err
	}

	s.mu.Lock()
	s.data = work
	for _, o := range t.orders {
		s.orders[o.ID] = o
	}
	s.mu.Unlock()
	return nil
}

// PutInventory inserts or replaces catalog records.
func (s *Store) PutInventory(_ context.Context, items ...models.Inventory) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range items {
		if item.ID == "" {
			return inventory.ErrInvalidItem
		}
		s.data.inventory[item.ID] = item
	}
	return nil
}

func (s *Store) Inventory(_ context.Context, id string) (*models.Inventory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inv, ok := s.data.inventory[id]
	if !ok {
		return nil, fmt.Errorf("inventory %s: %w", id, inventory.ErrInventoryNotFound)
	}
	return &inv, nil
}

func (s *Store) ListInventory(_ context.Context) ([]models.Inventory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]models.Inventory, 0, len(s.data.inventory))
	for _, inv := range s.data.inventory {
		items = append(items, inv)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (s *Store) BackOrder(_ context.Context, inventoryID string) (*models.BackOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bo, ok := s.data.backOrders[inventoryID]
	if !ok {
		return nil, fmt.Errorf("back-order for %s: %w", inventoryID, store.ErrBackOrderNotFound)
	}
	return &bo, nil
}

func (s *Store) Order(_ context.Context, id string) (*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", id, store.ErrOrderNotFound)
	}
	return &o, nil
}

func (s *Store) Ping(context.Context) error { return nil }

// tx is the transaction-scoped view handed to WithinTx callbacks.
type tx struct {
	data   *dataset
	orders []models.Order
	store  *Store
}

func (t *tx) FindInventory(_ context.Context, id string) (*models.Inventory, error) {
	inv, ok := t.data.inventory[id]
	if !ok {
		return nil, inventory.ErrInventoryNotFound
	}
	return &inv, nil
}

func (t *tx) SaveInventory(_ context.Context, inv *models.Inventory) error {
	if _, ok := t.data.inventory[inv.ID]; !ok {
		return fmt.Errorf("save inventory %s: %w", inv.ID, inventory.ErrInventoryNotFound)
	}
	t.data.inventory[inv.ID] = *inv
	return nil
}

func (t *tx) FindBackOrder(_ context.Context, inventoryID string) (*models.BackOrder, error) {
	bo, ok := t.data.backOrders[inventoryID]
	if !ok {
		return nil, nil
	}
	return &bo, nil
}

func (t *tx) SaveBackOrder(_ context.Context, bo *models.BackOrder) error {
	if existing, ok := t.data.backOrders[bo.InventoryID]; ok {
		bo.ID = existing.ID
	} else if bo.ID == "" {
		bo.ID = t.store.newID()
	}
	t.data.backOrders[bo.InventoryID] = *bo
	return nil
}

func (t *tx) CreateOrder(_ context.Context, customerID string, info models.OrderInfo, items []models.CartLineItem) (*models.Order, error) {
	order := models.Order{
		ID:             t.store.newID(),
		CustomerID:     customerID,
		Billing:        info.Billing,
		Shipping:       info.Shipping,
		Payment:        info.Payment.Masked(),
		ShippingMethod: info.ShippingMethod,
		Items:          make([]models.OrderItem, 0, len(items)),
		Total:          decimal.Zero,
		Status:         models.OrderStatusOpen,
		CreatedAt:      t.store.now().UTC(),
	}
	for _, item := range items {
		inv, ok := t.data.inventory[item.InventoryID]
		if !ok {
			return nil, fmt.Errorf("order item %s: %w", item.InventoryID, inventory.ErrInventoryNotFound)
		}
		order.Items = append(order.Items, models.OrderItem{
			InventoryID: inv.ID,
			Name:        inv.Name,
			Quantity:    item.Quantity,
			Price:       inv.Price,
		})
		order.Total = order.Total.Add(inv.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	t.orders = append(t.orders, order)
	return &order, nil
}
