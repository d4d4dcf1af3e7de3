package checkout

import (
	"context"

	"github.com/ashendes/checkout-engine/internal/inventory"
	"github.com/ashendes/checkout-engine/internal/models"
)

// Cart is the session cart as seen by checkout.
type Cart interface {
	// Items returns the line items in insertion order.
	Items(ctx context.Context) ([]models.CartLineItem, error)
	RemoveAllItems(ctx context.Context) error
}

// OrderCreator persists a new order and returns it with an assigned ID.
type OrderCreator interface {
	CreateOrder(ctx context.Context, customerID string, info models.OrderInfo, items []models.CartLineItem) (*models.Order, error)
}

// Tx is the transactional view of persistence used for one checkout.
type Tx interface {
	inventory.Store
	OrderCreator
}

// Repository runs fn inside a transaction. The transaction commits when fn
// returns nil and rolls back otherwise. Implementations must serialize
// conflicting writers on the same inventory and back-order rows.
type Repository interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Notifier sends the order confirmation to the customer.
type Notifier interface {
	Send(ctx context.Context, customer models.Customer, orderID string) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, customer models.Customer, orderID string) error

func (f NotifierFunc) Send(ctx context.Context, customer models.Customer, orderID string) error {
	return f(ctx, customer, orderID)
}

// Session is the per-shopper state a checkout reads and updates. It is owned
// by one caller at a time.
type Session struct {
	ID          string
	Customer    *models.Customer
	OrderInfo   *models.OrderInfo
	Cart        Cart
	LastOrderID string
}
