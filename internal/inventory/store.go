package inventory

import (
	"context"
	"errors"

	"github.com/ashendes/checkout-engine/internal/models"
)

var (
	// ErrInventoryNotFound is returned when a cart item references an unknown inventory ID.
	ErrInventoryNotFound = errors.New("inventory not found")
	// ErrInvalidItem is returned for a cart line item without an inventory ID.
	ErrInvalidItem = errors.New("cart line item has no inventory id")
)

// Store is the persistence a reconciliation reads and writes. Implementations
// passed to Reconcile are expected to be transaction scoped.
type Store interface {
	// FindInventory returns ErrInventoryNotFound (possibly wrapped) when absent.
	FindInventory(ctx context.Context, inventoryID string) (*models.Inventory, error)
	SaveInventory(ctx context.Context, inv *models.Inventory) error
	// FindBackOrder returns (nil, nil) when the item has no back-order.
	FindBackOrder(ctx context.Context, inventoryID string) (*models.BackOrder, error)
	// SaveBackOrder inserts or updates the item's back-order and assigns
	// bo.ID when it is empty.
	SaveBackOrder(ctx context.Context, bo *models.BackOrder) error
}
