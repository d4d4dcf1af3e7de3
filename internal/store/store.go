// Package store holds what the memory and Postgres persistence layers share.
package store

import (
	"context"
	"errors"

	"github.com/ashendes/checkout-engine/internal/models"
	"github.com/shopspring/decimal"
)

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrBackOrderNotFound = errors.New("back-order not found")
)

// Reader serves the read-only lookups behind the HTTP API.
type Reader interface {
	// Inventory returns inventory.ErrInventoryNotFound when absent.
	Inventory(ctx context.Context, id string) (*models.Inventory, error)
	ListInventory(ctx context.Context) ([]models.Inventory, error)
	BackOrder(ctx context.Context, inventoryID string) (*models.BackOrder, error)
	Order(ctx context.Context, id string) (*models.Order, error)
	Ping(ctx context.Context) error
}

// Seeder loads catalog records, replacing existing ones with the same ID.
type Seeder interface {
	PutInventory(ctx context.Context, items ...models.Inventory) error
}

// SampleCatalog is the demo catalog loaded when SEED_CATALOG is set.
func SampleCatalog() []models.Inventory {
	item := func(id, name, price string, quantity, minThreshold int) models.Inventory {
		return models.Inventory{
			ID:           id,
			Name:         name,
			Price:        decimal.RequireFromString(price),
			Cost:         decimal.RequireFromString(price).Mul(decimal.NewFromFloat(0.6)).Round(2),
			Quantity:     quantity,
			MinThreshold: minThreshold,
			MaxThreshold: minThreshold * 4,
			IsPublic:     true,
		}
	}
	return []models.Inventory{
		item("item-1", "Laptop", "999.99", 100, 10),
		item("item-2", "Mouse", "29.99", 500, 50),
		item("item-3", "Keyboard", "79.99", 300, 30),
		item("item-4", "Monitor", "299.99", 150, 20),
		item("item-5", "Headphones", "149.99", 20, 25),
	}
}
