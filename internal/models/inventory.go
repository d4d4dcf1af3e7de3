package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Inventory represents one stocked catalog item.
// Quantity has no lower bound: a negative value is the amount oversold.
type Inventory struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Heading      string          `json:"heading,omitempty"`
	Description  string          `json:"description,omitempty"`
	PkgInfo      string          `json:"pkg_info,omitempty"`
	Image        string          `json:"image,omitempty"`
	Price        decimal.Decimal `json:"price"`
	Cost         decimal.Decimal `json:"cost"`
	Category     int             `json:"category"`
	Quantity     int             `json:"quantity"`
	MinThreshold int             `json:"min_threshold"`
	MaxThreshold int             `json:"max_threshold"`
	Notes        string          `json:"notes,omitempty"`
	IsPublic     bool            `json:"is_public"`
}

// BackOrder tracks cumulative unfilled demand for a single inventory item.
type BackOrder struct {
	ID          string    `json:"id"`
	InventoryID string    `json:"inventory_id"`
	Quantity    int       `json:"quantity"`
	Status      string    `json:"status"`
	LowDate     time.Time `json:"low_date"`
}

// BackOrder status labels
const (
	BackOrderStatusOrderStock = "Order Stock"
)

// NewBackOrder returns an unsaved back-order in the "Order Stock" state.
func NewBackOrder(inventoryID string, quantity int, lowDate time.Time) *BackOrder {
	return &BackOrder{
		InventoryID: inventoryID,
		Quantity:    quantity,
		Status:      BackOrderStatusOrderStock,
		LowDate:     lowDate,
	}
}
