// Package session keeps per-shopper state and carts between requests.
package session

import (
	"context"

	"github.com/ashendes/checkout-engine/internal/checkout"
	"github.com/ashendes/checkout-engine/internal/models"
)

// State is what a session remembers apart from its cart.
type State struct {
	Customer    *models.Customer  `json:"customer,omitempty"`
	OrderInfo   *models.OrderInfo `json:"order_info,omitempty"`
	LastOrderID string            `json:"last_order_id,omitempty"`
}

// Cart is a session cart that can also be added to.
type Cart interface {
	checkout.Cart
	AddItem(ctx context.Context, item models.CartLineItem) error
}

// Store loads and saves session state. Load returns a zero State for an
// unknown session.
type Store interface {
	Load(ctx context.Context, id string) (State, error)
	Save(ctx context.Context, id string, st State) error
	Cart(id string) Cart
	Ping(ctx context.Context) error
}

// CheckoutSession binds st and its cart into the value the orchestrator works on.
func (st State) CheckoutSession(id string, cart checkout.Cart) *checkout.Session {
	return &checkout.Session{
		ID:          id,
		Customer:    st.Customer,
		OrderInfo:   st.OrderInfo,
		Cart:        cart,
		LastOrderID: st.LastOrderID,
	}
}

// FromCheckout reads the state back after a checkout.
func FromCheckout(s *checkout.Session) State {
	return State{
		Customer:    s.Customer,
		OrderInfo:   s.OrderInfo,
		LastOrderID: s.LastOrderID,
	}
}

// mergeItem adds item to items, summing quantities for a repeated inventory ID.
func mergeItem(items []models.CartLineItem, item models.CartLineItem) []models.CartLineItem {
	for i := range items {
		if items[i].InventoryID == item.InventoryID {
			items[i].Quantity += item.Quantity
			return items
		}
	}
	return append(items, item)
}
