package models

// AddCartItemResponse is returned after adding to a cart
type AddCartItemResponse struct {
	SessionID string         `json:"session_id"`
	Items     []CartLineItem `json:"items"`
}

// SessionResponse describes a session and its cart
type SessionResponse struct {
	SessionID   string         `json:"session_id"`
	Customer    *Customer      `json:"customer,omitempty"`
	OrderInfo   *OrderInfo     `json:"order_info,omitempty"`
	LastOrderID string         `json:"last_order_id,omitempty"`
	Cart        []CartLineItem `json:"cart"`
}

// ReconciliationView summarizes one line item's stock effect
type ReconciliationView struct {
	InventoryID       string `json:"inventory_id"`
	Ordered           int    `json:"ordered"`
	NewQuantity       int    `json:"new_quantity"`
	Unfilled          int    `json:"unfilled"`
	Result            string `json:"result"`
	BackOrderID       string `json:"back_order_id,omitempty"`
	BackOrderQuantity int    `json:"back_order_quantity,omitempty"`
}

// NotificationView reports the confirmation outcome
type NotificationView struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// CheckoutResponse is returned by a completed checkout
type CheckoutResponse struct {
	Outcome         string               `json:"outcome"`
	OrderID         string               `json:"order_id"`
	Notification    NotificationView     `json:"notification"`
	Reconciliations []ReconciliationView `json:"reconciliations"`
	Warning         string               `json:"warning,omitempty"`
}
