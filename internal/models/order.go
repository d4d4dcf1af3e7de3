package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// CartLineItem is one entry of a session cart: an inventory ID and the ordered quantity.
type CartLineItem struct {
	InventoryID string `json:"inventory_id" binding:"required"`
	Quantity    int    `json:"quantity" binding:"required,gt=0"`
}

// OrderItem is a line item captured on an order, with the unit price at checkout time.
type OrderItem struct {
	InventoryID string          `json:"inventory_id"`
	Name        string          `json:"name"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
}

// Address holds a billing or shipping contact.
type Address struct {
	Name  string `json:"name" binding:"required"`
	Addr1 string `json:"addr1" binding:"required"`
	Addr2 string `json:"addr2"`
	City  string `json:"city" binding:"required"`
	State string `json:"state" binding:"required"`
	Zip   string `json:"zip" binding:"required"`
	Phone string `json:"phone" binding:"required"`
}

// PaymentInfo holds the card details entered on the order form.
type PaymentInfo struct {
	CardName    string `json:"card_name" binding:"required"`
	CardNumber  string `json:"card_number" binding:"required"`
	ExpireMonth string `json:"expire_month" binding:"required"`
	ExpireYear  string `json:"expire_year" binding:"required"`
	CardHolder  string `json:"card_holder" binding:"required"`
}

// Masked returns a copy with all but the last four card digits replaced.
func (p PaymentInfo) Masked() PaymentInfo {
	digits := strings.ReplaceAll(p.CardNumber, " ", "")
	if len(digits) > 4 {
		p.CardNumber = strings.Repeat("*", len(digits)-4) + digits[len(digits)-4:]
	}
	return p
}

// OrderInfo is the billing/shipping/payment form pending for a session.
type OrderInfo struct {
	Billing        Address     `json:"billing" binding:"required"`
	Shipping       Address     `json:"shipping" binding:"required"`
	Payment        PaymentInfo `json:"payment" binding:"required"`
	ShippingMethod int         `json:"shipping_method" binding:"gte=0"`
}

// Customer represents the signed-in shopper.
type Customer struct {
	ID        string `json:"id" binding:"required"`
	FirstName string `json:"first_name" binding:"required"`
	LastName  string `json:"last_name" binding:"required"`
	Email     string `json:"email,omitempty" binding:"omitempty,email"`
	Addr1     string `json:"addr1"`
	Addr2     string `json:"addr2"`
	City      string `json:"city"`
	State     string `json:"state"`
	Zip       string `json:"zip"`
	Phone     string `json:"phone"`
}

// FullName returns "First Last".
func (c Customer) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// Order represents a placed customer order
type Order struct {
	ID             string          `json:"id"`
	CustomerID     string          `json:"customer_id"`
	Billing        Address         `json:"billing"`
	Shipping       Address         `json:"shipping"`
	Payment        PaymentInfo     `json:"payment"`
	ShippingMethod int             `json:"shipping_method"`
	Items          []OrderItem     `json:"items"`
	Total          decimal.Decimal `json:"total"`
	Status         string          `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
}

// OrderStatus constants
const (
	OrderStatusOpen = "open"
)

// OutcomeOrderDone is the navigation outcome returned by a completed checkout.
const OutcomeOrderDone = "orderdone"
