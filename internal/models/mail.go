package models

import "time"

// OrderConfirmation is the request body accepted by the mail service
type OrderConfirmation struct {
	CustomerID string `json:"customer_id" binding:"required"`
	Email      string `json:"email,omitempty"`
	Name       string `json:"name"`
	OrderID    string `json:"order_id" binding:"required"`
}

// MailRecord represents a confirmation mail accepted by the mail service
type MailRecord struct {
	ID         string    `json:"id"`
	OrderID    string    `json:"order_id"`
	CustomerID string    `json:"customer_id"`
	Recipient  string    `json:"recipient,omitempty"`
	Status     string    `json:"status"`
	Timestamp  time.Time `json:"timestamp"`
}

// MailStatus constants
const (
	MailStatusQueued = "queued"
	MailStatusFailed = "failed"
)

// MailResponse represents the mail service reply
type MailResponse struct {
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
}
