// Package notify delivers order confirmations over HTTP, Kafka or RabbitMQ.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/ashendes/checkout-engine/internal/models"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// EventOrderConfirmation is the event type and routing key for confirmations.
const EventOrderConfirmation = "order.confirmation"

// MailerError is a delivery failure reported by the confirmation channel
// itself: a rejected request, an open circuit or a broker-side error.
type MailerError struct {
	Channel    string
	StatusCode int
	Err        error
}

func (e *MailerError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s mailer: status %d: %v", e.Channel, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s mailer: %v", e.Channel, e.Err)
}

func (e *MailerError) Unwrap() error { return e.Err }

// NewConfirmation builds the payload for customer and orderID.
func NewConfirmation(customer models.Customer, orderID string) models.OrderConfirmation {
	return models.OrderConfirmation{
		CustomerID: customer.ID,
		Email:      customer.Email,
		Name:       customer.FullName(),
		OrderID:    orderID,
	}
}

// Event is the envelope published to brokers.
type Event struct {
	ID         string                   `json:"id"`
	Type       string                   `json:"type"`
	OccurredAt time.Time                `json:"occurred_at"`
	Data       models.OrderConfirmation `json:"data"`
}

func newEvent(customer models.Customer, orderID string) Event {
	return Event{
		ID:         uuid.New().String(),
		Type:       EventOrderConfirmation,
		OccurredAt: time.Now().UTC(),
		Data:       NewConfirmation(customer, orderID),
	}
}

// LogNotifier only logs the confirmation. It is the default when no
// delivery channel is configured.
type LogNotifier struct {
	Logger log.FieldLogger
}

func (n LogNotifier) Send(_ context.Context, customer models.Customer, orderID string) error {
	logger := n.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}
	logger.WithFields(log.Fields{
		"customer_id": customer.ID,
		"order_id":    orderID,
		"name":        customer.FullName(),
	}).Info("Order confirmation")
	return nil
}
