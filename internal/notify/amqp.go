package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ashendes/checkout-engine/internal/models"
	amqp "github.com/rabbitmq/amqp091-go"
)

// ExchangeType is the exchange kind declared for confirmations.
const ExchangeType = "topic"

// Publisher is the subset of *amqp.Channel the notifier uses.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPNotifier publishes confirmation events on a topic exchange.
type AMQPNotifier struct {
	ch       Publisher
	exchange string
}

// DialAMQP connects, opens a channel and declares a durable topic exchange.
func DialAMQP(url, exchange string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("could not connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("could not open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchange,     // name
		ExchangeType, // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("could not declare exchange: %w", err)
	}

	return conn, ch, nil
}

func NewAMQPNotifier(ch Publisher, exchange string) *AMQPNotifier {
	return &AMQPNotifier{ch: ch, exchange: exchange}
}

// Send publishes one persistent event with routing key "order.confirmation".
func (n *AMQPNotifier) Send(ctx context.Context, customer models.Customer, orderID string) error {
	event := newEvent(customer, orderID)
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("could not marshal confirmation: %w", err)
	}

	err = n.ch.PublishWithContext(ctx,
		n.exchange,             // exchange
		EventOrderConfirmation, // routing key
		false,                  // mandatory
		false,                  // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    event.ID,
			Timestamp:    event.OccurredAt,
			Type:         event.Type,
			Body:         body,
		},
	)
	if err == nil {
		return nil
	}

	var aerr *amqp.Error
	if errors.As(err, &aerr) || errors.Is(err, amqp.ErrClosed) {
		return &MailerError{Channel: "amqp", Err: err}
	}
	return fmt.Errorf("publish confirmation: %w", err)
}
