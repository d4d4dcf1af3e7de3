package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ashendes/checkout-engine/internal/models"
	"github.com/segmentio/kafka-go"
)

// MessageWriter is the subset of *kafka.Writer the notifier uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier publishes confirmation events keyed by order ID.
type KafkaNotifier struct {
	writer MessageWriter
}

// ParseBrokers splits a comma separated broker list, dropping blanks.
func ParseBrokers(csv string) []string {
	brokers := []string{}
	for _, b := range strings.Split(csv, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// NewKafkaWriter returns a writer for topic that hashes keys to partitions.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}
}

func NewKafkaNotifier(writer MessageWriter) *KafkaNotifier {
	return &KafkaNotifier{writer: writer}
}

// Send publishes one event. Broker error codes are reported as *MailerError.
func (n *KafkaNotifier) Send(ctx context.Context, customer models.Customer, orderID string) error {
	data, err := json.Marshal(newEvent(customer, orderID))
	if err != nil {
		return fmt.Errorf("marshal confirmation: %w", err)
	}

	err = n.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(orderID),
		Value: data,
		Time:  time.Now().UTC(),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(EventOrderConfirmation)},
		},
	})
	if err == nil {
		return nil
	}

	var kerr kafka.Error
	var werr kafka.WriteErrors
	if errors.As(err, &kerr) || errors.As(err, &werr) {
		return &MailerError{Channel: "kafka", Err: err}
	}
	return fmt.Errorf("publish confirmation: %w", err)
}

func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}
