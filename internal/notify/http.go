package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/ashendes/checkout-engine/internal/models"
	"github.com/ashendes/checkout-engine/internal/patterns"
	"github.com/go-resty/resty/v2"
)

const confirmationPath = "/mail/order-confirmation"

// HTTPMailer posts confirmations to the mail service through a bulkhead and
// a circuit breaker.
type HTTPMailer struct {
	client   *resty.Client
	baseURL  string
	circuit  *patterns.CircuitBreakerWrapper
	bulkhead *patterns.Bulkhead
}

// NewHTTPMailer creates a mailer for the mail service at baseURL.
func NewHTTPMailer(baseURL string, circuit *patterns.CircuitBreakerWrapper, bulkhead *patterns.Bulkhead) *HTTPMailer {
	return &HTTPMailer{
		client: resty.New().
			SetTimeout(patterns.DefaultTimeout).
			SetRetryCount(0), // the circuit breaker decides, not resty
		baseURL:  baseURL,
		circuit:  circuit,
		bulkhead: bulkhead,
	}
}

// Circuit exposes the breaker for status endpoints.
func (m *HTTPMailer) Circuit() *patterns.CircuitBreakerWrapper {
	return m.circuit
}

// Send posts one confirmation. A non-2xx reply, an open circuit or a full
// bulkhead is a *MailerError; transport failures are returned as-is.
func (m *HTTPMailer) Send(ctx context.Context, customer models.Customer, orderID string) error {
	body := NewConfirmation(customer, orderID)

	err := m.bulkhead.Execute(ctx, func() error {
		_, cbErr := m.circuit.Execute(func() (interface{}, error) {
			resp, httpErr := m.client.R().
				SetContext(ctx).
				SetHeader("Content-Type", "application/json").
				SetBody(body).
				Post(m.baseURL + confirmationPath)

			if httpErr != nil {
				return nil, fmt.Errorf("HTTP error: %w", httpErr)
			}

			if resp.StatusCode() < http.StatusOK || resp.StatusCode() >= http.StatusMultipleChoices {
				return nil, &MailerError{
					Channel:    "http",
					StatusCode: resp.StatusCode(),
					Err:        fmt.Errorf("mail service rejected confirmation: %s", resp.String()),
				}
			}
			return resp, nil
		})

		return patterns.FormatError("Mail", cbErr)
	})

	if errors.Is(err, patterns.ErrCircuitOpen) || errors.Is(err, patterns.ErrBulkheadFull) {
		return &MailerError{Channel: "http", Err: err}
	}
	return err
}
