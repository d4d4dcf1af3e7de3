package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ashendes/checkout-engine/internal/inventory"
	"github.com/ashendes/checkout-engine/internal/metrics"
	"github.com/ashendes/checkout-engine/internal/models"
	"github.com/ashendes/checkout-engine/internal/notify"
	"github.com/ashendes/checkout-engine/internal/patterns"
	log "github.com/sirupsen/logrus"
)

var (
	ErrMissingCustomer  = errors.New("checkout: no customer in session")
	ErrMissingOrderInfo = errors.New("checkout: no order info in session")
	ErrMissingCart      = errors.New("checkout: no cart in session")
	ErrOrderCreation    = errors.New("checkout: order creation failed")
	ErrReconciliation   = errors.New("checkout: inventory reconciliation failed")
	ErrCartCleanup      = errors.New("checkout: emptying cart failed")
)

// NotificationStatus classifies the confirmation attempt.
type NotificationStatus string

const (
	NotificationSent             NotificationStatus = "sent"
	NotificationMailerFailed     NotificationStatus = "mailer_failed"
	NotificationUnexpectedFailed NotificationStatus = "unexpected_failed"
)

// NotificationOutcome records what happened to the confirmation. A failed
// notification never fails the checkout.
type NotificationOutcome struct {
	Status NotificationStatus `json:"status"`
	Err    error              `json:"-"`
}

// Failed reports whether the notification did not go out.
func (n NotificationOutcome) Failed() bool {
	return n.Status != NotificationSent
}

// Result is returned by a completed checkout.
type Result struct {
	Outcome         string                     `json:"outcome"`
	OrderID         string                     `json:"order_id"`
	Reconciliations []inventory.Reconciliation `json:"reconciliations"`
	Notification    NotificationOutcome        `json:"notification"`
}

// Orchestrator runs the checkout sequence against its collaborators.
type Orchestrator struct {
	repo          Repository
	notifier      Notifier
	reconciler    *inventory.Reconciler
	logger        log.FieldLogger
	notifyTimeout time.Duration
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithReconciler(r *inventory.Reconciler) Option {
	return func(o *Orchestrator) { o.reconciler = r }
}

func WithLogger(logger log.FieldLogger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithNotifyTimeout bounds the confirmation send. Zero means no bound.
func WithNotifyTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.notifyTimeout = d }
}

func NewOrchestrator(repo Repository, notifier Notifier, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		repo:     repo,
		notifier: notifier,
		logger:   log.StandardLogger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.reconciler == nil {
		o.reconciler = inventory.NewReconciler(inventory.WithLogger(o.logger))
	}
	return o
}

// CompleteCheckout places the session's order and reconciles stock for every
// cart item in one transaction, then sends the confirmation and clears the
// order info and cart.
//
// An error before commit means nothing was persisted. Once the transaction
// has committed the returned Result is always non-nil: a failed confirmation
// is reported in Result.Notification, and a failure to empty the cart is
// returned as ErrCartCleanup alongside the Result.
func (o *Orchestrator) CompleteCheckout(ctx context.Context, s *Session) (*Result, error) {
	if err := validate(s); err != nil {
		metrics.CheckoutsTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}

	logger := o.logger.WithFields(log.Fields{
		"session_id":  s.ID,
		"customer_id": s.Customer.ID,
	})

	items, err := s.Cart.Items(ctx)
	if err != nil {
		metrics.CheckoutsTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("read cart: %w", err)
	}

	var (
		order *models.Order
		recs  []inventory.Reconciliation
	)
	err = o.repo.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		// The closure may be retried by the repository, so start clean.
		recs = recs[:0]

		created, err := tx.CreateOrder(ctx, s.Customer.ID, *s.OrderInfo, items)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrOrderCreation, err)
		}
		order = created

		for _, item := range items {
			rec, err := o.reconciler.Reconcile(ctx, tx, item)
			if err != nil {
				return fmt.Errorf("%w: %w", ErrReconciliation, err)
			}
			recs = append(recs, rec)
		}
		return nil
	})
	if err != nil {
		metrics.CheckoutsTotal.WithLabelValues("failed").Inc()
		logger.WithError(err).Error("Checkout failed")
		return nil, err
	}

	// Committed: the remaining steps run even if the caller goes away.
	ctx = context.WithoutCancel(ctx)

	s.LastOrderID = order.ID
	logger = logger.WithField("order_id", order.ID)
	logger.WithFields(log.Fields{
		"items": len(items),
		"total": order.Total.String(),
	}).Info("Order placed")
	recordReconciliations(recs)

	result := &Result{
		Outcome:         models.OutcomeOrderDone,
		OrderID:         order.ID,
		Reconciliations: recs,
		Notification:    o.notify(ctx, logger, *s.Customer, order.ID),
	}

	s.OrderInfo = nil
	if err := o.emptyCart(ctx, s.Cart); err != nil {
		metrics.CheckoutsTotal.WithLabelValues("cleanup_failed").Inc()
		logger.WithError(err).Error("Failed to empty cart after checkout")
		return result, fmt.Errorf("%w: %w", ErrCartCleanup, err)
	}

	metrics.CheckoutsTotal.WithLabelValues("completed").Inc()
	return result, nil
}

func (o *Orchestrator) emptyCart(ctx context.Context, cart Cart) error {
	ctx, cancel := patterns.WithTimeout(ctx, patterns.DefaultTimeout)
	defer cancel()
	return cart.RemoveAllItems(ctx)
}

func validate(s *Session) error {
	switch {
	case s == nil || s.Customer == nil:
		return ErrMissingCustomer
	case s.OrderInfo == nil:
		return ErrMissingOrderInfo
	case s.Cart == nil:
		return ErrMissingCart
	}
	return nil
}

// notify sends the confirmation and classifies any failure. Panics are
// recovered and treated as unexpected failures.
func (o *Orchestrator) notify(ctx context.Context, logger log.FieldLogger, customer models.Customer, orderID string) (outcome NotificationOutcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = NotificationOutcome{
				Status: NotificationUnexpectedFailed,
				Err:    fmt.Errorf("notifier panic: %v", r),
			}
		}
		metrics.NotificationsTotal.WithLabelValues(string(outcome.Status)).Inc()
		if outcome.Err != nil {
			logger.WithError(outcome.Err).
				WithField("notification_status", outcome.Status).
				Warn("Order confirmation not sent")
		}
	}()

	ctx, cancel := patterns.WithTimeout(ctx, o.notifyTimeout)
	defer cancel()

	err := o.notifier.Send(ctx, customer, orderID)
	if err == nil {
		return NotificationOutcome{Status: NotificationSent}
	}

	var mailErr *notify.MailerError
	if errors.As(err, &mailErr) {
		return NotificationOutcome{Status: NotificationMailerFailed, Err: err}
	}
	return NotificationOutcome{Status: NotificationUnexpectedFailed, Err: err}
}

func recordReconciliations(recs []inventory.Reconciliation) {
	for _, rec := range recs {
		metrics.ReconciliationsTotal.WithLabelValues(rec.Result()).Inc()
		metrics.InventoryLevel.WithLabelValues(rec.InventoryID).Set(float64(rec.NewQuantity))
		if rec.BackOrder != nil {
			metrics.BackOrderUnfilledTotal.Add(float64(rec.Unfilled))
		}
	}
}
