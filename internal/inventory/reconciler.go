package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/ashendes/checkout-engine/internal/models"
	log "github.com/sirupsen/logrus"
)

// Reconciliation results, used as metric labels.
const (
	ResultNoBackOrder      = "no_back_order"
	ResultBackOrderCreated = "back_order_created"
	ResultBackOrderUpdated = "back_order_updated"
)

// Reconciliation describes the effect of one line item on stock and back-order state.
type Reconciliation struct {
	InventoryID string `json:"inventory_id"`
	Ordered     int    `json:"ordered"`
	Original    int    `json:"original_quantity"`
	NewQuantity int    `json:"new_quantity"`
	// Unfilled is the part of the order that exceeded the stock on hand.
	Unfilled         int               `json:"unfilled"`
	BelowThreshold   bool              `json:"below_threshold"`
	BackOrder        *models.BackOrder `json:"back_order,omitempty"`
	BackOrderCreated bool              `json:"back_order_created"`
}

// Result classifies the back-order effect.
func (r Reconciliation) Result() string {
	switch {
	case r.BackOrder == nil:
		return ResultNoBackOrder
	case r.BackOrderCreated:
		return ResultBackOrderCreated
	default:
		return ResultBackOrderUpdated
	}
}

// Unfilled returns the portion of ordered that exceeds original, never negative.
func Unfilled(original, ordered int) int {
	if ordered > original {
		return ordered - original
	}
	return 0
}

// Reconciler deducts ordered quantities from stock and keeps back-orders in step.
type Reconciler struct {
	now    func() time.Time
	logger log.FieldLogger
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithClock sets the clock used for back-order low dates.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger log.FieldLogger) Option {
	return func(r *Reconciler) { r.logger = logger }
}

func NewReconciler(opts ...Option) *Reconciler {
	r := &Reconciler{
		now:    time.Now,
		logger: log.StandardLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile applies one cart line item to the inventory record it references.
//
// The full ordered quantity is always deducted, so stock may go negative. When
// the new quantity is below the item's minimum threshold, the item's back-order
// is incremented by the unfilled quantity, or created with it if none exists.
// The call is not idempotent: every call deducts again.
func (r *Reconciler) Reconcile(ctx context.Context, store Store, item models.CartLineItem) (Reconciliation, error) {
	if item.InventoryID == "" {
		return Reconciliation{}, ErrInvalidItem
	}

	inv, err := store.FindInventory(ctx, item.InventoryID)
	if err != nil {
		return Reconciliation{}, fmt.Errorf("find inventory %s: %w", item.InventoryID, err)
	}

	rec := Reconciliation{
		InventoryID: inv.ID,
		Ordered:     item.Quantity,
		Original:    inv.Quantity,
		NewQuantity: inv.Quantity - item.Quantity,
		Unfilled:    Unfilled(inv.Quantity, item.Quantity),
	}

	inv.Quantity = rec.NewQuantity
	if err := store.SaveInventory(ctx, inv); err != nil {
		return Reconciliation{}, fmt.Errorf("save inventory %s: %w", inv.ID, err)
	}

	logger := r.logger.WithFields(log.Fields{
		"inventory_id": inv.ID,
		"ordered":      rec.Ordered,
		"new_quantity": rec.NewQuantity,
		"unfilled":     rec.Unfilled,
	})

	if rec.NewQuantity >= inv.MinThreshold {
		if rec.Unfilled > 0 {
			// Only reachable with a non-positive threshold.
			logger.WithField("min_threshold", inv.MinThreshold).
				Warn("Stock oversold without crossing minimum threshold; no back-order recorded")
		}
		return rec, nil
	}
	rec.BelowThreshold = true

	bo, err := store.FindBackOrder(ctx, inv.ID)
	if err != nil {
		return Reconciliation{}, fmt.Errorf("find back-order for %s: %w", inv.ID, err)
	}
	if bo != nil {
		bo.Quantity += rec.Unfilled
	} else {
		bo = models.NewBackOrder(inv.ID, rec.Unfilled, r.now())
		rec.BackOrderCreated = true
	}
	if err := store.SaveBackOrder(ctx, bo); err != nil {
		return Reconciliation{}, fmt.Errorf("save back-order for %s: %w", inv.ID, err)
	}
	rec.BackOrder = bo

	logger.WithFields(log.Fields{
		"back_order_id":       bo.ID,
		"back_order_quantity": bo.Quantity,
		"created":             rec.BackOrderCreated,
	}).Info("Back-order recorded")

	return rec, nil
}
