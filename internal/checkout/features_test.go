package checkout_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/ashendes/checkout-engine/internal/checkout"
	"github.com/ashendes/checkout-engine/internal/inventory"
	"github.com/ashendes/checkout-engine/internal/models"
	"github.com/ashendes/checkout-engine/internal/notify"
	"github.com/ashendes/checkout-engine/internal/session"
	"github.com/ashendes/checkout-engine/internal/store"
	"github.com/ashendes/checkout-engine/internal/store/memory"
	"github.com/cucumber/godog"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
)

type checkoutTestContext struct {
	store       *memory.Store
	sessions    *session.MemoryStore
	orch        *checkout.Orchestrator
	session     *checkout.Session
	notifierErr error
	sent        int
	originalBO  map[string]string
	result      *checkout.Result
	err         error
}

func (c *checkoutTestContext) reset() {
	logger, _ := test.NewNullLogger()
	c.store = memory.New()
	c.sessions = session.NewMemoryStore()
	c.notifierErr = nil
	c.sent = 0
	c.originalBO = map[string]string{}
	c.result = nil
	c.err = nil

	notifier := checkout.NotifierFunc(func(context.Context, models.Customer, string) error {
		c.sent++
		return c.notifierErr
	})
	reconciler := inventory.NewReconciler(inventory.WithLogger(logger))
	c.orch = checkout.NewOrchestrator(c.store, notifier, checkout.WithLogger(logger), checkout.WithReconciler(reconciler))
	c.session = nil
}

func (c *checkoutTestContext) aSignedInCustomerWithOrderDetails(customerID string) error {
	st := session.State{
		Customer:  &models.Customer{ID: customerID, FirstName: "Test", LastName: "Shopper"},
		OrderInfo: &models.OrderInfo{ShippingMethod: 1},
	}
	c.session = st.CheckoutSession("S-"+customerID, c.sessions.Cart("S-"+customerID))
	return nil
}

func (c *checkoutTestContext) inventoryWithQuantityAndThreshold(id string, quantity, threshold int) error {
	return c.store.PutInventory(context.Background(), models.Inventory{
		ID:           id,
		Name:         id,
		Price:        decimal.NewFromInt(10),
		Quantity:     quantity,
		MinThreshold: threshold,
	})
}

func (c *checkoutTestContext) inventoryAlreadyHasABackOrderFor(id string, quantity int) error {
	return c.store.WithinTx(context.Background(), func(ctx context.Context, tx checkout.Tx) error {
		bo := models.NewBackOrder(id, quantity, time.Now().Add(-24*time.Hour))
		if err := tx.SaveBackOrder(ctx, bo); err != nil {
			return err
		}
		c.originalBO[id] = bo.ID
		return nil
	})
}

func (c *checkoutTestContext) theCartContainsOf(quantity int, id string) error {
	return c.session.Cart.(session.Cart).AddItem(context.Background(), models.CartLineItem{InventoryID: id, Quantity: quantity})
}

func (c *checkoutTestContext) theNotifierFailsWithAError(kind string) error {
	switch kind {
	case "mailer":
		c.notifierErr = &notify.MailerError{Channel: "http", StatusCode: 503, Err: errors.New("mail service unavailable")}
	case "unexpected":
		c.notifierErr = errors.New("connection reset by peer")
	default:
		return fmt.Errorf("unknown failure kind %q", kind)
	}
	return nil
}

func (c *checkoutTestContext) theCustomerCompletesCheckout() error {
	c.result, c.err = c.orch.CompleteCheckout(context.Background(), c.session)
	return nil
}

func (c *checkoutTestContext) theOutcomeIs(outcome string) error {
	if c.err != nil {
		return fmt.Errorf("checkout failed: %v", c.err)
	}
	if c.result.Outcome != outcome {
		return fmt.Errorf("expected outcome %q, got %q", outcome, c.result.Outcome)
	}
	return nil
}

func (c *checkoutTestContext) inventoryHasQuantity(id string, quantity int) error {
	inv, err := c.store.Inventory(context.Background(), id)
	if err != nil {
		return err
	}
	if inv.Quantity != quantity {
		return fmt.Errorf("inventory %s: expected quantity %d, got %d", id, quantity, inv.Quantity)
	}
	return nil
}

func (c *checkoutTestContext) inventoryHasNoBackOrder(id string) error {
	_, err := c.store.BackOrder(context.Background(), id)
	if errors.Is(err, store.ErrBackOrderNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("inventory %s: unexpected back-order", id)
}

func (c *checkoutTestContext) inventoryHasABackOrderFor(id string, quantity int) error {
	bo, err := c.store.BackOrder(context.Background(), id)
	if err != nil {
		return err
	}
	if bo.Quantity != quantity {
		return fmt.Errorf("back-order for %s: expected quantity %d, got %d", id, quantity, bo.Quantity)
	}
	return nil
}

func (c *checkoutTestContext) theBackOrderIsTheOriginalRecord(id string) error {
	bo, err := c.store.BackOrder(context.Background(), id)
	if err != nil {
		return err
	}
	if bo.ID != c.originalBO[id] {
		return fmt.Errorf("back-order for %s was replaced: %s != %s", id, bo.ID, c.originalBO[id])
	}
	return nil
}

func (c *checkoutTestContext) theBackOrderHasStatus(id, status string) error {
	bo, err := c.store.BackOrder(context.Background(), id)
	if err != nil {
		return err
	}
	if bo.Status != status {
		return fmt.Errorf("back-order for %s: expected status %q, got %q", id, status, bo.Status)
	}
	return nil
}

func (c *checkoutTestContext) anOrderWasRecordedForTheSession() error {
	if c.session.LastOrderID == "" {
		return errors.New("session has no last order ID")
	}
	o, err := c.store.Order(context.Background(), c.session.LastOrderID)
	if err != nil {
		return err
	}
	if o.CustomerID != c.session.Customer.ID {
		return fmt.Errorf("order belongs to %s", o.CustomerID)
	}
	return nil
}

func (c *checkoutTestContext) aConfirmationWasSent() error {
	if c.sent != 1 {
		return fmt.Errorf("expected one confirmation, got %d", c.sent)
	}
	return nil
}

func (c *checkoutTestContext) noConfirmationWasSent() error {
	if c.sent != 0 {
		return fmt.Errorf("expected no confirmation, got %d", c.sent)
	}
	return nil
}

func (c *checkoutTestContext) theOrderDetailsAreCleared() error {
	if c.session.OrderInfo != nil {
		return errors.New("order details still set")
	}
	return nil
}

func (c *checkoutTestContext) theCartIsEmpty() error {
	items, err := c.session.Cart.Items(context.Background())
	if err != nil {
		return err
	}
	if len(items) != 0 {
		return fmt.Errorf("cart still holds %d items", len(items))
	}
	return nil
}

func (c *checkoutTestContext) theNotificationStatusIs(status string) error {
	if c.result == nil {
		return fmt.Errorf("no result: %v", c.err)
	}
	if string(c.result.Notification.Status) != status {
		return fmt.Errorf("expected notification %q, got %q", status, c.result.Notification.Status)
	}
	return nil
}

func (c *checkoutTestContext) theCheckoutFailsWith(msg string) error {
	if c.err == nil {
		return errors.New("expected checkout to fail")
	}
	if !strings.Contains(c.err.Error(), msg) {
		return fmt.Errorf("expected error containing %q, got %v", msg, c.err)
	}
	return nil
}

func InitializeScenario(ctx *godog.ScenarioContext) {
	tc := &checkoutTestContext{}

	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		tc.reset()
		return ctx, nil
	})

	// Given steps
	ctx.Step(`^a signed-in customer "([^"]*)" with order details$`, tc.aSignedInCustomerWithOrderDetails)
	ctx.Step(`^inventory "([^"]*)" with quantity (-?\d+) and minimum threshold (-?\d+)$`, tc.inventoryWithQuantityAndThreshold)
	ctx.Step(`^inventory "([^"]*)" already has a back-order for (\d+)$`, tc.inventoryAlreadyHasABackOrderFor)
	ctx.Step(`^the cart contains (\d+) of "([^"]*)"$`, tc.theCartContainsOf)
	ctx.Step(`^the notifier fails with a (\w+) error$`, tc.theNotifierFailsWithAError)

	// When steps
	ctx.Step(`^the customer completes checkout$`, tc.theCustomerCompletesCheckout)

	// Then steps
	ctx.Step(`^the outcome is "([^"]*)"$`, tc.theOutcomeIs)
	ctx.Step(`^inventory "([^"]*)" has quantity (-?\d+)$`, tc.inventoryHasQuantity)
	ctx.Step(`^inventory "([^"]*)" has no back-order$`, tc.inventoryHasNoBackOrder)
	ctx.Step(`^inventory "([^"]*)" has a back-order for (\d+)$`, tc.inventoryHasABackOrderFor)
	ctx.Step(`^the back-order for "([^"]*)" is the original record$`, tc.theBackOrderIsTheOriginalRecord)
	ctx.Step(`^the back-order for "([^"]*)" has status "([^"]*)"$`, tc.theBackOrderHasStatus)
	ctx.Step(`^an order was recorded for the session$`, tc.anOrderWasRecordedForTheSession)
	ctx.Step(`^a confirmation was sent$`, tc.aConfirmationWasSent)
	ctx.Step(`^no confirmation was sent$`, tc.noConfirmationWasSent)
	ctx.Step(`^the order details are cleared$`, tc.theOrderDetailsAreCleared)
	ctx.Step(`^the cart is empty$`, tc.theCartIsEmpty)
	ctx.Step(`^the notification status is "([^"]*)"$`, tc.theNotificationStatusIs)
	ctx.Step(`^the checkout fails with "([^"]*)"$`, tc.theCheckoutFailsWith)
}

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features/checkout.feature"},
			TestingT: t,
			Strict:   true,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
