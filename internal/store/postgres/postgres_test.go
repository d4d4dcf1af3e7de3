package postgres

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/ashendes/checkout-engine/internal/checkout"
	"github.com/ashendes/checkout-engine/internal/inventory"
	"github.com/ashendes/checkout-engine/internal/models"
	"github.com/ashendes/checkout-engine/internal/store"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openTestDB connects to TEST_DATABASE_URL or skips the test.
func openTestDB(t *testing.T) *DB {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	db, err := New(ctx, url)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, db.Migrate(ctx))
	return db
}

func uniqueID(prefix string) string {
	return prefix + "-" + uuid.New().String()[:8]
}

func TestRetryable(t *testing.T) {
	assert.True(t, retryable(&pgconn.PgError{Code: "40001"}))
	assert.True(t, retryable(&pgconn.PgError{Code: "40P01"}))
	assert.False(t, retryable(&pgconn.PgError{Code: "23505"}))
	assert.False(t, retryable(errors.New("boom")))
	assert.False(t, retryable(nil))
}

func TestCheckoutTransaction(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	id := uniqueID("PG")
	require.NoError(t, db.PutInventory(ctx, models.Inventory{
		ID: id, Name: "Widget", Price: decimal.RequireFromString("4.25"), Quantity: 5, MinThreshold: 50,
	}))

	r := inventory.NewReconciler()
	var orderID string
	err := db.WithinTx(ctx, func(ctx context.Context, tx checkout.Tx) error {
		items := []models.CartLineItem{{InventoryID: id, Quantity: 20}}
		o, err := tx.CreateOrder(ctx, "C-PG", models.OrderInfo{Payment: models.PaymentInfo{CardNumber: "4000000000000002"}}, items)
		if err != nil {
			return err
		}
		orderID = o.ID
		_, err = r.Reconcile(ctx, tx, items[0])
		return err
	})
	require.NoError(t, err)

	inv, err := db.Inventory(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, -15, inv.Quantity)
	assert.True(t, decimal.RequireFromString("4.25").Equal(inv.Price))

	bo, err := db.BackOrder(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 15, bo.Quantity)
	assert.Equal(t, models.BackOrderStatusOrderStock, bo.Status)

	o, err := db.Order(ctx, orderID)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("85").Equal(o.Total))
	assert.Equal(t, "************0002", o.Payment.CardNumber)
	require.Len(t, o.Items, 1)
	assert.Equal(t, "Widget", o.Items[0].Name)
}

func TestRollbackLeavesNoTrace(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	id := uniqueID("PG")
	require.NoError(t, db.PutInventory(ctx, models.Inventory{ID: id, Name: "Gadget", Quantity: 10, MinThreshold: 50}))

	boom := errors.New("boom")
	err := db.WithinTx(ctx, func(ctx context.Context, tx checkout.Tx) error {
		if _, err := inventory.NewReconciler().Reconcile(ctx, tx, models.CartLineItem{InventoryID: id, Quantity: 20}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	inv, err := db.Inventory(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 10, inv.Quantity)
	_, err = db.BackOrder(ctx, id)
	assert.ErrorIs(t, err, store.ErrBackOrderNotFound)
}

func TestConcurrentCheckoutsSerializeOnRow(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	id := uniqueID("PG")
	require.NoError(t, db.PutInventory(ctx, models.Inventory{ID: id, Name: "Hot", Quantity: 20, MinThreshold: 0}))

	r := inventory.NewReconciler()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := db.WithinTx(ctx, func(ctx context.Context, tx checkout.Tx) error {
				_, err := r.Reconcile(ctx, tx, models.CartLineItem{InventoryID: id, Quantity: 2})
				return err
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	inv, err := db.Inventory(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 0, inv.Quantity)
}

func TestMissingRecords(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_, err := db.Inventory(ctx, uniqueID("NOPE"))
	assert.ErrorIs(t, err, inventory.ErrInventoryNotFound)
	_, err = db.Order(ctx, uniqueID("NOPE"))
	assert.ErrorIs(t, err, store.ErrOrderNotFound)
}
