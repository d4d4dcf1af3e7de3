package session

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ashendes/checkout-engine/internal/models"
	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ttl = 30 * time.Minute

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func TestMemoryStore_StateAndCart(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	st, err := s.Load(ctx, "S-1")
	require.NoError(t, err)
	assert.Nil(t, st.Customer)

	customer := &models.Customer{ID: "C-1"}
	require.NoError(t, s.Save(ctx, "S-1", State{Customer: customer}))
	st, err = s.Load(ctx, "S-1")
	require.NoError(t, err)
	assert.Equal(t, customer, st.Customer)

	cart := s.Cart("S-1")
	require.NoError(t, cart.AddItem(ctx, models.CartLineItem{InventoryID: "B", Quantity: 1}))
	require.NoError(t, cart.AddItem(ctx, models.CartLineItem{InventoryID: "A", Quantity: 2}))
	require.NoError(t, cart.AddItem(ctx, models.CartLineItem{InventoryID: "B", Quantity: 3}))

	items, err := cart.Items(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.CartLineItem{{InventoryID: "B", Quantity: 4}, {InventoryID: "A", Quantity: 2}}, items)

	other, err := s.Cart("S-2").Items(ctx)
	require.NoError(t, err)
	assert.Empty(t, other)

	require.NoError(t, cart.RemoveAllItems(ctx))
	items, err = cart.Items(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestMemoryCart_ItemsIsACopy(t *testing.T) {
	ctx := context.Background()
	cart := NewMemoryStore().Cart("S-1")
	require.NoError(t, cart.AddItem(ctx, models.CartLineItem{InventoryID: "A", Quantity: 1}))

	items, _ := cart.Items(ctx)
	items[0].Quantity = 99

	again, _ := cart.Items(ctx)
	assert.Equal(t, 1, again[0].Quantity)
}

func TestCheckoutSessionRoundTrip(t *testing.T) {
	st := State{Customer: &models.Customer{ID: "C-1"}, OrderInfo: &models.OrderInfo{ShippingMethod: 2}}
	cart := NewMemoryStore().Cart("S-1")

	cs := st.CheckoutSession("S-1", cart)
	assert.Equal(t, "S-1", cs.ID)
	assert.Same(t, st.Customer, cs.Customer)

	cs.OrderInfo = nil
	cs.LastOrderID = "O-1"
	back := FromCheckout(cs)
	assert.Nil(t, back.OrderInfo)
	assert.Equal(t, "O-1", back.LastOrderID)
}

func TestRedisStore_LoadMissingSession(t *testing.T) {
	db, mock := redismock.NewClientMock()
	s := NewRedisStore(db, ttl)

	mock.ExpectGet("checkout:session:S-1").RedisNil()

	st, err := s.Load(context.Background(), "S-1")
	require.NoError(t, err)
	assert.Equal(t, State{}, st)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStore_SaveAndLoad(t *testing.T) {
	db, mock := redismock.NewClientMock()
	s := NewRedisStore(db, ttl)
	st := State{Customer: &models.Customer{ID: "C-1", FirstName: "Ada"}, LastOrderID: "O-7"}
	data := mustJSON(t, st)

	mock.ExpectSet("checkout:session:S-1", data, ttl).SetVal("OK")
	mock.ExpectGet("checkout:session:S-1").SetVal(string(data))

	require.NoError(t, s.Save(context.Background(), "S-1", st))
	got, err := s.Load(context.Background(), "S-1")
	require.NoError(t, err)
	assert.Equal(t, st, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStore_LoadError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	s := NewRedisStore(db, ttl)

	mock.ExpectGet("checkout:session:S-1").SetErr(errors.New("connection refused"))

	_, err := s.Load(context.Background(), "S-1")
	assert.ErrorContains(t, err, "connection refused")
}

func TestRedisCart_AddItemMergesQuantity(t *testing.T) {
	db, mock := redismock.NewClientMock()
	cart := NewRedisStore(db, ttl).Cart("S-1")
	existing := []models.CartLineItem{{InventoryID: "A", Quantity: 1}, {InventoryID: "B", Quantity: 2}}
	want := []models.CartLineItem{{InventoryID: "A", Quantity: 4}, {InventoryID: "B", Quantity: 2}}

	mock.ExpectGet("checkout:cart:S-1").SetVal(string(mustJSON(t, existing)))
	mock.ExpectSet("checkout:cart:S-1", mustJSON(t, want), ttl).SetVal("OK")

	require.NoError(t, cart.AddItem(context.Background(), models.CartLineItem{InventoryID: "A", Quantity: 3}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisCart_FirstItem(t *testing.T) {
	db, mock := redismock.NewClientMock()
	cart := NewRedisStore(db, ttl).Cart("S-1")
	item := models.CartLineItem{InventoryID: "A", Quantity: 1}

	mock.ExpectGet("checkout:cart:S-1").RedisNil()
	mock.ExpectSet("checkout:cart:S-1", mustJSON(t, []models.CartLineItem{item}), ttl).SetVal("OK")

	require.NoError(t, cart.AddItem(context.Background(), item))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisCart_ItemsAndRemoveAll(t *testing.T) {
	db, mock := redismock.NewClientMock()
	cart := NewRedisStore(db, ttl).Cart("S-1")

	mock.ExpectGet("checkout:cart:S-1").RedisNil()
	mock.ExpectDel("checkout:cart:S-1").SetVal(1)

	items, err := cart.Items(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)

	require.NoError(t, cart.RemoveAllItems(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisCart_RemoveAllError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	cart := NewRedisStore(db, ttl).Cart("S-1")

	mock.ExpectDel("checkout:cart:S-1").SetErr(errors.New("READONLY"))

	assert.ErrorContains(t, cart.RemoveAllItems(context.Background()), "READONLY")
}

func TestRedisStore_Ping(t *testing.T) {
	db, mock := redismock.NewClientMock()
	mock.ExpectPing().SetVal("PONG")

	assert.NoError(t, NewRedisStore(db, ttl).Ping(context.Background()))
}
