package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rl1809/storefront/internal/core/domain"
)

func newTestOrderService(store *memStore) (*OrderService, *recordingPublisher) {
	events := &recordingPublisher{}
	svc := NewOrderService(store, store, events, zap.NewNop(), time.Second)
	svc.now = func() time.Time { return time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC) }
	return svc, events
}

func orderInput(userID int64, items ...domain.LineItem) domain.CreateOrderInput {
	return domain.CreateOrderInput{
		UserID:          userID,
		ShippingAddress: "12 Harbour Road",
		PaymentMethod:   domain.PaymentMethodCOD,
		Items:           items,
	}
}

func TestCreateOrder_Success(t *testing.T) {
	store := newMemStore()
	store.addProduct(7, "Linen Shirt", "49.90", 10, "M", "L")
	svc, events := newTestOrderService(store)

	order, err := svc.CreateOrder(context.Background(),
		orderInput(3, domain.LineItem{ProductID: 7, Quantity: 2, Size: "M"}))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(order.OrderNumber, "FH1741944600000"))
	assert.Len(t, order.OrderNumber, len("FH1741944600000")+5)
	assert.Equal(t, domain.OrderStatusPending, order.Status)
	assert.Equal(t, domain.PaymentStatusPending, order.PaymentStatus)
	assert.True(t, decimal.RequireFromString("99.80").Equal(order.TotalAmount))
	assert.Equal(t, 8, store.stock(7))

	got := events.all()
	require.Len(t, got, 1)
	assert.Equal(t, domain.OrderEventCreated, got[0].Type)
	assert.Equal(t, order.ID, got[0].OrderID)
}

func TestCreateOrder_UPIWaitsForPayment(t *testing.T) {
	store := newMemStore()
	store.addProduct(7, "Linen Shirt", "49.90", 10)
	svc, _ := newTestOrderService(store)

	in := orderInput(3, domain.LineItem{ProductID: 7, Quantity: 1})
	in.PaymentMethod = domain.PaymentMethodUPI

	order, err := svc.CreateOrder(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPaymentPending, order.PaymentStatus)
}

func TestCreateOrder_FromCart(t *testing.T) {
	store := newMemStore()
	store.addProduct(7, "Linen Shirt", "50.00", 10)
	store.addProduct(8, "Wool Scarf", "20.00", 10)
	svc, _ := newTestOrderService(store)
	ctx := context.Background()

	require.NoError(t, store.AddCartLine(ctx, domain.CartLine{UserID: 3, ProductID: 7, Quantity: 1}))
	require.NoError(t, store.AddCartLine(ctx, domain.CartLine{UserID: 3, ProductID: 8, Quantity: 2}))

	order, err := svc.CreateOrder(ctx, orderInput(3))
	require.NoError(t, err)
	assert.Len(t, order.Items, 2)
	assert.True(t, decimal.RequireFromString("90.00").Equal(order.TotalAmount))
	assert.Equal(t, 0, store.cartLen(3))
	assert.Equal(t, 8, store.stock(8))
}

func TestCreateOrder_Validation(t *testing.T) {
	store := newMemStore()
	store.addProduct(7, "Linen Shirt", "49.90", 10)
	svc, events := newTestOrderService(store)

	tests := []struct {
		name  string
		input domain.CreateOrderInput
	}{
		{"blank address", domain.CreateOrderInput{UserID: 3, ShippingAddress: "  ", PaymentMethod: domain.PaymentMethodCOD,
			Items: []domain.LineItem{{ProductID: 7, Quantity: 1}}}},
		{"unknown payment method", domain.CreateOrderInput{UserID: 3, ShippingAddress: "addr", PaymentMethod: "cheque",
			Items: []domain.LineItem{{ProductID: 7, Quantity: 1}}}},
		{"empty cart", orderInput(3)},
		{"zero quantity", orderInput(3, domain.LineItem{ProductID: 7, Quantity: 0})},
		{"negative quantity", orderInput(3, domain.LineItem{ProductID: 7, Quantity: -2})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateOrder(context.Background(), tt.input)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}

	assert.Equal(t, 10, store.stock(7))
	assert.Empty(t, events.all())
}

func TestCreateOrder_EmptyCartMessage(t *testing.T) {
	svc, _ := newTestOrderService(newMemStore())

	_, err := svc.CreateOrder(context.Background(), orderInput(3))
	require.Error(t, err)
	assert.Equal(t, "cart is empty", err.Error())
}

func TestCreateOrder_ProductNotFound(t *testing.T) {
	svc, _ := newTestOrderService(newMemStore())

	_, err := svc.CreateOrder(context.Background(), orderInput(3, domain.LineItem{ProductID: 99, Quantity: 1}))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCreateOrder_InsufficientStockLeavesNothingBehind(t *testing.T) {
	store := newMemStore()
	store.addProduct(7, "Linen Shirt", "49.90", 10)
	store.addProduct(8, "Wool Scarf", "19.00", 1)
	svc, events := newTestOrderService(store)

	_, err := svc.CreateOrder(context.Background(), orderInput(3,
		domain.LineItem{ProductID: 7, Quantity: 2},
		domain.LineItem{ProductID: 8, Quantity: 2},
	))
	require.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.Contains(t, err.Error(), "Wool Scarf")

	assert.Equal(t, 10, store.stock(7))
	assert.Equal(t, 1, store.stock(8))
	orders, _ := svc.ListOrders(context.Background(), 3)
	assert.Empty(t, orders)
	assert.Empty(t, events.all())
}

// The concurrency tests below run against memStore, which serializes
// CreateOrder behind a mutex. They check the service's handling of the
// outcomes; the conditional stock decrement itself is covered by
// TestCreateOrder_LostRaceRollsBack and the TestLive_* tests in storage.
func TestCreateOrder_LastUnitGoesToExactlyOneBuyer(t *testing.T) {
	store := newMemStore()
	store.addProduct(7, "Linen Shirt", "49.90", 1)
	svc, _ := newTestOrderService(store)

	var successCount, outOfStock atomic.Int32
	var wg sync.WaitGroup
	for userID := int64(1); userID <= 2; userID++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			_, err := svc.CreateOrder(context.Background(), orderInput(userID, domain.LineItem{ProductID: 7, Quantity: 1}))
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrInsufficientStock):
				outOfStock.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(userID)
	}
	wg.Wait()

	assert.Equal(t, int32(1), successCount.Load())
	assert.Equal(t, int32(1), outOfStock.Load())
	assert.Equal(t, 0, store.stock(7))
}

func TestCreateOrder_OverlappingRequestsCannotBothFit(t *testing.T) {
	store := newMemStore()
	store.addProduct(7, "Linen Shirt", "49.90", 5)
	svc, _ := newTestOrderService(store)

	var successCount atomic.Int32
	var wg sync.WaitGroup
	for userID := int64(1); userID <= 2; userID++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			if _, err := svc.CreateOrder(context.Background(), orderInput(userID, domain.LineItem{ProductID: 7, Quantity: 3})); err == nil {
				successCount.Add(1)
			}
		}(userID)
	}
	wg.Wait()

	assert.Equal(t, int32(1), successCount.Load())
	assert.Equal(t, 2, store.stock(7))
}

func TestCreateOrder_Concurrent(t *testing.T) {
	initialStock := 20
	totalRequests := 50

	store := newMemStore()
	store.addProduct(7, "Linen Shirt", "49.90", initialStock)
	svc, _ := newTestOrderService(store)

	var successCount atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			if _, err := svc.CreateOrder(context.Background(), orderInput(userID, domain.LineItem{ProductID: 7, Quantity: 1})); err == nil {
				successCount.Add(1)
			}
		}(int64(i + 1))
	}

	wg.Wait()

	if successCount.Load() != int32(initialStock) {
		t.Errorf("expected %d successes, got %d", initialStock, successCount.Load())
	}
	if stock := store.stock(7); stock != 0 {
		t.Errorf("expected stock 0, got %d", stock)
	}
}

func placeOrder(t *testing.T, svc *OrderService, userID int64, quantity int) *domain.Order {
	t.Helper()
	order, err := svc.CreateOrder(context.Background(), orderInput(userID, domain.LineItem{ProductID: 7, Quantity: quantity}))
	require.NoError(t, err)
	return order
}

func TestCancelOrder(t *testing.T) {
	t.Run("restores stock", func(t *testing.T) {
		store := newMemStore()
		store.addProduct(7, "Linen Shirt", "49.90", 10)
		svc, events := newTestOrderService(store)
		order := placeOrder(t, svc, 3, 4)

		cancelled, err := svc.CancelOrder(context.Background(), 3, order.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.OrderStatusCancelled, cancelled.Status)
		assert.Equal(t, 10, store.stock(7))

		got := events.all()
		require.Len(t, got, 2)
		assert.Equal(t, domain.OrderEventStatusChanged, got[1].Type)
	})

	t.Run("twice", func(t *testing.T) {
		store := newMemStore()
		store.addProduct(7, "Linen Shirt", "49.90", 10)
		svc, _ := newTestOrderService(store)
		order := placeOrder(t, svc, 3, 1)

		_, err := svc.CancelOrder(context.Background(), 3, order.ID)
		require.NoError(t, err)
		_, err = svc.CancelOrder(context.Background(), 3, order.ID)
		assert.ErrorIs(t, err, domain.ErrInvalidState)
		assert.Equal(t, 10, store.stock(7))
	})

	t.Run("someone else's order", func(t *testing.T) {
		store := newMemStore()
		store.addProduct(7, "Linen Shirt", "49.90", 10)
		svc, _ := newTestOrderService(store)
		order := placeOrder(t, svc, 3, 1)

		_, err := svc.CancelOrder(context.Background(), 4, order.ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.Equal(t, 9, store.stock(7))
	})

	t.Run("after shipping", func(t *testing.T) {
		store := newMemStore()
		store.addProduct(7, "Linen Shirt", "49.90", 10)
		svc, _ := newTestOrderService(store)
		order := placeOrder(t, svc, 3, 1)
		_, err := svc.UpdateStatus(context.Background(), order.ID, domain.OrderStatusProcessing)
		require.NoError(t, err)

		_, err = svc.CancelOrder(context.Background(), 3, order.ID)
		assert.ErrorIs(t, err, domain.ErrInvalidState)
	})
}

func TestGetOrder_OwnerOnly(t *testing.T) {
	store := newMemStore()
	store.addProduct(7, "Linen Shirt", "49.90", 10)
	svc, _ := newTestOrderService(store)
	order := placeOrder(t, svc, 3, 1)

	got, err := svc.GetOrder(context.Background(), 3, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.OrderNumber, got.OrderNumber)

	_, err = svc.GetOrder(context.Background(), 4, order.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdateStatus_Lifecycle(t *testing.T) {
	store := newMemStore()
	store.addProduct(7, "Linen Shirt", "49.90", 10)
	svc, _ := newTestOrderService(store)
	ctx := context.Background()
	order := placeOrder(t, svc, 3, 1)

	_, err := svc.UpdateStatus(ctx, order.ID, domain.OrderStatusShipped)
	assert.ErrorIs(t, err, domain.ErrInvalidState, "cannot skip processing")

	for _, next := range []domain.OrderStatus{
		domain.OrderStatusProcessing,
		domain.OrderStatusShipped,
		domain.OrderStatusDelivered,
	} {
		updated, err := svc.UpdateStatus(ctx, order.ID, next)
		require.NoError(t, err)
		assert.Equal(t, next, updated.Status)
	}

	_, err = svc.UpdateStatus(ctx, order.ID, domain.OrderStatusPending)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	_, err = svc.UpdateStatus(ctx, order.ID, domain.OrderStatusCancelled)
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	_, err = svc.UpdateStatus(ctx, order.ID, "lost")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestUpdateStatus_AdminCancelRestoresStock(t *testing.T) {
	store := newMemStore()
	store.addProduct(7, "Linen Shirt", "49.90", 10)
	svc, _ := newTestOrderService(store)
	order := placeOrder(t, svc, 3, 3)

	updated, err := svc.UpdateStatus(context.Background(), order.ID, domain.OrderStatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, updated.Status)
	assert.Equal(t, 10, store.stock(7))
}

func TestUpdatePaymentStatus(t *testing.T) {
	store := newMemStore()
	store.addProduct(7, "Linen Shirt", "49.90", 10)
	svc, _ := newTestOrderService(store)
	ctx := context.Background()
	order := placeOrder(t, svc, 3, 1)

	updated, err := svc.UpdatePaymentStatus(ctx, order.ID, domain.PaymentStatusPaid)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPaid, updated.PaymentStatus)

	_, err = svc.UpdatePaymentStatus(ctx, order.ID, domain.PaymentStatusFailed)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestListAllOrders_RejectsUnknownStatus(t *testing.T) {
	svc, _ := newTestOrderService(newMemStore())

	_, err := svc.ListAllOrders(context.Background(), domain.OrderFilter{Status: "lost"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	orders, err := svc.ListAllOrders(context.Background(), domain.OrderFilter{Status: domain.OrderStatusPending})
	require.NoError(t, err)
	assert.Empty(t, orders)
}
