package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

const DefaultTxTimeout = 5 * time.Second

type OrderService struct {
	orders    port.OrderRepository
	carts     port.CartRepository
	events    EventPublisher
	logger    *zap.Logger
	txTimeout time.Duration
	now       func() time.Time
}

// NewOrderService wires the order use cases. events may be nil, in which
// case no notifications are produced.
func NewOrderService(orders port.OrderRepository, carts port.CartRepository, events EventPublisher, logger *zap.Logger, txTimeout time.Duration) *OrderService {
	if txTimeout <= 0 {
		txTimeout = DefaultTxTimeout
	}
	return &OrderService{
		orders:    orders,
		carts:     carts,
		events:    events,
		logger:    logger,
		txTimeout: txTimeout,
		now:       time.Now,
	}
}

// CreateOrder places an order for the given lines, or for the user's cart when
// none are given. Stock is reserved in the same transaction that writes the
// order, so concurrent checkouts cannot oversell.
func (s *OrderService) CreateOrder(ctx context.Context, in domain.CreateOrderInput) (*domain.Order, error) {
	address := strings.TrimSpace(in.ShippingAddress)
	if address == "" {
		return nil, domain.Validation("shipping address is required")
	}
	if !in.PaymentMethod.Valid() {
		return nil, domain.Validation(fmt.Sprintf("unsupported payment method %q", in.PaymentMethod))
	}

	lines := in.Items
	if len(lines) == 0 {
		cart, err := s.carts.ListCart(ctx, in.UserID)
		if err != nil {
			return nil, err
		}
		for _, l := range cart {
			lines = append(lines, l.LineItem())
		}
	}
	if len(lines) == 0 {
		return nil, domain.Validation("cart is empty")
	}
	for _, l := range lines {
		if l.ProductID <= 0 {
			return nil, domain.Validation("product id is required")
		}
		if l.Quantity < 1 {
			return nil, domain.Validation("quantity must be at least 1").With("productId", l.ProductID)
		}
	}

	now := s.now().UTC()
	draft := domain.OrderDraft{
		OrderNumber:     domain.NewOrderNumber(now),
		UserID:          in.UserID,
		ShippingAddress: address,
		PaymentMethod:   in.PaymentMethod,
		PaymentStatus:   in.PaymentMethod.InitialPaymentStatus(),
		Lines:           lines,
		CreatedAt:       now,
	}

	txCtx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()

	order, err := s.orders.CreateOrder(txCtx, draft)
	if err != nil {
		s.logger.Info("order rejected",
			zap.Int64("user_id", in.UserID),
			zap.String("reason", string(domain.KindOf(err))),
			zap.Error(err),
		)
		return nil, err
	}

	s.logger.Info("order created",
		zap.Int64("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.Int64("user_id", order.UserID),
		zap.String("total", order.TotalAmount.StringFixed(2)),
	)
	s.publish(domain.OrderEventCreated, order)
	return order, nil
}

// CancelOrder cancels a pending order owned by userID and puts its stock back.
func (s *OrderService) CancelOrder(ctx context.Context, userID, orderID int64) (*domain.Order, error) {
	txCtx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()

	order, err := s.orders.CancelOrder(txCtx, orderID, userID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("order cancelled",
		zap.Int64("order_id", order.ID),
		zap.Int64("user_id", userID),
	)
	s.publish(domain.OrderEventStatusChanged, order)
	return order, nil
}

// GetOrder returns the order only when it belongs to userID.
func (s *OrderService) GetOrder(ctx context.Context, userID, orderID int64) (*domain.Order, error) {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, domain.NotFound("order not found")
	}
	return order, nil
}

func (s *OrderService) ListOrders(ctx context.Context, userID int64) ([]domain.Order, error) {
	return s.orders.ListOrdersByUser(ctx, userID)
}

func (s *OrderService) ListAllOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, domain.Validation(fmt.Sprintf("unknown order status %q", filter.Status))
	}
	return s.orders.ListOrders(ctx, filter)
}

// UpdateStatus moves an order one step along its lifecycle. Cancelling goes
// through the same stock-restoring path customers use.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID int64, status domain.OrderStatus) (*domain.Order, error) {
	if !status.Valid() {
		return nil, domain.Validation(fmt.Sprintf("unknown order status %q", status))
	}

	current, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !current.Status.CanTransitionTo(status) {
		return nil, domain.InvalidState(fmt.Sprintf("cannot change order from %s to %s", current.Status, status)).
			With("from", current.Status).
			With("to", status)
	}

	txCtx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()

	var order *domain.Order
	if status == domain.OrderStatusCancelled {
		order, err = s.orders.CancelOrder(txCtx, orderID, 0)
	} else {
		if err = s.orders.UpdateOrderStatus(txCtx, orderID, current.Status, status); err == nil {
			order, err = s.orders.GetOrder(txCtx, orderID)
		}
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("order status updated",
		zap.Int64("order_id", orderID),
		zap.String("from", string(current.Status)),
		zap.String("to", string(status)),
	)
	s.publish(domain.OrderEventStatusChanged, order)
	return order, nil
}

func (s *OrderService) UpdatePaymentStatus(ctx context.Context, orderID int64, status domain.PaymentStatus) (*domain.Order, error) {
	current, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !current.PaymentStatus.CanTransitionTo(status) {
		return nil, domain.InvalidState(fmt.Sprintf("cannot change payment from %s to %s", current.PaymentStatus, status)).
			With("from", current.PaymentStatus).
			With("to", status)
	}

	if err := s.orders.UpdatePaymentStatus(ctx, orderID, current.PaymentStatus, status); err != nil {
		return nil, err
	}
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("payment status updated",
		zap.Int64("order_id", orderID),
		zap.String("from", string(current.PaymentStatus)),
		zap.String("to", string(status)),
	)
	s.publish(domain.OrderEventStatusChanged, order)
	return order, nil
}

func (s *OrderService) publish(t domain.OrderEventType, order *domain.Order) {
	if s.events == nil {
		return
	}
	s.events.Enqueue(domain.NewOrderEvent(t, order, s.now().UTC()))
}
