package port

import (
	"context"

	"github.com/rl1809/storefront/internal/core/domain"
)

type OrderRepository interface {
	// CreateOrder persists the draft, its items, the stock decrements and the
	// cart clearing in one transaction. A product whose stock cannot cover a
	// line fails the whole draft with INSUFFICIENT_STOCK.
	CreateOrder(ctx context.Context, draft domain.OrderDraft) (*domain.Order, error)

	// CancelOrder restores item quantities and marks a pending order
	// cancelled in one transaction. ownerID 0 skips the ownership check.
	CancelOrder(ctx context.Context, orderID, ownerID int64) (*domain.Order, error)

	GetOrder(ctx context.Context, orderID int64) (*domain.Order, error)
	ListOrdersByUser(ctx context.Context, userID int64) ([]domain.Order, error)
	ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error)

	// UpdateOrderStatus moves an order from one status to another, failing
	// with INVALID_STATE if the order is no longer in from.
	UpdateOrderStatus(ctx context.Context, orderID int64, from, to domain.OrderStatus) error
	UpdatePaymentStatus(ctx context.Context, orderID int64, from, to domain.PaymentStatus) error
}

type ProductRepository interface {
	GetProduct(ctx context.Context, productID int64) (*domain.Product, error)
	ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error)

	// AdjustStock applies delta without letting quantity drop below zero.
	AdjustStock(ctx context.Context, adj domain.StockAdjustment) error
}

type CartRepository interface {
	ListCart(ctx context.Context, userID int64) ([]domain.CartLine, error)
	// AddCartLine inserts the line or adds to the quantity of an existing one.
	AddCartLine(ctx context.Context, line domain.CartLine) error
	SetCartQuantity(ctx context.Context, line domain.CartLine) error
	DeleteCartLine(ctx context.Context, userID, productID int64, size string) error
}

type UserRepository interface {
	GetUserByID(ctx context.Context, userID int64) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	CreateUser(ctx context.Context, user *domain.User) error
	UpdatePassword(ctx context.Context, userID int64, passwordHash string) error
}
