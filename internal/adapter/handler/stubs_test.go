package handler

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/core/service"
)

// stubTokens knows one customer token and one admin token.
type stubTokens struct {
	ids map[string]*domain.Identity
}

func newStubTokens() stubTokens {
	return stubTokens{ids: map[string]*domain.Identity{
		"customer-token": {UserID: 7, Role: domain.RoleCustomer},
		"admin-token":    {UserID: 1, Role: domain.RoleAdmin},
	}}
}

func (s stubTokens) Issue(user *domain.User) (string, time.Time, error) {
	return string(user.Role) + "-token", time.Time{}, nil
}

func (s stubTokens) Verify(token string) (*domain.Identity, error) {
	if id, ok := s.ids[token]; ok {
		return id, nil
	}
	return nil, domain.NewError(domain.KindAuth, "invalid token")
}

type stubOrders struct {
	mu       sync.Mutex
	create   func(domain.CreateOrderInput) (*domain.Order, error)
	get      func(userID, orderID int64) (*domain.Order, error)
	cancel   func(userID, orderID int64) (*domain.Order, error)
	lastList domain.OrderFilter
}

func sampleOrder(id, userID int64) *domain.Order {
	return &domain.Order{
		ID:            id,
		OrderNumber:   "FH1741944600000ABCDE",
		UserID:        userID,
		PaymentMethod: domain.PaymentMethodCOD,
		PaymentStatus: domain.PaymentStatusPending,
		Status:        domain.OrderStatusPending,
		TotalAmount:   decimal.RequireFromString("59.98"),
		Items: []domain.OrderItem{{
			ProductID: 3, ProductName: "Linen Shirt", Size: "M", Quantity: 2,
			Price: decimal.RequireFromString("29.99"), Total: decimal.RequireFromString("59.98"),
		}},
	}
}

func (s *stubOrders) CreateOrder(_ context.Context, in domain.CreateOrderInput) (*domain.Order, error) {
	if s.create != nil {
		return s.create(in)
	}
	return sampleOrder(10, in.UserID), nil
}

func (s *stubOrders) CancelOrder(_ context.Context, userID, orderID int64) (*domain.Order, error) {
	if s.cancel != nil {
		return s.cancel(userID, orderID)
	}
	o := sampleOrder(orderID, userID)
	o.Status = domain.OrderStatusCancelled
	return o, nil
}

func (s *stubOrders) GetOrder(_ context.Context, userID, orderID int64) (*domain.Order, error) {
	if s.get != nil {
		return s.get(userID, orderID)
	}
	return sampleOrder(orderID, userID), nil
}

func (s *stubOrders) ListOrders(_ context.Context, userID int64) ([]domain.Order, error) {
	return []domain.Order{*sampleOrder(10, userID)}, nil
}

func (s *stubOrders) ListAllOrders(_ context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	s.mu.Lock()
	s.lastList = filter
	s.mu.Unlock()
	return []domain.Order{}, nil
}

func (s *stubOrders) UpdateStatus(_ context.Context, orderID int64, st domain.OrderStatus) (*domain.Order, error) {
	if !st.Valid() {
		return nil, domain.Validation("unknown order status")
	}
	o := sampleOrder(orderID, 7)
	o.Status = st
	return o, nil
}

func (s *stubOrders) UpdatePaymentStatus(_ context.Context, orderID int64, st domain.PaymentStatus) (*domain.Order, error) {
	o := sampleOrder(orderID, 7)
	o.PaymentStatus = st
	return o, nil
}

type stubOTP struct {
	sent   []string
	login  func(email, code string) (*domain.Session, error)
	resets int
}

func (s *stubOTP) Send(_ context.Context, email string, purpose domain.OTPPurpose) error {
	if !purpose.Valid() {
		return domain.Validation("unknown purpose")
	}
	s.sent = append(s.sent, email+"/"+string(purpose))
	return nil
}

func (s *stubOTP) Login(_ context.Context, email, code string) (*domain.Session, error) {
	if s.login != nil {
		return s.login(email, code)
	}
	return &domain.Session{Token: "customer-token", User: &domain.User{ID: 7, Email: email}}, nil
}

func (s *stubOTP) ResetPassword(_ context.Context, email, code, newPassword string) error {
	if err := domain.ValidatePassword(newPassword); err != nil {
		return err
	}
	s.resets++
	return nil
}

type stubAuth struct{}

func (stubAuth) Register(_ context.Context, in service.RegisterInput) (*domain.Session, error) {
	if strings.Contains(in.Email, "taken") {
		return nil, domain.NewError(domain.KindAlreadyExists, "email is already registered")
	}
	return &domain.Session{Token: "customer-token", User: &domain.User{ID: 7, Name: in.Name, Email: in.Email}}, nil
}

func (stubAuth) Login(_ context.Context, email, password string) (*domain.Session, error) {
	return nil, domain.NewError(domain.KindAuth, "invalid email or password")
}

func (stubAuth) Me(_ context.Context, userID int64) (*domain.User, error) {
	return &domain.User{ID: userID, Email: "ada@example.com", Role: domain.RoleCustomer}, nil
}

type stubCatalog struct {
	lastFilter domain.ProductFilter
}

func (s *stubCatalog) ListProducts(_ context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	s.lastFilter = filter
	return []domain.Product{{ID: 3, Name: "Linen Shirt", Price: decimal.RequireFromString("29.99")}}, nil
}

func (s *stubCatalog) GetProduct(_ context.Context, productID int64) (*domain.Product, error) {
	if productID != 3 {
		return nil, domain.NotFound("product not found")
	}
	return &domain.Product{ID: 3, Name: "Linen Shirt", Quantity: 4}, nil
}

func (s *stubCatalog) AdjustStock(_ context.Context, productID int64, delta int) (*domain.Product, error) {
	return &domain.Product{ID: productID, Quantity: 4 + delta}, nil
}

type stubCart struct {
	lines []domain.CartLine
}

func (s *stubCart) List(context.Context, int64) (domain.Cart, error) {
	return domain.NewCart(s.lines), nil
}

func (s *stubCart) Add(_ context.Context, userID, productID int64, size string, quantity int) (domain.Cart, error) {
	s.lines = append(s.lines, domain.CartLine{
		UserID: userID, ProductID: productID, Size: size, Quantity: quantity,
		UnitPrice: decimal.RequireFromString("10.00"),
	})
	return domain.NewCart(s.lines), nil
}

func (s *stubCart) Update(_ context.Context, userID, productID int64, size string, quantity int) (domain.Cart, error) {
	return domain.Cart{}, domain.NotFound("cart item not found")
}

func (s *stubCart) Remove(_ context.Context, userID, productID int64, size string) (domain.Cart, error) {
	out := s.lines[:0]
	for _, l := range s.lines {
		if l.ProductID != productID || l.Size != size {
			out = append(out, l)
		}
	}
	s.lines = out
	return domain.NewCart(s.lines), nil
}
