package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

// memStore is an in-memory stand-in for the MySQL adapter. Every method runs
// under one mutex, which gives CreateOrder and CancelOrder the same
// all-or-nothing behaviour as the real transaction.
type memStore struct {
	mu          sync.Mutex
	products    map[int64]*domain.Product
	orders      map[int64]*domain.Order
	carts       map[int64][]domain.CartLine
	users       map[int64]*domain.User
	nextOrderID int64
	nextUserID  int64
}

func newMemStore() *memStore {
	return &memStore{
		products: make(map[int64]*domain.Product),
		orders:   make(map[int64]*domain.Order),
		carts:    make(map[int64][]domain.CartLine),
		users:    make(map[int64]*domain.User),
	}
}

var (
	_ port.OrderRepository   = (*memStore)(nil)
	_ port.ProductRepository = (*memStore)(nil)
	_ port.CartRepository    = (*memStore)(nil)
	_ port.UserRepository    = (*memStore)(nil)
)

func (m *memStore) addProduct(id int64, name, price string, stock int, sizes ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[id] = &domain.Product{
		ID:       id,
		Name:     name,
		Price:    decimal.RequireFromString(price),
		Quantity: stock,
		Sizes:    sizes,
	}
}

func (m *memStore) addUser(email string, role domain.Role) *domain.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextUserID++
	u := &domain.User{ID: m.nextUserID, Name: "User", Email: email, Role: role, PasswordHash: "hashed:Secret123"}
	m.users[u.ID] = u
	return u
}

func (m *memStore) stock(productID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.products[productID].Quantity
}

func (m *memStore) cartLen(userID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.carts[userID])
}

func cloneOrder(o *domain.Order) *domain.Order {
	c := *o
	c.Items = append([]domain.OrderItem(nil), o.Items...)
	return &c
}

func (m *memStore) CreateOrder(_ context.Context, draft domain.OrderDraft) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	items := make([]domain.OrderItem, 0, len(draft.Lines))
	reserved := make(map[int64]int)
	for _, line := range draft.Lines {
		p, ok := m.products[line.ProductID]
		if !ok {
			return nil, domain.ProductNotFound(line.ProductID)
		}
		if !p.AcceptsSize(line.Size) {
			return nil, domain.Validation("size not available")
		}
		if p.Quantity-reserved[p.ID] < line.Quantity {
			return nil, domain.InsufficientStock(p.ID, p.Name, p.Quantity-reserved[p.ID], line.Quantity)
		}
		reserved[p.ID] += line.Quantity
		items = append(items, domain.NewOrderItem(*p, line))
	}

	for id, q := range reserved {
		m.products[id].Quantity -= q
	}
	m.nextOrderID++
	for i := range items {
		items[i].OrderID = m.nextOrderID
		items[i].ID = int64(i + 1)
	}
	o := &domain.Order{
		ID:              m.nextOrderID,
		OrderNumber:     draft.OrderNumber,
		UserID:          draft.UserID,
		ShippingAddress: draft.ShippingAddress,
		PaymentMethod:   draft.PaymentMethod,
		PaymentStatus:   draft.PaymentStatus,
		Status:          domain.OrderStatusPending,
		TotalAmount:     domain.SumItems(items),
		Items:           items,
		CreatedAt:       draft.CreatedAt,
		UpdatedAt:       draft.CreatedAt,
	}
	m.orders[o.ID] = o
	delete(m.carts, draft.UserID)
	return cloneOrder(o), nil
}

func (m *memStore) CancelOrder(_ context.Context, orderID, ownerID int64) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[orderID]
	if !ok || (ownerID != 0 && o.UserID != ownerID) {
		return nil, domain.NotFound("order not found")
	}
	if o.Status != domain.OrderStatusPending {
		return nil, domain.InvalidState("only pending orders can be cancelled")
	}
	for _, it := range o.Items {
		m.products[it.ProductID].Quantity += it.Quantity
	}
	o.Status = domain.OrderStatusCancelled
	return cloneOrder(o), nil
}

func (m *memStore) GetOrder(_ context.Context, orderID int64) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return nil, domain.NotFound("order not found")
	}
	return cloneOrder(o), nil
}

func (m *memStore) ListOrdersByUser(_ context.Context, userID int64) ([]domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	orders := []domain.Order{}
	for _, o := range m.orders {
		if o.UserID == userID {
			orders = append(orders, *cloneOrder(o))
		}
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].ID > orders[j].ID })
	return orders, nil
}

func (m *memStore) ListOrders(_ context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	orders := []domain.Order{}
	for _, o := range m.orders {
		if filter.Status == "" || o.Status == filter.Status {
			orders = append(orders, *cloneOrder(o))
		}
	}
	return orders, nil
}

func (m *memStore) UpdateOrderStatus(_ context.Context, orderID int64, from, to domain.OrderStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok || o.Status != from {
		return domain.InvalidState("order status changed concurrently")
	}
	o.Status = to
	return nil
}

func (m *memStore) UpdatePaymentStatus(_ context.Context, orderID int64, from, to domain.PaymentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok || o.PaymentStatus != from {
		return domain.InvalidState("payment status changed concurrently")
	}
	o.PaymentStatus = to
	return nil
}

func (m *memStore) GetProduct(_ context.Context, productID int64) (*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[productID]
	if !ok {
		return nil, domain.ProductNotFound(productID)
	}
	c := *p
	return &c, nil
}

func (m *memStore) ListProducts(_ context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	products := []domain.Product{}
	for _, p := range m.products {
		if filter.Search == "" || strings.Contains(strings.ToLower(p.Name), strings.ToLower(filter.Search)) {
			products = append(products, *p)
		}
	}
	return products, nil
}

func (m *memStore) AdjustStock(_ context.Context, adj domain.StockAdjustment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[adj.ProductID]
	if !ok {
		return domain.ProductNotFound(adj.ProductID)
	}
	if p.Quantity+adj.Delta < 0 {
		return domain.InsufficientStock(p.ID, p.Name, p.Quantity, -adj.Delta)
	}
	p.Quantity += adj.Delta
	return nil
}

func (m *memStore) ListCart(_ context.Context, userID int64) ([]domain.CartLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lines := []domain.CartLine{}
	for _, l := range m.carts[userID] {
		if p, ok := m.products[l.ProductID]; ok {
			l.ProductName = p.Name
			l.UnitPrice = p.UnitPrice()
			l.Available = p.Quantity
		}
		lines = append(lines, l)
	}
	return lines, nil
}

func (m *memStore) AddCartLine(_ context.Context, line domain.CartLine) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	lines := m.carts[line.UserID]
	for i := range lines {
		if lines[i].ProductID == line.ProductID && lines[i].Size == line.Size {
			lines[i].Quantity += line.Quantity
			return nil
		}
	}
	m.carts[line.UserID] = append(lines, line)
	return nil
}

func (m *memStore) SetCartQuantity(_ context.Context, line domain.CartLine) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	lines := m.carts[line.UserID]
	for i := range lines {
		if lines[i].ProductID == line.ProductID && lines[i].Size == line.Size {
			lines[i].Quantity = line.Quantity
			return nil
		}
	}
	return domain.NotFound("cart line not found")
}

func (m *memStore) DeleteCartLine(_ context.Context, userID, productID int64, size string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	lines := m.carts[userID]
	for i := range lines {
		if lines[i].ProductID == productID && lines[i].Size == size {
			m.carts[userID] = append(lines[:i], lines[i+1:]...)
			return nil
		}
	}
	return domain.NotFound("cart line not found")
}

func (m *memStore) GetUserByID(_ context.Context, userID int64) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return nil, domain.NotFound("user not found")
	}
	c := *u
	return &c, nil
}

func (m *memStore) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	email = domain.NormalizeEmail(email)
	for _, u := range m.users {
		if u.Email == email {
			c := *u
			return &c, nil
		}
	}
	return nil, domain.NotFound("user not found")
}

func (m *memStore) CreateUser(_ context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == user.Email {
			return domain.NewError(domain.KindAlreadyExists, "email is already registered")
		}
	}
	m.nextUserID++
	user.ID = m.nextUserID
	c := *user
	m.users[c.ID] = &c
	return nil
}

func (m *memStore) UpdatePassword(_ context.Context, userID int64, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return domain.NotFound("user not found")
	}
	u.PasswordHash = passwordHash
	return nil
}

// memOTPStore applies domain.OTPEntry.Check under a mutex.
type memOTPStore struct {
	mu      sync.Mutex
	entries map[string]domain.OTPEntry
}

func newMemOTPStore() *memOTPStore {
	return &memOTPStore{entries: make(map[string]domain.OTPEntry)}
}

func (s *memOTPStore) Save(_ context.Context, key string, entry domain.OTPEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entry
	return nil
}

func (s *memOTPStore) Verify(_ context.Context, key, code string, now time.Time, maxAttempts int) (domain.OTPResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return domain.OTPResult{Outcome: domain.OTPNotFound}, nil
	}
	res, keep := e.Check(code, now, maxAttempts)
	if keep {
		s.entries[key] = e
	} else {
		delete(s.entries, key)
	}
	return res, nil
}

type fakeNotifier struct {
	mu         sync.Mutex
	events     []domain.OrderEvent
	otps       []domain.OTPMessage
	otpErr     error
	failOrders int
	orderCalls int
	delivered  chan domain.OrderEvent
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{delivered: make(chan domain.OrderEvent, 100)}
}

var errNotifierDown = errors.New("broker unavailable")

func (n *fakeNotifier) NotifyOrder(_ context.Context, event domain.OrderEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.orderCalls++
	if n.failOrders > 0 {
		n.failOrders--
		return errNotifierDown
	}
	n.events = append(n.events, event)
	n.delivered <- event
	return nil
}

func (n *fakeNotifier) SendOTP(_ context.Context, msg domain.OTPMessage) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.otps = append(n.otps, msg)
	return n.otpErr
}

func (n *fakeNotifier) lastOTP() domain.OTPMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.otps[len(n.otps)-1]
}

func (n *fakeNotifier) calls() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.orderCalls
}

type fakeTokens struct{}

func (fakeTokens) Issue(u *domain.User) (string, time.Time, error) {
	return fmt.Sprintf("token-%d", u.ID), time.Unix(0, 0).Add(time.Hour), nil
}

func (fakeTokens) Verify(token string) (*domain.Identity, error) {
	var id int64
	if _, err := fmt.Sscanf(token, "token-%d", &id); err != nil {
		return nil, domain.ErrAuth
	}
	return &domain.Identity{UserID: id, Role: domain.RoleCustomer}, nil
}

type fakeHasher struct{}

func (fakeHasher) Hash(password string) (string, error) {
	return "hashed:" + password, nil
}

func (fakeHasher) Compare(hash, password string) error {
	if hash != "hashed:"+password {
		return errors.New("mismatch")
	}
	return nil
}

// recordingPublisher captures events synchronously.
type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.OrderEvent
}

func (p *recordingPublisher) Enqueue(event domain.OrderEvent) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return true
}

func (p *recordingPublisher) all() []domain.OrderEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.OrderEvent(nil), p.events...)
}
