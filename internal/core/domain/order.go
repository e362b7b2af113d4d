package domain

import (
	"cmp"
	"math/rand/v2"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

var orderStatusNext = map[OrderStatus]OrderStatus{
	OrderStatusPending:    OrderStatusProcessing,
	OrderStatusProcessing: OrderStatusShipped,
	OrderStatusShipped:    OrderStatusDelivered,
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether next directly follows s. Statuses only move
// forward one step at a time; cancelled is reachable from pending only.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if next == OrderStatusCancelled {
		return s == OrderStatusPending
	}
	return orderStatusNext[s] == next
}

type PaymentStatus string

const (
	PaymentStatusPending        PaymentStatus = "pending"
	PaymentStatusPaymentPending PaymentStatus = "payment_pending"
	PaymentStatusPaid           PaymentStatus = "paid"
	PaymentStatusFailed         PaymentStatus = "payment_failed"
)

func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	switch s {
	case PaymentStatusPending, PaymentStatusPaymentPending:
		return next == PaymentStatusPaid || next == PaymentStatusFailed
	}
	return false
}

type PaymentMethod string

const (
	PaymentMethodCOD  PaymentMethod = "cod"
	PaymentMethodCard PaymentMethod = "card"
	PaymentMethodUPI  PaymentMethod = "upi"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCOD, PaymentMethodCard, PaymentMethodUPI:
		return true
	}
	return false
}

// InitialPaymentStatus is payment_pending for methods that wait on a manual
// confirmation step.
func (m PaymentMethod) InitialPaymentStatus() PaymentStatus {
	if m == PaymentMethodUPI {
		return PaymentStatusPaymentPending
	}
	return PaymentStatusPending
}

type Order struct {
	ID              int64           `json:"id"`
	OrderNumber     string          `json:"orderNumber"`
	UserID          int64           `json:"userId"`
	ShippingAddress string          `json:"shippingAddress"`
	PaymentMethod   PaymentMethod   `json:"paymentMethod"`
	PaymentStatus   PaymentStatus   `json:"paymentStatus"`
	Status          OrderStatus     `json:"status"`
	TotalAmount     decimal.Decimal `json:"totalAmount"`
	Items           []OrderItem     `json:"items"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// OrderItem holds the price captured when the order was placed. It never
// follows later product price changes.
type OrderItem struct {
	ID          int64           `json:"id"`
	OrderID     int64           `json:"orderId"`
	ProductID   int64           `json:"productId"`
	ProductName string          `json:"productName"`
	Size        string          `json:"size,omitempty"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	Total       decimal.Decimal `json:"total"`
}

// NewOrderItem snapshots p's current unit price for the given line.
func NewOrderItem(p Product, line LineItem) OrderItem {
	price := p.UnitPrice()
	return OrderItem{
		ProductID:   p.ID,
		ProductName: p.Name,
		Size:        line.Size,
		Quantity:    line.Quantity,
		Price:       price,
		Total:       price.Mul(decimal.NewFromInt(int64(line.Quantity))),
	}
}

func SumItems(items []OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Total)
	}
	return total
}

// LineItem is one requested (product, quantity, size) entry of a checkout.
type LineItem struct {
	ProductID int64  `json:"productId"`
	Quantity  int    `json:"quantity"`
	Size      string `json:"size,omitempty"`
}

// MergeLines folds repeated (product, size) entries into one and orders the
// result by product id, then size. Checkouts that reserve stock in this order
// lock product rows in the same sequence.
func MergeLines(lines []LineItem) []LineItem {
	type key struct {
		productID int64
		size      string
	}
	merged := make([]LineItem, 0, len(lines))
	index := make(map[key]int, len(lines))
	for _, l := range lines {
		k := key{l.ProductID, l.Size}
		if i, ok := index[k]; ok {
			merged[i].Quantity += l.Quantity
			continue
		}
		index[k] = len(merged)
		merged = append(merged, l)
	}
	slices.SortFunc(merged, func(a, b LineItem) int {
		if c := cmp.Compare(a.ProductID, b.ProductID); c != 0 {
			return c
		}
		return strings.Compare(a.Size, b.Size)
	})
	return merged
}

type CreateOrderInput struct {
	UserID          int64
	ShippingAddress string
	PaymentMethod   PaymentMethod
	Items           []LineItem
}

// OrderDraft is a validated checkout ready to be persisted atomically.
type OrderDraft struct {
	OrderNumber     string
	UserID          int64
	ShippingAddress string
	PaymentMethod   PaymentMethod
	PaymentStatus   PaymentStatus
	Lines           []LineItem
	CreatedAt       time.Time
}

type OrderFilter struct {
	Status OrderStatus
	Page   int
	Limit  int
}

func (f OrderFilter) Normalize() OrderFilter {
	f.Page, f.Limit = normalizePage(f.Page, f.Limit)
	return f
}

func (f OrderFilter) Offset() int {
	return (f.Page - 1) * f.Limit
}

const (
	orderNumberPrefix = "FH"
	base36Alphabet    = "0123456789abcdefghijklmnopqrstuvwxyz"
)

// NewOrderNumber returns "FH" + unix milliseconds + a 5 character base36
// suffix. Collisions are not re-checked; the unique index rejects them.
func NewOrderNumber(now time.Time) string {
	var b strings.Builder
	b.WriteString(orderNumberPrefix)
	b.WriteString(strconv.FormatInt(now.UnixMilli(), 10))
	for range 5 {
		b.WriteByte(base36Alphabet[rand.IntN(len(base36Alphabet))])
	}
	return b.String()
}
