package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

var (
	_ port.OrderRepository   = (*MySQLAdapter)(nil)
	_ port.ProductRepository = (*MySQLAdapter)(nil)
	_ port.CartRepository    = (*MySQLAdapter)(nil)
	_ port.UserRepository    = (*MySQLAdapter)(nil)
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

const orderColumns = `order_id, order_number, user_id, shipping_address, payment_method,
	payment_status, status, total_amount, created_at, updated_at`

func (m *MySQLAdapter) CreateOrder(ctx context.Context, draft domain.OrderDraft) (*domain.Order, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classify("begin tx", err)
	}
	defer tx.Rollback()

	lines := domain.MergeLines(draft.Lines)
	items := make([]domain.OrderItem, 0, len(lines))
	for _, line := range lines {
		p, err := getProduct(ctx, tx, line.ProductID)
		if err != nil {
			return nil, err
		}
		if !p.AcceptsSize(line.Size) {
			return nil, domain.Validation(fmt.Sprintf("size %q is not available for %q", line.Size, p.Name)).
				With("productId", p.ID)
		}
		if p.Quantity < line.Quantity {
			return nil, domain.InsufficientStock(p.ID, p.Name, p.Quantity, line.Quantity)
		}
		items = append(items, domain.NewOrderItem(*p, line))
	}

	order := &domain.Order{
		OrderNumber:     draft.OrderNumber,
		UserID:          draft.UserID,
		ShippingAddress: draft.ShippingAddress,
		PaymentMethod:   draft.PaymentMethod,
		PaymentStatus:   draft.PaymentStatus,
		Status:          domain.OrderStatusPending,
		TotalAmount:     domain.SumItems(items),
		CreatedAt:       draft.CreatedAt,
		UpdatedAt:       draft.CreatedAt,
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO orders (order_number, user_id, shipping_address, payment_method,
			payment_status, status, total_amount, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.OrderNumber, order.UserID, order.ShippingAddress, order.PaymentMethod,
		order.PaymentStatus, order.Status, order.TotalAmount, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		return nil, classify("insert order", err)
	}
	if order.ID, err = result.LastInsertId(); err != nil {
		return nil, classify("order id", err)
	}

	for i := range items {
		item := &items[i]
		item.OrderID = order.ID

		result, err := tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, product_id, product_name, size, quantity, price, total)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			item.OrderID, item.ProductID, item.ProductName, item.Size, item.Quantity, item.Price, item.Total,
		)
		if err != nil {
			return nil, classify("insert order item", err)
		}
		if item.ID, err = result.LastInsertId(); err != nil {
			return nil, classify("order item id", err)
		}

		result, err = tx.ExecContext(ctx, `
			UPDATE products
			SET quantity = quantity - ?, updated_at = NOW()
			WHERE product_id = ? AND quantity >= ?`,
			item.Quantity, item.ProductID, item.Quantity,
		)
		if err != nil {
			return nil, classify("decrement stock", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return nil, classify("decrement stock", err)
		}
		if rows == 0 {
			return nil, domain.InsufficientStock(item.ProductID, item.ProductName, -1, item.Quantity)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM cart WHERE user_id = ?`, draft.UserID); err != nil {
		return nil, classify("clear cart", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, classify("commit order", err)
	}

	order.Items = items
	return order, nil
}

func (m *MySQLAdapter) CancelOrder(ctx context.Context, orderID, ownerID int64) (*domain.Order, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classify("begin tx", err)
	}
	defer tx.Rollback()

	var (
		userID int64
		status domain.OrderStatus
	)
	err = tx.QueryRowContext(ctx, `
		SELECT user_id, status FROM orders WHERE order_id = ? FOR UPDATE`, orderID,
	).Scan(&userID, &status)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && ownerID != 0 && userID != ownerID) {
		return nil, domain.NotFound("order not found")
	}
	if err != nil {
		return nil, classify("lock order", err)
	}
	if status != domain.OrderStatusPending {
		return nil, domain.InvalidState(fmt.Sprintf("order is %s; only pending orders can be cancelled", status)).
			With("status", status)
	}

	if err := restoreStock(ctx, tx, orderID); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE orders SET status = ?, updated_at = NOW() WHERE order_id = ?`,
		domain.OrderStatusCancelled, orderID,
	); err != nil {
		return nil, classify("cancel order", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, classify("commit cancel", err)
	}

	return m.GetOrder(ctx, orderID)
}

// restoreStock puts every item quantity of the order back on its product.
func restoreStock(ctx context.Context, tx *sql.Tx, orderID int64) error {
	rows, err := tx.QueryContext(ctx, `
		SELECT product_id, quantity FROM order_items WHERE order_id = ?`, orderID)
	if err != nil {
		return classify("query order items", err)
	}
	var adjustments []domain.StockAdjustment
	for rows.Next() {
		var adj domain.StockAdjustment
		if err := rows.Scan(&adj.ProductID, &adj.Delta); err != nil {
			rows.Close()
			return classify("scan order item", err)
		}
		adjustments = append(adjustments, adj)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return classify("iterate order items", err)
	}
	rows.Close()

	for _, adj := range adjustments {
		if _, err := tx.ExecContext(ctx, `
			UPDATE products SET quantity = quantity + ?, updated_at = NOW()
			WHERE product_id = ?`,
			adj.Delta, adj.ProductID,
		); err != nil {
			return classify("restore stock", err)
		}
	}
	return nil
}

func (m *MySQLAdapter) GetOrder(ctx context.Context, orderID int64) (*domain.Order, error) {
	o, err := scanOrder(m.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE order_id = ?`, orderID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("order not found")
	}
	if err != nil {
		return nil, classify("query order", err)
	}

	orders := []domain.Order{*o}
	if err := attachItems(ctx, m.db, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

func (m *MySQLAdapter) ListOrdersByUser(ctx context.Context, userID int64) ([]domain.Order, error) {
	return m.listOrders(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE user_id = ?
		ORDER BY created_at DESC, order_id DESC`, userID)
}

func (m *MySQLAdapter) ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	filter = filter.Normalize()

	query := `SELECT ` + orderColumns + ` FROM orders`
	var args []any
	if filter.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, filter.Status)
	}
	query += ` ORDER BY created_at DESC, order_id DESC LIMIT ? OFFSET ?`
	args = append(args, filter.Limit, filter.Offset())

	return m.listOrders(ctx, query, args...)
}

func (m *MySQLAdapter) listOrders(ctx context.Context, query string, args ...any) ([]domain.Order, error) {
	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify("query orders", err)
	}
	defer rows.Close()

	orders := []domain.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, classify("scan order", err)
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate orders", err)
	}
	rows.Close()

	if err := attachItems(ctx, m.db, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (m *MySQLAdapter) UpdateOrderStatus(ctx context.Context, orderID int64, from, to domain.OrderStatus) error {
	result, err := m.db.ExecContext(ctx, `
		UPDATE orders SET status = ?, updated_at = NOW()
		WHERE order_id = ? AND status = ?`,
		to, orderID, from,
	)
	if err != nil {
		return classify("update order status", err)
	}
	return requireRow(result, "update order status",
		domain.InvalidState("order status changed concurrently"))
}

func (m *MySQLAdapter) UpdatePaymentStatus(ctx context.Context, orderID int64, from, to domain.PaymentStatus) error {
	result, err := m.db.ExecContext(ctx, `
		UPDATE orders SET payment_status = ?, updated_at = NOW()
		WHERE order_id = ? AND payment_status = ?`,
		to, orderID, from,
	)
	if err != nil {
		return classify("update payment status", err)
	}
	return requireRow(result, "update payment status",
		domain.InvalidState("payment status changed concurrently"))
}

func scanOrder(s rowScanner) (*domain.Order, error) {
	var o domain.Order
	err := s.Scan(&o.ID, &o.OrderNumber, &o.UserID, &o.ShippingAddress, &o.PaymentMethod,
		&o.PaymentStatus, &o.Status, &o.TotalAmount, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// attachItems loads the items of all orders with a single query.
func attachItems(ctx context.Context, q querier, orders []domain.Order) error {
	if len(orders) == 0 {
		return nil
	}

	index := make(map[int64]int, len(orders))
	args := make([]any, len(orders))
	for i := range orders {
		orders[i].Items = []domain.OrderItem{}
		index[orders[i].ID] = i
		args[i] = orders[i].ID
	}

	rows, err := q.QueryContext(ctx, `
		SELECT order_item_id, order_id, product_id, product_name, size, quantity, price, total
		FROM order_items
		WHERE order_id IN (`+placeholders(len(args))+`)
		ORDER BY order_item_id`, args...)
	if err != nil {
		return classify("query order items", err)
	}
	defer rows.Close()

	for rows.Next() {
		var it domain.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.Size,
			&it.Quantity, &it.Price, &it.Total); err != nil {
			return classify("scan order item", err)
		}
		if i, ok := index[it.OrderID]; ok {
			orders[i].Items = append(orders[i].Items, it)
		}
	}
	return classify("iterate order items", rows.Err())
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// requireRow returns notMatched when the statement touched no row.
func requireRow(result sql.Result, op string, notMatched error) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return classify(op, err)
	}
	if rows == 0 {
		return notMatched
	}
	return nil
}
