package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/rl1809/storefront/internal/core/domain"
)

const productColumns = `product_id, name, description, price, quantity, sizes, color, fabric,
	tags, discount_percent, images, category_id, subcategory_id, created_at, updated_at`

func scanProduct(s rowScanner) (*domain.Product, error) {
	var (
		p   domain.Product
		sub sql.NullInt64
	)
	err := s.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Quantity, &p.Sizes, &p.Color,
		&p.Fabric, &p.Tags, &p.DiscountPercent, &p.Images, &p.CategoryID, &sub,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if sub.Valid {
		id := sub.Int64
		p.SubcategoryID = &id
	}
	return &p, nil
}

func getProduct(ctx context.Context, q querier, productID int64) (*domain.Product, error) {
	p, err := scanProduct(q.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE product_id = ?`, productID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ProductNotFound(productID)
	}
	if err != nil {
		return nil, classify("query product", err)
	}
	return p, nil
}

func (m *MySQLAdapter) GetProduct(ctx context.Context, productID int64) (*domain.Product, error) {
	return getProduct(ctx, m.db, productID)
}

func (m *MySQLAdapter) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	filter = filter.Normalize()

	var (
		where []string
		args  []any
	)
	if filter.CategoryID > 0 {
		where = append(where, "category_id = ?")
		args = append(args, filter.CategoryID)
	}
	if filter.SubcategoryID > 0 {
		where = append(where, "subcategory_id = ?")
		args = append(args, filter.SubcategoryID)
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		like := "%" + escapeLike(s) + "%"
		where = append(where, "(name LIKE ? OR description LIKE ?)")
		args = append(args, like, like)
	}

	query := `SELECT ` + productColumns + ` FROM products`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY product_id DESC LIMIT ? OFFSET ?`
	args = append(args, filter.Limit, filter.Offset())

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify("query products", err)
	}
	defer rows.Close()

	products := []domain.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, classify("scan product", err)
		}
		products = append(products, *p)
	}
	return products, classify("iterate products", rows.Err())
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func (m *MySQLAdapter) AdjustStock(ctx context.Context, adj domain.StockAdjustment) error {
	result, err := m.db.ExecContext(ctx, `
		UPDATE products SET quantity = quantity + ?, updated_at = NOW()
		WHERE product_id = ? AND quantity + ? >= 0`,
		adj.Delta, adj.ProductID, adj.Delta,
	)
	if err != nil {
		return classify("adjust stock", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return classify("adjust stock", err)
	}
	if rows > 0 {
		return nil
	}

	p, err := m.GetProduct(ctx, adj.ProductID)
	if err != nil {
		return err
	}
	return domain.InsufficientStock(p.ID, p.Name, p.Quantity, -adj.Delta)
}

func (m *MySQLAdapter) ListCart(ctx context.Context, userID int64) ([]domain.CartLine, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT c.product_id, c.size, c.quantity, p.name, p.price, p.discount_percent, p.quantity
		FROM cart c
		JOIN products p ON p.product_id = c.product_id
		WHERE c.user_id = ?
		ORDER BY c.cart_id`, userID)
	if err != nil {
		return nil, classify("query cart", err)
	}
	defer rows.Close()

	lines := []domain.CartLine{}
	for rows.Next() {
		var (
			line domain.CartLine
			p    domain.Product
		)
		if err := rows.Scan(&line.ProductID, &line.Size, &line.Quantity, &line.ProductName,
			&p.Price, &p.DiscountPercent, &line.Available); err != nil {
			return nil, classify("scan cart line", err)
		}
		line.UserID = userID
		line.UnitPrice = p.UnitPrice()
		lines = append(lines, line)
	}
	return lines, classify("iterate cart", rows.Err())
}

func (m *MySQLAdapter) AddCartLine(ctx context.Context, line domain.CartLine) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO cart (user_id, product_id, size, quantity)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE quantity = quantity + VALUES(quantity)`,
		line.UserID, line.ProductID, line.Size, line.Quantity,
	)
	return classify("add cart line", err)
}

func (m *MySQLAdapter) SetCartQuantity(ctx context.Context, line domain.CartLine) error {
	result, err := m.db.ExecContext(ctx, `
		UPDATE cart SET quantity = ?
		WHERE user_id = ? AND product_id = ? AND size = ?`,
		line.Quantity, line.UserID, line.ProductID, line.Size,
	)
	if err != nil {
		return classify("update cart line", err)
	}
	return requireRow(result, "update cart line", domain.NotFound("cart line not found"))
}

func (m *MySQLAdapter) DeleteCartLine(ctx context.Context, userID, productID int64, size string) error {
	result, err := m.db.ExecContext(ctx, `
		DELETE FROM cart WHERE user_id = ? AND product_id = ? AND size = ?`,
		userID, productID, size,
	)
	if err != nil {
		return classify("delete cart line", err)
	}
	return requireRow(result, "delete cart line", domain.NotFound("cart line not found"))
}
