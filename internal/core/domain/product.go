package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID              int64           `json:"id"`
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	Price           decimal.Decimal `json:"price"`
	Quantity        int             `json:"quantity"`
	Sizes           StringList      `json:"sizes"`
	Color           string          `json:"color"`
	Fabric          string          `json:"fabric"`
	Tags            StringList      `json:"tags"`
	DiscountPercent int             `json:"discountPercent"`
	Images          StringList      `json:"images"`
	CategoryID      int64           `json:"categoryId"`
	SubcategoryID   *int64          `json:"subcategoryId,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// UnitPrice is the price a customer pays for one unit, after discount,
// rounded to cents.
func (p Product) UnitPrice() decimal.Decimal {
	if p.DiscountPercent <= 0 {
		return p.Price
	}
	factor := decimal.NewFromInt(int64(100 - p.DiscountPercent)).Div(decimal.NewFromInt(100))
	return p.Price.Mul(factor).Round(2)
}

// AcceptsSize reports whether size may be ordered. Products without a size
// list accept only the empty size.
func (p Product) AcceptsSize(size string) bool {
	if len(p.Sizes) == 0 {
		return size == ""
	}
	return slices.Contains(p.Sizes, size)
}

type ProductFilter struct {
	CategoryID    int64
	SubcategoryID int64
	Search        string
	Page          int
	Limit         int
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Normalize clamps paging to sane bounds.
func (f ProductFilter) Normalize() ProductFilter {
	f.Page, f.Limit = normalizePage(f.Page, f.Limit)
	return f
}

func (f ProductFilter) Offset() int {
	return (f.Page - 1) * f.Limit
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	return page, limit
}

// StringList is a list of strings persisted as a JSON array column.
type StringList []string

func (s *StringList) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*s = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into StringList", src)
	}
	if len(raw) == 0 {
		*s = nil
		return nil
	}
	var values []string
	if err := json.Unmarshal(raw, &values); err != nil {
		return fmt.Errorf("decode string list: %w", err)
	}
	*s = values
	return nil
}

func (s StringList) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(s))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
