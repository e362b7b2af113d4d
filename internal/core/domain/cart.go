package domain

import "github.com/shopspring/decimal"

// CartLine is unique per (user, product, size).
type CartLine struct {
	UserID      int64           `json:"-"`
	ProductID   int64           `json:"productId"`
	Size        string          `json:"size"`
	Quantity    int             `json:"quantity"`
	ProductName string          `json:"productName"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Available   int             `json:"available"`
}

func (l CartLine) LineItem() LineItem {
	return LineItem{ProductID: l.ProductID, Quantity: l.Quantity, Size: l.Size}
}

type Cart struct {
	Lines    []CartLine      `json:"lines"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

func NewCart(lines []CartLine) Cart {
	subtotal := decimal.Zero
	for _, l := range lines {
		subtotal = subtotal.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	if lines == nil {
		lines = []CartLine{}
	}
	return Cart{Lines: lines, Subtotal: subtotal}
}
