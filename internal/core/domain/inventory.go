package domain

import "fmt"

// StockAdjustment is a signed change to a product's available quantity.
type StockAdjustment struct {
	ProductID int64
	Delta     int
}

// InsufficientStock builds the error returned when a product cannot cover
// the requested quantity. available is -1 when it is not known, e.g. when a
// conditional decrement lost a race.
func InsufficientStock(productID int64, name string, available, requested int) *Error {
	msg := fmt.Sprintf("insufficient stock for %q", name)
	if name == "" {
		msg = fmt.Sprintf("insufficient stock for product %d", productID)
	}
	err := NewError(KindInsufficientStock, msg).
		With("productId", productID).
		With("requested", requested)
	if available >= 0 {
		err = err.With("available", available)
	}
	return err
}

func ProductNotFound(productID int64) *Error {
	return NotFound(fmt.Sprintf("product %d not found", productID)).With("productId", productID)
}
