package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

type CartService struct {
	carts    port.CartRepository
	products port.ProductRepository
}

func NewCartService(carts port.CartRepository, products port.ProductRepository) *CartService {
	return &CartService{carts: carts, products: products}
}

func (s *CartService) List(ctx context.Context, userID int64) (domain.Cart, error) {
	lines, err := s.carts.ListCart(ctx, userID)
	if err != nil {
		return domain.Cart{}, err
	}
	return domain.NewCart(lines), nil
}

// Add puts quantity units of the product in the cart, on top of any already
// there for the same size.
func (s *CartService) Add(ctx context.Context, userID, productID int64, size string, quantity int) (domain.Cart, error) {
	if quantity < 1 {
		return domain.Cart{}, domain.Validation("quantity must be at least 1")
	}
	size = strings.TrimSpace(size)

	p, err := s.products.GetProduct(ctx, productID)
	if err != nil {
		return domain.Cart{}, err
	}
	if !p.AcceptsSize(size) {
		return domain.Cart{}, domain.Validation(fmt.Sprintf("size %q is not available for %q", size, p.Name)).
			With("productId", p.ID)
	}

	line := domain.CartLine{UserID: userID, ProductID: productID, Size: size, Quantity: quantity}
	if err := s.carts.AddCartLine(ctx, line); err != nil {
		return domain.Cart{}, err
	}
	return s.List(ctx, userID)
}

func (s *CartService) Update(ctx context.Context, userID, productID int64, size string, quantity int) (domain.Cart, error) {
	if quantity < 1 {
		return domain.Cart{}, domain.Validation("quantity must be at least 1")
	}
	line := domain.CartLine{UserID: userID, ProductID: productID, Size: strings.TrimSpace(size), Quantity: quantity}
	if err := s.carts.SetCartQuantity(ctx, line); err != nil {
		return domain.Cart{}, err
	}
	return s.List(ctx, userID)
}

func (s *CartService) Remove(ctx context.Context, userID, productID int64, size string) (domain.Cart, error) {
	if err := s.carts.DeleteCartLine(ctx, userID, productID, strings.TrimSpace(size)); err != nil {
		return domain.Cart{}, err
	}
	return s.List(ctx, userID)
}
