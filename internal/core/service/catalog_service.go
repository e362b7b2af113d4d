package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

type CatalogService struct {
	products port.ProductRepository
	logger   *zap.Logger
}

func NewCatalogService(products port.ProductRepository, logger *zap.Logger) *CatalogService {
	return &CatalogService{products: products, logger: logger}
}

func (s *CatalogService) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	return s.products.ListProducts(ctx, filter.Normalize())
}

func (s *CatalogService) GetProduct(ctx context.Context, productID int64) (*domain.Product, error) {
	return s.products.GetProduct(ctx, productID)
}

// AdjustStock adds delta to the product's quantity. Negative deltas that
// would leave less than zero fail with INSUFFICIENT_STOCK.
func (s *CatalogService) AdjustStock(ctx context.Context, productID int64, delta int) (*domain.Product, error) {
	if delta == 0 {
		return nil, domain.Validation("delta must not be zero")
	}
	if err := s.products.AdjustStock(ctx, domain.StockAdjustment{ProductID: productID, Delta: delta}); err != nil {
		return nil, err
	}

	p, err := s.products.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("stock adjusted",
		zap.Int64("product_id", productID),
		zap.Int("delta", delta),
		zap.Int("quantity", p.Quantity),
	)
	return p, nil
}
