package services

import (
	"context"
	"errors"

	"github.com/agrichain/marketplace/internal/apperr"
	"github.com/agrichain/marketplace/internal/metrics"
	"github.com/agrichain/marketplace/internal/models"
	"github.com/agrichain/marketplace/internal/store"
)

// CartService handles cart-related operations
type CartService struct {
	accounts store.Accounts
	catalog  store.Catalog
	carts    store.Carts
	metrics  *metrics.AppMetrics
}

// NewCartService creates a new cart service
func NewCartService(accounts store.Accounts, catalog store.Catalog, carts store.Carts, m *metrics.AppMetrics) *CartService {
	return &CartService{
		accounts: accounts,
		catalog:  catalog,
		carts:    carts,
		metrics:  m,
	}
}

// ApplyDelta adds delta (which may be negative) to the customer's line for
// productID. A line whose quantity drops to zero or below is removed. Stock
// is not checked here; checkout does that.
func (s *CartService) ApplyDelta(ctx context.Context, customerID, productID string, delta int) ([]models.HydratedCartLine, error) {
	if productID == "" {
		return nil, apperr.Validation("product is required")
	}
	if _, err := requireRole(ctx, s.accounts, customerID, models.RoleCustomer); err != nil {
		return nil, err
	}
	product, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	if delta == 0 {
		return s.Get(ctx, customerID)
	}
	item := models.CartLine{ProductID: product.ID, Name: product.Name, Price: product.Price}
	if err := s.carts.AdjustCartLine(ctx, customerID, item, delta); err != nil {
		return nil, err
	}
	return s.reload(ctx, customerID)
}

// Remove drops the customer's line for productID. A missing line is not an error.
func (s *CartService) Remove(ctx context.Context, customerID, productID string) ([]models.HydratedCartLine, error) {
	if _, err := requireRole(ctx, s.accounts, customerID, models.RoleCustomer); err != nil {
		return nil, err
	}
	if err := s.carts.RemoveCartLine(ctx, customerID, productID); err != nil {
		return nil, err
	}
	return s.reload(ctx, customerID)
}

// reload reads the cart back after a write so concurrent changes are visible
func (s *CartService) reload(ctx context.Context, customerID string) ([]models.HydratedCartLine, error) {
	lines, err := s.carts.GetCart(ctx, customerID)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordCartItems(ctx, customerID, len(lines))
	return s.hydrate(ctx, lines)
}

// Get returns the customer's hydrated cart
func (s *CartService) Get(ctx context.Context, customerID string) ([]models.HydratedCartLine, error) {
	if _, err := requireRole(ctx, s.accounts, customerID, models.RoleCustomer); err != nil {
		return nil, err
	}
	lines, err := s.carts.GetCart(ctx, customerID)
	if err != nil {
		return nil, err
	}
	return s.hydrate(ctx, lines)
}

// hydrate adds live product fields. A product deleted since it was added
// shows zero availability and keeps its snapshot name and price.
func (s *CartService) hydrate(ctx context.Context, lines []models.CartLine) ([]models.HydratedCartLine, error) {
	out := make([]models.HydratedCartLine, 0, len(lines))
	for _, l := range lines {
		h := models.HydratedCartLine{CartLine: l}
		p, err := s.catalog.GetProduct(ctx, l.ProductID)
		switch {
		case err == nil:
			h.Unit = p.Unit
			h.Image = p.Image
			h.AvailableQuantity = p.Quantity
		case !errors.Is(err, apperr.ErrNotFound):
			return nil, err
		}
		out = append(out, h)
	}
	return out, nil
}
