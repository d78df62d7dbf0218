package services

import (
	"context"
	"errors"
	"time"

	"github.com/agrichain/marketplace/internal/apperr"
	"github.com/agrichain/marketplace/internal/models"
	"github.com/agrichain/marketplace/internal/store"
	"github.com/shopspring/decimal"
)

// OverviewService builds the read-only dashboard aggregates
type OverviewService struct {
	store store.Store
	now   Clock
}

// NewOverviewService creates a new overview service
func NewOverviewService(s store.Store) *OverviewService {
	return &OverviewService{store: s, now: timeNow}
}

// AdminOverview reports revenue over every completed order and the best
// selling product line of the current quarter.
func (s *OverviewService) AdminOverview(ctx context.Context) (*models.Overview, error) {
	return s.overview(ctx, "")
}

// FarmerOverview reports the same figures restricted to one farmer's lines,
// plus that farmer's catalog.
func (s *OverviewService) FarmerOverview(ctx context.Context, farmerID string) (*models.FarmerOverview, error) {
	if _, err := requireRole(ctx, s.store, farmerID, models.RoleFarmer); err != nil {
		return nil, err
	}
	ov, err := s.overview(ctx, farmerID)
	if err != nil {
		return nil, err
	}
	lines, err := s.store.ListProductLines(ctx, farmerID)
	if err != nil {
		return nil, err
	}
	products, err := s.store.ListProducts(ctx, models.ProductFilter{FarmerID: farmerID})
	if err != nil {
		return nil, err
	}
	return &models.FarmerOverview{
		Overview:     *ov,
		ProductLines: lines,
		Products:     products,
		MostStock:    mostStock(products),
	}, nil
}

func (s *OverviewService) overview(ctx context.Context, farmerID string) (*models.Overview, error) {
	orders, err := s.store.ListOrdersByStatus(ctx, models.CompletedStatuses)
	if err != nil {
		return nil, err
	}
	qs := QuarterStart(s.now())

	revenue := decimal.Zero
	sold := make(map[string]int)
	for _, o := range orders {
		if !o.Status.IsCompleted() {
			continue
		}
		if farmerID == "" {
			revenue = revenue.Add(o.TotalPrice)
		}
		inQuarter := !o.CreatedAt.Before(qs)
		for _, l := range o.Lines {
			if farmerID != "" {
				if l.FarmerID != farmerID {
					continue
				}
				revenue = revenue.Add(l.Total())
			}
			if inQuarter && l.ProductLineID != "" {
				sold[l.ProductLineID] += l.Quantity
			}
		}
	}

	top, err := s.topProductLine(ctx, sold)
	if err != nil {
		return nil, err
	}
	return &models.Overview{Revenue: revenue, TopProductLine: top, QuarterStart: qs}, nil
}

// topProductLine picks the line with the most units sold. Ties go to the
// name that sorts first, then the id.
func (s *OverviewService) topProductLine(ctx context.Context, sold map[string]int) (*models.ProductLineSales, error) {
	var best *models.ProductLineSales
	for id, qty := range sold {
		if best != nil && qty < best.TotalSold {
			continue
		}
		name, err := s.lineName(ctx, id)
		if err != nil {
			return nil, err
		}
		cand := &models.ProductLineSales{ID: id, Name: name, TotalSold: qty}
		if best == nil || salesBefore(cand, best) {
			best = cand
		}
	}
	return best, nil
}

func salesBefore(a, b *models.ProductLineSales) bool {
	if a.TotalSold != b.TotalSold {
		return a.TotalSold > b.TotalSold
	}
	if a.Name != b.Name {
		return a.Name < b.Name
	}
	return a.ID < b.ID
}

func (s *OverviewService) lineName(ctx context.Context, id string) (string, error) {
	l, err := s.store.GetProductLine(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return l.Name, nil
}

func mostStock(products []models.Product) *models.Product {
	var best *models.Product
	for i := range products {
		p := &products[i]
		if best == nil || p.Quantity > best.Quantity ||
			(p.Quantity == best.Quantity && (p.Name < best.Name || (p.Name == best.Name && p.ID < best.ID))) {
			best = p
		}
	}
	return best
}

// QuarterStart returns midnight on the first day of t's calendar quarter
func QuarterStart(t time.Time) time.Time {
	month := time.Month((int(t.Month())-1)/3*3 + 1)
	return time.Date(t.Year(), month, 1, 0, 0, 0, 0, t.Location())
}
