package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/agrichain/marketplace/internal/apperr"
	"github.com/agrichain/marketplace/internal/cache"
	"github.com/agrichain/marketplace/internal/metrics"
	"github.com/agrichain/marketplace/internal/models"
	"github.com/agrichain/marketplace/internal/store"
	"github.com/shopspring/decimal"
	"github.com/skip2/go-qrcode"
)

const productCacheName = "product"

// CatalogService manages product lines and the products sold under them
type CatalogService struct {
	catalog     store.Catalog
	accounts    store.Accounts
	cache       cache.Cache
	metrics     *metrics.AppMetrics
	frontendURL string
	now         Clock
	newID       IDFunc
}

// NewCatalogService creates a new catalog service. Product reads go through
// c; pass cache.Nop{} to disable caching.
func NewCatalogService(catalog store.Catalog, accounts store.Accounts, c cache.Cache, m *metrics.AppMetrics, frontendURL string) *CatalogService {
	return &CatalogService{
		catalog:     catalog,
		accounts:    accounts,
		cache:       c,
		metrics:     m,
		frontendURL: strings.TrimRight(frontendURL, "/"),
		now:         timeNow,
		newID:       newUUID,
	}
}

// ============================================
// PRODUCT LINES
// ============================================

// CreateProductLine registers a batch for review and attaches its QR code
func (s *CatalogService) CreateProductLine(ctx context.Context, req models.CreateProductLineRequest) (*models.ProductLine, error) {
	name := strings.TrimSpace(req.Name)
	batchID := strings.TrimSpace(req.BatchID)
	if name == "" {
		return nil, apperr.Validation("name is required")
	}
	if batchID == "" {
		return nil, apperr.Validation("batchId is required")
	}
	if _, err := requireRole(ctx, s.accounts, req.Farmer, models.RoleFarmer); err != nil {
		return nil, err
	}

	if _, err := s.catalog.GetProductLineByBatch(ctx, batchID); err == nil {
		return nil, apperr.Conflict("product line with batch id %s", batchID)
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}

	id := s.newID()
	qr, err := s.qrDataURL(id)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	l := &models.ProductLine{
		ID:                  id,
		Name:                name,
		FarmerID:            req.Farmer,
		Location:            req.Location,
		CultivationProcess:  req.CultivationProcess,
		PackagingUnit:       req.PackagingUnit,
		Certifications:      req.Certifications,
		HarvestDate:         req.HarvestDate,
		BatchID:             batchID,
		TransportationRoute: req.TransportationRoute,
		Description:         req.Description,
		Image:               req.Image,
		QRCode:              qr,
		Status:              models.LinePending,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := s.catalog.CreateProductLine(ctx, l); err != nil {
		return nil, err
	}

	log.Printf("[CATALOG] Product line %s (batch %s) submitted by farmer %s", l.ID, l.BatchID, l.FarmerID)
	return l, nil
}

// qrDataURL renders a PNG QR code pointing at the line's public detail page
func (s *CatalogService) qrDataURL(lineID string) (string, error) {
	target := fmt.Sprintf("%s/myProducts/productLineDetail/%s", s.frontendURL, lineID)
	png, err := qrcode.Encode(target, qrcode.Medium, 256)
	if err != nil {
		return "", fmt.Errorf("failed to generate QR code: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

// ListProductLines returns product lines, optionally for one farmer
func (s *CatalogService) ListProductLines(ctx context.Context, farmerID string) ([]models.ProductLine, error) {
	return s.catalog.ListProductLines(ctx, farmerID)
}

// GetProductLine returns a product line by id
func (s *CatalogService) GetProductLine(ctx context.Context, id string) (*models.ProductLine, error) {
	return s.catalog.GetProductLine(ctx, id)
}

// GetProductLineByBatch returns the line registered under batchID with its products
func (s *CatalogService) GetProductLineByBatch(ctx context.Context, batchID string) (*models.ProductLineDetail, error) {
	l, err := s.catalog.GetProductLineByBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	products, err := s.catalog.ListProducts(ctx, models.ProductFilter{ProductLineID: l.ID})
	if err != nil {
		return nil, err
	}
	return &models.ProductLineDetail{ProductLine: l, Products: products}, nil
}

// ApproveProductLine marks a line approved so products can be listed on it
func (s *CatalogService) ApproveProductLine(ctx context.Context, id string) (*models.ProductLine, error) {
	return s.setLineStatus(ctx, id, models.LineApproved)
}

// RejectProductLine marks a line rejected
func (s *CatalogService) RejectProductLine(ctx context.Context, id string) (*models.ProductLine, error) {
	return s.setLineStatus(ctx, id, models.LineRejected)
}

func (s *CatalogService) setLineStatus(ctx context.Context, id string, status models.ProductLineStatus) (*models.ProductLine, error) {
	l, err := s.catalog.SetProductLineStatus(ctx, id, status)
	if err != nil {
		return nil, err
	}
	log.Printf("[CATALOG] Product line %s is now %s", id, status)
	return l, nil
}

// ============================================
// PRODUCTS
// ============================================

// CreateProduct lists a product under an approved line
func (s *CatalogService) CreateProduct(ctx context.Context, req models.CreateProductRequest) (*models.Product, error) {
	name := strings.TrimSpace(req.Name)
	unit := strings.TrimSpace(req.Unit)
	switch {
	case name == "":
		return nil, apperr.Validation("name is required")
	case unit == "":
		return nil, apperr.Validation("unit is required")
	case req.ProductLine == "":
		return nil, apperr.Validation("productLine is required")
	case req.Price.IsNegative():
		return nil, apperr.Validation("price must not be negative")
	case req.Quantity < 0:
		return nil, apperr.Validation("quantity must not be negative")
	}

	line, err := s.catalog.GetProductLine(ctx, req.ProductLine)
	if err != nil {
		return nil, err
	}
	if line.Status != models.LineApproved {
		return nil, apperr.Validation("product line %s is %s, not approved", line.ID, line.Status)
	}
	farmer := req.Farmer
	if farmer == "" {
		farmer = line.FarmerID
	}
	if farmer != line.FarmerID {
		return nil, fmt.Errorf("product line %s belongs to another farmer: %w", line.ID, apperr.ErrForbidden)
	}
	image := req.Image
	if image == "" {
		image = line.Image
	}

	now := s.now().UTC()
	p := &models.Product{
		ID:            s.newID(),
		ProductLineID: line.ID,
		FarmerID:      farmer,
		Name:          name,
		Price:         req.Price,
		Quantity:      req.Quantity,
		Unit:          unit,
		Image:         image,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.catalog.CreateProduct(ctx, p); err != nil {
		return nil, err
	}

	s.metrics.RecordInventory(ctx, p.ID, p.Quantity)
	log.Printf("[CATALOG] Product %s (%s) listed on line %s", p.ID, p.Name, line.ID)
	return p, nil
}

// ListProducts returns products matching f
func (s *CatalogService) ListProducts(ctx context.Context, f models.ProductFilter) ([]models.Product, error) {
	return s.catalog.ListProducts(ctx, f)
}

// GetProduct returns a product, served from cache when possible
func (s *CatalogService) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	var cached models.Product
	err := s.cache.Get(ctx, productKey(id), &cached)
	switch {
	case err == nil:
		s.metrics.RecordCache(ctx, productCacheName, true)
		return &cached, nil
	case !errors.Is(err, cache.ErrMiss):
		log.Printf("[CACHE] Warning: product lookup for %s bypassed cache: %v", id, err)
	}
	s.metrics.RecordCache(ctx, productCacheName, false)

	p, err := s.catalog.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, productKey(id), p); err != nil {
		log.Printf("[CACHE] Warning: failed to cache product %s: %v", id, err)
	}
	return p, nil
}

// UpdatePrice sets a product's unit price. Existing orders keep their snapshot.
func (s *CatalogService) UpdatePrice(ctx context.Context, id string, price decimal.Decimal) (*models.Product, error) {
	if price.IsNegative() {
		return nil, apperr.Validation("price must not be negative")
	}
	return s.update(ctx, id, store.ProductUpdate{Price: &price})
}

// UpdateQuantity sets a product's available stock
func (s *CatalogService) UpdateQuantity(ctx context.Context, id string, quantity int) (*models.Product, error) {
	if quantity < 0 {
		return nil, apperr.Validation("quantity must not be negative")
	}
	p, err := s.update(ctx, id, store.ProductUpdate{Quantity: &quantity})
	if err != nil {
		return nil, err
	}
	s.metrics.RecordInventory(ctx, p.ID, p.Quantity)
	return p, nil
}

func (s *CatalogService) update(ctx context.Context, id string, upd store.ProductUpdate) (*models.Product, error) {
	p, err := s.catalog.UpdateProduct(ctx, id, upd)
	if err != nil {
		return nil, err
	}
	s.InvalidateProducts(ctx, id)
	return p, nil
}

// DeleteProduct removes a product
func (s *CatalogService) DeleteProduct(ctx context.Context, id string) error {
	if err := s.catalog.DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.InvalidateProducts(ctx, id)
	log.Printf("[CATALOG] Product %s deleted", id)
	return nil
}

// InvalidateProducts drops cached copies of the given products
func (s *CatalogService) InvalidateProducts(ctx context.Context, ids ...string) {
	if len(ids) == 0 {
		return
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = productKey(id)
	}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		log.Printf("[CACHE] Warning: failed to invalidate %d product(s): %v", len(ids), err)
	}
}

func productKey(id string) string {
	return "product:" + id
}
