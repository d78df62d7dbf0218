package services

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/agrichain/marketplace/internal/apperr"
	"github.com/agrichain/marketplace/internal/events"
	"github.com/agrichain/marketplace/internal/metrics"
	"github.com/agrichain/marketplace/internal/models"
	"github.com/agrichain/marketplace/internal/notify"
	"github.com/agrichain/marketplace/internal/store"
)

const notifyTimeout = 30 * time.Second

// CheckoutService turns client-submitted carts into orders
type CheckoutService struct {
	accounts  store.Accounts
	orders    store.Orders
	catalog   *CatalogService
	notifier  notify.Notifier
	publisher events.Publisher
	metrics   *metrics.AppMetrics
	now       Clock
	newID     IDFunc

	// pending tracks confirmation emails and events still in flight
	pending sync.WaitGroup
}

// NewCheckoutService creates a new checkout service
func NewCheckoutService(accounts store.Accounts, orders store.Orders, catalog *CatalogService,
	notifier notify.Notifier, publisher events.Publisher, m *metrics.AppMetrics) *CheckoutService {
	return &CheckoutService{
		accounts:  accounts,
		orders:    orders,
		catalog:   catalog,
		notifier:  notifier,
		publisher: publisher,
		metrics:   m,
		now:       timeNow,
		newID:     newUUID,
	}
}

// Checkout places an order for the submitted lines. Either every line is
// bought or nothing changes.
func (s *CheckoutService) Checkout(ctx context.Context, req models.CheckoutRequest) (*models.Order, error) {
	order, err := s.checkout(ctx, req)
	if err != nil {
		reason := failureReason(err)
		s.metrics.RecordCheckoutFailure(ctx, reason)
		log.Printf("[ORDER] Checkout for customer %s failed (%s): %v", req.Customer, reason, err)
		return nil, err
	}
	return order, nil
}

func (s *CheckoutService) checkout(ctx context.Context, req models.CheckoutRequest) (*models.Order, error) {
	if len(req.Cart) == 0 {
		return nil, apperr.ErrCartEmpty
	}
	lines, err := mergeLines(req.Cart)
	if err != nil {
		return nil, err
	}
	customer, err := requireRole(ctx, s.accounts, req.Customer, models.RoleCustomer)
	if err != nil {
		return nil, err
	}

	order, err := s.orders.PlaceOrder(ctx, store.PlaceOrderRequest{
		OrderID:    s.newID(),
		CustomerID: customer.ID,
		Lines:      lines,
		CreatedAt:  s.now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(lines))
	for i, l := range lines {
		ids[i] = l.ProductID
	}
	s.catalog.InvalidateProducts(ctx, ids...)
	s.metrics.RecordOrder(ctx, order)
	s.metrics.RecordCartItems(ctx, customer.ID, 0)
	s.recordInventory(ctx, ids)

	s.afterCommit(ctx, customer, order)
	return order, nil
}

// mergeLines validates the submitted lines and folds repeated products into
// the first occurrence, keeping input order.
func mergeLines(in []models.CheckoutLine) ([]models.CheckoutLine, error) {
	out := make([]models.CheckoutLine, 0, len(in))
	index := make(map[string]int, len(in))
	for i, l := range in {
		if l.ProductID == "" {
			return nil, apperr.Validation("cart line %d: product is required", i)
		}
		if l.Quantity < 1 {
			return nil, apperr.Validation("cart line %d: quantity must be at least 1", i)
		}
		if j, ok := index[l.ProductID]; ok {
			out[j].Quantity += l.Quantity
			continue
		}
		index[l.ProductID] = len(out)
		out = append(out, l)
	}
	return out, nil
}

func (s *CheckoutService) recordInventory(ctx context.Context, ids []string) {
	for _, id := range ids {
		p, err := s.catalog.catalog.GetProduct(ctx, id)
		if err != nil {
			continue
		}
		s.metrics.RecordInventory(ctx, p.ID, p.Quantity)
	}
}

// afterCommit sends the confirmation email and order event in the
// background. Neither can fail the checkout.
func (s *CheckoutService) afterCommit(ctx context.Context, customer *models.Account, order *models.Order) {
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		defer cancel()

		if err := s.notifier.OrderPlaced(ctx, customer, order); err != nil {
			log.Printf("[EMAIL] Warning: %v", err)
		}
		if err := s.publisher.PublishOrderPlaced(ctx, order); err != nil {
			log.Printf("[EVENTS] Warning: %v", err)
		}
	}()
}

// Wait blocks until background notifications have finished
func (s *CheckoutService) Wait() {
	s.pending.Wait()
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, apperr.ErrCartEmpty):
		return "cart_empty"
	case errors.Is(err, apperr.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, apperr.ErrNotFound):
		return "not_found"
	case errors.Is(err, apperr.ErrValidation):
		return "validation"
	default:
		return "storage"
	}
}

// OrderHistory lists a customer's orders, newest first
func (s *CheckoutService) OrderHistory(ctx context.Context, customerID string) ([]models.Order, error) {
	if _, err := requireRole(ctx, s.accounts, customerID, models.RoleCustomer); err != nil {
		return nil, err
	}
	return s.orders.ListOrdersByCustomer(ctx, customerID)
}

// GetOrder returns a single order
func (s *CheckoutService) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	return s.orders.GetOrder(ctx, id)
}
