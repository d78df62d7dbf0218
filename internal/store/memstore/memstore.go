// Package memstore is an in-process implementation of store.Store. It backs
// local development (STORE_DRIVER=memory) and the service tests.
package memstore

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/agrichain/marketplace/internal/apperr"
	"github.com/agrichain/marketplace/internal/models"
	"github.com/agrichain/marketplace/internal/store"
)

// Store keeps every collection in maps guarded by one mutex. Listing order
// follows insertion order, newest first where the other backends sort by
// created_at descending.
type Store struct {
	mu sync.RWMutex

	accounts     map[string]models.Account
	accountOrder []string
	carts        map[string][]models.CartLine
	lines        map[string]models.ProductLine
	lineOrder    []string
	products     map[string]models.Product
	productOrder []string
	orders       map[string]models.Order
	orderOrder   []string
}

var _ store.Store = (*Store)(nil)

// New returns an empty store
func New() *Store {
	return &Store{
		accounts: make(map[string]models.Account),
		carts:    make(map[string][]models.CartLine),
		lines:    make(map[string]models.ProductLine),
		products: make(map[string]models.Product),
		orders:   make(map[string]models.Order),
	}
}

func (s *Store) Ping(ctx context.Context) error  { return ctx.Err() }
func (s *Store) Close(ctx context.Context) error { return nil }

// Accounts

func (s *Store) CreateAccount(ctx context.Context, a *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[a.ID]; ok {
		return apperr.Conflict("account %s", a.ID)
	}
	for _, existing := range s.accounts {
		if strings.EqualFold(existing.Email, a.Email) && existing.Role == a.Role {
			return apperr.Conflict("email %s already registered as %s", a.Email, a.Role)
		}
	}
	s.accounts[a.ID] = *a
	s.accountOrder = append(s.accountOrder, a.ID)
	return nil
}

func (s *Store) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, apperr.NotFound("account", id)
	}
	return &a, nil
}

func (s *Store) GetAccountByEmail(ctx context.Context, email string, role models.Role) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.accounts {
		if strings.EqualFold(a.Email, email) && a.Role == role {
			return &a, nil
		}
	}
	return nil, apperr.NotFound("account", email)
}

func (s *Store) ListAccounts(ctx context.Context) ([]models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Account, 0, len(s.accountOrder))
	for _, id := range s.accountOrder {
		out = append(out, s.accounts[id])
	}
	return out, nil
}

// Carts

func (s *Store) GetCart(ctx context.Context, customerID string) ([]models.CartLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.CartLine{}, s.carts[customerID]...), nil
}

func (s *Store) AdjustCartLine(ctx context.Context, customerID string, item models.CartLine, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if lines, changed := models.ApplyCartDelta(s.carts[customerID], item, delta); changed {
		s.setCart(customerID, lines)
	}
	return nil
}

func (s *Store) RemoveCartLine(ctx context.Context, customerID, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	lines := s.carts[customerID]
	kept := make([]models.CartLine, 0, len(lines))
	for _, l := range lines {
		if l.ProductID != productID {
			kept = append(kept, l)
		}
	}
	s.setCart(customerID, kept)
	return nil
}

// setCart stores lines, dropping the cart when it is empty. Callers hold mu.
func (s *Store) setCart(customerID string, lines []models.CartLine) {
	if len(lines) == 0 {
		delete(s.carts, customerID)
		return
	}
	s.carts[customerID] = lines
}

func (s *Store) CountActiveCarts(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.carts), nil
}

// Product lines

func (s *Store) CreateProductLine(ctx context.Context, l *models.ProductLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.lines {
		if existing.BatchID == l.BatchID {
			return apperr.Conflict("batch ID %s", l.BatchID)
		}
	}
	s.lines[l.ID] = *l
	s.lineOrder = append(s.lineOrder, l.ID)
	return nil
}

func (s *Store) GetProductLine(ctx context.Context, id string) (*models.ProductLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.lines[id]
	if !ok {
		return nil, apperr.NotFound("product line", id)
	}
	return &l, nil
}

func (s *Store) GetProductLineByBatch(ctx context.Context, batchID string) (*models.ProductLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, l := range s.lines {
		if l.BatchID == batchID {
			return &l, nil
		}
	}
	return nil, apperr.NotFound("product line batch", batchID)
}

func (s *Store) ListProductLines(ctx context.Context, farmerID string) ([]models.ProductLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.ProductLine{}
	for i := len(s.lineOrder) - 1; i >= 0; i-- {
		l := s.lines[s.lineOrder[i]]
		if farmerID == "" || l.FarmerID == farmerID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *Store) SetProductLineStatus(ctx context.Context, id string, status models.ProductLineStatus) (*models.ProductLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lines[id]
	if !ok {
		return nil, apperr.NotFound("product line", id)
	}
	l.Status = status
	l.UpdatedAt = time.Now().UTC()
	s.lines[id] = l
	return &l, nil
}

// Products

func (s *Store) CreateProduct(ctx context.Context, p *models.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[p.ID]; ok {
		return apperr.Conflict("product %s", p.ID)
	}
	s.products[p.ID] = *p
	s.productOrder = append(s.productOrder, p.ID)
	return nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	if !ok {
		return nil, apperr.NotFound("product", id)
	}
	return &p, nil
}

func (s *Store) ListProducts(ctx context.Context, f models.ProductFilter) ([]models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keyword := strings.ToLower(f.Keyword)
	out := []models.Product{}
	for i := len(s.productOrder) - 1; i >= 0; i-- {
		p, ok := s.products[s.productOrder[i]]
		if !ok {
			continue
		}
		if f.FarmerID != "" && p.FarmerID != f.FarmerID {
			continue
		}
		if f.ProductLineID != "" && p.ProductLineID != f.ProductLineID {
			continue
		}
		if f.ApprovedOnly && s.lines[p.ProductLineID].Status != models.LineApproved {
			continue
		}
		if keyword != "" && !strings.Contains(strings.ToLower(p.Name), keyword) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *Store) UpdateProduct(ctx context.Context, id string, upd store.ProductUpdate) (*models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return nil, apperr.NotFound("product", id)
	}
	if upd.Price != nil {
		p.Price = *upd.Price
	}
	if upd.Quantity != nil {
		p.Quantity = *upd.Quantity
	}
	p.UpdatedAt = time.Now().UTC()
	s.products[id] = p
	return &p, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[id]; !ok {
		return apperr.NotFound("product", id)
	}
	delete(s.products, id)
	for i, pid := range s.productOrder {
		if pid == id {
			s.productOrder = append(s.productOrder[:i], s.productOrder[i+1:]...)
			break
		}
	}
	return nil
}

// Orders

// PlaceOrder validates every line before touching stock; the whole
// read-check-write runs under the write lock.
func (s *Store) PlaceOrder(ctx context.Context, req store.PlaceOrderRequest) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshots := make([]models.OrderLine, 0, len(req.Lines))
	remaining := make(map[string]int, len(req.Lines))
	for _, item := range req.Lines {
		p, ok := s.products[item.ProductID]
		if !ok {
			return nil, apperr.NotFound("product", item.ProductID)
		}
		left, seen := remaining[p.ID]
		if !seen {
			left = p.Quantity
		}
		if left < item.Quantity {
			return nil, &apperr.StockError{
				ProductID:   p.ID,
				ProductName: p.Name,
				Requested:   item.Quantity,
				Available:   left,
			}
		}
		remaining[p.ID] = left - item.Quantity
		snapshots = append(snapshots, models.SnapshotLine(&p, item.Quantity))
	}

	now := req.CreatedAt
	for _, item := range req.Lines {
		p := s.products[item.ProductID]
		p.Quantity -= item.Quantity
		p.UpdatedAt = now
		s.products[item.ProductID] = p
	}

	order := models.NewOrder(req.OrderID, req.CustomerID, snapshots, now)
	s.orders[order.ID] = *order
	s.orderOrder = append(s.orderOrder, order.ID)
	delete(s.carts, req.CustomerID)

	return copyOrder(order), nil
}

func (s *Store) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, apperr.NotFound("order", id)
	}
	return copyOrder(&o), nil
}

func (s *Store) ListOrdersByCustomer(ctx context.Context, customerID string) ([]models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.Order{}
	for i := len(s.orderOrder) - 1; i >= 0; i-- {
		o := s.orders[s.orderOrder[i]]
		if o.CustomerID == customerID {
			out = append(out, *copyOrder(&o))
		}
	}
	return out, nil
}

func (s *Store) ListOrdersByStatus(ctx context.Context, statuses []models.OrderStatus) ([]models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.Order{}
	for _, id := range s.orderOrder {
		o := s.orders[id]
		for _, st := range statuses {
			if strings.EqualFold(string(o.Status), string(st)) {
				out = append(out, *copyOrder(&o))
				break
			}
		}
	}
	return out, nil
}

// PutOrder stores an order as-is. It exists for seeding historical data.
func (s *Store) PutOrder(o models.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = *copyOrder(&o)
	s.orderOrder = append(s.orderOrder, o.ID)
}

func copyOrder(o *models.Order) *models.Order {
	c := *o
	c.Lines = append([]models.OrderLine{}, o.Lines...)
	return &c
}
