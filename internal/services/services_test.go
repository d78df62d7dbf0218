package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/agrichain/marketplace/internal/auth"
	"github.com/agrichain/marketplace/internal/cache"
	"github.com/agrichain/marketplace/internal/metrics"
	"github.com/agrichain/marketplace/internal/models"
	"github.com/agrichain/marketplace/internal/store/memstore"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// fixture wires every service over one in-memory store
type fixture struct {
	store    *memstore.Store
	accounts *AccountService
	catalog  *CatalogService
	carts    *CartService
	checkout *CheckoutService
	overview *OverviewService
	notifier *recordingNotifier
	events   *recordingPublisher

	customer *models.Account
	farmer   *models.Account
	line     *models.ProductLine
	seq      int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithCache(t, cache.Nop{})
}

func newFixtureWithCache(t *testing.T, c cache.Cache) *fixture {
	t.Helper()
	st := memstore.New()
	m := metrics.NewNoop()

	f := &fixture{
		store:    st,
		notifier: &recordingNotifier{},
		events:   &recordingPublisher{},
	}
	f.accounts = NewAccountService(st, auth.NewIssuer("test-secret", time.Hour))
	f.catalog = NewCatalogService(st, st, c, m, "https://agri.test/")
	f.carts = NewCartService(st, st, st, m)
	f.checkout = NewCheckoutService(st, st, f.catalog, f.notifier, f.events, m)
	f.overview = NewOverviewService(st)

	f.customer = f.seedAccount(t, "customer-1", models.RoleCustomer)
	f.farmer = f.seedAccount(t, "farmer-1", models.RoleFarmer)
	f.line = f.seedLine(t, f.farmer.ID, "Basmati Rice", models.LineApproved)
	return f
}

func (f *fixture) seedAccount(t *testing.T, id string, role models.Role) *models.Account {
	t.Helper()
	a := &models.Account{ID: id, Name: id, Email: id + "@agri.test", Role: role, CreatedAt: time.Now().UTC()}
	require.NoError(t, f.store.CreateAccount(context.Background(), a))
	return a
}

func (f *fixture) seedLine(t *testing.T, farmerID, name string, status models.ProductLineStatus) *models.ProductLine {
	t.Helper()
	f.seq++
	l := &models.ProductLine{
		ID:       fmt.Sprintf("line-%d", f.seq),
		Name:     name,
		FarmerID: farmerID,
		BatchID:  fmt.Sprintf("BATCH-%d", f.seq),
		Image:    "https://img.test/line.png",
		Status:   status,
	}
	require.NoError(t, f.store.CreateProductLine(context.Background(), l))
	return l
}

func (f *fixture) seedProduct(t *testing.T, name, price string, qty int) *models.Product {
	t.Helper()
	return f.seedProductOn(t, f.line, name, price, qty)
}

func (f *fixture) seedProductOn(t *testing.T, line *models.ProductLine, name, price string, qty int) *models.Product {
	t.Helper()
	f.seq++
	p := &models.Product{
		ID:            fmt.Sprintf("product-%d", f.seq),
		ProductLineID: line.ID,
		FarmerID:      line.FarmerID,
		Name:          name,
		Price:         decimal.RequireFromString(price),
		Quantity:      qty,
		Unit:          "kg",
		Image:         "https://img.test/" + name + ".png",
	}
	require.NoError(t, f.store.CreateProduct(context.Background(), p))
	return p
}

func (f *fixture) quantity(t *testing.T, productID string) int {
	t.Helper()
	p, err := f.store.GetProduct(context.Background(), productID)
	require.NoError(t, err)
	return p.Quantity
}

type recordingNotifier struct {
	mu     sync.Mutex
	orders []string
}

func (r *recordingNotifier) OrderPlaced(_ context.Context, _ *models.Account, o *models.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders = append(r.orders, o.ID)
	return nil
}

func (r *recordingNotifier) sent() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string{}, r.orders...)
}

type recordingPublisher struct {
	mu     sync.Mutex
	orders []string
}

func (r *recordingPublisher) PublishOrderPlaced(_ context.Context, o *models.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders = append(r.orders, o.ID)
	return nil
}

func (r *recordingPublisher) published() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string{}, r.orders...)
}
