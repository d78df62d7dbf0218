package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/agrichain/marketplace/internal/auth"
	"github.com/agrichain/marketplace/internal/cache"
	"github.com/agrichain/marketplace/internal/events"
	"github.com/agrichain/marketplace/internal/insights"
	"github.com/agrichain/marketplace/internal/metrics"
	"github.com/agrichain/marketplace/internal/models"
	"github.com/agrichain/marketplace/internal/notify"
	"github.com/agrichain/marketplace/internal/services"
	"github.com/agrichain/marketplace/internal/store/memstore"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	router   *mux.Router
	store    *memstore.Store
	issuer   *auth.Issuer
	checkout *services.CheckoutService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	st := memstore.New()
	m := metrics.NewNoop()
	issuer := auth.NewIssuer("test-secret", time.Hour)

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(down.Close)

	catalog := services.NewCatalogService(st, st, cache.Nop{}, m, "https://agri.test")
	checkout := services.NewCheckoutService(st, st, catalog, notify.Nop{}, events.Nop{}, m)
	app := NewApp(st, issuer, m, "test", Services{
		Accounts: services.NewAccountService(st, issuer),
		Catalog:  catalog,
		Carts:    services.NewCartService(st, st, st, m),
		Checkout: checkout,
		Overview: services.NewOverviewService(st),
		Insights: insights.New(insights.Options{
			GeocodingURL: down.URL,
			ForecastURL:  down.URL,
			NewsFeedURL:  down.URL,
			HTTPClient:   down.Client(),
		}, cache.Nop{}),
	})

	r := mux.NewRouter()
	app.SetupRoutes(r)
	t.Cleanup(checkout.Wait)
	return &testServer{router: r, store: st, issuer: issuer, checkout: checkout}
}

func (s *testServer) account(t *testing.T, id string, role models.Role) string {
	t.Helper()
	a := &models.Account{ID: id, Name: id, Email: id + "@agri.test", Role: role}
	require.NoError(t, s.store.CreateAccount(context.Background(), a))
	token, err := s.issuer.Generate(a)
	require.NoError(t, err)
	return token
}

func (s *testServer) product(t *testing.T, farmerID string, qty int) *models.Product {
	t.Helper()
	ctx := context.Background()
	line := &models.ProductLine{ID: "line-" + farmerID, Name: "Wheat", FarmerID: farmerID, BatchID: "B-" + farmerID, Status: models.LineApproved}
	require.NoError(t, s.store.CreateProductLine(ctx, line))
	p := &models.Product{
		ID: "p-" + farmerID, ProductLineID: line.ID, FarmerID: farmerID,
		Name: "Wheat 1kg", Price: decimal.NewFromInt(5), Quantity: qty, Unit: "kg",
	}
	require.NoError(t, s.store.CreateProduct(ctx, p))
	return p
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return rec, out
}

func TestRegisterAndLoginFlow(t *testing.T) {
	s := newTestServer(t)

	rec, body := s.do(t, http.MethodPost, "/users/register", "", map[string]string{
		"name": "Meera", "email": "meera@agri.test", "password": "secret1", "role": "customer",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "User registered successfully", body["message"])
	user := body["user"].(map[string]any)
	assert.NotContains(t, user, "passwordHash")

	rec, body = s.do(t, http.MethodPost, "/users/register", "", map[string]string{
		"name": "Meera", "email": "meera@agri.test", "password": "secret1", "role": "customer",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.NotEmpty(t, body["error"])

	rec, body = s.do(t, http.MethodPost, "/users/login", "", map[string]string{
		"email": "meera@agri.test", "password": "secret1", "role": "customer",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, body["token"])

	rec, _ = s.do(t, http.MethodPost, "/users/login", "", map[string]string{
		"email": "meera@agri.test", "password": "nope!!", "role": "customer",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCartAndCheckoutFlow(t *testing.T) {
	s := newTestServer(t)
	customer := s.account(t, "c1", models.RoleCustomer)
	s.account(t, "f1", models.RoleFarmer)
	p := s.product(t, "f1", 10)

	rec, body := s.do(t, http.MethodPost, "/customers/cart/add", customer, map[string]any{
		"customer": "c1", "product": p.ID, "quantity": 3,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	cart := body["cart"].([]any)
	require.Len(t, cart, 1)
	line := cart[0].(map[string]any)
	assert.Equal(t, p.ID, line["product"])
	assert.EqualValues(t, 3, line["quantity"])
	assert.EqualValues(t, 10, line["availableQuantity"])

	rec, body = s.do(t, http.MethodGet, "/customers/cart/c1", customer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["cart"], 1)

	rec, body = s.do(t, http.MethodPost, "/checkout", customer, map[string]any{
		"customer": "c1", "cart": []map[string]any{{"product": p.ID, "quantity": 3}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, body)
	order := body["order"].(map[string]any)
	assert.Equal(t, "15", order["totalPrice"])
	orderID := order["id"].(string)

	got, err := s.store.GetProduct(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, got.Quantity)

	rec, body = s.do(t, http.MethodGet, "/customers/cart/c1", customer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, body["cart"])

	rec, body = s.do(t, http.MethodGet, "/orders/c1", customer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["orders"], 1)

	rec, _ = s.do(t, http.MethodGet, "/orders/detail/"+orderID, customer, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCheckoutErrorStatuses(t *testing.T) {
	s := newTestServer(t)
	customer := s.account(t, "c1", models.RoleCustomer)
	s.account(t, "f1", models.RoleFarmer)
	p := s.product(t, "f1", 2)

	rec, body := s.do(t, http.MethodPost, "/checkout", customer, map[string]any{"customer": "c1", "cart": []any{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "please add products to cart", body["error"])

	rec, body = s.do(t, http.MethodPost, "/checkout", customer, map[string]any{
		"customer": "c1", "cart": []map[string]any{{"product": p.ID, "quantity": 5}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, body["message"], "Not enough quantity for: Wheat 1kg")

	rec, _ = s.do(t, http.MethodPost, "/checkout", customer, map[string]any{
		"customer": "c1", "cart": []map[string]any{{"product": "ghost", "quantity": 1}},
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	got, err := s.store.GetProduct(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Quantity)
}

func TestAccessControl(t *testing.T) {
	s := newTestServer(t)
	customer := s.account(t, "c1", models.RoleCustomer)
	s.account(t, "c2", models.RoleCustomer)
	farmer := s.account(t, "f1", models.RoleFarmer)
	otherFarmer := s.account(t, "f2", models.RoleFarmer)
	admin := s.account(t, "a1", models.RoleAdmin)
	p := s.product(t, "f1", 10)

	cases := []struct {
		name   string
		method string
		path   string
		token  string
		body   any
		status int
	}{
		{"no token", http.MethodGet, "/customers/cart/c1", "", nil, http.StatusUnauthorized},
		{"farmer cannot shop", http.MethodPost, "/customers/cart/add", farmer, map[string]any{"product": p.ID, "quantity": 1}, http.StatusForbidden},
		{"other customer's cart", http.MethodGet, "/customers/cart/c2", customer, nil, http.StatusForbidden},
		{"customer lists users", http.MethodGet, "/users", customer, nil, http.StatusForbidden},
		{"admin lists users", http.MethodGet, "/users", admin, nil, http.StatusOK},
		{"self account", http.MethodGet, "/users/c1", customer, nil, http.StatusOK},
		{"other account", http.MethodGet, "/users/c2", customer, nil, http.StatusForbidden},
		{"foreign product price", http.MethodPut, "/products/" + p.ID + "/price", otherFarmer, map[string]any{"price": 9}, http.StatusForbidden},
		{"own product price", http.MethodPut, "/products/" + p.ID + "/price", farmer, map[string]any{"price": "9.50"}, http.StatusOK},
		{"admin overview as farmer", http.MethodGet, "/admin/overview", farmer, nil, http.StatusForbidden},
		{"admin overview", http.MethodGet, "/admin/overview", admin, nil, http.StatusOK},
		{"own farmer overview", http.MethodGet, "/farmers/f1/overview", farmer, nil, http.StatusOK},
		{"foreign farmer overview", http.MethodGet, "/farmers/f1/overview", otherFarmer, nil, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, _ := s.do(t, tc.method, tc.path, tc.token, tc.body)
			assert.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestProductLineLifecycle(t *testing.T) {
	s := newTestServer(t)
	farmer := s.account(t, "f1", models.RoleFarmer)
	admin := s.account(t, "a1", models.RoleAdmin)

	rec, body := s.do(t, http.MethodPost, "/product-lines", farmer, map[string]any{"name": "Turmeric", "batchId": "TUR-1"})
	require.Equal(t, http.StatusCreated, rec.Code, body)
	line := body["productLine"].(map[string]any)
	lineID := line["id"].(string)
	assert.Equal(t, "pending", line["status"])
	assert.Equal(t, "f1", line["farmer"])

	product := map[string]any{"productLine": lineID, "name": "Turmeric 500g", "price": 3.5, "quantity": 20, "unit": "pack"}
	rec, _ = s.do(t, http.MethodPost, "/products", farmer, product)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = s.do(t, http.MethodPut, "/product-lines/"+lineID+"/approve", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body = s.do(t, http.MethodPost, "/products", farmer, product)
	require.Equal(t, http.StatusCreated, rec.Code, body)

	rec, body = s.do(t, http.MethodGet, "/product-lines/batch/TUR-1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["products"], 1)

	rec, body = s.do(t, http.MethodGet, "/products?keyword=turmeric", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["products"], 1)
}

func TestEnrichmentFallbacks(t *testing.T) {
	s := newTestServer(t)

	rec, body := s.do(t, http.MethodGet, "/api/data/weather?place=Nashik", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Nashik", body["location"])
	assert.Empty(t, body["forecast"])

	rec, body = s.do(t, http.MethodGet, "/api/data/farmerNews", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["news"], 5)

	rec, body = s.do(t, http.MethodPost, "/api/data/gemini", "", map[string]string{"text": "hi"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, insights.NoResponse, body["response"])

	rec, _ = s.do(t, http.MethodPost, "/api/data/gemini", "", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = s.do(t, http.MethodGet, "/api/data/weather?location=Nashik", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Nashik", body["location"])

	rec, _ = s.do(t, http.MethodGet, "/api/data/weather", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = s.do(t, http.MethodPost, "/api/data/productInsights", "", map[string]any{
		"products": []string{"Onion", "Wheat"}, "location": "Nashik",
	})
	require.Equal(t, http.StatusOK, rec.Code, body)
	assert.Equal(t, insights.NoResponse, body["insights"])

	rec, _ = s.do(t, http.MethodPost, "/api/data/productInsights", "", map[string]any{"location": "Nashik"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = s.do(t, http.MethodGet, "/api/data/farmerTip", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, body["tip"])
	assert.NotEqual(t, insights.NoResponse, body["tip"])
}

func TestShopListingHidesUnapprovedLines(t *testing.T) {
	s := newTestServer(t)
	s.account(t, "f1", models.RoleFarmer)
	s.account(t, "f2", models.RoleFarmer)
	listed := s.product(t, "f1", 5)
	hidden := s.product(t, "f2", 5)
	ctx := context.Background()

	_, err := s.store.SetProductLineStatus(ctx, hidden.ProductLineID, models.LineRejected)
	require.NoError(t, err)

	rec, body := s.do(t, http.MethodGet, "/products", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	products := body["products"].([]any)
	require.Len(t, products, 1)
	assert.Equal(t, listed.ID, products[0].(map[string]any)["id"])
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec, body := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])
}
