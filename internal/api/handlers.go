package api

import (
	"context"
	"net/http"
	"time"

	"github.com/agrichain/marketplace/internal/auth"
	"github.com/agrichain/marketplace/internal/insights"
	"github.com/agrichain/marketplace/internal/metrics"
	"github.com/agrichain/marketplace/internal/middleware"
	"github.com/agrichain/marketplace/internal/models"
	"github.com/agrichain/marketplace/internal/services"
	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Pinger reports whether the backing store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services bundles everything the handlers call into
type Services struct {
	Accounts *services.AccountService
	Catalog  *services.CatalogService
	Carts    *services.CartService
	Checkout *services.CheckoutService
	Overview *services.OverviewService
	Insights *insights.Service
}

// App holds application dependencies
type App struct {
	store       Pinger
	issuer      *auth.Issuer
	metrics     *metrics.AppMetrics
	serviceName string
	svc         Services
}

// NewApp creates a new application instance
func NewApp(store Pinger, issuer *auth.Issuer, m *metrics.AppMetrics, serviceName string, svc Services) *App {
	return &App{
		store:       store,
		issuer:      issuer,
		metrics:     m,
		serviceName: serviceName,
		svc:         svc,
	}
}

// SetupRoutes configures the HTTP routes
func (a *App) SetupRoutes(r *mux.Router) {
	// Middleware
	r.Use(middleware.RequestIDMiddleware)
	r.Use(middleware.CORSMiddleware)
	r.Use(middleware.ErrorHandlerMiddleware)
	r.Use(otelhttp.NewMiddleware(a.serviceName))
	r.Use(middleware.MetricsMiddleware(a.metrics))

	var (
		customer = []models.Role{models.RoleCustomer}
		farmer   = []models.Role{models.RoleFarmer}
		admin    = []models.Role{models.RoleAdmin}
	)

	// Users
	r.HandleFunc("/users/register", a.RegisterHandler).Methods("POST")
	r.HandleFunc("/users/login", a.LoginHandler).Methods("POST")
	r.Handle("/users", a.auth(a.ListAccountsHandler, admin...)).Methods("GET")
	r.Handle("/users/{id}", a.auth(a.GetAccountHandler)).Methods("GET")

	// Cart and checkout
	r.Handle("/customers/cart/add", a.auth(a.AddToCartHandler, customer...)).Methods("POST")
	r.Handle("/customers/cart/remove", a.auth(a.RemoveFromCartHandler, customer...)).Methods("POST")
	r.Handle("/customers/cart/{customerId}", a.auth(a.GetCartHandler, customer...)).Methods("GET")
	r.Handle("/checkout", a.auth(a.CheckoutHandler, customer...)).Methods("POST")

	// Orders
	r.Handle("/orders/detail/{orderId}", a.auth(a.GetOrderHandler)).Methods("GET")
	r.Handle("/orders/{customerId}", a.auth(a.OrderHistoryHandler, models.RoleCustomer, models.RoleAdmin)).Methods("GET")

	// Products
	r.HandleFunc("/products", a.ListProductsHandler).Methods("GET")
	r.Handle("/products", a.auth(a.CreateProductHandler, farmer...)).Methods("POST")
	r.HandleFunc("/products/{id}", a.GetProductHandler).Methods("GET")
	r.Handle("/products/{id}/price", a.auth(a.UpdatePriceHandler, farmer...)).Methods("PUT")
	r.Handle("/products/{id}/quantity", a.auth(a.UpdateQuantityHandler, farmer...)).Methods("PUT")
	r.Handle("/products/{id}", a.auth(a.DeleteProductHandler, models.RoleFarmer, models.RoleAdmin)).Methods("DELETE")

	// Product lines
	r.HandleFunc("/product-lines", a.ListProductLinesHandler).Methods("GET")
	r.Handle("/product-lines", a.auth(a.CreateProductLineHandler, farmer...)).Methods("POST")
	r.HandleFunc("/product-lines/batch/{batchId}", a.GetProductLineByBatchHandler).Methods("GET")
	r.HandleFunc("/product-lines/{id}", a.GetProductLineHandler).Methods("GET")
	r.Handle("/product-lines/{id}/approve", a.auth(a.ApproveProductLineHandler, admin...)).Methods("PUT")
	r.Handle("/product-lines/{id}/reject", a.auth(a.RejectProductLineHandler, admin...)).Methods("PUT")

	// Dashboards
	r.Handle("/admin/overview", a.auth(a.AdminOverviewHandler, admin...)).Methods("GET")
	r.Handle("/farmers/{farmerId}/overview", a.auth(a.FarmerOverviewHandler, models.RoleFarmer, models.RoleAdmin)).Methods("GET")

	// Enrichment
	data := r.PathPrefix("/api/data").Subrouter()
	data.HandleFunc("/weather", a.WeatherHandler).Methods("GET")
	data.HandleFunc("/farmerNews", a.FarmerNewsHandler).Methods("GET")
	data.HandleFunc("/gemini", a.GeminiHandler).Methods("POST")
	data.HandleFunc("/farmerInsights", a.FarmerInsightsHandler).Methods("GET")
	data.HandleFunc("/productInsights", a.ProductInsightsHandler).Methods("POST")
	data.HandleFunc("/farmerTip", a.FarmerTipHandler).Methods("GET")

	// Health
	r.HandleFunc("/health", a.HealthHandler).Methods("GET")
}

// auth wraps h so it requires a token, optionally with one of roles
func (a *App) auth(h http.HandlerFunc, roles ...models.Role) http.Handler {
	return middleware.Authenticate(a.issuer, roles...)(h)
}

// HealthHandler handles GET /health
func (a *App) HealthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := a.store.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, envelope{"message": "Store unreachable", "error": err.Error(), "status": "unhealthy"})
		return
	}
	writeSuccess(w, http.StatusOK, "OK", envelope{"status": "healthy"})
}
