package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/agrichain/marketplace/internal/api"
	"github.com/agrichain/marketplace/internal/auth"
	"github.com/agrichain/marketplace/internal/cache"
	"github.com/agrichain/marketplace/internal/db"
	"github.com/agrichain/marketplace/internal/events"
	"github.com/agrichain/marketplace/internal/insights"
	"github.com/agrichain/marketplace/internal/metrics"
	"github.com/agrichain/marketplace/internal/notify"
	"github.com/agrichain/marketplace/internal/services"
	"github.com/agrichain/marketplace/internal/store"
	"github.com/agrichain/marketplace/internal/store/memstore"
	"github.com/agrichain/marketplace/internal/store/mongostore"
	"github.com/agrichain/marketplace/internal/store/mysqlstore"
	"github.com/agrichain/marketplace/pkg/config"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
)

func main() {
	// Load configuration
	cfg := config.LoadConfig()

	// Prices go over the wire as JSON numbers
	decimal.MarshalJSONWithoutQuotes = true

	// Initialize OpenTelemetry metrics
	ctx := context.Background()
	appMetrics, meterProvider, err := metrics.InitMetrics(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize metrics: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := meterProvider.Shutdown(shutdownCtx); err != nil {
			log.Printf("Error shutting down meter provider: %v", err)
		}
	}()

	// Initialize storage
	st, err := openStore(ctx, cfg, appMetrics)
	if err != nil {
		log.Fatalf("Failed to open %s store: %v", cfg.StoreDriver, err)
	}
	defer func() {
		if err := st.Close(context.Background()); err != nil {
			log.Printf("Error closing store: %v", err)
		}
	}()

	// Optional collaborators fall back to no-ops when unconfigured
	productCache := openCache(ctx, cfg)

	var notifier notify.Notifier = notify.Nop{}
	if cfg.PostmarkAPIToken != "" {
		notifier = notify.NewPostmark(cfg.PostmarkAPIToken, cfg.EmailSender, appMetrics)
	} else {
		log.Println("[EMAIL] POSTMARK_API_TOKEN not set, order confirmations disabled")
	}

	var publisher events.Publisher = events.Nop{}
	if cfg.OrderEventsQueueURL != "" {
		p, err := events.NewSQSPublisher(ctx, cfg.AWSRegion, cfg.OrderEventsQueueURL)
		if err != nil {
			log.Printf("[EVENTS] Warning: order events disabled: %v", err)
		} else {
			publisher = p
		}
	}

	// Initialize services
	issuer := auth.NewIssuer(cfg.JWTSecret, cfg.JWTTTL)
	catalogService := services.NewCatalogService(st, st, productCache, appMetrics, cfg.FrontendURL)
	checkoutService := services.NewCheckoutService(st, st, catalogService, notifier, publisher, appMetrics)
	svc := api.Services{
		Accounts: services.NewAccountService(st, issuer),
		Catalog:  catalogService,
		Carts:    services.NewCartService(st, st, st, appMetrics),
		Checkout: checkoutService,
		Overview: services.NewOverviewService(st),
		Insights: insights.New(insights.Options{
			GeminiAPIKey: cfg.GeminiAPIKey,
			GeminiModel:  cfg.GeminiModel,
			NewsFeedURL:  cfg.NewsFeedURL,
		}, productCache),
	}

	// Background inventory gauges
	monitorCtx, stopMonitor := context.WithCancel(ctx)
	defer stopMonitor()
	monitor := services.NewInventoryMonitor(st, appMetrics, cfg.MonitorInterval, cfg.LowStockThreshold)
	go monitor.Run(monitorCtx)

	// Initialize app
	app := api.NewApp(st, issuer, appMetrics, cfg.OTELServiceName, svc)

	// Setup router
	router := mux.NewRouter()
	app.SetupRoutes(router)

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 45 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server starting on port %s (store: %s)", cfg.AppPort, cfg.StoreDriver)
		log.Printf("OTLP endpoint: %s", cfg.OTELExporterOTLPEndpoint)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	stopMonitor()

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	// Let confirmation emails and order events already in flight finish
	checkoutService.Wait()

	log.Println("Server exited")
}

// openStore connects the backend selected by STORE_DRIVER
func openStore(ctx context.Context, cfg *config.Config, m *metrics.AppMetrics) (store.Store, error) {
	switch cfg.StoreDriver {
	case config.StoreMySQL:
		database, err := db.NewDB(cfg.GetDSN(), cfg.OTELServiceName)
		if err != nil {
			return nil, err
		}
		if err := database.Migrate(ctx); err != nil {
			log.Printf("Warning: Could not initialize schema: %v", err)
			log.Println("Assuming database schema already exists")
		}
		return mysqlstore.New(database.DB, m), nil
	case config.StoreMongo:
		s, err := mongostore.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase, m)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.StoreMemory:
		log.Println("Warning: using in-memory store, data is lost on restart")
		return memstore.New(), nil
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
}

// openCache returns a Redis cache when REDIS_ADDR is set
func openCache(ctx context.Context, cfg *config.Config) cache.Cache {
	if cfg.RedisAddr == "" {
		log.Println("[CACHE] REDIS_ADDR not set, caching disabled")
		return cache.Nop{}
	}
	client, err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Printf("[CACHE] Warning: caching disabled: %v", err)
		return cache.Nop{}
	}
	log.Printf("[CACHE] Connected to redis at %s", cfg.RedisAddr)
	return cache.NewRedisCache(client, "agrichain:", cfg.CacheTTL)
}
