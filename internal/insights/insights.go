// Package insights proxies the third-party enrichment APIs shown on the
// farmer dashboard: weather, agriculture news and LLM advice.
//
// Every call degrades to a static answer instead of failing the request.
package insights

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/agrichain/marketplace/internal/cache"
	"github.com/mmcdole/gofeed"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	DefaultGeocodingURL = "https://geocoding-api.open-meteo.com/v1"
	DefaultForecastURL  = "https://api.open-meteo.com/v1"
	DefaultGeminiURL    = "https://generativelanguage.googleapis.com/v1beta"

	// NoResponse is returned whenever the LLM cannot produce text
	NoResponse = "No response generated"

	newsLimit = 5
	userAgent = "agrichain-marketplace/1.0"
)

// Options configures the outbound clients. Empty URLs fall back to the
// public endpoints.
type Options struct {
	GeocodingURL string
	ForecastURL  string
	GeminiURL    string
	GeminiAPIKey string
	GeminiModel  string
	NewsFeedURL  string
	HTTPClient   *http.Client
}

// Service fetches and caches enrichment data
type Service struct {
	http   *http.Client
	cache  cache.Cache
	parser *gofeed.Parser

	geocodingURL string
	forecastURL  string
	geminiURL    string
	geminiKey    string
	geminiModel  string
	newsURL      string

	now  func() time.Time
	pick func(n int) int
}

// New creates the enrichment service. Weather and news results are cached in c.
func New(opts Options, c cache.Cache) *Service {
	client := opts.HTTPClient
	if client == nil {
		transport := &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 5,
			IdleConnTimeout:     90 * time.Second,
		}
		client = &http.Client{
			Transport: otelhttp.NewTransport(transport),
			Timeout:   30 * time.Second,
		}
	}

	parser := gofeed.NewParser()
	parser.Client = client
	parser.UserAgent = userAgent

	return &Service{
		http:         client,
		cache:        c,
		parser:       parser,
		geocodingURL: orDefault(opts.GeocodingURL, DefaultGeocodingURL),
		forecastURL:  orDefault(opts.ForecastURL, DefaultForecastURL),
		geminiURL:    orDefault(opts.GeminiURL, DefaultGeminiURL),
		geminiKey:    opts.GeminiAPIKey,
		geminiModel:  orDefault(opts.GeminiModel, "gemini-2.0-flash"),
		newsURL:      opts.NewsFeedURL,
		now:          time.Now,
		pick:         rand.Intn,
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return strings.TrimRight(v, "/")
}

// cached runs load on a cache miss and stores the result. ok=false results
// are returned but not cached.
func cached[T any](ctx context.Context, c cache.Cache, key string, load func() (T, bool)) T {
	var v T
	err := c.Get(ctx, key, &v)
	if err == nil {
		return v
	}
	if !errors.Is(err, cache.ErrMiss) {
		log.Printf("[CACHE] Warning: %s lookup bypassed cache: %v", key, err)
	}

	v, ok := load()
	if !ok {
		return v
	}
	if err := c.Set(ctx, key, v); err != nil {
		log.Printf("[CACHE] Warning: failed to cache %s: %v", key, err)
	}
	return v
}
