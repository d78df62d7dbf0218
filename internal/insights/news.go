package insights

import (
	"context"
	"fmt"
	"log"
	"strings"
)

const newsCacheKey = "news:farming"

// fallbackNews is served when the feed cannot be read
var fallbackNews = []string{
	"Monsoon progress remains key for kharif sowing across India",
	"Government reviews minimum support prices for major crops",
	"Farmers encouraged to adopt drip irrigation to save water",
	"Soil health card scheme expands testing to more districts",
	"Cold storage capacity grows to cut post-harvest losses",
}

// FarmerNews returns the latest agriculture headlines, at most five
func (s *Service) FarmerNews(ctx context.Context) []string {
	return cached(ctx, s.cache, newsCacheKey, func() ([]string, bool) {
		titles, err := s.fetchNews(ctx)
		if err != nil {
			log.Printf("[INSIGHTS] News feed failed, serving fallback: %v", err)
			return append([]string{}, fallbackNews...), false
		}
		return titles, true
	})
}

func (s *Service) fetchNews(ctx context.Context) ([]string, error) {
	if s.newsURL == "" {
		return nil, fmt.Errorf("no news feed configured")
	}
	feed, err := s.parser.ParseURLWithContext(s.newsURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	titles := make([]string, 0, newsLimit)
	for _, item := range feed.Items {
		if len(titles) == newsLimit {
			break
		}
		if t := strings.TrimSpace(item.Title); t != "" {
			titles = append(titles, t)
		}
	}
	if len(titles) == 0 {
		return nil, fmt.Errorf("feed has no items")
	}
	return titles, nil
}
