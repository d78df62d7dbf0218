package insights

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/agrichain/marketplace/internal/apperr"
)

var fallbackTips = []string{
	"Rotate crops to maintain soil fertility.",
	"Harvest early morning for best freshness.",
	"Use mulch to retain soil moisture.",
	"Plant cover crops to prevent erosion.",
	"Check soil pH before planting.",
	"Use organic compost for better yield.",
	"Save rainwater for irrigation.",
	"Inspect crops regularly for pests.",
	"Prune plants for better growth.",
	"Use drip irrigation to save water.",
}

const tipPrompt = "Provide a short farming tip (max 50 chars) that helps farmers with better yield, " +
	"soil care, water conservation, or pest control. Ensure the response is practical, simple, " +
	"and useful. Do not use any formatting, return only plain text."

// ProductInsights asks the LLM how a farmer selling products should plan
// around the coming week's weather at location.
func (s *Service) ProductInsights(ctx context.Context, products []string, location string) (string, error) {
	names := make([]string, 0, len(products))
	for _, p := range products {
		if p = strings.TrimSpace(p); p != "" {
			names = append(names, p)
		}
	}
	if len(names) == 0 {
		return "", apperr.Validation("products are required")
	}
	if strings.TrimSpace(location) == "" {
		return "", apperr.Validation("location is required")
	}

	report, err := s.Weather(ctx, location)
	if err != nil {
		return "", err
	}
	return s.Generate(ctx, productPrompt(report, names, s.now().UTC().Format("2006-01-02")))
}

func productPrompt(report *WeatherReport, products []string, today string) string {
	var sb strings.Builder
	sb.WriteString("As an expert in agriculture and market trends, help the farmer based on the following details:\n")
	fmt.Fprintf(&sb, "A farmer in %s is currently selling these products: %s.\n", report.Location, strings.Join(products, ", "))
	fmt.Fprintf(&sb, "The current date is %s.\n", today)
	sb.WriteString("Here is the 7-day weather forecast:\n")
	for _, d := range report.Forecast {
		fmt.Fprintf(&sb, "Date: %s, Max Temp: %g°C, Min Temp: %g°C, Rain: %gmm, Condition: %s\n",
			d.Date, d.MaxTemp, d.MinTemp, d.Rain, d.Description)
	}
	if len(report.Forecast) == 0 {
		sb.WriteString("No forecast is available.\n")
	}
	sb.WriteString("\nBased on this, provide insights to the farmer on:\n" +
		"- How they can better choose which crops to grow.\n" +
		"- The ideal quantity to grow in the coming days.\n" +
		"- Any best practices they should follow given the weather conditions.\n\n" +
		"Provide practical, clear, and useful advice in easy to understand language appealing to the farmer. ")
	fmt.Fprintf(&sb, "Start the advice with \"Hello %s farmer! I have analysed your products - %s and here are my insights:\" "+
		"and keep the whole insights to a maximum of one paragraph.", report.Location, strings.Join(products, ", "))
	return sb.String()
}

// FarmerTip returns a one-line farming tip, falling back to a canned one
func (s *Service) FarmerTip(ctx context.Context) string {
	tip, err := s.Generate(ctx, tipPrompt)
	if err != nil || tip == NoResponse {
		log.Println("[INSIGHTS] Using fallback farmer tip")
		return fallbackTips[s.pick(len(fallbackTips))]
	}
	return strings.TrimSpace(tip)
}
