package insights

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/agrichain/marketplace/internal/apperr"
)

// DailyForecast is one day of the forecast
type DailyForecast struct {
	Date        string  `json:"date"`
	MaxTemp     float64 `json:"max_temp"`
	MinTemp     float64 `json:"min_temp"`
	Rain        float64 `json:"rain"`
	Description string  `json:"description"`
}

// WeatherReport is the forecast for a named place. Message is set when the
// upstream lookup failed and Forecast is empty.
type WeatherReport struct {
	Location string          `json:"location"`
	Forecast []DailyForecast `json:"forecast"`
	Message  string          `json:"message,omitempty"`
}

type geocodingResponse struct {
	Results []struct {
		Name      string  `json:"name"`
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"results"`
}

type forecastResponse struct {
	Daily struct {
		Time             []string  `json:"time"`
		TemperatureMax   []float64 `json:"temperature_2m_max"`
		TemperatureMin   []float64 `json:"temperature_2m_min"`
		PrecipitationSum []float64 `json:"precipitation_sum"`
		WeatherCode      []int     `json:"weather_code"`
	} `json:"daily"`
}

type location struct {
	name     string
	lat, lon float64
}

// Weather geocodes place and returns its daily forecast
func (s *Service) Weather(ctx context.Context, place string) (*WeatherReport, error) {
	place = strings.TrimSpace(place)
	if place == "" {
		return nil, apperr.Validation("place is required")
	}

	key := "weather:" + strings.ToLower(place)
	report := cached(ctx, s.cache, key, func() (WeatherReport, bool) {
		r, err := s.fetchWeather(ctx, place)
		if err != nil {
			log.Printf("[INSIGHTS] Weather lookup for %q failed: %v", place, err)
			return WeatherReport{
				Location: place,
				Forecast: []DailyForecast{},
				Message:  "Weather data is currently unavailable",
			}, false
		}
		return *r, true
	})
	return &report, nil
}

func (s *Service) fetchWeather(ctx context.Context, place string) (*WeatherReport, error) {
	loc, err := s.geocode(ctx, place)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("latitude", fmt.Sprintf("%.4f", loc.lat))
	q.Set("longitude", fmt.Sprintf("%.4f", loc.lon))
	q.Set("daily", "temperature_2m_max,temperature_2m_min,precipitation_sum,weather_code")
	q.Set("timezone", "auto")

	var resp forecastResponse
	if err := s.getJSON(ctx, s.forecastURL+"/forecast?"+q.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("forecast: %w", err)
	}

	d := resp.Daily
	days := make([]DailyForecast, 0, len(d.Time))
	for i, date := range d.Time {
		day := DailyForecast{Date: date, Description: "Unknown conditions"}
		if i < len(d.TemperatureMax) {
			day.MaxTemp = d.TemperatureMax[i]
		}
		if i < len(d.TemperatureMin) {
			day.MinTemp = d.TemperatureMin[i]
		}
		if i < len(d.PrecipitationSum) {
			day.Rain = d.PrecipitationSum[i]
		}
		if i < len(d.WeatherCode) {
			day.Description = describeWeather(d.WeatherCode[i])
		}
		days = append(days, day)
	}
	return &WeatherReport{Location: loc.name, Forecast: days}, nil
}

func (s *Service) geocode(ctx context.Context, place string) (*location, error) {
	q := url.Values{}
	q.Set("name", place)
	q.Set("count", "1")
	q.Set("language", "en")
	q.Set("format", "json")

	var resp geocodingResponse
	if err := s.getJSON(ctx, s.geocodingURL+"/search?"+q.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("geocoding: %w", err)
	}
	if len(resp.Results) == 0 {
		return nil, fmt.Errorf("location %q not found", place)
	}
	r := resp.Results[0]
	return &location{name: r.Name, lat: r.Latitude, lon: r.Longitude}, nil
}

func (s *Service) getJSON(ctx context.Context, reqURL string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API returned status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

var weatherDescriptions = map[int]string{
	0:  "Clear sky",
	1:  "Mostly clear",
	2:  "Partly cloudy",
	3:  "Overcast",
	45: "Foggy",
	48: "Dense fog",
	51: "Light drizzle",
	53: "Moderate drizzle",
	55: "Heavy drizzle",
	61: "Light rain",
	63: "Moderate rain",
	65: "Heavy rain",
	71: "Light snowfall",
	73: "Moderate snowfall",
	75: "Heavy snowfall",
	80: "Light rain showers",
	81: "Moderate rain showers",
	82: "Heavy rain showers",
	95: "Thunderstorm",
	96: "Thunderstorm with slight hail",
	99: "Thunderstorm with heavy hail",
}

// describeWeather maps a WMO weather code to text
func describeWeather(code int) string {
	if d, ok := weatherDescriptions[code]; ok {
		return d
	}
	return "Unknown conditions"
}
