package insights

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/agrichain/marketplace/internal/apperr"
	"github.com/agrichain/marketplace/internal/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sentPrompt(t *testing.T, u *upstream) string {
	t.Helper()
	var sent geminiRequest
	require.NoError(t, json.Unmarshal([]byte(u.geminiBody.Load().(string)), &sent))
	require.Len(t, sent.Contents, 1)
	return sent.Contents[0].Parts[0].Text
}

func TestProductInsightsPromptsWithForecast(t *testing.T) {
	u := newUpstream(t)
	s := New(u.options(), cache.Nop{})
	s.now = func() time.Time { return time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC) }

	advice, err := s.ProductInsights(context.Background(), []string{"Rice", " ", "Onion"}, "pune")
	require.NoError(t, err)
	assert.Equal(t, "Namaste farmers. Rain is coming.", advice)

	prompt := sentPrompt(t, u)
	assert.Contains(t, prompt, "A farmer in Pune is currently selling these products: Rice, Onion.")
	assert.Contains(t, prompt, "The current date is 2024-06-01.")
	assert.Contains(t, prompt, "Date: 2024-06-01, Max Temp: 34.1°C, Min Temp: 24.5°C, Rain: 0mm, Condition: Mostly clear")
	assert.Contains(t, prompt, "Date: 2024-06-02, Max Temp: 31°C, Min Temp: 23.2°C, Rain: 12.4mm, Condition: Moderate rain")
	assert.Contains(t, prompt, `Hello Pune farmer!`)
}

func TestProductInsightsWithoutForecast(t *testing.T) {
	u := newUpstream(t)
	s := New(u.options(), cache.Nop{})

	_, err := s.ProductInsights(context.Background(), []string{"Rice"}, "Atlantis")
	require.NoError(t, err)
	assert.Contains(t, sentPrompt(t, u), "No forecast is available.")
}

func TestProductInsightsValidation(t *testing.T) {
	s := New(newUpstream(t).options(), cache.Nop{})
	ctx := context.Background()

	_, err := s.ProductInsights(ctx, nil, "Pune")
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = s.ProductInsights(ctx, []string{""}, "Pune")
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = s.ProductInsights(ctx, []string{"Rice"}, " ")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestFarmerTip(t *testing.T) {
	u := newUpstream(t)
	s := New(u.options(), cache.Nop{})

	assert.Equal(t, "Namaste farmers. Rain is coming.", s.FarmerTip(context.Background()))
	assert.Contains(t, sentPrompt(t, u), "short farming tip")

	opts := u.options()
	opts.GeminiAPIKey = ""
	offline := New(opts, cache.Nop{})
	offline.pick = func(n int) int {
		assert.Equal(t, len(fallbackTips), n)
		return 6
	}
	assert.Equal(t, "Save rainwater for irrigation.", offline.FarmerTip(context.Background()))

	assert.Contains(t, fallbackTips, New(opts, cache.Nop{}).FarmerTip(context.Background()))
}
