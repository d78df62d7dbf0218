package insights

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/agrichain/marketplace/internal/apperr"
)

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// Generate sends text to the LLM and returns its reply. A missing API key or
// an upstream failure yields NoResponse.
func (s *Service) Generate(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", apperr.Validation("text is required")
	}
	if s.geminiKey == "" {
		log.Println("[INSIGHTS] GEMINI_API_KEY not set, skipping generation")
		return NoResponse, nil
	}

	reply, err := s.generateContent(ctx, text)
	if err != nil {
		log.Printf("[INSIGHTS] Gemini request failed: %v", err)
		return NoResponse, nil
	}
	if reply == "" {
		return NoResponse, nil
	}
	return reply, nil
}

func (s *Service) generateContent(ctx context.Context, text string) (string, error) {
	body, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: text}}}},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	reqURL := fmt.Sprintf("%s/models/%s:generateContent", s.geminiURL, s.geminiModel)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", s.geminiKey)

	resp, err := s.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	var out geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	var sb strings.Builder
	if len(out.Candidates) > 0 {
		for _, p := range out.Candidates[0].Content.Parts {
			sb.WriteString(p.Text)
		}
	}
	return strings.TrimSpace(sb.String()), nil
}

// FarmerInsights summarises today's headlines for farmers
func (s *Service) FarmerInsights(ctx context.Context) (string, error) {
	return s.Generate(ctx, insightsPrompt(s.FarmerNews(ctx)))
}

func insightsPrompt(titles []string) string {
	var sb strings.Builder
	sb.WriteString("Here are the latest farming news headlines in India:\n\n")
	for i, t := range titles {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, t)
	}
	sb.WriteString("\nWrite a clear, formal, concise daily farming news update for Indian farmers " +
		"in a paragraph (3-4 lines). Start with Namaste and use an easy-to-understand tone.")
	return sb.String()
}
