package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"alif/internal/config"
	"alif/internal/logging"
)

// CrossModelReviewer implements QualityReviewer against an OpenAI-compatible
// chat completions endpoint, using a different model family than the
// generator so the gate is a genuine second opinion.
type CrossModelReviewer struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewCrossModelReviewer builds the reviewer from config. An empty API key is
// allowed here; the gate then rejects everything (fails closed).
func NewCrossModelReviewer(cfg config.GenerationConfig) *CrossModelReviewer {
	model := cfg.ReviewerModel
	if model == "" {
		model = "gpt-4o-mini"
	}
	baseURL := strings.TrimSuffix(cfg.ReviewerBaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &CrossModelReviewer{
		apiKey:  cfg.ReviewerAPIKey,
		baseURL: baseURL,
		model:   model,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Review asks the second model whether the sentence is natural, grammatical
// and faithful to its translation. Any transport or parse failure counts as
// a rejection.
func (r *CrossModelReviewer) Review(ctx context.Context, c Candidate, req Request) (bool, error) {
	if r.apiKey == "" {
		return false, fmt.Errorf("quality reviewer unavailable: no API key")
	}

	prompt := fmt.Sprintf(
		"Review this generated Arabic learner sentence.\nArabic: %s\nTranslation: %s\nDifficulty: %s\n\nAnswer PASS if the sentence is grammatical, natural, and the translation is faithful. Answer FAIL otherwise. Answer with exactly one word.",
		c.Arabic, c.Translation, req.Difficulty,
	)

	body, err := json.Marshal(chatRequest{
		Model: r.model,
		Messages: []chatMessage{
			{Role: "system", Content: "You are a strict Arabic language reviewer."},
			{Role: "user", Content: prompt},
		},
		Temperature: 0,
		MaxTokens:   8,
	})
	if err != nil {
		return false, fmt.Errorf("marshal review request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("build review request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+r.apiKey)

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return false, fmt.Errorf("review request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, fmt.Errorf("read review response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("review API status %d: %s", resp.StatusCode, truncate(string(data), 200))
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return false, fmt.Errorf("parse review response: %w", err)
	}
	if parsed.Error != nil {
		return false, fmt.Errorf("review API error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return false, fmt.Errorf("review API returned no choices")
	}

	verdict := strings.ToUpper(strings.TrimSpace(parsed.Choices[0].Message.Content))
	pass := strings.HasPrefix(verdict, "PASS")
	logging.GenerationDebug("quality review verdict %q for %q", verdict, c.Arabic)
	return pass, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
