package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"alif/internal/config"
	"alif/internal/logging"
	"alif/internal/types"
)

// GeminiGenerator implements Generator using Google's Gemini API.
type GeminiGenerator struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// NewGeminiGenerator creates a Gemini-backed sentence generator.
func NewGeminiGenerator(cfg config.GenerationConfig) (*GeminiGenerator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("generator API key is required")
	}
	model := cfg.Model
	if model == "" {
		model = "gemini-2.5-flash"
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GeminiGenerator{
		client:  client,
		model:   model,
		timeout: cfg.RequestTimeout(),
	}, nil
}

// geminiSentence mirrors the JSON shape requested from the model.
type geminiSentence struct {
	Arabic          string `json:"arabic"`
	Translation     string `json:"translation"`
	Transliteration string `json:"transliteration"`
	Tokens          []struct {
		Surface string `json:"surface"`
		LemmaID int64  `json:"lemma_id"`
	} `json:"tokens"`
}

// GenerateSentences asks the model for candidate sentences under the
// request's constraints.
func (g *GeminiGenerator) GenerateSentences(ctx context.Context, req Request) ([]Candidate, error) {
	timer := logging.StartTimer(logging.CategoryGeneration, "GenerateSentences")
	defer timer.Stop()

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	prompt := buildPrompt(req)
	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}

	result, err := g.client.Models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0.8),
	})
	if err != nil {
		return nil, fmt.Errorf("gemini generate failed: %w", err)
	}

	text := result.Text()
	if text == "" {
		return nil, fmt.Errorf("gemini returned empty response")
	}

	var raw []geminiSentence
	if err := json.Unmarshal([]byte(extractJSONArray(text)), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse generated sentences: %w", err)
	}

	targetID := int64(0)
	if len(req.Targets) > 0 {
		targetID = req.Targets[0].ID
	}

	out := make([]Candidate, 0, len(raw))
	for _, rs := range raw {
		c := Candidate{
			Arabic:          strings.TrimSpace(rs.Arabic),
			Translation:     strings.TrimSpace(rs.Translation),
			Transliteration: strings.TrimSpace(rs.Transliteration),
			TargetLemmaID:   targetID,
		}
		for i, tok := range rs.Tokens {
			c.Tokens = append(c.Tokens, types.SentenceToken{
				Position: i,
				Surface:  tok.Surface,
				LemmaID:  tok.LemmaID,
			})
		}
		if c.Arabic == "" || len(c.Tokens) == 0 {
			continue
		}
		out = append(out, c)
	}
	logging.Generation("gemini produced %d candidates for %d targets", len(out), len(req.Targets))
	return out, nil
}

// buildPrompt renders the constraint block handed to the model.
func buildPrompt(req Request) string {
	var b strings.Builder
	b.WriteString("You write short Arabic sentences for a learner. Respond with a JSON array of sentences.\n")
	b.WriteString("Each sentence object: {\"arabic\", \"translation\", \"transliteration\", \"tokens\": [{\"surface\", \"lemma_id\"}]}.\n")
	b.WriteString("Map every token to a lemma_id from the lists below; use 0 only for punctuation.\n\n")

	b.WriteString("TARGET WORDS (at least one must appear):\n")
	for _, t := range req.Targets {
		fmt.Fprintf(&b, "  %d: %s (%s)\n", t.ID, t.Bare, t.Gloss)
	}

	b.WriteString("\nALLOWED VOCABULARY (use only these content words):\n")
	for _, l := range req.KnownVocab {
		fmt.Fprintf(&b, "  %d: %s\n", l.ID, l.Bare)
	}

	if len(req.RejectedWords) > 0 {
		b.WriteString("\nDO NOT USE these words (rejected in earlier attempts):\n")
		for _, w := range req.RejectedWords {
			fmt.Fprintf(&b, "  %s\n", w)
		}
	}

	fmt.Fprintf(&b, "\nConstraints: at most %d words, difficulty %s.", req.MaxWords, req.Difficulty)
	if req.AvoidProperNouns {
		b.WriteString(" Avoid proper nouns.")
	}
	b.WriteString(" Produce up to 3 distinct sentences.")
	return b.String()
}

// extractJSONArray tolerates models wrapping the payload in code fences.
func extractJSONArray(text string) string {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start >= 0 && end > start {
		return text[start : end+1]
	}
	return text
}
