package config

import "time"

// GenerationConfig configures the LLM sentence generator and the
// cross-model quality reviewer.
type GenerationConfig struct {
	// Generator (Gemini via google.golang.org/genai)
	Model   string `yaml:"model"`
	APIKey  string `yaml:"api_key"`
	Timeout string `yaml:"timeout"`

	// Cross-model quality reviewer (OpenAI-compatible endpoint).
	// The gate fails closed: no reviewer means no accepted sentences.
	ReviewerModel   string `yaml:"reviewer_model"`
	ReviewerBaseURL string `yaml:"reviewer_base_url"`
	ReviewerAPIKey  string `yaml:"reviewer_api_key"`

	// Retry and fan-out bounds
	MaxAttempts   int    `yaml:"max_attempts"`    // per target set, default 7
	MaxConcurrent int    `yaml:"max_concurrent"`  // parallel generator calls, default 8
	SessionBudget string `yaml:"session_budget"`  // wall-clock budget per session build

	// Warm cache
	WarmCacheEnabled bool `yaml:"warm_cache_enabled"`
	WarmCacheTargets int  `yaml:"warm_cache_targets"` // lemmas to pre-generate for

	// Known-vocab sample size included in prompts
	KnownVocabSample int  `yaml:"known_vocab_sample"`
	AvoidProperNouns bool `yaml:"avoid_proper_nouns"`
}

// DefaultGenerationConfig returns sensible generation defaults.
func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		Model:   "gemini-2.5-flash",
		Timeout: "45s",

		ReviewerModel:   "gpt-4o-mini",
		ReviewerBaseURL: "https://api.openai.com/v1",

		MaxAttempts:   7,
		MaxConcurrent: 8,
		SessionBudget: "60s",

		WarmCacheEnabled: true,
		WarmCacheTargets: 5,

		KnownVocabSample: 120,
		AvoidProperNouns: true,
	}
}

// RequestTimeout returns the per-call generator timeout.
func (c *GenerationConfig) RequestTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 45 * time.Second
	}
	return d
}

// SessionBudgetDuration returns the per-session generation budget.
func (c *GenerationConfig) SessionBudgetDuration() time.Duration {
	d, err := time.ParseDuration(c.SessionBudget)
	if err != nil {
		return 60 * time.Second
	}
	return d
}
