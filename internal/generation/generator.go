// Package generation provides the LLM sentence generator contract, its
// validation gate, and the orchestration around it: retry with feedback,
// bounded fan-out, the cross-model quality review and the warm cache.
// The scheduler depends only on the Generator interface defined here.
package generation

import (
	"context"
	"time"

	"alif/internal/types"
)

// Difficulty is the generation difficulty hint.
type Difficulty string

const (
	DifficultySimple       Difficulty = "simple"
	DifficultyBeginner     Difficulty = "beginner"
	DifficultyIntermediate Difficulty = "intermediate"
)

// Request constrains one generation call.
type Request struct {
	Targets          []types.Lemma // lemmas the sentence must teach
	KnownVocab       []types.Lemma // sample of the learner's usable vocabulary
	RejectedWords    []string      // surfaces rejected by earlier validation rounds
	MaxWords         int
	Difficulty       Difficulty
	AvoidProperNouns bool
}

// Candidate is one generated sentence before validation, fully tokenized
// with mapped lemma ids.
type Candidate struct {
	Arabic          string
	Translation     string
	Transliteration string
	Tokens          []types.SentenceToken
	TargetLemmaID   int64
}

// Generator produces candidate sentences for a request. Implementations
// must honor ctx cancellation; the session builder calls with a per-session
// budget attached.
type Generator interface {
	GenerateSentences(ctx context.Context, req Request) ([]Candidate, error)
}

// QualityReviewer is the cross-model gate. The gate fails closed: an error
// from the reviewer rejects the sentence.
type QualityReviewer interface {
	Review(ctx context.Context, c Candidate, req Request) (bool, error)
}

// DeriveDifficulty maps the weakest target's maturity to generation
// parameters: brand-new words get very short simple sentences, established
// words longer intermediate ones.
func DeriveDifficulty(weakest *types.MemoryState, now time.Time) (maxWords int, tier Difficulty) {
	if weakest == nil {
		return 7, DifficultySimple
	}
	age := now.Sub(weakest.EnteredAcquiringAt)
	switch {
	case age < 2*time.Hour && weakest.TimesSeen < 3:
		return 7, DifficultySimple
	case age < 24*time.Hour:
		return 9, DifficultySimple
	case age < 7*24*time.Hour:
		return 11, DifficultyBeginner
	default:
		return 14, DifficultyIntermediate
	}
}
