package generation

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"alif/internal/config"
	"alif/internal/lexicon"
	"alif/internal/logging"
	"alif/internal/types"
)

// Target is one lemma to generate coverage for, with its memory state for
// difficulty derivation (nil for brand-new words).
type Target struct {
	Lemma types.Lemma
	State *types.MemoryState
}

// Service orchestrates generation: retry with validation feedback, the
// cross-model quality gate, and bounded parallel fan-out across targets.
type Service struct {
	gen      Generator
	reviewer QualityReviewer
	graph    *lexicon.Graph
	cfg      config.GenerationConfig
}

// NewService wires the generator, the reviewer and the lexicon graph.
func NewService(gen Generator, reviewer QualityReviewer, graph *lexicon.Graph, cfg config.GenerationConfig) *Service {
	return &Service{gen: gen, reviewer: reviewer, graph: graph, cfg: cfg}
}

// Available reports whether a generator is wired at all.
func (s *Service) Available() bool { return s != nil && s.gen != nil }

// GenerateForTargets produces at most one validated sentence per target,
// fanning out across targets with the configured concurrency bound. The
// caller attaches the per-session budget to ctx; on budget expiry the
// remaining targets are simply skipped. Generator failures are logged as
// operational events, never surfaced to the session.
func (s *Service) GenerateForTargets(ctx context.Context, targets []Target, vocab Vocabulary, knownSample []types.Lemma, now time.Time) []Candidate {
	if !s.Available() || len(targets) == 0 {
		return nil
	}

	var mu sync.Mutex
	var accepted []Candidate

	g, ctx := errgroup.WithContext(ctx)
	limit := s.cfg.MaxConcurrent
	if limit <= 0 {
		limit = 8
	}
	g.SetLimit(limit)

	for _, target := range targets {
		target := target
		g.Go(func() error {
			c, ok := s.generateOne(ctx, target, vocab, knownSample, now)
			if ok {
				mu.Lock()
				accepted = append(accepted, c)
				mu.Unlock()
			}
			return nil // a failed target never fails the session
		})
	}
	g.Wait()

	logging.Generation("on-demand generation: %d/%d targets covered", len(accepted), len(targets))
	return accepted
}

// generateOne runs the retry loop for a single target.
func (s *Service) generateOne(ctx context.Context, target Target, vocab Vocabulary, knownSample []types.Lemma, now time.Time) (Candidate, bool) {
	maxWords, tier := DeriveDifficulty(target.State, now)

	req := Request{
		Targets:          []types.Lemma{target.Lemma},
		KnownVocab:       knownSample,
		MaxWords:         maxWords,
		Difficulty:       tier,
		AvoidProperNouns: s.cfg.AvoidProperNouns,
	}

	attempts := s.cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 7
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			logging.GenerationDebug("budget expired before attempt %d for lemma %d", attempt, target.Lemma.ID)
			return Candidate{}, false
		}

		candidates, err := s.gen.GenerateSentences(ctx, req)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return Candidate{}, false
			}
			logging.Get(logging.CategoryGeneration).Warn("generation attempt %d for lemma %d failed: %v", attempt, target.Lemma.ID, err)
			continue
		}

		for _, c := range candidates {
			if err := Validate(c, req, vocab, s.graph); err != nil {
				var verr *ValidationError
				if errors.As(err, &verr) {
					req.RejectedWords = appendUnique(req.RejectedWords, verr.RejectedWords)
				}
				logging.GenerationDebug("candidate rejected for lemma %d: %v", target.Lemma.ID, err)
				continue
			}

			// Quality gate fails closed: unavailable reviewer means rejection.
			if s.reviewer == nil {
				logging.Get(logging.CategoryGeneration).Warn("no quality reviewer wired; rejecting candidate for lemma %d", target.Lemma.ID)
				continue
			}
			pass, err := s.reviewer.Review(ctx, c, req)
			if err != nil {
				logging.Get(logging.CategoryGeneration).Warn("quality review failed (rejecting): %v", err)
				continue
			}
			if !pass {
				logging.GenerationDebug("quality gate rejected candidate for lemma %d", target.Lemma.ID)
				continue
			}

			c.TargetLemmaID = target.Lemma.ID
			return c, true
		}
	}

	logging.Generation("no valid sentence for lemma %d after %d attempts", target.Lemma.ID, attempts)
	return Candidate{}, false
}

func appendUnique(dst []string, add []string) []string {
	seen := make(map[string]struct{}, len(dst))
	for _, w := range dst {
		seen[w] = struct{}{}
	}
	for _, w := range add {
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		dst = append(dst, w)
	}
	return dst
}
