// Package session implements the session builder: classification, cohort
// filtering, auto-introduction, candidate fetch, scoring with greedy set
// cover, acquisition repetition, easy-bookends ordering, on-demand
// generation and response assembly.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"alif/internal/config"
	"alif/internal/generation"
	"alif/internal/lexicon"
	"alif/internal/logging"
	"alif/internal/srs"
	"alif/internal/store"
	"alif/internal/types"
)

// SentenceGenerator is the slice of the generation service the builder
// needs; *generation.Service satisfies it.
type SentenceGenerator interface {
	GenerateForTargets(ctx context.Context, targets []generation.Target, vocab generation.Vocabulary, knownSample []types.Lemma, now time.Time) []generation.Candidate
	Available() bool
}

// Warmer kicks background warm-cache generation; *generation.WarmCache
// satisfies it. Nil disables warming.
type Warmer interface {
	Kick(targets []generation.Target, vocab generation.Vocabulary, knownSample []types.Lemma, now time.Time)
}

// Builder assembles review sessions.
type Builder struct {
	store  *store.Store
	graph  *lexicon.Graph
	acq    *srs.Acquisition
	gen    SentenceGenerator
	warmer Warmer
	cfg    config.SchedulerConfig
	genCfg config.GenerationConfig
}

// NewBuilder wires the session builder. gen and warmer may be nil; the
// session then relies on the pool alone.
func NewBuilder(st *store.Store, graph *lexicon.Graph, acq *srs.Acquisition, gen SentenceGenerator, warmer Warmer, cfg config.SchedulerConfig, genCfg config.GenerationConfig) *Builder {
	return &Builder{store: st, graph: graph, acq: acq, gen: gen, warmer: warmer, cfg: cfg, genCfg: genCfg}
}

// Build produces an ordered session of at most limit sentences (plus the
// acquisition-repetition overflow) for the given mode. If neither the pool
// nor on-demand generation can supply a sentence the session is empty;
// scheduling never invents a bare-word card.
func (b *Builder) Build(ctx context.Context, mode types.Mode, limit int, now time.Time) (*types.Session, error) {
	timer := logging.StartTimer(logging.CategorySession, "Build")
	defer timer.Stop()

	if limit <= 0 {
		limit = b.cfg.DefaultSessionLimit
	}
	if mode != types.ModeReading && mode != types.ModeListening {
		return nil, fmt.Errorf("unknown session mode %q", mode)
	}

	sess := &types.Session{
		ID:      uuid.NewString(),
		Mode:    mode,
		BuiltAt: now,
	}

	// Classify every non-suspended state and build the focus cohort.
	cls, err := b.classify(ctx, now)
	if err != nil {
		return nil, err
	}
	due := b.cohort(cls)
	logging.Session("classified %d states, %d due in cohort", len(cls.states), len(due))

	// Auto-introduction (reading mode by default).
	var introduced []*types.MemoryState
	if b.autoIntroAllowed(mode) {
		introduced, err = b.autoIntroduce(ctx, cls, now, false)
		if err != nil {
			return nil, err
		}
		due = append(due, introduced...)
	}

	picked, remaining, err := b.selectSentences(ctx, cls, due, mode, limit, now)
	if err != nil {
		return nil, err
	}

	// On-demand generation for uncovered due lemmas.
	if len(remaining) > 0 && len(picked) < limit {
		picked = b.generateOnDemand(ctx, cls, picked, remaining, mode, limit, now)
	}

	// Fill phase: relax caps, introduce more, generate once more.
	if len(picked) < limit && b.autoIntroAllowed(mode) {
		extra, err := b.autoIntroduce(ctx, cls, now, true)
		if err == nil && len(extra) > 0 {
			due = append(due, extra...)
			more, remaining2, err := b.selectSentencesExcluding(ctx, cls, extra, picked, mode, limit, now)
			if err == nil {
				picked = append(picked, more...)
				if len(remaining2) > 0 && len(picked) < limit {
					picked = b.generateOnDemand(ctx, cls, picked, remaining2, mode, limit, now)
				}
			}
		}
	}

	ordered := orderEasyBookends(picked)
	sess.Cards = b.assemble(ctx, ordered, cls, due)
	sess.IntroCandidates = b.introCandidates(cls)

	b.kickWarmCache(cls, now)

	logging.Session("session %s built: %d cards, %d intro candidates", sess.ID, len(sess.Cards), len(sess.IntroCandidates))
	return sess, nil
}

func (b *Builder) autoIntroAllowed(mode types.Mode) bool {
	if mode == types.ModeListening {
		return b.cfg.ListeningAutoIntro
	}
	return true
}

// kickWarmCache hands the soonest-due uncovered lemmas to the background
// warm generator so the next build finds pool sentences waiting.
func (b *Builder) kickWarmCache(cls *classified, now time.Time) {
	if b.warmer == nil || b.gen == nil || !b.gen.Available() {
		return
	}
	n := b.genCfg.WarmCacheTargets
	if n <= 0 {
		return
	}

	soon := b.soonestDue(cls, now, n)
	if len(soon) == 0 {
		return
	}
	targets := make([]generation.Target, 0, len(soon))
	for _, st := range soon {
		l := b.graph.Lemma(st.LemmaID)
		if l == nil {
			continue
		}
		targets = append(targets, generation.Target{Lemma: *l, State: st})
	}
	vocab, sample := b.generationVocab(cls, targets)
	b.warmer.Kick(targets, vocab, sample, now)
}
