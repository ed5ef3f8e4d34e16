package session

import (
	"context"
	"sort"
	"time"

	"alif/internal/generation"
	"alif/internal/logging"
	"alif/internal/types"
)

// generateOnDemand asks the generator for fresh sentences covering due
// lemmas the pool missed. Generated sentences face the same
// comprehensibility gate as pool sentences; the ones that pass are
// persisted and join the session. Generation failures never fail the build.
func (b *Builder) generateOnDemand(ctx context.Context, cls *classified, picked []*pick, remaining map[int64]struct{}, mode types.Mode, limit int, now time.Time) []*pick {
	if b.gen == nil || !b.gen.Available() {
		return picked
	}

	slots := limit - len(picked)
	if slots > b.cfg.MaxOnDemandPerSession {
		slots = b.cfg.MaxOnDemandPerSession
	}
	if slots <= 0 {
		return picked
	}

	// Weakest uncovered lemmas first.
	ids := make([]int64, 0, len(remaining))
	for id := range remaining {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		si, sj := stabilityOf(cls, ids[i]), stabilityOf(cls, ids[j])
		if si != sj {
			return si < sj
		}
		return ids[i] < ids[j]
	})
	if len(ids) > slots {
		ids = ids[:slots]
	}

	targets := make([]generation.Target, 0, len(ids))
	for _, id := range ids {
		l := b.graph.Lemma(id)
		st := cls.states[id]
		if l == nil || st == nil {
			continue
		}
		targets = append(targets, generation.Target{Lemma: *l, State: st})
	}
	if len(targets) == 0 {
		return picked
	}

	vocab, sample := b.generationVocab(cls, targets)
	genCtx, cancel := context.WithTimeout(ctx, b.genCfg.SessionBudgetDuration())
	defer cancel()

	cands := b.gen.GenerateForTargets(genCtx, targets, vocab, sample, now)
	logging.Session("on-demand generation: %d targets, %d candidates", len(targets), len(cands))

	exposures := map[int64]*types.GrammarExposure{}
	for _, gc := range cands {
		if len(picked) >= limit {
			break
		}
		sent := &types.Sentence{
			Arabic:          gc.Arabic,
			Translation:     gc.Translation,
			Transliteration: gc.Transliteration,
			Tokens:          gc.Tokens,
			TargetLemmaID:   gc.TargetLemmaID,
			Active:          true,
			MaxWordCount:    len(gc.Tokens),
		}
		c := &candidate{sent: sent}
		if !b.evaluate(c, cls, remaining, exposures) {
			logging.SessionDebug("generated sentence for lemma %d failed the session gate", gc.TargetLemmaID)
			continue
		}
		if err := b.store.InsertSentence(ctx, sent); err != nil {
			logging.Session("persist generated sentence: %v", err)
			continue
		}
		picked = append(picked, b.toPick(c, cls, true))
		for _, id := range c.covered {
			delete(remaining, id)
		}
	}
	return picked
}

func stabilityOf(cls *classified, id int64) float64 {
	if st := cls.states[id]; st != nil {
		return st.Stability()
	}
	return 0
}

// generationVocab builds the generator's allowed vocabulary closure plus a
// sample of the learner's most established words for prompting.
func (b *Builder) generationVocab(cls *classified, targets []generation.Target) (generation.Vocabulary, []types.Lemma) {
	states := make([]*types.MemoryState, 0, len(cls.states))
	for _, st := range cls.states {
		states = append(states, st)
	}
	targetLemmas := make([]types.Lemma, 0, len(targets))
	for _, t := range targets {
		targetLemmas = append(targetLemmas, t.Lemma)
	}
	vocab := generation.BuildVocabulary(states, targetLemmas, b.graph)

	var known []*types.MemoryState
	for _, st := range states {
		if st.KnowledgeState == types.StateKnown || st.KnowledgeState == types.StateLearning {
			known = append(known, st)
		}
	}
	sort.Slice(known, func(i, j int) bool {
		si, sj := known[i].Stability(), known[j].Stability()
		if si != sj {
			return si > sj
		}
		return known[i].LemmaID < known[j].LemmaID
	})
	max := b.genCfg.KnownVocabSample
	sample := make([]types.Lemma, 0, max)
	for _, st := range known {
		if len(sample) >= max {
			break
		}
		if l := b.graph.Lemma(st.LemmaID); l != nil {
			sample = append(sample, *l)
		}
	}
	return vocab, sample
}
