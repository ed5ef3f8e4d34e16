package session

import (
	"context"
	"fmt"
	"time"

	"alif/internal/logging"
	"alif/internal/types"
)

// autoIntroduce starts acquisition for top-frequency encountered lemmas,
// budgeted by the learner's recent accuracy and bounded by the acquisition
// caps (relaxed during the fill phase). Introduced words are due
// immediately and join the session's due set.
func (b *Builder) autoIntroduce(ctx context.Context, cls *classified, now time.Time, relaxed bool) ([]*types.MemoryState, error) {
	budget, err := b.introBudget(ctx)
	if err != nil {
		return nil, err
	}
	if budget <= 0 {
		return nil, nil
	}

	maxAcquiring, maxBox1 := b.cfg.MaxAcquiring, b.cfg.MaxBox1
	if relaxed {
		maxAcquiring, maxBox1 = b.cfg.MaxAcquiringRelaxed, b.cfg.MaxBox1Relaxed
	}

	acquiring, box1 := 0, 0
	for _, st := range cls.states {
		if st.KnowledgeState == types.StateAcquiring {
			acquiring++
			if st.Box == 1 {
				box1++
			}
		}
	}
	if acquiring >= maxAcquiring || box1 >= maxBox1 {
		logging.SessionDebug("auto-intro blocked by caps: acquiring=%d/%d box1=%d/%d", acquiring, maxAcquiring, box1, maxBox1)
		return nil, nil
	}

	guard, err := b.rootGuard(ctx, now)
	if err != nil {
		return nil, err
	}

	var introduced []*types.MemoryState
	for _, id := range b.graph.CanonicalLemmas() {
		if len(introduced) >= budget {
			break
		}
		st, ok := cls.states[id]
		if !ok || st.KnowledgeState != types.StateEncountered {
			continue
		}
		if guard(id) {
			logging.SessionDebug("auto-intro of lemma %d deferred by root interference guard", id)
			continue
		}
		if acquiring >= maxAcquiring || box1 >= maxBox1 {
			break
		}

		b.acq.Start(st, now, true)
		if err := b.store.PutMemoryState(ctx, st); err != nil {
			return nil, fmt.Errorf("auto-introduce lemma %d: %w", id, err)
		}
		introduced = append(introduced, st)
		acquiring++
		box1++
	}

	if len(introduced) > 0 {
		logging.Session("auto-introduced %d lemmas (budget %d, relaxed=%v)", len(introduced), budget, relaxed)
		b.store.LogActivity(ctx, "auto_intro", fmt.Sprintf("introduced=%d", len(introduced)), now)
	}
	return introduced, nil
}

// introBudget maps recent accuracy over the last rating window to an
// introduction budget. Fewer than ten recent ratings default to the
// moderate band.
func (b *Builder) introBudget(ctx context.Context) (int, error) {
	ratings, err := b.store.RecentRatings(ctx, b.cfg.AccuracyWindow)
	if err != nil {
		return 0, err
	}

	budget := 0
	if len(ratings) < 10 {
		budget = 4
	} else {
		correct := 0
		for _, r := range ratings {
			if r.Correct() {
				correct++
			}
		}
		acc := float64(correct) / float64(len(ratings))
		budget = b.cfg.AccuracyBudgets[len(b.cfg.AccuracyBands)]
		for i, band := range b.cfg.AccuracyBands {
			if acc < band {
				budget = b.cfg.AccuracyBudgets[i]
				break
			}
		}
	}

	if budget > b.cfg.AutoIntroCeiling {
		budget = b.cfg.AutoIntroCeiling
	}
	return budget, nil
}

// rootGuard returns a predicate deferring lemmas whose root siblings failed
// recently: introducing semantic neighbors of a struggling word invites
// interference.
func (b *Builder) rootGuard(ctx context.Context, now time.Time) (func(int64) bool, error) {
	failed, err := b.store.LemmasRatedAgainSince(ctx, now.Add(-b.cfg.RootGuardDuration()))
	if err != nil {
		return nil, err
	}
	return func(id int64) bool {
		for _, sib := range b.graph.RootSiblings(id) {
			if failed[sib] {
				return true
			}
		}
		return false
	}, nil
}

// introCandidates surfaces the next top-frequency encountered lemmas as
// suggestions for the UI; they are never inserted as cards.
func (b *Builder) introCandidates(cls *classified) []types.IntroCandidate {
	const maxCandidates = 5
	var out []types.IntroCandidate
	for _, id := range b.graph.CanonicalLemmas() {
		if len(out) >= maxCandidates {
			break
		}
		st, ok := cls.states[id]
		if !ok || st.KnowledgeState != types.StateEncountered {
			continue
		}
		l := b.graph.Lemma(id)
		out = append(out, types.IntroCandidate{
			LemmaID:       id,
			Bare:          l.Bare,
			Gloss:         l.Gloss,
			FrequencyRank: l.FrequencyRank,
		})
	}
	return out
}
