package session

import (
	"context"
	"sort"
	"time"

	"alif/internal/logging"
	"alif/internal/types"
)

// pick is one selected sentence with its coverage at selection time.
type pick struct {
	sent     *types.Sentence
	covered  []int64 // due canonical lemma ids covered when picked
	minStab  float64 // min stability among covered, for ordering
	onDemand bool
}

// selectSentences runs candidate fetch, scoring, greedy cover and the
// acquisition repetition passes for the full due set. It returns the picks
// and the due canonical ids no pool sentence could cover.
func (b *Builder) selectSentences(ctx context.Context, cls *classified, due []*types.MemoryState, mode types.Mode, limit int, now time.Time) ([]*pick, map[int64]struct{}, error) {
	return b.selectSentencesExcluding(ctx, cls, due, nil, mode, limit, now)
}

// selectSentencesExcluding is the fill-phase variant: it covers only the
// given due states and never re-picks a sentence already in picked.
func (b *Builder) selectSentencesExcluding(ctx context.Context, cls *classified, due []*types.MemoryState, picked []*pick, mode types.Mode, limit int, now time.Time) ([]*pick, map[int64]struct{}, error) {
	remaining := make(map[int64]struct{}, len(due))
	for _, st := range due {
		remaining[st.LemmaID] = struct{}{}
	}
	if len(remaining) == 0 {
		return nil, remaining, nil
	}

	pool, err := b.fetchCandidates(ctx, remaining, picked, mode, now)
	if err != nil {
		return nil, nil, err
	}
	exposures, err := b.poolExposures(ctx, pool)
	if err != nil {
		return nil, nil, err
	}

	slots := limit - len(picked)
	out := b.greedyCover(pool, cls, remaining, exposures, slots)
	logging.SessionDebug("greedy cover: %d picks from %d candidates, %d due uncovered", len(out), len(pool), len(remaining))

	all := make([]*pick, 0, len(picked)+len(out))
	all = append(all, picked...)
	all = append(all, out...)
	out = b.repeatAcquiring(pool, cls, all, out, exposures)
	return out, remaining, nil
}

// fetchCandidates loads active, recency-eligible pool sentences touching
// the due closure, skipping sentences already picked.
func (b *Builder) fetchCandidates(ctx context.Context, remaining map[int64]struct{}, picked []*pick, mode types.Mode, now time.Time) ([]*candidate, error) {
	dueIDs := make([]int64, 0, len(remaining))
	for id := range remaining {
		dueIDs = append(dueIDs, id)
	}
	closure := b.graph.Closure(dueIDs)
	queryIDs := make([]int64, 0, len(closure))
	for variant := range closure {
		queryIDs = append(queryIDs, variant)
	}

	sents, err := b.store.ActiveSentencesCovering(ctx, queryIDs, mode, now)
	if err != nil {
		return nil, err
	}

	taken := make(map[int64]struct{}, len(picked))
	for _, p := range picked {
		taken[p.sent.ID] = struct{}{}
	}
	pool := make([]*candidate, 0, len(sents))
	for _, s := range sents {
		if _, ok := taken[s.ID]; ok {
			continue
		}
		pool = append(pool, &candidate{sent: s})
	}
	return pool, nil
}

// poolExposures loads grammar exposure counters for every feature the
// candidate pool references.
func (b *Builder) poolExposures(ctx context.Context, pool []*candidate) (map[int64]*types.GrammarExposure, error) {
	seen := make(map[int64]struct{})
	var ids []int64
	for _, c := range pool {
		for _, fid := range c.sent.GrammarFeatures {
			if _, ok := seen[fid]; ok {
				continue
			}
			seen[fid] = struct{}{}
			ids = append(ids, fid)
		}
	}
	return b.store.GetExposures(ctx, ids)
}

// greedyCover repeatedly picks the highest-scoring candidate, shrinking the
// remaining due set after each pick. Candidates are re-evaluated each round
// since coverage and difficulty match depend on what is left.
func (b *Builder) greedyCover(pool []*candidate, cls *classified, remaining map[int64]struct{}, exposures map[int64]*types.GrammarExposure, slots int) []*pick {
	var out []*pick
	used := make(map[int64]struct{})

	for len(out) < slots && len(remaining) > 0 {
		var best *candidate
		var bestScore float64
		for _, c := range pool {
			if _, ok := used[c.sent.ID]; ok {
				continue
			}
			if !b.evaluate(c, cls, remaining, exposures) {
				continue
			}
			score := c.score()
			if best == nil || score > bestScore ||
				(score == bestScore && lessShown(c.sent, best.sent)) {
				best, bestScore = c, score
			}
		}
		if best == nil {
			break
		}

		used[best.sent.ID] = struct{}{}
		out = append(out, b.toPick(best, cls, false))
		for _, id := range best.covered {
			delete(remaining, id)
		}
	}
	return out
}

// lessShown breaks score ties: fewer showings first, then lower id.
func lessShown(a, b *types.Sentence) bool {
	if a.TimesShown != b.TimesShown {
		return a.TimesShown < b.TimesShown
	}
	return a.ID < b.ID
}

func (b *Builder) toPick(c *candidate, cls *classified, onDemand bool) *pick {
	minStab := 0.0
	for i, id := range c.covered {
		s := 0.0
		if st := cls.states[id]; st != nil {
			s = st.Stability()
		}
		if i == 0 || s < minStab {
			minStab = s
		}
	}
	covered := make([]int64, len(c.covered))
	copy(covered, c.covered)
	return &pick{sent: c.sent, covered: covered, minStab: minStab, onDemand: onDemand}
}

// repeatAcquiring grows the session so acquiring lemmas are seen several
// times. Passes run with target counts 2, 3 and 4 so every acquiring lemma
// reaches two appearances before any reaches three, bounded by the
// repetition overflow.
func (b *Builder) repeatAcquiring(pool []*candidate, cls *classified, all []*pick, out []*pick, exposures map[int64]*types.GrammarExposure) []*pick {
	// Only lemmas the cover already targets repeat; appearances count every
	// sentence containing the lemma.
	counts := make(map[int64]int)
	targets := make(map[int64]struct{})
	for _, p := range all {
		for _, id := range p.covered {
			if st := cls.states[id]; st != nil && st.KnowledgeState == types.StateAcquiring {
				targets[id] = struct{}{}
			}
		}
	}
	if len(targets) == 0 {
		return out
	}
	targetIDs := make([]int64, 0, len(targets))
	for id := range targets {
		targetIDs = append(targetIDs, id)
	}
	sort.Slice(targetIDs, func(i, j int) bool { return targetIDs[i] < targetIDs[j] })
	countAppearances := func(p *pick) {
		for _, id := range b.contentLemmas(p.sent) {
			if _, ok := targets[id]; ok {
				counts[id]++
			}
		}
	}
	for _, p := range all {
		countAppearances(p)
	}

	used := make(map[int64]struct{}, len(all))
	for _, p := range all {
		used[p.sent.ID] = struct{}{}
	}

	extra := 0
	for _, target := range []int{2, 3, 4} {
		for _, id := range targetIDs {
			for counts[id] < target && extra < b.cfg.MaxRepetitionOverflow {
				need := map[int64]struct{}{id: {}}
				var best *candidate
				var bestScore float64
				for _, c := range pool {
					if _, ok := used[c.sent.ID]; ok {
						continue
					}
					if !b.evaluate(c, cls, need, exposures) {
						continue
					}
					score := c.score()
					if best == nil || score > bestScore ||
						(score == bestScore && lessShown(c.sent, best.sent)) {
						best, bestScore = c, score
					}
				}
				if best == nil {
					break
				}
				used[best.sent.ID] = struct{}{}
				p := b.toPick(best, cls, false)
				out = append(out, p)
				countAppearances(p)
				extra++
			}
		}
	}
	if extra > 0 {
		logging.SessionDebug("acquisition repetition added %d sentences", extra)
	}
	return out
}

// contentLemmas returns the sentence's distinct canonical content lemmas.
func (b *Builder) contentLemmas(sent *types.Sentence) []int64 {
	seen := make(map[int64]struct{})
	var out []int64
	for _, tok := range sent.Tokens {
		if tok.LemmaID == 0 {
			continue
		}
		canon := b.graph.Resolve(tok.LemmaID)
		if b.graph.IsFunctionWord(canon) {
			continue
		}
		if _, ok := seen[canon]; ok {
			continue
		}
		seen[canon] = struct{}{}
		out = append(out, canon)
	}
	return out
}

// orderEasyBookends arranges picks so the first and last sentences are the
// two easiest (highest min-covered-stability) and difficulty peaks in the
// middle: easiest → front, second-easiest → back, zigzagging inward.
func orderEasyBookends(picks []*pick) []*pick {
	n := len(picks)
	if n <= 2 {
		return picks
	}
	sorted := make([]*pick, n)
	copy(sorted, picks)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].minStab > sorted[j].minStab
	})

	out := make([]*pick, n)
	front, back := 0, n-1
	for i, p := range sorted {
		if i%2 == 0 {
			out[front] = p
			front++
		} else {
			out[back] = p
			back--
		}
	}
	return out
}
