package session

import (
	"math"

	"alif/internal/types"
)

// candidate is one pool sentence under scoring.
type candidate struct {
	sent    *types.Sentence
	covered []int64 // due canonical lemma ids this sentence covers, ascending

	comprehensibility float64
	dmq               float64
	grammarFit        float64
	diversity         float64
	freshness         float64
}

// score is covered^1.5 · DMQ · grammar_fit · diversity · scaffold_freshness.
// Re-evaluated whenever the remaining due set shrinks, since covered and the
// difficulty match depend on it.
func (c *candidate) score() float64 {
	return math.Pow(float64(len(c.covered)), 1.5) * c.dmq * c.grammarFit * c.diversity * c.freshness
}

// comprehensibleStates are the knowledge states counting toward the
// comprehensibility fraction: anything the learner has at least met.
func comprehensible(st *types.MemoryState) bool {
	if st == nil {
		return false
	}
	switch st.KnowledgeState {
	case types.StateKnown, types.StateLearning, types.StateLapsed, types.StateAcquiring, types.StateEncountered:
		return true
	}
	return false
}

// evaluate recomputes a candidate against the remaining due set. Returns
// false when the sentence fails the comprehensibility gate or covers
// nothing.
func (b *Builder) evaluate(c *candidate, cls *classified, remaining map[int64]struct{}, exposures map[int64]*types.GrammarExposure) bool {
	sent := c.sent

	// Canonical-resolved distinct content lemmas of the sentence.
	contentSeen := make(map[int64]struct{})
	var content []int64
	for _, tok := range sent.Tokens {
		if tok.LemmaID == 0 {
			continue
		}
		canon := b.graph.Resolve(tok.LemmaID)
		if b.graph.IsFunctionWord(canon) {
			continue
		}
		if _, ok := contentSeen[canon]; ok {
			continue
		}
		contentSeen[canon] = struct{}{}
		content = append(content, canon)
	}
	if len(content) == 0 {
		return false
	}

	// Coverage of the remaining due set.
	c.covered = c.covered[:0]
	for _, canon := range content {
		if _, ok := remaining[canon]; ok {
			c.covered = append(c.covered, canon)
		}
	}
	if len(c.covered) == 0 {
		return false
	}

	// Comprehensibility gate.
	known := 0
	for _, canon := range content {
		if comprehensible(cls.states[canon]) {
			known++
		}
	}
	c.comprehensibility = float64(known) / float64(len(content))
	if c.comprehensibility < b.cfg.ComprehensibilityThreshold {
		return false
	}

	c.dmq = b.difficultyMatch(c, cls, content)
	c.grammarFit = b.grammarFit(sent, exposures)
	c.diversity = 1.0 / (1.0 + float64(sent.TimesShown))
	c.freshness = b.scaffoldFreshness(c, cls, content)
	return true
}

// difficultyMatch rates how well the sentence's scaffold supports its
// weakest due word.
func (b *Builder) difficultyMatch(c *candidate, cls *classified, content []int64) float64 {
	coveredSet := make(map[int64]struct{}, len(c.covered))
	weakest := math.MaxFloat64
	for _, id := range c.covered {
		coveredSet[id] = struct{}{}
		if st := cls.states[id]; st != nil {
			if s := st.Stability(); s < weakest {
				weakest = s
			}
		}
	}

	// Scaffold: the remaining content words under long-term control.
	var scaffoldSum float64
	scaffoldN := 0
	for _, id := range content {
		if _, ok := coveredSet[id]; ok {
			continue
		}
		st := cls.states[id]
		if st == nil {
			continue
		}
		if st.KnowledgeState == types.StateKnown || st.KnowledgeState == types.StateLearning {
			scaffoldSum += st.Stability()
			scaffoldN++
		}
	}
	scaffoldAvg := 0.0
	if scaffoldN > 0 {
		scaffoldAvg = scaffoldSum / float64(scaffoldN)
	}

	switch {
	case weakest < 0.5:
		if scaffoldAvg >= 1.0 {
			return 1.0
		}
		return 0.3
	case weakest <= 3.0:
		if scaffoldAvg > weakest {
			return 1.0
		}
		return 0.5
	default:
		return 1.0
	}
}

// grammarFit is the geometric mean over the sentence's grammar features:
// unseen constructions penalize, comfortable ones reward.
func (b *Builder) grammarFit(sent *types.Sentence, exposures map[int64]*types.GrammarExposure) float64 {
	if len(sent.GrammarFeatures) == 0 {
		return 1.0
	}
	product := 1.0
	for _, fid := range sent.GrammarFeatures {
		exp := exposures[fid]
		switch {
		case exp == nil || exp.TimesSeen == 0:
			product *= 0.8
		case exp.Comfort >= 0.6:
			product *= 1.1
		default:
			product *= 1.0
		}
	}
	return math.Pow(product, 1.0/float64(len(sent.GrammarFeatures)))
}

// scaffoldFreshness penalizes sentences whose supporting words the learner
// has already seen many times: geometric mean of min(1, baseline/seen),
// floored so one worn-out scaffold word cannot sink a sentence alone.
func (b *Builder) scaffoldFreshness(c *candidate, cls *classified, content []int64) float64 {
	const floor = 0.3
	baseline := float64(b.cfg.FreshnessBaseline)
	if baseline <= 0 {
		baseline = 8
	}

	coveredSet := make(map[int64]struct{}, len(c.covered))
	for _, id := range c.covered {
		coveredSet[id] = struct{}{}
	}

	product := 1.0
	n := 0
	for _, id := range content {
		if _, ok := coveredSet[id]; ok {
			continue
		}
		st := cls.states[id]
		if st == nil {
			continue
		}
		seen := float64(st.TimesSeen)
		if seen < 1 {
			seen = 1
		}
		f := baseline / seen
		if f > 1 {
			f = 1
		}
		product *= f
		n++
	}
	if n == 0 {
		return 1.0
	}
	fresh := math.Pow(product, 1.0/float64(n))
	if fresh < floor {
		return floor
	}
	return fresh
}
