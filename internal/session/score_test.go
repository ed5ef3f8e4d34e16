package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"alif/internal/config"
	"alif/internal/lexicon"
	"alif/internal/types"
)

func scoringBuilder() *Builder {
	return &Builder{
		cfg:   config.DefaultSchedulerConfig(),
		graph: lexicon.NewGraph(builderLemmas()),
	}
}

func stateWithStability(lemmaID int64, ks types.KnowledgeState, stability float64, seen int) *types.MemoryState {
	return &types.MemoryState{
		LemmaID:        lemmaID,
		KnowledgeState: ks,
		TimesSeen:      seen,
		TimesCorrect:   seen,
		Card:           &types.Card{State: types.CardReview, Stability: stability, Difficulty: 5},
	}
}

func TestDifficultyMatchBands(t *testing.T) {
	b := scoringBuilder()

	tests := []struct {
		name     string
		weakest  float64
		scaffold float64
		want     float64
	}{
		{"fragile word with solid scaffold", 0.1, 5.0, 1.0},
		{"fragile word with weak scaffold", 0.1, 0.5, 0.3},
		{"mid word with stronger scaffold", 2.0, 4.0, 1.0},
		{"mid word with equal scaffold", 2.0, 2.0, 0.5},
		{"stable word needs no scaffold", 5.0, 0.0, 1.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cls := &classified{states: map[int64]*types.MemoryState{
				5: stateWithStability(5, types.StateLearning, tt.weakest, 3),
				3: stateWithStability(3, types.StateKnown, tt.scaffold, 6),
			}, now: time.Now()}
			c := &candidate{covered: []int64{5}}
			got := b.difficultyMatch(c, cls, []int64{5, 3})
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestDifficultyMatchIgnoresNonScaffoldStates(t *testing.T) {
	b := scoringBuilder()
	// An acquiring neighbor is not scaffold; with no usable scaffold a
	// fragile word scores poorly.
	cls := &classified{states: map[int64]*types.MemoryState{
		5: {LemmaID: 5, KnowledgeState: types.StateAcquiring, Box: 1},
		1: {LemmaID: 1, KnowledgeState: types.StateAcquiring, Box: 3},
	}}
	c := &candidate{covered: []int64{5}}
	assert.InDelta(t, 0.3, b.difficultyMatch(c, cls, []int64{5, 1}), 1e-9)
}

func TestGrammarFit(t *testing.T) {
	b := scoringBuilder()
	exposures := map[int64]*types.GrammarExposure{
		1: {FeatureID: 1, TimesSeen: 12, TimesCorrect: 11, Comfort: 0.7},
		2: {FeatureID: 2, TimesSeen: 3, TimesCorrect: 2, Comfort: 0.3},
	}

	assert.InDelta(t, 1.0, b.grammarFit(&types.Sentence{}, exposures), 1e-9)

	unseen := &types.Sentence{GrammarFeatures: []int64{99}}
	assert.InDelta(t, 0.8, b.grammarFit(unseen, exposures), 1e-9)

	comfortable := &types.Sentence{GrammarFeatures: []int64{1}}
	assert.InDelta(t, 1.1, b.grammarFit(comfortable, exposures), 1e-9)

	middling := &types.Sentence{GrammarFeatures: []int64{2}}
	assert.InDelta(t, 1.0, b.grammarFit(middling, exposures), 1e-9)

	// Geometric mean across features.
	mixed := &types.Sentence{GrammarFeatures: []int64{1, 99}}
	assert.InDelta(t, 0.93808, b.grammarFit(mixed, exposures), 1e-4)
}

func TestScaffoldFreshness(t *testing.T) {
	b := scoringBuilder()
	c := &candidate{covered: []int64{5}}

	fresh := &classified{states: map[int64]*types.MemoryState{
		5: {LemmaID: 5, KnowledgeState: types.StateAcquiring, Box: 1},
		3: stateWithStability(3, types.StateKnown, 5, 4),
	}}
	assert.InDelta(t, 1.0, b.scaffoldFreshness(c, fresh, []int64{5, 3}), 1e-9)

	worn := &classified{states: map[int64]*types.MemoryState{
		5: {LemmaID: 5, KnowledgeState: types.StateAcquiring, Box: 1},
		3: stateWithStability(3, types.StateKnown, 5, 16),
	}}
	assert.InDelta(t, 0.5, b.scaffoldFreshness(c, worn, []int64{5, 3}), 1e-9)

	// The floor keeps one exhausted scaffold word from sinking a sentence.
	exhausted := &classified{states: map[int64]*types.MemoryState{
		5: {LemmaID: 5, KnowledgeState: types.StateAcquiring, Box: 1},
		3: stateWithStability(3, types.StateKnown, 5, 1000),
	}}
	assert.InDelta(t, 0.3, b.scaffoldFreshness(c, exhausted, []int64{5, 3}), 1e-9)

	// No scaffold at all is neutral.
	assert.InDelta(t, 1.0, b.scaffoldFreshness(c, fresh, []int64{5}), 1e-9)
}

func TestCandidateScoreSuperlinearInCoverage(t *testing.T) {
	one := &candidate{covered: []int64{5}, dmq: 1, grammarFit: 1, diversity: 1, freshness: 1}
	two := &candidate{covered: []int64{5, 1}, dmq: 1, grammarFit: 1, diversity: 1, freshness: 1}
	assert.Greater(t, two.score(), 2*one.score(), "coverage is rewarded superlinearly")
}
