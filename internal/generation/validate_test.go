package generation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alif/internal/lexicon"
	"alif/internal/types"
)

func testGraph() *lexicon.Graph {
	return lexicon.NewGraph([]types.Lemma{
		{ID: 1, Bare: "كتاب", Gloss: "book", FrequencyRank: 10},
		{ID: 2, Bare: "كتابه", Gloss: "his book", CanonicalID: 1},
		{ID: 3, Bare: "ولد", Gloss: "boy", FrequencyRank: 5},
		{ID: 4, Bare: "إلى", Gloss: "to", FrequencyRank: 1, IsFunctionWord: true},
		{ID: 5, Bare: "مدرسة", Gloss: "school", FrequencyRank: 20},
	})
}

func tok(surface string, lemmaID int64) types.SentenceToken {
	return types.SentenceToken{Surface: surface, LemmaID: lemmaID}
}

func TestValidateAcceptsClosedVocabulary(t *testing.T) {
	graph := testGraph()
	req := Request{Targets: []types.Lemma{{ID: 5}}, MaxWords: 7}
	vocab := Vocabulary{1: {}, 3: {}}

	c := Candidate{Tokens: []types.SentenceToken{
		tok("ولد", 3), tok("إلى", 4), tok("مدرسة", 5),
	}}
	assert.NoError(t, Validate(c, req, vocab, graph))
}

func TestValidateRejectsOutOfVocabulary(t *testing.T) {
	graph := testGraph()
	req := Request{Targets: []types.Lemma{{ID: 5}}}
	vocab := Vocabulary{3: {}}

	c := Candidate{Tokens: []types.SentenceToken{
		tok("ولد", 3), tok("كتاب", 1), tok("مدرسة", 5),
	}}
	err := Validate(c, req, vocab, graph)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"كتاب"}, verr.RejectedWords)
}

func TestValidateUnmappedTokenIsUnknown(t *testing.T) {
	graph := testGraph()
	req := Request{Targets: []types.Lemma{{ID: 5}}}

	c := Candidate{Tokens: []types.SentenceToken{
		tok("غامض", 0), tok("مدرسة", 5),
	}}
	err := Validate(c, req, Vocabulary{}, graph)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"غامض"}, verr.RejectedWords)
}

func TestValidateRequiresTarget(t *testing.T) {
	graph := testGraph()
	req := Request{Targets: []types.Lemma{{ID: 5}}}
	vocab := Vocabulary{3: {}}

	c := Candidate{Tokens: []types.SentenceToken{tok("ولد", 3)}}
	assert.Error(t, Validate(c, req, vocab, graph))
}

func TestValidateVariantSatisfiesTarget(t *testing.T) {
	graph := testGraph()
	req := Request{Targets: []types.Lemma{{ID: 1}}}

	// The sentence uses the possessive variant; the target is its canonical.
	c := Candidate{Tokens: []types.SentenceToken{tok("كتابه", 2)}}
	assert.NoError(t, Validate(c, req, Vocabulary{}, graph))
}

func TestValidateEnforcesWordLimit(t *testing.T) {
	graph := testGraph()
	req := Request{Targets: []types.Lemma{{ID: 5}}, MaxWords: 2}
	vocab := Vocabulary{3: {}}

	c := Candidate{Tokens: []types.SentenceToken{
		tok("ولد", 3), tok("إلى", 4), tok("مدرسة", 5),
	}}
	assert.Error(t, Validate(c, req, vocab, graph))
}

func TestValidateEmptyCandidate(t *testing.T) {
	assert.Error(t, Validate(Candidate{}, Request{}, Vocabulary{}, testGraph()))
}

func TestBuildVocabularyExcludesSuspended(t *testing.T) {
	graph := testGraph()
	states := []*types.MemoryState{
		{LemmaID: 1, KnowledgeState: types.StateKnown},
		{LemmaID: 3, KnowledgeState: types.StateEncountered},
		{LemmaID: 5, KnowledgeState: types.StateSuspended},
	}
	vocab := BuildVocabulary(states, []types.Lemma{{ID: 2}}, graph)

	assert.Contains(t, vocab, int64(1))
	assert.Contains(t, vocab, int64(3))
	assert.NotContains(t, vocab, int64(5))
	assert.Contains(t, vocab, int64(1), "target variants resolve to canonicals")
}

func TestDeriveDifficulty(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		state     *types.MemoryState
		wantWords int
		wantTier  Difficulty
	}{
		{"no state", nil, 7, DifficultySimple},
		{"brand new", &types.MemoryState{EnteredAcquiringAt: now.Add(-time.Hour), TimesSeen: 1}, 7, DifficultySimple},
		{"first day", &types.MemoryState{EnteredAcquiringAt: now.Add(-10 * time.Hour), TimesSeen: 4}, 9, DifficultySimple},
		{"first week", &types.MemoryState{EnteredAcquiringAt: now.AddDate(0, 0, -3), TimesSeen: 8}, 11, DifficultyBeginner},
		{"established", &types.MemoryState{EnteredAcquiringAt: now.AddDate(0, 0, -20), TimesSeen: 15}, 14, DifficultyIntermediate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			words, tier := DeriveDifficulty(tt.state, now)
			assert.Equal(t, tt.wantWords, words)
			assert.Equal(t, tt.wantTier, tier)
		})
	}
}
