package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alif/internal/config"
	"alif/internal/generation"
	"alif/internal/lexicon"
	"alif/internal/srs"
	"alif/internal/store"
	"alif/internal/types"
)

func builderLemmas() []types.Lemma {
	return []types.Lemma{
		{ID: 1, Bare: "كتاب", Gloss: "book", FrequencyRank: 10, RootID: 100},
		{ID: 2, Bare: "كتابه", Gloss: "his book", CanonicalID: 1, RootID: 100},
		{ID: 3, Bare: "كتب", Gloss: "he wrote", FrequencyRank: 5, RootID: 100},
		{ID: 4, Bare: "إلى", Gloss: "to", FrequencyRank: 1, IsFunctionWord: true},
		{ID: 5, Bare: "مدرسة", Gloss: "school", FrequencyRank: 20},
		{ID: 6, Bare: "بيت", Gloss: "house", FrequencyRank: 8},
		{ID: 7, Bare: "قلم", Gloss: "pen", FrequencyRank: 40},
		{ID: 8, Bare: "شمس", Gloss: "sun", FrequencyRank: 50},
		{ID: 9, Bare: "قمر", Gloss: "moon", FrequencyRank: 60},
		{ID: 10, Bare: "باب", Gloss: "door", FrequencyRank: 70},
	}
}

func newTestBuilder(t *testing.T) (*Builder, *store.Store) {
	t.Helper()
	s, err := store.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	lemmas := builderLemmas()
	require.NoError(t, s.InsertLemmas(context.Background(), lemmas))

	cfg := config.DefaultSchedulerConfig()
	graph := lexicon.NewGraph(lemmas)
	b := NewBuilder(s, graph, srs.NewAcquisition(cfg), nil, nil, cfg, config.DefaultGenerationConfig())
	return b, s
}

func putBuilderState(t *testing.T, s *store.Store, st *types.MemoryState) {
	t.Helper()
	require.NoError(t, s.PutMemoryState(context.Background(), st))
}

func known(lemmaID int64, stability float64, due time.Time) *types.MemoryState {
	return &types.MemoryState{
		LemmaID:        lemmaID,
		KnowledgeState: types.StateKnown,
		TimesSeen:      6,
		TimesCorrect:   6,
		Card: &types.Card{
			State:      types.CardReview,
			Stability:  stability,
			Difficulty: 5,
			DueAt:      due,
		},
	}
}

func acquiring(lemmaID int64, box int, due time.Time) *types.MemoryState {
	return &types.MemoryState{
		LemmaID:        lemmaID,
		KnowledgeState: types.StateAcquiring,
		Box:            box,
		TimesSeen:      2,
		TimesCorrect:   1,
		NextDueAt:      due,
	}
}

func poolSentence(t *testing.T, s *store.Store, target int64, lemmaIDs ...int64) *types.Sentence {
	t.Helper()
	sent := &types.Sentence{
		Arabic:        "جملة",
		Translation:   "sentence",
		TargetLemmaID: target,
		Active:        true,
	}
	for i, id := range lemmaIDs {
		sent.Tokens = append(sent.Tokens, types.SentenceToken{Position: i, Surface: "w", LemmaID: id})
	}
	require.NoError(t, s.InsertSentence(context.Background(), sent))
	return sent
}

// A learner with one due word and one pool sentence gets exactly that
// sentence, annotated and headlined by the due lemma.
func TestBuildColdStart(t *testing.T) {
	b, s := newTestBuilder(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	putBuilderState(t, s, known(3, 5.0, now.AddDate(0, 0, 7)))
	putBuilderState(t, s, acquiring(5, 1, now))
	sent := poolSentence(t, s, 5, 3, 4, 5)

	sess, err := b.Build(ctx, types.ModeReading, 10, now)
	require.NoError(t, err)

	require.Len(t, sess.Cards, 1)
	card := sess.Cards[0]
	assert.Equal(t, sent.ID, card.SentenceID)
	assert.Equal(t, int64(5), card.PrimaryLemmaID)
	assert.False(t, card.OnDemand)

	require.Len(t, card.Tokens, 3)
	assert.True(t, card.Tokens[1].IsFunctionWord)
	assert.True(t, card.Tokens[2].Due)
	assert.False(t, card.Tokens[0].Due)
	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, types.ModeReading, sess.Mode)
}

func TestBuildRejectsUnknownMode(t *testing.T) {
	b, _ := newTestBuilder(t)
	_, err := b.Build(context.Background(), types.Mode("speaking"), 10, time.Now())
	assert.Error(t, err)
}

// A sentence below the comprehensibility threshold never enters a session,
// no matter how many due words it covers.
func TestComprehensibilityGate(t *testing.T) {
	b, s := newTestBuilder(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	putBuilderState(t, s, known(3, 5.0, now.AddDate(0, 0, 7)))
	putBuilderState(t, s, acquiring(5, 1, now))
	// Lemmas 7, 8, 9 have no memory state at all: 2 of 5 content words are
	// comprehensible, 0.40 < 0.60.
	poolSentence(t, s, 5, 3, 5, 7, 8, 9)

	sess, err := b.Build(ctx, types.ModeReading, 10, now)
	require.NoError(t, err)
	assert.Empty(t, sess.Cards)
}

// Variant tokens count through their canonical: a sentence written with
// كتابه is comprehensible and covering for a learner who knows كتاب.
func TestVariantCountsAsCanonical(t *testing.T) {
	b, s := newTestBuilder(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	putBuilderState(t, s, acquiring(1, 2, now))
	putBuilderState(t, s, known(3, 4.0, now.AddDate(0, 0, 7)))
	sent := poolSentence(t, s, 1, 2, 3)

	sess, err := b.Build(ctx, types.ModeReading, 10, now)
	require.NoError(t, err)

	require.Len(t, sess.Cards, 1)
	assert.Equal(t, sent.ID, sess.Cards[0].SentenceID)
	assert.Equal(t, int64(1), sess.Cards[0].PrimaryLemmaID)
	assert.Equal(t, int64(1), sess.Cards[0].Tokens[0].LemmaID, "token annotated with the canonical")
}

// One sentence covering two due words beats two single-coverage sentences.
func TestGreedyPrefersBroaderCoverage(t *testing.T) {
	b, s := newTestBuilder(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	putBuilderState(t, s, known(3, 5.0, now.AddDate(0, 0, 7)))
	putBuilderState(t, s, known(6, 4.0, now.AddDate(0, 0, 7)))
	putBuilderState(t, s, acquiring(5, 2, now))
	putBuilderState(t, s, acquiring(1, 2, now))

	single1 := poolSentence(t, s, 5, 3, 5)
	single2 := poolSentence(t, s, 1, 6, 1)
	double := poolSentence(t, s, 0, 3, 5, 1)

	sess, err := b.Build(ctx, types.ModeReading, 10, now)
	require.NoError(t, err)

	ids := sentenceCardIDs(sess)
	require.NotEmpty(t, ids)
	assert.Equal(t, double.ID, ids[0], "the two-word cover is taken first")
	// The singles only appear through acquisition repetition afterwards.
	assert.Contains(t, ids, single1.ID)
	assert.Contains(t, ids, single2.ID)
}

// Acquiring words repeat across the session; repetition draws extra
// sentences from the pool beyond the first cover.
func TestAcquisitionRepetition(t *testing.T) {
	b, s := newTestBuilder(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	putBuilderState(t, s, known(3, 5.0, now.AddDate(0, 0, 7)))
	putBuilderState(t, s, known(6, 4.0, now.AddDate(0, 0, 7)))
	putBuilderState(t, s, acquiring(5, 1, now))

	poolSentence(t, s, 5, 3, 5)
	poolSentence(t, s, 5, 6, 5)
	poolSentence(t, s, 5, 3, 6, 5)

	sess, err := b.Build(ctx, types.ModeReading, 10, now)
	require.NoError(t, err)

	appearances := 0
	for _, card := range sess.Cards {
		for _, tok := range card.Tokens {
			if tok.LemmaID == 5 {
				appearances++
			}
		}
	}
	assert.GreaterOrEqual(t, appearances, 2, "an acquiring word is seen more than once")
	assert.GreaterOrEqual(t, len(sess.Cards), 2)
}

// Every due acquiring word enters the cohort unconditionally; long-term due
// words fill the rest lowest-stability first.
func TestCohortCapsLongTermByStability(t *testing.T) {
	b, _ := newTestBuilder(t)
	b.cfg.MaxCohort = 3
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	cls := &classified{states: map[int64]*types.MemoryState{}, now: now}
	a1 := acquiring(5, 1, now)
	a2 := acquiring(1, 2, now)
	weak := known(3, 1.2, now)
	strong := known(6, 9.0, now)
	mid := known(7, 3.0, now)
	for _, st := range []*types.MemoryState{a1, a2, weak, strong, mid} {
		cls.states[st.LemmaID] = st
		cls.due = append(cls.due, st)
	}

	out := b.cohort(cls)
	require.Len(t, out, 3)
	got := make(map[int64]bool)
	for _, st := range out {
		got[st.LemmaID] = true
	}
	assert.True(t, got[5] && got[1], "acquiring words always make the cohort")
	assert.True(t, got[3], "the weakest long-term word takes the last slot")
	assert.False(t, got[6])
	assert.False(t, got[7])
}

// First and last sentences are the two easiest; difficulty peaks mid-session.
func TestOrderEasyBookends(t *testing.T) {
	picks := []*pick{
		{minStab: 0.1},
		{minStab: 5.0},
		{minStab: 3.0},
		{minStab: 0.5},
		{minStab: 2.0},
	}
	out := orderEasyBookends(picks)
	require.Len(t, out, 5)
	assert.Equal(t, 5.0, out[0].minStab)
	assert.Equal(t, 3.0, out[4].minStab)
	assert.Equal(t, 0.1, out[2].minStab, "hardest lands in the middle")

	short := []*pick{{minStab: 1}, {minStab: 2}}
	assert.Equal(t, short, orderEasyBookends(short))
}

// Auto-introduction starts top-frequency encountered lemmas and makes them
// due for the session being built.
func TestAutoIntroduction(t *testing.T) {
	b, s := newTestBuilder(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// Pin the box-1 cap so the fill phase cannot introduce past the first
	// batch.
	b.cfg.MaxBox1 = 4
	b.cfg.MaxBox1Relaxed = 4

	for _, id := range []int64{1, 5, 6, 7, 8, 9} {
		putBuilderState(t, s, &types.MemoryState{LemmaID: id, KnowledgeState: types.StateEncountered})
	}

	sess, err := b.Build(ctx, types.ModeReading, 10, now)
	require.NoError(t, err)

	// No rating history: moderate budget of 4.
	states, err := s.ListByKnowledgeState(ctx, types.StateAcquiring)
	require.NoError(t, err)
	require.Len(t, states, 4)
	for _, st := range states {
		assert.Equal(t, 1, st.Box)
		assert.False(t, st.NextDueAt.After(now), "introduced words are due immediately")
	}

	// Frequency order: 6 (rank 8), 1 (rank 10), 5 (rank 20), 7 (rank 40).
	introduced := make(map[int64]bool)
	for _, st := range states {
		introduced[st.LemmaID] = true
	}
	assert.True(t, introduced[6] && introduced[1] && introduced[5] && introduced[7])

	// The rest surface as suggestions only.
	var suggested []int64
	for _, c := range sess.IntroCandidates {
		suggested = append(suggested, c.LemmaID)
	}
	assert.Equal(t, []int64{8, 9}, suggested)
}

func TestAutoIntroBlockedByBox1Cap(t *testing.T) {
	b, s := newTestBuilder(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b.cfg.MaxBox1 = 2
	b.cfg.MaxBox1Relaxed = 2

	putBuilderState(t, s, acquiring(3, 1, now.Add(time.Hour)))
	putBuilderState(t, s, acquiring(6, 1, now.Add(time.Hour)))
	putBuilderState(t, s, &types.MemoryState{LemmaID: 5, KnowledgeState: types.StateEncountered})

	_, err := b.Build(ctx, types.ModeReading, 10, now)
	require.NoError(t, err)

	st, err := s.GetMemoryState(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, types.StateEncountered, st.KnowledgeState, "cap holds, nothing introduced")
}

func TestListeningModeSkipsAutoIntro(t *testing.T) {
	b, s := newTestBuilder(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	putBuilderState(t, s, &types.MemoryState{LemmaID: 5, KnowledgeState: types.StateEncountered})

	_, err := b.Build(ctx, types.ModeListening, 10, now)
	require.NoError(t, err)

	st, err := s.GetMemoryState(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, types.StateEncountered, st.KnowledgeState)
}

// A recently failed root sibling defers introduction of its neighbors.
func TestRootInterferenceGuard(t *testing.T) {
	b, s := newTestBuilder(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	// Lemmas 1 and 3 share root 100; a recent failure on 3 defers 1.
	putBuilderState(t, s, acquiring(3, 1, now.Add(time.Hour)))
	require.NoError(t, s.InTx(ctx, func(tx *store.Tx) error {
		_, err := tx.InsertReviewLog(&types.ReviewLog{
			ClientReviewID: "cr-root", SessionID: "s", SentenceID: 1,
			LemmaID: 3, Rating: types.RatingAgain, Credit: types.CreditCollateral,
			ReviewedAt: now.Add(-24 * time.Hour),
		})
		return err
	}))
	putBuilderState(t, s, &types.MemoryState{LemmaID: 1, KnowledgeState: types.StateEncountered})
	putBuilderState(t, s, &types.MemoryState{LemmaID: 5, KnowledgeState: types.StateEncountered})

	_, err := b.Build(ctx, types.ModeReading, 10, now)
	require.NoError(t, err)

	st1, err := s.GetMemoryState(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, types.StateEncountered, st1.KnowledgeState, "sibling of a recent failure is deferred")

	st5, err := s.GetMemoryState(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, types.StateAcquiring, st5.KnowledgeState, "unrelated lemma still introduced")
}

func sentenceCardIDs(sess *types.Session) []int64 {
	out := make([]int64, 0, len(sess.Cards))
	for _, c := range sess.Cards {
		out = append(out, c.SentenceID)
	}
	return out
}

type fakeSentenceGen struct {
	cands   []generation.Candidate
	targets [][]generation.Target
}

func (f *fakeSentenceGen) GenerateForTargets(ctx context.Context, targets []generation.Target, vocab generation.Vocabulary, knownSample []types.Lemma, now time.Time) []generation.Candidate {
	f.targets = append(f.targets, targets)
	return f.cands
}

func (f *fakeSentenceGen) Available() bool { return true }

// With an empty pool the builder falls back to on-demand generation; the
// accepted sentence is persisted and enters the session marked as such.
func TestOnDemandGenerationFillsUncoveredDue(t *testing.T) {
	b, s := newTestBuilder(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	putBuilderState(t, s, known(3, 5.0, now.AddDate(0, 0, 7)))
	putBuilderState(t, s, acquiring(5, 1, now))

	gen := &fakeSentenceGen{cands: []generation.Candidate{{
		Arabic:      "ولد في مدرسة",
		Translation: "a boy in a school",
		Tokens: []types.SentenceToken{
			{Position: 0, Surface: "ولد", LemmaID: 3},
			{Position: 1, Surface: "مدرسة", LemmaID: 5},
		},
		TargetLemmaID: 5,
	}}}
	b.gen = gen

	sess, err := b.Build(ctx, types.ModeReading, 10, now)
	require.NoError(t, err)

	require.Len(t, sess.Cards, 1)
	card := sess.Cards[0]
	assert.True(t, card.OnDemand)
	assert.Equal(t, int64(5), card.PrimaryLemmaID)
	require.Len(t, gen.targets, 1)
	require.Len(t, gen.targets[0], 1)
	assert.Equal(t, int64(5), gen.targets[0][0].Lemma.ID)

	// The generated sentence joined the pool.
	stored, err := s.GetSentence(ctx, card.SentenceID, types.ModeReading)
	require.NoError(t, err)
	assert.True(t, stored.Active)
	assert.Equal(t, int64(5), stored.TargetLemmaID)
}

// A generated sentence below the comprehensibility gate is discarded, not
// persisted.
func TestOnDemandGenerationGated(t *testing.T) {
	b, s := newTestBuilder(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	putBuilderState(t, s, acquiring(5, 1, now))

	gen := &fakeSentenceGen{cands: []generation.Candidate{{
		Arabic: "x",
		Tokens: []types.SentenceToken{
			{Position: 0, Surface: "a", LemmaID: 7},
			{Position: 1, Surface: "b", LemmaID: 8},
			{Position: 2, Surface: "c", LemmaID: 5},
		},
		TargetLemmaID: 5,
	}}}
	b.gen = gen

	sess, err := b.Build(ctx, types.ModeReading, 10, now)
	require.NoError(t, err)
	assert.Empty(t, sess.Cards)

	sents, err := s.ActiveSentencesCovering(ctx, []int64{5}, types.ModeReading, now)
	require.NoError(t, err)
	assert.Empty(t, sents, "rejected sentence never persisted")
}
