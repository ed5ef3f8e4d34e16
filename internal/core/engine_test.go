package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alif/internal/config"
	"alif/internal/store"
	"alif/internal/types"
)

func newTestEngine(t *testing.T) (*Engine, *store.Store) {
	t.Helper()
	s, err := store.OpenInMemory()
	require.NoError(t, err)

	lemmas := []types.Lemma{
		{ID: 1, Bare: "كتاب", Gloss: "book", FrequencyRank: 10},
		{ID: 2, Bare: "كتابه", Gloss: "his book", CanonicalID: 1},
		{ID: 3, Bare: "ولد", Gloss: "boy", FrequencyRank: 5},
		{ID: 4, Bare: "إلى", Gloss: "to", FrequencyRank: 1, IsFunctionWord: true},
	}
	require.NoError(t, s.InsertLemmas(context.Background(), lemmas))

	cfg := config.DefaultConfig()
	cfg.Generation.APIKey = "" // pool-only engine regardless of environment
	eng, err := NewEngineWithStore(cfg, s)
	require.NoError(t, err)
	t.Cleanup(func() { eng.Close() })
	return eng, s
}

func TestIntroduceLemma(t *testing.T) {
	eng, s := newTestEngine(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, eng.IntroduceLemma(ctx, 1, now))

	st, err := s.GetMemoryState(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, types.StateAcquiring, st.KnowledgeState)
	assert.Equal(t, 1, st.Box)
	assert.False(t, st.NextDueAt.After(now), "learn-mode words are due immediately")
	assert.Equal(t, "learn", st.Source)

	// A second introduction fails: the word is no longer encountered.
	assert.Error(t, eng.IntroduceLemma(ctx, 1, now))
}

func TestIntroduceLemmaResolvesVariants(t *testing.T) {
	eng, s := newTestEngine(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, eng.IntroduceLemma(ctx, 2, now))

	st, err := s.GetMemoryState(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, st, "introduction lands on the canonical")

	variant, err := s.GetMemoryState(ctx, 2)
	require.NoError(t, err)
	assert.Nil(t, variant)
}

func TestIntroduceLemmaGuards(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()
	now := time.Now()

	assert.Error(t, eng.IntroduceLemma(ctx, 999, now), "unknown lemma")
	assert.Error(t, eng.IntroduceLemma(ctx, 4, now), "function word")
}

func TestStats(t *testing.T) {
	eng, s := newTestEngine(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.PutMemoryState(ctx, &types.MemoryState{
		LemmaID:        1,
		KnowledgeState: types.StateAcquiring,
		Box:            1,
		NextDueAt:      now.Add(-time.Hour),
	}))
	require.NoError(t, s.PutMemoryState(ctx, &types.MemoryState{
		LemmaID:          3,
		KnowledgeState:   types.StateSuspended,
		TimesSeen:        6,
		TimesCorrect:     2,
		LeechCount:       1,
		LeechSuspendedAt: now.Add(-time.Hour),
	}))

	stats, err := eng.Stats(ctx, now)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Counts[types.StateAcquiring])
	assert.Equal(t, 1, stats.Counts[types.StateSuspended])
	assert.Equal(t, 1, stats.DueAcquiring)
	assert.Zero(t, stats.DueLongTerm)

	require.Len(t, stats.Leeches, 1)
	leech := stats.Leeches[0]
	assert.Equal(t, int64(3), leech.LemmaID)
	assert.Equal(t, "ولد", leech.Bare)
	assert.InDelta(t, 2.0/6.0, leech.Accuracy, 1e-9)
	assert.Equal(t, now.Add(71*time.Hour), leech.EligibleAt, "first cooldown is 72h")
}

func TestSessionReviewRoundtrip(t *testing.T) {
	eng, s := newTestEngine(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.PutMemoryState(ctx, &types.MemoryState{
		LemmaID:        3,
		KnowledgeState: types.StateKnown,
		TimesSeen:      8,
		TimesCorrect:   8,
		Card:           &types.Card{State: types.CardReview, Stability: 5, Difficulty: 5, DueAt: now.AddDate(0, 0, 7)},
	}))
	require.NoError(t, eng.IntroduceLemma(ctx, 1, now))
	sent := &types.Sentence{
		Arabic: "ولد إلى كتاب", Translation: "a boy to a book", Active: true, TargetLemmaID: 1,
		Tokens: []types.SentenceToken{
			{Position: 0, Surface: "ولد", LemmaID: 3},
			{Position: 1, Surface: "إلى", LemmaID: 4},
			{Position: 2, Surface: "كتابه", LemmaID: 2},
		},
	}
	require.NoError(t, s.InsertSentence(ctx, sent))

	sess, err := eng.BuildSession(ctx, types.ModeReading, 10, now)
	require.NoError(t, err)
	require.Len(t, sess.Cards, 1)
	assert.Equal(t, int64(1), sess.Cards[0].PrimaryLemmaID)

	res, err := eng.SubmitReview(ctx, types.ReviewSubmission{
		ClientReviewID: "cr-core",
		SessionID:      sess.ID,
		SentenceID:     sess.Cards[0].SentenceID,
		Signal:         types.ComprehensionUnderstood,
		Mode:           types.ModeReading,
	}, now)
	require.NoError(t, err)
	assert.Equal(t, types.RatingGood, res.Words[1].Rating)

	require.NoError(t, eng.Undo(ctx, "cr-core", now.Add(time.Minute)))

	st, err := s.GetMemoryState(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, st.TimesSeen, "undo restored the pre-review state")
}

func TestRunLeechScan(t *testing.T) {
	eng, s := newTestEngine(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.PutMemoryState(ctx, &types.MemoryState{
		LemmaID:          1,
		KnowledgeState:   types.StateSuspended,
		TimesSeen:        6,
		TimesCorrect:     2,
		LeechCount:       1,
		LeechSuspendedAt: now.Add(-80 * time.Hour),
	}))

	ids, err := eng.RunLeechScan(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, ids)
}
