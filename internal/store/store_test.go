package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alif/internal/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedLemmas(t *testing.T, s *Store) {
	t.Helper()
	require.NoError(t, s.InsertLemmas(context.Background(), []types.Lemma{
		{ID: 1, Bare: "كتاب", Gloss: "book", FrequencyRank: 10},
		{ID: 2, Bare: "مدرسة", Gloss: "school", FrequencyRank: 20},
		{ID: 3, Bare: "ولد", Gloss: "boy", FrequencyRank: 5},
		{ID: 4, Bare: "إلى", Gloss: "to", FrequencyRank: 1, IsFunctionWord: true},
	}))
}

func seedSentence(t *testing.T, s *Store, lemmaIDs ...int64) *types.Sentence {
	t.Helper()
	sent := &types.Sentence{
		Arabic:      "جملة تجريبية",
		Translation: "a test sentence",
		Active:      true,
	}
	for i, id := range lemmaIDs {
		sent.Tokens = append(sent.Tokens, types.SentenceToken{Position: i, Surface: "t", LemmaID: id})
	}
	require.NoError(t, s.InsertSentence(context.Background(), sent))
	require.NotZero(t, sent.ID)
	return sent
}

func TestMemoryStateRoundtrip(t *testing.T) {
	s := newTestStore(t)
	seedLemmas(t, s)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	st := &types.MemoryState{
		LemmaID:            1,
		KnowledgeState:     types.StateAcquiring,
		Box:                2,
		TimesSeen:          3,
		TimesCorrect:       2,
		NextDueAt:          now.Add(24 * time.Hour),
		EnteredAcquiringAt: now,
		FirstReviewedAt:    now,
		VariantStats: map[int64]*types.VariantStat{
			9: {Seen: 2, Missed: 1},
		},
	}
	require.NoError(t, s.PutMemoryState(ctx, st))

	got, err := s.GetMemoryState(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, st.KnowledgeState, got.KnowledgeState)
	assert.Equal(t, st.Box, got.Box)
	assert.True(t, st.NextDueAt.Equal(got.NextDueAt))
	assert.Equal(t, st.VariantStats[9].Missed, got.VariantStats[9].Missed)

	missing, err := s.GetMemoryState(ctx, 999)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestPutRejectsInvalidTaggedRecord(t *testing.T) {
	s := newTestStore(t)
	seedLemmas(t, s)

	// Acquiring without a box violates the tag invariants.
	err := s.PutMemoryState(context.Background(), &types.MemoryState{
		LemmaID:        1,
		KnowledgeState: types.StateAcquiring,
	})
	assert.Error(t, err)
}

func TestLongTermCardRoundtrip(t *testing.T) {
	s := newTestStore(t)
	seedLemmas(t, s)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	st := &types.MemoryState{
		LemmaID:        2,
		KnowledgeState: types.StateKnown,
		TimesSeen:      8,
		TimesCorrect:   7,
		Card: &types.Card{
			State:          types.CardReview,
			Stability:      4.2,
			Difficulty:     5.1,
			DueAt:          now.AddDate(0, 0, 4),
			LastReviewedAt: now,
		},
	}
	require.NoError(t, s.PutMemoryState(ctx, st))

	got, err := s.GetMemoryState(ctx, 2)
	require.NoError(t, err)
	require.NotNil(t, got.Card)
	assert.Equal(t, types.CardReview, got.Card.State)
	assert.InDelta(t, 4.2, got.Card.Stability, 1e-9)
	assert.True(t, st.Card.DueAt.Equal(got.Card.DueAt))
}

func TestRecencyCooldowns(t *testing.T) {
	s := newTestStore(t)
	seedLemmas(t, s)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		signal   types.Comprehension
		cooldown time.Duration
	}{
		{types.ComprehensionUnderstood, 7 * 24 * time.Hour},
		{types.ComprehensionPartial, 2 * 24 * time.Hour},
		{types.ComprehensionGrammarConfused, 24 * time.Hour},
		{types.ComprehensionNoIdea, 4 * time.Hour},
	}
	for _, tt := range tests {
		t.Run(string(tt.signal), func(t *testing.T) {
			sent := seedSentence(t, s, 1, 2)
			require.NoError(t, s.InTx(ctx, func(tx *Tx) error {
				return tx.RecordShown(sent.ID, types.ModeReading, tt.signal, "cr-"+string(tt.signal), "sess", 100, now)
			}))

			justBefore := now.Add(tt.cooldown - time.Minute)
			got, err := s.ActiveSentencesCovering(ctx, []int64{1}, types.ModeReading, justBefore)
			require.NoError(t, err)
			assert.NotContains(t, sentenceIDs(got), sent.ID, "inside cooldown")

			after := now.Add(tt.cooldown + time.Minute)
			got, err = s.ActiveSentencesCovering(ctx, []int64{1}, types.ModeReading, after)
			require.NoError(t, err)
			assert.Contains(t, sentenceIDs(got), sent.ID, "past cooldown")
		})
	}
}

func TestRecencyIsPerMode(t *testing.T) {
	s := newTestStore(t)
	seedLemmas(t, s)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	sent := seedSentence(t, s, 1)
	require.NoError(t, s.InTx(ctx, func(tx *Tx) error {
		return tx.RecordShown(sent.ID, types.ModeReading, types.ComprehensionUnderstood, "cr-1", "sess", 100, now)
	}))

	// Cooling down in reading leaves listening untouched.
	got, err := s.ActiveSentencesCovering(ctx, []int64{1}, types.ModeListening, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Contains(t, sentenceIDs(got), sent.ID)
}

func TestRetiredSentenceExcludedButLoadable(t *testing.T) {
	s := newTestStore(t)
	seedLemmas(t, s)
	ctx := context.Background()

	sent := seedSentence(t, s, 1)
	require.NoError(t, s.RetireSentence(ctx, sent.ID))

	got, err := s.ActiveSentencesCovering(ctx, []int64{1}, types.ModeReading, time.Now())
	require.NoError(t, err)
	assert.NotContains(t, sentenceIDs(got), sent.ID)

	loaded, err := s.GetSentence(ctx, sent.ID, types.ModeReading)
	require.NoError(t, err)
	assert.False(t, loaded.Active)
}

func TestSubmissionDuplicateDetection(t *testing.T) {
	s := newTestStore(t)
	seedLemmas(t, s)
	ctx := context.Background()
	sent := seedSentence(t, s, 1)
	now := time.Now()

	sub := &StoredSubmission{
		ClientReviewID: "cr-dup",
		SessionID:      "sess",
		SentenceID:     sent.ID,
		Mode:           types.ModeReading,
		Signal:         types.ComprehensionUnderstood,
		SubmittedAt:    now,
		Result:         types.SubmissionResult{ClientReviewID: "cr-dup"},
	}
	require.NoError(t, s.InTx(ctx, func(tx *Tx) error { return tx.SaveSubmission(sub) }))

	err := s.InTx(ctx, func(tx *Tx) error { return tx.SaveSubmission(sub) })
	assert.ErrorIs(t, err, ErrDuplicateReview)

	got, err := s.GetSubmission(ctx, "cr-dup")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "cr-dup", got.Result.ClientReviewID)
	assert.False(t, got.Undone)
}

func TestReviewLogRoundtrip(t *testing.T) {
	s := newTestStore(t)
	seedLemmas(t, s)
	ctx := context.Background()
	sent := seedSentence(t, s, 1, 2)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var ids []int64
	require.NoError(t, s.InTx(ctx, func(tx *Tx) error {
		for _, lemma := range []int64{1, 2} {
			id, err := tx.InsertReviewLog(&types.ReviewLog{
				ClientReviewID: "cr-log",
				SessionID:      "sess",
				SentenceID:     sent.ID,
				LemmaID:        lemma,
				Rating:         types.RatingGood,
				Credit:         types.CreditCollateral,
				ReviewedAt:     now,
				SnapshotBlob:   []byte(`{}`),
			})
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return nil
	}))
	require.Len(t, ids, 2)
	assert.Less(t, ids[0], ids[1], "logs append in submission order")

	n, err := s.CountReviewLogs(ctx, "cr-log")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	ratings, err := s.RecentRatings(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, ratings, 2)
}

func TestLemmasRatedAgainSince(t *testing.T) {
	s := newTestStore(t)
	seedLemmas(t, s)
	ctx := context.Background()
	sent := seedSentence(t, s, 1)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.InTx(ctx, func(tx *Tx) error {
		_, err := tx.InsertReviewLog(&types.ReviewLog{
			ClientReviewID: "cr-a", SentenceID: sent.ID, LemmaID: 1,
			Rating: types.RatingAgain, Credit: types.CreditPrimary,
			ReviewedAt: now, SnapshotBlob: []byte(`{}`),
		})
		if err != nil {
			return err
		}
		_, err = tx.InsertReviewLog(&types.ReviewLog{
			ClientReviewID: "cr-b", SentenceID: sent.ID, LemmaID: 2,
			Rating: types.RatingGood, Credit: types.CreditPrimary,
			ReviewedAt: now, SnapshotBlob: []byte(`{}`),
		})
		return err
	}))

	failed, err := s.LemmasRatedAgainSince(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.True(t, failed[1])
	assert.False(t, failed[2])

	failed, err = s.LemmasRatedAgainSince(ctx, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, failed)
}

func TestGrammarExposureRoundtrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	fid, err := s.EnsureGrammarFeature(ctx, "idafa")
	require.NoError(t, err)
	again, err := s.EnsureGrammarFeature(ctx, "idafa")
	require.NoError(t, err)
	assert.Equal(t, fid, again, "ensure is idempotent")

	require.NoError(t, s.InTx(ctx, func(tx *Tx) error {
		return tx.PutExposure(&types.GrammarExposure{
			FeatureID: fid, TimesSeen: 3, TimesCorrect: 2, Comfort: 0.4, LastSeenAt: now,
		})
	}))

	exps, err := s.GetExposures(ctx, []int64{fid})
	require.NoError(t, err)
	require.Contains(t, exps, fid)
	assert.Equal(t, 3, exps[fid].TimesSeen)
	assert.InDelta(t, 0.4, exps[fid].Comfort, 1e-9)
}

func sentenceIDs(sents []*types.Sentence) []int64 {
	out := make([]int64, 0, len(sents))
	for _, s := range sents {
		out = append(out, s.ID)
	}
	return out
}
