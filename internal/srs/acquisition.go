// Package srs holds the two memory schedulers as pure functions over memory
// states: the three-box acquisition phase and the FSRS long-term model. Side
// effects (persistence, logging, leech checks) live in the review engine.
package srs

import (
	"time"

	"alif/internal/config"
	"alif/internal/types"
)

// Acquisition is the Leitner-style three-box short-term scheduler that gates
// new words before the long-term model.
type Acquisition struct {
	cfg config.SchedulerConfig
}

// NewAcquisition returns an acquisition scheduler with the given tunables.
func NewAcquisition(cfg config.SchedulerConfig) *Acquisition {
	return &Acquisition{cfg: cfg}
}

// Start places a lemma into acquisition at box 1. With dueImmediately the
// word is due for the session being built right now.
func (a *Acquisition) Start(st *types.MemoryState, now time.Time, dueImmediately bool) {
	st.KnowledgeState = types.StateAcquiring
	st.Box = 1
	st.EnteredAcquiringAt = now
	st.Card = nil
	if dueImmediately {
		st.NextDueAt = now
	} else {
		st.NextDueAt = now.Add(a.cfg.BoxInterval(1))
	}
}

// Apply returns the post-review acquisition state for a rating at time now.
// Pure: the input state is not modified. Counters (times_seen/correct) are
// the review engine's concern and must already include the current review
// before ShouldGraduate is consulted.
func (a *Acquisition) Apply(st types.MemoryState, rating types.Rating, now time.Time) types.MemoryState {
	if st.FirstReviewedAt.IsZero() {
		st.FirstReviewedAt = now
	}

	switch {
	case rating >= types.RatingGood:
		if st.Box < 3 {
			st.Box++
		}
		st.NextDueAt = now.Add(a.cfg.BoxInterval(st.Box))
	case rating == types.RatingHard:
		st.NextDueAt = now.Add(a.cfg.BoxInterval(st.Box))
	default: // Again
		st.Box = 1
		st.NextDueAt = now.Add(a.cfg.BoxInterval(1))
	}

	// First-correct retry exception: a word that has never been answered
	// correctly comes back within minutes instead of hours.
	if st.TimesCorrect == 0 && rating <= types.RatingHard {
		st.NextDueAt = now.Add(a.cfg.FirstRetryInterval(int(rating)))
	}

	return st
}

// ShouldGraduate checks the graduation criteria after an acquisition review,
// independent of the rating that review carried: box 3, enough reviews,
// sufficient cumulative accuracy, and a minimum calendar-day span between
// the earliest and the current review.
func (a *Acquisition) ShouldGraduate(st *types.MemoryState, now time.Time) bool {
	if st.Box != 3 {
		return false
	}
	if st.TimesSeen < a.cfg.GraduationReviews {
		return false
	}
	if st.Accuracy() < a.cfg.GraduationAccuracy {
		return false
	}
	first := st.FirstReviewedAt
	if first.IsZero() {
		first = st.EnteredAcquiringAt
	}
	return calendarDaySpan(first, now) >= a.cfg.GraduationSpanDays
}

// Graduate clears the short-term fields and marks the state as learning.
// Seeding the long-term card is the caller's job (an immediate Good update
// on a fresh card, see LongTerm.Update).
func (a *Acquisition) Graduate(st *types.MemoryState, now time.Time) {
	st.Box = 0
	st.NextDueAt = time.Time{}
	st.GraduatedAt = now
	st.KnowledgeState = types.StateLearning
}

// calendarDaySpan counts whole calendar days between the dates of a and b,
// ignoring time of day. Reviews at 23:59 and 00:01 span one day.
func calendarDaySpan(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	da := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	db := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}
