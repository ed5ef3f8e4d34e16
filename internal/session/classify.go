package session

import (
	"context"
	"sort"
	"time"

	"alif/internal/types"
)

// classified is the consistent snapshot the pipeline stages share.
type classified struct {
	states map[int64]*types.MemoryState // all non-suspended states by canonical lemma id
	due    []*types.MemoryState         // states due at build time
	now    time.Time
}

// classify loads every non-suspended memory state and determines dueness:
// acquiring words by next_due_at, long-term words by the card's due_at.
func (b *Builder) classify(ctx context.Context, now time.Time) (*classified, error) {
	states, err := b.store.ListMemoryStates(ctx, false)
	if err != nil {
		return nil, err
	}

	cls := &classified{
		states: make(map[int64]*types.MemoryState, len(states)),
		now:    now,
	}
	for _, st := range states {
		cls.states[st.LemmaID] = st
		if b.graph.IsFunctionWord(st.LemmaID) {
			continue // function words never schedule
		}
		switch {
		case st.KnowledgeState == types.StateAcquiring:
			if !st.NextDueAt.After(now) {
				cls.due = append(cls.due, st)
			}
		case st.KnowledgeState.IsLongTerm():
			if st.Card != nil && !st.Card.DueAt.After(now) {
				cls.due = append(cls.due, st)
			}
		}
	}
	return cls, nil
}

// cohort caps the due set: every due acquiring lemma enters unconditionally,
// then the lowest-stability long-term due lemmas fill the remaining slots up
// to max_cohort. Due lemmas beyond the cap are dropped for this session.
func (b *Builder) cohort(cls *classified) []*types.MemoryState {
	var acquiring, longTerm []*types.MemoryState
	for _, st := range cls.due {
		if st.KnowledgeState == types.StateAcquiring {
			acquiring = append(acquiring, st)
		} else {
			longTerm = append(longTerm, st)
		}
	}

	sort.Slice(longTerm, func(i, j int) bool {
		si, sj := longTerm[i].Stability(), longTerm[j].Stability()
		if si != sj {
			return si < sj
		}
		return longTerm[i].LemmaID < longTerm[j].LemmaID
	})

	out := acquiring
	slots := b.cfg.MaxCohort - len(acquiring)
	for i := 0; i < len(longTerm) && i < slots; i++ {
		out = append(out, longTerm[i])
	}
	return out
}

// soonestDue returns up to n non-due states ordered by how soon they come
// due; the warm cache generates for these.
func (b *Builder) soonestDue(cls *classified, now time.Time, n int) []*types.MemoryState {
	var upcoming []*types.MemoryState
	for _, st := range cls.states {
		if b.graph.IsFunctionWord(st.LemmaID) {
			continue
		}
		var dueAt time.Time
		switch {
		case st.KnowledgeState == types.StateAcquiring:
			dueAt = st.NextDueAt
		case st.KnowledgeState.IsLongTerm() && st.Card != nil:
			dueAt = st.Card.DueAt
		default:
			continue
		}
		if dueAt.After(now) {
			upcoming = append(upcoming, st)
		}
	}
	sort.Slice(upcoming, func(i, j int) bool {
		di := dueTime(upcoming[i])
		dj := dueTime(upcoming[j])
		if !di.Equal(dj) {
			return di.Before(dj)
		}
		return upcoming[i].LemmaID < upcoming[j].LemmaID
	})
	if len(upcoming) > n {
		upcoming = upcoming[:n]
	}
	return upcoming
}

func dueTime(st *types.MemoryState) time.Time {
	if st.KnowledgeState == types.StateAcquiring {
		return st.NextDueAt
	}
	if st.Card != nil {
		return st.Card.DueAt
	}
	return time.Time{}
}
