package core

import (
	"context"
	"sort"
	"time"

	"alif/internal/types"
)

// Stats summarizes the learner's memory store.
type Stats struct {
	Counts       map[types.KnowledgeState]int `json:"counts"`
	DueAcquiring int                          `json:"due_acquiring"`
	DueLongTerm  int                          `json:"due_long_term"`
	Leeches      []LeechInfo                  `json:"leeches,omitempty"`
}

// LeechInfo describes one suspended lemma.
type LeechInfo struct {
	LemmaID     int64     `json:"lemma_id"`
	Bare        string    `json:"bare"`
	Accuracy    float64   `json:"accuracy"`
	LeechCount  int       `json:"leech_count"`
	SuspendedAt time.Time `json:"suspended_at"`
	EligibleAt  time.Time `json:"eligible_at"`
}

// Stats computes knowledge-state counts, due counts and the current leech
// list.
func (e *Engine) Stats(ctx context.Context, now time.Time) (*Stats, error) {
	counts, err := e.store.CountsByKnowledgeState(ctx)
	if err != nil {
		return nil, err
	}
	out := &Stats{Counts: counts}

	states, err := e.store.ListMemoryStates(ctx, true)
	if err != nil {
		return nil, err
	}
	for _, st := range states {
		if e.graph.IsFunctionWord(st.LemmaID) {
			continue
		}
		switch {
		case st.KnowledgeState == types.StateAcquiring:
			if !st.NextDueAt.After(now) {
				out.DueAcquiring++
			}
		case st.KnowledgeState.IsLongTerm():
			if st.Card != nil && !st.Card.DueAt.After(now) {
				out.DueLongTerm++
			}
		case st.KnowledgeState == types.StateSuspended:
			info := LeechInfo{
				LemmaID:     st.LemmaID,
				Accuracy:    st.Accuracy(),
				LeechCount:  st.LeechCount,
				SuspendedAt: st.LeechSuspendedAt,
				EligibleAt:  st.LeechSuspendedAt.Add(e.cfg.Scheduler.LeechCooldown(st.LeechCount)),
			}
			if l := e.graph.Lemma(st.LemmaID); l != nil {
				info.Bare = l.Bare
			}
			out.Leeches = append(out.Leeches, info)
		}
	}
	sort.Slice(out.Leeches, func(i, j int) bool {
		return out.Leeches[i].EligibleAt.Before(out.Leeches[j].EligibleAt)
	})
	return out, nil
}
