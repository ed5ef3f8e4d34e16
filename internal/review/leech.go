package review

import (
	"context"
	"fmt"
	"time"

	"alif/internal/logging"
	"alif/internal/types"
)

// ReintroduceDue scans suspended lemmas and returns those past their
// cooldown to acquisition box 1, due immediately. Counters survive, so
// cumulative accuracy must genuinely improve for the word to graduate
// again. Returns the reintroduced lemma ids.
func (e *Engine) ReintroduceDue(ctx context.Context, now time.Time) ([]int64, error) {
	suspended, err := e.store.ListByKnowledgeState(ctx, types.StateSuspended)
	if err != nil {
		return nil, err
	}

	var reintroduced []int64
	for _, st := range suspended {
		if st.LeechSuspendedAt.IsZero() {
			continue
		}
		cooldown := e.cfg.LeechCooldown(st.LeechCount)
		if now.Before(st.LeechSuspendedAt.Add(cooldown)) {
			continue
		}

		id := st.LemmaID
		err := e.store.WithLemmaLock(id, func() error {
			cur, err := e.store.GetMemoryState(ctx, id)
			if err != nil {
				return err
			}
			if cur == nil || cur.KnowledgeState != types.StateSuspended {
				return nil
			}
			cur.KnowledgeState = types.StateAcquiring
			cur.Box = 1
			cur.NextDueAt = now
			cur.EnteredAcquiringAt = now
			cur.Card = nil
			return e.store.PutMemoryState(ctx, cur)
		})
		if err != nil {
			return reintroduced, fmt.Errorf("reintroduce lemma %d: %w", id, err)
		}
		reintroduced = append(reintroduced, id)
		logging.Leech("lemma %d reintroduced after %d suspension(s)", id, st.LeechCount)
	}

	if len(reintroduced) > 0 {
		e.store.LogActivity(ctx, "leech_reintro", fmt.Sprintf("count=%d", len(reintroduced)), now)
	}
	return reintroduced, nil
}
