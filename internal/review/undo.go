package review

import (
	"context"
	"fmt"
	"time"

	"alif/internal/logging"
	"alif/internal/store"
	"alif/internal/types"
)

// Undo reverts a submission: every reviewed word is restored from its
// pre-review snapshot, the review logs are removed, the sentence counters
// and grammar exposures return to their prior values. The submission record
// stays, flagged undone, so the client_review_id remains burned.
func (e *Engine) Undo(ctx context.Context, clientReviewID string, now time.Time) error {
	if clientReviewID == "" {
		return fmt.Errorf("%w: missing client_review_id", ErrInvalidSubmission)
	}

	sub, err := e.store.GetSubmission(ctx, clientReviewID)
	if err != nil {
		return err
	}
	if sub == nil {
		return fmt.Errorf("%w: %s", ErrUnknownSubmission, clientReviewID)
	}
	if sub.Undone {
		return fmt.Errorf("%w: %s", ErrAlreadyUndone, clientReviewID)
	}

	lemmaIDs := make([]int64, 0, len(sub.Result.Words))
	for id := range sub.Result.Words {
		lemmaIDs = append(lemmaIDs, id)
	}
	unlock := e.store.LockLemmas(lemmaIDs)
	defer unlock()

	err = e.store.InTx(ctx, func(tx *store.Tx) error {
		cur, err := tx.GetSubmission(clientReviewID)
		if err != nil {
			return err
		}
		if cur == nil || cur.Undone {
			return fmt.Errorf("%w: %s", ErrAlreadyUndone, clientReviewID)
		}

		logs, err := tx.ReviewLogsForSubmission(clientReviewID)
		if err != nil {
			return err
		}
		// Restore in reverse so repeated lemmas land on the earliest snapshot.
		for i := len(logs) - 1; i >= 0; i-- {
			prev, err := types.StateFromSnapshot(logs[i].SnapshotBlob)
			if err != nil {
				return fmt.Errorf("undo %s: %w", clientReviewID, err)
			}
			if err := tx.PutMemoryState(prev); err != nil {
				return err
			}
		}
		if err := tx.DeleteReviewLogs(clientReviewID); err != nil {
			return err
		}

		if err := tx.RevertShown(cur.Undo.Sentence, clientReviewID); err != nil {
			return err
		}
		for i := range cur.Undo.Exposures {
			exp := cur.Undo.Exposures[i]
			if err := tx.PutExposure(&exp); err != nil {
				return err
			}
		}
		for _, fid := range cur.Undo.NewExposures {
			if err := tx.DeleteExposure(fid); err != nil {
				return err
			}
		}

		return tx.MarkSubmissionUndone(clientReviewID)
	})
	if err != nil {
		return err
	}

	logging.Review("submission %s undone", clientReviewID)
	e.store.LogActivity(ctx, "undo", fmt.Sprintf("client_review_id=%s", clientReviewID), now)
	return nil
}
