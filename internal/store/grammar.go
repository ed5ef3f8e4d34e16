package store

import (
	"context"
	"fmt"
	"strings"

	"alif/internal/types"
)

// GetExposures loads grammar exposure counters for a set of feature ids.
// Features never exposed are absent from the result.
func (s *Store) GetExposures(ctx context.Context, featureIDs []int64) (map[int64]*types.GrammarExposure, error) {
	return getExposures(ctx, s.db, featureIDs)
}

// GetExposures is the transactional variant.
func (t *Tx) GetExposures(featureIDs []int64) (map[int64]*types.GrammarExposure, error) {
	return getExposures(t.ctx, t.tx, featureIDs)
}

func getExposures(ctx context.Context, q dbtx, featureIDs []int64) (map[int64]*types.GrammarExposure, error) {
	out := make(map[int64]*types.GrammarExposure)
	if len(featureIDs) == 0 {
		return out, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(featureIDs)), ",")
	args := make([]any, len(featureIDs))
	for i, id := range featureIDs {
		args[i] = id
	}

	rows, err := q.QueryContext(ctx, `
		SELECT feature_id, times_seen, times_correct, comfort, last_seen_at
		FROM grammar_exposure WHERE feature_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("query grammar exposure: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e types.GrammarExposure
		var last int64
		if err := rows.Scan(&e.FeatureID, &e.TimesSeen, &e.TimesCorrect, &e.Comfort, &last); err != nil {
			return nil, fmt.Errorf("scan grammar exposure: %w", err)
		}
		e.LastSeenAt = timeFromDB(last)
		out[e.FeatureID] = &e
	}
	return out, rows.Err()
}

// PutExposure upserts one feature's exposure counters.
func (t *Tx) PutExposure(e *types.GrammarExposure) error {
	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO grammar_exposure (feature_id, times_seen, times_correct, comfort, last_seen_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(feature_id) DO UPDATE SET
			times_seen = excluded.times_seen,
			times_correct = excluded.times_correct,
			comfort = excluded.comfort,
			last_seen_at = excluded.last_seen_at`,
		e.FeatureID, e.TimesSeen, e.TimesCorrect, e.Comfort, timeToDB(e.LastSeenAt))
	if err != nil {
		return fmt.Errorf("upsert grammar exposure %d: %w", e.FeatureID, err)
	}
	return nil
}

// DeleteExposure removes a feature's counters; undo uses it when the
// pre-review snapshot says the row did not exist.
func (t *Tx) DeleteExposure(featureID int64) error {
	if _, err := t.tx.ExecContext(t.ctx,
		"DELETE FROM grammar_exposure WHERE feature_id = ?", featureID); err != nil {
		return fmt.Errorf("delete grammar exposure %d: %w", featureID, err)
	}
	return nil
}
