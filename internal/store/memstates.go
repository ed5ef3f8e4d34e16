package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"alif/internal/types"
)

const memoryStateColumns = `lemma_id, knowledge_state, times_seen, times_correct, source, variant_stats,
	entered_acquiring_at, first_reviewed_at, graduated_at, leech_suspended_at, leech_count,
	box, next_due_at, card_stability, card_difficulty, card_due_at, card_last_reviewed_at, card_state`

// GetMemoryState loads the state of one canonical lemma, or nil if the lemma
// has never been encountered.
func (s *Store) GetMemoryState(ctx context.Context, lemmaID int64) (*types.MemoryState, error) {
	return getMemoryState(ctx, s.db, lemmaID)
}

// GetMemoryState is the transactional variant.
func (t *Tx) GetMemoryState(lemmaID int64) (*types.MemoryState, error) {
	return getMemoryState(t.ctx, t.tx, lemmaID)
}

func getMemoryState(ctx context.Context, q dbtx, lemmaID int64) (*types.MemoryState, error) {
	row := q.QueryRowContext(ctx,
		"SELECT "+memoryStateColumns+" FROM memory_states WHERE lemma_id = ?", lemmaID)
	st, err := scanMemoryState(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load memory state %d: %w", lemmaID, err)
	}
	return st, nil
}

// PutMemoryState validates and upserts a memory state.
func (s *Store) PutMemoryState(ctx context.Context, st *types.MemoryState) error {
	return putMemoryState(ctx, s.db, st)
}

// PutMemoryState is the transactional variant.
func (t *Tx) PutMemoryState(st *types.MemoryState) error {
	return putMemoryState(t.ctx, t.tx, st)
}

func putMemoryState(ctx context.Context, q dbtx, st *types.MemoryState) error {
	if err := st.Validate(); err != nil {
		return err
	}

	variantJSON, err := json.Marshal(st.VariantStats)
	if err != nil {
		return fmt.Errorf("marshal variant stats: %w", err)
	}

	var stability, difficulty float64
	var cardDue, cardLast int64
	var cardState string
	if st.Card != nil {
		stability = st.Card.Stability
		difficulty = st.Card.Difficulty
		cardDue = timeToDB(st.Card.DueAt)
		cardLast = timeToDB(st.Card.LastReviewedAt)
		cardState = string(st.Card.State)
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO memory_states (`+memoryStateColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(lemma_id) DO UPDATE SET
			knowledge_state = excluded.knowledge_state,
			times_seen = excluded.times_seen,
			times_correct = excluded.times_correct,
			source = excluded.source,
			variant_stats = excluded.variant_stats,
			entered_acquiring_at = excluded.entered_acquiring_at,
			first_reviewed_at = excluded.first_reviewed_at,
			graduated_at = excluded.graduated_at,
			leech_suspended_at = excluded.leech_suspended_at,
			leech_count = excluded.leech_count,
			box = excluded.box,
			next_due_at = excluded.next_due_at,
			card_stability = excluded.card_stability,
			card_difficulty = excluded.card_difficulty,
			card_due_at = excluded.card_due_at,
			card_last_reviewed_at = excluded.card_last_reviewed_at,
			card_state = excluded.card_state`,
		st.LemmaID, string(st.KnowledgeState), st.TimesSeen, st.TimesCorrect, st.Source, string(variantJSON),
		timeToDB(st.EnteredAcquiringAt), timeToDB(st.FirstReviewedAt), timeToDB(st.GraduatedAt),
		timeToDB(st.LeechSuspendedAt), st.LeechCount,
		st.Box, timeToDB(st.NextDueAt), stability, difficulty, cardDue, cardLast, cardState,
	)
	if err != nil {
		return fmt.Errorf("upsert memory state %d: %w", st.LemmaID, err)
	}
	return nil
}

// ListMemoryStates loads all memory states, optionally including suspended.
func (s *Store) ListMemoryStates(ctx context.Context, includeSuspended bool) ([]*types.MemoryState, error) {
	query := "SELECT " + memoryStateColumns + " FROM memory_states"
	if !includeSuspended {
		query += " WHERE knowledge_state != 'suspended'"
	}
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query memory states: %w", err)
	}
	defer rows.Close()

	var out []*types.MemoryState
	for rows.Next() {
		st, err := scanMemoryState(rows)
		if err != nil {
			return nil, fmt.Errorf("scan memory state: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// ListByKnowledgeState loads the states with one knowledge-state tag.
func (s *Store) ListByKnowledgeState(ctx context.Context, ks types.KnowledgeState) ([]*types.MemoryState, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+memoryStateColumns+" FROM memory_states WHERE knowledge_state = ?", string(ks))
	if err != nil {
		return nil, fmt.Errorf("query memory states by state: %w", err)
	}
	defer rows.Close()

	var out []*types.MemoryState
	for rows.Next() {
		st, err := scanMemoryState(rows)
		if err != nil {
			return nil, fmt.Errorf("scan memory state: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// CountsByKnowledgeState returns how many lemmas sit in each state.
func (s *Store) CountsByKnowledgeState(ctx context.Context) (map[types.KnowledgeState]int, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT knowledge_state, COUNT(*) FROM memory_states GROUP BY knowledge_state")
	if err != nil {
		return nil, fmt.Errorf("count memory states: %w", err)
	}
	defer rows.Close()

	out := make(map[types.KnowledgeState]int)
	for rows.Next() {
		var ks string
		var n int
		if err := rows.Scan(&ks, &n); err != nil {
			return nil, fmt.Errorf("scan state count: %w", err)
		}
		out[types.KnowledgeState(ks)] = n
	}
	return out, rows.Err()
}

// DeleteMemoryState removes a state row; undo uses it when the pre-review
// snapshot says the state did not exist.
func (t *Tx) DeleteMemoryState(lemmaID int64) error {
	if _, err := t.tx.ExecContext(t.ctx,
		"DELETE FROM memory_states WHERE lemma_id = ?", lemmaID); err != nil {
		return fmt.Errorf("delete memory state %d: %w", lemmaID, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMemoryState(row rowScanner) (*types.MemoryState, error) {
	var st types.MemoryState
	var ks, source, variantJSON, cardState string
	var entered, first, graduated, suspended, nextDue, cardDue, cardLast int64
	var stability, difficulty float64

	err := row.Scan(&st.LemmaID, &ks, &st.TimesSeen, &st.TimesCorrect, &source, &variantJSON,
		&entered, &first, &graduated, &suspended, &st.LeechCount,
		&st.Box, &nextDue, &stability, &difficulty, &cardDue, &cardLast, &cardState)
	if err != nil {
		return nil, err
	}

	st.KnowledgeState = types.KnowledgeState(ks)
	st.Source = source
	st.EnteredAcquiringAt = timeFromDB(entered)
	st.FirstReviewedAt = timeFromDB(first)
	st.GraduatedAt = timeFromDB(graduated)
	st.LeechSuspendedAt = timeFromDB(suspended)
	st.NextDueAt = timeFromDB(nextDue)

	if variantJSON != "" && variantJSON != "{}" && variantJSON != "null" {
		if err := json.Unmarshal([]byte(variantJSON), &st.VariantStats); err != nil {
			return nil, fmt.Errorf("decode variant stats: %w", err)
		}
	}

	if cardState != "" {
		st.Card = &types.Card{
			Stability:      stability,
			Difficulty:     difficulty,
			DueAt:          timeFromDB(cardDue),
			LastReviewedAt: timeFromDB(cardLast),
			State:          types.CardState(cardState),
		}
	}
	return &st, nil
}
