package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"alif/internal/logging"
	"alif/internal/types"
)

// Comprehension-aware recency cooldowns: how long a sentence rests in a mode
// after carrying the given signal. A sentence never shown in a mode is
// always eligible.
var recencyCooldowns = map[types.Comprehension]time.Duration{
	types.ComprehensionUnderstood:      7 * 24 * time.Hour,
	types.ComprehensionPartial:         2 * 24 * time.Hour,
	types.ComprehensionGrammarConfused: 24 * time.Hour,
	types.ComprehensionNoIdea:          4 * time.Hour,
}

// shown with no recorded signal
const nullSignalCooldown = 7 * 24 * time.Hour

// InsertSentence persists a sentence with its tokens and grammar links,
// assigning its id.
func (s *Store) InsertSentence(ctx context.Context, sent *types.Sentence) error {
	return s.InTx(ctx, func(tx *Tx) error {
		return tx.InsertSentence(sent)
	})
}

// InsertSentence is the transactional variant.
func (t *Tx) InsertSentence(sent *types.Sentence) error {
	res, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO sentences (arabic, translation, transliteration, target_lemma_id, times_shown, is_active, max_word_count, audio_url, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sent.Arabic, sent.Translation, sent.Transliteration, sent.TargetLemmaID,
		sent.TimesShown, boolToInt(sent.Active), sent.MaxWordCount, sent.AudioURL, timeToDB(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("insert sentence: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sentence id: %w", err)
	}
	sent.ID = id

	for _, tok := range sent.Tokens {
		if _, err := t.tx.ExecContext(t.ctx, `
			INSERT INTO sentence_tokens (sentence_id, position, surface, lemma_id)
			VALUES (?, ?, ?, ?)`,
			id, tok.Position, tok.Surface, tok.LemmaID,
		); err != nil {
			return fmt.Errorf("insert token %d of sentence %d: %w", tok.Position, id, err)
		}
	}
	for _, fid := range sent.GrammarFeatures {
		if _, err := t.tx.ExecContext(t.ctx, `
			INSERT INTO sentence_grammar (sentence_id, feature_id) VALUES (?, ?)`,
			id, fid,
		); err != nil {
			return fmt.Errorf("insert grammar link of sentence %d: %w", id, err)
		}
	}
	return nil
}

// GetSentence loads one sentence with the per-mode recency fields of the
// requested mode. Retired sentences stay loadable.
func (s *Store) GetSentence(ctx context.Context, id int64, mode types.Mode) (*types.Sentence, error) {
	sents, err := s.loadSentences(ctx, []int64{id}, mode)
	if err != nil {
		return nil, err
	}
	if len(sents) == 0 {
		return nil, ErrUnknownSentence
	}
	return sents[0], nil
}

// ErrUnknownSentence is returned for sentence ids the pool has never seen.
var ErrUnknownSentence = fmt.Errorf("unknown sentence")

// ActiveSentencesCovering returns active sentences containing a token whose
// lemma id is in the given set, with the comprehension-aware recency filter
// applied for the mode. The caller passes the canonical closure (canonical
// ids plus their variants).
func (s *Store) ActiveSentencesCovering(ctx context.Context, lemmaIDs []int64, mode types.Mode, now time.Time) ([]*types.Sentence, error) {
	if len(lemmaIDs) == 0 {
		return nil, nil
	}
	timer := logging.StartTimer(logging.CategoryPool, "ActiveSentencesCovering")
	defer timer.Stop()

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(lemmaIDs)), ",")
	args := make([]any, len(lemmaIDs))
	for i, id := range lemmaIDs {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT s.id
		FROM sentences s
		JOIN sentence_tokens t ON t.sentence_id = s.id
		WHERE s.is_active = 1 AND t.lemma_id IN (`+placeholders+`)
		ORDER BY s.id`, args...)
	if err != nil {
		return nil, fmt.Errorf("query covering sentences: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan sentence id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sents, err := s.loadSentences(ctx, ids, mode)
	if err != nil {
		return nil, err
	}

	// Recency filter.
	eligible := sents[:0]
	for _, sent := range sents {
		if sentenceEligible(sent, now) {
			eligible = append(eligible, sent)
		}
	}
	logging.Pool("covering fetch: %d candidates, %d past cooldown", len(sents), len(eligible))
	return eligible, nil
}

func sentenceEligible(sent *types.Sentence, now time.Time) bool {
	if sent.LastShownAt.IsZero() {
		return true // never shown in this mode
	}
	cooldown, ok := recencyCooldowns[sent.LastComprehension]
	if !ok {
		cooldown = nullSignalCooldown
	}
	return !now.Before(sent.LastShownAt.Add(cooldown))
}

// loadSentences loads full sentences (tokens, grammar, mode state) by id,
// preserving input order.
func (s *Store) loadSentences(ctx context.Context, ids []int64, mode types.Mode) ([]*types.Sentence, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, arabic, translation, transliteration, target_lemma_id, times_shown, is_active, max_word_count, audio_url
		FROM sentences WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("query sentences: %w", err)
	}
	defer rows.Close()

	byID := make(map[int64]*types.Sentence, len(ids))
	for rows.Next() {
		var sent types.Sentence
		var active int
		if err := rows.Scan(&sent.ID, &sent.Arabic, &sent.Translation, &sent.Transliteration,
			&sent.TargetLemmaID, &sent.TimesShown, &active, &sent.MaxWordCount, &sent.AudioURL); err != nil {
			return nil, fmt.Errorf("scan sentence: %w", err)
		}
		sent.Active = active != 0
		byID[sent.ID] = &sent
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	tokRows, err := s.db.QueryContext(ctx, `
		SELECT sentence_id, position, surface, lemma_id
		FROM sentence_tokens WHERE sentence_id IN (`+placeholders+`) ORDER BY sentence_id, position`, args...)
	if err != nil {
		return nil, fmt.Errorf("query tokens: %w", err)
	}
	defer tokRows.Close()
	for tokRows.Next() {
		var sid int64
		var tok types.SentenceToken
		if err := tokRows.Scan(&sid, &tok.Position, &tok.Surface, &tok.LemmaID); err != nil {
			return nil, fmt.Errorf("scan token: %w", err)
		}
		if sent := byID[sid]; sent != nil {
			sent.Tokens = append(sent.Tokens, tok)
		}
	}
	if err := tokRows.Err(); err != nil {
		return nil, err
	}

	gramRows, err := s.db.QueryContext(ctx, `
		SELECT sentence_id, feature_id FROM sentence_grammar WHERE sentence_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("query sentence grammar: %w", err)
	}
	defer gramRows.Close()
	for gramRows.Next() {
		var sid, fid int64
		if err := gramRows.Scan(&sid, &fid); err != nil {
			return nil, fmt.Errorf("scan sentence grammar: %w", err)
		}
		if sent := byID[sid]; sent != nil {
			sent.GrammarFeatures = append(sent.GrammarFeatures, fid)
		}
	}
	if err := gramRows.Err(); err != nil {
		return nil, err
	}

	modeArgs := append(append([]any{}, args...), string(mode))
	modeRows, err := s.db.QueryContext(ctx, `
		SELECT sentence_id, last_shown_at, last_comprehension
		FROM sentence_mode_state WHERE sentence_id IN (`+placeholders+`) AND mode = ?`, modeArgs...)
	if err != nil {
		return nil, fmt.Errorf("query mode state: %w", err)
	}
	defer modeRows.Close()
	for modeRows.Next() {
		var sid, last int64
		var comp string
		if err := modeRows.Scan(&sid, &last, &comp); err != nil {
			return nil, fmt.Errorf("scan mode state: %w", err)
		}
		if sent := byID[sid]; sent != nil {
			sent.LastShownAt = timeFromDB(last)
			sent.LastComprehension = types.Comprehension(comp)
		}
	}
	if err := modeRows.Err(); err != nil {
		return nil, err
	}

	out := make([]*types.Sentence, 0, len(ids))
	for _, id := range ids {
		if sent, ok := byID[id]; ok {
			out = append(out, sent)
		}
	}
	return out, nil
}

// SentenceModeSnapshot captures the pre-review counters of a sentence in one
// mode, enough to undo a RecordShown.
type SentenceModeSnapshot struct {
	SentenceID        int64               `json:"sentence_id"`
	Mode              types.Mode          `json:"mode"`
	TimesShown        int                 `json:"times_shown"`
	HadModeRow        bool                `json:"had_mode_row"`
	LastShownAt       time.Time           `json:"last_shown_at,omitempty"`
	LastComprehension types.Comprehension `json:"last_comprehension,omitempty"`
}

// SnapshotSentenceMode reads the current counters for undo.
func (t *Tx) SnapshotSentenceMode(sentenceID int64, mode types.Mode) (SentenceModeSnapshot, error) {
	snap := SentenceModeSnapshot{SentenceID: sentenceID, Mode: mode}

	err := t.tx.QueryRowContext(t.ctx,
		"SELECT times_shown FROM sentences WHERE id = ?", sentenceID).Scan(&snap.TimesShown)
	if err == sql.ErrNoRows {
		return snap, ErrUnknownSentence
	}
	if err != nil {
		return snap, fmt.Errorf("snapshot sentence %d: %w", sentenceID, err)
	}

	var last int64
	var comp string
	err = t.tx.QueryRowContext(t.ctx,
		"SELECT last_shown_at, last_comprehension FROM sentence_mode_state WHERE sentence_id = ? AND mode = ?",
		sentenceID, string(mode)).Scan(&last, &comp)
	switch err {
	case nil:
		snap.HadModeRow = true
		snap.LastShownAt = timeFromDB(last)
		snap.LastComprehension = types.Comprehension(comp)
	case sql.ErrNoRows:
	default:
		return snap, fmt.Errorf("snapshot mode state of sentence %d: %w", sentenceID, err)
	}
	return snap, nil
}

// RecordShown bumps times_shown, stamps the per-mode recency fields and
// appends the sentence review log row.
func (t *Tx) RecordShown(sentenceID int64, mode types.Mode, comp types.Comprehension, clientReviewID, sessionID string, responseMs int, now time.Time) error {
	if _, err := t.tx.ExecContext(t.ctx,
		"UPDATE sentences SET times_shown = times_shown + 1 WHERE id = ?", sentenceID); err != nil {
		return fmt.Errorf("bump times_shown of sentence %d: %w", sentenceID, err)
	}
	if _, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO sentence_mode_state (sentence_id, mode, last_shown_at, last_comprehension)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(sentence_id, mode) DO UPDATE SET
			last_shown_at = excluded.last_shown_at,
			last_comprehension = excluded.last_comprehension`,
		sentenceID, string(mode), timeToDB(now), string(comp)); err != nil {
		return fmt.Errorf("update mode state of sentence %d: %w", sentenceID, err)
	}
	if _, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO sentence_review_logs (client_review_id, sentence_id, session_id, mode, comprehension, response_ms, reviewed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		clientReviewID, sentenceID, sessionID, string(mode), string(comp), responseMs, timeToDB(now)); err != nil {
		return fmt.Errorf("insert sentence review log: %w", err)
	}
	return nil
}

// RevertShown restores the counters captured in the snapshot and removes the
// submission's sentence review log.
func (t *Tx) RevertShown(snap SentenceModeSnapshot, clientReviewID string) error {
	if _, err := t.tx.ExecContext(t.ctx,
		"UPDATE sentences SET times_shown = ? WHERE id = ?", snap.TimesShown, snap.SentenceID); err != nil {
		return fmt.Errorf("revert times_shown of sentence %d: %w", snap.SentenceID, err)
	}
	if snap.HadModeRow {
		if _, err := t.tx.ExecContext(t.ctx, `
			UPDATE sentence_mode_state SET last_shown_at = ?, last_comprehension = ?
			WHERE sentence_id = ? AND mode = ?`,
			timeToDB(snap.LastShownAt), string(snap.LastComprehension), snap.SentenceID, string(snap.Mode)); err != nil {
			return fmt.Errorf("revert mode state of sentence %d: %w", snap.SentenceID, err)
		}
	} else {
		if _, err := t.tx.ExecContext(t.ctx,
			"DELETE FROM sentence_mode_state WHERE sentence_id = ? AND mode = ?",
			snap.SentenceID, string(snap.Mode)); err != nil {
			return fmt.Errorf("delete mode state of sentence %d: %w", snap.SentenceID, err)
		}
	}
	if _, err := t.tx.ExecContext(t.ctx,
		"DELETE FROM sentence_review_logs WHERE client_review_id = ?", clientReviewID); err != nil {
		return fmt.Errorf("delete sentence review log: %w", err)
	}
	return nil
}

// RetireSentence deactivates a sentence; the row remains referenceable.
func (s *Store) RetireSentence(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "UPDATE sentences SET is_active = 0 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("retire sentence %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUnknownSentence
	}
	logging.Pool("sentence %d retired", id)
	return nil
}
