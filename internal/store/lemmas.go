package store

import (
	"context"
	"fmt"

	"alif/internal/types"
)

// InsertLemmas imports lemmas with fixed ids. Lemmas are immutable once
// imported; conflicts are rejected.
func (s *Store) InsertLemmas(ctx context.Context, lemmas []types.Lemma) error {
	return s.InTx(ctx, func(tx *Tx) error {
		for _, l := range lemmas {
			if _, err := tx.tx.ExecContext(ctx, `
				INSERT INTO lemmas (id, bare, gloss, part_of_speech, frequency_rank, root_id, canonical_id, tag, is_function_word)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				l.ID, l.Bare, l.Gloss, l.PartOfSpeech, l.FrequencyRank, l.RootID, l.CanonicalID, l.Tag, boolToInt(l.IsFunctionWord),
			); err != nil {
				return fmt.Errorf("insert lemma %d: %w", l.ID, err)
			}
		}
		return nil
	})
}

// AllLemmas loads the whole lemma table, frequency-ranked first.
func (s *Store) AllLemmas(ctx context.Context) ([]types.Lemma, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, bare, gloss, part_of_speech, frequency_rank, root_id, canonical_id, tag, is_function_word
		FROM lemmas ORDER BY frequency_rank, id`)
	if err != nil {
		return nil, fmt.Errorf("query lemmas: %w", err)
	}
	defer rows.Close()

	var out []types.Lemma
	for rows.Next() {
		var l types.Lemma
		var fn int
		if err := rows.Scan(&l.ID, &l.Bare, &l.Gloss, &l.PartOfSpeech, &l.FrequencyRank, &l.RootID, &l.CanonicalID, &l.Tag, &fn); err != nil {
			return nil, fmt.Errorf("scan lemma: %w", err)
		}
		l.IsFunctionWord = fn != 0
		out = append(out, l)
	}
	return out, rows.Err()
}

// InsertRoot imports a root.
func (s *Store) InsertRoot(ctx context.Context, r types.Root) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO roots (id, skeleton) VALUES (?, ?)", r.ID, r.Skeleton)
	if err != nil {
		return fmt.Errorf("insert root %d: %w", r.ID, err)
	}
	return nil
}

// EnsureGrammarFeature returns the id of a grammar feature, creating it on
// first use.
func (s *Store) EnsureGrammarFeature(ctx context.Context, name string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO grammar_features (name) VALUES (?) ON CONFLICT(name) DO NOTHING", name)
	if err != nil {
		return 0, fmt.Errorf("insert grammar feature: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil && id != 0 {
		if n, _ := res.RowsAffected(); n > 0 {
			return id, nil
		}
	}
	var id int64
	if err := s.db.QueryRowContext(ctx,
		"SELECT id FROM grammar_features WHERE name = ?", name).Scan(&id); err != nil {
		return 0, fmt.Errorf("lookup grammar feature: %w", err)
	}
	return id, nil
}

// AllGrammarFeatures loads every known grammar feature.
func (s *Store) AllGrammarFeatures(ctx context.Context) ([]types.GrammarFeature, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name FROM grammar_features ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("query grammar features: %w", err)
	}
	defer rows.Close()

	var out []types.GrammarFeature
	for rows.Next() {
		var f types.GrammarFeature
		if err := rows.Scan(&f.ID, &f.Name); err != nil {
			return nil, fmt.Errorf("scan grammar feature: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
