package store

import (
	"database/sql"
	"fmt"

	"alif/internal/logging"
)

const schemaVersion = 1

// initSchema applies pragmas and migrates the schema to the current version.
func (s *Store) initSchema() error {
	logging.StoreDebug("initializing schema, target version %d", schemaVersion)

	// WAL gives concurrent readers during the short write transactions.
	if _, err := s.db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		logging.Get(logging.CategoryStore).Warn("failed to enable WAL mode: %v", err)
	}
	if _, err := s.db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		logging.Get(logging.CategoryStore).Warn("failed to set busy timeout: %v", err)
	}
	if _, err := s.db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		logging.Get(logging.CategoryStore).Warn("failed to enable foreign keys: %v", err)
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("create meta table: %w", err)
	}

	var current int
	err := s.db.QueryRow("SELECT value FROM meta WHERE key = 'schema_version'").Scan(&current)
	if err == sql.ErrNoRows {
		current = 0
	} else if err != nil {
		return fmt.Errorf("check schema version: %w", err)
	}

	if current < schemaVersion {
		if err := s.migrate(current); err != nil {
			return fmt.Errorf("migrate schema: %w", err)
		}
	}
	return nil
}

// migrate runs migrations from the current version to the target version
// inside one transaction.
func (s *Store) migrate(from int) error {
	logging.Store("migrating schema from v%d to v%d", from, schemaVersion)

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if from < 1 {
		if err := migrateV1(tx); err != nil {
			return fmt.Errorf("migrate to v1: %w", err)
		}
	}

	if _, err := tx.Exec(
		"INSERT INTO meta (key, value) VALUES ('schema_version', ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		schemaVersion,
	); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return tx.Commit()
}

func migrateV1(tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS roots (
			id INTEGER PRIMARY KEY,
			skeleton TEXT NOT NULL UNIQUE
		)`,
		`CREATE TABLE IF NOT EXISTS lemmas (
			id INTEGER PRIMARY KEY,
			bare TEXT NOT NULL,
			gloss TEXT NOT NULL DEFAULT '',
			part_of_speech TEXT NOT NULL DEFAULT '',
			frequency_rank INTEGER NOT NULL DEFAULT 0,
			root_id INTEGER NOT NULL DEFAULT 0,
			canonical_id INTEGER NOT NULL DEFAULT 0,
			tag TEXT NOT NULL DEFAULT '',
			is_function_word INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_lemmas_root ON lemmas(root_id)`,
		`CREATE INDEX IF NOT EXISTS idx_lemmas_canonical ON lemmas(canonical_id)`,
		`CREATE INDEX IF NOT EXISTS idx_lemmas_rank ON lemmas(frequency_rank)`,

		`CREATE TABLE IF NOT EXISTS grammar_features (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE
		)`,

		`CREATE TABLE IF NOT EXISTS memory_states (
			lemma_id INTEGER PRIMARY KEY,
			knowledge_state TEXT NOT NULL,
			times_seen INTEGER NOT NULL DEFAULT 0,
			times_correct INTEGER NOT NULL DEFAULT 0,
			source TEXT NOT NULL DEFAULT '',
			variant_stats TEXT NOT NULL DEFAULT '{}',
			entered_acquiring_at INTEGER NOT NULL DEFAULT 0,
			first_reviewed_at INTEGER NOT NULL DEFAULT 0,
			graduated_at INTEGER NOT NULL DEFAULT 0,
			leech_suspended_at INTEGER NOT NULL DEFAULT 0,
			leech_count INTEGER NOT NULL DEFAULT 0,
			box INTEGER NOT NULL DEFAULT 0,
			next_due_at INTEGER NOT NULL DEFAULT 0,
			card_stability REAL NOT NULL DEFAULT 0,
			card_difficulty REAL NOT NULL DEFAULT 0,
			card_due_at INTEGER NOT NULL DEFAULT 0,
			card_last_reviewed_at INTEGER NOT NULL DEFAULT 0,
			card_state TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_memory_knowledge ON memory_states(knowledge_state)`,
		`CREATE INDEX IF NOT EXISTS idx_memory_next_due ON memory_states(next_due_at)`,
		`CREATE INDEX IF NOT EXISTS idx_memory_card_due ON memory_states(card_due_at)`,

		`CREATE TABLE IF NOT EXISTS sentences (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			arabic TEXT NOT NULL,
			translation TEXT NOT NULL,
			transliteration TEXT NOT NULL DEFAULT '',
			target_lemma_id INTEGER NOT NULL DEFAULT 0,
			times_shown INTEGER NOT NULL DEFAULT 0,
			is_active INTEGER NOT NULL DEFAULT 1,
			max_word_count INTEGER NOT NULL DEFAULT 0,
			audio_url TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS sentence_tokens (
			sentence_id INTEGER NOT NULL REFERENCES sentences(id),
			position INTEGER NOT NULL,
			surface TEXT NOT NULL,
			lemma_id INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (sentence_id, position)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tokens_lemma ON sentence_tokens(lemma_id)`,
		`CREATE TABLE IF NOT EXISTS sentence_grammar (
			sentence_id INTEGER NOT NULL REFERENCES sentences(id),
			feature_id INTEGER NOT NULL REFERENCES grammar_features(id),
			PRIMARY KEY (sentence_id, feature_id)
		)`,
		`CREATE TABLE IF NOT EXISTS sentence_mode_state (
			sentence_id INTEGER NOT NULL REFERENCES sentences(id),
			mode TEXT NOT NULL,
			last_shown_at INTEGER NOT NULL DEFAULT 0,
			last_comprehension TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (sentence_id, mode)
		)`,

		`CREATE TABLE IF NOT EXISTS submissions (
			client_review_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			sentence_id INTEGER NOT NULL,
			mode TEXT NOT NULL,
			signal TEXT NOT NULL,
			response_ms INTEGER NOT NULL DEFAULT 0,
			submitted_at INTEGER NOT NULL,
			result TEXT NOT NULL,
			sentence_snapshot TEXT NOT NULL DEFAULT '',
			undone INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS review_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			client_review_id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			sentence_id INTEGER NOT NULL,
			lemma_id INTEGER NOT NULL,
			rating INTEGER NOT NULL,
			credit TEXT NOT NULL DEFAULT 'primary',
			response_ms INTEGER NOT NULL DEFAULT 0,
			reviewed_at INTEGER NOT NULL,
			snapshot BLOB,
			UNIQUE (client_review_id, lemma_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_review_logs_lemma ON review_logs(lemma_id)`,
		`CREATE INDEX IF NOT EXISTS idx_review_logs_time ON review_logs(reviewed_at)`,
		`CREATE TABLE IF NOT EXISTS sentence_review_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			client_review_id TEXT NOT NULL,
			sentence_id INTEGER NOT NULL,
			session_id TEXT NOT NULL,
			mode TEXT NOT NULL,
			comprehension TEXT NOT NULL,
			response_ms INTEGER NOT NULL DEFAULT 0,
			reviewed_at INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS grammar_exposure (
			feature_id INTEGER PRIMARY KEY REFERENCES grammar_features(id),
			times_seen INTEGER NOT NULL DEFAULT 0,
			times_correct INTEGER NOT NULL DEFAULT 0,
			comfort REAL NOT NULL DEFAULT 0,
			last_seen_at INTEGER NOT NULL DEFAULT 0
		)`,

		`CREATE TABLE IF NOT EXISTS activity_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			kind TEXT NOT NULL,
			detail TEXT NOT NULL DEFAULT '',
			at INTEGER NOT NULL
		)`,
	}

	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}
	return nil
}
