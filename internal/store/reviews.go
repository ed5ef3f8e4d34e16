package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"alif/internal/types"
)

// ErrDuplicateReview marks a client_review_id that was already applied.
var ErrDuplicateReview = fmt.Errorf("duplicate client review id")

// UndoSnapshot captures the non-word side effects of a submission: the
// sentence counters and the grammar exposure rows as they were before.
type UndoSnapshot struct {
	Sentence     SentenceModeSnapshot    `json:"sentence"`
	Exposures    []types.GrammarExposure `json:"exposures,omitempty"`     // rows that existed pre-review
	NewExposures []int64                 `json:"new_exposures,omitempty"` // feature rows this submission created
}

// StoredSubmission is the persisted record of one idempotent submission.
type StoredSubmission struct {
	ClientReviewID string
	SessionID      string
	SentenceID     int64
	Mode           types.Mode
	Signal         types.Comprehension
	ResponseMs     int
	SubmittedAt    time.Time
	Result         types.SubmissionResult
	Undo           UndoSnapshot
	Undone         bool
}

// GetSubmission returns the stored submission for a client review id, or nil.
func (s *Store) GetSubmission(ctx context.Context, clientReviewID string) (*StoredSubmission, error) {
	return getSubmission(ctx, s.db, clientReviewID)
}

// GetSubmission is the transactional variant.
func (t *Tx) GetSubmission(clientReviewID string) (*StoredSubmission, error) {
	return getSubmission(t.ctx, t.tx, clientReviewID)
}

func getSubmission(ctx context.Context, q dbtx, clientReviewID string) (*StoredSubmission, error) {
	row := q.QueryRowContext(ctx, `
		SELECT client_review_id, session_id, sentence_id, mode, signal, response_ms, submitted_at, result, sentence_snapshot, undone
		FROM submissions WHERE client_review_id = ?`, clientReviewID)

	var sub StoredSubmission
	var mode, signal, resultJSON, snapJSON string
	var submittedAt int64
	var undone int
	err := row.Scan(&sub.ClientReviewID, &sub.SessionID, &sub.SentenceID, &mode, &signal,
		&sub.ResponseMs, &submittedAt, &resultJSON, &snapJSON, &undone)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load submission %s: %w", clientReviewID, err)
	}

	sub.Mode = types.Mode(mode)
	sub.Signal = types.Comprehension(signal)
	sub.SubmittedAt = timeFromDB(submittedAt)
	sub.Undone = undone != 0
	if err := json.Unmarshal([]byte(resultJSON), &sub.Result); err != nil {
		return nil, fmt.Errorf("decode submission result: %w", err)
	}
	if snapJSON != "" {
		if err := json.Unmarshal([]byte(snapJSON), &sub.Undo); err != nil {
			return nil, fmt.Errorf("decode undo snapshot: %w", err)
		}
	}
	return &sub, nil
}

// SaveSubmission inserts the idempotency record. A duplicate id returns
// ErrDuplicateReview.
func (t *Tx) SaveSubmission(sub *StoredSubmission) error {
	resultJSON, err := json.Marshal(sub.Result)
	if err != nil {
		return fmt.Errorf("marshal submission result: %w", err)
	}
	snapJSON, err := json.Marshal(sub.Undo)
	if err != nil {
		return fmt.Errorf("marshal undo snapshot: %w", err)
	}
	_, err = t.tx.ExecContext(t.ctx, `
		INSERT INTO submissions (client_review_id, session_id, sentence_id, mode, signal, response_ms, submitted_at, result, sentence_snapshot, undone)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`,
		sub.ClientReviewID, sub.SessionID, sub.SentenceID, string(sub.Mode), string(sub.Signal),
		sub.ResponseMs, timeToDB(sub.SubmittedAt), string(resultJSON), string(snapJSON))
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateReview
		}
		return fmt.Errorf("save submission: %w", err)
	}
	return nil
}

// MarkSubmissionUndone flags the record after a successful undo.
func (t *Tx) MarkSubmissionUndone(clientReviewID string) error {
	if _, err := t.tx.ExecContext(t.ctx,
		"UPDATE submissions SET undone = 1 WHERE client_review_id = ?", clientReviewID); err != nil {
		return fmt.Errorf("mark submission undone: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// InsertReviewLog appends a per-word log row and returns its id. Review-log
// entries within a session are appended in submission order.
func (t *Tx) InsertReviewLog(log *types.ReviewLog) (int64, error) {
	res, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO review_logs (client_review_id, session_id, sentence_id, lemma_id, rating, credit, response_ms, reviewed_at, snapshot)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		log.ClientReviewID, log.SessionID, log.SentenceID, log.LemmaID, int(log.Rating),
		string(log.Credit), log.ResponseMs, timeToDB(log.ReviewedAt), log.SnapshotBlob)
	if err != nil {
		return 0, fmt.Errorf("insert review log: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("review log id: %w", err)
	}
	return id, nil
}

// ReviewLogsForSubmission loads the per-word logs of one submission in
// insertion order.
func (t *Tx) ReviewLogsForSubmission(clientReviewID string) ([]*types.ReviewLog, error) {
	rows, err := t.tx.QueryContext(t.ctx, `
		SELECT id, client_review_id, session_id, sentence_id, lemma_id, rating, credit, response_ms, reviewed_at, snapshot
		FROM review_logs WHERE client_review_id = ? ORDER BY id`, clientReviewID)
	if err != nil {
		return nil, fmt.Errorf("query review logs: %w", err)
	}
	defer rows.Close()

	var out []*types.ReviewLog
	for rows.Next() {
		var log types.ReviewLog
		var rating int
		var credit string
		var reviewedAt int64
		if err := rows.Scan(&log.ID, &log.ClientReviewID, &log.SessionID, &log.SentenceID,
			&log.LemmaID, &rating, &credit, &log.ResponseMs, &reviewedAt, &log.SnapshotBlob); err != nil {
			return nil, fmt.Errorf("scan review log: %w", err)
		}
		log.Rating = types.Rating(rating)
		log.Credit = types.CreditType(credit)
		log.ReviewedAt = timeFromDB(reviewedAt)
		out = append(out, &log)
	}
	return out, rows.Err()
}

// DeleteReviewLogs removes a submission's per-word logs (undo).
func (t *Tx) DeleteReviewLogs(clientReviewID string) error {
	if _, err := t.tx.ExecContext(t.ctx,
		"DELETE FROM review_logs WHERE client_review_id = ?", clientReviewID); err != nil {
		return fmt.Errorf("delete review logs: %w", err)
	}
	return nil
}

// CountReviewLogs returns the number of log rows for a submission.
func (s *Store) CountReviewLogs(ctx context.Context, clientReviewID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM review_logs WHERE client_review_id = ?", clientReviewID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count review logs: %w", err)
	}
	return n, nil
}

// RecentRatings returns the learner's last n word ratings, newest first.
func (s *Store) RecentRatings(ctx context.Context, n int) ([]types.Rating, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT rating FROM review_logs ORDER BY id DESC LIMIT ?", n)
	if err != nil {
		return nil, fmt.Errorf("query recent ratings: %w", err)
	}
	defer rows.Close()

	var out []types.Rating
	for rows.Next() {
		var r int
		if err := rows.Scan(&r); err != nil {
			return nil, fmt.Errorf("scan rating: %w", err)
		}
		out = append(out, types.Rating(r))
	}
	return out, rows.Err()
}

// LemmasRatedAgainSince returns the set of lemma ids that received rating 1
// after the cutoff. The root interference guard consumes it.
func (s *Store) LemmasRatedAgainSince(ctx context.Context, cutoff time.Time) (map[int64]bool, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT DISTINCT lemma_id FROM review_logs WHERE rating = 1 AND reviewed_at >= ?", timeToDB(cutoff))
	if err != nil {
		return nil, fmt.Errorf("query failed lemmas: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan lemma id: %w", err)
		}
		out[id] = true
	}
	return out, rows.Err()
}

// LogActivity appends an operational event to the activity log.
func (s *Store) LogActivity(ctx context.Context, kind, detail string, now time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO activity_log (kind, detail, at) VALUES (?, ?, ?)", kind, detail, timeToDB(now))
	if err != nil {
		return fmt.Errorf("log activity: %w", err)
	}
	return nil
}
