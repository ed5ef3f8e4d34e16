package types

import "time"

// Rating is the per-word review grade.
type Rating int

const (
	RatingAgain Rating = 1
	RatingHard  Rating = 2
	RatingGood  Rating = 3
	RatingEasy  Rating = 4
)

// Correct reports whether the rating counts toward times_correct.
func (r Rating) Correct() bool { return r >= RatingGood }

// Valid reports whether the rating is in 1..4.
func (r Rating) Valid() bool { return r >= RatingAgain && r <= RatingEasy }

// CreditType tags how a word earned its review credit. Metadata only; it
// never alters the rating.
type CreditType string

const (
	CreditPrimary    CreditType = "primary"
	CreditCollateral CreditType = "collateral"
)

// ReviewSubmission is one sentence review posted by the client.
type ReviewSubmission struct {
	ClientReviewID   string        `json:"client_review_id"`
	SessionID        string        `json:"session_id"`
	SentenceID       int64         `json:"sentence_id"`
	Signal           Comprehension `json:"comprehension_signal"`
	MissedLemmaIDs   []int64       `json:"missed_lemma_ids"`
	ConfusedLemmaIDs []int64       `json:"confused_lemma_ids"`
	ResponseMs       int           `json:"response_ms"`
	Mode             Mode          `json:"mode"`
}

// WordResult is the per-word outcome of a submission, keyed by canonical
// lemma id in SubmissionResult.
type WordResult struct {
	LemmaID   int64          `json:"lemma_id"`
	Rating    Rating         `json:"rating"`
	State     KnowledgeState `json:"new_state"`
	Stability float64        `json:"new_stability"`
	DueAt     time.Time      `json:"new_due_at"`
	Graduated bool           `json:"graduated,omitempty"`
	Leech     bool           `json:"leech,omitempty"`
}

// SubmissionResult is the response of the review submission engine.
type SubmissionResult struct {
	ClientReviewID string               `json:"client_review_id"`
	Words          map[int64]WordResult `json:"words"`
	ReviewLogIDs   []int64              `json:"review_log_ids"` // ordered, for undo
}

// ReviewLog is the per-word log row. SnapshotBlob holds the pre-review
// memory state for undo.
type ReviewLog struct {
	ID             int64      `json:"id"`
	ClientReviewID string     `json:"client_review_id"`
	SessionID      string     `json:"session_id"`
	SentenceID     int64      `json:"sentence_id"`
	LemmaID        int64      `json:"lemma_id"`
	Rating         Rating     `json:"rating"`
	Credit         CreditType `json:"credit"`
	ResponseMs     int        `json:"response_ms"`
	ReviewedAt     time.Time  `json:"reviewed_at"`
	SnapshotBlob   []byte     `json:"-"`
}

// TokenInfo is the per-token descriptor on a session card.
type TokenInfo struct {
	Surface        string  `json:"surface"`
	LemmaID        int64   `json:"lemma_id,omitempty"` // canonical-resolved
	Gloss          string  `json:"gloss,omitempty"`
	Stability      float64 `json:"stability,omitempty"`
	Due            bool    `json:"due,omitempty"`
	IsFunctionWord bool    `json:"is_function_word,omitempty"`
}

// SessionCard is one reviewable item of a built session.
type SessionCard struct {
	SentenceID      int64       `json:"sentence_id,omitempty"`
	Arabic          string      `json:"arabic"`
	Translation     string      `json:"translation"`
	Transliteration string      `json:"transliteration,omitempty"`
	AudioURL        string      `json:"audio_url,omitempty"`
	PrimaryLemmaID  int64       `json:"primary_lemma_id"`
	PrimaryGloss    string      `json:"primary_gloss,omitempty"`
	Tokens          []TokenInfo `json:"tokens"`
	GrammarFeatures []string    `json:"grammar_features,omitempty"`
	OnDemand        bool        `json:"is_on_demand"`
}

// IntroCandidate is a suggested (not inserted) new word for the UI.
type IntroCandidate struct {
	LemmaID       int64  `json:"lemma_id"`
	Bare          string `json:"bare"`
	Gloss         string `json:"gloss"`
	FrequencyRank int    `json:"frequency_rank"`
}

// Session is the response of the session builder.
type Session struct {
	ID              string           `json:"id"`
	Mode            Mode             `json:"mode"`
	Cards           []SessionCard    `json:"cards"`
	IntroCandidates []IntroCandidate `json:"intro_candidates,omitempty"`
	BuiltAt         time.Time        `json:"built_at"`
}
