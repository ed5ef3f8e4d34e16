// Package types holds the shared data model of the alif core: lemmas, roots,
// sentences, memory states, ratings and the session/review boundary payloads.
package types

import "time"

// Mode is the review modality of a session.
type Mode string

const (
	ModeReading   Mode = "reading"
	ModeListening Mode = "listening"
)

// Comprehension is the sentence-level signal reported by the learner.
type Comprehension string

const (
	ComprehensionUnderstood      Comprehension = "understood"
	ComprehensionPartial         Comprehension = "partial"
	ComprehensionGrammarConfused Comprehension = "grammar_confused"
	ComprehensionNoIdea          Comprehension = "no_idea"
)

// ValidComprehension reports whether s is a recognized comprehension signal.
func ValidComprehension(s Comprehension) bool {
	switch s {
	case ComprehensionUnderstood, ComprehensionPartial, ComprehensionGrammarConfused, ComprehensionNoIdea:
		return true
	}
	return false
}

// Lemma is the stable identity of a dictionary word. Lemmas are immutable
// from the scheduler's perspective; only imports create them.
type Lemma struct {
	ID             int64  `json:"id"`
	Bare           string `json:"bare"` // bare surface form
	Gloss          string `json:"gloss"`
	PartOfSpeech   string `json:"part_of_speech"`
	FrequencyRank  int    `json:"frequency_rank"`         // lower = more common
	RootID         int64  `json:"root_id,omitempty"`      // 0 = no root
	CanonicalID    int64  `json:"canonical_id,omitempty"` // non-zero = this lemma is a variant
	Tag            string `json:"tag,omitempty"`          // optional thematic tag
	IsFunctionWord bool   `json:"is_function_word"`
}

// IsVariant reports whether the lemma redirects memory credit to a parent.
func (l *Lemma) IsVariant() bool { return l.CanonicalID != 0 }

// Root groups lemmas by shared consonantal skeleton. Roots are a ranking and
// interference-guard feature, never a scheduling unit.
type Root struct {
	ID       int64  `json:"id"`
	Skeleton string `json:"skeleton"`
}

// GrammarFeature is a named grammatical construction a sentence can exhibit.
type GrammarFeature struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// GrammarExposure tracks the learner's accumulated contact with one feature.
type GrammarExposure struct {
	FeatureID    int64     `json:"feature_id"`
	TimesSeen    int       `json:"times_seen"`
	TimesCorrect int       `json:"times_correct"`
	Comfort      float64   `json:"comfort"` // [0,1], decays with absence
	LastSeenAt   time.Time `json:"last_seen_at"`
}

// SentenceToken is one ordered token of a sentence with its lemma mapping.
// LemmaID is zero for unmatched tokens.
type SentenceToken struct {
	Position int    `json:"position"`
	Surface  string `json:"surface"`
	LemmaID  int64  `json:"lemma_id,omitempty"`
}

// Sentence is a reviewable sentence with its token→lemma mapping. Retired
// sentences keep their row with Active=false and stay referenceable.
type Sentence struct {
	ID              int64           `json:"id"`
	Arabic          string          `json:"arabic"`
	Translation     string          `json:"translation"`
	Transliteration string          `json:"transliteration,omitempty"`
	Tokens          []SentenceToken `json:"tokens"`
	TargetLemmaID   int64           `json:"target_lemma_id,omitempty"`
	TimesShown      int             `json:"times_shown"`
	Active          bool            `json:"active"`
	MaxWordCount    int             `json:"max_word_count"`
	AudioURL        string          `json:"audio_url,omitempty"`
	GrammarFeatures []int64         `json:"grammar_features,omitempty"`

	// Per-mode recency, loaded alongside the sentence for the requested mode.
	LastShownAt       time.Time     `json:"last_shown_at,omitempty"`
	LastComprehension Comprehension `json:"last_comprehension,omitempty"`
}

// LemmaIDs returns the distinct non-zero lemma ids mapped by the tokens.
func (s *Sentence) LemmaIDs() []int64 {
	seen := make(map[int64]struct{}, len(s.Tokens))
	var out []int64
	for _, t := range s.Tokens {
		if t.LemmaID == 0 {
			continue
		}
		if _, ok := seen[t.LemmaID]; ok {
			continue
		}
		seen[t.LemmaID] = struct{}{}
		out = append(out, t.LemmaID)
	}
	return out
}
