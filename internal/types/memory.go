package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// KnowledgeState is the lifecycle tag of a memory state. The acquiring-only
// and long-term-only fields of MemoryState are mutually exclusive and always
// validated against this tag.
type KnowledgeState string

const (
	StateEncountered KnowledgeState = "encountered"
	StateAcquiring   KnowledgeState = "acquiring"
	StateLearning    KnowledgeState = "learning"
	StateKnown       KnowledgeState = "known"
	StateLapsed      KnowledgeState = "lapsed"
	StateSuspended   KnowledgeState = "suspended"
)

// IsLongTerm reports whether the state is governed by the long-term model.
func (k KnowledgeState) IsLongTerm() bool {
	return k == StateLearning || k == StateKnown || k == StateLapsed
}

// CardState is the long-term model's internal phase.
type CardState string

const (
	CardLearning   CardState = "Learning"
	CardReview     CardState = "Review"
	CardRelearning CardState = "Relearning"
)

// Card is the long-term memory card: an FSRS (stability, difficulty, state)
// triple plus scheduling timestamps.
type Card struct {
	Stability      float64   `json:"stability"`  // days
	Difficulty     float64   `json:"difficulty"` // [1,10]
	DueAt          time.Time `json:"due_at"`
	LastReviewedAt time.Time `json:"last_reviewed_at"`
	State          CardState `json:"state"`
}

// VariantStat counts how a single surface variant behaved for its canonical.
type VariantStat struct {
	Seen     int `json:"seen"`
	Missed   int `json:"missed"`
	Confused int `json:"confused"`
}

// MemoryState is the per-canonical-lemma learning state. It is a tagged
// record: box/next-due exist only while acquiring, the card only under the
// long-term model. Variants and function words never own one.
type MemoryState struct {
	LemmaID        int64          `json:"lemma_id"`
	KnowledgeState KnowledgeState `json:"knowledge_state"`

	TimesSeen    int    `json:"times_seen"`
	TimesCorrect int    `json:"times_correct"`
	Source       string `json:"source,omitempty"` // provenance, preserved across graduation

	VariantStats map[int64]*VariantStat `json:"variant_stats,omitempty"`

	EnteredAcquiringAt time.Time `json:"entered_acquiring_at,omitempty"`
	FirstReviewedAt    time.Time `json:"first_reviewed_at,omitempty"`
	GraduatedAt        time.Time `json:"graduated_at,omitempty"`
	LeechSuspendedAt   time.Time `json:"leech_suspended_at,omitempty"`
	LeechCount         int       `json:"leech_count,omitempty"`

	// Acquiring-only fields
	Box       int       `json:"box,omitempty"` // 1..3
	NextDueAt time.Time `json:"next_due_at,omitempty"`

	// Long-term-only field
	Card *Card `json:"card,omitempty"`
}

// Validate enforces the tag/field invariants of the tagged record.
func (m *MemoryState) Validate() error {
	switch m.KnowledgeState {
	case StateEncountered:
		if m.Box != 0 || m.Card != nil {
			return fmt.Errorf("lemma %d: encountered state must carry no box and no card", m.LemmaID)
		}
	case StateAcquiring:
		if m.Box < 1 || m.Box > 3 {
			return fmt.Errorf("lemma %d: acquiring state requires box in 1..3, got %d", m.LemmaID, m.Box)
		}
		if m.NextDueAt.IsZero() {
			return fmt.Errorf("lemma %d: acquiring state requires next_due_at", m.LemmaID)
		}
		if m.Card != nil {
			return fmt.Errorf("lemma %d: acquiring state must not carry a card", m.LemmaID)
		}
	case StateLearning, StateKnown, StateLapsed:
		if m.Card == nil {
			return fmt.Errorf("lemma %d: long-term state %s requires a card", m.LemmaID, m.KnowledgeState)
		}
		if m.Box != 0 {
			return fmt.Errorf("lemma %d: long-term state must not carry a box", m.LemmaID)
		}
	case StateSuspended:
		// Suspension freezes whatever fields were present.
	default:
		return fmt.Errorf("lemma %d: unknown knowledge state %q", m.LemmaID, m.KnowledgeState)
	}
	if m.KnowledgeState == StateKnown && m.Card != nil && m.Card.Stability < 1.0 {
		return fmt.Errorf("lemma %d: known state below the stability floor", m.LemmaID)
	}
	return nil
}

// Accuracy returns cumulative accuracy, or 0 with no reviews.
func (m *MemoryState) Accuracy() float64 {
	if m.TimesSeen == 0 {
		return 0
	}
	return float64(m.TimesCorrect) / float64(m.TimesSeen)
}

// Pseudo-stabilities attached to acquiring boxes so short-term words can be
// compared against long-term stabilities during scoring.
const (
	pseudoStabilityBox1 = 0.1
	pseudoStabilityBox2 = 0.5
	pseudoStabilityBox3 = 2.0
)

// Stability returns card stability for long-term states and the box
// pseudo-stability while acquiring. Zero for everything else.
func (m *MemoryState) Stability() float64 {
	if m.Card != nil {
		return m.Card.Stability
	}
	if m.KnowledgeState == StateAcquiring {
		switch m.Box {
		case 1:
			return pseudoStabilityBox1
		case 2:
			return pseudoStabilityBox2
		default:
			return pseudoStabilityBox3
		}
	}
	return 0
}

// Clone returns a deep copy of the state.
func (m *MemoryState) Clone() *MemoryState {
	cp := *m
	if m.Card != nil {
		card := *m.Card
		cp.Card = &card
	}
	if m.VariantStats != nil {
		cp.VariantStats = make(map[int64]*VariantStat, len(m.VariantStats))
		for id, vs := range m.VariantStats {
			v := *vs
			cp.VariantStats[id] = &v
		}
	}
	return &cp
}

// Snapshot serializes the state into the opaque pre-review blob attached to
// review logs for undo. Undo restores by decoding, never by inverting the
// scheduler.
func (m *MemoryState) Snapshot() ([]byte, error) {
	return json.Marshal(m)
}

// StateFromSnapshot decodes a snapshot produced by Snapshot.
func StateFromSnapshot(data []byte) (*MemoryState, error) {
	var m MemoryState
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode memory snapshot: %w", err)
	}
	return &m, nil
}
