package generation

import (
	"fmt"

	"alif/internal/lexicon"
	"alif/internal/types"
)

// Vocabulary is the closed word set a generated sentence may draw from:
// everything the learner can at least recognize (known vocab, the targets,
// and encountered words). Keyed by canonical lemma id.
type Vocabulary map[int64]struct{}

// ValidationError explains why a candidate failed the gate. The offending
// surfaces feed the next attempt's rejected-word list.
type ValidationError struct {
	Reason        string
	RejectedWords []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("sentence rejected: %s", e.Reason)
}

// Validate applies the pure part of the acceptance gate to a candidate:
// every content word must map into the allowed vocabulary and at least one
// target lemma must be present. The cross-model quality review runs
// separately (and fails closed).
func Validate(c Candidate, req Request, vocab Vocabulary, graph *lexicon.Graph) error {
	if len(c.Tokens) == 0 {
		return &ValidationError{Reason: "no tokens"}
	}

	targets := make(map[int64]struct{}, len(req.Targets))
	for _, t := range req.Targets {
		targets[graph.Resolve(t.ID)] = struct{}{}
	}

	var unknown []string
	targetPresent := false
	for _, tok := range c.Tokens {
		if tok.LemmaID == 0 {
			// An unmapped content token is an out-of-vocabulary word.
			unknown = append(unknown, tok.Surface)
			continue
		}
		canon := graph.Resolve(tok.LemmaID)
		if graph.IsFunctionWord(canon) {
			continue
		}
		if _, ok := targets[canon]; ok {
			targetPresent = true
			continue
		}
		if _, ok := vocab[canon]; !ok {
			unknown = append(unknown, tok.Surface)
		}
	}

	if len(unknown) > 0 {
		return &ValidationError{
			Reason:        fmt.Sprintf("%d content words outside learner vocabulary", len(unknown)),
			RejectedWords: unknown,
		}
	}
	if !targetPresent {
		return &ValidationError{Reason: "no target lemma present"}
	}
	if req.MaxWords > 0 && len(c.Tokens) > req.MaxWords {
		return &ValidationError{Reason: fmt.Sprintf("%d tokens exceeds limit %d", len(c.Tokens), req.MaxWords)}
	}
	return nil
}

// BuildVocabulary assembles the allowed set from memory states: any lemma in
// a non-suspended state (including merely encountered ones) plus the
// targets.
func BuildVocabulary(states []*types.MemoryState, targets []types.Lemma, graph *lexicon.Graph) Vocabulary {
	vocab := make(Vocabulary, len(states)+len(targets))
	for _, st := range states {
		if st.KnowledgeState == types.StateSuspended {
			continue
		}
		vocab[st.LemmaID] = struct{}{}
	}
	for _, t := range targets {
		vocab[graph.Resolve(t.ID)] = struct{}{}
	}
	return vocab
}
