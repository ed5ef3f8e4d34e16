// Package review implements the review submission engine: canonical
// routing, per-word memory updates through the two schedulers, variant
// credit, grammar exposure accounting, leech detection, idempotency and
// undo. Every submission applies atomically under its client_review_id.
package review

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"alif/internal/config"
	"alif/internal/lexicon"
	"alif/internal/logging"
	"alif/internal/srs"
	"alif/internal/store"
	"alif/internal/types"
)

var (
	// ErrInvalidSubmission marks malformed input: unknown sentence, bad
	// signal, lemma ids not in the sentence. Nothing is written.
	ErrInvalidSubmission = errors.New("invalid review submission")
	// ErrUnknownSubmission marks an undo for a client review id never seen.
	ErrUnknownSubmission = errors.New("unknown client review id")
	// ErrAlreadyUndone marks a second undo of the same submission.
	ErrAlreadyUndone = errors.New("submission already undone")
)

// Engine routes review submissions through the memory schedulers.
type Engine struct {
	store *store.Store
	graph *lexicon.Graph
	acq   *srs.Acquisition
	lt    *srs.LongTerm
	cfg   config.SchedulerConfig

	batchMu sync.Mutex
}

// NewEngine wires the submission engine.
func NewEngine(st *store.Store, graph *lexicon.Graph, acq *srs.Acquisition, lt *srs.LongTerm, cfg config.SchedulerConfig) *Engine {
	return &Engine{store: st, graph: graph, acq: acq, lt: lt, cfg: cfg}
}

// Submit applies one sentence review. A duplicate client_review_id returns
// the original result without touching state.
func (e *Engine) Submit(ctx context.Context, sub types.ReviewSubmission, now time.Time) (*types.SubmissionResult, error) {
	if err := validateSubmission(sub); err != nil {
		return nil, err
	}

	// Fast idempotency path.
	if prior, err := e.store.GetSubmission(ctx, sub.ClientReviewID); err != nil {
		return nil, err
	} else if prior != nil {
		logging.Review("duplicate submission %s, returning stored result", sub.ClientReviewID)
		return &prior.Result, nil
	}

	sent, err := e.store.GetSentence(ctx, sub.SentenceID, sub.Mode)
	if err != nil {
		if errors.Is(err, store.ErrUnknownSentence) {
			return nil, fmt.Errorf("%w: sentence %d", ErrInvalidSubmission, sub.SentenceID)
		}
		return nil, err
	}

	canonOrder, variantsByCanon := e.resolveTokens(sent)
	missed, err := e.resolveMarks(sub.MissedLemmaIDs, canonOrder)
	if err != nil {
		return nil, err
	}
	confused, err := e.resolveMarks(sub.ConfusedLemmaIDs, canonOrder)
	if err != nil {
		return nil, err
	}

	unlock := e.store.LockLemmas(canonOrder)
	defer unlock()

	result := &types.SubmissionResult{
		ClientReviewID: sub.ClientReviewID,
		Words:          make(map[int64]types.WordResult),
	}
	var leeched []int64

	err = e.store.InTx(ctx, func(tx *store.Tx) error {
		// The lock window leaves a race between the fast path and here.
		if prior, err := tx.GetSubmission(sub.ClientReviewID); err != nil {
			return err
		} else if prior != nil {
			*result = prior.Result
			return nil
		}

		snap, err := tx.SnapshotSentenceMode(sub.SentenceID, sub.Mode)
		if err != nil {
			return err
		}
		undo := store.UndoSnapshot{Sentence: snap}

		for _, canon := range canonOrder {
			wr, logID, skipped, err := e.applyWord(tx, sub, sent, canon, variantsByCanon[canon], missed, confused, now)
			if err != nil {
				return err
			}
			if skipped {
				continue
			}
			result.Words[canon] = wr
			result.ReviewLogIDs = append(result.ReviewLogIDs, logID)
			if wr.Leech {
				leeched = append(leeched, canon)
			}
		}

		if err := e.applyGrammar(tx, sent, sub.Signal, now, &undo); err != nil {
			return err
		}
		if err := tx.RecordShown(sub.SentenceID, sub.Mode, sub.Signal, sub.ClientReviewID, sub.SessionID, sub.ResponseMs, now); err != nil {
			return err
		}

		return tx.SaveSubmission(&store.StoredSubmission{
			ClientReviewID: sub.ClientReviewID,
			SessionID:      sub.SessionID,
			SentenceID:     sub.SentenceID,
			Mode:           sub.Mode,
			Signal:         sub.Signal,
			ResponseMs:     sub.ResponseMs,
			SubmittedAt:    now,
			Result:         *result,
			Undo:           undo,
		})
	})
	if errors.Is(err, store.ErrDuplicateReview) {
		prior, gerr := e.store.GetSubmission(ctx, sub.ClientReviewID)
		if gerr != nil || prior == nil {
			return nil, err
		}
		return &prior.Result, nil
	}
	if err != nil {
		return nil, err
	}

	for _, id := range leeched {
		logging.Leech("lemma %d suspended as leech", id)
		e.store.LogActivity(ctx, "leech_suspend", fmt.Sprintf("lemma=%d", id), now)
	}
	logging.Review("submission %s applied: %d words, signal=%s", sub.ClientReviewID, len(result.Words), sub.Signal)
	return result, nil
}

// applyWord updates one canonical lemma's memory state. Function words,
// suspended lemmas, encountered lemmas and lemmas without a state are
// skipped silently.
func (e *Engine) applyWord(tx *store.Tx, sub types.ReviewSubmission, sent *types.Sentence, canon int64, variants []int64, missed, confused map[int64]struct{}, now time.Time) (types.WordResult, int64, bool, error) {
	var zero types.WordResult
	if e.graph.IsFunctionWord(canon) {
		return zero, 0, true, nil
	}
	st, err := tx.GetMemoryState(canon)
	if err != nil {
		return zero, 0, false, err
	}
	if st == nil || st.KnowledgeState == types.StateSuspended || st.KnowledgeState == types.StateEncountered {
		return zero, 0, true, nil
	}

	rating := ratingFor(sub.Signal, canon, missed, confused)

	blob, err := st.Snapshot()
	if err != nil {
		return zero, 0, false, fmt.Errorf("snapshot lemma %d: %w", canon, err)
	}

	st.TimesSeen++
	if rating.Correct() {
		st.TimesCorrect++
	}
	graduated := false

	switch {
	case st.KnowledgeState == types.StateAcquiring:
		// Graduation is judged before the box transition so the criteria
		// hold independent of the current rating.
		if e.acq.ShouldGraduate(st, now) {
			e.acq.Graduate(st, now)
			card := e.lt.Graduate(rating, now)
			st.Card = &card
			if rating != types.RatingGood {
				st.KnowledgeState = e.lt.MapState(card)
			}
			graduated = true
			logging.SRS("lemma %d graduated to %s (rating %d)", canon, st.KnowledgeState, rating)
		} else {
			next := e.acq.Apply(*st, rating, now)
			*st = next
		}
	case st.KnowledgeState.IsLongTerm():
		card := e.lt.Update(st.Card, rating, now)
		st.Card = &card
		st.KnowledgeState = e.lt.MapState(card)
	default:
		return zero, 0, true, nil
	}

	// Variant redirect credit: the canonical carries per-surface counters.
	for _, v := range variants {
		if st.VariantStats == nil {
			st.VariantStats = make(map[int64]*types.VariantStat)
		}
		vs := st.VariantStats[v]
		if vs == nil {
			vs = &types.VariantStat{}
			st.VariantStats[v] = vs
		}
		vs.Seen++
		if _, ok := missed[canon]; ok {
			vs.Missed++
		}
		if _, ok := confused[canon]; ok {
			vs.Confused++
		}
	}

	leech := false
	if rating <= types.RatingHard {
		leech = e.checkLeech(st, now)
	}

	if err := tx.PutMemoryState(st); err != nil {
		return zero, 0, false, err
	}

	credit := types.CreditCollateral
	if sent.TargetLemmaID != 0 && e.graph.Resolve(sent.TargetLemmaID) == canon {
		credit = types.CreditPrimary
	}
	logID, err := tx.InsertReviewLog(&types.ReviewLog{
		ClientReviewID: sub.ClientReviewID,
		SessionID:      sub.SessionID,
		SentenceID:     sub.SentenceID,
		LemmaID:        canon,
		Rating:         rating,
		Credit:         credit,
		ResponseMs:     sub.ResponseMs,
		ReviewedAt:     now,
		SnapshotBlob:   blob,
	})
	if err != nil {
		return zero, 0, false, err
	}

	return types.WordResult{
		LemmaID:   canon,
		Rating:    rating,
		State:     st.KnowledgeState,
		Stability: st.Stability(),
		DueAt:     dueOf(st),
		Graduated: graduated,
		Leech:     leech,
	}, logID, false, nil
}

// checkLeech suspends a chronically failing lemma. Counters survive
// suspension so accuracy must genuinely improve after reintroduction.
func (e *Engine) checkLeech(st *types.MemoryState, now time.Time) bool {
	if st.TimesSeen < e.cfg.LeechMinReviews || st.Accuracy() >= e.cfg.LeechAccuracy {
		return false
	}
	st.KnowledgeState = types.StateSuspended
	st.LeechSuspendedAt = now
	st.LeechCount++
	st.Box = 0
	st.NextDueAt = time.Time{}
	st.Card = nil
	return true
}

// applyGrammar bumps the sentence's grammar feature exposure counters and
// records pre-state for undo.
func (e *Engine) applyGrammar(tx *store.Tx, sent *types.Sentence, signal types.Comprehension, now time.Time, undo *store.UndoSnapshot) error {
	if len(sent.GrammarFeatures) == 0 {
		return nil
	}
	existing, err := tx.GetExposures(sent.GrammarFeatures)
	if err != nil {
		return err
	}
	correct := signal == types.ComprehensionUnderstood || signal == types.ComprehensionGrammarConfused

	for _, fid := range sent.GrammarFeatures {
		exp := existing[fid]
		if exp == nil {
			exp = &types.GrammarExposure{FeatureID: fid}
			undo.NewExposures = append(undo.NewExposures, fid)
		} else {
			undo.Exposures = append(undo.Exposures, *exp)
		}

		sinceDays := 0.0
		if !exp.LastSeenAt.IsZero() {
			sinceDays = now.Sub(exp.LastSeenAt).Hours() / 24
		}
		exp.TimesSeen++
		if correct {
			exp.TimesCorrect++
		}
		exp.Comfort = comfortScore(exp.TimesSeen, exp.TimesCorrect, sinceDays)
		exp.LastSeenAt = now

		if err := tx.PutExposure(exp); err != nil {
			return err
		}
	}
	return nil
}

// comfortScore combines a saturating exposure term with an accuracy term,
// decayed by absence.
func comfortScore(seen, correct int, sinceDays float64) float64 {
	base := math.Min(0.6, math.Log2(float64(seen)+1)/math.Log2(31)) +
		math.Min(0.4, float64(correct)/float64(seen)*0.4)
	return base * math.Pow(0.5, sinceDays/30)
}

// resolveTokens returns the sentence's canonical lemmas in token order plus
// the variant surfaces that redirected to each canonical.
func (e *Engine) resolveTokens(sent *types.Sentence) ([]int64, map[int64][]int64) {
	var order []int64
	seen := make(map[int64]struct{})
	variants := make(map[int64][]int64)
	for _, tok := range sent.Tokens {
		if tok.LemmaID == 0 {
			continue
		}
		canon := e.graph.Resolve(tok.LemmaID)
		if _, ok := seen[canon]; !ok {
			seen[canon] = struct{}{}
			order = append(order, canon)
		}
		if tok.LemmaID != canon && !containsID(variants[canon], tok.LemmaID) {
			variants[canon] = append(variants[canon], tok.LemmaID)
		}
	}
	return order, variants
}

// resolveMarks canonicalizes client-marked lemma ids and rejects ids that
// are not part of the sentence.
func (e *Engine) resolveMarks(ids []int64, canonOrder []int64) (map[int64]struct{}, error) {
	inSentence := make(map[int64]struct{}, len(canonOrder))
	for _, id := range canonOrder {
		inSentence[id] = struct{}{}
	}
	out := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		canon := e.graph.Resolve(id)
		if _, ok := inSentence[canon]; !ok {
			return nil, fmt.Errorf("%w: marked lemma %d not in sentence", ErrInvalidSubmission, id)
		}
		out[canon] = struct{}{}
	}
	return out, nil
}

// ratingFor maps the sentence-level signal and per-word marks to a rating.
func ratingFor(signal types.Comprehension, canon int64, missed, confused map[int64]struct{}) types.Rating {
	switch signal {
	case types.ComprehensionNoIdea:
		return types.RatingAgain
	case types.ComprehensionPartial:
		if _, ok := missed[canon]; ok {
			return types.RatingAgain
		}
		if _, ok := confused[canon]; ok {
			return types.RatingHard
		}
		return types.RatingGood
	default: // understood, grammar_confused: vocabulary counts as correct
		return types.RatingGood
	}
}

func validateSubmission(sub types.ReviewSubmission) error {
	if sub.ClientReviewID == "" {
		return fmt.Errorf("%w: missing client_review_id", ErrInvalidSubmission)
	}
	if !types.ValidComprehension(sub.Signal) {
		return fmt.Errorf("%w: signal %q", ErrInvalidSubmission, sub.Signal)
	}
	if sub.Mode != types.ModeReading && sub.Mode != types.ModeListening {
		return fmt.Errorf("%w: mode %q", ErrInvalidSubmission, sub.Mode)
	}
	if sub.SentenceID <= 0 {
		return fmt.Errorf("%w: missing sentence id", ErrInvalidSubmission)
	}
	return nil
}

func dueOf(st *types.MemoryState) time.Time {
	if st.Card != nil {
		return st.Card.DueAt
	}
	return st.NextDueAt
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// BatchOutcome is one submission's result within a bulk sync.
type BatchOutcome struct {
	ClientReviewID string
	Result         *types.SubmissionResult
	Err            error
}

// SubmitBatch applies a bulk sync serialized by client_review_id. Each
// submission commits independently; one failure never blocks the rest.
func (e *Engine) SubmitBatch(ctx context.Context, subs []types.ReviewSubmission, now time.Time) []BatchOutcome {
	e.batchMu.Lock()
	defer e.batchMu.Unlock()

	ordered := make([]types.ReviewSubmission, len(subs))
	copy(ordered, subs)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].ClientReviewID < ordered[j].ClientReviewID
	})

	out := make([]BatchOutcome, 0, len(ordered))
	for _, sub := range ordered {
		res, err := e.Submit(ctx, sub, now)
		out = append(out, BatchOutcome{ClientReviewID: sub.ClientReviewID, Result: res, Err: err})
	}
	return out
}
