package srs

import (
	"time"

	fsrs "github.com/open-spaced-repetition/go-fsrs/v3"

	"alif/internal/config"
	"alif/internal/types"
)

// Initial stabilities (days) keyed by first rating. These override the first
// four entries of the library's weight vector unless the config supplies a
// full custom vector.
var initialStabilities = [4]float64{0.212, 1.2931, 2.3065, 8.2956}

// LongTerm wraps the FSRS scheduler. It keeps a per-card (stability,
// difficulty, state) triple and computes the next review time under the
// configured target retention. The numeric parameter vector is opaque
// configuration; only the behavioral contract is alif's.
type LongTerm struct {
	params fsrs.Parameters
	floor  float64 // days; Review below this maps to lapsed, not known
}

// NewLongTerm builds the long-term scheduler from config.
func NewLongTerm(cfg config.SchedulerConfig) *LongTerm {
	params := fsrs.DefaultParam()
	params.RequestRetention = cfg.TargetRetention

	if len(cfg.FSRSWeights) == len(params.W) {
		for i, w := range cfg.FSRSWeights {
			params.W[i] = w
		}
	} else {
		for i, s := range initialStabilities {
			params.W[i] = s
		}
	}

	floor := cfg.StabilityFloor
	if floor <= 0 {
		floor = 1.0
	}
	return &LongTerm{params: params, floor: floor}
}

// Update applies one review. A nil card means the first long-term review;
// the initial stability then comes from the parameter vector keyed by
// rating. Pure: returns the new card without touching counters, which the
// review engine maintains.
func (lt *LongTerm) Update(card *types.Card, rating types.Rating, now time.Time) types.Card {
	libCard := lt.toLib(card, now)
	record := fsrs.NewFSRS(lt.params).Repeat(libCard, now)
	next := record[libRating(rating)].Card
	return lt.fromLib(next, now)
}

// Graduate seeds the card a lemma receives on leaving acquisition: an
// immediate Good update on a fresh card, promoted straight into the review
// schedule. A non-Good graduation rating is then applied on top, so a word
// that graduates on a failing review lands in relearning.
func (lt *LongTerm) Graduate(rating types.Rating, now time.Time) types.Card {
	seed := fsrs.NewFSRS(lt.params).Repeat(fsrs.NewCard(), now)[fsrs.Good].Card
	seed.State = fsrs.Review
	card := lt.fromLib(seed, now)
	if rating == types.RatingGood {
		return card
	}
	return lt.Update(&card, rating, now)
}

// MapState maps a card to a knowledge state: Learning → learning, Review →
// known, Relearning → lapsed, with the stability floor demoting weak Review
// cards to lapsed.
func (lt *LongTerm) MapState(card types.Card) types.KnowledgeState {
	switch card.State {
	case types.CardReview:
		if card.Stability < lt.floor {
			return types.StateLapsed
		}
		return types.StateKnown
	case types.CardRelearning:
		return types.StateLapsed
	default:
		return types.StateLearning
	}
}

func (lt *LongTerm) toLib(card *types.Card, now time.Time) fsrs.Card {
	if card == nil {
		c := fsrs.NewCard()
		c.Due = now
		return c
	}
	c := fsrs.NewCard()
	c.Stability = card.Stability
	c.Difficulty = card.Difficulty
	c.Due = card.DueAt
	c.LastReview = card.LastReviewedAt
	c.Reps = 1 // bookkeeping only; the formulas read state and stability
	switch card.State {
	case types.CardReview:
		c.State = fsrs.Review
	case types.CardRelearning:
		c.State = fsrs.Relearning
	default:
		c.State = fsrs.Learning
	}
	return c
}

func (lt *LongTerm) fromLib(c fsrs.Card, now time.Time) types.Card {
	out := types.Card{
		Stability:      c.Stability,
		Difficulty:     c.Difficulty,
		DueAt:          c.Due,
		LastReviewedAt: now,
	}
	switch c.State {
	case fsrs.Review:
		out.State = types.CardReview
	case fsrs.Relearning:
		out.State = types.CardRelearning
	default:
		out.State = types.CardLearning
	}
	return out
}

func libRating(r types.Rating) fsrs.Rating {
	switch r {
	case types.RatingAgain:
		return fsrs.Again
	case types.RatingHard:
		return fsrs.Hard
	case types.RatingEasy:
		return fsrs.Easy
	default:
		return fsrs.Good
	}
}
