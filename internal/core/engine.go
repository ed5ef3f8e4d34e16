// Package core wires the scheduler together: store, canonical graph, the
// two memory schedulers, the session builder, the review engine, sentence
// generation and the background leech scan.
package core

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"alif/internal/config"
	"alif/internal/generation"
	"alif/internal/lexicon"
	"alif/internal/logging"
	"alif/internal/review"
	"alif/internal/session"
	"alif/internal/srs"
	"alif/internal/store"
	"alif/internal/types"
)

// Engine is the top-level facade the CLI and any server surface talk to.
type Engine struct {
	cfg     *config.Config
	store   *store.Store
	graph   *lexicon.Graph
	acq     *srs.Acquisition
	lt      *srs.LongTerm
	builder *session.Builder
	reviews *review.Engine
	warm    *generation.WarmCache
	cron    *cron.Cron
}

// NewEngine opens the store, loads the lemma graph and wires every
// subsystem. Generation is optional: without an API key the engine runs on
// the pool alone.
func NewEngine(cfg *config.Config) (*Engine, error) {
	if err := logging.Initialize(cfg.DataDir, logging.Config{
		DebugMode:  cfg.Logging.DebugMode,
		Level:      cfg.Logging.Level,
		Categories: cfg.Logging.Categories,
	}); err != nil {
		return nil, fmt.Errorf("initialize logging: %w", err)
	}

	st, err := store.Open(cfg.DatabasePath())
	if err != nil {
		return nil, err
	}
	return newEngineWithStore(cfg, st)
}

// NewEngineWithStore builds an engine on an already-open store. Tests use
// it with the in-memory store.
func NewEngineWithStore(cfg *config.Config, st *store.Store) (*Engine, error) {
	return newEngineWithStore(cfg, st)
}

func newEngineWithStore(cfg *config.Config, st *store.Store) (*Engine, error) {
	lemmas, err := st.AllLemmas(context.Background())
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("load lemmas: %w", err)
	}
	graph := lexicon.NewGraph(lemmas)

	acq := srs.NewAcquisition(cfg.Scheduler)
	lt := srs.NewLongTerm(cfg.Scheduler)

	var svc *generation.Service
	if cfg.Generation.APIKey != "" {
		gen, err := generation.NewGeminiGenerator(cfg.Generation)
		if err != nil {
			logging.Boot("generator unavailable: %v", err)
		} else {
			var reviewer generation.QualityReviewer
			if cfg.Generation.ReviewerAPIKey != "" {
				reviewer = generation.NewCrossModelReviewer(cfg.Generation)
			}
			svc = generation.NewService(gen, reviewer, graph, cfg.Generation)
		}
	}

	var warm *generation.WarmCache
	if svc.Available() {
		warm = generation.NewWarmCache(svc, func(ctx context.Context, c generation.Candidate) error {
			return st.InsertSentence(ctx, &types.Sentence{
				Arabic:          c.Arabic,
				Translation:     c.Translation,
				Transliteration: c.Transliteration,
				Tokens:          c.Tokens,
				TargetLemmaID:   c.TargetLemmaID,
				Active:          true,
				MaxWordCount:    len(c.Tokens),
			})
		})
	}

	e := &Engine{
		cfg:     cfg,
		store:   st,
		graph:   graph,
		acq:     acq,
		lt:      lt,
		reviews: review.NewEngine(st, graph, acq, lt, cfg.Scheduler),
		warm:    warm,
	}
	if warm != nil {
		e.builder = session.NewBuilder(st, graph, acq, svc, warm, cfg.Scheduler, cfg.Generation)
	} else if svc.Available() {
		e.builder = session.NewBuilder(st, graph, acq, svc, nil, cfg.Scheduler, cfg.Generation)
	} else {
		e.builder = session.NewBuilder(st, graph, acq, nil, nil, cfg.Scheduler, cfg.Generation)
	}

	logging.Boot("engine ready: %d lemmas, generation=%v", len(lemmas), svc.Available())
	return e, nil
}

// BuildSession assembles a review session.
func (e *Engine) BuildSession(ctx context.Context, mode types.Mode, limit int, now time.Time) (*types.Session, error) {
	sess, err := e.builder.Build(ctx, mode, limit, now)
	if err != nil {
		return nil, err
	}
	e.store.LogActivity(ctx, "session_build", fmt.Sprintf("id=%s cards=%d mode=%s", sess.ID, len(sess.Cards), mode), now)
	return sess, nil
}

// SubmitReview applies one sentence review.
func (e *Engine) SubmitReview(ctx context.Context, sub types.ReviewSubmission, now time.Time) (*types.SubmissionResult, error) {
	return e.reviews.Submit(ctx, sub, now)
}

// SubmitBatch applies a bulk sync.
func (e *Engine) SubmitBatch(ctx context.Context, subs []types.ReviewSubmission, now time.Time) []review.BatchOutcome {
	return e.reviews.SubmitBatch(ctx, subs, now)
}

// Undo reverts a submission by client review id.
func (e *Engine) Undo(ctx context.Context, clientReviewID string, now time.Time) error {
	return e.reviews.Undo(ctx, clientReviewID, now)
}

// IntroduceLemma is the Learn-mode promotion: an encountered lemma enters
// acquisition at box 1, due immediately.
func (e *Engine) IntroduceLemma(ctx context.Context, lemmaID int64, now time.Time) error {
	canon := e.graph.Resolve(lemmaID)
	if e.graph.Lemma(canon) == nil {
		return fmt.Errorf("unknown lemma %d", lemmaID)
	}
	if e.graph.IsFunctionWord(canon) {
		return fmt.Errorf("lemma %d is a function word and is never scheduled", canon)
	}

	return e.store.WithLemmaLock(canon, func() error {
		st, err := e.store.GetMemoryState(ctx, canon)
		if err != nil {
			return err
		}
		if st == nil {
			st = &types.MemoryState{LemmaID: canon, KnowledgeState: types.StateEncountered, Source: "learn"}
		}
		if st.KnowledgeState != types.StateEncountered {
			return fmt.Errorf("lemma %d is already %s", canon, st.KnowledgeState)
		}
		e.acq.Start(st, now, true)
		if err := e.store.PutMemoryState(ctx, st); err != nil {
			return err
		}
		e.store.LogActivity(ctx, "learn_intro", fmt.Sprintf("lemma=%d", canon), now)
		logging.SRS("lemma %d introduced via learn mode", canon)
		return nil
	})
}

// RunLeechScan reintroduces suspended lemmas past their cooldown.
func (e *Engine) RunLeechScan(ctx context.Context, now time.Time) ([]int64, error) {
	return e.reviews.ReintroduceDue(ctx, now)
}

// StartBackground launches the periodic leech scan. Stop with Close.
func (e *Engine) StartBackground() error {
	if e.cron != nil {
		return nil
	}
	e.cron = cron.New()
	_, err := e.cron.AddFunc("@hourly", func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if ids, err := e.RunLeechScan(ctx, time.Now()); err != nil {
			logging.Leech("background scan failed: %v", err)
		} else if len(ids) > 0 {
			logging.Leech("background scan reintroduced %d lemmas", len(ids))
		}
	})
	if err != nil {
		e.cron = nil
		return fmt.Errorf("schedule leech scan: %w", err)
	}
	e.cron.Start()
	logging.Boot("background leech scan scheduled")
	return nil
}

// Close stops background work and closes the store.
func (e *Engine) Close() error {
	if e.cron != nil {
		ctx := e.cron.Stop()
		<-ctx.Done()
		e.cron = nil
	}
	if e.warm != nil {
		e.warm.Stop()
	}
	err := e.store.Close()
	logging.CloseAll()
	return err
}
