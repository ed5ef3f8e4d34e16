package generation

import (
	"context"
	"sync"
	"time"

	"alif/internal/logging"
	"alif/internal/types"
)

// PersistFunc stores one validated candidate into the sentence pool.
type PersistFunc func(ctx context.Context, c Candidate) error

// WarmCache generates sentences in the background for soon-due words so the
// next session build finds them already in the pool. Kicked from the near
// end of a session; at most one run is in flight.
type WarmCache struct {
	svc     *Service
	persist PersistFunc

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewWarmCache wires the generation service and the pool persist hook.
func NewWarmCache(svc *Service, persist PersistFunc) *WarmCache {
	return &WarmCache{svc: svc, persist: persist}
}

// Kick starts a background generation run for the given targets. A run
// already in flight makes this a no-op; warm generation is opportunistic.
func (w *WarmCache) Kick(targets []Target, vocab Vocabulary, knownSample []types.Lemma, now time.Time) {
	if w == nil || !w.svc.Available() || len(targets) == 0 {
		return
	}

	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		logging.GenerationDebug("warm cache run already in flight; skipping kick")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	w.running = true
	w.cancel = cancel
	w.wg.Add(1)
	w.mu.Unlock()

	go func() {
		defer func() {
			cancel()
			w.mu.Lock()
			w.running = false
			w.mu.Unlock()
			w.wg.Done()
		}()

		logging.Generation("warm cache run: %d targets", len(targets))
		accepted := w.svc.GenerateForTargets(ctx, targets, vocab, knownSample, now)
		stored := 0
		for _, c := range accepted {
			if err := w.persist(ctx, c); err != nil {
				logging.Get(logging.CategoryGeneration).Warn("warm cache persist failed: %v", err)
				continue
			}
			stored++
		}
		logging.Generation("warm cache run done: %d sentences stored", stored)
	}()
}

// Stop cancels any in-flight run and waits for it to finish.
func (w *WarmCache) Stop() {
	w.mu.Lock()
	if w.cancel != nil {
		w.cancel()
	}
	w.mu.Unlock()
	w.wg.Wait()
}
