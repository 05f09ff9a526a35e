package advisory

import (
	"context"
	"sync"
	"time"

	"github.com/pilltrack/pilltrack/internal/medication"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Checker is the remote advisory call
type Checker interface {
	Check(ctx context.Context, drugs []string) (*Result, error)
}

// Advisor keeps the latest advisory for the current medication collection.
// Refreshes run in the background so dose marking never waits on the
// network. Rapid successive edits coalesce: the pending slot always holds
// the newest collection and a single worker drains it at the limiter's
// pace, so the last edit in a burst is always the one checked. A failed
// refresh leaves "no data", never an error.
type Advisor struct {
	client  Checker
	logger  *zap.Logger
	limiter *rate.Limiter

	mu     sync.RWMutex
	latest *Result

	reqMu    sync.Mutex
	gen      uint64
	pending  []string
	inflight bool
}

// New creates an Advisor around a Checker
func New(client Checker, logger *zap.Logger) *Advisor {
	return &Advisor{
		client:  client,
		logger:  logger,
		limiter: rate.NewLimiter(rate.Every(10*time.Second), 1),
	}
}

// Latest returns the cached advisory, nil when none is available
func (a *Advisor) Latest() *Result {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.latest
}

// Refresh queues a recompute of the advisory for the given collection. With
// fewer than two medications there is nothing to check and any queued
// refresh for an older collection is abandoned.
func (a *Advisor) Refresh(ctx context.Context, meds []*medication.Medication) {
	a.reqMu.Lock()
	a.gen++

	if a.client == nil || len(meds) < 2 {
		a.pending = nil
		a.reqMu.Unlock()
		a.set(nil)
		return
	}

	drugs := make([]string, 0, len(meds))
	for _, med := range meds {
		drugs = append(drugs, med.Name+" "+med.Dosage)
	}
	a.pending = drugs

	start := !a.inflight
	a.inflight = true
	a.reqMu.Unlock()

	if start {
		go a.drain(ctx)
	}
}

// drain executes pending refreshes until the slot is empty, pacing remote
// calls through the limiter
func (a *Advisor) drain(ctx context.Context) {
	for {
		a.reqMu.Lock()
		drugs := a.pending
		gen := a.gen
		a.pending = nil
		if drugs == nil {
			a.inflight = false
			a.reqMu.Unlock()
			return
		}
		a.reqMu.Unlock()

		if err := a.limiter.Wait(ctx); err != nil {
			a.reqMu.Lock()
			a.inflight = false
			a.reqMu.Unlock()
			return
		}

		res, err := a.client.Check(ctx, drugs)
		if err != nil {
			a.logger.Warn("advisory refresh failed", zap.Error(err))
			res = nil
		}

		// Drop the result if a newer Refresh superseded this collection
		a.reqMu.Lock()
		current := gen == a.gen
		a.reqMu.Unlock()
		if current {
			a.set(res)
		}
	}
}

func (a *Advisor) set(res *Result) {
	a.mu.Lock()
	a.latest = res
	a.mu.Unlock()
}
