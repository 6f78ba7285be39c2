// Package jobs runs analysis pipelines on a worker pool. Each queued run is
// persisted so restarts and duplicate submissions are visible in the runs
// table.
package jobs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"sync"
	"time"

	"adsio/internal/config"
	"adsio/internal/events"
	"adsio/internal/metrics"
	"adsio/internal/pipeline"
	"adsio/internal/store"
)

// Runner executes pipeline runs using a worker pool.
type Runner struct {
	cfg    config.Config
	store  *store.Store
	orch   *pipeline.Orchestrator
	bus    *events.Bus
	queue  chan *store.Run
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewRunner constructs a runner. bus may be nil when nothing listens for
// run-completed events.
func NewRunner(cfg config.Config, st *store.Store, orch *pipeline.Orchestrator, bus *events.Bus) *Runner {
	return &Runner{
		cfg:   cfg,
		store: st,
		orch:  orch,
		bus:   bus,
		queue: make(chan *store.Run, cfg.QueueSize),
	}
}

// Start spins up the worker pool.
func (r *Runner) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	for i := 0; i < r.cfg.WorkerCount; i++ {
		r.wg.Add(1)
		go r.worker(ctx)
	}
}

// Stop waits for in-flight runs to finish.
func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}

// QueueDepth reports how many runs are waiting.
func (r *Runner) QueueDepth() int { return len(r.queue) }

// Enqueue inserts a run respecting idempotency. Re-submitting the same drug
// and limit within one calendar week returns the existing run instead of
// queuing a duplicate.
func (r *Runner) Enqueue(ctx context.Context, drug string, limit int) (*store.Run, error) {
	run := &store.Run{
		Drug:           drug,
		FetchLimit:     limit,
		Status:         store.RunQueued,
		IdempotencyKey: idempotencyKey(drug, limit, config.Now()),
		CreatedAt:      config.Now(),
		UpdatedAt:      config.Now(),
	}
	persisted, err := r.store.InsertRunIdempotent(ctx, run)
	if err == store.ErrConflict {
		return persisted, nil
	}
	if err != nil {
		return nil, err
	}
	select {
	case r.queue <- persisted:
		return persisted, nil
	default:
		return nil, fmt.Errorf("queue full")
	}
}

func (r *Runner) worker(ctx context.Context) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case run := <-r.queue:
			r.execute(ctx, run)
		}
	}
}

func (r *Runner) execute(ctx context.Context, run *store.Run) {
	metrics.IncStarted()
	if err := r.store.MarkRunStarted(ctx, run.ID, config.Now()); err != nil {
		log.Printf("[jobs] mark run %d started: %v", run.ID, err)
	}

	trace, err := r.orch.Run(ctx, run.Drug, run.FetchLimit)
	finished := config.Now()
	if err != nil {
		metrics.IncFailed()
		msg := err.Error()
		if markErr := r.store.MarkRunFinished(ctx, run.ID, store.RunFailed, 0, "", &msg, finished); markErr != nil {
			log.Printf("[jobs] mark run %d failed: %v", run.ID, markErr)
		}
		log.Printf("[jobs] run %d (%s) failed: %v", run.ID, run.Drug, err)
		r.publish(run, store.RunFailed, 0, "", finished)
		return
	}

	metrics.IncSucceeded()
	if err := r.store.MarkRunFinished(ctx, run.ID, store.RunSucceeded, len(trace.Signals), trace.ReportPath, nil, finished); err != nil {
		log.Printf("[jobs] mark run %d finished: %v", run.ID, err)
	}
	log.Printf("[jobs] run %d (%s) done: %d signals, report=%s", run.ID, run.Drug, len(trace.Signals), trace.ReportPath)
	r.publish(run, store.RunSucceeded, len(trace.Signals), trace.ReportPath, finished)
}

func (r *Runner) publish(run *store.Run, status string, signals int, reportPath string, ts time.Time) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(events.RunCompleted{
		RunID:      run.ID,
		Drug:       run.Drug,
		Status:     status,
		Signals:    signals,
		ReportPath: reportPath,
		FinishedAt: ts,
	})
}

// idempotencyKey hashes drug, limit, and the Monday of the submission week.
// One run per drug per week is the intended cadence; explicit re-runs rotate
// naturally when the week turns over.
func idempotencyKey(drug string, limit int, now time.Time) string {
	offset := (int(now.Weekday()) + 6) % 7
	week := now.AddDate(0, 0, -offset).Format("2006-01-02")
	h := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%s", drug, limit, week)))
	return hex.EncodeToString(h[:])
}
