package httpapi

import (
	"context"
	"log"

	"adsio/internal/backfill"
	"adsio/internal/config"
	"adsio/internal/jobs"
	"adsio/internal/store"
)

// backfillRepo adapts the store and runner to the backfill repository.
type backfillRepo struct {
	store  *store.Store
	runner *jobs.Runner
	cfg    config.Config
}

func (r *backfillRepo) ListCandidates(ctx context.Context) ([]backfill.Candidate, error) {
	drugs, err := r.store.ListDrugs(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]backfill.Candidate, 0, len(drugs))
	for _, drug := range drugs {
		c := backfill.Candidate{Drug: drug}
		run, err := r.store.LatestRun(ctx, drug)
		if err != nil {
			log.Printf("backfill: latest run for %s: %v", drug, err)
		} else if run != nil {
			c.LastStatus = run.Status
			if run.FinishedAt != nil {
				c.LastRunAt = *run.FinishedAt
			} else {
				c.LastRunAt = run.CreatedAt
			}
		}
		out = append(out, c)
	}
	return out, nil
}

func (r *backfillRepo) QueueCandidate(ctx context.Context, c backfill.Candidate) backfill.EnqueueResult {
	if _, err := r.runner.Enqueue(ctx, c.Drug, r.cfg.DefaultLimit); err != nil {
		return backfill.EnqueueResult{Dropped: true}
	}
	return backfill.EnqueueResult{Enqueued: true}
}

func (r *backfillRepo) OnBackfillComplete(summary backfill.Summary) {
	log.Printf("backfill complete: selected=%d enqueued=%d dropped=%d",
		summary.Selected, summary.EnqueueSucceeded, summary.EnqueueDropped)
}
