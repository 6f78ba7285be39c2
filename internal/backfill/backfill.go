// Package backfill re-enqueues analysis for drugs whose data has gone stale.
// A drug is stale when its last run is old, failed, or missing entirely.
package backfill

import (
	"context"
	"log"
	"sort"
	"time"
)

// Candidate is one drug and its most recent run state. A zero LastRunAt
// means the drug has stored reports but was never analyzed.
type Candidate struct {
	Drug       string
	LastRunAt  time.Time
	LastStatus string
}

// Summary captures backfill execution metrics.
type Summary struct {
	TotalCandidates  int `json:"total"`
	Fresh            int `json:"fresh"`
	Stale            int `json:"stale"`
	Selected         int `json:"selected"`
	AttemptedEnqueue int `json:"attempted_enqueue"`
	EnqueueSucceeded int `json:"enqueued"`
	EnqueueDropped   int `json:"dropped"`
}

// EnqueueResult captures the queueing outcome for one candidate.
type EnqueueResult struct {
	Enqueued bool
	Dropped  bool
}

// Repository describes the data source the backfill walks.
type Repository interface {
	ListCandidates(ctx context.Context) ([]Candidate, error)
	QueueCandidate(ctx context.Context, c Candidate) EnqueueResult
	OnBackfillComplete(summary Summary)
}

// SelectStale returns up to limit candidates needing reanalysis, oldest run
// first so the most neglected drugs go to the front of the queue. now is
// injected for testability.
func SelectStale(candidates []Candidate, maxAge time.Duration, limit int, now time.Time) ([]Candidate, Summary) {
	summary := Summary{TotalCandidates: len(candidates)}
	cutoff := now.Add(-maxAge)

	stale := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		needsRun := c.LastRunAt.IsZero() ||
			c.LastStatus == "failed" ||
			c.LastRunAt.Before(cutoff)
		if !needsRun {
			summary.Fresh++
			continue
		}
		stale = append(stale, c)
	}
	sort.Slice(stale, func(i, j int) bool {
		return stale[i].LastRunAt.Before(stale[j].LastRunAt)
	})

	summary.Stale = len(stale)
	if limit < len(stale) {
		stale = stale[:limit]
	}
	summary.Selected = len(stale)
	return stale, summary
}

// Run executes the backfill asynchronously.
func Run(ctx context.Context, repo Repository, maxAge time.Duration, limit int) {
	go func() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		candidates, err := repo.ListCandidates(ctx)
		if err != nil {
			log.Printf("backfill list failed: %v", err)
			return
		}

		selected, summary := SelectStale(candidates, maxAge, limit, time.Now().UTC())
		summary.AttemptedEnqueue = len(selected)

		for _, c := range selected {
			result := repo.QueueCandidate(ctx, c)
			if result.Enqueued {
				summary.EnqueueSucceeded++
			}
			if result.Dropped {
				summary.EnqueueDropped++
			}
		}

		log.Printf("backfill summary: total=%d stale=%d selected=%d enqueued=%d dropped=%d fresh=%d",
			summary.TotalCandidates, summary.Stale, summary.Selected, summary.EnqueueSucceeded, summary.EnqueueDropped, summary.Fresh)
		repo.OnBackfillComplete(summary)
	}()
}
