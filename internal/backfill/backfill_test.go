package backfill

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestSelectStaleRespectsLimitAndAge(t *testing.T) {
	now := time.Date(2024, 3, 11, 12, 0, 0, 0, time.UTC)
	var candidates []Candidate
	for i := 0; i < 30; i++ {
		c := Candidate{
			Drug:       fmt.Sprintf("drug-%02d", i),
			LastStatus: "succeeded",
			// Runs spread one day apart going backwards.
			LastRunAt: now.Add(-time.Duration(i) * 24 * time.Hour),
		}
		candidates = append(candidates, c)
	}

	// 7-day cutoff: drugs 0-7 are fresh, 8-29 are stale.
	stale, summary := SelectStale(candidates, 7*24*time.Hour, 10, now)
	if summary.Fresh != 8 {
		t.Fatalf("expected 8 fresh, got %d", summary.Fresh)
	}
	if summary.Stale != 22 {
		t.Fatalf("expected 22 stale, got %d", summary.Stale)
	}
	if len(stale) != 10 || summary.Selected != 10 {
		t.Fatalf("expected 10 selected, got %d", len(stale))
	}
	for i := 1; i < len(stale); i++ {
		if stale[i].LastRunAt.Before(stale[i-1].LastRunAt) {
			t.Fatal("candidates not sorted oldest first")
		}
	}
	if stale[0].Drug != "drug-29" {
		t.Fatalf("oldest drug should lead, got %s", stale[0].Drug)
	}
}

func TestSelectStaleNeverRunAndFailed(t *testing.T) {
	now := time.Date(2024, 3, 11, 12, 0, 0, 0, time.UTC)
	candidates := []Candidate{
		{Drug: "never-run"},
		{Drug: "failed", LastStatus: "failed", LastRunAt: now.Add(-time.Hour)},
		{Drug: "fresh", LastStatus: "succeeded", LastRunAt: now.Add(-time.Hour)},
	}
	stale, summary := SelectStale(candidates, 7*24*time.Hour, 10, now)
	if len(stale) != 2 {
		t.Fatalf("expected 2 stale, got %+v", stale)
	}
	if stale[0].Drug != "never-run" {
		t.Fatalf("never-run should sort first, got %s", stale[0].Drug)
	}
	if summary.Fresh != 1 {
		t.Fatalf("expected 1 fresh, got %d", summary.Fresh)
	}
}

func TestBackfillRunReportsDrops(t *testing.T) {
	var candidates []Candidate
	for i := 0; i < 5; i++ {
		candidates = append(candidates, Candidate{Drug: fmt.Sprintf("drug-%d", i)})
	}

	summaryCh := make(chan Summary, 1)
	repo := &stubRepo{candidates: candidates, allowEnqueue: 2, summaries: summaryCh}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	Run(ctx, repo, 7*24*time.Hour, 5)

	select {
	case summary := <-summaryCh:
		if summary.EnqueueSucceeded != 2 {
			t.Fatalf("expected 2 enqueues, got %d", summary.EnqueueSucceeded)
		}
		if summary.EnqueueDropped != 3 {
			t.Fatalf("expected 3 dropped, got %d", summary.EnqueueDropped)
		}
		if summary.Selected != 5 {
			t.Fatalf("expected 5 selected, got %d", summary.Selected)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for backfill summary")
	}
}

type stubRepo struct {
	candidates   []Candidate
	allowEnqueue int
	enqueued     int
	summaries    chan<- Summary
}

func (r *stubRepo) ListCandidates(ctx context.Context) ([]Candidate, error) {
	return r.candidates, nil
}

func (r *stubRepo) QueueCandidate(ctx context.Context, c Candidate) EnqueueResult {
	if r.enqueued < r.allowEnqueue {
		r.enqueued++
		return EnqueueResult{Enqueued: true}
	}
	return EnqueueResult{Dropped: true}
}

func (r *stubRepo) OnBackfillComplete(summary Summary) {
	r.summaries <- summary
}
