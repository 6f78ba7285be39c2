// Package pipeline orchestrates one analysis run end to end: retrieve
// historical context, ingest fresh reports, detect spikes, generate an
// intelligence note, memorize insights, and write the report.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"adsio/internal/analysis"
	"adsio/internal/config"
	"adsio/internal/llm"
	"adsio/internal/memory"
	"adsio/internal/metrics"
	"adsio/internal/openfda"
	"adsio/internal/report"
	"adsio/internal/store"
)

// Fetcher pulls adverse-event records for a drug.
type Fetcher interface {
	FetchReports(ctx context.Context, drugName string, limit int) ([]openfda.Record, error)
}

// Generator produces text from a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Trace records what each stage of a run did.
type Trace struct {
	Drug          string             `json:"drug"`
	FetchLimit    int                `json:"fetch_limit"`
	PipelineStart time.Time          `json:"pipeline_start"`
	PipelineEnd   time.Time          `json:"pipeline_end"`
	PastInsights  int                `json:"past_insights"`
	Fetched       int                `json:"fetched"`
	Stored        int                `json:"stored"`
	TotalReports  int                `json:"total_reports"`
	Signals       []analysis.Signal  `json:"signals"`
	LLMUsed       bool               `json:"llm_used"`
	NewInsights   []memory.Insight   `json:"new_insights,omitempty"`
	ReportPath    string             `json:"report_path"`
}

// Orchestrator wires the stages together.
type Orchestrator struct {
	cfg     config.Config
	store   *store.Store
	fetcher Fetcher
	gen     Generator
	mem     *memory.Service
	reports *report.Writer
}

// NewOrchestrator builds a pipeline. gen may be nil when the LLM is
// disabled; the explain and memorize stages then degrade to statistics only.
func NewOrchestrator(cfg config.Config, st *store.Store, fetcher Fetcher, gen Generator, mem *memory.Service, reports *report.Writer) *Orchestrator {
	return &Orchestrator{
		cfg:     cfg,
		store:   st,
		fetcher: fetcher,
		gen:     gen,
		mem:     mem,
		reports: reports,
	}
}

// Run executes the full pipeline for one drug. Fetch failures abort the run;
// LLM failures do not, the report just falls back to statistics.
func (o *Orchestrator) Run(ctx context.Context, drug string, limit int) (Trace, error) {
	trace := Trace{
		Drug:          drug,
		FetchLimit:    limit,
		PipelineStart: time.Now().UTC(),
	}

	past, err := o.store.Memories(ctx, drug, "", 3)
	if err != nil {
		return trace, fmt.Errorf("retrieve memories: %w", err)
	}
	trace.PastInsights = len(past)
	history := o.mem.HistoryContext(ctx, drug)

	records, err := o.fetcher.FetchReports(ctx, drug, limit)
	if err != nil {
		metrics.IncFetchFailed()
		return trace, fmt.Errorf("fetch reports for %s: %w", drug, err)
	}
	trace.Fetched = len(records)
	metrics.AddReportsFetched(len(records))

	rows := make([]store.Report, 0, len(records))
	for _, rec := range records {
		rows = append(rows, store.Report{
			SafetyReportID: rec.SafetyReportID,
			ReceiveDate:    rec.ReceiveDate,
			DrugName:       rec.DrugName,
			Reaction:       rec.Reactions,
			RawJSON:        string(rec.Raw),
		})
	}
	stored, err := o.store.StoreReports(ctx, rows)
	if err != nil {
		return trace, fmt.Errorf("store reports for %s: %w", drug, err)
	}
	trace.Stored = stored

	reports, err := o.store.LoadReports(ctx, drug)
	if err != nil {
		return trace, fmt.Errorf("load reports for %s: %w", drug, err)
	}
	trace.TotalReports = len(reports)

	counts := analysis.WeeklyCounts(reports)
	signals := analysis.DetectSpikes(counts, o.cfg.Analysis)
	trace.Signals = signals
	metrics.AddSignals(len(signals))

	llmText := o.explain(ctx, drug, signals, len(reports), history)
	trace.LLMUsed = llmText != ""

	if insights, err := o.mem.ExtractInsights(ctx, drug, signals); err != nil {
		log.Printf("[pipeline] insight extraction for %s: %v", drug, err)
	} else {
		trace.NewInsights = insights
	}

	path, err := o.reports.Write(report.Input{
		Drug:         drug,
		Fetched:      trace.Fetched,
		Stored:       trace.Stored,
		Signals:      signals,
		PastInsights: past,
		LLMText:      llmText,
		GeneratedAt:  time.Now().UTC(),
	})
	if err != nil {
		return trace, fmt.Errorf("write report for %s: %w", drug, err)
	}
	trace.ReportPath = path
	trace.PipelineEnd = time.Now().UTC()
	return trace, nil
}

// explain generates the intelligence note. Any failure logs and returns an
// empty string so the run keeps going.
func (o *Orchestrator) explain(ctx context.Context, drug string, signals []analysis.Signal, totalReports int, history string) string {
	if o.gen == nil {
		return ""
	}
	samples, err := o.store.SampleReports(ctx, drug, 3)
	if err != nil {
		log.Printf("[pipeline] sample reports for %s: %v", drug, err)
	}
	prompt := llm.BuildNotePrompt(llm.NoteContext{
		Drug:          drug,
		StoredReports: totalReports,
		Signals:       signals,
		Samples:       samples,
		History:       history,
	})
	if o.cfg.LLMTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.LLMTimeout)
		defer cancel()
	}
	text, err := o.gen.Generate(ctx, prompt)
	if err != nil {
		if !errors.Is(err, llm.ErrDisabled) {
			log.Printf("[pipeline] llm note for %s: %v", drug, err)
		}
		return ""
	}
	return text
}

// Analyze recomputes signals from stored reports without fetching.
func (o *Orchestrator) Analyze(ctx context.Context, drug string) ([]analysis.Signal, int, error) {
	reports, err := o.store.LoadReports(ctx, drug)
	if err != nil {
		return nil, 0, fmt.Errorf("load reports for %s: %w", drug, err)
	}
	counts := analysis.WeeklyCounts(reports)
	return analysis.DetectSpikes(counts, o.cfg.Analysis), len(reports), nil
}

// WeeklyTable returns the aggregated weekly counts for inspection.
func (o *Orchestrator) WeeklyTable(ctx context.Context, drug string) ([]analysis.WeeklyCount, error) {
	reports, err := o.store.LoadReports(ctx, drug)
	if err != nil {
		return nil, fmt.Errorf("load reports for %s: %w", drug, err)
	}
	return analysis.WeeklyCounts(reports), nil
}
