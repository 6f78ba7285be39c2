// Package httpapi exposes the analysis pipeline over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"adsio/internal/backfill"
	"adsio/internal/config"
	"adsio/internal/jobs"
	"adsio/internal/memory"
	"adsio/internal/metrics"
	"adsio/internal/pipeline"
	"adsio/internal/report"
	"adsio/internal/store"
	"adsio/internal/validate"
)

// Router builds HTTP handlers for /api and /ops.
type Router struct {
	cfg     config.Config
	store   *store.Store
	runner  *jobs.Runner
	orch    *pipeline.Orchestrator
	mem     *memory.Service
	reports *report.Writer
	limiter *rate.Limiter
}

func NewRouter(cfg config.Config, st *store.Store, runner *jobs.Runner, orch *pipeline.Orchestrator, mem *memory.Service, reports *report.Writer) *Router {
	r := &Router{
		cfg:     cfg,
		store:   st,
		runner:  runner,
		orch:    orch,
		mem:     mem,
		reports: reports,
	}
	if cfg.RateLimitEnabled && cfg.RateLimitRequests > 0 {
		window := cfg.RateLimitWindow
		if window <= 0 {
			window = time.Minute
		}
		r.limiter = rate.NewLimiter(
			rate.Limit(float64(cfg.RateLimitRequests)/window.Seconds()),
			cfg.RateLimitRequests)
	}
	return r
}

func (r *Router) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/health", r.limit(r.health))
	mux.HandleFunc("/api/run", r.limit(r.run))
	mux.HandleFunc("/api/signals", r.limit(r.signals))
	mux.HandleFunc("/api/drugs", r.limit(r.drugs))
	mux.HandleFunc("/api/reports", r.limit(r.listReports))
	mux.HandleFunc("/api/reports/latest", r.limit(r.latestReport))
	mux.HandleFunc("/api/memory/notes", r.limit(r.addNote))
	mux.HandleFunc("/api/memory/", r.limit(r.memoryDetail))
	mux.HandleFunc("/api/debug/weekly_counts", r.limit(r.weeklyCounts))
	mux.HandleFunc("/ops/status", r.status)
	mux.HandleFunc("/ops/runs", r.listRuns)
	mux.HandleFunc("/ops/backfill", r.opsBackfill)
}

// limit wraps a handler with the global rate limiter.
func (r *Router) limit(next http.HandlerFunc) http.HandlerFunc {
	if r.limiter == nil {
		return next
	}
	return func(w http.ResponseWriter, req *http.Request) {
		if !r.limiter.Allow() {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next(w, req)
	}
}

func (r *Router) health(w http.ResponseWriter, req *http.Request) {
	dbState := "ok"
	if err := r.store.Health(req.Context()); err != nil {
		dbState = "error: " + err.Error()
	}
	respondJSON(w, map[string]any{
		"status":   "ok",
		"database": dbState,
		"llm":      r.cfg.UseGemini,
		"config":   r.cfg.Summary(),
	})
}

func (r *Router) run(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		Drug  string `json:"drug"`
		Limit int    `json:"limit"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	drug, err := validate.DrugName(body.Drug)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	limit, err := validate.Limit(body.Limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	run, err := r.runner.Enqueue(req.Context(), drug, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	respondJSONStatus(w, http.StatusAccepted, run)
}

func (r *Router) signals(w http.ResponseWriter, req *http.Request) {
	drug, ok := r.drugParam(w, req)
	if !ok {
		return
	}
	signals, total, err := r.orch.Analyze(req.Context(), drug)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, map[string]any{
		"drug":           drug,
		"stored_reports": total,
		"signals":        signals,
	})
}

func (r *Router) weeklyCounts(w http.ResponseWriter, req *http.Request) {
	drug, ok := r.drugParam(w, req)
	if !ok {
		return
	}
	counts, err := r.orch.WeeklyTable(req.Context(), drug)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	type row struct {
		Week     string `json:"week"`
		Reaction string `json:"reaction"`
		Count    int    `json:"count"`
	}
	rows := make([]row, 0, len(counts))
	for _, c := range counts {
		rows = append(rows, row{Week: c.Week.Format("2006-01-02"), Reaction: c.Reaction, Count: c.Count})
	}
	respondJSON(w, map[string]any{"drug": drug, "weekly_counts": rows})
}

func (r *Router) drugs(w http.ResponseWriter, req *http.Request) {
	list, err := r.store.ListDrugs(req.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, map[string]any{"drugs": list})
}

func (r *Router) listReports(w http.ResponseWriter, req *http.Request) {
	names, err := r.reports.List(req.URL.Query().Get("drug"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, map[string]any{"reports": names})
}

func (r *Router) latestReport(w http.ResponseWriter, req *http.Request) {
	drug, ok := r.drugParam(w, req)
	if !ok {
		return
	}
	name, body, err := r.reports.Latest(drug)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	respondJSON(w, map[string]any{"name": name, "content": body})
}

// memoryDetail serves /api/memory/{drug} and /api/memory/{drug}/summary.
func (r *Router) memoryDetail(w http.ResponseWriter, req *http.Request) {
	rest := strings.TrimPrefix(req.URL.Path, "/api/memory/")
	wantSummary := false
	if strings.HasSuffix(rest, "/summary") {
		wantSummary = true
		rest = strings.TrimSuffix(rest, "/summary")
	}
	drug, err := validate.DrugName(rest)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if wantSummary {
		summary, err := r.mem.SummarizeLearnings(req.Context(), drug)
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		respondJSON(w, map[string]any{"drug": drug, "summary": summary})
		return
	}
	hist, err := r.mem.DrugHistory(req.Context(), drug)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, hist)
}

func (r *Router) addNote(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		Drug       string  `json:"drug"`
		Type       string  `json:"type"`
		Text       string  `json:"text"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	drug, err := validate.DrugName(body.Drug)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(body.Text) == "" {
		http.Error(w, "text is required", http.StatusBadRequest)
		return
	}
	id, err := r.mem.AddNote(req.Context(), drug, body.Type, body.Text, body.Confidence)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSONStatus(w, http.StatusCreated, map[string]any{"id": id})
}

func (r *Router) status(w http.ResponseWriter, req *http.Request) {
	runs, _ := r.store.ListRuns(req.Context(), 5)
	respondJSON(w, map[string]any{
		"runs":        runs,
		"workers":     r.cfg.WorkerCount,
		"queue_depth": r.runner.QueueDepth(),
		"metrics":     metrics.Snapshot(),
	})
}

func (r *Router) listRuns(w http.ResponseWriter, req *http.Request) {
	limit := 50
	if raw := req.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			limit = v
		}
	}
	runs, err := r.store.ListRuns(req.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, runs)
}

func (r *Router) opsBackfill(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	maxAgeDays := 7
	if raw := req.URL.Query().Get("max_age_days"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			maxAgeDays = v
		}
	}
	limit := 20
	if raw := req.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			limit = v
		}
	}
	repo := &backfillRepo{store: r.store, runner: r.runner, cfg: r.cfg}
	// Detached context: the backfill outlives the request.
	backfill.Run(context.Background(), repo, time.Duration(maxAgeDays)*24*time.Hour, limit)
	respondJSON(w, map[string]any{"status": "started", "max_age_days": maxAgeDays, "limit": limit})
}

// drugParam extracts and validates the ?drug= query parameter.
func (r *Router) drugParam(w http.ResponseWriter, req *http.Request) (string, bool) {
	drug, err := validate.DrugName(req.URL.Query().Get("drug"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return "", false
	}
	return drug, true
}

func respondJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("respond: %v", err)
	}
}

// respondJSONStatus sets the Content-Type before writing the status line;
// headers set after WriteHeader are discarded.
func respondJSONStatus(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("respond: %v", err)
	}
}
