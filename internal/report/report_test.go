package report

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"adsio/internal/analysis"
	"adsio/internal/store"
)

func TestRender(t *testing.T) {
	z := 8.0
	rel := 5.0
	inf := math.Inf(1)
	body := Render(Input{
		Drug:    "aspirin",
		Fetched: 100,
		Stored:  98,
		Signals: []analysis.Signal{
			{Reaction: "NAUSEA", CurrentCount: 10, ZScore: &z, Relative: &rel, Week: "2024-03-04", Reason: "zscore+relative"},
			{Reaction: "RASH", CurrentCount: 3, ZScore: &z, Relative: &inf, Week: "2024-03-04", Reason: "zscore+relative"},
			{Reaction: "FATIGUE", CurrentCount: 4, Week: "2024-03-04", Reason: "volume_only"},
		},
		PastInsights: []store.Memory{
			{InsightType: "signal_patterns", InsightText: "Nausea recurs quarterly.", Confidence: 0.8},
		},
		LLMText:     "Summary: elevated nausea reporting.",
		GeneratedAt: time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC),
	})

	for _, want := range []string{
		"# ADSIO Report — aspirin",
		"- Fetched: 100",
		"- Stored: 98",
		"- Signals found: 3",
		"## Historical Context",
		"**[signal_patterns]** Nausea recurs quarterly. (confidence: 0.80)",
		"| Reaction | Count | z-score | Relative | Week | Reason |",
		"| NAUSEA | 10 | 8.00 | 5.00 | 2024-03-04 | zscore+relative |",
		"| RASH | 3 | 8.00 | — | 2024-03-04 | zscore+relative |",
		"| FATIGUE | 4 | — | — | 2024-03-04 | volume_only |",
		"## LLM Analysis\nSummary: elevated nausea reporting.",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("report missing %q:\n%s", want, body)
		}
	}
}

func TestRenderNoSignalsNoLLM(t *testing.T) {
	body := Render(Input{Drug: "ibuprofen"})
	if !strings.Contains(body, "No signals detected using current thresholds.") {
		t.Fatalf("missing empty-signal notice:\n%s", body)
	}
	if !strings.Contains(body, "LLM analysis unavailable.") {
		t.Fatalf("missing llm fallback:\n%s", body)
	}
	if strings.Contains(body, "## Historical Context") {
		t.Fatalf("history section should be absent:\n%s", body)
	}
}

func TestWriteAndLatest(t *testing.T) {
	w := NewWriter(filepath.Join(t.TempDir(), "reports"))

	first, err := w.Write(Input{
		Drug:        "Tylenol PM",
		GeneratedAt: time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if filepath.Base(first) != "Tylenol_PM_report_20240310T120000.md" {
		t.Fatalf("unexpected filename %q", first)
	}
	if _, err := os.Stat(first); err != nil {
		t.Fatalf("report not on disk: %v", err)
	}

	second, err := w.Write(Input{
		Drug:        "Tylenol PM",
		LLMText:     "newer",
		GeneratedAt: time.Date(2024, 3, 11, 12, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	name, body, err := w.Latest("Tylenol PM")
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if name != filepath.Base(second) {
		t.Fatalf("Latest returned %q, want %q", name, filepath.Base(second))
	}
	if !strings.Contains(body, "newer") {
		t.Fatalf("latest body mismatch:\n%s", body)
	}

	names, err := w.List("Tylenol PM")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("expected 2 reports, got %v", names)
	}
}

func TestListMissingDirectory(t *testing.T) {
	w := NewWriter(filepath.Join(t.TempDir(), "does-not-exist"))
	names, err := w.List("")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(names) != 0 {
		t.Fatalf("expected no reports, got %v", names)
	}
}

func TestLatestNoReports(t *testing.T) {
	w := NewWriter(t.TempDir())
	if _, _, err := w.Latest("aspirin"); err == nil {
		t.Fatal("expected error for missing reports")
	}
}
