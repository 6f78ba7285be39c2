package memory

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"adsio/internal/analysis"
	"adsio/internal/store"
)

type stubGenerator struct {
	response string
	prompts  []string
	err      error
}

func (g *stubGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.prompts = append(g.prompts, prompt)
	if g.err != nil {
		return "", g.err
	}
	return g.response, nil
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestParseInsights(t *testing.T) {
	text := `Here are the insights:

TYPE: Signal Patterns
INSIGHT: Nausea spiked to 9 reports in the latest week.
CONFIDENCE: 0.85

TYPE: Temporal Patterns
INSIGHT: Reports cluster at quarter boundaries.
CONFIDENCE: not-a-number

TYPE: Novel Findings
CONFIDENCE: 0.9
`
	insights := parseInsights(text)
	if len(insights) != 2 {
		t.Fatalf("expected 2 insights, got %d: %+v", len(insights), insights)
	}
	if insights[0].Type != "signal_patterns" {
		t.Fatalf("unexpected type %q", insights[0].Type)
	}
	if insights[0].Confidence != 0.85 {
		t.Fatalf("unexpected confidence %v", insights[0].Confidence)
	}
	if insights[1].Confidence != 0.5 {
		t.Fatalf("bad confidence should default to 0.5, got %v", insights[1].Confidence)
	}
	if !strings.Contains(insights[1].Text, "quarter boundaries") {
		t.Fatalf("unexpected text %q", insights[1].Text)
	}
}

func TestParseInsightsEmpty(t *testing.T) {
	if got := parseInsights("no structured content here"); len(got) != 0 {
		t.Fatalf("expected no insights, got %+v", got)
	}
}

func TestExtractInsightsStoresResults(t *testing.T) {
	st := openStore(t)
	gen := &stubGenerator{response: "TYPE: Signal Patterns\nINSIGHT: Nausea is recurring.\nCONFIDENCE: 0.8\n"}
	svc := NewService(st, gen)

	z := 3.0
	signals := []analysis.Signal{{Reaction: "NAUSEA", CurrentCount: 9, ZScore: &z, Week: "2024-03-04", Reason: "zscore"}}
	insights, err := svc.ExtractInsights(context.Background(), "aspirin", signals)
	if err != nil {
		t.Fatalf("ExtractInsights: %v", err)
	}
	if len(insights) != 1 {
		t.Fatalf("expected 1 insight, got %d", len(insights))
	}
	if len(gen.prompts) != 1 || !strings.Contains(gen.prompts[0], "NAUSEA: count=9") {
		t.Fatalf("unexpected prompt: %v", gen.prompts)
	}

	hist, err := svc.DrugHistory(context.Background(), "aspirin")
	if err != nil {
		t.Fatalf("DrugHistory: %v", err)
	}
	if hist.TotalInsights != 1 || hist.ByType["signal_patterns"] != 1 {
		t.Fatalf("unexpected history %+v", hist)
	}
}

func TestExtractInsightsNoSignals(t *testing.T) {
	svc := NewService(openStore(t), &stubGenerator{response: "unused"})
	insights, err := svc.ExtractInsights(context.Background(), "aspirin", nil)
	if err != nil {
		t.Fatalf("ExtractInsights: %v", err)
	}
	if insights != nil {
		t.Fatalf("expected nil insights, got %+v", insights)
	}
}

func TestExtractInsightsNilGenerator(t *testing.T) {
	svc := NewService(openStore(t), nil)
	insights, err := svc.ExtractInsights(context.Background(), "aspirin",
		[]analysis.Signal{{Reaction: "RASH", CurrentCount: 4}})
	if err != nil || insights != nil {
		t.Fatalf("nil generator should be a no-op, got %v, %+v", err, insights)
	}
}

func TestSummarizeLearningsNoHistory(t *testing.T) {
	svc := NewService(openStore(t), &stubGenerator{response: "unused"})
	summary, err := svc.SummarizeLearnings(context.Background(), "aspirin")
	if err != nil {
		t.Fatalf("SummarizeLearnings: %v", err)
	}
	if !strings.Contains(summary, "No historical insights") {
		t.Fatalf("unexpected summary %q", summary)
	}
}

func TestHistoryContext(t *testing.T) {
	st := openStore(t)
	svc := NewService(st, nil)
	if got := svc.HistoryContext(context.Background(), "aspirin"); got != "" {
		t.Fatalf("expected empty context, got %q", got)
	}

	if _, err := svc.AddNote(context.Background(), "aspirin", "note", "watch for GI bleeds", 0.7); err != nil {
		t.Fatalf("AddNote: %v", err)
	}
	got := svc.HistoryContext(context.Background(), "aspirin")
	if !strings.Contains(got, "[note] watch for GI bleeds (confidence: 0.70)") {
		t.Fatalf("unexpected context %q", got)
	}
}
