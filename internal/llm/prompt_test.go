package llm

import (
	"strings"
	"testing"

	"adsio/internal/analysis"
	"adsio/internal/store"
)

func TestBuildNotePrompt(t *testing.T) {
	z := 4.2
	rel := 3.0
	prompt := BuildNotePrompt(NoteContext{
		Drug:          "aspirin",
		StoredReports: 120,
		Signals: []analysis.Signal{
			{Reaction: "NAUSEA", CurrentCount: 9, ZScore: &z, Relative: &rel, Week: "2024-03-04", Reason: "zscore+relative"},
			{Reaction: "RASH", CurrentCount: 4, Week: "2024-03-04", Reason: "volume_only"},
		},
		Samples: []store.SampleReport{
			{SafetyReportID: "10001", Reactions: "Nausea;Headache"},
		},
		History: "- [signal_patterns] Nausea recurs quarterly (confidence: 0.80)",
	})

	for _, want := range []string{
		"Drug: aspirin",
		"stored reports: 120",
		"NAUSEA: count=9, z-score=4.20, relative=3.00, week=2024-03-04, reason=zscore+relative",
		"RASH: count=4, z-score=N/A, relative=N/A",
		"Historical Context:",
		"Nausea recurs quarterly",
		"report 10001: Nausea;Headache",
		"Confidence Score (0-100)",
	} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestBuildNotePromptTruncatesSamples(t *testing.T) {
	samples := make([]store.SampleReport, 8)
	for i := range samples {
		samples[i] = store.SampleReport{SafetyReportID: "r", Reactions: "x"}
	}
	prompt := BuildNotePrompt(NoteContext{Drug: "aspirin", Samples: samples})
	if got := strings.Count(prompt, "- report r:"); got != maxSampleReports {
		t.Fatalf("expected %d sample lines, got %d", maxSampleReports, got)
	}
}

func TestBuildNotePromptNoSamples(t *testing.T) {
	prompt := BuildNotePrompt(NoteContext{Drug: "aspirin"})
	if !strings.Contains(prompt, "- none available") {
		t.Fatalf("expected placeholder for missing samples:\n%s", prompt)
	}
}
