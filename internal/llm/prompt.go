package llm

import (
	"fmt"
	"strings"

	"adsio/internal/analysis"
	"adsio/internal/store"
)

const maxSampleReports = 5

// NoteContext carries everything the intelligence-note prompt needs.
type NoteContext struct {
	Drug          string
	StoredReports int
	Signals       []analysis.Signal
	Samples       []store.SampleReport
	History       string
}

// BuildNotePrompt renders the analyst prompt for an intelligence note. The
// structure is fixed so the generated notes stay comparable across runs.
func BuildNotePrompt(ctx NoteContext) string {
	var b strings.Builder
	b.WriteString("You are an expert pharmacovigilance analyst.\n\n")
	b.WriteString(fmt.Sprintf("Drug: %s\n\n", ctx.Drug))

	b.WriteString("Analysis Summary:\n")
	b.WriteString(fmt.Sprintf("- stored reports: %d\n", ctx.StoredReports))
	b.WriteString(fmt.Sprintf("- detected signals: %d\n", len(ctx.Signals)))
	for _, s := range ctx.Signals {
		b.WriteString("- ")
		b.WriteString(summarizeSignal(s))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if ctx.History != "" {
		b.WriteString("Historical Context:\n")
		b.WriteString(ctx.History)
		b.WriteString("\n\n")
	}

	b.WriteString("Sample Reports:\n")
	samples := ctx.Samples
	if len(samples) > maxSampleReports {
		samples = samples[:maxSampleReports]
	}
	for _, s := range samples {
		b.WriteString(fmt.Sprintf("- report %s: %s\n", s.SafetyReportID, s.Reactions))
	}
	if len(samples) == 0 {
		b.WriteString("- none available\n")
	}
	b.WriteString("\n")

	b.WriteString("Write a concise intelligence note (150-250 words) including:\n")
	b.WriteString("- Summary\n")
	b.WriteString("- Key Evidence\n")
	b.WriteString("- Possible Causes\n")
	b.WriteString("- Risk Assessment\n")
	b.WriteString("- Recommended Next Steps\n")
	b.WriteString("- Confidence Score (0-100)\n")
	return b.String()
}

// summarizeSignal renders one signal as a prompt line. Absent statistics show
// as N/A rather than zero so the model does not invent precision.
func summarizeSignal(s analysis.Signal) string {
	z := "N/A"
	if s.ZScore != nil {
		z = fmt.Sprintf("%.2f", *s.ZScore)
	}
	rel := "N/A"
	if s.Relative != nil {
		rel = fmt.Sprintf("%.2f", *s.Relative)
	}
	return fmt.Sprintf("%s: count=%d, z-score=%s, relative=%s, week=%s, reason=%s",
		s.Reaction, s.CurrentCount, z, rel, s.Week, s.Reason)
}
