// Package report renders pipeline results as markdown files on disk.
package report

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"adsio/internal/analysis"
	"adsio/internal/store"
	"adsio/internal/validate"
)

// Input carries everything one report needs.
type Input struct {
	Drug         string
	Fetched      int
	Stored       int
	Signals      []analysis.Signal
	PastInsights []store.Memory
	LLMText      string
	GeneratedAt  time.Time
}

// Writer persists markdown reports under a base directory.
type Writer struct {
	dir string
}

// NewWriter builds a report writer rooted at dir.
func NewWriter(dir string) *Writer {
	if dir == "" {
		dir = "reports"
	}
	return &Writer{dir: dir}
}

// Write renders the report and returns the file path. Filenames embed the
// sanitized drug name and a UTC timestamp so repeated runs never collide
// within the same second.
func (w *Writer) Write(in Input) (string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("create reports dir: %w", err)
	}
	ts := in.GeneratedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	name := fmt.Sprintf("%s_report_%s.md", validate.Filename(in.Drug), ts.Format("20060102T150405"))
	path := filepath.Join(w.dir, name)
	if err := os.WriteFile(path, []byte(Render(in)), 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}

// List returns report filenames, optionally filtered by drug prefix.
func (w *Writer) List(drug string) ([]string, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	prefix := ""
	if drug != "" {
		prefix = validate.Filename(drug) + "_report_"
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		if prefix != "" && !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		out = append(out, e.Name())
	}
	return out, nil
}

// Latest returns the contents of the newest report for a drug. Filenames
// sort chronologically because of the embedded timestamp.
func (w *Writer) Latest(drug string) (string, string, error) {
	names, err := w.List(drug)
	if err != nil {
		return "", "", err
	}
	if len(names) == 0 {
		return "", "", fmt.Errorf("no reports found for %q", drug)
	}
	latest := names[0]
	for _, n := range names[1:] {
		if n > latest {
			latest = n
		}
	}
	body, err := os.ReadFile(filepath.Join(w.dir, latest))
	if err != nil {
		return "", "", err
	}
	return latest, string(body), nil
}

// Render produces the markdown body.
func Render(in Input) string {
	ts := in.GeneratedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("# ADSIO Report — %s\n", in.Drug))
	b.WriteString(fmt.Sprintf("Generated at: %s UTC\n\n", ts.Format("2006-01-02T15:04:05")))

	b.WriteString("## Summary\n")
	b.WriteString(fmt.Sprintf("- Fetched: %d\n", in.Fetched))
	b.WriteString(fmt.Sprintf("- Stored: %d\n", in.Stored))
	b.WriteString(fmt.Sprintf("- Signals found: %d\n\n", len(in.Signals)))

	if len(in.PastInsights) > 0 {
		b.WriteString("## Historical Context\n")
		b.WriteString(fmt.Sprintf("Found %d relevant past insights:\n\n", len(in.PastInsights)))
		shown := in.PastInsights
		if len(shown) > 3 {
			shown = shown[:3]
		}
		for _, m := range shown {
			b.WriteString(fmt.Sprintf("- **[%s]** %s (confidence: %.2f)\n",
				m.InsightType, m.InsightText, m.Confidence))
		}
		b.WriteString("\n")
	}

	if len(in.Signals) > 0 {
		b.WriteString("## Detected Signals\n")
		b.WriteString("| Reaction | Count | z-score | Relative | Week | Reason |\n")
		b.WriteString("|---|---:|---:|---:|---|---|\n")
		for _, s := range in.Signals {
			b.WriteString(fmt.Sprintf("| %s | %d | %s | %s | %s | %s |\n",
				s.Reaction, s.CurrentCount, cell(s.ZScore), cell(s.Relative), s.Week, s.Reason))
		}
		b.WriteString("\n")
	} else {
		b.WriteString("No signals detected using current thresholds.\n\n")
	}

	b.WriteString("## LLM Analysis\n")
	if in.LLMText != "" {
		b.WriteString(in.LLMText)
		b.WriteString("\n")
	} else {
		b.WriteString("LLM analysis unavailable.\n")
	}
	return b.String()
}

// cell formats an optional statistic for the signal table. Missing and
// non-finite values render as an em dash.
func cell(v *float64) string {
	if v == nil || math.IsInf(*v, 0) || math.IsNaN(*v) {
		return "—"
	}
	return fmt.Sprintf("%.2f", *v)
}
