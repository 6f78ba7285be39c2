// Package memory accumulates cross-run knowledge about drugs. Each analysis
// run can distill its signals into short typed insights that later runs and
// reports read back as historical context.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"adsio/internal/analysis"
	"adsio/internal/llm"
	"adsio/internal/store"
)

const maxPromptSignals = 10

// Generator is the slice of the LLM client the memory service uses.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Insight is one extracted learning before it is persisted.
type Insight struct {
	Type       string  `json:"type"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// History summarizes what is known about a drug.
type History struct {
	Entity        string         `json:"entity"`
	TotalInsights int            `json:"total_insights"`
	ByType        map[string]int `json:"by_type"`
	Recent        []store.Memory `json:"recent"`
}

// Service extracts, stores, and retrieves insights.
type Service struct {
	store *store.Store
	gen   Generator
}

// NewService builds the memory service. gen may be nil; extraction and
// summaries then report the LLM as disabled while retrieval keeps working.
func NewService(st *store.Store, gen Generator) *Service {
	return &Service{store: st, gen: gen}
}

// ExtractInsights asks the LLM to distill signals into insights and persists
// each one. No signals or no LLM means no insights, not an error.
func (s *Service) ExtractInsights(ctx context.Context, drug string, signals []analysis.Signal) ([]Insight, error) {
	if len(signals) == 0 || s.gen == nil {
		return nil, nil
	}

	resp, err := s.gen.Generate(ctx, buildInsightPrompt(drug, signals))
	if err != nil {
		if errors.Is(err, llm.ErrDisabled) {
			return nil, nil
		}
		return nil, fmt.Errorf("extract insights for %s: %w", drug, err)
	}

	insights := parseInsights(resp)
	meta, _ := json.Marshal(map[string]int{"signals_count": len(signals)})
	metaStr := string(meta)
	for _, in := range insights {
		if _, err := s.store.InsertMemory(ctx, store.Memory{
			Entity:      drug,
			InsightType: in.Type,
			InsightText: in.Text,
			Confidence:  in.Confidence,
			Metadata:    &metaStr,
		}); err != nil {
			log.Printf("[memory] store insight for %s: %v", drug, err)
		}
	}
	return insights, nil
}

// AddNote stores a manually entered insight.
func (s *Service) AddNote(ctx context.Context, entity, insightType, text string, confidence float64) (int64, error) {
	if insightType == "" {
		insightType = "note"
	}
	if confidence <= 0 || confidence > 1 {
		confidence = 0.5
	}
	return s.store.InsertMemory(ctx, store.Memory{
		Entity:      entity,
		InsightType: insightType,
		InsightText: text,
		Confidence:  confidence,
	})
}

// DrugHistory returns the stored insight profile for a drug.
func (s *Service) DrugHistory(ctx context.Context, entity string) (History, error) {
	recent, err := s.store.Memories(ctx, entity, "", 10)
	if err != nil {
		return History{}, fmt.Errorf("load memories for %s: %w", entity, err)
	}
	all, err := s.store.Memories(ctx, entity, "", 1000)
	if err != nil {
		return History{}, fmt.Errorf("load memories for %s: %w", entity, err)
	}
	byType := make(map[string]int)
	for _, m := range all {
		byType[m.InsightType]++
	}
	return History{
		Entity:        entity,
		TotalInsights: len(all),
		ByType:        byType,
		Recent:        recent,
	}, nil
}

// HistoryContext renders recent insights as prompt lines for the note
// generator. Empty when nothing is stored yet.
func (s *Service) HistoryContext(ctx context.Context, entity string) string {
	recent, err := s.store.Memories(ctx, entity, "", 5)
	if err != nil || len(recent) == 0 {
		return ""
	}
	var b strings.Builder
	for i, m := range recent {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(fmt.Sprintf("- [%s] %s (confidence: %.2f)", m.InsightType, m.InsightText, m.Confidence))
	}
	return b.String()
}

// SummarizeLearnings produces a short LLM summary of everything stored about
// a drug.
func (s *Service) SummarizeLearnings(ctx context.Context, entity string) (string, error) {
	hist, err := s.DrugHistory(ctx, entity)
	if err != nil {
		return "", err
	}
	if hist.TotalInsights == 0 {
		return fmt.Sprintf("No historical insights available for %s.", entity), nil
	}
	if s.gen == nil {
		return "", llm.ErrDisabled
	}
	resp, err := s.gen.Generate(ctx, buildSummaryPrompt(entity, hist.Recent))
	if err != nil {
		return "", fmt.Errorf("summarize learnings for %s: %w", entity, err)
	}
	return resp, nil
}

func buildInsightPrompt(drug string, signals []analysis.Signal) string {
	if len(signals) > maxPromptSignals {
		signals = signals[:maxPromptSignals]
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Analyze these safety signals for %s and extract key insights:\n\n", drug))
	for _, sig := range signals {
		z := "N/A"
		if sig.ZScore != nil {
			z = fmt.Sprintf("%.2f", *sig.ZScore)
		}
		rel := "N/A"
		if sig.Relative != nil {
			rel = fmt.Sprintf("%.2f", *sig.Relative)
		}
		b.WriteString(fmt.Sprintf("- %s: count=%d, z-score=%s, relative=%s, week=%s\n",
			sig.Reaction, sig.CurrentCount, z, rel, sig.Week))
	}
	b.WriteString(`
Extract 2-3 concise insights in the following categories:
1. Signal Patterns: Recurring or notable adverse events
2. Temporal Patterns: Time-based trends
3. Novel Findings: Unexpected or first-time observations

Format each insight as:
TYPE: <category>
INSIGHT: <one sentence insight>
CONFIDENCE: <0.0-1.0>

Be specific and actionable.`)
	return b.String()
}

func buildSummaryPrompt(entity string, recent []store.Memory) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Summarize the key learnings about %s from these historical insights:\n\n", entity))
	for _, m := range recent {
		b.WriteString(fmt.Sprintf("- [%s] %s (confidence: %.2f)\n", m.InsightType, m.InsightText, m.Confidence))
	}
	b.WriteString(`
Provide a concise 2-3 sentence summary highlighting:
1. Most consistent patterns
2. Notable trends
3. Areas of concern

Be specific and actionable.`)
	return b.String()
}

// parseInsights reads TYPE/INSIGHT/CONFIDENCE line triples out of the model
// response. Lines outside that shape are ignored; a missing or unparseable
// confidence defaults to 0.5. An insight with no text is dropped.
func parseInsights(text string) []Insight {
	var insights []Insight
	var cur *Insight
	flush := func() {
		if cur != nil && cur.Text != "" {
			if cur.Confidence == 0 {
				cur.Confidence = 0.5
			}
			insights = append(insights, *cur)
		}
		cur = nil
	}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "TYPE:"):
			flush()
			t := strings.TrimSpace(strings.TrimPrefix(line, "TYPE:"))
			t = strings.ToLower(strings.ReplaceAll(t, " ", "_"))
			cur = &Insight{Type: t}
		case strings.HasPrefix(line, "INSIGHT:"):
			if cur == nil {
				cur = &Insight{Type: "general"}
			}
			cur.Text = strings.TrimSpace(strings.TrimPrefix(line, "INSIGHT:"))
		case strings.HasPrefix(line, "CONFIDENCE:"):
			if cur == nil {
				continue
			}
			raw := strings.TrimSpace(strings.TrimPrefix(line, "CONFIDENCE:"))
			if v, err := strconv.ParseFloat(raw, 64); err == nil {
				cur.Confidence = v
			} else {
				cur.Confidence = 0.5
			}
		}
	}
	flush()
	return insights
}
