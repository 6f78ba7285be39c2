package analysis

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"
)

func week(day int) time.Time {
	// Mondays: 2024-01-01, 2024-01-08, ...
	return time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC)
}

func seriesFor(reaction string, weekly []int) []WeeklyCount {
	var out []WeeklyCount
	for i, n := range weekly {
		out = append(out, WeeklyCount{Week: week(1 + 7*i), Reaction: reaction, Count: n})
	}
	return out
}

func TestDetectSpikesEmptyTable(t *testing.T) {
	if got := DetectSpikes(nil, Options{}); len(got) != 0 {
		t.Fatalf("expected no signals, got %d", len(got))
	}
}

func TestDetectSpikesSingleWeekVolumeOnly(t *testing.T) {
	counts := []WeeklyCount{
		{Week: week(1), Reaction: "Rash", Count: 4},
		{Week: week(1), Reaction: "Nausea", Count: 2},
	}
	signals := DetectSpikes(counts, Options{})
	if len(signals) != 1 {
		t.Fatalf("expected 1 signal, got %d", len(signals))
	}
	s := signals[0]
	if s.Reaction != "Rash" || s.CurrentCount != 4 {
		t.Fatalf("unexpected signal %+v", s)
	}
	if s.Reason != ReasonVolumeOnly {
		t.Fatalf("expected reason %q, got %q", ReasonVolumeOnly, s.Reason)
	}
	if s.ZScore != nil || s.Relative != nil {
		t.Fatalf("expected nil zscore/relative on sparse path")
	}
	if s.BaselineMean != 0 {
		t.Fatalf("expected zero baseline mean, got %v", s.BaselineMean)
	}
	if s.Week != "2024-01-01" {
		t.Fatalf("expected max week 2024-01-01, got %s", s.Week)
	}
}

func TestDetectSpikesSingleWeekRanksByVolume(t *testing.T) {
	counts := []WeeklyCount{
		{Week: week(1), Reaction: "Low", Count: 3},
		{Week: week(1), Reaction: "High", Count: 9},
		{Week: week(1), Reaction: "Mid", Count: 5},
	}
	signals := DetectSpikes(counts, Options{})
	if len(signals) != 3 {
		t.Fatalf("expected 3 signals, got %d", len(signals))
	}
	order := []string{signals[0].Reaction, signals[1].Reaction, signals[2].Reaction}
	if order[0] != "High" || order[1] != "Mid" || order[2] != "Low" {
		t.Fatalf("expected volume-descending order, got %v", order)
	}
}

func TestDetectSpikesConstantBaselineSpike(t *testing.T) {
	signals := DetectSpikes(seriesFor("R", []int{2, 2, 10}), Options{})
	if len(signals) != 1 {
		t.Fatalf("expected 1 signal, got %d", len(signals))
	}
	s := signals[0]
	if s.CurrentCount != 10 {
		t.Fatalf("expected current 10, got %d", s.CurrentCount)
	}
	if s.BaselineMean != 2.0 {
		t.Fatalf("expected baseline mean 2.0, got %v", s.BaselineMean)
	}
	// std over [2,2] is 0, floored to 1.0, so z = 8.0
	if s.ZScore == nil || *s.ZScore != 8.0 {
		t.Fatalf("expected z 8.0, got %v", s.ZScore)
	}
	if !strings.Contains(s.Reason, ReasonZScore) {
		t.Fatalf("expected reason to include zscore, got %q", s.Reason)
	}
	if !strings.Contains(s.Reason, ReasonRelative) {
		t.Fatalf("expected reason to include relative, got %q", s.Reason)
	}
	if s.Reason != "zscore+relative" {
		t.Fatalf("expected zscore before relative, got %q", s.Reason)
	}
}

func TestDetectSpikesFlatSeriesIsQuiet(t *testing.T) {
	signals := DetectSpikes(seriesFor("R", []int{3, 3, 3, 3}), Options{})
	if len(signals) != 0 {
		t.Fatalf("expected no signals for a flat series, got %+v", signals)
	}
}

// Exact-zero baseline mean makes the relative ratio +Inf, which fires the
// relative criterion, so the small-sample rescue never labels the signal
// volume_only here. The precedence is deliberate.
func TestDetectSpikesZeroBaselinePrecedence(t *testing.T) {
	signals := DetectSpikes(seriesFor("R", []int{0, 0, 3}), Options{})
	if len(signals) != 1 {
		t.Fatalf("expected 1 signal, got %d", len(signals))
	}
	s := signals[0]
	if !strings.Contains(s.Reason, ReasonRelative) {
		t.Fatalf("expected relative to fire on +Inf ratio, got %q", s.Reason)
	}
	if strings.Contains(s.Reason, ReasonVolumeOnly) {
		t.Fatalf("volume_only must not be appended when numeric reasons fired, got %q", s.Reason)
	}
	// z = (3-0)/1.0 with the floored std also fires
	if s.Reason != "zscore+relative" {
		t.Fatalf("expected zscore+relative, got %q", s.Reason)
	}
	if s.Relative == nil || !math.IsInf(*s.Relative, 1) {
		t.Fatalf("expected +Inf relative, got %v", s.Relative)
	}
	if s.ZScore == nil || *s.ZScore != 3.0 {
		t.Fatalf("expected z 3.0 with floored std, got %v", s.ZScore)
	}
}

func TestDetectSpikesSmallSampleRescue(t *testing.T) {
	// Baseline mean 0.25 < 0.5 but positive, so relative is damped by the
	// epsilon, not infinite: 3/0.25 = 12 still fires relative. Use a tight
	// relative threshold to isolate the rescue.
	counts := seriesFor("R", []int{1, 0, 0, 0, 3})
	signals := DetectSpikes(counts, Options{RelativeThreshold: 20, ZThreshold: 50})
	if len(signals) != 1 {
		t.Fatalf("expected 1 signal, got %d", len(signals))
	}
	if signals[0].Reason != ReasonVolumeOnly {
		t.Fatalf("expected volume_only rescue, got %q", signals[0].Reason)
	}
}

func TestDetectSpikesSkipsThinReactions(t *testing.T) {
	counts := append(seriesFor("Busy", []int{2, 2, 10}),
		WeeklyCount{Week: week(15), Reaction: "Rare", Count: 5})
	signals := DetectSpikes(counts, Options{})
	for _, s := range signals {
		if s.Reaction == "Rare" {
			t.Fatalf("reaction with a single week must be skipped in the standard regime")
		}
	}
	if len(signals) != 1 {
		t.Fatalf("expected only the Busy signal, got %d", len(signals))
	}
}

func TestDetectSpikesInsertionOrder(t *testing.T) {
	var counts []WeeklyCount
	counts = append(counts, seriesFor("Zeta", []int{1, 1, 9})...)
	counts = append(counts, seriesFor("Alpha", []int{1, 1, 9})...)
	signals := DetectSpikes(counts, Options{})
	if len(signals) != 2 {
		t.Fatalf("expected 2 signals, got %d", len(signals))
	}
	if signals[0].Reaction != "Zeta" || signals[1].Reaction != "Alpha" {
		t.Fatalf("expected first-encountered order, got %s then %s", signals[0].Reaction, signals[1].Reaction)
	}
}

func TestDetectSpikesZeroOptionsUseDefaults(t *testing.T) {
	// relative 10/4 = 2.5 >= 1.5 fires under defaults
	signals := DetectSpikes(seriesFor("R", []int{4, 4, 4, 10}), Options{})
	if len(signals) != 1 {
		t.Fatalf("expected 1 signal under default thresholds, got %d", len(signals))
	}
}

func TestSignalJSONInfinityBecomesNull(t *testing.T) {
	signals := DetectSpikes(seriesFor("R", []int{0, 0, 3}), Options{})
	if len(signals) != 1 {
		t.Fatalf("expected 1 signal, got %d", len(signals))
	}
	buf, err := json.Marshal(signals[0])
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(buf, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["relative"] != nil {
		t.Fatalf("expected null relative on the wire, got %v", decoded["relative"])
	}
	if decoded["reason"] != "zscore+relative" {
		t.Fatalf("expected reason preserved, got %v", decoded["reason"])
	}
}
