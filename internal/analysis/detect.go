package analysis

import (
	"math"
	"sort"
	"strings"
	"time"
)

const (
	// weekLayout is how signal weeks are rendered for callers.
	weekLayout = "2006-01-02"

	// volumeThreshold is the minimum total count that surfaces a reaction
	// when fewer than two weeks of data exist.
	volumeThreshold = 3

	// minStd replaces a zero baseline standard deviation so constant
	// baselines do not blow up the z-score division.
	minStd = 1.0

	// meanEpsilon damps the relative ratio for near-zero nonzero means.
	// An exactly-zero mean bypasses it and yields +Inf instead.
	meanEpsilon = 1e-9

	smallSampleMean  = 0.5
	smallSampleCount = 3
)

// DetectSpikes compares each reaction's most recent weekly count against its
// own historical baseline and returns the reactions judged anomalous. With
// fewer than two distinct weeks in the table no baseline exists, and the
// detector falls back to surfacing reactions on absolute volume alone,
// ranked by total count. Otherwise reactions are examined independently in
// first-encountered order and a signal fires when any of three criteria is
// met: z-score, relative increase, or the small-sample rescue for reactions
// with a near-zero baseline that suddenly produce several events.
//
// The input is a pure value; DetectSpikes never mutates it and holds no
// state between calls.
func DetectSpikes(counts []WeeklyCount, opts Options) []Signal {
	opts = opts.withDefaults()
	if len(counts) == 0 {
		return nil
	}
	if distinctWeeks(counts) < 2 {
		return volumeOnlySignals(counts)
	}

	groups := make(map[string][]WeeklyCount)
	var order []string
	for _, c := range counts {
		if _, seen := groups[c.Reaction]; !seen {
			order = append(order, c.Reaction)
		}
		groups[c.Reaction] = append(groups[c.Reaction], c)
	}

	var out []Signal
	for _, reaction := range order {
		grp := groups[reaction]
		sort.Slice(grp, func(i, j int) bool { return grp[i].Week.Before(grp[j].Week) })
		if len(grp) < opts.MinWeeks {
			continue
		}
		baseline := grp[:len(grp)-1]
		if len(baseline) == 0 {
			continue
		}
		mean := meanCount(baseline)
		std := stddevCount(baseline, mean)
		if std == 0 {
			std = minStd
		}
		current := grp[len(grp)-1].Count
		z := (float64(current) - mean) / std

		var relative float64
		if mean == 0 {
			relative = math.Inf(1)
		} else {
			relative = float64(current) / (mean + meanEpsilon)
		}

		smallSample := mean < smallSampleMean && current >= smallSampleCount
		if z < opts.ZThreshold && relative < opts.RelativeThreshold && !smallSample {
			continue
		}

		var reasons []string
		if z >= opts.ZThreshold {
			reasons = append(reasons, ReasonZScore)
		}
		if relative >= opts.RelativeThreshold {
			reasons = append(reasons, ReasonRelative)
		}
		if smallSample && len(reasons) == 0 {
			reasons = append(reasons, ReasonVolumeOnly)
		}

		zv, rv := z, relative
		out = append(out, Signal{
			Reaction:     reaction,
			CurrentCount: current,
			BaselineMean: mean,
			ZScore:       &zv,
			Relative:     &rv,
			Week:         grp[len(grp)-1].Week.Format(weekLayout),
			Reason:       strings.Join(reasons, "+"),
		})
	}
	return out
}

// volumeOnlySignals is the sparse-data path: no baseline statistics are
// possible, so reactions are surfaced on total count alone.
func volumeOnlySignals(counts []WeeklyCount) []Signal {
	totals := make(map[string]int)
	var order []string
	var lastWeek time.Time
	for _, c := range counts {
		if _, seen := totals[c.Reaction]; !seen {
			order = append(order, c.Reaction)
		}
		totals[c.Reaction] += c.Count
		if c.Week.After(lastWeek) {
			lastWeek = c.Week
		}
	}
	sort.SliceStable(order, func(i, j int) bool { return totals[order[i]] > totals[order[j]] })

	var out []Signal
	for _, reaction := range order {
		total := totals[reaction]
		if total < volumeThreshold {
			continue
		}
		out = append(out, Signal{
			Reaction:     reaction,
			CurrentCount: total,
			BaselineMean: 0.0,
			Week:         lastWeek.Format(weekLayout),
			Reason:       ReasonVolumeOnly,
		})
	}
	return out
}

func distinctWeeks(counts []WeeklyCount) int {
	weeks := make(map[time.Time]struct{})
	for _, c := range counts {
		weeks[c.Week] = struct{}{}
	}
	return len(weeks)
}

func meanCount(counts []WeeklyCount) float64 {
	var sum float64
	for _, c := range counts {
		sum += float64(c.Count)
	}
	return sum / float64(len(counts))
}

// stddevCount is the population standard deviation (divisor N, not N-1).
func stddevCount(counts []WeeklyCount, mean float64) float64 {
	var sum float64
	for _, c := range counts {
		d := float64(c.Count) - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(counts)))
}
