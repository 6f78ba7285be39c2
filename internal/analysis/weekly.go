package analysis

import (
	"strings"
	"time"
)

// UnknownReaction is the sentinel label for reports whose reaction field
// yields no usable tokens.
const UnknownReaction = "UNKNOWN"

// Receive date layouts accepted from upstream sources. OpenFDA sends the
// compact form; the dashed and slashed forms appear in older exports.
var dateLayouts = []string{"20060102", "2006-01-02", "2006/01/02"}

func parseReceiveDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// weekStart returns the Monday of the calendar week containing t, at
// midnight UTC.
func weekStart(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	d := t.AddDate(0, 0, -offset)
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
}

func splitReactions(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ";") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return []string{UnknownReaction}
	}
	return out
}

type weekReaction struct {
	week     time.Time
	reaction string
}

// WeeklyCounts buckets reaction occurrences into Monday-start weeks and
// counts them per (week, reaction) pair. A report with an unparseable or
// missing receive date contributes to no bucket. A report listing multiple
// semicolon-joined reactions contributes one occurrence per label. Entries
// keep first-encountered order; callers needing chronology sort themselves.
func WeeklyCounts(reports []Report) []WeeklyCount {
	var entries []WeeklyCount
	index := make(map[weekReaction]int)
	for _, rep := range reports {
		date, ok := parseReceiveDate(rep.ReceiveDate)
		if !ok {
			continue
		}
		week := weekStart(date)
		for _, reaction := range splitReactions(rep.Reactions) {
			key := weekReaction{week, reaction}
			if i, seen := index[key]; seen {
				entries[i].Count++
				continue
			}
			index[key] = len(entries)
			entries = append(entries, WeeklyCount{Week: week, Reaction: reaction, Count: 1})
		}
	}
	return entries
}
