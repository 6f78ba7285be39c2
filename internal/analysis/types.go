package analysis

import (
	"encoding/json"
	"math"
	"time"
)

// Report is one adverse event report as loaded from the store. Reactions is
// the raw semicolon-joined label string as it arrives from OpenFDA.
type Report struct {
	SafetyReportID string
	ReceiveDate    string
	Reactions      string
}

// WeeklyCount is the occurrence count for one reaction in one calendar week.
// Week is the Monday starting the week, at midnight UTC.
type WeeklyCount struct {
	Week     time.Time
	Reaction string
	Count    int
}

// Options controls detection sensitivity. The zero value selects the
// defaults (MinWeeks 2, ZThreshold 2.0, RelativeThreshold 1.5).
type Options struct {
	MinWeeks          int
	ZThreshold        float64
	RelativeThreshold float64
}

// DefaultOptions returns the standard detection thresholds.
func DefaultOptions() Options {
	return Options{MinWeeks: 2, ZThreshold: 2.0, RelativeThreshold: 1.5}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.MinWeeks <= 0 {
		o.MinWeeks = def.MinWeeks
	}
	if o.ZThreshold == 0 {
		o.ZThreshold = def.ZThreshold
	}
	if o.RelativeThreshold == 0 {
		o.RelativeThreshold = def.RelativeThreshold
	}
	return o
}

// Reason labels for why a signal fired.
const (
	ReasonZScore     = "zscore"
	ReasonRelative   = "relative"
	ReasonVolumeOnly = "volume_only"
)

// Signal is one reaction whose recent count is anomalous relative to its own
// history. ZScore and Relative are nil on the sparse-data path where no
// baseline could be computed.
type Signal struct {
	Reaction     string   `json:"reaction"`
	CurrentCount int      `json:"current_count"`
	BaselineMean float64  `json:"baseline_mean"`
	ZScore       *float64 `json:"zscore"`
	Relative     *float64 `json:"relative"`
	Week         string   `json:"week"`
	Reason       string   `json:"reason,omitempty"`
}

// MarshalJSON renders a non-finite Relative as null. A zero baseline mean
// makes Relative +Inf inside the engine, which encoding/json refuses to emit;
// Reason still carries "relative" so consumers can tell the two apart.
func (s Signal) MarshalJSON() ([]byte, error) {
	type alias Signal
	a := alias(s)
	if a.Relative != nil && (math.IsInf(*a.Relative, 0) || math.IsNaN(*a.Relative)) {
		a.Relative = nil
	}
	return json.Marshal(a)
}
