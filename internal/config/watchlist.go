package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Watchlist is the YAML file of drugs to analyze automatically, with
// optional per-file overrides for fetch limit and thresholds.
type Watchlist struct {
	Drugs      []string `yaml:"drugs"`
	FetchLimit int      `yaml:"fetch_limit"`

	MinWeeks          *int     `yaml:"min_weeks"`
	ZThreshold        *float64 `yaml:"z_threshold"`
	RelativeThreshold *float64 `yaml:"relative_threshold"`
}

// LoadWatchlist parses the watchlist file. A missing path is not an error;
// it returns an empty list so the watcher can stay idle.
func LoadWatchlist(path string) (Watchlist, error) {
	var wl Watchlist
	if path == "" {
		return wl, nil
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		return wl, fmt.Errorf("read watchlist: %w", err)
	}
	if err := yaml.Unmarshal(buf, &wl); err != nil {
		return wl, fmt.Errorf("parse watchlist: %w", err)
	}
	return wl, nil
}

// ApplyOverrides folds watchlist threshold overrides into a config copy.
func (c Config) ApplyOverrides(wl Watchlist) Config {
	if wl.MinWeeks != nil {
		c.Analysis.MinWeeks = *wl.MinWeeks
	}
	if wl.ZThreshold != nil {
		c.Analysis.ZThreshold = *wl.ZThreshold
	}
	if wl.RelativeThreshold != nil {
		c.Analysis.RelativeThreshold = *wl.RelativeThreshold
	}
	return c
}
