// Package validate holds input checks shared by the HTTP API and the CLI.
// Everything user-supplied passes through here before reaching the store or
// the OpenFDA client.
package validate

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	minDrugNameLen = 2
	maxDrugNameLen = 100

	minLimit     = 1
	maxLimit     = 1000
	defaultLimit = 100
)

var (
	drugNamePattern = regexp.MustCompile(`^[a-zA-Z0-9\s\-()]+$`)
	unsafeFilename  = regexp.MustCompile(`[^a-zA-Z0-9_\-]`)
)

// DrugName trims and validates a drug name. Names are limited to a
// conservative character set because they end up inside OpenFDA query
// strings and report filenames.
func DrugName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if len(name) < minDrugNameLen {
		return "", fmt.Errorf("drug name must be at least %d characters", minDrugNameLen)
	}
	if len(name) > maxDrugNameLen {
		return "", fmt.Errorf("drug name must be at most %d characters", maxDrugNameLen)
	}
	if !drugNamePattern.MatchString(name) {
		return "", fmt.Errorf("drug name contains invalid characters: %q", name)
	}
	return name, nil
}

// Limit clamps a fetch limit into the accepted range. Zero means "use the
// default".
func Limit(limit int) (int, error) {
	if limit == 0 {
		return defaultLimit, nil
	}
	if limit < minLimit || limit > maxLimit {
		return 0, fmt.Errorf("limit must be between %d and %d, got %d", minLimit, maxLimit, limit)
	}
	return limit, nil
}

// Filename reduces a string to a safe report filename component. Spaces
// become underscores, everything outside [a-zA-Z0-9_-] is dropped.
func Filename(s string) string {
	s = strings.ReplaceAll(strings.TrimSpace(s), " ", "_")
	s = unsafeFilename.ReplaceAllString(s, "")
	if s == "" {
		return "unnamed"
	}
	return s
}
