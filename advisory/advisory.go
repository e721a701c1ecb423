// Package advisory defines the vulnerability advisory model and the sources
// that supply advisories per package name.
package advisory

import (
	"fmt"
	"strings"

	"github.com/hannajonsd/lockmender/semver"
)

// Severity orders advisories from low to critical.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityModerate Severity = "moderate"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityOrder = map[Severity]int{
	SeverityLow:      1,
	SeverityModerate: 2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// ParseSeverity converts a string to a Severity.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return SeverityLow, nil
	case "moderate", "medium":
		return SeverityModerate, nil
	case "high":
		return SeverityHigh, nil
	case "critical":
		return SeverityCritical, nil
	default:
		return "", fmt.Errorf("unknown severity %q", s)
	}
}

func (s Severity) String() string {
	return string(s)
}

// Order returns the numeric rank of the severity (higher = more severe).
func (s Severity) Order() int {
	return severityOrder[s]
}

// AtLeast reports whether s is at least as severe as floor.
func (s Severity) AtLeast(floor Severity) bool {
	return s.Order() >= floor.Order()
}

// Advisory is a published record of a known vulnerability in a package.
// Affected and Patched are npm-style range expressions; an empty Patched
// means no fixed version exists upstream.
type Advisory struct {
	ID       string   `json:"id"`
	Package  string   `json:"package"`
	Severity Severity `json:"severity"`
	Affected string   `json:"affected"`
	Patched  string   `json:"patched,omitempty"`
	Summary  string   `json:"summary,omitempty"`
}

// InvalidDataError reports a syntactically malformed advisory. The matcher
// skips such advisories, logs them, and keeps going.
type InvalidDataError struct {
	AdvisoryID string
	Package    string
	Field      string
	Raw        string
	Err        error
}

func (e *InvalidDataError) Error() string {
	return fmt.Sprintf("advisory %s for %s: invalid %s range %q: %v", e.AdvisoryID, e.Package, e.Field, e.Raw, e.Err)
}

func (e *InvalidDataError) Unwrap() error {
	return e.Err
}

// AffectedRange parses the affected range expression.
func (a Advisory) AffectedRange() (semver.Range, error) {
	r, err := semver.ParseRange(a.Affected)
	if err != nil {
		return semver.Range{}, &InvalidDataError{AdvisoryID: a.ID, Package: a.Package, Field: "affected", Raw: a.Affected, Err: err}
	}
	return r, nil
}

// PatchedRange parses the patched range expression. An absent expression is
// the empty range: no upstream fix.
func (a Advisory) PatchedRange() (semver.Range, error) {
	if strings.TrimSpace(a.Patched) == "" {
		return semver.EmptyRange(), nil
	}
	r, err := semver.ParseRange(a.Patched)
	if err != nil {
		return semver.Range{}, &InvalidDataError{AdvisoryID: a.ID, Package: a.Package, Field: "patched", Raw: a.Patched, Err: err}
	}
	return r, nil
}
