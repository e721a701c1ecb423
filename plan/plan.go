// Package plan computes and verifies remediation plans: the minimal set of
// version overrides that eliminates the matcher's findings without breaking
// any manifest-declared range.
package plan

import (
	"fmt"

	"github.com/hannajonsd/lockmender/scan"
	"github.com/hannajonsd/lockmender/semver"
)

// Reason classifies why a finding could not be resolved. Neither is an
// error: an empty fix space is a reportable outcome of a successful run.
type Reason string

const (
	// ReasonConstraintConflict: a manifest-declared range forbids every
	// version that would resolve the advisory.
	ReasonConstraintConflict Reason = "constraint-conflict"

	// ReasonNoUpstreamFix: the advisory has no patched version at all.
	ReasonNoUpstreamFix Reason = "no-upstream-fix"
)

// Override is a forced resolution instruction: pin a package to the given
// range, resolving to Version, the minimal version in the range. With
// Parent set it is positional, applying only to occurrences under
// dependents of that package.
type Override struct {
	Name    string
	Range   semver.Range
	Version semver.Version
	Parent  string
}

func (o Override) String() string {
	if o.Parent != "" {
		return fmt.Sprintf("%s > %s@%s", o.Parent, o.Name, o.Range)
	}
	return fmt.Sprintf("%s@%s", o.Name, o.Range)
}

// Resolution maps one finding to the override that resolves it.
type Resolution struct {
	Finding  scan.Finding
	Override int // index into Plan.Overrides
}

// Unresolved is a finding no non-breaking override exists for.
type Unresolved struct {
	Finding scan.Finding
	Reason  Reason

	// Conflict names the direct dependency whose declared range blocks the
	// fix, for ReasonConstraintConflict.
	Conflict string
}

// Plan is the planner's output: overrides in stable order (groups
// alphabetical by package name), each addressed finding mapped to its
// override, and the findings left unresolved. Plans are immutable once
// produced; the verifier only reads them.
type Plan struct {
	Overrides  []Override
	Resolved   []Resolution
	Unresolved []Unresolved
}

// FullyResolved reports whether every finding was addressed by an override.
func (p *Plan) FullyResolved() bool {
	return len(p.Unresolved) == 0
}
