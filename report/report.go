// Package report renders the outcome of a run: a machine-readable JSON
// document and a human-readable summary mirroring it. Every finding's
// disposition is enumerated; a finding the report is silent about is a
// defect.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hannajonsd/lockmender/plan"
	"github.com/hannajonsd/lockmender/scan"
	"github.com/hannajonsd/lockmender/usage"
)

// Outcome classifies the run for the exit status.
type Outcome int

const (
	// AllResolved: every finding has an override and the plan verified.
	AllResolved Outcome = iota
	// PartiallyResolved: unresolved findings remain, or verification failed.
	PartiallyResolved
)

// Disposition is a finding's fate in the plan.
type Disposition string

const (
	DispositionResolved      Disposition = "resolved-by-override"
	DispositionConflict      Disposition = "unresolved-conflict"
	DispositionNoUpstreamFix Disposition = "unresolved-no-fix"
)

// Finding is one finding's reportable state.
type Finding struct {
	Package     string      `json:"package"`
	Version     string      `json:"version"`
	Path        string      `json:"path"`
	Advisory    string      `json:"advisory"`
	Severity    string      `json:"severity"`
	Summary     string      `json:"summary,omitempty"`
	Disposition Disposition `json:"disposition"`
	Override    string      `json:"override,omitempty"`
	Conflict    string      `json:"conflict,omitempty"`
	ImportedBy  []string    `json:"imported_by,omitempty"`
}

// Override is one emitted override.
type Override struct {
	Package string `json:"package"`
	Range   string `json:"range"`
	Version string `json:"version"`
	Parent  string `json:"parent,omitempty"`
}

// Verification mirrors the verifier's verdict.
type Verification struct {
	Status    string   `json:"status"` // "valid" or "regressed"
	Regressed []string `json:"regressed,omitempty"`
	Vanished  []string `json:"vanished,omitempty"`
}

// Document is the full machine-readable report.
type Document struct {
	Packages          int          `json:"packages"`
	Findings          []Finding    `json:"findings"`
	Overrides         []Override   `json:"overrides"`
	SkippedAdvisories []string     `json:"skipped_advisories,omitempty"`
	FailedLookups     []string     `json:"failed_lookups,omitempty"`
	Verification      Verification `json:"verification"`
}

// Build assembles the document from a run's pieces. The usage report may be
// nil when no source scan was requested.
func Build(packages int, result *scan.Result, p *plan.Plan, verdict *plan.Verification, used *usage.Report) *Document {
	doc := &Document{Packages: packages}

	overrideOf := make(map[string]plan.Override)
	for _, r := range p.Resolved {
		overrideOf[r.Finding.Key()] = p.Overrides[r.Override]
	}
	unresolvedOf := make(map[string]plan.Unresolved)
	for _, u := range p.Unresolved {
		unresolvedOf[u.Finding.Key()] = u
	}

	for _, f := range result.Findings {
		entry := Finding{
			Package:  f.Node.Pkg.Name,
			Version:  f.Node.Pkg.Version.String(),
			Path:     f.Node.Path,
			Advisory: f.Advisory.ID,
			Severity: f.Advisory.Severity.String(),
			Summary:  f.Advisory.Summary,
		}
		if used != nil {
			entry.ImportedBy = used.ImportedBy(f.Node.Pkg.Name)
		}
		if o, ok := overrideOf[f.Key()]; ok {
			entry.Disposition = DispositionResolved
			entry.Override = o.String()
		} else if u, ok := unresolvedOf[f.Key()]; ok {
			switch u.Reason {
			case plan.ReasonNoUpstreamFix:
				entry.Disposition = DispositionNoUpstreamFix
			default:
				entry.Disposition = DispositionConflict
				entry.Conflict = u.Conflict
			}
		}
		doc.Findings = append(doc.Findings, entry)
	}

	for _, o := range p.Overrides {
		doc.Overrides = append(doc.Overrides, Override{
			Package: o.Name,
			Range:   o.Range.String(),
			Version: o.Version.String(),
			Parent:  o.Parent,
		})
	}

	for _, skipped := range result.Skipped {
		doc.SkippedAdvisories = append(doc.SkippedAdvisories, skipped.AdvisoryID)
	}
	for _, failed := range result.Failed {
		doc.FailedLookups = append(doc.FailedLookups, failed.Package)
	}

	doc.Verification.Status = "valid"
	if verdict != nil && !verdict.Valid {
		doc.Verification.Status = "regressed"
		for _, f := range verdict.Regressed {
			doc.Verification.Regressed = append(doc.Verification.Regressed, f.Key())
		}
		for _, f := range verdict.Vanished {
			doc.Verification.Vanished = append(doc.Verification.Vanished, f.Key())
		}
	}

	return doc
}

// Outcome classifies the document for the exit status.
func (d *Document) Outcome() Outcome {
	if d.Verification.Status != "valid" {
		return PartiallyResolved
	}
	for _, f := range d.Findings {
		if f.Disposition != DispositionResolved {
			return PartiallyResolved
		}
	}
	return AllResolved
}

// WriteJSON emits the machine-readable report.
func (d *Document) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(d)
}

// WriteText emits the human-readable summary mirroring the JSON document.
func (d *Document) WriteText(w io.Writer) error {
	if len(d.Findings) == 0 {
		fmt.Fprintln(w, "No known vulnerabilities in the dependency graph.")
		fmt.Fprintf(w, "Packages checked: %d\n", d.Packages)
		return nil
	}

	fmt.Fprintf(w, "Found %d finding(s):\n\n", len(d.Findings))
	for _, f := range d.Findings {
		fmt.Fprintf(w, "  %s@%s (%s)\n", f.Package, f.Version, f.Path)
		fmt.Fprintf(w, "    %s [%s]", f.Advisory, f.Severity)
		if f.Summary != "" {
			fmt.Fprintf(w, " %s", f.Summary)
		}
		fmt.Fprintln(w)

		switch f.Disposition {
		case DispositionResolved:
			fmt.Fprintf(w, "    -> override %s\n", f.Override)
		case DispositionConflict:
			if f.Conflict != "" {
				fmt.Fprintf(w, "    -> unresolved: direct dependency %s forbids the patched range\n", f.Conflict)
			} else {
				fmt.Fprintf(w, "    -> unresolved: no single version satisfies every advisory\n")
			}
		case DispositionNoUpstreamFix:
			fmt.Fprintf(w, "    -> unresolved: no fixed version exists upstream\n")
		}
		if len(f.ImportedBy) > 0 {
			fmt.Fprintf(w, "    imported directly in %d source file(s)\n", len(f.ImportedBy))
		}
		fmt.Fprintln(w)
	}

	if len(d.Overrides) > 0 {
		fmt.Fprintln(w, "Overrides to apply:")
		for _, o := range d.Overrides {
			if o.Parent != "" {
				fmt.Fprintf(w, "  %s > %s: %q (resolves to %s)\n", o.Parent, o.Package, o.Range, o.Version)
			} else {
				fmt.Fprintf(w, "  %s: %q (resolves to %s)\n", o.Package, o.Range, o.Version)
			}
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, strings.Repeat("-", 60))
	fmt.Fprintln(w, "SUMMARY")
	fmt.Fprintf(w, "Packages checked: %d\n", d.Packages)
	fmt.Fprintf(w, "Findings: %d\n", len(d.Findings))
	fmt.Fprintf(w, "  - resolved by override: %d\n", d.count(DispositionResolved))
	fmt.Fprintf(w, "  - unresolved (constraint conflict): %d\n", d.count(DispositionConflict))
	fmt.Fprintf(w, "  - unresolved (no upstream fix): %d\n", d.count(DispositionNoUpstreamFix))
	if len(d.SkippedAdvisories) > 0 {
		fmt.Fprintf(w, "Advisories skipped as malformed: %d (%s)\n", len(d.SkippedAdvisories), strings.Join(d.SkippedAdvisories, ", "))
	}
	if len(d.FailedLookups) > 0 {
		fmt.Fprintf(w, "Lookups failed: %d (%s)\n", len(d.FailedLookups), strings.Join(d.FailedLookups, ", "))
	}
	fmt.Fprintf(w, "Verification: %s\n", d.Verification.Status)
	for _, key := range d.Verification.Regressed {
		fmt.Fprintf(w, "  regressed: %s\n", key)
	}
	for _, key := range d.Verification.Vanished {
		fmt.Fprintf(w, "  vanished: %s\n", key)
	}
	return nil
}

func (d *Document) count(disposition Disposition) int {
	n := 0
	for _, f := range d.Findings {
		if f.Disposition == disposition {
			n++
		}
	}
	return n
}
