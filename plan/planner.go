package plan

import (
	"sort"

	"go.uber.org/zap"

	"github.com/hannajonsd/lockmender/graph"
	"github.com/hannajonsd/lockmender/scan"
	"github.com/hannajonsd/lockmender/semver"
)

// Options configures a Planner.
type Options struct {
	Logger *zap.Logger

	// AllowPositionalOverrides permits fixes scoped to one parent when a
	// package-wide override would break a manifest-declared range.
	AllowPositionalOverrides bool
}

// Planner turns findings into a Plan. It never mutates the graph and never
// fails on an empty fix space; unresolvable findings are recorded with a
// reason instead.
type Planner struct {
	opts Options
}

func NewPlanner(opts Options) *Planner {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Planner{opts: opts}
}

// Plan groups findings by package name (alphabetical), intersects each
// group's patched ranges into a single fix, checks the fix against the
// manifest-declared direct range, and emits one override per group where
// that is satisfiable. The representative version of every override is the
// minimal version in its range: the smallest behavioral change that
// resolves every advisory in the group.
func (p *Planner) Plan(g *graph.Graph, findings []scan.Finding) *Plan {
	out := &Plan{}

	groups := make(map[string][]scan.Finding)
	for _, f := range findings {
		groups[f.Node.Pkg.Name] = append(groups[f.Node.Pkg.Name], f)
	}
	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		p.planGroup(g, out, name, groups[name])
	}
	return out
}

func (p *Planner) planGroup(g *graph.Graph, out *Plan, name string, group []scan.Finding) {
	// Findings whose advisory has no patched version can never be fixed by
	// an override; everything else participates in the group fix.
	var fixable []scan.Finding
	fix := semver.AnyRange()
	seen := make(map[string]bool)
	for _, f := range group {
		if !f.Patched.IsSatisfiable() {
			out.Unresolved = append(out.Unresolved, Unresolved{Finding: f, Reason: ReasonNoUpstreamFix})
			continue
		}
		fixable = append(fixable, f)
		if !seen[f.Advisory.ID] {
			seen[f.Advisory.ID] = true
			fix = fix.Intersect(f.Patched)
		}
	}
	if len(fixable) == 0 {
		return
	}

	if !fix.IsSatisfiable() {
		// The advisories' patched ranges are mutually exclusive; no single
		// version resolves them all.
		p.opts.Logger.Warn("patched ranges are mutually exclusive",
			zap.String("package", name))
		for _, f := range fixable {
			out.Unresolved = append(out.Unresolved, Unresolved{Finding: f, Reason: ReasonConstraintConflict})
		}
		return
	}

	direct, constrained := g.DirectRange(name)
	effective := fix
	if constrained {
		effective = fix.Intersect(direct)
	}

	if effective.IsSatisfiable() {
		version, _ := effective.MinVersion()
		idx := len(out.Overrides)
		out.Overrides = append(out.Overrides, Override{Name: name, Range: effective, Version: version})
		for _, f := range fixable {
			out.Resolved = append(out.Resolved, Resolution{Finding: f, Override: idx})
		}
		return
	}

	// The manifest range forbids every patched version. Occurrences that are
	// not the direct resolution can still get a positional fix.
	directNode := directTarget(g, name)
	positional := make(map[string]int)
	for _, f := range fixable {
		if p.opts.AllowPositionalOverrides && f.Node != directNode {
			parent := firstParentName(f.Node)
			if parent != "" {
				idx, ok := positional[parent]
				if !ok {
					idx = len(out.Overrides)
					version, _ := fix.MinVersion()
					out.Overrides = append(out.Overrides, Override{Name: name, Range: fix, Version: version, Parent: parent})
					positional[parent] = idx
				}
				out.Resolved = append(out.Resolved, Resolution{Finding: f, Override: idx})
				continue
			}
		}
		out.Unresolved = append(out.Unresolved, Unresolved{Finding: f, Reason: ReasonConstraintConflict, Conflict: name})
	}
}

// directTarget returns the node the root's edge for name resolves to, if
// name is a direct dependency.
func directTarget(g *graph.Graph, name string) *graph.Node {
	for _, e := range g.Root.Edges {
		if e.Name == name {
			return e.To
		}
	}
	return nil
}

func firstParentName(n *graph.Node) string {
	for _, d := range n.Dependents() {
		if !d.IsRoot() {
			return d.Pkg.Name
		}
	}
	return ""
}
