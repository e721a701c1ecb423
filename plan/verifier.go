package plan

import (
	"context"
	"sort"

	"github.com/hannajonsd/lockmender/graph"
	"github.com/hannajonsd/lockmender/scan"
)

// Verification is the verifier's verdict on a plan. Valid means the
// hypothetical graph's findings are exactly the plan's recorded unresolved
// set. Regressed lists findings still present contrary to expectation:
// either newly introduced by an override or supposedly addressed yet still
// matching. Vanished lists findings the plan expected to remain but that
// disappeared; they also invalidate the plan, since the planner's
// accounting was wrong either way.
type Verification struct {
	Valid     bool
	Regressed []scan.Finding
	Vanished  []scan.Finding
}

// Verifier proves a plan sound by applying it to a copy of the graph and
// re-running the matcher. It is the authoritative final check: the
// planner's range intersection is the first defense, the verifier the last.
type Verifier struct {
	matcher *scan.Matcher
}

func NewVerifier(matcher *scan.Matcher) *Verifier {
	return &Verifier{matcher: matcher}
}

// Verify builds the hypothetical graph by substituting each override's
// representative version, re-matches it, and compares the outcome with the
// plan's unresolved set. The original graph is never touched, so verifying
// twice yields the same verdict.
func (v *Verifier) Verify(ctx context.Context, g *graph.Graph, p *Plan) (*Verification, error) {
	subs := make([]graph.Substitution, 0, len(p.Overrides))
	for _, o := range p.Overrides {
		subs = append(subs, graph.Substitution{Name: o.Name, Version: o.Version, Parent: o.Parent})
	}
	hypothetical := g.Substitute(subs)

	result, err := v.matcher.Match(ctx, hypothetical)
	if err != nil {
		return nil, err
	}

	expected := make(map[string]scan.Finding, len(p.Unresolved))
	for _, u := range p.Unresolved {
		expected[u.Finding.Key()] = u.Finding
	}

	verdict := &Verification{}
	for _, f := range result.Findings {
		if _, ok := expected[f.Key()]; ok {
			delete(expected, f.Key())
			continue
		}
		verdict.Regressed = append(verdict.Regressed, f)
	}
	for _, f := range expected {
		verdict.Vanished = append(verdict.Vanished, f)
	}
	sort.Slice(verdict.Vanished, func(i, j int) bool {
		return verdict.Vanished[i].Key() < verdict.Vanished[j].Key()
	})

	verdict.Valid = len(verdict.Regressed) == 0 && len(verdict.Vanished) == 0
	return verdict, nil
}
