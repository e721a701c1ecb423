package plan

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hannajonsd/lockmender/advisory"
	"github.com/hannajonsd/lockmender/scan"
	"github.com/hannajonsd/lockmender/semver"
)

func TestVerifyValidPlan(t *testing.T) {
	g := buildGraph(t, nil, map[string]string{"imgproc": "6.6.1"})
	advisories := []advisory.Advisory{
		{ID: "GHSA-img", Package: "imgproc", Severity: advisory.SeverityHigh, Affected: "6.6.1", Patched: ">=6.5.4 <7.0.0"},
	}
	matcher := scan.New(advisory.NewStatic(advisories), scan.Options{})

	findings := match(t, g, advisories)
	p := NewPlanner(Options{}).Plan(g, findings)
	require.True(t, p.FullyResolved())

	verdict, err := NewVerifier(matcher).Verify(context.Background(), g, p)
	require.NoError(t, err)
	assert.True(t, verdict.Valid)
	assert.Empty(t, verdict.Regressed)

	// Verifying an already-valid plan again yields Valid again.
	verdict, err = NewVerifier(matcher).Verify(context.Background(), g, p)
	require.NoError(t, err)
	assert.True(t, verdict.Valid)

	// The original graph was never touched.
	assert.Equal(t, "6.6.1", g.NodesByName("imgproc")[0].Pkg.Version.String())
}

func TestVerifyUnresolvedSetMatches(t *testing.T) {
	// A plan with only unresolved findings verifies cleanly: the findings
	// are still there, exactly as recorded.
	g := buildGraph(t, []directDep{{"toolY", "^4.0.0", "4.15.2"}}, nil)
	advisories := []advisory.Advisory{
		{ID: "GHSA-tool", Package: "toolY", Severity: advisory.SeverityCritical, Affected: "<=5.2.0", Patched: ">=5.2.3"},
	}
	matcher := scan.New(advisory.NewStatic(advisories), scan.Options{})

	p := NewPlanner(Options{}).Plan(g, match(t, g, advisories))
	require.Len(t, p.Unresolved, 1)

	verdict, err := NewVerifier(matcher).Verify(context.Background(), g, p)
	require.NoError(t, err)
	assert.True(t, verdict.Valid)
}

func TestVerifyDetectsRegression(t *testing.T) {
	// Inconsistent advisory data: the "patched" floor 6.5.4 is itself
	// inside the affected range, so the override's representative is still
	// vulnerable. The planner's range check passes; only the verifier
	// catches it.
	g := buildGraph(t, nil, map[string]string{"imgproc": "6.6.1"})
	advisories := []advisory.Advisory{
		{ID: "GHSA-img", Package: "imgproc", Severity: advisory.SeverityHigh, Affected: "<6.7.0", Patched: ">=6.5.4"},
	}
	matcher := scan.New(advisory.NewStatic(advisories), scan.Options{})

	p := NewPlanner(Options{}).Plan(g, match(t, g, advisories))
	require.Len(t, p.Overrides, 1)
	require.True(t, p.FullyResolved())

	verdict, err := NewVerifier(matcher).Verify(context.Background(), g, p)
	require.NoError(t, err)
	assert.False(t, verdict.Valid)
	require.Len(t, verdict.Regressed, 1)
	assert.Equal(t, "GHSA-img", verdict.Regressed[0].Advisory.ID)
}

func TestVerifyDetectsVanishedExpectation(t *testing.T) {
	// A hand-built plan that claims a finding is unresolvable while also
	// carrying an override that fixes it: the expected finding vanishes,
	// which invalidates the plan's accounting.
	g := buildGraph(t, nil, map[string]string{"imgproc": "6.6.1"})
	advisories := []advisory.Advisory{
		{ID: "GHSA-img", Package: "imgproc", Severity: advisory.SeverityHigh, Affected: "6.6.1", Patched: ">=6.5.4 <7.0.0"},
	}
	matcher := scan.New(advisory.NewStatic(advisories), scan.Options{})
	findings := match(t, g, advisories)
	require.Len(t, findings, 1)

	p := &Plan{
		Overrides: []Override{{
			Name:    "imgproc",
			Range:   semver.MustParseRange("^6.5.4"),
			Version: semver.MustParseVersion("6.5.4"),
		}},
		Unresolved: []Unresolved{{Finding: findings[0], Reason: ReasonConstraintConflict}},
	}

	verdict, err := NewVerifier(matcher).Verify(context.Background(), g, p)
	require.NoError(t, err)
	assert.False(t, verdict.Valid)
	require.Len(t, verdict.Vanished, 1)
	assert.Equal(t, "GHSA-img", verdict.Vanished[0].Advisory.ID)
}

func TestVerifyPositionalPlan(t *testing.T) {
	// Direct-only occurrence with positional overrides enabled still ends
	// up unresolved (the manifest pins it) and verifies as such.
	g := buildGraph(t, []directDep{{"toolY", "^4.0.0", "4.15.2"}}, nil)
	advisories := []advisory.Advisory{
		{ID: "GHSA-tool", Package: "toolY", Severity: advisory.SeverityCritical, Affected: "<=5.2.0", Patched: ">=5.2.3"},
	}
	matcher := scan.New(advisory.NewStatic(advisories), scan.Options{})

	p := NewPlanner(Options{AllowPositionalOverrides: true}).Plan(g, match(t, g, advisories))
	verdict, err := NewVerifier(matcher).Verify(context.Background(), g, p)
	require.NoError(t, err)
	assert.True(t, verdict.Valid)
}
