package scan

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hannajonsd/lockmender/advisory"
	"github.com/hannajonsd/lockmender/graph"
	"github.com/hannajonsd/lockmender/semver"
)

func testGraph(t *testing.T, versions map[string]string) *graph.Graph {
	t.Helper()

	root := &graph.Node{Pkg: graph.Package{Name: "app"}}
	var nodes []*graph.Node
	nodes = append(nodes, root)
	for name, version := range versions {
		n := &graph.Node{
			Path: "node_modules/" + name,
			Pkg:  graph.Package{Name: name, Version: semver.MustParseVersion(version)},
		}
		root.Edges = append(root.Edges, graph.Edge{Name: name, Range: semver.AnyRange(), To: n})
		nodes = append(nodes, n)
	}
	// Deterministic root edge order, as the loader produces.
	for i := 1; i < len(root.Edges); i++ {
		for j := i; j > 0 && root.Edges[j].Name < root.Edges[j-1].Name; j-- {
			root.Edges[j], root.Edges[j-1] = root.Edges[j-1], root.Edges[j]
		}
	}
	return graph.New(root, nodes)
}

func TestMatchVersionOutsideAffectedRange(t *testing.T) {
	// Resolved 6.6.1 is not in the affected range, so no finding.
	g := testGraph(t, map[string]string{"libX": "6.6.1"})
	src := advisory.NewStatic([]advisory.Advisory{
		{ID: "GHSA-a", Package: "libX", Severity: advisory.SeverityHigh, Affected: "<6.5.4", Patched: ">=6.5.4"},
	})

	result, err := New(src, Options{}).Match(context.Background(), g)
	require.NoError(t, err)
	assert.Empty(t, result.Findings)
}

func TestMatchEmitsDeterministicOrder(t *testing.T) {
	g := testGraph(t, map[string]string{"aaa": "1.0.0", "zzz": "1.0.0"})
	src := advisory.NewStatic([]advisory.Advisory{
		{ID: "GHSA-low", Package: "zzz", Severity: advisory.SeverityLow, Affected: "<2.0.0", Patched: ">=2.0.0"},
		{ID: "GHSA-crit", Package: "zzz", Severity: advisory.SeverityCritical, Affected: "<2.0.0", Patched: ">=2.0.0"},
		{ID: "GHSA-mid", Package: "aaa", Severity: advisory.SeverityModerate, Affected: "*"},
	})

	m := New(src, Options{Concurrency: 2})
	for run := 0; run < 3; run++ {
		result, err := m.Match(context.Background(), g)
		require.NoError(t, err)

		var keys []string
		for _, f := range result.Findings {
			keys = append(keys, f.Node.Pkg.Name+"/"+f.Advisory.ID)
		}
		// Node order first, severity descending within a node.
		assert.Equal(t, []string{"aaa/GHSA-mid", "zzz/GHSA-crit", "zzz/GHSA-low"}, keys)
	}
}

func TestMatchSeverityFloor(t *testing.T) {
	g := testGraph(t, map[string]string{"pkg": "1.0.0"})
	src := advisory.NewStatic([]advisory.Advisory{
		{ID: "GHSA-low", Package: "pkg", Severity: advisory.SeverityLow, Affected: "*"},
		{ID: "GHSA-high", Package: "pkg", Severity: advisory.SeverityHigh, Affected: "*"},
	})

	result, err := New(src, Options{SeverityFloor: advisory.SeverityHigh}).Match(context.Background(), g)
	require.NoError(t, err)
	require.Len(t, result.Findings, 1)
	assert.Equal(t, "GHSA-high", result.Findings[0].Advisory.ID)
}

func TestMatchSkipsMalformedAdvisory(t *testing.T) {
	g := testGraph(t, map[string]string{"pkg": "1.0.0"})
	src := advisory.NewStatic([]advisory.Advisory{
		{ID: "GHSA-bad", Package: "pkg", Severity: advisory.SeverityHigh, Affected: "%% nonsense"},
		{ID: "GHSA-ok", Package: "pkg", Severity: advisory.SeverityHigh, Affected: "*", Patched: ">=2.0.0"},
	})

	result, err := New(src, Options{}).Match(context.Background(), g)
	require.NoError(t, err)
	require.Len(t, result.Findings, 1)
	assert.Equal(t, "GHSA-ok", result.Findings[0].Advisory.ID)
	require.Len(t, result.Skipped, 1)
	assert.Equal(t, "GHSA-bad", result.Skipped[0].AdvisoryID)
}

type failingSource struct {
	fail map[string]bool
}

func (s *failingSource) Lookup(_ context.Context, name string) ([]advisory.Advisory, error) {
	if s.fail[name] {
		return nil, errors.New("connection reset")
	}
	return []advisory.Advisory{{ID: "GHSA-" + name, Package: name, Severity: advisory.SeverityHigh, Affected: "*"}}, nil
}

func TestMatchLookupFailureAborts(t *testing.T) {
	g := testGraph(t, map[string]string{"good": "1.0.0", "flaky": "1.0.0"})
	src := &failingSource{fail: map[string]bool{"flaky": true}}

	_, err := New(src, Options{}).Match(context.Background(), g)
	require.Error(t, err)
	var lerr *LookupError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, "flaky", lerr.Package)
}

func TestMatchPartialModeContinues(t *testing.T) {
	g := testGraph(t, map[string]string{"good": "1.0.0", "flaky": "1.0.0"})
	src := &failingSource{fail: map[string]bool{"flaky": true}}

	result, err := New(src, Options{Partial: true}).Match(context.Background(), g)
	require.NoError(t, err)
	require.Len(t, result.Findings, 1)
	assert.Equal(t, "good", result.Findings[0].Node.Pkg.Name)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "flaky", result.Failed[0].Package)
}

func TestMatchCancellation(t *testing.T) {
	g := testGraph(t, map[string]string{"pkg": "1.0.0"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	blocked := sourceFunc(func(ctx context.Context, name string) ([]advisory.Advisory, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	_, err := New(blocked, Options{}).Match(ctx, g)
	require.Error(t, err)
}

type sourceFunc func(ctx context.Context, name string) ([]advisory.Advisory, error)

func (f sourceFunc) Lookup(ctx context.Context, name string) ([]advisory.Advisory, error) {
	return f(ctx, name)
}

func TestMatchSharedOccurrenceQueriedOnce(t *testing.T) {
	// Two occurrences of the same package: one lookup, two findings.
	dup1 := &graph.Node{Path: "node_modules/qs", Pkg: graph.Package{Name: "qs", Version: semver.MustParseVersion("5.0.0")}}
	dup2 := &graph.Node{Path: "node_modules/a/node_modules/qs", Pkg: graph.Package{Name: "qs", Version: semver.MustParseVersion("5.1.0")}}
	a := &graph.Node{
		Path:  "node_modules/a",
		Pkg:   graph.Package{Name: "a", Version: semver.MustParseVersion("1.0.0")},
		Edges: []graph.Edge{{Name: "qs", Range: semver.MustParseRange("^5.1.0"), To: dup2}},
	}
	root := &graph.Node{Pkg: graph.Package{Name: "app"}, Edges: []graph.Edge{
		{Name: "a", Range: semver.AnyRange(), To: a},
		{Name: "qs", Range: semver.AnyRange(), To: dup1},
	}}
	g := graph.New(root, []*graph.Node{root, a, dup1, dup2})

	calls := 0
	src := sourceFunc(func(_ context.Context, name string) ([]advisory.Advisory, error) {
		if name == "qs" {
			calls++
		}
		return []advisory.Advisory{{ID: "GHSA-qs", Package: name, Severity: advisory.SeverityHigh, Affected: "<6.0.0", Patched: ">=6.0.0"}}, nil
	})

	result, err := New(src, Options{Concurrency: 1}).Match(context.Background(), g)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	var qsFindings int
	for _, f := range result.Findings {
		if f.Node.Pkg.Name == "qs" {
			qsFindings++
		}
	}
	assert.Equal(t, 2, qsFindings)
}
