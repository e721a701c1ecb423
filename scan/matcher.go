// Package scan cross-references a dependency graph against an advisory
// source. Lookups run concurrently across distinct package names; findings
// are emitted in a deterministic order regardless of completion order.
package scan

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hannajonsd/lockmender/advisory"
	"github.com/hannajonsd/lockmender/graph"
	"github.com/hannajonsd/lockmender/semver"
)

// DefaultConcurrency bounds the advisory lookup pool when no limit is
// configured.
const DefaultConcurrency = 8

// Finding is a match between one graph node and one advisory affecting its
// resolved version. Findings are transient: recomputed on every run, never
// persisted.
type Finding struct {
	Node     *graph.Node
	Advisory advisory.Advisory
	Affected semver.Range
	Patched  semver.Range
}

// Key identifies a finding across graphs sharing node paths.
func (f Finding) Key() string {
	return f.Node.Path + "|" + f.Advisory.ID
}

// LookupError is a transient advisory source failure. It aborts the run
// unless partial results were requested.
type LookupError struct {
	Package string
	Err     error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("advisory lookup for %s failed: %v", e.Package, e.Err)
}

func (e *LookupError) Unwrap() error {
	return e.Err
}

// Result is one matcher run: the findings plus everything that was skipped
// or failed along the way, so the report can account for every advisory.
type Result struct {
	Findings []Finding

	// Skipped records syntactically malformed advisories (logged, not fatal).
	Skipped []*advisory.InvalidDataError

	// Failed records lookup failures when running in partial mode.
	Failed []*LookupError
}

// Options configures a Matcher.
type Options struct {
	Logger        *zap.Logger
	Concurrency   int
	SeverityFloor advisory.Severity // findings below this are dropped; empty means none
	Partial       bool              // tolerate lookup failures instead of aborting
}

// Matcher matches graph nodes against an advisory source.
type Matcher struct {
	source advisory.Source
	opts   Options
}

func New(source advisory.Source, opts Options) *Matcher {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	return &Matcher{source: advisory.NewCached(source), opts: opts}
}

// Match looks up advisories for every distinct package name in the graph
// and emits findings in stable pre-order, then severity descending, then
// advisory ID. Cancelling the context aborts outstanding lookups and
// returns an error rather than a partial result.
func (m *Matcher) Match(ctx context.Context, g *graph.Graph) (*Result, error) {
	byName, failed, err := m.lookupAll(ctx, g.PackageNames())
	if err != nil {
		return nil, err
	}

	result := &Result{Failed: failed}
	for _, node := range g.Nodes() {
		if node.IsRoot() {
			continue
		}
		for _, adv := range byName[node.Pkg.Name] {
			affected, err := adv.AffectedRange()
			if err != nil {
				result.skip(m.opts.Logger, err)
				continue
			}
			if !affected.Contains(node.Pkg.Version) {
				continue
			}
			if m.opts.SeverityFloor != "" && !adv.Severity.AtLeast(m.opts.SeverityFloor) {
				continue
			}
			patched, err := adv.PatchedRange()
			if err != nil {
				result.skip(m.opts.Logger, err)
				continue
			}
			result.Findings = append(result.Findings, Finding{
				Node:     node,
				Advisory: adv,
				Affected: affected,
				Patched:  patched,
			})
		}
	}
	return result, nil
}

func (m *Matcher) lookupAll(ctx context.Context, names []string) (map[string][]advisory.Advisory, []*LookupError, error) {
	var (
		mu     sync.Mutex
		byName = make(map[string][]advisory.Advisory, len(names))
		failed []*LookupError
	)

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(m.opts.Concurrency)

	for _, name := range names {
		name := name
		eg.Go(func() error {
			advisories, err := m.source.Lookup(ctx, name)
			if err != nil {
				lerr := &LookupError{Package: name, Err: err}
				if !m.opts.Partial {
					return lerr
				}
				m.opts.Logger.Warn("advisory lookup failed, continuing without package",
					zap.String("package", name), zap.Error(err))
				mu.Lock()
				failed = append(failed, lerr)
				mu.Unlock()
				return nil
			}
			mu.Lock()
			byName[name] = advisories
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	// Completion order varies; re-sort so emission never depends on it.
	for name := range byName {
		list := byName[name]
		sort.SliceStable(list, func(i, j int) bool {
			if list[i].Severity.Order() != list[j].Severity.Order() {
				return list[i].Severity.Order() > list[j].Severity.Order()
			}
			return list[i].ID < list[j].ID
		})
	}
	sort.Slice(failed, func(i, j int) bool { return failed[i].Package < failed[j].Package })
	return byName, failed, nil
}

func (r *Result) skip(log *zap.Logger, err error) {
	var invalid *advisory.InvalidDataError
	if errors.As(err, &invalid) {
		log.Warn("skipping malformed advisory",
			zap.String("advisory", invalid.AdvisoryID),
			zap.String("package", invalid.Package),
			zap.Error(invalid))
		for _, seen := range r.Skipped {
			if seen.AdvisoryID == invalid.AdvisoryID && seen.Field == invalid.Field {
				return
			}
		}
		r.Skipped = append(r.Skipped, invalid)
	}
}
