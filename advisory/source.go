package advisory

import (
	"context"
	"sort"
	"sync"
)

// Source supplies the known advisories for a package name. Lookups must be
// idempotent within a run; a package's advisory list does not change
// mid-run.
type Source interface {
	Lookup(ctx context.Context, packageName string) ([]Advisory, error)
}

// Static is an in-memory Source, used by tests and as the index behind the
// file-backed source.
type Static struct {
	byPackage map[string][]Advisory
}

// NewStatic indexes a flat advisory list by package name.
func NewStatic(advisories []Advisory) *Static {
	byPackage := make(map[string][]Advisory)
	for _, a := range advisories {
		byPackage[a.Package] = append(byPackage[a.Package], a)
	}
	for name := range byPackage {
		list := byPackage[name]
		sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	}
	return &Static{byPackage: byPackage}
}

func (s *Static) Lookup(_ context.Context, packageName string) ([]Advisory, error) {
	return s.byPackage[packageName], nil
}

// Cached decorates a Source with a per-run cache so each package name is
// looked up at most once, no matter how many graph nodes share it. Safe for
// concurrent use.
type Cached struct {
	inner Source

	mu    sync.Mutex
	known map[string][]Advisory
}

func NewCached(inner Source) *Cached {
	return &Cached{inner: inner, known: make(map[string][]Advisory)}
}

func (c *Cached) Lookup(ctx context.Context, packageName string) ([]Advisory, error) {
	c.mu.Lock()
	if cached, ok := c.known[packageName]; ok {
		c.mu.Unlock()
		return cached, nil
	}
	c.mu.Unlock()

	advisories, err := c.inner.Lookup(ctx, packageName)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.known[packageName] = advisories
	c.mu.Unlock()
	return advisories, nil
}
