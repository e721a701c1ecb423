// Package graph holds the resolved dependency graph of a project: one node
// per resolved package occurrence, deduplicated package identities, and the
// declared range on every edge. Graphs are immutable once built; hypothetical
// states are produced by Substitute, never by mutation.
package graph

import (
	"sort"

	"github.com/hannajonsd/lockmender/semver"
)

// Package is a resolved package identity: name plus exact version.
type Package struct {
	Name    string
	Version semver.Version
}

// Edge is a declared dependency from a node to the child chosen to satisfy it.
type Edge struct {
	Name  string
	Range semver.Range
	To    *Node
}

// Node is one occurrence of a package at a position in the graph. Several
// nodes may share a Package identity (diamond dependencies); nodes are
// distinct by Path.
type Node struct {
	// Path is the lockfile position, e.g. "node_modules/a/node_modules/b".
	// The root (manifest) node has an empty path.
	Path string
	Pkg  Package

	// Edges are sorted by dependency name.
	Edges []Edge

	dependents []*Node
}

// IsRoot reports whether the node is the manifest node.
func (n *Node) IsRoot() bool {
	return n.Path == ""
}

// Dependents returns the nodes holding an edge to n, sorted by path.
func (n *Node) Dependents() []*Node {
	return n.dependents
}

// Graph is the resolved dependency graph.
type Graph struct {
	Root *Node

	ordered []*Node
	byName  map[string][]*Node
}

// New assembles a graph from its root and every node. Nodes reachable from
// the root are ordered in stable pre-order (edges by name); any unreachable
// nodes follow, sorted by path, so traversal order is deterministic either
// way. Cycles between nodes are legal.
func New(root *Node, nodes []*Node) *Graph {
	g := &Graph{
		Root:   root,
		byName: make(map[string][]*Node),
	}

	seen := make(map[*Node]bool)
	var visit func(n *Node)
	visit = func(n *Node) {
		if seen[n] {
			return
		}
		seen[n] = true
		g.ordered = append(g.ordered, n)
		for _, e := range n.Edges {
			if e.To != nil {
				visit(e.To)
			}
		}
	}
	visit(root)

	rest := make([]*Node, 0)
	for _, n := range nodes {
		if !seen[n] {
			rest = append(rest, n)
		}
	}
	sort.Slice(rest, func(i, j int) bool { return rest[i].Path < rest[j].Path })
	for _, n := range rest {
		visit(n)
	}

	for _, n := range g.ordered {
		if !n.IsRoot() {
			g.byName[n.Pkg.Name] = append(g.byName[n.Pkg.Name], n)
		}
		n.dependents = nil
	}
	for _, n := range g.ordered {
		for _, e := range n.Edges {
			if e.To != nil {
				e.To.dependents = append(e.To.dependents, n)
			}
		}
	}
	for _, n := range g.ordered {
		sort.Slice(n.dependents, func(i, j int) bool { return n.dependents[i].Path < n.dependents[j].Path })
	}

	return g
}

// Nodes returns every node in stable pre-order, the root first.
func (g *Graph) Nodes() []*Node {
	return g.ordered
}

// PackageNames returns the distinct non-root package names, sorted.
func (g *Graph) PackageNames() []string {
	names := make([]string, 0, len(g.byName))
	for name := range g.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NodesByName returns the occurrences of a package, in traversal order.
func (g *Graph) NodesByName(name string) []*Node {
	return g.byName[name]
}

// DirectRange returns the manifest-declared range on a package, if the
// package is a direct dependency of the root.
func (g *Graph) DirectRange(name string) (semver.Range, bool) {
	for _, e := range g.Root.Edges {
		if e.Name == name {
			return e.Range, true
		}
	}
	return semver.Range{}, false
}

// Substitution forces occurrences of a package to a replacement version.
// With Parent set, only occurrences depended on by a package of that name
// are replaced (a positional override); otherwise every occurrence is.
type Substitution struct {
	Name    string
	Version semver.Version
	Parent  string
}

// Substitute returns a new graph with the substitutions applied. The
// receiver is left untouched; node paths carry over, so findings can be
// correlated across the original and hypothetical graphs.
func (g *Graph) Substitute(subs []Substitution) *Graph {
	clones := make(map[*Node]*Node, len(g.ordered))
	for _, n := range g.ordered {
		clones[n] = &Node{Path: n.Path, Pkg: n.Pkg}
	}
	for _, n := range g.ordered {
		c := clones[n]
		c.Edges = make([]Edge, len(n.Edges))
		for i, e := range n.Edges {
			c.Edges[i] = Edge{Name: e.Name, Range: e.Range, To: clones[e.To]}
		}
	}

	for _, sub := range subs {
		for _, n := range g.ordered {
			if n.IsRoot() || n.Pkg.Name != sub.Name {
				continue
			}
			if sub.Parent != "" && !hasDependentNamed(n, sub.Parent) {
				continue
			}
			clones[n].Pkg.Version = sub.Version
		}
	}

	all := make([]*Node, 0, len(clones))
	for _, n := range g.ordered {
		all = append(all, clones[n])
	}
	return New(clones[g.Root], all)
}

func hasDependentNamed(n *Node, parent string) bool {
	for _, d := range n.dependents {
		if !d.IsRoot() && d.Pkg.Name == parent {
			return true
		}
	}
	return false
}
