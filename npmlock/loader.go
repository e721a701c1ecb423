// Package npmlock loads a package.json / package-lock.json pair into a
// dependency graph. Loading is a pure parse: no network, no filesystem
// writes, and the inputs are validated against each other before a graph is
// returned.
package npmlock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hannajonsd/lockmender/graph"
	"github.com/hannajonsd/lockmender/semver"
)

// MalformedInputError reports a bad manifest or lockfile. It is fatal: no
// planning happens on input that fails to load.
type MalformedInputError struct {
	File string
	Pos  string // lockfile path or byte offset, when known
	Msg  string
	Err  error
}

func (e *MalformedInputError) Error() string {
	if e.Pos != "" {
		return fmt.Sprintf("%s: %s: %s", e.File, e.Pos, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.File, e.Msg)
}

func (e *MalformedInputError) Unwrap() error {
	return e.Err
}

// IsMalformed reports whether err is a MalformedInputError.
func IsMalformed(err error) bool {
	var m *MalformedInputError
	return errors.As(err, &m)
}

func malformed(file, pos, msg string, err error) error {
	return &MalformedInputError{File: file, Pos: pos, Msg: msg, Err: err}
}

// Load reads package.json and package-lock.json from dir and builds the
// dependency graph.
func Load(dir string) (*graph.Graph, error) {
	manifestPath := filepath.Join(dir, "package.json")
	lockPath := filepath.Join(dir, "package-lock.json")

	manifestData, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, malformed(manifestPath, "", "cannot read manifest", err)
	}
	lockData, err := os.ReadFile(lockPath)
	if err != nil {
		return nil, malformed(lockPath, "", "cannot read lockfile", err)
	}
	return Build(manifestData, lockData, manifestPath, lockPath)
}

// Build parses the two documents and assembles the graph. Every edge is
// checked against its declared range; a resolution outside the range means
// the inputs disagree and loading fails.
func Build(manifestData, lockData []byte, manifestFile, lockFile string) (*graph.Graph, error) {
	m, err := ParseManifest(manifestData, manifestFile)
	if err != nil {
		return nil, err
	}
	lf, err := ParseLockfile(lockData, lockFile)
	if err != nil {
		return nil, err
	}
	return build(m, lf, manifestFile, lockFile)
}

func build(m *Manifest, lf *Lockfile, manifestFile, lockFile string) (*graph.Graph, error) {
	nodes := make(map[string]*graph.Node, len(lf.Packages))

	paths := make([]string, 0, len(lf.Packages))
	for path := range lf.Packages {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	for _, path := range paths {
		entry := lf.Packages[path]
		if path == "" || entry.Link {
			continue
		}
		version, err := semver.ParseVersion(entry.Version)
		if err != nil {
			return nil, malformed(lockFile, path, fmt.Sprintf("invalid version %q", entry.Version), err)
		}
		nodes[path] = &graph.Node{
			Path: path,
			Pkg:  graph.Package{Name: packageName(path, entry), Version: version},
		}
	}

	root := &graph.Node{Pkg: graph.Package{Name: m.Name}}
	if m.Version != "" {
		if v, err := semver.ParseVersion(m.Version); err == nil {
			root.Pkg.Version = v
		}
	}

	// Root edges come from the manifest declarations themselves.
	for name, raw := range m.Direct() {
		rng, err := semver.ParseRange(raw)
		if err != nil {
			return nil, malformed(manifestFile, name, fmt.Sprintf("invalid range %q", raw), err)
		}
		child := resolve(nodes, "", name)
		if child == nil {
			return nil, malformed(lockFile, name, "direct dependency missing from lockfile", nil)
		}
		if !rng.Contains(child.Pkg.Version) {
			return nil, malformed(lockFile, child.Path,
				fmt.Sprintf("resolved %s@%s does not satisfy declared range %q", name, child.Pkg.Version, raw), nil)
		}
		root.Edges = append(root.Edges, graph.Edge{Name: name, Range: rng, To: child})
	}
	sortEdges(root.Edges)

	for _, path := range paths {
		entry := lf.Packages[path]
		node := nodes[path]
		if node == nil {
			continue
		}
		edges, err := entryEdges(nodes, path, entry, lockFile)
		if err != nil {
			return nil, err
		}
		node.Edges = edges
	}

	all := make([]*graph.Node, 0, len(nodes)+1)
	all = append(all, root)
	for _, path := range paths {
		if n := nodes[path]; n != nil {
			all = append(all, n)
		}
	}
	return graph.New(root, all), nil
}

func entryEdges(nodes map[string]*graph.Node, path string, entry LockEntry, lockFile string) ([]graph.Edge, error) {
	var edges []graph.Edge

	add := func(deps map[string]string, optional bool) error {
		for name, raw := range deps {
			rng, err := semver.ParseRange(raw)
			if err != nil {
				return malformed(lockFile, path, fmt.Sprintf("invalid range %q for dependency %s", raw, name), err)
			}
			child := resolve(nodes, path, name)
			if child == nil {
				if optional {
					continue
				}
				return malformed(lockFile, path, fmt.Sprintf("dependency %s has no resolution", name), nil)
			}
			if !rng.Contains(child.Pkg.Version) {
				return malformed(lockFile, child.Path,
					fmt.Sprintf("resolved %s@%s does not satisfy range %q declared by %s", name, child.Pkg.Version, raw, path), nil)
			}
			edges = append(edges, graph.Edge{Name: name, Range: rng, To: child})
		}
		return nil
	}

	if err := add(entry.Dependencies, false); err != nil {
		return nil, err
	}
	if err := add(entry.OptionalDependencies, true); err != nil {
		return nil, err
	}
	sortEdges(edges)
	return edges, nil
}

// resolve walks the install tree upward from a position the way npm does:
// the nearest enclosing node_modules holding the name wins.
func resolve(nodes map[string]*graph.Node, from, name string) *graph.Node {
	at := from
	for {
		var candidate string
		if at == "" {
			candidate = "node_modules/" + name
		} else {
			candidate = at + "/node_modules/" + name
		}
		if n, ok := nodes[candidate]; ok {
			return n
		}
		if at == "" {
			return nil
		}
		if idx := strings.LastIndex(at, "/node_modules/"); idx >= 0 {
			at = at[:idx]
		} else {
			at = ""
		}
	}
}

func packageName(path string, entry LockEntry) string {
	if entry.Name != "" {
		return entry.Name
	}
	const marker = "node_modules/"
	if idx := strings.LastIndex(path, marker); idx >= 0 {
		return path[idx+len(marker):]
	}
	return path
}

func sortEdges(edges []graph.Edge) {
	sort.Slice(edges, func(i, j int) bool { return edges[i].Name < edges[j].Name })
}
