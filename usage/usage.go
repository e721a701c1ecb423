// Package usage scans a project's JavaScript and TypeScript sources for the
// packages they actually import, so the report can flag which vulnerable
// packages are referenced directly in code rather than only pulled in by
// the dependency tree.
package usage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
)

var sourceExtensions = map[string]bool{
	".js":  true,
	".jsx": true,
	".mjs": true,
	".cjs": true,
	".ts":  true,
	".tsx": true,
}

// Report holds which files import which packages.
type Report struct {
	fileCount int
	importers map[string][]string
}

// FileCount returns how many source files were scanned.
func (r *Report) FileCount() int {
	return r.fileCount
}

// ImportedBy returns the files importing a package, sorted.
func (r *Report) ImportedBy(pkg string) []string {
	return r.importers[pkg]
}

// Scanner extracts package imports from source files with tree-sitter.
type Scanner struct {
	parser *sitter.Parser
}

func NewScanner() *Scanner {
	parser := sitter.NewParser()
	parser.SetLanguage(javascript.GetLanguage())
	return &Scanner{parser: parser}
}

// Scan walks root for source files and collects their package imports.
// Files that fail to read or parse are skipped; a usage scan is a best
// effort annotation, never a reason to abort a run.
func (s *Scanner) Scan(ctx context.Context, root string) (*Report, error) {
	report := &Report{importers: make(map[string][]string)}

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if path != root && (strings.HasPrefix(name, ".") || name == "node_modules" || name == "dist" || name == "build") {
				return filepath.SkipDir
			}
			return nil
		}
		if !sourceExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		report.fileCount++
		packages, err := s.scanFile(ctx, path)
		if err != nil {
			return nil
		}
		for _, pkg := range packages {
			report.importers[pkg] = append(report.importers[pkg], path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("usage scan of %s: %w", root, err)
	}

	for pkg := range report.importers {
		files := dedupe(report.importers[pkg])
		sort.Strings(files)
		report.importers[pkg] = files
	}
	return report, nil
}

func (s *Scanner) scanFile(ctx context.Context, path string) ([]string, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	tree, err := s.parser.ParseCtx(ctx, nil, source)
	if err != nil || tree == nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	defer tree.Close()

	var packages []string
	walk(tree.RootNode(), func(n *sitter.Node) {
		switch n.Type() {
		case "import_statement":
			if spec := importSpecifier(n, source); spec != "" {
				if pkg := normalize(spec); pkg != "" {
					packages = append(packages, pkg)
				}
			}
		case "call_expression":
			if spec := requireArgument(n, source); spec != "" {
				if pkg := normalize(spec); pkg != "" {
					packages = append(packages, pkg)
				}
			}
		}
	})
	return dedupe(packages), nil
}

func walk(node *sitter.Node, visit func(*sitter.Node)) {
	visit(node)
	for i := 0; i < int(node.ChildCount()); i++ {
		walk(node.Child(i), visit)
	}
}

// importSpecifier pulls the module string out of an import statement.
func importSpecifier(node *sitter.Node, source []byte) string {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.Type() == "string" {
			return stringValue(child, source)
		}
	}
	return ""
}

// requireArgument pulls the module string out of require("pkg") calls.
func requireArgument(node *sitter.Node, source []byte) string {
	fn := node.ChildByFieldName("function")
	if fn == nil || fn.Type() != "identifier" || text(fn, source) != "require" {
		return ""
	}
	args := node.ChildByFieldName("arguments")
	if args == nil {
		return ""
	}
	for i := 0; i < int(args.ChildCount()); i++ {
		child := args.Child(i)
		if child.Type() == "string" {
			return stringValue(child, source)
		}
	}
	return ""
}

func text(node *sitter.Node, source []byte) string {
	return string(source[node.StartByte():node.EndByte()])
}

func stringValue(node *sitter.Node, source []byte) string {
	s := text(node, source)
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'' || s[0] == '`') {
		s = s[1 : len(s)-1]
	}
	return s
}

// normalize turns an import specifier into a package name: relative and
// builtin specifiers drop out, subpaths reduce to the package, and scoped
// names keep their scope segment.
func normalize(spec string) string {
	if spec == "" || strings.HasPrefix(spec, ".") || strings.HasPrefix(spec, "/") {
		return ""
	}
	if strings.HasPrefix(spec, "node:") {
		return ""
	}
	parts := strings.Split(spec, "/")
	if strings.HasPrefix(spec, "@") {
		if len(parts) < 2 {
			return ""
		}
		return parts[0] + "/" + parts[1]
	}
	return parts[0]
}

func dedupe(items []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, item := range items {
		if !seen[item] {
			seen[item] = true
			out = append(out, item)
		}
	}
	return out
}
