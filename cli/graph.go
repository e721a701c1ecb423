package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hannajonsd/lockmender/graph"
	"github.com/hannajonsd/lockmender/npmlock"
)

var graphCmd = &cobra.Command{
	Use:   "graph [dir]",
	Short: "Print the resolved dependency graph of a project",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runGraph,
}

func init() {
	graphCmd.Flags().StringP("format", "f", "text", "output format: text, json")
}

func runGraph(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) == 1 {
		dir = args[0]
	}

	g, err := npmlock.Load(dir)
	if err != nil {
		return err
	}

	format, _ := cmd.Flags().GetString("format")
	if format == "json" {
		return printGraphJSON(cmd, g)
	}
	if format != "text" {
		return fmt.Errorf("unknown format %q", format)
	}

	out := cmd.OutOrStdout()
	root := g.Root
	fmt.Fprintf(out, "%s@%s (%d package(s))\n", root.Pkg.Name, root.Pkg.Version, len(g.Nodes())-1)
	for _, n := range g.Nodes() {
		if n.IsRoot() {
			continue
		}
		fmt.Fprintf(out, "  %s@%s  %s\n", n.Pkg.Name, n.Pkg.Version, n.Path)
		for _, e := range n.Edges {
			fmt.Fprintf(out, "    requires %s@%s -> %s\n", e.Name, e.Range, e.To.Path)
		}
	}
	return nil
}

type graphNodeJSON struct {
	Path     string          `json:"path"`
	Name     string          `json:"name"`
	Version  string          `json:"version"`
	Requires []graphEdgeJSON `json:"requires,omitempty"`
}

type graphEdgeJSON struct {
	Name     string `json:"name"`
	Range    string `json:"range"`
	Resolved string `json:"resolved"`
}

func printGraphJSON(cmd *cobra.Command, g *graph.Graph) error {
	nodes := make([]graphNodeJSON, 0, len(g.Nodes()))
	for _, n := range g.Nodes() {
		jn := graphNodeJSON{
			Path:    n.Path,
			Name:    n.Pkg.Name,
			Version: n.Pkg.Version.String(),
		}
		for _, e := range n.Edges {
			jn.Requires = append(jn.Requires, graphEdgeJSON{
				Name:     e.Name,
				Range:    e.Range.String(),
				Resolved: e.To.Path,
			})
		}
		nodes = append(nodes, jn)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(nodes)
}
