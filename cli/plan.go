package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hannajonsd/lockmender/advisory"
	"github.com/hannajonsd/lockmender/config"
	"github.com/hannajonsd/lockmender/npmlock"
	"github.com/hannajonsd/lockmender/plan"
	"github.com/hannajonsd/lockmender/report"
	"github.com/hannajonsd/lockmender/scan"
	"github.com/hannajonsd/lockmender/usage"
)

var planCmd = &cobra.Command{
	Use:   "plan [dir]",
	Short: "Compute and verify a remediation plan for a project",
	Long: `Load the project's dependency graph, match it against the advisory
source, and print the override plan.

Exit codes:
  0 — every finding resolved and the plan verified
  1 — unresolved findings remain, or verification failed
  2 — input could not be read or parsed`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPlan,
}

func init() {
	planCmd.Flags().StringP("advisories", "a", "", "path to a JSON advisory database")
	planCmd.Flags().String("osv", "", "OSV-style advisory query endpoint")
	planCmd.Flags().StringP("format", "f", "text", "output format: text, json")
	planCmd.Flags().IntP("concurrency", "c", 0, "advisory lookups in flight (default 8)")
	planCmd.Flags().String("severity-floor", "", "ignore findings below this severity")
	planCmd.Flags().Bool("positional", false, "allow parent-scoped overrides")
	planCmd.Flags().Bool("partial", false, "tolerate advisory lookup failures")
	planCmd.Flags().String("source-dir", "", "scan this directory for direct imports")
}

func runPlan(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) == 1 {
		dir = args[0]
	}

	cfg, err := loadConfig(cmd, dir)
	if err != nil {
		return err
	}

	logger := newLogger(cmd)
	defer logger.Sync()

	source, err := buildSource(cfg)
	if err != nil {
		return err
	}

	g, err := npmlock.Load(dir)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	matcher := scan.New(source, scan.Options{
		Logger:        logger,
		Concurrency:   cfg.Concurrency,
		SeverityFloor: cfg.Floor(),
		Partial:       cfg.Partial,
	})
	result, err := matcher.Match(ctx, g)
	if err != nil {
		return err
	}

	planner := plan.NewPlanner(plan.Options{
		Logger:                   logger,
		AllowPositionalOverrides: cfg.AllowPositionalOverrides,
	})
	p := planner.Plan(g, result.Findings)

	verdict, err := plan.NewVerifier(matcher).Verify(ctx, g, p)
	if err != nil {
		return err
	}

	var used *usage.Report
	if cfg.SourceDir != "" {
		used, err = usage.NewScanner().Scan(ctx, cfg.SourceDir)
		if err != nil {
			return err
		}
	}

	doc := report.Build(len(g.Nodes())-1, result, p, verdict, used)

	format, _ := cmd.Flags().GetString("format")
	switch format {
	case "json":
		err = doc.WriteJSON(cmd.OutOrStdout())
	case "text":
		err = doc.WriteText(cmd.OutOrStdout())
	default:
		return fmt.Errorf("unknown format %q", format)
	}
	if err != nil {
		return err
	}

	if doc.Outcome() != report.AllResolved {
		os.Exit(1)
	}
	return nil
}

// loadConfig reads .lockmender.yml from the project directory and lets
// flags that were set on the command line win over it.
func loadConfig(cmd *cobra.Command, dir string) (config.Config, error) {
	cfg, err := config.LoadDir(dir)
	if err != nil {
		return cfg, err
	}

	flags := cmd.Flags()
	if flags.Changed("advisories") {
		cfg.Advisories, _ = flags.GetString("advisories")
	}
	if flags.Changed("osv") {
		cfg.OSVURL, _ = flags.GetString("osv")
	}
	if flags.Changed("concurrency") {
		cfg.Concurrency, _ = flags.GetInt("concurrency")
	}
	if flags.Changed("severity-floor") {
		floor, _ := flags.GetString("severity-floor")
		if _, err := advisory.ParseSeverity(floor); err != nil {
			return cfg, err
		}
		cfg.SeverityFloor = floor
	}
	if flags.Changed("positional") {
		cfg.AllowPositionalOverrides, _ = flags.GetBool("positional")
	}
	if flags.Changed("partial") {
		cfg.Partial, _ = flags.GetBool("partial")
	}
	if flags.Changed("source-dir") {
		cfg.SourceDir, _ = flags.GetString("source-dir")
	}
	return cfg, nil
}

func buildSource(cfg config.Config) (advisory.Source, error) {
	switch {
	case cfg.Advisories != "":
		return advisory.LoadFile(cfg.Advisories)
	case cfg.OSVURL != "":
		return advisory.NewHTTPSource(cfg.OSVURL), nil
	default:
		return nil, errors.New("no advisory source configured: set --advisories or --osv")
	}
}
