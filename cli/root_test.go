package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hannajonsd/lockmender/report"
)

func TestRootCommandHasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, want := range []string{"plan", "graph", "version"} {
		assert.True(t, names[want], "root command missing subcommand %q", want)
	}
}

func TestVersionDefaults(t *testing.T) {
	// version vars are set via ldflags; in tests they have their defaults
	assert.Equal(t, "dev", version)
}

const testManifest = `{
  "name": "webapp",
  "version": "1.0.0",
  "dependencies": {
    "imgproc": "^6.5.0"
  }
}`

const testLockfile = `{
  "name": "webapp",
  "lockfileVersion": 3,
  "packages": {
    "": {
      "name": "webapp",
      "version": "1.0.0",
      "dependencies": {
        "imgproc": "^6.5.0"
      }
    },
    "node_modules/imgproc": {
      "version": "6.5.0"
    }
  }
}`

const testAdvisories = `{
  "advisories": [
    {
      "id": "GHSA-img-0001",
      "package": "imgproc",
      "severity": "high",
      "affected": "<6.5.4",
      "patched": ">=6.5.4",
      "summary": "Heap overflow in resize"
    }
  ]
}`

func writeProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "package.json"), []byte(testManifest), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "package-lock.json"), []byte(testLockfile), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "advisories.json"), []byte(testAdvisories), 0o644))
	return dir
}

// resetFlags returns every flag to its default; cobra keeps flag state
// between Execute calls, which would leak settings across tests.
func resetFlags(cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	})
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestPlanCommandText(t *testing.T) {
	dir := writeProject(t)

	out, err := runCommand(t, "plan", dir, "--advisories", filepath.Join(dir, "advisories.json"))
	require.NoError(t, err)

	assert.Contains(t, out, "imgproc@6.5.0")
	assert.Contains(t, out, "GHSA-img-0001")
	assert.Contains(t, out, "Overrides to apply:")
	assert.Contains(t, out, `imgproc: "^6.5.4" (resolves to 6.5.4)`)
	assert.Contains(t, out, "Verification: valid")
}

func TestPlanCommandJSON(t *testing.T) {
	dir := writeProject(t)

	out, err := runCommand(t, "plan", dir,
		"--advisories", filepath.Join(dir, "advisories.json"),
		"--format", "json")
	require.NoError(t, err)

	var doc report.Document
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	require.Len(t, doc.Overrides, 1)
	assert.Equal(t, "imgproc", doc.Overrides[0].Package)
	assert.Equal(t, "6.5.4", doc.Overrides[0].Version)
	assert.Equal(t, "valid", doc.Verification.Status)
}

func TestPlanCommandNoSource(t *testing.T) {
	dir := writeProject(t)

	_, err := runCommand(t, "plan", dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no advisory source")
}

func TestPlanCommandMissingLockfile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "package.json"), []byte(testManifest), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "advisories.json"), []byte(testAdvisories), 0o644))

	_, err := runCommand(t, "plan", dir, "--advisories", filepath.Join(dir, "advisories.json"))
	require.Error(t, err)
}

func TestPlanCommandConfigFile(t *testing.T) {
	dir := writeProject(t)
	cfgBody := "advisories: " + filepath.Join(dir, "advisories.json") + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".lockmender.yml"), []byte(cfgBody), 0o644))

	out, err := runCommand(t, "plan", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Overrides to apply:")
}

func TestPlanCommandBadSeverityFloor(t *testing.T) {
	dir := writeProject(t)

	_, err := runCommand(t, "plan", dir,
		"--advisories", filepath.Join(dir, "advisories.json"),
		"--severity-floor", "catastrophic")
	require.Error(t, err)
}

func TestGraphCommand(t *testing.T) {
	dir := writeProject(t)

	out, err := runCommand(t, "graph", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "webapp@1.0.0 (1 package(s))")
	assert.Contains(t, out, "imgproc@6.5.0")
	assert.Contains(t, out, `requires imgproc@^6.5.0`)
}
