package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hannajonsd/lockmender/advisory"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, FileName)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDirDefaultsWhenMissing(t *testing.T) {
	cfg, err := LoadDir(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Concurrency)
	assert.Empty(t, cfg.SeverityFloor)
	assert.False(t, cfg.AllowPositionalOverrides)
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
concurrency: 4
severity_floor: high
allow_positional_overrides: true
advisories: db/advisories.json
source_dir: src
partial: true
`)

	cfg, err := LoadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Concurrency)
	assert.Equal(t, "high", cfg.SeverityFloor)
	assert.True(t, cfg.AllowPositionalOverrides)
	assert.Equal(t, "db/advisories.json", cfg.Advisories)
	assert.Equal(t, "src", cfg.SourceDir)
	assert.True(t, cfg.Partial)
	assert.Equal(t, advisory.SeverityHigh, cfg.Floor())
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "severity_floor: moderate\n")

	cfg, err := LoadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Concurrency)
	assert.Equal(t, advisory.SeverityModerate, cfg.Floor())
}

func TestLoadRejectsBadValues(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "concurrency: 0\n")
	_, err := LoadDir(dir)
	assert.ErrorContains(t, err, "concurrency")

	writeConfig(t, dir, "severity_floor: catastrophic\n")
	_, err = LoadDir(dir)
	assert.ErrorContains(t, err, "severity")

	writeConfig(t, dir, "concurrency: [broken\n")
	_, err = LoadDir(dir)
	assert.ErrorContains(t, err, "parse")
}
