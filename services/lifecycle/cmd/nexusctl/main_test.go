package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigFileAndFlagPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database_url: postgres://file/db\ndb_max_conns: 7\n"), 0o600))
	t.Setenv("DATABASE_URL", "")
	t.Setenv("NEXUS_DATABASE_URL", "")

	v, err := newViper(path)
	require.NoError(t, err)
	cfg, err := loadCLIConfig(v)
	require.NoError(t, err)
	assert.Equal(t, "postgres://file/db", cfg.DatabaseURL)
	assert.Equal(t, 7, cfg.MaxConns)

	t.Setenv("NEXUS_DATABASE_URL", "postgres://env/db")
	v, err = newViper(path)
	require.NoError(t, err)
	cfg, err = loadCLIConfig(v)
	require.NoError(t, err)
	assert.Equal(t, "postgres://env/db", cfg.DatabaseURL)
}

func TestMissingExplicitConfigFails(t *testing.T) {
	_, err := newViper(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestCatalogImportDryRun(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("processors:\n  - id: stripe\n    status: LIVE\n"), 0o600))
	t.Setenv("HOME", dir)

	var out bytes.Buffer
	root := newRootCmd(&out)
	root.SetArgs([]string{"catalog", "import", path, "--dry-run"})
	require.NoError(t, root.Execute())

	var summary map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &summary))
	assert.Equal(t, "PASS", summary["status"])
	assert.EqualValues(t, 1, summary["processors"])
}

func TestPreviewRejectsUnknownStage(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	root := newRootCmd(&bytes.Buffer{})
	root.SetArgs([]string{"preview", "mrc_1", "--to", "done", "--database-url", ""})
	assert.Error(t, root.Execute())
}

func TestParseAcks(t *testing.T) {
	got, err := parseAcks([]string{"psp_not_supported:acme", "PAYMENT_METHOD_NOT_SUPPORTED: pix"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "acme", got[0].ProcessorID)
	assert.Equal(t, "pix", got[1].PaymentMethod)

	_, err = parseAcks([]string{"PSP_NOT_SUPPORTED"})
	assert.Error(t, err)
	_, err = parseAcks([]string{"SOMETHING:x"})
	assert.Error(t, err)
}
