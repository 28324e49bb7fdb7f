package main

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd(slog.New(slog.NewTextHandler(io.Discard, nil)))
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestSeasonCommand(t *testing.T) {
	out, err := execute(t, "season", "2025-04-30")
	require.NoError(t, err)
	assert.Contains(t, out, "season:  2024/2025")
	assert.Contains(t, out, "first:   2024-05-01")
	assert.Contains(t, out, "last:    2025-04-30")
	assert.Contains(t, out, "results: results_2024_2025")

	out, err = execute(t, "season", "2025-05-01")
	require.NoError(t, err)
	assert.Contains(t, out, "season:  2025/2026")
}

func TestSeasonCommandRejectsBadInput(t *testing.T) {
	_, err := execute(t, "season", "01.05.2025")
	assert.Error(t, err)
	_, err = execute(t, "season")
	assert.Error(t, err)
}

func TestGenkeyCommand(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "keys")
	out, err := execute(t, "genkey", "--out", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "SKIJUMP_JWT_PRIVATE_KEY="+filepath.Join(dir, "private.pem"))

	info, err := os.Stat(filepath.Join(dir, "private.pem"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	_, err = execute(t, "genkey", "--out", dir)
	assert.Error(t, err, "existing keys are never overwritten")
}

func TestPartitionsEnsureValidatesSeason(t *testing.T) {
	_, err := execute(t, "partitions", "ensure", "results", "2024-2025")
	assert.Error(t, err)
}
