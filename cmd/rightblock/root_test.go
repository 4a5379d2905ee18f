package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rightblock/internal/database"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	err := cmd.Execute()
	return out.String(), err
}

func TestListCommands_RejectMemoryStore(t *testing.T) {
	path := writeConfig(t, "store:\n  driver: memory\n")
	for _, args := range [][]string{
		{"import", "alice"},
		{"export"},
		{"status"},
		{"stop"},
		{"retry-failed"},
	} {
		_, err := execute(t, append([]string{"--config", path}, args...)...)
		assert.ErrorIs(t, err, database.ErrEphemeralStore, "%v", args)
	}
}

func TestListCommands_ShareRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	path := writeConfig(t, "store:\n  driver: redis\n  redis:\n    addr: "+mr.Addr()+"\n")

	out, err := execute(t, "--config", path, "import", "@alice, bob")
	require.NoError(t, err)
	assert.Equal(t, "queued 2 users\n", out)

	out, err = execute(t, "--config", path, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "queued: 2  failed: 0")
}
