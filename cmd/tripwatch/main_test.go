package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestProbeDevices(t *testing.T) {
	dir := t.TempDir()
	prefix := filepath.Join(dir, "video")
	require.NoError(t, os.WriteFile(prefix+"0", nil, 0o644))
	require.NoError(t, os.WriteFile(prefix+"2", nil, 0o644))
	require.NoError(t, os.Mkdir(prefix+"3", 0o755))

	assert.Equal(t, []string{prefix + "0", prefix + "2"}, probeDevices(prefix, 8))
	assert.Empty(t, probeDevices(filepath.Join(dir, "none"), 8))
}

func TestHashPasswordCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"hash-password", "hunter2"})
	t.Cleanup(func() { rootCmd.SetArgs(nil); rootCmd.SetOut(nil) })

	require.NoError(t, rootCmd.Execute())
	hash := strings.TrimSpace(out.String())
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("hunter2")))
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "warn", "json")
	logger.Info("hidden")
	logger.Warn("shown", "camera", "cam1")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"camera":"cam1"`)
}
