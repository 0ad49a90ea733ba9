package logging

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "run.log")
	logger, cleanup, err := Setup(Config{Level: "info", FilePath: path})
	require.NoError(t, err)

	logger.Info("run_started", slog.String("root", "/srv/pepsource"))
	cleanup()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var event map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.SplitN(string(data), "\n", 2)[0]), &event))
	assert.Equal(t, "run_started", event["msg"])
	assert.Equal(t, "/srv/pepsource", event["root"])
}

func TestSetupLevelFiltering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	logger, cleanup, err := Setup(Config{Level: "warn", FilePath: path})
	require.NoError(t, err)

	logger.Info("suppressed")
	logger.Warn("kept")
	cleanup()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "suppressed")
	assert.Contains(t, string(data), "kept")
}

func TestSetupDefaultInstallsLogger(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	path := filepath.Join(t.TempDir(), "run.log")
	cleanup, err := SetupDefault(Config{Level: "info", FilePath: path})
	require.NoError(t, err)

	slog.Info("via_default_logger")
	cleanup()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "via_default_logger")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseLevel(tt.in), "level %q", tt.in)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("/var/opas")
	assert.True(t, strings.HasPrefix(cfg.FilePath, filepath.Join("/var/opas", "logs")))
	assert.True(t, strings.HasSuffix(cfg.FilePath, ".log"))
	assert.True(t, cfg.WriteToStderr)
}

func TestRotatingWriterRotates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.log")

	// 1MB cap, tiny writes do not rotate
	w, err := NewRotatingWriter(path, 1, 2)
	require.NoError(t, err)

	line := strings.Repeat("x", 512*1024)
	for i := 0; i < 3; i++ {
		_, err = w.Write([]byte(line))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	_, err = os.Stat(path + ".1")
	assert.NoError(t, err, "rotated file exists after exceeding the size cap")
}
