package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew_WritesRotatingFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	logger, err := New(Options{Level: "debug", Dir: dir})
	require.NoError(t, err)

	logger.Info("hello")
	logger.Error("boom")
	_ = logger.Sync()

	app, err := os.ReadFile(filepath.Join(dir, "app.log"))
	require.NoError(t, err)
	require.Contains(t, string(app), `"msg":"hello"`)
	require.Contains(t, string(app), `"timestamp"`)

	errs, err := os.ReadFile(filepath.Join(dir, "error.log"))
	require.NoError(t, err)
	require.NotContains(t, string(errs), "hello")
	require.Contains(t, string(errs), "boom")
}

func TestNew_RejectsUnknownLevel(t *testing.T) {
	_, err := New(Options{Level: "chatty"})
	require.Error(t, err)
}

func TestTruncate(t *testing.T) {
	require.Equal(t, "hej", Truncate("hej", 10))
	require.Equal(t, "åäö…", Truncate("åäöå", 3))
	require.Equal(t, "abc", Truncate("abc", 0))
}
