package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expenses/internal/config"
	"expenses/internal/log"
)

func TestSetupLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := SetupLogger(&config.Config{LogLevel: "warn", LogFormat: log.FormatJSON}, &buf)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"component":"cli"`)

	_, err = SetupLogger(&config.Config{LogLevel: "chatty", LogFormat: log.FormatText}, &buf)
	assert.Error(t, err)
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(path, []byte("EXPENSES_CLI_TEST_A=from-file\nEXPENSES_CLI_TEST_B=from-file\n"), 0o600))

	t.Setenv("EXPENSES_CLI_TEST_A", "from-env")
	t.Setenv("EXPENSES_CLI_TEST_B", "")
	require.NoError(t, os.Unsetenv("EXPENSES_CLI_TEST_B"))

	require.NoError(t, LoadEnvFile(path))
	assert.Equal(t, "from-env", os.Getenv("EXPENSES_CLI_TEST_A"), "existing variables win")
	assert.Equal(t, "from-file", os.Getenv("EXPENSES_CLI_TEST_B"))

	err := LoadEnvFile(filepath.Join(dir, "missing.env"))
	assert.Error(t, err)
}

func TestLoadEnvFileDefaultMissing(t *testing.T) {
	t.Chdir(t.TempDir())
	assert.NoError(t, LoadEnvFile())
}

func TestLoadAndValidateConfig(t *testing.T) {
	t.Setenv("DATA_BACKEND", "memory")
	t.Setenv("PORT", "8082")
	cfg, err := LoadAndValidateConfig()
	require.NoError(t, err)
	assert.Equal(t, "8082", cfg.Port)

	t.Setenv("PORT", "not-a-port")
	_, err = LoadAndValidateConfig()
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "invalid port"))
}

func TestGracefulShutdownFollowsParent(t *testing.T) {
	parent, cancelParent := context.WithCancel(context.Background())
	ctx, cancel := GracefulShutdown(parent, log.Default())
	defer cancel()

	cancelParent()
	<-ctx.Done()
}
