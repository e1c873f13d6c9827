package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()

	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("BROWSERHUB_TOKEN", "hub-test")
}

func TestLoadConfig_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "claude-sonnet-4-5", cfg.AgentModel)
	assert.Equal(t, "gpt-4.1-mini", cfg.LocatorModel)
	assert.Equal(t, 30*time.Second, cfg.DownloadTimeout)
	assert.Equal(t, "downloads", cfg.DownloadDir)
	assert.Equal(t, "/downloads", cfg.RemoteDownloadDir)
	assert.Equal(t, 15, cfg.MaxSteps)
	assert.True(t, cfg.Stealth)
	assert.Equal(t, "0.0.0.0:8080", cfg.Web.BindAddress)
}

func TestLoadConfig_MissingCredentialFailsFast(t *testing.T) {
	tests := []string{"ANTHROPIC_API_KEY", "OPENAI_API_KEY", "BROWSERHUB_TOKEN"}

	for _, missing := range tests {
		t.Run(missing, func(t *testing.T) {
			setRequiredEnv(t)

			// t.Setenv registers the restore; the unset makes the key
			// genuinely absent rather than empty.
			t.Setenv(missing, "placeholder")
			os.Unsetenv(missing)

			_, err := LoadConfig()
			require.Error(t, err)
			assert.Contains(t, err.Error(), missing)
		})
	}
}

func TestSlogLevel(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "DEBUG", cfg.SlogLevel().String())
}
