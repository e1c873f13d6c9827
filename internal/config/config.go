package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config struct for environment variables. The two model credentials are
// required and validated before any session is created; a missing value
// aborts startup.
type Config struct {
	// Agent-driving model provider (computer-use loop).
	AnthropicAPIKey string `envconfig:"ANTHROPIC_API_KEY" required:"true"`
	AgentModel      string `envconfig:"AGENT_MODEL" default:"claude-sonnet-4-5"`
	AgentMaxTokens  int    `envconfig:"AGENT_MAX_TOKENS" default:"4096"`

	// Underlying automation model (element locating).
	OpenAIAPIKey string `envconfig:"OPENAI_API_KEY" required:"true"`
	LocatorModel string `envconfig:"LOCATOR_MODEL" default:"gpt-4.1-mini"`

	BrowserHubBaseURL string `envconfig:"BROWSERHUB_BASE_URL" default:"https://api.browserhub.dev"`
	BrowserHubToken   string `envconfig:"BROWSERHUB_TOKEN" required:"true"`
	Stealth           bool   `envconfig:"STEALTH" default:"true"`
	ViewportWidth     int    `envconfig:"VIEWPORT_WIDTH" default:"1280"`
	ViewportHeight    int    `envconfig:"VIEWPORT_HEIGHT" default:"800"`

	// Task defaults, used verbatim by the local one-shot mode and as
	// fallbacks for action payloads.
	TargetURL       string        `envconfig:"TARGET_URL" default:"https://browserbase.github.io/stagehand-eval-sites/sites/download-test/"`
	Instruction     string        `envconfig:"INSTRUCTION" default:"Click the download button to download the file."`
	MaxSteps        int           `envconfig:"MAX_STEPS" default:"15"`
	DownloadTimeout time.Duration `envconfig:"DOWNLOAD_TIMEOUT" default:"30s"`

	DownloadDir       string        `envconfig:"DOWNLOAD_DIR" default:"downloads"`
	RemoteDownloadDir string        `envconfig:"REMOTE_DOWNLOAD_DIR" default:"/downloads"`
	KeepDownloadedFor time.Duration `envconfig:"KEEP_DOWNLOADED_FOR" default:"24h"`
	CleanupInterval   time.Duration `envconfig:"CLEANUP_INTERVAL" default:"10m"`
	LogLevel          string        `envconfig:"LOG_LEVEL" default:"INFO"`
	DiscordWebhookURL string        `envconfig:"DISCORD_WEBHOOK_URL"`
	DBPath            string        `envconfig:"DB_PATH" default:"runs.db"`

	Telemetry struct {
		Enabled        bool   `split_words:"true" default:"true"`
		ServiceName    string `split_words:"true" default:"fetchpilot"`
		ServiceVersion string `split_words:"true" default:"dev"`
	}

	Actions struct {
		Username string `split_words:"true"`
		Password string `split_words:"true"`
	}

	Web struct {
		BindAddress     string        `split_words:"true" default:"0.0.0.0:8080"`
		ReadTimeout     time.Duration `split_words:"true" default:"30s"`
		WriteTimeout    time.Duration `split_words:"true" default:"5m"`
		IdleTimeout     time.Duration `split_words:"true" default:"5s"`
		ShutdownTimeout time.Duration `split_words:"true" default:"30s"`
	}
}

// LoadConfig reads environment variables and populates the Config struct.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error processing env: %w", err)
	}

	return &cfg, nil
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
