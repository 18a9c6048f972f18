package bot

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kryten-bot/kryten/pkg/kryten/channels/telegram"
	"github.com/kryten-bot/kryten/pkg/kryten/llm"
	"github.com/kryten-bot/kryten/pkg/kryten/store"
)

// Config is the full configuration tree.
type Config struct {
	Logging   LoggingConfig   `yaml:"logging"`
	Telegram  telegram.Config `yaml:"telegram"`
	Anthropic AnthropicConfig `yaml:"anthropic"`
	Access    AccessConfig    `yaml:"access"`
	Database  store.Config    `yaml:"database"`
	Bot       BotConfig       `yaml:"bot"`
	Pricing   PricingConfig   `yaml:"pricing"`
	Digest    DigestConfig    `yaml:"digest"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// AnthropicConfig configures the model client.
type AnthropicConfig struct {
	APIKey    string `yaml:"api_key"`
	BaseURL   string `yaml:"base_url"`
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`

	// ModelTimeout bounds each Messages API request in seconds.
	ModelTimeout int `yaml:"model_timeout"`
}

// AccessConfig configures the approval gate.
type AccessConfig struct {
	AdminUserID  int64   `yaml:"admin_user_id"`
	AllowedUsers []int64 `yaml:"allowed_users"`
}

// BotConfig tunes the dispatcher.
type BotConfig struct {
	PhotosDir     string `yaml:"photos_dir"`
	MaxHistory    int    `yaml:"max_history"`
	DedupCapacity int    `yaml:"dedup_capacity"`
}

// PricingConfig holds per-million token costs for usage accounting.
type PricingConfig struct {
	InputPerMillion  float64 `yaml:"input_per_million"`
	OutputPerMillion float64 `yaml:"output_per_million"`
}

// DigestConfig configures the daily summary.
type DigestConfig struct {
	ChatID   int64  `yaml:"chat_id"`
	Schedule string `yaml:"schedule"`
}

// DefaultConfig returns the configuration defaults.
func DefaultConfig() *Config {
	return &Config{
		Logging:  LoggingConfig{Level: "info", Format: "text"},
		Telegram: telegram.DefaultConfig(),
		Anthropic: AnthropicConfig{
			Model:        "claude-sonnet-4-20250514",
			MaxTokens:    1024,
			ModelTimeout: 60,
		},
		Database: store.Config{
			Path:        "./data/kryten.db",
			JournalMode: "WAL",
			BusyTimeout: 5000,
		},
		Bot: BotConfig{
			PhotosDir:     "./data/photos",
			MaxHistory:    20,
			DedupCapacity: 2000,
		},
		Pricing: PricingConfig{
			InputPerMillion:  3.0,
			OutputPerMillion: 15.0,
		},
		Digest: DigestConfig{Schedule: "0 21 * * *"},
	}
}

// LoadConfigFromFile loads configuration from a YAML file, layered over
// defaults, with ${VAR} expansion and environment overrides applied.
// An empty path falls back to FindConfigFile, and a missing file means
// env-only configuration.
func LoadConfigFromFile(path string) (*Config, error) {
	loadEnvFiles()

	if path == "" {
		path = FindConfigFile()
	}

	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %q: %w", path, err)
			}
		} else {
			expanded := expandEnvVars(string(data))
			if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
				return nil, fmt.Errorf("parse config %q: %w", path, err)
			}
		}
	}

	applyEnvOverrides(cfg)
	if err := resolveSecrets(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FindConfigFile returns the first config file that exists among the
// well-known locations, or "".
func FindConfigFile() string {
	candidates := []string{"./kryten.yaml", "./config.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "kryten", "config.yaml"))
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

// loadEnvFiles loads .env from the working directory when present.
func loadEnvFiles() {
	_ = godotenv.Load(".env")
}

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars substitutes ${VAR} references with their environment
// values. Unset variables expand to "".
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := match[2 : len(match)-1]
		return os.Getenv(name)
	})
}

// applyEnvOverrides lets the well-known environment variables win over
// file values.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.Token = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.Anthropic.APIKey = v
	}
	if v := os.Getenv("MODEL"); v != "" {
		cfg.Anthropic.Model = v
	}
	if v := os.Getenv("ADMIN_USER_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Access.AdminUserID = id
		}
	}
	if v := os.Getenv("ALLOWED_USERS"); v != "" {
		var ids []int64
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if id, err := strconv.ParseInt(part, 10, 64); err == nil {
				ids = append(ids, id)
			}
		}
		if len(ids) > 0 {
			cfg.Access.AllowedUsers = ids
		}
	}
}

// resolveSecrets fills the model API key from the OS keyring when the
// file and environment left it empty.
func resolveSecrets(cfg *Config) error {
	if cfg.Anthropic.APIKey != "" {
		return nil
	}
	key, err := GetKeyringAPIKey()
	if err == nil && key != "" {
		cfg.Anthropic.APIKey = key
	}
	return nil
}

// Validate checks the fields the bot cannot run without.
func (c *Config) Validate() error {
	if c.Telegram.Token == "" {
		return fmt.Errorf("telegram token is required (config telegram.token or TELEGRAM_BOT_TOKEN)")
	}
	if c.Anthropic.APIKey == "" {
		return fmt.Errorf("model API key is required (keyring, ANTHROPIC_API_KEY, or config anthropic.api_key)")
	}
	return nil
}

// LLMConfig adapts the Anthropic section to the client's config.
func (c *Config) LLMConfig() llm.ClientConfig {
	return llm.ClientConfig{
		APIKey:    c.Anthropic.APIKey,
		BaseURL:   c.Anthropic.BaseURL,
		MaxTokens: c.Anthropic.MaxTokens,
		Timeout:   time.Duration(c.Anthropic.ModelTimeout) * time.Second,
	}
}
