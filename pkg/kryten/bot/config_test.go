package bot

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kryten.yaml")
	data := `
logging:
  level: debug
  format: json
telegram:
  token: "file-token"
  request_timeout: 15
anthropic:
  api_key: "${TEST_KRYTEN_KEY}"
  model: claude-sonnet-4-20250514
  model_timeout: 90
access:
  admin_user_id: 42
  allowed_users: [7, 8]
pricing:
  input_per_million: 1.5
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("TEST_KRYTEN_KEY", "expanded-key")
	// Neutralize any ambient overrides.
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("MODEL", "")
	t.Setenv("ADMIN_USER_ID", "")
	t.Setenv("ALLOWED_USERS", "")

	cfg, err := LoadConfigFromFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFromFile() error = %v", err)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("logging = %+v", cfg.Logging)
	}
	if cfg.Telegram.Token != "file-token" {
		t.Errorf("token = %q", cfg.Telegram.Token)
	}
	if cfg.Anthropic.APIKey != "expanded-key" {
		t.Errorf("api key = %q, want env expansion", cfg.Anthropic.APIKey)
	}
	if cfg.Access.AdminUserID != 42 || len(cfg.Access.AllowedUsers) != 2 {
		t.Errorf("access = %+v", cfg.Access)
	}
	if cfg.Pricing.InputPerMillion != 1.5 {
		t.Errorf("pricing input = %v", cfg.Pricing.InputPerMillion)
	}
	// Untouched sections keep their defaults.
	if cfg.Pricing.OutputPerMillion != 15.0 {
		t.Errorf("pricing output = %v, want default 15", cfg.Pricing.OutputPerMillion)
	}
	if cfg.Bot.MaxHistory != 20 || cfg.Bot.DedupCapacity != 2000 {
		t.Errorf("bot defaults = %+v", cfg.Bot)
	}
	if cfg.Telegram.RequestTimeout != 15 {
		t.Errorf("telegram request_timeout = %d, want 15", cfg.Telegram.RequestTimeout)
	}
	if cfg.Anthropic.ModelTimeout != 90 {
		t.Errorf("anthropic model_timeout = %d, want 90", cfg.Anthropic.ModelTimeout)
	}
	if got := cfg.LLMConfig().Timeout; got != 90*time.Second {
		t.Errorf("LLMConfig().Timeout = %v, want 90s", got)
	}
}

func TestDefaultTimeouts(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	if cfg.Telegram.RequestTimeout != 30 {
		t.Errorf("telegram request_timeout default = %d, want 30", cfg.Telegram.RequestTimeout)
	}
	if cfg.Anthropic.ModelTimeout != 60 {
		t.Errorf("anthropic model_timeout default = %d, want 60", cfg.Anthropic.ModelTimeout)
	}
	if got := cfg.LLMConfig().Timeout; got != 60*time.Second {
		t.Errorf("LLMConfig().Timeout = %v, want 60s", got)
	}
}

func TestEnvOverridesWin(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kryten.yaml")
	data := `
telegram:
  token: "file-token"
anthropic:
  api_key: "file-key"
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("TELEGRAM_BOT_TOKEN", "env-token")
	t.Setenv("ANTHROPIC_API_KEY", "env-key")
	t.Setenv("ADMIN_USER_ID", "99")
	t.Setenv("ALLOWED_USERS", "1, 2,3")

	cfg, err := LoadConfigFromFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFromFile() error = %v", err)
	}
	if cfg.Telegram.Token != "env-token" {
		t.Errorf("token = %q, want env override", cfg.Telegram.Token)
	}
	if cfg.Anthropic.APIKey != "env-key" {
		t.Errorf("api key = %q, want env override", cfg.Anthropic.APIKey)
	}
	if cfg.Access.AdminUserID != 99 {
		t.Errorf("admin = %d", cfg.Access.AdminUserID)
	}
	if len(cfg.Access.AllowedUsers) != 3 || cfg.Access.AllowedUsers[2] != 3 {
		t.Errorf("allowed users = %v", cfg.Access.AllowedUsers)
	}
}

func TestValidateRequiresCredentials(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() with no token = nil, want error")
	}
	cfg.Telegram.Token = "t"
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() with no API key = nil, want error")
	}
	cfg.Anthropic.APIKey = "k"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("KRYTEN_TEST_VAR", "value")
	got := expandEnvVars("a ${KRYTEN_TEST_VAR} b ${KRYTEN_UNSET_VAR} c")
	if got != "a value b  c" {
		t.Errorf("expandEnvVars() = %q", got)
	}
}
