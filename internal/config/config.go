package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the trading bot.
type Config struct {
	Slack      Slack            `yaml:"slack"`
	Accounts   []Account        `yaml:"accounts"`
	Assignment AssignmentConfig `yaml:"assignment"`
	Risk       RiskConfig       `yaml:"risk"`
	Storage    Storage          `yaml:"storage"`
	Server     Server           `yaml:"server"`
	Logging    Logging          `yaml:"logging"`
}

// Slack holds tokens and access control for the Slack app.
type Slack struct {
	BotToken     string   `yaml:"bot_token"`
	AppToken     string   `yaml:"app_token"`
	AdminUserIDs []string `yaml:"admin_user_ids"`
	AuditChannel string   `yaml:"audit_channel"`
}

// Account holds credentials and routing metadata for one Alpaca brokerage
// account. Immutable after load.
type Account struct {
	ID         string `yaml:"id"`
	Name       string `yaml:"name"`
	APIKey     string `yaml:"api_key"`
	APISecret  string `yaml:"api_secret"`
	BaseURL    string `yaml:"base_url"`
	DataURL    string `yaml:"data_url"`
	Paper      bool   `yaml:"paper"`
	Department string `yaml:"department"`
	MaxUsers   int    `yaml:"max_users"` // 0 = unlimited
}

// AssignmentConfig controls how users are mapped onto accounts.
type AssignmentConfig struct {
	Strategy string `yaml:"strategy"` // "round_robin", "least_loaded", "department"
	FilePath string `yaml:"file_path"`
}

// RiskConfig holds LLM settings and static pre-trade limits.
type RiskConfig struct {
	AnthropicAPIKey string  `yaml:"anthropic_api_key"`
	Model           string  `yaml:"model"`
	MaxTokens       int     `yaml:"max_tokens"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
	LLMPerMinute    int     `yaml:"llm_per_minute"`
	MaxTradeGMV     float64 `yaml:"max_trade_gmv"`
	MaxPositionPct  float64 `yaml:"max_position_pct"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Server holds the ops HTTP listener and the status-refresh schedule.
type Server struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	RefreshCron string `yaml:"refresh_cron"` // robfig/cron spec, e.g. "@every 1m"
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, applies environment variable overrides, and validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Assignment.Strategy == "" {
		cfg.Assignment.Strategy = "round_robin"
	}
	if cfg.Assignment.FilePath == "" {
		cfg.Assignment.FilePath = "user_assignments.json"
	}
	if cfg.Risk.Model == "" {
		cfg.Risk.Model = "claude-sonnet-4-20250514"
	}
	if cfg.Risk.MaxTokens == 0 {
		cfg.Risk.MaxTokens = 1024
	}
	if cfg.Risk.CacheTTLSeconds == 0 {
		cfg.Risk.CacheTTLSeconds = 300
	}
	if cfg.Risk.LLMPerMinute == 0 {
		cfg.Risk.LLMPerMinute = 30
	}
	if cfg.Server.RefreshCron == "" {
		cfg.Server.RefreshCron = "@every 1m"
	}
	for i := range cfg.Accounts {
		if cfg.Accounts[i].BaseURL == "" {
			cfg.Accounts[i].BaseURL = "https://paper-api.alpaca.markets"
		}
	}
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SLACK_BOT_TOKEN"); v != "" {
		cfg.Slack.BotToken = v
	}
	if v := os.Getenv("SLACK_APP_TOKEN"); v != "" {
		cfg.Slack.AppToken = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.Risk.AnthropicAPIKey = v
	}
	if v := os.Getenv("ASSIGNMENTS_PATH"); v != "" {
		cfg.Assignment.FilePath = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Standard Alpaca env vars apply to a single-account setup only: with
	// multiple accounts there is no way to tell which one they target.
	if len(cfg.Accounts) == 1 {
		if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
			cfg.Accounts[0].APIKey = v
		}
		if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
			cfg.Accounts[0].APISecret = v
		}
	}
}

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

// Validate checks the loaded configuration for structural problems that would
// otherwise surface as confusing runtime failures.
func (c *Config) Validate() error {
	if c.Slack.BotToken == "" {
		return fmt.Errorf("config: slack.bot_token is required")
	}
	if c.Slack.AppToken == "" {
		return fmt.Errorf("config: slack.app_token is required")
	}
	if len(c.Accounts) == 0 {
		return fmt.Errorf("config: at least one account is required")
	}

	seen := make(map[string]struct{}, len(c.Accounts))
	for _, a := range c.Accounts {
		if a.ID == "" {
			return fmt.Errorf("config: account with empty id")
		}
		if _, dup := seen[a.ID]; dup {
			return fmt.Errorf("config: duplicate account id %q", a.ID)
		}
		seen[a.ID] = struct{}{}
		if a.APIKey == "" || a.APISecret == "" {
			return fmt.Errorf("config: account %q is missing credentials", a.ID)
		}
	}

	switch c.Assignment.Strategy {
	case "round_robin", "least_loaded", "department":
	default:
		return fmt.Errorf("config: unknown assignment strategy %q", c.Assignment.Strategy)
	}
	return nil
}

// AccountByID returns the account config with the given ID, or nil.
func (c *Config) AccountByID(id string) *Account {
	for i := range c.Accounts {
		if c.Accounts[i].ID == id {
			return &c.Accounts[i]
		}
	}
	return nil
}

// IsAdmin reports whether the Slack user is in the admin list.
func (c *Config) IsAdmin(userID string) bool {
	for _, id := range c.Slack.AdminUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}
