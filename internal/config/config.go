// Package config handles configuration loading and management for gala.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"

	apperrors "github.com/ShayCichocki/gala/internal/errors"
)

const (
	appName           = "gala"
	projectConfigName = ".gala.yaml"
	envPrefix         = "GALA"
)

// Config holds all configuration for gala.
type Config struct {
	Anthropic    AnthropicConfig            `mapstructure:"anthropic"`
	Model        ModelConfig                `mapstructure:"model"`
	Bedrock      BedrockConfig              `mapstructure:"bedrock"`
	Orchestrator OrchestratorConfig         `mapstructure:"orchestrator"`
	Selector     SelectorConfig             `mapstructure:"selector"`
	Storage      StorageConfig              `mapstructure:"storage"`
	Files        FilesConfig                `mapstructure:"files"`
	Signals      SignalsConfig              `mapstructure:"signals"`
	Logging      LoggingConfig              `mapstructure:"logging"`
	Server       ServerConfig               `mapstructure:"server"`
	Scheduler    SchedulerConfig            `mapstructure:"scheduler"`
	Connectors   map[string]ConnectorConfig `mapstructure:"connectors"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey string `mapstructure:"api_key"`
}

// ModelConfig configures the model gateway.
type ModelConfig struct {
	Name           string        `mapstructure:"name"`
	MaxTokens      int64         `mapstructure:"max_tokens"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	// Provider is "anthropic" or "bedrock".
	Provider string `mapstructure:"provider"`
}

// BedrockConfig holds AWS Bedrock settings.
type BedrockConfig struct {
	Region  string `mapstructure:"region"`
	Profile string `mapstructure:"profile"`
}

// OrchestratorConfig bounds the conversation loop.
type OrchestratorConfig struct {
	MaxRounds        int `mapstructure:"max_rounds"`
	HistoryCacheSize int `mapstructure:"history_cache_size"`
}

// SelectorConfig holds the task scoring weights.
type SelectorConfig struct {
	PriorityWeight  int `mapstructure:"priority_weight"`
	DueSoonBonus    int `mapstructure:"due_soon_bonus"`
	DueUrgentBonus  int `mapstructure:"due_urgent_bonus"`
	InProgressBonus int `mapstructure:"in_progress_bonus"`
}

// StorageConfig locates the SQLite database.
type StorageConfig struct {
	Path string `mapstructure:"path"`
}

// FilesConfig locates event artifacts.
type FilesConfig struct {
	Dir string `mapstructure:"dir"`
}

// SignalsConfig locates stop signal files.
type SignalsConfig struct {
	Dir string `mapstructure:"dir"`
}

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	Level         string `mapstructure:"level"`
	Format        string `mapstructure:"format"`
	Path          string `mapstructure:"path"`
	RetentionDays int    `mapstructure:"retention_days"`
}

// ServerConfig configures gala serve.
type ServerConfig struct {
	Addr      string `mapstructure:"addr"`
	JWTSecret string `mapstructure:"jwt_secret"`
}

// SchedulerConfig configures periodic resume. An empty schedule disables it.
type SchedulerConfig struct {
	ResumeSchedule string `mapstructure:"resume_schedule"`
}

// ConnectorConfig describes one external tool provider.
type ConnectorConfig struct {
	// Type is "mcp" or "http".
	Type    string            `mapstructure:"type"`
	Enabled bool              `mapstructure:"enabled"`
	Command string            `mapstructure:"command"`
	Args    []string          `mapstructure:"args"`
	URL     string            `mapstructure:"url"`
	Secrets map[string]string `mapstructure:"secrets"`
	// Tools is the advertised tool list for http connectors. MCP connectors
	// discover theirs from the server.
	Tools []ToolConfig `mapstructure:"tools"`
}

// ToolConfig declares a tool exposed by an http connector.
type ToolConfig struct {
	Name        string         `mapstructure:"name"`
	Description string         `mapstructure:"description"`
	Properties  map[string]any `mapstructure:"properties"`
	Required    []string       `mapstructure:"required"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY, GALA_MODEL_NAME, ...)
// 2. Project config (.gala.yaml in current directory or parent)
// 3. User config (~/.config/gala/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := newViper()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(getUserConfigDir())
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading project config %s: %w", projectConfig, err)
		}
		if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
			return nil, fmt.Errorf("merging project config: %w", err)
		}
	}

	return unmarshal(v)
}

// LoadFromPath loads configuration from a specific file on top of defaults
// and the environment.
func LoadFromPath(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return unmarshal(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY", "GALA_ANTHROPIC_API_KEY")
	return v
}

func unmarshal(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)
	cfg.Server.JWTSecret = expandEnv(cfg.Server.JWTSecret)
	for id, c := range cfg.Connectors {
		for k, s := range c.Secrets {
			c.Secrets[k] = expandEnv(s)
		}
		cfg.Connectors[id] = c
	}
	return cfg, nil
}

// Validate reports the first invalid setting as a ConfigError.
func (c *Config) Validate() error {
	switch c.Model.Provider {
	case "anthropic", "bedrock":
	default:
		return &apperrors.ConfigError{Field: "model.provider", Message: fmt.Sprintf("model.provider must be anthropic or bedrock, got %q", c.Model.Provider)}
	}
	if c.Model.Provider == "bedrock" && c.Bedrock.Region == "" {
		return &apperrors.ConfigError{Field: "bedrock.region", Message: "bedrock.region is required when model.provider is bedrock"}
	}
	if c.Model.MaxTokens <= 0 {
		return &apperrors.ConfigError{Field: "model.max_tokens", Message: "model.max_tokens must be positive"}
	}
	if c.Orchestrator.MaxRounds <= 0 {
		return &apperrors.ConfigError{Field: "orchestrator.max_rounds", Message: "orchestrator.max_rounds must be positive"}
	}

	for _, id := range c.ConnectorIDs() {
		conn := c.Connectors[id]
		switch conn.Type {
		case "mcp":
			if conn.Command == "" && conn.URL == "" {
				return &apperrors.ConfigError{Field: "connectors." + id, Message: fmt.Sprintf("connector %s: mcp needs command or url", id)}
			}
		case "http":
			if conn.URL == "" {
				return &apperrors.ConfigError{Field: "connectors." + id, Message: fmt.Sprintf("connector %s: http needs url", id)}
			}
		default:
			return &apperrors.ConfigError{Field: "connectors." + id, Message: fmt.Sprintf("connector %s: unknown type %q", id, conn.Type)}
		}
	}
	return nil
}

// ConnectorIDs returns connector ids in sorted order so registration is
// deterministic.
func (c *Config) ConnectorIDs() []string {
	ids := make([]string, 0, len(c.Connectors))
	for id := range c.Connectors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Save writes the core settings to the user config file. Connector blocks
// are written as-is.
func Save(cfg *Config) error {
	path, err := ensureUserConfigFile()
	if err != nil {
		return err
	}

	v := viper.New()
	v.SetConfigFile(path)
	for key, value := range flatten(cfg) {
		v.Set(key, value)
	}
	if len(cfg.Connectors) > 0 {
		v.Set("connectors", cfg.Connectors)
	}
	return v.WriteConfig()
}

// SetValue writes a single key to the user config file, keeping the rest.
func SetValue(key, value string) error {
	if !IsKnownKey(key) {
		return &apperrors.ConfigError{Field: key, Message: fmt.Sprintf("unknown config key %q", key)}
	}
	path, err := ensureUserConfigFile()
	if err != nil {
		return err
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	v.Set(key, value)
	return v.WriteConfig()
}

// IsKnownKey reports whether key is a settable scalar key.
func IsKnownKey(key string) bool {
	_, ok := flatten(Default())[key]
	return ok
}

func ensureUserConfigFile() (string, error) {
	dir := getUserConfigDir()
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("creating config directory: %w", err)
	}
	path := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.WriteFile(path, nil, 0600); err != nil {
			return "", fmt.Errorf("creating config file: %w", err)
		}
	}
	return path, nil
}

// flatten maps every scalar setting to its dotted key.
func flatten(cfg *Config) map[string]any {
	return map[string]any{
		"anthropic.api_key":               cfg.Anthropic.APIKey,
		"model.name":                      cfg.Model.Name,
		"model.max_tokens":                cfg.Model.MaxTokens,
		"model.request_timeout":           cfg.Model.RequestTimeout.String(),
		"model.provider":                  cfg.Model.Provider,
		"bedrock.region":                  cfg.Bedrock.Region,
		"bedrock.profile":                 cfg.Bedrock.Profile,
		"orchestrator.max_rounds":         cfg.Orchestrator.MaxRounds,
		"orchestrator.history_cache_size": cfg.Orchestrator.HistoryCacheSize,
		"selector.priority_weight":        cfg.Selector.PriorityWeight,
		"selector.due_soon_bonus":         cfg.Selector.DueSoonBonus,
		"selector.due_urgent_bonus":       cfg.Selector.DueUrgentBonus,
		"selector.in_progress_bonus":      cfg.Selector.InProgressBonus,
		"storage.path":                    cfg.Storage.Path,
		"files.dir":                       cfg.Files.Dir,
		"signals.dir":                     cfg.Signals.Dir,
		"logging.level":                   cfg.Logging.Level,
		"logging.format":                  cfg.Logging.Format,
		"logging.path":                    cfg.Logging.Path,
		"logging.retention_days":          cfg.Logging.RetentionDays,
		"server.addr":                     cfg.Server.Addr,
		"server.jwt_secret":               cfg.Server.JWTSecret,
		"scheduler.resume_schedule":       cfg.Scheduler.ResumeSchedule,
	}
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults registers every key so environment overrides apply to it.
func setDefaults(v *viper.Viper) {
	for key, value := range flatten(Default()) {
		v.SetDefault(key, value)
	}
}

// getUserConfigDir returns the XDG config directory for gala.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, appName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", appName)
	}
	return filepath.Join(home, ".config", appName)
}

func dataDir() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, appName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".local", "share", appName)
	}
	return filepath.Join(home, ".local", "share", appName)
}

// findProjectConfig searches for .gala.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		configPath := filepath.Join(cwd, projectConfigName)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		parent := filepath.Dir(cwd)
		if parent == cwd {
			return ""
		}
		cwd = parent
	}
}

// expandEnv expands ${VAR} references in a string.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Default returns a Config with default values.
func Default() *Config {
	data := dataDir()
	return &Config{
		Model: ModelConfig{
			Name:           "claude-sonnet-4-20250514",
			MaxTokens:      4096,
			RequestTimeout: 2 * time.Minute,
			Provider:       "anthropic",
		},
		Orchestrator: OrchestratorConfig{
			MaxRounds:        20,
			HistoryCacheSize: 256,
		},
		Selector: SelectorConfig{
			PriorityWeight:  100,
			DueSoonBonus:    30,
			DueUrgentBonus:  50,
			InProgressBonus: 20,
		},
		Storage: StorageConfig{Path: filepath.Join(data, "gala.db")},
		Files:   FilesConfig{Dir: filepath.Join(data, "files")},
		Signals: SignalsConfig{Dir: filepath.Join(data, "signals")},
		Logging: LoggingConfig{
			Level:         "info",
			Format:        "text",
			RetentionDays: 7,
		},
		Server: ServerConfig{Addr: "127.0.0.1:8080"},
	}
}
