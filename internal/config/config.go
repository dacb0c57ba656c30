// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Agent() AgentConfig
	Executor() ExecutorConfig
	Snapshot() SnapshotConfig
	Gesture() GestureConfig
	Platform() PlatformConfig
	Journal() JournalConfig

	// CLI overrides
	SetPlatformType(string)
	SetADBSerial(string)
	SetBrowserStartURL(string)
	SetSystemPromptFile(string)
	SetMaxConsecutiveFailures(int)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	AgentCfg    AgentConfig    `mapstructure:"agent" yaml:"agent"`
	ExecutorCfg ExecutorConfig `mapstructure:"executor" yaml:"executor"`
	SnapshotCfg SnapshotConfig `mapstructure:"snapshot" yaml:"snapshot"`
	GestureCfg  GestureConfig  `mapstructure:"gesture" yaml:"gesture"`
	PlatformCfg PlatformConfig `mapstructure:"platform" yaml:"platform"`
	JournalCfg  JournalConfig  `mapstructure:"journal" yaml:"journal"`
}

var _ Interface = (*Config)(nil)

// --- Getters ---

func (c *Config) Logger() LoggerConfig     { return c.LoggerCfg }
func (c *Config) Agent() AgentConfig       { return c.AgentCfg }
func (c *Config) Executor() ExecutorConfig { return c.ExecutorCfg }
func (c *Config) Snapshot() SnapshotConfig { return c.SnapshotCfg }
func (c *Config) Gesture() GestureConfig   { return c.GestureCfg }
func (c *Config) Platform() PlatformConfig { return c.PlatformCfg }
func (c *Config) Journal() JournalConfig   { return c.JournalCfg }

// --- Setters ---

func (c *Config) SetPlatformType(t string)        { c.PlatformCfg.Type = t }
func (c *Config) SetADBSerial(s string)           { c.PlatformCfg.ADB.Serial = s }
func (c *Config) SetBrowserStartURL(u string)     { c.PlatformCfg.Browser.StartURL = u }
func (c *Config) SetSystemPromptFile(p string)    { c.AgentCfg.SystemPromptFile = p }
func (c *Config) SetMaxConsecutiveFailures(n int) { c.AgentCfg.Retry.MaxConsecutiveFailures = n }

// LoggerConfig defines all the settings for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color names for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// LLMProvider identifies a plan provider backend.
type LLMProvider string

const (
	ProviderGemini   LLMProvider = "gemini"
	ProviderScripted LLMProvider = "scripted"
)

// LLMConfig configures the plan provider.
type LLMConfig struct {
	Provider          LLMProvider   `mapstructure:"provider" yaml:"provider"`
	Model             string        `mapstructure:"model" yaml:"model"`
	APIKey            string        `mapstructure:"api_key" yaml:"api_key"`
	APITimeout        time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature       float32       `mapstructure:"temperature" yaml:"temperature"`
	TopP              float32       `mapstructure:"top_p" yaml:"top_p"`
	TopK              int           `mapstructure:"top_k" yaml:"top_k"`
	MaxTokens         int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	// ScriptFile is read by the scripted provider.
	ScriptFile string `mapstructure:"script_file" yaml:"script_file"`
}

// RetryConfig bounds how the loop reacts to consecutive failed cycles.
type RetryConfig struct {
	// MaxConsecutiveFailures of 0 retries forever.
	MaxConsecutiveFailures int           `mapstructure:"max_consecutive_failures" yaml:"max_consecutive_failures"`
	BackoffMultiplier      float64       `mapstructure:"backoff_multiplier" yaml:"backoff_multiplier"`
	MaxFailureDelay        time.Duration `mapstructure:"max_failure_delay" yaml:"max_failure_delay"`
}

// AgentConfig holds settings for the control loop.
type AgentConfig struct {
	LLM              LLMConfig     `mapstructure:"llm" yaml:"llm"`
	SystemPromptFile string        `mapstructure:"system_prompt_file" yaml:"system_prompt_file"`
	HistoryLimit     int           `mapstructure:"history_limit" yaml:"history_limit"`
	RepetitionLimit  int           `mapstructure:"repetition_limit" yaml:"repetition_limit"`
	SuccessDelay     time.Duration `mapstructure:"success_delay" yaml:"success_delay"`
	FailureDelay     time.Duration `mapstructure:"failure_delay" yaml:"failure_delay"`
	Retry            RetryConfig   `mapstructure:"retry" yaml:"retry"`
}

// ExecutorConfig holds the action executor's timings.
type ExecutorConfig struct {
	SettleDelay    time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	AppLaunchDelay time.Duration `mapstructure:"app_launch_delay" yaml:"app_launch_delay"`
	GestureTimeout time.Duration `mapstructure:"gesture_timeout" yaml:"gesture_timeout"`
}

// SnapshotConfig controls loading indicator polling and traversal limits.
type SnapshotConfig struct {
	LoadingTimeout time.Duration `mapstructure:"loading_timeout" yaml:"loading_timeout"`
	PollInterval   time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	LoadingPattern string        `mapstructure:"loading_pattern" yaml:"loading_pattern"`
	MaxDepth       int           `mapstructure:"max_depth" yaml:"max_depth"`
}

// PlatformConfig selects and configures the automated interface.
type PlatformConfig struct {
	Type    string        `mapstructure:"type" yaml:"type"`
	ADB     ADBConfig     `mapstructure:"adb" yaml:"adb"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
}

// ADBConfig configures the Android platform.
type ADBConfig struct {
	Path           string        `mapstructure:"path" yaml:"path"`
	Serial         string        `mapstructure:"serial" yaml:"serial"`
	CommandTimeout time.Duration `mapstructure:"command_timeout" yaml:"command_timeout"`
}

// BrowserConfig configures the Chromium platform.
type BrowserConfig struct {
	Headless     bool              `mapstructure:"headless" yaml:"headless"`
	StartURL     string            `mapstructure:"start_url" yaml:"start_url"`
	HomeURL      string            `mapstructure:"home_url" yaml:"home_url"`
	WindowWidth  int               `mapstructure:"window_width" yaml:"window_width"`
	WindowHeight int               `mapstructure:"window_height" yaml:"window_height"`
	Args         []string          `mapstructure:"args" yaml:"args"`
	Applications map[string]string `mapstructure:"applications" yaml:"applications"`
}

// PostgresConfig holds connection details for the run journal.
type PostgresConfig struct {
	URL      string `mapstructure:"url" yaml:"url"`
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"password"`
	DBName   string `mapstructure:"dbname" yaml:"dbname"`
	SSLMode  string `mapstructure:"sslmode" yaml:"sslmode"`
}

// DSN returns URL when set, otherwise a keyword/value connection string.
func (p PostgresConfig) DSN() string {
	if p.URL != "" {
		return p.URL
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.DBName, p.SSLMode)
}

// JournalConfig enables the per-cycle run journal.
type JournalConfig struct {
	Enabled  bool           `mapstructure:"enabled" yaml:"enabled"`
	Postgres PostgresConfig `mapstructure:"postgres" yaml:"postgres"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "uipilot")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Agent --
	v.SetDefault("agent.llm.provider", string(ProviderGemini))
	v.SetDefault("agent.llm.model", "gemini-2.5-flash")
	v.SetDefault("agent.llm.api_timeout", "60s")
	v.SetDefault("agent.llm.temperature", 0.2)
	v.SetDefault("agent.llm.top_p", 0.95)
	v.SetDefault("agent.llm.top_k", 40)
	v.SetDefault("agent.llm.max_tokens", 2048)
	v.SetDefault("agent.llm.requests_per_minute", 30)
	v.SetDefault("agent.history_limit", 20)
	v.SetDefault("agent.repetition_limit", 50)
	v.SetDefault("agent.success_delay", "1s")
	v.SetDefault("agent.failure_delay", "2s")
	v.SetDefault("agent.retry.max_consecutive_failures", 0)
	v.SetDefault("agent.retry.backoff_multiplier", 1.0)
	v.SetDefault("agent.retry.max_failure_delay", "30s")

	// -- Executor --
	v.SetDefault("executor.settle_delay", "200ms")
	v.SetDefault("executor.app_launch_delay", "1500ms")
	v.SetDefault("executor.gesture_timeout", "10s")

	// -- Snapshot --
	v.SetDefault("snapshot.loading_timeout", "10s")
	v.SetDefault("snapshot.poll_interval", "500ms")
	v.SetDefault("snapshot.loading_pattern", "(?i)progress|loading")
	v.SetDefault("snapshot.max_depth", 512)

	setGestureDefaults(v)

	// -- Platform --
	v.SetDefault("platform.type", "adb")
	v.SetDefault("platform.adb.path", "adb")
	v.SetDefault("platform.adb.command_timeout", "20s")
	v.SetDefault("platform.browser.headless", true)
	v.SetDefault("platform.browser.start_url", "about:blank")
	v.SetDefault("platform.browser.window_width", 412)
	v.SetDefault("platform.browser.window_height", 915)

	// -- Journal --
	v.SetDefault("journal.enabled", false)
	v.SetDefault("journal.postgres.host", "localhost")
	v.SetDefault("journal.postgres.port", 5432)
	v.SetDefault("journal.postgres.user", "uipilot")
	v.SetDefault("journal.postgres.dbname", "uipilot")
	v.SetDefault("journal.postgres.sslmode", "disable")
}

// NewConfigFromViper unmarshals, resolves secrets and validates a config.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	_ = v.BindEnv("agent.llm.api_key", "UIPILOT_GEMINI_API_KEY", "GEMINI_API_KEY")
	_ = v.BindEnv("journal.postgres.password", "UIPILOT_JOURNAL_PASSWORD")
	_ = v.BindEnv("journal.postgres.url", "UIPILOT_JOURNAL_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if cfg.AgentCfg.LLM.APIKey == "" {
		cfg.AgentCfg.LLM.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func (c *Config) expandPaths() error {
	for _, p := range []*string{
		&c.LoggerCfg.LogFile,
		&c.AgentCfg.SystemPromptFile,
		&c.AgentCfg.LLM.ScriptFile,
	} {
		if *p == "" {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("failed to expand path %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.AgentCfg.Validate(); err != nil {
		return fmt.Errorf("agent configuration invalid: %w", err)
	}
	if c.ExecutorCfg.SettleDelay < 0 || c.ExecutorCfg.AppLaunchDelay < 0 {
		return fmt.Errorf("executor delays must not be negative")
	}
	if c.ExecutorCfg.GestureTimeout <= 0 {
		return fmt.Errorf("executor.gesture_timeout must be positive")
	}
	if c.SnapshotCfg.PollInterval <= 0 {
		return fmt.Errorf("snapshot.poll_interval must be positive")
	}
	if c.SnapshotCfg.LoadingTimeout < 0 {
		return fmt.Errorf("snapshot.loading_timeout must not be negative")
	}
	if _, err := regexp.Compile(c.SnapshotCfg.LoadingPattern); err != nil {
		return fmt.Errorf("snapshot.loading_pattern is not a valid expression: %w", err)
	}
	if err := c.GestureCfg.Validate(); err != nil {
		return fmt.Errorf("gesture configuration invalid: %w", err)
	}
	switch c.PlatformCfg.Type {
	case "adb", "browser":
	default:
		return fmt.Errorf("platform.type must be one of adb, browser; got %q", c.PlatformCfg.Type)
	}
	if c.JournalCfg.Enabled && c.JournalCfg.Postgres.URL == "" && c.JournalCfg.Postgres.Host == "" {
		return fmt.Errorf("journal.postgres requires either url or host when the journal is enabled")
	}
	return nil
}

// Validate checks the AgentConfig settings.
func (a *AgentConfig) Validate() error {
	if a.HistoryLimit <= 0 {
		return fmt.Errorf("history_limit must be a positive integer")
	}
	if a.RepetitionLimit <= 0 {
		return fmt.Errorf("repetition_limit must be a positive integer")
	}
	if a.SuccessDelay < 0 || a.FailureDelay < 0 {
		return fmt.Errorf("cycle delays must not be negative")
	}
	if a.Retry.MaxConsecutiveFailures < 0 {
		return fmt.Errorf("retry.max_consecutive_failures must not be negative")
	}
	if a.Retry.BackoffMultiplier < 1.0 {
		return fmt.Errorf("retry.backoff_multiplier must be at least 1.0")
	}
	switch a.LLM.Provider {
	case ProviderGemini, ProviderScripted:
	default:
		return fmt.Errorf("llm.provider %q is not supported", a.LLM.Provider)
	}
	return nil
}
