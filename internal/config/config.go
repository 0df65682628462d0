// Package config handles pwmcfg configuration parsing and management.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/dongho-jung/pwmcfg/internal/constants"
)

// Theme defines the console color theme.
type Theme string

const (
	ThemeAuto  Theme = "auto"
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// ValidThemes returns all valid theme values.
func ValidThemes() []Theme {
	return []Theme{ThemeAuto, ThemeLight, ThemeDark}
}

// ServerConfig holds the configuration server connection settings.
type ServerConfig struct {
	URL             string        `yaml:"url"`       // e.g. https://pwm.example.com
	BasePath        string        `yaml:"base_path"` // editor endpoint path
	Timeout         time.Duration `yaml:"-"`
	TimeoutRaw      string        `yaml:"timeout"`
	FormID          string        `yaml:"form_id"` // anti-forgery id, normally learned at bootstrap
	FatalErrorCodes []int         `yaml:"fatal_error_codes"`
}

// EditorConfig holds console behavior settings.
type EditorConfig struct {
	SearchDelay    time.Duration `yaml:"-"`
	SearchDelayRaw string        `yaml:"search_delay"`
	MaxLevel       int           `yaml:"max_level"`
	ModifiedOnly   bool          `yaml:"modified_only"`
	Locale         string        `yaml:"locale"`
	Theme          Theme         `yaml:"theme"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"` // info or debug
	File  string `yaml:"file"`  // defaults to <state_dir>/pwmcfg.log
}

// Config represents the pwmcfg configuration.
type Config struct {
	Server   ServerConfig `yaml:"server"`
	Editor   EditorConfig `yaml:"editor"`
	StateDir string       `yaml:"state_dir"`
	Log      LogConfig    `yaml:"log"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			BasePath:        constants.DefaultBasePath,
			Timeout:         constants.DefaultTimeout,
			TimeoutRaw:      constants.DefaultTimeout.String(),
			FatalErrorCodes: append([]int(nil), constants.DefaultFatalErrorCodes...),
		},
		Editor: EditorConfig{
			SearchDelay:    constants.DefaultSearchDelay,
			SearchDelayRaw: constants.DefaultSearchDelay.String(),
			MaxLevel:       constants.DefaultMaxLevel,
			Locale:         constants.DefaultLocale,
			Theme:          ThemeAuto,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// DefaultPath returns the default config file location:
// $XDG_CONFIG_HOME/pwmcfg/config.yaml (or ~/.config/pwmcfg/config.yaml).
func DefaultPath() (string, error) {
	if p := os.Getenv(constants.EnvConfig); p != "" {
		return p, nil
	}
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, constants.ConfigDirName, constants.ConfigFileName), nil
}

// Load reads the configuration from the given path. A missing file yields the
// default configuration. Environment variables in the form ${VAR} are expanded
// before parsing and PWMCFG_* variables override file values.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// defaults only
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.parseDurations(); err != nil {
		return nil, fmt.Errorf("failed to parse durations: %w", err)
	}

	return cfg, nil
}

// LoadDotEnv loads a .env file from dir into the process environment.
// Existing variables are never overwritten. A missing file is not an error.
func LoadDotEnv(dir string) error {
	path := filepath.Join(dir, constants.EnvFileName)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

func (c *Config) applyEnv() {
	if v := os.Getenv(constants.EnvServerURL); v != "" {
		c.Server.URL = v
	}
	if v := os.Getenv(constants.EnvFormID); v != "" {
		c.Server.FormID = v
	}
	if v := os.Getenv(constants.EnvLocale); v != "" {
		c.Editor.Locale = v
	}
	if debug, err := strconv.ParseBool(os.Getenv(constants.EnvDebug)); err == nil && debug {
		c.Log.Level = "debug"
	}
}

func (c *Config) parseDurations() error {
	if c.Server.TimeoutRaw != "" {
		d, err := time.ParseDuration(c.Server.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("invalid server.timeout %q: %w", c.Server.TimeoutRaw, err)
		}
		c.Server.Timeout = d
	}
	if c.Editor.SearchDelayRaw != "" {
		d, err := time.ParseDuration(c.Editor.SearchDelayRaw)
		if err != nil {
			return fmt.Errorf("invalid editor.search_delay %q: %w", c.Editor.SearchDelayRaw, err)
		}
		c.Editor.SearchDelay = d
	}
	return nil
}

// Normalize fixes out-of-range values in place and returns a warning for each
// change it made.
func (c *Config) Normalize() []string {
	var warnings []string

	if c.Server.BasePath == "" {
		c.Server.BasePath = constants.DefaultBasePath
	}
	if !strings.HasPrefix(c.Server.BasePath, "/") {
		c.Server.BasePath = "/" + c.Server.BasePath
		warnings = append(warnings, fmt.Sprintf("server.base_path should start with '/', using %q", c.Server.BasePath))
	}
	c.Server.URL = strings.TrimSuffix(c.Server.URL, "/")

	if c.Server.Timeout <= 0 {
		warnings = append(warnings, fmt.Sprintf("server.timeout must be positive, using %v", constants.DefaultTimeout))
		c.Server.Timeout = constants.DefaultTimeout
		c.Server.TimeoutRaw = constants.DefaultTimeout.String()
	}
	if c.Editor.SearchDelay < 0 {
		warnings = append(warnings, fmt.Sprintf("editor.search_delay must not be negative, using %v", constants.DefaultSearchDelay))
		c.Editor.SearchDelay = constants.DefaultSearchDelay
		c.Editor.SearchDelayRaw = constants.DefaultSearchDelay.String()
	}
	if c.Editor.MaxLevel < constants.MinLevel || c.Editor.MaxLevel > constants.MaxLevel {
		warnings = append(warnings, fmt.Sprintf("editor.max_level %d out of range [%d,%d], using %d",
			c.Editor.MaxLevel, constants.MinLevel, constants.MaxLevel, constants.DefaultMaxLevel))
		c.Editor.MaxLevel = constants.DefaultMaxLevel
	}
	if c.Editor.Locale == "" {
		c.Editor.Locale = constants.DefaultLocale
	}

	validTheme := false
	for _, t := range ValidThemes() {
		if c.Editor.Theme == t {
			validTheme = true
			break
		}
	}
	if !validTheme {
		if c.Editor.Theme != "" {
			warnings = append(warnings, fmt.Sprintf("unknown editor.theme %q, using auto", c.Editor.Theme))
		}
		c.Editor.Theme = ThemeAuto
	}

	switch strings.ToLower(c.Log.Level) {
	case "", "info":
		c.Log.Level = "info"
	case "debug":
		c.Log.Level = "debug"
	default:
		warnings = append(warnings, fmt.Sprintf("unknown log.level %q, using info", c.Log.Level))
		c.Log.Level = "info"
	}

	return warnings
}

// Validate checks the settings required to talk to a server.
func (c *Config) Validate() error {
	if c.Server.URL == "" {
		return fmt.Errorf("server.url is required (set it in the config file or %s)", constants.EnvServerURL)
	}
	u, err := url.Parse(c.Server.URL)
	if err != nil {
		return fmt.Errorf("invalid server.url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("server.url must use http or https, got %q", u.Scheme)
	}
	return nil
}

// Debug reports whether debug logging is enabled.
func (c *Config) Debug() bool {
	return c.Log.Level == "debug"
}

// EndpointURL returns the full editor endpoint URL.
func (c *Config) EndpointURL() string {
	return c.Server.URL + c.Server.BasePath
}

// Save writes the configuration to path, creating parent directories.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	content := "# pwmcfg configuration\n# Generated by pwmcfg config init\n\n" + string(data)
	return os.WriteFile(path, []byte(content), 0644)
}

// Exists checks if a configuration file exists at path.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
