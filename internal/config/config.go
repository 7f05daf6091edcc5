// Package config loads voiceplanner settings from a YAML file, the
// environment and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ajz007/ai-voice-planner/internal/calendar"
	"github.com/ajz007/ai-voice-planner/internal/capture"
	"github.com/ajz007/ai-voice-planner/internal/daemon"
	"github.com/ajz007/ai-voice-planner/internal/db"
	"github.com/ajz007/ai-voice-planner/internal/jira"
	"github.com/ajz007/ai-voice-planner/internal/transcribe"
)

// EnvPrefix prefixes environment overrides, e.g. VOICEPLANNER_SERVER_ADDRESS.
const EnvPrefix = "VOICEPLANNER"

// Config is the complete voiceplanner configuration.
type Config struct {
	Store         StoreConfig         `mapstructure:"store" yaml:"store"`
	Capture       CaptureConfig       `mapstructure:"capture" yaml:"capture"`
	Transcription TranscriptionConfig `mapstructure:"transcription" yaml:"transcription"`
	Jira          JiraConfig          `mapstructure:"jira" yaml:"jira"`
	Calendar      CalendarConfig      `mapstructure:"calendar" yaml:"calendar"`
	Server        ServerConfig        `mapstructure:"server" yaml:"server"`
	Logging       LoggingConfig       `mapstructure:"logging" yaml:"logging"`
}

// StoreConfig locates the SQLite database.
type StoreConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// CaptureConfig configures the microphone recorder.
type CaptureConfig struct {
	// Command records raw mono s16le PCM to stdout.
	Command    []string `mapstructure:"command" yaml:"command"`
	SampleRate int      `mapstructure:"sample_rate" yaml:"sample_rate"`
}

// TranscriptionConfig selects and configures the recognition engine.
type TranscriptionConfig struct {
	Engine     string   `mapstructure:"engine" yaml:"engine"`
	SocketPath string   `mapstructure:"socket_path" yaml:"socket_path"`
	Locale     string   `mapstructure:"locale" yaml:"locale"`
	Device     string   `mapstructure:"device" yaml:"device,omitempty"`
	Command    string   `mapstructure:"command" yaml:"command"`
	Args       []string `mapstructure:"args" yaml:"args"`
	// FlushTimeout is in seconds.
	FlushTimeout float64 `mapstructure:"flush_timeout" yaml:"flush_timeout"`
}

// JiraConfig holds the JIRA site used by the server proxy and the server
// URL used by the CLI.
type JiraConfig struct {
	jira.Config `mapstructure:",squash" yaml:",inline"`
	// ServerURL is the voiceplanner server the CLI sends ticket requests to.
	ServerURL string `mapstructure:"server_url" yaml:"server_url"`
}

// CalendarConfig holds the Google OAuth client and where the CLI keeps its
// credential.
type CalendarConfig struct {
	calendar.Config `mapstructure:",squash" yaml:",inline"`
	// CallbackAddress is where the CLI listens for the OAuth redirect.
	CallbackAddress string `mapstructure:"callback_address" yaml:"callback_address"`
	TokenFile       string `mapstructure:"token_file" yaml:"token_file"`
}

// ServerConfig configures the pass-through HTTP server.
type ServerConfig struct {
	Address string `mapstructure:"address" yaml:"address"`
	// AllowedOrigins limits CORS. Empty mirrors any origin.
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

// LoggingConfig configures the slog logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	// Output is stdout, stderr or a file path.
	Output string `mapstructure:"output" yaml:"output"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Store: StoreConfig{Path: db.DefaultDBPath()},
		Capture: CaptureConfig{
			Command:    append([]string(nil), capture.DefaultCommand...),
			SampleRate: capture.DefaultSampleRate,
		},
		Transcription: TranscriptionConfig{
			Engine:       transcribe.EngineAuto,
			SocketPath:   daemon.SocketPath(),
			Locale:       "en-US",
			Command:      "voiceplanner-recognizer",
			Args:         []string{},
			FlushTimeout: 2,
		},
		Jira: JiraConfig{
			Config: jira.Config{
				Project:   jira.DefaultProject,
				IssueType: jira.DefaultIssueType,
			},
			ServerURL: "http://127.0.0.1:8080",
		},
		Calendar: CalendarConfig{
			Config: calendar.Config{
				RedirectURL: "http://127.0.0.1:8080" + calendar.CallbackPath,
				TimeZone:    "UTC",
			},
			CallbackAddress: "127.0.0.1:8085",
			TokenFile:       calendar.DefaultTokenPath(),
		},
		Server: ServerConfig{
			Address:        "127.0.0.1:8080",
			AllowedOrigins: []string{},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "voiceplanner", "config.yaml")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "voiceplanner", "config.yaml")
}

// secretEnv lists the unprefixed variables also honoured for each key.
var secretEnv = map[string][]string{
	"jira.url":               {"JIRA_URL"},
	"jira.email":             {"JIRA_EMAIL"},
	"jira.token":             {"JIRA_API_TOKEN"},
	"calendar.client_id":     {"GOOGLE_CLIENT_ID"},
	"calendar.client_secret": {"GOOGLE_CLIENT_SECRET"},
	"calendar.redirect_url":  {"GOOGLE_REDIRECT_URI"},
}

// Load reads the config file at path, or DefaultPath when path is empty,
// applies environment overrides and validates the result. A missing default
// file is not an error; a missing explicit file is.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range secretEnv {
		envs := append([]string{EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}, names...)
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	} else if explicit || !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// setDefaults registers every key of cfg so environment overrides apply to
// keys absent from the file.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("store.path", cfg.Store.Path)
	v.SetDefault("capture.command", cfg.Capture.Command)
	v.SetDefault("capture.sample_rate", cfg.Capture.SampleRate)
	v.SetDefault("transcription.engine", cfg.Transcription.Engine)
	v.SetDefault("transcription.socket_path", cfg.Transcription.SocketPath)
	v.SetDefault("transcription.locale", cfg.Transcription.Locale)
	v.SetDefault("transcription.device", cfg.Transcription.Device)
	v.SetDefault("transcription.command", cfg.Transcription.Command)
	v.SetDefault("transcription.args", cfg.Transcription.Args)
	v.SetDefault("transcription.flush_timeout", cfg.Transcription.FlushTimeout)
	v.SetDefault("jira.url", cfg.Jira.URL)
	v.SetDefault("jira.email", cfg.Jira.Email)
	v.SetDefault("jira.token", cfg.Jira.Token)
	v.SetDefault("jira.project", cfg.Jira.Project)
	v.SetDefault("jira.issue_type", cfg.Jira.IssueType)
	v.SetDefault("jira.server_url", cfg.Jira.ServerURL)
	v.SetDefault("calendar.client_id", cfg.Calendar.ClientID)
	v.SetDefault("calendar.client_secret", cfg.Calendar.ClientSecret)
	v.SetDefault("calendar.redirect_url", cfg.Calendar.RedirectURL)
	v.SetDefault("calendar.time_zone", cfg.Calendar.TimeZone)
	v.SetDefault("calendar.callback_address", cfg.Calendar.CallbackAddress)
	v.SetDefault("calendar.token_file", cfg.Calendar.TokenFile)
	v.SetDefault("server.address", cfg.Server.Address)
	v.SetDefault("server.allowed_origins", cfg.Server.AllowedOrigins)
	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
	v.SetDefault("logging.output", cfg.Logging.Output)
}

// WriteFile writes c as YAML to path. It refuses to replace an existing file
// unless force is set. Secrets are left out.
func (c *Config) WriteFile(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file %s already exists", path)
		}
	}
	out := *c
	out.Jira.Token = ""
	out.Calendar.ClientSecret = ""

	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config file %s: %w", path, err)
	}
	return nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("store config: %w", err)
	}
	if err := c.Capture.Validate(); err != nil {
		return fmt.Errorf("capture config: %w", err)
	}
	if err := c.Transcription.Validate(); err != nil {
		return fmt.Errorf("transcription config: %w", err)
	}
	if err := c.Jira.Validate(); err != nil {
		return fmt.Errorf("jira config: %w", err)
	}
	if err := c.Calendar.Validate(); err != nil {
		return fmt.Errorf("calendar config: %w", err)
	}
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}
	return nil
}

// Validate validates store configuration.
func (s *StoreConfig) Validate() error {
	if s.Path == "" {
		return fmt.Errorf("path cannot be empty")
	}
	return nil
}

// Validate validates capture configuration.
func (c *CaptureConfig) Validate() error {
	if len(c.Command) == 0 || c.Command[0] == "" {
		return fmt.Errorf("command cannot be empty")
	}
	if c.SampleRate < 8000 || c.SampleRate > 48000 {
		return fmt.Errorf("sample_rate must be between 8000 and 48000 Hz, got %d", c.SampleRate)
	}
	return nil
}

// Validate validates transcription configuration.
func (t *TranscriptionConfig) Validate() error {
	switch t.Engine {
	case transcribe.EngineAuto, transcribe.EngineDaemon, transcribe.EngineCommand:
	default:
		return fmt.Errorf("engine must be one of [auto, daemon, command], got '%s'", t.Engine)
	}
	if t.Engine == transcribe.EngineCommand && t.Command == "" {
		return fmt.Errorf("command cannot be empty when engine is command")
	}
	if t.FlushTimeout < 0 {
		return fmt.Errorf("flush_timeout cannot be negative, got %f", t.FlushTimeout)
	}
	return nil
}

// FlushTimeoutDuration returns the flush timeout as a time.Duration.
func (t *TranscriptionConfig) FlushTimeoutDuration() time.Duration {
	return time.Duration(t.FlushTimeout * float64(time.Second))
}

// ProbeConfig converts the section to engine probe settings.
func (t *TranscriptionConfig) ProbeConfig() transcribe.ProbeConfig {
	return transcribe.ProbeConfig{
		Engine:       t.Engine,
		SocketPath:   t.SocketPath,
		Locale:       t.Locale,
		Device:       t.Device,
		Command:      t.Command,
		Args:         t.Args,
		FlushTimeout: t.FlushTimeoutDuration(),
	}
}

// Validate validates JIRA configuration. The site may be left unset; the
// proxy then answers with a configuration error.
func (j *JiraConfig) Validate() error {
	if j.URL != "" {
		if err := validateHTTPURL(j.URL); err != nil {
			return fmt.Errorf("url: %w", err)
		}
	}
	if j.ServerURL != "" {
		if err := validateHTTPURL(j.ServerURL); err != nil {
			return fmt.Errorf("server_url: %w", err)
		}
	}
	return nil
}

// Validate validates calendar configuration.
func (c *CalendarConfig) Validate() error {
	if c.TimeZone != "" {
		if _, err := time.LoadLocation(c.TimeZone); err != nil {
			return fmt.Errorf("time_zone %q: %w", c.TimeZone, err)
		}
	}
	if c.CallbackAddress == "" {
		return fmt.Errorf("callback_address cannot be empty")
	}
	if _, _, err := net.SplitHostPort(c.CallbackAddress); err != nil {
		return fmt.Errorf("callback_address: %w", err)
	}
	if c.TokenFile == "" {
		return fmt.Errorf("token_file cannot be empty")
	}
	return nil
}

// Validate validates server configuration.
func (s *ServerConfig) Validate() error {
	if s.Address == "" {
		return fmt.Errorf("address cannot be empty")
	}
	if _, _, err := net.SplitHostPort(s.Address); err != nil {
		return fmt.Errorf("address: %w", err)
	}
	return nil
}

// Validate validates logging configuration.
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	if l.Output == "" {
		return fmt.Errorf("output cannot be empty")
	}
	return nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("host cannot be empty")
	}
	return nil
}
