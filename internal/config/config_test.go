package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// isolate points the default config location at an empty directory.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	for _, names := range secretEnv {
		for _, name := range names {
			t.Setenv(name, "")
		}
	}
	return dir
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
}

func TestLoadWithoutFile(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Address != "127.0.0.1:8080" {
		t.Errorf("Server.Address = %q", cfg.Server.Address)
	}
	if cfg.Jira.Project != "PROJ" || cfg.Jira.IssueType != "Task" {
		t.Errorf("Jira = %+v", cfg.Jira)
	}
	if len(cfg.Capture.Command) == 0 || cfg.Capture.Command[0] != "ffmpeg" {
		t.Errorf("Capture.Command = %v", cfg.Capture.Command)
	}
}

func TestLoadExplicitMissingFile(t *testing.T) {
	isolate(t)

	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("Load accepted a missing explicit file")
	}
}

func TestLoadFile(t *testing.T) {
	isolate(t)
	path := writeConfig(t, `
store:
  path: /tmp/notes.sqlite
transcription:
  engine: command
  command: my-recognizer
  args: ["--model", "small"]
  flush_timeout: 0.5
jira:
  url: https://example.atlassian.net
  email: me@example.com
  project: OPS
calendar:
  client_id: abc.apps.googleusercontent.com
  time_zone: Europe/London
logging:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Store.Path != "/tmp/notes.sqlite" {
		t.Errorf("Store.Path = %q", cfg.Store.Path)
	}
	if cfg.Transcription.Engine != "command" || cfg.Transcription.Command != "my-recognizer" {
		t.Errorf("Transcription = %+v", cfg.Transcription)
	}
	if got := strings.Join(cfg.Transcription.Args, " "); got != "--model small" {
		t.Errorf("Args = %q", got)
	}
	if got := cfg.Transcription.FlushTimeoutDuration(); got != 500*time.Millisecond {
		t.Errorf("FlushTimeoutDuration = %v", got)
	}
	if cfg.Jira.URL != "https://example.atlassian.net" || cfg.Jira.Project != "OPS" || cfg.Jira.IssueType != "Task" {
		t.Errorf("Jira = %+v", cfg.Jira)
	}
	if cfg.Calendar.ClientID != "abc.apps.googleusercontent.com" || cfg.Calendar.TimeZone != "Europe/London" {
		t.Errorf("Calendar = %+v", cfg.Calendar)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" || cfg.Logging.Output != "stderr" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}

	probe := cfg.Transcription.ProbeConfig()
	if probe.Engine != "command" || probe.FlushTimeout != 500*time.Millisecond {
		t.Errorf("ProbeConfig = %+v", probe)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	isolate(t)
	path := writeConfig(t, "server:\n  address: 127.0.0.1:9000\n")
	t.Setenv("VOICEPLANNER_SERVER_ADDRESS", "0.0.0.0:7000")
	t.Setenv("JIRA_API_TOKEN", "secret-token")
	t.Setenv("GOOGLE_CLIENT_SECRET", "client-secret")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Address != "0.0.0.0:7000" {
		t.Errorf("Server.Address = %q, want env override", cfg.Server.Address)
	}
	if cfg.Jira.Token != "secret-token" {
		t.Errorf("Jira.Token = %q", cfg.Jira.Token)
	}
	if cfg.Calendar.ClientSecret != "client-secret" {
		t.Errorf("Calendar.ClientSecret = %q", cfg.Calendar.ClientSecret)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	isolate(t)
	path := writeConfig(t, "logging:\n  level: loud\n")

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "logging config") {
		t.Fatalf("err = %v, want logging config error", err)
	}
}

func TestWriteFile(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := Default()
	cfg.Jira.Token = "should-not-be-written"
	cfg.Calendar.ClientSecret = "nor-this"
	cfg.Server.Address = "127.0.0.1:9999"
	if err := cfg.WriteFile(path, false); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if strings.Contains(string(data), "should-not-be-written") || strings.Contains(string(data), "nor-this") {
		t.Errorf("secrets written:\n%s", data)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load written file: %v", err)
	}
	if loaded.Server.Address != "127.0.0.1:9999" {
		t.Errorf("Server.Address = %q", loaded.Server.Address)
	}
	if cfg.Jira.Token != "should-not-be-written" {
		t.Error("WriteFile modified the receiver")
	}

	if err := cfg.WriteFile(path, false); err == nil {
		t.Error("WriteFile replaced an existing file without force")
	}
	if err := cfg.WriteFile(path, true); err != nil {
		t.Errorf("WriteFile with force: %v", err)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Config)
		errorMsg string
	}{
		{"valid", func(*Config) {}, ""},
		{"empty store path", func(c *Config) { c.Store.Path = "" }, "store config"},
		{"empty capture command", func(c *Config) { c.Capture.Command = nil }, "capture config"},
		{"sample rate", func(c *Config) { c.Capture.SampleRate = 1000 }, "sample_rate"},
		{"unknown engine", func(c *Config) { c.Transcription.Engine = "cloud" }, "engine"},
		{"command engine without command", func(c *Config) {
			c.Transcription.Engine = "command"
			c.Transcription.Command = ""
		}, "command cannot be empty"},
		{"negative flush", func(c *Config) { c.Transcription.FlushTimeout = -1 }, "flush_timeout"},
		{"jira url scheme", func(c *Config) { c.Jira.URL = "ftp://jira" }, "jira config"},
		{"time zone", func(c *Config) { c.Calendar.TimeZone = "Mars/Olympus" }, "time_zone"},
		{"callback address", func(c *Config) { c.Calendar.CallbackAddress = "localhost" }, "callback_address"},
		{"server address", func(c *Config) { c.Server.Address = "" }, "server config"},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }, "format"},
		{"log output", func(c *Config) { c.Logging.Output = "" }, "output"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errorMsg == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.errorMsg) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.errorMsg)
			}
		})
	}
}
