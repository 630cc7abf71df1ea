package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values for the server configuration.
const (
	DefaultHTTPPort        = 8080
	DefaultContainerTTL    = 24 * time.Hour
	DefaultEditWindow      = 8 * time.Hour
	DefaultTheoreticalLoad = 730.0
	DefaultRetention       = 30 * 24 * time.Hour
	DefaultRatePerMinute   = 30
	DefaultStreamInterval  = 5 * time.Second
	DefaultAuthHeader      = "x-api-key"
)

// Config holds the server-side configuration parsed from the `server:` section
// of config.yaml. The `agent:` key in the same file is ignored.
type Config struct {
	Server ServerConfig `yaml:"server"`
}

// ServerConfig holds all server-side settings.
type ServerConfig struct {
	// HTTPPort serves the REST API, the ingest endpoint and the WebSocket hub.
	HTTPPort int `yaml:"http_port"`

	Auth       AuthConfig      `yaml:"auth"`
	Containers ContainerConfig `yaml:"containers"`
	Records    RecordsConfig   `yaml:"records"`
	QC         QCConfig        `yaml:"qc"`
	Storage    StorageConfig   `yaml:"storage"`
	Alerts     AlertsConfig    `yaml:"alerts"`
	Stream     StreamConfig    `yaml:"stream"`
}

// AuthConfig controls client authentication for ingest and REST calls.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// KeyEnv is the name of the environment variable that holds the expected API key.
	KeyEnv string `yaml:"key_env"`

	// Header is the HTTP header the key is read from. Defaults to "x-api-key".
	Header string `yaml:"header"`
}

// Key returns the expected API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or DefaultAuthHeader.
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return DefaultAuthHeader
}

// ContainerConfig controls in-memory shift container retention.
type ContainerConfig struct {
	// TTL is how long a shift container stays live after its last mutation.
	TTL time.Duration `yaml:"ttl"`
}

// RecordsConfig controls record editing.
type RecordsConfig struct {
	// EditWindow is how long after RecordedAt a record may still be edited.
	EditWindow time.Duration `yaml:"edit_window"`
}

// QCConfig carries process targets used when building reports.
type QCConfig struct {
	// TheoreticalLoad is the target final tensioning load in kN.
	TheoreticalLoad float64 `yaml:"theoretical_load"`
}

// StorageConfig selects the history journal backend.
type StorageConfig struct {
	// Backend is "" (memory only) or "sqlite".
	Backend string `yaml:"backend"`

	// Path is the SQLite database file. Required for the sqlite backend.
	Path string `yaml:"path"`

	// Retention is how long journal entries are kept before pruning.
	Retention time.Duration `yaml:"retention"`
}

// AlertsConfig holds alerting rules and webhook delivery targets.
type AlertsConfig struct {
	Rules    []AlertRule     `yaml:"rules"`
	Webhooks []WebhookConfig `yaml:"webhooks"`

	// RatePerMinute caps outgoing webhook deliveries across all targets.
	RatePerMinute int `yaml:"rate_per_minute"`
}

// AlertRule defines one threshold-based alert condition.
type AlertRule struct {
	// Name is the human-readable alert identifier, used as the deduplication key.
	Name string `yaml:"name"`

	// Condition is a simple expression over the shift report summary:
	// "not_ok_batches > 0", "tension_cv >= 2.5", "water_cement_ratio > 0.4".
	Condition string `yaml:"condition"`

	// Severity is one of: critical | warning | info.
	Severity string `yaml:"severity"`

	// Cooldown suppresses re-fires for this duration after an alert fires.
	// Defaults to 15 minutes if zero.
	Cooldown time.Duration `yaml:"cooldown"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: teams | slack | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable that holds the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// StreamConfig controls the WebSocket report broadcast.
type StreamConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// Load reads and parses the config file at path, returning the server configuration.
// Missing fields are filled with defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("server config: read %q: %w", path, err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("server config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:   DefaultHTTPPort,
			Containers: ContainerConfig{TTL: DefaultContainerTTL},
			Records:    RecordsConfig{EditWindow: DefaultEditWindow},
			QC:         QCConfig{TheoreticalLoad: DefaultTheoreticalLoad},
			Storage:    StorageConfig{Retention: DefaultRetention},
			Alerts:     AlertsConfig{RatePerMinute: DefaultRatePerMinute},
			Stream:     StreamConfig{Interval: DefaultStreamInterval},
		},
	}
}

func validate(cfg *Config) error {
	s := cfg.Server
	if s.HTTPPort <= 0 || s.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", s.HTTPPort)
	}
	switch s.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("server.auth.mode %q unknown: want apikey|none", s.Auth.Mode)
	}
	if s.Containers.TTL < 0 {
		return fmt.Errorf("server.containers.ttl must not be negative")
	}
	if s.Records.EditWindow < 0 {
		return fmt.Errorf("server.records.edit_window must not be negative")
	}
	if s.QC.TheoreticalLoad <= 0 {
		return fmt.Errorf("server.qc.theoretical_load must be positive, got %v", s.QC.TheoreticalLoad)
	}
	switch s.Storage.Backend {
	case "":
	case "sqlite":
		if s.Storage.Path == "" {
			return fmt.Errorf("server.storage.path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("server.storage.backend %q unknown: want sqlite or empty", s.Storage.Backend)
	}
	if s.Storage.Retention < 0 {
		return fmt.Errorf("server.storage.retention must not be negative")
	}
	if s.Alerts.RatePerMinute < 0 {
		return fmt.Errorf("server.alerts.rate_per_minute must not be negative")
	}
	for i, r := range s.Alerts.Rules {
		if r.Name == "" || r.Condition == "" {
			return fmt.Errorf("server.alerts.rules[%d]: name and condition are required", i)
		}
	}
	for i, wh := range s.Alerts.Webhooks {
		switch wh.Type {
		case "slack", "teams", "http":
		default:
			return fmt.Errorf("server.alerts.webhooks[%d].type %q unknown: want slack|teams|http", i, wh.Type)
		}
		if u := wh.URL(); u != "" {
			if _, err := url.ParseRequestURI(u); err != nil {
				return fmt.Errorf("server.alerts.webhooks[%d]: invalid url in $%s: %w", i, wh.URLEnv, err)
			}
		}
	}
	if s.Stream.Interval <= 0 {
		return fmt.Errorf("server.stream.interval must be positive")
	}
	return nil
}
