package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultScrapeInterval = 30 * time.Second
	DefaultShipInterval   = 15 * time.Second
	DefaultBufferSize     = 1000
	DefaultAuthHeader     = "x-api-key"
)

// Source stages. "curing" sources publish steam-curing phase gauges; the
// others publish ActualRecord metrics of the matching record stage.
const (
	StageBatching   = "batching"
	StageTensioning = "tensioning"
	StageCompaction = "compaction"
	StageCuring     = "curing"
)

// Config is the agent-side configuration. The `server:` key of a shared
// config.yaml is ignored.
type Config struct {
	Agent AgentConfig `yaml:"agent"`
}

// AgentConfig holds all agent-side settings.
type AgentConfig struct {
	// ServerEndpoint is the base URL of sleeperqc-server (http://host:port).
	ServerEndpoint string `yaml:"server_endpoint"`

	// ContainerID is the shift container every observation is shipped to.
	ContainerID string `yaml:"container_id"`

	// ScrapeInterval controls how often each SCADA source is polled.
	ScrapeInterval time.Duration `yaml:"scrape_interval"`

	// ShipInterval controls how often buffered observations are sent.
	ShipInterval time.Duration `yaml:"ship_interval"`

	// BufferSize is the maximum number of observations held in memory when
	// the server is unreachable. The oldest are dropped first.
	BufferSize int `yaml:"buffer_size"`

	// Sources is the list of SCADA endpoints to poll.
	Sources []Source `yaml:"sources"`

	// ServerAuth configures how the agent authenticates to sleeperqc-server.
	ServerAuth AuthConfig `yaml:"server_auth"`
}

// Source describes one SCADA exposition endpoint.
type Source struct {
	// ID is a unique, human-readable identifier for this source.
	ID string `yaml:"id"`

	// Stage is the process stage the source reports:
	// batching | tensioning | compaction | curing.
	Stage string `yaml:"stage"`

	// Endpoint is the full URL of the source's metrics endpoint.
	Endpoint string `yaml:"endpoint"`

	// Auth configures how the agent authenticates to this source.
	Auth AuthConfig `yaml:"auth"`

	// TLS holds optional TLS dial options.
	TLS TLSConfig `yaml:"tls"`
}

// AuthConfig specifies an authentication mode.
type AuthConfig struct {
	// Mode is one of: mtls | apikey | bearer | basic | none.
	Mode string `yaml:"mode"`

	// mTLS fields, used when Mode == "mtls".
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	CAFile   string `yaml:"ca_file"`

	// Header is the HTTP header name the API key is sent in.
	Header string `yaml:"header"`
	// KeyEnv is the name of the environment variable that holds the key value.
	KeyEnv string `yaml:"key_env"`

	// TokenEnv is the name of the environment variable that holds the bearer token.
	TokenEnv string `yaml:"token_env"`

	// Username is the literal basic-auth username.
	Username string `yaml:"username"`
	// PasswordEnv is the name of the environment variable that holds the password.
	PasswordEnv string `yaml:"password_env"`
}

// Key returns the API key value resolved from the environment.
// Returns empty string if KeyEnv is unset or the variable is not found.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// Token returns the bearer token value resolved from the environment.
func (a AuthConfig) Token() string {
	if a.TokenEnv == "" {
		return ""
	}
	return os.Getenv(a.TokenEnv)
}

// Password returns the basic-auth password resolved from the environment.
func (a AuthConfig) Password() string {
	if a.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(a.PasswordEnv)
}

// EffectiveHeader returns the configured API key header, or DefaultAuthHeader.
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return DefaultAuthHeader
}

// TLSConfig holds per-source TLS dial options.
type TLSConfig struct {
	// InsecureSkipVerify disables TLS certificate verification.
	// Only use this for internal CAs in development environments.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Agent: AgentConfig{
			ScrapeInterval: DefaultScrapeInterval,
			ShipInterval:   DefaultShipInterval,
			BufferSize:     DefaultBufferSize,
		},
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	a := cfg.Agent
	if a.ServerEndpoint == "" {
		return fmt.Errorf("agent.server_endpoint is required")
	}
	if u, err := url.Parse(a.ServerEndpoint); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("agent.server_endpoint %q must be an http(s) URL", a.ServerEndpoint)
	}
	if a.ContainerID == "" {
		return fmt.Errorf("agent.container_id is required")
	}
	if a.ScrapeInterval <= 0 {
		return fmt.Errorf("agent.scrape_interval must be positive")
	}
	if a.ShipInterval <= 0 {
		return fmt.Errorf("agent.ship_interval must be positive")
	}
	if a.BufferSize <= 0 {
		return fmt.Errorf("agent.buffer_size must be positive")
	}
	if err := validateAuth("agent.server_auth", a.ServerAuth); err != nil {
		return err
	}

	seen := make(map[string]bool, len(a.Sources))
	for i, src := range a.Sources {
		if src.ID == "" {
			return fmt.Errorf("sources[%d]: id is required", i)
		}
		if seen[src.ID] {
			return fmt.Errorf("sources[%d]: duplicate id %q", i, src.ID)
		}
		seen[src.ID] = true
		if src.Endpoint == "" {
			return fmt.Errorf("sources[%d] %q: endpoint is required", i, src.ID)
		}
		switch src.Stage {
		case StageBatching, StageTensioning, StageCompaction, StageCuring:
		default:
			return fmt.Errorf("sources[%d] %q: unknown stage %q", i, src.ID, src.Stage)
		}
		if err := validateAuth(fmt.Sprintf("sources[%d] %q", i, src.ID), src.Auth); err != nil {
			return err
		}
	}
	return nil
}

func validateAuth(where string, a AuthConfig) error {
	switch a.Mode {
	case "mtls":
		if a.CertFile == "" || a.KeyFile == "" {
			return fmt.Errorf("%s: mtls requires cert_file and key_file", where)
		}
	case "apikey", "bearer", "basic", "none", "":
	default:
		return fmt.Errorf("%s: unknown auth mode %q", where, a.Mode)
	}
	return nil
}
