package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/floorscore/floorscore/pkg/efficiency"
	"github.com/floorscore/floorscore/pkg/logging"
	"github.com/floorscore/floorscore/pkg/types"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultScrapeInterval = 1 * time.Minute
	DefaultShipInterval   = 15 * time.Second
	DefaultWindow         = 1 * time.Hour
	DefaultBufferSize     = 1000
	DefaultBatchSize      = 100

	DefaultProductsMetric = "station_products_made_total"
	DefaultReworkMetric   = "station_rework_total"
	DefaultDowntimeMetric = "station_downtime_seconds_total"
)

// Config is the top-level agent configuration.
// Fields map 1:1 to the agent YAML file.
type Config struct {
	Agent AgentConfig    `yaml:"agent"`
	Log   logging.Config `yaml:"log"`
}

// AgentConfig holds all agent-side settings.
type AgentConfig struct {
	// ID names this agent in ingest batches. Defaults to the hostname.
	ID string `yaml:"id"`

	// ServerEndpoint is the base URL of floorscore-server (http://host:port).
	ServerEndpoint string `yaml:"server_endpoint"`

	// ScrapeInterval controls how often each station is polled.
	ScrapeInterval time.Duration `yaml:"scrape_interval"`

	// Window is the length of one hourly update. Counter deltas are summed
	// per window and shipped when the window closes.
	Window time.Duration `yaml:"window"`

	// ShipInterval controls how often buffered updates are sent to the server.
	ShipInterval time.Duration `yaml:"ship_interval"`

	// BufferSize is the maximum number of updates held in memory when
	// the server is unreachable.
	BufferSize int `yaml:"buffer_size"`

	// BatchSize is the maximum number of updates per ingest request.
	BatchSize int `yaml:"batch_size"`

	// Metrics names the station counters.
	Metrics MetricNames `yaml:"metrics"`

	// Scoring is used for the provisional per-window efficiency in logs.
	// The server scores records with its own parameters.
	Scoring efficiency.Params `yaml:"scoring"`

	// Stations is the list of production stations to scrape.
	Stations []Station `yaml:"stations"`

	// ServerAuth configures how the agent authenticates to floorscore-server.
	// Supports: apikey | bearer | mtls | none.
	ServerAuth AuthConfig `yaml:"server_auth"`
}

// MetricNames are the Prometheus metric names read from every station.
type MetricNames struct {
	Products        string `yaml:"products"`
	Rework          string `yaml:"rework"`
	DowntimeSeconds string `yaml:"downtime_seconds"`
}

// Station describes one scraped production station.
type Station struct {
	// ID is a unique, human-readable identifier for this station.
	ID string `yaml:"id"`

	// RecordID is the shift record the station's hourly updates apply to.
	// Supervisors change it at shift start; the agent picks it up on reload.
	RecordID string `yaml:"record_id"`

	// Endpoint is the full URL of the station's metrics endpoint.
	Endpoint string `yaml:"endpoint"`

	// Labels restrict the counters to series carrying these label values,
	// for endpoints that expose several stations.
	Labels map[string]string `yaml:"labels"`

	// DowntimeReason is reported with every update. Defaults to Machine.
	DowntimeReason types.DowntimeReason `yaml:"downtime_reason"`

	// Auth configures how the agent authenticates to this station.
	Auth AuthConfig `yaml:"auth"`

	// TLS holds optional TLS dial options.
	TLS TLSConfig `yaml:"tls"`
}

// AuthConfig specifies the authentication mode for a station or the server.
type AuthConfig struct {
	// Mode is one of: mtls | apikey | bearer | basic | none.
	Mode string `yaml:"mode"`

	// mTLS fields, used when Mode == "mtls".
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	CAFile   string `yaml:"ca_file"`

	// API key fields, used when Mode == "apikey".
	// Header is the HTTP header name to send the key in.
	Header string `yaml:"header"`
	// KeyEnv is the name of the environment variable that holds the key value.
	KeyEnv string `yaml:"key_env"`

	// Bearer token fields, used when Mode == "bearer".
	// TokenEnv is the name of the environment variable that holds the token.
	TokenEnv string `yaml:"token_env"`

	// Basic auth fields, used when Mode == "basic".
	// Username is the literal username (safe to store in config).
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

// EffectiveHeader returns Header, defaulting to "x-api-key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header == "" {
		return "x-api-key"
	}
	return a.Header
}

// TLSConfig holds per-station TLS dial options.
type TLSConfig struct {
	// InsecureSkipVerify disables TLS certificate verification.
	// Only use this for internal CAs in development environments.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with sensible defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	fill(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	host, _ := os.Hostname()
	return &Config{
		Agent: AgentConfig{
			ID:             host,
			ScrapeInterval: DefaultScrapeInterval,
			Window:         DefaultWindow,
			ShipInterval:   DefaultShipInterval,
			BufferSize:     DefaultBufferSize,
			BatchSize:      DefaultBatchSize,
			Metrics: MetricNames{
				Products:        DefaultProductsMetric,
				Rework:          DefaultReworkMetric,
				DowntimeSeconds: DefaultDowntimeMetric,
			},
			Scoring: efficiency.DefaultParams(),
		},
	}
}

// fill applies per-station defaults that YAML decoding cannot pre-populate.
func fill(cfg *Config) {
	for i := range cfg.Agent.Stations {
		if cfg.Agent.Stations[i].DowntimeReason == "" {
			cfg.Agent.Stations[i].DowntimeReason = types.ReasonMachine
		}
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	a := cfg.Agent
	if a.ServerEndpoint == "" {
		return fmt.Errorf("agent.server_endpoint is required")
	}
	if u, err := url.Parse(a.ServerEndpoint); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("agent.server_endpoint must be an http(s) URL")
	}
	if a.ScrapeInterval <= 0 {
		return fmt.Errorf("agent.scrape_interval must be positive")
	}
	if a.Window < a.ScrapeInterval {
		return fmt.Errorf("agent.window must be at least scrape_interval")
	}
	if a.ShipInterval <= 0 {
		return fmt.Errorf("agent.ship_interval must be positive")
	}
	if a.BufferSize <= 0 {
		return fmt.Errorf("agent.buffer_size must be positive")
	}
	if a.BatchSize <= 0 {
		return fmt.Errorf("agent.batch_size must be positive")
	}
	if a.Metrics.Products == "" || a.Metrics.Rework == "" || a.Metrics.DowntimeSeconds == "" {
		return fmt.Errorf("agent.metrics: all three metric names are required")
	}
	if err := a.Scoring.Validate(); err != nil {
		return fmt.Errorf("agent.scoring: %w", err)
	}
	if err := checkAuthMode(a.ServerAuth.Mode); err != nil {
		return fmt.Errorf("agent.server_auth: %w", err)
	}
	if _, err := logging.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}

	seen := map[string]bool{}
	for i, st := range a.Stations {
		if st.ID == "" {
			return fmt.Errorf("stations[%d]: id is required", i)
		}
		if seen[st.ID] {
			return fmt.Errorf("stations[%d]: duplicate id %q", i, st.ID)
		}
		seen[st.ID] = true
		if st.Endpoint == "" {
			return fmt.Errorf("stations[%d] %q: endpoint is required", i, st.ID)
		}
		if !st.DowntimeReason.Valid() {
			return fmt.Errorf("stations[%d] %q: unknown downtime_reason %q", i, st.ID, st.DowntimeReason)
		}
		if err := checkAuthMode(st.Auth.Mode); err != nil {
			return fmt.Errorf("stations[%d] %q: %w", i, st.ID, err)
		}
	}
	return nil
}

func checkAuthMode(mode string) error {
	switch mode {
	case "mtls", "apikey", "bearer", "basic", "none", "":
		return nil
	default:
		return fmt.Errorf("unknown auth mode %q", mode)
	}
}
