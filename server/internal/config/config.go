package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/floorscore/floorscore/pkg/efficiency"
	"github.com/floorscore/floorscore/pkg/logging"
)

// AlertsConfig holds alerting rules and webhook delivery targets.
type AlertsConfig struct {
	Rules    []AlertRule     `yaml:"rules"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// AlertRule defines one threshold-based alert condition evaluated per record.
type AlertRule struct {
	// Name is the human-readable alert identifier, used with the record ID as
	// the deduplication key.
	Name string `yaml:"name"`

	// Condition is a simple expression: "efficiency < 60", "downtime_minutes > 45",
	// "band == low", "overage == true".
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

// Default values for the server configuration.
const (
	DefaultHTTPPort          = 8080
	DefaultDashboardInterval = 5 * time.Second
	DefaultPageSize          = 5
	DefaultSQLitePath        = "floorscore.db"
)

// Config is the server configuration file.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Scoring ScoringConfig `yaml:"scoring"`
	Storage StorageConfig `yaml:"storage"`
	Alerts  AlertsConfig  `yaml:"alerts"`
	Report  ReportConfig  `yaml:"report"`
}

// ServerConfig holds listener, auth and logging settings.
type ServerConfig struct {
	// HTTPPort is the port the REST API, ingest endpoint and WebSocket hub listen on.
	HTTPPort int `yaml:"http_port"`

	Auth      AuthConfig      `yaml:"auth"`
	Log       logging.Config  `yaml:"log"`
	Dashboard DashboardConfig `yaml:"dashboard"`
}

// AuthConfig controls client authentication on the server side.
type AuthConfig struct {
	// Mode is one of: apikey | bearer | none.
	Mode string `yaml:"mode"`

	// KeyEnv is the name of the environment variable that holds the expected
	// API key or bearer token.
	KeyEnv string `yaml:"key_env"`

	// Header is the HTTP header to read the key from in apikey mode.
	// Defaults to "x-api-key" if empty.
	Header string `yaml:"header"`
}

// Key returns the expected API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or the default "x-api-key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return "x-api-key"
}

// DashboardConfig controls the WebSocket dashboard push.
type DashboardConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// ScoringConfig is the efficiency formula configuration. The top-level fields
// are the default parameters; Profiles override them per skill.
type ScoringConfig struct {
	TargetRatePerHour     float64                  `yaml:"target_rate_per_hour"`
	ReworkPenaltyPerUnit  float64                  `yaml:"rework_penalty_per_unit"`
	DowntimeCostPerMinute float64                  `yaml:"downtime_cost_per_minute"`
	Ceiling               efficiency.CeilingPolicy `yaml:"ceiling"`
	Profiles              map[string]ProfileConfig `yaml:"profiles"`
}

// ProfileConfig overrides some or all default parameters for one skill.
type ProfileConfig struct {
	TargetRatePerHour     *float64                  `yaml:"target_rate_per_hour"`
	ReworkPenaltyPerUnit  *float64                  `yaml:"rework_penalty_per_unit"`
	DowntimeCostPerMinute *float64                  `yaml:"downtime_cost_per_minute"`
	Ceiling               *efficiency.CeilingPolicy `yaml:"ceiling"`
}

// Params returns the default parameters.
func (s ScoringConfig) Params() efficiency.Params {
	return efficiency.Params{
		TargetRatePerHour:     s.TargetRatePerHour,
		ReworkPenaltyPerUnit:  s.ReworkPenaltyPerUnit,
		DowntimeCostPerMinute: s.DowntimeCostPerMinute,
		Ceiling:               s.Ceiling,
	}
}

// Resolve returns the default parameters and every profile with unset fields
// filled from the default.
func (s ScoringConfig) Resolve() efficiency.Profiles {
	def := s.Params()
	out := efficiency.Profiles{Default: def}
	if len(s.Profiles) == 0 {
		return out
	}
	out.BySkill = make(map[string]efficiency.Params, len(s.Profiles))
	for name, pc := range s.Profiles {
		p := def
		if pc.TargetRatePerHour != nil {
			p.TargetRatePerHour = *pc.TargetRatePerHour
		}
		if pc.ReworkPenaltyPerUnit != nil {
			p.ReworkPenaltyPerUnit = *pc.ReworkPenaltyPerUnit
		}
		if pc.DowntimeCostPerMinute != nil {
			p.DowntimeCostPerMinute = *pc.DowntimeCostPerMinute
		}
		if pc.Ceiling != nil {
			p.Ceiling = *pc.Ceiling
		}
		out.BySkill[name] = p
	}
	return out
}

// StorageConfig selects the record store backend.
type StorageConfig struct {
	// Backend is one of: memory | sqlite.
	Backend string `yaml:"backend"`

	// Path is the SQLite database file. Used when Backend == "sqlite".
	Path string `yaml:"path"`
}

// ReportConfig controls list pagination.
type ReportConfig struct {
	PageSize int `yaml:"page_size"`
}

// Load reads and parses the config file at path.
// Missing fields are filled with defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("server config: read %q: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML config bytes, applying defaults and validation.
func Parse(data []byte) (*Config, error) {
	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("server config: parse yaml: %w", err)
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}
	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config { return defaults() }

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	p := efficiency.DefaultParams()
	return &Config{
		Server: ServerConfig{
			HTTPPort:  DefaultHTTPPort,
			Dashboard: DashboardConfig{Interval: DefaultDashboardInterval},
		},
		Scoring: ScoringConfig{
			TargetRatePerHour:     p.TargetRatePerHour,
			ReworkPenaltyPerUnit:  p.ReworkPenaltyPerUnit,
			DowntimeCostPerMinute: p.DowntimeCostPerMinute,
			Ceiling:               p.Ceiling,
		},
		Storage: StorageConfig{Backend: "memory", Path: DefaultSQLitePath},
		Report:  ReportConfig{PageSize: DefaultPageSize},
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	if cfg.Server.HTTPPort <= 0 || cfg.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", cfg.Server.HTTPPort)
	}
	switch cfg.Server.Auth.Mode {
	case "apikey", "bearer", "none", "":
	default:
		return fmt.Errorf("server.auth.mode %q unknown: want apikey|bearer|none", cfg.Server.Auth.Mode)
	}
	if _, err := logging.ParseLevel(cfg.Server.Log.Level); err != nil {
		return fmt.Errorf("server.log.level: %w", err)
	}
	if cfg.Server.Dashboard.Interval <= 0 {
		return fmt.Errorf("server.dashboard.interval must be positive")
	}
	if err := cfg.Scoring.Resolve().Validate(); err != nil {
		return fmt.Errorf("scoring: %w", err)
	}
	switch cfg.Storage.Backend {
	case "memory":
	case "sqlite":
		if cfg.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("storage.backend %q unknown: want memory|sqlite", cfg.Storage.Backend)
	}
	if cfg.Report.PageSize <= 0 {
		return fmt.Errorf("report.page_size must be positive")
	}
	for i, r := range cfg.Alerts.Rules {
		if r.Name == "" || r.Condition == "" {
			return fmt.Errorf("alerts.rules[%d]: name and condition are required", i)
		}
	}
	return nil
}
