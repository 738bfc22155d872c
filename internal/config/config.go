package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Geocode GeocodeConfig `yaml:"geocode" mapstructure:"geocode"`
	Scan    ScanConfig    `yaml:"scan" mapstructure:"scan"`
	Routing RoutingConfig `yaml:"routing" mapstructure:"routing"`
	Panel   PanelConfig   `yaml:"panel" mapstructure:"panel"`
	Grist   GristConfig   `yaml:"grist" mapstructure:"grist"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the panel HTTP bridge.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// StoreConfig configures the option and route store.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// GeocodeConfig selects and tunes the geocoding backend.
type GeocodeConfig struct {
	Backend      string `yaml:"backend" mapstructure:"backend"`
	NominatimURL string `yaml:"nominatim_url" mapstructure:"nominatim_url"`
	CensusURL    string `yaml:"census_url" mapstructure:"census_url"`
	GoogleAPIKey string `yaml:"google_api_key" mapstructure:"google_api_key"`
	UserAgent    string `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs  int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxAttempts  int    `yaml:"max_attempts" mapstructure:"max_attempts"`
}

// ScanConfig configures the background geocoding scan.
type ScanConfig struct {
	WriteDelayMs       int  `yaml:"write_delay_ms" mapstructure:"write_delay_ms"`
	RequireGeocodeFlag bool `yaml:"require_geocode_flag" mapstructure:"require_geocode_flag"`
}

// RoutingConfig configures departure/arrival route lookups.
type RoutingConfig struct {
	Enabled          bool    `yaml:"enabled" mapstructure:"enabled"`
	BaseURL          string  `yaml:"base_url" mapstructure:"base_url"`
	Profile          string  `yaml:"profile" mapstructure:"profile"`
	RateLimit        float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	FailureThreshold int     `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int     `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// PanelConfig holds the initial panel options.
type PanelConfig struct {
	Mode         string `yaml:"mode" mapstructure:"mode"`
	MapSource    string `yaml:"map_source" mapstructure:"map_source"`
	MapCopyright string `yaml:"map_copyright" mapstructure:"map_copyright"`
}

// GristConfig holds credentials for the record host API.
type GristConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	APIKey  string `yaml:"api_key" mapstructure:"api_key"`
	DocID   string `yaml:"doc_id" mapstructure:"doc_id"`
}

// Validate checks that the fields required by a command are present.
// Supported modes: "serve", "scan", "geocode".
func (c *Config) Validate(mode string) error {
	var missing []string

	switch mode {
	case "serve":
		if c.Server.Port < 1 || c.Server.Port > 65535 {
			return eris.Errorf("config: server.port %d out of range", c.Server.Port)
		}
		if err := c.validatePanel(); err != nil {
			return err
		}
	case "scan":
		if c.Grist.APIKey == "" {
			missing = append(missing, "grist.api_key")
		}
		if c.Grist.DocID == "" {
			missing = append(missing, "grist.doc_id")
		}
	case "geocode":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(missing) > 0 {
		return eris.Errorf("config: missing required fields for %s: %s", mode, strings.Join(missing, ", "))
	}
	if c.Scan.WriteDelayMs < 0 {
		return eris.Errorf("config: scan.write_delay_ms must be >= 0, got %d", c.Scan.WriteDelayMs)
	}
	if c.Geocode.MaxAttempts < 1 {
		return eris.Errorf("config: geocode.max_attempts must be >= 1, got %d", c.Geocode.MaxAttempts)
	}
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return eris.Errorf("config: unsupported store.driver %q", c.Store.Driver)
	}
	return nil
}

func (c *Config) validatePanel() error {
	switch c.Panel.Mode {
	case "single", "multi":
		return nil
	default:
		return eris.Errorf("config: panel.mode must be single or multi, got %q", c.Panel.Mode)
	}
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ROUTEMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "routemap.db")
	v.SetDefault("geocode.backend", "nominatim")
	v.SetDefault("geocode.nominatim_url", "")
	v.SetDefault("geocode.census_url", "")
	v.SetDefault("geocode.google_api_key", "")
	v.SetDefault("geocode.user_agent", "routemap/1.0")
	v.SetDefault("geocode.timeout_secs", 30)
	v.SetDefault("geocode.max_attempts", 3)
	v.SetDefault("scan.write_delay_ms", 1000)
	v.SetDefault("scan.require_geocode_flag", false)
	v.SetDefault("routing.enabled", true)
	v.SetDefault("routing.base_url", "https://router.project-osrm.org")
	v.SetDefault("routing.profile", "driving")
	v.SetDefault("routing.rate_limit", 1.0)
	v.SetDefault("routing.failure_threshold", 5)
	v.SetDefault("routing.reset_timeout_secs", 30)
	v.SetDefault("panel.mode", "multi")
	v.SetDefault("panel.map_source", "")
	v.SetDefault("panel.map_copyright", "")
	v.SetDefault("grist.base_url", "https://docs.getgrist.com")
	v.SetDefault("grist.api_key", "")
	v.SetDefault("grist.doc_id", "")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
