package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"commbus/internal/logging"
)

const envPrefix = "COMMBUS"

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text | json
}

type NATSConfig struct {
	URL           string        `mapstructure:"url"`
	Name          string        `mapstructure:"name"`
	SubjectPrefix string        `mapstructure:"subject_prefix"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
}

type BusConfig struct {
	// kind: memory | nats
	Kind string     `mapstructure:"kind"`
	NATS NATSConfig `mapstructure:"nats"`
}

type EventsConfig struct {
	Dispatch string `mapstructure:"dispatch"`
	Error    string `mapstructure:"error"`
}

type TransportConfig struct {
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes"`
	UserAgent    string        `mapstructure:"user_agent"`
	// viper lowercases map keys; header names are case-insensitive anyway.
	DefaultHeaders map[string]string `mapstructure:"default_headers"`
	// Parameters every request carries unless it sets them itself, e.g. lang.
	// Names are case-sensitive, so Load reads them from the file as written
	// instead of through viper's lowercased keys.
	DefaultQuery map[string]string `mapstructure:"default_query"`
}

type JournalConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// LevelDBPath empty keeps the journal in memory.
	LevelDBPath string `mapstructure:"leveldb_path"`
	MemorySize  int    `mapstructure:"memory_size"`
}

type HTTPConfig struct {
	ListenAddr      string        `mapstructure:"listen_addr"` // empty disables the ingress
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type AppConfig struct {
	Logging   LoggingConfig   `mapstructure:"logging"`
	Bus       BusConfig       `mapstructure:"bus"`
	Events    EventsConfig    `mapstructure:"events"`
	Transport TransportConfig `mapstructure:"transport"`
	Journal   JournalConfig   `mapstructure:"journal"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	v.SetDefault("bus.kind", "memory")
	v.SetDefault("bus.nats.url", "")
	v.SetDefault("bus.nats.name", "commbus")
	v.SetDefault("bus.nats.subject_prefix", "")
	v.SetDefault("bus.nats.reconnect_wait", 2*time.Second)
	v.SetDefault("bus.nats.max_reconnects", 10)

	v.SetDefault("events.dispatch", "dispatch")
	v.SetDefault("events.error", "error")

	v.SetDefault("transport.timeout", 30*time.Second)
	v.SetDefault("transport.max_body_bytes", int64(1<<20))
	v.SetDefault("transport.user_agent", "commbus/1.0")

	v.SetDefault("journal.enabled", true)
	v.SetDefault("journal.leveldb_path", "")
	v.SetDefault("journal.memory_size", 1000)

	v.SetDefault("http.listen_addr", ":8088")
	v.SetDefault("http.read_timeout", 10*time.Second)
	v.SetDefault("http.shutdown_timeout", 15*time.Second)

	v.SetDefault("metrics.enabled", true)
}

func (c *AppConfig) normalize() {
	c.Bus.Kind = strings.ToLower(strings.TrimSpace(c.Bus.Kind))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Events.Dispatch = strings.TrimSpace(c.Events.Dispatch)
	c.Events.Error = strings.TrimSpace(c.Events.Error)
	if c.Transport.DefaultHeaders == nil {
		c.Transport.DefaultHeaders = map[string]string{}
	}
	if c.Transport.DefaultQuery == nil {
		c.Transport.DefaultQuery = map[string]string{}
	}
}

// Load reads path (YAML) on top of the defaults. An empty path uses defaults
// and COMMBUS_* environment variables only, e.g. COMMBUS_BUS_KIND=nats.
func Load(path string) (*AppConfig, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if path != "" {
		query, err := readDefaultQuery(path)
		if err != nil {
			return nil, err
		}
		if query != nil {
			cfg.Transport.DefaultQuery = query
		}
	}
	cfg.normalize()

	// Validate configuration
	validator := NewConfigValidator()
	if err := validator.Validate(&cfg); err != nil {
		return nil, err
	}
	for _, w := range validator.Warnings() {
		logging.L().WithField("mode", validator.Mode()).Warn(w)
	}
	return &cfg, nil
}

// readDefaultQuery returns transport.default_query with its keys as written
// in the file, or nil when the file does not set it.
func readDefaultQuery(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	var raw struct {
		Transport struct {
			DefaultQuery map[string]string `yaml:"default_query"`
		} `yaml:"transport"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse transport.default_query in %s: %w", path, err)
	}
	return raw.Transport.DefaultQuery, nil
}
