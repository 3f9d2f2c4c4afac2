package config

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
)

// ValidationMode determines the strictness of configuration validation
type ValidationMode string

const (
	ValidationModeProduction  ValidationMode = "production"
	ValidationModeDevelopment ValidationMode = "development"
	ValidationModeTest        ValidationMode = "test"
)

// ConfigValidator collects problems in two tiers. Structural errors make the
// process unusable and always fail; policy errors fail only in production
// mode and are reported as warnings otherwise.
type ConfigValidator struct {
	mode       ValidationMode
	structural *multierror.Error
	errors     []string
	warnings   []string
}

// NewConfigValidator picks its mode from COMMBUS_MODE (development by default).
func NewConfigValidator() *ConfigValidator {
	mode := ValidationModeDevelopment

	if envMode := os.Getenv("COMMBUS_MODE"); envMode != "" {
		switch strings.ToLower(envMode) {
		case "production", "prod":
			mode = ValidationModeProduction
		case "test", "testing":
			mode = ValidationModeTest
		case "development", "dev":
			mode = ValidationModeDevelopment
		}
	}
	return &ConfigValidator{mode: mode}
}

func (v *ConfigValidator) Mode() ValidationMode { return v.mode }

// Warnings returns the findings of the last Validate call that did not fail it.
func (v *ConfigValidator) Warnings() []string { return v.warnings }

// Validate checks the configuration for issues
func (v *ConfigValidator) Validate(cfg *AppConfig) error {
	v.structural = nil
	v.errors = []string{}
	v.warnings = []string{}

	if cfg == nil {
		return fmt.Errorf("configuration validation failed: nil config")
	}

	v.validateLogging(cfg)
	v.validateBus(cfg)
	v.validateEvents(cfg)
	v.validateTransport(cfg)
	v.validateJournal(cfg)
	v.validateHTTP(cfg)

	if err := v.structural.ErrorOrNil(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	// Return errors if in production mode
	if v.mode == ValidationModeProduction && len(v.errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(v.errors, "\n"))
	}
	v.warnings = append(v.warnings, v.errors...)
	return nil
}

func (v *ConfigValidator) fatal(format string, args ...interface{}) {
	v.structural = multierror.Append(v.structural, fmt.Errorf(format, args...))
}

// policy records a finding that only production mode rejects.
func (v *ConfigValidator) policy(msg string) {
	if v.mode == ValidationModeProduction {
		v.errors = append(v.errors, msg)
	} else {
		v.warnings = append(v.warnings, msg)
	}
}

func (v *ConfigValidator) validateLogging(cfg *AppConfig) {
	switch cfg.Logging.Format {
	case "text", "json":
	default:
		v.fatal("logging.format must be text or json, got %q", cfg.Logging.Format)
	}
	if strings.EqualFold(cfg.Logging.Level, "debug") || strings.EqualFold(cfg.Logging.Level, "trace") {
		v.policy(fmt.Sprintf("logging.level %s logs request URLs", cfg.Logging.Level))
	}
}

func (v *ConfigValidator) validateBus(cfg *AppConfig) {
	switch cfg.Bus.Kind {
	case "memory":
		v.policy("bus.kind memory only reaches publishers inside this process")
	case "nats":
		if cfg.Bus.NATS.URL == "" {
			v.fatal("bus.nats.url is required when bus.kind is nats")
			return
		}
		if u, err := url.Parse(cfg.Bus.NATS.URL); err != nil || u.Host == "" {
			v.fatal("bus.nats.url is not a valid URL: %q", cfg.Bus.NATS.URL)
		}
		if cfg.Bus.NATS.MaxReconnects == 0 {
			v.warnings = append(v.warnings, "bus.nats.max_reconnects is 0; the bus will not reconnect")
		}
	default:
		v.fatal("bus.kind must be memory or nats, got %q", cfg.Bus.Kind)
	}
}

func (v *ConfigValidator) validateEvents(cfg *AppConfig) {
	if cfg.Events.Dispatch == "" || cfg.Events.Error == "" {
		v.fatal("events.dispatch and events.error must not be empty")
		return
	}
	if cfg.Events.Dispatch == cfg.Events.Error {
		v.fatal("events.dispatch and events.error must differ, both are %q", cfg.Events.Dispatch)
	}
}

func (v *ConfigValidator) validateTransport(cfg *AppConfig) {
	t := cfg.Transport
	if t.Timeout < 0 {
		v.fatal("transport.timeout must not be negative: %v", t.Timeout)
	}
	if t.Timeout > 0 && t.Timeout < 100*time.Millisecond {
		v.errors = append(v.errors, fmt.Sprintf("transport.timeout too short: %v", t.Timeout))
	}
	if t.Timeout == 0 {
		v.warnings = append(v.warnings, "transport.timeout not set; calls use the 30s default")
	}
	if t.MaxBodyBytes < 0 {
		v.fatal("transport.max_body_bytes must not be negative: %d", t.MaxBodyBytes)
	}
}

func (v *ConfigValidator) validateJournal(cfg *AppConfig) {
	if !cfg.Journal.Enabled {
		return
	}
	if cfg.Journal.LevelDBPath == "" {
		if cfg.Journal.MemorySize <= 0 {
			v.fatal("journal.memory_size must be positive for the in-memory journal")
		}
		v.policy("journal.leveldb_path not set; error events are lost on restart")
	}
}

func (v *ConfigValidator) validateHTTP(cfg *AppConfig) {
	v.validatePort("http.listen_addr", cfg.HTTP.ListenAddr)
	if cfg.Metrics.Enabled && cfg.HTTP.ListenAddr == "" {
		v.warnings = append(v.warnings, "metrics.enabled has no effect without http.listen_addr")
	}
}

func (v *ConfigValidator) validatePort(name string, addr string) {
	if addr == "" {
		return
	}
	// Address like ":8080" or "0.0.0.0:8080"
	parts := strings.Split(addr, ":")
	portStr := parts[len(parts)-1]
	portNum, err := strconv.Atoi(portStr)
	if err != nil {
		v.fatal("%s has no numeric port: %q", name, addr)
		return
	}
	if portNum > 65535 {
		v.fatal("%s port out of range: %d", name, portNum)
	}
	if portNum > 0 && portNum < 1024 {
		v.warnings = append(v.warnings, fmt.Sprintf("%s uses privileged port %d (< 1024)", name, portNum))
	}
}

// ValidateProductionReadiness performs strict validation for production deployments
func ValidateProductionReadiness(cfg *AppConfig) error {
	validator := &ConfigValidator{mode: ValidationModeProduction}
	return validator.Validate(cfg)
}

// PrintConfigurationSummary writes a summary of the configuration to w.
func PrintConfigurationSummary(w io.Writer, cfg *AppConfig) {
	fmt.Fprintln(w, "Configuration Summary:")
	fmt.Fprintln(w, "======================")

	fmt.Fprintf(w, "Bus: %s\n", cfg.Bus.Kind)
	if cfg.Bus.Kind == "nats" {
		fmt.Fprintf(w, "NATS URL: %s (prefix %q)\n", cfg.Bus.NATS.URL, cfg.Bus.NATS.SubjectPrefix)
	}
	fmt.Fprintf(w, "Subjects: dispatch=%s error=%s\n", cfg.Events.Dispatch, cfg.Events.Error)
	fmt.Fprintf(w, "Transport Timeout: %v\n", cfg.Transport.Timeout)
	switch {
	case !cfg.Journal.Enabled:
		fmt.Fprintln(w, "Journal: disabled")
	case cfg.Journal.LevelDBPath != "":
		fmt.Fprintf(w, "Journal: leveldb at %s\n", cfg.Journal.LevelDBPath)
	default:
		fmt.Fprintf(w, "Journal: memory (%d records)\n", cfg.Journal.MemorySize)
	}
	if cfg.HTTP.ListenAddr != "" {
		fmt.Fprintf(w, "HTTP: %s (metrics %v)\n", cfg.HTTP.ListenAddr, cfg.Metrics.Enabled)
	} else {
		fmt.Fprintln(w, "HTTP: disabled")
	}

	fmt.Fprintln(w, "======================")
}
