// Package config provides configuration loading for crowdbench commands and
// the worker host inventory.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Defaults shared by every command.
const (
	DefaultConcurrency = 1000
	DefaultGrace       = 5 * time.Second
	DefaultTimeout     = 30 * time.Second
	DefaultBind        = "0.0.0.0"
	DefaultPort        = 8081
	DefaultBucket      = 10 * time.Second
	DefaultWindow      = 3600
	DefaultLogLines    = 10
)

type Config struct {
	DataDir     string            `mapstructure:"data_dir"`
	HostsFile   string            `mapstructure:"hosts_file"`
	UsersFile   string            `mapstructure:"users_file"`
	Target      string            `mapstructure:"target"`
	Headers     map[string]string `mapstructure:"headers"`
	Concurrency int               `mapstructure:"concurrency"`
	Timeout     time.Duration     `mapstructure:"timeout"`
	Grace       time.Duration     `mapstructure:"grace"`
	LogLevel    string            `mapstructure:"log_level"`
	JSONOutput  bool              `mapstructure:"json_output"`
	Monitor     MonitorConfig     `mapstructure:"monitor"`
	Tracing     TracingConfig     `mapstructure:"tracing"`
	ConfigFile  string            `mapstructure:"-"`
}

// MonitorConfig shapes the monitoring service and its chart queries.
type MonitorConfig struct {
	Bind     string        `mapstructure:"bind"`
	Port     int           `mapstructure:"port"`
	Bucket   time.Duration `mapstructure:"bucket"`
	Window   int           `mapstructure:"window"`
	LogLines int           `mapstructure:"log_lines"`
}

// Addr returns the listen address.
func (m MonitorConfig) Addr() string {
	return fmt.Sprintf("%s:%d", m.Bind, m.Port)
}

// TracingConfig configures OpenTelemetry export for outgoing requests.
type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Protocol    string  `mapstructure:"protocol"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Insecure    bool    `mapstructure:"insecure"`
	Propagate   *bool   `mapstructure:"propagate"`
}

// Enabled reports whether spans should be exported.
func (t TracingConfig) Enabled() bool {
	return strings.TrimSpace(t.Endpoint) != "" || (t.Propagate != nil && *t.Propagate)
}

// ShouldPropagate reports whether W3C trace headers are injected into
// outgoing requests. Propagation follows Enabled unless set explicitly.
func (t TracingConfig) ShouldPropagate() bool {
	if t.Propagate != nil {
		return *t.Propagate
	}
	return strings.TrimSpace(t.Endpoint) != ""
}

// Default returns a Config populated with defaults.
func Default() *Config {
	return &Config{
		DataDir:     ".",
		HostsFile:   "conf.yaml",
		UsersFile:   "users.txt",
		Headers:     map[string]string{},
		Concurrency: DefaultConcurrency,
		Timeout:     DefaultTimeout,
		Grace:       DefaultGrace,
		LogLevel:    "info",
		Monitor: MonitorConfig{
			Bind:     DefaultBind,
			Port:     DefaultPort,
			Bucket:   DefaultBucket,
			Window:   DefaultWindow,
			LogLines: DefaultLogLines,
		},
		Tracing: TracingConfig{SampleRate: 1.0},
	}
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

func (c Config) Validate() error {
	var issues []string

	if strings.TrimSpace(c.DataDir) == "" {
		issues = append(issues, "data dir is required")
	}
	if c.Concurrency <= 0 {
		issues = append(issues, "concurrency must be greater than zero")
	}
	if c.Timeout < 0 {
		issues = append(issues, "timeout must be non-negative")
	}
	if c.Grace < 0 {
		issues = append(issues, "grace must be non-negative")
	}
	if c.Monitor.Port <= 0 || c.Monitor.Port > 65535 {
		issues = append(issues, fmt.Sprintf("monitor port %d is out of range", c.Monitor.Port))
	}
	if c.Monitor.Bucket < time.Second {
		issues = append(issues, "monitor bucket must be at least 1s")
	}
	if c.Monitor.Window <= 0 {
		issues = append(issues, "monitor window must be greater than zero")
	}
	if c.Monitor.LogLines < 0 {
		issues = append(issues, "monitor log lines must be non-negative")
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		issues = append(issues, fmt.Sprintf("tracing sample_rate must be between 0.0 and 1.0, got %g", c.Tracing.SampleRate))
	}
	switch strings.ToLower(c.Tracing.Protocol) {
	case "", "grpc", "http":
	default:
		issues = append(issues, fmt.Sprintf("tracing protocol %q is not supported", c.Tracing.Protocol))
	}
	for key, value := range c.Headers {
		if strings.TrimSpace(key) == "" || strings.ContainsAny(key, "\r\n") {
			issues = append(issues, fmt.Sprintf("invalid header key %q", key))
		}
		if strings.ContainsAny(value, "\r\n") {
			issues = append(issues, fmt.Sprintf("invalid header value for %s", key))
		}
	}

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}
