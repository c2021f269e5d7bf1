package config

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/pflag"
)

// RegisterFlags registers the flags shared by every command.
func RegisterFlags(flags *pflag.FlagSet) {
	d := Default()

	flags.String("config", "", "Path to configuration file (JSON or YAML)")
	flags.String("data-dir", d.DataDir, "Directory holding ledgers, plans and logs")
	flags.String("hosts-file", d.HostsFile, "Worker inventory file")
	flags.String("users-file", d.UsersFile, "Optional file mapping synthetic user ids to labels")
	flags.String("log-level", d.LogLevel, "Log level (debug, info, warn, error)")
	flags.Bool("json-output", false, "Emit JSON formatted reports")

	flags.String("target", "", "Base URL the registered actions send requests to")
	flags.StringSlice("header", nil, "Additional request header in key=value form")
	flags.IntP("concurrency", "c", d.Concurrency, "Max in-flight action iterations per action process")
	flags.Duration("timeout", d.Timeout, "Per-request timeout")
	flags.Duration("grace", d.Grace, "Time to wait for in-flight requests after an action's schedule ends")

	flags.String("bind", d.Monitor.Bind, "Monitoring service bind address")
	flags.IntP("port", "p", d.Monitor.Port, "Monitoring service port")
	flags.Duration("bucket", d.Monitor.Bucket, "Chart bucket width")
	flags.Int("window", d.Monitor.Window, "Number of most recent chart buckets served")
	flags.Int("log-lines", d.Monitor.LogLines, "Number of log lines in the recent log excerpt")

	flags.String("tracing-endpoint", "", "OTLP collector endpoint")
	flags.String("tracing-protocol", "grpc", "OTLP protocol: 'grpc' or 'http'")
	flags.Float64("tracing-sample-rate", 1.0, "Fraction of requests to trace")
	flags.Bool("tracing-insecure", false, "Disable TLS to the OTLP collector")
	flags.Bool("tracing-propagate", false, "Inject W3C trace headers into outgoing requests")
}

// applyFlagOverrides applies command-line flag values to the config, overriding
// values from the config file.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	strs := map[string]*string{
		"data-dir":         &cfg.DataDir,
		"hosts-file":       &cfg.HostsFile,
		"users-file":       &cfg.UsersFile,
		"log-level":        &cfg.LogLevel,
		"target":           &cfg.Target,
		"bind":             &cfg.Monitor.Bind,
		"tracing-endpoint": &cfg.Tracing.Endpoint,
		"tracing-protocol": &cfg.Tracing.Protocol,
	}
	for name, dst := range strs {
		if fs.Lookup(name) == nil || !fs.Changed(name) {
			continue
		}
		val, err := fs.GetString(name)
		if err != nil {
			return err
		}
		*dst = strings.TrimSpace(val)
	}

	ints := map[string]*int{
		"concurrency": &cfg.Concurrency,
		"port":        &cfg.Monitor.Port,
		"window":      &cfg.Monitor.Window,
		"log-lines":   &cfg.Monitor.LogLines,
	}
	for name, dst := range ints {
		if fs.Lookup(name) == nil || !fs.Changed(name) {
			continue
		}
		val, err := fs.GetInt(name)
		if err != nil {
			return err
		}
		*dst = val
	}

	if changed(fs, "timeout") {
		val, err := fs.GetDuration("timeout")
		if err != nil {
			return err
		}
		cfg.Timeout = val
	}
	if changed(fs, "grace") {
		val, err := fs.GetDuration("grace")
		if err != nil {
			return err
		}
		cfg.Grace = val
	}
	if changed(fs, "bucket") {
		val, err := fs.GetDuration("bucket")
		if err != nil {
			return err
		}
		cfg.Monitor.Bucket = val
	}
	if changed(fs, "json-output") {
		val, err := fs.GetBool("json-output")
		if err != nil {
			return err
		}
		cfg.JSONOutput = val
	}
	if changed(fs, "header") {
		vals, err := fs.GetStringSlice("header")
		if err != nil {
			return err
		}
		if cfg.Headers == nil {
			cfg.Headers = map[string]string{}
		}
		for _, raw := range vals {
			key, value, err := parseHeader(raw)
			if err != nil {
				return err
			}
			cfg.Headers[key] = value
		}
	}
	if changed(fs, "tracing-sample-rate") {
		val, err := fs.GetFloat64("tracing-sample-rate")
		if err != nil {
			return err
		}
		cfg.Tracing.SampleRate = val
	}
	if changed(fs, "tracing-insecure") {
		val, err := fs.GetBool("tracing-insecure")
		if err != nil {
			return err
		}
		cfg.Tracing.Insecure = val
	}
	if changed(fs, "tracing-propagate") {
		val, err := fs.GetBool("tracing-propagate")
		if err != nil {
			return err
		}
		cfg.Tracing.Propagate = &val
	}
	return nil
}

func changed(fs *pflag.FlagSet, name string) bool {
	return fs.Lookup(name) != nil && fs.Changed(name)
}

func parseHeader(raw string) (string, string, error) {
	key, value, ok := strings.Cut(raw, "=")
	if !ok {
		key, value, ok = strings.Cut(raw, ":")
	}
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return "", "", fmt.Errorf("invalid header %q: expected key=value", raw)
	}
	return http.CanonicalHeaderKey(key), strings.TrimSpace(value), nil
}
