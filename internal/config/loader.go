package config

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Loader builds a Config from an optional config file and command flags.
type Loader struct{}

// NewLoader creates a new configuration Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load reads the file named by --config, if any, then applies the flags the
// user actually set on top of it.
func (Loader) Load(flags *pflag.FlagSet) (*Config, error) {
	cfg := Default()

	var configPath string
	if f := flags.Lookup("config"); f != nil {
		configPath = strings.TrimSpace(f.Value.String())
	}
	cfg.ConfigFile = configPath

	if configPath != "" {
		v := viper.New()
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := applyConfigSettings(cfg, v.AllSettings()); err != nil {
			return nil, err
		}
	}

	if err := applyFlagOverrides(cfg, flags); err != nil {
		return nil, err
	}

	if cfg.Headers == nil {
		cfg.Headers = map[string]string{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setting binds the accepted spellings of one config key to its setter.
type setting struct {
	keys  []string
	apply func(any) error
}

func applySettings(settings map[string]any, table []setting) error {
	for _, st := range table {
		raw, ok := lookupSetting(settings, st.keys...)
		if !ok {
			continue
		}
		if err := st.apply(raw); err != nil {
			return fmt.Errorf("%s: %w", st.keys[0], err)
		}
	}
	return nil
}

func spellings(key string) []string {
	if !strings.Contains(key, "_") {
		return []string{key}
	}
	return []string{key, strings.ReplaceAll(key, "_", ""), strings.ReplaceAll(key, "_", "-")}
}

func text(key string, dst *string) setting {
	return setting{spellings(key), func(raw any) error {
		v, err := asString(raw)
		*dst = strings.TrimSpace(v)
		return err
	}}
}

func integer(key string, dst *int) setting {
	return setting{spellings(key), func(raw any) (err error) {
		*dst, err = asInt(raw)
		return err
	}}
}

func duration(key string, dst *time.Duration) setting {
	return setting{spellings(key), func(raw any) (err error) {
		*dst, err = asDuration(raw)
		return err
	}}
}

func flag(key string, dst *bool) setting {
	return setting{spellings(key), func(raw any) (err error) {
		*dst, err = asBool(raw)
		return err
	}}
}

func section(key string, table func() []setting) setting {
	return setting{spellings(key), func(raw any) error {
		m, err := toStringKeyMap(raw)
		if err != nil {
			return err
		}
		return applySettings(m, table())
	}}
}

// applyConfigSettings copies config file values onto cfg.
func applyConfigSettings(cfg *Config, settings map[string]any) error {
	return applySettings(settings, []setting{
		text("data_dir", &cfg.DataDir),
		text("hosts_file", &cfg.HostsFile),
		text("users_file", &cfg.UsersFile),
		text("target", &cfg.Target),
		text("log_level", &cfg.LogLevel),
		{[]string{"headers"}, func(raw any) error {
			hdrs, err := asStringMap(raw)
			for k, v := range hdrs {
				cfg.Headers[http.CanonicalHeaderKey(k)] = v
			}
			return err
		}},
		integer("concurrency", &cfg.Concurrency),
		duration("timeout", &cfg.Timeout),
		duration("grace", &cfg.Grace),
		flag("json_output", &cfg.JSONOutput),
		section("monitor", func() []setting { return monitorSettings(&cfg.Monitor) }),
		section("tracing", func() []setting { return tracingSettings(&cfg.Tracing) }),
	})
}

func monitorSettings(m *MonitorConfig) []setting {
	return []setting{
		text("bind", &m.Bind),
		integer("port", &m.Port),
		duration("bucket", &m.Bucket),
		integer("window", &m.Window),
		integer("log_lines", &m.LogLines),
	}
}

func tracingSettings(t *TracingConfig) []setting {
	return []setting{
		text("endpoint", &t.Endpoint),
		text("protocol", &t.Protocol),
		text("service_name", &t.ServiceName),
		{spellings("sample_rate"), func(raw any) (err error) {
			t.SampleRate, err = asFloat64(raw)
			return err
		}},
		flag("insecure", &t.Insecure),
		{[]string{"propagate"}, func(raw any) error {
			v, err := asBool(raw)
			t.Propagate = &v
			return err
		}},
	}
}
