package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	// EnvPrefix namespaces every environment override, e.g. COUNSEL_LLM_API_KEY.
	EnvPrefix = "COUNSEL"
	// ConfigPathEnvVar points at an explicit config file.
	ConfigPathEnvVar = "COUNSEL_CONFIG"
)

// LoadOption customizes Load.
type LoadOption func(*loadOptions)

type loadOptions struct {
	path      string
	overrides map[string]any
}

// WithConfigPath loads the given YAML file instead of searching for counsel.yaml.
func WithConfigPath(path string) LoadOption {
	return func(o *loadOptions) {
		o.path = strings.TrimSpace(path)
	}
}

// WithOverrides applies key/value overrides after file and environment.
func WithOverrides(overrides map[string]any) LoadOption {
	return func(o *loadOptions) {
		if o.overrides == nil {
			o.overrides = make(map[string]any, len(overrides))
		}
		for k, v := range overrides {
			o.overrides[k] = v
		}
	}
}

// Load resolves configuration: defaults, then the optional YAML file, then
// COUNSEL_* environment variables, then explicit overrides.
func Load(opts ...LoadOption) (Config, error) {
	options := loadOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path := options.path
	if path == "" {
		path = strings.TrimSpace(os.Getenv(ConfigPathEnvVar))
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("counsel")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.counsel")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	for key, value := range options.overrides {
		v.Set(key, value)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	normalize(&cfg)
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func normalize(cfg *Config) {
	cfg.LLM.Provider = strings.ToLower(strings.TrimSpace(cfg.LLM.Provider))
	cfg.LLM.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.LLM.BaseURL), "/")
	cfg.LLM.APIKey = strings.TrimSpace(cfg.LLM.APIKey)
	cfg.Database.URL = strings.TrimSpace(cfg.Database.URL)
	cfg.Observability.Tracing.Exporter = strings.ToLower(strings.TrimSpace(cfg.Observability.Tracing.Exporter))

	origins := cfg.Server.CORSOrigins[:0]
	for _, origin := range cfg.Server.CORSOrigins {
		for _, part := range strings.Split(origin, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				origins = append(origins, trimmed)
			}
		}
	}
	cfg.Server.CORSOrigins = origins
}

// Dump writes the effective configuration as YAML with secrets redacted.
func Dump(w io.Writer, cfg Config) error {
	redacted := cfg
	if redacted.LLM.APIKey != "" {
		redacted.LLM.APIKey = "********"
	}
	if redacted.Database.URL != "" {
		redacted.Database.URL = redactURL(redacted.Database.URL)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(redacted); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return enc.Close()
}

func redactURL(raw string) string {
	at := strings.LastIndex(raw, "@")
	scheme := strings.Index(raw, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return raw
	}
	return raw[:scheme+3] + "****" + raw[at:]
}
