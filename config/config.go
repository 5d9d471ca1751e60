// Package config loads process configuration. Values are layered: built-in
// defaults, then an optional YAML file, then MIDWAY_* environment variables,
// then command line flags. Durations accept the units s, m, h, d and w, so
// "7d" and "1d12h" are valid.
package config

import (
	"reflect"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/xhit/go-str2duration/v2"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment variable, e.g.
// MIDWAY_REDIS_URL for redis_url.
const EnvPrefix = "MIDWAY"

// Config is the configuration shared by every component.
type Config struct {
	RedisURL     string        `mapstructure:"redis_url"`
	Namespace    string        `mapstructure:"namespace"`
	StoreTimeout time.Duration `mapstructure:"store_timeout"`

	// ScanBudget bounds a whole keyspace walk (listing sessions, API keys,
	// clearing the cache); StoreTimeout still bounds each round trip.
	ScanBudget time.Duration `mapstructure:"scan_budget"`

	BreakerMaxFailures int           `mapstructure:"breaker_max_failures"`
	BreakerTimeout     time.Duration `mapstructure:"breaker_timeout"`

	CacheTTL time.Duration `mapstructure:"cache_ttl"`

	SessionTTL       time.Duration `mapstructure:"session_ttl"`
	SessionRetention time.Duration `mapstructure:"session_retention"`

	APIKeyRequests int64  `mapstructure:"apikey_requests"`
	APIKeyWindow   string `mapstructure:"apikey_window"`

	LogLevel string `mapstructure:"log_level"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		RedisURL:           "redis://localhost:6379/0",
		Namespace:          "midway",
		StoreTimeout:       250 * time.Millisecond,
		ScanBudget:         5 * time.Second,
		BreakerMaxFailures: 5,
		BreakerTimeout:     5 * time.Second,
		CacheTTL:           time.Hour,
		SessionTTL:         7 * 24 * time.Hour,
		SessionRetention:   24 * time.Hour,
		APIKeyRequests:     1000,
		APIKeyWindow:       "1h",
		LogLevel:           "info",
	}
}

// Validate checks that every value is usable.
func (c Config) Validate() error {
	if c.RedisURL == "" {
		return errors.New("config: redis_url is required")
	}
	for name, d := range map[string]time.Duration{
		"store_timeout":     c.StoreTimeout,
		"scan_budget":       c.ScanBudget,
		"breaker_timeout":   c.BreakerTimeout,
		"cache_ttl":         c.CacheTTL,
		"session_ttl":       c.SessionTTL,
		"session_retention": c.SessionRetention,
	} {
		if d <= 0 {
			return errors.Newf("config: %s must be positive, got %s", name, d)
		}
	}
	if c.BreakerMaxFailures <= 0 {
		return errors.Newf("config: breaker_max_failures must be positive, got %d", c.BreakerMaxFailures)
	}
	if c.APIKeyRequests <= 0 {
		return errors.Newf("config: apikey_requests must be positive, got %d", c.APIKeyRequests)
	}
	if d, err := str2duration.ParseDuration(c.APIKeyWindow); err != nil || d < time.Second {
		return errors.Newf("config: apikey_window %q is not a valid window", c.APIKeyWindow)
	}
	return nil
}

// keys lists the mapstructure key of every Config field.
func keys() []string {
	typ := reflect.TypeOf(Config{})
	out := make([]string, 0, typ.NumField())
	for i := 0; i < typ.NumField(); i++ {
		out = append(out, typ.Field(i).Tag.Get("mapstructure"))
	}
	return out
}

func setDefaults(v *viper.Viper, cfg Config) {
	val := reflect.ValueOf(cfg)
	typ := val.Type()
	for i := 0; i < typ.NumField(); i++ {
		v.SetDefault(typ.Field(i).Tag.Get("mapstructure"), val.Field(i).Interface())
	}
}

// bindFlags binds every flag whose name matches a key, with '-' standing in
// for '_' (--redis-url sets redis_url).
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for _, key := range keys() {
		f := flags.Lookup(strings.ReplaceAll(key, "_", "-"))
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return errors.Wrapf(err, "config: binding flag %s", f.Name)
		}
	}
	return nil
}

var durationType = reflect.TypeOf(time.Duration(0))

func durationHook(from, to reflect.Type, data any) (any, error) {
	if to != durationType || from.Kind() != reflect.String {
		return data, nil
	}
	return str2duration.ParseDuration(data.(string))
}

// Load builds the configuration. path may be empty to skip the file; flags
// may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "config: reading %s", path)
		}
	}
	if flags != nil {
		if err := bindFlags(v, flags); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(durationHook))); err != nil {
		return nil, errors.Wrap(err, "config: decoding")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// YAML renders the configuration in the file format Load reads, with
// durations written in their short form.
func (c Config) YAML() ([]byte, error) {
	doc := yaml.Node{Kind: yaml.MappingNode}
	val := reflect.ValueOf(c)
	typ := val.Type()
	for i := 0; i < typ.NumField(); i++ {
		fv := val.Field(i).Interface()
		if d, ok := fv.(time.Duration); ok {
			fv = str2duration.String(d)
		}
		var node yaml.Node
		if err := node.Encode(fv); err != nil {
			return nil, errors.Wrapf(err, "config: encoding %s", typ.Field(i).Name)
		}
		doc.Content = append(doc.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: typ.Field(i).Tag.Get("mapstructure")},
			&node)
	}
	buf, err := yaml.Marshal(&doc)
	return buf, errors.Wrap(err, "config: encoding")
}
