// Package config resolves the missionctl home directory and loads
// home/config.yaml, with MISSIONCTL_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ankittk/missioncontrol/internal/gateway"
	"github.com/ankittk/missioncontrol/internal/retry"
	"github.com/ankittk/missioncontrol/internal/store"
)

// FileName is the config file under the home directory.
const FileName = "config.yaml"

// EnvPrefix prefixes environment overrides: MISSIONCTL_DB_DRIVER sets db.driver.
const EnvPrefix = "MISSIONCTL"

// Gateway transports.
const (
	TransportHTTP = "http"
	TransportGRPC = "grpc"
	TransportStub = "stub"
)

var ErrInvalid = errors.New("invalid config")

type Config struct {
	HTTP    HTTPConfig    `mapstructure:"http"`
	DB      DBConfig      `mapstructure:"db"`
	Gateway GatewayConfig `mapstructure:"gateway"`
	Retry   retry.Policy  `mapstructure:"retry"`
	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Notify  NotifyConfig  `mapstructure:"notify"`
}

type HTTPConfig struct {
	Addr   string `mapstructure:"addr"`
	APIKey string `mapstructure:"api_key"`
	Dev    bool   `mapstructure:"dev"`
}

type DBConfig struct {
	Driver string `mapstructure:"driver"` // sqlite or postgres
	URL    string `mapstructure:"url"`    // postgres DSN; DATABASE_URL when empty
}

type GatewayConfig struct {
	URL             string        `mapstructure:"url"`       // HTTP transport
	Transport       string        `mapstructure:"transport"` // http, grpc or stub
	Addr            string        `mapstructure:"addr"`      // gRPC transport
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"` // text or json
	File       string `mapstructure:"file"`   // rotated with lumberjack when set
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// NotifyConfig forwards task and agent milestones to a Slack incoming webhook.
type NotifyConfig struct {
	SlackWebhookURL string `mapstructure:"slack_webhook_url"` // empty disables notifications
	SlackChannel    string `mapstructure:"slack_channel"`
	SlackUsername   string `mapstructure:"slack_username"`
}

// Default returns the configuration used when no file or env override is set.
func Default() Config {
	return Config{
		HTTP:    HTTPConfig{Addr: ":3548"},
		DB:      DBConfig{Driver: store.DriverSQLite},
		Gateway: GatewayConfig{URL: gateway.DefaultURL, Transport: TransportHTTP, Addr: "localhost:50051", RefreshInterval: 30 * time.Second},
		Retry:   retry.DefaultPolicy,
		Log:     LogConfig{Level: "info", Format: "text", MaxSizeMB: 100, MaxBackups: 3, MaxAgeDays: 28},
		Metrics: MetricsConfig{Enabled: true},
	}
}

// Path returns home/config.yaml.
func Path(home string) string { return filepath.Join(home, FileName) }

func setDefaults(v *viper.Viper, c Config) {
	for key, val := range c.document() {
		for sub, x := range val {
			v.SetDefault(key+"."+sub, x)
		}
	}
}

// Load reads home/config.yaml if it exists and applies MISSIONCTL_* overrides.
func Load(home string) (Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, Default())

	path := Path(home)
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read %s: %w", path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return Config{}, err
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) Validate() error {
	switch c.DB.Driver {
	case store.DriverSQLite, store.DriverPostgres:
	default:
		return fmt.Errorf("%w: db.driver %q (want sqlite or postgres)", ErrInvalid, c.DB.Driver)
	}
	switch c.Gateway.Transport {
	case TransportHTTP, TransportGRPC, TransportStub:
	default:
		return fmt.Errorf("%w: gateway.transport %q (want http, grpc or stub)", ErrInvalid, c.Gateway.Transport)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log.format %q (want text or json)", ErrInvalid, c.Log.Format)
	}
	if err := c.Retry.Validate(); err != nil {
		return fmt.Errorf("%w: retry: %w", ErrInvalid, err)
	}
	return nil
}

// document is the file layout of c; durations are written as strings.
func (c Config) document() map[string]map[string]any {
	return map[string]map[string]any{
		"http": {"addr": c.HTTP.Addr, "api_key": c.HTTP.APIKey, "dev": c.HTTP.Dev},
		"db":   {"driver": c.DB.Driver, "url": c.DB.URL},
		"gateway": {
			"url": c.Gateway.URL, "transport": c.Gateway.Transport, "addr": c.Gateway.Addr,
			"refresh_interval": c.Gateway.RefreshInterval.String(),
		},
		"retry": {"max_attempts": c.Retry.MaxAttempts, "base_delay": c.Retry.BaseDelay.String()},
		"log": {
			"level": c.Log.Level, "format": c.Log.Format, "file": c.Log.File,
			"max_size_mb": c.Log.MaxSizeMB, "max_backups": c.Log.MaxBackups,
			"max_age_days": c.Log.MaxAgeDays, "compress": c.Log.Compress,
		},
		"metrics": {"enabled": c.Metrics.Enabled},
		"notify": {
			"slack_webhook_url": c.Notify.SlackWebhookURL, "slack_channel": c.Notify.SlackChannel,
			"slack_username": c.Notify.SlackUsername,
		},
	}
}

// YAML renders c in the config file format.
func (c Config) YAML() ([]byte, error) {
	return yaml.Marshal(c.document())
}

// Write saves c to home/config.yaml. An existing file is kept unless overwrite is set.
func Write(home string, c Config, overwrite bool) (string, error) {
	path := Path(home)
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return path, fmt.Errorf("%s already exists", path)
		}
	}
	b, err := c.YAML()
	if err != nil {
		return path, err
	}
	if err := os.MkdirAll(home, 0o755); err != nil {
		return path, err
	}
	return path, os.WriteFile(path, b, 0o600)
}
