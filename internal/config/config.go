package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Notify  NotifyConfig  `yaml:"notify" toml:"notify"`
	Log     LogConfig     `yaml:"log" toml:"log"`
	Metrics MetricsConfig `yaml:"metrics" toml:"metrics"`
	Relay   RelayConfig   `yaml:"relay" toml:"relay"`
}

type NotifyConfig struct {
	// Endpoint is the handshake URL; http(s) is rewritten to ws(s).
	Endpoint          string   `yaml:"endpoint" toml:"endpoint"`
	TokenFile         string   `yaml:"token_file" toml:"token_file"`
	ReconnectDelay    Duration `yaml:"reconnect_delay" toml:"reconnect_delay"`
	HeartbeatOutgoing Duration `yaml:"heartbeat_outgoing" toml:"heartbeat_outgoing"`
	HeartbeatIncoming Duration `yaml:"heartbeat_incoming" toml:"heartbeat_incoming"`
	Subprotocols      []string `yaml:"subprotocols" toml:"subprotocols"`
}

type LogConfig struct {
	Level string `yaml:"level" toml:"level"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr" toml:"addr"`
}

type RelayConfig struct {
	Addr   string `yaml:"addr" toml:"addr"`
	Path   string `yaml:"path" toml:"path"`
	Secret string `yaml:"secret" toml:"secret"`
}

// Duration accepts "5s"-style strings in both yaml and toml.
type Duration time.Duration

func (d Duration) D() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func defaultConfig() *Config {
	return &Config{
		Notify: NotifyConfig{
			Endpoint:          "http://localhost:8080/ws",
			TokenFile:         defaultTokenFile(),
			ReconnectDelay:    Duration(5 * time.Second),
			HeartbeatOutgoing: Duration(10 * time.Second),
			HeartbeatIncoming: Duration(10 * time.Second),
			Subprotocols:      []string{"v12.stomp"},
		},
		Log: LogConfig{Level: "info"},
		Relay: RelayConfig{
			Addr: ":8080",
			Path: "/ws",
		},
	}
}

func defaultTokenFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "token.json"
	}
	return filepath.Join(dir, "foodflow", "token.json")
}

// Load reads the config file at path (yaml or toml by extension) over the
// defaults, then applies environment overrides. An empty path skips the
// file. Loading a .env file into the environment is left to the caller.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".toml":
			if _, err := toml.Decode(string(data), cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		case ".yaml", ".yml", "":
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		default:
			return nil, fmt.Errorf("unsupported config format %q", filepath.Ext(path))
		}
	}

	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv("FOODFLOW_WS_URL"); v != "" {
		c.Notify.Endpoint = v
	}
	if v := getenv("FOODFLOW_TOKEN_FILE"); v != "" {
		c.Notify.TokenFile = v
	}
	if v := getenv("FOODFLOW_RECONNECT_DELAY"); v != "" {
		if err := c.Notify.ReconnectDelay.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("FOODFLOW_RECONNECT_DELAY: %w", err)
		}
	}
	if v := getenv("FOODFLOW_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := getenv("FOODFLOW_METRICS_ADDR"); v != "" {
		c.Metrics.Addr = v
	}
	if v := getenv("FOODFLOW_RELAY_ADDR"); v != "" {
		c.Relay.Addr = v
	}
	if v := getenv("FOODFLOW_RELAY_SECRET"); v != "" {
		c.Relay.Secret = v
	}
	return nil
}

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Notify.Endpoint) == "" {
		errs = append(errs, errors.New("notify.endpoint is required"))
	}
	if c.Notify.ReconnectDelay < 0 {
		errs = append(errs, errors.New("notify.reconnect_delay must not be negative"))
	}
	if c.Notify.HeartbeatOutgoing < 0 || c.Notify.HeartbeatIncoming < 0 {
		errs = append(errs, errors.New("notify heartbeats must not be negative"))
	}
	if c.Relay.Path != "" && !strings.HasPrefix(c.Relay.Path, "/") {
		errs = append(errs, fmt.Errorf("relay.path %q must start with /", c.Relay.Path))
	}
	return errors.Join(errs...)
}
