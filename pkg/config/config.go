package config

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cuemby/lookout/pkg/audit"
	"github.com/cuemby/lookout/pkg/log"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides, e.g. LOOKOUT_AUDIT_DISABLE
const EnvPrefix = "LOOKOUT"

// Config is the agent configuration
type Config struct {
	DataDir      string              `mapstructure:"data_dir" yaml:"data_dir"`
	Log          LogConfig           `mapstructure:"log" yaml:"log"`
	Events       EventsConfig        `mapstructure:"events" yaml:"events"`
	FilePaths    map[string][]string `mapstructure:"file_paths" yaml:"file_paths"`
	ExcludePaths map[string][]string `mapstructure:"exclude_paths" yaml:"exclude_paths"`
	Audit        AuditConfig         `mapstructure:"audit" yaml:"audit"`
	Process      ProcessConfig       `mapstructure:"process" yaml:"process"`
	Connections  ConnectionsConfig   `mapstructure:"connections" yaml:"connections"`
	Server       ServerConfig        `mapstructure:"server" yaml:"server"`
}

// LogConfig controls logging output
type LogConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	JSON       bool   `mapstructure:"json" yaml:"json"`
	File       string `mapstructure:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
}

// EventsConfig controls the event bus and row retention
type EventsConfig struct {
	Cooldown       time.Duration `mapstructure:"cooldown" yaml:"cooldown"`
	Expiry         time.Duration `mapstructure:"expiry" yaml:"expiry"`
	ExpiryInterval time.Duration `mapstructure:"expiry_interval" yaml:"expiry_interval"`
	FileInterval   time.Duration `mapstructure:"file_interval" yaml:"file_interval"`
	MaxWatches     int           `mapstructure:"max_watches" yaml:"max_watches"`
}

// AuditConfig controls the audit netlink driver
type AuditConfig struct {
	Disable            bool          `mapstructure:"disable" yaml:"disable"`
	Persist            bool          `mapstructure:"persist" yaml:"persist"`
	AllowConfig        bool          `mapstructure:"allow_config" yaml:"allow_config"`
	AllowProcessEvents bool          `mapstructure:"allow_process_events" yaml:"allow_process_events"`
	AllowSockets       bool          `mapstructure:"allow_sockets" yaml:"allow_sockets"`
	AllowFIMEvents     bool          `mapstructure:"allow_fim_events" yaml:"allow_fim_events"`
	Debug              bool          `mapstructure:"debug" yaml:"debug"`
	ReconnectDelay     time.Duration `mapstructure:"reconnect_delay" yaml:"reconnect_delay"`
	StatusInterval     int           `mapstructure:"status_interval" yaml:"status_interval"`
	ReadBatch          int           `mapstructure:"read_batch" yaml:"read_batch"`
	FIM                FIMConfig     `mapstructure:"fim" yaml:"fim"`
}

// FIMConfig selects the paths fim_events reports when allow_fim_events is
// set. An empty include list reports every path.
type FIMConfig struct {
	Include      []string `mapstructure:"include" yaml:"include"`
	Exclude      []string `mapstructure:"exclude" yaml:"exclude"`
	ShowAccesses bool     `mapstructure:"show_accesses" yaml:"show_accesses"`
}

// ProcessConfig controls the process snapshot publisher
type ProcessConfig struct {
	Enable   bool          `mapstructure:"enable" yaml:"enable"`
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
}

// ConnectionsConfig controls the connection snapshot publisher
type ConnectionsConfig struct {
	Enable        bool          `mapstructure:"enable" yaml:"enable"`
	Interval      time.Duration `mapstructure:"interval" yaml:"interval"`
	ListeningOnly bool          `mapstructure:"listening_only" yaml:"listening_only"`
}

// ServerConfig holds the listen addresses. An empty address disables that
// server.
type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr" yaml:"http_addr"`
	GRPCAddr string `mapstructure:"grpc_addr" yaml:"grpc_addr"`
}

// Default returns a Config with the default values
func Default() *Config {
	driver := audit.DefaultConfig()
	return &Config{
		DataDir: "/var/lib/lookout",
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 7,
		},
		Events: EventsConfig{
			Cooldown:     200 * time.Millisecond,
			Expiry:       24 * time.Hour,
			FileInterval: 200 * time.Millisecond,
			MaxWatches:   8192,
		},
		FilePaths:    map[string][]string{},
		ExcludePaths: map[string][]string{},
		Audit: AuditConfig{
			Disable:        driver.Disable,
			Persist:        driver.Persist,
			ReconnectDelay: driver.ReconnectDelay,
			StatusInterval: driver.StatusInterval,
			ReadBatch:      driver.ReadBatch,
		},
		Process:     ProcessConfig{Interval: 10 * time.Second},
		Connections: ConnectionsConfig{Interval: 10 * time.Second},
		Server: ServerConfig{
			HTTPAddr: "127.0.0.1:9090",
			GRPCAddr: "127.0.0.1:9091",
		},
	}
}

// SetDefaults registers every default with v
func SetDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("data_dir", d.DataDir)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.json", d.Log.JSON)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age_days", d.Log.MaxAgeDays)

	v.SetDefault("events.cooldown", d.Events.Cooldown)
	v.SetDefault("events.expiry", d.Events.Expiry)
	v.SetDefault("events.expiry_interval", d.Events.ExpiryInterval)
	v.SetDefault("events.file_interval", d.Events.FileInterval)
	v.SetDefault("events.max_watches", d.Events.MaxWatches)

	v.SetDefault("file_paths", d.FilePaths)
	v.SetDefault("exclude_paths", d.ExcludePaths)

	v.SetDefault("audit.disable", d.Audit.Disable)
	v.SetDefault("audit.persist", d.Audit.Persist)
	v.SetDefault("audit.allow_config", d.Audit.AllowConfig)
	v.SetDefault("audit.allow_process_events", d.Audit.AllowProcessEvents)
	v.SetDefault("audit.allow_sockets", d.Audit.AllowSockets)
	v.SetDefault("audit.allow_fim_events", d.Audit.AllowFIMEvents)
	v.SetDefault("audit.debug", d.Audit.Debug)
	v.SetDefault("audit.reconnect_delay", d.Audit.ReconnectDelay)
	v.SetDefault("audit.status_interval", d.Audit.StatusInterval)
	v.SetDefault("audit.read_batch", d.Audit.ReadBatch)
	v.SetDefault("audit.fim.show_accesses", d.Audit.FIM.ShowAccesses)

	v.SetDefault("process.enable", d.Process.Enable)
	v.SetDefault("process.interval", d.Process.Interval)
	v.SetDefault("connections.enable", d.Connections.Enable)
	v.SetDefault("connections.interval", d.Connections.Interval)
	v.SetDefault("connections.listening_only", d.Connections.ListeningOnly)

	v.SetDefault("server.http_addr", d.Server.HTTPAddr)
	v.SetDefault("server.grpc_addr", d.Server.GRPCAddr)
}

// New creates a viper instance with defaults, LOOKOUT_ environment
// overrides and, when path is set, the YAML file at path
func New(path string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}
	return v, nil
}

// Load reads the configuration from v into a Config struct and validates it
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Watch calls fn with the reloaded configuration every time the config
// file changes, until ctx is done. Invalid configurations are logged and
// skipped.
func Watch(ctx context.Context, v *viper.Viper, fn func(*Config)) {
	logger := log.WithComponent("config")

	v.OnConfigChange(func(e fsnotify.Event) {
		if ctx.Err() != nil {
			return
		}
		cfg, err := Load(v)
		if err != nil {
			logger.Warn().Err(err).Str("file", e.Name).Msg("Ignoring invalid configuration")
			return
		}
		logger.Info().Str("file", e.Name).Msg("Configuration reloaded")
		fn(cfg)
	})
	v.WatchConfig()
}

// Validate checks the configuration for invalid values
func (c *Config) Validate() error {
	var errs []error

	switch log.Level(c.Log.Level) {
	case log.DebugLevel, log.InfoLevel, log.WarnLevel, log.ErrorLevel:
	default:
		errs = append(errs, fmt.Errorf("log.level: invalid level %q", c.Log.Level))
	}

	if c.DataDir == "" {
		errs = append(errs, errors.New("data_dir: must not be empty"))
	}
	if c.Events.Cooldown < 0 {
		errs = append(errs, errors.New("events.cooldown: must not be negative"))
	}
	if c.Events.Expiry < 0 {
		errs = append(errs, errors.New("events.expiry: must not be negative"))
	}

	for _, category := range sortedKeys(c.FilePaths) {
		for _, p := range c.FilePaths[category] {
			if !filepath.IsAbs(p) {
				errs = append(errs, fmt.Errorf("file_paths.%s: %q is not absolute", category, p))
			}
		}
	}
	for _, category := range sortedKeys(c.ExcludePaths) {
		for _, p := range c.ExcludePaths[category] {
			if !filepath.IsAbs(p) {
				errs = append(errs, fmt.Errorf("exclude_paths.%s: %q is not absolute", category, p))
			}
		}
	}

	for _, p := range c.Audit.FIM.Include {
		if !filepath.IsAbs(p) {
			errs = append(errs, fmt.Errorf("audit.fim.include: %q is not absolute", p))
		}
	}
	for _, p := range c.Audit.FIM.Exclude {
		if !filepath.IsAbs(p) {
			errs = append(errs, fmt.Errorf("audit.fim.exclude: %q is not absolute", p))
		}
	}

	if c.Audit.StatusInterval <= 0 {
		errs = append(errs, errors.New("audit.status_interval: must be positive"))
	}
	if c.Audit.ReadBatch <= 0 {
		errs = append(errs, errors.New("audit.read_batch: must be positive"))
	}
	if c.Process.Enable && c.Process.Interval <= 0 {
		errs = append(errs, errors.New("process.interval: must be positive"))
	}
	if c.Connections.Enable && c.Connections.Interval <= 0 {
		errs = append(errs, errors.New("connections.interval: must be positive"))
	}

	return errors.Join(errs...)
}

// Exclusions flattens exclude_paths into one sorted list of patterns
func (c *Config) Exclusions() []string {
	var out []string
	for _, category := range sortedKeys(c.ExcludePaths) {
		out = append(out, c.ExcludePaths[category]...)
	}
	return out
}

// LogConfig converts the logging section for log.Init
func (c *Config) LogConfig() log.Config {
	return log.Config{
		Level:      log.Level(c.Log.Level),
		JSONOutput: c.Log.JSON,
		File:       c.Log.File,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		MaxAgeDays: c.Log.MaxAgeDays,
	}
}

// DriverConfig converts the audit section for audit.NewDriver
func (c *Config) DriverConfig() audit.Config {
	cfg := audit.DefaultConfig()
	cfg.Disable = c.Audit.Disable
	cfg.Persist = c.Audit.Persist
	cfg.AllowConfig = c.Audit.AllowConfig
	cfg.AllowProcessEvents = c.Audit.AllowProcessEvents
	cfg.AllowSockets = c.Audit.AllowSockets
	cfg.AllowFIMEvents = c.Audit.AllowFIMEvents
	cfg.Debug = c.Audit.Debug
	cfg.ReconnectDelay = c.Audit.ReconnectDelay
	cfg.StatusInterval = c.Audit.StatusInterval
	cfg.ReadBatch = c.Audit.ReadBatch
	return cfg
}

// Render returns the configuration as YAML
func (c *Config) Render() ([]byte, error) {
	return yaml.Marshal(c)
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
