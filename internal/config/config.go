// Package config loads the terminal configuration from a YAML file, with
// environment overrides under the TILLSYNC_ prefix.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Store     StoreConfig     `mapstructure:"store"`
	Remote    RemoteConfig    `mapstructure:"remote"`
	Spool     SpoolConfig     `mapstructure:"spool"`
	Server    ServerConfig    `mapstructure:"server"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// StoreConfig locates the local cache database.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// RemoteConfig describes the central store endpoint.
type RemoteConfig struct {
	BaseURL       string `mapstructure:"base_url"`
	Timeout       string `mapstructure:"timeout"`
	ProbeInterval string `mapstructure:"probe_interval"`
}

func (r RemoteConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(r.Timeout)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}

func (r RemoteConfig) GetProbeInterval() time.Duration {
	d, err := time.ParseDuration(r.ProbeInterval)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// SpoolConfig describes the drop directory watched for sale files.
// An empty Dir disables the watcher.
type SpoolConfig struct {
	Dir string `mapstructure:"dir"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DashboardConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// SchedulerConfig drives the periodic background sync.
type SchedulerConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
}

type LoggingConfig struct {
	// File receives log output when set; empty logs to stderr.
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// Load reads configuration from path. A missing file is not an error: the
// defaults describe a working single-register setup.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("store.path", "tillsync.db")
	v.SetDefault("remote.base_url", "http://localhost:8080")
	v.SetDefault("remote.timeout", "10s")
	v.SetDefault("remote.probe_interval", "30s")
	v.SetDefault("spool.dir", "")
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 9180)
	v.SetDefault("dashboard.enabled", true)
	v.SetDefault("dashboard.port", 9190)
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.schedule", "@every 5m")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 10)
	v.SetDefault("logging.max_backups", 3)

	v.SetEnvPrefix("TILLSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			_, notFound := err.(viper.ConfigFileNotFoundError)
			if !notFound && !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &cfg, nil
}
