package main

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the daemon's static bootstrap configuration, parsed once at
// startup from a TOML file, per spec section 6's configuration-file
// format (re-expressed here as TOML rather than the spec's own INI,
// following the teacher pack's BurntSushi/toml convention; the
// pkg/configplane .cnf files are still written as INI).
type Config struct {
	PIDFile    string `toml:"pid_file"`
	PersistDir string `toml:"persist_dir"`
	Log        LogConfig
	AdminDSN   string `toml:"admin_dsn"` // DSN used to refresh pkg/authcache from mysql.user/mysql.db

	Server    []ServerConfig
	Monitor   []MonitorConfig
	Service   []ServiceConfig
	Listener  []ListenerConfig
}

type LogConfig struct {
	Path       string `toml:"path"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Level      string `toml:"level"`
}

type ServerConfig struct {
	Name     string `toml:"name"`
	Address  string `toml:"address"`
	Rank     int    `toml:"rank"`
	Excluded bool   `toml:"excluded"`
}

type MonitorConfig struct {
	Name               string   `toml:"name"`
	Servers            []string `toml:"servers"`
	PollIntervalMS     int      `toml:"poll_interval_ms"`
	ConnectTimeoutMS   int      `toml:"connect_timeout_ms"`
	User               string   `toml:"user"`
	Password           string   `toml:"password"`
}

func (m MonitorConfig) PollInterval() time.Duration {
	return time.Duration(m.PollIntervalMS) * time.Millisecond
}

func (m MonitorConfig) ConnectTimeout() time.Duration {
	return time.Duration(m.ConnectTimeoutMS) * time.Millisecond
}

type ServiceConfig struct {
	Name            string `toml:"name"`
	Router          string `toml:"router"` // "rwsplit" or "shard"
	Monitor         string `toml:"monitor"`
	Servers         []string `toml:"servers"`
	User            string `toml:"user"`
	Password        string `toml:"password"`
	RetainLastStmts int    `toml:"retain_last_statements"`
}

type ListenerConfig struct {
	Name    string `toml:"name"`
	Address string `toml:"address"`
	Service string `toml:"service"`
}

// LoadConfig reads and parses path, applying the same defaults
// FillDefault-style validation the teacher's proxy.Config carries, per
// spec section 6.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	cfg.fillDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) fillDefaults() {
	if c.PersistDir == "" {
		c.PersistDir = "/var/lib/sqlgated"
	}
	if c.Log.Path == "" {
		c.Log.Path = "/var/log/sqlgated/sqlgated.log"
	}
	if c.Log.MaxSizeMB == 0 {
		c.Log.MaxSizeMB = 100
	}
	if c.Log.MaxBackups == 0 {
		c.Log.MaxBackups = 5
	}
	if c.Log.MaxAgeDays == 0 {
		c.Log.MaxAgeDays = 28
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	for i := range c.Monitor {
		if c.Monitor[i].PollIntervalMS == 0 {
			c.Monitor[i].PollIntervalMS = 2000
		}
		if c.Monitor[i].ConnectTimeoutMS == 0 {
			c.Monitor[i].ConnectTimeoutMS = 3000
		}
	}
	for i := range c.Service {
		if c.Service[i].RetainLastStmts == 0 {
			c.Service[i].RetainLastStmts = 4
		}
	}
}

func (c *Config) validate() error {
	if len(c.Listener) == 0 {
		return fmt.Errorf("config: at least one [[listener]] is required")
	}
	services := make(map[string]ServiceConfig)
	for _, svc := range c.Service {
		if svc.Name == "" {
			return fmt.Errorf("config: service with empty name")
		}
		services[svc.Name] = svc
	}
	for _, l := range c.Listener {
		if _, ok := services[l.Service]; !ok {
			return fmt.Errorf("config: listener %s references unknown service %s", l.Name, l.Service)
		}
	}
	for _, svc := range c.Service {
		if svc.Router != "rwsplit" && svc.Router != "shard" {
			return fmt.Errorf("config: service %s has unknown router %q", svc.Name, svc.Router)
		}
		if len(svc.Servers) == 0 && svc.Monitor == "" {
			return fmt.Errorf("config: service %s must set servers or monitor", svc.Name)
		}
	}
	return nil
}
