// Package config loads the daemon configuration with flag > env > file
// precedence. The YAML file is optional; every value has a usable default
// so `chatterly` starts with no configuration at all.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the canonical daemon configuration.
type Config struct {
	Server struct {
		Address string `yaml:"address"`
		Port    int    `yaml:"port"`
		// PublicBaseURL prefixes upload URLs handed to browsers.
		PublicBaseURL string `yaml:"public_base_url"`
	} `yaml:"server"`
	Storage struct {
		DBPath    string `yaml:"db_path"`
		UploadDir string `yaml:"upload_dir"`
	} `yaml:"storage"`
	Feed struct {
		// NatsURL selects the live-feed transport; empty runs the
		// in-process bus.
		NatsURL string `yaml:"nats_url"`
	} `yaml:"feed"`
	RateLimit struct {
		RPS   float64 `yaml:"rps"`
		Burst int     `yaml:"burst"`
	} `yaml:"rate_limit"`
	Retention struct {
		Enabled bool   `yaml:"enabled"`
		Cron    string `yaml:"cron"`
	} `yaml:"retention"`
	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	host := c.Server.Address
	port := c.Server.Port
	if port == 0 {
		port = 8080
	}
	return fmt.Sprintf("%s:%d", host, port)
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.PublicBaseURL == "" {
		c.Server.PublicBaseURL = "http://localhost:" + strconv.Itoa(c.Server.Port)
	}
	if c.Storage.DBPath == "" {
		c.Storage.DBPath = "./data/db"
	}
	if c.Storage.UploadDir == "" {
		c.Storage.UploadDir = "./data/uploads"
	}
	if c.RateLimit.RPS <= 0 {
		c.RateLimit.RPS = 25
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = 50
	}
	if c.Retention.Cron == "" {
		c.Retention.Cron = "0 3 * * *"
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv("CHATTERLY_ADDR"); v != "" {
		host, port, ok := strings.Cut(v, ":")
		if ok {
			if p, err := strconv.Atoi(port); err == nil {
				c.Server.Address = host
				c.Server.Port = p
			}
		}
	}
	if v := os.Getenv("CHATTERLY_PUBLIC_BASE_URL"); v != "" {
		c.Server.PublicBaseURL = v
	}
	if v := os.Getenv("CHATTERLY_DB_PATH"); v != "" {
		c.Storage.DBPath = v
	}
	if v := os.Getenv("CHATTERLY_UPLOAD_DIR"); v != "" {
		c.Storage.UploadDir = v
	}
	if v := os.Getenv("CHATTERLY_NATS_URL"); v != "" {
		c.Feed.NatsURL = v
	}
	if v := os.Getenv("CHATTERLY_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// LoadEffective merges the optional YAML file at path with environment
// overrides and defaults. A missing file is not an error; a malformed one
// is.
func LoadEffective(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	c.applyEnv()
	c.applyDefaults()
	return &c, nil
}

// Flags holds command-line overrides; Set records which were given
// explicitly so they win over file and env.
type Flags struct {
	Addr   string
	DBPath string
	Config string
	Set    map[string]bool
}

// ParseCommandFlags parses the daemon's flags.
func ParseCommandFlags() Flags {
	addr := flag.String("addr", "", "listen address (host:port)")
	db := flag.String("db", "", "pebble database path")
	cfg := flag.String("config", "", "path to YAML config file")
	flag.Parse()
	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return Flags{Addr: *addr, DBPath: *db, Config: *cfg, Set: set}
}

// ResolveConfigPath picks the config file path: explicit flag, then env,
// then ./chatterly.yaml.
func ResolveConfigPath(fl Flags) string {
	if fl.Set["config"] {
		return fl.Config
	}
	if v := os.Getenv("CHATTERLY_CONFIG"); v != "" {
		return v
	}
	return "chatterly.yaml"
}

// ApplyFlags overlays explicit flags onto the effective config.
func ApplyFlags(c *Config, fl Flags) {
	if fl.Set["addr"] {
		if host, port, ok := strings.Cut(fl.Addr, ":"); ok {
			if p, err := strconv.Atoi(port); err == nil {
				c.Server.Address = host
				c.Server.Port = p
			}
		}
	}
	if fl.Set["db"] {
		c.Storage.DBPath = fl.DBPath
	}
}
