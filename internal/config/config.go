// Package config loads member configuration from an optional YAML file,
// an optional .env file and environment overrides, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Member struct {
		ID     string   `yaml:"id"`
		Addr   string   `yaml:"addr"`
		Groups []string `yaml:"groups"`
		// Regions created locally at boot.
		Regions []string `yaml:"regions"`
	} `yaml:"member"`

	Server struct {
		Listen string `yaml:"listen"`
	} `yaml:"server"`

	Etcd struct {
		Endpoints   []string      `yaml:"endpoints"`
		DialTimeout time.Duration `yaml:"dial_timeout"`
		LeaseTTL    int64         `yaml:"lease_ttl"`
		Prefix      string        `yaml:"prefix"`
	} `yaml:"etcd"`

	Dispatch struct {
		Timeout time.Duration `yaml:"timeout"`
		// SyncTimeout bounds each artifact push to a joining member.
		SyncTimeout time.Duration `yaml:"sync_timeout"`
		Parallel    int           `yaml:"parallel"`
	} `yaml:"dispatch"`

	Region struct {
		CapacityBytes int           `yaml:"capacity_bytes"`
		EntryTTL      time.Duration `yaml:"entry_ttl"`
	} `yaml:"region"`

	Deploy struct {
		// DBPath is the buntdb file; ":memory:" keeps artifacts in memory only.
		DBPath string `yaml:"db_path"`
	} `yaml:"deploy"`

	Log struct {
		Env   string `yaml:"env"`
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// Default returns a config with every default applied.
func Default() *Config {
	c := &Config{}
	c.Server.Listen = ":8080"
	c.Etcd.Endpoints = []string{"http://etcd:2379"}
	c.Etcd.DialTimeout = 5 * time.Second
	c.Etcd.LeaseTTL = 10
	c.Etcd.Prefix = "/zephyr/members/"
	c.Dispatch.Timeout = 30 * time.Second
	c.Dispatch.SyncTimeout = 5 * time.Second
	c.Dispatch.Parallel = 16
	c.Region.CapacityBytes = 64 << 20
	c.Deploy.DBPath = ":memory:"
	c.Log.Env = "dev"
	c.Log.Level = "info"
	return c
}

// Load reads path (when non-empty), then .env (when present), then the environment.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, c); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	return c, c.Validate()
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("SELF_ID"); v != "" {
		c.Member.ID = v
	}
	if v := os.Getenv("SELF_ADDR"); v != "" {
		c.Member.Addr = v
	}
	if v := os.Getenv("MEMBER_GROUPS"); v != "" {
		c.Member.Groups = splitList(v)
	}
	if v := os.Getenv("REGIONS"); v != "" {
		c.Member.Regions = splitList(v)
	}
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		c.Server.Listen = v
	}
	if v := os.Getenv("ETCD_ENDPOINTS"); v != "" {
		c.Etcd.Endpoints = splitList(v)
	}
	if v := os.Getenv("DISPATCH_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("DISPATCH_TIMEOUT: %w", err)
		}
		c.Dispatch.Timeout = d
	}
	if v := os.Getenv("DISPATCH_SYNC_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("DISPATCH_SYNC_TIMEOUT: %w", err)
		}
		c.Dispatch.SyncTimeout = d
	}
	if v := os.Getenv("DISPATCH_PARALLEL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("DISPATCH_PARALLEL: %w", err)
		}
		c.Dispatch.Parallel = n
	}
	if v := os.Getenv("DEPLOY_DB_PATH"); v != "" {
		c.Deploy.DBPath = v
	}
	if v := os.Getenv("LOG_ENV"); v != "" {
		c.Log.Env = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	return nil
}

// Validate checks the fields a member cannot run without.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Member.ID) == "" {
		return errors.New("config: member id is required (SELF_ID)")
	}
	if c.Dispatch.Timeout <= 0 {
		return errors.New("config: dispatch timeout must be positive")
	}
	if c.Dispatch.SyncTimeout <= 0 {
		return errors.New("config: dispatch sync timeout must be positive")
	}
	if c.Dispatch.Parallel <= 0 {
		return errors.New("config: dispatch parallelism must be positive")
	}
	if c.Region.CapacityBytes <= 0 {
		return errors.New("config: region capacity must be positive")
	}
	if c.Member.Addr == "" {
		c.Member.Addr = c.Member.ID + c.Server.Listen
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
