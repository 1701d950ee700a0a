// Package config loads the service configuration from a file (json or yaml)
// with environment overrides.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/homefixr/dispatch/core/dispatch"
	"github.com/homefixr/dispatch/infra/notify"
)

type Config struct {
	Dispatch dispatch.Config   `json:"dispatch"`
	Store    StoreConfig       `json:"store"`
	Redis    RedisConfig       `json:"redis"`
	MQTT     notify.MQTTConfig `json:"mqtt"`
	Metrics  MetricsConfig     `json:"metrics"`
	Audit    AuditConfig       `json:"audit"`
	API      APIConfig         `json:"api"`
}

// Load reads the configuration file at path. Variables prefixed with HFD_
// override file values, with "__" separating nesting levels
// (HFD_API__ADDR overrides api.addr).
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	if err := k.Load(env.Provider("HFD_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "hfd_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.Dispatch.SetDefaults()
	cfg.Store.SetDefaults()
	cfg.Audit.SetDefaults()
	cfg.API.SetDefaults()
	if err := cfg.Store.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Audit.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// StoreConfig selects the booking store backend.
type StoreConfig struct {
	// Backend is "memory" or "mongo".
	Backend  string `json:"backend"`
	URI      string `json:"uri"`
	Database string `json:"database"`
}

func (c *StoreConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "memory"
	}
	if c.Database == "" {
		c.Database = "homefix"
	}
}

func (c StoreConfig) Validate() error {
	switch c.Backend {
	case "memory":
		return nil
	case "mongo":
		if c.URI == "" {
			return fmt.Errorf("store.uri is required for the mongo backend")
		}
		return nil
	default:
		return fmt.Errorf("unknown store backend %s", c.Backend)
	}
}

// RedisConfig enables the distributed per-booking lock. When Addr is empty
// the engine uses in-process locks.
type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// MetricsConfig configures the assignment metrics sinks.
type MetricsConfig struct {
	PrometheusEnabled bool   `json:"prometheus_enabled"`
	PrometheusPort    string `json:"prometheus_port"`
	InfluxEnabled     bool   `json:"influx_enabled"`
	InfluxURL         string `json:"influx_url"`
	InfluxToken       string `json:"influx_token"`
	InfluxOrg         string `json:"influx_org"`
	InfluxBucket      string `json:"influx_bucket"`
}

// AuditConfig selects the decision log backend.
type AuditConfig struct {
	// Backend is "jsonl", "sqlite" or "nop".
	Backend string `json:"backend"`
	Path    string `json:"path"`
}

func (c *AuditConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "jsonl"
	}
	if c.Path == "" && c.Backend != "nop" {
		c.Path = "dispatch_decisions.log"
	}
}

func (c AuditConfig) Validate() error {
	switch c.Backend {
	case "jsonl", "sqlite", "nop":
	default:
		return fmt.Errorf("unknown audit backend %s", c.Backend)
	}
	if c.Backend != "nop" && c.Path == "" {
		return fmt.Errorf("audit.path is required")
	}
	return nil
}

// APIConfig configures the HTTP surface.
type APIConfig struct {
	Addr       string `json:"addr"`
	AdminToken string `json:"admin_token"`
}

func (c *APIConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
}
