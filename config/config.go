package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

var log = logrus.New()

// Config represents the configuration of an rmi node process
type Config struct {
	// Default config file location
	configFile string

	Log struct {
		Level  string `json:"level" yaml:"level"`
		Format string `json:"format" yaml:"format"` // text or json
	} `json:"log" yaml:"log"`

	Network struct {
		Listen string `json:"listen" yaml:"listen"`
		Dial   string `json:"dial" yaml:"dial"`
	} `json:"network" yaml:"network"`

	// Protocol settings apply to every node the process creates
	Protocol struct {
		Serializer string `json:"serializer" yaml:"serializer"`
		AllowEval  bool   `json:"allow_eval" yaml:"allow_eval"`
		EvalSteps  uint64 `json:"eval_steps" yaml:"eval_steps"`
	} `json:"protocol" yaml:"protocol"`

	Store struct {
		Backend string `json:"backend" yaml:"backend"`
		Path    string `json:"path" yaml:"path"`
	} `json:"store" yaml:"store"`

	Stats struct {
		Interval Duration `json:"interval" yaml:"interval"`
		Jitter   Duration `json:"jitter" yaml:"jitter"`
	} `json:"stats" yaml:"stats"`
}

// NewEmptyConfig generates a new configuration with default settings
func NewEmptyConfig(configFile string) *Config {
	cfg := &Config{}

	cfg.configFile = configFile

	cfg.Log.Level = "info"
	cfg.Log.Format = "text"

	cfg.Network.Listen = "127.0.0.1:7070"
	cfg.Network.Dial = "127.0.0.1:7070"

	cfg.Protocol.Serializer = "s1"
	cfg.Protocol.AllowEval = false
	cfg.Protocol.EvalSteps = 1_000_000

	cfg.Store.Backend = "leveldb"
	cfg.Store.Path = "/tmp/rmi/store"

	cfg.Stats.Interval = Duration(time.Minute)
	cfg.Stats.Jitter = Duration(5 * time.Second)

	return cfg
}

func NewConfigFromFile(configFile string) (*Config, error) {
	cfg := NewEmptyConfig(configFile)
	if err := cfg.Load(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) File() string {
	return c.configFile
}

// WithFile points the config at a different file for Save and Load.
func (c *Config) WithFile(configFile string) *Config {
	c.configFile = configFile
	return c
}

func (c *Config) isYAML() bool {
	ext := strings.ToLower(filepath.Ext(c.configFile))
	return ext == ".yaml" || ext == ".yml"
}

// Save saves the configuration to a file
func (c *Config) Save() error {
	log.Infof("Saving config to %s", c.configFile)

	var (
		data []byte
		err  error
	)
	if c.isYAML() {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return err
	}
	return os.WriteFile(c.configFile, data, 0644)
}

func (c *Config) Load() error {
	log.Infof("Loading config from %s", c.configFile)
	data, err := os.ReadFile(c.configFile)
	if err != nil {
		return err
	}

	if c.isYAML() {
		err = yaml.Unmarshal(data, c)
	} else {
		err = json.Unmarshal(data, c)
	}
	if err != nil {
		return fmt.Errorf("parsing %s: %w", c.configFile, err)
	}

	return c.Validate()
}

func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	switch c.Store.Backend {
	case "leveldb", "bolt", "flatfs":
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.Stats.Interval > 0 && c.Stats.Jitter >= c.Stats.Interval {
		return fmt.Errorf("stats jitter %v must be below the interval %v", c.Stats.Jitter, c.Stats.Interval)
	}
	return nil
}
