package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestSaveLoad(t *testing.T) {
	for _, name := range []string{"rmi.json", "rmi.yaml"} {
		path := filepath.Join(t.TempDir(), name)

		cfg := NewEmptyConfig(path)
		cfg.Network.Listen = ":9000"
		cfg.Protocol.AllowEval = true
		cfg.Store.Backend = "bolt"
		cfg.Stats.Interval = Duration(30 * time.Second)
		if err := cfg.Save(); err != nil {
			t.Fatalf("%s: %v", name, err)
		}

		got, err := NewConfigFromFile(path)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if diff := cmp.Diff(cfg, got, cmp.AllowUnexported(Config{})); diff != "" {
			t.Fatalf("%s: mismatch (-want +got):\n%s", name, diff)
		}
	}
}

func TestYAMLDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rmi.yml")
	data := "network:\n  listen: 0.0.0.0:7000\nstats:\n  interval: 2m\n"
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := NewConfigFromFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Network.Listen != "0.0.0.0:7000" {
		t.Fatalf("listen not loaded: %q", cfg.Network.Listen)
	}
	if time.Duration(cfg.Stats.Interval) != 2*time.Minute {
		t.Fatalf("interval not loaded: %v", cfg.Stats.Interval)
	}
	if cfg.Protocol.Serializer != "s1" || cfg.Store.Backend != "leveldb" {
		t.Fatalf("defaults lost: %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	bad := []func(*Config){
		func(c *Config) { c.Log.Level = "loud" },
		func(c *Config) { c.Log.Format = "xml" },
		func(c *Config) { c.Store.Backend = "postgres" },
		func(c *Config) { c.Stats.Jitter = c.Stats.Interval },
	}
	for i, mutate := range bad {
		cfg := NewEmptyConfig("")
		mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("case %d: expected a validation error", i)
		}
	}
	if err := NewEmptyConfig("").Validate(); err != nil {
		t.Fatalf("defaults do not validate: %v", err)
	}
}
