package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Storage.Path != filepath.Join(cfg.DataDir, "objects") {
		t.Errorf("storage path = %q", cfg.Storage.Path)
	}
	if cfg.Analysis.CacheDir != filepath.Join(cfg.DataDir, "cache") {
		t.Errorf("cache dir = %q", cfg.Analysis.CacheDir)
	}
}

func TestLoadFromFileYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
data_dir: /var/lib/expertsure
http:
  addr: ":9000"
analysis:
  timeout: 90s
storage:
  type: s3
  s3:
    bucket: decks
    region: eu-west-1
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTP.Addr != ":9000" {
		t.Errorf("addr = %q", cfg.HTTP.Addr)
	}
	if cfg.Analysis.Timeout != 90*time.Second {
		t.Errorf("timeout = %v", cfg.Analysis.Timeout)
	}
	if cfg.Storage.Type != "s3" || cfg.Storage.S3.Bucket != "decks" {
		t.Errorf("storage = %+v", cfg.Storage)
	}
	// Unset fields keep their defaults.
	if cfg.HTTP.MaxUploadSizeMB != 100 {
		t.Errorf("max upload = %d", cfg.HTTP.MaxUploadSizeMB)
	}
}

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("EXPERTSURE_HTTP_ADDR", ":7070")
	t.Setenv("EXPERTSURE_NATS_URL", "nats://localhost:4222")
	t.Setenv("EXPERTSURE_LOG_LEVEL", "debug")

	cfg := DefaultConfig()
	LoadFromEnv(cfg)

	if cfg.HTTP.Addr != ":7070" {
		t.Errorf("addr = %q", cfg.HTTP.Addr)
	}
	if cfg.Events.NATSURL != "nats://localhost:4222" {
		t.Errorf("nats url = %q", cfg.Events.NATSURL)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("log level = %q", cfg.Logging.Level)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing data dir", func(c *Config) { c.DataDir = "" }},
		{"s3 without bucket", func(c *Config) { c.Storage.Type = "s3" }},
		{"unknown storage type", func(c *Config) { c.Storage.Type = "gcs" }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"zero timeout", func(c *Config) { c.Analysis.Timeout = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Resolve()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
