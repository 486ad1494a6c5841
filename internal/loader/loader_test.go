package loader

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/quantio/quantd/internal/errors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "quantd.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "{}"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Listen != "0.0.0.0:8080" {
		t.Errorf("Listen = %q", cfg.Server.Listen)
	}
	if cfg.Data.PriceObject != "prices_latest.parquet" {
		t.Errorf("PriceObject = %q", cfg.Data.PriceObject)
	}
	if cfg.Bucket.Provider != "filesystem" {
		t.Errorf("Provider = %q", cfg.Bucket.Provider)
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
server:
  listen: "127.0.0.1:9000"
  read_timeout: 10s
  write_timeout: 120
sessions:
  dir: /var/lib/quantd/sessions
sample:
  target_points: 50
  min_points: 100
agent:
  enabled: true
  model: gemini-2.0-flash
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Listen != "127.0.0.1:9000" {
		t.Errorf("Listen = %q", cfg.Server.Listen)
	}
	if cfg.Server.ReadTimeout.Duration() != 10*time.Second {
		t.Errorf("ReadTimeout = %v", cfg.Server.ReadTimeout.Duration())
	}
	// Bare integers are seconds.
	if cfg.Server.WriteTimeout.Duration() != 120*time.Second {
		t.Errorf("WriteTimeout = %v", cfg.Server.WriteTimeout.Duration())
	}
	if cfg.Sessions.Dir != "/var/lib/quantd/sessions" {
		t.Errorf("Sessions.Dir = %q", cfg.Sessions.Dir)
	}
	if cfg.Sample.TargetPoints != 50 || cfg.Sample.MinPoints != 100 {
		t.Errorf("Sample = %+v", cfg.Sample)
	}
	if !cfg.Agent.Enabled {
		t.Error("Agent.Enabled not set")
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("QUANTD_TEST_TOKEN", "s3cret")

	cfg, err := Load(writeConfig(t, `
auth:
  tokens:
    - id: ci
      token: ${QUANTD_TEST_TOKEN}
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Auth.Tokens) != 1 || cfg.Auth.Tokens[0].Token != "s3cret" {
		t.Errorf("Tokens = %+v", cfg.Auth.Tokens)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("missing file should fail")
	}
}

func TestLoadMalformed(t *testing.T) {
	if _, err := Load(writeConfig(t, "server: [not a map")); err == nil {
		t.Fatal("malformed YAML should fail")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty listen", func(c *Config) { c.Server.Listen = "" }},
		{"token without id", func(c *Config) { c.Auth.Tokens = []TokenConfig{{Token: "x"}} }},
		{"token without secret", func(c *Config) { c.Auth.Tokens = []TokenConfig{{ID: "x"}} }},
		{"unknown provider", func(c *Config) { c.Bucket.Provider = "ftp" }},
		{"filesystem without dir", func(c *Config) {
			c.Bucket.Provider = "filesystem"
			c.Bucket.Filesystem.Directory = ""
		}},
		{"s3 without bucket", func(c *Config) { c.Bucket.Provider = "s3" }},
		{"empty price object", func(c *Config) { c.Data.PriceObject = "" }},
		{"non-positive max series", func(c *Config) { c.Store.MaxSeries = 0 }},
		{"target below two", func(c *Config) { c.Sample.TargetPoints = 1 }},
		{"min below target", func(c *Config) {
			c.Sample.TargetPoints = 100
			c.Sample.MinPoints = 50
		}},
		{"short signing key", func(c *Config) { c.Artifacts.SigningKey = "short" }},
		{"agent enabled without model", func(c *Config) {
			c.Agent.Enabled = true
			c.Agent.Model = ""
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := Validate(cfg)
			if err == nil {
				t.Fatal("expected validation failure")
			}
			if !errors.IsValidation(err) {
				t.Errorf("error %v should classify as validation", err)
			}
		})
	}
}

func TestValidateCollectsAll(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Listen = ""
	cfg.Data.PriceObject = ""
	cfg.Store.MaxSeries = -1

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected failure")
	}
	var verrs *errors.ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("error %T is not a ValidationErrors", err)
	}
	if len(verrs.Errors) != 3 {
		t.Errorf("collected %d errors, want 3", len(verrs.Errors))
	}
}
