package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "city.yaml")
	body := `
map:
  width: 64
market:
  timeout: 2s
  workers: 2
economy:
  tax_rate: 0.1
log_level: debug
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Map.Width != 64 || cfg.Map.Height != 128 {
		t.Errorf("map = %+v, want width overridden and height kept", cfg.Map)
	}
	if cfg.Market.Timeout != 2*time.Second || cfg.Market.Workers != 2 {
		t.Errorf("market = %+v", cfg.Market)
	}
	if cfg.Market.MaxAttempts != 5 || cfg.Market.SellerShare != 3 {
		t.Errorf("unset market keys lost their defaults: %+v", cfg.Market)
	}
	if cfg.Economy.TaxRate != 0.1 || cfg.Economy.MinTax != 1 {
		t.Errorf("economy = %+v", cfg.Economy)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"negative workers", "market:\n  workers: -1\n"},
		{"tax over one", "economy:\n  tax_rate: 1.5\n"},
		{"bad level", "log_level: loud\n"},
		{"not yaml", "map: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "city.yaml")
			if err := os.WriteFile(path, []byte(tt.body), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(path); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected an error for a missing file")
	}
}
