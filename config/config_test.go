package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults do not validate: %v", err)
	}
	if cfg.Capture.ViewportWidth != 1280 || cfg.Capture.ViewportHeight != 720 {
		t.Errorf("viewport = %dx%d", cfg.Capture.ViewportWidth, cfg.Capture.ViewportHeight)
	}
	if cfg.Capture.MinSettle != 3*time.Second {
		t.Errorf("min settle = %v", cfg.Capture.MinSettle)
	}
	if cfg.Compare.Tolerance != 5.0 {
		t.Errorf("tolerance = %v", cfg.Compare.Tolerance)
	}
	if cfg.Store.Driver != "sqlite" {
		t.Errorf("store driver = %q", cfg.Store.Driver)
	}
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("PAGEDIFF_TOLERANCE", "12.5")
	t.Setenv("PAGEDIFF_IGNORE_SELECTORS", ".clock; #ticker, .live")
	t.Setenv("PAGEDIFF_EXTRA_HEADERS", "X-Env=staging, Accept-Language=en-US")
	t.Setenv("PAGEDIFF_MAX_SETTLE", "20s")
	t.Setenv("PAGEDIFF_STORE", "memory")

	cfg := Load()
	if cfg.Compare.Tolerance != 12.5 {
		t.Errorf("tolerance = %v", cfg.Compare.Tolerance)
	}
	want := []string{".clock", "#ticker, .live"}
	if strings.Join(cfg.Compare.IgnoreSelectors, "|") != strings.Join(want, "|") {
		t.Errorf("ignore selectors = %q", cfg.Compare.IgnoreSelectors)
	}
	if cfg.Capture.ExtraHeaders["X-Env"] != "staging" || cfg.Capture.ExtraHeaders["Accept-Language"] != "en-US" {
		t.Errorf("extra headers = %v", cfg.Capture.ExtraHeaders)
	}
	if cfg.Capture.MaxSettle != 20*time.Second {
		t.Errorf("max settle = %v", cfg.Capture.MaxSettle)
	}
	if cfg.Store.Driver != "memory" {
		t.Errorf("store = %q", cfg.Store.Driver)
	}
}

func TestLoad_MalformedValuesFallBack(t *testing.T) {
	t.Setenv("PAGEDIFF_PORT", "eighty")
	t.Setenv("PAGEDIFF_CAPTURE_TIMEOUT", "soon")
	cfg := Load()
	if cfg.Server.Port != 8080 || cfg.Capture.Timeout != 60*time.Second {
		t.Errorf("malformed values should fall back: port=%d timeout=%v", cfg.Server.Port, cfg.Capture.Timeout)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"zero viewport", func(c *Config) { c.Capture.ViewportWidth = 0 }, "viewport"},
		{"quality", func(c *Config) { c.Capture.ImageQuality = 0 }, "quality"},
		{"format", func(c *Config) { c.Capture.ImageFormat = "gif" }, "image format"},
		{"negative tolerance", func(c *Config) { c.Compare.Tolerance = -1 }, "negative"},
		{"highlight", func(c *Config) { c.Compare.HighlightColor = "magenta" }, "highlight"},
		{"selector", func(c *Config) { c.Compare.IgnoreSelectors = []string{"div[[["} }, "ignore selectors"},
		{"driver", func(c *Config) { c.Store.Driver = "mongo" }, "store driver"},
		{"settle", func(c *Config) { c.Capture.MaxSettle = time.Second }, "settle"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Load()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.want)
			}
		})
	}
}

func TestValidate_PNGIgnoresQuality(t *testing.T) {
	cfg := Load()
	cfg.Capture.ImageFormat = "png"
	cfg.Capture.ImageQuality = 0
	if err := cfg.Validate(); err != nil {
		t.Errorf("png with zero quality should validate: %v", err)
	}
}
