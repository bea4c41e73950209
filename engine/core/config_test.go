package core_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spaghettifunk/prism/engine/core"
)

func TestDefaultConfig(t *testing.T) {
	cfg, err := core.DefaultConfig()
	if err != nil {
		t.Fatalf("DefaultConfig() error = %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config is invalid: %v", err)
	}
	if cfg.Renderer.FramesInFlight != 2 {
		t.Errorf("FramesInFlight = %d, want 2", cfg.Renderer.FramesInFlight)
	}
	if cfg.Application.Backend != core.BackendVulkan {
		t.Errorf("Backend = %q, want %q", cfg.Application.Backend, core.BackendVulkan)
	}
	if cfg.Application.StartWidth != 1280 || cfg.Application.StartHeight != 720 {
		t.Errorf("window size = %dx%d, want 1280x720", cfg.Application.StartWidth, cfg.Application.StartHeight)
	}
}

func TestLoadConfigOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.toml")
	data := []byte(`
[application]
name = "boids"
backend = "opengl"

[renderer]
frames_in_flight = 3
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := core.LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Application.Name != "boids" {
		t.Errorf("Name = %q, want boids", cfg.Application.Name)
	}
	if cfg.Application.Backend != core.BackendOpenGL {
		t.Errorf("Backend = %q, want opengl", cfg.Application.Backend)
	}
	if cfg.Renderer.FramesInFlight != 3 {
		t.Errorf("FramesInFlight = %d, want 3", cfg.Renderer.FramesInFlight)
	}
	// untouched keys keep their default
	if cfg.Application.StartWidth != 1280 {
		t.Errorf("StartWidth = %d, want default 1280", cfg.Application.StartWidth)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*core.Config)
	}{
		{"zero frames in flight", func(c *core.Config) { c.Renderer.FramesInFlight = 0 }},
		{"too many frames in flight", func(c *core.Config) { c.Renderer.FramesInFlight = 4 }},
		{"zero width", func(c *core.Config) { c.Application.StartWidth = 0 }},
		{"unknown backend", func(c *core.Config) { c.Application.Backend = "metal" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := core.DefaultConfig()
			if err != nil {
				t.Fatal(err)
			}
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, core.ErrInvalidConfig) {
				t.Errorf("Validate() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestTargetFrameSeconds(t *testing.T) {
	cfg, err := core.DefaultConfig()
	if err != nil {
		t.Fatal(err)
	}
	if got := cfg.TargetFrameSeconds(); got != 1.0/60.0 {
		t.Errorf("TargetFrameSeconds() = %v, want 1/60", got)
	}
	cfg.Application.TargetFPS = 0
	if got := cfg.TargetFrameSeconds(); got != 0 {
		t.Errorf("TargetFrameSeconds() = %v, want 0", got)
	}
}
