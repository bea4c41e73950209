package core

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

//go:embed default.toml
var defaultConfig []byte

const MaxFramesInFlight = 3

type Backend string

const (
	BackendVulkan Backend = "vulkan"
	BackendOpenGL Backend = "opengl"
)

type ApplicationConfig struct {
	// The application name used in windowing.
	Name string `toml:"name"`
	// Window starting position.
	StartPosX uint32 `toml:"pos_x"`
	StartPosY uint32 `toml:"pos_y"`
	// Window starting size.
	StartWidth  uint32  `toml:"width"`
	StartHeight uint32  `toml:"height"`
	Backend     Backend `toml:"backend"`
	TargetFPS   uint32  `toml:"target_fps"`
	// When set, the remaining frame time is given back to the OS.
	LimitFrames bool `toml:"limit_frames"`
}

type RendererConfig struct {
	FramesInFlight uint32     `toml:"frames_in_flight"`
	VSync          bool       `toml:"vsync"`
	Validation     bool       `toml:"validation"`
	ClearColor     [4]float32 `toml:"clear_color"`
	ClearDepth     float32    `toml:"clear_depth"`
	ClearStencil   uint32     `toml:"clear_stencil"`
}

type AssetsConfig struct {
	ShaderDir    string `toml:"shader_dir"`
	TextureDir   string `toml:"texture_dir"`
	WatchShaders bool   `toml:"watch_shaders"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

type Config struct {
	Application ApplicationConfig `toml:"application"`
	Renderer    RendererConfig    `toml:"renderer"`
	Assets      AssetsConfig      `toml:"assets"`
	Log         LogConfig         `toml:"log"`
}

// DefaultConfig decodes the configuration embedded in the binary.
func DefaultConfig() (*Config, error) {
	cfg := &Config{}
	if err := toml.Unmarshal(defaultConfig, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode default config: %w", err)
	}
	return cfg, nil
}

// LoadConfig overlays the file at path on top of the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg, err := DefaultConfig()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config file `%s`: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Renderer.FramesInFlight < 1 || c.Renderer.FramesInFlight > MaxFramesInFlight {
		return fmt.Errorf("%w: frames_in_flight must be in [1, %d], got %d", ErrInvalidConfig, MaxFramesInFlight, c.Renderer.FramesInFlight)
	}
	if c.Application.StartWidth == 0 || c.Application.StartHeight == 0 {
		return fmt.Errorf("%w: window size must be non-zero", ErrInvalidConfig)
	}
	switch c.Application.Backend {
	case BackendVulkan, BackendOpenGL:
	default:
		return fmt.Errorf("%w: unknown backend `%s`", ErrInvalidConfig, c.Application.Backend)
	}
	return nil
}

// TargetFrameSeconds returns 0 when no target rate is configured.
func (c *Config) TargetFrameSeconds() float64 {
	if c.Application.TargetFPS == 0 {
		return 0
	}
	return 1.0 / float64(c.Application.TargetFPS)
}
