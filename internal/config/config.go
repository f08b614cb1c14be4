// Package config holds the application configuration for the coin preview
// tool: viewport scale, pipeline limits, scheduler tuning and the
// generation service endpoint.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config holds the application configuration.
type Config struct {
	Viewport  ViewportConfig  `json:"viewport"`
	Pipeline  PipelineConfig  `json:"pipeline"`
	Scheduler SchedulerConfig `json:"scheduler"`
	API       APIConfig       `json:"api"`
}

// ViewportConfig holds the viewport display settings.
type ViewportConfig struct {
	PixelsPerMM      float64 `json:"pixels_per_mm"`
	DevicePixelRatio float64 `json:"device_pixel_ratio"`
	DefaultShape     string  `json:"default_shape"`
	DefaultCoinMM    float64 `json:"default_coin_mm"`
}

// PipelineConfig holds processing limits.
type PipelineConfig struct {
	PreviewMaxSide int `json:"preview_max_side"`
	SaveQuality    int `json:"save_quality"`
}

// SchedulerConfig holds the recompute scheduler tuning.
type SchedulerConfig struct {
	MaxWorkers int     `json:"max_workers"`
	MinFPS     float64 `json:"min_fps"`
	MaxFPS     float64 `json:"max_fps"`
	InitialFPS float64 `json:"initial_fps"`
}

// APIConfig holds the generation service endpoint settings.
type APIConfig struct {
	BaseURL           string  `json:"base_url"`
	RequestTimeoutSec int     `json:"request_timeout_sec"`
	PollIntervalMs    int     `json:"poll_interval_ms"`
	MaxPollAttempts   int     `json:"max_poll_attempts"`
	CoinThicknessMM   float64 `json:"coin_thickness_mm"`
	CoinReliefDepthMM float64 `json:"coin_relief_depth_mm"`
}

// Default returns a configuration with default values.
func Default() *Config {
	return &Config{
		Viewport: ViewportConfig{
			PixelsPerMM:      4,
			DevicePixelRatio: 1,
			DefaultShape:     "circle",
			DefaultCoinMM:    30,
		},
		Pipeline: PipelineConfig{
			PreviewMaxSide: 400,
			SaveQuality:    90,
		},
		Scheduler: SchedulerConfig{
			MaxWorkers: 4,
			MinFPS:     1,
			MaxFPS:     8,
			InitialFPS: 4,
		},
		API: APIConfig{
			BaseURL:           "http://localhost:8580",
			RequestTimeoutSec: 120,
			PollIntervalMs:    1000,
			MaxPollAttempts:   300,
			CoinThicknessMM:   3,
			CoinReliefDepthMM: 1,
		},
	}
}

// LoadFromFile loads configuration from a JSON file.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// SaveToFile saves configuration to a JSON file.
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Viewport.PixelsPerMM <= 0 {
		return fmt.Errorf("viewport.pixels_per_mm must be positive")
	}
	if c.Viewport.DevicePixelRatio <= 0 {
		return fmt.Errorf("viewport.device_pixel_ratio must be positive")
	}
	if c.Viewport.DefaultCoinMM <= 0 {
		return fmt.Errorf("viewport.default_coin_mm must be positive")
	}

	if c.Pipeline.PreviewMaxSide < 16 {
		return fmt.Errorf("pipeline.preview_max_side must be at least 16")
	}
	if c.Pipeline.SaveQuality < 1 || c.Pipeline.SaveQuality > 100 {
		return fmt.Errorf("pipeline.save_quality must be between 1 and 100")
	}

	if c.Scheduler.MaxWorkers < 1 {
		return fmt.Errorf("scheduler.max_workers must be at least 1")
	}
	if c.Scheduler.MinFPS <= 0 {
		return fmt.Errorf("scheduler.min_fps must be positive")
	}
	if c.Scheduler.MaxFPS < c.Scheduler.MinFPS {
		return fmt.Errorf("scheduler.max_fps must be at least scheduler.min_fps")
	}
	if c.Scheduler.InitialFPS < c.Scheduler.MinFPS || c.Scheduler.InitialFPS > c.Scheduler.MaxFPS {
		return fmt.Errorf("scheduler.initial_fps must lie between min_fps and max_fps")
	}

	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url cannot be empty")
	}
	if c.API.RequestTimeoutSec < 1 {
		return fmt.Errorf("api.request_timeout_sec must be positive")
	}
	if c.API.PollIntervalMs < 1 {
		return fmt.Errorf("api.poll_interval_ms must be positive")
	}
	if c.API.MaxPollAttempts < 1 {
		return fmt.Errorf("api.max_poll_attempts must be positive")
	}

	return nil
}

// GetConfigPath returns the default configuration file path.
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "coin-preview", "config.json")
}
