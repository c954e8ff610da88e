package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/menta2k/vision-correct/pkg/analyzer"
	"github.com/menta2k/vision-correct/pkg/correction"
	"github.com/menta2k/vision-correct/pkg/device"
	"github.com/menta2k/vision-correct/pkg/scale"
	"github.com/menta2k/vision-correct/pkg/vision"
)

// Config holds the application configuration
type Config struct {
	Scale    scale.Mapping  `json:"scale"`
	Device   device.Config  `json:"device"`
	Detector DetectorConfig `json:"detector"`
	Contrast ContrastConfig `json:"contrast"`
	Analyzer AnalyzerConfig `json:"analyzer"`
	Engine   EngineConfig   `json:"engine"`
	Server   ServerConfig   `json:"server"`
	Logging  LoggingConfig  `json:"logging"`
	Output   OutputConfig   `json:"output"`
}

// DetectorConfig holds configuration for text region detection
type DetectorConfig struct {
	MaxDimension       int     `json:"max_dimension"`
	EdgeThreshold      float64 `json:"edge_threshold"`
	MaxComponentPixels int     `json:"max_component_pixels"`
	MinRegionArea      int     `json:"min_region_area"`
	MergeDistance      float64 `json:"merge_distance"`
}

// ContrastConfig holds configuration for the contrast grid
type ContrastConfig struct {
	CellSize int `json:"cell_size"`
}

// AnalyzerConfig holds configuration for content analysis
type AnalyzerConfig struct {
	SupportedFormats []string `json:"supported_formats"`
	MinImageSize     int      `json:"min_image_size"`
	CacheSize        int      `json:"cache_size"`
	SampleSize       int      `json:"sample_size"`
}

// EngineConfig holds configuration for the correction engine
type EngineConfig struct {
	PageOrigin      string   `json:"page_origin"`
	CORSHosts       []string `json:"cors_hosts"`
	FrameIntervalMs int      `json:"frame_interval_ms"`
	ReadingVision   float64  `json:"reading_vision"`
	ContrastBoost   float64  `json:"contrast_boost"`
	EdgeEnhancement float64  `json:"edge_enhancement"`
	Enabled         bool     `json:"enabled"`
}

// ServerConfig holds configuration for the HTTP service
type ServerConfig struct {
	HTTPAddr       string   `json:"http_addr"`
	AllowedOrigins []string `json:"allowed_origins"`
	StorePath      string   `json:"store_path"`
	MaxUploadMB    int      `json:"max_upload_mb"`
}

// LoggingConfig holds configuration for log output
type LoggingConfig struct {
	Level  string `json:"level"`
	Pretty bool   `json:"pretty"`
}

// OutputConfig holds configuration for output generation
type OutputConfig struct {
	DefaultFormat string `json:"default_format"`
	OutputDir     string `json:"output_dir"`
	Prefix        string `json:"prefix"`
	Suffix        string `json:"suffix"`
	Quality       int    `json:"quality"`
}

// Default returns a configuration with default values
func Default() *Config {
	detection := vision.DefaultDetectionConfig()
	analysis := analyzer.DefaultConfig()
	settings := correction.DefaultSettings()

	return &Config{
		Scale:  scale.Default,
		Device: device.DefaultConfig(),
		Detector: DetectorConfig{
			MaxDimension:       detection.MaxDimension,
			EdgeThreshold:      detection.EdgeThreshold,
			MaxComponentPixels: detection.MaxComponentPixels,
			MinRegionArea:      detection.MinRegionArea,
			MergeDistance:      detection.MergeDistance,
		},
		Contrast: ContrastConfig{
			CellSize: vision.DefaultCellSize,
		},
		Analyzer: AnalyzerConfig{
			SupportedFormats: analysis.SupportedFormats,
			MinImageSize:     analysis.MinImageSize,
			CacheSize:        analysis.CacheSize,
			SampleSize:       analysis.SampleSize,
		},
		Engine: EngineConfig{
			FrameIntervalMs: int(correction.DefaultFrameInterval / time.Millisecond),
			ReadingVision:   settings.ReadingVision,
			ContrastBoost:   settings.ContrastBoost,
			EdgeEnhancement: settings.EdgeEnhancement,
			Enabled:         settings.IsEnabled,
		},
		Server: ServerConfig{
			HTTPAddr:       ":8080",
			AllowedOrigins: []string{"*"},
			StorePath:      defaultStorePath(),
			MaxUploadMB:    20,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Output: OutputConfig{
			DefaultFormat: "png",
			OutputDir:     "./output",
			Suffix:        "_corrected",
			Quality:       90,
		},
	}
}

// LoadFromFile loads configuration from a JSON file. Fields missing from
// the file keep their defaults.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// Load reads filename when it exists, falls back to defaults otherwise, then
// applies environment overrides and validates the result
func Load(filename string) (*Config, error) {
	config := Default()
	if filename != "" {
		if _, err := os.Stat(filename); err == nil {
			loaded, err := LoadFromFile(filename)
			if err != nil {
				return nil, err
			}
			config = loaded
		}
	}

	config.ApplyEnv()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

// SaveToFile saves configuration to a JSON file
func (c *Config) SaveToFile(filename string) error {
	// Create directory if it doesn't exist
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

// ApplyEnv overrides fields from VISION_* environment variables
func (c *Config) ApplyEnv() {
	c.Server.HTTPAddr = getEnv("VISION_HTTP_ADDR", c.Server.HTTPAddr)
	c.Server.StorePath = getEnv("VISION_STORE_PATH", c.Server.StorePath)
	c.Server.AllowedOrigins = getEnvList("VISION_ALLOWED_ORIGINS", c.Server.AllowedOrigins)
	c.Logging.Level = getEnv("VISION_LOG_LEVEL", c.Logging.Level)
	c.Logging.Pretty = getEnvBool("VISION_LOG_PRETTY", c.Logging.Pretty)
	c.Engine.PageOrigin = getEnv("VISION_PAGE_ORIGIN", c.Engine.PageOrigin)
	c.Engine.CORSHosts = getEnvList("VISION_CORS_HOSTS", c.Engine.CORSHosts)
	c.Analyzer.CacheSize = getEnvInt("VISION_CACHE_SIZE", c.Analyzer.CacheSize)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := c.Scale.Validate(); err != nil {
		return fmt.Errorf("scale: %w", err)
	}

	adj := c.Device.Adjustment
	if adj[device.Desktop] < 0 || adj[device.Tablet] < adj[device.Desktop] || adj[device.Mobile] < adj[device.Tablet] {
		return fmt.Errorf("device.adjustment must satisfy mobile >= tablet >= desktop >= 0")
	}
	if c.Device.SmallBreakpoint < 1 || c.Device.MediumBreakpoint <= c.Device.SmallBreakpoint {
		return fmt.Errorf("device breakpoints must be positive and increasing")
	}

	if c.Detector.MaxDimension < 1 {
		return fmt.Errorf("detector.max_dimension must be positive")
	}
	if c.Detector.EdgeThreshold < 0 || c.Detector.EdgeThreshold > 1 {
		return fmt.Errorf("detector.edge_threshold must be between 0 and 1")
	}
	if c.Detector.MaxComponentPixels < 1 {
		return fmt.Errorf("detector.max_component_pixels must be positive")
	}
	if c.Detector.MinRegionArea < 0 || c.Detector.MergeDistance < 0 {
		return fmt.Errorf("detector.min_region_area and merge_distance cannot be negative")
	}

	if c.Contrast.CellSize < 1 {
		return fmt.Errorf("contrast.cell_size must be positive")
	}

	if c.Analyzer.CacheSize < 1 {
		return fmt.Errorf("analyzer.cache_size must be positive")
	}
	if c.Analyzer.SampleSize < 1 {
		return fmt.Errorf("analyzer.sample_size must be positive")
	}
	if len(c.Analyzer.SupportedFormats) == 0 {
		return fmt.Errorf("analyzer.supported_formats cannot be empty")
	}

	if c.Engine.FrameIntervalMs < 1 {
		return fmt.Errorf("engine.frame_interval_ms must be positive")
	}
	if err := c.Settings().Validate(); err != nil {
		return fmt.Errorf("engine: %w", err)
	}

	if _, err := zerolog.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}

	if c.Output.Quality < 1 || c.Output.Quality > 100 {
		return fmt.Errorf("output.quality must be between 1 and 100")
	}

	return nil
}

// DetectionConfig converts the detector section
func (c *Config) DetectionConfig() vision.DetectionConfig {
	return vision.DetectionConfig{
		MaxDimension:       c.Detector.MaxDimension,
		EdgeThreshold:      c.Detector.EdgeThreshold,
		MaxComponentPixels: c.Detector.MaxComponentPixels,
		MinRegionArea:      c.Detector.MinRegionArea,
		MergeDistance:      c.Detector.MergeDistance,
	}
}

// AnalyzerConfig converts the analyzer, detector and contrast sections
func (c *Config) AnalyzerConfig() analyzer.Config {
	return analyzer.Config{
		SupportedFormats: c.Analyzer.SupportedFormats,
		MinImageSize:     c.Analyzer.MinImageSize,
		CacheSize:        c.Analyzer.CacheSize,
		SampleSize:       c.Analyzer.SampleSize,
		CellSize:         c.Contrast.CellSize,
		Detection:        c.DetectionConfig(),
	}
}

// Settings returns the initial vision settings
func (c *Config) Settings() correction.VisionSettings {
	return correction.VisionSettings{
		ReadingVision:   c.Engine.ReadingVision,
		ContrastBoost:   c.Engine.ContrastBoost,
		EdgeEnhancement: c.Engine.EdgeEnhancement,
		IsEnabled:       c.Engine.Enabled,
	}
}

// EngineConfig converts the engine section
func (c *Config) EngineConfig() correction.Config {
	return correction.Config{
		PageOrigin:    c.Engine.PageOrigin,
		CORSHosts:     c.Engine.CORSHosts,
		FrameInterval: time.Duration(c.Engine.FrameIntervalMs) * time.Millisecond,
		Settings:      c.Settings(),
	}
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "vision-correct", "config.json")
}

func defaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./calibration.json"
	}
	return filepath.Join(home, ".config", "vision-correct", "calibration.json")
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "true" || v == "1"
	}
	return def
}

func getEnvList(key string, def []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if t := strings.TrimSpace(p); t != "" {
				result = append(result, t)
			}
		}
		return result
	}
	return def
}
