package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/menta2k/vision-correct/pkg/device"
)

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default config should validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"mobile below tablet", func(c *Config) { c.Device.Adjustment[device.Mobile] = 0.5 }},
		{"negative desktop", func(c *Config) { c.Device.Adjustment[device.Desktop] = -1 }},
		{"inverted scale", func(c *Config) { c.Scale.UserMax = -1 }},
		{"edge threshold", func(c *Config) { c.Detector.EdgeThreshold = 1.5 }},
		{"cell size", func(c *Config) { c.Contrast.CellSize = 0 }},
		{"cache size", func(c *Config) { c.Analyzer.CacheSize = 0 }},
		{"no formats", func(c *Config) { c.Analyzer.SupportedFormats = nil }},
		{"contrast boost", func(c *Config) { c.Engine.ContrastBoost = 150 }},
		{"frame interval", func(c *Config) { c.Engine.FrameIntervalMs = 0 }},
		{"log level", func(c *Config) { c.Logging.Level = "loud" }},
		{"quality", func(c *Config) { c.Output.Quality = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			if err := c.Validate(); err == nil {
				t.Errorf("Expected validation error")
			}
		})
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "config.json")

	c := Default()
	c.Engine.PageOrigin = "https://reader.example.com"
	c.Analyzer.CacheSize = 25
	if err := c.SaveToFile(path); err != nil {
		t.Fatalf("SaveToFile failed: %v", err)
	}

	loaded, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if loaded.Engine.PageOrigin != "https://reader.example.com" || loaded.Analyzer.CacheSize != 25 {
		t.Errorf("Round trip lost values: %+v", loaded.Engine)
	}
	if loaded.Device.Adjustment[device.Mobile] != 2.0 {
		t.Errorf("Expected mobile adjustment 2.0, got %f", loaded.Device.Adjustment[device.Mobile])
	}
}

func TestLoadFromFilePartial(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"contrast":{"cell_size":25}}`), 0644); err != nil {
		t.Fatal(err)
	}

	c, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if c.Contrast.CellSize != 25 {
		t.Errorf("Expected cell size 25, got %d", c.Contrast.CellSize)
	}
	if c.Analyzer.CacheSize != 10 {
		t.Errorf("Expected default cache size 10, got %d", c.Analyzer.CacheSize)
	}
}

func TestLoadFromFileErrors(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("Expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.json")
	os.WriteFile(path, []byte("{"), 0644)
	if _, err := LoadFromFile(path); err == nil {
		t.Error("Expected error for malformed file")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("VISION_HTTP_ADDR", ":9999")
	t.Setenv("VISION_LOG_LEVEL", "debug")
	t.Setenv("VISION_STORE_PATH", "/tmp/cal.json")
	t.Setenv("VISION_PAGE_ORIGIN", "https://a.example.com")
	t.Setenv("VISION_CORS_HOSTS", "cdn.example.com, img.example.com,")
	t.Setenv("VISION_CACHE_SIZE", "notanumber")

	c := Default()
	c.ApplyEnv()

	if c.Server.HTTPAddr != ":9999" || c.Logging.Level != "debug" || c.Server.StorePath != "/tmp/cal.json" {
		t.Errorf("Env overrides not applied: %+v %+v", c.Server, c.Logging)
	}
	if c.Engine.PageOrigin != "https://a.example.com" {
		t.Errorf("Expected page origin override, got %q", c.Engine.PageOrigin)
	}
	if len(c.Engine.CORSHosts) != 2 || c.Engine.CORSHosts[1] != "img.example.com" {
		t.Errorf("Unexpected CORS hosts %v", c.Engine.CORSHosts)
	}
	if c.Analyzer.CacheSize != 10 {
		t.Errorf("Invalid int should keep the default, got %d", c.Analyzer.CacheSize)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.Server.HTTPAddr != ":8080" {
		t.Errorf("Expected default address, got %s", c.Server.HTTPAddr)
	}
}

func TestConverters(t *testing.T) {
	c := Default()
	c.Contrast.CellSize = 40
	c.Engine.FrameIntervalMs = 33
	c.Engine.CORSHosts = []string{"cdn.example.com"}

	ac := c.AnalyzerConfig()
	if ac.CellSize != 40 || ac.Detection.MinRegionArea != 100 {
		t.Errorf("Unexpected analyzer config %+v", ac)
	}

	ec := c.EngineConfig()
	if ec.FrameInterval != 33*time.Millisecond {
		t.Errorf("Expected 33ms frame interval, got %v", ec.FrameInterval)
	}
	if !ec.Settings.IsEnabled || ec.Settings.ContrastBoost != 10 {
		t.Errorf("Unexpected settings %+v", ec.Settings)
	}
	if len(ec.CORSHosts) != 1 {
		t.Errorf("Expected CORS hosts to carry over, got %v", ec.CORSHosts)
	}
}
