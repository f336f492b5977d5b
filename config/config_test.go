package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "docseal.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Render.DPI != 300 || cfg.Render.Scale() != 300.0/72 {
		t.Fatalf("unexpected render defaults %+v", cfg.Render)
	}
	if cfg.OCR.Engine != "tesseract" {
		t.Fatalf("unexpected ocr engine %q", cfg.OCR.Engine)
	}
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
render:
  dpi: 150
ocr:
  engine: none
  languages: [eng, deu]
pipeline:
  allow_image_regions: true
limits:
  max_decode_time: 5s
logging:
  level: debug
  format: json
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Render.DPI != 150 {
		t.Fatalf("unexpected dpi %v", cfg.Render.DPI)
	}
	if cfg.Render.MaxPixels != 5000*7000 {
		t.Fatalf("default lost for max_pixels: %d", cfg.Render.MaxPixels)
	}
	if cfg.OCR.Engine != "none" || len(cfg.OCR.Languages) != 2 {
		t.Fatalf("unexpected ocr config %+v", cfg.OCR)
	}
	if !cfg.Pipeline.AllowImageRegions {
		t.Fatalf("expected image regions enabled")
	}
	if cfg.Limits.MaxDecodeTime != 5*time.Second {
		t.Fatalf("unexpected decode time %v", cfg.Limits.MaxDecodeTime)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Fatalf("unexpected logging config %+v", cfg.Logging)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DOCSEAL_RENDER_DPI", "72")
	t.Setenv("DOCSEAL_OCR_LANGUAGES", "fra, ita")
	t.Setenv("DOCSEAL_PIPELINE_ALLOW_IMAGE_REGIONS", "true")
	t.Setenv("DOCSEAL_LOG_LEVEL", "error")
	t.Setenv("DOCSEAL_OCR_PSM", "6")
	t.Setenv("DOCSEAL_OCR_WHITELIST", "0123456789")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Render.Scale() != 1 {
		t.Fatalf("unexpected scale %v", cfg.Render.Scale())
	}
	if strings.Join(cfg.OCR.Languages, "+") != "fra+ita" {
		t.Fatalf("unexpected languages %v", cfg.OCR.Languages)
	}
	if !cfg.Pipeline.AllowImageRegions || cfg.Logging.Level != "error" {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.OCR.PSM != 6 || cfg.OCR.Whitelist != "0123456789" {
		t.Fatalf("unexpected ocr overrides %+v", cfg.OCR)
	}
}

func TestLoad_EnvOverrideInvalidPSM(t *testing.T) {
	t.Setenv("DOCSEAL_OCR_PSM", "six")
	if _, err := Load(""); err == nil || !strings.Contains(err.Error(), "DOCSEAL_OCR_PSM") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoad_BadEnv(t *testing.T) {
	t.Setenv("DOCSEAL_RENDER_MAX_PIXELS", "lots")
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error for non-numeric override")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/docseal.yaml"); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	if _, err := Load(writeConfig(t, "render: [dpi: 1")); err == nil {
		t.Fatalf("expected error for invalid YAML")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"dpi", func(c *Config) { c.Render.DPI = 0 }, "render.dpi"},
		{"pixels", func(c *Config) { c.Render.MaxPixels = -1 }, "render.max_pixels"},
		{"engine", func(c *Config) { c.OCR.Engine = "cloud" }, "ocr.engine"},
		{"psm", func(c *Config) { c.OCR.PSM = 14 }, "ocr.psm"},
		{"limits", func(c *Config) { c.Limits.MaxFileSize = -5 }, "limits"},
		{"level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"output", func(c *Config) { c.Logging.Output = "file" }, "logging.output"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}
	if err := Default().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}
