// Package config loads docseal settings from YAML with DOCSEAL_*
// environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Render   RenderConfig   `yaml:"render"`
	OCR      OCRConfig      `yaml:"ocr"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Limits   LimitsConfig   `yaml:"limits"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// RenderConfig controls the canonical page.
type RenderConfig struct {
	// DPI of the canonical page for PDF input. 300 matches the browser
	// implementation; other values produce different image leaves.
	DPI       float64 `yaml:"dpi"`
	MaxPixels int64   `yaml:"max_pixels"`
}

// OCRConfig selects the recognition engine for raster input.
type OCRConfig struct {
	// Engine is "tesseract" or "none".
	Engine    string   `yaml:"engine"`
	Languages []string `yaml:"languages"`
	// PSM is the Tesseract page segmentation mode, 1..13. Zero keeps the
	// engine default. The mode changes how text is linearized, so bundles
	// are only comparable under the same PSM.
	PSM int `yaml:"psm"`
	// Whitelist restricts recognition to these characters when set.
	Whitelist string `yaml:"whitelist"`
}

// PipelineConfig holds orchestration switches.
type PipelineConfig struct {
	AllowImageRegions bool `yaml:"allow_image_regions"`
}

// LimitsConfig bounds resource use per document.
type LimitsConfig struct {
	MaxFileSize         int64         `yaml:"max_file_size"`
	MaxDecompressedSize int64         `yaml:"max_decompressed_size"`
	MaxDecodeTime       time.Duration `yaml:"max_decode_time"`
}

// LoggingConfig contains log output settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Scale is device pixels per PDF point.
func (r RenderConfig) Scale() float64 { return r.DPI / 72 }

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Render: RenderConfig{
			DPI:       300,
			MaxPixels: 5000 * 7000,
		},
		OCR: OCRConfig{
			Engine:    "tesseract",
			Languages: []string{"eng"},
		},
		Limits: LimitsConfig{
			MaxFileSize:         64 << 20,
			MaxDecompressedSize: 256 << 20,
			MaxDecodeTime:       30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("environment overrides: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	var errs []string
	parseFloat := func(key string, dst *float64) {
		if v := os.Getenv(key); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*dst = f
		}
	}
	parseInt := func(key string, dst *int64) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*dst = n
		}
	}

	parseFloat("DOCSEAL_RENDER_DPI", &cfg.Render.DPI)
	parseInt("DOCSEAL_RENDER_MAX_PIXELS", &cfg.Render.MaxPixels)

	if v := os.Getenv("DOCSEAL_OCR_ENGINE"); v != "" {
		cfg.OCR.Engine = v
	}
	if v := os.Getenv("DOCSEAL_OCR_LANGUAGES"); v != "" {
		cfg.OCR.Languages = splitList(v)
	}
	if v := os.Getenv("DOCSEAL_OCR_PSM"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("DOCSEAL_OCR_PSM: %v", err))
		} else {
			cfg.OCR.PSM = n
		}
	}
	if v := os.Getenv("DOCSEAL_OCR_WHITELIST"); v != "" {
		cfg.OCR.Whitelist = v
	}

	if v := os.Getenv("DOCSEAL_PIPELINE_ALLOW_IMAGE_REGIONS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("DOCSEAL_PIPELINE_ALLOW_IMAGE_REGIONS: %v", err))
		} else {
			cfg.Pipeline.AllowImageRegions = b
		}
	}

	parseInt("DOCSEAL_LIMITS_MAX_FILE_SIZE", &cfg.Limits.MaxFileSize)
	parseInt("DOCSEAL_LIMITS_MAX_DECOMPRESSED_SIZE", &cfg.Limits.MaxDecompressedSize)
	if v := os.Getenv("DOCSEAL_LIMITS_MAX_DECODE_TIME"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("DOCSEAL_LIMITS_MAX_DECODE_TIME: %v", err))
		} else {
			cfg.Limits.MaxDecodeTime = d
		}
	}

	if v := os.Getenv("DOCSEAL_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("DOCSEAL_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("DOCSEAL_LOG_OUTPUT"); v != "" {
		cfg.Logging.Output = v
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	var errs []string

	if c.Render.DPI <= 0 || c.Render.DPI > 1200 {
		errs = append(errs, "render.dpi must be in (0, 1200]")
	}
	if c.Render.MaxPixels <= 0 {
		errs = append(errs, "render.max_pixels must be positive")
	}

	switch strings.ToLower(c.OCR.Engine) {
	case "tesseract", "none":
	default:
		errs = append(errs, fmt.Sprintf("ocr.engine %q must be tesseract or none", c.OCR.Engine))
	}
	if c.OCR.PSM < 0 || c.OCR.PSM > 13 {
		errs = append(errs, fmt.Sprintf("ocr.psm %d must be in [0, 13]", c.OCR.PSM))
	}

	if c.Limits.MaxFileSize < 0 || c.Limits.MaxDecompressedSize < 0 || c.Limits.MaxDecodeTime < 0 {
		errs = append(errs, "limits must not be negative")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Sprintf("logging.level %q is not a level", c.Logging.Level))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		errs = append(errs, "logging.format must be json or text")
	}
	switch strings.ToLower(c.Logging.Output) {
	case "stdout", "stderr":
	default:
		errs = append(errs, "logging.output must be stdout or stderr")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}
