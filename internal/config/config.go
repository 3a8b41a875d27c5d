// Package config loads the server configuration from YAML and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-yaml"

	"handout-maker/backend/internal/layout"
)

var (
	ErrConfigNotFound = errors.New("config file not found")
	ErrConfigParse    = errors.New("failed to parse config")
	ErrInvalidConfig  = errors.New("invalid config")
)

// Compression engines.
const (
	EngineGhostscript = "ghostscript"
	EnginePDFCPU      = "pdfcpu"
	EngineNone        = "none"
)

// Config holds all server settings.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Layout   LayoutConfig   `yaml:"layout"`
	Convert  ConvertConfig  `yaml:"convert"`
	Compress CompressConfig `yaml:"compress"`
}

// ServerConfig defines the HTTP listener.
type ServerConfig struct {
	Addr           string   `yaml:"addr"`
	MaxUploadBytes int64    `yaml:"maxUploadBytes"`
	AllowOrigin    string   `yaml:"allowOrigin"` // CORS Access-Control-Allow-Origin
	ShutdownGrace  Duration `yaml:"shutdownGrace"`
}

// StorageConfig defines where artifacts live. Both are created on demand.
type StorageConfig struct {
	UploadDir string `yaml:"uploadDir"`
	OutputDir string `yaml:"outputDir"`
}

// LayoutConfig defines the output canvas in points.
type LayoutConfig struct {
	PageWidth  float64 `yaml:"pageWidth"`
	PageHeight float64 `yaml:"pageHeight"`
	Padding    float64 `yaml:"padding"`
}

// ConvertConfig defines the external document converter.
type ConvertConfig struct {
	Binary        string   `yaml:"binary"`
	Timeout       Duration `yaml:"timeout"`
	MaxConcurrent int      `yaml:"maxConcurrent"`
}

// CompressConfig defines the compression stage.
type CompressConfig struct {
	Engine  string   `yaml:"engine"` // "ghostscript", "pdfcpu", "none"
	Binary  string   `yaml:"binary"`
	Preset  string   `yaml:"preset"` // screen, ebook, printer, prepress
	Timeout Duration `yaml:"timeout"`
}

// Duration accepts Go duration strings ("90s", "2m") in YAML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:           ":8085",
			MaxUploadBytes: 100 << 20,
			AllowOrigin:    "*",
			ShutdownGrace:  Duration{10 * time.Second},
		},
		Storage: StorageConfig{
			UploadDir: "uploads",
			OutputDir: "converted",
		},
		Layout: LayoutConfig{
			PageWidth:  layout.DefaultWidth,
			PageHeight: layout.DefaultHeight,
			Padding:    layout.DefaultPadding,
		},
		Convert: ConvertConfig{
			Binary:        "soffice",
			Timeout:       Duration{2 * time.Minute},
			MaxConcurrent: 2,
		},
		Compress: CompressConfig{
			Engine:  EngineGhostscript,
			Binary:  "gs",
			Preset:  "ebook",
			Timeout: Duration{time.Minute},
		},
	}
}

// Load reads path on top of the defaults. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path) // #nosec G304 -- operator supplied config path
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.UnmarshalWithOptions(data, cfg, yaml.Strict()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigParse, err)
	}
	return cfg, nil
}

// Canvas returns the layout canvas.
func (c *Config) Canvas() layout.Canvas {
	return layout.Canvas{
		Width:   c.Layout.PageWidth,
		Height:  c.Layout.PageHeight,
		Padding: c.Layout.Padding,
	}
}

var validPresets = map[string]bool{"screen": true, "ebook": true, "printer": true, "prepress": true, "default": true}

// Validate checks the settings the server cannot run without.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is empty"))
	}
	if c.Server.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("server.maxUploadBytes must be positive"))
	}
	if c.Storage.UploadDir == "" || c.Storage.OutputDir == "" {
		errs = append(errs, errors.New("storage.uploadDir and storage.outputDir are required"))
	}
	if c.Layout.PageWidth <= 0 || c.Layout.PageHeight <= 0 || c.Layout.Padding < 0 {
		errs = append(errs, errors.New("layout page size must be positive and padding non-negative"))
	} else {
		for _, n := range layout.Supported() {
			if _, err := c.Canvas().CellSize(layout.Resolve(n)); err != nil {
				errs = append(errs, fmt.Errorf("layout: %w", err))
				break
			}
		}
	}
	if c.Convert.Binary == "" {
		errs = append(errs, errors.New("convert.binary is empty"))
	}
	if c.Convert.MaxConcurrent < 1 {
		errs = append(errs, errors.New("convert.maxConcurrent must be at least 1"))
	}
	if c.Convert.Timeout.Duration <= 0 {
		errs = append(errs, errors.New("convert.timeout must be positive"))
	}
	switch c.Compress.Engine {
	case EngineGhostscript:
		if c.Compress.Binary == "" {
			errs = append(errs, errors.New("compress.binary is empty"))
		}
		if !validPresets[c.Compress.Preset] {
			errs = append(errs, fmt.Errorf("compress.preset %q is not one of screen, ebook, printer, prepress, default", c.Compress.Preset))
		}
		if c.Compress.Timeout.Duration <= 0 {
			errs = append(errs, errors.New("compress.timeout must be positive"))
		}
	case EnginePDFCPU, EngineNone:
	default:
		errs = append(errs, fmt.Errorf("compress.engine %q is not one of ghostscript, pdfcpu, none", c.Compress.Engine))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
