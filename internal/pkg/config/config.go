// Package config loads the docsnap configuration from YAML, over embedded defaults.
package config

import (
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"go.yaml.in/yaml/v3"
)

//go:embed default_config.yaml
var efs embed.FS

// ErrInvalidConfig is returned when a configuration fails validation.
var ErrInvalidConfig = errors.New("invalid config")

// Config holds the configuration for docsnap.
type Config struct {
	Name     string
	Render   Rendering
	Capture  Capture
	Document Document
	Logging  Logging
	Metrics  Metrics
	Outputs  Output `mapstructure:"-"`
}

// EncodeYAML serializes a [Config] to YAML into the provided writer.
//
// Runtime-only fields (Outputs) are excluded from the output.
func (c *Config) EncodeYAML(w io.Writer) error {
	var raw map[string]any

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Squash: true,
		Deep:   true,
		Result: &raw,
	})
	if err != nil {
		return fmt.Errorf("creating mapstructure decoder: %w", err)
	}

	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("decoding config to map: %w", err)
	}

	return yaml.NewEncoder(w).Encode(raw)
}

// Rendering configures the headless Chrome tab that displays the document.
type Rendering struct {
	Width       int64
	Height      int64
	Scale       float64
	Mobile      bool
	NoSandbox   bool
	ExecPath    string
	LoadTimeout string
}

// LoadTimeoutDuration parses the LoadTimeout field as a [time.Duration].
func (r Rendering) LoadTimeoutDuration() time.Duration {
	return parseDuration(r.LoadTimeout)
}

// Capture configures the page capture session.
type Capture struct {
	InitialSettle      string
	ScrollSettle       string
	StepTimeout        string
	UseSettledSignal   bool
	MaxSnapshotRetries int
	BlankThreshold     float64
}

// InitialSettleDuration parses the InitialSettle field as a [time.Duration].
func (c Capture) InitialSettleDuration() time.Duration {
	return parseDuration(c.InitialSettle)
}

// ScrollSettleDuration parses the ScrollSettle field as a [time.Duration].
func (c Capture) ScrollSettleDuration() time.Duration {
	return parseDuration(c.ScrollSettle)
}

// StepTimeoutDuration parses the StepTimeout field as a [time.Duration].
func (c Capture) StepTimeoutDuration() time.Duration {
	return parseDuration(c.StepTimeout)
}

// Document configures which documents may be picked and how they are converted to HTML.
type Document struct {
	Kinds       []string
	Converter   string
	LibreOffice string
	Timeout     string
}

// TimeoutDuration parses the Timeout field as a [time.Duration].
func (d Document) TimeoutDuration() time.Duration {
	return parseDuration(d.Timeout)
}

// Logging configures the logger. When File is set, JSON logs are also written to a rotated file.
type Logging struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// SlogLevel parses the Level field, defaulting to info.
func (l Logging) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo
	}

	return level
}

// Metrics configures the export of prometheus metrics to a textfile.
type Metrics struct {
	File string
}

// Output holds the runtime output locations. It is not part of the configuration file.
type Output struct {
	PDFFile string
	HTMLDir string
	IsTemp  bool
}

var (
	knownKinds      = []string{"doc", "docx", "odt", "rtf"}
	knownConverters = []string{"auto", "libreoffice", "native"}
)

const maxSnapshotRetries = 5

func parseDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if d <= 0 || err != nil {
		return 0
	}

	return d
}

// Load a config from a YAML file, over the embedded defaults.
func Load(file string) (*Config, error) {
	cfg, err := loadDefaults()
	if err != nil {
		return nil, fmt.Errorf("loading default config: %w", err)
	}

	fsys := os.DirFS(filepath.Dir(file))
	pth := filepath.Join(".", filepath.Base(file))

	return load(fsys, pth, cfg)
}

// LoadDefaults loads the default configuration from the embedded default_config.yaml.
func LoadDefaults() (*Config, error) {
	return loadDefaults()
}

// loadDefaults loads the default configuration from embedded FS.
func loadDefaults() (*Config, error) {
	return load(efs, "default_config.yaml", &Config{})
}

func load(fsys fs.FS, file string, cfg *Config) (*Config, error) {
	content, err := fs.ReadFile(fsys, file)
	if err != nil {
		return nil, err
	}

	var raw any
	err = yaml.Unmarshal(content, &raw)
	if err != nil {
		return nil, err
	}

	// lists from the file replace the defaults rather than being merged into them
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		ZeroFields: true,
		Result:     cfg,
	})
	if err != nil {
		return nil, fmt.Errorf("creating mapstructure decoder: %w", err)
	}

	if err = dec.Decode(raw); err != nil {
		return nil, err
	}

	if err = cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the consistency of a [Config].
func (c *Config) Validate() error {
	if err := c.validateRender(); err != nil {
		return err
	}

	if err := c.validateCapture(); err != nil {
		return err
	}

	if err := c.validateDocument(); err != nil {
		return err
	}

	return c.validateLogging()
}

func (c *Config) validateRender() error {
	r := c.Render
	if r.Width <= 0 || r.Height <= 0 {
		return fmt.Errorf("%w: render viewport must have a positive size, got %dx%d", ErrInvalidConfig, r.Width, r.Height)
	}

	if r.Scale < 0 {
		return fmt.Errorf("%w: render scale must not be negative, got %v", ErrInvalidConfig, r.Scale)
	}

	return validateDuration("render.loadTimeout", r.LoadTimeout)
}

func (c *Config) validateCapture() error {
	cp := c.Capture
	for _, d := range []struct{ name, value string }{
		{"capture.initialSettle", cp.InitialSettle},
		{"capture.scrollSettle", cp.ScrollSettle},
		{"capture.stepTimeout", cp.StepTimeout},
	} {
		if err := validateDuration(d.name, d.value); err != nil {
			return err
		}
	}

	if cp.MaxSnapshotRetries < 0 || cp.MaxSnapshotRetries > maxSnapshotRetries {
		return fmt.Errorf("%w: capture.maxSnapshotRetries must be in [0, %d], got %d",
			ErrInvalidConfig, maxSnapshotRetries, cp.MaxSnapshotRetries,
		)
	}

	if cp.BlankThreshold <= 0 || cp.BlankThreshold > 1 {
		return fmt.Errorf("%w: capture.blankThreshold must be in (0, 1], got %v", ErrInvalidConfig, cp.BlankThreshold)
	}

	return nil
}

func (c *Config) validateDocument() error {
	d := c.Document
	if len(d.Kinds) == 0 {
		return fmt.Errorf("%w: document.kinds must not be empty", ErrInvalidConfig)
	}

	for i, kind := range d.Kinds {
		kind = strings.ToLower(strings.TrimPrefix(kind, "."))
		if !slices.Contains(knownKinds, kind) {
			return fmt.Errorf("%w: document.kinds[%d]=%q should be one of %v", ErrInvalidConfig, i, d.Kinds[i], knownKinds)
		}
		c.Document.Kinds[i] = kind
	}

	if d.Converter != "" && !slices.Contains(knownConverters, d.Converter) {
		return fmt.Errorf("%w: document.converter=%q should be one of %v", ErrInvalidConfig, d.Converter, knownConverters)
	}

	return validateDuration("document.timeout", d.Timeout)
}

func (c *Config) validateLogging() error {
	l := c.Logging
	if l.Level != "" {
		var level slog.Level
		if err := level.UnmarshalText([]byte(l.Level)); err != nil {
			return fmt.Errorf("%w: logging.level: %w", ErrInvalidConfig, err)
		}
	}

	if l.MaxSizeMB < 0 || l.MaxBackups < 0 || l.MaxAgeDays < 0 {
		return fmt.Errorf("%w: logging rotation settings must not be negative", ErrInvalidConfig)
	}

	return nil
}

func validateDuration(name, value string) error {
	if value == "" {
		return nil
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidConfig, name, err)
	}

	if d < 0 {
		return fmt.Errorf("%w: %s must not be negative, got %v", ErrInvalidConfig, name, d)
	}

	return nil
}
