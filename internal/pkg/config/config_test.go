package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-openapi/testify/v2/assert"
	"github.com/go-openapi/testify/v2/require"
)

func TestLoadDefault(t *testing.T) {
	cfg, err := loadDefaults()
	require.NoError(t, err)

	require.NoError(t, cfg.EncodeYAML(os.Stdout))
}

func TestLoadDefaultContent(t *testing.T) {
	cfg, err := LoadDefaults()
	require.NoError(t, err)

	assert.Equal(t, "docsnap", cfg.Name)

	t.Run("render defaults emulate a phone viewport", func(t *testing.T) {
		assert.Equal(t, int64(390), cfg.Render.Width)
		assert.Equal(t, int64(844), cfg.Render.Height)
		assert.InDelta(t, 1.0, cfg.Render.Scale, 1e-9)
		assert.Equal(t, 30*time.Second, cfg.Render.LoadTimeoutDuration())
	})

	t.Run("capture defaults", func(t *testing.T) {
		assert.Equal(t, time.Second, cfg.Capture.InitialSettleDuration())
		assert.Equal(t, 500*time.Millisecond, cfg.Capture.ScrollSettleDuration())
		assert.Equal(t, 30*time.Second, cfg.Capture.StepTimeoutDuration())
		assert.True(t, cfg.Capture.UseSettledSignal)
		assert.Equal(t, 1, cfg.Capture.MaxSnapshotRetries)
		assert.InDelta(t, 0.99, cfg.Capture.BlankThreshold, 1e-9)
	})

	t.Run("document defaults", func(t *testing.T) {
		assert.Equal(t, []string{"doc", "docx"}, cfg.Document.Kinds)
		assert.Equal(t, "auto", cfg.Document.Converter)
		assert.Equal(t, 3*time.Minute, cfg.Document.TimeoutDuration())
	})

	t.Run("logging defaults", func(t *testing.T) {
		assert.Equal(t, slog.LevelInfo, cfg.Logging.SlogLevel())
		assert.Empty(t, cfg.Logging.File)
		assert.Equal(t, 10, cfg.Logging.MaxSizeMB)
	})
}

func TestLoadFixture(t *testing.T) {
	cfg, err := Load(filepath.Join(fixturePath(), "docsnap.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "sample", cfg.Name)
	assert.Equal(t, int64(480), cfg.Render.Width)
	assert.Equal(t, int64(640), cfg.Render.Height)
	assert.Equal(t, 20*time.Second, cfg.Render.LoadTimeoutDuration())
	assert.Equal(t, 250*time.Millisecond, cfg.Capture.InitialSettleDuration())
	assert.Equal(t, 2, cfg.Capture.MaxSnapshotRetries)
	assert.Equal(t, []string{"docx"}, cfg.Document.Kinds)
	assert.Equal(t, "native", cfg.Document.Converter)
	assert.Equal(t, slog.LevelDebug, cfg.Logging.SlogLevel())

	// values absent from the file keep their defaults
	assert.Equal(t, 30*time.Second, cfg.Capture.StepTimeoutDuration())
	assert.InDelta(t, 0.99, cfg.Capture.BlankThreshold, 1e-9)
}

func TestLoadFromFile(t *testing.T) {
	cfg := mustLoadTestConfig(t, minimalValidYAML())

	assert.Equal(t, "minimal", cfg.Name)
	assert.Equal(t, int64(100), cfg.Render.Width)
	assert.Zero(t, cfg.Capture.InitialSettleDuration())
}

func TestLoadAbsolutePath(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(file, []byte("capture:\n  blankThreshold: 0.95\n"), 0o600))

	cfg, err := Load(file)
	require.NoError(t, err)
	assert.InDelta(t, 0.95, cfg.Capture.BlankThreshold, 1e-9)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	require.Error(t, err)
}

func TestLoadInvalidYAML(t *testing.T) {
	_, err := loadFromString(t, "render: [unclosed")
	require.Error(t, err)
}

func TestValidation(t *testing.T) {
	for _, tc := range []struct {
		name    string
		yaml    string
		message string
	}{
		{
			name:    "zero viewport",
			yaml:    "render:\n  width: 0\n",
			message: "positive size",
		},
		{
			name:    "negative scale",
			yaml:    "render:\n  scale: -1\n",
			message: "scale",
		},
		{
			name:    "invalid load timeout",
			yaml:    "render:\n  loadTimeout: soon\n",
			message: "render.loadTimeout",
		},
		{
			name:    "invalid settle delay",
			yaml:    "capture:\n  scrollSettle: 5 apples\n",
			message: "capture.scrollSettle",
		},
		{
			name:    "negative step timeout",
			yaml:    "capture:\n  stepTimeout: -1s\n",
			message: "capture.stepTimeout",
		},
		{
			name:    "too many retries",
			yaml:    "capture:\n  maxSnapshotRetries: 6\n",
			message: "maxSnapshotRetries",
		},
		{
			name:    "blank threshold out of range",
			yaml:    "capture:\n  blankThreshold: 1.5\n",
			message: "blankThreshold",
		},
		{
			name:    "unknown document kind",
			yaml:    "document:\n  kinds: [pdf]\n",
			message: "document.kinds[0]",
		},
		{
			name:    "empty document kinds",
			yaml:    "document:\n  kinds: []\n",
			message: "must not be empty",
		},
		{
			name:    "unknown converter",
			yaml:    "document:\n  converter: pandoc\n",
			message: "document.converter",
		},
		{
			name:    "unknown log level",
			yaml:    "logging:\n  level: chatty\n",
			message: "logging.level",
		},
		{
			name:    "negative rotation",
			yaml:    "logging:\n  maxBackups: -1\n",
			message: "rotation",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := loadOverDefaults(t, tc.yaml)
			require.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tc.message)
		})
	}
}

func TestDocumentKindsNormalized(t *testing.T) {
	cfg, err := loadOverDefaults(t, "document:\n  kinds: [.DOCX]\n")
	require.NoError(t, err)

	assert.Equal(t, []string{"docx"}, cfg.Document.Kinds)
}

func TestSlogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelInfo, Logging{}.SlogLevel())
	assert.Equal(t, slog.LevelWarn, Logging{Level: "warn"}.SlogLevel())
	assert.Equal(t, slog.LevelDebug, Logging{Level: "DEBUG"}.SlogLevel())
	assert.Equal(t, slog.LevelInfo, Logging{Level: "chatty"}.SlogLevel())
}

func TestParseDuration(t *testing.T) {
	assert.Zero(t, parseDuration(""))
	assert.Zero(t, parseDuration("bogus"))
	assert.Zero(t, parseDuration("-1s"))
	assert.Equal(t, 1500*time.Millisecond, parseDuration("1.5s"))
}

func TestEncodeYAML(t *testing.T) {
	cfg, err := LoadDefaults()
	require.NoError(t, err)

	cfg.Name = "round trip"
	cfg.Capture.MaxSnapshotRetries = 3
	cfg.Outputs.PDFFile = "/tmp/excluded.pdf"

	var buf bytes.Buffer
	require.NoError(t, cfg.EncodeYAML(&buf))
	assert.NotContains(t, buf.String(), "excluded.pdf")

	// the YAML can be loaded back as a valid config
	dir := t.TempDir()
	file := filepath.Join(dir, "dumped.yaml")
	require.NoError(t, os.WriteFile(file, buf.Bytes(), 0o600))

	loaded, err := Load(file)
	require.NoError(t, err)

	assert.Equal(t, "round trip", loaded.Name)
	assert.Equal(t, 3, loaded.Capture.MaxSnapshotRetries)
	assert.Equal(t, cfg.Render, loaded.Render)
	assert.Equal(t, cfg.Document, loaded.Document)
	assert.Empty(t, loaded.Outputs.PDFFile)
}

func fixturePath() string {
	return filepath.Join("..", "..", "..", "examples", "sample")
}

func loadFromString(t *testing.T, yamlContent string) (*Config, error) {
	t.Helper()
	dir := t.TempDir()
	file := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(file, []byte(yamlContent), 0o600))

	return load(os.DirFS(dir), "config.yaml", &Config{})
}

func loadOverDefaults(t *testing.T, yamlContent string) (*Config, error) {
	t.Helper()
	dir := t.TempDir()
	file := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(file, []byte(yamlContent), 0o600))

	return Load(file)
}

func mustLoadTestConfig(t *testing.T, yamlContent string) *Config {
	t.Helper()
	cfg, err := loadFromString(t, yamlContent)
	require.NoError(t, err)

	return cfg
}

func minimalValidYAML() string {
	return `
name: minimal
render:
  width: 100
  height: 200
capture:
  blankThreshold: 0.5
document:
  kinds: [docx]
`
}
