// Package cmd owns the implementation details of the CLI command.
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/fredbi/docsnap/internal/pkg/assembler"
	"github.com/fredbi/docsnap/internal/pkg/blank"
	"github.com/fredbi/docsnap/internal/pkg/browser"
	"github.com/fredbi/docsnap/internal/pkg/capture"
	"github.com/fredbi/docsnap/internal/pkg/config"
	"github.com/fredbi/docsnap/internal/pkg/document"
	"github.com/fredbi/docsnap/internal/pkg/fingerprint"
	"github.com/fredbi/docsnap/internal/pkg/metrics"
	"github.com/fredbi/docsnap/internal/pkg/model"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ErrUsage is returned when the command line arguments are invalid.
var ErrUsage = errors.New("usage")

// Command holds command line flags and executes the docsnap command.
//
// It knows how to load a configuration file in a [config.Config] and manage CLI flag configuration overrides.
//
// The main purpose of this package is to deal with io's and to wire the pipeline stages:
// picking the document, rendering it as HTML, capturing its pages in a browser and writing the PDF.
type Command struct {
	Config      string
	OutputFile  string
	Report      bool
	LogFile     string
	MetricsFile string
	NoSandbox   bool
	DumpConfig  bool
	L           *slog.Logger

	root *slog.Logger
}

// Preview summarizes a conversion, as printed by the -report flag.
type Preview struct {
	Document document.Document `json:"document"`
	Session  string            `json:"session"`
	Stats    capture.Stats     `json:"stats"`
	PDF      assembler.Summary `json:"pdf"`
	Duration string            `json:"duration"`
}

// NewCommand builds a CLI command with registered flags and an injected logger.
func NewCommand() *Command {
	// inject a structured logger
	cli := &Command{
		L: slog.Default().With(slog.String("module", "main")),
	}

	cli.registerFlags()

	return cli
}

// Parse command line flags and arguments.
func (*Command) Parse() error {
	return flag.CommandLine.Parse(os.Args[1:])
}

// Fatalf logs an error message then exits. The output is spewed on both stderr and the structured logger output.
func (c *Command) Fatalf(err error) {
	c.L.Error(err.Error())
	log.Fatalf("%v", err)
}

// Execute the CLI with flags and extra arguments.
//
// If no argument is passed, command line arguments (i.e. [os.Args]) are used.
// Exactly one document is expected, unless -dump-config is set.
func (c *Command) Execute(args ...string) error {
	if args == nil { // passing explicit args allows for testing Execute without altering [os.Args]
		args = c.args()
	}

	cfg, cleanup, err := c.prepareConfig()
	if err != nil {
		return err
	}
	defer cleanup()

	if c.DumpConfig {
		return cfg.EncodeYAML(os.Stdout)
	}

	if len(args) != 1 {
		return fmt.Errorf("%w: expected exactly one document to convert, got %d arguments", ErrUsage, len(args))
	}

	if c.Report && cfg.Outputs.PDFFile == "-" {
		return fmt.Errorf("%w: the preview report cannot be printed when the PDF is sent to standard output", ErrUsage)
	}

	closeLog := c.setLogger(cfg)
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	preview, err := c.convert(ctx, cfg, args[0])
	if err != nil {
		return err
	}

	if !c.Report {
		return nil
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", " ")

	return enc.Encode(preview)
}

func (*Command) args() []string {
	return flag.CommandLine.Args()
}

func (c *Command) registerFlags() {
	defaults := Command{
		Config:     "",
		OutputFile: assembler.DefaultPath(),
		Report:     false,
	}

	flag.StringVar(&c.Config, "config", defaults.Config, "config file (defaults to the embedded configuration)")
	flag.StringVar(&c.Config, "c", defaults.Config, "config file (shorthand)")
	flag.StringVar(&c.OutputFile, "output", defaults.OutputFile, "PDF file output or - for standard output")
	flag.StringVar(&c.OutputFile, "o", defaults.OutputFile, "PDF file output or - for standard output (shorthand)")
	flag.BoolVar(&c.Report, "r", defaults.Report, "print a JSON preview of the converted document (shorthand)")
	flag.BoolVar(&c.Report, "report", defaults.Report, "print a JSON preview of the converted document")
	flag.StringVar(&c.LogFile, "log-file", defaults.LogFile, "also write JSON logs to this rotated file")
	flag.StringVar(&c.MetricsFile, "metrics-file", defaults.MetricsFile, "write prometheus metrics to this textfile")
	flag.BoolVar(&c.NoSandbox, "no-sandbox", defaults.NoSandbox, "disable the Chrome sandbox (e.g. when running as root)")
	flag.BoolVar(&c.DumpConfig, "dump-config", defaults.DumpConfig, "print the effective configuration as YAML and exit")
}

func (c *Command) prepareConfig() (cfg *config.Config, cleanup func(), err error) {
	if c.Config == "" {
		cfg, err = config.LoadDefaults()
	} else {
		cfg, err = config.Load(c.Config)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	if err = c.setConfig(cfg); err != nil {
		return nil, nil, fmt.Errorf("preparing config: %w", err)
	}

	if cfg.Outputs.IsTemp {
		cleanup = func() {
			_ = os.RemoveAll(cfg.Outputs.HTMLDir)
		}

		return cfg, cleanup, nil
	}

	return cfg, func() {}, nil
}

// apply CLI flags overrides to YAML config.
func (c *Command) setConfig(cfg *config.Config) error {
	if c.LogFile != "" {
		cfg.Logging.File = c.LogFile
	}

	if c.MetricsFile != "" {
		cfg.Metrics.File = c.MetricsFile
	}

	if c.NoSandbox {
		cfg.Render.NoSandbox = true
	}

	cfg.Outputs.PDFFile = c.OutputFile
	if cfg.Outputs.PDFFile == "" {
		cfg.Outputs.PDFFile = assembler.DefaultPath()
	}

	if c.DumpConfig {
		return nil
	}

	// the HTML rendering of the document is an intermediate output
	dir, err := os.MkdirTemp("", "docsnap.*")
	if err != nil {
		return err
	}
	cfg.Outputs.HTMLDir = dir
	cfg.Outputs.IsTemp = true

	return nil
}

// setLogger configures log levels and the optional rotated log file.
func (c *Command) setLogger(cfg *config.Config) (closer func()) {
	if cfg.Logging.File == "" {
		slog.SetLogLoggerLevel(cfg.Logging.SlogLevel())

		return func() {}
	}

	rotated := &lumberjack.Logger{
		Filename:   cfg.Logging.File,
		MaxSize:    cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	}

	c.root = slog.New(slog.NewJSONHandler(rotated, &slog.HandlerOptions{Level: cfg.Logging.SlogLevel()}))
	c.L = c.logger("main")

	return func() {
		_ = rotated.Close()
	}
}

func (c *Command) logger(module string) *slog.Logger {
	root := c.root
	if root == nil {
		root = slog.Default()
	}

	return root.With(slog.String("module", module))
}

// convert runs the pipeline over one document.
func (c *Command) convert(ctx context.Context, cfg *config.Config, input string) (*Preview, error) {
	started := time.Now()
	recorder := metrics.New()
	defer c.writeMetrics(cfg, recorder)

	// 1. pick the document
	doc, err := document.NewPicker(documentKinds(cfg)...).Pick(input)
	if err != nil {
		return nil, err
	}
	c.L.Info("document picked", slog.String("document", doc.Path), slog.String("mime", doc.MIME))

	// 2. render the document as HTML
	renderer := document.NewRenderer(
		document.WithConverter(document.Converter(cfg.Document.Converter)),
		document.WithLibreOffice(cfg.Document.LibreOffice),
		document.WithTimeout(cfg.Document.TimeoutDuration()),
		document.WithLogger(c.logger("document")),
	)

	page, err := renderer.Render(ctx, doc, cfg.Outputs.HTMLDir)
	if err != nil {
		return nil, fmt.Errorf("rendering %q: %w", doc.Path, err)
	}

	// 3. load the HTML page in a browser tab
	target, err := browser.FileURL(page)
	if err != nil {
		return nil, err
	}

	surface, err := browser.Open(ctx, target, browserOptions(cfg, c.logger("browser"))...)
	if err != nil {
		return nil, fmt.Errorf("loading %q: %w", doc.Path, err)
	}
	defer surface.Close()

	// 4. capture the unique, non-blank pages
	progress := newProgress(c.L)
	driver := capture.New(surface, captureOptions(cfg, progress, c.logger("capture"))...)

	captureStarted := time.Now()
	pages, err := driver.Run(ctx)
	recorder.ObserveSession(driver.Stats(), err, time.Since(captureStarted))
	runtime.KeepAlive(progress) // the driver only holds a weak reference to the observer
	if err != nil {
		return nil, fmt.Errorf("capturing %q: %w", doc.Path, err)
	}

	// 5. assemble the PDF document
	summary, err := c.assemble(cfg, pages)
	recorder.ObserveAssembly(len(pages), err)
	if err != nil {
		return nil, err
	}

	preview := &Preview{
		Document: doc,
		Session:  driver.SessionID(),
		Stats:    driver.Stats(),
		PDF:      summary,
		Duration: time.Since(started).String(),
	}

	c.L.Info("document converted",
		slog.String("document", doc.Path),
		slog.String("pdf", cfg.Outputs.PDFFile),
		slog.Int("pages", len(pages)),
		slog.Duration("duration", time.Since(started)),
	)

	return preview, nil
}

func (c *Command) assemble(cfg *config.Config, pages []model.Page) (assembler.Summary, error) {
	asm := assembler.New(assembler.WithLogger(c.logger("assembler")))

	if cfg.Outputs.PDFFile == "-" {
		if err := asm.Write(os.Stdout, pages); err != nil {
			return assembler.Summary{}, err
		}

		return assembler.Summary{Path: "-", PageCount: len(pages)}, nil
	}

	if err := asm.WriteFile(cfg.Outputs.PDFFile, pages); err != nil {
		return assembler.Summary{}, err
	}

	return assembler.Inspect(cfg.Outputs.PDFFile)
}

func (c *Command) writeMetrics(cfg *config.Config, recorder *metrics.Recorder) {
	if cfg.Metrics.File == "" {
		return
	}

	if err := recorder.WriteTextfile(cfg.Metrics.File); err != nil {
		c.L.Warn("could not write metrics", slog.String("file", cfg.Metrics.File), slog.String("error", err.Error()))
	}
}

func documentKinds(cfg *config.Config) []document.Kind {
	kinds := make([]document.Kind, 0, len(cfg.Document.Kinds))
	for _, kind := range cfg.Document.Kinds {
		kinds = append(kinds, document.Kind(kind))
	}

	return kinds
}

func browserOptions(cfg *config.Config, l *slog.Logger) []browser.Option {
	r := cfg.Render

	return []browser.Option{
		browser.WithWidth(r.Width),
		browser.WithHeight(r.Height),
		browser.WithScale(r.Scale),
		browser.WithMobile(r.Mobile),
		browser.WithNoSandbox(r.NoSandbox),
		browser.WithExecPath(r.ExecPath),
		browser.WithLoadTimeout(r.LoadTimeoutDuration()),
		browser.WithLogger(l),
	}
}

func captureOptions(cfg *config.Config, progress *progress, l *slog.Logger) []capture.Option {
	cp := cfg.Capture

	return []capture.Option{
		capture.WithObserver(capture.Weak(progress)),
		capture.WithBlankDetector(blank.New(blank.WithThreshold(cp.BlankThreshold))),
		capture.WithFingerprinter(fingerprint.New()),
		capture.WithSettleDelays(cp.InitialSettleDuration(), cp.ScrollSettleDuration()),
		capture.WithSettledSignal(cp.UseSettledSignal),
		capture.WithStepTimeout(cp.StepTimeoutDuration()),
		capture.WithSnapshotRetries(cp.MaxSnapshotRetries),
		capture.WithLogger(l),
	}
}
