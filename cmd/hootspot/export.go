package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	appconfig "github.com/entrhq/hootspot/pkg/config"
	"github.com/entrhq/hootspot/pkg/document"
	"github.com/entrhq/hootspot/pkg/executor/cli"
	"github.com/entrhq/hootspot/pkg/logging"
	"github.com/entrhq/hootspot/pkg/renderer"
	"github.com/entrhq/hootspot/pkg/report"
	"github.com/entrhq/hootspot/pkg/requester"
	"github.com/entrhq/hootspot/pkg/transport"
	"github.com/entrhq/hootspot/pkg/types"
)

// exportFlags holds the export command line.
type exportFlags struct {
	ConfigFile  string
	JobFile     string
	Payload     string
	Name        string
	Formats     string
	Engine      string
	Paper       string
	Timeout     time.Duration
	OutputDir   string
	RendererURL string
	Preview     bool
	CopyPath    bool
	NoProgress  bool
}

func parseExportFlags(args []string) (*exportFlags, error) {
	f := &exportFlags{}
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	fs.StringVar(&f.ConfigFile, "config", "", "Settings file (default ~/.hootspot/config.json)")
	fs.StringVar(&f.JobFile, "job", "", "Job file (YAML)")
	fs.StringVar(&f.Payload, "payload", "", "Export request JSON file, or - for stdin")
	fs.StringVar(&f.Name, "name", "", "Name used for output files")
	fs.StringVar(&f.Formats, "formats", "", "Comma-separated artifacts: pdf,json,crash_report,summary")
	fs.StringVar(&f.Engine, "engine", "", "Document engine: pdf or chromium")
	fs.StringVar(&f.Paper, "paper", "", "Paper size: A4 or Letter")
	fs.DurationVar(&f.Timeout, "timeout", 0, "Export timeout")
	fs.StringVar(&f.OutputDir, "output-dir", "", "Directory for artifacts")
	fs.StringVar(&f.RendererURL, "renderer-url", "", "Remote renderer WebSocket URL")
	fs.BoolVar(&f.Preview, "preview", false, "Print the JSON export with syntax highlighting")
	fs.BoolVar(&f.CopyPath, "copy-path", false, "Copy the PDF path to the clipboard")
	fs.BoolVar(&f.NoProgress, "no-progress", false, "Disable the progress spinner")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return f, nil
}

// loadJob returns the job described by the job file and flags.
func loadJob(f *exportFlags) (*appconfig.Job, error) {
	job := appconfig.DefaultJob()
	if f.JobFile != "" {
		loaded, err := appconfig.LoadJob(f.JobFile)
		if err != nil {
			return nil, err
		}
		job = loaded
	}

	if f.Payload != "" {
		job.Payload = f.Payload
	}
	if f.Name != "" {
		job.Name = f.Name
	}
	if f.Formats != "" {
		job.Formats = splitList(f.Formats)
	}
	if job.Payload == "" {
		return nil, fmt.Errorf("a payload is required (-payload or payload in the job file)")
	}
	if err := job.Validate(); err != nil {
		return nil, err
	}
	return job, nil
}

// loadRequest reads the export request at path ("-" reads stdin) and
// applies the job's label translations over the payload's.
func loadRequest(path string, stdin io.Reader, translations map[string]string) (*types.ExportRequest, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read payload: %w", err)
	}

	var req types.ExportRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to parse payload: %w", err)
	}

	if len(translations) > 0 {
		if req.Translations == nil {
			req.Translations = make(map[string]string, len(translations))
		}
		for k, v := range translations {
			req.Translations[k] = v
		}
	}
	return &req, nil
}

func runExport(ctx context.Context, args []string) error {
	f, err := parseExportFlags(args)
	if err != nil {
		return err
	}

	job, err := loadJob(f)
	if err != nil {
		return fmt.Errorf("invalid job: %w", err)
	}

	if initErr := appconfig.Initialize(f.ConfigFile); initErr != nil {
		return fmt.Errorf("failed to initialize configuration: %w", initErr)
	}

	settings, err := appconfig.ResolveExport(appconfig.ExportOverrides{
		Engine:      f.Engine,
		Paper:       f.Paper,
		Timeout:     f.Timeout,
		OutputDir:   f.OutputDir,
		RendererURL: f.RendererURL,
	}, job, os.Getenv)
	if err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}

	req, err := loadRequest(job.Payload, os.Stdin, job.Translations)
	if err != nil {
		return err
	}

	// File logging falls back to stderr when the log directory is unusable
	logger, _ := logging.NewLogger("requester")
	defer logger.Close()

	endpoint, rendererOrigin, rendererName, stop, err := openRenderer(ctx, settings, logger)
	if err != nil {
		return err
	}
	defer stop()

	dispatcher, err := requester.NewDispatcher(endpoint, rendererOrigin, requester.WithLogger(logger))
	if err != nil {
		return err
	}
	go func() {
		if runErr := dispatcher.Run(ctx); runErr != nil && ctx.Err() == nil {
			logger.Warnf("dispatcher stopped: %v", runErr)
		}
	}()

	exportCtx, cancel := context.WithTimeout(ctx, settings.Timeout)
	defer cancel()

	executor := cli.NewExecutor(dispatcher,
		cli.WithLogger(logger),
		cli.WithInteractive(!f.NoProgress && isatty.IsTerminal(os.Stdout.Fd())),
		cli.WithPreview(f.Preview),
		cli.WithCopyPath(f.CopyPath),
	)

	_, err = executor.Export(exportCtx, cli.Run{
		Name:      settings.Name,
		Request:   req,
		Formats:   job.Formats,
		Artifacts: report.NewArtifactWriter(settings.OutputDir),
		Engine:    string(settings.Engine),
		Renderer:  rendererName,
	})
	return err
}

// openRenderer connects to the remote renderer, or starts one in-process on
// the other end of a pipe. stop releases whatever was opened.
func openRenderer(ctx context.Context, settings *appconfig.ExportSettings, logger *logging.Logger) (endpoint transport.Endpoint, rendererOrigin, name string, stop func(), err error) {
	if settings.Remote() {
		conn, dialErr := transport.Dial(ctx, settings.RendererURL, settings.RequesterOrigin, logger.With("transport"))
		if dialErr != nil {
			return nil, "", "", nil, dialErr
		}
		return conn, conn.PeerOrigin(), settings.RendererURL, func() { _ = conn.Close() }, nil
	}

	panel, sandbox, err := transport.NewPipe(settings.RequesterOrigin, settings.RendererOrigin)
	if err != nil {
		return nil, "", "", nil, err
	}

	rendererLogger := logger.With("renderer")
	builder, err := document.NewBuilder(document.Options{
		Engine:          settings.Engine,
		Paper:           settings.Paper,
		ChromiumTimeout: settings.Timeout,
		Logger:          rendererLogger,
	})
	if err != nil {
		return nil, "", "", nil, err
	}

	allowed, err := appconfig.GetOrigins().Allowlist()
	if err != nil {
		_ = builder.Close()
		return nil, "", "", nil, err
	}
	handler := renderer.NewHandler(builder, allowed, renderer.WithLogger(rendererLogger))

	host, err := renderer.NewHost(sandbox, handler, settings.RequesterOrigin, rendererLogger)
	if err != nil {
		_ = builder.Close()
		return nil, "", "", nil, err
	}

	hostCtx, cancelHost := context.WithCancel(ctx)
	hostDone := make(chan struct{})
	go func() {
		defer close(hostDone)
		if runErr := host.Run(hostCtx); runErr != nil && hostCtx.Err() == nil {
			rendererLogger.Errorf("renderer stopped: %v", runErr)
		}
	}()

	stop = func() {
		cancelHost()
		<-hostDone
		_ = panel.Close()
		_ = sandbox.Close()
		_ = builder.Close()
	}
	return panel, sandbox.Origin(), "in-process (" + string(settings.Engine) + ")", stop, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
