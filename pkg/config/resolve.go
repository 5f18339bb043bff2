package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/entrhq/hootspot/pkg/document"
)

// Environment variables consulted by ResolveExport.
const (
	EnvRendererURL = "HOOTSPOT_RENDERER_URL"
	EnvEngine      = "HOOTSPOT_ENGINE"
)

// ExportOverrides are values given on the command line. Zero values mean
// "not set".
type ExportOverrides struct {
	Engine      string
	Paper       string
	Timeout     time.Duration
	OutputDir   string
	RendererURL string
}

// ExportSettings is the fully resolved configuration of one export.
type ExportSettings struct {
	Name            string
	Engine          document.Engine
	Paper           document.Paper
	Timeout         time.Duration
	OutputDir       string
	RendererURL     string
	RequesterOrigin string
	RendererOrigin  string
}

// Remote reports whether the export goes to a renderer over WebSocket.
func (s *ExportSettings) Remote() bool {
	return s.RendererURL != ""
}

// ResolveExport merges settings with precedence:
// CLI flags > environment variables > job file > config file > defaults.
// job may be nil. getenv is usually os.Getenv.
func ResolveExport(flags ExportOverrides, job *Job, getenv func(string) string) (*ExportSettings, error) {
	export := GetExport()
	if export == nil {
		export = NewExportSection()
	}
	origins := GetOrigins()
	if origins == nil {
		origins = NewOriginsSection()
	}
	if job == nil {
		job = DefaultJob()
	}

	cfgEngine, cfgPaper, cfgTimeout, cfgOutputDir := export.Snapshot()
	requester, renderer, cfgRendererURL := origins.Snapshot()

	engine := firstNonEmpty(flags.Engine, getenv(EnvEngine), job.Engine, cfgEngine)
	paper := firstNonEmpty(flags.Paper, job.Paper, cfgPaper)
	outputDir := firstNonEmpty(flags.OutputDir, job.OutputDir, cfgOutputDir)
	rendererURL := firstNonEmpty(flags.RendererURL, getenv(EnvRendererURL), job.RendererURL, cfgRendererURL)

	timeout := cfgTimeout
	if job.Timeout > 0 {
		timeout = job.Timeout
	}
	if flags.Timeout > 0 {
		timeout = flags.Timeout
	}
	if timeout <= 0 {
		timeout = defaultExportTimeout
	}

	parsedEngine, err := document.ParseEngine(engine)
	if err != nil {
		return nil, err
	}
	parsedPaper, err := document.ParsePaper(paper)
	if err != nil {
		return nil, err
	}
	if rendererURL != "" {
		if err := validateRendererURL(rendererURL); err != nil {
			return nil, err
		}
	}

	return &ExportSettings{
		Name:            job.Name,
		Engine:          parsedEngine,
		Paper:           parsedPaper,
		Timeout:         timeout,
		OutputDir:       firstNonEmpty(outputDir, defaultOutputDir),
		RendererURL:     rendererURL,
		RequesterOrigin: requester,
		RendererOrigin:  renderer,
	}, nil
}

func validateRendererURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid renderer URL %q: %w", raw, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("invalid renderer URL %q: scheme must be ws or wss", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid renderer URL %q: host is required", raw)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
