// Package document turns export requests into PDF documents.
//
// Two engines are available. The pdf engine is pure Go (pdfcpu) and needs
// nothing installed; the chromium engine renders an HTML report and prints
// it with a headless Chromium driven by playwright.
package document

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/entrhq/hootspot/pkg/logging"
	"github.com/entrhq/hootspot/pkg/types"
)

// Engine selects a document builder.
type Engine string

const (
	EnginePDF      Engine = "pdf"
	EngineChromium Engine = "chromium"
)

// DefaultEngine is used when no engine is configured.
const DefaultEngine = EnginePDF

// ParseEngine parses an engine name. Empty selects DefaultEngine.
func ParseEngine(s string) (Engine, error) {
	switch Engine(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return DefaultEngine, nil
	case EnginePDF:
		return EnginePDF, nil
	case EngineChromium:
		return EngineChromium, nil
	default:
		return "", fmt.Errorf("unknown document engine %q (expected %q or %q)", s, EnginePDF, EngineChromium)
	}
}

// Paper is a page format name.
type Paper string

const (
	PaperA4     Paper = "A4"
	PaperLetter Paper = "Letter"
)

// ParsePaper parses a paper name case-insensitively. Empty selects A4.
func ParsePaper(s string) (Paper, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "a4":
		return PaperA4, nil
	case "letter":
		return PaperLetter, nil
	default:
		return "", fmt.Errorf("unknown paper size %q (expected A4 or Letter)", s)
	}
}

// size returns the page size in PDF points.
func (p Paper) size() (width, height float64) {
	if p == PaperLetter {
		return 612, 792
	}
	return 595, 842
}

// Checkpoints recorded by the builders.
const (
	CheckpointLabelsResolved    = "labels_resolved"
	CheckpointAnalysisParsed    = "analysis_parsed"
	CheckpointHighlightsParsed  = "highlights_parsed"
	CheckpointHighlightsInvalid = "highlights_invalid"
	CheckpointChartEmbedded     = "chart_embedded"
	CheckpointChartSkipped      = "chart_skipped"
	CheckpointChartInvalid      = "chart_invalid"
	CheckpointRebuttalIncluded  = "rebuttal_included"
	CheckpointLayoutBuilt       = "layout_built"
	CheckpointDocumentRendered  = "document_rendered"
	CheckpointDocumentValidated = "document_validated"
	CheckpointBrowserReady      = "browser_ready"
	CheckpointHTMLRendered      = "html_rendered"
)

// Builder builds a PDF from an export request. Close releases any engine
// resources; builders are safe to reuse until closed.
type Builder interface {
	Build(ctx context.Context, req *types.ExportRequest, rec types.Recorder) ([]byte, error)
	Close() error
}

// Options configure a builder.
type Options struct {
	Engine Engine
	Paper  Paper

	// Now stamps the "generated on" line. Defaults to time.Now.
	Now func() time.Time

	// ChromiumTimeout bounds page load and printing in the chromium engine.
	ChromiumTimeout time.Duration

	Logger *logging.Logger
}

func (o Options) withDefaults() Options {
	if o.Engine == "" {
		o.Engine = DefaultEngine
	}
	if o.Paper == "" {
		o.Paper = PaperA4
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.ChromiumTimeout <= 0 {
		o.ChromiumTimeout = 30 * time.Second
	}
	if o.Logger == nil {
		o.Logger = logging.Discard()
	}
	return o
}

// NewBuilder returns the builder for opts.Engine.
func NewBuilder(opts Options) (Builder, error) {
	opts = opts.withDefaults()
	switch opts.Engine {
	case EnginePDF:
		return NewPDFBuilder(opts), nil
	case EngineChromium:
		return NewChromiumBuilder(opts), nil
	default:
		return nil, fmt.Errorf("unknown document engine %q", opts.Engine)
	}
}

// content is the engine-independent view of a request.
type content struct {
	Labels      labels
	GeneratedOn string
	Analysis    *analysisView
	Source      string
	Highlights  []highlight
	Segments    []segment
	Legend      []legendEntry
	Chart       *chartImage
	Rebuttal    string
}

// prepare decodes everything both engines need, recording a checkpoint per
// step. Only an unreadable analysis is fatal; other optional parts are
// dropped with a checkpoint explaining why.
func prepare(req *types.ExportRequest, now time.Time, rec types.Recorder) (*content, error) {
	if req == nil {
		return nil, fmt.Errorf("export request is nil")
	}

	c := &content{
		Labels:      newLabels(req.Translations),
		GeneratedOn: now.Format("2006-01-02 15:04 MST"),
		Source:      req.SourceText,
	}
	rec.Record(CheckpointLabelsResolved, map[string]interface{}{
		"overrides": len(req.Translations),
	})

	view, err := parseAnalysis(req.Analysis)
	if err != nil {
		return nil, err
	}
	c.Analysis = view
	rec.Record(CheckpointAnalysisParsed, map[string]interface{}{
		"findings": len(view.Findings),
		"raw":      view.Raw != "",
	})

	if req.HasHighlightData() {
		hl, err := parseHighlights(req.HighlightData, req.SourceText)
		if err != nil {
			rec.Record(CheckpointHighlightsInvalid, map[string]interface{}{"error": err.Error()})
		} else {
			c.Highlights = hl
			rec.Record(CheckpointHighlightsParsed, map[string]interface{}{"passages": len(hl)})
		}
	}
	c.Segments = segmentSource(req.SourceText, c.Highlights, req.PatternColorMap)
	c.Legend = legend(req.PatternColorMap)

	if !req.HasChartImage() {
		rec.Record(CheckpointChartSkipped, nil)
	} else if chart, err := decodeChartImage(*req.ChartImage); err != nil {
		rec.Record(CheckpointChartInvalid, map[string]interface{}{"error": err.Error()})
	} else {
		c.Chart = chart
	}

	if req.HasRebuttal() {
		c.Rebuttal = *req.Rebuttal
		rec.Record(CheckpointRebuttalIncluded, map[string]interface{}{"chars": len(c.Rebuttal)})
	}

	return c, nil
}
