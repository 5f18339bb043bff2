package document

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"html/template"
	"io"
	"sync"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/hootspot/pkg/types"
)

// ChromiumBuilder renders the report as HTML and prints it with a headless
// Chromium. The browser is started on first use and reused until Close.
type ChromiumBuilder struct {
	opts Options

	mu          sync.Mutex
	pw          *playwright.Playwright
	browser     playwright.Browser
	initialized bool
}

// NewChromiumBuilder creates a chromium builder. Nothing is started until
// the first Build.
func NewChromiumBuilder(opts Options) *ChromiumBuilder {
	return &ChromiumBuilder{opts: opts.withDefaults()}
}

// initialize installs and launches Chromium if that has not happened yet.
func (b *ChromiumBuilder) initialize() error {
	if b.initialized {
		return nil
	}

	runOpts := &playwright.RunOptions{
		Browsers: []string{"chromium"},
		Verbose:  false,
		Stdout:   io.Discard,
		Stderr:   io.Discard,
	}
	if err := playwright.Install(runOpts); err != nil {
		return fmt.Errorf("failed to install playwright: %w", err)
	}

	pw, err := playwright.Run(runOpts)
	if err != nil {
		return fmt.Errorf("failed to start playwright: %w", err)
	}

	headless := true
	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: &headless,
	})
	if err != nil {
		_ = pw.Stop()
		return fmt.Errorf("failed to launch browser: %w", err)
	}

	b.pw = pw
	b.browser = browser
	b.initialized = true
	b.opts.Logger.Infof("chromium started")
	return nil
}

// Build implements Builder.
func (b *ChromiumBuilder) Build(ctx context.Context, req *types.ExportRequest, rec types.Recorder) ([]byte, error) {
	if rec == nil {
		rec = types.NopRecorder{}
	}

	c, err := prepare(req, b.opts.Now(), rec)
	if err != nil {
		return nil, err
	}

	html, err := renderHTML(c)
	if err != nil {
		return nil, err
	}
	rec.Record(CheckpointHTMLRendered, map[string]interface{}{"bytes": len(html)})

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.initialize(); err != nil {
		return nil, err
	}
	rec.Record(CheckpointBrowserReady, map[string]interface{}{"version": b.browser.Version()})

	page, err := b.browser.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	defer func() {
		if err := page.Close(); err != nil {
			b.opts.Logger.Warnf("failed to close page: %v", err)
		}
	}()

	timeout := float64(b.opts.ChromiumTimeout.Milliseconds())
	page.SetDefaultTimeout(timeout)

	if err := page.SetContent(html, playwright.PageSetContentOptions{
		WaitUntil: playwright.WaitUntilStateLoad,
	}); err != nil {
		return nil, fmt.Errorf("failed to load report page: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pdf, err := page.PDF(playwright.PagePdfOptions{
		Format:          playwright.String(string(b.opts.Paper)),
		PrintBackground: playwright.Bool(true),
		Margin: &playwright.Margin{
			Top:    playwright.String("16mm"),
			Right:  playwright.String("14mm"),
			Bottom: playwright.String("16mm"),
			Left:   playwright.String("14mm"),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to print report: %w", err)
	}
	rec.Record(CheckpointDocumentRendered, map[string]interface{}{"bytes": len(pdf)})

	if c.Chart != nil {
		rec.Record(CheckpointChartEmbedded, map[string]interface{}{
			"type":   c.Chart.MediaType,
			"width":  c.Chart.Width,
			"height": c.Chart.Height,
		})
	}
	return pdf, nil
}

// Close stops the browser and the playwright driver.
func (b *ChromiumBuilder) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.initialized {
		return nil
	}
	b.initialized = false

	var firstErr error
	if err := b.browser.Close(); err != nil {
		firstErr = fmt.Errorf("failed to close browser: %w", err)
	}
	if err := b.pw.Stop(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("failed to stop playwright: %w", err)
	}
	return firstErr
}

// htmlView is the template data for the chromium report.
type htmlView struct {
	*content
	ChartSrc template.URL
}

func renderHTML(c *content) (string, error) {
	view := htmlView{content: c}
	if c.Chart != nil {
		// The chart was decoded and checked, re-encode rather than trusting
		// the caller's string.
		src := "data:" + c.Chart.MediaType + ";base64," + base64.StdEncoding.EncodeToString(c.Chart.Data)
		view.ChartSrc = template.URL(src)
	}

	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("failed to render report HTML: %w", err)
	}
	return buf.String(), nil
}

var reportTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"label": func(l labels, key string) string { return l.get(key) },
	"clean": stripMarkup,
	"inc":   func(i int) int { return i + 1 },
	"css":   func(color string) template.CSS { return template.CSS("background-color: " + color) },
}).Parse(reportHTML))

// Colors reach "css" only after hexColor validation in colorFor and legend.
const reportHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{label .Labels "reportTitle"}}</title>
<style>
  body { font-family: -apple-system, "Segoe UI", Helvetica, Arial, sans-serif; font-size: 11pt; color: #222; }
  h1 { font-size: 20pt; margin-bottom: 0; }
  h2 { font-size: 14pt; border-bottom: 1px solid #ddd; padding-bottom: 2pt; margin-top: 18pt; }
  .meta { color: #777; font-size: 9pt; }
  .finding { margin-bottom: 10pt; page-break-inside: avoid; }
  .finding h3 { font-size: 12pt; margin: 0 0 2pt 0; }
  .category { color: #555; font-style: italic; }
  blockquote { margin: 4pt 0 4pt 12pt; color: #444; font-style: italic; }
  .source { white-space: pre-wrap; line-height: 1.5; }
  mark { border-radius: 2px; padding: 0 1px; }
  .swatch { display: inline-block; width: 10pt; height: 10pt; margin-right: 6pt; vertical-align: middle; }
  .chart { text-align: center; page-break-before: always; }
  .chart img { max-width: 100%; }
  pre { font-size: 8pt; white-space: pre-wrap; }
</style>
</head>
<body>
<h1>{{label .Labels "reportTitle"}}</h1>
<div class="meta">{{label .Labels "generatedOn"}}: {{.GeneratedOn}}</div>

{{with .Analysis.Summary}}
<h2>{{label $.Labels "summaryTitle"}}</h2>
<p>{{clean .}}</p>
{{end}}

<h2>{{label .Labels "findingsTitle"}}</h2>
{{if .Analysis.Findings}}
  {{range $i, $f := .Analysis.Findings}}
  <div class="finding">
    <h3>{{inc $i}}. {{clean $f.Pattern}}</h3>
    {{with $f.Category}}<div class="category">{{label $.Labels "category"}}: {{clean .}}</div>{{end}}
    {{with $f.Explanation}}<p>{{clean .}}</p>{{end}}
    {{range $f.Quotes}}<blockquote>&ldquo;{{clean .}}&rdquo;</blockquote>{{end}}
  </div>
  {{end}}
{{else if .Analysis.Raw}}
  <pre>{{.Analysis.Raw}}</pre>
{{else}}
  <p>{{label .Labels "noFindings"}}</p>
{{end}}

<h2>{{label .Labels "sourceTextTitle"}}</h2>
<div class="source">{{range .Segments}}{{if .Patterns}}<mark style="{{css .Color}}" title="{{range $i, $p := .Patterns}}{{if $i}}, {{end}}{{$p}}{{end}}">{{.Text}}</mark>{{else}}{{.Text}}{{end}}{{end}}</div>

{{if .Legend}}
<h2>{{label .Labels "legendTitle"}}</h2>
<ul>
  {{range .Legend}}<li><span class="swatch" style="{{css .Color}}"></span>{{.Pattern}}</li>{{end}}
</ul>
{{end}}

{{if .ChartSrc}}
<div class="chart">
  <h2>{{label .Labels "chartTitle"}}</h2>
  <img src="{{.ChartSrc}}" alt="{{label .Labels "chartTitle"}}">
</div>
{{end}}

{{with .Rebuttal}}
<h2>{{label $.Labels "rebuttalTitle"}}</h2>
<p class="source">{{clean .}}</p>
{{end}}
</body>
</html>
`
