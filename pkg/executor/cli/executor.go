// Package cli runs HootSpot exports from a terminal.
//
// The executor sends one export request through an Exporter (normally a
// requester.Dispatcher), shows a spinner while the renderer works, writes
// the artifacts the job asks for and prints either a run summary or the
// renderer's crash report.
//
// Example usage:
//
//	dispatcher, _ := requester.NewDispatcher(endpoint, rendererOrigin)
//	go dispatcher.Run(ctx)
//
//	executor := cli.NewExecutor(dispatcher,
//	    cli.WithInteractive(true),
//	)
//	summary, err := executor.Export(ctx, cli.Run{
//	    Name:      "weekly",
//	    Request:   req,
//	    Formats:   []string{config.FormatPDF, config.FormatSummary},
//	    Artifacts: report.NewArtifactWriter("exports"),
//	})
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/entrhq/hootspot/pkg/config"
	"github.com/entrhq/hootspot/pkg/logging"
	"github.com/entrhq/hootspot/pkg/report"
	"github.com/entrhq/hootspot/pkg/requester"
	"github.com/entrhq/hootspot/pkg/types"
)

// Exporter sends an export request and waits for the finished document.
type Exporter interface {
	RequestExport(ctx context.Context, req *types.ExportRequest) ([]byte, error)
}

// Run describes one export.
type Run struct {
	Name      string
	Request   *types.ExportRequest
	Formats   []string
	Artifacts *report.ArtifactWriter

	// Engine and Renderer are recorded in the summary.
	Engine   string
	Renderer string
}

func (r Run) wants(format string) bool {
	for _, f := range r.Formats {
		if f == format {
			return true
		}
	}
	return false
}

// Executor runs exports and renders their outcome to a terminal.
type Executor struct {
	exporter Exporter
	writer   io.Writer
	input    io.Reader
	logger   *logging.Logger

	// Display options
	interactive bool
	preview     bool
	copyPath    bool

	writeClipboard func(string) error
	now            func() time.Time
}

// ExecutorOption is a function that configures an Executor.
type ExecutorOption func(*Executor)

// WithWriter sets a custom output writer (default is os.Stdout).
func WithWriter(w io.Writer) ExecutorOption {
	return func(e *Executor) {
		e.writer = w
	}
}

// WithInput sets the keyboard input of the spinner (default is os.Stdin).
func WithInput(r io.Reader) ExecutorOption {
	return func(e *Executor) {
		e.input = r
	}
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) ExecutorOption {
	return func(e *Executor) {
		e.logger = logger
	}
}

// WithInteractive shows an animated spinner while waiting for the renderer.
func WithInteractive(interactive bool) ExecutorOption {
	return func(e *Executor) {
		e.interactive = interactive
	}
}

// WithPreview prints the highlighted JSON export after writing it.
func WithPreview(preview bool) ExecutorOption {
	return func(e *Executor) {
		e.preview = preview
	}
}

// WithCopyPath copies the written PDF's path to the system clipboard.
func WithCopyPath(copyPath bool) ExecutorOption {
	return func(e *Executor) {
		e.copyPath = copyPath
	}
}

// NewExecutor creates a new CLI executor for the given exporter.
func NewExecutor(exporter Exporter, opts ...ExecutorOption) *Executor {
	e := &Executor{
		exporter:       exporter,
		writer:         os.Stdout,
		input:          os.Stdin,
		writeClipboard: clipboard.WriteAll,
		now:            time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Export runs one export. The returned summary is never nil; the error is
// the export's error, including *requester.ExportError for crash reports.
// Artifact write failures are reported and logged but do not fail the run.
func (e *Executor) Export(ctx context.Context, run Run) (*report.Summary, error) {
	if run.Request == nil {
		return nil, fmt.Errorf("export request is required")
	}
	if run.Artifacts == nil {
		return nil, fmt.Errorf("artifact writer is required")
	}
	if run.Name == "" {
		run.Name = report.DefaultName
	}

	summary := &report.Summary{
		Name:      run.Name,
		Engine:    run.Engine,
		Renderer:  run.Renderer,
		StartTime: e.now(),
	}

	label := fmt.Sprintf("Exporting %s", run.Name)
	blob, exportErr := e.wait(ctx, label, func(ctx context.Context) ([]byte, error) {
		return e.exporter.RequestExport(ctx, run.Request)
	})

	if exportErr != nil {
		summary.Status = report.StatusFailed
		summary.Error = exportErr.Error()
		e.logger.Errorf("export %s failed: %v", run.Name, exportErr)
		e.handleFailure(run, summary, exportErr)
	} else {
		summary.Status = report.StatusSucceeded
		summary.PDFBytes = len(blob)
		e.logger.Infof("export %s produced %d bytes", run.Name, len(blob))
		e.handleSuccess(run, summary, blob)
	}

	if run.wants(config.FormatJSON) {
		e.writeJSON(run, summary)
	}

	summary.EndTime = e.now()
	summary.Duration = summary.EndTime.Sub(summary.StartTime)

	if run.wants(config.FormatSummary) {
		path, err := run.Artifacts.WriteSummary(summary)
		if err != nil {
			e.warn("could not write summary", err)
		} else {
			summary.Files = append(summary.Files, path)
		}
	}

	fmt.Fprintln(e.writer, RenderSummary(summary))
	return summary, exportErr
}

// wait runs fn, with a spinner when interactive.
func (e *Executor) wait(ctx context.Context, label string, fn func(context.Context) ([]byte, error)) ([]byte, error) {
	if !e.interactive {
		fmt.Fprintln(e.writer, mutedStyle.Render(label+"..."))
		return fn(ctx)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	run := func() tea.Msg {
		blob, err := fn(ctx)
		return exportDoneMsg{blob: blob, err: err}
	}
	m := newProgressModel(label, run, cancel)

	final, err := tea.NewProgram(m, tea.WithOutput(e.writer), tea.WithInput(e.input)).Run()
	if err != nil {
		return nil, fmt.Errorf("progress display failed: %w", err)
	}
	pm, ok := final.(*progressModel)
	if !ok || !pm.done {
		return nil, fmt.Errorf("export ended without a result")
	}
	return pm.blob, pm.err
}

func (e *Executor) handleSuccess(run Run, summary *report.Summary, blob []byte) {
	fmt.Fprintf(e.writer, "%s %s\n", successStyle.Render("✓ PDF ready"), mutedStyle.Render(formatBytes(len(blob))))

	if !run.wants(config.FormatPDF) {
		return
	}
	path, err := run.Artifacts.WritePDF(run.Name, blob)
	if err != nil {
		e.warn("could not write PDF", err)
		return
	}
	summary.Files = append(summary.Files, path)

	if e.copyPath {
		e.copyToClipboard(path)
	}
}

func (e *Executor) handleFailure(run Run, summary *report.Summary, exportErr error) {
	var crash *requester.ExportError
	if !errors.As(exportErr, &crash) {
		fmt.Fprintln(e.writer, errorStyle.Render("✗ "+exportErr.Error()))
		return
	}

	fmt.Fprintln(e.writer, RenderCrashReport(crash))
	if !run.wants(config.FormatCrash) {
		return
	}
	path, err := run.Artifacts.WriteCrashReport(run.Name, crash)
	if err != nil {
		e.warn("could not write crash report", err)
		return
	}
	summary.Files = append(summary.Files, path)
}

func (e *Executor) writeJSON(run Run, summary *report.Summary) {
	path, err := run.Artifacts.WriteJSON(run.Name, run.Request)
	if err != nil {
		e.warn("could not write JSON export", err)
		return
	}
	summary.Files = append(summary.Files, path)

	if !e.preview {
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		e.warn("could not read JSON export", err)
		return
	}
	fmt.Fprintln(e.writer, headerStyle.Render("JSON export"))
	HighlightJSON(e.writer, data)
	fmt.Fprintln(e.writer)
}

func (e *Executor) copyToClipboard(path string) {
	if clipboard.Unsupported {
		fmt.Fprintln(e.writer, mutedStyle.Render("clipboard not available, path not copied"))
		return
	}
	if err := e.writeClipboard(path); err != nil {
		e.warn("could not copy path", err)
		return
	}
	fmt.Fprintln(e.writer, mutedStyle.Render("PDF path copied to clipboard"))
}

func (e *Executor) warn(what string, err error) {
	e.logger.Warnf("%s: %v", what, err)
	fmt.Fprintln(e.writer, warnStyle.Render(fmt.Sprintf("! %s: %v", what, err)))
}

// HighlightJSON writes data with terminal syntax highlighting, or plain if
// highlighting fails.
func HighlightJSON(w io.Writer, data []byte) {
	if err := quick.Highlight(w, string(data), "json", "terminal256", "monokai"); err != nil {
		_, _ = w.Write(data)
	}
}

// RenderCrashReport formats a renderer crash report: the error message
// followed by every checkpoint the renderer recorded.
func RenderCrashReport(crash *requester.ExportError) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("PDF export failed"))
	b.WriteString("\n")
	b.WriteString(errorStyle.Render(crash.Message))
	b.WriteString("\n\n")

	lines := crash.DiagnosticLines()
	if len(lines) == 0 {
		b.WriteString(mutedStyle.Render("No diagnostics were recorded."))
		return crashBoxStyle.Render(b.String())
	}

	b.WriteString(mutedStyle.Render(fmt.Sprintf("Diagnostics (%d)", len(lines))))
	for i, line := range lines {
		b.WriteString(fmt.Sprintf("\n%s %s", mutedStyle.Render(fmt.Sprintf("%2d.", i+1)), valueStyle.Render(line)))
	}
	return crashBoxStyle.Render(b.String())
}

// RenderSummary formats a run summary.
func RenderSummary(s *report.Summary) string {
	status := successStyle.Render(s.Status)
	if s.Status != report.StatusSucceeded {
		status = errorStyle.Render(s.Status)
	}

	rows := [][2]string{
		{"Export", valueStyle.Render(s.Name)},
		{"Status", status},
	}
	if s.Engine != "" {
		rows = append(rows, [2]string{"Engine", valueStyle.Render(s.Engine)})
	}
	if s.Renderer != "" {
		rows = append(rows, [2]string{"Renderer", valueStyle.Render(s.Renderer)})
	}
	rows = append(rows, [2]string{"Duration", valueStyle.Render(s.Duration.Round(time.Millisecond).String())})
	if s.PDFBytes > 0 {
		rows = append(rows, [2]string{"Size", valueStyle.Render(formatBytes(s.PDFBytes))})
	}
	for i, f := range s.Files {
		label := ""
		if i == 0 {
			label = "Files"
		}
		rows = append(rows, [2]string{label, valueStyle.Render(f)})
	}

	lines := make([]string, len(rows))
	for i, row := range rows {
		lines[i] = labelStyle.Render(row[0]) + row[1]
	}
	return strings.Join(lines, "\n")
}

func formatBytes(n int) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
