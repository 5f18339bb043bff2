// Package report writes the files an export produces: the PDF itself, the
// JSON export of the analysis, crash reports and a run summary.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/entrhq/hootspot/pkg/requester"
	"github.com/entrhq/hootspot/pkg/types"
)

// DefaultName is used when a job has no usable name.
const DefaultName = "hootspot-report"

// ArtifactWriter writes export artifacts into one directory.
type ArtifactWriter struct {
	outputDir string
	now       func() time.Time
}

// NewArtifactWriter creates a new artifact writer
func NewArtifactWriter(outputDir string) *ArtifactWriter {
	return &ArtifactWriter{
		outputDir: outputDir,
		now:       time.Now,
	}
}

// OutputDir returns the directory artifacts are written to.
func (w *ArtifactWriter) OutputDir() string {
	return w.outputDir
}

// WritePDF writes the exported document as <name>.pdf and returns its path.
func (w *ArtifactWriter) WritePDF(name string, blob []byte) (string, error) {
	if len(blob) == 0 {
		return "", fmt.Errorf("refusing to write an empty document")
	}
	return w.write(Slug(name)+".pdf", blob)
}

// JSONExport is the "export as JSON" form of a report.
type JSONExport struct {
	Analysis        json.RawMessage   `json:"analysis"`
	SourceText      string            `json:"sourceText"`
	HighlightData   json.RawMessage   `json:"highlightData,omitempty"`
	PatternColorMap map[string]string `json:"patternColorMap,omitempty"`
	Rebuttal        *string           `json:"rebuttal,omitempty"`
	ExportedAt      time.Time         `json:"exportedAt"`
}

// BuildJSONExport renders req as indented JSON stamped with exportedAt. The
// chart snapshot and translations are presentation details and are left out.
func BuildJSONExport(req *types.ExportRequest, exportedAt time.Time) ([]byte, error) {
	if req == nil {
		return nil, fmt.Errorf("no report to export")
	}
	export := JSONExport{
		Analysis:        req.Analysis,
		SourceText:      req.SourceText,
		PatternColorMap: req.PatternColorMap,
		ExportedAt:      exportedAt.UTC(),
	}
	if req.HasHighlightData() {
		export.HighlightData = req.HighlightData
	}
	if req.HasRebuttal() {
		export.Rebuttal = req.Rebuttal
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON export: %w", err)
	}
	return data, nil
}

// WriteJSON writes the JSON export of req as <name>.json.
func (w *ArtifactWriter) WriteJSON(name string, req *types.ExportRequest) (string, error) {
	data, err := BuildJSONExport(req, w.now())
	if err != nil {
		return "", err
	}
	return w.write(Slug(name)+".json", data)
}

// WriteCrashReport writes a markdown crash report as <name>-crash.md.
func (w *ArtifactWriter) WriteCrashReport(name string, exportErr *requester.ExportError) (string, error) {
	if exportErr == nil {
		return "", fmt.Errorf("no crash report to write")
	}

	var md strings.Builder
	md.WriteString("# HootSpot PDF Export Crash Report\n\n")
	md.WriteString(fmt.Sprintf("**Report:** %s\n\n", name))
	md.WriteString(fmt.Sprintf("**Recorded:** %s\n\n", w.now().Format(time.RFC3339)))
	md.WriteString("## Error\n\n")
	md.WriteString(fmt.Sprintf("❌ %s\n\n", exportErr.Message))

	md.WriteString("## Checkpoints\n\n")
	if len(exportErr.Diagnostics) == 0 {
		md.WriteString("_No checkpoints were recorded._\n")
	}
	for i, cp := range exportErr.Diagnostics {
		stamp := ""
		if !cp.At.IsZero() {
			stamp = " `" + cp.At.Format("15:04:05.000") + "`"
		}
		md.WriteString(fmt.Sprintf("%d. %s%s\n", i+1, cp.String(), stamp))
	}

	return w.write(Slug(name)+"-crash.md", []byte(md.String()))
}

// Status values of a run summary.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Summary describes one export run.
type Summary struct {
	Name      string        `json:"name"`
	Status    string        `json:"status"`
	Error     string        `json:"error,omitempty"`
	Engine    string        `json:"engine"`
	Renderer  string        `json:"renderer"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
	PDFBytes  int           `json:"pdf_bytes,omitempty"`
	Files     []string      `json:"files"`
}

// WriteSummary writes summary as <name>-summary.json.
func (w *ArtifactWriter) WriteSummary(summary *Summary) (string, error) {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal summary: %w", err)
	}
	return w.write(Slug(summary.Name)+"-summary.json", data)
}

func (w *ArtifactWriter) write(file string, data []byte) (string, error) {
	if err := os.MkdirAll(w.outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	path := filepath.Join(w.outputDir, file)
	if err := os.WriteFile(path, data, 0600); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", file, err)
	}
	return path, nil
}

// Slug turns a report name into a file name stem: lower case letters and
// digits separated by single dashes.
func Slug(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || (unicode.IsLetter(r) && r < 0x250) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	slug := strings.TrimSuffix(b.String(), "-")
	if slug == "" {
		return DefaultName
	}
	return slug
}
