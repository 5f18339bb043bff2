package types

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Field names as they appear on the wire. Used in validation messages and
// checkpoints so a crash report names fields the way the caller wrote them.
const (
	FieldAnalysis        = "analysis"
	FieldSourceText      = "sourceText"
	FieldHighlightData   = "highlightData"
	FieldChartImage      = "chartImage"
	FieldPatternColorMap = "patternColorMap"
	FieldTranslations    = "translations"
	FieldRebuttal        = "rebuttal"
)

// ExportRequest is the payload of a GENERATE_PDF envelope.
type ExportRequest struct {
	// Analysis is the findings-by-category report. Opaque here; passed through verbatim.
	Analysis json.RawMessage `json:"analysis,omitempty"`

	// SourceText is the text that was analysed.
	SourceText string `json:"sourceText,omitempty"`

	// HighlightData maps annotated spans of SourceText to findings.
	HighlightData json.RawMessage `json:"highlightData,omitempty"`

	// ChartImage is a data URI snapshot of the chart. Nil when capture failed.
	ChartImage *string `json:"chartImage"`

	// PatternColorMap maps pattern identifiers to display colors.
	PatternColorMap map[string]string `json:"patternColorMap,omitempty"`

	// Translations overrides document labels.
	Translations map[string]string `json:"translations,omitempty"`

	// Rebuttal is an optional supplementary text block.
	Rebuttal *string `json:"rebuttal,omitempty"`
}

// HasAnalysis reports whether a non-empty analysis document is present.
// A JSON null counts as absent.
func (r *ExportRequest) HasAnalysis() bool {
	trimmed := bytes.TrimSpace(r.Analysis)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// HasSourceText reports whether the source text contains anything but whitespace.
func (r *ExportRequest) HasSourceText() bool {
	return strings.TrimSpace(r.SourceText) != ""
}

// HasChartImage reports whether a chart snapshot was supplied.
func (r *ExportRequest) HasChartImage() bool {
	return r.ChartImage != nil && strings.TrimSpace(*r.ChartImage) != ""
}

// HasRebuttal reports whether a rebuttal block was supplied.
func (r *ExportRequest) HasRebuttal() bool {
	return r.Rebuttal != nil && strings.TrimSpace(*r.Rebuttal) != ""
}

// HasHighlightData reports whether highlight data is present and not null.
func (r *ExportRequest) HasHighlightData() bool {
	trimmed := bytes.TrimSpace(r.HighlightData)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// MissingRequired returns the name of the first missing required field,
// or "" when the request carries everything it must.
func (r *ExportRequest) MissingRequired() string {
	if r == nil || !r.HasAnalysis() {
		return FieldAnalysis
	}
	if !r.HasSourceText() {
		return FieldSourceText
	}
	return ""
}
