package document

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// The analysis report is produced by whichever LLM backend the user picked
// and its shape drifts between prompts and models. The document reads it
// leniently: it looks for a findings list under a few known keys and falls
// back to printing the JSON itself.

var (
	findingsKeys    = []string{"findings", "detected_patterns", "patterns", "detectedPatterns"}
	patternKeys     = []string{"pattern_name", "patternName", "pattern", "name"}
	categoryKeys    = []string{"category", "category_name", "categoryName"}
	explanationKeys = []string{"explanation", "description", "reasoning"}
	quoteKeys       = []string{"specific_quote", "specificQuote", "quote", "quotes", "evidence"}
	summaryKeys     = []string{"summary", "overall_assessment", "overallAssessment"}
)

// finding is one detected manipulation pattern.
type finding struct {
	Pattern     string
	Category    string
	Explanation string
	Quotes      []string
}

// analysisView is what the document renders of an analysis report.
type analysisView struct {
	Summary  string
	Findings []finding

	// Raw is the indented JSON, used when no findings list was recognised.
	Raw string
}

func parseAnalysis(raw json.RawMessage) (*analysisView, error) {
	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		// Not an object (array, string, number): show it as is.
		var any interface{}
		if err2 := json.Unmarshal(raw, &any); err2 != nil {
			return nil, fmt.Errorf("analysis is not valid JSON: %w", err)
		}
		return &analysisView{Raw: indentJSON(raw)}, nil
	}

	view := &analysisView{Summary: firstString(doc, summaryKeys)}

	list, found := firstList(doc, findingsKeys)
	if !found {
		view.Raw = indentJSON(raw)
		return view, nil
	}

	for _, item := range list {
		obj, ok := item.(map[string]interface{})
		if !ok {
			if s, ok := item.(string); ok && s != "" {
				view.Findings = append(view.Findings, finding{Pattern: s})
			}
			continue
		}
		f := finding{
			Pattern:     firstString(obj, patternKeys),
			Category:    firstString(obj, categoryKeys),
			Explanation: firstString(obj, explanationKeys),
			Quotes:      firstStrings(obj, quoteKeys),
		}
		if f.Pattern == "" {
			f.Pattern = "Unnamed pattern"
		}
		view.Findings = append(view.Findings, f)
	}
	return view, nil
}

func indentJSON(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}

func firstString(obj map[string]interface{}, keys []string) string {
	for _, k := range keys {
		if s, ok := obj[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func firstStrings(obj map[string]interface{}, keys []string) []string {
	for _, k := range keys {
		switch v := obj[k].(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				return []string{strings.TrimSpace(v)}
			}
		case []interface{}:
			var out []string
			for _, item := range v {
				if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
					out = append(out, strings.TrimSpace(s))
				}
			}
			if len(out) > 0 {
				return out
			}
		}
	}
	return nil
}

func firstList(obj map[string]interface{}, keys []string) ([]interface{}, bool) {
	for _, k := range keys {
		if list, ok := obj[k].([]interface{}); ok {
			return list, true
		}
	}
	return nil, false
}

// highlight marks a passage of the source text with the patterns found in it.
type highlight struct {
	Text     string
	Patterns []string
}

// parseHighlights reads highlight data in either of the shapes the
// extension has used:
//
//	{"<quoted text>": "pattern"} / {"<quoted text>": ["pattern", ...]}
//	[{"text": "...", "pattern": "..."}, ...]
//
// Results are ordered by first appearance in source, unmatched ones last.
func parseHighlights(raw json.RawMessage, source string) ([]highlight, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	var out []highlight
	switch trimmed[0] {
	case '{':
		var m map[string]interface{}
		if err := json.Unmarshal(trimmed, &m); err != nil {
			return nil, fmt.Errorf("invalid highlight data: %w", err)
		}
		for text, v := range m {
			if strings.TrimSpace(text) == "" {
				continue
			}
			out = append(out, highlight{Text: text, Patterns: toStrings(v)})
		}
	case '[':
		var list []map[string]interface{}
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, fmt.Errorf("invalid highlight data: %w", err)
		}
		for _, item := range list {
			text := firstString(item, []string{"text", "quote"})
			if text == "" {
				continue
			}
			var patterns []string
			for _, k := range []string{"patterns", "pattern", "pattern_name"} {
				if v, ok := item[k]; ok {
					patterns = toStrings(v)
					break
				}
			}
			out = append(out, highlight{Text: text, Patterns: patterns})
		}
	default:
		return nil, fmt.Errorf("invalid highlight data: expected an object or array")
	}

	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := strings.Index(source, out[i].Text), strings.Index(source, out[j].Text)
		if pi < 0 {
			pi = len(source) + 1
		}
		if pj < 0 {
			pj = len(source) + 1
		}
		if pi != pj {
			return pi < pj
		}
		return out[i].Text < out[j].Text
	})
	return out, nil
}

func toStrings(v interface{}) []string {
	switch val := v.(type) {
	case string:
		if val == "" {
			return nil
		}
		return []string{val}
	case []interface{}:
		var out []string
		for _, item := range val {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

var hexColor = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// defaultPatternColor is used for patterns without a usable color.
const defaultPatternColor = "#FFE08A"

// colorFor returns the display color of the first pattern that has a valid
// hex color in colors.
func colorFor(patterns []string, colors map[string]string) string {
	for _, p := range patterns {
		if c, ok := colors[p]; ok && hexColor.MatchString(strings.TrimSpace(c)) {
			return strings.TrimSpace(c)
		}
	}
	return defaultPatternColor
}

// legendEntry pairs a pattern with its color.
type legendEntry struct {
	Pattern string
	Color   string
}

// legend returns the pattern color map sorted by pattern name, skipping
// entries whose color is not a hex color.
func legend(colors map[string]string) []legendEntry {
	entries := make([]legendEntry, 0, len(colors))
	for pattern, color := range colors {
		color = strings.TrimSpace(color)
		if !hexColor.MatchString(color) {
			continue
		}
		entries = append(entries, legendEntry{Pattern: pattern, Color: color})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Pattern < entries[j].Pattern
	})
	return entries
}

// segment is a run of source text, highlighted or not.
type segment struct {
	Text     string
	Patterns []string
	Color    string
}

// segmentSource splits source into plain and highlighted runs. Each
// highlight marks its first occurrence; overlapping matches are skipped.
func segmentSource(source string, highlights []highlight, colors map[string]string) []segment {
	type span struct {
		start, end int
		h          highlight
	}

	var spans []span
	for _, h := range highlights {
		idx := strings.Index(source, h.Text)
		if idx < 0 {
			continue
		}
		spans = append(spans, span{start: idx, end: idx + len(h.Text), h: h})
	}
	sort.SliceStable(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	var segs []segment
	pos := 0
	for _, s := range spans {
		if s.start < pos {
			continue
		}
		if s.start > pos {
			segs = append(segs, segment{Text: source[pos:s.start]})
		}
		segs = append(segs, segment{
			Text:     source[s.start:s.end],
			Patterns: s.h.Patterns,
			Color:    colorFor(s.h.Patterns, colors),
		})
		pos = s.end
	}
	if pos < len(source) {
		segs = append(segs, segment{Text: source[pos:]})
	}
	return segs
}
