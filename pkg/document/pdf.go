package document

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	pdftypes "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/entrhq/hootspot/pkg/types"
)

// Typography for the pdf engine, in points.
const (
	pageMargin    = 50.0
	lineSpacing   = 1.4
	titleSize     = 18
	headingSize   = 13
	subheadSize   = 11
	bodySize      = 10
	smallSize     = 8
	avgGlyphWidth = 0.55 // of the font size, Helvetica average
	monoGlyph     = 0.6  // Courier
	chartScale    = 0.8
)

const (
	fontRegular = "Helvetica"
	fontBold    = "Helvetica-Bold"
	fontItalic  = "Helvetica-Oblique"
	fontMono    = "Courier"
)

var disableConfigDir sync.Once

// PDFBuilder renders documents with pdfcpu using only the standard PDF fonts.
type PDFBuilder struct {
	opts Options
	conf *model.Configuration
}

// NewPDFBuilder creates a pdfcpu builder. pdfcpu's user config directory
// is disabled so builds do not touch the filesystem.
func NewPDFBuilder(opts Options) *PDFBuilder {
	disableConfigDir.Do(api.DisableConfigDir)
	opts = opts.withDefaults()
	return &PDFBuilder{
		opts: opts,
		conf: model.NewDefaultConfiguration(),
	}
}

// Close implements Builder. The pdf engine holds no resources.
func (b *PDFBuilder) Close() error { return nil }

// Build implements Builder.
func (b *PDFBuilder) Build(ctx context.Context, req *types.ExportRequest, rec types.Recorder) ([]byte, error) {
	if rec == nil {
		rec = types.NopRecorder{}
	}

	c, err := prepare(req, b.opts.Now(), rec)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	layout := newPageLayout(b.opts.Paper)
	layout.writeContent(c)
	textPages := layout.finish(c.Chart != nil)
	rec.Record(CheckpointLayoutBuilt, map[string]interface{}{
		"pages": textPages,
		"lines": layout.lineCount,
	})

	layoutJSON, err := json.Marshal(layout.doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode page layout: %w", err)
	}

	var doc bytes.Buffer
	if err := api.Create(nil, bytes.NewReader(layoutJSON), &doc, b.conf); err != nil {
		return nil, fmt.Errorf("failed to render pages: %w", err)
	}
	rec.Record(CheckpointDocumentRendered, map[string]interface{}{"bytes": doc.Len()})

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := doc.Bytes()
	if c.Chart != nil {
		out, err = b.appendChart(out, c.Chart)
		if err != nil {
			return nil, err
		}
		rec.Record(CheckpointChartEmbedded, map[string]interface{}{
			"type":   c.Chart.MediaType,
			"width":  c.Chart.Width,
			"height": c.Chart.Height,
			"page":   textPages + 1,
		})
	}

	if err := api.Validate(bytes.NewReader(out), b.conf); err != nil {
		return nil, fmt.Errorf("generated document failed validation: %w", err)
	}
	pages, err := api.PageCount(bytes.NewReader(out), b.conf)
	if err != nil {
		return nil, fmt.Errorf("failed to count pages: %w", err)
	}
	rec.Record(CheckpointDocumentValidated, map[string]interface{}{
		"pages": pages,
		"bytes": len(out),
	})

	return out, nil
}

func (b *PDFBuilder) appendChart(doc []byte, chart *chartImage) ([]byte, error) {
	imp := pdfcpu.DefaultImportConfig()
	if dim, ok := pdftypes.PaperSize[string(b.opts.Paper)]; ok {
		imp.PageDim = dim
		imp.PageSize = string(b.opts.Paper)
	}
	imp.Pos = pdftypes.Center
	imp.Scale = chartScale

	var out bytes.Buffer
	imgs := []io.Reader{bytes.NewReader(chart.Data)}
	if err := api.ImportImages(bytes.NewReader(doc), &out, imgs, imp, b.conf); err != nil {
		return nil, fmt.Errorf("failed to add chart page: %w", err)
	}
	return out.Bytes(), nil
}

// pdfcpu JSON page description, limited to what the report uses.
type layoutDoc struct {
	Paper string                 `json:"paper"`
	Pages map[string]*layoutPage `json:"pages"`
}

type layoutPage struct {
	Content layoutContent `json:"content"`
}

type layoutContent struct {
	Text []*layoutText `json:"text"`
}

type layoutText struct {
	Value string     `json:"value"`
	Pos   [2]float64 `json:"pos"`
	Font  layoutFont `json:"font"`
}

type layoutFont struct {
	Name string `json:"name"`
	Size int    `json:"size"`
}

// pageLayout flows lines top to bottom, starting a new page when the
// bottom margin is reached.
type pageLayout struct {
	doc           *layoutDoc
	width, height float64
	page          *layoutPage
	pageNo        int
	y             float64
	lineCount     int

	// chartRef is filled in once the number of text pages is known.
	chartRef      *layoutText
	chartRefLabel string
}

func newPageLayout(paper Paper) *pageLayout {
	w, h := paper.size()
	l := &pageLayout{
		doc:    &layoutDoc{Paper: string(paper), Pages: map[string]*layoutPage{}},
		width:  w,
		height: h,
	}
	l.newPage()
	return l
}

func (l *pageLayout) newPage() {
	l.pageNo++
	l.page = &layoutPage{}
	l.doc.Pages[strconv.Itoa(l.pageNo)] = l.page
	l.y = l.height - pageMargin
}

func (l *pageLayout) line(value, font string, size int) *layoutText {
	advance := float64(size) * lineSpacing
	if l.y-advance < pageMargin+smallSize*lineSpacing {
		l.newPage()
	}
	l.y -= advance
	l.lineCount++
	if value == "" {
		return nil
	}
	t := &layoutText{
		Value: value,
		Pos:   [2]float64{pageMargin, l.y},
		Font:  layoutFont{Name: font, Size: size},
	}
	l.page.Content.Text = append(l.page.Content.Text, t)
	return t
}

func (l *pageLayout) gap(size int) {
	l.y -= float64(size) * 0.6
}

// paragraph normalises s and writes it wrapped to the text width.
func (l *pageLayout) paragraph(s, font string, size int) {
	glyph := avgGlyphWidth
	if font == fontMono {
		glyph = monoGlyph
	}
	width := int((l.width - 2*pageMargin) / (float64(size) * glyph))
	for _, ln := range wrapText(plainText(s), width) {
		l.line(ln, font, size)
	}
}

func (l *pageLayout) heading(s string) {
	l.gap(headingSize)
	l.paragraph(s, fontBold, headingSize)
	l.gap(bodySize)
}

func (l *pageLayout) writeContent(c *content) {
	l.paragraph(c.Labels.get(LabelReportTitle), fontBold, titleSize)
	l.paragraph(c.Labels.get(LabelGeneratedOn)+": "+c.GeneratedOn, fontRegular, smallSize)

	if c.Analysis.Summary != "" {
		l.heading(c.Labels.get(LabelSummaryTitle))
		l.paragraph(c.Analysis.Summary, fontRegular, bodySize)
	}

	l.heading(c.Labels.get(LabelFindingsTitle))
	switch {
	case len(c.Analysis.Findings) > 0:
		for i, f := range c.Analysis.Findings {
			title := fmt.Sprintf("%d. %s", i+1, f.Pattern)
			l.paragraph(title, fontBold, subheadSize)
			if f.Category != "" {
				l.paragraph(c.Labels.get(LabelCategory)+": "+f.Category, fontItalic, bodySize)
			}
			if f.Explanation != "" {
				l.paragraph(f.Explanation, fontRegular, bodySize)
			}
			for _, q := range f.Quotes {
				l.paragraph(`"`+q+`"`, fontItalic, bodySize)
			}
			l.gap(bodySize)
		}
	case c.Analysis.Raw != "":
		l.paragraph(c.Analysis.Raw, fontMono, smallSize)
	default:
		l.paragraph(c.Labels.get(LabelNoFindings), fontRegular, bodySize)
	}

	l.heading(c.Labels.get(LabelSourceTextTitle))
	l.paragraph(c.Source, fontRegular, bodySize)

	if len(c.Highlights) > 0 {
		l.heading(c.Labels.get(LabelHighlightsTitle))
		for _, h := range c.Highlights {
			entry := `* "` + h.Text + `"`
			if len(h.Patterns) > 0 {
				entry += " [" + strings.Join(h.Patterns, ", ") + "]"
			}
			l.paragraph(entry, fontRegular, bodySize)
		}
	}

	if len(c.Legend) > 0 {
		l.heading(c.Labels.get(LabelLegendTitle))
		for _, e := range c.Legend {
			l.paragraph(e.Pattern+": "+e.Color, fontRegular, bodySize)
		}
	}

	if c.Chart != nil {
		l.heading(c.Labels.get(LabelChartTitle))
		l.chartRefLabel = c.Labels.get(LabelChartOnPage)
		l.chartRef = l.line(l.chartRefLabel, fontRegular, bodySize)
	}

	if c.Rebuttal != "" {
		l.heading(c.Labels.get(LabelRebuttalTitle))
		l.paragraph(c.Rebuttal, fontRegular, bodySize)
	}
}

// finish stamps page numbers and the chart reference and returns the
// number of text pages.
func (l *pageLayout) finish(withChart bool) int {
	total := l.pageNo
	if withChart {
		total++
	}
	if l.chartRef != nil {
		l.chartRef.Value = toCoreFontText(fmt.Sprintf("%s %d", l.chartRefLabel, l.pageNo+1))
	}
	for n := 1; n <= l.pageNo; n++ {
		p := l.doc.Pages[strconv.Itoa(n)]
		p.Content.Text = append(p.Content.Text, &layoutText{
			Value: fmt.Sprintf("%d / %d", n, total),
			Pos:   [2]float64{l.width - pageMargin - 30, pageMargin / 2},
			Font:  layoutFont{Name: fontRegular, Size: smallSize},
		})
	}
	return l.pageNo
}
