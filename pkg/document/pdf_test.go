package document

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/hootspot/pkg/types"
)

var fixedNow = func() time.Time { return time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC) }

func sampleRequest() *types.ExportRequest {
	rebuttal := "The offer has no deadline."
	return &types.ExportRequest{
		Analysis: json.RawMessage(`{
			"summary": "Pressure tactics detected.",
			"findings": [
				{"pattern_name": "False Urgency", "category": "Pressure", "explanation": "Invents a <b>deadline</b>.", "specific_quote": "Act now"}
			]
		}`),
		SourceText:      "Act now, this “exclusive” deal ends tonight!",
		HighlightData:   json.RawMessage(`{"Act now": ["False Urgency"]}`),
		PatternColorMap: map[string]string{"False Urgency": "#ff6b6b"},
		Translations:    map[string]string{LabelReportTitle: "Rapport"},
		Rebuttal:        &rebuttal,
	}
}

func newTestPDFBuilder(paper Paper) *PDFBuilder {
	return NewPDFBuilder(Options{Paper: paper, Now: fixedNow})
}

func pageCount(t *testing.T, pdf []byte) int {
	t.Helper()
	n, err := api.PageCount(bytes.NewReader(pdf), model.NewDefaultConfiguration())
	require.NoError(t, err)
	return n
}

func TestPDFBuilder_Build(t *testing.T) {
	b := newTestPDFBuilder(PaperA4)
	trail := types.NewTrail()

	pdf, err := b.Build(context.Background(), sampleRequest(), trail)
	require.NoError(t, err)
	require.NotEmpty(t, pdf)
	assert.True(t, bytes.HasPrefix(pdf, []byte("%PDF")))
	assert.Equal(t, 1, pageCount(t, pdf))

	assert.Equal(t, []string{
		CheckpointLabelsResolved,
		CheckpointAnalysisParsed,
		CheckpointHighlightsParsed,
		CheckpointChartSkipped,
		CheckpointRebuttalIncluded,
		CheckpointLayoutBuilt,
		CheckpointDocumentRendered,
		CheckpointDocumentValidated,
	}, trail.Names())
}

func TestPDFBuilder_NullChartSkipped(t *testing.T) {
	req := sampleRequest()
	req.ChartImage = nil
	trail := types.NewTrail()

	pdf, err := newTestPDFBuilder(PaperA4).Build(context.Background(), req, trail)
	require.NoError(t, err)
	assert.NotEmpty(t, pdf)
	assert.Contains(t, trail.Names(), CheckpointChartSkipped)
	assert.NotContains(t, trail.Names(), CheckpointChartEmbedded)
}

func TestPDFBuilder_ChartOnOwnPage(t *testing.T) {
	req := sampleRequest()
	chart := pngDataURI(t)
	req.ChartImage = &chart
	trail := types.NewTrail()

	pdf, err := newTestPDFBuilder(PaperLetter).Build(context.Background(), req, trail)
	require.NoError(t, err)
	assert.Equal(t, 2, pageCount(t, pdf))

	var embedded *types.Checkpoint
	for _, cp := range trail.Checkpoints() {
		if cp.Name == CheckpointChartEmbedded {
			cp := cp
			embedded = &cp
		}
	}
	require.NotNil(t, embedded)
	assert.Equal(t, "image/png", embedded.Detail["type"])
	assert.Equal(t, 2, embedded.Detail["page"])
}

func TestPDFBuilder_InvalidChartIsSkipped(t *testing.T) {
	req := sampleRequest()
	bad := "data:image/png;base64,bm90IGFuIGltYWdl"
	req.ChartImage = &bad
	trail := types.NewTrail()

	pdf, err := newTestPDFBuilder(PaperA4).Build(context.Background(), req, trail)
	require.NoError(t, err)
	assert.Equal(t, 1, pageCount(t, pdf))
	assert.Contains(t, trail.Names(), CheckpointChartInvalid)
}

func TestPDFBuilder_Paginates(t *testing.T) {
	req := sampleRequest()
	req.SourceText = strings.Repeat("Only today, everyone agrees this is the best deal you will ever see.\n", 150)

	pdf, err := newTestPDFBuilder(PaperA4).Build(context.Background(), req, types.NewTrail())
	require.NoError(t, err)
	assert.Greater(t, pageCount(t, pdf), 1)
}

func TestPDFBuilder_RawAnalysisFallback(t *testing.T) {
	req := sampleRequest()
	req.Analysis = json.RawMessage(`{"categories":{"pressure":["False Urgency"]}}`)

	pdf, err := newTestPDFBuilder(PaperA4).Build(context.Background(), req, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, pdf)
}

func TestPDFBuilder_Errors(t *testing.T) {
	t.Run("unreadable analysis", func(t *testing.T) {
		req := sampleRequest()
		req.Analysis = json.RawMessage(`{broken`)
		trail := types.NewTrail()

		_, err := newTestPDFBuilder(PaperA4).Build(context.Background(), req, trail)
		require.Error(t, err)
		assert.Equal(t, []string{CheckpointLabelsResolved}, trail.Names())
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := newTestPDFBuilder(PaperA4).Build(ctx, sampleRequest(), nil)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("nil request", func(t *testing.T) {
		_, err := newTestPDFBuilder(PaperA4).Build(context.Background(), nil, nil)
		assert.Error(t, err)
	})
}

func TestPageLayout_Finish(t *testing.T) {
	l := newPageLayout(PaperA4)
	c, err := prepare(sampleRequest(), fixedNow(), types.NopRecorder{})
	require.NoError(t, err)
	c.Chart = &chartImage{MediaType: "image/png"}

	l.writeContent(c)
	pages := l.finish(true)

	require.Equal(t, 1, pages)
	require.NotNil(t, l.chartRef)
	assert.Equal(t, "see page 2", l.chartRef.Value)

	first := l.doc.Pages["1"].Content.Text
	assert.Equal(t, "1 / 2", first[len(first)-1].Value)
	assert.Equal(t, "Rapport", first[0].Value)
	assert.Equal(t, "Helvetica-Bold", first[0].Font.Name)
}
