package document

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/hootspot/pkg/types"
)

func TestParseEngine(t *testing.T) {
	tests := []struct {
		in      string
		want    Engine
		wantErr bool
	}{
		{"", EnginePDF, false},
		{"pdf", EnginePDF, false},
		{" Chromium ", EngineChromium, false},
		{"wkhtmltopdf", "", true},
	}
	for _, tt := range tests {
		got, err := ParseEngine(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestParsePaper(t *testing.T) {
	p, err := ParsePaper("letter")
	require.NoError(t, err)
	assert.Equal(t, PaperLetter, p)

	p, err = ParsePaper("")
	require.NoError(t, err)
	assert.Equal(t, PaperA4, p)

	_, err = ParsePaper("A3")
	assert.Error(t, err)
}

func TestNewBuilder(t *testing.T) {
	b, err := NewBuilder(Options{})
	require.NoError(t, err)
	assert.IsType(t, &PDFBuilder{}, b)

	b, err = NewBuilder(Options{Engine: EngineChromium})
	require.NoError(t, err)
	assert.IsType(t, &ChromiumBuilder{}, b)
	assert.NoError(t, b.Close(), "closing an unstarted browser is a no-op")

	_, err = NewBuilder(Options{Engine: "laser"})
	assert.Error(t, err)
}

func TestPrepare_Checkpoints(t *testing.T) {
	req := sampleRequest()
	req.HighlightData = []byte(`42`)
	bad := "not a uri"
	req.ChartImage = &bad
	req.Rebuttal = nil
	trail := types.NewTrail()

	c, err := prepare(req, fixedNow(), trail)
	require.NoError(t, err)
	assert.Nil(t, c.Chart)
	assert.Empty(t, c.Highlights)
	assert.Equal(t, "2025-03-14 09:30 UTC", c.GeneratedOn)
	assert.Equal(t, []string{
		CheckpointLabelsResolved,
		CheckpointAnalysisParsed,
		CheckpointHighlightsInvalid,
		CheckpointChartInvalid,
	}, trail.Names())
}

func TestRenderHTML(t *testing.T) {
	req := sampleRequest()
	req.SourceText = "Act now <script>alert(1)</script>"
	req.PatternColorMap["Bad"] = "red;} body { display:none"
	chart := pngDataURI(t)
	req.ChartImage = &chart

	c, err := prepare(req, fixedNow(), types.NopRecorder{})
	require.NoError(t, err)

	html, err := renderHTML(c)
	require.NoError(t, err)

	assert.Contains(t, html, "<title>Rapport</title>")
	assert.Contains(t, html, `<mark style="background-color: #ff6b6b"`)
	assert.Contains(t, html, "&lt;script&gt;", "source text is escaped")
	assert.NotContains(t, html, "<script>")
	assert.NotContains(t, html, "display:none", "invalid colors never reach CSS")
	assert.Contains(t, html, `src="data:image/png;base64,`)
	assert.Contains(t, html, "Invents a deadline.", "markup stripped from findings")
	assert.True(t, strings.Count(html, `class="finding"`) == 1)
}
