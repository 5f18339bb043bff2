package document

// Label keys accepted in ExportRequest.Translations.
const (
	LabelReportTitle     = "reportTitle"
	LabelGeneratedOn     = "generatedOn"
	LabelSummaryTitle    = "summaryTitle"
	LabelSourceTextTitle = "sourceTextTitle"
	LabelHighlightsTitle = "highlightsTitle"
	LabelFindingsTitle   = "findingsTitle"
	LabelNoFindings      = "noFindings"
	LabelCategory        = "category"
	LabelLegendTitle     = "legendTitle"
	LabelChartTitle      = "chartTitle"
	LabelChartOnPage     = "chartOnPage"
	LabelRebuttalTitle   = "rebuttalTitle"
)

var defaultLabels = map[string]string{
	LabelReportTitle:     "HootSpot Analysis Report",
	LabelGeneratedOn:     "Generated on",
	LabelSummaryTitle:    "Summary",
	LabelSourceTextTitle: "Analyzed Text",
	LabelHighlightsTitle: "Highlighted Passages",
	LabelFindingsTitle:   "Detected Patterns",
	LabelNoFindings:      "No manipulation patterns were detected.",
	LabelCategory:        "Category",
	LabelLegendTitle:     "Pattern Colors",
	LabelChartTitle:      "Pattern Chart",
	LabelChartOnPage:     "see page",
	LabelRebuttalTitle:   "Rebuttal",
}

// labels resolves document headings, preferring caller translations.
type labels map[string]string

func newLabels(translations map[string]string) labels {
	l := make(labels, len(defaultLabels))
	for k, v := range defaultLabels {
		l[k] = v
	}
	for k, v := range translations {
		if _, known := defaultLabels[k]; known && v != "" {
			l[k] = v
		}
	}
	return l
}

func (l labels) get(key string) string {
	return l[key]
}
