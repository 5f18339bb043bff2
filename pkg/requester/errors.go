package requester

import (
	"fmt"

	"github.com/entrhq/hootspot/pkg/types"
)

// ExportError is returned by RequestExport when the renderer replied with a
// crash report.
type ExportError struct {
	// Message is the renderer's error message.
	Message string

	// Diagnostics are the checkpoints the renderer recorded before failing,
	// in order.
	Diagnostics []types.Checkpoint
}

func newExportError(report *types.CrashReport) *ExportError {
	if report == nil {
		return &ExportError{Message: "renderer sent an empty crash report"}
	}
	return &ExportError{
		Message:     report.ErrorMessage,
		Diagnostics: append([]types.Checkpoint(nil), report.Logs...),
	}
}

// Error implements error.
func (e *ExportError) Error() string {
	return fmt.Sprintf("pdf export failed: %s", e.Message)
}

// DiagnosticLines renders the diagnostics one per line for display.
func (e *ExportError) DiagnosticLines() []string {
	lines := make([]string, len(e.Diagnostics))
	for i, cp := range e.Diagnostics {
		lines[i] = cp.String()
	}
	return lines
}
