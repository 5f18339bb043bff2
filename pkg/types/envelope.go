package types

// MessageType is the discriminant tag carried by every envelope exchanged
// between the requester and the renderer.
type MessageType string

const (
	MessageTypeGeneratePDF    MessageType = "GENERATE_PDF"      // MessageTypeGeneratePDF asks the renderer to build a document.
	MessageTypePDFGenerated   MessageType = "PDF_GENERATED"     // MessageTypePDFGenerated carries the finished document.
	MessageTypePDFCrashReport MessageType = "PDF_CRASH_REPORT"  // MessageTypePDFCrashReport carries a failure and its checkpoints.
	MessageTypeSandboxReady   MessageType = "PDF_SANDBOX_READY" // MessageTypeSandboxReady is sent once by the renderer after it starts listening.
)

// Known reports whether t is one of the tags this protocol understands.
func (t MessageType) Known() bool {
	switch t {
	case MessageTypeGeneratePDF, MessageTypePDFGenerated, MessageTypePDFCrashReport, MessageTypeSandboxReady:
		return true
	default:
		return false
	}
}

// Envelope is a tagged message. Exactly one of Data, Blob or Payload is
// meaningful, depending on Type.
//
// The sender's origin is not part of the envelope. The transport attaches it
// on receipt, so a payload cannot claim another origin.
type Envelope struct {
	// Type is the discriminant and must be checked before anything else.
	Type MessageType `json:"type"`

	// CorrelationID ties a reply to the request that caused it.
	// Empty for the readiness signal.
	CorrelationID string `json:"correlationId,omitempty"`

	// Data is the export request (GENERATE_PDF).
	Data *ExportRequest `json:"data,omitempty"`

	// Blob is the rendered document (PDF_GENERATED).
	Blob []byte `json:"blob,omitempty"`

	// Payload is the crash report (PDF_CRASH_REPORT).
	Payload *CrashReport `json:"payload,omitempty"`
}

// CrashReport is the failure variant of an export result.
type CrashReport struct {
	ErrorMessage string       `json:"errorMessage"`
	Logs         []Checkpoint `json:"logs"`
}

// NewGeneratePDFEnvelope creates an export request envelope.
func NewGeneratePDFEnvelope(correlationID string, req *ExportRequest) *Envelope {
	return &Envelope{
		Type:          MessageTypeGeneratePDF,
		CorrelationID: correlationID,
		Data:          req,
	}
}

// NewPDFGeneratedEnvelope creates a success reply envelope.
func NewPDFGeneratedEnvelope(correlationID string, blob []byte) *Envelope {
	return &Envelope{
		Type:          MessageTypePDFGenerated,
		CorrelationID: correlationID,
		Blob:          blob,
	}
}

// NewCrashReportEnvelope creates a failure reply envelope. The checkpoints
// are copied so later recording cannot alter a report already sent.
func NewCrashReportEnvelope(correlationID, errorMessage string, logs []Checkpoint) *Envelope {
	copied := make([]Checkpoint, len(logs))
	copy(copied, logs)
	return &Envelope{
		Type:          MessageTypePDFCrashReport,
		CorrelationID: correlationID,
		Payload: &CrashReport{
			ErrorMessage: errorMessage,
			Logs:         copied,
		},
	}
}

// NewSandboxReadyEnvelope creates the renderer readiness signal.
func NewSandboxReadyEnvelope() *Envelope {
	return &Envelope{Type: MessageTypeSandboxReady}
}

// ExportResult is the requester's view of a reply: either Blob is set
// (success) or Failure is (crash report).
type ExportResult struct {
	Blob    []byte
	Failure *CrashReport
}

// Succeeded reports whether the result carries a document.
func (r *ExportResult) Succeeded() bool {
	return r.Failure == nil
}

// ResultFromEnvelope converts a reply envelope into an ExportResult.
// It returns false for envelopes that are not replies.
func ResultFromEnvelope(env *Envelope) (*ExportResult, bool) {
	if env == nil {
		return nil, false
	}
	switch env.Type {
	case MessageTypePDFGenerated:
		return &ExportResult{Blob: env.Blob}, true
	case MessageTypePDFCrashReport:
		report := env.Payload
		if report == nil {
			report = &CrashReport{ErrorMessage: "renderer sent an empty crash report"}
		}
		return &ExportResult{Failure: report}, true
	default:
		return nil, false
	}
}
