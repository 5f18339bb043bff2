// Package renderer implements the isolated side of the export handshake: it
// receives GENERATE_PDF envelopes, builds the document and replies exactly
// once with either the document or a crash report.
package renderer

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/entrhq/hootspot/pkg/logging"
	"github.com/entrhq/hootspot/pkg/security/origin"
	"github.com/entrhq/hootspot/pkg/transport"
	"github.com/entrhq/hootspot/pkg/types"
)

// Checkpoint names recorded by the handler. Builders add their own in between
// CheckpointConstructionStarted and CheckpointConstructionFinished.
const (
	CheckpointMessageReceived      = "message_received"
	CheckpointField                = "field"
	CheckpointValidationPassed     = "validation_passed"
	CheckpointValidationFailed     = "validation_failed"
	CheckpointConstructionStarted  = "construction_started"
	CheckpointConstructionFinished = "construction_finished"
)

// Builder turns an export request into a binary document.
type Builder interface {
	Build(ctx context.Context, req *types.ExportRequest, rec types.Recorder) ([]byte, error)
}

// BuilderFunc adapts a function to Builder.
type BuilderFunc func(ctx context.Context, req *types.ExportRequest, rec types.Recorder) ([]byte, error)

// Build implements Builder.
func (f BuilderFunc) Build(ctx context.Context, req *types.ExportRequest, rec types.Recorder) ([]byte, error) {
	return f(ctx, req, rec)
}

// ReplyFunc sends a reply envelope back to the context that sent the request.
type ReplyFunc func(ctx context.Context, env *types.Envelope) error

// Handler processes export requests. It holds no state between requests
// other than the state of the one currently in flight.
type Handler struct {
	builder Builder
	allowed origin.Matcher
	logger  *logging.Logger

	mu    sync.Mutex
	state State
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithLogger sets the handler's logger.
func WithLogger(logger *logging.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = logger
	}
}

// NewHandler creates a handler that accepts requests from origins allowed
// by allowed and builds documents with builder.
func NewHandler(builder Builder, allowed origin.Matcher, opts ...HandlerOption) *Handler {
	h := &Handler{
		builder: builder,
		allowed: allowed,
		state:   StateIdle,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// State returns the handler's current state.
func (h *Handler) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

func (h *Handler) setState(s State) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = s
}

// Accepts reports whether msg is an export request from a trusted origin.
// Everything else is unrelated traffic.
func (h *Handler) Accepts(msg transport.Message) bool {
	if h.allowed == nil || !h.allowed.Allows(msg.Origin) {
		return false
	}
	return msg.Envelope != nil && msg.Envelope.Type == types.MessageTypeGeneratePDF
}

// Handle processes msg. It returns false, without replying, when msg is not
// an export request from a trusted origin. Otherwise it replies exactly once
// through reply and returns true.
func (h *Handler) Handle(ctx context.Context, msg transport.Message, reply ReplyFunc) bool {
	if !h.Accepts(msg) {
		if msg.Envelope != nil {
			h.logger.Debugf("ignoring %q from %s", msg.Envelope.Type, msg.Origin)
		}
		return false
	}

	ex := &exchange{
		correlationID: msg.Envelope.CorrelationID,
		trail:         types.NewTrail(),
		reply:         reply,
		logger:        h.logger,
	}
	defer h.setState(StateIdle)

	h.setState(StateValidating)
	ex.trail.Record(CheckpointMessageReceived, map[string]interface{}{
		"origin":        msg.Origin,
		"correlationId": ex.correlationID,
	})

	req := msg.Envelope.Data
	recordFields(ex.trail, req)

	if missing := req.MissingRequired(); missing != "" {
		ex.trail.Record(CheckpointValidationFailed, map[string]interface{}{"field": missing})
		h.setState(StateRepliedFailure)
		ex.fail(ctx, fmt.Sprintf("missing required field: %s", missing))
		return true
	}
	ex.trail.Record(CheckpointValidationPassed, nil)

	h.setState(StateConstructing)
	blob, err := h.construct(ctx, req, ex.trail)
	if err != nil {
		// The crash report carries exactly what was recorded before the failure.
		h.logger.Warnf("construction failed for request %s: %v", ex.correlationID, err)
		h.setState(StateRepliedFailure)
		ex.fail(ctx, err.Error())
		return true
	}

	ex.trail.Record(CheckpointConstructionFinished, map[string]interface{}{"bytes": len(blob)})
	h.setState(StateRepliedSuccess)
	ex.succeed(ctx, blob)
	return true
}

// construct runs the builder, converting panics into errors so a faulty
// builder still produces a crash report.
func (h *Handler) construct(ctx context.Context, req *types.ExportRequest, trail *types.Trail) (blob []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Errorf("document builder panicked: %v\n%s", r, debug.Stack())
			blob = nil
			err = fmt.Errorf("document builder panicked: %v", r)
		}
	}()

	if h.builder == nil {
		return nil, fmt.Errorf("no document builder configured")
	}

	trail.Record(CheckpointConstructionStarted, nil)
	blob, err = h.builder.Build(ctx, req, trail)
	if err != nil {
		return nil, err
	}
	if len(blob) == 0 {
		return nil, fmt.Errorf("document builder produced an empty document")
	}
	return blob, nil
}

func recordFields(trail *types.Trail, req *types.ExportRequest) {
	present := map[string]bool{}
	if req != nil {
		present[types.FieldAnalysis] = req.HasAnalysis()
		present[types.FieldSourceText] = req.HasSourceText()
		present[types.FieldHighlightData] = req.HasHighlightData()
		present[types.FieldChartImage] = req.HasChartImage()
		present[types.FieldPatternColorMap] = len(req.PatternColorMap) > 0
		present[types.FieldTranslations] = len(req.Translations) > 0
		present[types.FieldRebuttal] = req.HasRebuttal()
	}

	for _, field := range []string{
		types.FieldAnalysis,
		types.FieldSourceText,
		types.FieldHighlightData,
		types.FieldChartImage,
		types.FieldPatternColorMap,
		types.FieldTranslations,
		types.FieldRebuttal,
	} {
		trail.Record(CheckpointField, map[string]interface{}{
			"field":   field,
			"present": present[field],
		})
	}
}

// exchange is one request/reply pair. Its reply is sent at most once.
type exchange struct {
	correlationID string
	trail         *types.Trail
	reply         ReplyFunc
	logger        *logging.Logger
	once          sync.Once
}

func (e *exchange) succeed(ctx context.Context, blob []byte) {
	e.send(ctx, types.NewPDFGeneratedEnvelope(e.correlationID, blob))
}

func (e *exchange) fail(ctx context.Context, message string) {
	e.send(ctx, types.NewCrashReportEnvelope(e.correlationID, message, e.trail.Checkpoints()))
}

func (e *exchange) send(ctx context.Context, env *types.Envelope) {
	e.once.Do(func() {
		if e.reply == nil {
			e.logger.Errorf("no reply channel for request %s", e.correlationID)
			return
		}
		if err := e.reply(ctx, env); err != nil {
			// Nothing else can be done: the requester is gone.
			e.logger.Errorf("failed to deliver %s for request %s: %v", env.Type, e.correlationID, err)
		}
	})
}
