package renderer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/hootspot/pkg/security/origin"
	"github.com/entrhq/hootspot/pkg/transport"
	"github.com/entrhq/hootspot/pkg/types"
)

const requesterOrigin = "chrome-extension://panel"

// replyRecorder captures replies for testing
type replyRecorder struct {
	mu      sync.Mutex
	replies []*types.Envelope
}

func (r *replyRecorder) reply(_ context.Context, env *types.Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replies = append(r.replies, env)
	return nil
}

func (r *replyRecorder) all() []*types.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*types.Envelope{}, r.replies...)
}

func validRequest() *types.ExportRequest {
	return &types.ExportRequest{
		Analysis:        json.RawMessage(`{"findings":[]}`),
		SourceText:      "hello",
		HighlightData:   json.RawMessage(`{}`),
		PatternColorMap: map[string]string{},
	}
}

func requestMessage(from string, req *types.ExportRequest) transport.Message {
	return transport.Message{
		Origin:   from,
		Envelope: types.NewGeneratePDFEnvelope("corr-1", req),
	}
}

func staticBuilder(blob []byte) Builder {
	return BuilderFunc(func(context.Context, *types.ExportRequest, types.Recorder) ([]byte, error) {
		return blob, nil
	})
}

func newTestHandler(t *testing.T, b Builder) *Handler {
	t.Helper()
	allowed, err := origin.NewExact(requesterOrigin)
	require.NoError(t, err)
	return NewHandler(b, allowed)
}

func TestHandler_Success(t *testing.T) {
	h := newTestHandler(t, staticBuilder([]byte("%PDF-1.7")))
	rec := &replyRecorder{}

	handled := h.Handle(context.Background(), requestMessage(requesterOrigin, validRequest()), rec.reply)
	require.True(t, handled)

	replies := rec.all()
	require.Len(t, replies, 1)
	assert.Equal(t, types.MessageTypePDFGenerated, replies[0].Type)
	assert.Equal(t, "corr-1", replies[0].CorrelationID)
	assert.Equal(t, []byte("%PDF-1.7"), replies[0].Blob)
	assert.Equal(t, StateIdle, h.State())
}

func TestHandler_IgnoresForeignOrigin(t *testing.T) {
	called := false
	h := newTestHandler(t, BuilderFunc(func(context.Context, *types.ExportRequest, types.Recorder) ([]byte, error) {
		called = true
		return []byte("x"), nil
	}))
	rec := &replyRecorder{}

	handled := h.Handle(context.Background(), requestMessage("https://evil.example", validRequest()), rec.reply)

	assert.False(t, handled)
	assert.False(t, called, "builder must not run for untrusted origins")
	assert.Empty(t, rec.all())
}

func TestHandler_IgnoresUnknownAndReplyTags(t *testing.T) {
	h := newTestHandler(t, staticBuilder([]byte("x")))
	rec := &replyRecorder{}

	tags := []types.MessageType{
		"SOMETHING_ELSE",
		types.MessageTypePDFGenerated,
		types.MessageTypePDFCrashReport,
		types.MessageTypeSandboxReady,
	}
	for _, tag := range tags {
		msg := transport.Message{Origin: requesterOrigin, Envelope: &types.Envelope{Type: tag, Data: validRequest()}}
		assert.False(t, h.Handle(context.Background(), msg, rec.reply), "tag %s", tag)
	}

	assert.False(t, h.Handle(context.Background(), transport.Message{Origin: requesterOrigin}, rec.reply))
	assert.Empty(t, rec.all())
	assert.Equal(t, StateIdle, h.State())
}

func TestHandler_MissingFields(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*types.ExportRequest)
		message string
	}{
		{
			name:    "source text omitted",
			mutate:  func(r *types.ExportRequest) { r.SourceText = "" },
			message: "missing required field: sourceText",
		},
		{
			name:    "analysis omitted",
			mutate:  func(r *types.ExportRequest) { r.Analysis = nil },
			message: "missing required field: analysis",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			built := false
			h := newTestHandler(t, BuilderFunc(func(context.Context, *types.ExportRequest, types.Recorder) ([]byte, error) {
				built = true
				return []byte("x"), nil
			}))
			rec := &replyRecorder{}

			req := validRequest()
			tt.mutate(req)
			require.True(t, h.Handle(context.Background(), requestMessage(requesterOrigin, req), rec.reply))

			replies := rec.all()
			require.Len(t, replies, 1)
			assert.Equal(t, types.MessageTypePDFCrashReport, replies[0].Type)
			assert.Equal(t, tt.message, replies[0].Payload.ErrorMessage)
			assert.False(t, built)

			logs := replies[0].Payload.Logs
			require.NotEmpty(t, logs)
			assert.Equal(t, CheckpointValidationFailed, logs[len(logs)-1].Name)
		})
	}
}

func TestHandler_NilPayload(t *testing.T) {
	h := newTestHandler(t, staticBuilder([]byte("x")))
	rec := &replyRecorder{}

	msg := transport.Message{Origin: requesterOrigin, Envelope: &types.Envelope{Type: types.MessageTypeGeneratePDF, CorrelationID: "c"}}
	require.True(t, h.Handle(context.Background(), msg, rec.reply))

	replies := rec.all()
	require.Len(t, replies, 1)
	assert.Equal(t, "missing required field: analysis", replies[0].Payload.ErrorMessage)
}

func TestHandler_DiagnosticsOnFailure(t *testing.T) {
	var recorded []string
	h := newTestHandler(t, BuilderFunc(func(_ context.Context, _ *types.ExportRequest, rec types.Recorder) ([]byte, error) {
		rec.Record("layout_started", nil)
		rec.Record("page_added", map[string]interface{}{"page": 1})
		return nil, errors.New("font table corrupt")
	}))
	rec := &replyRecorder{}

	require.True(t, h.Handle(context.Background(), requestMessage(requesterOrigin, validRequest()), rec.reply))

	replies := rec.all()
	require.Len(t, replies, 1)
	report := replies[0].Payload
	require.NotNil(t, report)
	assert.Equal(t, "font table corrupt", report.ErrorMessage)

	for _, cp := range report.Logs {
		recorded = append(recorded, cp.Name)
	}

	// message_received, 7 field checkpoints, validation_passed,
	// construction_started, then the builder's two. Nothing after.
	expected := []string{CheckpointMessageReceived}
	for i := 0; i < 7; i++ {
		expected = append(expected, CheckpointField)
	}
	expected = append(expected,
		CheckpointValidationPassed,
		CheckpointConstructionStarted,
		"layout_started",
		"page_added",
	)
	assert.Equal(t, expected, recorded)
	assert.Equal(t, 1, report.Logs[len(report.Logs)-1].Detail["page"])
}

func TestHandler_FieldCheckpoints(t *testing.T) {
	rebuttal := "Not so."
	var logs []types.Checkpoint
	h := newTestHandler(t, BuilderFunc(func(context.Context, *types.ExportRequest, types.Recorder) ([]byte, error) {
		return nil, errors.New("stop")
	}))
	rec := &replyRecorder{}

	req := validRequest()
	req.Rebuttal = &rebuttal
	require.True(t, h.Handle(context.Background(), requestMessage(requesterOrigin, req), rec.reply))
	logs = rec.all()[0].Payload.Logs

	present := map[string]bool{}
	for _, cp := range logs {
		if cp.Name == CheckpointField {
			present[cp.Detail["field"].(string)] = cp.Detail["present"].(bool)
		}
	}

	assert.Equal(t, map[string]bool{
		types.FieldAnalysis:        true,
		types.FieldSourceText:      true,
		types.FieldHighlightData:   true,
		types.FieldChartImage:      false,
		types.FieldPatternColorMap: false,
		types.FieldTranslations:    false,
		types.FieldRebuttal:        true,
	}, present)
}

func TestHandler_BuilderPanicBecomesFailure(t *testing.T) {
	h := newTestHandler(t, BuilderFunc(func(_ context.Context, _ *types.ExportRequest, rec types.Recorder) ([]byte, error) {
		rec.Record("about_to_explode", nil)
		panic("nil image")
	}))
	rec := &replyRecorder{}

	require.NotPanics(t, func() {
		h.Handle(context.Background(), requestMessage(requesterOrigin, validRequest()), rec.reply)
	})

	replies := rec.all()
	require.Len(t, replies, 1)
	assert.Equal(t, types.MessageTypePDFCrashReport, replies[0].Type)
	assert.Contains(t, replies[0].Payload.ErrorMessage, "nil image")

	logs := replies[0].Payload.Logs
	assert.Equal(t, "about_to_explode", logs[len(logs)-1].Name)
	assert.Equal(t, StateIdle, h.State())
}

func TestHandler_EmptyDocumentIsFailure(t *testing.T) {
	h := newTestHandler(t, staticBuilder(nil))
	rec := &replyRecorder{}

	h.Handle(context.Background(), requestMessage(requesterOrigin, validRequest()), rec.reply)

	replies := rec.all()
	require.Len(t, replies, 1)
	assert.Equal(t, types.MessageTypePDFCrashReport, replies[0].Type)
	assert.Contains(t, replies[0].Payload.ErrorMessage, "empty document")
}

func TestHandler_NoBuilder(t *testing.T) {
	h := newTestHandler(t, nil)
	rec := &replyRecorder{}

	h.Handle(context.Background(), requestMessage(requesterOrigin, validRequest()), rec.reply)

	replies := rec.all()
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0].Payload.ErrorMessage, "no document builder")
}

func TestHandler_StateTransitions(t *testing.T) {
	var h *Handler
	var during State
	h = newTestHandler(t, BuilderFunc(func(context.Context, *types.ExportRequest, types.Recorder) ([]byte, error) {
		during = h.State()
		return []byte("x"), nil
	}))

	var atReply State
	h.Handle(context.Background(), requestMessage(requesterOrigin, validRequest()), func(context.Context, *types.Envelope) error {
		atReply = h.State()
		return nil
	})

	assert.Equal(t, StateConstructing, during)
	assert.Equal(t, StateRepliedSuccess, atReply)
	assert.True(t, atReply.Terminal())
	assert.Equal(t, StateIdle, h.State())
}

func TestHandler_ExactlyOneReplyPerRequest(t *testing.T) {
	outcomes := []Builder{
		staticBuilder([]byte("ok")),
		staticBuilder(nil),
		BuilderFunc(func(context.Context, *types.ExportRequest, types.Recorder) ([]byte, error) {
			return nil, errors.New("fail")
		}),
		BuilderFunc(func(context.Context, *types.ExportRequest, types.Recorder) ([]byte, error) {
			panic("boom")
		}),
	}

	for i, b := range outcomes {
		h := newTestHandler(t, b)
		rec := &replyRecorder{}

		for n := 0; n < 3; n++ {
			h.Handle(context.Background(), requestMessage(requesterOrigin, validRequest()), rec.reply)
		}
		assert.Len(t, rec.all(), 3, "builder %d: one reply per request", i)
	}
}

func TestHandler_ReplyErrorIsSwallowed(t *testing.T) {
	h := newTestHandler(t, staticBuilder([]byte("x")))

	calls := 0
	handled := h.Handle(context.Background(), requestMessage(requesterOrigin, validRequest()), func(context.Context, *types.Envelope) error {
		calls++
		return transport.ErrClosed
	})

	assert.True(t, handled)
	assert.Equal(t, 1, calls, "a failed delivery is not retried")
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "validating", StateValidating.String())
	assert.Equal(t, "constructing", StateConstructing.String())
	assert.Equal(t, "replied_success", StateRepliedSuccess.String())
	assert.Equal(t, "replied_failure", StateRepliedFailure.String())
	assert.Equal(t, "unknown", State(42).String())
	assert.False(t, StateConstructing.Terminal())
}
