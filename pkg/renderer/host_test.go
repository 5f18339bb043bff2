package renderer

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/hootspot/pkg/logging"
	"github.com/entrhq/hootspot/pkg/security/origin"
	"github.com/entrhq/hootspot/pkg/transport"
	"github.com/entrhq/hootspot/pkg/types"
)

const sandboxOrigin = "chrome-extension://sandbox"

func nextMessage(t *testing.T, ep transport.Endpoint) transport.Message {
	t.Helper()
	select {
	case msg, ok := <-ep.Messages():
		require.True(t, ok)
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return transport.Message{}
	}
}

func noMessage(t *testing.T, ep transport.Endpoint) {
	t.Helper()
	select {
	case msg := <-ep.Messages():
		t.Fatalf("unexpected message: %+v", msg.Envelope)
	case <-time.After(50 * time.Millisecond):
	}
}

func startHost(t *testing.T, b Builder) (*transport.PipeEnd, *transport.PipeEnd, chan error) {
	t.Helper()

	panel, sandbox, err := transport.NewPipe(requesterOrigin, sandboxOrigin)
	require.NoError(t, err)

	host, err := NewHost(sandbox, newTestHandler(t, b), requesterOrigin, logging.Discard())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- host.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		_ = panel.Close()
		_ = sandbox.Close()
	})
	return panel, sandbox, done
}

func TestHost_AnnouncesReadinessOnce(t *testing.T) {
	panel, _, _ := startHost(t, staticBuilder([]byte("x")))

	msg := nextMessage(t, panel)
	assert.Equal(t, types.MessageTypeSandboxReady, msg.Envelope.Type)
	assert.Equal(t, sandboxOrigin, msg.Origin)

	noMessage(t, panel)
}

func TestHost_RepliesToRequester(t *testing.T) {
	panel, _, _ := startHost(t, staticBuilder([]byte("%PDF")))
	nextMessage(t, panel) // readiness

	req := types.NewGeneratePDFEnvelope("c-42", validRequest())
	require.NoError(t, panel.Post(context.Background(), req, sandboxOrigin))

	reply := nextMessage(t, panel)
	assert.Equal(t, types.MessageTypePDFGenerated, reply.Envelope.Type)
	assert.Equal(t, "c-42", reply.Envelope.CorrelationID)
	assert.Equal(t, []byte("%PDF"), reply.Envelope.Blob)

	noMessage(t, panel)
}

func TestHost_IgnoresForeignTraffic(t *testing.T) {
	panel, sandbox, _ := startHost(t, staticBuilder([]byte("%PDF")))
	nextMessage(t, panel)

	ctx := context.Background()
	require.NoError(t, sandbox.Inject(ctx, transport.Message{
		Origin:   "https://evil.example",
		Envelope: types.NewGeneratePDFEnvelope("evil", validRequest()),
	}))
	require.NoError(t, sandbox.Inject(ctx, transport.Message{
		Origin:   requesterOrigin,
		Envelope: &types.Envelope{Type: "THEME_CHANGED"},
	}))

	noMessage(t, panel)
}

func TestHost_SequentialRequests(t *testing.T) {
	panel, _, _ := startHost(t, staticBuilder([]byte("%PDF")))
	nextMessage(t, panel)

	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, panel.Post(ctx, types.NewGeneratePDFEnvelope(id, validRequest()), sandboxOrigin))
	}

	for _, id := range []string{"a", "b", "c"} {
		reply := nextMessage(t, panel)
		assert.Equal(t, id, reply.Envelope.CorrelationID)
	}
	noMessage(t, panel)
}

func TestHost_FailureReply(t *testing.T) {
	panel, _, _ := startHost(t, BuilderFunc(func(context.Context, *types.ExportRequest, types.Recorder) ([]byte, error) {
		return nil, errors.New("renderer out of memory")
	}))
	nextMessage(t, panel)

	require.NoError(t, panel.Post(context.Background(), types.NewGeneratePDFEnvelope("x", validRequest()), sandboxOrigin))

	reply := nextMessage(t, panel)
	assert.Equal(t, types.MessageTypePDFCrashReport, reply.Envelope.Type)
	assert.Equal(t, "renderer out of memory", reply.Envelope.Payload.ErrorMessage)
}

func TestHost_StopsWhenEndpointCloses(t *testing.T) {
	panel, sandbox, done := startHost(t, staticBuilder([]byte("x")))
	nextMessage(t, panel)

	require.NoError(t, sandbox.Close())

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("host did not stop")
	}
}

func TestNewHost_Validation(t *testing.T) {
	_, sandbox, err := transport.NewPipe(requesterOrigin, sandboxOrigin)
	require.NoError(t, err)
	h := newTestHandler(t, staticBuilder([]byte("x")))

	_, err = NewHost(nil, h, requesterOrigin, nil)
	assert.Error(t, err)

	_, err = NewHost(sandbox, nil, requesterOrigin, nil)
	assert.Error(t, err)

	_, err = NewHost(sandbox, h, "*", nil)
	assert.Error(t, err)
}

func TestServe_HostsEachConnection(t *testing.T) {
	allowed, err := origin.NewAllowlist("chrome-extension://*")
	require.NoError(t, err)

	srv, err := transport.NewServer("http://renderer.local", allowed, logging.Discard())
	require.NoError(t, err)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		_ = Serve(ctx, srv, func() *Handler {
			return NewHandler(staticBuilder([]byte("%PDF")), allowed)
		}, logging.Discard())
	}()

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	rendererOrigin, err := transport.OriginForURL(url)
	require.NoError(t, err)

	client, err := transport.Dial(ctx, url, requesterOrigin, logging.Discard())
	require.NoError(t, err)
	defer client.Close()

	ready := nextMessage(t, client)
	assert.Equal(t, types.MessageTypeSandboxReady, ready.Envelope.Type)

	require.NoError(t, client.Post(ctx, types.NewGeneratePDFEnvelope("ws-1", validRequest()), rendererOrigin))

	reply := nextMessage(t, client)
	assert.Equal(t, types.MessageTypePDFGenerated, reply.Envelope.Type)
	assert.Equal(t, "ws-1", reply.Envelope.CorrelationID)
	assert.Equal(t, []byte("%PDF"), reply.Envelope.Blob)
}
