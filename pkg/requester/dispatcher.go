// Package requester implements the side of the export handshake that owns
// the analysis report: it asks the renderer for a PDF and waits for the
// document or a crash report.
package requester

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/entrhq/hootspot/pkg/logging"
	"github.com/entrhq/hootspot/pkg/security/origin"
	"github.com/entrhq/hootspot/pkg/transport"
	"github.com/entrhq/hootspot/pkg/types"
)

var (
	// ErrDispatcherClosed is returned when the message loop has stopped.
	ErrDispatcherClosed = errors.New("dispatcher closed")

	// ErrInvalidOrigin is returned for an empty or wildcard renderer origin.
	ErrInvalidOrigin = errors.New("renderer origin must be a concrete origin")
)

// Dispatcher sends export requests to a renderer and routes its replies back
// to the waiting callers by correlation id.
type Dispatcher struct {
	endpoint       transport.Endpoint
	rendererOrigin string
	logger         *logging.Logger
	newID          func() string

	pendingExports map[string]*pendingExport
	mu             sync.Mutex

	ready     chan struct{}
	readyOnce sync.Once
	done      chan struct{}
	doneOnce  sync.Once
}

// pendingExport tracks a request that is waiting for the renderer's reply.
type pendingExport struct {
	correlationID string
	result        chan *types.ExportResult
	closeOnce     sync.Once
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the dispatcher's logger.
func WithLogger(logger *logging.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithIDGenerator replaces the uuid correlation id generator.
func WithIDGenerator(gen func() string) Option {
	return func(d *Dispatcher) {
		d.newID = gen
	}
}

// NewDispatcher creates a dispatcher talking over endpoint to the renderer
// at rendererOrigin. Replies from any other origin are ignored.
func NewDispatcher(endpoint transport.Endpoint, rendererOrigin string, opts ...Option) (*Dispatcher, error) {
	if endpoint == nil {
		return nil, fmt.Errorf("an endpoint is required")
	}
	target, err := origin.Normalize(rendererOrigin)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOrigin, err)
	}

	d := &Dispatcher{
		endpoint:       endpoint,
		rendererOrigin: target,
		logger:         logging.Discard(),
		newID:          func() string { return uuid.New().String() },
		pendingExports: make(map[string]*pendingExport),
		ready:          make(chan struct{}),
		done:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Run is the requester's message loop. It returns ctx.Err() when ctx is
// done and nil when the endpoint closes. Waiting requests fail with
// ErrDispatcherClosed once Run returns.
func (d *Dispatcher) Run(ctx context.Context) error {
	defer d.stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case msg, ok := <-d.endpoint.Messages():
			if !ok {
				d.logger.Infof("endpoint closed, dispatcher stopping")
				return nil
			}
			d.handleMessage(msg)
		}
	}
}

// Ready reports whether the renderer has announced readiness.
func (d *Dispatcher) Ready() bool {
	select {
	case <-d.ready:
		return true
	default:
		return false
	}
}

// RequestExport asks the renderer to build a PDF from req and waits for the
// reply. If the renderer has not announced readiness yet the request is
// held until it does.
//
// There is no internal timeout: callers bound the wait with ctx. Abandoning
// the wait does not cancel the work on the renderer; its eventual reply is
// discarded.
func (d *Dispatcher) RequestExport(ctx context.Context, req *types.ExportRequest) ([]byte, error) {
	select {
	case <-d.done:
		return nil, ErrDispatcherClosed
	default:
	}

	correlationID := d.newID()
	result := make(chan *types.ExportResult, 1)
	d.setupPendingExport(correlationID, result)
	defer d.cleanupPendingExport(correlationID)

	if err := d.waitForReady(ctx); err != nil {
		return nil, err
	}

	env := types.NewGeneratePDFEnvelope(correlationID, req)
	if err := d.endpoint.Post(ctx, env, d.rendererOrigin); err != nil {
		return nil, fmt.Errorf("failed to send export request: %w", err)
	}
	d.logger.Debugf("export %s sent to %s", correlationID, d.rendererOrigin)

	return d.waitForResult(ctx, correlationID, result)
}

func (d *Dispatcher) waitForReady(ctx context.Context) error {
	select {
	case <-d.ready:
		return nil
	default:
	}

	d.logger.Debugf("renderer not ready yet, holding request")
	select {
	case <-d.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-d.done:
		return ErrDispatcherClosed
	}
}

func (d *Dispatcher) waitForResult(ctx context.Context, correlationID string, result <-chan *types.ExportResult) ([]byte, error) {
	select {
	case res, ok := <-result:
		if !ok || res == nil {
			return nil, ErrDispatcherClosed
		}
		if res.Succeeded() {
			d.logger.Infof("export %s succeeded (%d bytes)", correlationID, len(res.Blob))
			return res.Blob, nil
		}
		d.logger.Warnf("export %s failed: %s", correlationID, res.Failure.ErrorMessage)
		return nil, newExportError(res.Failure)

	case <-ctx.Done():
		d.logger.Warnf("export %s abandoned: %v", correlationID, ctx.Err())
		return nil, ctx.Err()

	case <-d.done:
		return nil, ErrDispatcherClosed
	}
}

func (d *Dispatcher) handleMessage(msg transport.Message) {
	if msg.Origin != d.rendererOrigin {
		d.logger.Debugf("ignoring message from untrusted origin %q", msg.Origin)
		return
	}
	if msg.Envelope == nil {
		return
	}

	switch msg.Envelope.Type {
	case types.MessageTypeSandboxReady:
		d.readyOnce.Do(func() {
			d.logger.Infof("renderer %s is ready", d.rendererOrigin)
			close(d.ready)
		})

	case types.MessageTypePDFGenerated, types.MessageTypePDFCrashReport:
		result, ok := types.ResultFromEnvelope(msg.Envelope)
		if !ok {
			return
		}
		d.handleResult(msg.Envelope.CorrelationID, result)

	default:
		d.logger.Debugf("ignoring message with tag %q", msg.Envelope.Type)
	}
}

// handleResult delivers result to the request waiting on correlationID.
// Unknown or stale ids are ignored, and a request receives at most one result.
func (d *Dispatcher) handleResult(correlationID string, result *types.ExportResult) {
	d.mu.Lock()
	defer d.mu.Unlock()

	pe, ok := d.pendingExports[correlationID]
	if !ok {
		d.logger.Debugf("ignoring reply for unknown export %q", correlationID)
		return
	}

	select {
	case pe.result <- result:
	default:
		// A result was already delivered.
	}
}

func (d *Dispatcher) setupPendingExport(correlationID string, result chan *types.ExportResult) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.pendingExports[correlationID] = &pendingExport{
		correlationID: correlationID,
		result:        result,
	}
}

// cleanupPendingExport is safe to call more than once.
func (d *Dispatcher) cleanupPendingExport(correlationID string) {
	d.mu.Lock()
	pe, ok := d.pendingExports[correlationID]
	if ok {
		delete(d.pendingExports, correlationID)
	}
	d.mu.Unlock()

	if ok && pe != nil {
		pe.closeOnce.Do(func() {
			close(pe.result)
		})
	}
}

func (d *Dispatcher) pendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pendingExports)
}

func (d *Dispatcher) stop() {
	d.doneOnce.Do(func() {
		close(d.done)
	})
}
