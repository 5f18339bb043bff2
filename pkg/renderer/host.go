package renderer

import (
	"context"
	"fmt"

	"github.com/entrhq/hootspot/pkg/logging"
	"github.com/entrhq/hootspot/pkg/security/origin"
	"github.com/entrhq/hootspot/pkg/transport"
	"github.com/entrhq/hootspot/pkg/types"
)

// Host runs a Handler on an Endpoint: it announces readiness once and then
// handles one message at a time, like the message loop of a sandboxed frame.
type Host struct {
	endpoint        transport.Endpoint
	handler         *Handler
	requesterOrigin string
	logger          *logging.Logger
}

// NewHost creates a host. requesterOrigin is where the readiness signal is
// sent; it must be concrete.
func NewHost(endpoint transport.Endpoint, handler *Handler, requesterOrigin string, logger *logging.Logger) (*Host, error) {
	if endpoint == nil {
		return nil, fmt.Errorf("an endpoint is required")
	}
	if handler == nil {
		return nil, fmt.Errorf("a handler is required")
	}
	target, err := origin.Normalize(requesterOrigin)
	if err != nil {
		return nil, fmt.Errorf("invalid requester origin: %w", err)
	}

	return &Host{
		endpoint:        endpoint,
		handler:         handler,
		requesterOrigin: target,
		logger:          logger,
	}, nil
}

// Run announces readiness and serves requests until ctx is done or the
// endpoint closes. It returns nil when the endpoint closes.
func (h *Host) Run(ctx context.Context) error {
	if err := h.endpoint.Post(ctx, types.NewSandboxReadyEnvelope(), h.requesterOrigin); err != nil {
		return fmt.Errorf("failed to announce readiness: %w", err)
	}
	h.logger.Infof("renderer ready on %s, announced to %s", h.endpoint.Origin(), h.requesterOrigin)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case msg, ok := <-h.endpoint.Messages():
			if !ok {
				h.logger.Infof("endpoint closed, renderer stopping")
				return nil
			}
			h.handler.Handle(ctx, msg, h.replyTo(msg.Origin))
		}
	}
}

// replyTo posts back to the context that sent the request and nowhere else.
func (h *Host) replyTo(requestOrigin string) ReplyFunc {
	return func(ctx context.Context, env *types.Envelope) error {
		return h.endpoint.Post(ctx, env, requestOrigin)
	}
}
