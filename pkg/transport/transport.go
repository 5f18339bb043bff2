// Package transport carries envelopes between two HootSpot contexts.
//
// An Endpoint is one side of a point-to-point channel. Like window.postMessage,
// a sender names the origin it expects the receiver to have; if the receiver's
// origin differs the message is silently not delivered. The receiving side
// learns the sender's origin from the transport, never from the envelope.
//
// Two implementations exist: Pipe (two goroutines in one process) and Conn
// (a WebSocket connection between processes).
package transport

import (
	"context"
	"errors"
	"strings"

	"github.com/entrhq/hootspot/pkg/security/origin"
	"github.com/entrhq/hootspot/pkg/types"
)

var (
	// ErrWildcardTarget is returned by Post when the target origin is "*".
	ErrWildcardTarget = errors.New("refusing to post to wildcard target origin")

	// ErrClosed is returned when posting on a closed endpoint.
	ErrClosed = errors.New("endpoint closed")
)

// Message is a received envelope together with the origin of its sender.
type Message struct {
	Origin   string
	Envelope *types.Envelope
}

// Endpoint is one side of a message channel.
type Endpoint interface {
	// Origin is this side's own origin.
	Origin() string

	// Post sends env to the peer if the peer's origin equals targetOrigin.
	// A mismatch drops the message without error.
	Post(ctx context.Context, env *types.Envelope, targetOrigin string) error

	// Messages yields received messages. It is closed when the endpoint closes.
	Messages() <-chan Message

	// Close shuts the endpoint down. Safe to call more than once.
	Close() error
}

// resolveTarget validates a target origin and reports whether it addresses peer.
func resolveTarget(targetOrigin, peer string) (bool, error) {
	if strings.TrimSpace(targetOrigin) == origin.Wildcard {
		return false, ErrWildcardTarget
	}
	target, err := origin.Normalize(targetOrigin)
	if err != nil {
		return false, err
	}
	return target == peer, nil
}
