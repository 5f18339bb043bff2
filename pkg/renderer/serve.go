package renderer

import (
	"context"
	"sync"

	"github.com/entrhq/hootspot/pkg/logging"
	"github.com/entrhq/hootspot/pkg/transport"
)

// Serve runs a Host for every connection accepted by srv until ctx is done.
// Each connection is a separate requester and gets its own Handler from
// newHandler, so nothing leaks between requesters.
func Serve(ctx context.Context, srv *transport.Server, newHandler func() *Handler, logger *logging.Logger) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case conn := <-srv.Connections():
			host, err := NewHost(conn, newHandler(), conn.PeerOrigin(), logger.With(conn.PeerOrigin()))
			if err != nil {
				logger.Errorf("cannot host connection from %s: %v", conn.PeerOrigin(), err)
				_ = conn.Close()
				continue
			}

			wg.Add(1)
			go func() {
				defer wg.Done()
				defer conn.Close()

				connCtx, cancel := context.WithCancel(ctx)
				defer cancel()
				go func() {
					select {
					case <-conn.Done():
						cancel()
					case <-connCtx.Done():
					}
				}()

				if err := host.Run(connCtx); err != nil && ctx.Err() == nil && connCtx.Err() == nil {
					logger.Warnf("renderer host for %s stopped: %v", conn.PeerOrigin(), err)
				}
			}()
		}
	}
}
