package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	appconfig "github.com/entrhq/hootspot/pkg/config"
	"github.com/entrhq/hootspot/pkg/document"
	"github.com/entrhq/hootspot/pkg/logging"
	"github.com/entrhq/hootspot/pkg/renderer"
	"github.com/entrhq/hootspot/pkg/transport"
)

const (
	defaultAddr = "localhost:8787"
	defaultPath = "/render"
)

// serveFlags holds the serve command line.
type serveFlags struct {
	ConfigFile string
	Addr       string
	Path       string
	Origin     string
	Engine     string
	Paper      string
}

func parseServeFlags(args []string) (*serveFlags, error) {
	f := &serveFlags{}
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.StringVar(&f.ConfigFile, "config", "", "Settings file (default ~/.hootspot/config.json)")
	fs.StringVar(&f.Addr, "addr", defaultAddr, "Listen address")
	fs.StringVar(&f.Path, "path", defaultPath, "WebSocket endpoint path")
	fs.StringVar(&f.Origin, "origin", "", "Renderer origin (default derived from -addr)")
	fs.StringVar(&f.Engine, "engine", "", "Document engine: pdf or chromium")
	fs.StringVar(&f.Paper, "paper", "", "Paper size: A4 or Letter")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return f, nil
}

// serverOrigin derives the renderer's own origin from its listen address.
func serverOrigin(addr string) (string, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "", fmt.Errorf("invalid listen address %q: %w", addr, err)
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port), nil
}

func runServe(ctx context.Context, args []string) error {
	f, err := parseServeFlags(args)
	if err != nil {
		return err
	}

	if initErr := appconfig.Initialize(f.ConfigFile); initErr != nil {
		return fmt.Errorf("failed to initialize configuration: %w", initErr)
	}

	settings, err := appconfig.ResolveExport(appconfig.ExportOverrides{
		Engine: f.Engine,
		Paper:  f.Paper,
	}, nil, func(key string) string {
		// The renderer URL is a requester setting; ignore it here
		if key == appconfig.EnvRendererURL {
			return ""
		}
		return os.Getenv(key)
	})
	if err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}

	self := f.Origin
	if self == "" {
		if self, err = serverOrigin(f.Addr); err != nil {
			return err
		}
	}

	logger, _ := logging.NewLogger("renderer")
	defer logger.Close()

	allowed, err := appconfig.GetOrigins().Allowlist()
	if err != nil {
		return fmt.Errorf("invalid origin allowlist: %w", err)
	}

	builder, err := document.NewBuilder(document.Options{
		Engine:          settings.Engine,
		Paper:           settings.Paper,
		ChromiumTimeout: settings.Timeout,
		Logger:          logger.With("document"),
	})
	if err != nil {
		return err
	}
	defer builder.Close()

	srv, err := transport.NewServer(self, allowed, logger.With("transport"))
	if err != nil {
		return err
	}
	defer srv.Close()

	mux := http.NewServeMux()
	mux.Handle(f.Path, srv)
	httpServer := &http.Server{
		Addr:              f.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	listenErr := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErr <- err
		}
		close(listenErr)
	}()

	fmt.Printf("HootSpot renderer listening on ws://%s%s (origin %s, engine %s)\n", f.Addr, f.Path, self, settings.Engine)
	logger.Infof("renderer listening on %s%s as %s", f.Addr, f.Path, self)

	serveCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	serveDone := make(chan error, 1)
	go func() {
		serveDone <- renderer.Serve(serveCtx, srv, func() *renderer.Handler {
			return renderer.NewHandler(builder, allowed, renderer.WithLogger(logger.With("handler")))
		}, logger)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err, ok := <-listenErr:
		if ok {
			runErr = fmt.Errorf("renderer server failed: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}
	cancel()
	<-serveDone
	return runErr
}
