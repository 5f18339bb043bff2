// Package main provides the hootspot command: it exports HootSpot analysis
// reports to PDF, either with an in-process renderer or through a remote
// renderer started with "hootspot serve".
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	// Create context with signal handling
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nShutting down gracefully...")
		cancel()
	}()

	var err error
	switch os.Args[1] {
	case "export":
		err = runExport(ctx, os.Args[2:])
	case "serve":
		err = runServe(ctx, os.Args[2:])
	case "version", "-version", "--version":
		fmt.Printf("HootSpot v%s\n", version)
	case "help", "-h", "-help", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		usage()
		cancel()
		os.Exit(2)
	}

	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "hootspot %s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "HootSpot - PDF export for manipulation analysis reports\n\n")
	fmt.Fprintf(os.Stderr, "Usage:\n")
	fmt.Fprintf(os.Stderr, "  hootspot export [options]   Export a report to PDF\n")
	fmt.Fprintf(os.Stderr, "  hootspot serve [options]    Run a renderer for remote exports\n")
	fmt.Fprintf(os.Stderr, "  hootspot version            Show version and exit\n\n")
	fmt.Fprintf(os.Stderr, "Examples:\n")
	fmt.Fprintf(os.Stderr, "  # Export with the built-in renderer\n")
	fmt.Fprintf(os.Stderr, "  hootspot export -payload report.json\n\n")
	fmt.Fprintf(os.Stderr, "  # Export from a job file\n")
	fmt.Fprintf(os.Stderr, "  hootspot export -job weekly.yaml\n\n")
	fmt.Fprintf(os.Stderr, "  # Serve, then export remotely\n")
	fmt.Fprintf(os.Stderr, "  hootspot serve -addr :8787\n")
	fmt.Fprintf(os.Stderr, "  hootspot export -payload report.json -renderer-url ws://localhost:8787/render\n\n")
	fmt.Fprintf(os.Stderr, "Run \"hootspot <command> -h\" for command options.\n")
}
