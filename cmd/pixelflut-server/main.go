// Command pixelflut-server runs the Pixelflut ingest engine: the
// multi-reactor TCP acceptor, the shared framebuffer, and (unless
// disabled) a terminal telemetry preview. A second CLI mode, "fuzz",
// parses a single command from a file for fuzz harnessing instead of
// running the server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/karolherbst/pixelflood/config"
	"github.com/karolherbst/pixelflood/internal/audit"
	"github.com/karolherbst/pixelflood/internal/display"
	"github.com/karolherbst/pixelflood/internal/display/termpreview"
	"github.com/karolherbst/pixelflood/internal/fb"
	"github.com/karolherbst/pixelflood/internal/lifecycle"
	"github.com/karolherbst/pixelflood/internal/proto"
	"github.com/karolherbst/pixelflood/internal/reactor"
	"github.com/karolherbst/pixelflood/internal/telemetry"
	"github.com/karolherbst/pixelflood/internal/wsgateway"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "fuzz" {
		os.Exit(runFuzz(os.Args[2:]))
	}

	cfg, err := config.Load()
	if err != nil {
		log.Printf("warning: failed to load config: %v, using defaults", err)
		cfg = config.Default()
	}

	listenAddr := flag.String("listen", cfg.ListenAddr, "TCP listen address")
	width := flag.Int("width", cfg.Width, "framebuffer width")
	height := flag.Int("height", cfg.Height, "framebuffer height")
	workers := flag.Int("workers", cfg.Workers, "reactor worker count")
	displayBackend := flag.String("display", cfg.Display, `display backend: "termpreview" or "none"`)
	wsEnabled := flag.Bool("websocket", cfg.WebSocketEnabled, "enable the WebSocket ingest gateway")
	wsAddr := flag.String("websocket-addr", cfg.WebSocketAddr, "WebSocket gateway listen address")
	auditEnabled := flag.Bool("audit", cfg.AuditEnabled, "enable the sqlite session/telemetry audit log")
	auditPath := flag.String("audit-path", cfg.AuditPath, "sqlite audit log path")
	flag.Parse()

	cfg.ListenAddr = *listenAddr
	cfg.Width = *width
	cfg.Height = *height
	cfg.Workers = *workers
	cfg.Display = *displayBackend
	cfg.WebSocketEnabled = *wsEnabled
	cfg.WebSocketAddr = *wsAddr
	cfg.AuditEnabled = *auditEnabled
	cfg.AuditPath = *auditPath

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "pixelflut-server: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	if cfg.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", cfg.Workers)
	}

	canvas := fb.New(cfg.Width, cfg.Height)
	counters := telemetry.New()
	ready := lifecycle.NewReady()

	var auditLog *audit.Log
	if cfg.AuditEnabled {
		var err error
		auditLog, err = audit.Open(cfg.AuditPath)
		if err != nil {
			return fmt.Errorf("audit log: %w", err)
		}
		defer auditLog.Close()
		log.Printf("audit log enabled at %s", cfg.AuditPath)
	}

	pool := reactor.New(cfg.Workers, canvas, counters)
	if auditLog != nil {
		pool.SetAudit(auditLog)
	}

	var wsGateway *wsgateway.Gateway
	if cfg.WebSocketEnabled {
		wsGateway = wsgateway.New(canvas, counters)
		if auditLog != nil {
			wsGateway.SetAudit(auditLog)
		}
		go func() {
			if err := wsGateway.Serve(cfg.WebSocketAddr); err != nil {
				log.Printf("wsgateway: %v", err)
			}
		}()
		log.Printf("websocket ingest gateway listening on %s", cfg.WebSocketAddr)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var loop *display.Loop
	var renderer display.Renderer
	switch cfg.Display {
	case "none":
		ready.Fire()
	case "termpreview":
		r, err := termpreview.New(cfg.Width, cfg.Height)
		if err != nil {
			return fmt.Errorf("termpreview: %w", err)
		}
		renderer = r
		loop = display.NewLoop(canvas, renderer, counters, cfg.ListenAddr)
		ready.Fire()
		go func() {
			if err := loop.Run(ctx, time.Second/60); err != nil {
				log.Printf("display loop: %v", err)
			}
			cancel() // a renderer-driven quit (Q key, window close) stops the server too
		}()
	default:
		return fmt.Errorf("unknown display backend %q", cfg.Display)
	}

	if err := ready.Wait(ctx); err != nil {
		return err
	}

	if err := pool.Serve(ctx, cfg.ListenAddr); err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.ListenAddr, err)
	}
	log.Printf("pixelflut-server listening on %s (%dx%d, %d workers)", cfg.ListenAddr, cfg.Width, cfg.Height, cfg.Workers)

	if auditLog != nil {
		go auditTicker(ctx, counters, auditLog)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	grace := time.Duration(cfg.ShutdownGraceMillis) * time.Millisecond
	stoppers := []lifecycle.Stopper{
		func() { pool.Shutdown(grace) },
	}
	if wsGateway != nil {
		stoppers = append(stoppers, func() { wsGateway.Close() })
	}
	if renderer != nil {
		stoppers = append(stoppers, func() { cancel(); renderer.Close() })
	}
	if err := lifecycle.Shutdown(shutdownCtx, stoppers...); err != nil {
		log.Printf("shutdown: %v", err)
	}

	log.Println("pixelflut-server stopped")
	return nil
}

// auditTicker mirrors the display loop's telemetry cadence, recording one
// snapshot per second for audit trails independent of whether a display
// backend is even running.
func auditTicker(ctx context.Context, counters *telemetry.Counters, auditLog *audit.Log) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			auditLog.Snapshot(counters.Snapshot())
		}
	}
}

// runFuzz implements the "fuzz <path>" CLI mode: parse a single command
// from a file without crashing or writing outside the framebuffer
// allocation, per the fuzz harness contract.
func runFuzz(args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: pixelflut-server fuzz <path>")
		return 1
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "fuzz: %v\n", err)
		return 1
	}
	if len(data) == 0 {
		return 0
	}
	if data[len(data)-1] != '\n' {
		data = append(data, '\n')
	}

	canvas := fb.New(1920, 1080)
	var discard discardWriter
	pixelDelta := 0
	proto.Line(data, canvas, discard, &pixelDelta)
	return 0
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
