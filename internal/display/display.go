// Package display defines the contract between the ingest engine and the
// windowing/renderer toolkit, which the specification treats as an
// external collaborator out of the core's scope. The real production
// path — a GL context with a persistent-mapped pixel-unpack buffer,
// falling back through a streamed buffer, an accelerated SDL renderer,
// and finally a software renderer — lives outside this repository. What
// the core owns is the Loop that drives that contract: upload once a
// frame, recompute the telemetry overlay once a second, and watch for a
// quit signal.
package display

import (
	"context"
	"time"

	"github.com/karolherbst/pixelflood/internal/fb"
	"github.com/karolherbst/pixelflood/internal/telemetry"
)

// FPSInterval is how often the overlay's FPS/throughput figures are
// recomputed, matching the source's FPS_INTERVAL.
const FPSInterval = time.Second

// Source is the subset of the framebuffer the display loop needs: a way
// to copy out the current pixels for upload, and the dimensions to size
// the loop's upload scratch buffer.
type Source interface {
	Width() int
	Height() int
	Snapshot(dst []fb.Pixel)
}

// Renderer is the external collaborator: it owns the window, the texture
// upload path (GPU-mapped or memcpy'd, per §6), and the overlay
// compositing. Upload is called once a frame with the freshly-snapshotted
// pixels; Overlay is called once a second with the two lines of telemetry
// text to display. Close releases the window and any mapped buffers.
type Renderer interface {
	Upload(pixels []fb.Pixel) error
	Overlay(lines [2]string) error
	// Closed reports whether the renderer's window was closed or its quit
	// key was pressed since the last poll.
	Closed() bool
	Close() error
}

// Loop owns the pixel-source side of the display contract: it snapshots
// the framebuffer every frame, recomposes the telemetry overlay every
// FPSInterval, and hands both to a Renderer until asked to stop.
type Loop struct {
	source    Source
	renderer  Renderer
	counters  *telemetry.Counters
	boundAddr string

	frames    uint64
	lastTick  time.Time
	scratch   []fb.Pixel
}

// NewLoop builds a display loop over source, driving renderer, reading
// counters for the overlay, and reporting boundAddr on the second overlay
// line.
func NewLoop(source Source, renderer Renderer, counters *telemetry.Counters, boundAddr string) *Loop {
	return &Loop{
		source:    source,
		renderer:  renderer,
		counters:  counters,
		boundAddr: boundAddr,
		scratch:   make([]fb.Pixel, source.Width()*source.Height()),
		lastTick:  time.Now(),
	}
}

// Run drives the loop at frameInterval until ctx is canceled or the
// renderer reports it was closed (quit key / window close).
func (l *Loop) Run(ctx context.Context, frameInterval time.Duration) error {
	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()

	overlayTicker := time.NewTicker(FPSInterval)
	defer overlayTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if l.renderer.Closed() {
				return nil
			}
			l.source.Snapshot(l.scratch)
			if err := l.renderer.Upload(l.scratch); err != nil {
				return err
			}
			l.frames++
		case <-overlayTicker.C:
			elapsed := time.Since(l.lastTick).Seconds()
			l.lastTick = time.Now()
			fps := float64(l.frames) / elapsed
			l.frames = 0

			snap := l.counters.Snapshot()
			l.counters.ResetDataCnt()

			lines := composeOverlay(fps, snap, elapsed, l.boundAddr)
			if err := l.renderer.Overlay(lines); err != nil {
				return err
			}
		}
	}
}
