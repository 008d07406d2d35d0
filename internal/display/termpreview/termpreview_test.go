package termpreview

import (
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/karolherbst/pixelflood/internal/fb"
)

func withSimulationScreen(t *testing.T) *tcell.SimulationScreen {
	t.Helper()
	screen := tcell.NewSimulationScreen("UTF-8")
	if err := screen.Init(); err != nil {
		t.Fatalf("simulation screen init: %v", err)
	}
	screen.SetSize(80, 24)
	SetScreenFactory(func() (tcell.Screen, error) { return screen, nil })
	t.Cleanup(func() { SetScreenFactory(nil) })
	return screen.(*tcell.SimulationScreen)
}

func TestNewSizesCellsToFramebuffer(t *testing.T) {
	withSimulationScreen(t)

	r, err := New(1920, 1080)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer r.Close()

	if r.cellW < 1 || r.cellH < 1 {
		t.Fatalf("cell size = %dx%d, want both >= 1", r.cellW, r.cellH)
	}
}

func TestUploadPaintsCells(t *testing.T) {
	withSimulationScreen(t)

	r, err := New(4, 4)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer r.Close()

	pixels := make([]fb.Pixel, 16)
	for i := range pixels {
		pixels[i] = 0xffff0000 // opaque red
	}
	if err := r.Upload(pixels); err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
}

func TestOverlayWritesBottomRows(t *testing.T) {
	withSimulationScreen(t)

	r, err := New(4, 4)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer r.Close()

	if err := r.Overlay([2]string{"FPS: 60", "IP: 0.0.0.0:12345"}); err != nil {
		t.Fatalf("Overlay failed: %v", err)
	}
}

func TestClosedReflectsQuitKey(t *testing.T) {
	screen := withSimulationScreen(t)

	r, err := New(4, 4)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer r.Close()

	if r.Closed() {
		t.Fatalf("renderer reported closed before any quit input")
	}

	screen.InjectKey(tcell.KeyRune, 'q', tcell.ModNone)

	// pollInput runs on its own goroutine; give it a moment to observe
	// the injected event before asserting.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && !r.Closed() {
		time.Sleep(time.Millisecond)
	}
	if !r.Closed() {
		t.Fatalf("expected Closed() to report true after the 'q' key")
	}
}
