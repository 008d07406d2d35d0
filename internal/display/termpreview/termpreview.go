// Package termpreview implements a display.Renderer that needs nothing
// beyond a terminal: it downsamples the framebuffer to a grid of colored
// cells with tcell and draws the telemetry overlay as two text rows. It
// stands in for the fallback tier of the rendering backend order the
// specification describes (GL-mapped, GL-streamed, accelerated SDL,
// software SDL) — the "software renderer" that always works, which is
// what this repository can actually exercise headlessly.
package termpreview

import (
	"os"
	"sync/atomic"

	"github.com/gdamore/tcell/v2"
	"github.com/mattn/go-runewidth"
	"golang.org/x/term"

	"github.com/karolherbst/pixelflood/internal/display"
	"github.com/karolherbst/pixelflood/internal/fb"
)

// Renderer downsamples a W×H ARGB framebuffer onto a tcell.Screen, one
// cell per block of pixels, leaving the bottom two rows for the overlay.
type Renderer struct {
	screen tcell.Screen
	fbW    int
	fbH    int
	cellW  int // framebuffer pixels per terminal column
	cellH  int // framebuffer pixels per terminal row
	closed atomic.Bool
}

// screenFactory builds the tcell.Screen New() drives. Production code
// never touches this; SetScreenFactory lets tests substitute a
// tcell.NewSimulationScreen so the renderer can be exercised headlessly.
var screenFactory = func() (tcell.Screen, error) { return tcell.NewScreen() }

// SetScreenFactory overrides the Screen constructor used by New. Passing
// nil restores the default. Exported for tests in other packages that
// need a termpreview.Renderer wired to a simulation screen.
func SetScreenFactory(f func() (tcell.Screen, error)) {
	if f == nil {
		f = func() (tcell.Screen, error) { return tcell.NewScreen() }
	}
	screenFactory = f
}

// New creates a terminal preview that downsamples the framebuffer to fill
// the current controlling terminal, scaling each axis independently (the
// framebuffer's aspect ratio is not preserved). golang.org/x/term queries
// the real terminal size (falling back to a sane default when stdout
// isn't a terminal, e.g. under a test harness) so the downsample factor
// reflects the operator's actual window rather than a hardcoded guess.
func New(fbW, fbH int) (*Renderer, error) {
	cols, rows := 120, 40
	if w, h, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 && h > 0 {
		cols, rows = w, h
	}
	rows -= 2 // reserve the two overlay lines

	screen, err := screenFactory()
	if err != nil {
		return nil, err
	}
	if err := screen.Init(); err != nil {
		return nil, err
	}
	screen.SetStyle(tcell.StyleDefault.Background(tcell.ColorBlack).Foreground(tcell.ColorWhite))
	screen.HideCursor()

	cellW := divRoundUp(fbW, cols)
	cellH := divRoundUp(fbH, rows)
	if cellW < 1 {
		cellW = 1
	}
	if cellH < 1 {
		cellH = 1
	}

	r := &Renderer{screen: screen, fbW: fbW, fbH: fbH, cellW: cellW, cellH: cellH}
	go r.pollInput()
	return r, nil
}

func divRoundUp(a, b int) int {
	if b <= 0 {
		return a
	}
	return (a + b - 1) / b
}

// pollInput watches for the Q keypress or a window-close event and marks
// the renderer closed, matching §4.7's "Q key or window-close yields
// quit()".
func (r *Renderer) pollInput() {
	for {
		ev := r.screen.PollEvent()
		switch e := ev.(type) {
		case *tcell.EventKey:
			if e.Rune() == 'Q' || e.Rune() == 'q' || e.Key() == tcell.KeyCtrlC {
				r.closed.Store(true)
				return
			}
		case nil:
			r.closed.Store(true)
			return
		}
	}
}

// Closed reports whether the quit key or window close has fired.
func (r *Renderer) Closed() bool { return r.closed.Load() }

// Upload downsamples pixels onto the screen, averaging each block of
// cellW×cellH source pixels into one terminal cell's background color.
// This never reads the framebuffer for correctness, only to paint a
// coarse live preview; a torn read here is invisible at terminal refresh
// rates.
func (r *Renderer) Upload(pixels []fb.Pixel) error {
	rows := r.fbH / r.cellH
	cols := r.fbW / r.cellW

	for cy := 0; cy < rows; cy++ {
		for cx := 0; cx < cols; cx++ {
			rr, gg, bb := r.blockAverage(pixels, cx, cy)
			style := tcell.StyleDefault.Background(tcell.NewRGBColor(int32(rr), int32(gg), int32(bb)))
			r.screen.SetContent(cx, cy, ' ', nil, style)
		}
	}
	return nil
}

func (r *Renderer) blockAverage(pixels []fb.Pixel, cx, cy int) (rr, gg, bb int32) {
	var sumR, sumG, sumB, n int64
	x0, y0 := cx*r.cellW, cy*r.cellH
	for y := y0; y < y0+r.cellH && y < r.fbH; y++ {
		row := y * r.fbW
		for x := x0; x < x0+r.cellW && x < r.fbW; x++ {
			p := pixels[row+x]
			sumR += int64((p >> 16) & 0xff)
			sumG += int64((p >> 8) & 0xff)
			sumB += int64(p & 0xff)
			n++
		}
	}
	if n == 0 {
		return 0, 0, 0
	}
	return int32(sumR / n), int32(sumG / n), int32(sumB / n)
}

// Overlay draws the two telemetry lines on the rows reserved below the
// framebuffer preview. Both lines are padded to the same terminal-cell
// width — the wider of the two, per display.OverlayWidth, clamped to the
// screen's actual width — so the shorter "IP: ..." line fully overwrites
// whatever the stats line left behind on the previous tick instead of
// leaving stale characters trailing off the end.
func (r *Renderer) Overlay(lines [2]string) error {
	_, screenH := r.screen.Size()
	base := screenH - 2
	style := tcell.StyleDefault.Foreground(tcell.ColorWhite).Background(tcell.ColorBlack)

	width := display.OverlayWidth(lines)
	if sw := r.screen.Width(); width > sw {
		width = sw
	}

	for i, line := range lines {
		for x, ch := range runewidth.FillRight(line, width) {
			r.screen.SetContent(x, base+i, ch, nil, style)
		}
	}
	r.screen.Show()
	return nil
}

// Close releases the terminal.
func (r *Renderer) Close() error {
	r.screen.Fini()
	return nil
}
