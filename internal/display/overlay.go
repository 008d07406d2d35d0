package display

import (
	"fmt"

	"github.com/mattn/go-runewidth"

	"github.com/karolherbst/pixelflood/internal/telemetry"
)

// composeOverlay formats the two stacked overlay lines described in §6:
// a throughput/FPS line and an "IP: <bound-address>" line. The result is
// plain strings; OverlayWidth measures them in terminal cells for a
// renderer backend that must reserve a fixed-width overlay region.
func composeOverlay(fps float64, snap telemetry.Snapshot, elapsed float64, boundAddr string) [2]string {
	mp := float64(snap.NRPixels) / 1e6
	kps := float64(snap.NRPixels) / 1000 / elapsed
	mbits := float64(snap.DataCnt) * 8 / 1e6 / elapsed

	stats := fmt.Sprintf("FPS: %4.0f Clients: %5d Mp: %8.2f kp/s: %7.0f Mbit/s: %7.2f",
		fps, snap.NRClients, mp, kps, mbits)
	ip := "IP: " + boundAddr

	return [2]string{stats, ip}
}

// OverlayWidth returns the terminal-cell width of the wider of the two
// overlay lines, for a renderer backend (the terminal preview backend, in
// particular) that needs to reserve a fixed-width status region.
func OverlayWidth(lines [2]string) int {
	w0 := runewidth.StringWidth(lines[0])
	w1 := runewidth.StringWidth(lines[1])
	if w0 > w1 {
		return w0
	}
	return w1
}
