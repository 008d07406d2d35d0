// Package proto implements the Pixelflut wire grammar: the branch-light
// hex/decimal scanners and the per-line command dispatcher that mutates the
// shared framebuffer or emits a reply. It is the hottest code in the
// system — every dispatched byte passes through here.
package proto

import (
	"bytes"
	"fmt"

	"github.com/karolherbst/pixelflood/internal/fb"
)

// Replier is the minimal sink a parsed command writes its reply to. A
// net.Conn satisfies it directly; tests can substitute a bytes.Buffer.
type Replier interface {
	Write(p []byte) (int, error)
}

// Canvas is the subset of *fb.Framebuffer the parser needs, narrowed so
// this package doesn't otherwise depend on the concrete type's allocation
// concerns.
type Canvas interface {
	Set(x, y int, argb fb.Pixel)
	Get(x, y int) fb.Pixel
	Width() int
	Height() int
}

// rotateARGBToRGBA converts a packed ARGB pixel to the lowercase 8-hex-digit
// RGBA ordering the PX read reply always uses, regardless of which write
// form produced the stored value.
func rotateARGBToRGBA(v uint32) uint32 {
	return v<<8 | v>>24
}

// Line parses exactly one command starting at the first byte of b, which
// must begin at a line boundary. It mutates canvas for writes, sends a
// reply on w for reads, and increments *pixelDelta by one per successful
// in-bounds write. It returns the index within b of the command's
// terminating '\n'; callers advance their cursor to that index plus one.
//
// Unrecognized first bytes are tolerated: the command is skipped up to and
// including its terminating '\n'.
func Line(b []byte, canvas Canvas, w Replier, pixelDelta *int) int {
	switch b[0] {
	case 'P':
		return parsePX(b, canvas, w, pixelDelta)
	case 'S':
		return parseSIZE(b, canvas, w)
	default:
		return skipLine(b)
	}
}

func skipLine(b []byte) int {
	nl := bytes.IndexByte(b, '\n')
	if nl < 0 {
		// Caller guarantees a terminated line; this only happens on
		// malformed input from a caller that didn't honor that contract.
		return len(b) - 1
	}
	return nl
}

// parsePX handles "PX <x> <y>\n" (read) and "PX <x> <y> <hex>\n" (write).
// It assumes b starts with "PX " (the 'P' prefix already matched by Line;
// the space and the second letter are not separately validated, matching
// the source's scanner-does-not-validate design).
func parsePX(b []byte, canvas Canvas, w Replier, pixelDelta *int) int {
	pos := 3 // past "PX "
	x, pos := ReadDecimal(b, pos)
	pos++ // space
	y, pos := ReadDecimal(b, pos)

	if pos >= len(b) {
		return skipLine(b)
	}

	if b[pos] == '\n' {
		v := canvas.Get(int(x), int(y))
		reply := fmt.Sprintf("PX %d %d %08x\n", x, y, rotateARGBToRGBA(v))
		_, _ = w.Write([]byte(reply))
		return pos
	}

	pos++ // space before the hex color
	argb, pos := ReadHexColor(b, pos)
	canvas.Set(int(x), int(y), argb)
	if int(x) < canvas.Width() && int(y) < canvas.Height() {
		*pixelDelta++
	}

	// A line this short ("PX 1 1 \n" with no hex digits at all before the
	// newline) can send ReadHexColor's cursor past len(b): it has no bytes
	// left to resync on, so treat the command as fully consumed rather
	// than slicing b[pos:] past its end.
	if pos > len(b) {
		return len(b) - 1
	}
	nl := bytes.IndexByte(b[pos:], '\n')
	if nl < 0 {
		return len(b) - 1
	}
	return pos + nl
}

func parseSIZE(b []byte, canvas Canvas, w Replier) int {
	reply := fmt.Sprintf("SIZE %d %d\n", canvas.Width(), canvas.Height())
	_, _ = w.Write([]byte(reply))
	return skipLine(b)
}
