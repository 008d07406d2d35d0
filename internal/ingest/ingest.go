// Package ingest drains a Pixelflut byte stream: splitting it on '\n',
// carrying an unterminated tail across reads, and handing each complete
// command to proto.Line. This is C4 of the engine — the code a slow peer
// or a torrent of PX commands spends the most time in.
//
// The stream abstraction is transport-agnostic: reactor.Worker feeds it
// from a raw TCP net.Conn, and wsgateway feeds it from decoded WebSocket
// frame payloads, so the carry-buffer and parse-loop logic is written
// exactly once.
package ingest

import (
	"bytes"
	"io"
	"net"

	"github.com/karolherbst/pixelflood/internal/proto"
	"github.com/karolherbst/pixelflood/internal/telemetry"
)

// carryCap is the carry buffer capacity: at least the longest possible
// command ("PX 65535 65535 aabbccdd\n", 24 bytes), with headroom.
const carryCap = 50

// readBufSize is the size of the scratch buffer ServeConn reads socket
// data into per notification.
const readBufSize = 64 * 1024

// Stream is the per-connection state: the carry buffer holding the
// unfinished tail of the previous feed, and its current length. It is not
// safe for concurrent use — each connection owns exactly one Stream and
// feeds it from a single goroutine, matching the "commands parsed in TCP
// order, one at a time" concurrency model.
type Stream struct {
	canvas   proto.Canvas
	counters *telemetry.Counters
	reply    proto.Replier

	carry    [carryCap]byte
	carryLen int
}

// New creates a Stream that parses against canvas, updates counters, and
// sends PX/SIZE replies on reply.
func New(reply proto.Replier, canvas proto.Canvas, counters *telemetry.Counters) *Stream {
	return &Stream{reply: reply, canvas: canvas, counters: counters}
}

// ServeConn drains conn until it errors or is closed, feeding each read
// into the one Stream it creates for this connection. It returns nil on a
// clean EOF.
func ServeConn(conn net.Conn, canvas proto.Canvas, counters *telemetry.Counters) error {
	s := New(conn, canvas, counters)
	buf := make([]byte, readBufSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			s.Feed(buf[:n])
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}

// Feed implements §4.4: backward-scan for the last '\n' in this chunk,
// fold in any carried-over prefix, batch-parse the fully-terminated
// region, then carry forward whatever partial command follows the last
// newline. Callers invoke Feed once per readable notification (one socket
// read, one WebSocket frame, ...).
func (s *Stream) Feed(b []byte) {
	s.counters.AddBytes(len(b))

	n := len(b)
	last := bytes.LastIndexByte(b, '\n')
	if last < 0 {
		// No newline at all in this chunk: buffer it and come back later.
		s.appendCarry(b)
		return
	}

	pixelDelta := 0
	cursor := 0

	if s.carryLen > 0 {
		firstNL := bytes.IndexByte(b, '\n')
		s.appendCarry(b[:firstNL+1])
		proto.Line(s.carry[:s.carryLen], s.canvas, s.reply, &pixelDelta)
		s.carryLen = 0
		cursor = firstNL + 1
	}

	for cursor <= last {
		nl := proto.Line(b[cursor:], s.canvas, s.reply, &pixelDelta)
		cursor += nl + 1
	}

	if last != n-1 {
		s.appendCarry(b[last+1:])
	}

	s.counters.AddPixels(pixelDelta)
}

// appendCarry appends p to the carry buffer. A command longer than the
// carry capacity is ill-formed input; per the data model's invariant this
// is undefined behavior for the command, and we simply cap the copy to
// avoid writing out of bounds rather than panic the connection.
func (s *Stream) appendCarry(p []byte) {
	room := carryCap - s.carryLen
	if room <= 0 {
		return
	}
	if len(p) > room {
		p = p[:room]
	}
	copy(s.carry[s.carryLen:], p)
	s.carryLen += len(p)
}
