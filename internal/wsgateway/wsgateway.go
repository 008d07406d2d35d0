// Package wsgateway offers an alternative ingest transport: the same
// Pixelflut command grammar carried over WebSocket binary/text frames
// instead of a raw TCP byte stream, proving that ingest.Stream's
// carry-buffer and parse loop are genuinely transport-agnostic (§4.4
// never assumes TCP framing beyond "bytes arrive in order").
//
// Framing and handshake are github.com/gobwas/ws; the per-connection
// buffered reader is drawn from github.com/gobwas/pool/pbufio so a busy
// gateway doesn't allocate a fresh bufio.Reader per upgrade.
package wsgateway

import (
	"bufio"
	"log"
	"net"

	"github.com/gobwas/pool/pbufio"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"

	"github.com/karolherbst/pixelflood/internal/ingest"
	"github.com/karolherbst/pixelflood/internal/proto"
	"github.com/karolherbst/pixelflood/internal/telemetry"
)

// AuditSink receives connect/disconnect events, mirroring
// reactor.AuditSink so the same audit.Log can be installed on both
// ingest transports.
type AuditSink interface {
	Connected(clientID string)
	Disconnected(clientID string)
}

type nopSink struct{}

func (nopSink) Connected(string)    {}
func (nopSink) Disconnected(string) {}

// bufferedConn pairs a pooled, buffered Reader with the connection's own
// Writer so wsutil.ReadClientData can both read framed payloads through
// the pool and write the control-frame replies (pong, close) it handles
// automatically.
type bufferedConn struct {
	*bufio.Reader
	net.Conn
}

func (b *bufferedConn) Read(p []byte) (int, error) { return b.Reader.Read(p) }

// frameWriter adapts a net.Conn to proto.Replier by wrapping every write
// in a server-side WebSocket text frame, so PX-read and SIZE replies
// reach the client as valid frames instead of raw bytes spliced into the
// WebSocket stream.
type frameWriter struct {
	conn net.Conn
}

func (f frameWriter) Write(p []byte) (int, error) {
	if err := wsutil.WriteServerText(f.conn, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// readBufSize is the size of the pooled buffered reader taken after the
// upgrade (which reads the raw conn) and used for every frame read on the
// connection.
const readBufSize = 4096

// Gateway listens for WebSocket connections and feeds their frame
// payloads into the same canvas and counters the raw TCP reactor uses.
type Gateway struct {
	ln       net.Listener
	canvas   proto.Canvas
	counters *telemetry.Counters
	audit    AuditSink
}

// New creates a Gateway bound to canvas and counters. It does not listen
// until Serve is called.
func New(canvas proto.Canvas, counters *telemetry.Counters) *Gateway {
	return &Gateway{canvas: canvas, counters: counters, audit: nopSink{}}
}

// SetAudit installs sink for connect/disconnect events. Call before
// Serve.
func (g *Gateway) SetAudit(sink AuditSink) {
	if sink == nil {
		sink = nopSink{}
	}
	g.audit = sink
}

// Serve binds addr and accepts WebSocket upgrades until the listener is
// closed (by Close, typically from Shutdown).
func (g *Gateway) Serve(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	g.ln = ln

	for {
		conn, err := ln.Accept()
		if err != nil {
			return nil
		}
		go g.handle(conn)
	}
}

// Close stops accepting new connections.
func (g *Gateway) Close() error {
	if g.ln == nil {
		return nil
	}
	return g.ln.Close()
}

func (g *Gateway) handle(conn net.Conn) {
	defer conn.Close()
	// Mirrors the recover in reactor.Worker.handle: a malformed frame
	// payload is memory-safe to parse but not guaranteed sane, so this is
	// the last line of defense against one bad peer taking the whole
	// process down.
	defer func() {
		if r := recover(); r != nil {
			log.Printf("wsgateway: recovered panic serving connection: %v", r)
		}
	}()

	upgrader := ws.Upgrader{}
	if _, err := upgrader.Upgrade(conn); err != nil {
		log.Printf("wsgateway: upgrade failed: %v", err)
		return
	}

	br := pbufio.GetReader(conn, readBufSize)
	defer pbufio.PutReader(br)
	rw := &bufferedConn{Reader: br, Conn: conn}

	clientID := uuid.NewString()
	g.counters.ClientConnected()
	g.audit.Connected(clientID)
	defer g.counters.ClientDisconnected()
	defer g.audit.Disconnected(clientID)

	stream := ingest.New(frameWriter{conn: conn}, g.canvas, g.counters)

	for {
		payload, op, err := wsutil.ReadClientData(rw)
		if err != nil {
			return
		}
		switch op {
		case ws.OpText, ws.OpBinary:
			// A frame may not end on a command boundary; Stream.Feed
			// already carries any unterminated tail across calls, so
			// treating each frame as one more chunk of the same byte
			// stream is correct regardless of how the client split its
			// commands across frames.
			stream.Feed(payload)
		case ws.OpClose:
			return
		}
	}
}
