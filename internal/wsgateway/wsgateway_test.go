package wsgateway

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/karolherbst/pixelflood/internal/fb"
	"github.com/karolherbst/pixelflood/internal/telemetry"
)

func startGateway(t *testing.T) (addr string, canvas *fb.Framebuffer, counters *telemetry.Counters) {
	t.Helper()
	canvas = fb.New(16, 16)
	counters = telemetry.New()
	g := New(canvas, counters)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr = ln.Addr().String()
	ln.Close()

	go func() {
		if err := g.Serve(addr); err != nil {
			t.Logf("gateway Serve exited: %v", err)
		}
	}()

	// Serve rebinds addr itself; give the listener goroutine a moment to
	// come up before dialing.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if conn, err := net.Dial("tcp", addr); err == nil {
			conn.Close()
			break
		}
		time.Sleep(time.Millisecond)
	}
	return addr, canvas, counters
}

func TestGatewayParsesPXOverWebSocket(t *testing.T) {
	addr, canvas, _ := startGateway(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn, _, _, err := ws.Dial(ctx, fmt.Sprintf("ws://%s/", addr))
	if err != nil {
		t.Fatalf("ws.Dial: %v", err)
	}
	defer conn.Close()

	if err := wsutil.WriteClientMessage(conn, ws.OpText, []byte("PX 1 1 aabbcc\n")); err != nil {
		t.Fatalf("write: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if canvas.Get(1, 1) == 0xffaabbcc {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("pixel (1,1) = %#08x, want 0xffaabbcc", canvas.Get(1, 1))
}

func TestGatewayReadReplyFramed(t *testing.T) {
	addr, _, _ := startGateway(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn, _, _, err := ws.Dial(ctx, fmt.Sprintf("ws://%s/", addr))
	if err != nil {
		t.Fatalf("ws.Dial: %v", err)
	}
	defer conn.Close()

	if err := wsutil.WriteClientMessage(conn, ws.OpText, []byte("SIZE\n")); err != nil {
		t.Fatalf("write: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	payload, op, err := wsutil.ReadServerData(conn)
	if err != nil {
		t.Fatalf("ReadServerData: %v", err)
	}
	if op != ws.OpText {
		t.Fatalf("opcode = %v, want OpText", op)
	}
	if got, want := string(payload), "SIZE 16 16\n"; got != want {
		t.Fatalf("reply = %q, want %q", got, want)
	}
}
