// Package reactor implements the multi-reactor acceptor described in
// §4.5: one accepting goroutine, N worker slots, round-robin dispatch of
// newly-accepted sockets across them.
//
// The source's reactor is built from N OS threads each running its own
// epoll loop, because C has no scheduler that multiplexes blocking reads
// across a thread pool for free. Go's runtime netpoller already performs
// exactly that multiplexing under the covers, so the idiomatic port keeps
// the *observable* contract — N worker slots, a round-robin assignment
// counter, a live-but-idle worker that never exits for lack of
// connections, prompt shutdown — while letting the Go scheduler do the
// actual socket multiplexing. A worker runs no goroutine or loop of its
// own: it is a bookkeeping slot that stays in the pool whether or not it
// owns any connections, so it needs no counterpart of the dummy
// persistent event the source registers. Each accepted connection gets
// its own goroutine, tracked against the worker it was dispatched to for
// telemetry and shutdown bookkeeping.
package reactor

import (
	"context"
	"errors"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/karolherbst/pixelflood/internal/ingest"
	"github.com/karolherbst/pixelflood/internal/proto"
	"github.com/karolherbst/pixelflood/internal/telemetry"
)

// AuditSink receives connect/disconnect events for connections dispatched
// through the pool. A nil sink is never called; Pool substitutes nopSink
// when none is set.
type AuditSink interface {
	Connected(clientID string)
	Disconnected(clientID string)
}

type nopSink struct{}

func (nopSink) Connected(string)    {}
func (nopSink) Disconnected(string) {}

// Worker is one of the N worker descriptors: a slot that connections are
// dispatched to, plus an observable count of how many it currently owns.
// Worker descriptors are written only during startup (by New, and by
// SetAudit before Serve) and read-only during normal operation, apart
// from the atomic active count and the drain WaitGroup.
type Worker struct {
	id       int
	active   atomic.Int64
	wg       sync.WaitGroup
	canvas   proto.Canvas
	counters *telemetry.Counters
	audit    AuditSink
}

// ID returns the worker's position in the pool, 0..N-1.
func (w *Worker) ID() int { return w.id }

// Active returns the number of connections currently dispatched to this
// worker — "crap" load distribution is expected (round-robin, not
// least-loaded), but this number is still useful for an overlay or a
// debug endpoint.
func (w *Worker) Active() int64 { return w.active.Load() }

// handle serves one connection on this worker, blocking until it errors
// or is closed. It never exits the process's worker pool spontaneously —
// only the connection goroutine it owns exits.
func (w *Worker) handle(conn net.Conn) {
	clientID := uuid.NewString()

	defer w.wg.Done()
	defer w.active.Add(-1)
	defer conn.Close()
	defer w.counters.ClientDisconnected()
	defer w.audit.Disconnected(clientID)
	// A malformed command is memory-safe but not guaranteed sane (§7); this
	// recover is the last line of defense so one bad peer can't take down
	// every other connection's goroutine along with it.
	defer func() {
		if r := recover(); r != nil {
			log.Printf("reactor: recovered panic serving connection: %v", r)
		}
	}()

	w.counters.ClientConnected()
	w.audit.Connected(clientID)
	if err := ingest.ServeConn(conn, w.canvas, w.counters); err != nil {
		// Transport error or peer reset: reported only via the client
		// counter decrement above, no logging on the hot path.
		_ = err
	}
}

// drain blocks until every connection this worker owns has returned, or
// until the grace period elapses.
func (w *Worker) drain(grace time.Duration) {
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(grace):
	}
}

// Pool is the acceptor plus its N workers: one dedicated goroutine owns
// the listening socket, N worker slots receive round-robin dispatched
// connections.
type Pool struct {
	ln       net.Listener
	workers  []*Worker
	next     atomic.Uint64
	acceptWG sync.WaitGroup
}

// New creates a pool of n workers bound to canvas and counters. It does
// not start accepting connections; call Serve for that. n is clamped to at
// least 1: dispatch round-robins by index modulo len(workers), so a pool
// with zero workers would divide by zero on the first accepted connection.
func New(n int, canvas proto.Canvas, counters *telemetry.Counters) *Pool {
	if n < 1 {
		n = 1
	}
	workers := make([]*Worker, n)
	for i := range workers {
		workers[i] = &Worker{id: i, canvas: canvas, counters: counters, audit: nopSink{}}
	}
	return &Pool{workers: workers}
}

// Workers returns the pool's worker descriptors, in dispatch order.
func (p *Pool) Workers() []*Worker { return p.workers }

// SetAudit installs sink on every worker. Call before Serve; sinks are
// read without synchronization on the connection-handling path.
func (p *Pool) SetAudit(sink AuditSink) {
	if sink == nil {
		sink = nopSink{}
	}
	for _, w := range p.workers {
		w.audit = sink
	}
}

// Serve binds addr and starts the accept loop on its own goroutine,
// returning as soon as the listener is bound. The loop runs until
// Shutdown closes the listener; canceling ctx only silences accept errors
// and does not by itself stop the loop. Waiting for the accept goroutine
// and for worker connections to drain is Shutdown's job.
func (p *Pool) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	p.ln = ln

	p.acceptWG.Add(1)
	go p.acceptLoop(ctx)
	return nil
}

func (p *Pool) acceptLoop(ctx context.Context) {
	defer p.acceptWG.Done()
	for {
		conn, err := p.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				// Shutdown closed our listener. Return unconditionally —
				// don't wait on ctx here, since a caller that tears down
				// the listener without also canceling ctx (a headless run
				// with no renderer to drive cancellation) would otherwise
				// spin on this error forever and Pool.Shutdown would never
				// observe acceptWG going to zero.
				return
			}
			select {
			case <-ctx.Done():
				return
			default:
				log.Printf("reactor: accept error: %v", err)
				continue
			}
		}
		p.dispatch(conn)
	}
}

// dispatch assigns conn to worker[counter % N], exactly the source's
// "crap but adequate" load balance: a simple counter-mod, unsorted by
// load.
func (p *Pool) dispatch(conn net.Conn) {
	idx := int(p.next.Add(1)-1) % len(p.workers)
	w := p.workers[idx]
	w.active.Add(1)
	w.wg.Add(1)
	go w.handle(conn)
}

// Shutdown closes the listener, waits for the accept goroutine to exit,
// and gives every worker up to grace to drain its connections — the Go
// analogue of the source's 1-second loop-exit-after timeout on every
// reactor, so shutdown makes progress without waiting on idle workers.
func (p *Pool) Shutdown(grace time.Duration) {
	if p.ln != nil {
		_ = p.ln.Close()
	}
	p.acceptWG.Wait()

	var wg sync.WaitGroup
	for _, w := range p.workers {
		wg.Add(1)
		go func(w *Worker) {
			defer wg.Done()
			w.drain(grace)
		}(w)
	}
	wg.Wait()
}
