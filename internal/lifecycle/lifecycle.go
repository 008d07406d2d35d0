// Package lifecycle orchestrates startup and shutdown the way the
// teacher's Server.Start/Stop pair does: a one-shot readiness signal
// gates whatever waits on the framebuffer being live, and shutdown runs
// every stopper concurrently and bounds the wait with a context deadline.
package lifecycle

import (
	"context"
	"sync"
)

// Ready is a one-shot startup rendezvous: the display setup fires it once
// the framebuffer and the display backend are in place, and the acceptor,
// which must not start before then, blocks on it before binding its
// listener instead of polling.
type Ready struct {
	once sync.Once
	ch   chan struct{}
}

// NewReady returns an unfired Ready gate.
func NewReady() *Ready {
	return &Ready{ch: make(chan struct{})}
}

// Fire signals readiness. Safe to call more than once; only the first
// call has any effect.
func (r *Ready) Fire() {
	r.once.Do(func() { close(r.ch) })
}

// Wait blocks until Fire has been called, ctx is canceled, or returns
// whichever happens first.
func (r *Ready) Wait(ctx context.Context) error {
	select {
	case <-r.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stopper is anything shutdown needs to join: the reactor pool's
// Shutdown(grace) and the display loop's Run both fit this shape once
// wrapped in a closure.
type Stopper func()

// Shutdown starts every stopper at once, each in its own goroutine so a
// slow one doesn't block the others, with no ordering between them, then waits for all of them
// or for ctx's deadline, matching the teacher's Stop(ctx): close signals
// first, then wait bounded by the caller's context.
func Shutdown(ctx context.Context, stoppers ...Stopper) error {
	var wg sync.WaitGroup
	for _, stop := range stoppers {
		wg.Add(1)
		go func(stop Stopper) {
			defer wg.Done()
			stop()
		}(stop)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
