// Package telemetry holds the process-wide atomic counters the display
// overlay and the audit log both read: pixels painted, bytes consumed,
// and live client count. Updates are fetch-add/sub on the hot path;
// nothing here ever takes a lock.
package telemetry

import "sync/atomic"

// Counters is the three-quantity contract described in the spec: a
// monotone pixel count, a per-tick byte count, and a signed client count.
type Counters struct {
	nrPixels  atomic.Uint64
	dataCnt   atomic.Uint64
	nrClients atomic.Int32
}

// New returns a zeroed counter set.
func New() *Counters {
	return &Counters{}
}

// AddPixels is called once per readable notification with the number of
// successful in-bounds writes parsed from that read, not once per pixel —
// the single largest contention-reduction technique in the ingest path.
func (c *Counters) AddPixels(n int) {
	if n == 0 {
		return
	}
	c.nrPixels.Add(uint64(n))
}

// AddBytes adds the bytes consumed by one readable notification.
func (c *Counters) AddBytes(n int) {
	if n == 0 {
		return
	}
	c.dataCnt.Add(uint64(n))
}

// ClientConnected increments the live client count.
func (c *Counters) ClientConnected() {
	c.nrClients.Add(1)
}

// ClientDisconnected decrements the live client count.
func (c *Counters) ClientDisconnected() {
	c.nrClients.Add(-1)
}

// Snapshot is a point-in-time read of all three counters, taken by the
// display loop once per telemetry tick.
type Snapshot struct {
	NRPixels  uint64
	DataCnt   uint64
	NRClients int32
}

// Snapshot reads the current counter values with relaxed loads.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		NRPixels:  c.nrPixels.Load(),
		DataCnt:   c.dataCnt.Load(),
		NRClients: c.nrClients.Load(),
	}
}

// ResetDataCnt zeroes the per-tick byte counter. This is a plain store, not
// a fetch-and-zero: a handful of bytes added concurrently with the reset
// can be lost. That drift is accepted — data_cnt is best-effort telemetry,
// never a correctness input.
func (c *Counters) ResetDataCnt() {
	c.dataCnt.Store(0)
}
