// Package audit is an optional sqlite-backed log of connection and
// telemetry-snapshot events, grounded in the teacher's search index: a
// modernc.org/sqlite database opened with the same WAL/synchronous/
// cache_size pragmas, written to through a buffered channel drained by
// one background goroutine, so callers never wait on the database (each
// event is still its own INSERT or UPDATE). It never stores framebuffer pixel state —
// that stays exactly what it is in the core engine, an in-memory,
// unsynchronized canvas the display loop snapshots.
package audit

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/karolherbst/pixelflood/internal/telemetry"
)

const schema = `
CREATE TABLE IF NOT EXISTS connections (
	client_id TEXT PRIMARY KEY,
	connected_at INTEGER NOT NULL,
	disconnected_at INTEGER
);

CREATE TABLE IF NOT EXISTS snapshots (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	taken_at INTEGER NOT NULL,
	nr_pixels INTEGER NOT NULL,
	data_cnt INTEGER NOT NULL,
	nr_clients INTEGER NOT NULL
);
`

type event struct {
	kind     string // "connect", "disconnect", or "snapshot"
	clientID string
	at       int64
	snapshot telemetry.Snapshot
}

// Log is an asynchronous sqlite writer for connection and telemetry
// events. A nil *Log is valid and every method on it is a no-op, so
// callers that run with auditing disabled don't need a separate code
// path.
type Log struct {
	db     *sql.DB
	events chan event
	stopCh chan struct{}
	doneCh chan struct{}
}

// Open creates (or reuses) the sqlite database at path and starts the
// background writer. An empty path defaults to
// "pixelflut-audit.db" in the current directory.
func Open(path string) (*Log, error) {
	if path == "" {
		path = "pixelflut-audit.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("audit: create directory: %w", err)
		}
	}

	dsn := path +
		"?_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(NORMAL)" +
		"&_pragma=cache_size(-2000)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("audit: open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: connect: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: create schema: %w", err)
	}

	l := &Log{
		db:     db,
		events: make(chan event, 256),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	go l.writeLoop()
	return l, nil
}

// Connected records a new client connection. No-op on a nil Log.
func (l *Log) Connected(clientID string) {
	if l == nil {
		return
	}
	l.enqueue(event{kind: "connect", clientID: clientID, at: nowUnix()})
}

// Disconnected records a client disconnection. No-op on a nil Log.
func (l *Log) Disconnected(clientID string) {
	if l == nil {
		return
	}
	l.enqueue(event{kind: "disconnect", clientID: clientID, at: nowUnix()})
}

// Snapshot records a telemetry snapshot. No-op on a nil Log.
func (l *Log) Snapshot(snap telemetry.Snapshot) {
	if l == nil {
		return
	}
	l.enqueue(event{kind: "snapshot", snapshot: snap, at: nowUnix()})
}

func (l *Log) enqueue(e event) {
	select {
	case l.events <- e:
	default:
		// Channel full: audit is best-effort telemetry, not the system
		// of record, so a dropped event under extreme load is
		// acceptable rather than blocking the caller's hot path.
	}
}

func (l *Log) writeLoop() {
	defer close(l.doneCh)
	for {
		select {
		case e := <-l.events:
			l.write(e)
		case <-l.stopCh:
			// Drain whatever is already queued before exiting.
			for {
				select {
				case e := <-l.events:
					l.write(e)
				default:
					return
				}
			}
		}
	}
}

func (l *Log) write(e event) {
	var err error
	switch e.kind {
	case "connect":
		_, err = l.db.Exec(
			`INSERT INTO connections(client_id, connected_at) VALUES (?, ?)`,
			e.clientID, e.at)
	case "disconnect":
		_, err = l.db.Exec(
			`UPDATE connections SET disconnected_at = ? WHERE client_id = ?`,
			e.at, e.clientID)
	case "snapshot":
		_, err = l.db.Exec(
			`INSERT INTO snapshots(taken_at, nr_pixels, data_cnt, nr_clients) VALUES (?, ?, ?, ?)`,
			e.at, e.snapshot.NRPixels, e.snapshot.DataCnt, e.snapshot.NRClients)
	}
	if err != nil {
		// The audit log is diagnostic; a write failure here must not
		// propagate to the ingest hot path.
		_ = err
	}
}

// Close stops the background writer, draining any queued events, and
// closes the database. No-op on a nil Log.
func (l *Log) Close() error {
	if l == nil {
		return nil
	}
	close(l.stopCh)
	<-l.doneCh
	return l.db.Close()
}

func nowUnix() int64 {
	return time.Now().Unix()
}
