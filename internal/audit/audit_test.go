package audit

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/karolherbst/pixelflood/internal/telemetry"
)

func TestNilLogMethodsAreNoOps(t *testing.T) {
	var l *Log
	l.Connected("client-1")
	l.Disconnected("client-1")
	l.Snapshot(telemetry.Snapshot{})
	if err := l.Close(); err != nil {
		t.Fatalf("Close on nil Log returned error: %v", err)
	}
}

func TestConnectedThenDisconnectedPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	l, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	l.Connected("client-1")
	l.Disconnected("client-1")
	l.Snapshot(telemetry.Snapshot{NRPixels: 10, DataCnt: 100, NRClients: 1})

	// Close drains the async writer before closing the database, so the
	// rows below are guaranteed to be visible.
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("reopen database: %v", err)
	}
	defer db.Close()

	var disconnectedAt sql.NullInt64
	if err := db.QueryRow(`SELECT disconnected_at FROM connections WHERE client_id = ?`, "client-1").Scan(&disconnectedAt); err != nil {
		t.Fatalf("query connections: %v", err)
	}
	if !disconnectedAt.Valid {
		t.Fatalf("expected disconnected_at to be set")
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM snapshots`).Scan(&count); err != nil {
		t.Fatalf("query snapshots: %v", err)
	}
	if count != 1 {
		t.Fatalf("snapshots count = %d, want 1", count)
	}
}

func TestOpenDefaultsEmptyPath(t *testing.T) {
	t.Chdir(t.TempDir())

	l, err := Open("")
	if err != nil {
		t.Fatalf("Open(\"\"): %v", err)
	}
	defer l.Close()
}
