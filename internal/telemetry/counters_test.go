package telemetry

import "testing"

func TestAddPixelsAccumulates(t *testing.T) {
	c := New()
	c.AddPixels(3)
	c.AddPixels(4)
	if got := c.Snapshot().NRPixels; got != 7 {
		t.Fatalf("NRPixels = %d, want 7", got)
	}
}

func TestAddPixelsZeroIsNoOp(t *testing.T) {
	c := New()
	c.AddPixels(0)
	if got := c.Snapshot().NRPixels; got != 0 {
		t.Fatalf("NRPixels = %d, want 0", got)
	}
}

func TestClientConnectDisconnect(t *testing.T) {
	c := New()
	c.ClientConnected()
	c.ClientConnected()
	c.ClientDisconnected()
	if got := c.Snapshot().NRClients; got != 1 {
		t.Fatalf("NRClients = %d, want 1", got)
	}
}

func TestResetDataCnt(t *testing.T) {
	c := New()
	c.AddBytes(1024)
	c.ResetDataCnt()
	if got := c.Snapshot().DataCnt; got != 0 {
		t.Fatalf("DataCnt = %d, want 0 after reset", got)
	}
}

func TestConnectThenCloseReturnsToZero(t *testing.T) {
	c := New()
	before := c.Snapshot().NRClients
	c.ClientConnected()
	c.ClientDisconnected()
	if got := c.Snapshot().NRClients; got != before {
		t.Fatalf("NRClients = %d, want %d after connect/close", got, before)
	}
}
