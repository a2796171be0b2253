package client

import "testing"

func TestChainRecordAccumulates(t *testing.T) {
	var c ChainState

	c.Record("resp-1", 2)
	id, acked := c.Snapshot()
	if id != "resp-1" || acked != 2 {
		t.Fatalf("after turn 1: id=%q acked=%d", id, acked)
	}

	c.Record("resp-2", 1)
	id, acked = c.Snapshot()
	if id != "resp-2" || acked != 3 {
		t.Fatalf("after turn 2: id=%q acked=%d", id, acked)
	}
}

func TestChainCountIsMonotonic(t *testing.T) {
	var c ChainState

	c.Record("resp-1", 5)
	c.Record("resp-2", 0)
	c.Record("resp-3", -1)

	_, acked := c.Snapshot()
	if acked != 5 {
		t.Errorf("acked = %d, want 5; count must never decrease", acked)
	}
}

func TestChainReset(t *testing.T) {
	var c ChainState

	c.Record("resp-1", 3)
	c.Reset()

	id, acked := c.Snapshot()
	if id != "" || acked != 0 {
		t.Errorf("after reset: id=%q acked=%d", id, acked)
	}
}
