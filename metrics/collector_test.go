package metrics

import "testing"

func TestCollector_Counters(t *testing.T) {
	c := NewCollector("chat-1")

	c.IncFragmentsReceived()
	c.IncFragmentsReceived()
	c.IncFragmentsSkipped("foreign_recipient")
	c.IncFragmentsSkipped("foreign_recipient")
	c.IncFragmentsSkipped("decode_failure")
	c.IncFrameDecodeErrors()
	c.IncArtifactsOpened()
	c.IncArtifactsFinalized()
	c.IncArtifactsUpserted()
	c.IncSessionsLoaded()

	s := c.Snapshot()
	if s.FragmentsReceived != 2 {
		t.Errorf("FragmentsReceived = %d, want 2", s.FragmentsReceived)
	}
	if s.FragmentsSkipped != 3 {
		t.Errorf("FragmentsSkipped = %d, want 3", s.FragmentsSkipped)
	}
	if s.SkippedByReason["foreign_recipient"] != 2 {
		t.Errorf("SkippedByReason[foreign_recipient] = %d, want 2", s.SkippedByReason["foreign_recipient"])
	}
	if s.ChatID != "chat-1" {
		t.Errorf("ChatID = %q", s.ChatID)
	}
}

func TestCollector_NilSafe(t *testing.T) {
	var c *Collector
	c.IncFragmentsReceived()
	c.IncFragmentsSkipped("x")
	c.IncFrameDecodeErrors()
	c.IncArtifactsOpened()
	c.IncArtifactsFinalized()
	c.IncArtifactsUpserted()
	c.IncMediaParseFallbacks()
	c.IncSessionsLoaded()
	c.IncStoreLoadFailures()

	s := c.Snapshot()
	if s.FragmentsReceived != 0 || s.SkippedByReason == nil {
		t.Error("nil collector snapshot should be empty but usable")
	}
}

func TestCollector_SnapshotIsolation(t *testing.T) {
	c := NewCollector("")
	c.IncFragmentsSkipped("a")

	s := c.Snapshot()
	s.SkippedByReason["a"] = 99

	if c.Snapshot().SkippedByReason["a"] != 1 {
		t.Error("snapshot map must be a copy, not a live reference")
	}
}
