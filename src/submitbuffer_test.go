package lacore

import "testing"

func TestSubmitBufferFlushesWholeUnitsOnly(t *testing.T) {
	var feed = &fakeFeed{}
	var sb = newSubmitBuffer(feed, 2, 0)
	sb.PutSample(0x1234)
	sb.PutSample(0x5678)
	sb.Flush()

	if len(feed.logic) != 1 {
		t.Fatalf("got %d df-logic packets, want 1", len(feed.logic))
	}
	var want = []byte{0x34, 0x12, 0x78, 0x56}
	var got = feed.logic[0]
	if len(got) != len(want) {
		t.Fatalf("got %d bytes, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("byte %d: got %#02x, want %#02x", i, got[i], want[i])
		}
	}
}

func TestSubmitBufferTruncatesAtLimit(t *testing.T) {
	var feed = &fakeFeed{}
	var sb = newSubmitBuffer(feed, 2, 2)
	sb.PutSample(1)
	sb.PutSample(2)
	sb.PutSample(3) // dropped
	sb.PutSample(4) // dropped
	sb.Flush()

	if sb.Emitted() != 2 {
		t.Fatalf("Emitted() = %d, want 2", sb.Emitted())
	}
	if !sb.Truncated() {
		t.Fatal("expected Truncated() true")
	}
	if feed.totalUnits() != 2 {
		t.Fatalf("feed received %d units, want 2", feed.totalUnits())
	}
}

func TestSubmitBufferAutoFlushesOnceBoundExceeded(t *testing.T) {
	var feed = &fakeFeed{}
	var sb = newSubmitBuffer(feed, 2, 0)
	var n = submitBufferFlushBytes/2 + 10
	for i := 0; i < n; i++ {
		sb.PutSample(uint16(i))
	}
	if len(feed.logic) == 0 {
		t.Fatal("expected at least one automatic flush before PutSample loop ended")
	}
}

func TestSubmitBufferSingleByteUnits(t *testing.T) {
	var feed = &fakeFeed{}
	var sb = newSubmitBuffer(feed, 1, 0)
	sb.PutSample(0xab)
	sb.PutSample(0xcd)
	sb.Flush()
	if len(feed.logic) != 1 || len(feed.logic[0]) != 2 {
		t.Fatalf("got %+v", feed.logic)
	}
	if feed.logic[0][0] != 0xab || feed.logic[0][1] != 0xcd {
		t.Fatalf("got %#v", feed.logic[0])
	}
}
