package receiver

import (
	"testing"
	"time"

	"github.com/diodelink/diode/protocol"
)

func TestPushCompletesAtCapacity(t *testing.T) {
	b := NewBuffer(3, time.Second)
	h := protocol.Header{MessageType: protocol.Data, SessionID: 1, BlockID: 1}

	if _, ok := b.Push(h, 0, []byte("a")); ok {
		t.Fatal("unexpected completion after 1 of 3 shards")
	}
	if _, ok := b.Push(h, 1, []byte("b")); ok {
		t.Fatal("unexpected completion after 2 of 3 shards")
	}
	pb, ok := b.Push(h, 2, []byte("c"))
	if !ok {
		t.Fatal("expected completion after 3 of 3 shards")
	}
	if len(pb.Shards) != 3 {
		t.Errorf("got %d shards, want 3", len(pb.Shards))
	}
	if b.Len() != 0 {
		t.Errorf("buffer should be empty after completion, got %d pending", b.Len())
	}
}

func TestPushUnionsFlags(t *testing.T) {
	b := NewBuffer(2, time.Second)
	start := protocol.Header{MessageType: protocol.Start, SessionID: 1, BlockID: 1}
	end := protocol.Header{MessageType: protocol.Data | protocol.End, SessionID: 1, BlockID: 1}

	b.Push(start, 0, []byte("a"))
	pb, ok := b.Push(end, 1, []byte("b"))
	if !ok {
		t.Fatal("expected completion")
	}
	if !pb.Flags.Has(protocol.Start) || !pb.Flags.Has(protocol.End) {
		t.Errorf("flags = %v, want Start and End both set", pb.Flags)
	}
}

func TestDuplicateShardIgnored(t *testing.T) {
	b := NewBuffer(2, time.Second)
	h := protocol.Header{SessionID: 1, BlockID: 1}
	b.Push(h, 0, []byte("first"))
	b.Push(h, 0, []byte("second")) // duplicate index, should not overwrite or double-count

	pending := b.pending[key{1, 1}]
	if len(pending.shards) != 1 {
		t.Fatalf("got %d distinct shards, want 1", len(pending.shards))
	}
	if string(pending.shards[0]) != "first" {
		t.Errorf("duplicate shard overwrote original data")
	}
}

func TestPopFirstPicksOldestByArrival(t *testing.T) {
	b := NewBuffer(10, time.Second)
	b.Push(protocol.Header{SessionID: 1, BlockID: 1}, 0, []byte("old"))
	time.Sleep(5 * time.Millisecond)
	b.Push(protocol.Header{SessionID: 1, BlockID: 2}, 0, []byte("new"))

	popped, ok := b.PopFirst()
	if !ok {
		t.Fatal("expected a block to pop")
	}
	if popped.BlockID != 1 {
		t.Errorf("popped block %d, want the older block 1", popped.BlockID)
	}
}

func TestExpiredRemovesOldBlocks(t *testing.T) {
	b := NewBuffer(10, 10*time.Millisecond)
	b.Push(protocol.Header{SessionID: 1, BlockID: 1}, 0, []byte("a"))
	time.Sleep(20 * time.Millisecond)

	expired := b.Expired(time.Now())
	if len(expired) != 1 {
		t.Fatalf("got %d expired blocks, want 1", len(expired))
	}
	if b.Len() != 0 {
		t.Errorf("expired block should be removed from buffer")
	}
}

func TestInitClearsBuffer(t *testing.T) {
	b := NewBuffer(10, time.Second)
	b.Push(protocol.Header{SessionID: 1, BlockID: 1}, 0, []byte("a"))
	b.Init(protocol.Header{MessageType: protocol.Init})
	if b.Len() != 0 {
		t.Errorf("Init should clear all pending blocks, got %d", b.Len())
	}
}
