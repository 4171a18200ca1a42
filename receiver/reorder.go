package receiver

import (
	"time"

	"github.com/diodelink/diode/protocol"
)

// pendingBlock accumulates shard packets for one (session, block) pair
// until enough have arrived to attempt FEC decoding, or until it expires.
type pendingBlock struct {
	sessionID uint8
	blockID   uint8
	flags     protocol.MessageType
	shards    map[int][]byte
	arrival   time.Time
}

type key struct {
	sessionID uint8
	blockID   uint8
}

// poppedBlock is what Buffer hands back once a block is either complete or
// has expired with whatever shards it managed to collect.
type poppedBlock struct {
	SessionID uint8
	BlockID   uint8
	Flags     protocol.MessageType
	Shards    map[int][]byte
}

// Buffer holds packets for in-flight blocks until each is complete (or
// expires), matching the original's Reorder usage in receive/mod.rs:
// packets for the same block can arrive interleaved with packets for other
// in-flight blocks, across UDP reader goroutines, with no guaranteed order.
type Buffer struct {
	pending map[key]*pendingBlock
	order   []key // arrival order, oldest first, for PopFirst / expiration

	nbSourceShards    int
	expiration        time.Duration
	sessionExpiration time.Duration
}

// SetSessionExpiration configures the horizon beyond which pending state is
// dropped outright (not handed to the decoder at all) regardless of the
// ordinary block expiration timeout — the "evict any pending state older
// than session_expiration_timeout" clause of spec.md §4.9. A zero duration
// disables this extra horizon.
func (b *Buffer) SetSessionExpiration(d time.Duration) {
	b.sessionExpiration = d
}

// NewBuffer builds a Buffer. nbSourceShards is the number of distinct
// source/repair shards at which Push treats a block as complete (the
// receiver passes the FEC codec's Capacity); expiration is how long a partial block may sit before it is
// force-popped as incomplete.
func NewBuffer(nbSourceShards int, expiration time.Duration) *Buffer {
	return &Buffer{
		pending:        make(map[key]*pendingBlock),
		nbSourceShards: nbSourceShards,
		expiration:     expiration,
	}
}

// Init resets the buffer, discarding any in-flight partial blocks. Called
// when an Init-flagged control packet arrives, since it signals the sender
// restarted and any partial state from a previous run is now meaningless.
func (b *Buffer) Init(h protocol.Header) {
	b.Clear()
}

// Clear discards all pending blocks.
func (b *Buffer) Clear() {
	b.pending = make(map[key]*pendingBlock)
	b.order = nil
}

// BlockExpirationTimeout reports the configured expiration duration.
func (b *Buffer) BlockExpirationTimeout() time.Duration {
	return b.expiration
}

// Push records one shard packet for (header.SessionID, header.BlockID). It
// returns the completed block and ok=true once capacity is reached
// (enough distinct shards to attempt decoding); otherwise ok is false and
// the packet is simply buffered alongside any earlier ones for that block.
func (b *Buffer) Push(h protocol.Header, shardIndex int, payload []byte) (poppedBlock, bool) {
	k := key{h.SessionID, h.BlockID}
	pb, exists := b.pending[k]
	if !exists {
		pb = &pendingBlock{
			sessionID: h.SessionID,
			blockID:   h.BlockID,
			shards:    make(map[int][]byte),
			arrival:   time.Now(),
		}
		b.pending[k] = pb
		b.order = append(b.order, k)
	}
	// Flags are the union across every packet of the block: Start/End may
	// arrive on any shard, not necessarily the first or last to arrive.
	pb.flags |= h.MessageType

	if _, dup := pb.shards[shardIndex]; !dup {
		cp := make([]byte, len(payload))
		copy(cp, payload)
		pb.shards[shardIndex] = cp
	}

	if len(pb.shards) >= b.nbSourceShards {
		return b.pop(k), true
	}
	return poppedBlock{}, false
}

// PopFirst force-completes the oldest pending block (by arrival time, with
// wrap-aware (session_id, block_id) order as a tiebreak), whatever shards
// it happens to have, regardless of its age. The receive loop's timeout
// path uses Expired instead, which pops only blocks past the expiration
// timeout.
func (b *Buffer) PopFirst() (poppedBlock, bool) {
	if len(b.order) == 0 {
		return poppedBlock{}, false
	}
	oldestIdx := 0
	oldest := b.pending[b.order[0]]
	for i := 1; i < len(b.order); i++ {
		cand := b.pending[b.order[i]]
		if cand == nil {
			continue
		}
		if cand.arrival.Before(oldest.arrival) ||
			(cand.arrival.Equal(oldest.arrival) && blockBefore(cand, oldest)) {
			oldest = cand
			oldestIdx = i
		}
	}
	return b.pop(b.order[oldestIdx]), true
}

// Expired returns every pending block older than the configured expiration
// timeout, removing them from the buffer. A block older still than
// SetSessionExpiration's horizon is removed but not returned: it is too
// stale to be worth handing to the decoder at all.
func (b *Buffer) Expired(now time.Time) []poppedBlock {
	var out []poppedBlock
	for _, k := range append([]key(nil), b.order...) {
		pb := b.pending[k]
		if pb == nil {
			continue
		}
		age := now.Sub(pb.arrival)
		if b.sessionExpiration > 0 && age >= b.sessionExpiration {
			b.pop(k)
			continue
		}
		if age >= b.expiration {
			out = append(out, b.pop(k))
		}
	}
	return out
}

// blockBefore reports whether a sorts before b in wrap-aware
// (session_id, block_id) order, used only to break arrival-time ties.
func blockBefore(a, b *pendingBlock) bool {
	if a.sessionID != b.sessionID {
		return protocol.SeqAfter(b.sessionID, a.sessionID)
	}
	return protocol.SeqAfter(b.blockID, a.blockID)
}

func (b *Buffer) pop(k key) poppedBlock {
	pb := b.pending[k]
	delete(b.pending, k)
	for i, ok := range b.order {
		if ok == k {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
	return poppedBlock{
		SessionID: pb.sessionID,
		BlockID:   pb.blockID,
		Flags:     pb.flags,
		Shards:    pb.shards,
	}
}

// Len reports the number of blocks currently pending.
func (b *Buffer) Len() int {
	return len(b.pending)
}
