package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voxaid/voxaid/internal/logging"
)

// TurnBuffer is the ordered in-memory log of unflushed turns for one session.
// Two actors touch it: the orchestrator appends, the sync coordinator drains
// and requeues. Every mutation holds the buffer's own lock so unrelated
// sessions never serialize on each other.
type TurnBuffer struct {
	mu             sync.Mutex
	conversationID string
	turns          []Turn // unflushed, ordered by Seq
	nextSeq        uint64
	inflight       int // turns drained but not yet acked or requeued
	maxUnflushed   int
	dropped        uint64
}

// NewTurnBuffer creates a buffer bounded at maxUnflushed retained turns.
func NewTurnBuffer(conversationID string, maxUnflushed int) *TurnBuffer {
	if maxUnflushed <= 0 {
		maxUnflushed = 200
	}
	return &TurnBuffer{
		conversationID: conversationID,
		maxUnflushed:   maxUnflushed,
		nextSeq:        1,
	}
}

// Append creates a turn with the next sequence number and buffers it.
// When the retained bound is exceeded the oldest buffered turn is dropped
// with a warning; the current turn is never the one dropped.
func (b *TurnBuffer) Append(speaker Speaker, content string) Turn {
	b.mu.Lock()
	defer b.mu.Unlock()

	turn := Turn{
		Seq:            b.nextSeq,
		Speaker:        speaker,
		Content:        content,
		CreatedAt:      time.Now().UTC(),
		ConversationID: b.conversationID,
	}
	b.nextSeq++
	b.turns = append(b.turns, turn)

	for len(b.turns) > b.maxUnflushed {
		b.dropped++
		logging.Warnf("[buffer] %s: unflushed bound %d exceeded, dropping oldest turn seq=%d (total dropped %d)",
			b.conversationID, b.maxUnflushed, b.turns[0].Seq, b.dropped)
		b.turns = b.turns[1:]
	}
	return turn
}

// DrainUpTo removes up to n oldest buffered turns and returns them as a batch
// owned by the caller until Ack or Requeue. Returns nil when nothing is
// buffered. Turns appended while a batch is outstanding are untouched.
func (b *TurnBuffer) DrainUpTo(n int) *Batch {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.turns) == 0 {
		return nil
	}
	if n <= 0 || n > len(b.turns) {
		n = len(b.turns)
	}

	batch := &Batch{
		ID:             uuid.New().String(),
		ConversationID: b.conversationID,
		Turns:          make([]Turn, n),
	}
	copy(batch.Turns, b.turns[:n])
	b.turns = append(b.turns[:0:0], b.turns[n:]...)
	b.inflight += n
	return batch
}

// Requeue returns a failed batch's turns to the front of the buffer so the
// next drain includes them. Batch turns are older than anything buffered, so
// ordering by Seq is preserved.
func (b *TurnBuffer) Requeue(batch *Batch) {
	if batch == nil || len(batch.Turns) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.inflight -= len(batch.Turns)
	if b.inflight < 0 {
		b.inflight = 0
	}
	requeued := make([]Turn, 0, len(batch.Turns)+len(b.turns))
	requeued = append(requeued, batch.Turns...)
	requeued = append(requeued, b.turns...)
	b.turns = requeued
}

// Ack confirms the remote accepted a batch; only now does the unflushed count
// drop for those turns.
func (b *TurnBuffer) Ack(batch *Batch) {
	if batch == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.inflight -= len(batch.Turns)
	if b.inflight < 0 {
		b.inflight = 0
	}
}

// Unflushed reports turns not yet confirmed by the remote, including turns
// currently owned by an in-flight batch.
func (b *TurnBuffer) Unflushed() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.turns) + b.inflight
}

// PairCount reports complete user+bot pairs currently buffered (the flush
// trigger input). A pair completes when its bot turn lands.
func (b *TurnBuffer) PairCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	pairs := 0
	for i := 0; i+1 < len(b.turns); {
		if b.turns[i].Speaker == SpeakerUser && b.turns[i+1].Speaker == SpeakerBot {
			pairs++
			i += 2
		} else {
			i++
		}
	}
	return pairs
}

// LastPairs returns up to n of the newest complete pairs from the buffer.
func (b *TurnBuffer) LastPairs(n int) []Pair {
	b.mu.Lock()
	turns := make([]Turn, len(b.turns))
	copy(turns, b.turns)
	b.mu.Unlock()

	pairs := PairsFromTurns(turns)
	if len(pairs) > n {
		pairs = pairs[len(pairs)-n:]
	}
	return pairs
}

// Restore re-buffers turns recovered from the journal under this buffer's
// conversation and sequence space, preserving speaker, content, and original
// timestamps. Returns the re-sequenced turns so the caller can re-journal
// them. Meant to run before the session takes live traffic.
func (b *TurnBuffer) Restore(turns []Turn) []Turn {
	if len(turns) == 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	restored := make([]Turn, 0, len(turns))
	for _, t := range turns {
		turn := Turn{
			Seq:            b.nextSeq,
			Speaker:        t.Speaker,
			Content:        t.Content,
			CreatedAt:      t.CreatedAt,
			ConversationID: b.conversationID,
		}
		b.nextSeq++
		b.turns = append(b.turns, turn)
		restored = append(restored, turn)
	}
	for len(b.turns) > b.maxUnflushed {
		b.dropped++
		b.turns = b.turns[1:]
	}
	return restored
}

// Dropped reports how many turns the backpressure policy has discarded.
func (b *TurnBuffer) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
