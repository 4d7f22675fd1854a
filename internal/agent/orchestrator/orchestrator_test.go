package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/voxaid/voxaid/internal/agent/ai"
	"github.com/voxaid/voxaid/internal/agent/router"
	"github.com/voxaid/voxaid/internal/agent/session"
	"github.com/voxaid/voxaid/internal/agent/tools"
)

type fakeProvider struct {
	mu      sync.Mutex
	reply   string
	err     error
	failFor int // fail this many calls, then succeed
	calls   int
}

func (f *fakeProvider) ID() string { return "fake" }

func (f *fakeProvider) Complete(context.Context, *ai.ChatRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failFor > 0 {
		f.failFor--
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeProvider) AnalyzeImage(context.Context, string, string, string) (string, error) {
	return f.reply, f.err
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeFlusher struct {
	mu     sync.Mutex
	kicks  int
	closed bool
}

func (f *fakeFlusher) Kick() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kicks++
}

func (f *fakeFlusher) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeFlusher) kickCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.kicks
}

type fakeJournal struct {
	mu    sync.Mutex
	turns []session.Turn
}

func (f *fakeJournal) Append(_ string, turn session.Turn) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.turns = append(f.turns, turn)
	return nil
}

func newTestOrchestrator(provider *fakeProvider, withClock bool) (*Orchestrator, *session.Session, *fakeFlusher, *fakeJournal) {
	sess := session.New("alice", 200)
	registry := tools.NewRegistry()
	if withClock {
		registry.Register(tools.NewClockTool())
	}
	flusher := &fakeFlusher{}
	jnl := &fakeJournal{}
	orch := New(sess, router.New(registry, provider), flusher, jnl, 5, 5)
	return orch, sess, flusher, jnl
}

func TestHandleUtteranceRecordsBothTurns(t *testing.T) {
	provider := &fakeProvider{reply: "Doing great."}
	orch, sess, _, jnl := newTestOrchestrator(provider, false)

	reply, err := orch.HandleUtterance(context.Background(), "how are you")
	if err != nil {
		t.Fatalf("handle failed: %v", err)
	}
	if reply != "Doing great." {
		t.Fatalf("unexpected reply %q", reply)
	}
	if sess.Buffer.Unflushed() != 2 {
		t.Fatalf("expected user and bot turns buffered, got %d", sess.Buffer.Unflushed())
	}

	jnl.mu.Lock()
	defer jnl.mu.Unlock()
	if len(jnl.turns) != 2 {
		t.Fatalf("expected 2 journaled turns, got %d", len(jnl.turns))
	}
	if jnl.turns[0].Speaker != session.SpeakerUser || jnl.turns[1].Speaker != session.SpeakerBot {
		t.Fatal("journal order wrong")
	}
}

func TestHandleUtteranceEmptyTextIsNoTurn(t *testing.T) {
	orch, sess, _, _ := newTestOrchestrator(&fakeProvider{}, false)

	if _, err := orch.HandleUtterance(context.Background(), "   "); err != ErrNoUtterance {
		t.Fatalf("expected ErrNoUtterance, got %v", err)
	}
	if sess.Buffer.Unflushed() != 0 {
		t.Fatal("empty utterance must not create turns")
	}
}

func TestTimeRequestDoesNotTriggerFlushBelowThreshold(t *testing.T) {
	orch, _, flusher, _ := newTestOrchestrator(&fakeProvider{}, true)

	if _, err := orch.HandleUtterance(context.Background(), "what time is it"); err != nil {
		t.Fatalf("handle failed: %v", err)
	}
	if flusher.kickCount() != 0 {
		t.Fatalf("one pair must not trigger a flush, got %d kicks", flusher.kickCount())
	}
}

func TestFlushTriggersAtPairThreshold(t *testing.T) {
	provider := &fakeProvider{reply: "ok"}
	orch, _, flusher, _ := newTestOrchestrator(provider, false)

	for i := 0; i < 5; i++ {
		if _, err := orch.HandleUtterance(context.Background(), fmt.Sprintf("question %d", i)); err != nil {
			t.Fatalf("handle failed: %v", err)
		}
	}
	if flusher.kickCount() != 1 {
		t.Fatalf("expected exactly one kick at 5 pairs, got %d", flusher.kickCount())
	}
}

func TestUnavailableProviderRetriesOnceThenApologizes(t *testing.T) {
	provider := &fakeProvider{err: fmt.Errorf("%w: timeout", ai.ErrUnavailable), failFor: 100}
	orch, sess, _, _ := newTestOrchestrator(provider, false)

	reply, err := orch.HandleUtterance(context.Background(), "hello there")
	if err != nil {
		t.Fatalf("handle failed: %v", err)
	}
	if provider.callCount() != 2 {
		t.Fatalf("expected one retry (2 calls), got %d", provider.callCount())
	}
	if reply != unavailableReply {
		t.Fatalf("expected the unavailable apology, got %q", reply)
	}
	// The exchange is still recorded so the user can revisit it later.
	if sess.Buffer.Unflushed() != 2 {
		t.Fatalf("expected both turns buffered, got %d", sess.Buffer.Unflushed())
	}
}

func TestUnavailableProviderRecoversOnRetry(t *testing.T) {
	provider := &fakeProvider{err: fmt.Errorf("%w: timeout", ai.ErrUnavailable), failFor: 1, reply: "Hello."}
	orch, _, _, _ := newTestOrchestrator(provider, false)

	reply, err := orch.HandleUtterance(context.Background(), "hello there")
	if err != nil {
		t.Fatalf("handle failed: %v", err)
	}
	if reply != "Hello." {
		t.Fatalf("expected the retried reply, got %q", reply)
	}
}

func TestCloseStopsNewUtterances(t *testing.T) {
	orch, _, flusher, _ := newTestOrchestrator(&fakeProvider{reply: "hi"}, false)

	orch.Close()
	if !flusher.closed {
		t.Fatal("close must run the coordinator's final flush")
	}
	if orch.State() != StateClosed {
		t.Fatalf("expected closed state, got %v", orch.State())
	}
	if _, err := orch.HandleUtterance(context.Background(), "anyone there"); err != ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}

	// A second close is a no-op.
	orch.Close()
}

// stateJournal records the orchestrator's state at each journaled turn, which
// pins down the Dispatching and Responding phases of one exchange.
type stateJournal struct {
	orch   *Orchestrator
	states []State
}

func (s *stateJournal) Append(_ string, _ session.Turn) error {
	s.states = append(s.states, s.orch.State())
	return nil
}

func TestStateTransitionsAcrossOneExchange(t *testing.T) {
	sess := session.New("alice", 200)
	jnl := &stateJournal{}
	orch := New(sess, router.New(tools.NewRegistry(), &fakeProvider{reply: "hi"}), &fakeFlusher{}, jnl, 5, 5)
	jnl.orch = orch

	if orch.State() != StateIdle {
		t.Fatalf("expected idle before any utterance, got %v", orch.State())
	}
	if _, err := orch.HandleUtterance(context.Background(), "hello"); err != nil {
		t.Fatalf("handle failed: %v", err)
	}
	if len(jnl.states) != 2 {
		t.Fatalf("expected 2 journaled turns, got %d", len(jnl.states))
	}
	if jnl.states[0] != StateDispatching {
		t.Fatalf("user turn journaled in state %v, want dispatching", jnl.states[0])
	}
	if jnl.states[1] != StateResponding {
		t.Fatalf("bot turn journaled in state %v, want responding", jnl.states[1])
	}
	if orch.State() != StateIdle {
		t.Fatalf("expected idle after the exchange, got %v", orch.State())
	}
}

func TestSeededHistoryPrecedesBufferedPairs(t *testing.T) {
	provider := &fakeProvider{reply: "noted"}
	orch, _, _, _ := newTestOrchestrator(provider, false)

	orch.Seed([]session.Pair{{User: "older question", Bot: "older answer"}})

	if _, err := orch.HandleUtterance(context.Background(), "first live question"); err != nil {
		t.Fatalf("handle failed: %v", err)
	}

	history := orch.history()
	if len(history) != 2 {
		t.Fatalf("expected seeded + buffered pair, got %d", len(history))
	}
	if history[0].User != "older question" {
		t.Fatalf("seeded pair must come first, got %q", history[0].User)
	}
	if history[1].User != "first live question" {
		t.Fatalf("buffered pair must come last, got %q", history[1].User)
	}
}
