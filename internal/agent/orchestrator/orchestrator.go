// Package orchestrator drives one voice session: it turns each recognized
// utterance into a routed action, records both sides of the exchange in the
// turn buffer and journal, and decides when the sync coordinator should
// flush.
package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/voxaid/voxaid/internal/agent/router"
	"github.com/voxaid/voxaid/internal/agent/session"
	"github.com/voxaid/voxaid/internal/agent/tools"
	"github.com/voxaid/voxaid/internal/logging"
)

// State is the session lifecycle phase, mostly for observability.
type State int

const (
	StateIdle State = iota
	StateDispatching
	StateResponding
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDispatching:
		return "dispatching"
	case StateResponding:
		return "responding"
	case StateClosed:
		return "closed"
	default:
		return "idle"
	}
}

// ErrNoUtterance is returned for empty or whitespace-only recognitions;
// they produce no turn and no reply.
var ErrNoUtterance = errors.New("empty utterance")

// ErrClosed is returned once the session has been shut down.
var ErrClosed = errors.New("session closed")

const (
	unavailableReply = "I'm sorry, I'm having trouble reaching the assistant service right now. Please try again in a moment."
	errorReply       = "I'm sorry, something went wrong handling that. Please try again."
)

// Journal records turns durably as they are created. Satisfied by
// *journal.Journal; may be nil when running without local persistence.
type Journal interface {
	Append(userID string, turn session.Turn) error
}

// Flusher is the sync coordinator surface the orchestrator needs.
type Flusher interface {
	Kick()
	Close()
}

// Orchestrator handles utterances for one session, one at a time.
type Orchestrator struct {
	sess    *session.Session
	router  *router.Router
	flusher Flusher
	journal Journal

	pairsToFlush int
	contextPairs int

	mu     sync.Mutex
	state  State
	seeded []session.Pair
	cancel context.CancelFunc // in-flight dispatch, nil when idle
	closed bool
}

// New creates an orchestrator for the session. pairsToFlush is the buffered
// pair count that triggers a flush; contextPairs caps the history handed to
// the reply model.
func New(sess *session.Session, r *router.Router, flusher Flusher, journal Journal, pairsToFlush, contextPairs int) *Orchestrator {
	if pairsToFlush <= 0 {
		pairsToFlush = 5
	}
	if contextPairs <= 0 {
		contextPairs = 5
	}
	return &Orchestrator{
		sess:         sess,
		router:       r,
		flusher:      flusher,
		journal:      journal,
		pairsToFlush: pairsToFlush,
		contextPairs: contextPairs,
	}
}

// Seed installs remote history pairs used as older context before anything
// the buffer holds. Called once at session start.
func (o *Orchestrator) Seed(pairs []session.Pair) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seeded = pairs
}

// State reports the current lifecycle phase.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// HandleUtterance processes one recognized utterance and returns the spoken
// reply. Utterances for a session are handled strictly one at a time; the
// user turn is buffered and journaled before dispatch, the bot turn after.
func (o *Orchestrator) HandleUtterance(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrNoUtterance
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return "", ErrClosed
	}
	o.state = StateDispatching
	dispatchCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.mu.Unlock()
	defer cancel()

	userTurn := o.sess.Buffer.Append(session.SpeakerUser, text)
	o.journalTurn(userTurn)

	history := o.history()
	result := o.router.Route(dispatchCtx, text, history)
	if result.Status == tools.StatusUnavailable {
		logging.Warnf("[orchestrator] %s: provider unavailable, retrying once", o.sess.ID)
		result = o.router.Route(dispatchCtx, text, history)
	}

	reply := result.Content
	switch result.Status {
	case tools.StatusOK, tools.StatusNotFound:
		// Content is already phrased for speech.
	case tools.StatusUnavailable:
		reply = unavailableReply
	default:
		logging.Errorf("[orchestrator] %s: dispatch failed: %s", o.sess.ID, result.Content)
		reply = errorReply
	}

	o.mu.Lock()
	if !o.closed {
		o.state = StateResponding
	}
	o.mu.Unlock()

	botTurn := o.sess.Buffer.Append(session.SpeakerBot, reply)
	o.journalTurn(botTurn)

	if o.sess.Buffer.PairCount() >= o.pairsToFlush && o.flusher != nil {
		o.flusher.Kick()
	}

	o.mu.Lock()
	o.cancel = nil
	if !o.closed {
		o.state = StateIdle
	}
	o.mu.Unlock()
	return reply, nil
}

// Close cancels any in-flight dispatch and runs the coordinator's final
// flush. Safe to call more than once; never returns an error because close
// must always complete.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	o.state = StateClosed
	cancel := o.cancel
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if o.flusher != nil {
		o.flusher.Close()
	}
	logging.Infof("[orchestrator] %s: session closed (%d turns unflushed)", o.sess.ID, o.sess.Buffer.Unflushed())
}

// history merges seeded remote pairs (older) with buffered pairs (newer) and
// returns the newest contextPairs of them.
func (o *Orchestrator) history() []session.Pair {
	o.mu.Lock()
	seeded := o.seeded
	o.mu.Unlock()

	buffered := o.sess.Buffer.LastPairs(o.contextPairs)
	merged := make([]session.Pair, 0, len(seeded)+len(buffered))
	merged = append(merged, seeded...)
	merged = append(merged, buffered...)
	if len(merged) > o.contextPairs {
		merged = merged[len(merged)-o.contextPairs:]
	}
	return merged
}

func (o *Orchestrator) journalTurn(turn session.Turn) {
	if o.journal == nil {
		return
	}
	if err := o.journal.Append(o.sess.UserID, turn); err != nil {
		logging.Warnf("[orchestrator] %s: journal append failed: %v", o.sess.ID, err)
	}
}
