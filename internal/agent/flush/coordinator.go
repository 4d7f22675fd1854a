// Package flush runs the per-session sync coordinator: a single goroutine
// that drains the turn buffer into batches and posts them to the backend,
// retrying with exponential backoff on failure. One goroutine per session is
// what guarantees batches for a conversation are delivered in order.
package flush

import (
	"context"
	"sync"
	"time"

	"github.com/voxaid/voxaid/internal/agent/session"
	"github.com/voxaid/voxaid/internal/logging"
)

// Remote posts a batch of turns to the conversation backend.
type Remote interface {
	PostBatch(ctx context.Context, batch *session.Batch) error
}

// Marker records durable flush progress. Satisfied by *journal.Journal.
type Marker interface {
	MarkFlushed(batch *session.Batch) error
}

// Options tune retry and deadline behavior.
type Options struct {
	BackoffBase  time.Duration // first retry delay, doubles per failure
	BackoffMax   time.Duration // delay cap
	FlushTimeout time.Duration // per-attempt deadline
	CloseTimeout time.Duration // budget for the final flush on Close
}

func (o *Options) withDefaults() Options {
	opts := Options{
		BackoffBase:  time.Second,
		BackoffMax:   60 * time.Second,
		FlushTimeout: 10 * time.Second,
		CloseTimeout: 5 * time.Second,
	}
	if o == nil {
		return opts
	}
	if o.BackoffBase > 0 {
		opts.BackoffBase = o.BackoffBase
	}
	if o.BackoffMax > 0 {
		opts.BackoffMax = o.BackoffMax
	}
	if o.FlushTimeout > 0 {
		opts.FlushTimeout = o.FlushTimeout
	}
	if o.CloseTimeout > 0 {
		opts.CloseTimeout = o.CloseTimeout
	}
	return opts
}

// Coordinator owns a session's flush loop. Kick wakes it; Close drains what it
// can within the close budget and stops it.
type Coordinator struct {
	buffer *session.TurnBuffer
	remote Remote
	marker Marker // may be nil
	opts   Options

	kick   chan struct{}
	stopCh chan struct{}
	doneCh chan struct{}

	closeOnce sync.Once
}

// NewCoordinator starts the flush goroutine for one session.
func NewCoordinator(buffer *session.TurnBuffer, remote Remote, marker Marker, opts *Options) *Coordinator {
	c := &Coordinator{
		buffer: buffer,
		remote: remote,
		marker: marker,
		opts:   opts.withDefaults(),
		kick:   make(chan struct{}, 1),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	go c.run()
	return c
}

// Kick asks the coordinator to flush soon. Non-blocking; a kick while one is
// already pending is a no-op.
func (c *Coordinator) Kick() {
	select {
	case c.kick <- struct{}{}:
	default:
	}
}

// Close performs a final bounded flush of anything still buffered and stops
// the loop. Failures are logged, never returned; the journal keeps anything
// the final flush could not deliver.
func (c *Coordinator) Close() {
	c.closeOnce.Do(func() {
		close(c.stopCh)
		<-c.doneCh
	})
}

func (c *Coordinator) run() {
	defer close(c.doneCh)

	for {
		select {
		case <-c.stopCh:
			c.finalFlush()
			return
		case <-c.kick:
			if !c.drain() {
				return
			}
		}
	}
}

// drain posts batches until the buffer is empty, backing off on failure.
// Returns false when a stop arrived mid-drain, after the final flush ran.
func (c *Coordinator) drain() bool {
	backoff := c.opts.BackoffBase
	for {
		batch := c.buffer.DrainUpTo(0)
		if batch == nil {
			return true
		}
		if err := c.attempt(batch); err != nil {
			c.buffer.Requeue(batch)
			logging.Warnf("[flush] %s: batch %s (%d turns) failed, retrying in %s: %v",
				batch.ConversationID, batch.ID, len(batch.Turns), backoff, err)
			select {
			case <-c.stopCh:
				c.finalFlush()
				return false
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > c.opts.BackoffMax {
				backoff = c.opts.BackoffMax
			}
			continue
		}
		backoff = c.opts.BackoffBase
	}
}

// attempt posts one batch. The attempt context is deliberately detached from
// any session context: a session closing must not cancel a flush already on
// the wire.
func (c *Coordinator) attempt(batch *session.Batch) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.FlushTimeout)
	defer cancel()

	if err := c.remote.PostBatch(ctx, batch); err != nil {
		return err
	}
	c.buffer.Ack(batch)
	if c.marker != nil {
		if err := c.marker.MarkFlushed(batch); err != nil {
			logging.Warnf("[flush] %s: mark flushed failed for batch %s: %v", batch.ConversationID, batch.ID, err)
		}
	}
	return nil
}

func (c *Coordinator) finalFlush() {
	deadline := time.Now().Add(c.opts.CloseTimeout)
	for time.Now().Before(deadline) {
		batch := c.buffer.DrainUpTo(0)
		if batch == nil {
			return
		}
		if err := c.attempt(batch); err != nil {
			c.buffer.Requeue(batch)
			logging.Warnf("[flush] %s: final flush failed, %d turns remain journaled: %v",
				batch.ConversationID, c.buffer.Unflushed(), err)
			return
		}
	}
	if n := c.buffer.Unflushed(); n > 0 {
		logging.Warnf("[flush] close budget spent with %d turns unflushed", n)
	}
}
