package voice

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voxaid/voxaid/internal/agent/ai"
	"github.com/voxaid/voxaid/internal/agent/flush"
	"github.com/voxaid/voxaid/internal/agent/orchestrator"
	"github.com/voxaid/voxaid/internal/agent/router"
	"github.com/voxaid/voxaid/internal/agent/session"
	"github.com/voxaid/voxaid/internal/agent/tools"
	"github.com/voxaid/voxaid/internal/config"
	"github.com/voxaid/voxaid/internal/docs"
	"github.com/voxaid/voxaid/internal/logging"
)

const (
	// frameMaxAge is how long an uploaded camera snapshot stays usable for
	// the vision tool before it counts as no feed.
	frameMaxAge = 10 * time.Second

	// utteranceQueue bounds utterances waiting while one is dispatched.
	utteranceQueue = 8

	seedTimeout = 10 * time.Second
)

// Backend is the conversation-history service surface the voice layer needs.
// Satisfied by *history.Client.
type Backend interface {
	PostBatch(ctx context.Context, batch *session.Batch) error
	LastPairs(ctx context.Context, n int) ([]session.Pair, error)
}

// Journal is the durable turn spool surface. Satisfied by *journal.Journal;
// may be nil.
type Journal interface {
	Append(userID string, turn session.Turn) error
	MarkFlushed(batch *session.Batch) error
	DrainUnflushed(userID string) ([]session.Turn, error)
}

// Deps holds the shared dependencies every voice connection wires into its
// session.
type Deps struct {
	Sessions *session.Registry
	Provider ai.Provider
	Docs     *docs.Index
	Backend  Backend
	Journal  Journal // may be nil

	Conversation config.ConversationConfig
	Sync         config.SyncConfig
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub accepts voice WebSocket connections and enforces one live connection
// per user: a new connection for a user terminates the older one.
type Hub struct {
	deps Deps

	mu    sync.Mutex
	conns map[string]*Conn // by user ID
}

// NewHub creates a hub over the shared dependencies.
func NewHub(deps Deps) *Hub {
	return &Hub{deps: deps, conns: make(map[string]*Conn)}
}

// Handler upgrades to a voice WebSocket and serves it until the client
// disconnects or is displaced.
func (h *Hub) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user")
		if userID == "" {
			userID = "default"
		}

		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logging.Errorf("[voice] upgrade failed: %v", err)
			return
		}

		conn := newConn(newWSTransport(ws), h.deps, userID)
		conn.start(r.Context())

		// Register only after start: a displaced conn's Shutdown must
		// always find a fully wired session stack to tear down.
		h.mu.Lock()
		old := h.conns[userID]
		h.conns[userID] = conn
		h.mu.Unlock()
		if old != nil {
			logging.Infof("[voice] %s: new connection displaces the old one", userID)
			go old.Shutdown()
		}

		conn.run()

		h.mu.Lock()
		if h.conns[userID] == conn {
			delete(h.conns, userID)
		}
		h.mu.Unlock()
	}
}

// CloseAll shuts down every live connection, flushing what it can.
// Used for graceful server shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	conns := make([]*Conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.conns = make(map[string]*Conn)
	h.mu.Unlock()

	var wg sync.WaitGroup
	for _, c := range conns {
		wg.Add(1)
		go func(c *Conn) {
			defer wg.Done()
			c.Shutdown()
		}(c)
	}
	wg.Wait()
}

// Active reports how many connections the hub is serving.
func (h *Hub) Active() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Conn is one live voice connection: its transport, session, and agent
// stack. It also serves as the vision tool's frame source and the UI control
// tool's command emitter.
type Conn struct {
	transport Transport
	deps      Deps
	userID    string

	sess  *session.Session
	orch  *orchestrator.Orchestrator
	coord *flush.Coordinator

	frameMu sync.Mutex
	frame   []byte
	frameAt time.Time

	ctx      context.Context
	cancel   context.CancelFunc
	shutOnce sync.Once
}

func newConn(t Transport, deps Deps, userID string) *Conn {
	return &Conn{transport: t, deps: deps, userID: userID}
}

// start wires the connection's session stack: registry session, sync
// coordinator, tools, orchestrator, journal recovery, history seeding. Must
// complete before the conn becomes visible to the hub so that Shutdown never
// races a half-built stack.
func (c *Conn) start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	c.ctx = ctx
	c.cancel = cancel

	sess, displaced := c.deps.Sessions.Start(c.userID)
	if displaced != nil {
		logging.Infof("[voice] %s: terminated older session %s", c.userID, displaced.ID)
	}
	c.sess = sess

	c.coord = flush.NewCoordinator(sess.Buffer, c.deps.Backend, c.flushMarker(), &flush.Options{
		BackoffBase:  time.Duration(c.deps.Sync.BackoffBaseSeconds) * time.Second,
		BackoffMax:   time.Duration(c.deps.Sync.BackoffMaxSeconds) * time.Second,
		FlushTimeout: time.Duration(c.deps.Sync.FlushTimeoutSeconds) * time.Second,
		CloseTimeout: time.Duration(c.deps.Sync.CloseTimeoutSeconds) * time.Second,
	})

	registry := tools.NewRegistry()
	registry.Register(tools.NewClockTool())
	registry.Register(tools.NewDocumentTool(c.deps.Docs, c.deps.Provider))
	registry.Register(tools.NewVisionTool(c, c.deps.Provider))
	registry.Register(tools.NewUIControlTool(c))

	c.orch = orchestrator.New(sess, router.New(registry, c.deps.Provider), c.coord, c.journal(),
		c.deps.Conversation.PairsToFlush, c.deps.Conversation.ContextPairs)

	c.recover()
	go c.seed(ctx)

	logging.Infof("[voice] %s: session %s started", c.userID, sess.ID)
}

// run pumps the connection until the client disconnects, the hub displaces
// it, or the server shuts down. It always leaves through Shutdown: final
// flush, session removal, transport close.
func (c *Conn) run() {
	c.sendState(orchestrator.StateIdle)

	utterances := make(chan string, utteranceQueue)
	go c.transport.KeepAlive(c.ctx)
	go c.transport.ReadPump(c.ctx, c.cancel, c.storeFrame, func(data []byte) {
		c.onControl(data, utterances)
	})

	for {
		select {
		case <-c.ctx.Done():
			c.Shutdown()
			return
		case text := <-utterances:
			c.handleUtterance(c.ctx, text)
		}
	}
}

// Shutdown closes the connection and its session, flushing buffered turns
// within the close budget. Idempotent.
func (c *Conn) Shutdown() {
	c.shutOnce.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		if c.orch != nil {
			c.orch.Close()
		}
		if c.sess != nil {
			c.deps.Sessions.Remove(c.sess)
		}
		c.transport.Close()
		logging.Infof("[voice] %s: connection closed", c.userID)
	})
}

func (c *Conn) onControl(data []byte, utterances chan<- string) {
	var msg ControlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		logging.Warnf("[voice] %s: bad control frame: %v", c.userID, err)
		return
	}

	switch msg.Type {
	case TypeUtterance:
		select {
		case utterances <- msg.Text:
		default:
			logging.Warnf("[voice] %s: utterance queue full, dropping", c.userID)
			c.sendError("I'm still working on your last request. Please wait a moment.")
		}
	case TypeRecognitionError:
		// No turn is recorded for a failed recognition.
		logging.Warnf("[voice] %s: client recognition error: %s", c.userID, msg.Text)
	case TypeClose:
		if c.cancel != nil {
			c.cancel()
		}
	default:
		logging.Warnf("[voice] %s: unknown control type %q", c.userID, msg.Type)
	}
}

func (c *Conn) handleUtterance(ctx context.Context, text string) {
	c.sendState(orchestrator.StateDispatching)
	reply, err := c.orch.HandleUtterance(ctx, text)
	if err != nil {
		if err != orchestrator.ErrNoUtterance && err != orchestrator.ErrClosed {
			logging.Errorf("[voice] %s: utterance failed: %v", c.userID, err)
		}
		c.sendState(orchestrator.StateIdle)
		return
	}
	if serr := c.transport.SendControl(ControlMessage{Type: TypeReply, Text: reply}); serr != nil {
		logging.Warnf("[voice] %s: reply send failed: %v", c.userID, serr)
	}
	c.sendState(orchestrator.StateIdle)
}

// recover re-buffers unflushed turns journaled by a previous run and kicks a
// flush for them.
func (c *Conn) recover() {
	if c.deps.Journal == nil {
		return
	}
	turns, err := c.deps.Journal.DrainUnflushed(c.userID)
	if err != nil {
		logging.Warnf("[voice] %s: journal recovery failed: %v", c.userID, err)
		return
	}
	if len(turns) == 0 {
		return
	}
	restored := c.sess.Buffer.Restore(turns)
	for _, turn := range restored {
		if err := c.deps.Journal.Append(c.userID, turn); err != nil {
			logging.Warnf("[voice] %s: re-journal failed: %v", c.userID, err)
		}
	}
	logging.Infof("[voice] %s: recovered %d unflushed turns from journal", c.userID, len(restored))
	c.coord.Kick()
}

// seed fetches recent remote history so the first replies have context.
// Failure is tolerated; the session just starts cold.
func (c *Conn) seed(ctx context.Context) {
	sctx, cancel := context.WithTimeout(ctx, seedTimeout)
	defer cancel()

	pairs, err := c.deps.Backend.LastPairs(sctx, c.deps.Conversation.ContextPairs)
	if err != nil {
		logging.Warnf("[voice] %s: history seed failed: %v", c.userID, err)
		return
	}
	c.orch.Seed(pairs)
}

func (c *Conn) storeFrame(data []byte) {
	c.frameMu.Lock()
	c.frame = data
	c.frameAt = time.Now()
	c.frameMu.Unlock()
}

// Frame returns the most recent camera snapshot if it is fresh enough.
func (c *Conn) Frame(_ context.Context) ([]byte, string, error) {
	c.frameMu.Lock()
	defer c.frameMu.Unlock()
	if c.frame == nil || time.Since(c.frameAt) > frameMaxAge {
		return nil, "", tools.ErrNoFrame
	}
	return c.frame, "image/jpeg", nil
}

// EmitUICommand pushes a UI control event to the client.
func (c *Conn) EmitUICommand(target, status string) error {
	return c.transport.SendControl(ControlMessage{Type: TypeUIControl, Target: target, Status: status})
}

func (c *Conn) sendState(s orchestrator.State) {
	if err := c.transport.SendControl(ControlMessage{Type: TypeState, State: s.String()}); err != nil {
		logging.Debugf("[voice] %s: state send failed: %v", c.userID, err)
	}
}

func (c *Conn) sendError(text string) {
	if err := c.transport.SendControl(ControlMessage{Type: TypeError, Text: text}); err != nil {
		logging.Debugf("[voice] %s: error send failed: %v", c.userID, err)
	}
}

// flushMarker adapts the optional journal into the coordinator's marker,
// keeping the nil case a true nil interface.
func (c *Conn) flushMarker() flush.Marker {
	if c.deps.Journal == nil {
		return nil
	}
	return c.deps.Journal
}

// journal adapts the optional journal for the orchestrator the same way.
func (c *Conn) journal() orchestrator.Journal {
	if c.deps.Journal == nil {
		return nil
	}
	return c.deps.Journal
}
