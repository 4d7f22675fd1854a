package voice

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voxaid/voxaid/internal/logging"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// maxFrameBytes bounds an uploaded camera snapshot.
	maxFrameBytes = 4 << 20
)

// wsTransport implements Transport over a WebSocket connection.
type wsTransport struct {
	conn    *websocket.Conn
	writeMu sync.Mutex // protects concurrent writes
}

func newWSTransport(conn *websocket.Conn) *wsTransport {
	conn.SetReadLimit(maxFrameBytes)
	return &wsTransport{conn: conn}
}

// ReadPump reads camera snapshots and control messages from the WebSocket.
// Blocks until ctx done, connection closed, or error. Calls cancel on exit.
func (t *wsTransport) ReadPump(ctx context.Context, cancel context.CancelFunc, onFrame func([]byte), onControl func([]byte)) {
	defer cancel()

	t.conn.SetReadDeadline(time.Now().Add(pongWait))
	t.conn.SetPongHandler(func(string) error {
		t.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		msgType, data, err := t.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.Warnf("[voice-ws] read error: %v", err)
			}
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			onFrame(data)
		case websocket.TextMessage:
			onControl(data)
		}

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// KeepAlive pings the client on a ticker until ctx is done.
func (t *wsTransport) KeepAlive(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.writeMu.Lock()
			t.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := t.conn.WriteMessage(websocket.PingMessage, nil)
			t.writeMu.Unlock()
			if err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// SendControl sends a JSON control message as a text frame.
func (t *wsTransport) SendControl(msg ControlMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	t.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

// Close closes the underlying WebSocket connection.
func (t *wsTransport) Close() error {
	return t.conn.Close()
}
