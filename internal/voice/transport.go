// Package voice carries one client's duplex connection: recognized utterances
// and control messages in, spoken replies and UI commands out, with binary
// frames used for camera snapshots. Speech capture and synthesis happen on
// the client; this side only sees text.
package voice

import "context"

// Control message types. Client to server: utterance, recognition_error,
// close. Server to client: reply, ui_control, state, error.
const (
	TypeUtterance        = "utterance"
	TypeRecognitionError = "recognition_error"
	TypeClose            = "close"

	TypeReply     = "reply"
	TypeUIControl = "ui_control"
	TypeState     = "state"
	TypeError     = "error"
)

// ControlMessage is one JSON text frame on the voice connection.
type ControlMessage struct {
	Type   string `json:"type"`
	Text   string `json:"text,omitempty"`   // utterance or reply text
	Target string `json:"target,omitempty"` // ui_control: camera, microphone, chat
	Status string `json:"status,omitempty"` // ui_control: on, off
	State  string `json:"state,omitempty"`  // session state for the client UI
}

// Transport abstracts the wire under a voice connection.
type Transport interface {
	// ReadPump reads frames from the client. Binary frames (camera
	// snapshots) go to onFrame; text frames go to onControl. Blocks until
	// ctx is done, the connection closes, or a read fails, then calls
	// cancel.
	ReadPump(ctx context.Context, cancel context.CancelFunc, onFrame func([]byte), onControl func([]byte))

	// KeepAlive sends periodic pings until ctx is done.
	KeepAlive(ctx context.Context)

	// SendControl sends a JSON control message to the client.
	// Safe to call from any goroutine.
	SendControl(msg ControlMessage) error

	// Close tears down the underlying connection.
	Close() error
}
