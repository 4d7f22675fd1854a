package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/voxaid/voxaid/internal/logging"
)

// CommandEmitter delivers UI control events to the connected client.
// Delivery is fire-and-forget; no result is awaited.
type CommandEmitter interface {
	EmitUICommand(target, status string) error
}

// validTargets are the UI elements and devices the user can control by voice.
var validTargets = map[string]bool{
	"camera":     true,
	"microphone": true,
	"chat":       true,
}

// UIControlTool sends control commands to the user's frontend, e.g.
// "turn off the camera" or "open the chat panel".
type UIControlTool struct {
	emitter CommandEmitter
}

// UIControlInput is the UI control tool's argument shape.
type UIControlInput struct {
	Target string `json:"target"` // "camera", "microphone", "chat"
	Status string `json:"status"` // "on", "off"
}

// NewUIControlTool creates a UI control tool over the given emitter.
func NewUIControlTool(emitter CommandEmitter) *UIControlTool {
	return &UIControlTool{emitter: emitter}
}

func (t *UIControlTool) Name() string {
	return "ui_control"
}

func (t *UIControlTool) Description() string {
	return "Controls UI elements and devices: camera, microphone, chat panel."
}

func (t *UIControlTool) Execute(_ context.Context, input json.RawMessage) (*Result, error) {
	var params UIControlInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("parse ui control input: %w", err)
	}
	if !validTargets[params.Target] {
		return &Result{
			Status:  StatusError,
			Content: fmt.Sprintf("I can't control %q. I can control the camera, microphone, or chat.", params.Target),
		}, nil
	}
	if params.Status != "on" && params.Status != "off" {
		return &Result{
			Status:  StatusError,
			Content: "I didn't catch whether you want that on or off.",
		}, nil
	}

	if err := t.emitter.EmitUICommand(params.Target, params.Status); err != nil {
		return nil, fmt.Errorf("send ui command: %w", err)
	}
	logging.Infof("[ui] sent control command: %s -> %s", params.Target, params.Status)
	return &Result{
		Status:  StatusOK,
		Content: fmt.Sprintf("Okay, turning the %s %s.", params.Target, params.Status),
	}, nil
}
