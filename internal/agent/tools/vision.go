package tools

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/voxaid/voxaid/internal/agent/ai"
)

// ErrNoFrame is returned by a FrameSource when no camera frame is available.
var ErrNoFrame = errors.New("no video frame available")

// FrameSource supplies the most recent camera frame for the session.
// The voice transport implements this by caching the last frame the client
// uploaded.
type FrameSource interface {
	// Frame returns encoded image bytes and their media type.
	Frame(ctx context.Context) ([]byte, string, error)
}

// VisionTool describes what the user's camera currently sees.
type VisionTool struct {
	frames   FrameSource
	provider ai.Provider
}

// VisionInput is the vision tool's argument shape.
type VisionInput struct {
	Utterance string `json:"utterance"` // the user's original question
}

// NewVisionTool creates a vision tool over the given frame source and provider.
func NewVisionTool(frames FrameSource, provider ai.Provider) *VisionTool {
	return &VisionTool{frames: frames, provider: provider}
}

func (t *VisionTool) Name() string {
	return "vision"
}

func (t *VisionTool) Description() string {
	return "Describes the current camera view for the user."
}

func (t *VisionTool) Execute(ctx context.Context, input json.RawMessage) (*Result, error) {
	var params VisionInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("parse vision input: %w", err)
	}

	frame, mediaType, err := t.frames.Frame(ctx)
	if errors.Is(err, ErrNoFrame) {
		return &Result{
			Status:  StatusNotFound,
			Content: "I am not receiving any video feed. Please ensure your camera is on.",
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read camera frame: %w", err)
	}

	prompt := params.Utterance
	if prompt == "" {
		prompt = "Describe what you see for a visually impaired listener."
	}

	answer, err := t.provider.AnalyzeImage(ctx, base64.StdEncoding.EncodeToString(frame), mediaType, prompt)
	if err != nil {
		return nil, err
	}
	return &Result{Status: StatusOK, Content: answer}, nil
}
