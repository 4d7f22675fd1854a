package tools

import (
	"context"
	"encoding/json"
	"time"
)

// ClockTool answers date and time questions.
type ClockTool struct {
	now func() time.Time
}

// NewClockTool creates a clock tool using the wall clock.
func NewClockTool() *ClockTool {
	return &ClockTool{now: time.Now}
}

func (t *ClockTool) Name() string {
	return "clock"
}

func (t *ClockTool) Description() string {
	return "Tells the current date and time."
}

func (t *ClockTool) Execute(_ context.Context, _ json.RawMessage) (*Result, error) {
	return &Result{
		Status:  StatusOK,
		Content: t.now().Format("Current date and time: 2006-01-02 15:04:05"),
	}, nil
}
