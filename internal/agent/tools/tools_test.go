package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/voxaid/voxaid/internal/agent/ai"
)

type fakeProvider struct {
	reply string
	err   error
}

func (f *fakeProvider) ID() string { return "fake" }

func (f *fakeProvider) Complete(context.Context, *ai.ChatRequest) (string, error) {
	return f.reply, f.err
}

func (f *fakeProvider) AnalyzeImage(context.Context, string, string, string) (string, error) {
	return f.reply, f.err
}

type fakeFrames struct {
	frame []byte
	err   error
}

func (f *fakeFrames) Frame(context.Context) ([]byte, string, error) {
	if f.err != nil {
		return nil, "", f.err
	}
	return f.frame, "image/jpeg", nil
}

type fakeEmitter struct {
	target string
	status string
	err    error
}

func (f *fakeEmitter) EmitUICommand(target, status string) error {
	f.target, f.status = target, status
	return f.err
}

func TestClockToolFormat(t *testing.T) {
	tool := NewClockTool()
	tool.now = func() time.Time {
		return time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	}

	result, err := tool.Execute(context.Background(), nil)
	if err != nil {
		t.Fatalf("clock failed: %v", err)
	}
	want := "Current date and time: 2026-03-14 09:26:53"
	if result.Content != want {
		t.Fatalf("got %q, want %q", result.Content, want)
	}
}

func TestUIControlValidation(t *testing.T) {
	emitter := &fakeEmitter{}
	tool := NewUIControlTool(emitter)

	run := func(target, status string) *Result {
		input, _ := json.Marshal(UIControlInput{Target: target, Status: status})
		result, err := tool.Execute(context.Background(), input)
		if err != nil {
			t.Fatalf("execute failed: %v", err)
		}
		return result
	}

	if r := run("camera", "on"); r.Status != StatusOK {
		t.Fatalf("valid command rejected: %v %s", r.Status, r.Content)
	}
	if emitter.target != "camera" || emitter.status != "on" {
		t.Fatalf("emitter got %s/%s", emitter.target, emitter.status)
	}

	if r := run("toaster", "on"); r.Status != StatusError {
		t.Fatalf("unknown target accepted: %v", r.Status)
	}
	if r := run("camera", "sideways"); r.Status != StatusError {
		t.Fatalf("bad status accepted: %v", r.Status)
	}
}

func TestVisionToolNoFrame(t *testing.T) {
	tool := NewVisionTool(&fakeFrames{err: ErrNoFrame}, &fakeProvider{})

	input, _ := json.Marshal(VisionInput{Utterance: "what do you see"})
	result, err := tool.Execute(context.Background(), input)
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if result.Status != StatusNotFound {
		t.Fatalf("expected not_found without a frame, got %v", result.Status)
	}
	if result.Content == "" {
		t.Fatal("expected a spoken explanation")
	}
}

func TestVisionToolDescribesFrame(t *testing.T) {
	tool := NewVisionTool(
		&fakeFrames{frame: []byte("jpegbytes")},
		&fakeProvider{reply: "A desk with a laptop."},
	)

	input, _ := json.Marshal(VisionInput{Utterance: "describe my desk"})
	result, err := tool.Execute(context.Background(), input)
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if result.Status != StatusOK || result.Content != "A desk with a laptop." {
		t.Fatalf("unexpected result %v %q", result.Status, result.Content)
	}
}

func TestRegistryExecuteMapsErrors(t *testing.T) {
	registry := NewRegistry()
	registry.Register(NewVisionTool(
		&fakeFrames{frame: []byte("x")},
		&fakeProvider{err: ai.ErrUnavailable},
	))

	input, _ := json.Marshal(VisionInput{})
	result := registry.Execute(context.Background(), "vision", input)
	if result.Status != StatusUnavailable {
		t.Fatalf("expected unavailable, got %v", result.Status)
	}

	registry.Register(NewVisionTool(
		&fakeFrames{err: errors.New("camera exploded")},
		&fakeProvider{},
	))
	result = registry.Execute(context.Background(), "vision", input)
	if result.Status != StatusError {
		t.Fatalf("expected error, got %v", result.Status)
	}

	result = registry.Execute(context.Background(), "no_such_tool", nil)
	if result.Status != StatusError {
		t.Fatalf("expected error for unknown tool, got %v", result.Status)
	}
}
