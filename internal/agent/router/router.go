// Package router classifies a recognized utterance into exactly one
// capability action, or falls through to the default conversational reply.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/voxaid/voxaid/internal/agent/ai"
	"github.com/voxaid/voxaid/internal/agent/session"
	"github.com/voxaid/voxaid/internal/agent/tools"
)

// Kind is the closed set of action variants the router can produce.
type Kind int

const (
	KindChat Kind = iota // default conversational reply
	KindTime
	KindDocument
	KindVision
	KindUIControl
)

func (k Kind) String() string {
	switch k {
	case KindTime:
		return "time"
	case KindDocument:
		return "document"
	case KindVision:
		return "vision"
	case KindUIControl:
		return "ui_control"
	default:
		return "chat"
	}
}

// Action is one classified utterance: a variant tag plus the argument shape
// for its tool, already marshaled for dispatch.
type Action struct {
	Kind  Kind
	Tool  string
	Input json.RawMessage
}

// systemPrompt frames the default conversational reply path.
const systemPrompt = `You are a friendly voice assistant for a visually impaired user.
Answer briefly in plain spoken language; your reply will be read aloud.
Do not use markdown, lists, or emoji.`

// Router maps utterances to tool invocations or the plain reply path.
// It is stateless; all side effects happen inside the tool executors.
type Router struct {
	registry *tools.Registry
	provider ai.Provider
}

// New creates a router over the given registry and chat provider.
func New(registry *tools.Registry, provider ai.Provider) *Router {
	return &Router{registry: registry, provider: provider}
}

// Classify maps an utterance to an action. Rules run in a fixed order and the
// first match wins; anything unmatched is plain conversation.
func Classify(utterance string) Action {
	l := strings.ToLower(utterance)

	if target, status, ok := parseUIControl(l); ok {
		input, _ := json.Marshal(tools.UIControlInput{Target: target, Status: status})
		return Action{Kind: KindUIControl, Tool: "ui_control", Input: input}
	}

	if isDocumentRequest(l) {
		input, _ := json.Marshal(tools.DocumentInput{
			Utterance: utterance,
			Summarize: strings.Contains(l, "summar") || !strings.Contains(l, "read"),
		})
		return Action{Kind: KindDocument, Tool: "document", Input: input}
	}

	if isVisionRequest(l) {
		input, _ := json.Marshal(tools.VisionInput{Utterance: utterance})
		return Action{Kind: KindVision, Tool: "vision", Input: input}
	}

	if isTimeRequest(l) {
		return Action{Kind: KindTime, Tool: "clock", Input: json.RawMessage(`{}`)}
	}

	return Action{Kind: KindChat}
}

// Route classifies and dispatches one utterance. Structured actions go to
// their tool executor; everything else becomes a model reply seeded with the
// recent conversation pairs. Route never returns nil.
func (r *Router) Route(ctx context.Context, utterance string, history []session.Pair) *tools.Result {
	action := Classify(utterance)
	if action.Kind == KindChat {
		return r.chat(ctx, utterance, history)
	}
	return r.registry.Execute(ctx, action.Tool, action.Input)
}

func (r *Router) chat(ctx context.Context, utterance string, history []session.Pair) *tools.Result {
	messages := make([]ai.Message, 0, len(history)*2+1)
	for _, pair := range history {
		messages = append(messages,
			ai.Message{Role: "user", Content: pair.User},
			ai.Message{Role: "assistant", Content: pair.Bot},
		)
	}
	messages = append(messages, ai.Message{Role: "user", Content: utterance})

	reply, err := r.provider.Complete(ctx, &ai.ChatRequest{
		System:   systemPrompt,
		Messages: messages,
	})
	if err != nil {
		if errors.Is(err, ai.ErrUnavailable) {
			return &tools.Result{
				Status:  tools.StatusUnavailable,
				Content: "The assistant service is temporarily unavailable.",
			}
		}
		return &tools.Result{Status: tools.StatusError, Content: err.Error()}
	}
	return &tools.Result{Status: tools.StatusOK, Content: reply}
}

// --------------------------------------------------------------------------
// Classification rules
// --------------------------------------------------------------------------

var uiTargets = map[string]string{
	"camera":     "camera",
	"microphone": "microphone",
	"mic":        "microphone",
	"chat":       "chat",
}

func parseUIControl(l string) (target, status string, ok bool) {
	for word, canonical := range uiTargets {
		if containsWord(l, word) {
			target = canonical
			break
		}
	}
	// "mute"/"unmute" imply the microphone without naming it
	if target == "" && (containsWord(l, "mute") || containsWord(l, "unmute")) {
		target = "microphone"
	}
	if target == "" {
		return "", "", false
	}

	switch {
	case containsWord(l, "unmute"):
		status = "on"
	case containsWord(l, "mute"):
		status = "off"
	case strings.Contains(l, "turn on"), containsWord(l, "enable"),
		containsWord(l, "open"), containsWord(l, "show"), containsWord(l, "start"):
		status = "on"
	case strings.Contains(l, "turn off"), containsWord(l, "disable"),
		containsWord(l, "close"), containsWord(l, "hide"), containsWord(l, "stop"):
		status = "off"
	default:
		return "", "", false
	}
	return target, status, true
}

func isDocumentRequest(l string) bool {
	hasNoun := containsWord(l, "file") || containsWord(l, "files") ||
		containsWord(l, "document") || containsWord(l, "documents") ||
		containsWord(l, "pdf") || containsWord(l, "report") || containsWord(l, "notes")
	if !hasNoun {
		return false
	}
	return containsWord(l, "read") || strings.Contains(l, "summar") ||
		strings.Contains(l, "what's in") || strings.Contains(l, "what is in") ||
		containsWord(l, "open")
}

func isVisionRequest(l string) bool {
	if strings.Contains(l, "what do you see") || strings.Contains(l, "what can you see") {
		return true
	}
	if containsWord(l, "describe") {
		return true
	}
	return containsWord(l, "see") && (containsWord(l, "me") || containsWord(l, "this"))
}

func isTimeRequest(l string) bool {
	if containsWord(l, "time") && (strings.Contains(l, "what") || strings.Contains(l, "tell")) {
		return true
	}
	if containsWord(l, "date") || strings.Contains(l, "what day") || strings.Contains(l, "today's") {
		return true
	}
	return false
}

// containsWord reports whether l contains w as a whole word.
func containsWord(l, w string) bool {
	idx := 0
	for {
		i := strings.Index(l[idx:], w)
		if i < 0 {
			return false
		}
		i += idx
		before := i == 0 || !isLetter(l[i-1])
		afterIdx := i + len(w)
		after := afterIdx >= len(l) || !isLetter(l[afterIdx])
		if before && after {
			return true
		}
		idx = i + len(w)
	}
}

func isLetter(b byte) bool {
	return ('a' <= b && b <= 'z') || ('A' <= b && b <= 'Z')
}
