package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"github.com/voxaid/voxaid/internal/agent/ai"
	"github.com/voxaid/voxaid/internal/docs"
)

// maxReadChars caps how much raw text is read aloud in one turn.
const maxReadChars = 2000

// DocumentTool locates a document from a spoken request, extracts its text,
// and either reads it back or summarizes it through the AI provider.
type DocumentTool struct {
	index    *docs.Index
	provider ai.Provider
}

// DocumentInput is the document tool's argument shape.
type DocumentInput struct {
	Utterance string `json:"utterance"`        // the user's original request
	Summarize bool   `json:"summarize"`        // summarize instead of reading raw text
}

// NewDocumentTool creates a document tool over the given index and provider.
func NewDocumentTool(index *docs.Index, provider ai.Provider) *DocumentTool {
	return &DocumentTool{index: index, provider: provider}
}

func (t *DocumentTool) Name() string {
	return "document"
}

func (t *DocumentTool) Description() string {
	return "Finds a document matching the user's request and reads or summarizes it."
}

func (t *DocumentTool) Execute(ctx context.Context, input json.RawMessage) (*Result, error) {
	var params DocumentInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("parse document input: %w", err)
	}

	var path string
	var err error
	if wantsLatest(params.Utterance) {
		path, err = t.index.Latest()
	} else {
		path, err = t.index.Find(params.Utterance)
	}
	if errors.Is(err, docs.ErrNotFound) {
		return &Result{
			Status:  StatusNotFound,
			Content: "I couldn't find a file matching your request.",
		}, nil
	}
	if err != nil {
		return nil, err
	}

	text, err := ExtractText(path)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", filepath.Base(path), err)
	}
	if strings.TrimSpace(text) == "" {
		return &Result{
			Status:  StatusNotFound,
			Content: fmt.Sprintf("The file %s appears to be empty.", filepath.Base(path)),
		}, nil
	}

	if !params.Summarize {
		text = truncate(text, maxReadChars)
		return &Result{
			Status:  StatusOK,
			Content: fmt.Sprintf("I will read the file you requested: %s", text),
		}, nil
	}

	summary, err := t.provider.Complete(ctx, &ai.ChatRequest{
		System: "Summarize the document for a listener who cannot see it. Be concise and concrete; a few spoken sentences.",
		Messages: []ai.Message{
			{Role: "user", Content: text},
		},
	})
	if err != nil {
		return nil, err
	}
	return &Result{
		Status:  StatusOK,
		Content: fmt.Sprintf("Summary of the file you requested: %s", summary),
	}, nil
}

// wantsLatest reports whether the request asks for the most recent document
// rather than naming one.
func wantsLatest(utterance string) bool {
	u := strings.ToLower(utterance)
	return strings.Contains(u, "latest") ||
		strings.Contains(u, "newest") ||
		strings.Contains(u, "most recent")
}

// truncate shortens text to at most max bytes without splitting a rune.
func truncate(text string, max int) string {
	if len(text) <= max {
		return text
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "…"
}

// ExtractText pulls plain text from a pdf, txt, or md document.
func ExtractText(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return extractPDF(path)
	case ".txt", ".md":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return string(data), nil
	default:
		return "", fmt.Errorf("unsupported document type: %s", filepath.Ext(path))
	}
}

func extractPDF(path string) (string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", err
	}
	return buf.String(), nil
}
