package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/voxaid/voxaid/internal/docs"
)

func TestDocumentToolNotFound(t *testing.T) {
	index, err := docs.NewIndex(t.TempDir())
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	tool := NewDocumentTool(index, &fakeProvider{})

	input, _ := json.Marshal(DocumentInput{Utterance: "read my report"})
	result, err := tool.Execute(context.Background(), input)
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if result.Status != StatusNotFound {
		t.Fatalf("expected not_found with no documents, got %v", result.Status)
	}
	if result.Content != "I couldn't find a file matching your request." {
		t.Fatalf("unexpected phrasing %q", result.Content)
	}
}

func TestDocumentToolReadsText(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "report.txt"), []byte("Quarterly sales rose."), 0644); err != nil {
		t.Fatal(err)
	}
	index, err := docs.NewIndex(dir)
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	tool := NewDocumentTool(index, &fakeProvider{})

	input, _ := json.Marshal(DocumentInput{Utterance: "read my report file", Summarize: false})
	result, err := tool.Execute(context.Background(), input)
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if result.Status != StatusOK {
		t.Fatalf("expected ok, got %v: %s", result.Status, result.Content)
	}
	if !strings.HasPrefix(result.Content, "I will read the file you requested: ") {
		t.Fatalf("unexpected read prefix: %q", result.Content)
	}
	if !strings.Contains(result.Content, "Quarterly sales rose.") {
		t.Fatalf("document text missing from reply: %q", result.Content)
	}
}

func TestDocumentToolSummarizes(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "notes.md"), []byte("Long meeting notes body."), 0644); err != nil {
		t.Fatal(err)
	}
	index, err := docs.NewIndex(dir)
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	tool := NewDocumentTool(index, &fakeProvider{reply: "The meeting covered budgets."})

	input, _ := json.Marshal(DocumentInput{Utterance: "summarize my notes", Summarize: true})
	result, err := tool.Execute(context.Background(), input)
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if result.Content != "Summary of the file you requested: The meeting covered budgets." {
		t.Fatalf("unexpected summary reply %q", result.Content)
	}
}

func TestDocumentToolTruncatesOnRuneBoundary(t *testing.T) {
	dir := t.TempDir()
	// Place a multi-byte rune so it straddles the byte cap.
	body := strings.Repeat("a", maxReadChars-1) + "日本語テキスト"
	if err := os.WriteFile(filepath.Join(dir, "long.txt"), []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	index, err := docs.NewIndex(dir)
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	tool := NewDocumentTool(index, &fakeProvider{})

	input, _ := json.Marshal(DocumentInput{Utterance: "read my long file"})
	result, err := tool.Execute(context.Background(), input)
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if !utf8.ValidString(result.Content) {
		t.Fatal("truncated reply is not valid UTF-8")
	}
	if !strings.HasSuffix(result.Content, "…") {
		t.Fatalf("truncated reply missing ellipsis: %q", result.Content[len(result.Content)-12:])
	}
}

func TestDocumentToolLatestRequest(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "report.txt"), []byte("Older report."), 0644); err != nil {
		t.Fatal(err)
	}
	older := time.Now().Add(-time.Hour)
	if err := os.Chtimes(filepath.Join(dir, "report.txt"), older, older); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "minutes.txt"), []byte("Fresh minutes."), 0644); err != nil {
		t.Fatal(err)
	}
	index, err := docs.NewIndex(dir)
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	tool := NewDocumentTool(index, &fakeProvider{})

	input, _ := json.Marshal(DocumentInput{Utterance: "read the latest file"})
	result, err := tool.Execute(context.Background(), input)
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if !strings.Contains(result.Content, "Fresh minutes.") {
		t.Fatalf("expected the newest document, got %q", result.Content)
	}

	input, _ = json.Marshal(DocumentInput{Utterance: "read my report"})
	result, err = tool.Execute(context.Background(), input)
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if !strings.Contains(result.Content, "Older report.") {
		t.Fatalf("expected the named document, got %q", result.Content)
	}
}

func TestExtractTextRejectsUnknownType(t *testing.T) {
	if _, err := ExtractText("/tmp/file.docx"); err == nil {
		t.Fatal("expected an error for unsupported extension")
	}
}
