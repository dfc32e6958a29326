package prompt

import (
	"strings"
	"testing"

	"pdfrag/internal/domain"
)

func result(source, text string, pages ...int) domain.SearchResult {
	return domain.SearchResult{
		Chunk: domain.Chunk{SourceFile: source, Text: text, Pages: pages},
	}
}

func TestFormatContext(t *testing.T) {
	got := FormatContext([]domain.SearchResult{
		result("a.pdf", "first chunk", 1, 2),
		result("b.pdf", "second chunk", 9),
	})
	if !strings.Contains(got, "[Source 1: a.pdf, Pages: 1, 2]\nfirst chunk") {
		t.Errorf("missing first block:\n%s", got)
	}
	if !strings.Contains(got, "[Source 2: b.pdf, Pages: 9]\nsecond chunk") {
		t.Errorf("missing second block:\n%s", got)
	}
	if !strings.Contains(got, "\n---\n") {
		t.Errorf("blocks not separated:\n%s", got)
	}
}

func TestMessages(t *testing.T) {
	b := NewBuilder(4096, 2000)
	msgs, err := b.Messages("what is this?", []domain.SearchResult{
		result("a.pdf", "relevant text", 1),
	})
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != "system" || msgs[0].Content != SystemPrompt {
		t.Errorf("system message = %+v", msgs[0])
	}
	user := msgs[1]
	if user.Role != "user" {
		t.Errorf("user role = %q", user.Role)
	}
	for _, want := range []string{
		"Context information is below:",
		"[Source 1: a.pdf, Pages: 1]",
		"relevant text",
		"what is this?",
		"Answer:",
	} {
		if !strings.Contains(user.Content, want) {
			t.Errorf("user message missing %q:\n%s", want, user.Content)
		}
	}
}

func TestTrimDropsLowestRanked(t *testing.T) {
	b := &Builder{contextWindow: 100, maxTokens: 40, counter: func(s string) int { return len(s) }}
	// Each formatted block is well over 30 bytes, so only two fit in 60.
	results := []domain.SearchResult{
		result("a.pdf", "aaaaaaaaaa", 1),
		result("a.pdf", "bbbbbbbbbb", 2),
		result("a.pdf", "cccccccccc", 3),
		result("a.pdf", "dddddddddd", 4),
	}
	kept := b.Trim(results)
	if len(kept) >= len(results) {
		t.Fatalf("nothing trimmed: kept %d of %d", len(kept), len(results))
	}
	for i, r := range kept {
		if r.Chunk.Text != results[i].Chunk.Text {
			t.Errorf("kept[%d] = %q, order not preserved", i, r.Chunk.Text)
		}
	}
}

func TestTrimAlwaysKeepsOne(t *testing.T) {
	b := &Builder{contextWindow: 10, maxTokens: 9, counter: func(s string) int { return len(s) }}
	kept := b.Trim([]domain.SearchResult{result("a.pdf", strings.Repeat("x", 500), 1)})
	if len(kept) != 1 {
		t.Fatalf("kept = %d, want 1", len(kept))
	}
}

func TestTrimNoBudget(t *testing.T) {
	b := &Builder{contextWindow: 100, maxTokens: 100, counter: func(s string) int { return len(s) }}
	results := []domain.SearchResult{result("a.pdf", "text", 1)}
	if kept := b.Trim(results); len(kept) != 1 {
		t.Fatalf("zero budget should leave results untouched, kept %d", len(kept))
	}
}
