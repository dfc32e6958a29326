package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"pdfrag/internal/chunker"
	"pdfrag/internal/domain"
	"pdfrag/internal/prompt"
	"pdfrag/internal/vectorstore/memory"
)

type stubExtractor struct {
	docs map[string]domain.Document
}

func (s stubExtractor) Extract(path string) (domain.Document, error) {
	doc, ok := s.docs[path]
	if !ok {
		return domain.Document{}, fmt.Errorf("no such file: %s", path)
	}
	return doc, nil
}

// stubEmbedder maps cat-related text to one axis and everything else to
// the other, so retrieval is deterministic.
type stubEmbedder struct{}

func (stubEmbedder) Name() string { return "stub" }

func (stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.Contains(strings.ToLower(text), "cat") {
		return []float32{1, 0}, nil
	}
	return []float32{0, 1}, nil
}

func (e stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		vecs[i] = v
	}
	return vecs, nil
}

type stubGenerator struct {
	answer string
	msgs   []domain.Message
}

func (g *stubGenerator) Chat(ctx context.Context, msgs []domain.Message) (string, error) {
	g.msgs = msgs
	return g.answer, nil
}

func (g *stubGenerator) ChatStream(ctx context.Context, msgs []domain.Message, fn func(string) error) error {
	g.msgs = msgs
	for _, tok := range strings.SplitAfter(g.answer, " ") {
		if err := fn(tok); err != nil {
			return err
		}
	}
	return nil
}

func newTestService(gen *stubGenerator) *RAGService {
	extractor := stubExtractor{docs: map[string]domain.Document{
		"cats.pdf": {Name: "cats.pdf", Pages: []domain.Page{
			{Number: 1, Text: "Cats are great pets. They purr when happy and nap all day."},
		}},
		"dogs.pdf": {Name: "dogs.pdf", Pages: []domain.Page{
			{Number: 4, Text: "Dogs are loyal companions. They enjoy long walks and fetch."},
		}},
	}}
	return NewRAGService(
		extractor,
		chunker.NewWindowChunker(1000, 200, 10),
		stubEmbedder{},
		memory.NewStorage(),
		gen,
		prompt.NewBuilder(4096, 2000),
		5, 10,
	)
}

func TestIngestAndAsk(t *testing.T) {
	ctx := context.Background()
	gen := &stubGenerator{answer: "Cats purr when happy."}
	svc := newTestService(gen)

	n, err := svc.IngestPDFs(ctx, []string{"cats.pdf", "dogs.pdf"})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if n != 2 {
		t.Fatalf("ingested %d chunks, want 2", n)
	}

	answer, err := svc.Ask(ctx, "why do cats purr?")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if answer.Text != "Cats purr when happy." {
		t.Errorf("answer = %q", answer.Text)
	}
	if len(answer.Sources) == 0 {
		t.Fatal("answer has no sources")
	}
	best := answer.Sources[0]
	if best.File != "cats.pdf" {
		t.Errorf("top source = %q, want cats.pdf", best.File)
	}
	if len(best.Pages) != 1 || best.Pages[0] != 1 {
		t.Errorf("top source pages = %v, want [1]", best.Pages)
	}

	if len(gen.msgs) != 2 {
		t.Fatalf("generator got %d messages", len(gen.msgs))
	}
	if gen.msgs[0].Role != "system" {
		t.Errorf("first message role = %q", gen.msgs[0].Role)
	}
	user := gen.msgs[1].Content
	if !strings.Contains(user, "cats.pdf") || !strings.Contains(user, "why do cats purr?") {
		t.Errorf("user prompt missing context or question:\n%s", user)
	}

	if h := svc.History(); !strings.Contains(h, "Q: why do cats purr?") || !strings.Contains(h, "A: Cats purr when happy.") {
		t.Errorf("history = %q", h)
	}
}

func TestAskStream(t *testing.T) {
	ctx := context.Background()
	gen := &stubGenerator{answer: "streamed answer text"}
	svc := newTestService(gen)
	if _, err := svc.IngestPDF(ctx, "cats.pdf"); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	var sb strings.Builder
	answer, err := svc.AskStream(ctx, "cats?", func(token string) error {
		sb.WriteString(token)
		return nil
	})
	if err != nil {
		t.Fatalf("ask stream: %v", err)
	}
	if sb.String() != answer.Text {
		t.Errorf("streamed %q, answer %q", sb.String(), answer.Text)
	}
	if answer.Text != "streamed answer text" {
		t.Errorf("answer = %q", answer.Text)
	}
}

func TestAskValidation(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(&stubGenerator{answer: "x"})

	if _, err := svc.Ask(ctx, "   "); !errors.Is(err, ErrEmptyQuestion) {
		t.Errorf("blank question error = %v", err)
	}
	if _, err := svc.Ask(ctx, "anything"); !errors.Is(err, ErrNoDocuments) {
		t.Errorf("empty store error = %v", err)
	}
}

func TestIngestPDFsFiltersNonPDF(t *testing.T) {
	svc := newTestService(&stubGenerator{})
	if _, err := svc.IngestPDFs(context.Background(), []string{"notes.txt"}); err == nil {
		t.Fatal("expected error for non-pdf input")
	}
}

func TestStatsAndClear(t *testing.T) {
	ctx := context.Background()
	gen := &stubGenerator{answer: "ok"}
	svc := newTestService(gen)
	if _, err := svc.IngestPDFs(ctx, []string{"cats.pdf", "dogs.pdf"}); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	stats, err := svc.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Documents != 2 || stats.TotalChunks != 2 {
		t.Errorf("stats = %+v", stats)
	}
	if len(stats.Sources) != 2 || stats.Sources[0] != "cats.pdf" {
		t.Errorf("sources = %v", stats.Sources)
	}

	if _, err := svc.Ask(ctx, "cats?"); err != nil {
		t.Fatalf("ask: %v", err)
	}
	if err := svc.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	stats, err = svc.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalChunks != 0 {
		t.Errorf("chunks after clear = %d", stats.TotalChunks)
	}
	if svc.History() != "" {
		t.Errorf("history not cleared: %q", svc.History())
	}
}

func TestDeleteSource(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(&stubGenerator{})
	if _, err := svc.IngestPDFs(ctx, []string{"cats.pdf", "dogs.pdf"}); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if err := svc.DeleteSource(ctx, "cats.pdf"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	stats, err := svc.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Documents != 1 || stats.Sources[0] != "dogs.pdf" {
		t.Errorf("stats after delete = %+v", stats)
	}
}
