package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"pdfrag/internal/domain"
	"pdfrag/internal/prompt"
	"pdfrag/internal/vectorstore"
)

var (
	// ErrEmptyQuestion is returned when the trimmed question is blank.
	ErrEmptyQuestion = errors.New("please enter a question")
	// ErrNoDocuments is returned when nothing has been indexed yet.
	ErrNoDocuments = errors.New("no documents have been indexed yet; ingest a PDF first")
	// ErrNoResults is returned when retrieval finds nothing relevant.
	ErrNoResults = errors.New("no relevant information found in the indexed documents")
)

// RAGService wires extraction, chunking, embedding, storage and generation
// into the ingest and question-answering operations.
type RAGService struct {
	extractor    domain.Extractor
	chunker      domain.Chunker
	embedder     domain.Embedder
	store        vectorstore.Storage
	generator    domain.Generator
	prompts      *prompt.Builder
	topK         int
	conversation *Conversation
}

func NewRAGService(
	extractor domain.Extractor,
	chunker domain.Chunker,
	embedder domain.Embedder,
	store vectorstore.Storage,
	generator domain.Generator,
	prompts *prompt.Builder,
	topK, historySize int,
) *RAGService {
	if topK <= 0 {
		topK = 5
	}
	return &RAGService{
		extractor:    extractor,
		chunker:      chunker,
		embedder:     embedder,
		store:        store,
		generator:    generator,
		prompts:      prompts,
		topK:         topK,
		conversation: NewConversation(historySize),
	}
}

// IngestPDFs expands globs, filters to .pdf files and ingests each one.
// It returns the total number of chunks indexed.
func (s *RAGService) IngestPDFs(ctx context.Context, paths []string) (int, error) {
	var files []string
	for _, p := range paths {
		matches, _ := filepath.Glob(p)
		if matches == nil {
			matches = []string{p}
		}
		for _, m := range matches {
			if !strings.HasSuffix(strings.ToLower(m), ".pdf") {
				continue
			}
			files = append(files, m)
		}
	}
	if len(files) == 0 {
		return 0, fmt.Errorf("no .pdf documents found")
	}
	total := 0
	for _, f := range files {
		n, err := s.IngestPDF(ctx, f)
		if err != nil {
			return total, fmt.Errorf("ingest %s: %w", f, err)
		}
		total += n
	}
	return total, nil
}

// IngestPDF extracts, chunks, embeds and stores a single PDF. It returns
// the number of chunks indexed.
func (s *RAGService) IngestPDF(ctx context.Context, path string) (int, error) {
	doc, err := s.extractor.Extract(path)
	if err != nil {
		return 0, err
	}
	chunks, err := s.chunker.Chunk(doc)
	if err != nil {
		return 0, err
	}
	if len(chunks) == 0 {
		return 0, fmt.Errorf("no text could be extracted from %s", doc.Name)
	}
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, err
	}
	if err := s.store.Add(ctx, chunks, vectors); err != nil {
		return 0, err
	}
	return len(chunks), nil
}

// Ask answers a question from the indexed documents.
func (s *RAGService) Ask(ctx context.Context, question string) (domain.Answer, error) {
	question, results, err := s.retrieve(ctx, question)
	if err != nil {
		return domain.Answer{}, err
	}
	msgs, err := s.prompts.Messages(question, results)
	if err != nil {
		return domain.Answer{}, err
	}
	text, err := s.generator.Chat(ctx, msgs)
	if err != nil {
		return domain.Answer{}, err
	}
	s.conversation.AddExchange(question, text)
	return domain.Answer{Text: text, Sources: sourcesOf(results)}, nil
}

// AskStream is Ask with tokens streamed through fn as they arrive. The
// returned Answer carries the full text and sources.
func (s *RAGService) AskStream(ctx context.Context, question string, fn func(token string) error) (domain.Answer, error) {
	question, results, err := s.retrieve(ctx, question)
	if err != nil {
		return domain.Answer{}, err
	}
	msgs, err := s.prompts.Messages(question, results)
	if err != nil {
		return domain.Answer{}, err
	}
	var sb strings.Builder
	err = s.generator.ChatStream(ctx, msgs, func(token string) error {
		sb.WriteString(token)
		return fn(token)
	})
	if err != nil {
		return domain.Answer{}, err
	}
	text := sb.String()
	s.conversation.AddExchange(question, text)
	return domain.Answer{Text: text, Sources: sourcesOf(results)}, nil
}

func (s *RAGService) retrieve(ctx context.Context, question string) (string, []domain.SearchResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", nil, ErrEmptyQuestion
	}
	count, err := s.store.Count(ctx)
	if err != nil {
		return "", nil, err
	}
	if count == 0 {
		return "", nil, ErrNoDocuments
	}
	vec, err := s.embedder.Embed(ctx, question)
	if err != nil {
		return "", nil, err
	}
	results, err := s.store.Query(ctx, vec, s.topK)
	if err != nil {
		return "", nil, err
	}
	if len(results) == 0 {
		return "", nil, ErrNoResults
	}
	return question, s.prompts.Trim(results), nil
}

// Stats reports what is currently indexed.
func (s *RAGService) Stats(ctx context.Context) (domain.Stats, error) {
	sources, err := s.store.Sources(ctx)
	if err != nil {
		return domain.Stats{}, err
	}
	count, err := s.store.Count(ctx)
	if err != nil {
		return domain.Stats{}, err
	}
	return domain.Stats{Documents: len(sources), TotalChunks: count, Sources: sources}, nil
}

// DeleteSource removes every chunk that came from the given file.
func (s *RAGService) DeleteSource(ctx context.Context, source string) error {
	return s.store.DeleteSource(ctx, source)
}

// Clear wipes the vector store and the conversation history.
func (s *RAGService) Clear(ctx context.Context) error {
	if err := s.store.Clear(ctx); err != nil {
		return err
	}
	s.conversation.Clear()
	return nil
}

// History returns the formatted conversation transcript.
func (s *RAGService) History() string { return s.conversation.Formatted() }

func sourcesOf(results []domain.SearchResult) []domain.Source {
	sources := make([]domain.Source, 0, len(results))
	for _, r := range results {
		sources = append(sources, domain.Source{File: r.Chunk.SourceFile, Pages: r.Chunk.Pages})
	}
	return sources
}
