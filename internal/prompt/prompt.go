package prompt

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/pkoukk/tiktoken-go"

	"pdfrag/internal/domain"
)

// SystemPrompt instructs the model to stay grounded in the retrieved context.
const SystemPrompt = `You are a helpful assistant that answers questions based on the provided context.
Always cite the specific parts of the context that support your answer.
If the context doesn't contain enough information to answer the question, say so clearly.`

const questionTemplate = `Context information is below:
---------------------
{{.Context}}
---------------------

Given the context information above, please answer the following question:
{{.Question}}

If the context contains relevant information, cite the specific parts that support your answer.
If the context doesn't contain the answer, please state that clearly.

Answer:`

var questionTmpl = template.Must(template.New("question").Parse(questionTemplate))

// Builder assembles chat messages from retrieved chunks, keeping the
// formatted context within the model's token budget.
type Builder struct {
	contextWindow int
	maxTokens     int
	counter       func(string) int
}

// NewBuilder creates a prompt builder for a model with the given context
// window and generation reserve.
func NewBuilder(contextWindow, maxTokens int) *Builder {
	b := &Builder{contextWindow: contextWindow, maxTokens: maxTokens}
	if enc, err := tiktoken.GetEncoding("cl100k_base"); err == nil {
		b.counter = func(s string) int { return len(enc.Encode(s, nil, nil)) }
	} else {
		// Rough heuristic when the encoding is unavailable.
		b.counter = func(s string) int { return len(s) / 4 }
	}
	return b
}

// Trim drops the lowest-ranked results until the formatted context fits
// the token budget. At least one result is always kept.
func (b *Builder) Trim(results []domain.SearchResult) []domain.SearchResult {
	budget := b.contextWindow - b.maxTokens
	if budget <= 0 || len(results) == 0 {
		return results
	}
	used := 0
	kept := results[:0:0]
	for i, r := range results {
		tokens := b.counter(formatResult(i+1, r))
		if used+tokens > budget && len(kept) > 0 {
			break
		}
		used += tokens
		kept = append(kept, r)
	}
	return kept
}

// Messages builds the system and user messages for a question grounded in
// the given results.
func (b *Builder) Messages(question string, results []domain.SearchResult) ([]domain.Message, error) {
	var sb strings.Builder
	err := questionTmpl.Execute(&sb, struct {
		Context  string
		Question string
	}{Context: FormatContext(results), Question: question})
	if err != nil {
		return nil, err
	}
	return []domain.Message{
		{Role: "system", Content: SystemPrompt},
		{Role: "user", Content: sb.String()},
	}, nil
}

// FormatContext renders the retrieved chunks as numbered source blocks.
func FormatContext(results []domain.SearchResult) string {
	parts := make([]string, 0, len(results))
	for i, r := range results {
		parts = append(parts, formatResult(i+1, r))
	}
	return strings.Join(parts, "\n---\n")
}

func formatResult(n int, r domain.SearchResult) string {
	pages := make([]string, len(r.Chunk.Pages))
	for i, p := range r.Chunk.Pages {
		pages[i] = fmt.Sprintf("%d", p)
	}
	return fmt.Sprintf("[Source %d: %s, Pages: %s]\n%s\n", n, r.Chunk.SourceFile, strings.Join(pages, ", "), r.Chunk.Text)
}
