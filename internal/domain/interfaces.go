package domain

import "context"

// Page is the extracted text of a single PDF page. Number is 1-based.
type Page struct {
	Number int
	Text   string
}

// Document represents a single PDF loaded into the system.
type Document struct {
	Path  string
	Name  string
	Pages []Page
}

// Chunk is an overlapping window of document text used for indexing.
// Pages lists every source page the window overlaps, ascending.
type Chunk struct {
	ChunkID    string
	SourceFile string
	Text       string
	Index      int
	Pages      []int
	StartChar  int
	EndChar    int
}

// SearchResult is a matching chunk with a similarity score (higher is better).
type SearchResult struct {
	Chunk Chunk
	Score float64
}

// Source attributes an answer to a file and the pages the evidence came from.
type Source struct {
	File  string
	Pages []int
}

// Answer is a generated response together with its supporting sources.
type Answer struct {
	Text    string
	Sources []Source
}

// Stats describes the current contents of the vector store.
type Stats struct {
	Documents   int
	TotalChunks int
	Sources     []string
}

// Extractor pulls per-page plain text out of a document file.
type Extractor interface {
	Extract(path string) (Document, error)
}

// Chunker splits documents into chunks suitable for retrieval indexing.
type Chunker interface {
	Chunk(document Document) ([]Chunk, error)
}

// Embedder converts free text into a numeric vector representation.
type Embedder interface {
	Name() string
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Generator produces answers from chat messages.
type Generator interface {
	Chat(ctx context.Context, msgs []Message) (string, error)
	ChatStream(ctx context.Context, msgs []Message, fn func(token string) error) error
}

// Message is a single chat turn sent to the language model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
