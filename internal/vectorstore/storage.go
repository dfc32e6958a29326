package vectorstore

import (
	"context"

	"pdfrag/internal/domain"
)

// Storage persists chunk vectors and supports similarity search.
type Storage interface {
	Add(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) error
	Query(ctx context.Context, vector []float32, topK int) ([]domain.SearchResult, error)
	Sources(ctx context.Context) ([]string, error)
	DeleteSource(ctx context.Context, source string) error
	Count(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
}
