package chroma

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"pdfrag/internal/domain"
)

const (
	metadataSourceKey     = "source"
	metadataPagesKey      = "pages"
	metadataChunkIndexKey = "chunk_index"

	addBatchSize = 100
)

// Storage is a REST client to a ChromaDB server. The collection is created
// on first use with cosine distance and reused afterwards.
type Storage struct {
	url        string
	collection string
	client     *http.Client

	collectionID string
}

type Config struct {
	URL        string
	Collection string
	Timeout    time.Duration
}

func NewStorage(cfg Config) *Storage {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	collection := cfg.Collection
	if collection == "" {
		collection = "documents"
	}
	return &Storage{
		url:        strings.TrimSuffix(cfg.URL, "/"),
		collection: collection,
		client:     &http.Client{Timeout: timeout},
	}
}

type collectionInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ensureCollection resolves (and creates, if missing) the collection and
// caches its ID for the point endpoints.
func (s *Storage) ensureCollection(ctx context.Context) (string, error) {
	if s.collectionID != "" {
		return s.collectionID, nil
	}
	body := map[string]any{
		"name":          s.collection,
		"metadata":      map[string]any{"hnsw:space": "cosine"},
		"get_or_create": true,
	}
	var out collectionInfo
	if err := s.do(ctx, http.MethodPost, "/api/v1/collections", body, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", fmt.Errorf("chroma returned no id for collection %s", s.collection)
	}
	s.collectionID = out.ID
	return out.ID, nil
}

func (s *Storage) Add(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks and vectors length mismatch: %d vs %d", len(chunks), len(vectors))
	}
	if len(chunks) == 0 {
		return nil
	}
	id, err := s.ensureCollection(ctx)
	if err != nil {
		return err
	}
	for lo := 0; lo < len(chunks); lo += addBatchSize {
		hi := lo + addBatchSize
		if hi > len(chunks) {
			hi = len(chunks)
		}
		batch := struct {
			IDs        []string         `json:"ids"`
			Embeddings [][]float32      `json:"embeddings"`
			Documents  []string         `json:"documents"`
			Metadatas  []map[string]any `json:"metadatas"`
		}{}
		for _, ch := range chunks[lo:hi] {
			batch.IDs = append(batch.IDs, ch.ChunkID)
			batch.Documents = append(batch.Documents, ch.Text)
			batch.Metadatas = append(batch.Metadatas, map[string]any{
				metadataSourceKey:     ch.SourceFile,
				metadataPagesKey:      joinPages(ch.Pages),
				metadataChunkIndexKey: ch.Index,
			})
		}
		batch.Embeddings = append(batch.Embeddings, vectors[lo:hi]...)
		if err := s.do(ctx, http.MethodPost, fmt.Sprintf("/api/v1/collections/%s/add", id), batch, nil); err != nil {
			return err
		}
	}
	return nil
}

func (s *Storage) Query(ctx context.Context, vector []float32, topK int) ([]domain.SearchResult, error) {
	if topK <= 0 {
		topK = 5
	}
	count, err := s.Count(ctx)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}
	if topK > count {
		topK = count
	}
	id, err := s.ensureCollection(ctx)
	if err != nil {
		return nil, err
	}
	req := map[string]any{
		"query_embeddings": [][]float32{vector},
		"n_results":        topK,
		"include":          []string{"documents", "metadatas", "distances"},
	}
	var resp struct {
		IDs       [][]string         `json:"ids"`
		Documents [][]string         `json:"documents"`
		Metadatas [][]map[string]any `json:"metadatas"`
		Distances [][]float64        `json:"distances"`
	}
	if err := s.do(ctx, http.MethodPost, fmt.Sprintf("/api/v1/collections/%s/query", id), req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Documents) == 0 || len(resp.Documents[0]) == 0 {
		return nil, nil
	}
	docs := resp.Documents[0]
	results := make([]domain.SearchResult, 0, len(docs))
	for i, doc := range docs {
		chunk := domain.Chunk{Text: doc}
		if len(resp.IDs) > 0 && i < len(resp.IDs[0]) {
			chunk.ChunkID = resp.IDs[0][i]
		}
		if len(resp.Metadatas) > 0 && i < len(resp.Metadatas[0]) {
			meta := resp.Metadatas[0][i]
			if v, ok := meta[metadataSourceKey].(string); ok {
				chunk.SourceFile = v
			}
			if v, ok := meta[metadataPagesKey].(string); ok {
				chunk.Pages = splitPages(v)
			}
			if v, ok := meta[metadataChunkIndexKey].(float64); ok {
				chunk.Index = int(v)
			}
		}
		score := 0.0
		if len(resp.Distances) > 0 && i < len(resp.Distances[0]) {
			// Chroma reports cosine distance; flip to similarity.
			score = 1 - resp.Distances[0][i]
		}
		results = append(results, domain.SearchResult{Chunk: chunk, Score: score})
	}
	return results, nil
}

func (s *Storage) Sources(ctx context.Context) ([]string, error) {
	id, err := s.ensureCollection(ctx)
	if err != nil {
		return nil, err
	}
	req := map[string]any{"include": []string{"metadatas"}}
	var resp struct {
		Metadatas []map[string]any `json:"metadatas"`
	}
	if err := s.do(ctx, http.MethodPost, fmt.Sprintf("/api/v1/collections/%s/get", id), req, &resp); err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	for _, meta := range resp.Metadatas {
		if v, ok := meta[metadataSourceKey].(string); ok {
			seen[v] = struct{}{}
		}
	}
	sources := make([]string, 0, len(seen))
	for src := range seen {
		sources = append(sources, src)
	}
	sort.Strings(sources)
	return sources, nil
}

func (s *Storage) DeleteSource(ctx context.Context, source string) error {
	id, err := s.ensureCollection(ctx)
	if err != nil {
		return err
	}
	req := map[string]any{"where": map[string]any{metadataSourceKey: source}}
	return s.do(ctx, http.MethodPost, fmt.Sprintf("/api/v1/collections/%s/delete", id), req, nil)
}

func (s *Storage) Count(ctx context.Context) (int, error) {
	id, err := s.ensureCollection(ctx)
	if err != nil {
		return 0, err
	}
	var count int
	if err := s.do(ctx, http.MethodGet, fmt.Sprintf("/api/v1/collections/%s/count", id), nil, &count); err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Storage) Clear(ctx context.Context) error {
	if err := s.do(ctx, http.MethodDelete, fmt.Sprintf("/api/v1/collections/%s", s.collection), nil, nil); err != nil {
		return err
	}
	s.collectionID = ""
	return nil
}

func (s *Storage) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.url+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("chroma %s %s: %s: %s", method, path, resp.Status, strings.TrimSpace(string(b)))
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func joinPages(pages []int) string {
	parts := make([]string, len(pages))
	for i, p := range pages {
		parts[i] = strconv.Itoa(p)
	}
	return strings.Join(parts, ",")
}

func splitPages(s string) []int {
	if s == "" {
		return nil
	}
	var pages []int
	for _, part := range strings.Split(s, ",") {
		if n, err := strconv.Atoi(strings.TrimSpace(part)); err == nil {
			pages = append(pages, n)
		}
	}
	return pages
}
