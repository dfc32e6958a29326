package chunker

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"pdfrag/internal/domain"
)

// sentenceMarkers are tried in order; the first one found inside the
// window decides where the chunk ends.
var sentenceMarkers = []string{". ", ".\n", "! ", "!\n", "? ", "?\n"}

// WindowChunker splits a document into overlapping fixed-size windows,
// snapping each window end to a sentence boundary when one exists and
// tracking which pages every window spans.
type WindowChunker struct {
	chunkSize    int
	chunkOverlap int
	minChunkSize int
}

func NewWindowChunker(chunkSize, chunkOverlap, minChunkSize int) *WindowChunker {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if chunkOverlap < 0 {
		chunkOverlap = 0
	}
	if minChunkSize <= 0 {
		minChunkSize = 100
	}
	return &WindowChunker{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		minChunkSize: minChunkSize,
	}
}

type pageStart struct {
	pos    int
	number int
}

func (c *WindowChunker) Chunk(document domain.Document) ([]domain.Chunk, error) {
	if len(document.Pages) == 0 {
		return nil, nil
	}
	// Concatenate pages into one buffer with page markers, remembering
	// where each page begins so chunks can be attributed back to pages.
	var buf strings.Builder
	pageMap := make([]pageStart, 0, len(document.Pages))
	for _, p := range document.Pages {
		pageMap = append(pageMap, pageStart{pos: buf.Len(), number: p.Number})
		fmt.Fprintf(&buf, "\n[Page %d]\n%s", p.Number, p.Text)
	}
	full := buf.String()

	var chunks []domain.Chunk
	start := 0
	index := 0
	for start < len(full) {
		end := start + c.chunkSize
		if end < len(full) {
			end = alignToRuneStart(full, end)
			if snapped, ok := c.snapToSentence(full, start, end); ok {
				end = snapped
			}
		}
		sliceEnd := end
		if sliceEnd > len(full) {
			sliceEnd = len(full)
		}
		text := strings.TrimSpace(full[start:sliceEnd])
		if len(text) >= c.minChunkSize {
			chunks = append(chunks, domain.Chunk{
				ChunkID:    fmt.Sprintf("%s_chunk_%d", document.Name, index),
				SourceFile: document.Name,
				Text:       text,
				Index:      index,
				Pages:      pagesForSpan(start, sliceEnd, pageMap),
				StartChar:  start,
				EndChar:    sliceEnd,
			})
			index++
		}
		// Advance with overlap; the unclamped end guarantees progress
		// past the final window.
		start = end - c.chunkOverlap
		if start <= 0 {
			start = end
		}
		start = alignToRuneStart(full, start)
	}
	return chunks, nil
}

// snapToSentence searches the window for the last occurrence of a sentence
// marker, never cutting before minChunkSize bytes of content.
func (c *WindowChunker) snapToSentence(full string, start, end int) (int, bool) {
	lo := start + c.minChunkSize
	if lo >= end {
		return 0, false
	}
	for _, marker := range sentenceMarkers {
		if idx := strings.LastIndex(full[lo:end], marker); idx != -1 {
			return lo + idx + len(marker), true
		}
	}
	return 0, false
}

// pagesForSpan returns the numbers of every page whose byte range
// intersects [start, end).
func pagesForSpan(start, end int, pageMap []pageStart) []int {
	var pages []int
	for i, ps := range pageMap {
		next := int(^uint(0) >> 1)
		if i+1 < len(pageMap) {
			next = pageMap[i+1].pos
		}
		if start < next && end > ps.pos {
			pages = append(pages, ps.number)
		}
	}
	return pages
}

func alignToRuneStart(s string, i int) int {
	for i > 0 && i < len(s) && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}
