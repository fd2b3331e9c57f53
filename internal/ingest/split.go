package ingest

import "strings"

// Chunking parameters the index contents were provisioned with.
const (
	DefaultChunkSize    = 512
	DefaultChunkOverlap = 128
)

// Split cuts text into overlapping word-window chunks. The last chunk may be
// shorter than size; overlap must be smaller than size.
func Split(text string, size, overlap int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap >= size {
		overlap = size / 4
	}

	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	step := size - overlap
	var chunks []string
	for i := 0; i < len(words); i += step {
		end := i + size
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[i:end], " "))
		if end == len(words) {
			break
		}
	}
	return chunks
}
