package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	errx "github.com/fintalk/server/internal/core/error"
	logx "github.com/fintalk/server/pkg/logger"
)

// Metadata is carried alongside every stored chunk and returned on search.
type Metadata struct {
	Filename    string `json:"filename"`
	ChunkIndex  int    `json:"chunk_index"`
	TotalChunks int    `json:"total_chunks"`
	UploadDate  string `json:"upload_date"`
	DocumentID  string `json:"document_id"`
}

// Chunk is one embedded text span ready for indexing.
type Chunk struct {
	ID        string
	Content   string
	Embedding []float32
	Metadata  Metadata
}

// Hit is one similarity-search result.
type Hit struct {
	Content  string
	Metadata Metadata
	Score    float64
}

// Searcher is the retrieval capability the document-search tool depends on.
type Searcher interface {
	Search(ctx context.Context, vector []float32, k int) ([]Hit, error)
}

// Index wraps an OpenSearch knn index holding embedded document chunks.
type Index struct {
	client     *opensearch.Client
	name       string
	dimensions int
}

func NewIndex(client *opensearch.Client, name string, dimensions int) *Index {
	return &Index{client: client, name: name, dimensions: dimensions}
}

// hnsw parameters match the index the documents were originally provisioned
// with; changing them requires a reindex.
const mappingTemplate = `{
  "settings": {
    "index": {
      "knn": true
    }
  },
  "mappings": {
    "properties": {
      "content": {"type": "text"},
      "embedding": {
        "type": "knn_vector",
        "dimension": %d,
        "method": {
          "name": "hnsw",
          "engine": "faiss",
          "space_type": "l2",
          "parameters": {"ef_construction": 256, "m": 48}
        }
      },
      "metadata": {
        "properties": {
          "filename": {"type": "keyword"},
          "chunk_index": {"type": "integer"},
          "total_chunks": {"type": "integer"},
          "upload_date": {"type": "keyword"},
          "document_id": {"type": "keyword"}
        }
      }
    }
  }
}`

// EnsureIndex creates the knn index if it does not exist yet.
func (x *Index) EnsureIndex(ctx context.Context) error {
	exists, err := opensearchapi.IndicesExistsRequest{Index: []string{x.name}}.Do(ctx, x.client)
	if err != nil {
		return errx.WrapConnectivity(err, errx.CodeStorage, "Failed to initialize storage")
	}
	defer exists.Body.Close()
	if exists.StatusCode == 200 {
		return nil
	}

	mapping := fmt.Sprintf(mappingTemplate, x.dimensions)
	res, err := opensearchapi.IndicesCreateRequest{
		Index: x.name,
		Body:  strings.NewReader(mapping),
	}.Do(ctx, x.client)
	if err != nil {
		return errx.WrapConnectivity(err, errx.CodeStorage, "Failed to initialize storage")
	}
	defer res.Body.Close()
	if res.IsError() {
		return errx.New(errx.CodeStorage, "Failed to initialize storage", res.String())
	}

	logx.Info().Str("index", x.name).Msg("Created vector index")
	return nil
}

type chunkDocument struct {
	Content   string    `json:"content"`
	Embedding []float32 `json:"embedding"`
	Metadata  Metadata  `json:"metadata"`
}

// IndexChunks bulk-indexes embedded chunks.
func (x *Index) IndexChunks(ctx context.Context, chunks []Chunk) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, c := range chunks {
		meta := map[string]map[string]string{
			"index": {"_index": x.name, "_id": c.ID},
		}
		if err := enc.Encode(meta); err != nil {
			return err
		}
		if err := enc.Encode(chunkDocument{
			Content:   c.Content,
			Embedding: c.Embedding,
			Metadata:  c.Metadata,
		}); err != nil {
			return err
		}
	}

	res, err := opensearchapi.BulkRequest{
		Body:    &buf,
		Refresh: "true",
	}.Do(ctx, x.client)
	if err != nil {
		return errx.WrapConnectivity(err, errx.CodeIndexing, "Failed to index document")
	}
	defer res.Body.Close()
	if res.IsError() {
		return errx.New(errx.CodeIndexing, "Failed to index document", res.String())
	}

	var bulkRes struct {
		Errors bool `json:"errors"`
	}
	if err := json.NewDecoder(res.Body).Decode(&bulkRes); err != nil {
		return errx.New(errx.CodeIndexing, "Failed to index document", err.Error())
	}
	if bulkRes.Errors {
		return errx.New(errx.CodeIndexing, "Failed to index document", "bulk indexing reported item failures")
	}
	return nil
}

type knnQuery struct {
	Size  int `json:"size"`
	Query struct {
		KNN map[string]knnField `json:"knn"`
	} `json:"query"`
}

type knnField struct {
	Vector []float32 `json:"vector"`
	K      int       `json:"k"`
}

// Search returns the k nearest chunks to the query vector.
func (x *Index) Search(ctx context.Context, vector []float32, k int) ([]Hit, error) {
	var q knnQuery
	q.Size = k
	q.Query.KNN = map[string]knnField{
		"embedding": {Vector: vector, K: k},
	}

	body, err := json.Marshal(q)
	if err != nil {
		return nil, err
	}

	res, err := x.client.Search(
		x.client.Search.WithContext(ctx),
		x.client.Search.WithIndex(x.name),
		x.client.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, errx.WrapConnectivity(err, errx.CodeInternal, "Vector search failed")
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, errx.New(errx.CodeInternal, "Vector search failed", res.String())
	}

	var sr struct {
		Hits struct {
			Hits []struct {
				Score  float64       `json:"_score"`
				Source chunkDocument `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&sr); err != nil {
		return nil, err
	}

	hits := make([]Hit, 0, len(sr.Hits.Hits))
	for _, h := range sr.Hits.Hits {
		hits = append(hits, Hit{
			Content:  h.Source.Content,
			Metadata: h.Source.Metadata,
			Score:    h.Score,
		})
	}
	return hits, nil
}

// Ping verifies the cluster is reachable.
func (x *Index) Ping(ctx context.Context) error {
	res, err := x.client.Ping(x.client.Ping.WithContext(ctx))
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("opensearch ping: %s", res.Status())
	}
	return nil
}
