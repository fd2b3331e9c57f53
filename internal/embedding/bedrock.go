package embedding

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	errx "github.com/fintalk/server/internal/core/error"
)

// Embedder turns text into dense vectors for similarity search.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

type Config struct {
	Model      string `split_words:"true" default:"amazon.titan-embed-text-v2:0"`
	Dimensions int    `split_words:"true" default:"1024"`
}

// Bedrock embeds text through the Titan embedding models.
type Bedrock struct {
	client     *bedrockruntime.Client
	model      string
	dimensions int
}

func NewBedrock(client *bedrockruntime.Client, cfg Config) *Bedrock {
	return &Bedrock{
		client:     client,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
	}
}

type titanRequest struct {
	InputText  string `json:"inputText"`
	Dimensions int    `json:"dimensions,omitempty"`
	Normalize  bool   `json:"normalize"`
}

type titanResponse struct {
	Embedding []float32 `json:"embedding"`
}

func (b *Bedrock) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for _, text := range texts {
		vec, err := b.EmbedQuery(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, vec)
	}
	return vectors, nil
}

func (b *Bedrock) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	payload, err := json.Marshal(titanRequest{
		InputText:  text,
		Dimensions: b.dimensions,
		Normalize:  true,
	})
	if err != nil {
		return nil, err
	}

	out, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(b.model),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        payload,
	})
	if err != nil {
		return nil, errx.WrapBedrock(err)
	}

	var resp titanResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return nil, err
	}
	return resp.Embedding, nil
}
