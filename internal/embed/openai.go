package embed

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/starford/mimir/internal/apperr"
)

// DefaultOpenAIModel is used when no model is configured.
const DefaultOpenAIModel = "text-embedding-3-small"

// OpenAIOptions configures the OpenAI-backed provider.
type OpenAIOptions struct {
	APIKey  string
	BaseURL string // optional, for proxies and compatible local servers
	Model   string // optional, defaults to DefaultOpenAIModel
	// Dimension overrides the width inferred from the model name. Required
	// for models this package does not know.
	Dimension int
}

// OpenAI embeds text through the OpenAI embeddings API.
type OpenAI struct {
	client *openai.Client
	model  string
	dim    int
}

var _ Provider = (*OpenAI)(nil)

// NewOpenAI creates an API-backed embedder.
func NewOpenAI(opts OpenAIOptions) (*OpenAI, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("embed: missing API key: %w", apperr.ErrInvalidConfig)
	}
	model := opts.Model
	if model == "" {
		model = DefaultOpenAIModel
	}
	dim := opts.Dimension
	if dim <= 0 {
		dim = modelDimension(model)
	}
	if dim <= 0 {
		return nil, fmt.Errorf("embed: unknown dimension for model %q: %w", model, apperr.ErrInvalidConfig)
	}

	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	return &OpenAI{client: openai.NewClientWithConfig(cfg), model: model, dim: dim}, nil
}

// Embed requests one vector per text in a single API call. Results are
// reordered by the index the API reports, then normalized to unit length.
func (o *OpenAI) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(o.model),
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("embed: create embeddings: %v: %w", err, apperr.ErrEmbedding)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embed: got %d vectors for %d texts: %w", len(resp.Data), len(texts), apperr.ErrEmbedding)
	}

	vecs := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(vecs) {
			return nil, fmt.Errorf("embed: vector index %d out of range: %w", d.Index, apperr.ErrEmbedding)
		}
		v := append([]float32(nil), d.Embedding...)
		normalize(v)
		vecs[d.Index] = v
	}
	return vecs, nil
}

func (o *OpenAI) Dimension() int { return o.dim }

func modelDimension(model string) int {
	switch model {
	case "text-embedding-3-small", "text-embedding-ada-002":
		return 1536
	case "text-embedding-3-large":
		return 3072
	}
	return 0
}
