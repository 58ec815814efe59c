package embedding

import (
	"context"
	"fmt"

	"github.com/nlpodyssey/cybertron/pkg/models/bert"
	"github.com/nlpodyssey/cybertron/pkg/tasks"
	"github.com/nlpodyssey/cybertron/pkg/tasks/textencoding"
)

// DefaultModelName is the sentence-transformers model used for indexing
// and search
const DefaultModelName = "sentence-transformers/all-MiniLM-L6-v2"

// TransformerConfig locates a Hugging Face sentence-transformers model
type TransformerConfig struct {
	// ModelsDir caches downloaded and converted models
	ModelsDir string
	// ModelName is the Hugging Face repository of the model
	ModelName string
	// AllowDownload fetches a missing model from the Hugging Face hub
	AllowDownload bool
	// HubAccessToken is needed for gated models only
	HubAccessToken string
}

func (c TransformerConfig) taskConfig() *tasks.Config {
	policy := tasks.DownloadNever
	if c.AllowDownload {
		policy = tasks.DownloadMissing
	}

	name := c.ModelName
	if name == "" {
		name = DefaultModelName
	}

	return &tasks.Config{
		ModelsDir:      c.ModelsDir,
		ModelName:      name,
		HubAccessToken: c.HubAccessToken,
		DownloadPolicy: policy,
	}
}

// TransformerModel runs a BERT sentence encoder and mean-pools its token
// states
type TransformerModel struct {
	encoder textencoding.Interface
	dim     int
}

func (m *TransformerModel) Dimension() int {
	return m.dim
}

func (m *TransformerModel) Encode(ctx context.Context, text string) ([]float32, error) {
	result, err := m.encoder.Encode(ctx, text, int(bert.MeanPooling))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingFailed, err)
	}

	values := result.Vector.Data().F64()
	vec := make([]float32, len(values))
	for i, v := range values {
		vec[i] = float32(v)
	}
	return vec, nil
}

// LoadTransformerModel loads the model, converting it on first use, and
// runs one encode to learn its output dimension
func LoadTransformerModel(ctx context.Context, cfg TransformerConfig) (*TransformerModel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	encoder, err := tasks.Load[textencoding.Interface](cfg.taskConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", cfg.taskConfig().ModelName, err)
	}

	model := &TransformerModel{encoder: encoder}
	warm, err := model.Encode(ctx, "warm up")
	if err != nil {
		return nil, err
	}
	model.dim = len(warm)

	return model, nil
}

// TransformerLoader loads the transformer model described by cfg
func TransformerLoader(cfg TransformerConfig) Loader {
	return LoaderFunc(func(ctx context.Context) (Model, error) {
		return LoadTransformerModel(ctx, cfg)
	})
}
