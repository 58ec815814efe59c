package embedding

import (
	"context"
	"os"
	"testing"

	"github.com/nlpodyssey/cybertron/pkg/tasks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransformerConfig_TaskConfig(t *testing.T) {
	tests := []struct {
		name       string
		cfg        TransformerConfig
		wantName   string
		wantPolicy tasks.DownloadPolicy
	}{
		{
			name:       "defaults to MiniLM",
			cfg:        TransformerConfig{ModelsDir: "models", AllowDownload: true},
			wantName:   DefaultModelName,
			wantPolicy: tasks.DownloadMissing,
		},
		{
			name:       "offline",
			cfg:        TransformerConfig{ModelsDir: "/srv/models", ModelName: "sentence-transformers/paraphrase-MiniLM-L3-v2"},
			wantName:   "sentence-transformers/paraphrase-MiniLM-L3-v2",
			wantPolicy: tasks.DownloadNever,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.cfg.taskConfig()
			assert.Equal(t, tt.cfg.ModelsDir, got.ModelsDir)
			assert.Equal(t, tt.wantName, got.ModelName)
			assert.Equal(t, tt.wantPolicy, got.DownloadPolicy)
		})
	}
}

func TestTransformerLoader_MissingOfflineModel(t *testing.T) {
	p := NewProvider(TransformerLoader(TransformerConfig{ModelsDir: t.TempDir()}))

	_, err := p.Embed(context.Background(), "hello")
	var loadErr *ModelLoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Zero(t, p.Loads())
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// Needs all-MiniLM-L6-v2 under HELPDESK_TEST_MODELS_DIR
func TestTransformerModel_RanksParaphraseAboveWordOverlap(t *testing.T) {
	dir := os.Getenv("HELPDESK_TEST_MODELS_DIR")
	if dir == "" {
		t.Skip("HELPDESK_TEST_MODELS_DIR not set")
	}

	p := NewProvider(TransformerLoader(TransformerConfig{ModelsDir: dir}))
	ctx := context.Background()

	embed := func(text string) []float32 {
		vec, err := p.Embed(ctx, text)
		require.NoError(t, err)
		require.Len(t, vec, Dimension)
		assert.InDelta(t, 1.0, norm(vec), 1e-4)
		return vec
	}

	query := embed("I cannot log into my account")
	paraphrase := embed("Sign-in fails with wrong credentials error")
	overlap := embed("my account invoice is into the wrong month")

	assert.Greater(t, dot(query, paraphrase), dot(query, overlap))
	assert.Equal(t, 1, p.Loads())
}
