package embedding

import "context"

// Dimension is the length of every embedding
const Dimension = 384

// Model produces the mean-pooled embedding of a text. Implementations are
// read-only after loading and safe for concurrent use.
type Model interface {
	Dimension() int
	Encode(ctx context.Context, text string) ([]float32, error)
}

// Loader loads a model. It is called once per process on success.
type Loader interface {
	Load(ctx context.Context) (Model, error)
}

// LoaderFunc adapts a function to Loader
type LoaderFunc func(ctx context.Context) (Model, error)

func (f LoaderFunc) Load(ctx context.Context) (Model, error) {
	return f(ctx)
}
