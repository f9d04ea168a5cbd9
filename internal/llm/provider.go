package llm

import "context"

// CompletionOptions controla una llamada de completado.
type CompletionOptions struct {
	MaxTokens   int
	Temperature float64
}

// Completer genera texto a partir de un prompt.
type Completer interface {
	Complete(ctx context.Context, prompt string, opts CompletionOptions) (string, error)
}

// Embedder convierte texto en vectores de dimension fija.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Model() string
}
