package ai

import "context"

// Embedder generates vector embeddings from text for semantic similarity search.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	// Returns a retryable error wrapping ErrEmbeddingService on transient
	// service unavailability.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings in a batch.
	// The returned slice contains embeddings in the same order as the input texts.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Generator produces structured report text from an evidence prompt.
// Implementations must be thread-safe for concurrent use.
type Generator interface {
	// GenerateJSON sends a system and user prompt to the generation model
	// and returns its response as cleaned JSON text (code fences stripped,
	// common formatting defects repaired). The caller unmarshals into its
	// own schema.
	// Returns an error wrapping ErrGenerationService when the model call
	// fails or the response never parses.
	GenerateJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Provider aggregates AI services for convenient initialization and
// lifecycle management. A provider creates and manages Embedder and
// Generator instances, ensuring they share configuration appropriately.
type Provider interface {
	// Embedder returns the text embedding service.
	// The returned Embedder is safe for concurrent use.
	Embedder() Embedder

	// Generator returns the report generation service.
	// The returned Generator is safe for concurrent use.
	Generator() Generator

	// Close releases resources held by the provider and its services.
	// After Close is called, the provider and its services should not be used.
	Close() error
}
