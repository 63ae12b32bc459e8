package domain

import (
	"context"
	"time"
)

// VectorEncoder turns text into fixed-dimension vectors.
type VectorEncoder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch returns one vector per input, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// LLMClient sends prompts to a completion model.
type LLMClient interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
	CompleteWithOptions(ctx context.Context, prompt string, opts CompletionOptions) (string, error)
}

// CompletionOptions overrides per-call limits. Zero values fall back to client defaults.
type CompletionOptions struct {
	MaxTokens int
	Timeout   time.Duration
}

// TextProvider is the external text-AI collaborator.
type TextProvider interface {
	VectorEncoder
	LLMClient
}
