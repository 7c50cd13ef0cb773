// Package ai defines the model-facing interfaces of the application —
// embedding and text generation — and provides the Genkit-backed
// implementation behind them. Consumers depend on the small interfaces;
// tests swap in fakes.
package ai

import (
	"context"
	"errors"
)

// Sentinel errors for model operations.
var (
	// ErrEmptyResponse indicates the model produced no embeddings or text.
	ErrEmptyResponse = errors.New("model returned an empty response")
)

// Embedder turns text into embedding vectors. Output pairs positionally
// with input: one vector per text, in order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// StreamCallback receives generated text incrementally. Returning an error
// aborts the generation.
type StreamCallback func(ctx context.Context, chunk string) error

// Turn is one prior exchange in a conversation: the user's question and
// the assistant's answer.
type Turn struct {
	Question string
	Answer   string
}

// Request carries everything a generation needs: the retrieved context,
// recent history, and the current question.
type Request struct {
	Context  string
	History  []Turn
	Question string
}

// Generator produces an answer for a request. GenerateStream delivers the
// text incrementally through the callback and returns the full text once
// the stream completes.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
	GenerateStream(ctx context.Context, req Request, callback StreamCallback) (string, error)
}
