package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	genai "github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/compat_oai/openai"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"
)

// Supported providers.
const (
	ProviderGemini = "gemini"
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// Config selects the AI provider and its models.
type Config struct {
	Provider      string // "gemini" (default), "ollama", "openai"
	Model         string // generation model name
	EmbedderModel string // embedding model name
	OllamaHost    string // only used when Provider is "ollama"
}

// fullModelName returns the provider-qualified model name for Genkit,
// e.g. "googleai/gemini-2.5-flash" or "ollama/llama3.3". A name already
// containing "/" passes through unchanged.
func (c Config) fullModelName() string {
	if strings.Contains(c.Model, "/") {
		return c.Model
	}
	switch c.Provider {
	case ProviderOllama:
		return "ollama/" + c.Model
	case ProviderOpenAI:
		return "openai/" + c.Model
	default:
		return "googleai/" + c.Model
	}
}

// Client is the Genkit-backed Embedder and Generator.
type Client struct {
	g        *genkit.Genkit
	embedder genai.Embedder
	model    string
	logger   *slog.Logger
}

var (
	_ Embedder  = (*Client)(nil)
	_ Generator = (*Client)(nil)
)

// NewClient initializes Genkit with the configured provider plugin and
// resolves the embedder it registers.
func NewClient(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	provider := cfg.Provider
	if provider == "" {
		provider = ProviderGemini
	}

	var (
		g        *genkit.Genkit
		embedder genai.Embedder
	)

	switch provider {
	case ProviderOllama:
		ollamaPlugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		g = genkit.Init(ctx, genkit.WithPlugins(ollamaPlugin))
		if g == nil {
			return nil, errors.New("initializing genkit with ollama provider")
		}
		// Ollama requires explicit model registration (no auto-discovery)
		ollamaPlugin.DefineModel(g, ollama.ModelDefinition{
			Name: cfg.Model,
			Type: "chat",
		}, nil)
		// Ollama embedders are keyed by server address
		ollamaPlugin.DefineEmbedder(g, cfg.OllamaHost, cfg.EmbedderModel, nil)
		embedder = ollama.Embedder(g, cfg.OllamaHost)
		logger.Info("initialized Genkit with ollama provider",
			"model", cfg.Model, "host", cfg.OllamaHost)

	case ProviderOpenAI:
		g = genkit.Init(ctx, genkit.WithPlugins(&openai.OpenAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with openai provider")
		}
		embedder = genkit.LookupEmbedder(g, api.NewName("openai", cfg.EmbedderModel))
		logger.Info("initialized Genkit with openai provider", "model", cfg.Model)

	case ProviderGemini:
		g = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with gemini provider")
		}
		embedder = googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
		logger.Info("initialized Genkit with gemini provider", "model", cfg.Model)

	default:
		return nil, fmt.Errorf("unknown AI provider %q", provider)
	}

	if embedder == nil {
		return nil, fmt.Errorf("resolving embedder %q for provider %q", cfg.EmbedderModel, provider)
	}

	return &Client{
		g:        g,
		embedder: embedder,
		model:    cfg.fullModelName(),
		logger:   logger,
	}, nil
}

// Embed generates one embedding vector per input text, in input order.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	docs := make([]*genai.Document, len(texts))
	for i, t := range texts {
		docs[i] = genai.DocumentFromText(t, nil)
	}

	resp, err := c.embedder.Embed(ctx, &genai.EmbedRequest{Input: docs})
	if err != nil {
		return nil, fmt.Errorf("embedding %d texts: %w", len(texts), err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts",
			ErrEmptyResponse, len(resp.Embeddings), len(texts))
	}

	vectors := make([][]float32, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		vectors[i] = e.Embedding
	}
	return vectors, nil
}

// Generate produces a complete answer in one call.
func (c *Client) Generate(ctx context.Context, req Request) (string, error) {
	return c.generate(ctx, req, nil)
}

// GenerateStream produces the answer incrementally through callback and
// returns the accumulated text.
func (c *Client) GenerateStream(ctx context.Context, req Request, callback StreamCallback) (string, error) {
	return c.generate(ctx, req, callback)
}

func (c *Client) generate(ctx context.Context, req Request, callback StreamCallback) (string, error) {
	opts := []genai.GenerateOption{
		genai.WithModelName(c.model),
		genai.WithSystem(systemPrompt),
		genai.WithPrompt(buildPrompt(req)),
	}

	if callback != nil {
		opts = append(opts, genai.WithStreaming(func(ctx context.Context, chunk *genai.ModelResponseChunk) error {
			if text := chunk.Text(); text != "" {
				return callback(ctx, text)
			}
			return nil
		}))
	}

	response, err := genkit.Generate(ctx, c.g, opts...)
	if err != nil {
		return "", fmt.Errorf("generating response: %w", err)
	}

	text := response.Text()
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
