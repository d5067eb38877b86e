package ollama

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/okulov/polyqa/internal/core/ports"
	"github.com/okulov/polyqa/internal/infrastructure/resilience"
)

// Config selects the models the client talks to. Models maps a
// pipeline role onto a model name; roles without an entry fall back to
// DefaultModel.
type Config struct {
	BaseURL      string
	DefaultModel string
	EmbedModel   string
	Models       map[ports.Role]string
}

type Client struct {
	baseURL      string
	defaultModel string
	embedModel   string
	models       map[ports.Role]string
	httpClient   *http.Client
	executor     *resilience.Executor
}

func New(cfg Config, executor *resilience.Executor) *Client {
	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		defaultModel: cfg.DefaultModel,
		embedModel:   cfg.EmbedModel,
		models:       cfg.Models,
		httpClient:   &http.Client{Timeout: 120 * time.Second},
		executor:     executor,
	}
}

func (c *Client) modelFor(role ports.Role) string {
	if model, ok := c.models[role]; ok && model != "" {
		return model
	}
	return c.defaultModel
}

// call runs fn through the resilience executor when one is configured.
func (c *Client) call(ctx context.Context, operation string, fn func(context.Context) error) error {
	if c.executor == nil {
		return wrapTemporaryIfNeeded(operation, fn(ctx))
	}
	err := c.executor.Execute(ctx, operation, fn, classifyOllamaError)
	return wrapTemporaryIfNeeded(operation, err)
}

// Generator implements the pipeline's generation port on top of the
// Ollama completion API.
type Generator struct {
	client *Client
}

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

func (g *Generator) Generate(ctx context.Context, prompt string, role ports.Role) (ports.Generation, error) {
	reqBody := map[string]any{
		"model":  g.client.modelFor(role),
		"prompt": prompt,
		"stream": false,
	}

	var response struct {
		Response        string `json:"response"`
		PromptEvalCount int    `json:"prompt_eval_count"`
		EvalCount       int    `json:"eval_count"`
	}
	err := g.client.call(ctx, "ollama.generate", func(callCtx context.Context) error {
		return g.client.postJSON(callCtx, "/api/generate", reqBody, &response, "generate")
	})
	if err != nil {
		return ports.Generation{}, err
	}

	return ports.Generation{
		Text: strings.TrimSpace(response.Response),
		Usage: ports.Usage{
			PromptTokens:     response.PromptEvalCount,
			CompletionTokens: response.EvalCount,
		},
	}, nil
}

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	request := map[string]any{
		"model": e.client.embedModel,
		"input": texts,
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	err := e.client.call(ctx, "ollama.embed", func(callCtx context.Context) error {
		return e.client.postJSON(callCtx, "/api/embed", request, &response, "embed")
	})
	if err != nil {
		return nil, err
	}
	if len(response.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embed: got %d embeddings for %d inputs", len(response.Embeddings), len(texts))
	}
	return response.Embeddings, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return vectors[0], nil
}
