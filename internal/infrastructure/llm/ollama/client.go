// Package ollama implements the embedding and generation provider ports on a
// local Ollama server.
package ollama

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/asafonov/docqa/internal/core/domain"
	"github.com/asafonov/docqa/internal/infrastructure/resilience"
)

type Config struct {
	BaseURL    string
	GenModel   string
	EmbedModel string
	Timeout    time.Duration
}

type Client struct {
	baseURL    string
	genModel   string
	embedModel string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(cfg Config, executor *resilience.Executor) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		genModel:   cfg.GenModel,
		embedModel: cfg.EmbedModel,
		httpClient: &http.Client{Timeout: timeout},
		executor:   executor,
	}
}

func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, domain.WrapError(domain.ErrProvider, "embed", fmt.Errorf("empty embedding result"))
	}
	return vectors[0], nil
}

func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	request := map[string]any{
		"model": c.embedModel,
		"input": texts,
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	err := c.executor.Execute(ctx, "ollama_embed", func(ctx context.Context) error {
		return c.postJSON(ctx, "/api/embed", request, &response, "embed")
	}, classifyProviderError)
	if err != nil {
		return nil, mapProviderError("embed", err)
	}
	if len(response.Embeddings) != len(texts) {
		return nil, domain.WrapError(domain.ErrProvider, "embed",
			fmt.Errorf("expected %d embeddings, got %d", len(texts), len(response.Embeddings)))
	}
	return response.Embeddings, nil
}

func (c *Client) Generate(ctx context.Context, prompt string, opts domain.GenerateOptions) (domain.Generation, error) {
	request := c.generateRequest(prompt, opts, false)

	var response struct {
		Response  string `json:"response"`
		EvalCount int    `json:"eval_count"`
	}
	err := c.executor.Execute(ctx, "ollama_generate", func(ctx context.Context) error {
		return c.postJSON(ctx, "/api/generate", request, &response, "generate")
	}, classifyProviderError)
	if err != nil {
		return domain.Generation{}, mapProviderError("generate", err)
	}
	return domain.Generation{
		Text:       strings.TrimSpace(response.Response),
		TokensUsed: response.EvalCount,
	}, nil
}

func (c *Client) generateRequest(prompt string, opts domain.GenerateOptions, stream bool) map[string]any {
	request := map[string]any{
		"model":  c.genModel,
		"prompt": prompt,
		"stream": stream,
	}
	if opts.JSON {
		request["format"] = "json"
	}

	options := map[string]any{}
	if opts.Temperature > 0 {
		options["temperature"] = opts.Temperature
	}
	if opts.MaxTokens > 0 {
		options["num_predict"] = opts.MaxTokens
	}
	if len(options) > 0 {
		request["options"] = options
	}
	return request
}
