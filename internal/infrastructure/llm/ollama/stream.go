package ollama

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/asafonov/docqa/internal/core/domain"
)

// streamChunk is one line of Ollama's line-delimited generate stream.
type streamChunk struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error"`
}

// StreamGenerate opens a streaming generate call and forwards fragments until
// the provider finishes or the context is cancelled. The stream does not go
// through the retry executor: a partially consumed stream is not restartable.
func (c *Client) StreamGenerate(ctx context.Context, prompt string, opts domain.GenerateOptions) (<-chan domain.TextFragment, error) {
	resp, err := c.post(ctx, "/api/generate", c.generateRequest(prompt, opts, true), "stream generate")
	if err != nil {
		return nil, mapProviderError("stream generate", err)
	}

	fragments := make(chan domain.TextFragment)
	go func() {
		defer close(fragments)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}

			var chunk streamChunk
			if err := json.Unmarshal([]byte(line), &chunk); err != nil {
				emitFragment(ctx, fragments, domain.TextFragment{
					Err: domain.WrapError(domain.ErrProvider, "stream generate", fmt.Errorf("decode stream line: %w", err)),
				})
				return
			}
			if chunk.Error != "" {
				emitFragment(ctx, fragments, domain.TextFragment{
					Err: domain.WrapError(domain.ErrProvider, "stream generate", fmt.Errorf("%s", chunk.Error)),
				})
				return
			}
			if chunk.Response != "" {
				if !emitFragment(ctx, fragments, domain.TextFragment{Text: chunk.Response}) {
					return
				}
			}
			if chunk.Done {
				return
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			emitFragment(ctx, fragments, domain.TextFragment{Err: mapProviderError("stream generate", err)})
		}
	}()

	return fragments, nil
}

func emitFragment(ctx context.Context, out chan<- domain.TextFragment, fragment domain.TextFragment) bool {
	select {
	case out <- fragment:
		return true
	case <-ctx.Done():
		return false
	}
}
