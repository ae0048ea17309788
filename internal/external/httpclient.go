package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPCompleter implements Completer by POSTing the prompt to an
// operator-supplied LLM gateway and decoding {"text": "..."} from the
// response. It is the default concrete boundary wiring for the
// Decomposition Engine's Completer dependency (spec §6.6): any gateway
// that speaks this minimal contract (a thin proxy in front of whichever
// model the operator runs) can be plugged in without a code change.
type HTTPCompleter struct {
	Endpoint string
	Token    string
	client   *http.Client
}

// NewHTTPCompleter builds an HTTPCompleter against endpoint.
func NewHTTPCompleter(endpoint, token string) *HTTPCompleter {
	return &HTTPCompleter{Endpoint: endpoint, Token: token, client: &http.Client{Timeout: 90 * time.Second}}
}

type completionRequest struct {
	Prompt      string   `json:"prompt"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	Temperature float64  `json:"temperature,omitempty"`
	StopWords   []string `json:"stop_words,omitempty"`
}

type completionResponse struct {
	Text string `json:"text"`
}

func (c *HTTPCompleter) Complete(ctx context.Context, prompt string, opts CompletionOptions) (string, error) {
	body, err := json.Marshal(completionRequest{
		Prompt:      prompt,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
		StopWords:   opts.StopWords,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("external: completion endpoint returned %s", resp.Status)
	}

	var out completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("external: decode completion response: %w", err)
	}
	return out.Text, nil
}

// HTTPCodeMapper implements CodeMapper by delegating codebase
// summarization to the same style of operator-supplied HTTP gateway.
type HTTPCodeMapper struct {
	Endpoint string
	Token    string
	client   *http.Client
}

// NewHTTPCodeMapper builds an HTTPCodeMapper against endpoint.
func NewHTTPCodeMapper(endpoint, token string) *HTTPCodeMapper {
	return &HTTPCodeMapper{Endpoint: endpoint, Token: token, client: &http.Client{Timeout: 30 * time.Second}}
}

func (c *HTTPCodeMapper) Summarize(ctx context.Context, rootDir string) (CodebaseSummary, error) {
	body, err := json.Marshal(map[string]string{"root_dir": rootDir})
	if err != nil {
		return CodebaseSummary{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return CodebaseSummary{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return CodebaseSummary{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return CodebaseSummary{}, fmt.Errorf("external: code mapper endpoint returned %s", resp.Status)
	}

	var out CodebaseSummary
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return CodebaseSummary{}, fmt.Errorf("external: decode summary response: %w", err)
	}
	return out, nil
}
