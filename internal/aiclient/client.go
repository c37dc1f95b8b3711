// Package aiclient is an HTTP facade for the external AI summarizer and
// embedder service (spec.md §1 "deliberately out of scope"; this package
// only specifies the client-side contract, not the service).
package aiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client is the interface abstracting the AI service, so the context
// engine can be tested against a fake.
type Client interface {
	// SummarizeJSON requests a structured {summary_short, summary_long}
	// pair for prompt.
	SummarizeJSON(ctx context.Context, prompt string) (Summary, error)
	// SummarizePlainText requests a free-text summary, used as the
	// fallback when JSON mode fails to parse (spec.md §4.11(d)).
	SummarizePlainText(ctx context.Context, prompt string) (string, error)
	// Embed returns a vector embedding for text.
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Summary is the AI service's structured summarization response.
type Summary struct {
	SummaryShort string `json:"summary_short"`
	SummaryLong  string `json:"summary_long"`
}

type httpClient struct {
	baseURL string
	token   string
	hc      *http.Client
}

// New constructs a Client pointed at baseURL, authenticating with token
// as a bearer credential (spec.md §6 "FEED_API_BASE_URL", "FEED_INTERNAL_TOKEN").
func New(baseURL, token string) Client {
	return &httpClient{baseURL: baseURL, token: token, hc: &http.Client{Timeout: 30 * time.Second}}
}

func (c *httpClient) newRequest(ctx context.Context, path string, body any) (*http.Request, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("aiclient: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("aiclient: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func (c *httpClient) doJSON(req *http.Request, dest any) error {
	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("aiclient: http do: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("aiclient: read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("aiclient: unexpected status %d: %s", resp.StatusCode, string(raw))
	}
	if dest != nil {
		if err := json.Unmarshal(raw, dest); err != nil {
			return fmt.Errorf("aiclient: unmarshal response: %w", err)
		}
	}
	return nil
}

type summarizeRequest struct {
	Prompt string `json:"prompt"`
	Mode   string `json:"mode"`
}

func (c *httpClient) SummarizeJSON(ctx context.Context, prompt string) (Summary, error) {
	req, err := c.newRequest(ctx, "/v1/summarize", summarizeRequest{Prompt: prompt, Mode: "json"})
	if err != nil {
		return Summary{}, err
	}
	var resp Summary
	if err := c.doJSON(req, &resp); err != nil {
		return Summary{}, fmt.Errorf("SummarizeJSON: %w", err)
	}
	return resp, nil
}

type plainTextResponse struct {
	Text string `json:"text"`
}

func (c *httpClient) SummarizePlainText(ctx context.Context, prompt string) (string, error) {
	req, err := c.newRequest(ctx, "/v1/summarize", summarizeRequest{Prompt: prompt, Mode: "text"})
	if err != nil {
		return "", err
	}
	var resp plainTextResponse
	if err := c.doJSON(req, &resp); err != nil {
		return "", fmt.Errorf("SummarizePlainText: %w", err)
	}
	return resp.Text, nil
}

type embedRequest struct {
	Text string `json:"text"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

func (c *httpClient) Embed(ctx context.Context, text string) ([]float32, error) {
	req, err := c.newRequest(ctx, "/v1/embed", embedRequest{Text: text})
	if err != nil {
		return nil, err
	}
	var resp embedResponse
	if err := c.doJSON(req, &resp); err != nil {
		return nil, fmt.Errorf("Embed: %w", err)
	}
	return resp.Embedding, nil
}
