package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// apiClient is a thin wrapper over the feedeater operational HTTP surface.
// It is deliberately a single-shot request/response client (no retries, no
// connection pooling tuning) since feedeaterctl is an interactive tool run
// once per invocation, not a long-lived service.
type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient(baseURL string) *apiClient {
	return &apiClient{baseURL: baseURL, http: &http.Client{Timeout: 15 * time.Second}}
}

func (c *apiClient) do(method, path string, query url.Values, body any, out any) error {
	full := c.baseURL + path
	if len(query) > 0 {
		full += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("feedeaterctl: encode request: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, full, reqBody)
	if err != nil {
		return fmt.Errorf("feedeaterctl: build request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("feedeaterctl: request to %s failed: %w", full, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("feedeaterctl: read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		return fmt.Errorf("feedeaterctl: %s %s: %s: %s", method, path, resp.Status, string(raw))
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("feedeaterctl: decode response: %w", err)
	}
	return nil
}

func (c *apiClient) get(path string, query url.Values, out any) error {
	return c.do(http.MethodGet, path, query, nil, out)
}

func (c *apiClient) put(path string, body any) error {
	return c.do(http.MethodPut, path, nil, body, nil)
}

func (c *apiClient) post(path string, body any, out any) error {
	return c.do(http.MethodPost, path, nil, body, out)
}

// newSSERequest builds a GET request for a streaming endpoint (no
// per-request timeout since SSE connections are long-lived).
func newSSERequest(fullURL string) (*http.Request, error) {
	req, err := http.NewRequest(http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("feedeaterctl: build request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	return req, nil
}

// httpDoStreaming issues req with no client-side timeout, leaving the
// connection open for as long as the server keeps writing frames.
func httpDoStreaming(req *http.Request) (*http.Response, error) {
	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feedeaterctl: request to %s failed: %w", req.URL, err)
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("feedeaterctl: GET %s: %s: %s", req.URL.Path, resp.Status, string(raw))
	}
	return resp, nil
}
