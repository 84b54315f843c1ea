package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// Client is a minimal HTTP client for an Ollama-compatible runtime.
type Client struct {
	httpClient *http.Client
	host       string
}

// GenerateRequest is a single-turn completion request.
type GenerateRequest struct {
	Model       string  `json:"model"`
	Prompt      string  `json:"prompt"`
	Temperature float64 `json:"-"`
	MaxTokens   int     `json:"-"`
}

// GenerateResponse carries the model's completion text.
type GenerateResponse struct {
	Text      string
	RequestID string
}

// NewClient creates a client targeting the given host
// (e.g., http://127.0.0.1:11434).
func NewClient(host string, httpTimeout time.Duration) *Client {
	if host == "" {
		host = "http://127.0.0.1:11434"
	}
	if httpTimeout <= 0 {
		httpTimeout = 120 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: httpTimeout},
		host:       host,
	}
}

// Structures aligned with Ollama /api/generate (non-streaming)
type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Generate sends a completion request and maps the response.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	if req.Model == "" {
		return nil, errors.New("model cannot be empty")
	}
	if req.Prompt == "" {
		return nil, errors.New("prompt cannot be empty")
	}

	oreq := ollamaGenerateRequest{
		Model:   req.Model,
		Prompt:  req.Prompt,
		Stream:  false,
		Options: map[string]any{"temperature": req.Temperature},
	}
	if req.MaxTokens > 0 {
		oreq.Options["num_predict"] = req.MaxTokens
	}
	payload, err := json.Marshal(oreq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if isTimeoutErr(err) {
			return nil, &TimeoutError{Host: c.host, Err: err}
		}
		return nil, &UnreachableError{Host: c.host, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		var raw map[string]any
		_ = json.Unmarshal(body, &raw)
		apiErr := &APIError{StatusCode: resp.StatusCode, Raw: raw}
		if msg, ok := raw["error"].(string); ok {
			apiErr.Message = msg
		}
		if resp.StatusCode == http.StatusNotFound {
			return nil, &ModelNotFoundError{APIError: apiErr}
		}
		if resp.StatusCode >= 500 {
			return nil, &ServerError{APIError: apiErr}
		}
		return nil, apiErr
	}

	var oresp ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&oresp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &GenerateResponse{
		Text:      oresp.Response,
		RequestID: fmt.Sprintf("ollama_%d", time.Now().UnixNano()),
	}, nil
}

// Embed requests embeddings for a batch of inputs using the /api/embeddings
// endpoint. The endpoint accepts single prompts per call; we loop inputs.
func (c *Client) Embed(ctx context.Context, model string, inputs []string) ([][]float32, error) {
	if model == "" {
		return nil, errors.New("embedding model cannot be empty")
	}
	if len(inputs) == 0 {
		return nil, errors.New("inputs cannot be empty")
	}
	type reqBody struct {
		Model  string `json:"model"`
		Prompt string `json:"prompt"`
	}
	type respBody struct {
		Embedding []float64 `json:"embedding"`
	}
	out := make([][]float32, 0, len(inputs))
	for _, s := range inputs {
		b, _ := json.Marshal(reqBody{Model: model, Prompt: s})
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+"/api/embeddings", bytes.NewReader(b))
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, &UnreachableError{Host: c.host, Err: err}
		}
		func() {
			defer resp.Body.Close()
			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				body, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
				err = fmt.Errorf("embeddings status %s: %s", resp.Status, string(body))
				return
			}
			var rb respBody
			if decErr := json.NewDecoder(resp.Body).Decode(&rb); decErr != nil {
				err = fmt.Errorf("decode: %w", decErr)
				return
			}
			vec := make([]float32, len(rb.Embedding))
			for i := range rb.Embedding {
				vec[i] = float32(rb.Embedding[i])
			}
			out = append(out, vec)
		}()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func isTimeoutErr(err error) bool {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
