// Package textgen calls a hosted text-generation model over HTTP.
//
// The wire format follows the Hugging Face inference API: a JSON body with
// "inputs" and "parameters", answered by either a list of
// {"generated_text": ...} objects or a single one.
package textgen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL     = "https://api-inference.huggingface.co/models"
	DefaultModel       = "mistralai/Mistral-7B-Instruct-v0.2"
	DefaultMaxTokens   = 200
	DefaultTemperature = 0.7
)

var ErrEmptyResponse = errors.New("empty generated text")

// Request is one generation call.
type Request struct {
	Prompt      string
	MaxTokens   int
	Temperature float64
}

type inferenceRequest struct {
	Inputs     string              `json:"inputs"`
	Parameters inferenceParameters `json:"parameters"`
}

type inferenceParameters struct {
	MaxNewTokens int     `json:"max_new_tokens"`
	Temperature  float64 `json:"temperature"`
}

type generation struct {
	GeneratedText string `json:"generated_text"`
}

// Config holds client settings. Zero values fall back to defaults.
type Config struct {
	BaseURL string
	Model   string
	APIKey  string
	Timeout time.Duration
	// RequestsPerMinute caps outbound calls; 0 disables the limit.
	RequestsPerMinute int
}

// Client talks to the inference endpoint.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("missing inference API key")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	c := &Client{
		endpoint:   strings.TrimRight(cfg.BaseURL, "/") + "/" + strings.TrimLeft(cfg.Model, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
	if cfg.RequestsPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}
	return c, nil
}

// Endpoint returns the model URL requests are posted to.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Generate posts the prompt and returns the generated text.
func (c *Client) Generate(ctx context.Context, req Request) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limit wait: %w", err)
		}
	}

	if req.MaxTokens <= 0 {
		req.MaxTokens = DefaultMaxTokens
	}
	body, err := json.Marshal(inferenceRequest{
		Inputs: req.Prompt,
		Parameters: inferenceParameters{
			MaxNewTokens: req.MaxTokens,
			Temperature:  req.Temperature,
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("inference request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("inference request failed with status %d: %s", resp.StatusCode, truncate(string(raw), 200))
	}

	text, err := decodeGeneratedText(raw)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// decodeGeneratedText accepts either [{"generated_text":...}] or {"generated_text":...}.
func decodeGeneratedText(raw []byte) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return "", ErrEmptyResponse
	}
	if trimmed[0] == '[' {
		var list []generation
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return "", fmt.Errorf("decode response: %w", err)
		}
		if len(list) == 0 {
			return "", ErrEmptyResponse
		}
		return list[0].GeneratedText, nil
	}
	var single generation
	if err := json.Unmarshal(trimmed, &single); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return single.GeneratedText, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
