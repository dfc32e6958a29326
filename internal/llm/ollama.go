package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"pdfrag/internal/domain"
)

// Client talks to a local Ollama server for answer generation.
type Client struct {
	baseURL     string
	model       string
	temperature float64
	maxTokens   int
	client      *http.Client

	ensureOnce sync.Once
}

// Config configures the Ollama chat client.
type Config struct {
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.Model == "" {
		cfg.Model = "llama3"
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 2000
	}
	t := cfg.Timeout
	if t == 0 {
		t = 5 * time.Minute
	}
	return &Client{
		baseURL:     cfg.BaseURL,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		client:      &http.Client{Timeout: t},
	}
}

type chatRequest struct {
	Model    string           `json:"model"`
	Messages []domain.Message `json:"messages"`
	Stream   bool             `json:"stream"`
	Options  map[string]any   `json:"options,omitempty"`
}

type chatResponse struct {
	Message domain.Message `json:"message"`
	Done    bool           `json:"done"`
}

// Chat sends the messages and returns the full generated answer.
func (c *Client) Chat(ctx context.Context, msgs []domain.Message) (string, error) {
	c.ensureOnce.Do(func() { c.ensureModel(ctx) })
	resp, err := c.send(ctx, msgs, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if out.Message.Content == "" {
		return "", errors.New("empty response from model")
	}
	return out.Message.Content, nil
}

// ChatStream sends the messages and feeds generated tokens to fn as they
// arrive. The stream is newline-delimited JSON.
func (c *Client) ChatStream(ctx context.Context, msgs []domain.Message, fn func(token string) error) error {
	c.ensureOnce.Do(func() { c.ensureModel(ctx) })
	resp, err := c.send(ctx, msgs, true)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	dec := json.NewDecoder(resp.Body)
	for {
		var out chatResponse
		if err := dec.Decode(&out); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("decode chat stream: %w", err)
		}
		if out.Message.Content != "" {
			if err := fn(out.Message.Content); err != nil {
				return err
			}
		}
		if out.Done {
			return nil
		}
	}
}

func (c *Client) send(ctx context.Context, msgs []domain.Message, stream bool) (*http.Response, error) {
	body := chatRequest{
		Model:    c.model,
		Messages: msgs,
		Stream:   stream,
		Options: map[string]any{
			"temperature": c.temperature,
			"num_predict": c.maxTokens,
		},
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		return nil, fmt.Errorf("ollama chat failed: %s: %s", resp.Status, strings.TrimSpace(string(b)))
	}
	return resp, nil
}

// HasModel reports whether the configured model is available locally.
func (c *Client) HasModel(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return false, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return false, fmt.Errorf("ollama tags failed: %s", resp.Status)
	}
	var out struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, err
	}
	for _, m := range out.Models {
		if strings.Contains(m.Name, c.model) {
			return true, nil
		}
	}
	return false, nil
}

// Pull asks the server to download the configured model.
func (c *Client) Pull(ctx context.Context) error {
	data, _ := json.Marshal(map[string]any{"name": c.model, "stream": false})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/pull", bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("ollama pull failed: %s", resp.Status)
	}
	return nil
}

// ensureModel pulls the model if it is not available yet. Failures are
// tolerated: the chat call reports the authoritative error.
func (c *Client) ensureModel(ctx context.Context) {
	ok, err := c.HasModel(ctx)
	if err != nil || ok {
		return
	}
	_ = c.Pull(ctx)
}
