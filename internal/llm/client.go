// Package llm adapts the Gemini generateContent API to the single-prompt
// Generator interface the docstring and docs packages use.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"
)

const (
	// DefaultBaseURL is the public Gemini API root.
	DefaultBaseURL  = "https://generativelanguage.googleapis.com"
	_apiVersion     = "v1beta"
	_defaultTimeout = 60 * time.Second
)

// ErrEmptyResponse indicates the API answered without any candidate text.
var ErrEmptyResponse = errors.New("llm: empty response")

// Generator turns a prompt into text using the named model.
type Generator interface {
	Generate(ctx context.Context, model, prompt string) (string, error)
}

// StatusError is returned for non-2xx API responses.
type StatusError struct {
	Model      string
	StatusCode int
	Status     string
	Message    string
}

func (e *StatusError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if e.Status != "" {
		return fmt.Sprintf("llm: model %s: HTTP %d %s: %s", e.Model, e.StatusCode, e.Status, msg)
	}
	return fmt.Sprintf("llm: model %s: HTTP %d: %s", e.Model, e.StatusCode, msg)
}

// IsOverloaded reports whether err signals a server-side overload (HTTP 500
// or 503). Only these are worth retrying against the same model.
func IsOverloaded(err error) bool {
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		return false
	}
	return statusErr.StatusCode == http.StatusServiceUnavailable || statusErr.StatusCode == http.StatusInternalServerError
}

// Client calls the Gemini API through the genai SDK.
type Client struct {
	models *genai.Models
}

// NewClient builds a client. An empty baseURL selects DefaultBaseURL and a nil
// httpClient gets a default with a 60s timeout.
func NewClient(ctx context.Context, baseURL, apiKey string, httpClient *http.Client) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("llm: api key is required")
	}
	baseURL = strings.TrimSuffix(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: _defaultTimeout}
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    baseURL,
			APIVersion: _apiVersion,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("llm: build genai client: %w", err)
	}
	return &Client{models: client.Models}, nil
}

// Generate sends prompt to model and returns the concatenated text of the
// first candidate.
func (c *Client) Generate(ctx context.Context, model, prompt string) (string, error) {
	resp, err := c.models.GenerateContent(ctx, model, genai.Text(prompt), nil)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return "", &StatusError{
				Model:      model,
				StatusCode: apiErr.Code,
				Status:     apiErr.Status,
				Message:    strings.TrimSpace(apiErr.Message),
			}
		}
		return "", fmt.Errorf("llm: model %s: %w", model, err)
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("model %s: %w", model, ErrEmptyResponse)
	}

	var text strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if p != nil {
			text.WriteString(p.Text)
		}
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("model %s: %w", model, ErrEmptyResponse)
	}
	return text.String(), nil
}
