package ollama

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/menta2k/medref/internal/upstream"
	"github.com/menta2k/medref/pkg/client"
	"github.com/menta2k/medref/pkg/types"
)

const provider = "ollama"

// Config holds connection and generation settings
type Config struct {
	URL        string
	Model      string
	Timeout    time.Duration
	Generation client.GenerationConfig
}

// Client wraps the Ollama API client
type Client struct {
	client *api.Client
	config Config
}

// NewClient creates a new Ollama client
func NewClient(config Config) (*Client, error) {
	if config.Model == "" {
		return nil, fmt.Errorf("ollama model is required")
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	parsedURL, err := url.Parse(config.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	// Create base URL from the provided URL (removing path like /api/chat)
	baseURL := &url.URL{
		Scheme: parsedURL.Scheme,
		Host:   parsedURL.Host,
	}

	// Create client with the specified URL, ignoring environment
	return &Client{
		client: api.NewClient(baseURL, http.DefaultClient),
		config: config,
	}, nil
}

func (c *Client) Model() string {
	return c.config.Model
}

// Analyze performs a non-streaming chat and returns the full report
func (c *Client) Analyze(ctx context.Context, payload types.EncodedPayload, instructions string) (types.AnalysisReport, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	req, err := c.buildRequest(payload, instructions, false)
	if err != nil {
		return types.AnalysisReport{}, err
	}

	var sb strings.Builder
	err = c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		sb.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return types.AnalysisReport{}, mapError(ctx, err)
	}

	return types.AnalysisReport{
		Text:   sb.String(),
		Prompt: instructions,
		Model:  c.config.Model,
	}, nil
}

// AnalyzeStream performs a streaming chat, forwarding each message delta
func (c *Client) AnalyzeStream(ctx context.Context, payload types.EncodedPayload, instructions string) (*client.Stream, error) {
	req, err := c.buildRequest(payload, instructions, true)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	chunks := make(chan client.Chunk)
	go func() {
		defer close(chunks)
		err := c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
			if resp.Message.Content != "" {
				chunks <- client.Chunk{Text: resp.Message.Content}
			}
			return ctx.Err()
		})
		if err != nil {
			chunks <- client.Chunk{Err: mapError(ctx, err)}
		}
	}()

	return client.NewStream(chunks, cancel), nil
}

func (c *Client) buildRequest(payload types.EncodedPayload, instructions string, stream bool) (*api.ChatRequest, error) {
	// Decode base64 image to raw bytes
	imgBytes, err := base64.StdEncoding.DecodeString(payload.Data)
	if err != nil {
		return nil, &types.DecodeError{MIMEType: payload.MIMEType, Err: err}
	}

	gen := c.config.Generation
	options := map[string]any{
		"num_predict": gen.MaxTokens,
		"temperature": gen.Temperature,
		"top_p":       gen.TopP,
	}
	if gen.Seed != nil {
		options["seed"] = *gen.Seed
	}

	return &api.ChatRequest{
		Model: c.config.Model,
		Messages: []api.Message{
			{
				Role:    "user",
				Content: instructions,
				Images:  []api.ImageData{api.ImageData(imgBytes)},
			},
		},
		Stream:  &stream,
		Options: options,
	}, nil
}

func mapError(ctx context.Context, err error) error {
	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		body := statusErr.ErrorMessage
		if body == "" {
			body = statusErr.Status
		}
		return &types.UpstreamError{
			Provider: provider,
			Status:   statusErr.StatusCode,
			Body:     body,
		}
	}
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return &types.ResponseParseError{Provider: provider, Err: err}
	}
	return upstream.TransportError(ctx, provider, err)
}
