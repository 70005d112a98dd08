package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/menta2k/medref/internal/upstream"
	"github.com/menta2k/medref/pkg/client"
	"github.com/menta2k/medref/pkg/types"
)

const provider = "vision model"

// Image reference modes
const (
	// ImageInline appends an <img> tag with a data URL to the prompt text
	ImageInline = "inline"
	// ImageParts sends the image as a separate image_url content part
	ImageParts = "parts"
)

// Config holds connection and generation settings
type Config struct {
	Endpoint   string
	APIKey     string
	Model      string
	ImageMode  string
	Timeout    time.Duration
	Generation client.GenerationConfig
}

type Client struct {
	config     Config
	httpClient *http.Client
}

// OpenAI-compatible message format
type Message struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"` // Can be string or []ContentPart
}

type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

type ImageURL struct {
	URL string `json:"url"`
}

// OpenAI-compatible chat completion request
type ChatCompletionRequest struct {
	Model       string    `json:"model,omitempty"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
	TopP        float64   `json:"top_p"`
	Seed        *int      `json:"seed,omitempty"`
	Stream      bool      `json:"stream"`
}

// OpenAI-compatible chat completion response
type ChatCompletionResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage,omitempty"`
}

type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	Delta        Message `json:"delta"`
	FinishReason string  `json:"finish_reason,omitempty"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func NewClient(config Config) (*Client, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("vision endpoint is required")
	}
	if config.ImageMode == "" {
		config.ImageMode = ImageInline
	}
	if config.ImageMode != ImageInline && config.ImageMode != ImageParts {
		return nil, fmt.Errorf("unknown image mode: %s", config.ImageMode)
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	return &Client{
		config:     config,
		httpClient: &http.Client{},
	}, nil
}

func (c *Client) Model() string {
	return c.config.Model
}

// Analyze sends the image and waits for the full completion
func (c *Client) Analyze(ctx context.Context, payload types.EncodedPayload, instructions string) (types.AnalysisReport, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	resp, err := c.send(ctx, c.buildRequest(payload, instructions, false))
	if err != nil {
		return types.AnalysisReport{}, err
	}
	defer resp.Body.Close()

	body, err := upstream.ReadBody(ctx, provider, resp)
	if err != nil {
		return types.AnalysisReport{}, err
	}

	var completion ChatCompletionResponse
	if err := json.Unmarshal(body, &completion); err != nil {
		return types.AnalysisReport{}, &types.ResponseParseError{Provider: provider, Err: err}
	}
	if len(completion.Choices) == 0 {
		return types.AnalysisReport{}, &types.ResponseParseError{Provider: provider, Err: errors.New("no choices in response")}
	}

	return types.AnalysisReport{
		Text:   messageText(completion.Choices[0].Message),
		Prompt: instructions,
		Model:  c.config.Model,
	}, nil
}

// AnalyzeStream sends the image and returns fragments as server-sent events arrive
func (c *Client) AnalyzeStream(ctx context.Context, payload types.EncodedPayload, instructions string) (*client.Stream, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)

	resp, err := c.send(ctx, c.buildRequest(payload, instructions, true))
	if err != nil {
		cancel()
		return nil, err
	}
	if err := upstream.CheckStatus(provider, resp); err != nil {
		resp.Body.Close()
		cancel()
		return nil, err
	}

	chunks := make(chan client.Chunk)
	go func() {
		defer close(chunks)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		done := false
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				done = true
				break
			}

			var event ChatCompletionResponse
			if err := json.Unmarshal([]byte(data), &event); err != nil {
				chunks <- client.Chunk{Err: &types.ResponseParseError{Provider: provider, Err: err}}
				return
			}
			if len(event.Choices) == 0 {
				continue
			}
			text := messageText(event.Choices[0].Delta)
			if text == "" {
				continue
			}
			chunks <- client.Chunk{Text: text}
		}
		if err := scanner.Err(); err != nil {
			chunks <- client.Chunk{Err: upstream.TransportError(ctx, provider, err)}
			return
		}
		// a stream cut off before its terminator is an incomplete report
		if !done {
			chunks <- client.Chunk{Err: &types.ResponseParseError{Provider: provider, Err: io.ErrUnexpectedEOF}}
		}
	}()

	return client.NewStream(chunks, cancel), nil
}

func (c *Client) buildRequest(payload types.EncodedPayload, instructions string, stream bool) ChatCompletionRequest {
	var content interface{}
	switch c.config.ImageMode {
	case ImageParts:
		content = []ContentPart{
			{Type: "text", Text: instructions},
			{Type: "image_url", ImageURL: &ImageURL{URL: payload.DataURL()}},
		}
	default:
		content = fmt.Sprintf(`%s <img src="%s" />`, instructions, payload.DataURL())
	}

	gen := c.config.Generation
	return ChatCompletionRequest{
		Model: c.config.Model,
		Messages: []Message{
			{
				Role:    "user",
				Content: content,
			},
		},
		MaxTokens:   gen.MaxTokens,
		Temperature: gen.Temperature,
		TopP:        gen.TopP,
		Seed:        gen.Seed,
		Stream:      stream,
	}
}

func (c *Client) send(ctx context.Context, payload ChatCompletionRequest) (*http.Response, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if payload.Stream {
		req.Header.Set("Accept", "text/event-stream")
	} else {
		req.Header.Set("Accept", "application/json")
	}
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, upstream.TransportError(ctx, provider, err)
	}
	return resp, nil
}

// messageText extracts text from the response (handle both string and array formats)
func messageText(msg Message) string {
	switch content := msg.Content.(type) {
	case string:
		return content
	case []interface{}:
		var sb strings.Builder
		for _, item := range content {
			if partMap, ok := item.(map[string]interface{}); ok {
				if text, ok := partMap["text"].(string); ok {
					sb.WriteString(text)
				}
			}
		}
		return sb.String()
	}
	return ""
}
