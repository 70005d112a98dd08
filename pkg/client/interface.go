package client

import (
	"context"

	"github.com/menta2k/medref/pkg/types"
)

// VisionClient sends an encoded image and an instruction prompt to a remote
// vision-language model
type VisionClient interface {
	// Analyze waits for the complete response
	Analyze(ctx context.Context, payload types.EncodedPayload, instructions string) (types.AnalysisReport, error)

	// AnalyzeStream returns the response as it is generated. The caller must
	// drain or Close the stream.
	AnalyzeStream(ctx context.Context, payload types.EncodedPayload, instructions string) (*Stream, error)

	// Model returns the name of the backing model
	Model() string
}

// GenerationConfig bounds a single model invocation
type GenerationConfig struct {
	MaxTokens   int
	Temperature float64
	TopP        float64
	Seed        *int
}

// DefaultGenerationConfig mirrors the settings used by hosted vision endpoints
func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		MaxTokens:   1024,
		Temperature: 0.2,
		TopP:        0.7,
	}
}
