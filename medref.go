// Package medref analyses medical images with a remote vision model and
// refers the user to nearby doctors of the matching specialty.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"fmt"
//		"log"
//		"os"
//
//		"github.com/menta2k/medref"
//		"github.com/menta2k/medref/internal/config"
//		"github.com/menta2k/medref/pkg/types"
//	)
//
//	func main() {
//		cfg, err := config.Load("")
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		pipeline, err := medref.New(cfg, nil)
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		data, _ := os.ReadFile("scan.jpg")
//		bundle, err := pipeline.Run(context.Background(), &types.UploadedImage{Data: data}, "Delhi")
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		fmt.Println(bundle.Report.Text)
//		for _, d := range bundle.Doctors {
//			fmt.Printf("%s - %s\n", d.Name, d.Address)
//		}
//	}
//
// The package wires together four components:
//
// 1. Processing (pkg/processing): decodes the upload, flattens alpha and
// recompresses it into a base64 payload under the transport ceiling
// 2. Vision clients (pkg/openai, pkg/ollama): send the payload and prompt to a
// vision-language model, complete or streaming
// 3. Specialty (pkg/specialty): extracts a condition from the report and maps
// it to a practitioner category
// 4. Geo (pkg/geo): geocodes the address and searches for nearby doctors
//
// pkg/referral composes them into a single run with an explicit state machine.
package medref

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/menta2k/medref/internal/config"
	"github.com/menta2k/medref/pkg/client"
	"github.com/menta2k/medref/pkg/geo"
	"github.com/menta2k/medref/pkg/ollama"
	"github.com/menta2k/medref/pkg/openai"
	"github.com/menta2k/medref/pkg/processing"
	"github.com/menta2k/medref/pkg/referral"
	"github.com/menta2k/medref/pkg/specialty"
	"github.com/menta2k/medref/pkg/types"
)

// Version of the medref library
const Version = "1.0.0"

// Pipeline is the configured entry point for the presentation layer
type Pipeline struct {
	processor    *processing.Processor
	vision       client.VisionClient
	orchestrator *referral.Orchestrator
	stream       bool
}

// New builds every component from cfg. logger may be nil.
func New(cfg *config.Config, logger *zap.Logger, opts ...referral.Option) (*Pipeline, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	processor := NewProcessor(cfg.Codec)

	vision, err := NewVisionClient(cfg.Vision)
	if err != nil {
		return nil, err
	}

	extractor, err := NewExtractor(cfg.Referral)
	if err != nil {
		return nil, err
	}

	resolver := geo.NewMapsResolver(geo.Config{
		GeocodeURL: cfg.Maps.GeocodeURL,
		PlacesURL:  cfg.Maps.PlacesURL,
		APIKey:     cfg.Maps.APIKey,
		Timeout:    cfg.Maps.Timeout,
	})

	opts = append([]referral.Option{
		referral.WithLogger(logger),
		referral.WithConfig(referral.Config{
			Prompt:       cfg.Referral.Prompt,
			RadiusMeters: cfg.Referral.RadiusMeters,
		}),
	}, opts...)

	return &Pipeline{
		processor:    processor,
		vision:       vision,
		orchestrator: referral.New(processor, vision, extractor, resolver, opts...),
		stream:       cfg.Vision.Stream,
	}, nil
}

// NewProcessor builds the image codec
func NewProcessor(cfg config.CodecConfig) *processing.Processor {
	return processing.NewProcessorWithConfig(processing.Config{
		Quality:          cfg.Quality,
		MinQuality:       cfg.MinQuality,
		QualityStep:      cfg.QualityStep,
		MaxDimension:     cfg.MaxDimension,
		MaxEncodedLength: cfg.MaxEncodedLength,
		MaxPixels:        cfg.MaxPixels,
	})
}

// NewVisionClient builds the configured model backend
func NewVisionClient(cfg config.VisionConfig) (client.VisionClient, error) {
	gen := client.GenerationConfig{
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		TopP:        cfg.TopP,
		Seed:        cfg.Seed,
	}

	switch cfg.Backend {
	case "ollama":
		return ollama.NewClient(ollama.Config{
			URL:        cfg.Endpoint,
			Model:      cfg.Model,
			Timeout:    cfg.Timeout,
			Generation: gen,
		})
	case "openai", "":
		return openai.NewClient(openai.Config{
			Endpoint:   cfg.Endpoint,
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			ImageMode:  cfg.ImageMode,
			Timeout:    cfg.Timeout,
			Generation: gen,
		})
	default:
		return nil, fmt.Errorf("unknown vision backend: %s (use 'openai' or 'ollama')", cfg.Backend)
	}
}

// NewExtractor builds the disease-label extraction strategy
func NewExtractor(cfg config.ReferralConfig) (specialty.Extractor, error) {
	switch cfg.Extractor {
	case "fixed":
		return specialty.FixedExtractor{Label: cfg.FixedLabel}, nil
	case "keyword", "":
		return specialty.NewKeywordExtractor(), nil
	default:
		return nil, fmt.Errorf("unknown extractor: %s", cfg.Extractor)
	}
}

// Run analyses one image. With streaming enabled the report is assembled from
// the streamed fragments.
func (p *Pipeline) Run(ctx context.Context, image *types.UploadedImage, address string) (*types.ResultBundle, error) {
	if p.stream {
		return p.orchestrator.RunStream(ctx, image, address, nil)
	}
	return p.orchestrator.Run(ctx, image, address)
}

// RunStream analyses one image, forwarding report fragments as they arrive
func (p *Pipeline) RunStream(ctx context.Context, image *types.UploadedImage, address string, onFragment func(string)) (*types.ResultBundle, error) {
	return p.orchestrator.RunStream(ctx, image, address, onFragment)
}

// Processor exposes the codec, e.g. for loading inputs
func (p *Pipeline) Processor() *processing.Processor {
	return p.processor
}

// Model returns the name of the configured vision model
func (p *Pipeline) Model() string {
	return p.vision.Model()
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
