package processing

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/webp"

	"github.com/menta2k/medref/pkg/types"
)

// DefaultMaxEncodedLength is the largest base64 payload most hosted vision
// endpoints accept inline
const DefaultMaxEncodedLength = 180000

// DefaultMaxPixels caps width*height of an accepted image
const DefaultMaxPixels = 25000000

// Config holds the recompression settings for the codec
type Config struct {
	Quality          int
	MinQuality       int
	QualityStep      int
	MaxDimension     int
	MaxEncodedLength int
	MaxPixels        int
	SupportedTypes   []string
}

// DefaultConfig returns the settings used when none are supplied
func DefaultConfig() Config {
	return Config{
		Quality:          70,
		MinQuality:       10,
		QualityStep:      10,
		MaxDimension:     0,
		MaxEncodedLength: DefaultMaxEncodedLength,
		MaxPixels:        DefaultMaxPixels,
		SupportedTypes:   []string{"image/jpeg", "image/png", "image/gif", "image/webp"},
	}
}

// Processor turns uploaded image bytes into a transport-safe payload
type Processor struct {
	config Config
}

// NewProcessor creates a processor with default settings
func NewProcessor() *Processor {
	return &Processor{config: DefaultConfig()}
}

// NewProcessorWithConfig creates a processor with custom settings
func NewProcessorWithConfig(config Config) *Processor {
	defaults := DefaultConfig()
	if config.Quality <= 0 || config.Quality > 100 {
		config.Quality = defaults.Quality
	}
	if config.MinQuality <= 0 || config.MinQuality > config.Quality {
		config.MinQuality = min(defaults.MinQuality, config.Quality)
	}
	if config.QualityStep <= 0 {
		config.QualityStep = defaults.QualityStep
	}
	if config.MaxEncodedLength <= 0 {
		config.MaxEncodedLength = defaults.MaxEncodedLength
	}
	if config.MaxPixels <= 0 {
		config.MaxPixels = defaults.MaxPixels
	}
	if len(config.SupportedTypes) == 0 {
		config.SupportedTypes = defaults.SupportedTypes
	}
	return &Processor{config: config}
}

// Config returns the effective settings
func (p *Processor) Config() Config {
	return p.config
}

// Encode decodes raw upload bytes and produces an encoded payload
func (p *Processor) Encode(data []byte) (types.EncodedPayload, error) {
	img, _, err := p.DecodeBytes(data)
	if err != nil {
		return types.EncodedPayload{}, err
	}
	return p.EncodeImage(img)
}

// EncodeImage flattens, recompresses and base64-encodes an image. Quality is
// lowered step by step until the payload fits; it is never truncated.
func (p *Processor) EncodeImage(img image.Image) (types.EncodedPayload, error) {
	b := img.Bounds()
	if err := p.checkPixels("", b.Dx(), b.Dy()); err != nil {
		return types.EncodedPayload{}, err
	}

	flat := flatten(p.downscale(img))
	bounds := flat.Bounds()

	var (
		buf    bytes.Buffer
		length int
	)
	for quality := p.config.Quality; ; quality -= p.config.QualityStep {
		if quality < p.config.MinQuality {
			quality = p.config.MinQuality
		}

		buf.Reset()
		if err := imaging.Encode(&buf, flat, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
			return types.EncodedPayload{}, fmt.Errorf("failed to encode jpeg: %w", err)
		}

		length = base64.StdEncoding.EncodedLen(buf.Len())
		if length <= p.config.MaxEncodedLength {
			encoded := base64.StdEncoding.EncodeToString(buf.Bytes())
			return types.EncodedPayload{
				Data:     encoded,
				MIMEType: "image/jpeg",
				Length:   len(encoded),
				Quality:  quality,
				Width:    bounds.Dx(),
				Height:   bounds.Dy(),
			}, nil
		}

		if quality == p.config.MinQuality {
			break
		}
	}

	return types.EncodedPayload{}, &types.PayloadTooLargeError{
		Length: length,
		Limit:  p.config.MaxEncodedLength,
	}
}

// Decode turns a payload back into an image
func (p *Processor) Decode(payload types.EncodedPayload) (image.Image, error) {
	raw, err := base64.StdEncoding.DecodeString(payload.Data)
	if err != nil {
		return nil, &types.DecodeError{MIMEType: payload.MIMEType, Err: err}
	}
	img, _, err := p.DecodeBytes(raw)
	return img, err
}

// DecodeBytes sniffs and decodes image data with WebP support
func (p *Processor) DecodeBytes(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", &types.DecodeError{Err: types.ErrNoImage}
	}

	mime := mimetype.Detect(data)
	if !p.isTypeSupported(mime) {
		return nil, mime.String(), &types.DecodeError{
			MIMEType: mime.String(),
			Err:      fmt.Errorf("unsupported image type"),
		}
	}

	// dimensions come from the header so oversized bitmaps are never allocated
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		if err := p.checkPixels(mime.String(), cfg.Width, cfg.Height); err != nil {
			return nil, mime.String(), err
		}
	} else if cfg, err := webp.DecodeConfig(bytes.NewReader(data)); err == nil {
		if err := p.checkPixels(mime.String(), cfg.Width, cfg.Height); err != nil {
			return nil, mime.String(), err
		}
	}

	if img, _, err := image.Decode(bytes.NewReader(data)); err == nil {
		return img, mime.String(), nil
	} else if !mime.Is("image/webp") {
		return nil, mime.String(), &types.DecodeError{MIMEType: mime.String(), Err: err}
	}

	// Fallback: explicit WebP decode
	img, err := webp.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, mime.String(), &types.DecodeError{MIMEType: mime.String(), Err: err}
	}
	return img, mime.String(), nil
}

// LoadImageFromURL downloads raw image bytes from a URL
func (p *Processor) LoadImageFromURL(imageURL string) ([]byte, error) {
	// Validate URL
	parsedURL, err := url.Parse(imageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme: %s (only http and https are supported)", parsedURL.Scheme)
	}

	client := &http.Client{
		Timeout: 30 * time.Second,
	}

	req, err := http.NewRequest(http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "medref/1.0")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: HTTP %d %s", resp.StatusCode, resp.Status)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return nil, fmt.Errorf("URL does not point to an image (Content-Type: %s)", contentType)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}
	return data, nil
}

// LoadSource reads an upload from either a file path or URL
func (p *Processor) LoadSource(source string) (types.UploadedImage, error) {
	var (
		data []byte
		err  error
	)
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		data, err = p.LoadImageFromURL(source)
	} else {
		data, err = os.ReadFile(source)
	}
	if err != nil {
		return types.UploadedImage{}, err
	}

	return types.UploadedImage{
		Data:     data,
		MIMEType: mimetype.Detect(data).String(),
		Filename: source,
	}, nil
}

func (p *Processor) checkPixels(mimeType string, width, height int) error {
	if int64(width)*int64(height) > int64(p.config.MaxPixels) {
		return &types.DecodeError{
			MIMEType: mimeType,
			Err:      fmt.Errorf("%w: %dx%d, limit is %d", types.ErrTooManyPixels, width, height, p.config.MaxPixels),
		}
	}
	return nil
}

func (p *Processor) isTypeSupported(mime *mimetype.MIME) bool {
	for _, supported := range p.config.SupportedTypes {
		if mime.Is(supported) {
			return true
		}
	}
	return false
}

func (p *Processor) downscale(img image.Image) image.Image {
	maxDim := p.config.MaxDimension
	if maxDim <= 0 {
		return img
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxDim && h <= maxDim {
		return img
	}
	if w >= h {
		return imaging.Resize(img, maxDim, 0, imaging.Lanczos)
	}
	return imaging.Resize(img, 0, maxDim, imaging.Lanczos)
}

// flatten composites the image onto an opaque white canvas
func flatten(img image.Image) *image.NRGBA {
	b := img.Bounds()
	canvas := imaging.New(b.Dx(), b.Dy(), color.White)
	return imaging.Overlay(canvas, img, image.Pt(0, 0), 1.0)
}
