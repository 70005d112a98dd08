package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// Config holds the application configuration. It is read once at startup
// and treated as read-only afterwards.
type Config struct {
	Codec    CodecConfig    `json:"codec" yaml:"codec"`
	Vision   VisionConfig   `json:"vision" yaml:"vision"`
	Maps     MapsConfig     `json:"maps" yaml:"maps"`
	Referral ReferralConfig `json:"referral" yaml:"referral"`
	Server   ServerConfig   `json:"server" yaml:"server"`
	LogLevel string         `json:"log_level" yaml:"log_level" validate:"oneof=debug info warn error"`
}

// CodecConfig holds image recompression settings
type CodecConfig struct {
	Quality          int `json:"quality" yaml:"quality" env:"MEDREF_CODEC_QUALITY" validate:"min=1,max=100"`
	MinQuality       int `json:"min_quality" yaml:"min_quality" env:"MEDREF_CODEC_MIN_QUALITY" validate:"min=1,max=100,ltefield=Quality"`
	QualityStep      int `json:"quality_step" yaml:"quality_step" env:"MEDREF_CODEC_QUALITY_STEP" validate:"min=1"`
	MaxDimension     int `json:"max_dimension" yaml:"max_dimension" env:"MEDREF_CODEC_MAX_DIMENSION" validate:"min=0"`
	MaxEncodedLength int `json:"max_encoded_length" yaml:"max_encoded_length" env:"MEDREF_CODEC_MAX_ENCODED_LENGTH" validate:"min=1"`
	MaxPixels        int `json:"max_pixels" yaml:"max_pixels" env:"MEDREF_CODEC_MAX_PIXELS" validate:"min=1"`
}

// VisionConfig holds the model backend settings. APIKey is only ever read
// from the environment.
type VisionConfig struct {
	Backend     string        `json:"backend" yaml:"backend" env:"MEDREF_VISION_BACKEND" validate:"oneof=openai ollama"`
	Endpoint    string        `json:"endpoint" yaml:"endpoint" env:"MEDREF_VISION_ENDPOINT" validate:"required,url"`
	Model       string        `json:"model" yaml:"model" env:"MEDREF_VISION_MODEL"`
	ImageMode   string        `json:"image_mode" yaml:"image_mode" env:"MEDREF_VISION_IMAGE_MODE" validate:"oneof=inline parts"`
	APIKey      string        `json:"-" yaml:"-" env:"MEDREF_VISION_API_KEY"`
	MaxTokens   int           `json:"max_tokens" yaml:"max_tokens" env:"MEDREF_VISION_MAX_TOKENS" validate:"min=1"`
	Temperature float64       `json:"temperature" yaml:"temperature" env:"MEDREF_VISION_TEMPERATURE" validate:"min=0,max=2"`
	TopP        float64       `json:"top_p" yaml:"top_p" env:"MEDREF_VISION_TOP_P" validate:"gt=0,max=1"`
	Seed        *int          `json:"seed,omitempty" yaml:"seed,omitempty" env:"MEDREF_VISION_SEED"`
	Stream      bool          `json:"stream" yaml:"stream" env:"MEDREF_VISION_STREAM"`
	Timeout     time.Duration `json:"timeout" yaml:"timeout" env:"MEDREF_VISION_TIMEOUT" validate:"gt=0"`
}

// MapsConfig holds geocoding and places settings
type MapsConfig struct {
	GeocodeURL string        `json:"geocode_url" yaml:"geocode_url" env:"MEDREF_MAPS_GEOCODE_URL" validate:"required,url"`
	PlacesURL  string        `json:"places_url" yaml:"places_url" env:"MEDREF_MAPS_PLACES_URL" validate:"required,url"`
	APIKey     string        `json:"-" yaml:"-" env:"MEDREF_MAPS_API_KEY"`
	Timeout    time.Duration `json:"timeout" yaml:"timeout" env:"MEDREF_MAPS_TIMEOUT" validate:"gt=0"`
}

// ReferralConfig holds orchestration settings
type ReferralConfig struct {
	Prompt       string `json:"prompt" yaml:"prompt" env:"MEDREF_PROMPT"`
	Extractor    string `json:"extractor" yaml:"extractor" env:"MEDREF_EXTRACTOR" validate:"oneof=keyword fixed"`
	FixedLabel   string `json:"fixed_label" yaml:"fixed_label" env:"MEDREF_FIXED_LABEL"`
	RadiusMeters int    `json:"radius_meters" yaml:"radius_meters" env:"MEDREF_RADIUS_METERS" validate:"min=1,max=50000"`
}

// ServerConfig holds the JSON API settings
type ServerConfig struct {
	Port          string        `json:"port" yaml:"port" env:"PORT" validate:"required,numeric"`
	ReadTimeout   time.Duration `json:"read_timeout" yaml:"read_timeout" env:"READ_TIMEOUT" validate:"gt=0"`
	WriteTimeout  time.Duration `json:"write_timeout" yaml:"write_timeout" env:"WRITE_TIMEOUT" validate:"gt=0"`
	MaxUploadSize int64         `json:"max_upload_size" yaml:"max_upload_size" env:"MAX_UPLOAD_SIZE" validate:"min=1"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Codec: CodecConfig{
			Quality:          70,
			MinQuality:       10,
			QualityStep:      10,
			MaxDimension:     0,
			MaxEncodedLength: 180000,
			MaxPixels:        25000000,
		},
		Vision: VisionConfig{
			Backend:     "openai",
			Endpoint:    "https://ai.api.nvidia.com/v1/vlm/microsoft/phi-3-vision-128k-instruct",
			ImageMode:   "inline",
			MaxTokens:   1024,
			Temperature: 0.2,
			TopP:        0.7,
			Timeout:     30 * time.Second,
		},
		Maps: MapsConfig{
			GeocodeURL: "https://maps.googleapis.com/maps/api/geocode/json",
			PlacesURL:  "https://maps.googleapis.com/maps/api/place/nearbysearch/json",
			Timeout:    10 * time.Second,
		},
		Referral: ReferralConfig{
			Extractor:    "keyword",
			FixedLabel:   "acne",
			RadiusMeters: 5000,
		},
		Server: ServerConfig{
			Port:          "8080",
			ReadTimeout:   15 * time.Second,
			WriteTimeout:  60 * time.Second,
			MaxUploadSize: 10 * 1024 * 1024,
		},
		LogLevel: "info",
	}
}

// Load builds the configuration from defaults, an optional JSON file, an
// optional .env file and the process environment, in that order
func Load(filename string) (*Config, error) {
	cfg := Default()
	if filename != "" {
		fileCfg, err := LoadFromFile(filename)
		if err != nil {
			return nil, err
		}
		cfg = fileCfg
	}

	// a missing .env file is not an error
	_ = godotenv.Load()

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a JSON or YAML file on top of the
// defaults. The format is picked by extension.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if isYAML(filename) {
		err = yaml.Unmarshal(data, config)
	} else {
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// ApplyEnv overrides fields with any matching environment variables
func (c *Config) ApplyEnv() error {
	targets := []any{&c.Codec, &c.Vision, &c.Maps, &c.Referral, &c.Server}
	for _, target := range targets {
		if _, err := env.UnmarshalFromEnviron(target); err != nil {
			return fmt.Errorf("failed to read environment: %w", err)
		}
	}
	if level, ok := os.LookupEnv("MEDREF_LOG_LEVEL"); ok && level != "" {
		c.LogLevel = level
	}
	return nil
}

// SaveToFile saves configuration as JSON or YAML. Secrets are never written.
func (c *Config) SaveToFile(filename string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if isYAML(filename) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Vision.Backend == "ollama" && c.Vision.Model == "" {
		return fmt.Errorf("vision.model is required for the ollama backend")
	}
	if c.Referral.Extractor == "fixed" && c.Referral.FixedLabel == "" {
		return fmt.Errorf("referral.fixed_label is required for the fixed extractor")
	}
	return nil
}

func isYAML(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return ext == ".yaml" || ext == ".yml"
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "medref", "config.json")
}
