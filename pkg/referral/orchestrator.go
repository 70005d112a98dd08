package referral

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/menta2k/medref/pkg/client"
	"github.com/menta2k/medref/pkg/geo"
	"github.com/menta2k/medref/pkg/specialty"
	"github.com/menta2k/medref/pkg/types"
)

// DefaultPrompt asks the model for a structured but free-text report
const DefaultPrompt = `Generate an AI report of the condition visible in this medical image.
Include findings, precautions and recommendations, and suggest the kind of doctor to be consulted.
Name the most likely condition in plain words.`

// Encoder turns upload bytes into a transport payload
type Encoder interface {
	Encode(data []byte) (types.EncodedPayload, error)
}

// SpecialtyMapper maps a disease label onto a specialty
type SpecialtyMapper interface {
	Infer(diseaseLabel string) types.SpecialtyLabel
}

// Config holds per-run settings
type Config struct {
	Prompt       string
	RadiusMeters int
}

// Orchestrator runs the image → report → specialty → doctors pipeline. It
// holds no per-request state and is safe for concurrent use.
type Orchestrator struct {
	encoder   Encoder
	vision    client.VisionClient
	extractor specialty.Extractor
	mapper    SpecialtyMapper
	resolver  geo.Resolver
	config    Config
	logger    *zap.Logger
	observer  Observer
	now       func() time.Time
}

// Option customizes an Orchestrator
type Option func(*Orchestrator)

// WithLogger sets the structured logger
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithObserver registers a transition observer
func WithObserver(observer Observer) Option {
	return func(o *Orchestrator) { o.observer = observer }
}

// WithMapper replaces the static specialty table
func WithMapper(mapper SpecialtyMapper) Option {
	return func(o *Orchestrator) {
		if mapper != nil {
			o.mapper = mapper
		}
	}
}

// WithConfig sets prompt and search radius
func WithConfig(config Config) Option {
	return func(o *Orchestrator) { o.config = config }
}

// New creates an orchestrator. resolver may be nil, in which case runs never
// search for doctors.
func New(encoder Encoder, vision client.VisionClient, extractor specialty.Extractor, resolver geo.Resolver, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		encoder:   encoder,
		vision:    vision,
		extractor: extractor,
		mapper:    specialty.NewMapper(),
		resolver:  resolver,
		logger:    zap.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.config.Prompt == "" {
		o.config.Prompt = DefaultPrompt
	}
	if o.config.RadiusMeters <= 0 {
		o.config.RadiusMeters = geo.DefaultRadius
	}
	return o
}

// Run processes one image with the complete-response model call
func (o *Orchestrator) Run(ctx context.Context, image *types.UploadedImage, address string) (*types.ResultBundle, error) {
	return o.execute(ctx, image, address, func(ctx context.Context, payload types.EncodedPayload) (types.AnalysisReport, error) {
		return o.vision.Analyze(ctx, payload, o.config.Prompt)
	})
}

// RunStream processes one image with the streaming model call, handing each
// fragment to onFragment as it arrives
func (o *Orchestrator) RunStream(ctx context.Context, image *types.UploadedImage, address string, onFragment func(string)) (*types.ResultBundle, error) {
	return o.execute(ctx, image, address, func(ctx context.Context, payload types.EncodedPayload) (types.AnalysisReport, error) {
		stream, err := o.vision.AnalyzeStream(ctx, payload, o.config.Prompt)
		if err != nil {
			return types.AnalysisReport{}, err
		}
		text, err := stream.Collect(onFragment)
		if err != nil {
			return types.AnalysisReport{}, err
		}
		return types.AnalysisReport{
			Text:   text,
			Prompt: o.config.Prompt,
			Model:  o.vision.Model(),
		}, nil
	})
}

type analyzeFunc func(ctx context.Context, payload types.EncodedPayload) (types.AnalysisReport, error)

func (o *Orchestrator) execute(ctx context.Context, image *types.UploadedImage, address string, analyze analyzeFunc) (*types.ResultBundle, error) {
	r := &run{id: uuid.NewString(), state: Idle, observer: o.observer}
	log := o.logger.With(zap.String("run_id", r.id))
	started := o.now()

	if image == nil || len(image.Data) == 0 {
		return nil, r.fail(types.ErrNoImage)
	}

	r.enter(ImageEncoding)
	payload, err := o.encoder.Encode(image.Data)
	if err != nil {
		log.Warn("image encoding failed", zap.Error(err))
		return nil, r.fail(err)
	}
	log.Debug("image encoded",
		zap.Int("length", payload.Length),
		zap.Int("quality", payload.Quality),
		zap.Int("width", payload.Width),
		zap.Int("height", payload.Height),
	)

	r.enter(ModelInvoking)
	report, err := analyze(ctx, payload)
	if err != nil {
		log.Warn("model invocation failed", zap.Error(err))
		return nil, r.fail(err)
	}

	r.enter(SpecialtyInferring)
	disease := o.extractor.Extract(report)
	label := o.mapper.Infer(disease)
	log.Debug("specialty inferred", zap.String("disease", disease), zap.String("specialty", label.String()))

	bundle := &types.ResultBundle{
		ID:        r.id,
		Report:    report,
		Disease:   disease,
		Specialty: label,
		Doctors:   []types.DoctorListing{},
	}

	if address = strings.TrimSpace(address); address != "" && o.resolver != nil {
		o.locate(ctx, r, log, bundle, address)
	}

	bundle.CreatedAt = o.now()
	r.enter(Complete)
	log.Info("analysis complete",
		zap.String("specialty", label.String()),
		zap.Int("doctors", len(bundle.Doctors)),
		zap.Duration("elapsed", bundle.CreatedAt.Sub(started)),
	)
	return bundle, nil
}

// locate fills in location and doctors. Failures leave the doctor list empty
// and are recorded on the bundle instead of failing the run.
func (o *Orchestrator) locate(ctx context.Context, r *run, log *zap.Logger, bundle *types.ResultBundle, address string) {
	r.enter(Geocoding)
	point, err := o.resolver.Resolve(ctx, address)
	if err != nil {
		log.Warn("geocoding failed", zap.Error(err))
		bundle.LocationError = err.Error()
		return
	}

	r.enter(NearbySearching)
	doctors, err := o.resolver.Nearby(ctx, point, bundle.Specialty.String(), o.config.RadiusMeters)
	if err != nil {
		log.Warn("nearby search failed", zap.Error(err))
		bundle.LocationError = err.Error()
		return
	}

	bundle.Location = &point
	if doctors != nil {
		bundle.Doctors = doctors
	}
}
