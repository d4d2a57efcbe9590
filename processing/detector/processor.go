package detector

import (
	"context"
	"image"
	"time"

	"github.com/edaniels/golog"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"sitesafety/internal/config"
	"sitesafety/internal/models"
	"sitesafety/internal/safety"
	"sitesafety/processing/annotate"
	"sitesafety/processing/upload"
)

var ErrBusy = errors.New("a detection is already running")

type Request struct {
	Model      string
	Image      []byte
	Confidence float64
}

type Result struct {
	ID         string
	Model      string
	Confidence float64

	Original   image.Image
	Annotated  image.Image
	Detections []models.Detection
	Counts     safety.ClassCounts

	// Assessment is set only for the safety model when something was detected.
	Assessment *safety.Assessment

	Latency time.Duration
}

// Processor runs one upload through detection, annotation, counting and,
// for the safety model, compliance analysis. Runs never overlap.
type Processor struct {
	cfg       *config.Config
	registry  *Registry
	annotator *annotate.Annotator
	logger    golog.Logger

	busy *atomic.Bool
}

func NewProcessor(cfg *config.Config, registry *Registry, annotator *annotate.Annotator, logger golog.Logger) *Processor {
	return &Processor{
		cfg:       cfg,
		registry:  registry,
		annotator: annotator,
		logger:    logger,
		busy:      atomic.NewBool(false),
	}
}

func (p *Processor) Run(ctx context.Context, req Request) (*Result, error) {
	if len(req.Image) == 0 {
		return nil, errors.New("no image data provided")
	}

	img, err := upload.Decode(req.Image)
	if err != nil {
		return nil, err
	}

	return p.RunImage(ctx, req.Model, img, req.Confidence)
}

func (p *Processor) RunImage(ctx context.Context, model string, img image.Image, conf float64) (*Result, error) {
	if !p.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer p.busy.Store(false)

	start := time.Now()
	res := &Result{
		ID:         uuid.NewString(),
		Model:      model,
		Confidence: config.ClampConfidence(conf),
		Original:   img,
	}

	det, err := p.registry.Get(ctx, model)
	if err != nil {
		return nil, err
	}

	res.Detections, err = det.Detect(ctx, img, res.Confidence)
	if err != nil {
		return nil, errors.Wrap(err, "detect")
	}

	res.Annotated = p.annotator.Draw(img, res.Detections)
	res.Counts = safety.CountDetections(res.Detections)

	if len(res.Counts) > 0 && p.cfg.IsSafetyModel(model) {
		a := safety.Analyze(res.Counts)
		res.Assessment = &a
	}

	res.Latency = time.Since(start)

	p.logger.Infow("detection finished",
		"id", res.ID,
		"model", model,
		"confidence", res.Confidence,
		"objects", len(res.Detections),
		"latency", res.Latency,
	)
	if res.Assessment != nil {
		p.logger.Infow("safety assessment",
			"id", res.ID,
			"compliance", res.Assessment.Compliance,
			"risk", res.Assessment.Risk,
		)
	}

	return res, nil
}

// Busy reports whether a run is in progress.
func (p *Processor) Busy() bool {
	return p.busy.Load()
}
