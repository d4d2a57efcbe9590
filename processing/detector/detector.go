package detector

import (
	"context"
	"image"

	"sitesafety/internal/models"
)

// Detector runs one model over a still image and returns the objects whose
// confidence is at least conf, with overlapping duplicates suppressed.
type Detector interface {
	Detect(ctx context.Context, img image.Image, conf float64) ([]models.Detection, error)
	Close() error
}

// Postprocessor filters or modifies a detection set.
type Postprocessor func([]models.Detection) []models.Detection

// NewScoreFilter drops detections below a confidence.
func NewScoreFilter(conf float64) Postprocessor {
	return func(in []models.Detection) []models.Detection {
		out := make([]models.Detection, 0, len(in))
		for _, d := range in {
			if float64(d.Confidence) >= conf {
				out = append(out, d)
			}
		}
		return out
	}
}

// NewNMSFilter returns a class-aware non-maximum suppression step.
func NewNMSFilter(iouThreshold float64) Postprocessor {
	return func(in []models.Detection) []models.Detection {
		return NonMaxSuppression(in, iouThreshold)
	}
}

type postprocessed struct {
	Detector
	chain []Postprocessor
}

// WithPostprocessors wraps det so every result is score filtered at the
// requested confidence and then passed through chain in order.
func WithPostprocessors(det Detector, chain ...Postprocessor) Detector {
	return &postprocessed{Detector: det, chain: chain}
}

func (p *postprocessed) Detect(ctx context.Context, img image.Image, conf float64) ([]models.Detection, error) {
	dets, err := p.Detector.Detect(ctx, img, conf)
	if err != nil {
		return nil, err
	}

	dets = NewScoreFilter(conf)(dets)
	for _, step := range p.chain {
		dets = step(dets)
	}
	return dets, nil
}
