package detector

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"testing"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitesafety/internal/config"
	"sitesafety/internal/models"
	"sitesafety/internal/safety"
	"sitesafety/processing/annotate"
)

func newTestProcessor(t *testing.T, fake *fakeDetector) *Processor {
	t.Helper()
	cfg := config.NewDefaultConfig()
	load, _ := countingLoader(fake)
	reg := NewRegistry(cfg.ModelPaths(), load, golog.NewTestLogger(t))
	return NewProcessor(cfg, reg, annotate.New(2, 10), golog.NewTestLogger(t))
}

func pngImage(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func siteDetections() []models.Detection {
	var dets []models.Detection
	for i := 0; i < 10; i++ {
		dets = append(dets, box("person", 0.9, 0.1, 0.1, 0.2, 0.2))
	}
	dets = append(dets,
		box("no-helmet", 0.8, 0.3, 0.3, 0.4, 0.4),
		box("no-helmet", 0.8, 0.3, 0.3, 0.4, 0.4),
		box("no-vest", 0.7, 0.5, 0.5, 0.6, 0.6),
	)
	return dets
}

func TestProcessorSafetyModel(t *testing.T) {
	fake := &fakeDetector{dets: siteDetections()}
	p := newTestProcessor(t, fake)

	res, err := p.Run(context.Background(), Request{
		Model:      config.ModelConstruction,
		Image:      pngImage(t, 64, 48),
		Confidence: 0.5,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, res.ID)
	assert.Equal(t, 0.5, fake.lastConf)
	assert.Equal(t, safety.ClassCounts{"person": 10, "no-helmet": 2, "no-vest": 1}, res.Counts)
	assert.Equal(t, image.Pt(64, 48), res.Annotated.Bounds().Size())

	require.NotNil(t, res.Assessment)
	assert.Equal(t, 70.0, res.Assessment.Compliance)
	assert.Equal(t, safety.RiskMedium, res.Assessment.Risk)
	assert.False(t, p.Busy())
}

func TestProcessorOtherModelHasNoAssessment(t *testing.T) {
	fake := &fakeDetector{dets: []models.Detection{box("apple", 0.9, 0, 0, 0.5, 0.5)}}
	p := newTestProcessor(t, fake)

	res, err := p.Run(context.Background(), Request{
		Model:      config.ModelFruit,
		Image:      pngImage(t, 10, 10),
		Confidence: 0.5,
	})
	require.NoError(t, err)
	assert.Equal(t, safety.ClassCounts{"apple": 1}, res.Counts)
	assert.Nil(t, res.Assessment)
}

func TestProcessorEmptyResult(t *testing.T) {
	p := newTestProcessor(t, &fakeDetector{})

	res, err := p.Run(context.Background(), Request{
		Model:      config.ModelConstruction,
		Image:      pngImage(t, 10, 10),
		Confidence: 0.5,
	})
	require.NoError(t, err)
	assert.Empty(t, res.Counts)
	assert.Nil(t, res.Assessment)
}

func TestProcessorClampsConfidence(t *testing.T) {
	fake := &fakeDetector{}
	p := newTestProcessor(t, fake)

	_, err := p.Run(context.Background(), Request{
		Model:      config.ModelVehicle,
		Image:      pngImage(t, 4, 4),
		Confidence: 0,
	})
	require.NoError(t, err)
	assert.Equal(t, config.MinConfidence, fake.lastConf)
}

func TestProcessorErrors(t *testing.T) {
	p := newTestProcessor(t, &fakeDetector{err: errors.New("server down")})
	ctx := context.Background()

	_, err := p.Run(ctx, Request{Model: config.ModelConstruction})
	assert.Error(t, err)

	_, err = p.Run(ctx, Request{Model: config.ModelConstruction, Image: []byte("junk")})
	assert.Error(t, err)

	_, err = p.Run(ctx, Request{Model: "Boats", Image: pngImage(t, 4, 4)})
	assert.Equal(t, ErrUnknownModel, errors.Cause(err))

	_, err = p.Run(ctx, Request{Model: config.ModelConstruction, Image: pngImage(t, 4, 4)})
	assert.ErrorContains(t, err, "server down")
	assert.False(t, p.Busy())
}

func TestProcessorRejectsOverlappingRuns(t *testing.T) {
	p := newTestProcessor(t, &fakeDetector{})
	p.busy.Store(true)

	_, err := p.RunImage(context.Background(), config.ModelConstruction, image.NewRGBA(image.Rect(0, 0, 2, 2)), 0.5)
	assert.Equal(t, ErrBusy, err)
}
