package annotate

import (
	"image"
	"image/color"
	"image/draw"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitesafety/internal/models"
)

func whiteImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: white}, image.Point{}, draw.Src)
	return img
}

func sameColor(a, b color.Color) bool {
	r1, g1, b1, a1 := a.RGBA()
	r2, g2, b2, a2 := b.RGBA()
	return r1 == r2 && g1 == g2 && b1 == b2 && a1 == a2
}

func TestDrawLeavesOriginalUntouched(t *testing.T) {
	img := whiteImage(100, 100)
	dets := []models.Detection{
		{Label: "person", Confidence: 0.9, Box: []float32{0.2, 0.2, 0.8, 0.8}},
	}

	out := New(3, 12).Draw(img, dets)
	require.NotNil(t, out)
	assert.Equal(t, img.Bounds().Size(), out.Bounds().Size())

	for y := 0; y < 100; y++ {
		for x := 0; x < 100; x++ {
			require.True(t, sameColor(white, img.At(x, y)), "original changed at %d,%d", x, y)
		}
	}

	assert.False(t, sameColor(white, out.At(20, 50)), "left edge should be stroked")
	assert.True(t, sameColor(white, out.At(50, 50)), "box interior should stay clear")
}

func TestDrawWithoutDetections(t *testing.T) {
	img := whiteImage(40, 30)
	out := New(0, 0).Draw(img, nil)

	for y := 0; y < 30; y++ {
		for x := 0; x < 40; x++ {
			require.True(t, sameColor(white, out.At(x, y)))
		}
	}
}

func TestDrawSkipsMalformedBoxes(t *testing.T) {
	img := whiteImage(20, 20)
	out := New(2, 10).Draw(img, []models.Detection{
		{Label: "vest", Confidence: 0.5, Box: []float32{0.1, 0.1}},
		{Label: "vest", Confidence: 0.5, Box: []float32{0.5, 0.5, 0.5, 0.5}},
	})

	for y := 0; y < 20; y++ {
		for x := 0; x < 20; x++ {
			require.True(t, sameColor(white, out.At(x, y)))
		}
	}
}

func TestColorForIsStable(t *testing.T) {
	assert.Equal(t, ColorFor("helmet"), ColorFor("helmet"))
	assert.Contains(t, classPalette, ColorFor("no-vest"))
}

func TestNewDefaults(t *testing.T) {
	a := New(-1, 0)
	assert.Equal(t, 3.0, a.LineWidth)
	assert.Equal(t, 14.0, a.FontSize)
}
