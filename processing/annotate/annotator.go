// Package annotate draws detection boxes and captions onto images.
package annotate

import (
	"fmt"
	"image"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font/gofont/goregular"

	"sitesafety/internal/models"
)

const labelPad = 3.0

var captionFont *truetype.Font

func init() {
	var err error
	captionFont, err = truetype.Parse(goregular.TTF)
	if err != nil {
		panic(err)
	}
}

type Annotator struct {
	LineWidth float64
	FontSize  float64
}

func New(lineWidth, fontSize float64) *Annotator {
	if lineWidth <= 0 {
		lineWidth = 3
	}
	if fontSize <= 0 {
		fontSize = 14
	}
	return &Annotator{LineWidth: lineWidth, FontSize: fontSize}
}

type caption struct {
	rect image.Rectangle
	clr  colorful.Color
	text string
}

// Draw returns a copy of img with a box and a "label score" caption for
// every detection. img itself is left untouched.
func (a *Annotator) Draw(img image.Image, dets []models.Detection) image.Image {
	dc := gg.NewContextForImage(img)
	frame := image.Rect(0, 0, dc.Width(), dc.Height())

	captions := make([]caption, 0, len(dets))

	dc.SetLineWidth(a.LineWidth)
	for _, d := range dets {
		r := d.Rect(frame)
		if r.Empty() {
			continue
		}

		clr := ColorFor(d.Label)
		dc.SetColor(clr)
		dc.DrawRectangle(float64(r.Min.X), float64(r.Min.Y), float64(r.Dx()), float64(r.Dy()))
		dc.Stroke()

		captions = append(captions, caption{
			rect: r,
			clr:  clr,
			text: fmt.Sprintf("%s %.2f", d.Label, d.Confidence),
		})
	}

	// captions go on top so neighbouring outlines never cover them
	dc.SetFontFace(truetype.NewFace(captionFont, &truetype.Options{Size: a.FontSize}))
	for _, c := range captions {
		tw, th := dc.MeasureString(c.text)

		x := float64(c.rect.Min.X)
		y := float64(c.rect.Min.Y) - th - 2*labelPad
		if y < 0 {
			y = float64(c.rect.Min.Y)
		}

		dc.SetColor(c.clr)
		dc.DrawRectangle(x, y, tw+2*labelPad, th+2*labelPad)
		dc.Fill()

		dc.SetColor(textColorOn(c.clr))
		dc.DrawStringAnchored(c.text, x+labelPad, y+labelPad, 0, 1)
	}

	return dc.Image()
}
