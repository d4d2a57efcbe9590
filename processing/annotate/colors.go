package annotate

import (
	"hash/fnv"
	"image/color"

	"github.com/lucasb-eyer/go-colorful"
)

// classPalette holds distinct colours for box outlines and label tabs.
var classPalette = mustPalette(
	"#FF3838", "#FF701F", "#FFB21D", "#CFD231", "#48F90A",
	"#1A9334", "#00D4BB", "#00C2FF", "#344593", "#6473FF",
	"#0018EC", "#8438FF", "#520085", "#FF95C8", "#FF37C7",
	"#FF9D97", "#2C99A8", "#3DDB86", "#CB38FF", "#92CC17",
)

var (
	black = color.RGBA{R: 0, G: 0, B: 0, A: 255}
	white = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

func mustPalette(hexes ...string) []colorful.Color {
	out := make([]colorful.Color, len(hexes))
	for i, h := range hexes {
		c, err := colorful.Hex(h)
		if err != nil {
			panic(err)
		}
		out[i] = c
	}
	return out
}

// ColorFor returns the palette colour of a class label. The same label
// always maps to the same colour.
func ColorFor(label string) colorful.Color {
	h := fnv.New32a()
	h.Write([]byte(label))
	return classPalette[h.Sum32()%uint32(len(classPalette))]
}

// textColorOn picks black or white text for legibility on bg.
func textColorOn(bg colorful.Color) color.Color {
	l, _, _ := bg.Lab()
	if l > 0.6 {
		return black
	}
	return white
}
