package models

import "image"

// Detection is a single object reported by the inference server.
// Box holds normalised [y1, x1, y2, x2] coordinates in the range [0, 1].
type Detection struct {
	Label      string    `json:"label"`
	Confidence float32   `json:"confidence"`
	Box        []float32 `json:"box"`
}

// Rect converts the normalised box into pixel coordinates inside bounds.
// A malformed box yields an empty rectangle.
func (d Detection) Rect(bounds image.Rectangle) image.Rectangle {
	if len(d.Box) != 4 {
		return image.Rectangle{}
	}

	imgWidth := float32(bounds.Dx())
	imgHeight := float32(bounds.Dy())

	y1 := int(d.Box[0] * imgHeight)
	x1 := int(d.Box[1] * imgWidth)
	y2 := int(d.Box[2] * imgHeight)
	x2 := int(d.Box[3] * imgWidth)

	return image.Rect(x1, y1, x2, y2).Add(bounds.Min).Intersect(bounds)
}

// Area returns the normalised area of the box.
func (d Detection) Area() float32 {
	if len(d.Box) != 4 {
		return 0
	}
	h := d.Box[2] - d.Box[0]
	w := d.Box[3] - d.Box[1]
	if h <= 0 || w <= 0 {
		return 0
	}
	return h * w
}

// Labels returns the class label of every detection, in order.
func Labels(dets []Detection) []string {
	labels := make([]string, len(dets))
	for i, d := range dets {
		labels[i] = d.Label
	}
	return labels
}
