package detector

import (
	"math"
	"sort"

	"sitesafety/internal/models"
)

// NonMaxSuppression keeps, per class label, the highest scoring box out of
// every group whose pairwise IoU exceeds threshold. Boxes of different
// labels never suppress each other. The result is ordered by descending
// confidence.
func NonMaxSuppression(dets []models.Detection, threshold float64) []models.Detection {
	if len(dets) < 2 {
		return dets
	}

	order := make([]models.Detection, len(dets))
	copy(order, dets)
	sort.SliceStable(order, func(i, j int) bool {
		return order[i].Confidence > order[j].Confidence
	})

	suppressed := make([]bool, len(order))
	kept := make([]models.Detection, 0, len(order))

	for i := range order {
		if suppressed[i] {
			continue
		}
		kept = append(kept, order[i])

		for j := i + 1; j < len(order); j++ {
			if suppressed[j] || order[j].Label != order[i].Label {
				continue
			}
			if IoU(order[i], order[j]) > threshold {
				suppressed[j] = true
			}
		}
	}

	return kept
}

// IoU is the intersection over union of two normalised boxes.
func IoU(a, b models.Detection) float64 {
	if len(a.Box) != 4 || len(b.Box) != 4 {
		return 0
	}

	y1 := math.Max(float64(a.Box[0]), float64(b.Box[0]))
	x1 := math.Max(float64(a.Box[1]), float64(b.Box[1]))
	y2 := math.Min(float64(a.Box[2]), float64(b.Box[2]))
	x2 := math.Min(float64(a.Box[3]), float64(b.Box[3]))

	intersection := math.Max(0, x2-x1) * math.Max(0, y2-y1)
	union := float64(a.Area()) + float64(b.Area()) - intersection
	if union <= 0 {
		return 0
	}

	return intersection / union
}
