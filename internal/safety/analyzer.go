// Package safety turns per-class detection counts into a PPE compliance
// rate and a coarse risk tier for construction-site images.
package safety

import (
	"fmt"
	"sort"

	"github.com/samber/lo"

	"sitesafety/internal/models"
)

// Class labels produced by the construction-equipment model.
const (
	LabelPerson   = "person"
	LabelHelmet   = "helmet"
	LabelVest     = "vest"
	LabelNoHelmet = "no-helmet"
	LabelNoVest   = "no-vest"
)

// Compliance floors of the Low and Medium tiers, inclusive.
const (
	lowRiskFloor    = 90.0
	mediumRiskFloor = 70.0
)

// RequiredLabels are always present in the counts handed to Analyze.
var RequiredLabels = [...]string{
	LabelPerson,
	LabelHelmet,
	LabelVest,
	LabelNoHelmet,
	LabelNoVest,
}

// ClassCounts maps a class label to the number of detections carrying it.
type ClassCounts map[string]int

// RiskTier is a three-level classification of a compliance rate.
type RiskTier string

const (
	RiskLow    RiskTier = "Low"
	RiskMedium RiskTier = "Medium"
	RiskHigh   RiskTier = "High"
)

// Assessment is the outcome of analysing one detection run.
type Assessment struct {
	Compliance float64  `json:"compliance"`
	Risk       RiskTier `json:"risk"`
	Narrative  string   `json:"narrative"`
	Persons    int      `json:"persons"`
	Violations int      `json:"violations"`
}

// CountLabels tallies labels. An empty input yields an empty, non-nil map.
func CountLabels(labels []string) ClassCounts {
	return ClassCounts(lo.CountValues(labels))
}

// CountDetections tallies the labels of a detection set.
func CountDetections(dets []models.Detection) ClassCounts {
	return CountLabels(models.Labels(dets))
}

// WithDefaults overlays counts on a zero template holding every required
// label. The receiver is not modified.
func (c ClassCounts) WithDefaults() ClassCounts {
	merged := make(ClassCounts, len(c)+len(RequiredLabels))
	for _, label := range RequiredLabels {
		merged[label] = 0
	}
	for label, n := range c {
		merged[label] = n
	}
	return merged
}

// Total is the number of detections across all labels.
func (c ClassCounts) Total() int {
	return lo.Sum(lo.Values(map[string]int(c)))
}

// SortedLabels returns the labels present in c in lexical order.
func (c ClassCounts) SortedLabels() []string {
	labels := lo.Keys(map[string]int(c))
	sort.Strings(labels)
	return labels
}

// Analyze computes the compliance rate, risk tier and narrative for counts.
// Compliance is not clamped: more violations than persons gives a negative
// rate, which is classified as High risk.
func Analyze(counts ClassCounts) Assessment {
	c := counts.WithDefaults()

	persons := c[LabelPerson]
	violations := c[LabelNoHelmet] + c[LabelNoVest]

	var compliance float64
	if persons > 0 {
		compliance = float64(persons-violations) / float64(persons) * 100
	}

	risk := Classify(compliance)

	return Assessment{
		Compliance: compliance,
		Risk:       risk,
		Persons:    persons,
		Violations: violations,
		Narrative: fmt.Sprintf(
			"Of %d workers detected, there are %d safety violations. "+
				"Compliance rate is %.2f%%. Risk category: %s.",
			persons, violations, compliance, risk),
	}
}

// Classify maps a compliance percentage to its risk tier.
func Classify(compliance float64) RiskTier {
	switch {
	case compliance >= lowRiskFloor:
		return RiskLow
	case compliance >= mediumRiskFloor:
		return RiskMedium
	default:
		return RiskHigh
	}
}
