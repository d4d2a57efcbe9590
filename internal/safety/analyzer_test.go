package safety

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitesafety/internal/models"
)

func TestAnalyzeScenarios(t *testing.T) {
	tests := []struct {
		name       string
		counts     ClassCounts
		compliance float64
		risk       RiskTier
		violations int
	}{
		{
			name:       "mixed violations",
			counts:     ClassCounts{"person": 10, "helmet": 8, "vest": 9, "no-helmet": 2, "no-vest": 1},
			compliance: 70,
			risk:       RiskMedium,
			violations: 3,
		},
		{
			name:       "fully compliant",
			counts:     ClassCounts{"person": 5, "no-helmet": 0, "no-vest": 0},
			compliance: 100,
			risk:       RiskLow,
		},
		{
			name:       "persons only",
			counts:     ClassCounts{"person": 10},
			compliance: 100,
			risk:       RiskLow,
		},
		{
			name:       "empty",
			counts:     ClassCounts{},
			compliance: 0,
			risk:       RiskHigh,
		},
		{
			name:   "nil",
			counts: nil,
			risk:   RiskHigh,
		},
		{
			name:       "more violations than persons",
			counts:     ClassCounts{"person": 2, "no-helmet": 2, "no-vest": 2},
			compliance: -100,
			risk:       RiskHigh,
			violations: 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Analyze(tt.counts)
			assert.Equal(t, tt.compliance, got.Compliance)
			assert.Equal(t, tt.risk, got.Risk)
			assert.Equal(t, tt.violations, got.Violations)
		})
	}
}

func TestAnalyzeZeroPersons(t *testing.T) {
	for _, c := range []ClassCounts{
		{"no-helmet": 3},
		{"no-vest": 1, "helmet": 4},
		{"person": 0, "no-helmet": 7, "no-vest": 7},
	} {
		got := Analyze(c)
		assert.Zero(t, got.Compliance, "counts %v", c)
		assert.Equal(t, RiskHigh, got.Risk)
	}
}

func TestAnalyzeFormula(t *testing.T) {
	for p := 1; p <= 12; p++ {
		for h := 0; h <= 3; h++ {
			for v := 0; v <= 3; v++ {
				got := Analyze(ClassCounts{"person": p, "no-helmet": h, "no-vest": v})
				want := float64(p-h-v) / float64(p) * 100
				require.Equal(t, want, got.Compliance, "p=%d h=%d v=%d", p, h, v)
				require.Equal(t, p, got.Persons)
				require.Equal(t, h+v, got.Violations)
			}
		}
	}
}

func TestAnalyzeDoesNotMutateInput(t *testing.T) {
	counts := ClassCounts{"person": 3}
	Analyze(counts)
	assert.Equal(t, ClassCounts{"person": 3}, counts)
}

func TestAnalyzeNarrative(t *testing.T) {
	got := Analyze(ClassCounts{"person": 10, "no-helmet": 2, "no-vest": 1})
	assert.Equal(t,
		"Of 10 workers detected, there are 3 safety violations. Compliance rate is 70.00%. Risk category: Medium.",
		got.Narrative)

	got = Analyze(ClassCounts{"person": 3, "no-vest": 1})
	assert.Contains(t, got.Narrative, "Compliance rate is 66.67%.")
	assert.Contains(t, got.Narrative, fmt.Sprintf("Risk category: %s.", RiskHigh))
}

func TestClassifyBoundaries(t *testing.T) {
	assert.Equal(t, RiskLow, Classify(100))
	assert.Equal(t, RiskLow, Classify(90))
	assert.Equal(t, RiskMedium, Classify(89.999))
	assert.Equal(t, RiskMedium, Classify(70))
	assert.Equal(t, RiskHigh, Classify(69.999))
	assert.Equal(t, RiskHigh, Classify(0))
	assert.Equal(t, RiskHigh, Classify(-50))
}

func TestWithDefaults(t *testing.T) {
	got := ClassCounts{"person": 4, "truck": 2}.WithDefaults()
	assert.Equal(t, ClassCounts{
		"person":    4,
		"helmet":    0,
		"vest":      0,
		"no-helmet": 0,
		"no-vest":   0,
		"truck":     2,
	}, got)
}

func TestCountLabels(t *testing.T) {
	empty := CountLabels(nil)
	require.NotNil(t, empty)
	assert.Empty(t, empty)

	got := CountLabels([]string{"person", "person", "helmet"})
	assert.Equal(t, ClassCounts{"person": 2, "helmet": 1}, got)
	assert.Equal(t, 3, got.Total())
	assert.Equal(t, []string{"helmet", "person"}, got.SortedLabels())
}

func TestCountDetections(t *testing.T) {
	dets := []models.Detection{
		{Label: "vest", Confidence: 0.9},
		{Label: "no-helmet", Confidence: 0.7},
		{Label: "vest", Confidence: 0.6},
	}
	assert.Equal(t, ClassCounts{"vest": 2, "no-helmet": 1}, CountDetections(dets))
}
