package scoring

import (
	"strings"

	"github.com/prradar/prradar/pkg/apis/risk"
)

var priorityLabelScores = map[string]float64{
	"critical": 20,
	"high":     15,
	"medium":   10,
	"low":      5,
}

// BusinessImpact scores the organizational stakes of a PR, 0-100.
// Unrecognized priority labels score 0, they are not an error.
func BusinessImpact(m risk.BusinessImpactMetrics) float64 {
	score := 0.0

	if m.LinkedToRelease {
		score += 40
	}

	score += capped(float64(m.ExternalDependencies)*8, 25)

	if m.PriorityLabel != "" {
		score += priorityLabelScores[strings.ToLower(m.PriorityLabel)]
	}

	if m.AffectsCoreFunctionality {
		score += 15
	}

	return clamp(score)
}
