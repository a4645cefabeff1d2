package scoring

import "github.com/prradar/prradar/pkg/apis/risk"

// BlastRadius scores the scope of potential damage, 0-100.
func BlastRadius(m risk.BlastRadiusMetrics) float64 {
	score := 0.0

	score += capped(float64(m.DownstreamDependencies)*3, 30)

	if m.CriticalPathTouched {
		score += 25
	}

	// change size bands are mutually exclusive, largest first
	totalChanges := m.LinesAdded + m.LinesRemoved
	switch {
	case totalChanges > 1000:
		score += 20
	case totalChanges > 500:
		score += 15
	case totalChanges > 100:
		score += 10
	}

	score += capped(float64(m.FilesChanged)*2, 10)

	switch {
	case m.TestCoverageDelta < -5:
		score += 8
	case m.TestCoverageDelta < 0:
		score += 4
	}

	score += m.HistoricalRegressionRisk * 7

	return clamp(score)
}
