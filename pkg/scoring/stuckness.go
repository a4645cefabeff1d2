// Package scoring holds the four dimension calculators and the composite
// scorer. Each calculator is a pure function over its metrics struct; the
// weights and band thresholds are fixed configuration reproduced exactly,
// there is no calibration machinery behind them.
package scoring

import "github.com/prradar/prradar/pkg/apis/risk"

// Stuckness scores how stalled a PR is, 0-100. The sub-terms are capped
// individually and the sum is clamped to 100.
func Stuckness(m risk.StucknessMetrics) float64 {
	score := 0.0

	// activity gap is a step function, not continuous
	switch {
	case m.TimeSinceLastActivityHours > 72:
		score += 25
	case m.TimeSinceLastActivityHours > 24:
		score += 15
	}

	score += capped(float64(m.UnresolvedReviewThreads)*4, 20)
	score += capped(float64(m.FailedCIChecks)*5, 15)

	switch {
	case m.TimeWaitingForReviewerHours > 48:
		score += 15
	case m.TimeWaitingForReviewerHours > 24:
		score += 10
	}

	switch {
	case m.PRAgeDays > 14:
		score += 10
	case m.PRAgeDays > 7:
		score += 5
	}

	score += capped(float64(m.RebaseForcePushCount)*2, 8)
	score += m.CommentVelocityDecay * 4

	if m.LinkedIssueStaleTimeHours > 168 {
		score += 3
	}

	return clamp(score)
}

func capped(v, cap float64) float64 {
	if v > cap {
		return cap
	}
	return v
}

func clamp(score float64) float64 {
	if score > 100 {
		return 100
	}
	if score < 0 {
		return 0
	}
	return score
}
