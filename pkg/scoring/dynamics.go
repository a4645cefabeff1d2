package scoring

import "github.com/prradar/prradar/pkg/apis/risk"

// Dynamics scores author/reviewer health, 0-100. This is an inverse health
// score: the least experienced author under the most loaded reviewers with
// the lowest approval ratio scores highest.
func Dynamics(m risk.DynamicsMetrics) float64 {
	score := 0.0

	switch {
	case m.AuthorExperienceScore < 20:
		score += 40
	case m.AuthorExperienceScore < 50:
		score += 25
	case m.AuthorExperienceScore < 70:
		score += 10
	}

	switch {
	case m.ReviewerLoad > 10:
		score += 30
	case m.ReviewerLoad > 5:
		score += 20
	case m.ReviewerLoad > 3:
		score += 10
	}

	switch {
	case m.ApprovalRatio < 0.5:
		score += 20
	case m.ApprovalRatio < 0.7:
		score += 15
	case m.ApprovalRatio < 0.9:
		score += 5
	}

	switch {
	case m.AvgReviewTimeHours > 72:
		score += 10
	case m.AvgReviewTimeHours > 48:
		score += 6
	}

	return clamp(score)
}
