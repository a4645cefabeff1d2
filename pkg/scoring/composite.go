package scoring

import "github.com/prradar/prradar/pkg/apis/risk"

// Fixed weights for combining the four dimensions into the delivery risk
// score. Stuckness dominates: a stalled PR is the strongest delivery signal.
const (
	stucknessWeight      = 0.4
	blastRadiusWeight    = 0.3
	dynamicsWeight       = 0.2
	businessImpactWeight = 0.1
)

// Composite combines the four dimension scores into a CompositeScore with
// the derived delivery risk score and level filled in. It is a pure
// function: the same four inputs always produce the identical result.
func Composite(stuckness, blastRadius, dynamics, businessImpact float64) risk.CompositeScore {
	score := stuckness*stucknessWeight +
		blastRadius*blastRadiusWeight +
		dynamics*dynamicsWeight +
		businessImpact*businessImpactWeight

	return risk.CompositeScore{
		StucknessScore:      stuckness,
		BlastRadiusScore:    blastRadius,
		DynamicsScore:       dynamics,
		BusinessImpactScore: businessImpact,
		DeliveryRiskScore:   score,
		RiskLevel:           LevelFor(score),
	}
}

// LevelFor buckets a delivery risk score. Boundary values belong to the
// higher bucket.
func LevelFor(score float64) risk.Level {
	switch {
	case score >= 80:
		return risk.LevelCritical
	case score >= 60:
		return risk.LevelHigh
	case score >= 40:
		return risk.LevelMedium
	default:
		return risk.LevelLow
	}
}

// Score runs all four calculators over a PR's metrics and combines them.
func Score(a *risk.PullRequestAnalysis) risk.CompositeScore {
	return Composite(
		Stuckness(a.Stuckness),
		BlastRadius(a.BlastRadius),
		Dynamics(a.Dynamics),
		BusinessImpact(a.BusinessImpact),
	)
}
