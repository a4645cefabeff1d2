package risk

import (
	"fmt"
	"time"
)

// Level is the discrete risk bucket derived from a delivery risk score.
type Level string

const (
	LevelLow      Level = "low"
	LevelMedium   Level = "medium"
	LevelHigh     Level = "high"
	LevelCritical Level = "critical"
)

// PullRequestState mirrors the state reported by the source code host.
type PullRequestState string

const (
	PullRequestOpen   PullRequestState = "open"
	PullRequestClosed PullRequestState = "closed"
	PullRequestMerged PullRequestState = "merged"
)

// StucknessMetrics are the raw inputs to the stuckness score: how long a PR
// has been inactive or blocked relative to expected review velocity.
type StucknessMetrics struct {
	TimeSinceLastActivityHours  float64 `json:"time_since_last_activity_hours"`
	UnresolvedReviewThreads     int     `json:"unresolved_review_threads"`
	FailedCIChecks              int     `json:"failed_ci_checks"`
	TimeWaitingForReviewerHours float64 `json:"time_waiting_for_reviewer_hours"`
	PRAgeDays                   float64 `json:"pr_age_days"`
	RebaseForcePushCount        int     `json:"rebase_force_push_count"`
	// CommentVelocityDecay is in [0,1]; 1 means discussion has died off entirely.
	CommentVelocityDecay      float64 `json:"comment_velocity_decay"`
	LinkedIssueStaleTimeHours float64 `json:"linked_issue_stale_time_hours"`
}

// BlastRadiusMetrics are the raw inputs to the blast radius score: the scope
// of code and systems a PR could damage.
type BlastRadiusMetrics struct {
	DownstreamDependencies int  `json:"downstream_dependencies"`
	CriticalPathTouched    bool `json:"critical_path_touched"`
	LinesAdded             int  `json:"lines_added"`
	LinesRemoved           int  `json:"lines_removed"`
	FilesChanged           int  `json:"files_changed"`
	// TestCoverageDelta is in percentage points, signed; negative means coverage dropped.
	TestCoverageDelta float64 `json:"test_coverage_delta"`
	// HistoricalRegressionRisk is in [0,1].
	HistoricalRegressionRisk float64 `json:"historical_regression_risk"`
}

// DynamicsMetrics are the raw inputs to the author/reviewer dynamics score.
// Note the derived score is an inverse health score: higher means riskier.
type DynamicsMetrics struct {
	AuthorExperienceScore float64 `json:"author_experience_score"`
	ReviewerLoad          int     `json:"reviewer_load"`
	ApprovalRatio         float64 `json:"approval_ratio"`
	AuthorMergeHistory    int     `json:"author_merge_history"`
	AvgReviewTimeHours    float64 `json:"avg_review_time_hours"`
}

// BusinessImpactMetrics are the raw inputs to the business impact score: the
// organizational stakes of a PR.
type BusinessImpactMetrics struct {
	LinkedToRelease          bool   `json:"linked_to_release"`
	ExternalDependencies     int    `json:"external_dependencies"`
	PriorityLabel            string `json:"priority_label,omitempty"`
	AffectsCoreFunctionality bool   `json:"affects_core_functionality"`
}

// CompositeScore carries the four dimension scores plus the weighted delivery
// risk score and the level derived from it. All scores are in [0,100].
type CompositeScore struct {
	StucknessScore      float64 `json:"stuckness_score"`
	BlastRadiusScore    float64 `json:"blast_radius_score"`
	DynamicsScore       float64 `json:"dynamics_score"`
	BusinessImpactScore float64 `json:"business_impact_score"`
	DeliveryRiskScore   float64 `json:"delivery_risk_score"`
	RiskLevel           Level   `json:"risk_level"`
}

// PullRequestAnalysis is the complete risk analysis for a single PR. It is
// immutable once produced; a later run produces a new record.
type PullRequestAnalysis struct {
	Number    int              `json:"pr_number"`
	Title     string           `json:"title"`
	Author    string           `json:"author"`
	State     PullRequestState `json:"state"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
	URL       string           `json:"url"`

	Stuckness      StucknessMetrics      `json:"stuckness_metrics"`
	BlastRadius    BlastRadiusMetrics    `json:"blast_radius_metrics"`
	Dynamics       DynamicsMetrics       `json:"dynamics_metrics"`
	BusinessImpact BusinessImpactMetrics `json:"business_impact_metrics"`

	Composite CompositeScore `json:"composite_scores"`

	Details *DetailedInfo `json:"detailed_info,omitempty"`

	AnalyzedAt time.Time `json:"analyzed_at"`
}

// RepositoryReport is the repository-level aggregate over the analyzed PRs.
// The aggregate counts are always recomputed together with the analysis list.
type RepositoryReport struct {
	Owner            string                `json:"owner"`
	Repo             string                `json:"repo"`
	AnalyzedAt       time.Time             `json:"analyzed_at"`
	TotalPRsAnalyzed int                   `json:"total_prs_analyzed"`
	PRAnalyses       []PullRequestAnalysis `json:"pr_analyses"`

	AvgDeliveryRiskScore float64 `json:"avg_delivery_risk_score"`
	HighRiskPRCount      int     `json:"high_risk_pr_count"`
	CriticalRiskPRCount  int     `json:"critical_risk_pr_count"`

	TeamVelocityImpact    float64 `json:"team_velocity_impact"`
	ReleaseRiskAssessment string  `json:"release_risk_assessment"`
}

// Key is the cache key for a repository's report.
func (r *RepositoryReport) Key() string {
	return ReportKey(r.Owner, r.Repo)
}

func ReportKey(owner, repo string) string {
	return fmt.Sprintf("%s/%s", owner, repo)
}

// ListItem is the trimmed projection of an analysis used by list endpoints.
type ListItem struct {
	Number            int              `json:"pr_number"`
	Title             string           `json:"title"`
	Author            string           `json:"author"`
	State             PullRequestState `json:"state"`
	DeliveryRiskScore float64          `json:"delivery_risk_score"`
	RiskLevel         Level            `json:"risk_level"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
	URL               string           `json:"url"`
}

// DashboardSummary is the aggregate view rendered on the landing dashboard.
type DashboardSummary struct {
	TotalPRs           int            `json:"total_prs"`
	HighRiskCount      int            `json:"high_risk_count"`
	CriticalRiskCount  int            `json:"critical_risk_count"`
	AvgRiskScore       float64        `json:"avg_risk_score"`
	TeamVelocityImpact float64        `json:"team_velocity_impact"`
	TopRiskPRs         []ListItem     `json:"top_risk_prs"`
	RiskDistribution   map[Level]int  `json:"risk_distribution"`
}

// ListItemFor projects an analysis into its list form.
func ListItemFor(a PullRequestAnalysis) ListItem {
	return ListItem{
		Number:            a.Number,
		Title:             a.Title,
		Author:            a.Author,
		State:             a.State,
		DeliveryRiskScore: a.Composite.DeliveryRiskScore,
		RiskLevel:         a.Composite.RiskLevel,
		CreatedAt:         a.CreatedAt,
		UpdatedAt:         a.UpdatedAt,
		URL:               a.URL,
	}
}
