package analysis

import (
	"testing"
	"time"

	gh "github.com/google/go-github/v45/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/prradar/prradar/pkg/apis/config/v1"
)

func defaultExtractor(t *testing.T) *extractor {
	t.Helper()
	ex, err := newExtractor(v1.DefaultAnalyzerConfig())
	require.NoError(t, err)
	return ex
}

func TestStucknessMetricsExtraction(t *testing.T) {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	ex := defaultExtractor(t)

	pr := openPR(1, "dev", now.Add(-10*24*time.Hour), now.Add(-80*time.Hour))
	recs := &prRecords{
		pr: pr,
		reviewComments: []*gh.PullRequestComment{
			{CreatedAt: timePtr(now.Add(-100 * time.Hour))},
			{CreatedAt: timePtr(now.Add(-99 * time.Hour))},
			{InReplyTo: gh.Int64(1), CreatedAt: timePtr(now.Add(-time.Hour))},
		},
		checkRuns: []*gh.CheckRun{
			{Conclusion: gh.String("failure")},
			{Conclusion: gh.String("success")},
			{Conclusion: gh.String("failure")},
		},
		commits: []*gh.RepositoryCommit{
			{Commit: &gh.Commit{Message: gh.String("rebase onto main")}},
			{Commit: &gh.Commit{Message: gh.String("add feature")}},
		},
		timeline: []*gh.Timeline{
			{Actor: &gh.User{Login: gh.String("dev")}, CreatedAt: timePtr(now.Add(-30 * time.Hour))},
			{Actor: &gh.User{Login: gh.String("reviewer")}, CreatedAt: timePtr(now.Add(-2 * time.Hour))},
		},
	}

	m := ex.stucknessMetrics(recs, now)
	assert.InDelta(t, 80, m.TimeSinceLastActivityHours, 0.01)
	assert.Equal(t, 2, m.UnresolvedReviewThreads)
	assert.Equal(t, 2, m.FailedCIChecks)
	// Author activity at -30h beats the -80h update time.
	assert.InDelta(t, 30, m.TimeWaitingForReviewerHours, 0.01)
	assert.InDelta(t, 10, m.PRAgeDays, 0.01)
	assert.Equal(t, 1, m.RebaseForcePushCount)
	// One of three review comments landed within the last 3 days.
	assert.InDelta(t, 1.0-1.0/3.0, m.CommentVelocityDecay, 0.001)
}

func TestBlastRadiusMetricsExtraction(t *testing.T) {
	ex := defaultExtractor(t)

	pr := &gh.PullRequest{
		Number:       gh.Int(1),
		Additions:    gh.Int(500),
		Deletions:    gh.Int(100),
		ChangedFiles: gh.Int(3),
	}
	recs := &prRecords{
		pr: pr,
		files: []*gh.CommitFile{
			{Filename: gh.String("pkg/auth/login.go"), Additions: gh.Int(400), Deletions: gh.Int(100)},
			{Filename: gh.String("config.yaml"), Additions: gh.Int(20)},
			{Filename: gh.String("docs/README"), Additions: gh.Int(80)},
		},
		commits: []*gh.RepositoryCommit{
			{Commit: &gh.Commit{Message: gh.String("fix bug in login")}},
			{Commit: &gh.Commit{Message: gh.String("revert broken change")}},
		},
	}

	m := ex.blastRadiusMetrics(recs)
	assert.Equal(t, 500, m.LinesAdded)
	assert.Equal(t, 100, m.LinesRemoved)
	assert.Equal(t, 3, m.FilesChanged)
	assert.True(t, m.CriticalPathTouched)
	// Half points: code 4 + config 2 + other 1 = 7, halved to 3.
	assert.Equal(t, 3, m.DownstreamDependencies)
	assert.InDelta(t, 0.2, m.HistoricalRegressionRisk, 0.001)
	// All changed lines are non-test code.
	assert.InDelta(t, 0, m.TestCoverageDelta, 0.001)
}

func TestTestCoverageDelta(t *testing.T) {
	tests := []struct {
		name     string
		files    []*gh.CommitFile
		expected float64
	}{
		{
			name:     "no files",
			expected: 0,
		},
		{
			name: "tests added alongside code",
			files: []*gh.CommitFile{
				{Filename: gh.String("thing.go"), Additions: gh.Int(50)},
				{Filename: gh.String("thing_test.go"), Additions: gh.Int(50)},
			},
			expected: 50,
		},
		{
			name: "tests deleted",
			files: []*gh.CommitFile{
				{Filename: gh.String("thing.go"), Additions: gh.Int(50)},
				{Filename: gh.String("thing_test.go"), Deletions: gh.Int(50)},
			},
			expected: -50,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.expected, testCoverageDelta(tc.files), 0.001)
		})
	}
}

func TestAuthorExperience(t *testing.T) {
	created := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	merged := func(age time.Duration, size int) *gh.PullRequest {
		return &gh.PullRequest{
			CreatedAt: timePtr(created.Add(-age)),
			MergedAt:  timePtr(created.Add(-age + 24*time.Hour)),
			Additions: gh.Int(size),
		}
	}

	t.Run("no history", func(t *testing.T) {
		assert.Zero(t, authorExperience(nil, created))
	})

	t.Run("prolific small-PR author saturates", func(t *testing.T) {
		var prs []*gh.PullRequest
		for i := 0; i < 12; i++ {
			prs = append(prs, merged(time.Duration(i+1)*24*time.Hour, 50))
		}
		// merge rate 1.0 (30) + count cap (50) + recency cap (30) + size band (20) > 100
		assert.Equal(t, 100.0, authorExperience(prs, created))
	})

	t.Run("single old unmerged PR", func(t *testing.T) {
		prs := []*gh.PullRequest{{CreatedAt: timePtr(created.Add(-365 * 24 * time.Hour))}}
		// 0 merge rate, 5 for count, no recency, no size band
		assert.Equal(t, 5.0, authorExperience(prs, created))
	})

	t.Run("large PRs earn no size credit", func(t *testing.T) {
		prs := []*gh.PullRequest{merged(200*24*time.Hour, 5000)}
		// 30 merge rate + 5 count
		assert.Equal(t, 35.0, authorExperience(prs, created))
	})
}

func TestDynamicsMetricsExtraction(t *testing.T) {
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	ex := defaultExtractor(t)

	pr := openPR(1, "dev", now.Add(-100*time.Hour), now)
	pr.RequestedReviewers = []*gh.User{{Login: gh.String("r1")}, {Login: gh.String("r2")}}
	recs := &prRecords{
		pr: pr,
		reviews: []*gh.PullRequestReview{
			{State: gh.String("APPROVED"), SubmittedAt: timePtr(pr.GetCreatedAt().Add(10 * time.Hour))},
			{State: gh.String("CHANGES_REQUESTED"), SubmittedAt: timePtr(pr.GetCreatedAt().Add(30 * time.Hour))},
		},
	}

	m := ex.dynamicsMetrics(recs)
	assert.Equal(t, 2, m.ReviewerLoad)
	// 1 of 2 approved, dinged for the change request.
	assert.InDelta(t, 0.4, m.ApprovalRatio, 0.001)
	assert.InDelta(t, 20, m.AvgReviewTimeHours, 0.001)
}

func TestReviewerLoadEstimatedFromSize(t *testing.T) {
	ex := defaultExtractor(t)
	tests := []struct {
		additions, deletions, expected int
	}{
		{1500, 0, 3},
		{400, 200, 2},
		{50, 10, 1},
	}
	for _, tc := range tests {
		pr := &gh.PullRequest{
			Number:    gh.Int(1),
			User:      &gh.User{Login: gh.String("dev")},
			CreatedAt: timePtr(time.Now()),
			Additions: gh.Int(tc.additions),
			Deletions: gh.Int(tc.deletions),
		}
		m := ex.dynamicsMetrics(&prRecords{pr: pr})
		assert.Equal(t, tc.expected, m.ReviewerLoad)
	}
}

func TestBusinessImpactMetricsExtraction(t *testing.T) {
	ex := defaultExtractor(t)

	label := func(name string) *gh.Label { return &gh.Label{Name: gh.String(name)} }

	t.Run("release and priority labels", func(t *testing.T) {
		pr := &gh.PullRequest{
			Labels: []*gh.Label{label("Hotfix"), label("priority/critical"), label("area/auth")},
		}
		m := ex.businessImpactMetrics(&prRecords{pr: pr})
		assert.True(t, m.LinkedToRelease)
		assert.Equal(t, "priority/critical", m.PriorityLabel)
		assert.True(t, m.AffectsCoreFunctionality)
	})

	t.Run("milestone implies release linkage", func(t *testing.T) {
		pr := &gh.PullRequest{Milestone: &gh.Milestone{Title: gh.String("2.0")}}
		m := ex.businessImpactMetrics(&prRecords{pr: pr})
		assert.True(t, m.LinkedToRelease)
	})

	t.Run("plain PR", func(t *testing.T) {
		pr := &gh.PullRequest{Labels: []*gh.Label{label("documentation")}}
		m := ex.businessImpactMetrics(&prRecords{pr: pr})
		assert.False(t, m.LinkedToRelease)
		assert.Empty(t, m.PriorityLabel)
		assert.False(t, m.AffectsCoreFunctionality)
	})
}

func TestCountExternalDependencies(t *testing.T) {
	ex := defaultExtractor(t)

	files := []*gh.CommitFile{
		{
			Filename: gh.String("client.go"),
			Patch:    gh.String(`+ resp, err := http.Get("https://api.stripe.com/v1/charges")`),
		},
	}
	body := "Integrates the stripe service via api.stripe.com"

	// URL pattern match + api.*.com pattern match + 1 code file +
	// service indicator mentions in the body.
	count := ex.countExternalDependencies(files, body)
	assert.Greater(t, count, 3)
}

func TestLinkedIssueNumbers(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		comments []string
		expected []int
	}{
		{
			name:     "keyword links",
			body:     "Fixes #12 and closes #40",
			expected: []int{12, 40},
		},
		{
			name:     "bare references",
			body:     "see #7",
			expected: []int{7},
		},
		{
			name:     "from comments with duplicates",
			body:     "Fixes #12",
			comments: []string{"also #12", "and resolves #99"},
			expected: []int{12, 99},
		},
		{
			name:     "nothing linked",
			body:     "no references here",
			expected: []int{},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.ElementsMatch(t, tc.expected, linkedIssueNumbers(tc.body, tc.comments))
		})
	}
}

func TestCIStatusDerivation(t *testing.T) {
	run := func(status, conclusion string) *gh.CheckRun {
		return &gh.CheckRun{Status: gh.String(status), Conclusion: gh.String(conclusion)}
	}

	tests := []struct {
		name     string
		runs     []*gh.CheckRun
		expected string
	}{
		{name: "no checks", expected: "unknown"},
		{
			name:     "any hard failure wins",
			runs:     []*gh.CheckRun{run("completed", "success"), run("completed", "timed_out")},
			expected: "failure",
		},
		{
			name:     "incomplete checks pending",
			runs:     []*gh.CheckRun{run("in_progress", ""), run("completed", "success")},
			expected: "pending",
		},
		{
			name:     "all green",
			runs:     []*gh.CheckRun{run("completed", "success")},
			expected: "success",
		},
		{
			name:     "only neutral conclusions",
			runs:     []*gh.CheckRun{run("completed", "skipped")},
			expected: "unknown",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, status := ciChecks(tc.runs)
			assert.Equal(t, tc.expected, status)
		})
	}
}
