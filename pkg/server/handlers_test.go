package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prradar/prradar/pkg/analysis"
	"github.com/prradar/prradar/pkg/apis/risk"
)

type fakeReporter struct {
	report     func(ctx context.Context, owner, repo string, opts analysis.Options) (*risk.RepositoryReport, error)
	cached     func(ctx context.Context, owner, repo string) (*risk.RepositoryReport, error)
	reportHits int
	cachedHits int
}

func (f *fakeReporter) Report(ctx context.Context, owner, repo string, opts analysis.Options) (*risk.RepositoryReport, error) {
	f.reportHits++
	if f.report == nil {
		return &risk.RepositoryReport{Owner: owner, Repo: repo}, nil
	}
	return f.report(ctx, owner, repo, opts)
}

func (f *fakeReporter) Cached(ctx context.Context, owner, repo string) (*risk.RepositoryReport, error) {
	f.cachedHits++
	if f.cached == nil {
		return nil, nil
	}
	return f.cached(ctx, owner, repo)
}

func testReport() *risk.RepositoryReport {
	analysisFor := func(number int, score float64) risk.PullRequestAnalysis {
		return risk.PullRequestAnalysis{
			Number: number,
			Title:  "change",
			State:  risk.PullRequestOpen,
			Composite: risk.CompositeScore{
				DeliveryRiskScore: score,
				RiskLevel:         levelFor(score),
			},
		}
	}
	return &risk.RepositoryReport{
		Owner:                "org",
		Repo:                 "repo",
		AnalyzedAt:           time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		TotalPRsAnalyzed:     3,
		PRAnalyses:           []risk.PullRequestAnalysis{analysisFor(1, 85), analysisFor(2, 45), analysisFor(3, 10)},
		AvgDeliveryRiskScore: 46.666,
		HighRiskPRCount:      1,
		CriticalRiskPRCount:  1,
		TeamVelocityImpact:   56.666,
	}
}

func levelFor(score float64) risk.Level {
	switch {
	case score >= 80:
		return risk.LevelCritical
	case score >= 60:
		return risk.LevelHigh
	case score >= 40:
		return risk.LevelMedium
	}
	return risk.LevelLow
}

func doRequest(t *testing.T, reporter Reporter, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	srv := New(":0", reporter)
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.router().ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	rec := doRequest(t, &fakeReporter{}, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status"`)
}

func TestAnalyzeRepository(t *testing.T) {
	reporter := &fakeReporter{
		report: func(_ context.Context, owner, repo string, opts analysis.Options) (*risk.RepositoryReport, error) {
			assert.Equal(t, "org", owner)
			assert.Equal(t, "repo", repo)
			assert.True(t, opts.ForceRefresh)
			assert.True(t, opts.IncludeClosedPRs)
			assert.Equal(t, 20, opts.MaxPRs)
			return testReport(), nil
		},
	}

	body := `{"owner":"org","repo":"repo","force_refresh":true,"include_closed_prs":true,"max_prs":20}`
	rec := doRequest(t, reporter, http.MethodPost, "/api/risk/analyze", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var report risk.RepositoryReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, 3, report.TotalPRsAnalyzed)
}

func TestAnalyzeRepositoryValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "bad json", body: `{`},
		{name: "missing owner", body: `{"repo":"repo"}`},
		{name: "path traversal", body: `{"owner":"../etc","repo":"repo"}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := doRequest(t, &fakeReporter{}, http.MethodPost, "/api/risk/analyze", tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestAnalyzeRepositoryFailure(t *testing.T) {
	reporter := &fakeReporter{
		report: func(_ context.Context, _, _ string, _ analysis.Options) (*risk.RepositoryReport, error) {
			return nil, errors.New("github unavailable")
		},
	}
	rec := doRequest(t, reporter, http.MethodPost, "/api/risk/analyze", `{"owner":"org","repo":"repo"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestRepositoryReportPrefersCached(t *testing.T) {
	reporter := &fakeReporter{
		cached: func(_ context.Context, _, _ string) (*risk.RepositoryReport, error) {
			return testReport(), nil
		},
	}
	rec := doRequest(t, reporter, http.MethodGet, "/api/risk/repos/org/repo", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, reporter.cachedHits)
	assert.Zero(t, reporter.reportHits)
}

func TestRepositoryReportComputesOnMiss(t *testing.T) {
	reporter := &fakeReporter{
		report: func(_ context.Context, _, _ string, _ analysis.Options) (*risk.RepositoryReport, error) {
			return testReport(), nil
		},
	}
	rec := doRequest(t, reporter, http.MethodGet, "/api/risk/repos/org/repo", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, reporter.cachedHits)
	assert.Equal(t, 1, reporter.reportHits)
}

func TestRepositoryReportForceRefreshSkipsCache(t *testing.T) {
	reporter := &fakeReporter{
		report: func(_ context.Context, _, _ string, opts analysis.Options) (*risk.RepositoryReport, error) {
			assert.True(t, opts.ForceRefresh)
			return testReport(), nil
		},
	}
	rec := doRequest(t, reporter, http.MethodGet, "/api/risk/repos/org/repo?force_refresh=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, reporter.cachedHits)
	assert.Equal(t, 1, reporter.reportHits)
}

func TestListPullRequestsSortedAndFiltered(t *testing.T) {
	reporter := &fakeReporter{
		cached: func(_ context.Context, _, _ string) (*risk.RepositoryReport, error) {
			return testReport(), nil
		},
	}

	rec := doRequest(t, reporter, http.MethodGet, "/api/risk/repos/org/repo/prs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var items []risk.ListItem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	require.Len(t, items, 3)
	assert.Equal(t, 1, items[0].Number)
	assert.Equal(t, 2, items[1].Number)
	assert.Equal(t, 3, items[2].Number)

	rec = doRequest(t, reporter, http.MethodGet, "/api/risk/repos/org/repo/prs?min_risk_level=medium", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	require.Len(t, items, 2)
}

func TestPullRequestAnalysisLookup(t *testing.T) {
	reporter := &fakeReporter{
		cached: func(_ context.Context, _, _ string) (*risk.RepositoryReport, error) {
			return testReport(), nil
		},
	}

	rec := doRequest(t, reporter, http.MethodGet, "/api/risk/repos/org/repo/prs/2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var analysisRecord risk.PullRequestAnalysis
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &analysisRecord))
	assert.Equal(t, 2, analysisRecord.Number)

	rec = doRequest(t, reporter, http.MethodGet, "/api/risk/repos/org/repo/prs/999", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRepositorySummary(t *testing.T) {
	reporter := &fakeReporter{
		cached: func(_ context.Context, _, _ string) (*risk.RepositoryReport, error) {
			return testReport(), nil
		},
	}

	rec := doRequest(t, reporter, http.MethodGet, "/api/risk/repos/org/repo/summary?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var summary risk.DashboardSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, 3, summary.TotalPRs)
	assert.Equal(t, 1, summary.CriticalRiskCount)
	assert.Len(t, summary.TopRiskPRs, 2)
	assert.Equal(t, 1, summary.RiskDistribution[risk.LevelCritical])
	assert.Equal(t, 1, summary.RiskDistribution[risk.LevelMedium])
	assert.Equal(t, 1, summary.RiskDistribution[risk.LevelLow])
	assert.Zero(t, summary.RiskDistribution[risk.LevelHigh])
}
