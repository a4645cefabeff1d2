package analysis

import (
	"context"
	"sync"
	"testing"
	"time"

	gh "github.com/google/go-github/v45/github"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/prradar/prradar/pkg/apis/config/v1"
	"github.com/prradar/prradar/pkg/apis/risk"
)

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemCache() *memCache { return &memCache{data: map[string][]byte{}} }

func (m *memCache) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[key], nil
}

func (m *memCache) Set(_ context.Context, key string, content []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = content
	return nil
}

func newTestAggregator(t *testing.T, client SourceClient, reportCache *memCache, now time.Time) *Aggregator {
	t.Helper()
	cfg := v1.DefaultAnalyzerConfig()
	analyzer, err := NewAnalyzer(client, cfg)
	require.NoError(t, err)
	analyzer.now = func() time.Time { return now }
	agg := NewAggregator(client, analyzer, reportCache, cfg)
	agg.now = func() time.Time { return now }
	return agg
}

func TestReportAggregates(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	prs := []*gh.PullRequest{
		openPR(1, "dev", now.Add(-24*time.Hour), now.Add(-time.Hour)),
		openPR(2, "dev", now.Add(-48*time.Hour), now.Add(-2*time.Hour)),
	}
	client := &fakeSourceClient{
		listPRs: func(_ context.Context, _, _ string, includeClosed bool, max int) ([]*gh.PullRequest, error) {
			assert.False(t, includeClosed)
			assert.Equal(t, v1.DefaultMaxPRs, max)
			return prs, nil
		},
	}
	agg := newTestAggregator(t, client, newMemCache(), now)

	report, err := agg.Report(context.Background(), "org", "repo", Options{})
	require.NoError(t, err)

	assert.Equal(t, "org", report.Owner)
	assert.Equal(t, "repo", report.Repo)
	assert.Equal(t, 2, report.TotalPRsAnalyzed)
	assert.Len(t, report.PRAnalyses, 2)
	assert.Equal(t, now, report.AnalyzedAt)

	sum := 0.0
	for _, a := range report.PRAnalyses {
		sum += a.Composite.DeliveryRiskScore
	}
	assert.InDelta(t, sum/2, report.AvgDeliveryRiskScore, 0.001)
}

func TestReportListFailureLeavesCacheUntouched(t *testing.T) {
	now := time.Now()
	reportCache := newMemCache()
	client := &fakeSourceClient{
		listPRs: func(_ context.Context, _, _ string, _ bool, _ int) ([]*gh.PullRequest, error) {
			return nil, errors.New("api unavailable")
		},
	}
	agg := newTestAggregator(t, client, reportCache, now)

	_, err := agg.Report(context.Background(), "org", "repo", Options{})
	assert.Error(t, err)
	assert.Empty(t, reportCache.data)
}

func TestReportExcludesFailedPRs(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	good := openPR(1, "dev", now.Add(-24*time.Hour), now.Add(-time.Hour))
	// No author and no creation time, so the analysis cannot proceed.
	broken := &gh.PullRequest{Number: gh.Int(2)}

	client := &fakeSourceClient{
		listPRs: func(_ context.Context, _, _ string, _ bool, _ int) ([]*gh.PullRequest, error) {
			return []*gh.PullRequest{good, broken}, nil
		},
	}
	agg := newTestAggregator(t, client, newMemCache(), now)

	report, err := agg.Report(context.Background(), "org", "repo", Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.TotalPRsAnalyzed)
	require.Len(t, report.PRAnalyses, 1)
	assert.Equal(t, 1, report.PRAnalyses[0].Number)
}

func TestReportServedFromCacheWithinTTL(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	var listCalls int
	client := &fakeSourceClient{
		listPRs: func(_ context.Context, _, _ string, _ bool, _ int) ([]*gh.PullRequest, error) {
			listCalls++
			return []*gh.PullRequest{openPR(1, "dev", now.Add(-24*time.Hour), now.Add(-time.Hour))}, nil
		},
	}
	agg := newTestAggregator(t, client, newMemCache(), now)
	ctx := context.Background()

	first, err := agg.Report(ctx, "org", "repo", Options{})
	require.NoError(t, err)
	require.Equal(t, 1, listCalls)

	// Within the TTL the cached report answers without touching the host.
	agg.now = func() time.Time { return now.Add(30 * time.Minute) }
	agg.analyzer.now = agg.now
	second, err := agg.Report(ctx, "org", "repo", Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, listCalls)
	assert.Equal(t, first.AnalyzedAt.Unix(), second.AnalyzedAt.Unix())
	assert.Equal(t, first.AvgDeliveryRiskScore, second.AvgDeliveryRiskScore)

	// Force refresh ignores the cached copy.
	_, err = agg.Report(ctx, "org", "repo", Options{ForceRefresh: true})
	require.NoError(t, err)
	assert.Equal(t, 2, listCalls)

	// Past the TTL the report is recomputed.
	agg.now = func() time.Time { return now.Add(2 * time.Hour) }
	agg.analyzer.now = agg.now
	_, err = agg.Report(ctx, "org", "repo", Options{})
	require.NoError(t, err)
	assert.Equal(t, 3, listCalls)
}

type quotaAwareClient struct {
	*fakeSourceClient
	throttled bool
}

func (c *quotaAwareClient) IsWithinRateLimitThreshold(_ context.Context) bool {
	return c.throttled
}

func TestReportRefusesRecomputeWhenQuotaExhausted(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	var listCalls int
	client := &quotaAwareClient{fakeSourceClient: &fakeSourceClient{
		listPRs: func(_ context.Context, _, _ string, _ bool, _ int) ([]*gh.PullRequest, error) {
			listCalls++
			return []*gh.PullRequest{openPR(1, "dev", now.Add(-24*time.Hour), now.Add(-time.Hour))}, nil
		},
	}}
	agg := newTestAggregator(t, client, newMemCache(), now)
	ctx := context.Background()

	// Nothing cached and no quota: the run is refused outright.
	client.throttled = true
	_, err := agg.Report(ctx, "org", "repo", Options{})
	assert.Error(t, err)
	assert.Zero(t, listCalls)

	// With quota available the report computes normally.
	client.throttled = false
	first, err := agg.Report(ctx, "org", "repo", Options{})
	require.NoError(t, err)
	require.Equal(t, 1, listCalls)

	// Stale cache and no quota: the stale report answers instead of a recompute.
	client.throttled = true
	agg.now = func() time.Time { return now.Add(2 * time.Hour) }
	agg.analyzer.now = agg.now
	second, err := agg.Report(ctx, "org", "repo", Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, listCalls)
	assert.Equal(t, first.AnalyzedAt.Unix(), second.AnalyzedAt.Unix())

	// A fresh cached report still answers before the quota check runs.
	agg.now = func() time.Time { return now.Add(30 * time.Minute) }
	agg.analyzer.now = agg.now
	_, err = agg.Report(ctx, "org", "repo", Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, listCalls)

	// Force refresh bypasses the cached fallback, so no quota means an error.
	_, err = agg.Report(ctx, "org", "repo", Options{ForceRefresh: true})
	assert.Error(t, err)
	assert.Equal(t, 1, listCalls)
}

func TestCachedReturnsNilWhenAbsent(t *testing.T) {
	agg := newTestAggregator(t, &fakeSourceClient{}, newMemCache(), time.Now())
	report, err := agg.Cached(context.Background(), "org", "repo")
	require.NoError(t, err)
	assert.Nil(t, report)
}

func TestBuildReportRules(t *testing.T) {
	now := time.Now()
	withScore := func(score float64) risk.PullRequestAnalysis {
		return risk.PullRequestAnalysis{
			Composite: risk.CompositeScore{DeliveryRiskScore: score},
		}
	}

	t.Run("empty repository", func(t *testing.T) {
		report := buildReport("org", "repo", nil, now)
		assert.Zero(t, report.TotalPRsAnalyzed)
		assert.Zero(t, report.AvgDeliveryRiskScore)
		assert.Zero(t, report.TeamVelocityImpact)
		assert.Equal(t, releaseRiskLow, report.ReleaseRiskAssessment)
	})

	t.Run("critical PR dominates assessment", func(t *testing.T) {
		report := buildReport("org", "repo", []risk.PullRequestAnalysis{
			withScore(85), withScore(10),
		}, now)
		assert.Equal(t, 1, report.CriticalRiskPRCount)
		// A critical PR also counts as high risk.
		assert.Equal(t, 1, report.HighRiskPRCount)
		assert.InDelta(t, 47.5, report.AvgDeliveryRiskScore, 0.001)
		assert.InDelta(t, 57.5, report.TeamVelocityImpact, 0.001)
		assert.Equal(t, releaseRiskHigh, report.ReleaseRiskAssessment)
	})

	t.Run("many high risk PRs", func(t *testing.T) {
		report := buildReport("org", "repo", []risk.PullRequestAnalysis{
			withScore(65), withScore(70), withScore(20),
		}, now)
		assert.Equal(t, 2, report.HighRiskPRCount)
		assert.Zero(t, report.CriticalRiskPRCount)
		assert.Equal(t, releaseRiskMedium, report.ReleaseRiskAssessment)
	})

	t.Run("velocity impact capped", func(t *testing.T) {
		report := buildReport("org", "repo", []risk.PullRequestAnalysis{
			withScore(90), withScore(95), withScore(85),
		}, now)
		assert.Equal(t, 100.0, report.TeamVelocityImpact)
	})

	t.Run("boundary scores land in the higher bucket", func(t *testing.T) {
		report := buildReport("org", "repo", []risk.PullRequestAnalysis{
			withScore(60), withScore(80),
		}, now)
		assert.Equal(t, 2, report.HighRiskPRCount)
		assert.Equal(t, 1, report.CriticalRiskPRCount)
	})
}
