package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	apicache "github.com/prradar/prradar/pkg/apis/cache"
	v1 "github.com/prradar/prradar/pkg/apis/config/v1"
	"github.com/prradar/prradar/pkg/apis/risk"
	"github.com/prradar/prradar/pkg/server/metrics"
)

// Release risk statements surfaced on the repository report.
const (
	releaseRiskHigh   = "High risk - critical PRs need immediate attention"
	releaseRiskMedium = "Medium risk - many high-risk PRs"
	releaseRiskLow    = "Low risk - most PRs are healthy"
)

// rateLimited is implemented by source clients that can report remaining
// API quota. When the quota is inside the threshold the aggregator refuses
// to recompute and falls back to whatever cached report exists.
type rateLimited interface {
	IsWithinRateLimitThreshold(ctx context.Context) bool
}

// Options control one repository run. The zero value means open PRs only,
// the configured default PR cap, and cache reuse within the TTL.
type Options struct {
	IncludeClosedPRs bool
	MaxPRs           int
	ForceRefresh     bool
}

// Aggregator produces repository-level risk reports, consulting the report
// cache before recomputing. It is safe for concurrent use; runs for the
// same repository key are serialized so they cannot race on the cache entry.
type Aggregator struct {
	client   SourceClient
	analyzer *Analyzer
	cache    apicache.Cache
	ttl      time.Duration
	maxPRs   int

	lock     sync.Mutex
	repoLock map[string]*sync.Mutex

	now func() time.Time
}

func NewAggregator(client SourceClient, analyzer *Analyzer, reportCache apicache.Cache, cfg v1.AnalyzerConfig) *Aggregator {
	cfg = cfg.WithDefaults()
	return &Aggregator{
		client:   client,
		analyzer: analyzer,
		cache:    reportCache,
		ttl:      cfg.ReportTTL,
		maxPRs:   cfg.MaxPRs,
		repoLock: map[string]*sync.Mutex{},
		now:      time.Now,
	}
}

func reportCacheKey(owner, repo string) string {
	return fmt.Sprintf("reports~%s", risk.ReportKey(owner, repo))
}

// Report returns the repository risk report, reusing a cached report newer
// than the TTL unless opts.ForceRefresh is set. A recompute that fails
// before producing a report leaves any cached report untouched.
func (g *Aggregator) Report(ctx context.Context, owner, repo string, opts Options) (*risk.RepositoryReport, error) {
	keyLock := g.keyLock(risk.ReportKey(owner, repo))
	keyLock.Lock()
	defer keyLock.Unlock()

	rlog := log.WithFields(log.Fields{"owner": owner, "repo": repo})

	var stale *risk.RepositoryReport
	if !opts.ForceRefresh {
		if cached, err := g.Cached(ctx, owner, repo); err != nil {
			rlog.WithError(err).Warn("report cache read failed")
		} else if cached != nil {
			age := g.now().Sub(cached.AnalyzedAt)
			if age < g.ttl {
				rlog.WithField("age", age).Info("serving cached report")
				metrics.RecordCacheLookup(metrics.CacheHit)
				return cached, nil
			}
			rlog.WithField("age", age).Info("cached report is stale, recomputing")
			metrics.RecordCacheLookup(metrics.CacheStale)
			stale = cached
		} else {
			metrics.RecordCacheLookup(metrics.CacheMiss)
		}
	}

	if rl, ok := g.client.(rateLimited); ok && rl.IsWithinRateLimitThreshold(ctx) {
		if stale != nil {
			rlog.Warn("api quota is inside the rate limit threshold, serving stale cached report")
			return stale, nil
		}
		return nil, errors.Errorf("refusing to analyze %s/%s, api quota is inside the rate limit threshold", owner, repo)
	}

	started := g.now()
	maxPRs := opts.MaxPRs
	if maxPRs <= 0 {
		maxPRs = g.maxPRs
	}

	prs, err := g.client.ListPullRequests(ctx, owner, repo, opts.IncludeClosedPRs, maxPRs)
	if err != nil {
		return nil, errors.Wrapf(err, "listing pull requests for %s/%s", owner, repo)
	}
	rlog.WithField("prs", len(prs)).Info("analyzing repository pull requests")

	// Fan out one goroutine per PR; the analyzer's limiter bounds how many
	// actually fetch at once. Results keep list order, failures leave nil.
	results := make([]*risk.PullRequestAnalysis, len(prs))
	var wg sync.WaitGroup
	for i, pr := range prs {
		wg.Add(1)
		go func(i int, prNumber int) {
			defer wg.Done()
			analysis, err := g.analyzer.AnalyzePR(ctx, owner, repo, prs[i])
			metrics.RecordAnalysis(err)
			if err != nil {
				rlog.WithError(err).WithField("pr", prNumber).Warn("excluding pull request from report")
				return
			}
			results[i] = analysis
		}(i, pr.GetNumber())
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, errors.Wrapf(err, "analysis of %s/%s aborted", owner, repo)
	}

	var analyses []risk.PullRequestAnalysis
	for _, a := range results {
		if a != nil {
			analyses = append(analyses, *a)
		}
	}
	rlog.WithFields(log.Fields{"succeeded": len(analyses), "failed": len(prs) - len(analyses)}).Info("pull request analyses complete")

	report := buildReport(owner, repo, analyses, g.now())
	metrics.RecordReport(report, g.now().Sub(started))

	if err := g.persist(ctx, report); err != nil {
		rlog.WithError(err).Error("could not persist report to cache")
	}
	return report, nil
}

// Cached returns the cached report for a repository regardless of age, or
// nil when there is none.
func (g *Aggregator) Cached(ctx context.Context, owner, repo string) (*risk.RepositoryReport, error) {
	if g.cache == nil {
		return nil, nil
	}
	data, err := g.cache.Get(ctx, reportCacheKey(owner, repo))
	if err != nil || len(data) == 0 {
		return nil, err
	}
	var report risk.RepositoryReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, errors.WithMessage(err, "corrupt cached report")
	}
	return &report, nil
}

func (g *Aggregator) persist(ctx context.Context, report *risk.RepositoryReport) error {
	if g.cache == nil {
		return nil
	}
	data, err := json.Marshal(report)
	if err != nil {
		return errors.WithMessage(err, "marshalling report")
	}
	// Stored beyond the TTL so a stale report remains readable; staleness
	// is judged from AnalyzedAt, not from cache eviction.
	return g.cache.Set(ctx, reportCacheKey(report.Owner, report.Repo), data, 24*g.ttl)
}

func (g *Aggregator) keyLock(key string) *sync.Mutex {
	g.lock.Lock()
	defer g.lock.Unlock()
	mu, ok := g.repoLock[key]
	if !ok {
		mu = &sync.Mutex{}
		g.repoLock[key] = mu
	}
	return mu
}

// buildReport computes the aggregate metrics over the per-PR analyses.
func buildReport(owner, repo string, analyses []risk.PullRequestAnalysis, now time.Time) *risk.RepositoryReport {
	report := &risk.RepositoryReport{
		Owner:            owner,
		Repo:             repo,
		AnalyzedAt:       now,
		TotalPRsAnalyzed: len(analyses),
		PRAnalyses:       analyses,
	}

	var scores []float64
	for _, a := range analyses {
		scores = append(scores, a.Composite.DeliveryRiskScore)
		if a.Composite.DeliveryRiskScore >= 60 {
			report.HighRiskPRCount++
		}
		if a.Composite.DeliveryRiskScore >= 80 {
			report.CriticalRiskPRCount++
		}
	}
	if mean, err := stats.Mean(scores); err == nil {
		report.AvgDeliveryRiskScore = mean
	}

	report.TeamVelocityImpact = report.AvgDeliveryRiskScore + float64(report.CriticalRiskPRCount*10)
	if report.TeamVelocityImpact > 100 {
		report.TeamVelocityImpact = 100
	}

	switch {
	case report.CriticalRiskPRCount > 0:
		report.ReleaseRiskAssessment = releaseRiskHigh
	case float64(report.HighRiskPRCount) > float64(len(analyses))*0.3:
		report.ReleaseRiskAssessment = releaseRiskMedium
	default:
		report.ReleaseRiskAssessment = releaseRiskLow
	}

	return report
}
