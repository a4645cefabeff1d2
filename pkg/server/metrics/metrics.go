// Package metrics exposes the engine's Prometheus collectors. Collectors
// register on the default registry at import time and are served from the
// /metrics endpoint.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/prradar/prradar/pkg/apis/risk"
)

const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheStale = "stale"
)

var (
	reportCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "prradar_report_cache_lookups_total",
		Help: "Repository report cache lookups by outcome.",
	}, []string{"result"})

	prAnalyses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "prradar_pr_analyses_total",
		Help: "Individual pull request analyses by outcome.",
	}, []string{"result"})

	reportGenerationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "prradar_report_generation_seconds",
		Help:    "Wall time to produce a repository risk report.",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	})

	repoRiskScore = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "prradar_repo_avg_delivery_risk_score",
		Help: "Average delivery risk score from the latest repository report.",
	}, []string{"owner", "repo"})

	repoHighRiskPRs = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "prradar_repo_high_risk_prs",
		Help: "High risk PR count from the latest repository report.",
	}, []string{"owner", "repo"})

	repoCriticalRiskPRs = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "prradar_repo_critical_risk_prs",
		Help: "Critical risk PR count from the latest repository report.",
	}, []string{"owner", "repo"})
)

func RecordCacheLookup(result string) {
	reportCacheLookups.WithLabelValues(result).Inc()
}

func RecordAnalysis(err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	prAnalyses.WithLabelValues(result).Inc()
}

// RecordReport publishes the latest report aggregates for a repository.
func RecordReport(report *risk.RepositoryReport, took time.Duration) {
	reportGenerationSeconds.Observe(took.Seconds())
	repoRiskScore.WithLabelValues(report.Owner, report.Repo).Set(report.AvgDeliveryRiskScore)
	repoHighRiskPRs.WithLabelValues(report.Owner, report.Repo).Set(float64(report.HighRiskPRCount))
	repoCriticalRiskPRs.WithLabelValues(report.Owner, report.Repo).Set(float64(report.CriticalRiskPRCount))
}
