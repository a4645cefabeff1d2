package server

import (
	"encoding/json"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/prradar/prradar/pkg/analysis"
	"github.com/prradar/prradar/pkg/apis/risk"
	"github.com/prradar/prradar/pkg/util/param"
)

var repoPathRegexp = regexp.MustCompile(`^[-.\w]+$`)

const defaultSummaryTopPRs = 5

type analyzeRequest struct {
	Owner            string `json:"owner"`
	Repo             string `json:"repo"`
	ForceRefresh     bool   `json:"force_refresh"`
	IncludeClosedPRs bool   `json:"include_closed_prs"`
	MaxPRs           int    `json:"max_prs"`
}

func (s *Server) analyzeRepository(w http.ResponseWriter, req *http.Request) {
	var body analyzeRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		failureResponse(w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return
	}
	if !repoPathRegexp.MatchString(body.Owner) || !repoPathRegexp.MatchString(body.Repo) {
		failureResponse(w, http.StatusBadRequest, "owner and repo are required")
		return
	}

	report, err := s.reporter.Report(req.Context(), body.Owner, body.Repo, analysis.Options{
		IncludeClosedPRs: body.IncludeClosedPRs,
		MaxPRs:           body.MaxPRs,
		ForceRefresh:     body.ForceRefresh,
	})
	if err != nil {
		log.WithError(err).WithField("owner", body.Owner).WithField("repo", body.Repo).
			Error("repository analysis failed")
		failureResponse(w, http.StatusBadGateway, "Analysis failed: "+err.Error())
		return
	}
	RespondWithJSON(http.StatusOK, w, report)
}

func (s *Server) repositoryReport(w http.ResponseWriter, req *http.Request) {
	report, ok := s.reportOrFail(w, req)
	if !ok {
		return
	}
	RespondWithJSON(http.StatusOK, w, report)
}

func (s *Server) repositorySummary(w http.ResponseWriter, req *http.Request) {
	report, ok := s.reportOrFail(w, req)
	if !ok {
		return
	}

	limit := defaultSummaryTopPRs
	if v := param.SafeRead(req, "limit"); v != "" {
		limit, _ = strconv.Atoi(v)
	}
	RespondWithJSON(http.StatusOK, w, summaryFor(report, limit))
}

func (s *Server) listPullRequests(w http.ResponseWriter, req *http.Request) {
	report, ok := s.reportOrFail(w, req)
	if !ok {
		return
	}

	minScore := 0.0
	switch risk.Level(param.SafeRead(req, "min_risk_level")) {
	case risk.LevelMedium:
		minScore = 40
	case risk.LevelHigh:
		minScore = 60
	case risk.LevelCritical:
		minScore = 80
	}

	items := []risk.ListItem{}
	for _, a := range report.PRAnalyses {
		if a.Composite.DeliveryRiskScore >= minScore {
			items = append(items, risk.ListItemFor(a))
		}
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].DeliveryRiskScore > items[j].DeliveryRiskScore
	})
	RespondWithJSON(http.StatusOK, w, items)
}

func (s *Server) pullRequestAnalysis(w http.ResponseWriter, req *http.Request) {
	report, ok := s.reportOrFail(w, req)
	if !ok {
		return
	}

	number, err := strconv.Atoi(mux.Vars(req)["number"])
	if err != nil {
		failureResponse(w, http.StatusBadRequest, "Invalid PR number")
		return
	}
	for i := range report.PRAnalyses {
		if report.PRAnalyses[i].Number == number {
			RespondWithJSON(http.StatusOK, w, report.PRAnalyses[i])
			return
		}
	}
	failureResponse(w, http.StatusNotFound, "PR not found in the repository report")
}

// reportOrFail resolves the repository report for a GET request. A cached
// report of any age answers immediately; otherwise a fresh analysis runs.
func (s *Server) reportOrFail(w http.ResponseWriter, req *http.Request) (*risk.RepositoryReport, bool) {
	vars := mux.Vars(req)
	owner, repo := vars["owner"], vars["repo"]
	if !repoPathRegexp.MatchString(owner) || !repoPathRegexp.MatchString(repo) {
		failureResponse(w, http.StatusBadRequest, "invalid owner or repo")
		return nil, false
	}

	forceRefresh := isTrue(param.SafeRead(req, "force_refresh"))
	if !forceRefresh {
		report, err := s.reporter.Cached(req.Context(), owner, repo)
		if err != nil {
			log.WithError(err).Warn("report cache read failed")
		}
		if report != nil {
			return report, true
		}
	}

	opts := analysis.Options{
		IncludeClosedPRs: isTrue(param.SafeRead(req, "include_closed_prs")),
		ForceRefresh:     forceRefresh,
	}
	if v := param.SafeRead(req, "max_prs"); v != "" {
		opts.MaxPRs, _ = strconv.Atoi(v)
	}

	report, err := s.reporter.Report(req.Context(), owner, repo, opts)
	if err != nil {
		log.WithError(err).WithField("owner", owner).WithField("repo", repo).
			Error("repository analysis failed")
		failureResponse(w, http.StatusBadGateway, "Analysis failed: "+err.Error())
		return nil, false
	}
	return report, true
}

func summaryFor(report *risk.RepositoryReport, limit int) risk.DashboardSummary {
	summary := risk.DashboardSummary{
		TotalPRs:           report.TotalPRsAnalyzed,
		HighRiskCount:      report.HighRiskPRCount,
		CriticalRiskCount:  report.CriticalRiskPRCount,
		AvgRiskScore:       report.AvgDeliveryRiskScore,
		TeamVelocityImpact: report.TeamVelocityImpact,
		TopRiskPRs:         []risk.ListItem{},
		RiskDistribution: map[risk.Level]int{
			risk.LevelLow:      0,
			risk.LevelMedium:   0,
			risk.LevelHigh:     0,
			risk.LevelCritical: 0,
		},
	}

	for _, a := range report.PRAnalyses {
		summary.RiskDistribution[a.Composite.RiskLevel]++
		summary.TopRiskPRs = append(summary.TopRiskPRs, risk.ListItemFor(a))
	}
	sort.SliceStable(summary.TopRiskPRs, func(i, j int) bool {
		return summary.TopRiskPRs[i].DeliveryRiskScore > summary.TopRiskPRs[j].DeliveryRiskScore
	})
	if limit > 0 && len(summary.TopRiskPRs) > limit {
		summary.TopRiskPRs = summary.TopRiskPRs[:limit]
	}
	return summary
}

func isTrue(v string) bool {
	switch strings.ToLower(v) {
	case "true", "1":
		return true
	}
	return false
}
