package analysis

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	gh "github.com/google/go-github/v45/github"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"

	v1 "github.com/prradar/prradar/pkg/apis/config/v1"
	"github.com/prradar/prradar/pkg/apis/risk"
)

var (
	// Indicators scanned for in commit messages and labels. Label matching is
	// substring based, so "release-blocker" matches both release and blocker.
	rebaseIndicators     = []string{"rebase", "force", "amend"}
	regressionIndicators = []string{"fix", "bug", "regression", "revert", "rollback"}
	releaseIndicators    = []string{"release", "milestone", "version", "v", "hotfix", "patch"}
	priorityKeywords     = []string{"critical", "high", "medium", "low", "priority", "urgent", "blocker"}
	coreIndicators       = []string{"core", "api", "auth", "security", "payment", "database", "infrastructure"}
	serviceIndicators    = []string{
		"api", "service", "library", "package", "dependency", "integration",
		"aws", "azure", "gcp", "firebase", "stripe", "twilio", "sendgrid",
	}
	testFileIndicators = []string{"test", "spec", "__tests__"}

	codeFileExts   = []string{".py", ".js", ".ts", ".jsx", ".tsx", ".java", ".go"}
	configFileExts = []string{".json", ".yaml", ".yml", ".toml", ".lock"}

	linkedIssueRE = regexp.MustCompile(`(?i)(?:closes|fixes|resolves|close|fix|resolve)\s+#(\d+)`)
	bareIssueRE   = regexp.MustCompile(`#(\d+)`)
)

// extractor turns raw source-host records into metric structs. All of its
// methods are deterministic given the records and the supplied clock reading.
type extractor struct {
	criticalPaths []string
	apiPatterns   []*regexp.Regexp
}

func newExtractor(cfg v1.AnalyzerConfig) (*extractor, error) {
	e := &extractor{criticalPaths: cfg.CriticalPaths}
	for _, p := range cfg.ExternalAPIPatterns {
		re, err := regexp.Compile(`(?i)` + p)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid external API pattern %q", p)
		}
		e.apiPatterns = append(e.apiPatterns, re)
	}
	return e, nil
}

func (e *extractor) stucknessMetrics(recs *prRecords, now time.Time) risk.StucknessMetrics {
	pr := recs.pr
	created := pr.GetCreatedAt()
	updated := pr.GetUpdatedAt()

	m := risk.StucknessMetrics{
		TimeSinceLastActivityHours: now.Sub(updated).Hours(),
		PRAgeDays:                  now.Sub(created).Hours() / 24,
	}

	// A review comment with no parent opens a thread; without resolution
	// data from the host every open thread counts as unresolved.
	for _, c := range recs.reviewComments {
		if c.InReplyTo == nil {
			m.UnresolvedReviewThreads++
		}
	}

	for _, run := range recs.checkRuns {
		if run.GetConclusion() == "failure" {
			m.FailedCIChecks++
		}
	}

	// The reviewer wait clock starts at the author's last visible action.
	lastAuthorActivity := updated
	author := pr.GetUser().GetLogin()
	for _, ev := range recs.timeline {
		if ev.GetActor().GetLogin() != author {
			continue
		}
		if t := ev.GetCreatedAt(); t.After(lastAuthorActivity) {
			lastAuthorActivity = t
		}
	}
	m.TimeWaitingForReviewerHours = now.Sub(lastAuthorActivity).Hours()

	for _, c := range recs.commits {
		msg := strings.ToLower(c.GetCommit().GetMessage())
		if containsAny(msg, rebaseIndicators) {
			m.RebaseForcePushCount++
		}
	}

	if len(recs.reviewComments) > 0 {
		recent := 0
		cutoff := now.Add(-3 * 24 * time.Hour)
		for _, c := range recs.reviewComments {
			if c.GetCreatedAt().After(cutoff) {
				recent++
			}
		}
		m.CommentVelocityDecay = 1.0 - float64(recent)/float64(len(recs.reviewComments))
	}

	m.LinkedIssueStaleTimeHours = linkedIssueStaleHours(recs.linkedIssues, now)

	return m
}

// linkedIssueStaleHours averages the time since last update across linked
// issues that are still open. Closed issues no longer block anything.
func linkedIssueStaleHours(issues []*gh.Issue, now time.Time) float64 {
	var total float64
	var open int
	for _, iss := range issues {
		if iss.GetState() != "open" {
			continue
		}
		open++
		total += now.Sub(iss.GetUpdatedAt()).Hours()
	}
	if open == 0 {
		return 0
	}
	return total / float64(open)
}

func (e *extractor) blastRadiusMetrics(recs *prRecords) risk.BlastRadiusMetrics {
	pr := recs.pr
	m := risk.BlastRadiusMetrics{
		LinesAdded:   pr.GetAdditions(),
		LinesRemoved: pr.GetDeletions(),
		FilesChanged: pr.GetChangedFiles(),
	}

	for _, f := range recs.files {
		if e.criticalPathTouched(f.GetFilename()) {
			m.CriticalPathTouched = true
			break
		}
	}

	// Half-point weighting: code files count double, config files single,
	// everything else half. Summed in half points to stay integral.
	if m.FilesChanged > 0 {
		halfPoints := 0
		for _, f := range recs.files {
			name := f.GetFilename()
			switch {
			case hasAnySuffix(name, codeFileExts):
				halfPoints += 4
			case hasAnySuffix(name, configFileExts):
				halfPoints += 2
			default:
				halfPoints++
			}
		}
		m.DownstreamDependencies = halfPoints / 2
		if m.DownstreamDependencies > 50 {
			m.DownstreamDependencies = 50
		}
	}

	m.TestCoverageDelta = testCoverageDelta(recs.files)

	if len(recs.commits) > 0 {
		indicators := 0
		for _, c := range recs.commits {
			msg := strings.ToLower(c.GetCommit().GetMessage())
			if containsAny(msg, regressionIndicators) {
				indicators++
			}
		}
		m.HistoricalRegressionRisk = float64(indicators) * 0.1
		if m.HistoricalRegressionRisk > 1.0 {
			m.HistoricalRegressionRisk = 1.0
		}
	}

	return m
}

// testCoverageDelta estimates the signed change in test coverage, in
// percentage points, from the share of changed lines that land in test files.
// A PR deleting tests while adding code comes out negative.
func testCoverageDelta(files []*gh.CommitFile) float64 {
	var testDelta, totalChanged int
	for _, f := range files {
		totalChanged += f.GetAdditions() + f.GetDeletions()
		if containsAny(strings.ToLower(f.GetFilename()), testFileIndicators) {
			testDelta += f.GetAdditions() - f.GetDeletions()
		}
	}
	if totalChanged == 0 {
		return 0
	}
	return float64(testDelta) / float64(totalChanged) * 100
}

func (e *extractor) dynamicsMetrics(recs *prRecords) risk.DynamicsMetrics {
	pr := recs.pr
	created := pr.GetCreatedAt()

	m := risk.DynamicsMetrics{
		AuthorExperienceScore: authorExperience(recs.authorPRs, created),
	}

	m.ReviewerLoad = len(pr.RequestedReviewers) + len(pr.Assignees)
	if m.ReviewerLoad == 0 {
		// No explicit reviewers yet; estimate from size.
		switch size := pr.GetAdditions() + pr.GetDeletions(); {
		case size > 1000:
			m.ReviewerLoad = 3
		case size > 500:
			m.ReviewerLoad = 2
		default:
			m.ReviewerLoad = 1
		}
	}

	var approved, changesRequested int
	for _, r := range recs.reviews {
		switch r.GetState() {
		case "APPROVED":
			approved++
		case "CHANGES_REQUESTED":
			changesRequested++
		}
	}
	if len(recs.reviews) > 0 {
		m.ApprovalRatio = float64(approved) / float64(len(recs.reviews))
		if changesRequested > 0 {
			m.ApprovalRatio *= 0.8
		}
	} else {
		m.ApprovalRatio = 1.0
	}

	var reviewHours []float64
	for _, r := range recs.reviews {
		if r.SubmittedAt == nil {
			continue
		}
		if h := r.GetSubmittedAt().Sub(created).Hours(); h > 0 {
			reviewHours = append(reviewHours, h)
		}
	}
	if mean, err := stats.Mean(reviewHours); err == nil {
		m.AvgReviewTimeHours = mean
	}

	for _, p := range recs.authorPRs {
		if p.MergedAt != nil {
			m.AuthorMergeHistory++
		}
	}

	return m
}

// authorExperience scores the author's track record in the repository on a
// 0-100 scale from merge rate, PR volume, recent activity, and typical size.
func authorExperience(authorPRs []*gh.PullRequest, currentPRCreated time.Time) float64 {
	if len(authorPRs) == 0 {
		return 0
	}

	var merged []*gh.PullRequest
	for _, p := range authorPRs {
		if p.MergedAt != nil {
			merged = append(merged, p)
		}
	}
	mergeRate := float64(len(merged)) / float64(len(authorPRs))

	countScore := float64(len(authorPRs) * 5)
	if countScore > 50 {
		countScore = 50
	}

	recent := 0
	cutoff := currentPRCreated.Add(-90 * 24 * time.Hour)
	for _, p := range authorPRs {
		if p.GetCreatedAt().After(cutoff) {
			recent++
		}
	}
	recencyScore := float64(recent * 10)
	if recencyScore > 30 {
		recencyScore = 30
	}

	// Smaller merged PRs correlate with review discipline.
	var sizeScore float64
	if len(merged) > 0 {
		totalSize := 0
		for _, p := range merged {
			totalSize += p.GetAdditions() + p.GetDeletions()
		}
		switch avg := float64(totalSize) / float64(len(merged)); {
		case avg < 100:
			sizeScore = 20
		case avg < 500:
			sizeScore = 15
		case avg < 1000:
			sizeScore = 10
		}
	}

	total := mergeRate*30 + countScore + recencyScore + sizeScore
	if total > 100 {
		total = 100
	}
	return total
}

func (e *extractor) businessImpactMetrics(recs *prRecords) risk.BusinessImpactMetrics {
	pr := recs.pr

	var labelNames []string
	for _, l := range pr.Labels {
		labelNames = append(labelNames, strings.ToLower(l.GetName()))
	}

	m := risk.BusinessImpactMetrics{}

	for _, name := range labelNames {
		if containsAny(name, releaseIndicators) {
			m.LinkedToRelease = true
			break
		}
	}
	if !m.LinkedToRelease && pr.Milestone != nil {
		m.LinkedToRelease = true
	}

	for _, name := range labelNames {
		if containsAny(name, priorityKeywords) {
			m.PriorityLabel = name
			break
		}
	}

	for _, name := range labelNames {
		if containsAny(name, coreIndicators) {
			m.AffectsCoreFunctionality = true
			break
		}
	}

	m.ExternalDependencies = e.countExternalDependencies(recs.files, pr.GetBody())

	return m
}

// countExternalDependencies sums unique external API pattern matches across
// patches and the PR description, changed code files, and third-party
// service mentions in the description.
func (e *extractor) countExternalDependencies(files []*gh.CommitFile, body string) int {
	var sb strings.Builder
	for _, f := range files {
		sb.WriteString(f.GetPatch())
		sb.WriteString(" ")
	}
	sb.WriteString(body)
	combined := sb.String()

	count := 0
	for _, re := range e.apiPatterns {
		seen := map[string]bool{}
		for _, match := range re.FindAllString(combined, -1) {
			seen[match] = true
		}
		count += len(seen)
	}

	for _, f := range files {
		if hasAnySuffix(f.GetFilename(), codeFileExts) {
			count++
		}
	}

	bodyLower := strings.ToLower(body)
	for _, ind := range serviceIndicators {
		if strings.Contains(bodyLower, ind) {
			count++
		}
	}

	return count
}

func (e *extractor) criticalPathTouched(filename string) bool {
	for _, p := range e.criticalPaths {
		if strings.Contains(filename, p) {
			return true
		}
	}
	return false
}

// linkedIssueNumbers pulls referenced issue numbers from the PR description
// and comment bodies, both explicit keyword links and bare #N mentions.
func linkedIssueNumbers(body string, comments []string) []int {
	var sb strings.Builder
	sb.WriteString(body)
	for _, c := range comments {
		sb.WriteString(" ")
		sb.WriteString(c)
	}
	text := sb.String()

	seen := map[int]bool{}
	for _, re := range []*regexp.Regexp{linkedIssueRE, bareIssueRE} {
		for _, match := range re.FindAllStringSubmatch(text, -1) {
			if n, err := strconv.Atoi(match[1]); err == nil && n > 0 {
				seen[n] = true
			}
		}
	}

	numbers := make([]int, 0, len(seen))
	for n := range seen {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)
	return numbers
}

func containsAny(s string, indicators []string) bool {
	for _, ind := range indicators {
		if strings.Contains(s, ind) {
			return true
		}
	}
	return false
}

func hasAnySuffix(s string, suffixes []string) bool {
	for _, suf := range suffixes {
		if strings.HasSuffix(s, suf) {
			return true
		}
	}
	return false
}
