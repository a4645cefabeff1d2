package analysis

import (
	"context"
	"sync"
	"time"

	gh "github.com/google/go-github/v45/github"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	v1 "github.com/prradar/prradar/pkg/apis/config/v1"
	"github.com/prradar/prradar/pkg/apis/risk"
	"github.com/prradar/prradar/pkg/scoring"
	"github.com/prradar/prradar/pkg/util"
)

const (
	// authorHistoryMax bounds the author PR history fetch; 100 PRs is
	// plenty to saturate the experience score.
	authorHistoryMax = 100

	// maxLinkedIssues bounds linked-issue resolution so a PR body full of
	// #N references cannot fan out into hundreds of issue fetches.
	maxLinkedIssues = 10

	issueFetchDelay = 100 * time.Millisecond
)

// Analyzer produces a complete risk analysis for one PR at a time. A single
// Analyzer is shared across requests; its limiter bounds how many PR
// fetch-groups are in flight process-wide.
type Analyzer struct {
	client SourceClient
	ex     *extractor

	// limiter holds one token per outstanding fetch-group. Acquiring
	// blocks, so callers queue instead of piling load onto the host.
	limiter chan struct{}

	// now is replaced in tests to pin metric extraction to a fixed clock.
	now func() time.Time
}

func NewAnalyzer(client SourceClient, cfg v1.AnalyzerConfig) (*Analyzer, error) {
	cfg = cfg.WithDefaults()
	ex, err := newExtractor(cfg)
	if err != nil {
		return nil, err
	}
	return &Analyzer{
		client:  client,
		ex:      ex,
		limiter: make(chan struct{}, cfg.ConcurrentAnalyses),
		now:     time.Now,
	}, nil
}

// AnalyzePR runs the full fan-out and scoring for one PR. Every sub-resource
// fetch is independent: a failure is logged and its records default to
// empty, biasing the affected dimension toward lower risk rather than
// aborting the analysis. The only fatal condition is a PR record without an
// identity to score.
func (a *Analyzer) AnalyzePR(ctx context.Context, owner, repo string, pr *gh.PullRequest) (*risk.PullRequestAnalysis, error) {
	if pr == nil || pr.Number == nil {
		return nil, errors.New("pull request record has no identity")
	}
	number := pr.GetNumber()

	select {
	case a.limiter <- struct{}{}:
		defer func() { <-a.limiter }()
	case <-ctx.Done():
		return nil, errors.Wrapf(ctx.Err(), "waiting to analyze PR #%d", number)
	}

	plog := log.WithFields(log.Fields{"owner": owner, "repo": repo, "pr": number})
	plog.Debug("analyzing pull request")

	recs := a.fetchRecords(ctx, plog, owner, repo, pr)

	if recs.pr.CreatedAt == nil || recs.pr.GetUser().GetLogin() == "" {
		return nil, errors.Errorf("PR #%d record is missing author or creation time", number)
	}

	now := a.now()
	analysis := &risk.PullRequestAnalysis{
		Number:     number,
		Title:      recs.pr.GetTitle(),
		Author:     recs.pr.GetUser().GetLogin(),
		State:      prState(recs.pr),
		CreatedAt:  recs.pr.GetCreatedAt(),
		UpdatedAt:  recs.pr.GetUpdatedAt(),
		URL:        recs.pr.GetHTMLURL(),
		AnalyzedAt: now,
	}

	analysis.Stuckness = a.ex.stucknessMetrics(recs, now)
	analysis.BlastRadius = a.ex.blastRadiusMetrics(recs)
	analysis.Dynamics = a.ex.dynamicsMetrics(recs)
	analysis.BusinessImpact = a.ex.businessImpactMetrics(recs)
	analysis.Composite = scoring.Score(analysis)
	analysis.Details = detailedInfo(recs)

	plog.WithField("score", analysis.Composite.DeliveryRiskScore).Debug("analysis complete")
	return analysis, nil
}

// fetchRecords runs the sub-resource fan-out. Each fetch writes a distinct
// field of the result, so the goroutines share nothing but the WaitGroup.
func (a *Analyzer) fetchRecords(ctx context.Context, plog *log.Entry, owner, repo string, listed *gh.PullRequest) *prRecords {
	number := listed.GetNumber()
	recs := &prRecords{pr: listed}

	var wg sync.WaitGroup
	fetch := func(name string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil {
				plog.WithError(err).WithField("resource", name).Warn("fetch failed, defaulting to empty")
			}
		}()
	}

	fetch("pull", func() error {
		// The list record lacks addition/deletion statistics; prefer the
		// full record but keep the listed one on failure.
		full, err := a.client.GetPullRequest(ctx, owner, repo, number)
		if err == nil && full != nil {
			recs.pr = full
		}
		return err
	})
	fetch("timeline", func() (err error) {
		recs.timeline, err = a.client.ListTimeline(ctx, owner, repo, number)
		return
	})
	fetch("reviews", func() (err error) {
		recs.reviews, err = a.client.ListReviews(ctx, owner, repo, number)
		return
	})
	fetch("review_comments", func() (err error) {
		recs.reviewComments, err = a.client.ListReviewComments(ctx, owner, repo, number)
		return
	})
	fetch("issue_comments", func() (err error) {
		recs.issueComments, err = a.client.ListIssueComments(ctx, owner, repo, number)
		return
	})
	fetch("commits", func() (err error) {
		recs.commits, err = a.client.ListCommits(ctx, owner, repo, number)
		return
	})
	fetch("files", func() (err error) {
		recs.files, err = a.client.ListFiles(ctx, owner, repo, number)
		return
	})
	fetch("check_runs", func() error {
		sha := listed.GetHead().GetSHA()
		if sha == "" {
			return nil
		}
		runs, err := a.client.ListCheckRuns(ctx, owner, repo, sha)
		recs.checkRuns = runs
		return err
	})
	if author := listed.GetUser().GetLogin(); author != "" {
		fetch("author_history", func() (err error) {
			recs.authorPRs, err = a.client.ListPullRequestsByAuthor(ctx, owner, repo, author, authorHistoryMax)
			return
		})
	}
	wg.Wait()

	a.resolveLinkedIssues(ctx, plog, owner, repo, recs)
	return recs
}

// resolveLinkedIssues runs after the join because it needs the PR body and
// comment bodies to know which issues to look up.
func (a *Analyzer) resolveLinkedIssues(ctx context.Context, plog *log.Entry, owner, repo string, recs *prRecords) {
	var bodies []string
	for _, c := range recs.issueComments {
		bodies = append(bodies, c.GetBody())
	}
	for _, c := range recs.reviewComments {
		bodies = append(bodies, c.GetBody())
	}

	numbers := linkedIssueNumbers(recs.pr.GetBody(), bodies)
	if len(numbers) > maxLinkedIssues {
		numbers = numbers[:maxLinkedIssues]
	}
	if len(numbers) == 0 {
		return
	}

	// Issue lookups are sequential with an adaptive delay; failures back
	// the rate off instead of aborting the analysis.
	limiter := util.NewRateLimiter(issueFetchDelay)
	defer limiter.Close()
	for _, n := range numbers {
		if n == recs.pr.GetNumber() {
			continue
		}
		limiter.Tick()
		issue, err := a.client.GetIssue(ctx, owner, repo, n)
		limiter.UpdateRate(err != nil)
		if err != nil {
			plog.WithError(err).WithField("issue", n).Warn("could not resolve linked issue")
			continue
		}
		if issue != nil {
			recs.linkedIssues = append(recs.linkedIssues, issue)
		}
	}
}

func prState(pr *gh.PullRequest) risk.PullRequestState {
	if pr.MergedAt != nil {
		return risk.PullRequestMerged
	}
	if pr.GetState() == "closed" {
		return risk.PullRequestClosed
	}
	return risk.PullRequestOpen
}
