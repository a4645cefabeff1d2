// Package github implements the source client against the GitHub REST API.
package github

import (
	"context"
	"net/http"
	"os"
	"strconv"

	gh "github.com/google/go-github/v45/github"
	ghauth "github.com/jferrl/go-githubauth"
	log "github.com/sirupsen/logrus"
	"github.com/tcnksm/go-gitconfig"
	"golang.org/x/oauth2"
)

// if we have fewer than this threshold remaining we will report rate limited
const rateLimitThreshold = 500

const pageSize = 100

// Client talks to GitHub. Every API call is held in an injected func so
// tests can swap in fakes without a transport.
type Client struct {
	listPRs         func(ctx context.Context, owner, repo, state string, max int) ([]*gh.PullRequest, error)
	prFetch         func(ctx context.Context, owner, repo string, number int) (*gh.PullRequest, error)
	timelineFetch   func(ctx context.Context, owner, repo string, number int) ([]*gh.Timeline, error)
	reviewsFetch    func(ctx context.Context, owner, repo string, number int) ([]*gh.PullRequestReview, error)
	reviewCmtsFetch func(ctx context.Context, owner, repo string, number int) ([]*gh.PullRequestComment, error)
	issueCmtsFetch  func(ctx context.Context, owner, repo string, number int) ([]*gh.IssueComment, error)
	commitsFetch    func(ctx context.Context, owner, repo string, number int) ([]*gh.RepositoryCommit, error)
	filesFetch      func(ctx context.Context, owner, repo string, number int) ([]*gh.CommitFile, error)
	checkRunsFetch  func(ctx context.Context, owner, repo, sha string) ([]*gh.CheckRun, error)
	issueFetch      func(ctx context.Context, owner, repo string, number int) (*gh.Issue, error)
	coreRateFetch   func(ctx context.Context) (*gh.Rate, error)
}

func New(ctx context.Context) *Client {
	client := &Client{}
	ghc := gh.NewClient(newGHAuthClient(ctx))

	client.listPRs = func(ctx context.Context, owner, repo, state string, max int) ([]*gh.PullRequest, error) {
		opts := &gh.PullRequestListOptions{
			State:       state,
			Sort:        "updated",
			Direction:   "desc",
			ListOptions: gh.ListOptions{PerPage: pageSize},
		}
		var all []*gh.PullRequest
		for {
			prs, resp, err := ghc.PullRequests.List(ctx, owner, repo, opts)
			if err != nil {
				return nil, err
			}
			all = append(all, prs...)
			if len(all) >= max || resp.NextPage == 0 {
				break
			}
			opts.Page = resp.NextPage
		}
		if len(all) > max {
			all = all[:max]
		}
		return all, nil
	}

	client.prFetch = func(ctx context.Context, owner, repo string, number int) (*gh.PullRequest, error) {
		pr, _, err := ghc.PullRequests.Get(ctx, owner, repo, number)
		return pr, err
	}

	client.timelineFetch = func(ctx context.Context, owner, repo string, number int) ([]*gh.Timeline, error) {
		events, _, err := ghc.Issues.ListIssueTimeline(ctx, owner, repo, number, &gh.ListOptions{PerPage: pageSize})
		return events, err
	}

	client.reviewsFetch = func(ctx context.Context, owner, repo string, number int) ([]*gh.PullRequestReview, error) {
		reviews, _, err := ghc.PullRequests.ListReviews(ctx, owner, repo, number, &gh.ListOptions{PerPage: pageSize})
		return reviews, err
	}

	client.reviewCmtsFetch = func(ctx context.Context, owner, repo string, number int) ([]*gh.PullRequestComment, error) {
		comments, _, err := ghc.PullRequests.ListComments(ctx, owner, repo, number, &gh.PullRequestListCommentsOptions{
			ListOptions: gh.ListOptions{PerPage: pageSize},
		})
		return comments, err
	}

	client.issueCmtsFetch = func(ctx context.Context, owner, repo string, number int) ([]*gh.IssueComment, error) {
		comments, _, err := ghc.Issues.ListComments(ctx, owner, repo, number, &gh.IssueListCommentsOptions{
			ListOptions: gh.ListOptions{PerPage: pageSize},
		})
		return comments, err
	}

	client.commitsFetch = func(ctx context.Context, owner, repo string, number int) ([]*gh.RepositoryCommit, error) {
		commits, _, err := ghc.PullRequests.ListCommits(ctx, owner, repo, number, &gh.ListOptions{PerPage: pageSize})
		return commits, err
	}

	client.filesFetch = func(ctx context.Context, owner, repo string, number int) ([]*gh.CommitFile, error) {
		files, _, err := ghc.PullRequests.ListFiles(ctx, owner, repo, number, &gh.ListOptions{PerPage: pageSize})
		return files, err
	}

	client.checkRunsFetch = func(ctx context.Context, owner, repo, sha string) ([]*gh.CheckRun, error) {
		results, _, err := ghc.Checks.ListCheckRunsForRef(ctx, owner, repo, sha, &gh.ListCheckRunsOptions{
			ListOptions: gh.ListOptions{PerPage: pageSize},
		})
		if err != nil || results == nil {
			return nil, err
		}
		return results.CheckRuns, nil
	}

	client.issueFetch = func(ctx context.Context, owner, repo string, number int) (*gh.Issue, error) {
		issue, _, err := ghc.Issues.Get(ctx, owner, repo, number)
		return issue, err
	}

	client.coreRateFetch = func(ctx context.Context) (*gh.Rate, error) {
		rateLimits, _, err := ghc.RateLimits(ctx)
		if err != nil {
			return nil, err
		}
		if rateLimits == nil {
			return nil, nil
		}
		return rateLimits.Core, nil
	}

	return client
}

func newGHAuthClient(ctx context.Context) *http.Client {
	if tokenSource := newAppTokenSource(); tokenSource != nil {
		installationID, err := strconv.ParseInt(os.Getenv("GITHUB_APP_INSTALLATION_ID"), 10, 64)
		if err != nil {
			log.WithError(err).Warn("GITHUB_APP_INSTALLATION_ID is unset or invalid, will not authenticate as GitHub App")
		} else {
			// self-renewing installation token source
			installationTokenSource := ghauth.NewInstallationTokenSource(installationID, tokenSource, ghauth.WithContext(ctx))
			log.Info("using GitHub App credentials")
			return oauth2.NewClient(ctx, installationTokenSource)
		}
	}

	// no app creds, try to use a personal access token
	token := os.Getenv("GITHUB_TOKEN")
	if token == "" {
		log.Info("No GitHub token environment variable, checking git config")
		var err error
		token, err = gitconfig.GithubToken()
		if err != nil {
			log.WithError(err).Warningf("unable to retrieve GitHub token from git config")
		}
	}
	if token != "" {
		log.Info("using GitHub access token")
		ts := oauth2.StaticTokenSource(
			&oauth2.Token{AccessToken: token},
		)
		return oauth2.NewClient(ctx, ts)
	}

	// make a no-auth client if no token is available
	log.Warning("using unauthenticated GitHub client, requests will be rate-limited")
	return nil
}

func newAppTokenSource() oauth2.TokenSource {
	privateKey := os.Getenv("GITHUB_APP_CLIENT_KEY")
	if privateKey == "" {
		return nil
	}
	appID, err := strconv.ParseInt(os.Getenv("GITHUB_APP_ID"), 10, 64)
	if err != nil {
		log.WithError(err).Warn("GITHUB_APP_ID is unset or invalid, will not authenticate as GitHub App")
		return nil
	}
	appTokenSource, err := ghauth.NewApplicationTokenSource(appID, []byte(privateKey))
	if err != nil {
		log.Errorf("Error creating application token source: %s", err)
		return nil
	}
	return appTokenSource
}

func (c *Client) ListPullRequests(ctx context.Context, owner, repo string, includeClosed bool, max int) ([]*gh.PullRequest, error) {
	state := "open"
	if includeClosed {
		state = "all"
	}
	return c.listPRs(ctx, owner, repo, state, max)
}

func (c *Client) GetPullRequest(ctx context.Context, owner, repo string, number int) (*gh.PullRequest, error) {
	return c.prFetch(ctx, owner, repo, number)
}

func (c *Client) ListTimeline(ctx context.Context, owner, repo string, number int) ([]*gh.Timeline, error) {
	return c.timelineFetch(ctx, owner, repo, number)
}

func (c *Client) ListReviews(ctx context.Context, owner, repo string, number int) ([]*gh.PullRequestReview, error) {
	return c.reviewsFetch(ctx, owner, repo, number)
}

func (c *Client) ListReviewComments(ctx context.Context, owner, repo string, number int) ([]*gh.PullRequestComment, error) {
	return c.reviewCmtsFetch(ctx, owner, repo, number)
}

func (c *Client) ListIssueComments(ctx context.Context, owner, repo string, number int) ([]*gh.IssueComment, error) {
	return c.issueCmtsFetch(ctx, owner, repo, number)
}

func (c *Client) ListCommits(ctx context.Context, owner, repo string, number int) ([]*gh.RepositoryCommit, error) {
	return c.commitsFetch(ctx, owner, repo, number)
}

func (c *Client) ListFiles(ctx context.Context, owner, repo string, number int) ([]*gh.CommitFile, error) {
	return c.filesFetch(ctx, owner, repo, number)
}

func (c *Client) ListCheckRuns(ctx context.Context, owner, repo, sha string) ([]*gh.CheckRun, error) {
	return c.checkRunsFetch(ctx, owner, repo, sha)
}

func (c *Client) GetIssue(ctx context.Context, owner, repo string, number int) (*gh.Issue, error) {
	return c.issueFetch(ctx, owner, repo, number)
}

// ListPullRequestsByAuthor scans the repository's most recent PRs and keeps
// the author's. The REST list endpoint has no author filter, so this is a
// client-side filter over one page window.
func (c *Client) ListPullRequestsByAuthor(ctx context.Context, owner, repo, author string, max int) ([]*gh.PullRequest, error) {
	prs, err := c.listPRs(ctx, owner, repo, "all", max)
	if err != nil {
		return nil, err
	}
	var authored []*gh.PullRequest
	for _, pr := range prs {
		if pr.GetUser().GetLogin() == author {
			authored = append(authored, pr)
		}
	}
	return authored, nil
}

// IsWithinRateLimitThreshold reports whether the remaining core API quota
// has dropped inside the threshold, meaning new runs should be refused.
func (c *Client) IsWithinRateLimitThreshold(ctx context.Context) bool {
	rate, err := c.coreRateFetch(ctx)
	if err != nil {
		// presume we are rate limited if we can't even get the rate limit
		return true
	}
	if rate == nil {
		return true
	}

	log.Infof("GitHub Limit:%d, Remaining:%d", rate.Limit, rate.Remaining)
	return rate.Remaining < rateLimitThreshold
}
