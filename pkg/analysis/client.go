// Package analysis implements the delivery risk engine: per-PR analysis
// with concurrent sub-resource fan-out, and repository-level aggregation
// with a cached report per repository.
package analysis

import (
	"context"

	gh "github.com/google/go-github/v45/github"
)

// SourceClient is everything the engine needs from the source code host.
// Every method is read-only and may fail with a transport error; the engine
// treats such failures as "no data" at the sub-resource level, never as a
// fatal abort (the repository PR listing is the one exception, see
// Aggregator.Report).
type SourceClient interface {
	// ListPullRequests returns up to max PRs for the repository, most
	// recently updated first. When includeClosed is false only open PRs
	// are returned.
	ListPullRequests(ctx context.Context, owner, repo string, includeClosed bool, max int) ([]*gh.PullRequest, error)

	// GetPullRequest fetches the authoritative PR record including the
	// addition/deletion/changed-file statistics the list call omits.
	GetPullRequest(ctx context.Context, owner, repo string, number int) (*gh.PullRequest, error)

	ListTimeline(ctx context.Context, owner, repo string, number int) ([]*gh.Timeline, error)
	ListReviews(ctx context.Context, owner, repo string, number int) ([]*gh.PullRequestReview, error)
	ListReviewComments(ctx context.Context, owner, repo string, number int) ([]*gh.PullRequestComment, error)
	ListIssueComments(ctx context.Context, owner, repo string, number int) ([]*gh.IssueComment, error)
	ListCommits(ctx context.Context, owner, repo string, number int) ([]*gh.RepositoryCommit, error)
	ListFiles(ctx context.Context, owner, repo string, number int) ([]*gh.CommitFile, error)

	// ListCheckRuns returns the CI check runs for a commit SHA.
	ListCheckRuns(ctx context.Context, owner, repo, sha string) ([]*gh.CheckRun, error)

	// GetIssue fetches a single issue, used to resolve linked issues.
	GetIssue(ctx context.Context, owner, repo string, number int) (*gh.Issue, error)

	// ListPullRequestsByAuthor returns the author's PR history in the
	// repository, newest first, for experience scoring.
	ListPullRequestsByAuthor(ctx context.Context, owner, repo, author string, max int) ([]*gh.PullRequest, error)
}

// prRecords is the joined result of one PR's sub-resource fan-out. A fetch
// that failed leaves its field empty; the zero value of every field is a
// valid "no data" answer.
type prRecords struct {
	pr             *gh.PullRequest
	timeline       []*gh.Timeline
	reviews        []*gh.PullRequestReview
	reviewComments []*gh.PullRequestComment
	issueComments  []*gh.IssueComment
	commits        []*gh.RepositoryCommit
	files          []*gh.CommitFile
	checkRuns      []*gh.CheckRun
	authorPRs      []*gh.PullRequest
	linkedIssues   []*gh.Issue
}
