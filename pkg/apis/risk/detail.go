package risk

import "time"

// FileChange describes one file touched by a PR.
type FileChange struct {
	Filename         string `json:"filename"`
	Status           string `json:"status"`
	Additions        int    `json:"additions"`
	Deletions        int    `json:"deletions"`
	Changes          int    `json:"changes"`
	Patch            string `json:"patch,omitempty"`
	BlobURL          string `json:"blob_url,omitempty"`
	PreviousFilename string `json:"previous_filename,omitempty"`
}

// CICheckRun is a single CI check run against the PR's head commit.
type CICheckRun struct {
	Name        string     `json:"name"`
	Status      string     `json:"status"`
	Conclusion  string     `json:"conclusion,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	HTMLURL     string     `json:"html_url,omitempty"`
	DetailsURL  string     `json:"details_url,omitempty"`
}

// Comment is any comment attached to a PR: a general issue comment, an
// inline review comment, or a review summary body.
type Comment struct {
	ID          int64      `json:"id"`
	Author      string     `json:"author"`
	Body        string     `json:"body"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
	CommentType string     `json:"comment_type"`
	InReplyToID int64      `json:"in_reply_to_id,omitempty"`
	Path        string     `json:"path,omitempty"`
	Line        int        `json:"line,omitempty"`
}

const (
	CommentTypeIssue         = "issue_comment"
	CommentTypeReview        = "review_comment"
	CommentTypeReviewSummary = "review"
)

// Label is a label attached to the PR.
type Label struct {
	Name        string `json:"name"`
	Color       string `json:"color"`
	Description string `json:"description,omitempty"`
}

// LinkedIssue is an issue referenced from the PR description or comments.
type LinkedIssue struct {
	Number    int        `json:"number"`
	Title     string     `json:"title"`
	State     string     `json:"state"`
	URL       string     `json:"url"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
	Labels    []string   `json:"labels,omitempty"`
}

// TimelineMetrics summarizes how the PR moved through review.
type TimelineMetrics struct {
	TimeToFirstReviewHours         *float64   `json:"time_to_first_review_hours,omitempty"`
	TimeToFirstApprovalHours       *float64   `json:"time_to_first_approval_hours,omitempty"`
	TimeToMergeHours               *float64   `json:"time_to_merge_hours,omitempty"`
	FirstCommitAt                  *time.Time `json:"first_commit_at,omitempty"`
	LastCommitAt                   *time.Time `json:"last_commit_at,omitempty"`
	TimeFromFirstToLastCommitHours *float64   `json:"time_from_first_to_last_commit_hours,omitempty"`
	NumberOfReviewCycles           int        `json:"number_of_review_cycles"`
}

// ReviewSummary aggregates the PR's reviews.
type ReviewSummary struct {
	TotalReviews          int       `json:"total_reviews"`
	ApprovedCount         int       `json:"approved_count"`
	ChangesRequestedCount int       `json:"changes_requested_count"`
	CommentedCount        int       `json:"commented_count"`
	Reviewers             []string  `json:"reviewers,omitempty"`
	ReviewComments        []Comment `json:"review_comments,omitempty"`
}

// DetailedInfo is the optional display snapshot assembled alongside the
// scores. It exists so the UI can explain a score without refetching.
type DetailedInfo struct {
	Description string `json:"description,omitempty"`

	Files          []FileChange `json:"files,omitempty"`
	TotalAdditions int          `json:"total_additions"`
	TotalDeletions int          `json:"total_deletions"`
	TotalChanges   int          `json:"total_changes"`

	CIChecks []CICheckRun `json:"ci_checks,omitempty"`
	CIStatus string       `json:"ci_status"`

	Timeline TimelineMetrics `json:"timeline_metrics"`

	Comments      []Comment `json:"comments,omitempty"`
	TotalComments int       `json:"total_comments"`

	Labels       []Label       `json:"labels,omitempty"`
	LinkedIssues []LinkedIssue `json:"linked_issues,omitempty"`

	Reviews ReviewSummary `json:"review_summary"`

	CommitCount   int      `json:"commit_count"`
	CommitAuthors []string `json:"commit_authors,omitempty"`

	Mergeable          *bool    `json:"mergeable,omitempty"`
	MergeableState     string   `json:"mergeable_state,omitempty"`
	Draft              bool     `json:"draft"`
	RequestedReviewers []string `json:"requested_reviewers,omitempty"`
	Assignees          []string `json:"assignees,omitempty"`
}
