package analysis

import (
	"sort"
	"time"

	gh "github.com/google/go-github/v45/github"

	"github.com/prradar/prradar/pkg/apis/risk"
)

// detailedInfo builds the display snapshot for a PR from the fetched
// records. It never fails; missing records leave their sections empty.
func detailedInfo(recs *prRecords) *risk.DetailedInfo {
	pr := recs.pr
	info := &risk.DetailedInfo{
		Description:    pr.GetBody(),
		Mergeable:      pr.Mergeable,
		MergeableState: pr.GetMergeableState(),
		Draft:          pr.GetDraft(),
		CommitCount:    len(recs.commits),
	}

	for _, u := range pr.RequestedReviewers {
		info.RequestedReviewers = append(info.RequestedReviewers, u.GetLogin())
	}
	for _, u := range pr.Assignees {
		info.Assignees = append(info.Assignees, u.GetLogin())
	}

	for _, f := range recs.files {
		info.TotalAdditions += f.GetAdditions()
		info.TotalDeletions += f.GetDeletions()
		info.Files = append(info.Files, risk.FileChange{
			Filename:         f.GetFilename(),
			Status:           f.GetStatus(),
			Additions:        f.GetAdditions(),
			Deletions:        f.GetDeletions(),
			Changes:          f.GetChanges(),
			Patch:            f.GetPatch(),
			BlobURL:          f.GetBlobURL(),
			PreviousFilename: f.GetPreviousFilename(),
		})
	}
	info.TotalChanges = info.TotalAdditions + info.TotalDeletions

	info.CIChecks, info.CIStatus = ciChecks(recs.checkRuns)
	info.Timeline = timelineMetrics(pr, recs.reviews, recs.commits)
	info.Comments = mergedComments(pr, recs)
	info.TotalComments = len(info.Comments)

	for _, l := range pr.Labels {
		info.Labels = append(info.Labels, risk.Label{
			Name:        l.GetName(),
			Color:       l.GetColor(),
			Description: l.GetDescription(),
		})
	}

	for _, iss := range recs.linkedIssues {
		linked := risk.LinkedIssue{
			Number:    iss.GetNumber(),
			Title:     iss.GetTitle(),
			State:     iss.GetState(),
			URL:       iss.GetHTMLURL(),
			CreatedAt: iss.GetCreatedAt(),
			UpdatedAt: iss.GetUpdatedAt(),
			ClosedAt:  iss.ClosedAt,
		}
		for _, l := range iss.Labels {
			linked.Labels = append(linked.Labels, l.GetName())
		}
		info.LinkedIssues = append(info.LinkedIssues, linked)
	}

	info.Reviews = reviewSummary(pr, recs.reviews)

	authors := map[string]bool{}
	for _, c := range recs.commits {
		name := c.GetAuthor().GetLogin()
		if name == "" {
			name = c.GetCommit().GetAuthor().GetName()
		}
		if name != "" {
			authors[name] = true
		}
	}
	for name := range authors {
		info.CommitAuthors = append(info.CommitAuthors, name)
	}
	sort.Strings(info.CommitAuthors)

	return info
}

func ciChecks(runs []*gh.CheckRun) ([]risk.CICheckRun, string) {
	var checks []risk.CICheckRun
	var passed, failed, incomplete int

	for _, run := range runs {
		switch run.GetConclusion() {
		case "success":
			passed++
		case "failure", "timed_out", "action_required":
			failed++
		}
		if run.GetStatus() != "completed" {
			incomplete++
		}

		check := risk.CICheckRun{
			Name:       run.GetName(),
			Status:     run.GetStatus(),
			Conclusion: run.GetConclusion(),
			HTMLURL:    run.GetHTMLURL(),
			DetailsURL: run.GetDetailsURL(),
		}
		if run.StartedAt != nil {
			t := run.StartedAt.Time
			check.StartedAt = &t
		}
		if run.CompletedAt != nil {
			t := run.CompletedAt.Time
			check.CompletedAt = &t
		}
		checks = append(checks, check)
	}

	status := "unknown"
	switch {
	case len(checks) == 0:
	case failed > 0:
		status = "failure"
	case incomplete > 0:
		status = "pending"
	case passed > 0:
		status = "success"
	}
	return checks, status
}

func timelineMetrics(pr *gh.PullRequest, reviews []*gh.PullRequestReview, commits []*gh.RepositoryCommit) risk.TimelineMetrics {
	var m risk.TimelineMetrics
	created := pr.GetCreatedAt()
	m.NumberOfReviewCycles = len(reviews)

	var firstReview, firstApproval *time.Time
	for _, r := range reviews {
		if r.SubmittedAt == nil {
			continue
		}
		t := *r.SubmittedAt
		if firstReview == nil || t.Before(*firstReview) {
			firstReview = &t
		}
		if r.GetState() == "APPROVED" && (firstApproval == nil || t.Before(*firstApproval)) {
			firstApproval = &t
		}
	}
	if firstReview != nil {
		m.TimeToFirstReviewHours = hoursSince(created, *firstReview)
	}
	if firstApproval != nil {
		m.TimeToFirstApprovalHours = hoursSince(created, *firstApproval)
	}
	if pr.MergedAt != nil {
		m.TimeToMergeHours = hoursSince(created, *pr.MergedAt)
	}

	for _, c := range commits {
		date := c.GetCommit().GetAuthor().Date
		if date == nil {
			continue
		}
		t := *date
		if m.FirstCommitAt == nil || t.Before(*m.FirstCommitAt) {
			m.FirstCommitAt = &t
		}
		if m.LastCommitAt == nil || t.After(*m.LastCommitAt) {
			m.LastCommitAt = &t
		}
	}
	if m.FirstCommitAt != nil && m.LastCommitAt != nil {
		m.TimeFromFirstToLastCommitHours = hoursSince(*m.FirstCommitAt, *m.LastCommitAt)
	}

	return m
}

func hoursSince(from, to time.Time) *float64 {
	h := to.Sub(from).Hours()
	return &h
}

// mergedComments joins issue comments, inline review comments, and review
// summary bodies into one chronological list.
func mergedComments(pr *gh.PullRequest, recs *prRecords) []risk.Comment {
	var all []risk.Comment

	for _, c := range recs.issueComments {
		all = append(all, risk.Comment{
			ID:          c.GetID(),
			Author:      c.GetUser().GetLogin(),
			Body:        c.GetBody(),
			CreatedAt:   c.GetCreatedAt(),
			UpdatedAt:   c.UpdatedAt,
			CommentType: risk.CommentTypeIssue,
		})
	}

	for _, c := range recs.reviewComments {
		line := c.GetLine()
		if line == 0 {
			line = c.GetOriginalLine()
		}
		all = append(all, risk.Comment{
			ID:          c.GetID(),
			Author:      c.GetUser().GetLogin(),
			Body:        c.GetBody(),
			CreatedAt:   c.GetCreatedAt(),
			UpdatedAt:   c.UpdatedAt,
			CommentType: risk.CommentTypeReview,
			InReplyToID: c.GetInReplyTo(),
			Path:        c.GetPath(),
			Line:        line,
		})
	}

	for _, r := range recs.reviews {
		if r.GetBody() == "" {
			continue
		}
		createdAt := pr.GetCreatedAt()
		if r.SubmittedAt != nil {
			createdAt = *r.SubmittedAt
		}
		all = append(all, risk.Comment{
			ID:          r.GetID(),
			Author:      r.GetUser().GetLogin(),
			Body:        r.GetBody(),
			CreatedAt:   createdAt,
			CommentType: risk.CommentTypeReviewSummary,
		})
	}

	sort.SliceStable(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })
	return all
}

func reviewSummary(pr *gh.PullRequest, reviews []*gh.PullRequestReview) risk.ReviewSummary {
	s := risk.ReviewSummary{TotalReviews: len(reviews)}
	seen := map[string]bool{}

	for _, r := range reviews {
		switch r.GetState() {
		case "APPROVED":
			s.ApprovedCount++
		case "CHANGES_REQUESTED":
			s.ChangesRequestedCount++
		case "COMMENTED":
			s.CommentedCount++
		}
		if login := r.GetUser().GetLogin(); login != "" && !seen[login] {
			seen[login] = true
			s.Reviewers = append(s.Reviewers, login)
		}

		if r.GetBody() == "" {
			continue
		}
		createdAt := pr.GetCreatedAt()
		if r.SubmittedAt != nil {
			createdAt = *r.SubmittedAt
		}
		s.ReviewComments = append(s.ReviewComments, risk.Comment{
			ID:          r.GetID(),
			Author:      r.GetUser().GetLogin(),
			Body:        r.GetBody(),
			CreatedAt:   createdAt,
			CommentType: risk.CommentTypeReviewSummary,
		})
	}

	sort.Strings(s.Reviewers)
	return s
}
