package detector

import (
	"context"

	"github.com/jmaddaus/cookiewatch/internal/github"
)

// PRChecker answers whether a user has a pull request referencing an issue.
// The sweep re-verifies PR evidence through this before auto-releasing a
// claim, so a claimer whose PR appeared since the last scan is spared.
type PRChecker interface {
	HasLinkedPR(ctx context.Context, owner, repo string, issueNumber int, username string) (bool, error)
}

// Checker implements PRChecker with a live API lookup.
type Checker struct {
	client github.Client
}

func NewChecker(client github.Client) *Checker {
	return &Checker{client: client}
}

func (c *Checker) HasLinkedPR(ctx context.Context, owner, repo string, issueNumber int, username string) (bool, error) {
	prs, err := c.client.ListPullRequests(ctx, owner, repo)
	if err != nil {
		return false, err
	}
	for _, pr := range prs {
		if pr.User.Login != username {
			continue
		}
		if ReferencesIssue(pr.Title, issueNumber) || ReferencesIssue(pr.Body, issueNumber) {
			return true, nil
		}
	}
	return false, nil
}
