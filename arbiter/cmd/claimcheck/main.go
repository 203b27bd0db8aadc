// Command claimcheck inspects a single GitHub issue for claim comments.
// It is meant to run inside a GitHub Actions workflow, driven by the
// environment the runner already provides.
//
// Exit codes: 0 = no stale claim, 2 = at least one claim past the grace
// period with no linked pull request.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jmaddaus/cookiewatch/internal/detector"
	"github.com/jmaddaus/cookiewatch/internal/github"
	"github.com/jmaddaus/cookiewatch/internal/lifecycle"
)

var version = "dev"

func main() {
	log.Printf("claimcheck version %s", version)

	token := os.Getenv("GITHUB_TOKEN")
	if token == "" {
		log.Fatal("GITHUB_TOKEN is required")
	}

	repoFull := os.Getenv("GITHUB_REPOSITORY") // "owner/repo"
	if repoFull == "" {
		log.Fatal("GITHUB_REPOSITORY is required")
	}

	issueNumStr := os.Getenv("ISSUE_NUMBER")
	if issueNumStr == "" {
		log.Fatal("ISSUE_NUMBER is required")
	}
	issueNum, err := strconv.Atoi(issueNumStr)
	if err != nil {
		log.Fatalf("invalid ISSUE_NUMBER: %v", err)
	}

	parts := strings.SplitN(repoFull, "/", 2)
	if len(parts) != 2 {
		log.Fatalf("invalid GITHUB_REPOSITORY format: %s", repoFull)
	}
	owner, repo := parts[0], parts[1]

	client := github.NewClient(token)
	ctx := context.Background()

	claims, err := checkIssue(ctx, client, owner, repo, issueNum, time.Now())
	if err != nil {
		log.Fatalf("check issue: %v", err)
	}

	if len(claims) == 0 {
		fmt.Printf("issue #%d: no claim comments found\n", issueNum)
		return
	}

	stale := false
	for _, c := range claims {
		pr := "no"
		if c.HasLinkedPR {
			pr = "yes"
		}
		fmt.Printf("issue #%d claimed by @%s since %s (age %s, PR linked: %s)\n",
			issueNum, c.Claimer, c.ClaimedAt.Format("2006-01-02"),
			formatDays(c.Age), pr)
		if c.Stale {
			stale = true
			fmt.Printf("  STALE: claim exceeds the %s grace period with no pull request\n",
				formatDays(lifecycle.GracePeriod))
		}
	}

	if stale {
		os.Exit(2)
	}
}

// claimReport is the result of checking one claimer on one issue.
type claimReport struct {
	Claimer     string
	ClaimedAt   time.Time
	Age         time.Duration
	HasLinkedPR bool
	Stale       bool
}

// checkIssue fetches comments on one issue, picks out the earliest claim
// comment per user, and marks claims stale when they are past the grace
// period with no pull request by the claimer referencing the issue.
func checkIssue(ctx context.Context, client github.Client, owner, repo string, issueNum int, now time.Time) ([]claimReport, error) {
	comments, err := client.ListIssueComments(ctx, owner, repo, issueNum)
	if err != nil {
		return nil, fmt.Errorf("fetch comments: %w", err)
	}

	// Earliest claim comment per user wins.
	claimed := map[string]time.Time{}
	var order []string
	for _, c := range comments {
		if c.User.Login == "" || !detector.IsClaimComment(c.Body) {
			continue
		}
		if _, seen := claimed[c.User.Login]; !seen {
			claimed[c.User.Login] = c.CreatedAt
			order = append(order, c.User.Login)
		}
	}

	if len(claimed) == 0 {
		return nil, nil
	}

	prs, err := client.ListPullRequests(ctx, owner, repo)
	if err != nil {
		return nil, fmt.Errorf("fetch pull requests: %w", err)
	}

	var reports []claimReport
	for _, user := range order {
		claimedAt := claimed[user]
		linked := false
		for _, pr := range prs {
			if pr.User.Login != user {
				continue
			}
			if detector.ReferencesIssue(pr.Title, issueNum) || detector.ReferencesIssue(pr.Body, issueNum) {
				linked = true
				break
			}
		}

		age := now.Sub(claimedAt)
		reports = append(reports, claimReport{
			Claimer:     user,
			ClaimedAt:   claimedAt,
			Age:         age,
			HasLinkedPR: linked,
			Stale:       !linked && age > lifecycle.GracePeriod,
		})
	}
	return reports, nil
}

func formatDays(d time.Duration) string {
	days := int(d.Hours() / 24)
	if days < 1 {
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
	return fmt.Sprintf("%dd", days)
}
