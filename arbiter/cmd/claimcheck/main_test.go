package main

import (
	"context"
	"testing"
	"time"

	"github.com/jmaddaus/cookiewatch/internal/github"
)

// mockClient implements github.Client for testing checkIssue().
type mockClient struct {
	comments []*github.Comment
	prs      []*github.PullRequest
}

func (m *mockClient) ListOpenIssues(ctx context.Context, owner, repo string) ([]*github.Issue, error) {
	return nil, nil
}

func (m *mockClient) ListIssueComments(ctx context.Context, owner, repo string, number int) ([]*github.Comment, error) {
	return m.comments, nil
}

func (m *mockClient) ListPullRequests(ctx context.Context, owner, repo string) ([]*github.PullRequest, error) {
	return m.prs, nil
}

func (m *mockClient) GetRateLimit() github.RateLimit { return github.RateLimit{} }

func comment(user, body string, at time.Time) *github.Comment {
	return &github.Comment{
		Body:      body,
		User:      github.User{Login: user},
		CreatedAt: at,
	}
}

func TestCheckIssueNoClaims(t *testing.T) {
	client := &mockClient{
		comments: []*github.Comment{
			comment("alice", "nice bug report", time.Now()),
		},
	}

	reports, err := checkIssue(context.Background(), client, "octo", "hello", 42, time.Now())
	if err != nil {
		t.Fatalf("checkIssue: %v", err)
	}
	if len(reports) != 0 {
		t.Fatalf("reports = %+v, want none", reports)
	}
}

func TestCheckIssueFreshClaim(t *testing.T) {
	now := time.Now()
	client := &mockClient{
		comments: []*github.Comment{
			comment("alice", "I'll work on this", now.Add(-24*time.Hour)),
		},
	}

	reports, err := checkIssue(context.Background(), client, "octo", "hello", 42, now)
	if err != nil {
		t.Fatalf("checkIssue: %v", err)
	}
	if len(reports) != 1 {
		t.Fatalf("got %d reports, want 1", len(reports))
	}
	r := reports[0]
	if r.Claimer != "alice" || r.Stale || r.HasLinkedPR {
		t.Errorf("report = %+v, want fresh unlinked claim by alice", r)
	}
}

func TestCheckIssueStaleClaim(t *testing.T) {
	now := time.Now()
	client := &mockClient{
		comments: []*github.Comment{
			comment("bob", "working on this", now.Add(-8*24*time.Hour)),
		},
	}

	reports, err := checkIssue(context.Background(), client, "octo", "hello", 7, now)
	if err != nil {
		t.Fatalf("checkIssue: %v", err)
	}
	if len(reports) != 1 || !reports[0].Stale {
		t.Fatalf("reports = %+v, want one stale claim", reports)
	}
}

func TestCheckIssueLinkedPRNotStale(t *testing.T) {
	now := time.Now()
	client := &mockClient{
		comments: []*github.Comment{
			comment("bob", "working on this", now.Add(-8*24*time.Hour)),
		},
		prs: []*github.PullRequest{
			{Number: 100, Title: "fix crash", Body: "fixes #7", User: github.User{Login: "bob"}},
		},
	}

	reports, err := checkIssue(context.Background(), client, "octo", "hello", 7, now)
	if err != nil {
		t.Fatalf("checkIssue: %v", err)
	}
	if len(reports) != 1 {
		t.Fatalf("got %d reports, want 1", len(reports))
	}
	if reports[0].Stale || !reports[0].HasLinkedPR {
		t.Errorf("report = %+v, want linked and not stale", reports[0])
	}
}

func TestCheckIssueEarliestClaimPerUser(t *testing.T) {
	now := time.Now()
	first := now.Add(-48 * time.Hour)
	client := &mockClient{
		comments: []*github.Comment{
			comment("carol", "I'll take this", first),
			comment("carol", "still working on it", now.Add(-time.Hour)),
		},
	}

	reports, err := checkIssue(context.Background(), client, "octo", "hello", 3, now)
	if err != nil {
		t.Fatalf("checkIssue: %v", err)
	}
	if len(reports) != 1 {
		t.Fatalf("got %d reports, want 1", len(reports))
	}
	if !reports[0].ClaimedAt.Equal(first) {
		t.Errorf("claimed at %s, want earliest comment time %s", reports[0].ClaimedAt, first)
	}
}

func TestCheckIssueAnotherUsersPRDoesNotCount(t *testing.T) {
	now := time.Now()
	client := &mockClient{
		comments: []*github.Comment{
			comment("dave", "let me fix this", now.Add(-9*24*time.Hour)),
		},
		prs: []*github.PullRequest{
			{Number: 5, Title: "fixes #12", User: github.User{Login: "someone-else"}},
		},
	}

	reports, err := checkIssue(context.Background(), client, "octo", "hello", 12, now)
	if err != nil {
		t.Fatalf("checkIssue: %v", err)
	}
	if len(reports) != 1 || reports[0].HasLinkedPR || !reports[0].Stale {
		t.Fatalf("reports = %+v, want stale unlinked claim", reports)
	}
}
