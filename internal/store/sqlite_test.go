package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jmaddaus/cookiewatch/internal/model"
)

// newTestStore creates a fresh in-memory SQLite store for testing.
func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// addTestRepo is a helper that adds a repo and fails the test on error.
func addTestRepo(t *testing.T, s *SQLiteStore, owner, name string) *model.Repository {
	t.Helper()
	repo, err := s.GetOrCreateRepository(context.Background(), owner, name)
	if err != nil {
		t.Fatalf("GetOrCreateRepository(%s/%s): %v", owner, name, err)
	}
	return repo
}

// addTestClaim inserts a claim with sensible defaults, claimed at the given
// time, for the given repo and issue.
func addTestClaim(t *testing.T, s *SQLiteStore, repoID, issue int, claimer string, claimedAt time.Time) *model.Claim {
	t.Helper()
	claim, err := s.CreateClaim(context.Background(), &model.Claim{
		RepositoryID:    repoID,
		IssueNumber:     issue,
		IssueTitle:      "test issue",
		ClaimerUsername: claimer,
		CommentID:       1000 + int64(issue),
		CommentText:     "I'll take this one",
		ClaimedAt:       claimedAt,
		AutoReleaseAt:   claimedAt.Add(7 * 24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("CreateClaim(#%d by %s): %v", issue, claimer, err)
	}
	return claim
}

// ---------------------------------------------------------------------------
// Repository tests
// ---------------------------------------------------------------------------

func TestGetOrCreateRepository(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	repo, err := s.GetOrCreateRepository(ctx, "octocat", "hello-world")
	if err != nil {
		t.Fatalf("GetOrCreateRepository: %v", err)
	}
	if repo.ID == 0 {
		t.Error("expected non-zero ID")
	}
	if repo.Owner != "octocat" || repo.Name != "hello-world" {
		t.Errorf("unexpected owner/name: %s/%s", repo.Owner, repo.Name)
	}

	again, err := s.GetOrCreateRepository(ctx, "octocat", "hello-world")
	if err != nil {
		t.Fatalf("second GetOrCreateRepository: %v", err)
	}
	if again.ID != repo.ID {
		t.Errorf("expected same ID on repeat call, got %d then %d", repo.ID, again.ID)
	}
}

func TestGetRepositoryNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetRepository(context.Background(), 9999)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListRepositoriesByRecency(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := addTestRepo(t, s, "a", "one")
	b := addTestRepo(t, s, "b", "two")

	// Touch "one" so it becomes the most recently scanned repo.
	if err := s.TouchRepository(ctx, a.ID, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("TouchRepository: %v", err)
	}

	repos, err := s.ListRepositories(ctx)
	if err != nil {
		t.Fatalf("ListRepositories: %v", err)
	}
	if len(repos) != 2 {
		t.Fatalf("expected 2 repos, got %d", len(repos))
	}
	if repos[0].ID != a.ID || repos[1].ID != b.ID {
		t.Errorf("expected order [%d %d], got [%d %d]", a.ID, b.ID, repos[0].ID, repos[1].ID)
	}
}

// ---------------------------------------------------------------------------
// Claim tests
// ---------------------------------------------------------------------------

func TestCreateClaim(t *testing.T) {
	s := newTestStore(t)
	repo := addTestRepo(t, s, "octocat", "hello-world")

	claimedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	claim := addTestClaim(t, s, repo.ID, 42, "alice", claimedAt)

	if claim.ID == 0 {
		t.Error("expected non-zero ID")
	}
	if claim.Status != model.ClaimActive {
		t.Errorf("expected status active, got %s", claim.Status)
	}
	if claim.NudgeCount != 0 {
		t.Errorf("expected nudge_count 0, got %d", claim.NudgeCount)
	}
	if !claim.AutoReleaseAt.Equal(claimedAt.Add(7 * 24 * time.Hour)) {
		t.Errorf("unexpected auto_release_at: %v", claim.AutoReleaseAt)
	}
}

func TestCreateClaimDuplicate(t *testing.T) {
	s := newTestStore(t)
	repo := addTestRepo(t, s, "octocat", "hello-world")
	now := time.Now()

	addTestClaim(t, s, repo.ID, 42, "alice", now)
	_, err := s.CreateClaim(context.Background(), &model.Claim{
		RepositoryID:    repo.ID,
		IssueNumber:     42,
		ClaimerUsername: "alice",
		CommentID:       2,
		ClaimedAt:       now,
		AutoReleaseAt:   now.Add(7 * 24 * time.Hour),
	})
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	// Same issue by a different claimer is a distinct claim.
	addTestClaim(t, s, repo.ID, 42, "bob", now)
}

func TestFindClaim(t *testing.T) {
	s := newTestStore(t)
	repo := addTestRepo(t, s, "octocat", "hello-world")
	created := addTestClaim(t, s, repo.ID, 7, "alice", time.Now())

	got, err := s.FindClaim(context.Background(), repo.ID, 7, "alice")
	if err != nil {
		t.Fatalf("FindClaim: %v", err)
	}
	if got.ID != created.ID {
		t.Errorf("expected claim %d, got %d", created.ID, got.ID)
	}

	_, err = s.FindClaim(context.Background(), repo.ID, 7, "mallory")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListClaimsFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	repo := addTestRepo(t, s, "octocat", "hello-world")
	other := addTestRepo(t, s, "octocat", "spoon-knife")
	now := time.Now()

	addTestClaim(t, s, repo.ID, 1, "alice", now)
	c2 := addTestClaim(t, s, repo.ID, 2, "bob", now)
	addTestClaim(t, s, other.ID, 1, "alice", now)

	c2.Status = model.ClaimReleased
	if err := s.UpdateClaim(ctx, c2); err != nil {
		t.Fatalf("UpdateClaim: %v", err)
	}

	byRepo, err := s.ListClaims(ctx, ClaimFilter{RepositoryID: repo.ID})
	if err != nil {
		t.Fatalf("ListClaims by repo: %v", err)
	}
	if len(byRepo) != 2 {
		t.Errorf("expected 2 claims for repo, got %d", len(byRepo))
	}

	byStatus, err := s.ListClaims(ctx, ClaimFilter{Status: model.ClaimReleased})
	if err != nil {
		t.Fatalf("ListClaims by status: %v", err)
	}
	if len(byStatus) != 1 || byStatus[0].ID != c2.ID {
		t.Errorf("expected only claim %d released, got %+v", c2.ID, byStatus)
	}

	byClaimer, err := s.ListClaims(ctx, ClaimFilter{Claimer: "alice"})
	if err != nil {
		t.Fatalf("ListClaims by claimer: %v", err)
	}
	if len(byClaimer) != 2 {
		t.Errorf("expected 2 claims for alice, got %d", len(byClaimer))
	}
}

func TestStaleClaims(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	repo := addTestRepo(t, s, "octocat", "hello-world")
	now := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)

	// Claimed 8 days ago: past the 7-day deadline.
	overdue := addTestClaim(t, s, repo.ID, 1, "alice", now.Add(-8*24*time.Hour))
	// Claimed 2 days ago: not due yet.
	addTestClaim(t, s, repo.ID, 2, "bob", now.Add(-2*24*time.Hour))
	// Overdue and nudged: still due for release.
	nudged := addTestClaim(t, s, repo.ID, 3, "carol", now.Add(-9*24*time.Hour))
	if _, err := s.MarkNudged(ctx, nudged.ID, now.Add(-time.Hour)); err != nil {
		t.Fatalf("MarkNudged: %v", err)
	}
	// Overdue but released: terminal claims are never swept.
	released := addTestClaim(t, s, repo.ID, 4, "dave", now.Add(-10*24*time.Hour))
	released.Status = model.ClaimReleased
	if err := s.UpdateClaim(ctx, released); err != nil {
		t.Fatalf("UpdateClaim: %v", err)
	}

	stale, err := s.StaleClaims(ctx, now)
	if err != nil {
		t.Fatalf("StaleClaims: %v", err)
	}
	if len(stale) != 2 {
		t.Fatalf("expected 2 stale claims, got %d", len(stale))
	}
	// Ordered by deadline, oldest first.
	if stale[0].ID != nudged.ID || stale[1].ID != overdue.ID {
		t.Errorf("expected order [%d %d], got [%d %d]", nudged.ID, overdue.ID, stale[0].ID, stale[1].ID)
	}
}

func TestNudgeEligible(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	repo := addTestRepo(t, s, "octocat", "hello-world")
	now := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)

	// Claimed 4 days ago, never nudged: eligible.
	eligible := addTestClaim(t, s, repo.ID, 1, "alice", now.Add(-4*24*time.Hour))
	// Claimed 1 day ago: too fresh.
	addTestClaim(t, s, repo.ID, 2, "bob", now.Add(-24*time.Hour))
	// Old claim with a linked PR: exempt from nudging.
	linked := addTestClaim(t, s, repo.ID, 3, "carol", now.Add(-5*24*time.Hour))
	linked.HasLinkedPR = true
	if err := s.UpdateClaim(ctx, linked); err != nil {
		t.Fatalf("UpdateClaim: %v", err)
	}
	// Old claim nudged an hour ago: inside the cooldown.
	cooling := addTestClaim(t, s, repo.ID, 4, "dave", now.Add(-6*24*time.Hour))
	if _, err := s.MarkNudged(ctx, cooling.ID, now.Add(-time.Hour)); err != nil {
		t.Fatalf("MarkNudged: %v", err)
	}
	// Old claim nudged two days ago: cooldown elapsed, eligible again.
	renudge := addTestClaim(t, s, repo.ID, 5, "erin", now.Add(-6*24*time.Hour))
	if _, err := s.MarkNudged(ctx, renudge.ID, now.Add(-2*24*time.Hour)); err != nil {
		t.Fatalf("MarkNudged: %v", err)
	}

	got, err := s.NudgeEligible(ctx, now)
	if err != nil {
		t.Fatalf("NudgeEligible: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 eligible claims, got %d", len(got))
	}
	// Ordered oldest first.
	if got[0].ID != renudge.ID || got[1].ID != eligible.ID {
		t.Errorf("expected order [%d %d], got [%d %d]", renudge.ID, eligible.ID, got[0].ID, got[1].ID)
	}
}

func TestMarkNudged(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	repo := addTestRepo(t, s, "octocat", "hello-world")
	claim := addTestClaim(t, s, repo.ID, 1, "alice", time.Now().Add(-4*24*time.Hour))

	at := time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)
	nudged, err := s.MarkNudged(ctx, claim.ID, at)
	if err != nil {
		t.Fatalf("MarkNudged: %v", err)
	}
	if nudged.NudgeCount != 1 {
		t.Errorf("expected nudge_count 1, got %d", nudged.NudgeCount)
	}
	if nudged.Status != model.ClaimNudged {
		t.Errorf("expected status nudged, got %s", nudged.Status)
	}
	if nudged.LastNudgedAt == nil || !nudged.LastNudgedAt.Equal(at) {
		t.Errorf("unexpected last_nudged_at: %v", nudged.LastNudgedAt)
	}

	// Second nudge increments again.
	nudged, err = s.MarkNudged(ctx, claim.ID, at.Add(25*time.Hour))
	if err != nil {
		t.Fatalf("second MarkNudged: %v", err)
	}
	if nudged.NudgeCount != 2 {
		t.Errorf("expected nudge_count 2, got %d", nudged.NudgeCount)
	}
}

func TestMarkNudgedTerminalClaim(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	repo := addTestRepo(t, s, "octocat", "hello-world")
	claim := addTestClaim(t, s, repo.ID, 1, "alice", time.Now())

	claim.Status = model.ClaimCompleted
	if err := s.UpdateClaim(ctx, claim); err != nil {
		t.Fatalf("UpdateClaim: %v", err)
	}

	if _, err := s.MarkNudged(ctx, claim.ID, time.Now()); err == nil {
		t.Fatal("expected error nudging a completed claim")
	}

	got, err := s.GetClaim(ctx, claim.ID)
	if err != nil {
		t.Fatalf("GetClaim: %v", err)
	}
	if got.NudgeCount != 0 || got.Status != model.ClaimCompleted {
		t.Errorf("terminal claim was modified: %+v", got)
	}
}

// ---------------------------------------------------------------------------
// Activity log tests
// ---------------------------------------------------------------------------

func TestActivityLog(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	repo := addTestRepo(t, s, "octocat", "hello-world")
	claim := addTestClaim(t, s, repo.ID, 1, "alice", time.Now())

	for _, action := range []model.ActionType{model.ActionDetected, model.ActionNudged} {
		_, err := s.AppendActivity(ctx, &model.Activity{
			ClaimID: &claim.ID,
			Action:  action,
			Payload: `{"claimer":"alice"}`,
		})
		if err != nil {
			t.Fatalf("AppendActivity(%s): %v", action, err)
		}
	}

	entries, err := s.ListActivity(ctx, claim.ID)
	if err != nil {
		t.Fatalf("ListActivity: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Action != model.ActionDetected || entries[1].Action != model.ActionNudged {
		t.Errorf("unexpected order: %s, %s", entries[0].Action, entries[1].Action)
	}

	recent, err := s.RecentActivity(ctx, 1)
	if err != nil {
		t.Fatalf("RecentActivity: %v", err)
	}
	if len(recent) != 1 || recent[0].Action != model.ActionNudged {
		t.Errorf("expected most recent entry first, got %+v", recent)
	}
}

// ---------------------------------------------------------------------------
// Shame board tests
// ---------------------------------------------------------------------------

func TestRecordOutcomeSeedsEntry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	entry, err := s.RecordOutcome(ctx, "alice", model.OutcomeCompleted, now)
	if err != nil {
		t.Fatalf("RecordOutcome: %v", err)
	}
	if entry.TotalCompleted != 1 || entry.TotalAbandoned != 0 {
		t.Errorf("unexpected counters: %d/%d", entry.TotalCompleted, entry.TotalAbandoned)
	}
	if entry.ReliabilityScore != 100 {
		t.Errorf("expected score 100, got %v", entry.ReliabilityScore)
	}

	entry, err = s.RecordOutcome(ctx, "bob", model.OutcomeAbandoned, now)
	if err != nil {
		t.Fatalf("RecordOutcome: %v", err)
	}
	if entry.TotalAbandoned != 1 || entry.ReliabilityScore != 0 {
		t.Errorf("expected abandoned=1 score=0, got %d/%v", entry.TotalAbandoned, entry.ReliabilityScore)
	}
}

func TestRecordOutcomeAccumulates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	s.RecordOutcome(ctx, "alice", model.OutcomeCompleted, now)
	s.RecordOutcome(ctx, "alice", model.OutcomeCompleted, now)
	s.RecordOutcome(ctx, "alice", model.OutcomeAbandoned, now)

	entry, err := s.GetShameEntry(ctx, "alice")
	if err != nil {
		t.Fatalf("GetShameEntry: %v", err)
	}
	if entry.TotalCompleted != 2 || entry.TotalAbandoned != 1 {
		t.Errorf("unexpected counters: %d/%d", entry.TotalCompleted, entry.TotalAbandoned)
	}
	// 2 of 3 completed.
	want := 2.0 / 3.0 * 100.0
	if diff := entry.ReliabilityScore - want; diff > 0.01 || diff < -0.01 {
		t.Errorf("expected score ~%.2f, got %v", want, entry.ReliabilityScore)
	}
}

func TestGetShameEntryNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetShameEntry(context.Background(), "nobody")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListShameEntriesOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	s.RecordOutcome(ctx, "reliable", model.OutcomeCompleted, now)
	s.RecordOutcome(ctx, "flaky", model.OutcomeAbandoned, now)
	s.RecordOutcome(ctx, "flaky", model.OutcomeCompleted, now)

	entries, err := s.ListShameEntries(ctx)
	if err != nil {
		t.Fatalf("ListShameEntries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Username != "reliable" {
		t.Errorf("expected reliable first, got %s", entries[0].Username)
	}
}
