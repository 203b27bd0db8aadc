package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmaddaus/cookiewatch/internal/detector"
	"github.com/jmaddaus/cookiewatch/internal/model"
	"github.com/jmaddaus/cookiewatch/internal/store"
)

// Timing rules for the claim lifecycle. The grace period is fixed at claim
// creation; the nudge window and cooldown are evaluated at nudge time.
const (
	GracePeriod   = 7 * 24 * time.Hour
	NudgeAfter    = 3 * 24 * time.Hour
	NudgeCooldown = 24 * time.Hour
)

// Service owns all claim state transitions. Detection evidence comes in
// through ScanRepository, time-based transitions through SweepStale and
// NudgeAll, and manual transitions through Nudge, Release, and Complete.
type Service struct {
	store   store.Store
	scanner detector.Scanner
	checker detector.PRChecker
	log     *slog.Logger
	now     func() time.Time
}

func New(st store.Store, scanner detector.Scanner, checker detector.PRChecker, log *slog.Logger) *Service {
	return &Service{
		store:   st,
		scanner: scanner,
		checker: checker,
		log:     log,
		now:     time.Now,
	}
}

// ScanResult summarizes one repository scan.
type ScanResult struct {
	Repository    *model.Repository `json:"repository"`
	IssuesScanned int               `json:"issues_scanned"`
	Detected      int               `json:"detected"`
	Updated       int               `json:"updated"`
	Skipped       int               `json:"skipped"`
}

// SweepResult summarizes a stale-claim sweep.
type SweepResult struct {
	Checked  int `json:"checked"`
	Released int `json:"released"`
	Spared   int `json:"spared"`
	Failed   int `json:"failed"`
}

// NudgeAllResult summarizes a bulk nudge run.
type NudgeAllResult struct {
	Eligible int `json:"eligible"`
	Nudged   int `json:"nudged"`
	Failed   int `json:"failed"`
}

func payloadJSON(p model.ActivityPayload) string {
	b, _ := json.Marshal(p)
	return string(b)
}

// ScanRepository scans owner/name for claim comments and reconciles each
// piece of evidence against stored claims. The repository record is created
// on first scan and its timestamp refreshed on every scan.
func (s *Service) ScanRepository(ctx context.Context, owner, name string) (*ScanResult, error) {
	repo, err := s.store.GetOrCreateRepository(ctx, owner, name)
	if err != nil {
		return nil, fmt.Errorf("get or create repository: %w", err)
	}

	scan, err := s.scanner.Scan(ctx, owner, name)
	if err != nil {
		return nil, fmt.Errorf("scan %s/%s: %w", owner, name, err)
	}

	result := &ScanResult{
		Repository:    repo,
		IssuesScanned: scan.IssuesScanned,
		Skipped:       scan.Skipped,
	}

	for _, ev := range scan.Evidence {
		created, err := s.reconcile(ctx, repo, ev)
		if err != nil {
			s.log.Warn("reconcile failed",
				"repo", repo.FullName(), "issue", ev.Issue.Number,
				"claimer", ev.Comment.User.Login, "error", err)
			continue
		}
		if created {
			result.Detected++
		} else {
			result.Updated++
		}
	}

	if err := s.store.TouchRepository(ctx, repo.ID, s.now()); err != nil {
		s.log.Warn("touch repository failed", "repo", repo.FullName(), "error", err)
	}

	s.log.Info("scan complete", "repo", repo.FullName(),
		"issues", result.IssuesScanned, "detected", result.Detected,
		"updated", result.Updated, "skipped", result.Skipped)
	return result, nil
}

// reconcile applies one piece of claim evidence. New (repository, issue,
// claimer) triples create a claim; existing ones get their evidence
// refreshed. Terminal claims are left untouched. Returns true when a new
// claim was created.
func (s *Service) reconcile(ctx context.Context, repo *model.Repository, ev detector.Evidence) (bool, error) {
	existing, err := s.store.FindClaim(ctx, repo.ID, ev.Issue.Number, ev.Comment.User.Login)
	if errors.Is(err, store.ErrNotFound) {
		return s.createClaim(ctx, repo, ev)
	}
	if err != nil {
		return false, err
	}
	return false, s.refreshClaim(ctx, repo, existing, ev)
}

func (s *Service) createClaim(ctx context.Context, repo *model.Repository, ev detector.Evidence) (bool, error) {
	claimedAt := ev.Comment.CreatedAt

	claim, err := s.store.CreateClaim(ctx, &model.Claim{
		RepositoryID:     repo.ID,
		IssueNumber:      ev.Issue.Number,
		IssueTitle:       ev.Issue.Title,
		IssueURL:         ev.Issue.HTMLURL,
		ClaimerUsername:  ev.Comment.User.Login,
		ClaimerAvatarURL: ev.Comment.User.AvatarURL,
		CommentID:        ev.Comment.ID,
		CommentText:      ev.Comment.Body,
		ClaimedAt:        claimedAt,
		LastCheckedAt:    s.now(),
		HasLinkedPR:      ev.HasLinkedPR,
		AutoReleaseAt:    claimedAt.Add(GracePeriod),
		Status:           model.ClaimActive,
	})
	if errors.Is(err, store.ErrDuplicate) {
		// Lost a race with a concurrent scan; refresh the winner instead.
		existing, findErr := s.store.FindClaim(ctx, repo.ID, ev.Issue.Number, ev.Comment.User.Login)
		if findErr != nil {
			return false, findErr
		}
		return false, s.refreshClaim(ctx, repo, existing, ev)
	}
	if err != nil {
		return false, err
	}

	_, err = s.store.AppendActivity(ctx, &model.Activity{
		ClaimID: &claim.ID,
		Action:  model.ActionDetected,
		Payload: payloadJSON(model.ActivityPayload{
			Repository:  repo.FullName(),
			IssueNumber: claim.IssueNumber,
			Claimer:     claim.ClaimerUsername,
		}),
	})
	if err != nil {
		s.log.Warn("log detection failed", "claim", claim.ID, "error", err)
	}
	return true, nil
}

func (s *Service) refreshClaim(ctx context.Context, repo *model.Repository, claim *model.Claim, ev detector.Evidence) error {
	if IsTerminal(claim.Status) {
		return nil
	}

	newlyLinked := ev.HasLinkedPR && !claim.HasLinkedPR

	claim.LastCheckedAt = s.now()
	claim.HasLinkedPR = ev.HasLinkedPR

	linkedWhileNudged := newlyLinked && claim.Status == model.ClaimNudged
	if linkedWhileNudged {
		claim.Status = model.ClaimActive
	}

	if err := s.store.UpdateClaim(ctx, claim); err != nil {
		return err
	}

	if linkedWhileNudged {
		_, err := s.store.AppendActivity(ctx, &model.Activity{
			ClaimID: &claim.ID,
			Action:  model.ActionPRLinked,
			Payload: payloadJSON(model.ActivityPayload{
				Repository:  repo.FullName(),
				IssueNumber: claim.IssueNumber,
				Claimer:     claim.ClaimerUsername,
			}),
		})
		if err != nil {
			s.log.Warn("log pr link failed", "claim", claim.ID, "error", err)
		}
	}
	return nil
}

// SweepStale releases claims whose grace period has expired. Each
// candidate gets one last PR re-check before release: a claim whose PR
// appeared since the last scan is spared (and its flag corrected) instead
// of released. A failure on one claim never aborts the sweep.
func (s *Service) SweepStale(ctx context.Context) (*SweepResult, error) {
	stale, err := s.store.StaleClaims(ctx, s.now())
	if err != nil {
		return nil, fmt.Errorf("list stale claims: %w", err)
	}

	result := &SweepResult{Checked: len(stale)}

	for _, claim := range stale {
		repo, err := s.store.GetRepository(ctx, claim.RepositoryID)
		if err != nil {
			s.log.Warn("sweep: load repository failed", "claim", claim.ID, "error", err)
			result.Failed++
			continue
		}

		linked, err := s.checker.HasLinkedPR(ctx, repo.Owner, repo.Name, claim.IssueNumber, claim.ClaimerUsername)
		if err != nil {
			s.log.Warn("sweep: PR check failed",
				"claim", claim.ID, "repo", repo.FullName(), "issue", claim.IssueNumber, "error", err)
			result.Failed++
			continue
		}

		if linked {
			claim.HasLinkedPR = true
			if err := s.store.UpdateClaim(ctx, claim); err != nil {
				s.log.Warn("sweep: update claim failed", "claim", claim.ID, "error", err)
				result.Failed++
				continue
			}
			result.Spared++
			continue
		}

		if err := s.releaseClaim(ctx, repo, claim, "auto_release_timeout"); err != nil {
			s.log.Warn("sweep: release failed", "claim", claim.ID, "error", err)
			result.Failed++
			continue
		}
		result.Released++
	}

	s.log.Info("sweep complete", "checked", result.Checked,
		"released", result.Released, "spared", result.Spared, "failed", result.Failed)
	return result, nil
}

// releaseClaim performs the release transition: status change, audit entry,
// and an abandoned outcome on the claimer's ledger.
func (s *Service) releaseClaim(ctx context.Context, repo *model.Repository, claim *model.Claim, reason string) error {
	claim.Status = model.ClaimReleased
	if err := s.store.UpdateClaim(ctx, claim); err != nil {
		return err
	}

	_, err := s.store.AppendActivity(ctx, &model.Activity{
		ClaimID: &claim.ID,
		Action:  model.ActionReleased,
		Payload: payloadJSON(model.ActivityPayload{
			Repository:  repo.FullName(),
			IssueNumber: claim.IssueNumber,
			Claimer:     claim.ClaimerUsername,
			Reason:      reason,
		}),
	})
	if err != nil {
		s.log.Warn("log release failed", "claim", claim.ID, "error", err)
	}

	if _, err := s.store.RecordOutcome(ctx, claim.ClaimerUsername, model.OutcomeAbandoned, s.now()); err != nil {
		return fmt.Errorf("record abandoned outcome: %w", err)
	}
	return nil
}

// EligibleForNudge returns claims currently inside the nudge window:
// claimed at least three days ago, no linked PR, not nudged within the
// last day, not terminal.
func (s *Service) EligibleForNudge(ctx context.Context) ([]*model.Claim, error) {
	return s.store.NudgeEligible(ctx, s.now())
}

// Nudge sends a reminder for one claim: increments the nudge counter,
// stamps the nudge time, and moves the claim to nudged. Callers decide
// eligibility; Nudge only refuses terminal claims.
func (s *Service) Nudge(ctx context.Context, id int) (*model.Claim, error) {
	claim, err := s.store.MarkNudged(ctx, id, s.now())
	if err != nil {
		return nil, err
	}

	_, err = s.store.AppendActivity(ctx, &model.Activity{
		ClaimID: &claim.ID,
		Action:  model.ActionNudged,
		Payload: payloadJSON(model.ActivityPayload{
			IssueNumber: claim.IssueNumber,
			Claimer:     claim.ClaimerUsername,
			NudgeCount:  claim.NudgeCount,
		}),
	})
	if err != nil {
		s.log.Warn("log nudge failed", "claim", claim.ID, "error", err)
	}

	s.log.Info("nudge sent", "claim", claim.ID,
		"claimer", claim.ClaimerUsername, "count", claim.NudgeCount)
	return claim, nil
}

// NudgeAll nudges every eligible claim. A failure on one claim never
// aborts the run.
func (s *Service) NudgeAll(ctx context.Context) (*NudgeAllResult, error) {
	eligible, err := s.EligibleForNudge(ctx)
	if err != nil {
		return nil, fmt.Errorf("list nudge-eligible claims: %w", err)
	}

	result := &NudgeAllResult{Eligible: len(eligible)}
	for _, claim := range eligible {
		if _, err := s.Nudge(ctx, claim.ID); err != nil {
			s.log.Warn("nudge failed", "claim", claim.ID, "error", err)
			result.Failed++
			continue
		}
		result.Nudged++
	}
	return result, nil
}

// Release manually releases a claim. Releasing an already-released claim
// is a no-op; releasing a completed claim is an error. An empty reason
// defaults to "manual_release".
func (s *Service) Release(ctx context.Context, id int, reason string) (*model.Claim, error) {
	claim, err := s.store.GetClaim(ctx, id)
	if err != nil {
		return nil, err
	}

	if claim.Status == model.ClaimReleased {
		return claim, nil
	}
	if !ValidTransition(claim.Status, model.ClaimReleased) {
		return nil, fmt.Errorf("claim %d is %s and cannot be released", id, claim.Status)
	}

	if reason == "" {
		reason = "manual_release"
	}

	repo, err := s.store.GetRepository(ctx, claim.RepositoryID)
	if err != nil {
		return nil, err
	}
	if err := s.releaseClaim(ctx, repo, claim, reason); err != nil {
		return nil, err
	}
	return s.store.GetClaim(ctx, id)
}

// Complete marks a claim as done. Completing an already-completed claim is
// a no-op; completing a released claim is an error.
func (s *Service) Complete(ctx context.Context, id int) (*model.Claim, error) {
	claim, err := s.store.GetClaim(ctx, id)
	if err != nil {
		return nil, err
	}

	if claim.Status == model.ClaimCompleted {
		return claim, nil
	}
	if !ValidTransition(claim.Status, model.ClaimCompleted) {
		return nil, fmt.Errorf("claim %d is %s and cannot be completed", id, claim.Status)
	}

	claim.Status = model.ClaimCompleted
	if err := s.store.UpdateClaim(ctx, claim); err != nil {
		return nil, err
	}

	_, err = s.store.AppendActivity(ctx, &model.Activity{
		ClaimID: &claim.ID,
		Action:  model.ActionCompleted,
		Payload: payloadJSON(model.ActivityPayload{
			IssueNumber: claim.IssueNumber,
			Claimer:     claim.ClaimerUsername,
		}),
	})
	if err != nil {
		s.log.Warn("log completion failed", "claim", claim.ID, "error", err)
	}

	if _, err := s.store.RecordOutcome(ctx, claim.ClaimerUsername, model.OutcomeCompleted, s.now()); err != nil {
		return nil, fmt.Errorf("record completed outcome: %w", err)
	}

	return s.store.GetClaim(ctx, id)
}
