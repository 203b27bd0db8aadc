package model

import "time"

type ClaimStatus string

const (
	ClaimActive    ClaimStatus = "active"
	ClaimNudged    ClaimStatus = "nudged"
	ClaimReleased  ClaimStatus = "released"
	ClaimCompleted ClaimStatus = "completed"
)

// Valid reports whether s is a known claim status.
func (s ClaimStatus) Valid() bool {
	switch s {
	case ClaimActive, ClaimNudged, ClaimReleased, ClaimCompleted:
		return true
	}
	return false
}

// Claim is one contributor's stated intent to work on one issue in one
// repository, evidenced by a matched comment. Claims are unique on
// (repository, issue number, claimer) and are never physically deleted.
//
// AutoReleaseAt is computed once at creation (claimed_at + grace period) and
// never moves, even when linked-PR evidence is refreshed later. NudgeCount
// only increases.
type Claim struct {
	ID               int         `json:"id" db:"id"`
	RepositoryID     int         `json:"repository_id" db:"repository_id"`
	IssueNumber      int         `json:"issue_number" db:"issue_number"`
	IssueTitle       string      `json:"issue_title" db:"issue_title"`
	IssueURL         string      `json:"issue_url" db:"issue_url"`
	ClaimerUsername  string      `json:"claimer_username" db:"claimer_username"`
	ClaimerAvatarURL string      `json:"claimer_avatar_url,omitempty" db:"claimer_avatar_url"`
	CommentID        int64       `json:"claim_comment_id" db:"claim_comment_id"`
	CommentText      string      `json:"claim_comment_text" db:"claim_comment_text"`
	ClaimedAt        time.Time   `json:"claimed_at" db:"claimed_at"`
	LastCheckedAt    time.Time   `json:"last_checked_at" db:"last_checked_at"`
	HasLinkedPR      bool        `json:"has_linked_pr" db:"has_linked_pr"`
	AutoReleaseAt    time.Time   `json:"auto_release_at" db:"auto_release_at"`
	Status           ClaimStatus `json:"status" db:"status"`
	NudgeCount       int         `json:"nudge_count" db:"nudge_count"`
	LastNudgedAt     *time.Time  `json:"last_nudged_at,omitempty" db:"last_nudged_at"`
	CreatedAt        time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at" db:"updated_at"`
}
