package model

import "time"

type ActionType string

const (
	ActionDetected  ActionType = "detected"
	ActionNudged    ActionType = "nudged"
	ActionReleased  ActionType = "released"
	ActionPRLinked  ActionType = "pr_linked"
	ActionCompleted ActionType = "completed"
)

// Activity is an append-only audit record. Entries are write-once and never
// read by any lifecycle decision; they exist for the notifications feed.
type Activity struct {
	ID        int        `json:"id" db:"id"`
	ClaimID   *int       `json:"claim_id,omitempty" db:"claim_id"`
	Action    ActionType `json:"action" db:"action"`
	Payload   string     `json:"payload" db:"payload"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}

// ActivityPayload is the structured data within an activity's payload JSON.
type ActivityPayload struct {
	Repository  string `json:"repository,omitempty"`
	IssueNumber int    `json:"issue_number,omitempty"`
	Claimer     string `json:"claimer,omitempty"`
	NudgeCount  int    `json:"nudge_count,omitempty"`
	Reason      string `json:"reason,omitempty"`
}
