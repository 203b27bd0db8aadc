package model

import "time"

// Outcome is a terminal result recorded against a claimer.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeAbandoned Outcome = "abandoned"
)

// ShameEntry holds per-contributor reliability aggregates, one per username.
// ReliabilityScore is completed/(completed+abandoned)*100, defined as 100
// when there is no history yet. Both counters are monotonic.
type ShameEntry struct {
	ID               int       `json:"id" db:"id"`
	Username         string    `json:"username" db:"username"`
	TotalCompleted   int       `json:"total_completed" db:"total_completed"`
	TotalAbandoned   int       `json:"total_abandoned" db:"total_abandoned"`
	ReliabilityScore float64   `json:"reliability_score" db:"reliability_score"`
	LastUpdatedAt    time.Time `json:"last_updated_at" db:"last_updated_at"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}
