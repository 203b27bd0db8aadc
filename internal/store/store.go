package store

import (
	"context"
	"errors"
	"time"

	"github.com/jmaddaus/cookiewatch/internal/model"
)

var (
	// ErrNotFound is returned when a referenced entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is returned when a create would violate a uniqueness
	// constraint. Callers treat this as "entity already exists" and fetch
	// the existing record.
	ErrDuplicate = errors.New("already exists")

	// ErrUnavailable is returned when the backing store cannot be reached.
	// Query-side callers degrade to an empty result on this error; command
	// handlers surface it as a failure.
	ErrUnavailable = errors.New("store unavailable")
)

// ClaimFilter holds optional filter criteria for listing claims.
type ClaimFilter struct {
	RepositoryID int
	Status       model.ClaimStatus
	Claimer      string
}

// Store defines the persistence interface for the claim tracker. Both the
// SQLite and Postgres adapters implement it; everything above this interface
// is backend-agnostic.
//
// MarkNudged and RecordOutcome are specified as atomic in-place updates:
// their counter increments must not be computed from a previously read
// snapshot, so concurrent invocations for the same claim or username never
// lose updates.
type Store interface {
	// Repositories
	GetOrCreateRepository(ctx context.Context, owner, name string) (*model.Repository, error)
	GetRepository(ctx context.Context, id int) (*model.Repository, error)
	GetRepositoryByName(ctx context.Context, owner, name string) (*model.Repository, error)
	TouchRepository(ctx context.Context, id int, at time.Time) error
	ListRepositories(ctx context.Context) ([]*model.Repository, error)

	// Claims
	CreateClaim(ctx context.Context, claim *model.Claim) (*model.Claim, error)
	GetClaim(ctx context.Context, id int) (*model.Claim, error)
	FindClaim(ctx context.Context, repositoryID, issueNumber int, claimer string) (*model.Claim, error)
	ListClaims(ctx context.Context, filter ClaimFilter) ([]*model.Claim, error)
	UpdateClaim(ctx context.Context, claim *model.Claim) error

	// StaleClaims returns non-terminal claims whose auto-release deadline
	// has passed.
	StaleClaims(ctx context.Context, now time.Time) ([]*model.Claim, error)

	// NudgeEligible returns claims with status in (active, nudged), no
	// linked PR, claimed at least three days ago, and either never nudged
	// or last nudged more than a day ago.
	NudgeEligible(ctx context.Context, now time.Time) ([]*model.Claim, error)

	// MarkNudged atomically increments the nudge counter, stamps the nudge
	// time, and sets status=nudged. It is a no-op on claims already in a
	// terminal status. Returns the updated claim.
	MarkNudged(ctx context.Context, id int, at time.Time) (*model.Claim, error)

	// Activity log (append-only)
	AppendActivity(ctx context.Context, entry *model.Activity) (*model.Activity, error)
	ListActivity(ctx context.Context, claimID int) ([]*model.Activity, error)
	RecentActivity(ctx context.Context, limit int) ([]*model.Activity, error)

	// Shame board. RecordOutcome lazily creates the entry and atomically
	// increments the matching counter, recomputing the reliability score in
	// the same statement.
	RecordOutcome(ctx context.Context, username string, outcome model.Outcome, at time.Time) (*model.ShameEntry, error)
	GetShameEntry(ctx context.Context, username string) (*model.ShameEntry, error)
	ListShameEntries(ctx context.Context) ([]*model.ShameEntry, error)

	Ping(ctx context.Context) error
	Close() error
}
