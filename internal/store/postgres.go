package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jmaddaus/cookiewatch/internal/model"
)

// pgSchema mirrors the SQLite migrations for Postgres. Statements are
// idempotent; the adapter applies them on open, like the SQLite adapter
// runs its migrations.
var pgSchema = []string{
	`CREATE TABLE IF NOT EXISTS repositories (
		id         SERIAL PRIMARY KEY,
		owner      TEXT NOT NULL,
		name       TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		UNIQUE(owner, name)
	)`,

	`CREATE TABLE IF NOT EXISTS claims (
		id                 SERIAL PRIMARY KEY,
		repository_id      INTEGER NOT NULL REFERENCES repositories(id),
		issue_number       INTEGER NOT NULL,
		issue_title        TEXT NOT NULL DEFAULT '',
		issue_url          TEXT NOT NULL DEFAULT '',
		claimer_username   TEXT NOT NULL,
		claimer_avatar_url TEXT NOT NULL DEFAULT '',
		claim_comment_id   BIGINT NOT NULL,
		claim_comment_text TEXT NOT NULL DEFAULT '',
		claimed_at         TIMESTAMPTZ NOT NULL,
		last_checked_at    TIMESTAMPTZ NOT NULL,
		has_linked_pr      BOOLEAN NOT NULL DEFAULT FALSE,
		auto_release_at    TIMESTAMPTZ NOT NULL,
		status             TEXT NOT NULL DEFAULT 'active',
		nudge_count        INTEGER NOT NULL DEFAULT 0,
		last_nudged_at     TIMESTAMPTZ,
		created_at         TIMESTAMPTZ NOT NULL,
		updated_at         TIMESTAMPTZ NOT NULL,
		UNIQUE(repository_id, issue_number, claimer_username)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_claims_status ON claims(status)`,
	`CREATE INDEX IF NOT EXISTS idx_claims_repo_status ON claims(repository_id, status)`,
	`CREATE INDEX IF NOT EXISTS idx_claims_release_due ON claims(status, auto_release_at)`,

	`CREATE TABLE IF NOT EXISTS activity_log (
		id         SERIAL PRIMARY KEY,
		claim_id   INTEGER,
		action     TEXT NOT NULL,
		payload    TEXT NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_activity_claim ON activity_log(claim_id)`,

	`CREATE TABLE IF NOT EXISTS shame_board (
		id                SERIAL PRIMARY KEY,
		username          TEXT NOT NULL UNIQUE,
		total_completed   INTEGER NOT NULL DEFAULT 0,
		total_abandoned   INTEGER NOT NULL DEFAULT 0,
		reliability_score DOUBLE PRECISION NOT NULL DEFAULT 100,
		last_updated_at   TIMESTAMPTZ NOT NULL,
		created_at        TIMESTAMPTZ NOT NULL
	)`,
}

// PostgresStore implements Store backed by a PostgreSQL database.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore connects to Postgres with the given DSN and applies the
// schema.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	for _, stmt := range pgSchema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply schema: %w", err)
		}
	}

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// isUniqueViolation reports whether err is a Postgres unique constraint error.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// ---------------------------------------------------------------------------
// Repositories
// ---------------------------------------------------------------------------

func (s *PostgresStore) GetOrCreateRepository(ctx context.Context, owner, name string) (*model.Repository, error) {
	var repo model.Repository
	err := s.db.GetContext(ctx, &repo,
		`SELECT * FROM repositories WHERE owner = $1 AND name = $2`, owner, name)
	if err == nil {
		return &repo, nil
	}
	if err != sql.ErrNoRows {
		return nil, err
	}

	now := time.Now().UTC()
	err = s.db.GetContext(ctx, &repo,
		`INSERT INTO repositories (owner, name, created_at, updated_at)
		 VALUES ($1, $2, $3, $3)
		 ON CONFLICT (owner, name) DO UPDATE SET updated_at = repositories.updated_at
		 RETURNING *`,
		owner, name, now)
	if err != nil {
		return nil, err
	}
	return &repo, nil
}

func (s *PostgresStore) GetRepository(ctx context.Context, id int) (*model.Repository, error) {
	var repo model.Repository
	err := s.db.GetContext(ctx, &repo, `SELECT * FROM repositories WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("repository %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &repo, nil
}

func (s *PostgresStore) GetRepositoryByName(ctx context.Context, owner, name string) (*model.Repository, error) {
	var repo model.Repository
	err := s.db.GetContext(ctx, &repo,
		`SELECT * FROM repositories WHERE owner = $1 AND name = $2`, owner, name)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("repository %s/%s: %w", owner, name, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &repo, nil
}

func (s *PostgresStore) TouchRepository(ctx context.Context, id int, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE repositories SET updated_at = $1 WHERE id = $2`, at.UTC(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("repository %d: %w", id, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) ListRepositories(ctx context.Context) ([]*model.Repository, error) {
	var repos []*model.Repository
	err := s.db.SelectContext(ctx, &repos,
		`SELECT * FROM repositories ORDER BY updated_at DESC`)
	return repos, err
}

// ---------------------------------------------------------------------------
// Claims
// ---------------------------------------------------------------------------

func (s *PostgresStore) CreateClaim(ctx context.Context, claim *model.Claim) (*model.Claim, error) {
	now := time.Now().UTC()
	if claim.CreatedAt.IsZero() {
		claim.CreatedAt = now
	}
	if claim.UpdatedAt.IsZero() {
		claim.UpdatedAt = now
	}
	if claim.Status == "" {
		claim.Status = model.ClaimActive
	}
	if claim.LastCheckedAt.IsZero() {
		claim.LastCheckedAt = now
	}

	var created model.Claim
	err := s.db.GetContext(ctx, &created,
		`INSERT INTO claims (repository_id, issue_number, issue_title, issue_url,
			claimer_username, claimer_avatar_url, claim_comment_id, claim_comment_text,
			claimed_at, last_checked_at, has_linked_pr, auto_release_at, status,
			nudge_count, last_nudged_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		 RETURNING *`,
		claim.RepositoryID, claim.IssueNumber, claim.IssueTitle, claim.IssueURL,
		claim.ClaimerUsername, claim.ClaimerAvatarURL, claim.CommentID, claim.CommentText,
		claim.ClaimedAt.UTC(), claim.LastCheckedAt.UTC(), claim.HasLinkedPR,
		claim.AutoReleaseAt.UTC(), string(claim.Status),
		claim.NudgeCount, claim.LastNudgedAt, claim.CreatedAt.UTC(), claim.UpdatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("claim for %s on issue #%d: %w",
				claim.ClaimerUsername, claim.IssueNumber, ErrDuplicate)
		}
		return nil, err
	}
	return &created, nil
}

func (s *PostgresStore) GetClaim(ctx context.Context, id int) (*model.Claim, error) {
	var claim model.Claim
	err := s.db.GetContext(ctx, &claim, `SELECT * FROM claims WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("claim %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &claim, nil
}

func (s *PostgresStore) FindClaim(ctx context.Context, repositoryID, issueNumber int, claimer string) (*model.Claim, error) {
	var claim model.Claim
	err := s.db.GetContext(ctx, &claim,
		`SELECT * FROM claims
		 WHERE repository_id = $1 AND issue_number = $2 AND claimer_username = $3`,
		repositoryID, issueNumber, claimer)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("claim by %s on issue #%d: %w", claimer, issueNumber, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &claim, nil
}

func (s *PostgresStore) ListClaims(ctx context.Context, filter ClaimFilter) ([]*model.Claim, error) {
	query := `SELECT * FROM claims WHERE 1=1`
	var args []interface{}

	if filter.RepositoryID != 0 {
		args = append(args, filter.RepositoryID)
		query += fmt.Sprintf(" AND repository_id = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.Claimer != "" {
		args = append(args, filter.Claimer)
		query += fmt.Sprintf(" AND claimer_username = $%d", len(args))
	}

	query += " ORDER BY claimed_at DESC"

	var claims []*model.Claim
	err := s.db.SelectContext(ctx, &claims, query, args...)
	return claims, err
}

func (s *PostgresStore) UpdateClaim(ctx context.Context, claim *model.Claim) error {
	claim.UpdatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx,
		`UPDATE claims SET issue_title=$1, issue_url=$2, claimer_avatar_url=$3,
			last_checked_at=$4, has_linked_pr=$5, status=$6, last_nudged_at=$7, updated_at=$8
		 WHERE id=$9`,
		claim.IssueTitle, claim.IssueURL, claim.ClaimerAvatarURL,
		claim.LastCheckedAt.UTC(), claim.HasLinkedPR, string(claim.Status),
		claim.LastNudgedAt, claim.UpdatedAt, claim.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("claim %d: %w", claim.ID, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) StaleClaims(ctx context.Context, now time.Time) ([]*model.Claim, error) {
	var claims []*model.Claim
	err := s.db.SelectContext(ctx, &claims,
		`SELECT * FROM claims
		 WHERE status IN ('active', 'nudged') AND auto_release_at <= $1
		 ORDER BY auto_release_at ASC`,
		now.UTC())
	return claims, err
}

func (s *PostgresStore) NudgeEligible(ctx context.Context, now time.Time) ([]*model.Claim, error) {
	var claims []*model.Claim
	err := s.db.SelectContext(ctx, &claims,
		`SELECT * FROM claims
		 WHERE status IN ('active', 'nudged')
		   AND has_linked_pr = FALSE
		   AND claimed_at <= $1
		   AND (last_nudged_at IS NULL OR last_nudged_at <= $2)
		 ORDER BY claimed_at ASC`,
		now.UTC().Add(-3*24*time.Hour), now.UTC().Add(-24*time.Hour))
	return claims, err
}

func (s *PostgresStore) MarkNudged(ctx context.Context, id int, at time.Time) (*model.Claim, error) {
	var claim model.Claim
	err := s.db.GetContext(ctx, &claim,
		`UPDATE claims
		 SET nudge_count = nudge_count + 1, last_nudged_at = $1, status = 'nudged', updated_at = $1
		 WHERE id = $2 AND status IN ('active', 'nudged')
		 RETURNING *`,
		at.UTC(), id)
	if err == sql.ErrNoRows {
		existing, getErr := s.GetClaim(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		return nil, fmt.Errorf("claim %d is %s and cannot be nudged", id, existing.Status)
	}
	if err != nil {
		return nil, err
	}
	return &claim, nil
}

// ---------------------------------------------------------------------------
// Activity log
// ---------------------------------------------------------------------------

func (s *PostgresStore) AppendActivity(ctx context.Context, entry *model.Activity) (*model.Activity, error) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.Payload == "" {
		entry.Payload = "{}"
	}

	var created model.Activity
	err := s.db.GetContext(ctx, &created,
		`INSERT INTO activity_log (claim_id, action, payload, created_at)
		 VALUES ($1, $2, $3, $4) RETURNING *`,
		entry.ClaimID, string(entry.Action), entry.Payload, entry.CreatedAt.UTC())
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *PostgresStore) ListActivity(ctx context.Context, claimID int) ([]*model.Activity, error) {
	var entries []*model.Activity
	err := s.db.SelectContext(ctx, &entries,
		`SELECT * FROM activity_log WHERE claim_id = $1 ORDER BY id`, claimID)
	return entries, err
}

func (s *PostgresStore) RecentActivity(ctx context.Context, limit int) ([]*model.Activity, error) {
	if limit <= 0 {
		limit = 50
	}
	var entries []*model.Activity
	err := s.db.SelectContext(ctx, &entries,
		`SELECT * FROM activity_log ORDER BY id DESC LIMIT $1`, limit)
	return entries, err
}

// ---------------------------------------------------------------------------
// Shame board
// ---------------------------------------------------------------------------

func (s *PostgresStore) RecordOutcome(ctx context.Context, username string, outcome model.Outcome, at time.Time) (*model.ShameEntry, error) {
	completedDelta, abandonedDelta := 0, 0
	switch outcome {
	case model.OutcomeCompleted:
		completedDelta = 1
	case model.OutcomeAbandoned:
		abandonedDelta = 1
	default:
		return nil, fmt.Errorf("unknown outcome: %s", outcome)
	}

	initialScore := 100.0
	if abandonedDelta == 1 {
		initialScore = 0.0
	}

	var entry model.ShameEntry
	err := s.db.GetContext(ctx, &entry,
		`INSERT INTO shame_board (username, total_completed, total_abandoned, reliability_score, last_updated_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $5)
		 ON CONFLICT (username) DO UPDATE SET
			total_completed = shame_board.total_completed + EXCLUDED.total_completed,
			total_abandoned = shame_board.total_abandoned + EXCLUDED.total_abandoned,
			reliability_score = (shame_board.total_completed + EXCLUDED.total_completed) * 100.0
				/ (shame_board.total_completed + EXCLUDED.total_completed
					+ shame_board.total_abandoned + EXCLUDED.total_abandoned),
			last_updated_at = EXCLUDED.last_updated_at
		 RETURNING *`,
		username, completedDelta, abandonedDelta, initialScore, at.UTC())
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *PostgresStore) GetShameEntry(ctx context.Context, username string) (*model.ShameEntry, error) {
	var entry model.ShameEntry
	err := s.db.GetContext(ctx, &entry,
		`SELECT * FROM shame_board WHERE username = $1`, username)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("shame board entry for %s: %w", username, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *PostgresStore) ListShameEntries(ctx context.Context) ([]*model.ShameEntry, error) {
	var entries []*model.ShameEntry
	err := s.db.SelectContext(ctx, &entries,
		`SELECT * FROM shame_board ORDER BY reliability_score DESC`)
	return entries, err
}
