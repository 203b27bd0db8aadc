package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmaddaus/cookiewatch/internal/model"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and runs
// migrations. Use ":memory:" for an in-memory database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Enable WAL mode and foreign keys for better concurrency and integrity.
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec %s: %w", pragma, err)
		}
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// fmtTime renders a timestamp as UTC RFC3339. Stored times are always UTC so
// lexicographic TEXT comparison matches chronological order.
func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseStoredTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

// ---------------------------------------------------------------------------
// Repositories
// ---------------------------------------------------------------------------

const repoColumns = `id, owner, name, created_at, updated_at`

func (s *SQLiteStore) GetOrCreateRepository(ctx context.Context, owner, name string) (*model.Repository, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+repoColumns+` FROM repositories WHERE owner = ? AND name = ?`, owner, name)
	repo, err := scanRepo(row)
	if err == nil {
		return repo, nil
	}
	if err != sql.ErrNoRows {
		return nil, err
	}

	now := fmtTime(time.Now())
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO repositories (owner, name, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		owner, name, now, now)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			// Lost a create race; the row exists now.
			row := s.db.QueryRowContext(ctx,
				`SELECT `+repoColumns+` FROM repositories WHERE owner = ? AND name = ?`, owner, name)
			return scanRepo(row)
		}
		return nil, err
	}
	id, _ := res.LastInsertId()
	return s.GetRepository(ctx, int(id))
}

func (s *SQLiteStore) GetRepository(ctx context.Context, id int) (*model.Repository, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+repoColumns+` FROM repositories WHERE id = ?`, id)
	repo, err := scanRepo(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("repository %d: %w", id, ErrNotFound)
	}
	return repo, err
}

func (s *SQLiteStore) GetRepositoryByName(ctx context.Context, owner, name string) (*model.Repository, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+repoColumns+` FROM repositories WHERE owner = ? AND name = ?`, owner, name)
	repo, err := scanRepo(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("repository %s/%s: %w", owner, name, ErrNotFound)
	}
	return repo, err
}

func (s *SQLiteStore) TouchRepository(ctx context.Context, id int, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE repositories SET updated_at = ? WHERE id = ?`, fmtTime(at), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("repository %d: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) ListRepositories(ctx context.Context) ([]*model.Repository, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+repoColumns+` FROM repositories ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var repos []*model.Repository
	for rows.Next() {
		r, err := scanRepo(rows)
		if err != nil {
			return nil, err
		}
		repos = append(repos, r)
	}
	return repos, rows.Err()
}

// ---------------------------------------------------------------------------
// Claims
// ---------------------------------------------------------------------------

const claimColumns = `id, repository_id, issue_number, issue_title, issue_url,
	claimer_username, claimer_avatar_url, claim_comment_id, claim_comment_text,
	claimed_at, last_checked_at, has_linked_pr, auto_release_at, status,
	nudge_count, last_nudged_at, created_at, updated_at`

func (s *SQLiteStore) CreateClaim(ctx context.Context, claim *model.Claim) (*model.Claim, error) {
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

	var lastNudged *string
	if claim.LastNudgedAt != nil {
		t := fmtTime(*claim.LastNudgedAt)
		lastNudged = &t
	}
	linkedInt := 0
	if claim.HasLinkedPR {
		linkedInt = 1
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO claims (repository_id, issue_number, issue_title, issue_url,
			claimer_username, claimer_avatar_url, claim_comment_id, claim_comment_text,
			claimed_at, last_checked_at, has_linked_pr, auto_release_at, status,
			nudge_count, last_nudged_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		claim.RepositoryID, claim.IssueNumber, claim.IssueTitle, claim.IssueURL,
		claim.ClaimerUsername, claim.ClaimerAvatarURL, claim.CommentID, claim.CommentText,
		fmtTime(claim.ClaimedAt), fmtTime(claim.LastCheckedAt), linkedInt,
		fmtTime(claim.AutoReleaseAt), string(claim.Status),
		claim.NudgeCount, lastNudged, fmtTime(claim.CreatedAt), fmtTime(claim.UpdatedAt))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, fmt.Errorf("claim for %s on issue #%d: %w",
				claim.ClaimerUsername, claim.IssueNumber, ErrDuplicate)
		}
		return nil, err
	}
	id, _ := res.LastInsertId()
	return s.GetClaim(ctx, int(id))
}

func (s *SQLiteStore) GetClaim(ctx context.Context, id int) (*model.Claim, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+claimColumns+` FROM claims WHERE id = ?`, id)
	claim, err := scanClaim(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("claim %d: %w", id, ErrNotFound)
	}
	return claim, err
}

func (s *SQLiteStore) FindClaim(ctx context.Context, repositoryID, issueNumber int, claimer string) (*model.Claim, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+claimColumns+` FROM claims
		 WHERE repository_id = ? AND issue_number = ? AND claimer_username = ?`,
		repositoryID, issueNumber, claimer)
	claim, err := scanClaim(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("claim by %s on issue #%d: %w", claimer, issueNumber, ErrNotFound)
	}
	return claim, err
}

func (s *SQLiteStore) ListClaims(ctx context.Context, filter ClaimFilter) ([]*model.Claim, error) {
	query := `SELECT ` + claimColumns + ` FROM claims WHERE 1=1`
	var args []interface{}

	if filter.RepositoryID != 0 {
		query += " AND repository_id = ?"
		args = append(args, filter.RepositoryID)
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	if filter.Claimer != "" {
		query += " AND claimer_username = ?"
		args = append(args, filter.Claimer)
	}

	query += " ORDER BY claimed_at DESC"

	return s.queryClaims(ctx, query, args...)
}

func (s *SQLiteStore) UpdateClaim(ctx context.Context, claim *model.Claim) error {
	claim.UpdatedAt = time.Now().UTC()

	var lastNudged *string
	if claim.LastNudgedAt != nil {
		t := fmtTime(*claim.LastNudgedAt)
		lastNudged = &t
	}
	linkedInt := 0
	if claim.HasLinkedPR {
		linkedInt = 1
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE claims SET issue_title=?, issue_url=?, claimer_avatar_url=?,
			last_checked_at=?, has_linked_pr=?, status=?, last_nudged_at=?, updated_at=?
		 WHERE id=?`,
		claim.IssueTitle, claim.IssueURL, claim.ClaimerAvatarURL,
		fmtTime(claim.LastCheckedAt), linkedInt, string(claim.Status),
		lastNudged, fmtTime(claim.UpdatedAt), claim.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("claim %d: %w", claim.ID, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) StaleClaims(ctx context.Context, now time.Time) ([]*model.Claim, error) {
	return s.queryClaims(ctx,
		`SELECT `+claimColumns+` FROM claims
		 WHERE status IN ('active', 'nudged') AND auto_release_at <= ?
		 ORDER BY auto_release_at ASC`,
		fmtTime(now))
}

func (s *SQLiteStore) NudgeEligible(ctx context.Context, now time.Time) ([]*model.Claim, error) {
	threeDaysAgo := fmtTime(now.Add(-3 * 24 * time.Hour))
	oneDayAgo := fmtTime(now.Add(-24 * time.Hour))

	return s.queryClaims(ctx,
		`SELECT `+claimColumns+` FROM claims
		 WHERE status IN ('active', 'nudged')
		   AND has_linked_pr = 0
		   AND claimed_at <= ?
		   AND (last_nudged_at IS NULL OR last_nudged_at <= ?)
		 ORDER BY claimed_at ASC`,
		threeDaysAgo, oneDayAgo)
}

func (s *SQLiteStore) MarkNudged(ctx context.Context, id int, at time.Time) (*model.Claim, error) {
	// Increment in place; a read-then-write here would drop counts under
	// concurrent nudges. The status guard keeps terminal claims untouched.
	res, err := s.db.ExecContext(ctx,
		`UPDATE claims
		 SET nudge_count = nudge_count + 1, last_nudged_at = ?, status = 'nudged', updated_at = ?
		 WHERE id = ? AND status IN ('active', 'nudged')`,
		fmtTime(at), fmtTime(at), id)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		claim, err := s.GetClaim(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("claim %d is %s and cannot be nudged", id, claim.Status)
	}
	return s.GetClaim(ctx, id)
}

func (s *SQLiteStore) queryClaims(ctx context.Context, query string, args ...interface{}) ([]*model.Claim, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var claims []*model.Claim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, err
		}
		claims = append(claims, c)
	}
	return claims, rows.Err()
}

// ---------------------------------------------------------------------------
// Activity log
// ---------------------------------------------------------------------------

const activityColumns = `id, claim_id, action, payload, created_at`

func (s *SQLiteStore) AppendActivity(ctx context.Context, entry *model.Activity) (*model.Activity, error) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.Payload == "" {
		entry.Payload = "{}"
	}

	var claimID *int
	if entry.ClaimID != nil {
		claimID = entry.ClaimID
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO activity_log (claim_id, action, payload, created_at) VALUES (?, ?, ?, ?)`,
		claimID, string(entry.Action), entry.Payload, fmtTime(entry.CreatedAt))
	if err != nil {
		return nil, err
	}
	id, _ := res.LastInsertId()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+activityColumns+` FROM activity_log WHERE id = ?`, id)
	return scanActivity(row)
}

func (s *SQLiteStore) ListActivity(ctx context.Context, claimID int) ([]*model.Activity, error) {
	return s.queryActivity(ctx,
		`SELECT `+activityColumns+` FROM activity_log WHERE claim_id = ? ORDER BY id`, claimID)
}

func (s *SQLiteStore) RecentActivity(ctx context.Context, limit int) ([]*model.Activity, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.queryActivity(ctx,
		`SELECT `+activityColumns+` FROM activity_log ORDER BY id DESC LIMIT ?`, limit)
}

func (s *SQLiteStore) queryActivity(ctx context.Context, query string, args ...interface{}) ([]*model.Activity, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*model.Activity
	for rows.Next() {
		e, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ---------------------------------------------------------------------------
// Shame board
// ---------------------------------------------------------------------------

const shameColumns = `id, username, total_completed, total_abandoned, reliability_score, last_updated_at, created_at`

func (s *SQLiteStore) RecordOutcome(ctx context.Context, username string, outcome model.Outcome, at time.Time) (*model.ShameEntry, error) {
	completedDelta, abandonedDelta := 0, 0
	switch outcome {
	case model.OutcomeCompleted:
		completedDelta = 1
	case model.OutcomeAbandoned:
		abandonedDelta = 1
	default:
		return nil, fmt.Errorf("unknown outcome: %s", outcome)
	}

	// First terminal event for a username seeds the row; every later one
	// increments in place and recomputes the score in the same statement.
	initialScore := 100.0
	if abandonedDelta == 1 {
		initialScore = 0.0
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO shame_board (username, total_completed, total_abandoned, reliability_score, last_updated_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(username) DO UPDATE SET
			total_completed = shame_board.total_completed + excluded.total_completed,
			total_abandoned = shame_board.total_abandoned + excluded.total_abandoned,
			reliability_score = (shame_board.total_completed + excluded.total_completed) * 100.0
				/ (shame_board.total_completed + excluded.total_completed
					+ shame_board.total_abandoned + excluded.total_abandoned),
			last_updated_at = excluded.last_updated_at`,
		username, completedDelta, abandonedDelta, initialScore, fmtTime(at), fmtTime(at))
	if err != nil {
		return nil, err
	}

	return s.GetShameEntry(ctx, username)
}

func (s *SQLiteStore) GetShameEntry(ctx context.Context, username string) (*model.ShameEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+shameColumns+` FROM shame_board WHERE username = ?`, username)
	entry, err := scanShame(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("shame board entry for %s: %w", username, ErrNotFound)
	}
	return entry, err
}

func (s *SQLiteStore) ListShameEntries(ctx context.Context) ([]*model.ShameEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+shameColumns+` FROM shame_board ORDER BY reliability_score DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*model.ShameEntry
	for rows.Next() {
		e, err := scanShame(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ---------------------------------------------------------------------------
// Scan helpers
// ---------------------------------------------------------------------------

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRepo(row scanner) (*model.Repository, error) {
	var r model.Repository
	var createdAt, updatedAt string
	err := row.Scan(&r.ID, &r.Owner, &r.Name, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	r.CreatedAt = parseStoredTime(createdAt)
	r.UpdatedAt = parseStoredTime(updatedAt)
	return &r, nil
}

func scanClaim(row scanner) (*model.Claim, error) {
	var c model.Claim
	var linkedInt int
	var claimedAt, lastCheckedAt, autoReleaseAt, createdAt, updatedAt string
	var lastNudgedAt sql.NullString

	err := row.Scan(&c.ID, &c.RepositoryID, &c.IssueNumber, &c.IssueTitle, &c.IssueURL,
		&c.ClaimerUsername, &c.ClaimerAvatarURL, &c.CommentID, &c.CommentText,
		&claimedAt, &lastCheckedAt, &linkedInt, &autoReleaseAt, &c.Status,
		&c.NudgeCount, &lastNudgedAt, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	c.HasLinkedPR = linkedInt != 0
	c.ClaimedAt = parseStoredTime(claimedAt)
	c.LastCheckedAt = parseStoredTime(lastCheckedAt)
	c.AutoReleaseAt = parseStoredTime(autoReleaseAt)
	c.CreatedAt = parseStoredTime(createdAt)
	c.UpdatedAt = parseStoredTime(updatedAt)
	if lastNudgedAt.Valid {
		t := parseStoredTime(lastNudgedAt.String)
		if !t.IsZero() {
			c.LastNudgedAt = &t
		}
	}
	return &c, nil
}

func scanActivity(row scanner) (*model.Activity, error) {
	var e model.Activity
	var claimID sql.NullInt64
	var createdAt string

	err := row.Scan(&e.ID, &claimID, &e.Action, &e.Payload, &createdAt)
	if err != nil {
		return nil, err
	}
	if claimID.Valid {
		v := int(claimID.Int64)
		e.ClaimID = &v
	}
	e.CreatedAt = parseStoredTime(createdAt)
	return &e, nil
}

func scanShame(row scanner) (*model.ShameEntry, error) {
	var e model.ShameEntry
	var lastUpdatedAt, createdAt string

	err := row.Scan(&e.ID, &e.Username, &e.TotalCompleted, &e.TotalAbandoned,
		&e.ReliabilityScore, &lastUpdatedAt, &createdAt)
	if err != nil {
		return nil, err
	}
	e.LastUpdatedAt = parseStoredTime(lastUpdatedAt)
	e.CreatedAt = parseStoredTime(createdAt)
	return &e, nil
}
