package query

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/jmaddaus/cookiewatch/internal/model"
	"github.com/jmaddaus/cookiewatch/internal/store"
)

// boardCap limits the top-performer and worst-offender lists.
const boardCap = 5

// Facade serves read-only projections of claim state. Every method is a
// pure filter/sort with no side effects. When the store is unreachable a
// query returns an empty, degraded result rather than an error, so the
// presentation layer can render a "data unavailable" state instead of
// failing the page.
type Facade struct {
	store store.Store
	log   *slog.Logger
	now   func() time.Time
}

func New(st store.Store, log *slog.Logger) *Facade {
	return &Facade{store: st, log: log, now: time.Now}
}

// ClaimSet is a claim listing, possibly degraded.
type ClaimSet struct {
	Claims   []*model.Claim `json:"claims"`
	Degraded bool           `json:"degraded,omitempty"`
}

// BoardSet is a shame board listing, possibly degraded.
type BoardSet struct {
	Entries  []*model.ShameEntry `json:"entries"`
	Degraded bool                `json:"degraded,omitempty"`
}

// ActivitySet is an activity feed listing, possibly degraded.
type ActivitySet struct {
	Entries  []*model.Activity `json:"entries"`
	Degraded bool              `json:"degraded,omitempty"`
}

// RepositorySet is a repository listing, possibly degraded.
type RepositorySet struct {
	Repositories []*model.Repository `json:"repositories"`
	Degraded     bool                `json:"degraded,omitempty"`
}

func (f *Facade) degraded(what string, err error) bool {
	if errors.Is(err, store.ErrUnavailable) {
		f.log.Warn("store unavailable, serving degraded result", "query", what, "error", err)
		return true
	}
	return false
}

// Claims lists claims matching the filter, newest claim first.
func (f *Facade) Claims(ctx context.Context, filter store.ClaimFilter) (*ClaimSet, error) {
	claims, err := f.store.ListClaims(ctx, filter)
	if err != nil {
		if f.degraded("claims", err) {
			return &ClaimSet{Claims: []*model.Claim{}, Degraded: true}, nil
		}
		return nil, err
	}
	return &ClaimSet{Claims: claims}, nil
}

// Claim returns a single claim with its audit trail.
func (f *Facade) Claim(ctx context.Context, id int) (*model.Claim, []*model.Activity, error) {
	claim, err := f.store.GetClaim(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	entries, err := f.store.ListActivity(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return claim, entries, nil
}

// Nudgeable lists claims inside the nudge window.
func (f *Facade) Nudgeable(ctx context.Context) (*ClaimSet, error) {
	claims, err := f.store.NudgeEligible(ctx, f.now())
	if err != nil {
		if f.degraded("nudgeable", err) {
			return &ClaimSet{Claims: []*model.Claim{}, Degraded: true}, nil
		}
		return nil, err
	}
	return &ClaimSet{Claims: claims}, nil
}

// Stale lists claims past their auto-release deadline.
func (f *Facade) Stale(ctx context.Context) (*ClaimSet, error) {
	claims, err := f.store.StaleClaims(ctx, f.now())
	if err != nil {
		if f.degraded("stale", err) {
			return &ClaimSet{Claims: []*model.Claim{}, Degraded: true}, nil
		}
		return nil, err
	}
	return &ClaimSet{Claims: claims}, nil
}

// Board returns the full leaderboard, best score first.
func (f *Facade) Board(ctx context.Context) (*BoardSet, error) {
	entries, err := f.store.ListShameEntries(ctx)
	if err != nil {
		if f.degraded("board", err) {
			return &BoardSet{Entries: []*model.ShameEntry{}, Degraded: true}, nil
		}
		return nil, err
	}
	return &BoardSet{Entries: entries}, nil
}

// TopPerformers returns contributors with at least one completion, best
// score first, capped.
func (f *Facade) TopPerformers(ctx context.Context) (*BoardSet, error) {
	board, err := f.Board(ctx)
	if err != nil {
		return nil, err
	}
	if board.Degraded {
		return board, nil
	}

	var top []*model.ShameEntry
	for _, e := range board.Entries {
		if e.TotalCompleted >= 1 {
			top = append(top, e)
		}
	}
	sort.SliceStable(top, func(i, j int) bool {
		return top[i].ReliabilityScore > top[j].ReliabilityScore
	})
	if len(top) > boardCap {
		top = top[:boardCap]
	}
	return &BoardSet{Entries: top}, nil
}

// WorstOffenders returns contributors with at least two abandonments,
// worst score first, capped.
func (f *Facade) WorstOffenders(ctx context.Context) (*BoardSet, error) {
	board, err := f.Board(ctx)
	if err != nil {
		return nil, err
	}
	if board.Degraded {
		return board, nil
	}

	var worst []*model.ShameEntry
	for _, e := range board.Entries {
		if e.TotalAbandoned >= 2 {
			worst = append(worst, e)
		}
	}
	sort.SliceStable(worst, func(i, j int) bool {
		return worst[i].ReliabilityScore < worst[j].ReliabilityScore
	})
	if len(worst) > boardCap {
		worst = worst[:boardCap]
	}
	return &BoardSet{Entries: worst}, nil
}

// Repositories lists tracked repositories, most recently scanned first.
func (f *Facade) Repositories(ctx context.Context) (*RepositorySet, error) {
	repos, err := f.store.ListRepositories(ctx)
	if err != nil {
		if f.degraded("repositories", err) {
			return &RepositorySet{Repositories: []*model.Repository{}, Degraded: true}, nil
		}
		return nil, err
	}
	return &RepositorySet{Repositories: repos}, nil
}

// RecentActivity returns the newest audit entries, most recent first.
func (f *Facade) RecentActivity(ctx context.Context, limit int) (*ActivitySet, error) {
	entries, err := f.store.RecentActivity(ctx, limit)
	if err != nil {
		if f.degraded("activity", err) {
			return &ActivitySet{Entries: []*model.Activity{}, Degraded: true}, nil
		}
		return nil, err
	}
	return &ActivitySet{Entries: entries}, nil
}
