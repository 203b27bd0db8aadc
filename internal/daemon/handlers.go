package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jmaddaus/cookiewatch/internal/model"
	"github.com/jmaddaus/cookiewatch/internal/store"
)

// writeJSON writes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Headers are already sent; nothing useful to do here.
		return
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, format string, args ...interface{}) {
	writeJSON(w, status, map[string]string{"error": fmt.Sprintf(format, args...)})
}

// readJSON decodes the request body into v, rejecting unknown fields.
func readJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// commandResponse is the envelope for command endpoints. Exactly one of the
// result fields is set, matching the command that ran.
type commandResponse struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Scan    *scanResponse     `json:"scan,omitempty"`
	Sweep   *sweepResponse    `json:"sweep,omitempty"`
	Nudges  *nudgeAllResponse `json:"nudges,omitempty"`
	Claim   *model.Claim      `json:"claim,omitempty"`
}

type scanResponse struct {
	Repository    *model.Repository `json:"repository"`
	IssuesScanned int               `json:"issues_scanned"`
	Detected      int               `json:"detected"`
	Updated       int               `json:"updated"`
	Skipped       int               `json:"skipped"`
}

type sweepResponse struct {
	Checked  int `json:"checked"`
	Released int `json:"released"`
	Spared   int `json:"spared"`
	Failed   int `json:"failed"`
}

type nudgeAllResponse struct {
	Eligible int `json:"eligible"`
	Nudged   int `json:"nudged"`
	Failed   int `json:"failed"`
}

// writeServiceError maps service and store errors onto HTTP status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "%v", err)
	case errors.Is(err, store.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, "%v", err)
	case strings.Contains(err.Error(), "cannot be"):
		// Invalid lifecycle transition (terminal claim).
		writeError(w, http.StatusConflict, "%v", err)
	default:
		writeError(w, http.StatusInternalServerError, "%v", err)
	}
}

// claimID extracts and validates the {id} path segment.
func claimID(r *http.Request) (int, error) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid claim id %q", r.PathValue("id"))
	}
	return id, nil
}

// splitRepo parses "owner/name" into its parts.
func splitRepo(full string) (owner, name string, err error) {
	parts := strings.Split(strings.TrimSpace(full), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("repository must be in owner/name form, got %q", full)
	}
	return parts[0], parts[1], nil
}

// health reports daemon and storage status.
func (d *Daemon) health(w http.ResponseWriter, r *http.Request) {
	storage := "ok"
	status := "ok"
	if err := d.store.Ping(r.Context()); err != nil {
		storage = "unreachable"
		status = "degraded"
	}

	resp := map[string]interface{}{
		"status":  status,
		"storage": storage,
		"driver":  d.cfg.Driver,
	}
	if storage == "ok" {
		if repos, err := d.store.ListRepositories(r.Context()); err == nil {
			resp["repositories"] = len(repos)
		}
	}
	if !d.startedAt.IsZero() {
		resp["uptime"] = time.Since(d.startedAt).Round(time.Second).String()
	}
	writeJSON(w, http.StatusOK, resp)
}

// scan triggers a scan of one repository. The body names the repository
// either as {"repo": "owner/name"} or as {"owner": ..., "name": ...}.
func (d *Daemon) scan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Repo  string `json:"repo"`
		Owner string `json:"owner"`
		Name  string `json:"name"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: %v", err)
		return
	}

	owner, name := req.Owner, req.Name
	if req.Repo != "" {
		var err error
		owner, name, err = splitRepo(req.Repo)
		if err != nil {
			writeError(w, http.StatusBadRequest, "%v", err)
			return
		}
	}
	if owner == "" || name == "" {
		writeError(w, http.StatusBadRequest, "repository is required")
		return
	}

	result, err := d.svc.ScanRepository(r.Context(), owner, name)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, commandResponse{
		Success: true,
		Message: fmt.Sprintf("scanned %s/%s: %d issues, %d new claims, %d updated",
			owner, name, result.IssuesScanned, result.Detected, result.Updated),
		Scan: &scanResponse{
			Repository:    result.Repository,
			IssuesScanned: result.IssuesScanned,
			Detected:      result.Detected,
			Updated:       result.Updated,
			Skipped:       result.Skipped,
		},
	})
}

// sweep releases claims whose grace period has expired.
func (d *Daemon) sweep(w http.ResponseWriter, r *http.Request) {
	result, err := d.svc.SweepStale(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, commandResponse{
		Success: true,
		Message: fmt.Sprintf("sweep checked %d claims: %d released, %d spared",
			result.Checked, result.Released, result.Spared),
		Sweep: &sweepResponse{
			Checked:  result.Checked,
			Released: result.Released,
			Spared:   result.Spared,
			Failed:   result.Failed,
		},
	})
}

// nudgeAll nudges every claim inside the nudge window.
func (d *Daemon) nudgeAll(w http.ResponseWriter, r *http.Request) {
	result, err := d.svc.NudgeAll(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, commandResponse{
		Success: true,
		Message: fmt.Sprintf("nudged %d of %d eligible claims", result.Nudged, result.Eligible),
		Nudges: &nudgeAllResponse{
			Eligible: result.Eligible,
			Nudged:   result.Nudged,
			Failed:   result.Failed,
		},
	})
}

// nudgeClaim nudges a single claim by ID.
func (d *Daemon) nudgeClaim(w http.ResponseWriter, r *http.Request) {
	id, err := claimID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}

	claim, err := d.svc.Nudge(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, commandResponse{
		Success: true,
		Message: fmt.Sprintf("nudged %s on issue #%d (nudge %d)",
			claim.ClaimerUsername, claim.IssueNumber, claim.NudgeCount),
		Claim: claim,
	})
}

// releaseClaim manually releases a claim. An optional body supplies a reason.
func (d *Daemon) releaseClaim(w http.ResponseWriter, r *http.Request) {
	id, err := claimID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if r.ContentLength > 0 {
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: %v", err)
			return
		}
	}

	claim, err := d.svc.Release(r.Context(), id, req.Reason)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, commandResponse{
		Success: true,
		Message: fmt.Sprintf("released claim by %s on issue #%d", claim.ClaimerUsername, claim.IssueNumber),
		Claim:   claim,
	})
}

// completeClaim marks a claim as completed.
func (d *Daemon) completeClaim(w http.ResponseWriter, r *http.Request) {
	id, err := claimID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}

	claim, err := d.svc.Complete(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, commandResponse{
		Success: true,
		Message: fmt.Sprintf("completed claim by %s on issue #%d", claim.ClaimerUsername, claim.IssueNumber),
		Claim:   claim,
	})
}

// listClaims lists claims, optionally filtered by ?repo=owner/name,
// ?status=, and ?claimer=.
func (d *Daemon) listClaims(w http.ResponseWriter, r *http.Request) {
	var filter store.ClaimFilter

	if repoParam := r.URL.Query().Get("repo"); repoParam != "" {
		owner, name, err := splitRepo(repoParam)
		if err != nil {
			writeError(w, http.StatusBadRequest, "%v", err)
			return
		}
		repo, err := d.store.GetRepositoryByName(r.Context(), owner, name)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		filter.RepositoryID = repo.ID
	}

	if statusParam := r.URL.Query().Get("status"); statusParam != "" {
		status := model.ClaimStatus(statusParam)
		if !status.Valid() {
			writeError(w, http.StatusBadRequest, "invalid status %q", statusParam)
			return
		}
		filter.Status = status
	}

	filter.Claimer = r.URL.Query().Get("claimer")

	set, err := d.facade.Claims(r.Context(), filter)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, set)
}

// getClaim returns one claim with its full audit trail.
func (d *Daemon) getClaim(w http.ResponseWriter, r *http.Request) {
	id, err := claimID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}

	claim, activity, err := d.facade.Claim(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"claim":    claim,
		"activity": activity,
	})
}

// listClaimActivity returns the audit trail for one claim.
func (d *Daemon) listClaimActivity(w http.ResponseWriter, r *http.Request) {
	id, err := claimID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}

	_, activity, err := d.facade.Claim(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, activity)
}

func (d *Daemon) listNudgeable(w http.ResponseWriter, r *http.Request) {
	set, err := d.facade.Nudgeable(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, set)
}

func (d *Daemon) listStale(w http.ResponseWriter, r *http.Request) {
	set, err := d.facade.Stale(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, set)
}

func (d *Daemon) board(w http.ResponseWriter, r *http.Request) {
	set, err := d.facade.Board(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, set)
}

func (d *Daemon) boardTop(w http.ResponseWriter, r *http.Request) {
	set, err := d.facade.TopPerformers(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, set)
}

func (d *Daemon) boardWorst(w http.ResponseWriter, r *http.Request) {
	set, err := d.facade.WorstOffenders(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, set)
}

func (d *Daemon) listRepos(w http.ResponseWriter, r *http.Request) {
	set, err := d.facade.Repositories(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, set)
}

// recentActivity returns the newest audit entries. ?limit= caps the count.
func (d *Daemon) recentActivity(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		n, err := strconv.Atoi(limitParam)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit %q", limitParam)
			return
		}
		limit = n
	}

	set, err := d.facade.RecentActivity(r.Context(), limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, set)
}
