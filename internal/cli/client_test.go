package cli

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jmaddaus/cookiewatch/internal/model"
	"github.com/jmaddaus/cookiewatch/internal/query"
)

// newTestServer creates an httptest server that routes to the given handler func.
func newTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *Client) {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return ts, NewClient(ts.URL)
}

func TestClientScan(t *testing.T) {
	var gotMethod, gotPath, gotRepo string
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		var body struct {
			Repo string `json:"repo"`
		}
		data, _ := io.ReadAll(r.Body)
		json.Unmarshal(data, &body)
		gotRepo = body.Repo

		json.NewEncoder(w).Encode(CommandResult{
			Success: true,
			Message: "scanned",
			Scan:    &ScanSummary{IssuesScanned: 5, Detected: 2},
		})
	})

	result, err := c.Scan("octo/hello")
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if gotMethod != "POST" || gotPath != "/scan" {
		t.Errorf("request: %s %s, want POST /scan", gotMethod, gotPath)
	}
	if gotRepo != "octo/hello" {
		t.Errorf("repo in body: want octo/hello, got %s", gotRepo)
	}
	if !result.Success || result.Scan.Detected != 2 {
		t.Errorf("result = %+v", result)
	}
}

func TestClientNudge(t *testing.T) {
	var gotPath string
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewEncoder(w).Encode(CommandResult{
			Success: true,
			Claim:   &model.Claim{ID: 7, NudgeCount: 2},
		})
	})

	result, err := c.Nudge(7)
	if err != nil {
		t.Fatalf("Nudge: %v", err)
	}
	if gotPath != "/claims/7/nudge" {
		t.Errorf("path: want /claims/7/nudge, got %s", gotPath)
	}
	if result.Claim.NudgeCount != 2 {
		t.Errorf("nudge count = %d, want 2", result.Claim.NudgeCount)
	}
}

func TestClientReleaseSendsReason(t *testing.T) {
	var gotBody string
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		gotBody = string(data)
		json.NewEncoder(w).Encode(CommandResult{Success: true})
	})

	if _, err := c.Release(3, "claimer asked"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	var body struct {
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal([]byte(gotBody), &body); err != nil {
		t.Fatalf("unmarshal body %q: %v", gotBody, err)
	}
	if body.Reason != "claimer asked" {
		t.Errorf("reason = %q, want 'claimer asked'", body.Reason)
	}
}

func TestClientReleaseNoReasonOmitsBody(t *testing.T) {
	var gotLen int64
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotLen = r.ContentLength
		json.NewEncoder(w).Encode(CommandResult{Success: true})
	})

	if _, err := c.Release(3, ""); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if gotLen > 0 {
		t.Errorf("expected empty body, got %d bytes", gotLen)
	}
}

func TestClientClaims(t *testing.T) {
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("repo") != "octo/hello" || q.Get("status") != "nudged" {
			t.Errorf("query = %v", q)
		}
		json.NewEncoder(w).Encode(query.ClaimSet{
			Claims: []*model.Claim{{ID: 1, IssueNumber: 42, ClaimerUsername: "alice"}},
		})
	})

	set, err := c.Claims(ClaimOpts{Repo: "octo/hello", Status: "nudged"})
	if err != nil {
		t.Fatalf("Claims: %v", err)
	}
	if len(set.Claims) != 1 || set.Claims[0].ClaimerUsername != "alice" {
		t.Fatalf("claims = %+v", set.Claims)
	}
}

func TestClientClaimDetail(t *testing.T) {
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/claims/9" {
			t.Errorf("path = %s, want /claims/9", r.URL.Path)
		}
		json.NewEncoder(w).Encode(ClaimDetail{
			Claim:    &model.Claim{ID: 9},
			Activity: []*model.Activity{{ID: 1, Action: model.ActionDetected}},
		})
	})

	detail, err := c.Claim(9)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if detail.Claim.ID != 9 || len(detail.Activity) != 1 {
		t.Fatalf("detail = %+v", detail)
	}
}

func TestClientErrorResponse(t *testing.T) {
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"error": "claim 3 is completed and cannot be released"})
	})

	_, err := c.Release(3, "")
	if err == nil {
		t.Fatal("expected error from 409 response")
	}
	want := "daemon error (409): claim 3 is completed and cannot be released"
	if err.Error() != want {
		t.Errorf("error = %q, want %q", err.Error(), want)
	}
}

func TestClientActivityLimit(t *testing.T) {
	var gotQuery string
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		json.NewEncoder(w).Encode(query.ActivitySet{})
	})

	if _, err := c.Activity(25); err != nil {
		t.Fatalf("Activity: %v", err)
	}
	if gotQuery != "limit=25" {
		t.Errorf("query = %q, want limit=25", gotQuery)
	}
}

func TestClientConnectionRefused(t *testing.T) {
	c := NewClient("http://127.0.0.1:1")
	_, err := c.Health()
	if err == nil {
		t.Fatal("expected connection error")
	}
}
