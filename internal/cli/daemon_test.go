package cli

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestWaitForDaemon_AlreadyRunning(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}))
	t.Cleanup(ts.Close)

	client := NewClient(ts.URL)
	if err := waitForDaemon(client, 2*time.Second); err != nil {
		t.Fatalf("waitForDaemon: %v", err)
	}
}

func TestWaitForDaemon_StartsLate(t *testing.T) {
	callCount := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount++
		if callCount < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}))
	t.Cleanup(ts.Close)

	client := NewClient(ts.URL)
	if err := waitForDaemon(client, 5*time.Second); err != nil {
		t.Fatalf("waitForDaemon should succeed after retries: %v", err)
	}
	if callCount < 3 {
		t.Errorf("expected at least 3 calls, got %d", callCount)
	}
}

func TestWaitForDaemon_Timeout(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(ts.Close)

	client := NewClient(ts.URL)
	err := waitForDaemon(client, 500*time.Millisecond)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !strings.Contains(err.Error(), "did not respond") {
		t.Errorf("expected 'did not respond' in error, got: %v", err)
	}
}

func TestRunDaemonBackground_AlreadyRunning(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}))
	t.Cleanup(ts.Close)

	gf := globalFlags{host: ts.URL}
	err := runDaemonBackground(gf)
	if err == nil {
		t.Fatal("expected error when daemon already running")
	}
	if !strings.Contains(err.Error(), "already running") {
		t.Errorf("expected 'already running' in error, got: %v", err)
	}
}
