package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func runRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := rootCmd()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func TestDashboardCmd_PrintsServerText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/dashboard.txt" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte("🌐 Uptime Monitoring Dashboard\n"))
	}))
	defer srv.Close()

	out, err := runRoot(t, "dashboard", "--server", srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "Uptime Monitoring Dashboard") {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestAddCmd_PostsMonitor(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/monitors" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"data":{"name":"api","url":"https://api.example.com","status":"up","avg_response_ms":41.7,"last_check_succeeded":true},"error":""}`))
	}))
	defer srv.Close()

	out, err := runRoot(t, "add", "api", "https://api.example.com", "--interval", "2m", "--timeout", "5s", "--server", srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["name"] != "api" || got["interval_seconds"] != float64(120) || got["timeout_seconds"] != float64(5) {
		t.Errorf("unexpected request body: %v", got)
	}
	if !strings.Contains(out, "Added api") || !strings.Contains(out, "up in 42ms") {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestAddCmd_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"data":null,"error":"monitor already exists: \"api\""}`))
	}))
	defer srv.Close()

	_, err := runRoot(t, "add", "api", "https://api.example.com", "--server", srv.URL)
	if err == nil || !strings.Contains(err.Error(), "409") || !strings.Contains(err.Error(), "already exists") {
		t.Errorf("expected conflict error, got %v", err)
	}
}

func TestAddCmd_RejectsBadURL(t *testing.T) {
	_, err := runRoot(t, "add", "api", "not a url", "--server", "http://127.0.0.1:1")
	if err == nil || !strings.Contains(err.Error(), "invalid url") {
		t.Errorf("expected invalid url error, got %v", err)
	}
}

func TestRemoveCmd(t *testing.T) {
	var method, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"removed":"my api"},"error":""}`))
	}))
	defer srv.Close()

	out, err := runRoot(t, "remove", "my api", "--server", srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if method != http.MethodDelete || path != "/api/monitors/my api" {
		t.Errorf("unexpected request %s %s", method, path)
	}
	if !strings.Contains(out, "Removed my api") {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestVersionCmd(t *testing.T) {
	out, err := runRoot(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "uptimewatch dev") {
		t.Errorf("unexpected version output: %q", out)
	}
}
