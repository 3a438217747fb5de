package main

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"github.com/kalambet/clipvault/internal/config"
)

// testConfig points the CLI client at a httptest server.
func testConfig(t *testing.T, server *httptest.Server, token string) config.Config {
	t.Helper()
	u, err := url.Parse(server.URL)
	if err != nil {
		t.Fatalf("parsing test server url: %v", err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatalf("parsing test server port: %v", err)
	}
	var cfg config.Config
	cfg.Server.Port = port
	cfg.Admin.Token = token
	return cfg
}

func TestAPIGet_SendsBearerToken(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{}`))
	}))
	t.Cleanup(server.Close)

	cfg := testConfig(t, server, "sekrit")
	resp, err := apiGet(cfg, "/health")
	if err != nil {
		t.Fatalf("apiGet: %v", err)
	}
	resp.Body.Close()

	if gotAuth != "Bearer sekrit" {
		t.Errorf("Authorization = %q, want Bearer sekrit", gotAuth)
	}
}

func TestAPIGet_NoTokenNoHeader(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{}`))
	}))
	t.Cleanup(server.Close)

	resp, err := apiGet(testConfig(t, server, ""), "/health")
	if err != nil {
		t.Fatalf("apiGet: %v", err)
	}
	resp.Body.Close()

	if gotAuth != "" {
		t.Errorf("Authorization = %q, want empty", gotAuth)
	}
}

func TestAPIGet_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)

	if _, err := apiGet(testConfig(t, server, ""), "/health"); err == nil {
		t.Error("apiGet on 500 succeeded, want error")
	}
}

func TestColorize(t *testing.T) {
	orig := noColor
	t.Cleanup(func() { noColor = orig })

	noColor = false
	if got := colorize(colorGreen, "ok"); !strings.Contains(got, "ok") || got == "ok" {
		t.Errorf("colorize = %q, want wrapped text", got)
	}

	noColor = true
	if got := colorize(colorGreen, "ok"); got != "ok" {
		t.Errorf("colorize with no-color = %q, want plain text", got)
	}
}
