package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/thitiwat-dev/go-shortlink/pkg/adapters/handler"
	"github.com/thitiwat-dev/go-shortlink/pkg/adapters/repository/sqlite"
	"github.com/thitiwat-dev/go-shortlink/pkg/config"
	"github.com/thitiwat-dev/go-shortlink/pkg/core/services"
)

type linkResponse struct {
	ID            int64   `json:"id"`
	ShortURL      string  `json:"short_url"`
	Code          string  `json:"code"`
	TargetURL     string  `json:"target_url"`
	OwnerID       string  `json:"owner_id"`
	Clicks        int64   `json:"clicks"`
	LastClickedAt *string `json:"last_clicked_at"`
}

func setupServer(t *testing.T) (*httptest.Server, *http.Client) {
	t.Helper()

	dbURL := "file:" + filepath.Join(t.TempDir(), "e2e.db") + "?_pragma=busy_timeout(5000)"
	repo, err := sqlite.NewSQLiteRepository(dbURL)
	if err != nil {
		t.Fatalf("Failed to init db: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	service := services.NewLinkService(repo, logger, services.Options{})

	cfg := &config.Config{
		BaseURL:   "http://short.test",
		Ownership: config.OwnershipNone,
		JWTSecret: "e2e-secret",
	}

	server := httptest.NewServer(handler.NewRouter(cfg, service, logger))
	t.Cleanup(server.Close)

	client := server.Client()
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return server, client
}

func createLink(t *testing.T, client *http.Client, url, targetURL, customCode string) (*http.Response, linkResponse) {
	t.Helper()
	payload := map[string]string{"target_url": targetURL}
	if customCode != "" {
		payload["custom_code"] = customCode
	}
	body, _ := json.Marshal(payload)
	resp, err := client.Post(url+"/api/links", "application/json", bytes.NewBuffer(body))
	if err != nil {
		t.Fatalf("Failed JSON POST: %v", err)
	}
	defer resp.Body.Close()

	var created linkResponse
	_ = json.NewDecoder(resp.Body).Decode(&created)
	return resp, created
}

func TestIntegration(t *testing.T) {
	server, client := setupServer(t)

	// Create with an auto-generated code
	resp, created := createLink(t, client, server.URL, "https://example.com/a/b", "")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", resp.StatusCode)
	}
	if len(created.Code) != 6 {
		t.Errorf("Expected 6-char code, got %q", created.Code)
	}
	if created.Clicks != 0 || created.LastClickedAt != nil {
		t.Errorf("Fresh link must have zero clicks and no last click")
	}
	if created.ShortURL != "http://short.test/"+created.Code {
		t.Errorf("Short URL mismatch: %s", created.ShortURL)
	}

	// Redirect twice, counting clicks (no_stat skips the async visit row
	// so the assertion below is deterministic)
	for i := 0; i < 2; i++ {
		resp, err := client.Get(server.URL + "/" + created.Code + "?no_stat=1")
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusFound {
			t.Errorf("Redirect expected 302, got %d", resp.StatusCode)
		}
		if loc := resp.Header.Get("Location"); loc != "https://example.com/a/b" {
			t.Errorf("Redirect location mismatch: %s", loc)
		}
	}

	// Public metadata reflects both clicks and carries no owner
	resp2, err := client.Get(server.URL + "/api/links/public/" + created.Code)
	if err != nil {
		t.Fatal(err)
	}
	var public linkResponse
	json.NewDecoder(resp2.Body).Decode(&public)
	resp2.Body.Close()
	if public.Clicks != 2 {
		t.Errorf("Expected 2 clicks, got %d", public.Clicks)
	}
	if public.LastClickedAt == nil {
		t.Error("last_clicked_at should be set after resolutions")
	}
	if public.OwnerID != "" {
		t.Errorf("public view must not expose an owner, got %q", public.OwnerID)
	}
}

func TestIntegrationCustomCodeConflict(t *testing.T) {
	server, client := setupServer(t)

	resp, _ := createLink(t, client, server.URL, "https://example.com/first", "promo")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", resp.StatusCode)
	}

	resp, _ = createLink(t, client, server.URL, "https://example.com/second", "promo")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("Conflicting code expected 400, got %d", resp.StatusCode)
	}

	// The winner's target is untouched
	resp2, err := client.Get(server.URL + "/api/links/public/promo")
	if err != nil {
		t.Fatal(err)
	}
	var kept linkResponse
	json.NewDecoder(resp2.Body).Decode(&kept)
	resp2.Body.Close()
	if kept.TargetURL != "https://example.com/first" {
		t.Errorf("Existing link mutated by failed allocation: %s", kept.TargetURL)
	}
}

func TestIntegrationValidation(t *testing.T) {
	server, client := setupServer(t)

	resp, _ := createLink(t, client, server.URL, "not a url", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Invalid target expected 400, got %d", resp.StatusCode)
	}

	resp, _ = createLink(t, client, server.URL, "https://example.com", "bad code!")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Invalid code expected 400, got %d", resp.StatusCode)
	}

	resp2, err := client.Get(server.URL + "/nosuchcode")
	if err != nil {
		t.Fatal(err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusNotFound {
		t.Errorf("Unknown code expected 404, got %d", resp2.StatusCode)
	}
}

func TestIntegrationListAndDelete(t *testing.T) {
	server, client := setupServer(t)

	_, first := createLink(t, client, server.URL, "https://example.com/one", "")
	_, second := createLink(t, client, server.URL, "https://example.com/two", "")

	resp, err := client.Get(server.URL + "/api/links")
	if err != nil {
		t.Fatal(err)
	}
	var links []linkResponse
	json.NewDecoder(resp.Body).Decode(&links)
	resp.Body.Close()
	if len(links) != 2 {
		t.Fatalf("Expected 2 links, got %d", len(links))
	}

	// Delete the first link by id
	body, _ := json.Marshal(map[string]int64{"id": first.ID})
	req, _ := http.NewRequest(http.MethodDelete, server.URL+"/api/links", bytes.NewBuffer(body))
	resp, err = client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Delete expected 200, got %d", resp.StatusCode)
	}

	// The deleted code stops resolving; the other keeps working
	resp, _ = client.Get(server.URL + "/" + first.Code + "?no_stat=1")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Deleted code expected 404, got %d", resp.StatusCode)
	}
	resp, _ = client.Get(server.URL + "/" + second.Code + "?no_stat=1")
	resp.Body.Close()
	if resp.StatusCode != http.StatusFound {
		t.Errorf("Surviving code expected 302, got %d", resp.StatusCode)
	}

	// Deleting a missing id is a 404
	body, _ = json.Marshal(map[string]int64{"id": 9999})
	req, _ = http.NewRequest(http.MethodDelete, server.URL+"/api/links", bytes.NewBuffer(body))
	resp, err = client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Delete of unknown id expected 404, got %d", resp.StatusCode)
	}
}

func TestIntegrationQR(t *testing.T) {
	server, client := setupServer(t)

	_, created := createLink(t, client, server.URL, "https://example.com", "")

	resp, err := client.Get(server.URL + "/api/links/qr/" + created.Code)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("QR expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("QR content type: %s", ct)
	}
	png, _ := io.ReadAll(resp.Body)
	if !strings.HasPrefix(string(png), "\x89PNG") {
		t.Error("QR response is not a PNG")
	}

	resp, err = client.Get(server.URL + "/api/links/qr/nosuchcode")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("QR of unknown code expected 404, got %d", resp.StatusCode)
	}
}

func TestIntegrationStats(t *testing.T) {
	server, client := setupServer(t)

	_, created := createLink(t, client, server.URL, "https://example.com", "")

	// One redirect with visit recording enabled
	resp, err := client.Get(server.URL + "/" + created.Code)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	var stats struct {
		TotalClicks int64 `json:"total_clicks"`
	}
	resp, err = client.Get(server.URL + "/api/links/stats/" + strconv.FormatInt(created.ID, 10))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Stats expected 200, got %d", resp.StatusCode)
	}
	json.NewDecoder(resp.Body).Decode(&stats)
	// Clicks are counted synchronously on resolve; the visit row may
	// still be in flight, which only affects referrer/timeline detail.
	if stats.TotalClicks != 1 {
		t.Errorf("Expected 1 click, got %d", stats.TotalClicks)
	}
}
