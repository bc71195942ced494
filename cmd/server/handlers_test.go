package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/himanishpuri/tunematch/pkg/logger"
	"github.com/himanishpuri/tunematch/pkg/models"
	"github.com/himanishpuri/tunematch/pkg/tunematch"
	"github.com/himanishpuri/tunematch/pkg/tunematch/metadata"
)

// textDecoder reads whitespace separated integers as samples.
var textDecoder = tunematch.DecoderFunc(func(ctx context.Context, path string) ([]float64, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, err
	}
	var out []float64
	for _, f := range strings.Fields(string(data)) {
		n, err := strconv.Atoi(f)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, float64(n))
	}
	return out, 8000, nil
})

// sampleExtractor emits hash "h<value>" at offset = sample index.
var sampleExtractor = tunematch.ExtractorFunc(func(ctx context.Context, samples []float64, rate int) ([]models.Fingerprint, error) {
	fps := make([]models.Fingerprint, len(samples))
	for i, s := range samples {
		fps[i] = models.Fingerprint{Hash: fmt.Sprintf("h%d", int(s)), Offset: int64(i)}
	}
	return fps, nil
})

// setupTestServer creates a server over a temporary SQLite catalog
func setupTestServer(t *testing.T, origins ...string) (*Server, http.Handler) {
	t.Helper()

	dir := t.TempDir()
	svc, err := tunematch.NewService(
		tunematch.WithDBPath(filepath.Join(dir, "test_server.sqlite3")),
		tunematch.WithLogger(logger.Nop()),
		tunematch.WithDecoder(textDecoder),
		tunematch.WithExtractor(sampleExtractor),
	)
	if err != nil {
		t.Fatalf("Failed to create service: %v", err)
	}
	t.Cleanup(func() {
		svc.Close()
	})

	provider := metadata.Static{
		"a.wav": {DisplayName: "Artist A - Song A", Artist: "Artist A", Title: "Song A", Link: "https://example.com/a"},
	}
	srv := NewServer(svc, &metadata.TagProvider{Overrides: provider}, &ServerConfig{
		DBPath:         "test_server.sqlite3",
		Backend:        tunematch.BackendSQLite,
		TempDir:        dir,
		SampleRate:     8000,
		AllowedOrigins: origins,
	})
	srv.log = logger.Nop()
	return srv, srv.setupRoutes()
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("Failed to decode %q: %v", rec.Body.String(), err)
	}
	return v
}

// ingestLibrary indexes a.wav and b.mp3 through the API
func ingestLibrary(t *testing.T, h http.Handler) {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{"a.wav": "1 2 3 4 5 6", "b.mp3": "10 11 12 13"}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	body, _ := json.Marshal(IngestRequest{Dir: dir})
	rec := doJSON(t, h, http.MethodPost, "/api/ingest", string(body))
	if rec.Code != http.StatusOK {
		t.Fatalf("Ingest returned %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode[IngestResponse](t, rec)
	if resp.Indexed != 2 || resp.Fingerprints != 10 || len(resp.Failures) != 0 {
		t.Fatalf("Unexpected ingest response %+v", resp)
	}
}

// TestHealth tests the health endpoint
func TestHealth(t *testing.T) {
	_, h := setupTestServer(t)
	rec := doJSON(t, h, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if got := decode[map[string]string](t, rec)["status"]; got != "healthy" {
		t.Errorf("Expected healthy, got %q", got)
	}
}

// TestIngestAndList tests indexing a directory and listing the catalog
func TestIngestAndList(t *testing.T) {
	_, h := setupTestServer(t)
	ingestLibrary(t, h)

	rec := doJSON(t, h, http.MethodGet, "/api/songs", "")
	list := decode[ListSongsResponse](t, rec)
	if list.Count != 2 {
		t.Fatalf("Expected 2 songs, got %+v", list)
	}
	byName := map[string]SongDTO{}
	for _, s := range list.Songs {
		byName[s.Filename] = s
	}
	if byName["a.wav"].Artist != "Artist A" || byName["a.wav"].Link == "" {
		t.Errorf("Expected CSV metadata for a.wav, got %+v", byName["a.wav"])
	}
	if byName["b.mp3"].DisplayName != "b" {
		t.Errorf("Expected filename fallback for b.mp3, got %+v", byName["b.mp3"])
	}

	stats := decode[StatsResponse](t, doJSON(t, h, http.MethodGet, "/api/stats", ""))
	if stats.Songs != 2 || stats.Fingerprints != 10 || stats.Backend != tunematch.BackendSQLite {
		t.Errorf("Unexpected stats %+v", stats)
	}
}

// TestIngestValidation tests rejected ingest requests
func TestIngestValidation(t *testing.T) {
	_, h := setupTestServer(t)

	tests := map[string]string{
		"empty body":   ``,
		"missing dir":  `{}`,
		"not a dir":    `{"dir": "/does/not/exist"}`,
		"invalid json": `{"dir":`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			if rec := doJSON(t, h, http.MethodPost, "/api/ingest", body); rec.Code != http.StatusBadRequest {
				t.Errorf("Expected 400, got %d", rec.Code)
			}
		})
	}

	if rec := doJSON(t, h, http.MethodGet, "/api/ingest", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", rec.Code)
	}
}

// TestMatchFingerprints tests matching pre-computed fingerprints with mixed offset encodings
func TestMatchFingerprints(t *testing.T) {
	_, h := setupTestServer(t)
	ingestLibrary(t, h)

	body := `[{"hash":"h3","offset":0},{"hash":"h4","offset":"1"},{"hash":"h5","offset":2}]`
	rec := doJSON(t, h, http.MethodPost, "/api/match/fingerprints", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode[MatchResponse](t, rec)
	if !resp.Matched || resp.Match == nil {
		t.Fatalf("Expected a match, got %+v", resp)
	}
	m := resp.Match
	if m.Filename != "a.wav" || m.Votes != 3 || m.Delta != 2 || m.DisplayName != "Artist A - Song A" {
		t.Errorf("Unexpected match %+v", m)
	}
	if m.OffsetSeconds != 0.128 {
		t.Errorf("Expected offset 0.128s, got %v", m.OffsetSeconds)
	}

	wrapped := `{"fingerprints":[{"hash":"h11","offset":0},{"hash":"h12","offset":1}]}`
	resp = decode[MatchResponse](t, doJSON(t, h, http.MethodPost, "/api/match/fingerprints", wrapped))
	if resp.Match == nil || resp.Match.Filename != "b.mp3" || resp.Match.Delta != 1 {
		t.Errorf("Unexpected match for wrapped body %+v", resp.Match)
	}
}

// TestMatchFingerprintsNoMatch tests a query whose hashes are not indexed
func TestMatchFingerprintsNoMatch(t *testing.T) {
	_, h := setupTestServer(t)
	ingestLibrary(t, h)

	rec := doJSON(t, h, http.MethodPost, "/api/match/fingerprints", `[{"hash":"nope","offset":0}]`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if resp := decode[MatchResponse](t, rec); resp.Matched || resp.Match != nil {
		t.Errorf("Expected no match, got %+v", resp)
	}
}

// TestMatchFingerprintsValidation tests malformed fingerprint queries
func TestMatchFingerprintsValidation(t *testing.T) {
	_, h := setupTestServer(t)

	tests := map[string]string{
		"empty":          `[]`,
		"empty hash":     `[{"hash":"","offset":0}]`,
		"text offset":    `[{"hash":"h1","offset":"abc"}]`,
		"fraction":       `[{"hash":"h1","offset":1.5}]`,
		"missing offset": `[{"hash":"h1"}]`,
		"huge offset":    `[{"hash":"h1","offset":9223372036854775808}]`,
		"float offset":   `[{"hash":"h1","offset":9.3e18}]`,
		"not json":       `hashes`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			if rec := doJSON(t, h, http.MethodPost, "/api/match/fingerprints", body); rec.Code != http.StatusBadRequest {
				t.Errorf("Expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
		})
	}

	var sb strings.Builder
	sb.WriteString("[")
	for i := 0; i <= MaxFingerprintsHardLimit; i++ {
		if i > 0 {
			sb.WriteString(",")
		}
		fmt.Fprintf(&sb, `{"hash":"h","offset":%d}`, i)
	}
	sb.WriteString("]")
	if rec := doJSON(t, h, http.MethodPost, "/api/match/fingerprints", sb.String()); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 above the hard limit, got %d", rec.Code)
	}
}

// TestMatchUpload tests matching a multipart audio upload
func TestMatchUpload(t *testing.T) {
	srv, h := setupTestServer(t)
	ingestLibrary(t, h)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("audio", "clip.wav")
	if err != nil {
		t.Fatal(err)
	}
	part.Write([]byte("11 12 13"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/match", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode[MatchResponse](t, rec)
	if resp.Match == nil || resp.Match.Filename != "b.mp3" || resp.Match.Delta != 1 || resp.Match.Votes != 3 {
		t.Errorf("Unexpected match %+v", resp.Match)
	}

	// Only the database should remain in the temp dir.
	entries, _ := os.ReadDir(srv.config.TempDir)
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".wav" {
			t.Errorf("Upload %s was not removed", e.Name())
		}
	}
}

// TestMatchUploadMissingFile tests a multipart request without the audio field
func TestMatchUploadMissingFile(t *testing.T) {
	_, h := setupTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("note", "no audio")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/match", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rec.Code)
	}
}

// TestSongLifecycle tests get and delete by ID
func TestSongLifecycle(t *testing.T) {
	_, h := setupTestServer(t)
	ingestLibrary(t, h)

	list := decode[ListSongsResponse](t, doJSON(t, h, http.MethodGet, "/api/songs", ""))
	id := list.Songs[0].ID
	path := fmt.Sprintf("/api/songs/%d", id)

	if rec := doJSON(t, h, http.MethodGet, path, ""); rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if rec := doJSON(t, h, http.MethodDelete, path, ""); rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 on delete, got %d", rec.Code)
	}
	if rec := doJSON(t, h, http.MethodGet, path, ""); rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 after delete, got %d", rec.Code)
	}
	if rec := doJSON(t, h, http.MethodDelete, path, ""); rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 on second delete, got %d", rec.Code)
	}

	for _, bad := range []string{"/api/songs/abc", "/api/songs/0", "/api/songs/"} {
		if rec := doJSON(t, h, http.MethodGet, bad, ""); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", bad, rec.Code)
		}
	}
	if rec := doJSON(t, h, http.MethodPut, path, ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", rec.Code)
	}
}

// TestCORS tests allowed and rejected origins and preflight handling
func TestCORS(t *testing.T) {
	_, h := setupTestServer(t, "https://app.example.com")

	req := httptest.NewRequest(http.MethodOptions, "/api/match", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("Expected 204 for preflight, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("Unexpected allow origin %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Expected no allow origin header, got %q", got)
	}
}

func TestParseOrigins(t *testing.T) {
	got := parseOrigins("https://a.com, https://b.com")
	if len(got) != 2 || got[1] != "https://b.com" {
		t.Errorf("Unexpected origins %v", got)
	}
	if got := parseOrigins("*"); len(got) != 1 || got[0] != "*" {
		t.Errorf("Unexpected wildcard %v", got)
	}
}

func TestGetClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	if ip := getClientIP(req); ip != "10.0.0.1" {
		t.Errorf("Expected remote addr, got %q", ip)
	}
	req.Header.Set("X-Forwarded-For", "1.2.3.4, 10.0.0.1")
	if ip := getClientIP(req); ip != "1.2.3.4" {
		t.Errorf("Expected forwarded addr, got %q", ip)
	}
}
