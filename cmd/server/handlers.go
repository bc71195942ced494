package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/himanishpuri/tunematch/pkg/logger"
	"github.com/himanishpuri/tunematch/pkg/models"
	"github.com/himanishpuri/tunematch/pkg/tunematch"
	"github.com/himanishpuri/tunematch/pkg/tunematch/fingerprint"
	"github.com/himanishpuri/tunematch/pkg/tunematch/metadata"
	"github.com/himanishpuri/tunematch/pkg/utils"
)

// maxUploadBytes bounds the in-memory part of a multipart upload
const maxUploadBytes = 50 << 20

// Server encapsulates the HTTP server and its dependencies
type Server struct {
	service  tunematch.Service
	provider metadata.Provider
	config   *ServerConfig
	log      tunematch.Logger
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int
	DBPath         string
	Backend        string
	TempDir        string
	SampleRate     int
	AllowedOrigins []string
}

// NewServer creates a new server instance. A nil provider falls back to
// metadata parsed from filenames.
func NewServer(service tunematch.Service, provider metadata.Provider, config *ServerConfig) *Server {
	if provider == nil {
		provider = &metadata.TagProvider{}
	}
	return &Server{
		service:  service,
		provider: provider,
		config:   config,
		log:      logger.GetLogger().WithPrefix("[http]"),
	}
}

// respondJSON writes a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Errorf("Failed to encode JSON response: %v", err)
	}
}

// respondError writes an error response
func (s *Server) respondError(w http.ResponseWriter, statusCode int, message string) {
	s.respondJSON(w, statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	})
}

func (s *Server) describe(filename string) metadata.Info {
	info, ok := s.provider.Lookup(filename)
	if !ok {
		info = metadata.FromFilename(filename)
	}
	return info
}

func (s *Server) songDTO(song models.Song) SongDTO {
	info := s.describe(song.Filename)
	dto := SongDTO{
		ID:          song.ID,
		Filename:    song.Filename,
		DisplayName: info.DisplayName,
		Artist:      info.Artist,
		Title:       info.Title,
		Link:        info.Link,
	}
	if !song.CreatedAt.IsZero() {
		dto.Added = humanize.Time(song.CreatedAt)
	}
	return dto
}

func (s *Server) matchResponse(match *models.Match) MatchResponse {
	if match == nil {
		return MatchResponse{}
	}
	info := s.describe(match.Filename)
	dto := &MatchDTO{
		SongID:      match.SongID,
		Filename:    match.Filename,
		DisplayName: info.DisplayName,
		Artist:      info.Artist,
		Title:       info.Title,
		Link:        info.Link,
		Votes:       match.Votes,
		RunnerUp:    match.RunnerUp,
		Delta:       match.Delta,
		QueryHashes: match.QueryHashes,
	}
	if s.config.SampleRate > 0 {
		dto.OffsetSeconds = float64(match.Delta*fingerprint.HopSize) / float64(s.config.SampleRate)
	}
	return MatchResponse{Matched: true, Match: dto}
}

// handleRoot handles GET /
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]any{
		"service": "tunematch API",
		"endpoints": map[string]string{
			"health":            "GET /health",
			"stats":             "GET /api/stats",
			"songs":             "GET /api/songs",
			"getSong":           "GET /api/songs/{id}",
			"deleteSong":        "DELETE /api/songs/{id}",
			"ingest":            "POST /api/ingest",
			"matchFile":         "POST /api/match",
			"matchFingerprints": "POST /api/match/fingerprints",
		},
	})
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// handleStats handles GET /api/stats
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	stats, err := s.service.Stats(r.Context())
	if err != nil {
		s.log.Errorf("Failed to read stats: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to retrieve stats")
		return
	}

	s.respondJSON(w, http.StatusOK, StatsResponse{
		Status:       "healthy",
		Backend:      stats.Backend,
		DatabasePath: s.config.DBPath,
		Songs:        stats.Songs,
		Fingerprints: stats.Fingerprints,
		SampleRate:   s.config.SampleRate,
		Summary: fmt.Sprintf("%s songs, %s fingerprints",
			humanize.Comma(stats.Songs), humanize.Comma(stats.Fingerprints)),
	})
}

// handleListSongs handles GET /api/songs
func (s *Server) handleListSongs(w http.ResponseWriter, r *http.Request) {
	songs, err := s.service.ListSongs(r.Context())
	if err != nil {
		s.log.Errorf("Failed to list songs: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to retrieve songs")
		return
	}

	dtos := make([]SongDTO, len(songs))
	for i, song := range songs {
		dtos[i] = s.songDTO(song)
	}
	s.respondJSON(w, http.StatusOK, ListSongsResponse{Songs: dtos, Count: len(dtos)})
}

// handleGetSong handles GET /api/songs/{id}
func (s *Server) handleGetSong(w http.ResponseWriter, r *http.Request, id uint) {
	song, err := s.service.GetSong(r.Context(), id)
	if errors.Is(err, tunematch.ErrSongNotFound) {
		s.respondError(w, http.StatusNotFound, fmt.Sprintf("Song %d not found", id))
		return
	}
	if err != nil {
		s.log.Errorf("Failed to get song %d: %v", id, err)
		s.respondError(w, http.StatusInternalServerError, "Failed to retrieve song")
		return
	}
	s.respondJSON(w, http.StatusOK, s.songDTO(*song))
}

// handleDeleteSong handles DELETE /api/songs/{id}
func (s *Server) handleDeleteSong(w http.ResponseWriter, r *http.Request, id uint) {
	err := s.service.DeleteSong(r.Context(), id)
	if errors.Is(err, tunematch.ErrSongNotFound) {
		s.respondError(w, http.StatusNotFound, fmt.Sprintf("Song %d not found", id))
		return
	}
	if err != nil {
		s.log.Errorf("Failed to delete song %d: %v", id, err)
		s.respondError(w, http.StatusInternalServerError, "Failed to delete song")
		return
	}
	s.respondJSON(w, http.StatusOK, DeleteSongResponse{
		Message: "Song deleted successfully",
		ID:      id,
	})
}

// handleIngest handles POST /api/ingest. The directory is read on the server.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if fi, err := os.Stat(req.Dir); err != nil || !fi.IsDir() {
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("%s is not a directory", req.Dir))
		return
	}

	report, err := s.service.IngestDir(r.Context(), req.Dir)
	if err != nil {
		s.log.Errorf("Ingest of %s failed: %v", req.Dir, err)
		s.respondError(w, http.StatusInternalServerError, fmt.Sprintf("Ingest failed: %v", err))
		return
	}

	resp := IngestResponse{
		Total:        report.Total,
		Indexed:      report.Indexed,
		Existing:     report.Existing,
		Empty:        report.Empty,
		Fingerprints: report.Fingerprints,
		Failures:     make([]string, len(report.Failures)),
		Summary: fmt.Sprintf("indexed %d of %d files (%s fingerprints)",
			report.Indexed, report.Total, humanize.Comma(report.Fingerprints)),
	}
	for i, f := range report.Failures {
		resp.Failures[i] = f.Error()
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// handleMatchFile handles POST /api/match with a multipart "audio" upload
func (s *Server) handleMatchFile(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.log.Errorf("Failed to parse form: %v", err)
		s.respondError(w, http.StatusBadRequest, "Failed to parse form data")
		return
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "audio file is required")
		return
	}
	defer file.Close()

	tempFile := utils.TempPath(s.config.TempDir, strings.ToLower(filepath.Ext(header.Filename)))
	out, err := os.Create(tempFile)
	if err != nil {
		s.log.Errorf("Failed to create temp file: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to process upload")
		return
	}
	defer os.Remove(tempFile)

	_, err = io.Copy(out, file)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		s.log.Errorf("Failed to save file: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to save uploaded file")
		return
	}

	s.log.Infof("Matching uploaded file %s (%s)", header.Filename, humanize.Bytes(uint64(header.Size)))
	match, err := s.service.RecognizeFile(ctx, tempFile)
	if err != nil {
		s.log.Errorf("Failed to match %s: %v", header.Filename, err)
		s.respondError(w, http.StatusUnprocessableEntity, fmt.Sprintf("Failed to match audio: %v", err))
		return
	}
	s.respondJSON(w, http.StatusOK, s.matchResponse(match))
}

// handleMatchFingerprints handles POST /api/match/fingerprints
func (s *Server) handleMatchFingerprints(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	var req MatchFingerprintsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	fps, err := req.Validate()
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(fps) > MaxFingerprintsSoftLimit {
		s.log.Warnf("Large fingerprint query: %s fingerprints", humanize.Comma(int64(len(fps))))
	}

	match, err := s.service.Recognize(ctx, fps)
	if err != nil {
		s.log.Errorf("Failed to match fingerprints: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to match fingerprints")
		return
	}
	s.respondJSON(w, http.StatusOK, s.matchResponse(match))
}

// handleSongs routes requests to /api/songs
func (s *Server) handleSongs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.handleListSongs(w, r)
}

// handleSong routes requests to /api/songs/{id}
func (s *Server) handleSong(w http.ResponseWriter, r *http.Request) {
	idStr := strings.TrimPrefix(r.URL.Path, "/api/songs/")
	if idStr == "" {
		s.respondError(w, http.StatusBadRequest, "Song ID required")
		return
	}

	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil || id == 0 {
		s.respondError(w, http.StatusBadRequest, "Invalid song ID")
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.handleGetSong(w, r, uint(id))
	case http.MethodDelete:
		s.handleDeleteSong(w, r, uint(id))
	default:
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// handleIngestRoute routes requests to /api/ingest
func (s *Server) handleIngestRoute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.handleIngest(w, r)
}

// handleMatch routes requests to /api/match
func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.handleMatchFile(w, r)
}

// handleMatchFingerprintsRoute routes requests to /api/match/fingerprints
func (s *Server) handleMatchFingerprintsRoute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.handleMatchFingerprints(w, r)
}
