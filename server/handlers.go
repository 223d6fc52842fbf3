package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/RyanBlaney/beatwizard/features"
	"github.com/RyanBlaney/beatwizard/logging"
	"github.com/RyanBlaney/beatwizard/storage"
	"github.com/RyanBlaney/beatwizard/transcode"
)

// multipartMemory is the part of a multipart body kept in memory; the rest
// spills to temp files
const multipartMemory = 32 << 20

// respondJSON writes a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error(err, "Failed to encode JSON response")
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

// statusForError maps domain errors to HTTP status codes
func statusForError(err error) int {
	switch {
	case transcode.IsDecodeError(err), transcode.IsEmptyAudio(err):
		return http.StatusUnprocessableEntity
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	if s.config.RequestTimeout > 0 {
		return context.WithTimeout(r.Context(), s.config.RequestTimeout)
	}
	return context.WithCancel(r.Context())
}

// readUpload reads the audio_file part of a multipart request
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadSize)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.respondError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("upload exceeds %s", humanize.IBytes(uint64(s.config.MaxUploadSize))))
			return nil, "", false
		}
		s.respondError(w, http.StatusBadRequest, "Failed to parse form data")
		return nil, "", false
	}

	file, header, err := r.FormFile("audio_file")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "audio_file is required")
		return nil, "", false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.logger.Error(err, "Failed to read upload", logging.Fields{"filename": header.Filename})
		s.respondError(w, http.StatusBadRequest, "Failed to read audio_file")
		return nil, "", false
	}

	return data, header.Filename, true
}

// analyzeUpload runs the analyzer and writes the error response on failure
func (s *Server) analyzeUpload(ctx context.Context, w http.ResponseWriter, data []byte, filename string) (*features.Analysis, bool) {
	start := time.Now()
	analysis, err := s.analyzer.AnalyzeBytes(ctx, data)
	if err != nil {
		status := statusForError(err)
		s.logger.Error(err, "Analysis failed", logging.Fields{
			"filename": filename,
			"size":     humanize.Bytes(uint64(len(data))),
			"status":   status,
		})
		s.respondError(w, status, fmt.Sprintf("Analysis failed: %v", err))
		return nil, false
	}

	s.logger.Info("Analyzed upload", logging.Fields{
		"filename": filename,
		"size":     humanize.Bytes(uint64(len(data))),
		"tempo":    analysis.Features.Tempo,
		"key":      analysis.Key,
		"took":     time.Since(start).String(),
	})
	return analysis, true
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, HealthResponse{
		Status:  "healthy",
		Message: "Beat Analysis API is running",
		Time:    time.Now().Format(time.RFC3339),
	})
}

// handleAnalyzeBeat handles POST /analyze-beat (multipart file upload)
func (s *Server) handleAnalyzeBeat(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.requestContext(r)
	defer cancel()

	data, filename, ok := s.readUpload(w, r)
	if !ok {
		return
	}

	analysis, ok := s.analyzeUpload(ctx, w, data, filename)
	if !ok {
		return
	}

	s.respondJSON(w, http.StatusOK, AnalyzeResponse{
		Success:  true,
		Analysis: analysis.Features,
		Key:      analysis.Key,
		Waveform: analysis.Waveform,
		Filename: filename,
	})
}

// handleStoreBeat handles POST /beats: analyze the upload and persist it
func (s *Server) handleStoreBeat(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.requestContext(r)
	defer cancel()

	data, filename, ok := s.readUpload(w, r)
	if !ok {
		return
	}

	meta := storage.BeatMetadata{
		UserID:       r.FormValue("user_id"),
		Title:        r.FormValue("title"),
		Description:  r.FormValue("description"),
		StorageURL:   r.FormValue("storage_url"),
		KeySignature: r.FormValue("key_signature"),
		IsPublic:     r.FormValue("is_public") == "true",
	}
	if meta.Title == "" {
		meta.Title = filename
	}
	if bpm := r.FormValue("bpm"); bpm != "" {
		v, err := strconv.ParseFloat(bpm, 64)
		if err != nil || v < 0 {
			s.respondError(w, http.StatusBadRequest, "bpm must be a non-negative number")
			return
		}
		meta.BPM = v
	}

	analysis, ok := s.analyzeUpload(ctx, w, data, filename)
	if !ok {
		return
	}
	if meta.KeySignature == "" {
		meta.KeySignature = analysis.Key
	}

	id, err := s.store.Store(ctx, meta, analysis.Features)
	if err != nil {
		s.logger.Error(err, "Failed to store beat", logging.Fields{"title": meta.Title})
		s.respondError(w, statusForError(err), "Failed to store beat")
		return
	}

	s.respondJSON(w, http.StatusCreated, StoreBeatResponse{
		Message:  "Beat stored successfully",
		ID:       id,
		Title:    meta.Title,
		Key:      meta.KeySignature,
		Analysis: analysis.Features,
	})
}

// handleListBeats handles GET /beats?limit=N&offset=M
func (s *Server) handleListBeats(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	beats, err := s.store.List(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error(err, "Failed to list beats")
		s.respondError(w, http.StatusInternalServerError, "Failed to retrieve beats")
		return
	}

	s.respondJSON(w, http.StatusOK, ListBeatsResponse{
		Beats: beats,
		Count: len(beats),
	})
}

// handleGetBeat handles GET /beats/{id}
func (s *Server) handleGetBeat(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	beat, err := s.store.Get(r.Context(), id)
	if err != nil {
		status := statusForError(err)
		if status == http.StatusNotFound {
			s.respondError(w, status, fmt.Sprintf("Beat with ID %s not found", id))
			return
		}
		s.logger.Error(err, "Failed to get beat", logging.Fields{"beat_id": id})
		s.respondError(w, status, "Failed to retrieve beat")
		return
	}

	s.respondJSON(w, http.StatusOK, beat)
}

// handleDeleteBeat handles DELETE /beats/{id}
func (s *Server) handleDeleteBeat(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if err := s.store.Delete(r.Context(), id); err != nil {
		status := statusForError(err)
		if status == http.StatusNotFound {
			s.respondError(w, status, fmt.Sprintf("Beat with ID %s not found", id))
			return
		}
		s.logger.Error(err, "Failed to delete beat", logging.Fields{"beat_id": id})
		s.respondError(w, status, "Failed to delete beat")
		return
	}

	s.logger.Info("Deleted beat", logging.Fields{"beat_id": id})
	s.respondJSON(w, http.StatusOK, DeleteBeatResponse{
		Message: "Beat deleted successfully",
		ID:      id,
	})
}

// handleSimilarBeats handles GET /beats/{id}/similar?limit=N
func (s *Server) handleSimilarBeats(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	limit, err := queryInt(r, "limit", storage.DefaultSimilarLimit)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	similar, err := s.store.FetchSimilar(r.Context(), id, limit)
	if err != nil {
		status := statusForError(err)
		if status == http.StatusNotFound {
			s.respondError(w, status, fmt.Sprintf("Beat with ID %s not found", id))
			return
		}
		s.logger.Error(err, "Failed to fetch similar beats", logging.Fields{"beat_id": id})
		s.respondError(w, status, "Failed to fetch similar beats")
		return
	}

	s.respondJSON(w, http.StatusOK, SimilarBeatsResponse{
		BeatID:  id,
		Similar: similar,
		Count:   len(similar),
	})
}

// queryInt parses a non-negative integer query parameter
func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return v, nil
}
