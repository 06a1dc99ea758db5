package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/marmos91/docmirror/internal/logger"
	"github.com/marmos91/docmirror/pkg/archive"
)

const (
	defaultOperationsLimit = 50
	maxOperationsLimit     = 1000
)

// handleUpdate clears the content tree and downloads the bucket again.
func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	// A client disconnect must not abort a half-done tree rewrite.
	ctx := context.WithoutCancel(r.Context())

	result, err := s.config.Downloader.CleanDownload(ctx)
	if err != nil {
		logger.Error("Failed to update documentation: %v", err)
		writeStatus(w, http.StatusInternalServerError)
		return
	}

	logger.Info("Documentation updated: %d files, %d bytes", result.Written, result.Bytes)
	writeStatus(w, http.StatusOK)
}

// handleUpload deploys the archive in the request body. The declared
// Content-Type selects the codec.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	format, err := archive.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		logger.Warn("Rejected upload: %v", err)
		writeStatus(w, http.StatusUnsupportedMediaType)
		return
	}

	if r.ContentLength > s.config.MaxUploadBytes {
		logger.Warn("Rejected upload: %d bytes exceeds limit of %d", r.ContentLength, s.config.MaxUploadBytes)
		writeStatus(w, http.StatusRequestEntityTooLarge)
		return
	}
	body := http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes)

	if err := s.config.Deployer.Deploy(context.WithoutCancel(r.Context()), body, format); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			logger.Warn("Rejected upload: body exceeds limit of %d bytes", tooLarge.Limit)
			writeStatus(w, http.StatusRequestEntityTooLarge)
			return
		}

		logger.Error("Failed to deploy %s upload: %v", format, err)
		writeStatus(w, http.StatusInternalServerError)
		return
	}

	writeStatus(w, http.StatusOK)
}

// handleOperations lists recent journal records, newest first.
func (s *Server) handleOperations(w http.ResponseWriter, r *http.Request) {
	if s.config.Operations == nil {
		http.Error(w, "operation journal is disabled", http.StatusNotFound)
		return
	}

	limit := defaultOperationsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxOperationsLimit)
	}

	records, err := s.config.Operations.List(limit)
	if err != nil {
		logger.Error("Failed to list operations: %v", err)
		writeStatus(w, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, records)
}

// handleHealth reports 503 once a deploy has left the tree unrecoverable.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.config.Health.Status()

	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

// writeStatus writes the bare status text; error details stay in the log.
func writeStatus(w http.ResponseWriter, code int) {
	http.Error(w, http.StatusText(code), code)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("Failed to write JSON response: %v", err)
	}
}
