package depot

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"depot/internal/store"
)

// Config holds configuration for the upload coordinator HTTP server.
type Config struct {
	// Store is the object store all durable state lives in.
	Store store.Store

	// MultipartThreshold is the declared-size boundary for the multipart
	// reassembly strategy. Zero selects the default.
	MultipartThreshold int64
}

// Server exposes the chunked-upload coordinator over HTTP.
type Server struct {
	depot *Depot
}

// NewServer returns a new Server wired to the configured object store.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Store == nil {
		return nil, errors.New("store must not be nil")
	}

	return &Server{
		depot: New(cfg.Store, WithMultipartThreshold(cfg.MultipartThreshold)),
	}, nil
}

type errorResponse struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	MissingChunk *int   `json:"missingChunk,omitempty"`
}

// writeError writes a structured JSON error response.
func writeError(w http.ResponseWriter, status int, resp errorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("Encode error response", "err", err)
	}
}

// writeDepotError maps a coordinator error onto the HTTP error surface.
func writeDepotError(w http.ResponseWriter, err error) {
	var missing *MissingChunkError

	switch {
	case errors.Is(err, ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, errorResponse{Code: "InvalidRequest", Message: err.Error()})
	case errors.Is(err, ErrSessionNotFound):
		writeError(w, http.StatusNotFound, errorResponse{Code: "SessionNotFound", Message: err.Error()})
	case errors.Is(err, ErrFileNotFound):
		writeError(w, http.StatusNotFound, errorResponse{Code: "FileNotFound", Message: err.Error()})
	case errors.As(err, &missing):
		writeError(w, http.StatusConflict, errorResponse{Code: "MissingChunk", Message: err.Error(), MissingChunk: &missing.Index})
	case errors.Is(err, ErrCompletionInFlight):
		writeError(w, http.StatusConflict, errorResponse{Code: "CompletionInFlight", Message: err.Error()})
	case errors.Is(err, ErrReassemblyFailed):
		writeError(w, http.StatusBadGateway, errorResponse{Code: "ReassemblyFailed", Message: err.Error()})
	default:
		slog.Error("Unhandled error in HTTP handler", "err", err)
		writeError(w, http.StatusInternalServerError, errorResponse{Code: "InternalError", Message: "We encountered an internal error. Please try again."})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Encode JSON response", "err", err)
	}
}

type prepareRequest struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

type prepareResponse struct {
	UploadID string `json:"uploadId"`
}

// handlePrepare implements POST /uploads to declare intent to upload.
func (s *Server) handlePrepare(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req prepareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errorResponse{Code: "InvalidRequest", Message: "Request body must be valid JSON."})
		return
	}

	uploadID, err := s.depot.CreateSession(r.Context(), req.Filename, req.ContentType, req.Size)
	if err != nil {
		writeDepotError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, prepareResponse{UploadID: uploadID})
}

// handleUploadChunk implements PUT /uploads/{id}/chunks/{index}. The raw
// request body is the chunk payload. Re-uploading an index overwrites the
// prior bytes, which makes client-side retry trivially safe.
func (s *Server) handleUploadChunk(w http.ResponseWriter, r *http.Request, uploadID string, rawIndex string) {
	defer r.Body.Close()

	partIndex, err := strconv.Atoi(rawIndex)
	if err != nil || partIndex < 0 {
		writeError(w, http.StatusBadRequest, errorResponse{Code: "InvalidRequest", Message: fmt.Sprintf("Invalid chunk index %q.", rawIndex)})
		return
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		slog.Error("Read chunk body", "upload_id", uploadID, "part_index", partIndex, "err", err)
		writeError(w, http.StatusBadRequest, errorResponse{Code: "InvalidRequest", Message: "Failed to read request body."})
		return
	}

	if err := s.depot.ReceiveChunk(r.Context(), uploadID, partIndex, data); err != nil {
		writeDepotError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"uploadId": uploadID, "partIndex": partIndex, "received": len(data)})
}

type completeRequest struct {
	Filename   string `json:"filename"`
	ChunkCount int    `json:"chunkCount"`
}

// handleComplete implements POST /uploads/{id}/complete to trigger
// reassembly.
func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request, uploadID string) {
	defer r.Body.Close()

	var req completeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errorResponse{Code: "InvalidRequest", Message: "Request body must be valid JSON."})
		return
	}

	if err := s.depot.CompleteUpload(r.Context(), uploadID, req.Filename, req.ChunkCount); err != nil {
		writeDepotError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"uploadId": uploadID, "filename": req.Filename, "status": StatusCompleted})
}

// handleAbort implements DELETE /uploads/{id}?chunkCount=N to abandon an
// in-progress upload and sweep its transient objects.
func (s *Server) handleAbort(w http.ResponseWriter, r *http.Request, uploadID string) {
	chunkCount := 0
	if raw := r.URL.Query().Get("chunkCount"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			writeError(w, http.StatusBadRequest, errorResponse{Code: "InvalidRequest", Message: fmt.Sprintf("Invalid chunkCount %q.", raw)})
			return
		}
		chunkCount = v
	}

	if err := s.depot.AbortUpload(r.Context(), uploadID, chunkCount); err != nil {
		writeDepotError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type listResponse struct {
	Files []FileInfo `json:"files"`
}

// handleListFiles implements GET /files.
func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	files, err := s.depot.ListFiles(r.Context())
	if err != nil {
		writeDepotError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, listResponse{Files: files})
}

// handleDownload implements GET /files/{name}.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request, name string) {
	data, contentType, err := s.depot.Download(r.Context(), name)
	if err != nil {
		writeDepotError(w, err)
		return
	}

	if contentType == "" {
		contentType = store.DefaultContentType
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		slog.Error("Stream file", "name", name, "err", err)
	}
}
