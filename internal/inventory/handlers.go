package inventory

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/freshkeep/freshkeep/internal/capture"
	"github.com/freshkeep/freshkeep/internal/imaging"
	"github.com/freshkeep/freshkeep/internal/vision"
)

const dateFormat = "2006-01-02"

// corsError writes an error response with CORS headers set
func corsError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	http.Error(w, message, code)
}

// jsonError writes a JSON error body with CORS headers set
func jsonError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// writeJSON encodes a response body
func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// handleUploadScan accepts an image upload and opens a review session
func (s *Server) handleUploadScan(w http.ResponseWriter, r *http.Request) {
	// 50MB covers high-resolution phone photos
	maxFormSize := int64(50 << 20)
	if err := r.ParseMultipartForm(maxFormSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		jsonError(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "No file provided", http.StatusBadRequest)
		return
	}
	defer f.Close()

	if header.Size > maxFormSize {
		jsonError(w, "File is too large. Maximum size is 50MB.", http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		jsonError(w, "Error reading file", http.StatusInternalServerError)
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = imaging.ContentTypeForFilename(header.Filename)
	}

	precision := s.precision
	if value := r.FormValue("precision"); value != "" {
		precision, err = vision.ParsePrecision(value)
		if err != nil {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	session, err := s.service.ScanFile(r.Context(), data, contentType, precision)
	if err != nil {
		s.scanError(w, header.Filename, err)
		return
	}

	writeJSON(w, http.StatusCreated, session)
}

// scanError maps scan-path failures onto HTTP status codes
func (s *Server) scanError(w http.ResponseWriter, filename string, err error) {
	slog.Error("Error scanning image", "filename", filename, "error", err)
	switch {
	case errors.Is(err, ErrScanInProgress):
		jsonError(w, "A scan is already in progress", http.StatusConflict)
	case errors.Is(err, imaging.ErrDecode):
		jsonError(w, "Could not decode image", http.StatusBadRequest)
	case errors.Is(err, vision.ErrRecognition):
		jsonError(w, "Recognition failed", http.StatusBadGateway)
	default:
		jsonError(w, "Internal server error", http.StatusInternalServerError)
	}
}

// handleGetScan returns a pending review session
func (s *Server) handleGetScan(w http.ResponseWriter, r *http.Request) {
	session, err := s.service.GetSession(r.PathValue("id"))
	if err != nil {
		corsError(w, "Session not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// handleAcceptScan promotes a session's candidates into the inventory
func (s *Server) handleAcceptScan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ExpiryDate string `json:"expiry_date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		corsError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	expiry, err := time.Parse(dateFormat, req.ExpiryDate)
	if err != nil {
		jsonError(w, "expiry_date must be formatted YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	items, err := s.service.AcceptSession(r.PathValue("id"), expiry)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			corsError(w, "Session not found", http.StatusNotFound)
			return
		}
		slog.Error("Error accepting session", "error", err)
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusCreated, items)
}

// handleCancelScan discards a review session
func (s *Server) handleCancelScan(w http.ResponseWriter, r *http.Request) {
	if err := s.service.CancelSession(r.PathValue("id")); err != nil {
		corsError(w, "Session not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListItems returns items matching the query filters
func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	bucket, err := ParseBucket(r.URL.Query().Get("bucket"))
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	items := s.service.ListItems(Criteria{
		Search:   r.URL.Query().Get("search"),
		Category: r.URL.Query().Get("category"),
		Bucket:   bucket,
	})

	// Ensure we always return an array, not nil
	if items == nil {
		items = []*FoodItem{}
	}

	writeJSON(w, http.StatusOK, items)
}

// handleCreateItem adds a manually-entered item
func (s *Server) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name       string `json:"name"`
		Category   string `json:"category"`
		ExpiryDate string `json:"expiry_date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		corsError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	expiry, err := time.Parse(dateFormat, req.ExpiryDate)
	if err != nil {
		jsonError(w, "expiry_date must be formatted YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	item, err := s.service.AddItem(req.Name, req.Category, expiry)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusCreated, item)
}

// handleToggleConsumed flips an item's consumed flag
func (s *Server) handleToggleConsumed(w http.ResponseWriter, r *http.Request) {
	item, err := s.service.ToggleConsumed(r.PathValue("id"))
	if err != nil {
		corsError(w, "Item not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// handleDeleteItem removes an item
func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	if err := s.service.RemoveItem(r.PathValue("id")); err != nil {
		corsError(w, "Item not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGetItemImage serves the source image for a scanned item
func (s *Server) handleGetItemImage(w http.ResponseWriter, r *http.Request) {
	png, err := s.service.GetItemImage(r.PathValue("id"))
	if err != nil {
		corsError(w, "Image not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(png)
}

// handleSummary returns expiry bucket counts
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Summarize())
}

// handleCameraStart acquires the camera and begins streaming
func (s *Server) handleCameraStart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Facing string `json:"facing"`
		Width  int    `json:"width"`
		Height int    `json:"height"`
	}
	// An empty body means default constraints
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		corsError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	facing, err := capture.ParseFacing(req.Facing)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = s.source.Start(r.Context(), capture.Constraints{
		Facing: facing,
		Width:  req.Width,
		Height: req.Height,
	})
	if err != nil {
		s.cameraError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"state": s.source.State().String()})
}

// cameraError maps camera acquisition failures onto HTTP status codes
func (s *Server) cameraError(w http.ResponseWriter, err error) {
	slog.Error("Camera error", "error", err)
	switch {
	case errors.Is(err, capture.ErrPermissionDenied):
		jsonError(w, "Camera permission denied", http.StatusForbidden)
	case errors.Is(err, capture.ErrDeviceUnavailable):
		jsonError(w, "Camera unavailable", http.StatusServiceUnavailable)
	default:
		jsonError(w, err.Error(), http.StatusConflict)
	}
}

// handleCameraCapture grabs the latest frame, releases the camera and
// runs recognition on the captured bitmap.
func (s *Server) handleCameraCapture(w http.ResponseWriter, r *http.Request) {
	bitmap, err := s.source.Capture()
	if err != nil {
		s.cameraError(w, err)
		return
	}

	session, err := s.service.ScanBitmap(r.Context(), bitmap, s.precision)
	if err != nil {
		s.scanError(w, "camera frame", err)
		return
	}

	writeJSON(w, http.StatusCreated, session)
}

// handleCameraCancel releases any held camera handle
func (s *Server) handleCameraCancel(w http.ResponseWriter, r *http.Request) {
	s.source.Cancel()
	w.WriteHeader(http.StatusNoContent)
}

// handleCameraState reports the capture lifecycle state
func (s *Server) handleCameraState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"state": s.source.State().String()})
}

// handleHealth is the liveness probe
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
