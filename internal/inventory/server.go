package inventory

import (
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"

	"github.com/freshkeep/freshkeep/internal/capture"
	"github.com/freshkeep/freshkeep/internal/vision"
)

// Server handles HTTP requests for the inventory
type Server struct {
	service   *Service
	source    *capture.Source
	precision vision.Precision
	basicAuth BasicAuth
	mux       *http.ServeMux
}

// BasicAuth holds basic authentication credentials
type BasicAuth struct {
	Username string
	Password string
}

// NewServer creates a new Server with default mux. source may be nil
// when no camera is configured; the camera routes are then absent.
func NewServer(service *Service, source *capture.Source, precision vision.Precision, basicAuth BasicAuth) *Server {
	return NewServerWithMux(service, source, precision, basicAuth, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(service *Service, source *capture.Source, precision vision.Precision, basicAuth BasicAuth, mux *http.ServeMux) *Server {
	s := &Server{
		service:   service,
		source:    source,
		precision: precision,
		basicAuth: basicAuth,
		mux:       mux,
	}
	s.registerRoutes()
	return s
}

// authenticate checks basic auth credentials
func (s *Server) authenticate(r *http.Request) bool {
	if s.basicAuth.Username == "" && s.basicAuth.Password == "" {
		return true // No auth required if not configured
	}

	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Basic ") {
		return false
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(auth, "Basic "))
	if err != nil {
		return false
	}

	credentials := strings.SplitN(string(decoded), ":", 2)
	if len(credentials) != 2 {
		return false
	}

	return credentials[0] == s.basicAuth.Username && credentials[1] == s.basicAuth.Password
}

// corsMiddleware adds CORS headers to responses
func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next(w, r)
	}
}

// requireAuth middleware
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authenticate(r) {
			setCORSHeaders(w)
			w.Header().Set("WWW-Authenticate", `Basic realm="FreshKeep"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// registerRoutes registers all API routes on the server's mux
// Routes must be registered from most specific to least specific to avoid conflicts
func (s *Server) registerRoutes() {
	// Scanning
	s.mux.HandleFunc("POST /api/scans/{id}/accept", s.requireAuth(s.handleAcceptScan))
	s.mux.HandleFunc("GET /api/scans/{id}", s.requireAuth(s.handleGetScan))
	s.mux.HandleFunc("DELETE /api/scans/{id}", s.requireAuth(s.handleCancelScan))
	s.mux.HandleFunc("POST /api/scans", s.requireAuth(s.handleUploadScan))

	// Items
	s.mux.HandleFunc("GET /api/items/{id}/image", s.requireAuth(s.handleGetItemImage))
	s.mux.HandleFunc("POST /api/items/{id}/consumed", s.requireAuth(s.handleToggleConsumed))
	s.mux.HandleFunc("DELETE /api/items/{id}", s.requireAuth(s.handleDeleteItem))
	s.mux.HandleFunc("GET /api/items", s.requireAuth(s.handleListItems))
	s.mux.HandleFunc("POST /api/items", s.requireAuth(s.handleCreateItem))

	s.mux.HandleFunc("GET /api/summary", s.requireAuth(s.handleSummary))

	// Camera lifecycle, only when a capture source is wired
	if s.source != nil {
		s.mux.HandleFunc("POST /api/camera/start", s.requireAuth(s.handleCameraStart))
		s.mux.HandleFunc("POST /api/camera/capture", s.requireAuth(s.handleCameraCapture))
		s.mux.HandleFunc("DELETE /api/camera", s.requireAuth(s.handleCameraCancel))
		s.mux.HandleFunc("GET /api/camera", s.requireAuth(s.handleCameraState))
	}

	s.mux.HandleFunc("GET /healthz", s.handleHealth)
}

// Start starts the HTTP server
func (s *Server) Start(addr string) error {
	slog.Info("Starting server", "address", addr)
	return http.ListenAndServe(addr, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.corsMiddleware(func(w http.ResponseWriter, r *http.Request) {
			s.mux.ServeHTTP(w, r)
		})(w, r)
	}))
}

// ServeHTTP implements http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
