// Package server exposes an authenticated client over HTTP: incoming
// requests are forwarded to the API with the stored bearer token, and admin
// endpoints manage the token pair.
package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/dvcrn/authclient/internal/apierror"
	"github.com/dvcrn/authclient/internal/credentials"
	"github.com/dvcrn/authclient/internal/transport"
	"github.com/rs/zerolog"
)

// Forwarder sends a request to the API. *client.Client implements it.
type Forwarder interface {
	Raw(ctx context.Context, method, path string, body []byte, header http.Header) (*transport.Response, error)
}

type Server struct {
	api    Forwarder
	store  credentials.TokenStore
	mux    *http.ServeMux
	logger zerolog.Logger
}

func New(logger zerolog.Logger, api Forwarder, store credentials.TokenStore) *Server {
	s := &Server{
		api:    api,
		store:  store,
		mux:    http.NewServeMux(),
		logger: logger,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/health", s.healthHandler)
	s.mux.HandleFunc("/admin/tokens", s.adminMiddleware(s.tokensHandler))
	s.mux.HandleFunc("/admin/tokens/status", s.adminMiddleware(s.tokensStatusHandler))
	s.mux.HandleFunc("/", s.forwardHandler)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.loggingMiddleware(s.mux).ServeHTTP(w, r)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		s.logger.Info().
			Str("method", r.Method).
			Str("uri", r.RequestURI).
			Str("remote_addr", r.RemoteAddr).
			Str("user_agent", r.UserAgent()).
			Msg("Incoming request")
		next.ServeHTTP(w, r)
		s.logger.Info().
			Str("method", r.Method).
			Str("uri", r.RequestURI).
			Dur("duration", time.Since(start)).
			Msg("Finished request")
	})
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status": "ok"}`))
}

// forwardHandler relays the request to the API through the authenticated
// client. Incoming credentials are not forwarded.
func (s *Server) forwardHandler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	path := r.URL.Path
	if r.URL.RawQuery != "" {
		path += "?" + r.URL.RawQuery
	}

	header := http.Header{}
	if ct := r.Header.Get("Content-Type"); ct != "" {
		header.Set("Content-Type", ct)
	}

	resp, err := s.api.Raw(r.Context(), r.Method, path, body, header)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(resp.Body)
}

type errorResponse struct {
	Name        string              `json:"name"`
	Message     string              `json:"message"`
	StatusCode  int                 `json:"statusCode,omitempty"`
	RetryAfter  *int                `json:"retryAfter,omitempty"`
	FieldErrors map[string][]string `json:"errors,omitempty"`
}

// writeError renders a classified failure. Failures without an upstream
// status become 502, timeouts 504.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	apiErr := apierror.Classify(err)
	status := apiErr.StatusCode
	if status == 0 {
		status = http.StatusBadGateway
		if apiErr.Kind == apierror.KindTimeout {
			status = http.StatusGatewayTimeout
		}
	}
	s.logger.Warn().
		Str("kind", apiErr.Name()).
		Int("status_code", status).
		Str("message", apiErr.Message).
		Msg("Forwarded request failed")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(errorResponse{
		Name:        apiErr.Name(),
		Message:     apiErr.Message,
		StatusCode:  apiErr.StatusCode,
		RetryAfter:  apiErr.RetryAfter,
		FieldErrors: apiErr.FieldErrors,
	}); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode error response")
	}
}
